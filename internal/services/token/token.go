// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package token mints and verifies HS256 access and refresh tokens.
package token

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"codeberg.org/oliverandrich/go-blog-auth/internal/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Token types carried in the token_type claim.
const (
	TypeAccess  = "access"
	TypeRefresh = "refresh"
)

var (
	// ErrTokenInvalid covers bad signatures, wrong types and revoked tokens.
	ErrTokenInvalid = errors.New("token is invalid")
	// ErrTokenExpired is returned for tokens past their exp claim.
	ErrTokenExpired = errors.New("token is expired")
)

// Claims is the payload of both token types.
type Claims struct {
	UserID    int64  `json:"user_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// Pair is the result of a login or refresh. RefreshToken is empty when a
// refresh did not rotate.
type Pair struct {
	AccessToken      string
	RefreshToken     string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// Blacklist records revoked refresh token ids.
type Blacklist interface {
	// Revoke marks jti unusable until the given time. It reports false if
	// another caller revoked it first.
	Revoke(ctx context.Context, jti string, userID int64, until time.Time) (bool, error)
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

// Config configures a Service.
type Config struct {
	Secret        []byte
	Issuer        string
	AccessTTL     time.Duration
	RefreshTTL    time.Duration
	RotateRefresh bool
	// Now overrides the clock, mainly for tests.
	Now func() time.Time
}

// Service issues and validates tokens.
type Service struct {
	cfg       Config
	blacklist Blacklist
	now       func() time.Time
}

// NewService creates a token service. blacklist may be nil, in which case
// refresh tokens are never revoked.
func NewService(cfg Config, blacklist Blacklist) *Service {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Service{cfg: cfg, blacklist: blacklist, now: now}
}

// AccessTTL returns the access token lifetime.
func (s *Service) AccessTTL() time.Duration { return s.cfg.AccessTTL }

// RefreshTTL returns the refresh token lifetime.
func (s *Service) RefreshTTL() time.Duration { return s.cfg.RefreshTTL }

// Issue mints a fresh access and refresh token for user.
func (s *Service) Issue(user *models.User) (*Pair, error) {
	now := s.now()
	access, accessExp, err := s.sign(user.ID, TypeAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.sign(user.ID, TypeRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

// VerifyAccess validates an access token.
func (s *Service) VerifyAccess(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TypeAccess)
}

// VerifyRefresh validates a refresh token and checks it is not revoked.
func (s *Service) VerifyRefresh(ctx context.Context, tokenString string) (*Claims, error) {
	claims, err := s.parse(tokenString, TypeRefresh)
	if err != nil {
		return nil, err
	}
	if s.blacklist == nil {
		return claims, nil
	}
	revoked, err := s.blacklist.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, fmt.Errorf("checking blacklist: %w", err)
	}
	if revoked {
		return nil, fmt.Errorf("%w: revoked", ErrTokenInvalid)
	}
	return claims, nil
}

// Refresh exchanges a refresh token for a new access token. With rotation
// the presented refresh token is revoked and a new one returned; of two
// concurrent refreshes with the same token only one succeeds.
func (s *Service) Refresh(ctx context.Context, tokenString string) (*Pair, error) {
	claims, err := s.VerifyRefresh(ctx, tokenString)
	if err != nil {
		return nil, err
	}

	now := s.now()
	pair := &Pair{}
	pair.AccessToken, pair.AccessExpiresAt, err = s.sign(claims.UserID, TypeAccess, now, s.cfg.AccessTTL)
	if err != nil {
		return nil, err
	}
	if !s.cfg.RotateRefresh {
		return pair, nil
	}

	if s.blacklist != nil {
		won, err := s.blacklist.Revoke(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time)
		if err != nil {
			return nil, fmt.Errorf("revoking refresh token: %w", err)
		}
		if !won {
			return nil, fmt.Errorf("%w: already rotated", ErrTokenInvalid)
		}
	}

	pair.RefreshToken, pair.RefreshExpiresAt, err = s.sign(claims.UserID, TypeRefresh, now, s.cfg.RefreshTTL)
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Blacklist revokes a refresh token. Tokens that are already unusable are
// ignored, so repeated calls succeed.
func (s *Service) Blacklist(ctx context.Context, tokenString string) error {
	claims, err := s.parse(tokenString, TypeRefresh)
	if errors.Is(err, ErrTokenInvalid) || errors.Is(err, ErrTokenExpired) {
		return nil
	}
	if err != nil {
		return err
	}
	if s.blacklist == nil {
		return nil
	}
	if _, err := s.blacklist.Revoke(ctx, claims.ID, claims.UserID, claims.ExpiresAt.Time); err != nil {
		return fmt.Errorf("revoking refresh token: %w", err)
	}
	return nil
}

func (s *Service) sign(userID int64, tokenType string, now time.Time, ttl time.Duration) (string, time.Time, error) {
	expiresAt := now.Add(ttl)
	claims := Claims{
		UserID:    userID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   strconv.FormatInt(userID, 10),
			Issuer:    s.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("signing %s token: %w", tokenType, err)
	}
	return signed, expiresAt, nil
}

func (s *Service) parse(tokenString, tokenType string) (*Claims, error) {
	if tokenString == "" {
		return nil, fmt.Errorf("%w: empty", ErrTokenInvalid)
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.cfg.Issuer))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return s.cfg.Secret, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	if claims.TokenType != tokenType {
		return nil, fmt.Errorf("%w: expected %s token", ErrTokenInvalid, tokenType)
	}
	if claims.ID == "" || claims.UserID == 0 {
		return nil, fmt.Errorf("%w: missing claims", ErrTokenInvalid)
	}
	return claims, nil
}
