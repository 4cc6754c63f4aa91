// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package auth implements registration, verification and login.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"

	"codeberg.org/oliverandrich/go-blog-auth/internal/models"
	"codeberg.org/oliverandrich/go-blog-auth/internal/repository"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/otp"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/token"
	"golang.org/x/crypto/bcrypt"
)

var purposePattern = regexp.MustCompile(`^[a-z_]{1,32}$`)

// dummyHash is used for constant-time login to prevent timing attacks
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("dummy-password-for-timing"), bcrypt.DefaultCost)

// Sender delivers a message to an email address.
type Sender interface {
	Send(ctx context.Context, to, subject, body string) error
}

// RegisterResult is returned by Register. Created is false when an existing
// unverified account was updated.
type RegisterResult struct {
	User    *models.User
	Created bool
}

type Service struct {
	repo              *repository.Repository
	otp               *otp.Issuer
	tokens            *token.Service
	sender            Sender
	passwordValidator *PasswordValidator
}

func NewService(repo *repository.Repository, issuer *otp.Issuer, tokens *token.Service, sender Sender) *Service {
	return &Service{
		repo:              repo,
		otp:               issuer,
		tokens:            tokens,
		sender:            sender,
		passwordValidator: DefaultPasswordValidator(),
	}
}

// PasswordValidator returns the password validator for use in handlers
func (s *Service) PasswordValidator() *PasswordValidator {
	return s.passwordValidator
}

// Register creates an unverified account, or updates the username of an
// account that has not been verified yet, and sends a registration code.
// A delivery failure returns both the result and ErrSendFailed.
func (s *Service) Register(ctx context.Context, address, username string) (*RegisterResult, error) {
	address = normalizeEmail(address)
	username = strings.TrimSpace(username)

	verr := &ValidationError{}
	verr.add("email", validateEmail(address)...)
	verr.add("username", models.ValidateUsername(username)...)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	result := &RegisterResult{}
	user, err := s.repo.GetUserByEmail(ctx, address)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		user, err = s.repo.CreateUser(ctx, address, username)
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrDuplicateUser
		}
		if err != nil {
			return nil, fmt.Errorf("creating user: %w", err)
		}
		result.Created = true
		slog.InfoContext(ctx, "user_registered", "user_id", user.ID)
	case err != nil:
		return nil, fmt.Errorf("looking up user: %w", err)
	case user.IsVerified:
		return nil, ErrAlreadyRegistered
	default:
		if user.Username != username {
			user, err = s.changeUsername(ctx, user.ID, username)
			if err != nil {
				return nil, err
			}
		}
		slog.InfoContext(ctx, "user_reregistered", "user_id", user.ID)
	}
	result.User = user

	if err := s.issueAndSend(ctx, address, otp.PurposeRegister); err != nil {
		return result, err
	}
	return result, nil
}

// VerifyOTP consumes a registration code and sets the first password.
func (s *Service) VerifyOTP(ctx context.Context, address, code, password string) (*models.User, error) {
	return s.redeem(ctx, address, code, password, otp.PurposeRegister)
}

// RequestOTP issues a new code for an existing account. An empty purpose
// means registration.
func (s *Service) RequestOTP(ctx context.Context, address, purpose string) error {
	address = normalizeEmail(address)
	if purpose == "" {
		purpose = otp.PurposeRegister
	}

	verr := &ValidationError{}
	verr.add("email", validateEmail(address)...)
	if !purposePattern.MatchString(purpose) {
		verr.add("purpose", msgInvalidPurp)
	}
	if err := verr.orNil(); err != nil {
		return err
	}

	if _, err := s.lookup(ctx, address); err != nil {
		return err
	}
	return s.issueAndSend(ctx, address, purpose)
}

// ForgotPassword sends a password reset code.
func (s *Service) ForgotPassword(ctx context.Context, address string) error {
	return s.RequestOTP(ctx, address, otp.PurposeForgotPassword)
}

// ResetPassword consumes a reset code and replaces the password.
func (s *Service) ResetPassword(ctx context.Context, address, code, password string) error {
	_, err := s.redeem(ctx, address, code, password, otp.PurposeForgotPassword)
	return err
}

// Login checks credentials and mints a token pair.
func (s *Service) Login(ctx context.Context, address, password string) (*models.User, *token.Pair, error) {
	address = normalizeEmail(address)

	verr := &ValidationError{}
	if address == "" {
		verr.add("email", msgRequired)
	}
	if password == "" {
		verr.add("password", msgRequired)
	}
	if err := verr.orNil(); err != nil {
		return nil, nil, err
	}

	user, err := s.repo.GetUserByEmail(ctx, address)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, nil, fmt.Errorf("looking up user: %w", err)
	}
	if user == nil || !user.HasPassword() {
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		slog.InfoContext(ctx, "login_failed", "reason", "unknown_user")
		return nil, nil, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(*user.PasswordHash), []byte(password)); err != nil {
		slog.InfoContext(ctx, "login_failed", "user_id", user.ID, "reason", "password")
		return nil, nil, ErrInvalidCredentials
	}
	if !user.IsVerified {
		slog.InfoContext(ctx, "login_failed", "user_id", user.ID, "reason", "not_verified")
		return nil, nil, ErrNotVerified
	}

	pair, err := s.tokens.Issue(user)
	if err != nil {
		return nil, nil, fmt.Errorf("issuing tokens: %w", err)
	}
	slog.InfoContext(ctx, "login_success", "user_id", user.ID)
	return user, pair, nil
}

// Refresh exchanges a refresh token for new tokens.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (*token.Pair, error) {
	return s.tokens.Refresh(ctx, refreshToken)
}

// Logout revokes the refresh token. Failures are logged, not returned.
func (s *Service) Logout(ctx context.Context, refreshToken string) {
	if refreshToken == "" {
		return
	}
	if err := s.tokens.Blacklist(ctx, refreshToken); err != nil {
		slog.WarnContext(ctx, "logout_blacklist_failed", "error", err)
	}
}

// Profile returns the current state of a user.
func (s *Service) Profile(ctx context.Context, userID int64) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, userID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("loading user: %w", err)
	}
	return user, nil
}

// UpdateProfile changes the username under the registration rules.
func (s *Service) UpdateProfile(ctx context.Context, userID int64, username string) (*models.User, error) {
	username = strings.TrimSpace(username)

	verr := &ValidationError{}
	verr.add("username", models.ValidateUsername(username)...)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	user, err := s.changeUsername(ctx, userID, username)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "profile_updated", "user_id", user.ID)
	return user, nil
}

// redeem validates input, consumes a code for purpose and stores the new
// password. Registration codes also mark the account verified.
func (s *Service) redeem(ctx context.Context, address, code, password, purpose string) (*models.User, error) {
	address = normalizeEmail(address)
	code = strings.TrimSpace(code)

	verr := &ValidationError{}
	verr.add("email", validateEmail(address)...)
	switch {
	case code == "":
		verr.add("code", msgRequired)
	case !otp.IsCode(code):
		verr.add("code", msgInvalidCode)
	}
	verr.add("password", s.passwordValidator.Validate(password)...)
	if err := verr.orNil(); err != nil {
		return nil, err
	}

	user, err := s.lookup(ctx, address)
	if err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	ok, err := s.otp.VerifyAndConsume(ctx, address, purpose, code)
	if err != nil {
		return nil, err
	}
	if !ok {
		slog.InfoContext(ctx, "otp_rejected", "user_id", user.ID, "purpose", purpose)
		return nil, ErrOTPInvalidOrExpired
	}

	if purpose == otp.PurposeRegister {
		err = s.repo.SetVerifiedWithPassword(ctx, user.ID, string(hash))
	} else {
		err = s.repo.UpdateUserPassword(ctx, user.ID, string(hash))
	}
	if err != nil {
		return nil, fmt.Errorf("storing password: %w", err)
	}
	slog.InfoContext(ctx, "otp_redeemed", "user_id", user.ID, "purpose", purpose)

	return s.Profile(ctx, user.ID)
}

func (s *Service) lookup(ctx context.Context, address string) (*models.User, error) {
	user, err := s.repo.GetUserByEmail(ctx, address)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up user: %w", err)
	}
	return user, nil
}

func (s *Service) changeUsername(ctx context.Context, userID int64, username string) (*models.User, error) {
	err := s.repo.UpdateUserFields(ctx, userID, repository.UserUpdate{Username: &username})
	switch {
	case errors.Is(err, repository.ErrDuplicate):
		return nil, ErrDuplicateUser
	case errors.Is(err, repository.ErrNotFound):
		return nil, ErrUserNotFound
	case err != nil:
		return nil, fmt.Errorf("updating username: %w", err)
	}
	return s.Profile(ctx, userID)
}

func (s *Service) issueAndSend(ctx context.Context, address, purpose string) error {
	code, err := s.otp.Issue(ctx, address, purpose)
	if err != nil {
		return fmt.Errorf("issuing otp: %w", err)
	}

	subject, body := email.OTPMessage(ctx, purpose, code, s.otp.TTL())
	if err := s.sender.Send(ctx, address, subject, body); err != nil {
		slog.ErrorContext(ctx, "otp_delivery_failed", "purpose", purpose, "error", err)
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	slog.InfoContext(ctx, "otp_sent", "purpose", purpose)
	return nil
}

func normalizeEmail(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

func validateEmail(address string) []string {
	if address == "" {
		return []string{msgRequired}
	}
	parsed, err := mail.ParseAddress(address)
	if err != nil || parsed.Address != address {
		return []string{msgInvalidEmail}
	}
	return nil
}
