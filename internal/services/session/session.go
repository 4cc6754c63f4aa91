// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package session moves token pairs in and out of signed cookies.
package session

import (
	"encoding/hex"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/token"
	"github.com/gorilla/securecookie"
)

// Cookie names and paths.
const (
	AccessCookieName  = "access_token"
	RefreshCookieName = "refresh_token"
	AccessCookiePath  = "/"
	RefreshCookiePath = "/auth"
)

const keyLength = 32

// Manager encodes tokens into cookies and reads them back.
type Manager struct {
	codec      *securecookie.SecureCookie
	secure     bool
	domain     string
	accessTTL  time.Duration
	refreshTTL time.Duration
}

// NewManager creates a cookie manager. Keys are hex encoded 32-byte values.
// An empty hash key is replaced by a random one, which invalidates cookies
// on restart.
func NewManager(cfg *config.CookieConfig, accessTTL, refreshTTL time.Duration) (*Manager, error) {
	hashKey, err := decodeKey(cfg.HashKey, "hash")
	if err != nil {
		return nil, err
	}
	if hashKey == nil {
		slog.Warn("cookie hash key not configured, generating a random one")
		hashKey = securecookie.GenerateRandomKey(keyLength)
	}

	blockKey, err := decodeKey(cfg.BlockKey, "block")
	if err != nil {
		return nil, err
	}

	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(refreshTTL / time.Second))

	return &Manager{
		codec:      codec,
		secure:     cfg.Secure,
		domain:     cfg.Domain,
		accessTTL:  accessTTL,
		refreshTTL: refreshTTL,
	}, nil
}

func decodeKey(value, name string) ([]byte, error) {
	if value == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid cookie %s key: %w", name, err)
	}
	if len(key) != keyLength {
		return nil, fmt.Errorf("invalid cookie %s key: must be %d bytes, got %d", name, keyLength, len(key))
	}
	return key, nil
}

// Cookies returns the cookies carrying pair. The refresh cookie is omitted
// when the pair has no refresh token.
func (m *Manager) Cookies(pair *token.Pair) ([]*http.Cookie, error) {
	access, err := m.cookie(AccessCookieName, AccessCookiePath, pair.AccessToken, m.accessTTL)
	if err != nil {
		return nil, err
	}
	cookies := []*http.Cookie{access}

	if pair.RefreshToken != "" {
		refresh, err := m.cookie(RefreshCookieName, RefreshCookiePath, pair.RefreshToken, m.refreshTTL)
		if err != nil {
			return nil, err
		}
		cookies = append(cookies, refresh)
	}
	return cookies, nil
}

// ReadAccess returns the access token from the request, or "".
func (m *Manager) ReadAccess(r *http.Request) string {
	return m.read(r, AccessCookieName)
}

// ReadRefresh returns the refresh token from the request, or "".
func (m *Manager) ReadRefresh(r *http.Request) string {
	return m.read(r, RefreshCookieName)
}

// Clear returns cookies that delete both token cookies.
func (m *Manager) Clear() []*http.Cookie {
	return []*http.Cookie{
		m.expired(AccessCookieName, AccessCookiePath),
		m.expired(RefreshCookieName, RefreshCookiePath),
	}
}

func (m *Manager) cookie(name, path, value string, ttl time.Duration) (*http.Cookie, error) {
	encoded, err := m.codec.Encode(name, value)
	if err != nil {
		return nil, fmt.Errorf("encoding %s cookie: %w", name, err)
	}
	c := m.base(name, path)
	c.Value = encoded
	c.MaxAge = int(ttl / time.Second)
	return c, nil
}

func (m *Manager) read(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	var value string
	if err := m.codec.Decode(name, c.Value, &value); err != nil {
		return ""
	}
	return value
}

func (m *Manager) expired(name, path string) *http.Cookie {
	c := m.base(name, path)
	c.MaxAge = -1
	return c
}

func (m *Manager) base(name, path string) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Path:     path,
		Domain:   m.domain,
		HttpOnly: true,
		Secure:   m.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
