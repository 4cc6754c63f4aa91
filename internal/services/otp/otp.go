// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package otp issues and verifies short-lived numeric one-time codes.
package otp

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"time"
)

// Purposes used by the auth flows. Callers may supply others.
const (
	PurposeRegister       = "register"
	PurposeForgotPassword = "forgot_password"
)

// CodeLength is the number of digits in a code.
const CodeLength = 6

// DefaultTTL is how long an issued code stays valid.
const DefaultTTL = 10 * time.Minute

var codeSpace = big.NewInt(1_000_000)

// Store persists code digests under a key with a time limit.
type Store interface {
	// Set stores digest under key, replacing any previous value.
	Set(ctx context.Context, key, digest string, ttl time.Duration) error
	// CompareAndDelete deletes key only if its live value equals digest and
	// reports whether it did.
	CompareAndDelete(ctx context.Context, key, digest string) (bool, error)
}

// Issuer generates codes and checks them against a Store.
type Issuer struct {
	store    Store
	ttl      time.Duration
	generate func() (string, error)
}

// Option configures an Issuer.
type Option func(*Issuer)

// WithGenerator replaces the random code source.
func WithGenerator(fn func() (string, error)) Option {
	return func(i *Issuer) {
		i.generate = fn
	}
}

// NewIssuer creates an Issuer. A non-positive ttl falls back to DefaultTTL.
func NewIssuer(store Store, ttl time.Duration, opts ...Option) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	i := &Issuer{store: store, ttl: ttl, generate: RandomCode}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// RandomCode returns a uniformly distributed zero-padded code.
func RandomCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", CodeLength, n.Int64()), nil
}

// TTL returns the lifetime of issued codes.
func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

// Issue creates a fresh code for (email, purpose), invalidating any earlier one.
func (i *Issuer) Issue(ctx context.Context, email, purpose string) (string, error) {
	code, err := i.generate()
	if err != nil {
		return "", fmt.Errorf("generating otp: %w", err)
	}
	if !IsCode(code) {
		return "", fmt.Errorf("generating otp: malformed code %q", code)
	}

	if err := i.store.Set(ctx, Key(purpose, email), digest(code), i.ttl); err != nil {
		return "", fmt.Errorf("storing otp: %w", err)
	}
	return code, nil
}

// VerifyAndConsume reports whether candidate is the live code for
// (email, purpose). A matching code is removed in the same step, so it can
// succeed at most once.
func (i *Issuer) VerifyAndConsume(ctx context.Context, email, purpose, candidate string) (bool, error) {
	if !IsCode(candidate) {
		return false, nil
	}
	ok, err := i.store.CompareAndDelete(ctx, Key(purpose, email), digest(candidate))
	if err != nil {
		return false, fmt.Errorf("consuming otp: %w", err)
	}
	return ok, nil
}

// Key returns the store key for a code.
func Key(purpose, email string) string {
	return "otp:" + purpose + ":" + email
}

// IsCode reports whether s has the shape of a code.
func IsCode(s string) bool {
	if len(s) != CodeLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func digest(code string) string {
	sum := sha256.Sum256([]byte(code))
	return hex.EncodeToString(sum[:])
}
