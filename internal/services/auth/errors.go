// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"errors"
	"sort"
	"strings"
)

var (
	ErrAlreadyRegistered   = errors.New("user is already registered and verified")
	ErrDuplicateUser       = errors.New("email or username already in use")
	ErrUserNotFound        = errors.New("user not found")
	ErrOTPInvalidOrExpired = errors.New("otp is invalid or expired")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrNotVerified         = errors.New("user is not verified")
	ErrSendFailed          = errors.New("failed to send otp")
)

// Field messages shared by several operations.
const (
	msgRequired     = "This field is required."
	msgInvalidEmail = "Enter a valid email address."
	msgInvalidCode  = "Code must be exactly 6 digits."
	msgInvalidPurp  = "Purpose must be 1 to 32 lowercase letters or underscores."
)

// ValidationError carries per-field messages for rejected input.
type ValidationError struct {
	Fields map[string][]string
}

func (e *ValidationError) add(field string, messages ...string) {
	if len(messages) == 0 {
		return
	}
	if e.Fields == nil {
		e.Fields = make(map[string][]string)
	}
	e.Fields[field] = append(e.Fields[field], messages...)
}

// orNil returns e when it holds messages.
func (e *ValidationError) orNil() error {
	if len(e.Fields) == 0 {
		return nil
	}
	return e
}

func (e *ValidationError) Error() string {
	fields := make([]string, 0, len(e.Fields))
	for field := range e.Fields {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, field := range fields {
		parts = append(parts, field+": "+strings.Join(e.Fields[field], " "))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}
