// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package models

import (
	"time"
	"unicode"
	"unicode/utf8"
)

// MinUsernameLength is the shortest accepted username in characters.
const MinUsernameLength = 6

// User is an account of the blog. PasswordHash stays nil until the email
// address has been verified through a one-time code.
type User struct { //nolint:govet // fieldalignment: readability over optimization
	ID           int64     `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	Username     string    `db:"username" json:"username"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	IsVerified   bool      `db:"is_verified" json:"is_verified"`
	IsStaff      bool      `db:"is_staff" json:"is_staff"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// HasPassword reports whether a password hash is stored.
func (u *User) HasPassword() bool {
	return u.PasswordHash != nil && *u.PasswordHash != ""
}

// ValidateUsername returns the list of policy violations for a username.
func ValidateUsername(username string) []string {
	var problems []string
	if utf8.RuneCountInString(username) < MinUsernameLength {
		problems = append(problems, "Username must be at least 6 characters long.")
	}
	hasLetter := false
	for _, r := range username {
		if unicode.IsLetter(r) {
			hasLetter = true
			break
		}
	}
	if !hasLetter {
		problems = append(problems, "Username must contain at least one letter.")
	}
	return problems
}
