// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package auth

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// PasswordValidator validates passwords against various criteria
type PasswordValidator struct {
	MinLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireDigit     bool
	RequireSpecial   bool
}

// DefaultPasswordValidator returns the policy applied when setting a password:
// at least 8 characters with an uppercase letter and a digit.
func DefaultPasswordValidator() *PasswordValidator {
	return &PasswordValidator{
		MinLength:        8,
		RequireUppercase: true,
		RequireDigit:     true,
	}
}

// Validate returns the list of violated rules. An empty list means valid.
func (v *PasswordValidator) Validate(password string) []string {
	var problems []string

	if utf8.RuneCountInString(password) < v.MinLength {
		problems = append(problems, fmt.Sprintf("Password must be at least %d characters long.", v.MinLength))
	}

	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	if v.RequireUppercase && !hasUpper {
		problems = append(problems, "Password must contain at least one uppercase letter.")
	}
	if v.RequireLowercase && !hasLower {
		problems = append(problems, "Password must contain at least one lowercase letter.")
	}
	if v.RequireDigit && !hasDigit {
		problems = append(problems, "Password must contain at least one digit.")
	}
	if v.RequireSpecial && !hasSpecial {
		problems = append(problems, "Password must contain at least one special character.")
	}

	return problems
}

// HelpTexts returns human readable password requirements.
func (v *PasswordValidator) HelpTexts() []string {
	texts := []string{fmt.Sprintf("At least %d characters", v.MinLength)}
	if v.RequireUppercase {
		texts = append(texts, "At least one uppercase letter")
	}
	if v.RequireLowercase {
		texts = append(texts, "At least one lowercase letter")
	}
	if v.RequireDigit {
		texts = append(texts, "At least one digit")
	}
	if v.RequireSpecial {
		texts = append(texts, "At least one special character")
	}
	return texts
}
