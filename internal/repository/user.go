// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"strings"

	"codeberg.org/oliverandrich/go-blog-auth/internal/models"
)

const userColumns = `id, email, username, password_hash, is_verified, is_staff, created_at, updated_at`

// UserUpdate lists the user fields to overwrite. Nil fields are left untouched.
type UserUpdate struct {
	Email        *string
	Username     *string
	PasswordHash *string
}

// CreateUser inserts an unverified user without a password.
func (r *Repository) CreateUser(ctx context.Context, email, username string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.q(
		`INSERT INTO users (email, username) VALUES (?, ?) RETURNING `+userColumns),
		email, username)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByID retrieves a user by ID.
func (r *Repository) GetUserByID(ctx context.Context, id int64) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.q(`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email address.
func (r *Repository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.db.GetContext(ctx, &user, r.q(`SELECT `+userColumns+` FROM users WHERE email = ?`), email)
	if err != nil {
		return nil, wrapError(err)
	}
	return &user, nil
}

// UpdateUserFields applies only the fields set in upd.
func (r *Repository) UpdateUserFields(ctx context.Context, id int64, upd UserUpdate) error {
	var (
		sets []string
		args []any
	)
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *upd.Email)
	}
	if upd.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *upd.Username)
	}
	if upd.PasswordHash != nil {
		sets = append(sets, "password_hash = ?")
		args = append(args, *upd.PasswordHash)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")
	args = append(args, id)

	query := `UPDATE users SET ` + strings.Join(sets, ", ") + ` WHERE id = ?`
	return r.execOne(ctx, query, args...)
}

// UpdateUserPassword replaces a user's password hash.
func (r *Repository) UpdateUserPassword(ctx context.Context, id int64, passwordHash string) error {
	return r.UpdateUserFields(ctx, id, UserUpdate{PasswordHash: &passwordHash})
}

// SetVerifiedWithPassword marks the user verified and stores the password
// hash in a single statement.
func (r *Repository) SetVerifiedWithPassword(ctx context.Context, id int64, passwordHash string) error {
	return r.execOne(ctx,
		`UPDATE users SET password_hash = ?, is_verified = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		passwordHash, true, id)
}

// execOne runs an UPDATE that must hit exactly one row.
func (r *Repository) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, r.q(query), args...)
	if err != nil {
		return wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
