// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/vinovest/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned when a unique index rejects a write.
	ErrDuplicate = errors.New("record already exists")
)

// pgUniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// Repository wraps sqlx for database operations.
type Repository struct {
	db *sqlx.DB
}

// New creates a new Repository instance.
func New(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// DB returns the underlying sqlx DB for direct access.
func (r *Repository) DB() *sqlx.DB {
	return r.db
}

// q rewrites ?-placeholders for the connected driver.
func (r *Repository) q(query string) string {
	return r.db.Rebind(query)
}

// wrapError converts driver errors to repository errors.
func wrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if isUniqueViolation(err) {
		return ErrDuplicate
	}
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		// Extended result codes keep the primary code in the low byte.
		return liteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT
	}
	return false
}
