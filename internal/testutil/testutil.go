// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package testutil provides test helpers and fixtures.
package testutil

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"codeberg.org/oliverandrich/go-blog-auth/internal/database"
	"codeberg.org/oliverandrich/go-blog-auth/internal/models"
	"codeberg.org/oliverandrich/go-blog-auth/internal/repository"
	"github.com/alicebob/miniredis/v2"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"github.com/vinovest/sqlx"
	"golang.org/x/crypto/bcrypt"
)

// NewTestDB creates an in-memory SQLite database for tests.
// Returns both the database connection and the repository for convenience.
func NewTestDB(t *testing.T) (*sqlx.DB, *repository.Repository) {
	t.Helper()
	db, err := database.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db, repository.New(db)
}

// NewTestRedis starts an in-process Redis and returns a client bound to it.
func NewTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
	})
	return mr, client
}

// NewTestUser creates an unverified user without a password.
func NewTestUser(t *testing.T, repo *repository.Repository, email, username string) *models.User {
	t.Helper()
	user, err := repo.CreateUser(context.Background(), email, username)
	require.NoError(t, err)
	return user
}

// NewVerifiedUser creates a verified user with the given password.
func NewVerifiedUser(t *testing.T, repo *repository.Repository, email, username, password string) *models.User {
	t.Helper()
	ctx := context.Background()
	user := NewTestUser(t, repo, email, username)
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, repo.SetVerifiedWithPassword(ctx, user.ID, string(hash)))
	user, err = repo.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	return user
}

// NewEchoContext creates an Echo context for handler tests.
func NewEchoContext(e *echo.Echo, method, path string, body io.Reader) (echo.Context, *httptest.ResponseRecorder) {
	rec := httptest.NewRecorder()
	return e.NewContext(NewRequest(method, path, body), rec), rec
}

// NewRequest creates an HTTP request with a JSON content type.
func NewRequest(method, path string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, path, body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	return req
}
