// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package middleware provides echo middleware for authentication and locale.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"codeberg.org/oliverandrich/go-blog-auth/internal/models"
	"codeberg.org/oliverandrich/go-blog-auth/internal/repository"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/token"
	"github.com/labstack/echo/v4"
)

// UserLoader is an interface for loading full user data
type UserLoader interface {
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
}

// AccessVerifier validates access tokens.
type AccessVerifier interface {
	VerifyAccess(tokenString string) (*token.Claims, error)
}

// AccessCookieReader extracts an access token from request cookies.
type AccessCookieReader interface {
	ReadAccess(r *http.Request) string
}

// RequireAuth rejects requests without a valid access token and loads the
// user into the request context. The token is taken from a Bearer
// Authorization header or, failing that, the access cookie.
func RequireAuth(tokens AccessVerifier, cookies AccessCookieReader, users UserLoader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := bearerToken(c.Request())
			if raw == "" && cookies != nil {
				raw = cookies.ReadAccess(c.Request())
			}
			if raw == "" {
				return unauthorized(c, "authentication credentials were not provided")
			}

			claims, err := tokens.VerifyAccess(raw)
			switch {
			case errors.Is(err, token.ErrTokenExpired):
				return unauthorized(c, "token expired")
			case err != nil:
				return unauthorized(c, "token invalid")
			}

			ctx := c.Request().Context()
			user, err := users.GetUserByID(ctx, claims.UserID)
			if errors.Is(err, repository.ErrNotFound) {
				return unauthorized(c, "user not found")
			}
			if err != nil {
				slog.ErrorContext(ctx, "auth_user_load_failed", "user_id", claims.UserID, "error", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{"error": "internal server error"})
			}

			c.SetRequest(c.Request().WithContext(WithUser(ctx, user, claims)))
			return next(c)
		}
	}
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get(echo.HeaderAuthorization)
	scheme, value, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(value)
}

func unauthorized(c echo.Context, message string) error {
	c.Response().Header().Set(echo.HeaderWWWAuthenticate, `Bearer realm="api"`)
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": message})
}
