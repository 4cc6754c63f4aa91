// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package middleware

import (
	"context"

	"codeberg.org/oliverandrich/go-blog-auth/internal/ctxkeys"
	"codeberg.org/oliverandrich/go-blog-auth/internal/models"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/token"
	"github.com/labstack/echo/v4"
)

// WithUser stores the authenticated user and its token claims in ctx.
func WithUser(ctx context.Context, user *models.User, claims *token.Claims) context.Context {
	ctx = context.WithValue(ctx, ctxkeys.User{}, user)
	return context.WithValue(ctx, ctxkeys.Claims{}, claims)
}

// GetUser returns the authenticated user from the context, or nil if not authenticated.
func GetUser(ctx context.Context) *models.User {
	if user, ok := ctx.Value(ctxkeys.User{}).(*models.User); ok {
		return user
	}
	return nil
}

// GetClaims returns the access token claims from the context.
func GetClaims(ctx context.Context) *token.Claims {
	if claims, ok := ctx.Value(ctxkeys.Claims{}).(*token.Claims); ok {
		return claims
	}
	return nil
}

// CurrentUser is GetUser for an echo context.
func CurrentUser(c echo.Context) *models.User {
	return GetUser(c.Request().Context())
}
