// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"codeberg.org/oliverandrich/go-blog-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/token"
	"github.com/labstack/echo/v4"
)

type errorResponse struct {
	Error string `json:"error"`
}

type validationResponse struct {
	Errors map[string][]string `json:"errors"`
}

// writeAuthError maps service errors to status codes and JSON bodies.
// Unexpected errors are logged and answered with a bare 500.
func writeAuthError(c echo.Context, err error) error {
	var verr *auth.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, validationResponse{Errors: verr.Fields})
	}

	status, message := classify(err)
	if status == http.StatusInternalServerError {
		slog.ErrorContext(c.Request().Context(), "request_failed",
			"path", c.Path(),
			"error", err,
		)
	}
	if status == http.StatusBadGateway {
		message = i18n.T(c.Request().Context(), "msg_send_failed")
	}
	return c.JSON(status, errorResponse{Error: message})
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrOTPInvalidOrExpired):
		return http.StatusBadRequest, "invalid or expired code"
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound, "user not found"
	case errors.Is(err, auth.ErrAlreadyRegistered):
		return http.StatusConflict, "a verified account with this email already exists"
	case errors.Is(err, auth.ErrDuplicateUser):
		return http.StatusConflict, "email or username already in use"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid email or password"
	case errors.Is(err, auth.ErrNotVerified):
		return http.StatusForbidden, "email address is not verified"
	case errors.Is(err, token.ErrTokenExpired):
		return http.StatusUnauthorized, "token expired"
	case errors.Is(err, token.ErrTokenInvalid):
		return http.StatusUnauthorized, "token invalid"
	case errors.Is(err, auth.ErrSendFailed):
		return http.StatusBadGateway, "failed to send code"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func badRequest(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body"})
}
