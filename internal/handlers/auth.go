// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"errors"
	"net/http"

	"codeberg.org/oliverandrich/go-blog-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-blog-auth/internal/middleware"
	"codeberg.org/oliverandrich/go-blog-auth/internal/models"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/token"
	"github.com/labstack/echo/v4"
)

// AuthHandlers contains handlers for authentication.
type AuthHandlers struct {
	auth    *auth.Service
	cookies *session.Manager
}

// NewAuth creates a new AuthHandlers instance.
func NewAuth(svc *auth.Service, cookies *session.Manager) *AuthHandlers {
	return &AuthHandlers{auth: svc, cookies: cookies}
}

// RegisterRequest is the request body for registration.
type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
}

// VerifyOTPRequest is the request body for code redemption.
type VerifyOTPRequest struct {
	Email    string `json:"email"`
	Code     string `json:"code"`
	Password string `json:"password"`
}

// RequestOTPRequest is the request body for requesting a new code.
type RequestOTPRequest struct {
	Email   string `json:"email"`
	Purpose string `json:"purpose"`
}

// LoginRequest is the request body for login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// RefreshRequest carries a refresh token for clients without cookies.
type RefreshRequest struct {
	Refresh string `json:"refresh"`
}

// ProfileRequest is the request body for profile updates.
type ProfileRequest struct {
	Username string `json:"username"`
}

type userResponse struct {
	User    *models.User `json:"user"`
	Message string       `json:"message,omitempty"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type sendFailedResponse struct {
	User  *models.User `json:"user"`
	Error string       `json:"error"`
}

type tokenResponse struct {
	AccessToken  string       `json:"access_token"`
	RefreshToken string       `json:"refresh_token,omitempty"`
	User         *models.User `json:"user,omitempty"`
}

// Register creates or updates a pending account and sends a code.
func (h *AuthHandlers) Register(c echo.Context) error {
	var req RegisterRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	ctx := c.Request().Context()

	result, err := h.auth.Register(ctx, req.Email, req.Username)
	if errors.Is(err, auth.ErrSendFailed) && result != nil {
		return c.JSON(http.StatusBadGateway, sendFailedResponse{
			User:  result.User,
			Error: i18n.T(ctx, "msg_send_failed"),
		})
	}
	if err != nil {
		return writeAuthError(c, err)
	}

	if result.Created {
		return c.JSON(http.StatusCreated, userResponse{User: result.User, Message: i18n.T(ctx, "msg_registered")})
	}
	return c.JSON(http.StatusOK, userResponse{User: result.User, Message: i18n.T(ctx, "msg_registration_updated")})
}

// VerifyOTP redeems a registration code and sets the password.
func (h *AuthHandlers) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	ctx := c.Request().Context()

	user, err := h.auth.VerifyOTP(ctx, req.Email, req.Code, req.Password)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{User: user, Message: i18n.T(ctx, "msg_verified")})
}

// RequestOTP sends a fresh code for an existing account.
func (h *AuthHandlers) RequestOTP(c echo.Context) error {
	var req RequestOTPRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	ctx := c.Request().Context()

	if err := h.auth.RequestOTP(ctx, req.Email, req.Purpose); err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: i18n.T(ctx, "msg_otp_sent")})
}

// ForgotPassword sends a password reset code.
func (h *AuthHandlers) ForgotPassword(c echo.Context) error {
	var req RequestOTPRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	ctx := c.Request().Context()

	if err := h.auth.ForgotPassword(ctx, req.Email); err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: i18n.T(ctx, "msg_otp_sent")})
}

// ResetPassword redeems a reset code and replaces the password.
func (h *AuthHandlers) ResetPassword(c echo.Context) error {
	var req VerifyOTPRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	ctx := c.Request().Context()

	if err := h.auth.ResetPassword(ctx, req.Email, req.Code, req.Password); err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: i18n.T(ctx, "msg_password_reset")})
}

// Login authenticates with email and password and sets the token cookies.
func (h *AuthHandlers) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}

	user, pair, err := h.auth.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return writeAuthError(c, err)
	}
	if err := h.setTokenCookies(c, pair); err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		User:         user,
	})
}

// Refresh exchanges the refresh token for new tokens.
func (h *AuthHandlers) Refresh(c echo.Context) error {
	raw, err := h.refreshToken(c)
	if err != nil {
		return badRequest(c)
	}
	if raw == "" {
		return c.JSON(http.StatusUnauthorized, errorResponse{Error: "refresh token not provided"})
	}

	pair, err := h.auth.Refresh(c.Request().Context(), raw)
	if err != nil {
		return writeAuthError(c, err)
	}
	if err := h.setTokenCookies(c, pair); err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	})
}

// Logout revokes the refresh token and clears both cookies.
func (h *AuthHandlers) Logout(c echo.Context) error {
	raw, _ := h.refreshToken(c)
	ctx := c.Request().Context()

	h.auth.Logout(ctx, raw)
	for _, cookie := range h.cookies.Clear() {
		c.SetCookie(cookie)
	}
	return c.JSON(http.StatusOK, messageResponse{Message: i18n.T(ctx, "msg_logged_out")})
}

// Profile returns the authenticated user.
func (h *AuthHandlers) Profile(c echo.Context) error {
	current := middleware.CurrentUser(c)
	if current == nil {
		return writeAuthError(c, token.ErrTokenInvalid)
	}

	user, err := h.auth.Profile(c.Request().Context(), current.ID)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{User: user})
}

// UpdateProfile changes the username of the authenticated user.
func (h *AuthHandlers) UpdateProfile(c echo.Context) error {
	current := middleware.CurrentUser(c)
	if current == nil {
		return writeAuthError(c, token.ErrTokenInvalid)
	}

	var req ProfileRequest
	if err := c.Bind(&req); err != nil {
		return badRequest(c)
	}
	ctx := c.Request().Context()

	user, err := h.auth.UpdateProfile(ctx, current.ID, req.Username)
	if err != nil {
		return writeAuthError(c, err)
	}
	return c.JSON(http.StatusOK, userResponse{User: user, Message: i18n.T(ctx, "msg_profile_updated")})
}

// refreshToken reads the refresh token from its cookie, falling back to
// the request body.
func (h *AuthHandlers) refreshToken(c echo.Context) (string, error) {
	if raw := h.cookies.ReadRefresh(c.Request()); raw != "" {
		return raw, nil
	}
	var req RefreshRequest
	if err := c.Bind(&req); err != nil {
		return "", err
	}
	return req.Refresh, nil
}

func (h *AuthHandlers) setTokenCookies(c echo.Context, pair *token.Pair) error {
	cookies, err := h.cookies.Cookies(pair)
	if err != nil {
		return err
	}
	for _, cookie := range cookies {
		c.SetCookie(cookie)
	}
	return nil
}
