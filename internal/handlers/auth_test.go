// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	"codeberg.org/oliverandrich/go-blog-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-blog-auth/internal/i18n"
	"codeberg.org/oliverandrich/go-blog-auth/internal/middleware"
	"codeberg.org/oliverandrich/go-blog-auth/internal/repository"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/otp"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/token"
	"codeberg.org/oliverandrich/go-blog-auth/internal/testutil"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu    sync.Mutex
	count int
	err   error
}

func (s *recordingSender) Send(context.Context, string, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.count++
	return s.err
}

type testServer struct {
	e      *echo.Echo
	repo   *repository.Repository
	sender *recordingSender
}

// newTestServer wires the auth routes the same way the server does, with a
// fixed code generator.
func newTestServer(t *testing.T, code string) *testServer {
	t.Helper()
	require.NoError(t, i18n.Init())

	_, repo := testutil.NewTestDB(t)
	issuer := otp.NewIssuer(otp.NewMemoryStore(time.Now), 10*time.Minute,
		otp.WithGenerator(func() (string, error) { return code, nil }))
	tokens := token.NewService(token.Config{
		Secret:        []byte(strings.Repeat("k", 32)),
		AccessTTL:     5 * time.Minute,
		RefreshTTL:    time.Hour,
		RotateRefresh: true,
	}, token.NewDatabaseBlacklist(repo))
	cookies, err := session.NewManager(&config.CookieConfig{}, tokens.AccessTTL(), tokens.RefreshTTL())
	require.NoError(t, err)

	sender := &recordingSender{}
	h := handlers.NewAuth(auth.NewService(repo, issuer, tokens, sender), cookies)

	e := echo.New()
	g := e.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/otp/verify", h.VerifyOTP)
	g.POST("/otp/request", h.RequestOTP)
	g.POST("/forgot-password", h.ForgotPassword)
	g.POST("/forgot-password/reset", h.ResetPassword)
	g.POST("/login", h.Login)
	g.POST("/token/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	requireAuth := middleware.RequireAuth(tokens, cookies, repo)
	g.GET("/profile", h.Profile, requireAuth)
	g.PUT("/profile", h.UpdateProfile, requireAuth)

	return &testServer{e: e, repo: repo, sender: sender}
}

func (s *testServer) do(t *testing.T, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	t.Helper()
	req := testutil.NewRequest(method, path, strings.NewReader(body))
	for _, c := range cookies {
		req.AddCookie(c)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func cookieNamed(rec *httptest.ResponseRecorder, name string) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == name {
			return c
		}
	}
	return nil
}

func TestRegister_Created(t *testing.T) {
	s := newTestServer(t, "123456")

	rec := s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice1"}`)

	assert.Equal(t, http.StatusCreated, rec.Code)
	body := decode(t, rec)
	user := body["user"].(map[string]any)
	assert.Equal(t, "alice@example.com", user["email"])
	assert.Equal(t, false, user["is_verified"])
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotEmpty(t, body["message"])
	assert.Equal(t, 1, s.sender.count)
}

func TestRegister_UpdatesPendingUser(t *testing.T) {
	s := newTestServer(t, "123456")
	s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice1"}`)

	rec := s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice2"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	user := decode(t, rec)["user"].(map[string]any)
	assert.Equal(t, "alice2", user["username"])
}

func TestRegister_ValidationErrors(t *testing.T) {
	s := newTestServer(t, "123456")

	rec := s.do(t, http.MethodPost, "/auth/register", `{"email":"not-an-email","username":"ab"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	errs := decode(t, rec)["errors"].(map[string]any)
	assert.Contains(t, errs, "email")
	assert.Contains(t, errs, "username")
}

func TestRegister_MalformedBody(t *testing.T) {
	s := newTestServer(t, "123456")

	rec := s.do(t, http.MethodPost, "/auth/register", `{"email":`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid request body", decode(t, rec)["error"])
}

func TestRegister_VerifiedConflict(t *testing.T) {
	s := newTestServer(t, "123456")
	testutil.NewVerifiedUser(t, s.repo, "alice@example.com", "alice1", "Secret1x")

	rec := s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice2"}`)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegister_SendFailure(t *testing.T) {
	s := newTestServer(t, "123456")
	s.sender.err = errors.New("smtp down")

	rec := s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice1"}`)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.NotNil(t, body["user"])
	assert.NotEmpty(t, body["error"])

	_, err := s.repo.GetUserByEmail(context.Background(), "alice@example.com")
	assert.NoError(t, err, "user row stays committed")
}

func TestVerifyOTP_WrongCode(t *testing.T) {
	s := newTestServer(t, "123456")
	s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice1"}`)

	rec := s.do(t, http.MethodPost, "/auth/otp/verify", `{"email":"alice@example.com","code":"000000","password":"Secret1x"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decode(t, rec)["error"])
}

func TestVerifyOTP_UnknownUser(t *testing.T) {
	s := newTestServer(t, "123456")

	rec := s.do(t, http.MethodPost, "/auth/otp/verify", `{"email":"ghost@example.com","code":"123456","password":"Secret1x"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestVerifyOTP_WeakPassword(t *testing.T) {
	s := newTestServer(t, "123456")
	s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice1"}`)

	rec := s.do(t, http.MethodPost, "/auth/otp/verify", `{"email":"alice@example.com","code":"123456","password":"weak"}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decode(t, rec)["errors"], "password")
}

func TestFlow_RegisterVerifyLoginProfileLogout(t *testing.T) {
	s := newTestServer(t, "123456")

	rec := s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@x.com","username":"alice1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", `{"email":"alice@x.com","password":"Secret1x"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no password set yet")

	rec = s.do(t, http.MethodPost, "/auth/otp/verify", `{"email":"alice@x.com","code":"123456","password":"Secret1x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, decode(t, rec)["user"].(map[string]any)["is_verified"])

	rec = s.do(t, http.MethodPost, "/auth/login", `{"email":"alice@x.com","password":"Secret1x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	access := body["access_token"].(string)
	assert.NotEmpty(t, body["refresh_token"])

	accessCookie := cookieNamed(rec, session.AccessCookieName)
	refreshCookie := cookieNamed(rec, session.RefreshCookieName)
	require.NotNil(t, accessCookie)
	require.NotNil(t, refreshCookie)
	assert.True(t, refreshCookie.HttpOnly)
	assert.Equal(t, session.RefreshCookiePath, refreshCookie.Path)

	// Bearer header.
	req := testutil.NewRequest(http.MethodGet, "/auth/profile", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+access)
	profile := httptest.NewRecorder()
	s.e.ServeHTTP(profile, req)
	require.Equal(t, http.StatusOK, profile.Code)
	assert.Equal(t, "alice1", decode(t, profile)["user"].(map[string]any)["username"])

	// Cookie.
	rec = s.do(t, http.MethodPut, "/auth/profile", `{"username":"alice2"}`, accessCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice2", decode(t, rec)["user"].(map[string]any)["username"])

	rec = s.do(t, http.MethodPost, "/auth/logout", "", refreshCookie)
	require.Equal(t, http.StatusOK, rec.Code)
	cleared := cookieNamed(rec, session.RefreshCookieName)
	require.NotNil(t, cleared)
	assert.Negative(t, cleared.MaxAge)

	rec = s.do(t, http.MethodPost, "/auth/token/refresh", "", refreshCookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "revoked refresh token")
}

func TestRefresh_RotatesFromBody(t *testing.T) {
	s := newTestServer(t, "123456")
	testutil.NewVerifiedUser(t, s.repo, "bob@example.com", "bobby1", "Secret1x")

	rec := s.do(t, http.MethodPost, "/auth/login", `{"email":"bob@example.com","password":"Secret1x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	refresh := decode(t, rec)["refresh_token"].(string)

	rec = s.do(t, http.MethodPost, "/auth/token/refresh", `{"refresh":"`+refresh+`"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.NotEmpty(t, body["access_token"])
	assert.NotEmpty(t, body["refresh_token"])
	assert.NotNil(t, cookieNamed(rec, session.AccessCookieName))

	rec = s.do(t, http.MethodPost, "/auth/token/refresh", `{"refresh":"`+refresh+`"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "old refresh token is spent")
}

func TestRefresh_MissingToken(t *testing.T) {
	s := newTestServer(t, "123456")

	rec := s.do(t, http.MethodPost, "/auth/token/refresh", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogin_UnverifiedUser(t *testing.T) {
	s := newTestServer(t, "123456")
	s.do(t, http.MethodPost, "/auth/register", `{"email":"carol@example.com","username":"carol1"}`)
	s.do(t, http.MethodPost, "/auth/forgot-password", `{"email":"carol@example.com"}`)
	rec := s.do(t, http.MethodPost, "/auth/forgot-password/reset", `{"email":"carol@example.com","code":"123456","password":"Secret1x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/login", `{"email":"carol@example.com","password":"Secret1x"}`)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestRequestOTP(t *testing.T) {
	s := newTestServer(t, "123456")
	s.do(t, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice1"}`)

	rec := s.do(t, http.MethodPost, "/auth/otp/request", `{"email":"alice@example.com"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, s.sender.count)

	rec = s.do(t, http.MethodPost, "/auth/otp/request", `{"email":"ghost@example.com"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(t, http.MethodPost, "/auth/otp/request", `{"email":"alice@example.com","purpose":"Bad Purpose!"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfile_Unauthenticated(t *testing.T) {
	s := newTestServer(t, "123456")

	rec := s.do(t, http.MethodGet, "/auth/profile", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestProfile_DuplicateUsername(t *testing.T) {
	s := newTestServer(t, "123456")
	testutil.NewVerifiedUser(t, s.repo, "bob@example.com", "bobby1", "Secret1x")
	testutil.NewVerifiedUser(t, s.repo, "dave@example.com", "davey1", "Secret1x")

	rec := s.do(t, http.MethodPost, "/auth/login", `{"email":"bob@example.com","password":"Secret1x"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(t, http.MethodPut, "/auth/profile", `{"username":"davey1"}`, cookieNamed(rec, session.AccessCookieName))

	assert.Equal(t, http.StatusConflict, rec.Code)
}
