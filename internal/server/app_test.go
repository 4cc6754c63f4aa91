// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/otp"
	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T, redisURL string) *config.Config {
	t.Helper()
	cfg := &config.Config{
		Server:   config.ServerConfig{Host: "localhost", Port: 8080, MaxBodySize: 1},
		Database: config.DatabaseConfig{DSN: ":memory:"},
		Redis:    config.RedisConfig{URL: redisURL},
		OTP:      config.OTPConfig{TTL: 10 * time.Minute, Store: config.BackendAuto},
		JWT: config.JWTConfig{
			Issuer:        "test",
			AccessTTL:     5 * time.Minute,
			RefreshTTL:    time.Hour,
			RotateRefresh: true,
			Blacklist:     config.BackendAuto,
		},
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *app {
	t.Helper()
	captureLogs(t)
	a, err := newApp(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func serveJSON(a *app, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func TestNewApp_MemoryBackends(t *testing.T) {
	a := newTestApp(t, testConfig(t, ""))

	assert.Nil(t, a.redis)
	require.NotNil(t, a.memoryOTP)

	rec := serveJSON(a, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serveJSON(a, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice1"}`)
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, a.memoryOTP.Len())
}

func TestNewApp_RedisBackends(t *testing.T) {
	mr := miniredis.RunT(t)
	a := newTestApp(t, testConfig(t, "redis://"+mr.Addr()+"/0"))

	require.NotNil(t, a.redis)
	assert.Nil(t, a.memoryOTP)

	rec := serveJSON(a, http.MethodPost, "/auth/register", `{"email":"alice@example.com","username":"alice1"}`)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, mr.Exists(otp.Key(otp.PurposeRegister, "alice@example.com")))

	var body map[string]string
	rec = serveJSON(a, http.MethodGet, "/health", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])

	mr.Close()
	rec = serveJSON(a, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewApp_RedisUnreachable(t *testing.T) {
	captureLogs(t)
	cfg := testConfig(t, "redis://127.0.0.1:1/0")

	_, err := newApp(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "redis")
}

func TestNewApp_RedisBackendWithoutClient(t *testing.T) {
	captureLogs(t)
	cfg := testConfig(t, "")
	cfg.OTP.Store = config.BackendRedis

	_, err := newApp(context.Background(), cfg)

	require.Error(t, err)
}

func TestNewApp_InvalidSMTP(t *testing.T) {
	captureLogs(t)
	cfg := testConfig(t, "")
	cfg.SMTP.Host = "smtp.example.com"

	_, err := newApp(context.Background(), cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "SMTP")
}

func TestRoutes_ProfileRequiresAuth(t *testing.T) {
	a := newTestApp(t, testConfig(t, ""))

	rec := serveJSON(a, http.MethodGet, "/auth/profile", "")

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSweep(t *testing.T) {
	a := newTestApp(t, testConfig(t, ""))
	ctx := context.Background()
	now := time.Now()

	_, err := a.repo.RevokeToken(ctx, "old", 1, now.Add(-time.Minute))
	require.NoError(t, err)
	_, err = a.repo.RevokeToken(ctx, "live", 1, now.Add(time.Hour))
	require.NoError(t, err)
	require.NoError(t, a.memoryOTP.Set(ctx, "otp:register:a@example.com", "digest", time.Nanosecond))
	time.Sleep(time.Millisecond)

	a.sweep(ctx, now)

	revoked, err := a.repo.IsTokenRevoked(ctx, "old")
	require.NoError(t, err)
	assert.False(t, revoked)
	revoked, err = a.repo.IsTokenRevoked(ctx, "live")
	require.NoError(t, err)
	assert.True(t, revoked)
	assert.Zero(t, a.memoryOTP.Len())
}

func TestRunJanitor_StopsOnCancel(t *testing.T) {
	a := newTestApp(t, testConfig(t, ""))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.runJanitor(ctx, time.Millisecond)
		close(done)
	}()

	time.Sleep(5 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("janitor did not stop")
	}
}
