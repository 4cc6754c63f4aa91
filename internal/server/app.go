// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"codeberg.org/oliverandrich/go-blog-auth/internal/cache"
	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	"codeberg.org/oliverandrich/go-blog-auth/internal/database"
	"codeberg.org/oliverandrich/go-blog-auth/internal/handlers"
	"codeberg.org/oliverandrich/go-blog-auth/internal/i18n"
	appmw "codeberg.org/oliverandrich/go-blog-auth/internal/middleware"
	"codeberg.org/oliverandrich/go-blog-auth/internal/repository"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/auth"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/email"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/otp"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/session"
	"codeberg.org/oliverandrich/go-blog-auth/internal/services/token"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	"github.com/vinovest/sqlx"
)

// app holds the wired components of a running server.
type app struct {
	cfg   *config.Config
	db    *sqlx.DB
	redis *redis.Client
	repo  *repository.Repository
	echo  *echo.Echo

	// memoryOTP is set when codes are kept in process memory.
	memoryOTP *otp.MemoryStore
}

// newApp opens storage and wires services, handlers and routes. cfg must
// have been validated.
func newApp(ctx context.Context, cfg *config.Config) (_ *app, err error) {
	a := &app{cfg: cfg}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if err = i18n.Init(); err != nil {
		return nil, fmt.Errorf("failed to init i18n: %w", err)
	}

	a.db, err = database.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.repo = repository.New(a.db)

	if cfg.Redis.URL != "" {
		a.redis, err = cache.Open(ctx, cfg.Redis.URL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis: %w", err)
		}
	}

	store, err := a.otpStore()
	if err != nil {
		return nil, err
	}
	blacklist, err := a.blacklist()
	if err != nil {
		return nil, err
	}
	sender, err := newSender(cfg)
	if err != nil {
		return nil, err
	}

	tokens := token.NewService(token.Config{
		Secret:        []byte(cfg.JWT.Secret),
		Issuer:        cfg.JWT.Issuer,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshTTL:    cfg.JWT.RefreshTTL,
		RotateRefresh: cfg.JWT.RotateRefresh,
	}, blacklist)

	cookies, err := session.NewManager(&cfg.Cookie, tokens.AccessTTL(), tokens.RefreshTTL())
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie manager: %w", err)
	}

	svc := auth.NewService(a.repo, otp.NewIssuer(store, cfg.OTP.TTL), tokens, sender)

	a.echo = echo.New()
	a.echo.HideBanner = true
	a.echo.HidePort = true
	setupMiddleware(a.echo, cfg)
	a.routes(handlers.NewAuth(svc, cookies), appmw.RequireAuth(tokens, cookies, a.repo))

	slog.Info("backends configured",
		"otp_store", cfg.OTP.Store,
		"blacklist", cfg.JWT.Blacklist,
		"smtp", cfg.SMTP.Host != "",
	)
	return a, nil
}

func (a *app) routes(h *handlers.AuthHandlers, requireAuth echo.MiddlewareFunc) {
	checks := map[string]handlers.Pinger{"database": a.db}
	if a.redis != nil {
		checks["redis"] = handlers.PingFunc(func(ctx context.Context) error {
			return a.redis.Ping(ctx).Err()
		})
	}
	a.echo.GET("/health", handlers.New(checks).Health)

	g := a.echo.Group("/auth")
	g.POST("/register", h.Register)
	g.POST("/otp/verify", h.VerifyOTP)
	g.POST("/otp/request", h.RequestOTP)
	g.POST("/forgot-password", h.ForgotPassword)
	g.POST("/forgot-password/reset", h.ResetPassword)
	g.POST("/login", h.Login)
	g.POST("/token/refresh", h.Refresh)
	g.POST("/logout", h.Logout)
	g.GET("/profile", h.Profile, requireAuth)
	g.PUT("/profile", h.UpdateProfile, requireAuth)
}

func (a *app) otpStore() (otp.Store, error) {
	switch a.cfg.OTP.Store {
	case config.BackendRedis:
		if a.redis == nil {
			return nil, errors.New("redis OTP store requires a redis connection")
		}
		return otp.NewRedisStore(a.redis), nil
	default:
		a.memoryOTP = otp.NewMemoryStore(time.Now)
		return a.memoryOTP, nil
	}
}

func (a *app) blacklist() (token.Blacklist, error) {
	switch a.cfg.JWT.Blacklist {
	case config.BackendRedis:
		if a.redis == nil {
			return nil, errors.New("redis blacklist requires a redis connection")
		}
		return token.NewRedisBlacklist(a.redis), nil
	default:
		return token.NewDatabaseBlacklist(a.repo), nil
	}
}

// newSender returns an SMTP sender, or a logging sender when no SMTP host
// is configured.
func newSender(cfg *config.Config) (auth.Sender, error) {
	if cfg.SMTP.Host == "" {
		slog.Warn("SMTP not configured, one-time codes are written to the log")
		return email.NewLogSender(slog.Default()), nil
	}
	svc, err := email.NewService(&cfg.SMTP)
	if err != nil {
		return nil, fmt.Errorf("failed to configure SMTP: %w", err)
	}
	return svc, nil
}

func (a *app) close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			slog.Error("failed to close redis", "error", err)
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}
}
