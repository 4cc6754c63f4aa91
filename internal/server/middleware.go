// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"fmt"
	"log/slog"

	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	appmw "codeberg.org/oliverandrich/go-blog-auth/internal/middleware"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

func setupMiddleware(e *echo.Echo, cfg *config.Config) {
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(requestLogger())
	e.Use(middleware.Secure())
	if cfg.Server.MaxBodySize > 0 {
		e.Use(middleware.BodyLimit(fmt.Sprintf("%dM", cfg.Server.MaxBodySize)))
	}
	e.Use(appmw.Locale())
}

// requestLogger returns middleware that logs requests using slog.
func requestLogger() echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:    true,
		LogURI:       true,
		LogMethod:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []slog.Attr{
				slog.String("method", v.Method),
				slog.String("uri", v.URI),
				slog.Int("status", v.Status),
				slog.Duration("latency", v.Latency),
				slog.String("request_id", v.RequestID),
			}

			level := slog.LevelInfo
			switch {
			case v.Error != nil:
				attrs = append(attrs, slog.String("error", v.Error.Error()))
				level = slog.LevelError
			case v.Status >= 500:
				level = slog.LevelError
			}
			slog.LogAttrs(c.Request().Context(), level, "request", attrs...)

			return nil
		},
	})
}
