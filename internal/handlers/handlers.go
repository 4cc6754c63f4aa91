// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package handlers contains the HTTP handlers of the JSON API.
package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// PingContext implements Pinger.
func (f PingFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Handlers contains the operational handlers.
type Handlers struct {
	checks map[string]Pinger
}

// New creates a new Handlers instance. checks maps a component name to its
// health probe.
func New(checks map[string]Pinger) *Handlers {
	return &Handlers{checks: checks}
}

// Health returns the health status.
func (h *Handlers) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	for name, check := range h.checks {
		if err := check.PingContext(ctx); err != nil {
			slog.WarnContext(ctx, "health_check_failed", "component", name, "error", err)
			return c.JSON(http.StatusServiceUnavailable, map[string]string{
				"status":    "unavailable",
				"component": name,
			})
		}
	}
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}
