// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package server wires configuration, storage and handlers into a running
// HTTP server.
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	"github.com/labstack/echo/v4"
	"github.com/urfave/cli/v3"
)

// Run starts the server with the given CLI command.
func Run(ctx context.Context, cmd *cli.Command) error {
	cfg := config.NewFromCLI(cmd)
	setupLogger(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	slog.Info("starting server",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"base_url", cfg.Server.BaseURL,
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	go a.runJanitor(ctx, janitorInterval)

	return serve(ctx, a.echo, cfg)
}

// serve runs the listeners for the resolved TLS mode and shuts them down
// gracefully when ctx is cancelled.
func serve(ctx context.Context, e *echo.Echo, cfg *config.Config) error {
	tlsResult, err := SetupTLS(cfg)
	if err != nil {
		return fmt.Errorf("TLS setup failed: %w", err)
	}

	errChan := make(chan error, 2)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)

	// HTTP redirect server for ACME mode
	var httpServer *http.Server

	switch tlsResult.Mode {
	case TLSModeOff:
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeACME:
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(ctx, e, ":443", tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

		httpServer = &http.Server{
			Addr:              ":80",
			Handler:           tlsResult.HTTPHandler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("HTTP to HTTPS redirect active", "addr", ":80")
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()

	case TLSModeManual:
		go func() {
			slog.Info("server running", "url", cfg.Server.BaseURL)
			if err := startTLSServer(ctx, e, addr, tlsResult.TLSConfig); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		slog.Info("shutting down server")
	case err := <-errChan:
		slog.Error("server error", "error", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		slog.Error("failed to shutdown main server", "error", err)
	}
	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("failed to shutdown HTTP redirect server", "error", err)
		}
	}

	slog.Info("server stopped")
	return nil
}

// startTLSServer starts the Echo server with a custom TLS configuration.
func startTLSServer(ctx context.Context, e *echo.Echo, addr string, tlsConfig *tls.Config) error {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return err
	}
	e.TLSListener = tls.NewListener(ln, tlsConfig)
	e.TLSServer.TLSConfig = tlsConfig
	return e.TLSServer.Serve(e.TLSListener)
}
