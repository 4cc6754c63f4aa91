// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"codeberg.org/oliverandrich/go-blog-auth/internal/config"
	"golang.org/x/crypto/acme/autocert"
)

// TLSMode represents the resolved TLS mode.
type TLSMode string

const (
	TLSModeOff    TLSMode = "off"
	TLSModeACME   TLSMode = "acme"
	TLSModeManual TLSMode = "manual"
)

// TLSResult contains the resolved TLS configuration.
type TLSResult struct {
	TLSConfig   *tls.Config
	HTTPHandler http.Handler // HTTP to HTTPS redirect and ACME challenges
	Mode        TLSMode
}

// SetupTLS configures TLS based on the configuration.
func SetupTLS(cfg *config.Config) (*TLSResult, error) {
	switch mode := resolveTLSMode(cfg, isPortAvailable); mode {
	case TLSModeOff:
		slog.Info("TLS disabled")
		return &TLSResult{Mode: TLSModeOff}, nil

	case TLSModeACME:
		if err := validateACME(cfg, isPortAvailable); err != nil {
			return nil, err
		}
		slog.Info("TLS mode: acme", "host", cfg.Server.Host, "email", cfg.TLS.Email)
		return setupACME(cfg)

	case TLSModeManual:
		slog.Info("TLS mode: manual", "cert", cfg.TLS.CertFile, "key", cfg.TLS.KeyFile)
		return setupManual(cfg)

	default:
		return nil, fmt.Errorf("unknown TLS mode: %s", mode)
	}
}

// resolveTLSMode picks the TLS mode. Explicit modes win; auto uses manual
// certificates when given, ACME when the host qualifies and plain HTTP
// otherwise, which suits deployments behind a terminating proxy.
func resolveTLSMode(cfg *config.Config, portFree func(int) bool) TLSMode {
	switch strings.ToLower(cfg.TLS.Mode) {
	case "off":
		return TLSModeOff
	case "acme":
		return TLSModeACME
	case "manual":
		return TLSModeManual
	case "auto", "":
	default:
		slog.Warn("unknown TLS mode, using auto", "mode", cfg.TLS.Mode)
	}

	host := cfg.Server.Host
	switch {
	case config.IsLocalhost(host):
		return TLSModeOff
	case cfg.TLS.CertFile != "" && cfg.TLS.KeyFile != "":
		return TLSModeManual
	case net.ParseIP(host) == nil && cfg.TLS.Email != "" && portFree(80) && portFree(443):
		return TLSModeACME
	default:
		slog.Warn("no certificate source available, serving plain HTTP", "host", host)
		return TLSModeOff
	}
}

// validateACME checks requirements when ACME mode is explicitly selected.
func validateACME(cfg *config.Config, portFree func(int) bool) error {
	if cfg.Server.Port != 443 {
		slog.Warn("ACME mode uses port 443, configured port will be ignored",
			"configured_port", cfg.Server.Port,
		)
	}
	if cfg.TLS.Email == "" {
		return errors.New("ACME mode requires TLS_EMAIL to be set")
	}
	if net.ParseIP(cfg.Server.Host) != nil {
		return errors.New("ACME mode requires a domain name, not an IP address")
	}
	for _, port := range []int{80, 443} {
		if !portFree(port) {
			return fmt.Errorf("ACME mode requires port %d (port in use)", port)
		}
	}
	return nil
}

func isPortAvailable(port int) bool {
	lc := &net.ListenConfig{}
	ln, err := lc.Listen(context.Background(), "tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = ln.Close()
	return true
}

// setupACME configures Let's Encrypt with autocert.
func setupACME(cfg *config.Config) (*TLSResult, error) {
	certDir := filepath.Join(cfg.TLS.CertDir, "acme")
	if err := os.MkdirAll(certDir, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create ACME cert directory: %w", err)
	}

	manager := &autocert.Manager{
		Prompt:     autocert.AcceptTOS,
		Email:      cfg.TLS.Email,
		Cache:      autocert.DirCache(certDir),
		HostPolicy: autocert.HostWhitelist(cfg.Server.Host),
	}

	tlsConfig := manager.TLSConfig()
	tlsConfig.MinVersion = tls.VersionTLS12

	return &TLSResult{
		Mode:        TLSModeACME,
		TLSConfig:   tlsConfig,
		HTTPHandler: manager.HTTPHandler(nil),
	}, nil
}

// setupManual loads user-provided certificate files.
func setupManual(cfg *config.Config) (*TLSResult, error) {
	if cfg.TLS.CertFile == "" || cfg.TLS.KeyFile == "" {
		return nil, errors.New("manual TLS mode requires both cert-file and key-file")
	}

	cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	return &TLSResult{
		Mode: TLSModeManual,
		TLSConfig: &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}
