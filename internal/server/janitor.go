// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package server

import (
	"context"
	"log/slog"
	"time"
)

const janitorInterval = 10 * time.Minute

// runJanitor purges expired blacklist rows and sweeps the in-memory OTP
// store until ctx is cancelled.
func (a *app) runJanitor(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			a.sweep(ctx, now)
		}
	}
}

func (a *app) sweep(ctx context.Context, now time.Time) {
	purged, err := a.repo.DeleteExpiredRevokedTokens(ctx, now)
	if err != nil {
		slog.ErrorContext(ctx, "revoked_token_purge_failed", "error", err)
	} else if purged > 0 {
		slog.InfoContext(ctx, "revoked_tokens_purged", "count", purged)
	}

	if a.memoryOTP != nil {
		if swept := a.memoryOTP.Sweep(); swept > 0 {
			slog.DebugContext(ctx, "otp_codes_swept", "count", swept)
		}
	}
}
