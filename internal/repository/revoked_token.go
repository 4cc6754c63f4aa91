// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package repository

import (
	"context"
	"time"
)

// RevokeToken records a refresh token id as unusable until expiresAt.
// It reports false when the id was already revoked.
func (r *Repository) RevokeToken(ctx context.Context, jti string, userID int64, expiresAt time.Time) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.q(
		`INSERT INTO revoked_tokens (jti, user_id, expires_at) VALUES (?, ?, ?) ON CONFLICT (jti) DO NOTHING`),
		jti, userID, expiresAt.Unix())
	if err != nil {
		return false, wrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// IsTokenRevoked reports whether a token id has been revoked.
func (r *Repository) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var count int64
	err := r.db.GetContext(ctx, &count, r.q(`SELECT count(*) FROM revoked_tokens WHERE jti = ?`), jti)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// DeleteExpiredRevokedTokens removes entries whose token has expired anyway.
func (r *Repository) DeleteExpiredRevokedTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, r.q(`DELETE FROM revoked_tokens WHERE expires_at < ?`), now.Unix())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
