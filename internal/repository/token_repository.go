package repository

import (
	"context"
	"database/sql"
	"time"
)

// TokenRepo stores refresh tokens by their SHA-256 hash; raw token values
// never touch the database.
type TokenRepo struct {
	db *sql.DB
}

// NewTokenRepo binds a TokenRepo to a database handle.
func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{db: db} }

// Store persists a refresh token hash for a user.
func (r *TokenRepo) Store(ctx context.Context, userID uint64, tokenHash string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?, ?, ?)`,
		userID, tokenHash, expiresAt.UTC())
	return err
}

// Validate returns the owning user ID if the hash names a live token:
// present, unrevoked and unexpired.  Returns sql.ErrNoRows otherwise so
// callers treat all three failures the same way.
func (r *TokenRepo) Validate(ctx context.Context, tokenHash string) (uint64, error) {
	var userID uint64
	var expiresAt time.Time
	var revokedAt sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, expires_at, revoked_at FROM refresh_tokens WHERE token_hash = ?`,
		tokenHash).Scan(&userID, &expiresAt, &revokedAt)
	if err != nil {
		return 0, err
	}
	if revokedAt.Valid || time.Now().After(expiresAt) {
		return 0, sql.ErrNoRows
	}
	return userID, nil
}

// Revoke marks one token revoked.  Revoking an unknown hash is not an error.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE token_hash = ? AND revoked_at IS NULL`,
		tokenHash)
	return err
}

// RevokeAllForUser invalidates every live token a user holds.
func (r *TokenRepo) RevokeAllForUser(ctx context.Context, userID uint64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET revoked_at = NOW() WHERE user_id = ? AND revoked_at IS NULL`,
		userID)
	return err
}
