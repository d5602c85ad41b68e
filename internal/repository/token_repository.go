package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/shift-signup/internal/model"
)

// liveTokenOwner selects the admin behind a refresh token that is neither
// revoked nor expired.  The join drops tokens of deleted admins.
const liveTokenOwner = `SELECT u.id,u.username,u.password_hash,u.role,u.created_at,u.updated_at
FROM refresh_tokens t JOIN admin_users u ON u.id=t.user_id
WHERE t.token_hash=? AND t.revoked_at IS NULL AND t.expires_at>? LIMIT 1`

// TokenRepo keeps admin refresh sessions.  Only the SHA-256 hash of a token
// is stored, and revocation stamps revoked_at instead of deleting the row.
type TokenRepo struct {
	DB  *sql.DB
	now func() time.Time
}

func NewTokenRepo(db *sql.DB) *TokenRepo { return &TokenRepo{DB: db, now: time.Now} }

// Store opens a session for the admin.
func (r *TokenRepo) Store(ctx context.Context, adminID uint64, tokenHash string, exp time.Time) error {
	_, err := r.DB.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		adminID, tokenHash, exp.UTC())
	return err
}

// Rotate exchanges a live token for a new one and returns its admin.  The
// old row is locked, revoked and replaced in one transaction, so a token
// presented twice concurrently is honoured once.  ErrRefreshInvalid is
// returned for unknown, revoked or expired tokens.
func (r *TokenRepo) Rotate(ctx context.Context, oldHash, newHash string, exp time.Time) (model.AdminUser, error) {
	now := r.now().UTC()
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return model.AdminUser{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var u model.AdminUser
	err = tx.QueryRowContext(ctx, liveTokenOwner+" FOR UPDATE", oldHash, now).
		Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.CreatedAt, &u.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AdminUser{}, ErrRefreshInvalid
	}
	if err != nil {
		return model.AdminUser{}, err
	}
	if _, err := tx.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL",
		now, oldHash); err != nil {
		return model.AdminUser{}, fmt.Errorf("revoke rotated token: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO refresh_tokens (user_id, token_hash, expires_at) VALUES (?,?,?)",
		u.ID, newHash, exp.UTC()); err != nil {
		return model.AdminUser{}, fmt.Errorf("store rotated token: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return model.AdminUser{}, err
	}
	return u, nil
}

// Revoke ends a single live session.  ErrRefreshInvalid is returned when
// the token was unknown, already revoked or expired.
func (r *TokenRepo) Revoke(ctx context.Context, tokenHash string) error {
	now := r.now().UTC()
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE token_hash=? AND revoked_at IS NULL AND expires_at>?",
		now, tokenHash, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRefreshInvalid
	}
	return nil
}

// RevokeAll ends every open session of an admin and reports how many were
// open.  Used for logout everywhere and after a password change.
func (r *TokenRepo) RevokeAll(ctx context.Context, adminID uint64) (int64, error) {
	res, err := r.DB.ExecContext(ctx,
		"UPDATE refresh_tokens SET revoked_at=? WHERE user_id=? AND revoked_at IS NULL",
		r.now().UTC(), adminID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
