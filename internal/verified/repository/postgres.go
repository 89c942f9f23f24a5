package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const (
	isVerifiedSQL   = `SELECT 1 FROM verified_users WHERE user_id = $1 LIMIT 1`
	markVerifiedSQL = `INSERT INTO verified_users (user_id, verified_at) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`
	revokeSQL       = `DELETE FROM verified_users WHERE user_id = $1`
	countSQL        = `SELECT COUNT(*) FROM verified_users`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a verified-users repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// IsVerified reports whether a verified_users row exists for userID.
func (r *PostgresRepository) IsVerified(ctx context.Context, userID int64) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, isVerifiedSQL, userID).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// MarkVerified inserts the row; an existing row keeps its original verified_at.
func (r *PostgresRepository) MarkVerified(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, markVerifiedSQL, userID, time.Now().UTC())
	return err
}

// Revoke deletes the row for userID.
func (r *PostgresRepository) Revoke(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx, revokeSQL, userID)
	return err
}

// Count returns the number of rows in verified_users.
func (r *PostgresRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, countSQL).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}
