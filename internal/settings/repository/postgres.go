package repository

import (
	"context"
	"database/sql"
	"errors"
)

const (
	getSettingSQL = `SELECT value FROM settings WHERE key = $1`
	setSettingSQL = `INSERT INTO settings (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`
)

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a settings repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Get returns the value for key; a missing row and a NULL value both report ok false.
func (r *PostgresRepository) Get(ctx context.Context, key string) (string, bool, error) {
	var v sql.NullString
	err := r.db.QueryRowContext(ctx, getSettingSQL, key).Scan(&v)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, err
	}
	if !v.Valid {
		return "", false, nil
	}
	return v.String, true, nil
}

// Set upserts the row for key.
func (r *PostgresRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, setSettingSQL, key, value)
	return err
}
