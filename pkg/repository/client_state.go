package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"transfer_ledger_back/pkg/cache"
)

const clientStateSchema = `
CREATE TABLE IF NOT EXISTS client_state (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`

// ClientStatePostgres keeps the local client's key-value state in postgres.
type ClientStatePostgres struct {
	db *sqlx.DB
}

func NewClientStatePostgres(db *sqlx.DB) (*ClientStatePostgres, error) {
	if _, err := db.Exec(clientStateSchema); err != nil {
		return nil, errors.Wrap(err, "create client_state table")
	}
	return &ClientStatePostgres{db: db}, nil
}

func (r *ClientStatePostgres) ReadCount(ctx context.Context) (string, bool, error) {
	var value string
	query := `SELECT value FROM client_state WHERE key = $1`
	err := r.db.GetContext(ctx, &value, query, cache.CountKey)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func (r *ClientStatePostgres) WriteCount(ctx context.Context, value string) error {
	query := `
        INSERT INTO client_state (key, value, updated_at)
        VALUES ($1, $2, now())
        ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value, updated_at = now()
    `
	_, err := r.db.ExecContext(ctx, query, cache.CountKey, value)
	return err
}

func (r *ClientStatePostgres) Close() error {
	return r.db.Close()
}
