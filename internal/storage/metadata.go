package storage

import (
	"context"
	"database/sql"
	"errors"
)

// GetMetadata retrieves a value from the feed_metadata table.
// A missing key yields "" and no error.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, error) {
	var value string
	err := db.QueryRowContext(ctx,
		db.dialect.rebind(`SELECT value FROM feed_metadata WHERE key = ?`), key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", &QueryError{Op: "get_metadata", Err: err}
	}
	return value, nil
}

// SetMetadata stores a key-value pair in the feed_metadata table.
func (db *DB) SetMetadata(ctx context.Context, key, value string) error {
	if _, err := db.ExecContext(ctx, db.dialect.rebind(upsertMetadata), key, value); err != nil {
		return &QueryError{Op: "set_metadata", Err: err}
	}
	return nil
}

const upsertMetadata = `INSERT INTO feed_metadata (key, value) VALUES (?, ?)
	ON CONFLICT (key) DO UPDATE SET value = excluded.value`
