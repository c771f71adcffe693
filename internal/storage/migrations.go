package storage

import (
	"context"
	"fmt"
)

// migrate creates the stop registry schema if it doesn't exist.
func (db *DB) migrate(ctx context.Context) error {
	stmts := commonMigrations
	if db.dialect.name == "postgres" {
		// pg_trgm may need superuser rights; the store still works without the
		// extension except for the similarity fallback, which then reports errors.
		if _, err := db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS pg_trgm`); err != nil {
			db.logger.Warn("pg_trgm extension unavailable", "error", err)
		} else {
			stmts = append(stmts, postgresTrigramIndexes...)
		}
	}
	for i, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	db.logger.Info("database migrations applied")
	return nil
}

var commonMigrations = []string{
	// Stops
	`CREATE TABLE IF NOT EXISTS stops (
		stop_id   TEXT PRIMARY KEY,
		stop_code TEXT,
		stop_name TEXT NOT NULL DEFAULT '',
		stop_lat  DOUBLE PRECISION,
		stop_lon  DOUBLE PRECISION
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stops_code ON stops(stop_code)`,
	`CREATE INDEX IF NOT EXISTS idx_stops_name ON stops(stop_name)`,

	// Feed metadata (last_modified, etag, imported_at)
	`CREATE TABLE IF NOT EXISTS feed_metadata (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
}

var postgresTrigramIndexes = []string{
	`CREATE INDEX IF NOT EXISTS idx_stops_name_trgm ON stops USING gin (stop_name gin_trgm_ops)`,
	`CREATE INDEX IF NOT EXISTS idx_stops_id_trgm ON stops USING gin (stop_id gin_trgm_ops)`,
}
