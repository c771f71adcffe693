package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// SimilarityThreshold is the minimum trigram similarity for the fuzzy
// fallback, matching pg_trgm's default similarity_threshold.
const SimilarityThreshold = 0.3

// Stop is one row of the stop registry.
// StopCode is empty when the feed has none; coordinates are nil when absent.
type Stop struct {
	StopID   string   `json:"stop_id"`
	StopCode string   `json:"stop_code,omitempty"`
	StopName string   `json:"stop_name"`
	StopLat  *float64 `json:"stop_lat"`
	StopLon  *float64 `json:"stop_lon"`
}

// HasLocation reports whether both coordinates are present.
func (s Stop) HasLocation() bool { return s.StopLat != nil && s.StopLon != nil }

const stopColumns = `stop_id, stop_code, stop_name, stop_lat, stop_lon`

// StopByID returns the stop with exactly this stop_id.
func (db *DB) StopByID(ctx context.Context, stopID string) (Stop, bool, error) {
	row := db.QueryRowContext(ctx,
		db.dialect.rebind(`SELECT `+stopColumns+` FROM stops WHERE stop_id = ?`), stopID)
	s, err := scanStop(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Stop{}, false, nil
	}
	if err != nil {
		return Stop{}, false, &QueryError{Op: "stop_by_id", Err: err}
	}
	return s, true, nil
}

// StopsByIDContains matches stop_id case-insensitively anywhere in the id.
func (db *DB) StopsByIDContains(ctx context.Context, fragment string, limit int) ([]Stop, error) {
	q := `SELECT ` + stopColumns + ` FROM stops
		WHERE ` + db.dialect.ilike("stop_id") + `
		ORDER BY stop_id
		LIMIT ?`
	return db.queryStops(ctx, "stops_by_id_contains", q, containsPattern(fragment), limit)
}

// StopsByCode matches the short code printed on the stop pole.
func (db *DB) StopsByCode(ctx context.Context, code string, limit int) ([]Stop, error) {
	q := `SELECT ` + stopColumns + ` FROM stops
		WHERE stop_code = ?
		ORDER BY stop_id
		LIMIT ?`
	return db.queryStops(ctx, "stops_by_code", q, code, limit)
}

// StopsByIDSuffix matches stops whose id ends with exactly suffix.
// Ties are ordered by stop_id so repeated calls are stable.
func (db *DB) StopsByIDSuffix(ctx context.Context, suffix string, limit int) ([]Stop, error) {
	q := `SELECT ` + stopColumns + ` FROM stops
		WHERE ` + db.dialect.suffix + `
		ORDER BY stop_id
		LIMIT ?`
	return db.queryStops(ctx, "stops_by_id_suffix", q, len(suffix), suffix, limit)
}

// StopsByNameContains matches stop_name case-insensitively, ignoring
// apostrophes on both sides so "OConnell" finds "O'Connell Street".
func (db *DB) StopsByNameContains(ctx context.Context, fragment string, limit int) ([]Stop, error) {
	q := `SELECT ` + stopColumns + ` FROM stops
		WHERE ` + db.dialect.ilike(`REPLACE(REPLACE(stop_name, '''', ''), '’', '')`) + `
		ORDER BY stop_name, stop_id
		LIMIT ?`
	return db.queryStops(ctx, "stops_by_name_contains", q, containsPattern(StripApostrophes(fragment)), limit)
}

// StopsBySimilarity is the fuzzy last resort: trigram similarity against
// stop_id or stop_name, best match first.
func (db *DB) StopsBySimilarity(ctx context.Context, text string, limit int) ([]Stop, error) {
	return db.queryStops(ctx, "stops_by_similarity", db.dialect.similarity, text, SimilarityThreshold, limit)
}

// NearestStops orders located stops by squared degree distance from the point.
// It is a planar approximation; callers refine with Haversine.
func (db *DB) NearestStops(ctx context.Context, lat, lon float64, limit int) ([]Stop, error) {
	q := `SELECT ` + stopColumns + ` FROM stops
		WHERE stop_lat IS NOT NULL AND stop_lon IS NOT NULL
		ORDER BY (stop_lat - ?)*(stop_lat - ?) + (stop_lon - ?)*(stop_lon - ?), stop_id
		LIMIT ?`
	return db.queryStops(ctx, "nearest_stops", q, lat, lat, lon, lon, limit)
}

// CountStops returns the number of rows in the registry.
func (db *DB) CountStops(ctx context.Context) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stops`).Scan(&n); err != nil {
		return 0, &QueryError{Op: "count_stops", Err: err}
	}
	return n, nil
}

// HasData returns true if stops have been imported.
func (db *DB) HasData(ctx context.Context) bool {
	n, err := db.CountStops(ctx)
	return err == nil && n > 0
}

// ReplaceStops swaps the whole registry for stops and records meta in the
// same transaction, so readers never observe a half-imported table.
func (db *DB) ReplaceStops(ctx context.Context, stops []Stop, meta map[string]string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return &QueryError{Op: "begin_import", Err: err}
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM stops`); err != nil {
		return &QueryError{Op: "clear_stops", Err: err}
	}

	stmt, err := tx.PrepareContext(ctx, db.dialect.rebind(
		`INSERT INTO stops (`+stopColumns+`) VALUES (?, ?, ?, ?, ?)`))
	if err != nil {
		return &QueryError{Op: "prepare_stop", Err: err}
	}
	defer stmt.Close()

	for _, s := range stops {
		if _, err := stmt.ExecContext(ctx, s.StopID, nullString(s.StopCode), s.StopName, s.StopLat, s.StopLon); err != nil {
			return &QueryError{Op: "insert_stop", Err: fmt.Errorf("stop %s: %w", s.StopID, err)}
		}
	}

	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, db.dialect.rebind(upsertMetadata), k, v); err != nil {
			return &QueryError{Op: "set_metadata", Err: err}
		}
	}

	if err := tx.Commit(); err != nil {
		return &QueryError{Op: "commit_import", Err: err}
	}
	return nil
}

func (db *DB) queryStops(ctx context.Context, op, query string, args ...any) ([]Stop, error) {
	rows, err := db.QueryContext(ctx, db.dialect.rebind(query), args...)
	if err != nil {
		return nil, &QueryError{Op: op, Err: err}
	}
	defer rows.Close()

	var stops []Stop
	for rows.Next() {
		s, err := scanStop(rows)
		if err != nil {
			return nil, &QueryError{Op: op, Err: fmt.Errorf("scan stop: %w", err)}
		}
		stops = append(stops, s)
	}
	if err := rows.Err(); err != nil {
		return nil, &QueryError{Op: op, Err: err}
	}
	return stops, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStop(r scanner) (Stop, error) {
	var s Stop
	var code sql.NullString
	var lat, lon sql.NullFloat64
	if err := r.Scan(&s.StopID, &code, &s.StopName, &lat, &lon); err != nil {
		return Stop{}, err
	}
	s.StopCode = code.String
	if lat.Valid && lon.Valid {
		s.StopLat = &lat.Float64
		s.StopLon = &lon.Float64
	}
	return s, nil
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var apostrophes = strings.NewReplacer("'", "", "’", "")

// StripApostrophes removes straight and typographic apostrophes.
func StripApostrophes(s string) string { return apostrophes.Replace(s) }

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// containsPattern builds a LIKE pattern matching fragment anywhere,
// with LIKE metacharacters in fragment taken literally.
func containsPattern(fragment string) string {
	return "%" + likeEscaper.Replace(fragment) + "%"
}
