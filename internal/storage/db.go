package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/mattn/go-sqlite3"
)

// sqliteDriver is go-sqlite3 with trgm_similarity and unicode_lower
// registered on every connection. SQLite's own LOWER folds ASCII only,
// which would miss fadas ("baile átha" vs "Baile Átha Cliath").
const sqliteDriver = "sqlite3_tfibus"

func init() {
	sql.Register(sqliteDriver, &sqlite3.SQLiteDriver{
		ConnectHook: func(conn *sqlite3.SQLiteConn) error {
			if err := conn.RegisterFunc("trgm_similarity", trigramSimilarity, true); err != nil {
				return err
			}
			return conn.RegisterFunc("unicode_lower", strings.ToLower, true)
		},
	})
}

// DB wraps a SQL connection with stop-registry operations.
// It speaks either SQLite or PostgreSQL; see dialect.
type DB struct {
	*sql.DB
	dialect dialect
	logger  *slog.Logger
}

// Open picks the backend from the DSN: postgres:// URLs go through pgx,
// anything else is treated as a SQLite file path.
func Open(dsn string, logger *slog.Logger) (*DB, error) {
	if IsPostgresDSN(dsn) {
		return OpenPostgres(dsn, logger)
	}
	return OpenSQLite(dsn, logger)
}

// IsPostgresDSN reports whether dsn names a PostgreSQL server.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

// OpenSQLite creates or opens a SQLite database at the given path and applies migrations.
// The path ":memory:" opens a private in-memory database.
func OpenSQLite(path string, logger *slog.Logger) (*DB, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	sqlDB, err := sql.Open(sqliteDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		sqlDB.SetMaxOpenConns(1)
	}
	return finishOpen(sqlDB, sqliteDialect, path, logger)
}

// OpenPostgres connects to PostgreSQL through the pgx stdlib driver.
func OpenPostgres(dsn string, logger *slog.Logger) (*DB, error) {
	sqlDB, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return finishOpen(sqlDB, postgresDialect, redactDSN(dsn), logger)
}

func finishOpen(sqlDB *sql.DB, d dialect, where string, logger *slog.Logger) (*DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	db := &DB{DB: sqlDB, dialect: d, logger: logger}
	if err := db.migrate(ctx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	logger.Info("database opened", "backend", d.name, "at", where)
	return db, nil
}

// Backend returns "sqlite" or "postgres".
func (db *DB) Backend() string { return db.dialect.name }

// Ping checks the connection with a short deadline.
func (db *DB) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return &QueryError{Op: "ping", Err: err}
	}
	return nil
}

// dialect holds the SQL fragments that differ between SQLite and PostgreSQL.
// Queries are written with '?' placeholders and rebound for PostgreSQL.
type dialect struct {
	name string
	// ilike renders a case-insensitive LIKE of column against a bound pattern.
	ilike func(col string) string
	// suffix renders "last N characters of col equal the bound value";
	// it binds the length first, then the value.
	suffix     string
	similarity string
	dollarArgs bool
}

var sqliteDialect = dialect{
	name:   "sqlite",
	ilike:  func(col string) string { return "unicode_lower(" + col + ") LIKE unicode_lower(?) ESCAPE '\\'" },
	suffix: "substr(stop_id, -?) = ?",
	similarity: `SELECT stop_id, stop_code, stop_name, stop_lat, stop_lon FROM (
		SELECT stop_id, stop_code, stop_name, stop_lat, stop_lon,
		       MAX(trgm_similarity(stop_id, ?1), trgm_similarity(stop_name, ?1)) AS score
		FROM stops
	) WHERE score >= ?2
	ORDER BY score DESC, stop_id
	LIMIT ?3`,
}

var postgresDialect = dialect{
	name:   "postgres",
	ilike:  func(col string) string { return col + " ILIKE ? ESCAPE '\\'" },
	suffix: "RIGHT(stop_id, ?) = ?",
	// '%' uses pg_trgm.similarity_threshold, 0.3 unless tuned; the bound
	// threshold keeps the argument list identical to SQLite's.
	similarity: `SELECT stop_id, stop_code, stop_name, stop_lat, stop_lon
	FROM stops
	WHERE (stop_id % $1 OR stop_name % $1)
	  AND GREATEST(similarity(stop_id, $1), similarity(stop_name, $1)) >= $2
	ORDER BY GREATEST(similarity(stop_id, $1), similarity(stop_name, $1)) DESC, stop_id
	LIMIT $3`,
	dollarArgs: true,
}

// rebind rewrites '?' placeholders to $1..$n for PostgreSQL.
func (d dialect) rebind(query string) string {
	if !d.dollarArgs {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

// redactDSN hides the password in a connection URL before logging it.
func redactDSN(dsn string) string {
	at := strings.LastIndex(dsn, "@")
	scheme := strings.Index(dsn, "://")
	if at < 0 || scheme < 0 {
		return dsn
	}
	creds := dsn[scheme+3 : at]
	if i := strings.Index(creds, ":"); i >= 0 {
		return dsn[:scheme+3] + creds[:i] + ":***" + dsn[at:]
	}
	return dsn
}
