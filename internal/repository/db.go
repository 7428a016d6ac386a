package repository

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type Config struct {
	DSN             string // sqlite://<path> | sqlite://:memory: | postgres://...
	MaxConns        int32
	MaxConnLifetime time.Duration
	DialTimeout     time.Duration
}

// DB is the ledger connection. Postgres connections go through a pgx pool
// wrapped as *sql.DB so both dialects share one code path.
type DB struct {
	SQL     *sql.DB
	Dialect string
	pool    *pgxpool.Pool
}

// Open connects to the DSN's database and applies migrations.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 3 * time.Second
	}
	dialect, target, err := parseDSN(cfg.DSN)
	if err != nil {
		return nil, err
	}
	logger.Info("db.connect", "dialect", dialect)

	var db *DB
	switch dialect {
	case DialectSQLite:
		db, err = openSQLite(target)
	case DialectPostgres:
		db, err = openPostgres(ctx, cfg, target)
	}
	if err != nil {
		logger.Error("db.connect_failed", "dialect", dialect, "error", err)
		return nil, err
	}

	if err := db.migrate(ctx); err != nil {
		_ = db.Close()
		logger.Error("db.migrate_failed", "dialect", dialect, "error", err)
		return nil, err
	}
	logger.Info("db.connected", "dialect", dialect)
	return db, nil
}

func openSQLite(path string) (*DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: mkdir: %w", err)
		}
	}
	sqldb, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// single writer; also keeps :memory: on one connection
	sqldb.SetMaxOpenConns(1)
	return &DB{SQL: sqldb, Dialect: DialectSQLite}, nil
}

func openPostgres(ctx context.Context, cfg Config, dsn string) (*DB, error) {
	pc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MaxConnLifetime > 0 {
		pc.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pc.ConnConfig.RuntimeParams["application_name"] = "docextract"

	ctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	return &DB{SQL: stdlib.OpenDBFromPool(pool), Dialect: DialectPostgres, pool: pool}, nil
}

// Close closes the database connections gracefully
func (d *DB) Close() error {
	if d == nil {
		return nil
	}
	err := d.SQL.Close()
	if d.pool != nil {
		d.pool.Close()
	}
	return err
}

// HealthCheck pings the database to catch DSN issues early.
func (d *DB) HealthCheck(ctx context.Context, timeout time.Duration) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if d.pool != nil {
		return d.pool.Ping(ctx)
	}
	return d.SQL.PingContext(ctx)
}

// rebind rewrites ? placeholders to $N for postgres.
func (d *DB) rebind(q string) string {
	if d.Dialect != DialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func parseDSN(dsn string) (dialect, target string, err error) {
	switch {
	case strings.HasPrefix(dsn, "sqlite://"):
		target = strings.TrimPrefix(dsn, "sqlite://")
		if target == "" {
			return "", "", fmt.Errorf("sqlite dsn has no path")
		}
		return DialectSQLite, target, nil
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return DialectPostgres, dsn, nil
	default:
		return "", "", fmt.Errorf("unsupported dsn scheme (want sqlite:// or postgres://)")
	}
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		source_type TEXT NOT NULL,
		status      TEXT NOT NULL,
		page_count  INTEGER NOT NULL DEFAULT 0,
		started_at  TIMESTAMP NOT NULL,
		finished_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS page_outcomes (
		run_id         TEXT NOT NULL REFERENCES runs(id),
		page           INTEGER NOT NULL,
		status         TEXT NOT NULL,
		output_path    TEXT NOT NULL DEFAULT '',
		error          TEXT NOT NULL DEFAULT '',
		retryable      BOOLEAN NOT NULL DEFAULT FALSE,
		word_count     INTEGER NOT NULL DEFAULT 0,
		avg_confidence DOUBLE PRECISION NOT NULL DEFAULT 0,
		duration_ms    BIGINT NOT NULL DEFAULT 0,
		created_at     TIMESTAMP NOT NULL,
		PRIMARY KEY (run_id, page)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs (started_at)`,
}

func (d *DB) migrate(ctx context.Context) error {
	for i, m := range migrations {
		if _, err := d.SQL.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
