package repository

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/joseph-ayodele/people-extractor/internal/common"
)

//go:embed schema/*.sql
var schemaFS embed.FS

type Config struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// DB is an open backend: the Ent SQL driver plus, for Postgres, the pgx pool
// behind it.
type DB struct {
	drv  *entsql.Driver
	pool *pgxpool.Pool
}

// Dialect is dialect.Postgres or dialect.SQLite.
func (d *DB) Dialect() string { return d.drv.Dialect() }

// SQL exposes the underlying database/sql handle.
func (d *DB) SQL() *sql.DB { return d.drv.DB() }

func (d *DB) builder() *entsql.DialectBuilder { return entsql.Dialect(d.drv.Dialect()) }

// Open creates a pgx pool and wraps it for Ent.
func Open(ctx context.Context, cfg Config, logger *slog.Logger) (*DB, error) {
	logger.Info("connecting to database", "driver", dialect.Postgres)
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		logger.Error("failed to parse database dsn", "error", err)
		return nil, err
	}

	pc.MaxConns = cfg.MaxConns
	pc.MinConns = cfg.MinConns
	pc.MaxConnLifetime = cfg.MaxConnLifetime
	pc.MaxConnIdleTime = cfg.MaxConnIdleTime
	pc.ConnConfig.RuntimeParams["application_name"] = "people-extractor"
	if cfg.StatementTimeout > 0 {
		pc.ConnConfig.RuntimeParams["statement_timeout"] = fmt.Sprint(cfg.StatementTimeout.Milliseconds())
	}

	if cfg.DialTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.DialTimeout)
		defer cancel()
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		return nil, err
	}

	db := stdlib.OpenDBFromPool(pool)
	logger.Info("successfully connected to database")
	return &DB{drv: entsql.OpenDB(dialect.Postgres, db), pool: pool}, nil
}

// OpenSQLite opens path (or ":memory:") with the modernc driver on a single
// connection, so an in-memory database is shared by every query.
func OpenSQLite(ctx context.Context, path string, logger *slog.Logger) (*DB, error) {
	logger.Info("opening sqlite database", "path", path)
	if path != ":memory:" && !strings.HasPrefix(path, "file:") {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("sqlite mkdir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.ExecContext(ctx, p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("sqlite %s: %w", p, err)
		}
	}
	return &DB{drv: entsql.OpenDB(dialect.SQLite, db)}, nil
}

// OpenFromConfig opens the backend named by cfg.Driver.
func OpenFromConfig(ctx context.Context, cfg common.DatabaseConfig, logger *slog.Logger) (*DB, error) {
	switch cfg.Driver {
	case "sqlite":
		path := cfg.DSN
		if path == "" {
			path = "./data/people.db"
		}
		return OpenSQLite(ctx, path, logger)
	case "postgres":
		return Open(ctx, Config{
			DSN:              cfg.DSN,
			MaxConns:         cfg.MaxConns,
			MinConns:         cfg.MinConns,
			MaxConnLifetime:  cfg.MaxConnLifetime,
			MaxConnIdleTime:  cfg.MaxConnIdleTime,
			DialTimeout:      cfg.DialTimeout,
			StatementTimeout: cfg.StatementTimeout,
		}, logger)
	default:
		return nil, common.NewAppError(common.CodeConfig, fmt.Sprintf("unsupported database driver %q", cfg.Driver), common.ErrInvalidInput)
	}
}

// Migrate applies the embedded schema for the backend's dialect. Every
// statement is idempotent.
func Migrate(ctx context.Context, db *DB, logger *slog.Logger) error {
	file := "schema/postgres.sql"
	if db.Dialect() == dialect.SQLite {
		file = "schema/sqlite.sql"
	}
	raw, err := schemaFS.ReadFile(file)
	if err != nil {
		return err
	}

	n := 0
	for _, stmt := range strings.Split(string(raw), ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := db.SQL().ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate %s: %w", file, err)
		}
		n++
	}
	logger.Info("schema applied", "dialect", db.Dialect(), "statements", n)
	return nil
}

// Close closes the database connections gracefully
func Close(db *DB, logger *slog.Logger) {
	if db == nil {
		return
	}
	logger.Info("closing database connections")
	if err := db.drv.Close(); err != nil {
		logger.Error("failed to close database", "error", err)
	}
	if db.pool != nil {
		db.pool.Close()
	}
	logger.Info("database connections closed")
}

// HealthCheck pings the backend to catch DSN issues early.
func HealthCheck(ctx context.Context, db *DB, timeout time.Duration, logger *slog.Logger) error {
	logger.Debug("pinging database", "dialect", db.Dialect())
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if db.pool != nil {
		if err := db.pool.Ping(ctx); err != nil {
			return err
		}
	}
	if err := db.SQL().PingContext(ctx); err != nil {
		return err
	}
	logger.Debug("database ping successful")
	return nil
}
