// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver for database/sql
	"github.com/pressly/goose/v3"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

//go:embed migrations
var migrations embed.FS

// DBConfig holds database/sql connection pool options.
type DBConfig struct {
	// MaxOpenConns is the maximum number of open connections to the database.
	MaxOpenConns int
	// MaxIdleConns is the maximum number of connections in the idle connection pool.
	MaxIdleConns int
	// ConnMaxLifetime is the maximum amount of time a connection may be reused.
	ConnMaxLifetime time.Duration
	// ConnMaxIdleTime is the maximum amount of time a connection may be idle.
	ConnMaxIdleTime time.Duration
}

// DefaultDBConfig returns sensible pool defaults.
func DefaultDBConfig() DBConfig {
	return DBConfig{
		MaxOpenConns:    25,
		MaxIdleConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

func applyPool(db *sql.DB, cfg DBConfig) {
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
}

// sqlitePragmas are applied by the driver to every new pool connection.
var sqlitePragmas = []string{
	"journal_mode(WAL)",   // Write-Ahead Logging for better concurrency
	"busy_timeout(5000)",  // Wait 5s when database is locked
	"synchronous(NORMAL)", // Good balance of safety and speed
	"cache_size(-64000)",  // 64MB cache
	"foreign_keys(1)",
	"temp_store(MEMORY)",
}

// sqliteDSN appends the per-connection pragmas to path.
func sqliteDSN(path string) string {
	params := make([]string, len(sqlitePragmas))
	for i, p := range sqlitePragmas {
		params[i] = "_pragma=" + p
	}
	return path + "?" + strings.Join(params, "&")
}

// openSQLite opens a SQLite database file and configures it for concurrent use.
func openSQLite(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store: sqlite requires a database path")
	}
	if strings.Contains(cfg.Path, "?") {
		return nil, fmt.Errorf("store: sqlite path must not contain '?'")
	}
	db, err := sql.Open("sqlite", sqliteDSN(cfg.Path))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	applyPool(db, cfg.Pool)

	return finishSQL(ctx, db, sqliteDialect, cfg)
}

// openPostgres opens a PostgreSQL pool through the pgx stdlib driver.
func openPostgres(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: postgres requires a DSN")
	}
	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	applyPool(db, cfg.Pool)
	return finishSQL(ctx, db, postgresDialect, cfg)
}

// openMySQL opens a MySQL pool. Times are parsed into time.Time and UPDATE
// reports matched rather than changed rows, so an unchanged record still
// counts as found.
func openMySQL(ctx context.Context, cfg Config) (Backend, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store: mysql requires a DSN")
	}
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing mysql dsn: %w", err)
	}
	mc.ParseTime = true
	mc.ClientFoundRows = true
	mc.Loc = time.UTC

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db := sql.OpenDB(connector)
	applyPool(db, cfg.Pool)
	return finishSQL(ctx, db, mysqlDialect, cfg)
}

// finishSQL verifies the connection, runs pending migrations and builds the backend.
func finishSQL(ctx context.Context, db *sql.DB, d dialect, cfg Config) (Backend, error) {
	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, wrapErr("ping", ErrUnavailable, err)
	}

	if err := migrate(ctx, db, d); err != nil {
		_ = db.Close()
		return nil, err
	}

	return newSQLBackend(db, d), nil
}

// migrate runs all pending migrations of the dialect.
func migrate(ctx context.Context, db *sql.DB, d dialect) error {
	fsys, err := fs.Sub(migrations, "migrations/"+d.name)
	if err != nil {
		return fmt.Errorf("loading migrations: %w", err)
	}

	provider, err := goose.NewProvider(d.goose, db, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}

	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	return nil
}
