// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver registered as "pgx"
	"github.com/vinovest/sqlx"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver
)

// Driver names as registered with database/sql.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Open creates a new database connection and applies pending migrations.
// postgres:// and postgresql:// DSNs use pgx, everything else is a SQLite path.
func Open(dsn string) (*sqlx.DB, error) {
	if dsn == "" {
		dsn = "./data/app.db"
	}

	if IsPostgresDSN(dsn) {
		return openPostgres(dsn)
	}
	return openSQLite(dsn)
}

// IsPostgresDSN reports whether the DSN points at a PostgreSQL server.
func IsPostgresDSN(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}

func openPostgres(dsn string) (*sqlx.DB, error) {
	conn, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, err
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := RunMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

func openSQLite(dsn string) (*sqlx.DB, error) {
	// Create directory for file-based databases
	if !strings.HasPrefix(dsn, ":memory:") && !strings.Contains(dsn, "mode=memory") {
		dir := filepath.Dir(dsn)
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, err
		}
	}

	dsn = addDefaultParams(dsn)

	conn, err := sqlx.Open(DriverSQLite, dsn)
	if err != nil {
		return nil, err
	}

	// In-memory databases live per connection, so keep exactly one.
	if strings.Contains(dsn, ":memory:") || strings.Contains(dsn, "mode=memory") {
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(10)
		conn.SetMaxIdleConns(5)
	}
	conn.SetConnMaxLifetime(time.Hour)

	if err := configureSQLite(context.Background(), conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	if err := RunMigrations(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return conn, nil
}

// addDefaultParams adds recommended SQLite parameters if not already present.
func addDefaultParams(dsn string) string {
	defaults := map[string]string{
		"_txlock":       "immediate",
		"_busy_timeout": "5000",
		"_foreign_keys": "on",
		"_time_format":  "sqlite",
	}

	for key, value := range defaults {
		if !strings.Contains(dsn, key) {
			separator := "?"
			if strings.Contains(dsn, "?") {
				separator = "&"
			}
			dsn += separator + key + "=" + value
		}
	}

	return dsn
}

// configureSQLite sets PRAGMAs for optimal performance.
func configureSQLite(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = 2000",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return err
		}
	}

	return nil
}
