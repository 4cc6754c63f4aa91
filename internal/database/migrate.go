// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package database

import (
	"embed"

	"github.com/pressly/goose/v3"
	"github.com/vinovest/sqlx"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var embedMigrations embed.FS

// migrationSource returns the goose dialect and migration directory for a connection.
func migrationSource(db *sqlx.DB) (dialect, dir string) {
	if db.DriverName() == DriverPostgres {
		return "postgres", "migrations/postgres"
	}
	return "sqlite3", "migrations/sqlite"
}

func prepareGoose(db *sqlx.DB) (string, error) {
	dialect, dir := migrationSource(db)
	goose.SetBaseFS(embedMigrations)
	if err := goose.SetDialect(dialect); err != nil {
		return "", err
	}
	return dir, nil
}

// RunMigrations runs all pending goose migrations.
func RunMigrations(db *sqlx.DB) error {
	dir, err := prepareGoose(db)
	if err != nil {
		return err
	}
	return goose.Up(db.DB, dir)
}

// MigrateDown rolls back the last migration.
func MigrateDown(db *sqlx.DB) error {
	dir, err := prepareGoose(db)
	if err != nil {
		return err
	}
	return goose.Down(db.DB, dir)
}
