package storage

import (
	"database/sql"
	"embed"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

func migrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{
		FileSystem: migrationFiles,
		Root:       "migrations",
	}
}

// MigrateUp applies every pending migration and returns how many ran.
func MigrateUp(db *sql.DB) (int, error) {
	n, err := migrate.Exec(db, "postgres", migrationSource(), migrate.Up)
	if err != nil {
		return n, fmt.Errorf("applying migrations: %w", err)
	}
	return n, nil
}

// MigrateDown rolls back up to steps migrations. steps <= 0 rolls back all of them.
func MigrateDown(db *sql.DB, steps int) (int, error) {
	n, err := migrate.ExecMax(db, "postgres", migrationSource(), migrate.Down, steps)
	if err != nil {
		return n, fmt.Errorf("rolling back migrations: %w", err)
	}
	return n, nil
}

// PendingMigrations lists the ids of migrations not yet applied.
func PendingMigrations(db *sql.DB) ([]string, error) {
	planned, _, err := migrate.PlanMigration(db, "postgres", migrationSource(), migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("planning migrations: %w", err)
	}
	ids := make([]string, 0, len(planned))
	for _, m := range planned {
		ids = append(ids, m.Id)
	}
	return ids, nil
}
