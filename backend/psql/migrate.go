package psql

import (
	"database/sql"
	"embed"
	"fmt"

	migrate "github.com/rubenv/sql-migrate"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MigrationSource returns the schema migrations of the record store.
func MigrationSource() migrate.MigrationSource {
	return &migrate.EmbedFileSystemMigrationSource{FileSystem: migrations, Root: "migrations"}
}

// Migrate applies pending migrations in the given direction and returns the
// number applied. A positive max limits how many are applied.
func Migrate(db *sql.DB, dir migrate.MigrationDirection, max int) (int, error) {
	n, err := migrate.ExecMax(db, "postgres", MigrationSource(), dir, max)
	if err != nil {
		return n, fmt.Errorf("migrate: %w", err)
	}
	return n, nil
}

// Pending lists migrations not yet applied.
func Pending(db *sql.DB) ([]*migrate.PlannedMigration, error) {
	planned, _, err := migrate.PlanMigration(db, "postgres", MigrationSource(), migrate.Up, 0)
	if err != nil {
		return nil, fmt.Errorf("migrate: plan: %w", err)
	}
	return planned, nil
}
