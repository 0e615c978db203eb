// Package platform holds thin, uninteresting adapters to infrastructure —
// Postgres connection pooling and schema-fixture application — kept
// separate from the migration engine itself so internal/migrate never
// imports a database driver directly.
package platform

import (
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// ApplySchema applies the migrations in migrationsDir to databaseURL. It
// exists for integration tests and the seed fixtures used during local
// development against the source and destination schemas; syn2mas itself
// never creates schema in a real migration run — both databases are
// expected to already be at the schema version the engine was built
// against.
func ApplySchema(databaseURL, migrationsDir string) error {
	m, err := migrate.New(
		fmt.Sprintf("file://%s", migrationsDir),
		databaseURL,
	)
	if err != nil {
		return fmt.Errorf("creating migrator: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying schema: %w", err)
	}

	return nil
}
