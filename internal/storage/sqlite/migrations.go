package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// Migration is a single schema step. Up runs inside the transaction that
// also records the version, so a failed step leaves no trace.
type Migration struct {
	Version     int
	Description string
	Up          func(ctx context.Context, tx *sql.Tx) error
}

// MigrationManager applies registered migrations in version order.
type MigrationManager struct {
	migrations []Migration
}

// NewMigrationManager creates an empty manager.
func NewMigrationManager() *MigrationManager {
	return &MigrationManager{}
}

// Register adds a migration to the manager
func (m *MigrationManager) Register(migration Migration) {
	m.migrations = append(m.migrations, migration)
	sort.Slice(m.migrations, func(i, j int) bool {
		return m.migrations[i].Version < m.migrations[j].Version
	})
}

// Latest returns the highest registered version.
func (m *MigrationManager) Latest() int {
	if len(m.migrations) == 0 {
		return 0
	}
	return m.migrations[len(m.migrations)-1].Version
}

// Apply runs every pending migration. Re-running on a current database is
// a no-op. A failing step is returned as *types.SchemaError.
func (m *MigrationManager) Apply(ctx context.Context, db *sql.DB) error {
	if err := createVersionTable(ctx, db); err != nil {
		return &types.SchemaError{Version: 0, Err: fmt.Errorf("failed to create version table: %w", err)}
	}

	current, err := CurrentSchemaVersion(ctx, db)
	if err != nil {
		return &types.SchemaError{Version: 0, Err: fmt.Errorf("failed to get current version: %w", err)}
	}

	for _, migration := range m.migrations {
		if migration.Version <= current {
			continue
		}
		if err := applyMigration(ctx, db, migration); err != nil {
			return &types.SchemaError{Version: migration.Version, Err: err}
		}
		debug.Logf("applied schema migration v%d (%s)\n", migration.Version, migration.Description)
	}
	return nil
}

func createVersionTable(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			description TEXT NOT NULL,
			applied_at TEXT NOT NULL
		)
	`)
	return err
}

// CurrentSchemaVersion returns the highest applied migration, 0 for an
// empty database.
func CurrentSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version int
	err := db.QueryRowContext(ctx, "SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version)
	if err != nil {
		return 0, err
	}
	return version, nil
}

func applyMigration(ctx context.Context, db *sql.DB, migration Migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := migration.Up(ctx, tx); err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_version (version, description, applied_at) VALUES (?, ?, ?)",
		migration.Version, migration.Description, formatTime(nowUTC()),
	); err != nil {
		return fmt.Errorf("failed to record migration: %w", err)
	}

	return tx.Commit()
}
