package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

const notesExprV4 = `coalesce(%[1]s.design_notes, '') || ' ' || coalesce(%[1]s.acceptance_criteria, '') || ' ' || coalesce(%[1]s.working_notes, '')`

// SyncColumns adds synced_at, spec_id, metadata and working_notes to issues
// and widens the fts notes column to cover working notes.
func SyncColumns(ctx context.Context, tx *sql.Tx) error {
	existing, err := tableColumns(ctx, tx, "issues")
	if err != nil {
		return err
	}

	for _, col := range []struct{ name, ddl string }{
		{"synced_at", "ALTER TABLE issues ADD COLUMN synced_at TEXT"},
		{"spec_id", "ALTER TABLE issues ADD COLUMN spec_id TEXT"},
		{"metadata", "ALTER TABLE issues ADD COLUMN metadata TEXT"},
		{"working_notes", "ALTER TABLE issues ADD COLUMN working_notes TEXT"},
	} {
		if existing[col.name] {
			continue
		}
		if _, err := tx.ExecContext(ctx, col.ddl); err != nil {
			return fmt.Errorf("failed to add %s column: %w", col.name, err)
		}
	}

	if _, err := tx.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_issues_synced_at ON issues(synced_at)`); err != nil {
		return fmt.Errorf("failed to create index on synced_at: %w", err)
	}

	if err := createFTSTriggers(ctx, tx, notesExprV4); err != nil {
		return err
	}
	return rebuildFTS(ctx, tx, notesExprV4)
}

// tableColumns returns the set of column names for table.
func tableColumns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return nil, fmt.Errorf("failed to check schema: %w", err)
	}
	// Close rows before executing any statements on the same connection.
	defer rows.Close()

	cols := make(map[string]bool)
	for rows.Next() {
		var cid int
		var name, typ string
		var notnull, pk int
		var dflt *string
		if err := rows.Scan(&cid, &name, &typ, &notnull, &dflt, &pk); err != nil {
			return nil, fmt.Errorf("failed to scan column info: %w", err)
		}
		cols[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error reading column info: %w", err)
	}
	return cols, nil
}
