package sqlite

import (
	"strings"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage/sqlite/migrations"
)

// SchemaVersion is the schema level a freshly opened database ends up at.
const SchemaVersion = 4

// schemaMigrations returns the manager with every known migration.
func schemaMigrations() *MigrationManager {
	m := NewMigrationManager()
	m.Register(Migration{Version: 1, Description: "core tables", Up: migrations.CoreTables})
	m.Register(Migration{Version: 2, Description: "full-text index", Up: migrations.FTSIndex})
	m.Register(Migration{Version: 3, Description: "conflicts and id ledger", Up: migrations.ConflictsAndLedger})
	m.Register(Migration{Version: 4, Description: "sync columns", Up: migrations.SyncColumns})
	return m
}

// issueColumns is the column list every issue query selects, in scan order.
const issueColumns = `id, title, description, issue_type, status, priority, assignee,
	created_at, updated_at, closed_at, estimate_minutes, design_notes,
	acceptance_criteria, external_ref, synced_at, spec_id, metadata, working_notes`

// qualifiedIssueColumns prefixes issueColumns with a table alias for joins.
func qualifiedIssueColumns(alias string) string {
	cols := strings.Split(issueColumns, ",")
	for i, c := range cols {
		cols[i] = alias + "." + strings.TrimSpace(c)
	}
	return strings.Join(cols, ", ")
}
