package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

const conflictTables = `
CREATE TABLE IF NOT EXISTS conflicts (
    id TEXT PRIMARY KEY,
    issue_id TEXT NOT NULL,
    local_snapshot TEXT NOT NULL,
    remote_snapshot TEXT NOT NULL,
    remote_hash TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'open',
    created_at TEXT NOT NULL,
    FOREIGN KEY (issue_id) REFERENCES issues(id) ON DELETE CASCADE
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_conflicts_open_issue ON conflicts(issue_id) WHERE status = 'open';

-- Every id ever assigned or imported. Rows survive hard deletes.
CREATE TABLE IF NOT EXISTS issued_ids (
    id TEXT PRIMARY KEY,
    issued_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS child_counters (
    parent_id TEXT PRIMARY KEY,
    last_child INTEGER NOT NULL DEFAULT 0
);
`

// ConflictsAndLedger adds the conflicts table, the issued id ledger and
// child counters, then seeds the ledger from existing issues.
func ConflictsAndLedger(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, conflictTables); err != nil {
		return fmt.Errorf("failed to create conflict tables: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO issued_ids (id, issued_at)
		SELECT id, created_at FROM issues`)
	if err != nil {
		return fmt.Errorf("failed to seed issued_ids: %w", err)
	}
	return nil
}
