package migrations

import (
	"context"
	"database/sql"
	"fmt"
)

const ftsTable = `
CREATE VIRTUAL TABLE IF NOT EXISTS issues_fts USING fts5(
    id UNINDEXED,
    title,
    description,
    notes,
    tokenize = 'porter unicode61 remove_diacritics 2'
);
`

// notes column before working_notes existed
const notesExprV2 = `coalesce(%[1]s.design_notes, '') || ' ' || coalesce(%[1]s.acceptance_criteria, '')`

// FTSIndex creates the issues_fts mirror, its triggers and backfills it.
func FTSIndex(ctx context.Context, tx *sql.Tx) error {
	if _, err := tx.ExecContext(ctx, ftsTable); err != nil {
		return fmt.Errorf("failed to create issues_fts: %w", err)
	}
	if err := createFTSTriggers(ctx, tx, notesExprV2); err != nil {
		return err
	}
	return rebuildFTS(ctx, tx, notesExprV2)
}

// createFTSTriggers (re)creates the triggers that keep issues_fts in step
// with issues inside the writing transaction.
func createFTSTriggers(ctx context.Context, tx *sql.Tx, notesExpr string) error {
	newNotes := fmt.Sprintf(notesExpr, "new")
	stmts := []string{
		`DROP TRIGGER IF EXISTS issues_fts_insert`,
		`DROP TRIGGER IF EXISTS issues_fts_update`,
		`DROP TRIGGER IF EXISTS issues_fts_delete`,
		`CREATE TRIGGER issues_fts_insert AFTER INSERT ON issues BEGIN
			INSERT INTO issues_fts(id, title, description, notes)
			VALUES (new.id, new.title, new.description, ` + newNotes + `);
		END`,
		`CREATE TRIGGER issues_fts_update AFTER UPDATE ON issues BEGIN
			DELETE FROM issues_fts WHERE id = old.id;
			INSERT INTO issues_fts(id, title, description, notes)
			VALUES (new.id, new.title, new.description, ` + newNotes + `);
		END`,
		`CREATE TRIGGER issues_fts_delete AFTER DELETE ON issues BEGIN
			DELETE FROM issues_fts WHERE id = old.id;
		END`,
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create fts trigger: %w", err)
		}
	}
	return nil
}

func rebuildFTS(ctx context.Context, tx *sql.Tx, notesExpr string) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM issues_fts`); err != nil {
		return fmt.Errorf("failed to clear issues_fts: %w", err)
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO issues_fts(id, title, description, notes)
		SELECT id, title, description, `+fmt.Sprintf(notesExpr, "issues")+` FROM issues`)
	if err != nil {
		return fmt.Errorf("failed to backfill issues_fts: %w", err)
	}
	return nil
}
