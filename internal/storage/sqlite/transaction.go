package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// sqliteTx implements storage.Transaction on top of a single *sql.Tx.
type sqliteTx struct {
	tx     *sql.Tx
	parent *SQLiteStorage
}

var _ storage.Transaction = (*sqliteTx)(nil)

// RunInTransaction runs fn inside one write transaction. fn's error (or a
// panic) rolls everything back.
func (s *SQLiteStorage) RunInTransaction(ctx context.Context, fn func(tx storage.Transaction) error) error {
	return s.runTx(ctx, func(tx *sqliteTx) error { return fn(tx) })
}

func (s *SQLiteStorage) runTx(ctx context.Context, fn func(tx *sqliteTx) error) error {
	if s.closed.Load() {
		return fmt.Errorf("storage is closed")
	}
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if r := recover(); r != nil {
			_ = sqlTx.Rollback()
			panic(r)
		}
	}()

	if err := fn(&sqliteTx{tx: sqlTx, parent: s}); err != nil {
		_ = sqlTx.Rollback()
		return err
	}
	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (t *sqliteTx) GetIssueDetails(ctx context.Context, id string) (*types.Issue, error) {
	return getIssueDetails(ctx, t.tx, id)
}

func (t *sqliteTx) InsertIssue(ctx context.Context, issue *types.Issue) error {
	if err := insertIssueRow(ctx, t.tx, issue); err != nil {
		return err
	}
	if err := registerID(ctx, t.tx, issue.ID, formatTime(issue.CreatedAt)); err != nil {
		return err
	}
	if err := replaceLabels(ctx, t.tx, issue.ID, types.NormalizeLabels(issue.Labels)); err != nil {
		return err
	}
	_, err := mergeComments(ctx, t.tx, issue.ID, issue.Comments)
	return err
}

func (t *sqliteTx) ReplaceIssue(ctx context.Context, issue *types.Issue) (int, error) {
	if err := updateIssueRow(ctx, t.tx, issue); err != nil {
		return 0, err
	}
	if err := registerID(ctx, t.tx, issue.ID, formatTime(issue.CreatedAt)); err != nil {
		return 0, err
	}
	if err := replaceLabels(ctx, t.tx, issue.ID, types.NormalizeLabels(issue.Labels)); err != nil {
		return 0, err
	}
	return mergeComments(ctx, t.tx, issue.ID, issue.Comments)
}

// mergeComments inserts comments whose id is not yet stored and returns
// how many were added. Comments without an id get a fresh one.
func mergeComments(ctx context.Context, q querier, issueID string, comments []*types.Comment) (int, error) {
	added := 0
	for _, c := range comments {
		stored := *c
		stored.IssueID = issueID
		if stored.ID == "" {
			stored.ID = uuid.NewString()
		}
		ok, err := insertComment(ctx, q, &stored)
		if err != nil {
			return added, err
		}
		if ok {
			added++
		}
	}
	return added, nil
}

func (t *sqliteTx) SetDependencies(ctx context.Context, issueID string, deps []*types.Dependency) ([]string, error) {
	if _, err := t.tx.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ?`, issueID); err != nil {
		return nil, fmt.Errorf("failed to clear dependencies of %s: %w", issueID, err)
	}
	var skipped []string
	for _, d := range deps {
		depType := d.Type
		if depType == "" {
			depType = types.DepBlocks
		}
		edge := issueID + " -> " + d.DependsOnID
		if d.DependsOnID == issueID || !depType.IsValid() {
			skipped = append(skipped, edge)
			continue
		}
		exists, err := issueExists(ctx, t.tx, d.DependsOnID)
		if err != nil {
			return nil, err
		}
		if !exists {
			skipped = append(skipped, edge)
			continue
		}
		createdAt := d.CreatedAt
		if createdAt.IsZero() {
			createdAt = t.parent.now()
		}
		_, err = t.tx.ExecContext(ctx, `
			INSERT INTO dependencies (issue_id, depends_on_id, type, created_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (issue_id, depends_on_id) DO UPDATE SET type = excluded.type
		`, issueID, d.DependsOnID, string(depType), formatTime(createdAt))
		if err != nil {
			return nil, fmt.Errorf("failed to add dependency %s: %w", edge, err)
		}
	}
	return skipped, nil
}

func (t *sqliteTx) MarkSynced(ctx context.Context, issueID string, at time.Time) error {
	result, err := t.tx.ExecContext(ctx, `UPDATE issues SET synced_at = ? WHERE id = ?`, formatTime(at), issueID)
	if err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", issueID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return types.NewNotFound("issue", issueID)
	}
	return nil
}

func (t *sqliteTx) MarkReconciled(ctx context.Context, issueID string, at time.Time) error {
	stamp := formatTime(at)
	result, err := t.tx.ExecContext(ctx, `UPDATE issues SET updated_at = ?, synced_at = ? WHERE id = ?`, stamp, stamp, issueID)
	if err != nil {
		return fmt.Errorf("failed to mark %s reconciled: %w", issueID, err)
	}
	if n, _ := result.RowsAffected(); n == 0 {
		return types.NewNotFound("issue", issueID)
	}
	return nil
}

func (t *sqliteTx) BumpUpdatedAt(ctx context.Context, issueID string, floor time.Time) error {
	current, err := getIssueRow(ctx, t.tx, issueID)
	if err != nil {
		return err
	}
	if current == nil {
		return types.NewNotFound("issue", issueID)
	}
	base := changeFloor(current)
	if floor.After(base) {
		base = floor
	}
	next := nextTimestamp(t.parent.now(), base)
	if _, err := t.tx.ExecContext(ctx, `UPDATE issues SET updated_at = ? WHERE id = ?`, formatTime(next), issueID); err != nil {
		return fmt.Errorf("failed to bump %s: %w", issueID, err)
	}
	return nil
}

func (t *sqliteTx) UpsertConflict(ctx context.Context, local, remote *types.Issue) (string, bool, error) {
	return upsertConflict(ctx, t.tx, local, remote, t.parent.now())
}

func (t *sqliteTx) GetOpenConflictForIssue(ctx context.Context, issueID string) (*types.Conflict, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE issue_id = ? AND status = 'open'`, issueID)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return c, err
}

func (t *sqliteTx) DeleteConflict(ctx context.Context, id string) error {
	return deleteConflict(ctx, t.tx, id)
}
