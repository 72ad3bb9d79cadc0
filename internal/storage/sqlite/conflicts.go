package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

const conflictColumns = `id, issue_id, local_snapshot, remote_snapshot, status, created_at`

func scanConflict(row rowScanner) (*types.Conflict, error) {
	var (
		c                     types.Conflict
		localJSON, remoteJSON string
		createdAt             string
	)
	if err := row.Scan(&c.ID, &c.IssueID, &localJSON, &remoteJSON, &c.Status, &createdAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(localJSON), &c.Local); err != nil {
		return nil, fmt.Errorf("conflict %s: bad local snapshot: %w", c.ID, err)
	}
	if err := json.Unmarshal([]byte(remoteJSON), &c.Remote); err != nil {
		return nil, fmt.Errorf("conflict %s: bad remote snapshot: %w", c.ID, err)
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, err
	}
	c.CreatedAt = t
	return &c, nil
}

// upsertConflict keeps at most one open conflict per issue. An existing one
// is refreshed when the remote snapshot changed.
func upsertConflict(ctx context.Context, tx *sql.Tx, local, remote *types.Issue, now time.Time) (string, bool, error) {
	localJSON, err := json.Marshal(local)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode local snapshot: %w", err)
	}
	remoteJSON, err := json.Marshal(remote)
	if err != nil {
		return "", false, fmt.Errorf("failed to encode remote snapshot: %w", err)
	}
	remoteHash := remote.ContentHash()

	var existingID, existingHash string
	err = tx.QueryRowContext(ctx, `SELECT id, remote_hash FROM conflicts WHERE issue_id = ? AND status = 'open'`, local.ID).
		Scan(&existingID, &existingHash)
	switch {
	case err == sql.ErrNoRows:
		id := uuid.NewString()
		_, err := tx.ExecContext(ctx, `
			INSERT INTO conflicts (id, issue_id, local_snapshot, remote_snapshot, remote_hash, status, created_at)
			VALUES (?, ?, ?, ?, ?, 'open', ?)
		`, id, local.ID, string(localJSON), string(remoteJSON), remoteHash, formatTime(now))
		if err != nil {
			return "", false, fmt.Errorf("failed to record conflict for %s: %w", local.ID, err)
		}
		return id, true, nil
	case err != nil:
		return "", false, fmt.Errorf("failed to look up conflict for %s: %w", local.ID, err)
	}

	if existingHash == remoteHash {
		return existingID, false, nil
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE conflicts SET local_snapshot = ?, remote_snapshot = ?, remote_hash = ?
		WHERE id = ?
	`, string(localJSON), string(remoteJSON), remoteHash, existingID)
	if err != nil {
		return "", false, fmt.Errorf("failed to refresh conflict %s: %w", existingID, err)
	}
	return existingID, false, nil
}

func deleteConflict(ctx context.Context, q querier, id string) error {
	result, err := q.ExecContext(ctx, `DELETE FROM conflicts WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete conflict: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return types.NewNotFound("conflict", id)
	}
	return nil
}

// ListConflicts returns open conflicts, oldest first.
func (s *SQLiteStorage) ListConflicts(ctx context.Context) ([]*types.Conflict, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+conflictColumns+` FROM conflicts
		WHERE status = 'open'
		ORDER BY created_at ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	conflicts := []*types.Conflict{}
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// GetConflict returns one conflict by id.
func (s *SQLiteStorage) GetConflict(ctx context.Context, id string) (*types.Conflict, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)
	c, err := scanConflict(row)
	if err == sql.ErrNoRows {
		return nil, types.NewNotFound("conflict", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conflict %s: %w", id, err)
	}
	return c, nil
}

// ResolveConflict applies the chosen side and deletes the conflict.
//
// remote: the issue takes the remote snapshot (labels, comments and
// dependencies included) and is marked synced.
// local: content stays as is; updated_at moves past the remote snapshot and
// synced_at is set to the remote's updated_at, so the local copy is
// exported and wins the next cycle.
func (s *SQLiteStorage) ResolveConflict(ctx context.Context, id string, choice types.Resolution, actor string) (*types.Issue, error) {
	if !choice.IsValid() {
		return nil, types.NewValidationError("choice", fmt.Sprintf("invalid resolution %q (want local or remote)", choice))
	}

	var resolved *types.Issue
	err := s.runTx(ctx, func(tx *sqliteTx) error {
		row := tx.tx.QueryRowContext(ctx, `SELECT `+conflictColumns+` FROM conflicts WHERE id = ?`, id)
		conflict, err := scanConflict(row)
		if err == sql.ErrNoRows {
			return types.NewNotFound("conflict", id)
		}
		if err != nil {
			return fmt.Errorf("failed to get conflict %s: %w", id, err)
		}

		current, err := tx.GetIssueDetails(ctx, conflict.IssueID)
		if err != nil {
			return err
		}
		if current == nil {
			return types.NewNotFound("issue", conflict.IssueID)
		}

		switch choice {
		case types.ResolveRemote:
			next := conflict.Remote.Clone()
			next.ID = current.ID
			next.SetDefaults()
			stamp := nextTimestamp(s.now(), changeFloor(current))
			if next.UpdatedAt.After(stamp) {
				stamp = next.UpdatedAt
			}
			next.UpdatedAt = stamp
			next.SyncedAt = &stamp
			if _, err := tx.ReplaceIssue(ctx, next); err != nil {
				return err
			}
			if _, err := tx.SetDependencies(ctx, next.ID, next.Dependencies); err != nil {
				return err
			}
		case types.ResolveLocal:
			if err := tx.BumpUpdatedAt(ctx, current.ID, conflict.Remote.UpdatedAt); err != nil {
				return err
			}
			if err := tx.MarkSynced(ctx, current.ID, conflict.Remote.UpdatedAt); err != nil {
				return err
			}
		}

		if err := deleteConflict(ctx, tx.tx, id); err != nil {
			return err
		}
		resolved, err = tx.GetIssueDetails(ctx, current.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return resolved, nil
}

// DismissConflict deletes the conflict and leaves the issue untouched.
func (s *SQLiteStorage) DismissConflict(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return deleteConflict(ctx, tx, id)
	})
}
