package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

func labelsFor(ctx context.Context, q querier, issueID string) ([]string, error) {
	rows, err := q.QueryContext(ctx, `SELECT label FROM labels WHERE issue_id = ? ORDER BY label`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get labels: %w", err)
	}
	defer rows.Close()

	var labels []string
	for rows.Next() {
		var label string
		if err := rows.Scan(&label); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// attachLabels fills Labels on every issue with a single query.
func attachLabels(ctx context.Context, q querier, issues []*types.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	byID := make(map[string]*types.Issue, len(issues))
	placeholders := make([]string, 0, len(issues))
	args := make([]interface{}, 0, len(issues))
	for _, issue := range issues {
		byID[issue.ID] = issue
		placeholders = append(placeholders, "?")
		args = append(args, issue.ID)
	}

	rows, err := q.QueryContext(ctx, `
		SELECT issue_id, label FROM labels
		WHERE issue_id IN (`+strings.Join(placeholders, ", ")+`)
		ORDER BY issue_id, label
	`, args...)
	if err != nil {
		return fmt.Errorf("failed to get labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var issueID, label string
		if err := rows.Scan(&issueID, &label); err != nil {
			return err
		}
		if issue := byID[issueID]; issue != nil {
			issue.Labels = append(issue.Labels, label)
		}
	}
	return rows.Err()
}

// replaceLabels makes labels the exact label set of issueID.
func replaceLabels(ctx context.Context, q querier, issueID string, labels []string) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM labels WHERE issue_id = ?`, issueID); err != nil {
		return fmt.Errorf("failed to clear labels: %w", err)
	}
	for _, label := range labels {
		if _, err := q.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`, issueID, label); err != nil {
			return fmt.Errorf("failed to add label %q: %w", label, err)
		}
	}
	return nil
}

// AddLabel adds a label to an issue. Labels compare case-insensitively and
// adding one the issue already carries is a ValidationError.
func (s *SQLiteStorage) AddLabel(ctx context.Context, issueID, label, actor string) error {
	label = types.NormalizeLabel(label)
	if label == "" {
		return types.NewValidationError("label", "label cannot be empty")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := issueExists(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if !exists {
			return types.NewNotFound("issue", issueID)
		}
		result, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO labels (issue_id, label) VALUES (?, ?)`, issueID, label)
		if err != nil {
			return fmt.Errorf("failed to add label: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return types.NewValidationError("label", fmt.Sprintf("issue %s already has label %q", issueID, label))
		}
		return touchIssue(ctx, tx, issueID, s.now())
	})
}

// RemoveLabel removes a label from an issue.
func (s *SQLiteStorage) RemoveLabel(ctx context.Context, issueID, label, actor string) error {
	label = types.NormalizeLabel(label)
	return s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := issueExists(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if !exists {
			return types.NewNotFound("issue", issueID)
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM labels WHERE issue_id = ? AND label = ?`, issueID, label)
		if err != nil {
			return fmt.Errorf("failed to remove label: %w", err)
		}
		if n, _ := result.RowsAffected(); n == 0 {
			return types.NewNotFound("label", issueID+":"+label)
		}
		return touchIssue(ctx, tx, issueID, s.now())
	})
}

// GetLabels returns the sorted labels of an issue.
func (s *SQLiteStorage) GetLabels(ctx context.Context, issueID string) ([]string, error) {
	return labelsFor(ctx, s.db, issueID)
}
