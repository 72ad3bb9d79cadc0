package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

func scanComments(rows *sql.Rows) ([]*types.Comment, error) {
	defer rows.Close()
	var comments []*types.Comment
	for rows.Next() {
		var c types.Comment
		var createdAt string
		if err := rows.Scan(&c.ID, &c.IssueID, &c.Author, &c.Content, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		c.CreatedAt = t
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

func commentsFor(ctx context.Context, q querier, issueID string) ([]*types.Comment, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT id, issue_id, author, content, created_at
		FROM comments
		WHERE issue_id = ?
		ORDER BY created_at ASC, id ASC
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get comments: %w", err)
	}
	return scanComments(rows)
}

// insertComment stores c as-is, ignoring a comment whose id already exists.
// It reports whether a row was written.
func insertComment(ctx context.Context, q querier, c *types.Comment) (bool, error) {
	result, err := q.ExecContext(ctx, `
		INSERT OR IGNORE INTO comments (id, issue_id, author, content, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ID, c.IssueID, c.Author, c.Content, formatTime(c.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("failed to insert comment: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func addComment(ctx context.Context, q querier, issueID, author, content string, at time.Time) (*types.Comment, error) {
	c := &types.Comment{
		ID:        uuid.NewString(),
		IssueID:   issueID,
		Author:    author,
		Content:   content,
		CreatedAt: at,
	}
	if _, err := insertComment(ctx, q, c); err != nil {
		return nil, err
	}
	return c, nil
}

// AddComment appends a comment to an issue and bumps the issue's updated_at.
func (s *SQLiteStorage) AddComment(ctx context.Context, issueID, author, content string) (*types.Comment, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.NewValidationError("content", "comment text is required")
	}
	var comment *types.Comment
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		exists, err := issueExists(ctx, tx, issueID)
		if err != nil {
			return err
		}
		if !exists {
			return types.NewNotFound("issue", issueID)
		}
		now := s.now()
		if comment, err = addComment(ctx, tx, issueID, author, content, now); err != nil {
			return err
		}
		return touchIssue(ctx, tx, issueID, now)
	})
	if err != nil {
		return nil, err
	}
	return comment, nil
}

// GetComments retrieves all comments for an issue, oldest first.
func (s *SQLiteStorage) GetComments(ctx context.Context, issueID string) ([]*types.Comment, error) {
	exists, err := issueExists(ctx, s.db, issueID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, types.NewNotFound("issue", issueID)
	}
	return commentsFor(ctx, s.db, issueID)
}

// DeleteComment removes a comment and bumps its issue's updated_at.
func (s *SQLiteStorage) DeleteComment(ctx context.Context, commentID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		var issueID string
		err := tx.QueryRowContext(ctx, `SELECT issue_id FROM comments WHERE id = ?`, commentID).Scan(&issueID)
		if err == sql.ErrNoRows {
			return types.NewNotFound("comment", commentID)
		}
		if err != nil {
			return fmt.Errorf("failed to look up comment: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE id = ?`, commentID); err != nil {
			return fmt.Errorf("failed to delete comment: %w", err)
		}
		return touchIssue(ctx, tx, issueID, s.now())
	})
}
