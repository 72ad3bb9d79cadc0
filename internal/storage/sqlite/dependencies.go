package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

const maxDependencyDepth = 100

func scanDependencies(rows *sql.Rows) ([]*types.Dependency, error) {
	defer rows.Close()
	var deps []*types.Dependency
	for rows.Next() {
		var d types.Dependency
		var createdAt string
		if err := rows.Scan(&d.IssueID, &d.DependsOnID, &d.Type, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan dependency: %w", err)
		}
		t, err := parseTime(createdAt)
		if err != nil {
			return nil, err
		}
		d.CreatedAt = t
		deps = append(deps, &d)
	}
	return deps, rows.Err()
}

func dependenciesFor(ctx context.Context, q querier, issueID string) ([]*types.Dependency, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at
		FROM dependencies
		WHERE issue_id = ?
		ORDER BY depends_on_id
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependencies: %w", err)
	}
	return scanDependencies(rows)
}

// insertDependency validates and stores an edge. Blocking edges are
// checked for cycles through other blocking edges.
func insertDependency(ctx context.Context, q querier, dep *types.Dependency) error {
	if dep.Type == "" {
		dep.Type = types.DepBlocks
	}
	if !dep.Type.IsValid() {
		return types.NewValidationError("type", fmt.Sprintf("invalid dependency type: %q", dep.Type))
	}
	if dep.IssueID == dep.DependsOnID {
		return types.NewValidationError("depends_on_id", "issue cannot depend on itself")
	}
	for _, id := range []string{dep.IssueID, dep.DependsOnID} {
		exists, err := issueExists(ctx, q, id)
		if err != nil {
			return err
		}
		if !exists {
			return types.NewNotFound("issue", id)
		}
	}

	if dep.Type.AffectsReadyWork() {
		var cycleExists bool
		err := q.QueryRowContext(ctx, `
			WITH RECURSIVE paths AS (
				SELECT issue_id, depends_on_id, 1 AS depth
				FROM dependencies
				WHERE issue_id = ? AND type = 'blocks'

				UNION ALL

				SELECT d.issue_id, d.depends_on_id, p.depth + 1
				FROM dependencies d
				JOIN paths p ON d.issue_id = p.depends_on_id
				WHERE d.type = 'blocks' AND p.depth < ?
			)
			SELECT EXISTS(SELECT 1 FROM paths WHERE depends_on_id = ?)
		`, dep.DependsOnID, maxDependencyDepth, dep.IssueID).Scan(&cycleExists)
		if err != nil {
			return fmt.Errorf("failed to check for cycles: %w", err)
		}
		if cycleExists {
			return types.NewValidationError("depends_on_id",
				fmt.Sprintf("would create a cycle (%s -> %s -> ... -> %s)", dep.IssueID, dep.DependsOnID, dep.IssueID))
		}
	}

	_, err := q.ExecContext(ctx, `
		INSERT INTO dependencies (issue_id, depends_on_id, type, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (issue_id, depends_on_id) DO UPDATE SET type = excluded.type
	`, dep.IssueID, dep.DependsOnID, string(dep.Type), formatTime(dep.CreatedAt))
	if err != nil {
		return fmt.Errorf("failed to add dependency: %w", err)
	}
	return nil
}

// AddDependency adds (or retypes) an edge and bumps the dependent issue.
func (s *SQLiteStorage) AddDependency(ctx context.Context, dep *types.Dependency, actor string) error {
	if dep == nil {
		return types.NewValidationError("dependency", "dependency is required")
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := s.now()
		d := *dep
		d.CreatedAt = now
		if err := insertDependency(ctx, tx, &d); err != nil {
			return err
		}
		return touchIssue(ctx, tx, d.IssueID, now)
	})
}

// RemoveDependency deletes an edge and bumps the dependent issue.
func (s *SQLiteStorage) RemoveDependency(ctx context.Context, issueID, dependsOnID string, actor string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ? AND depends_on_id = ?`, issueID, dependsOnID)
		if err != nil {
			return fmt.Errorf("failed to remove dependency: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rows == 0 {
			return types.NewNotFound("dependency", issueID+" -> "+dependsOnID)
		}
		return touchIssue(ctx, tx, issueID, s.now())
	})
}

// GetDependencies returns the outgoing edges of issueID.
func (s *SQLiteStorage) GetDependencies(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	return dependenciesFor(ctx, s.db, issueID)
}

// GetDependents returns the edges pointing at issueID.
func (s *SQLiteStorage) GetDependents(ctx context.Context, issueID string) ([]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at
		FROM dependencies
		WHERE depends_on_id = ?
		ORDER BY issue_id
	`, issueID)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependents: %w", err)
	}
	return scanDependencies(rows)
}

// GetAllDependencyRecords returns every edge keyed by the dependent issue.
func (s *SQLiteStorage) GetAllDependencyRecords(ctx context.Context) (map[string][]*types.Dependency, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT issue_id, depends_on_id, type, created_at
		FROM dependencies
		ORDER BY issue_id, depends_on_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to get dependency records: %w", err)
	}
	deps, err := scanDependencies(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]*types.Dependency)
	for _, d := range deps {
		out[d.IssueID] = append(out[d.IssueID], d)
	}
	return out, nil
}
