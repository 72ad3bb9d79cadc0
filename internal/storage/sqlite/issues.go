package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanIssue(row rowScanner) (*types.Issue, error) {
	var (
		issue                                  types.Issue
		createdAt, updatedAt                   string
		closedAt, syncedAt                     sql.NullString
		assignee, designNotes, acceptance      sql.NullString
		externalRef, specID, metadata, working sql.NullString
		estimate                               sql.NullInt64
	)
	err := row.Scan(
		&issue.ID, &issue.Title, &issue.Description, &issue.IssueType, &issue.Status, &issue.Priority, &assignee,
		&createdAt, &updatedAt, &closedAt, &estimate, &designNotes,
		&acceptance, &externalRef, &syncedAt, &specID, &metadata, &working,
	)
	if err != nil {
		return nil, err
	}

	if issue.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("issue %s: %w", issue.ID, err)
	}
	if issue.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("issue %s: %w", issue.ID, err)
	}
	if issue.ClosedAt, err = parseNullTime(closedAt); err != nil {
		return nil, fmt.Errorf("issue %s: %w", issue.ID, err)
	}
	if issue.SyncedAt, err = parseNullTime(syncedAt); err != nil {
		return nil, fmt.Errorf("issue %s: %w", issue.ID, err)
	}
	issue.Assignee = nullString(assignee)
	issue.DesignNotes = nullString(designNotes)
	issue.AcceptanceCriteria = nullString(acceptance)
	issue.ExternalRef = nullString(externalRef)
	issue.SpecID = nullString(specID)
	issue.WorkingNotes = nullString(working)
	if estimate.Valid {
		v := int(estimate.Int64)
		issue.EstimateMinutes = &v
	}
	if metadata.Valid && metadata.String != "" {
		issue.Metadata = json.RawMessage(metadata.String)
	}
	return &issue, nil
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func strArg(p *string) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func intArg(p *int) interface{} {
	if p == nil {
		return nil
	}
	return *p
}

func metadataArg(m json.RawMessage) interface{} {
	if len(m) == 0 {
		return nil
	}
	return string(types.CompactMetadata(m))
}

// issueRowArgs returns the column values in issueColumns order.
func issueRowArgs(issue *types.Issue) []interface{} {
	return []interface{}{
		issue.ID, issue.Title, issue.Description, string(issue.IssueType), string(issue.Status), issue.Priority, strArg(issue.Assignee),
		formatTime(issue.CreatedAt), formatTime(issue.UpdatedAt), formatTimePtr(issue.ClosedAt), intArg(issue.EstimateMinutes), strArg(issue.DesignNotes),
		strArg(issue.AcceptanceCriteria), strArg(issue.ExternalRef), formatTimePtr(issue.SyncedAt), strArg(issue.SpecID), metadataArg(issue.Metadata), strArg(issue.WorkingNotes),
	}
}

func insertIssueRow(ctx context.Context, q querier, issue *types.Issue) error {
	_, err := q.ExecContext(ctx, `INSERT INTO issues (`+issueColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, issueRowArgs(issue)...)
	if err != nil {
		return fmt.Errorf("failed to insert issue %s: %w", issue.ID, err)
	}
	return nil
}

func updateIssueRow(ctx context.Context, q querier, issue *types.Issue) error {
	args := issueRowArgs(issue)
	_, err := q.ExecContext(ctx, `UPDATE issues SET
		title = ?, description = ?, issue_type = ?, status = ?, priority = ?, assignee = ?,
		created_at = ?, updated_at = ?, closed_at = ?, estimate_minutes = ?, design_notes = ?,
		acceptance_criteria = ?, external_ref = ?, synced_at = ?, spec_id = ?, metadata = ?, working_notes = ?
		WHERE id = ?`, append(args[1:], issue.ID)...)
	if err != nil {
		return fmt.Errorf("failed to update issue %s: %w", issue.ID, err)
	}
	return nil
}

// getIssueRow returns the bare issue row or nil when absent.
func getIssueRow(ctx context.Context, q querier, id string) (*types.Issue, error) {
	row := q.QueryRowContext(ctx, `SELECT `+issueColumns+` FROM issues WHERE id = ?`, id)
	issue, err := scanIssue(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get issue %s: %w", id, err)
	}
	return issue, nil
}

// getIssueDetails returns the issue with labels, comments and dependencies
// or nil when absent.
func getIssueDetails(ctx context.Context, q querier, id string) (*types.Issue, error) {
	issue, err := getIssueRow(ctx, q, id)
	if err != nil || issue == nil {
		return issue, err
	}
	if issue.Labels, err = labelsFor(ctx, q, id); err != nil {
		return nil, err
	}
	if issue.Comments, err = commentsFor(ctx, q, id); err != nil {
		return nil, err
	}
	if issue.Dependencies, err = dependenciesFor(ctx, q, id); err != nil {
		return nil, err
	}
	return issue, nil
}

func issueExists(ctx context.Context, q querier, id string) (bool, error) {
	var one int
	err := q.QueryRowContext(ctx, `SELECT 1 FROM issues WHERE id = ?`, id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check issue %s: %w", id, err)
	}
	return true, nil
}

// changeFloor is the instant a local edit must move updated_at past so the
// issue reads as changed since its last sync.
func changeFloor(issue *types.Issue) time.Time {
	if issue.SyncedAt != nil && issue.SyncedAt.After(issue.UpdatedAt) {
		return *issue.SyncedAt
	}
	return issue.UpdatedAt
}

// touchIssue bumps updated_at strictly past its current value and past
// synced_at.
func touchIssue(ctx context.Context, q querier, id string, now time.Time) error {
	var raw string
	var synced sql.NullString
	err := q.QueryRowContext(ctx, `SELECT updated_at, synced_at FROM issues WHERE id = ?`, id).Scan(&raw, &synced)
	if err == sql.ErrNoRows {
		return types.NewNotFound("issue", id)
	}
	if err != nil {
		return fmt.Errorf("failed to read updated_at for %s: %w", id, err)
	}
	prev, err := parseTime(raw)
	if err != nil {
		return err
	}
	syncedAt, err := parseNullTime(synced)
	if err != nil {
		return err
	}
	next := nextTimestamp(now, changeFloor(&types.Issue{UpdatedAt: prev, SyncedAt: syncedAt}))
	if _, err := q.ExecContext(ctx, `UPDATE issues SET updated_at = ? WHERE id = ?`, formatTime(next), id); err != nil {
		return fmt.Errorf("failed to touch issue %s: %w", id, err)
	}
	return nil
}

// prepareNewIssue validates a caller-supplied issue and stamps timestamps.
func (s *SQLiteStorage) prepareNewIssue(issue *types.Issue) (*types.Issue, error) {
	if issue == nil {
		return nil, types.NewValidationError("issue", "issue is required")
	}
	created := issue.Clone()
	created.SetDefaults()
	created.Labels = types.NormalizeLabels(created.Labels)
	for _, d := range created.Dependencies {
		if d.Type == "" {
			d.Type = types.DepBlocks
		}
	}
	if err := created.Validate(); err != nil {
		return nil, err
	}

	now := s.now()
	created.CreatedAt = now
	created.UpdatedAt = now
	created.SyncedAt = nil
	created.ClosedAt = nil
	if created.Status == types.StatusClosed {
		created.ClosedAt = &now
	}
	return created, nil
}

// CreateIssue assigns an id and inserts the issue, its labels, its
// dependencies and its index entry in one transaction.
func (s *SQLiteStorage) CreateIssue(ctx context.Context, issue *types.Issue, actor string) (*types.Issue, error) {
	return s.createIssue(ctx, "", issue, actor)
}

// CreateChildIssue creates an issue whose id is parentID.N.
func (s *SQLiteStorage) CreateChildIssue(ctx context.Context, parentID string, issue *types.Issue, actor string) (*types.Issue, error) {
	if parentID == "" {
		return nil, types.NewValidationError("parent", "parent id is required")
	}
	return s.createIssue(ctx, parentID, issue, actor)
}

func (s *SQLiteStorage) createIssue(ctx context.Context, parentID string, issue *types.Issue, actor string) (*types.Issue, error) {
	created, err := s.prepareNewIssue(issue)
	if err != nil {
		return nil, err
	}
	comments := created.Comments
	created.Comments = nil

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		stamp := formatTime(created.CreatedAt)
		if parentID != "" {
			exists, err := issueExists(ctx, tx, parentID)
			if err != nil {
				return err
			}
			if !exists {
				return types.NewNotFound("issue", parentID)
			}
			if created.ID, err = nextChildID(ctx, tx, parentID, stamp); err != nil {
				return err
			}
		} else {
			prefix, err := issuePrefix(ctx, tx)
			if err != nil {
				return err
			}
			if created.ID, err = generateIssueID(ctx, tx, prefix, stamp); err != nil {
				return err
			}
		}

		if err := insertIssueRow(ctx, tx, created); err != nil {
			return err
		}
		if err := replaceLabels(ctx, tx, created.ID, created.Labels); err != nil {
			return err
		}
		for _, d := range created.Dependencies {
			d.IssueID = created.ID
			d.CreatedAt = created.CreatedAt
			if err := insertDependency(ctx, tx, d); err != nil {
				return err
			}
		}
		for _, c := range comments {
			added, err := addComment(ctx, tx, created.ID, c.Author, c.Content, created.CreatedAt)
			if err != nil {
				return err
			}
			created.Comments = append(created.Comments, added)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// GetIssue retrieves an issue (with labels) by ID.
func (s *SQLiteStorage) GetIssue(ctx context.Context, id string) (*types.Issue, error) {
	issue, err := getIssueRow(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, types.NewNotFound("issue", id)
	}
	if issue.Labels, err = labelsFor(ctx, s.db, id); err != nil {
		return nil, err
	}
	return issue, nil
}

// GetIssueDetails retrieves an issue with labels, comments and dependencies.
func (s *SQLiteStorage) GetIssueDetails(ctx context.Context, id string) (*types.Issue, error) {
	issue, err := getIssueDetails(ctx, s.db, id)
	if err != nil {
		return nil, err
	}
	if issue == nil {
		return nil, types.NewNotFound("issue", id)
	}
	return issue, nil
}

// ListIssues returns issues matching filter, ordered by priority then age.
func (s *SQLiteStorage) ListIssues(ctx context.Context, filter types.IssueFilter) ([]*types.Issue, error) {
	var (
		where []string
		args  []interface{}
	)
	if !filter.IncludeTombstones && (filter.Status == nil || *filter.Status != types.StatusTombstone) {
		where = append(where, "status != 'tombstone'")
	}
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.IssueType != nil {
		where = append(where, "issue_type = ?")
		args = append(args, string(*filter.IssueType))
	}
	if filter.Priority != nil {
		where = append(where, "priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.Assignee != nil {
		where = append(where, "assignee = ?")
		args = append(args, *filter.Assignee)
	}
	for _, label := range filter.Labels {
		where = append(where, "EXISTS (SELECT 1 FROM labels l WHERE l.issue_id = issues.id AND l.label = ?)")
		args = append(args, types.NormalizeLabel(label))
	}
	if len(filter.IDs) > 0 {
		placeholders := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			placeholders[i] = "?"
			args = append(args, id)
		}
		where = append(where, "id IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := `SELECT ` + issueColumns + ` FROM issues`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY priority ASC, created_at DESC, id ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	issues, err := queryIssues(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	if err := attachLabels(ctx, s.db, issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func queryIssues(ctx context.Context, q querier, query string, args ...interface{}) ([]*types.Issue, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query issues: %w", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// allowedUpdateFields lists the keys UpdateIssue accepts.
var allowedUpdateFields = map[string]bool{
	"title":               true,
	"description":         true,
	"type":                true,
	"status":              true,
	"priority":            true,
	"assignee":            true,
	"labels":              true,
	"estimate_minutes":    true,
	"design_notes":        true,
	"acceptance_criteria": true,
	"working_notes":       true,
	"external_ref":        true,
	"spec_id":             true,
	"metadata":            true,
}

// UpdateIssue applies a partial update. Keys absent from updates are left
// untouched; a nil or empty value clears a nullable field.
func (s *SQLiteStorage) UpdateIssue(ctx context.Context, id string, updates map[string]interface{}, actor string) (*types.Issue, error) {
	for key := range updates {
		if !allowedUpdateFields[key] {
			return nil, types.NewValidationError(key, "field cannot be updated")
		}
	}

	var updated *types.Issue
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getIssueRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return types.NewNotFound("issue", id)
		}

		next := current.Clone()
		if err := applyUpdates(next, updates); err != nil {
			return err
		}
		if err := next.Validate(); err != nil {
			return err
		}

		now := s.now()
		manageClosedAt(current, next, now)
		next.UpdatedAt = nextTimestamp(now, changeFloor(current))

		if err := updateIssueRow(ctx, tx, next); err != nil {
			return err
		}
		if raw, ok := updates["labels"]; ok {
			labels, err := toStringSlice(raw)
			if err != nil {
				return types.NewValidationError("labels", err.Error())
			}
			if err := replaceLabels(ctx, tx, id, types.NormalizeLabels(labels)); err != nil {
				return err
			}
		}
		updated, err = getIssueDetails(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// manageClosedAt keeps closed_at set exactly while status is closed.
func manageClosedAt(old, next *types.Issue, now time.Time) {
	switch {
	case next.Status == types.StatusClosed && old.Status != types.StatusClosed:
		next.ClosedAt = &now
	case next.Status == types.StatusClosed && next.ClosedAt == nil:
		next.ClosedAt = &now
	case next.Status != types.StatusClosed:
		next.ClosedAt = nil
	}
}

func applyUpdates(issue *types.Issue, updates map[string]interface{}) error {
	for key, value := range updates {
		var err error
		switch key {
		case "title":
			issue.Title, err = toString(value)
		case "description":
			issue.Description, err = toString(value)
		case "type":
			var v string
			v, err = toString(value)
			issue.IssueType = types.IssueType(v)
		case "status":
			var v string
			v, err = toString(value)
			issue.Status = types.Status(v)
		case "priority":
			issue.Priority, err = toInt(value)
		case "assignee":
			issue.Assignee, err = toNullableString(value)
		case "estimate_minutes":
			issue.EstimateMinutes, err = toNullableInt(value)
		case "design_notes":
			issue.DesignNotes, err = toNullableString(value)
		case "acceptance_criteria":
			issue.AcceptanceCriteria, err = toNullableString(value)
		case "working_notes":
			issue.WorkingNotes, err = toNullableString(value)
		case "external_ref":
			issue.ExternalRef, err = toNullableString(value)
		case "spec_id":
			issue.SpecID, err = toNullableString(value)
		case "metadata":
			issue.Metadata, err = toMetadata(value)
		case "labels":
			// applied after the row update
		}
		if err != nil {
			return types.NewValidationError(key, err.Error())
		}
	}
	return nil
}

func toString(v interface{}) (string, error) {
	switch t := v.(type) {
	case nil:
		return "", nil
	case string:
		return t, nil
	case *string:
		if t == nil {
			return "", nil
		}
		return *t, nil
	case types.Status:
		return string(t), nil
	case types.IssueType:
		return string(t), nil
	}
	return "", fmt.Errorf("expected string, got %T", v)
}

// toNullableString maps nil and "" to NULL.
func toNullableString(v interface{}) (*string, error) {
	s, err := toString(v)
	if err != nil || s == "" {
		return nil, err
	}
	return &s, nil
}

func toInt(v interface{}) (int, error) {
	switch t := v.(type) {
	case int:
		return t, nil
	case int64:
		return int(t), nil
	case int32:
		return int(t), nil
	case float64:
		if t != float64(int(t)) {
			return 0, fmt.Errorf("expected integer, got %v", t)
		}
		return int(t), nil
	case json.Number:
		n, err := t.Int64()
		return int(n), err
	case *int:
		if t == nil {
			return 0, fmt.Errorf("value is required")
		}
		return *t, nil
	}
	return 0, fmt.Errorf("expected integer, got %T", v)
}

func toNullableInt(v interface{}) (*int, error) {
	if v == nil {
		return nil, nil
	}
	if p, ok := v.(*int); ok {
		if p == nil {
			return nil, nil
		}
		n := *p
		return &n, nil
	}
	n, err := toInt(v)
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func toMetadata(v interface{}) (json.RawMessage, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(t) == 0 || string(t) == "null" {
			return nil, nil
		}
		return append(json.RawMessage(nil), t...), nil
	case []byte:
		return toMetadata(json.RawMessage(t))
	case string:
		if t == "" {
			return nil, nil
		}
		return toMetadata(json.RawMessage(t))
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("metadata is not serializable: %w", err)
	}
	return data, nil
}

func toStringSlice(v interface{}) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case []string:
		return t, nil
	case []interface{}:
		out := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("expected string label, got %T", item)
			}
			out = append(out, s)
		}
		return out, nil
	}
	return nil, fmt.Errorf("expected list of strings, got %T", v)
}

// CloseIssue sets status to closed.
func (s *SQLiteStorage) CloseIssue(ctx context.Context, id string, actor string) (*types.Issue, error) {
	return s.UpdateIssue(ctx, id, map[string]interface{}{"status": types.StatusClosed}, actor)
}

// ReopenIssue sets status back to open.
func (s *SQLiteStorage) ReopenIssue(ctx context.Context, id string, actor string) (*types.Issue, error) {
	return s.UpdateIssue(ctx, id, map[string]interface{}{"status": types.StatusOpen}, actor)
}

// DeleteIssue soft-deletes (tombstone) or, with hard=true, physically
// removes the issue together with its comments, labels, dependencies in
// both directions and open conflicts. Hard deletes do not propagate
// through sync: a peer still holding the record will re-create it.
func (s *SQLiteStorage) DeleteIssue(ctx context.Context, id string, hard bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		current, err := getIssueRow(ctx, tx, id)
		if err != nil {
			return err
		}
		if current == nil {
			return types.NewNotFound("issue", id)
		}

		if !hard {
			if current.IsTombstone() {
				return nil
			}
			next := current.Clone()
			next.Status = types.StatusTombstone
			next.ClosedAt = nil
			next.UpdatedAt = nextTimestamp(s.now(), changeFloor(current))
			return updateIssueRow(ctx, tx, next)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE issue_id = ? OR depends_on_id = ?`, id, id); err != nil {
			return fmt.Errorf("failed to delete dependencies: %w", err)
		}
		for _, table := range []string{"labels", "comments", "conflicts"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE issue_id = ?`, id); err != nil {
				return fmt.Errorf("failed to delete %s: %w", table, err)
			}
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM issues WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("failed to delete issue: %w", err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to check rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return types.NewNotFound("issue", id)
		}
		return nil
	})
}

// GetReadyWork returns open or in-progress issues with no open blocker.
func (s *SQLiteStorage) GetReadyWork(ctx context.Context, limit int) ([]*types.Issue, error) {
	query := `SELECT ` + qualifiedIssueColumns("i") + ` FROM issues i
		WHERE i.status IN ('open', 'in_progress')
		  AND NOT EXISTS (
			SELECT 1 FROM dependencies d
			JOIN issues b ON b.id = d.depends_on_id
			WHERE d.issue_id = i.id
			  AND d.type = 'blocks'
			  AND b.status NOT IN ('closed', 'tombstone')
		  )
		ORDER BY i.priority ASC, i.created_at ASC, i.id ASC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	issues, err := queryIssues(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	if err := attachLabels(ctx, s.db, issues); err != nil {
		return nil, err
	}
	return issues, nil
}
