package sqlite

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// bm25 column weights for (id, title, description, notes).
const searchRank = `bm25(issues_fts, 0.0, 10.0, 4.0, 2.0)`

// ftsQuery turns free text into an FTS5 MATCH expression: every token is
// quoted so operators in user input stay literal, and the last token is
// prefix-matched. Returns "" when the text has no searchable token.
func ftsQuery(text string) string {
	tokens := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	if len(tokens) == 0 {
		return ""
	}
	parts := make([]string, len(tokens))
	for i, tok := range tokens {
		parts[i] = `"` + strings.ToLower(tok) + `"`
	}
	parts[len(parts)-1] += "*"
	return strings.Join(parts, " ")
}

// Search runs a ranked full-text query over title, description and notes.
// Results come back best match first; a blank query or no match yields an
// empty slice.
func (s *SQLiteStorage) Search(ctx context.Context, query string, opts types.SearchOptions) ([]*types.SearchResult, error) {
	results := []*types.SearchResult{}
	match := ftsQuery(query)
	if match == "" {
		return results, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = types.DefaultSearchLimit
	}

	sqlQuery := `
		SELECT ` + qualifiedIssueColumns("i") + `,
			` + searchRank + ` AS rank,
			snippet(issues_fts, -1, '[', ']', '…', 12) AS snip
		FROM issues_fts
		JOIN issues i ON i.id = issues_fts.id
		WHERE issues_fts MATCH ?`
	if !opts.IncludeTombstones {
		sqlQuery += ` AND i.status != 'tombstone'`
	}
	sqlQuery += ` ORDER BY rank ASC, i.id ASC LIMIT ?`

	rows, err := s.db.QueryContext(ctx, sqlQuery, match, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to search issues: %w", err)
	}
	defer rows.Close()

	var issues []*types.Issue
	for rows.Next() {
		var rank float64
		var snip string
		issue, err := scanIssue(scanWithExtra{rows, []interface{}{&rank, &snip}})
		if err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		issues = append(issues, issue)
		results = append(results, &types.SearchResult{Issue: issue, Score: -rank, Snippet: snip})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read search results: %w", err)
	}
	if err := attachLabels(ctx, s.db, issues); err != nil {
		return nil, err
	}
	return results, nil
}

// scanWithExtra appends trailing destinations to a scanIssue call.
type scanWithExtra struct {
	row   rowScanner
	extra []interface{}
}

func (s scanWithExtra) Scan(dest ...interface{}) error {
	return s.row.Scan(append(dest, s.extra...)...)
}
