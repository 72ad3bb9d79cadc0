package importer

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// ParseJSONL decodes an interchange stream. The whole stream is first
// decoded strictly (a top-level JSON array is accepted too). If that fails,
// each line is decoded on its own: malformed lines are reported as
// ImportParseError values and skipped, the rest are returned. The error
// return is reserved for failures reading r.
func ParseJSONL(r io.Reader) ([]*types.Issue, []*types.ImportParseError, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil, &types.IoError{Op: "read", Err: err}
	}

	if issues, ok := parseStrict(data); ok {
		return dropMissingIDs(issues, nil)
	}
	issues, lines, parseErrs := parseLines(data)
	return dropMissingIDs(issues, lines, parseErrs...)
}

func parseStrict(data []byte) ([]*types.Issue, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, true
	}
	if trimmed[0] == '[' {
		var issues []*types.Issue
		if err := json.Unmarshal(trimmed, &issues); err != nil {
			return nil, false
		}
		return issues, true
	}

	dec := json.NewDecoder(bytes.NewReader(trimmed))
	var issues []*types.Issue
	for dec.More() {
		var issue types.Issue
		if err := dec.Decode(&issue); err != nil {
			return nil, false
		}
		issues = append(issues, &issue)
	}
	return issues, true
}

// parseLines decodes line by line and remembers each issue's line number.
func parseLines(data []byte) ([]*types.Issue, []int, []*types.ImportParseError) {
	var (
		issues    []*types.Issue
		lines     []int
		parseErrs []*types.ImportParseError
	)
	for n, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var issue types.Issue
		if err := json.Unmarshal(line, &issue); err != nil {
			perr := &types.ImportParseError{Line: n + 1, Err: err}
			fmt.Fprintf(os.Stderr, "Warning: skipping malformed line: %v\n", perr)
			parseErrs = append(parseErrs, perr)
			continue
		}
		issues = append(issues, &issue)
		lines = append(lines, n+1)
	}
	debug.Logf("tolerant parse: %d records, %d malformed lines\n", len(issues), len(parseErrs))
	return issues, lines, parseErrs
}

// dropMissingIDs turns records without an id into parse errors. lines, when
// non-nil, holds each record's source line; otherwise the record index is
// used.
func dropMissingIDs(issues []*types.Issue, lines []int, parseErrs ...*types.ImportParseError) ([]*types.Issue, []*types.ImportParseError, error) {
	kept := issues[:0]
	for i, issue := range issues {
		if issue == nil || issue.ID == "" {
			line := i + 1
			if lines != nil {
				line = lines[i]
			}
			parseErrs = append(parseErrs, &types.ImportParseError{Line: line, Err: fmt.Errorf("record has no id")})
			continue
		}
		kept = append(kept, issue)
	}
	return kept, parseErrs, nil
}
