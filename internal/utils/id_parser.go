// Package utils provides utility functions for issue ID parsing and resolution.
package utils

import (
	"context"
	"fmt"
	"strings"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// ParseIssueID ensures an issue ID has the configured prefix.
// If the input already has the prefix (e.g., "bd-a3f8"), returns it as-is.
// If the input lacks the prefix (e.g., "a3f8"), adds the configured prefix.
// Works with hierarchical IDs too: "a3f8.1.2" → "bd-a3f8.1.2"
func ParseIssueID(input string, prefix string) string {
	if prefix == "" {
		prefix = "bd-"
	}
	if !strings.HasSuffix(prefix, "-") {
		prefix += "-"
	}

	if strings.HasPrefix(input, prefix) {
		return input
	}

	return prefix + input
}

// ResolvePartialID resolves a potentially partial issue ID to a full ID.
// Supports:
// - Full IDs: "bd-a3f8" or "a3f8" → "bd-a3f8"
// - Partial IDs: "a3f" → "bd-a3f8" (if unique match)
// - Hierarchical: "a3f8.1" → "bd-a3f8.1"
//
// Returns an error if no issue matches or the input is ambiguous.
func ResolvePartialID(ctx context.Context, store storage.Storage, input string) (string, error) {
	prefix, err := store.GetConfig(ctx, "issue_prefix")
	if err != nil || prefix == "" {
		prefix = "bd"
	}
	normalizedID := ParseIssueID(input, prefix)

	// Exact match first
	if issue, err := store.GetIssue(ctx, normalizedID); err == nil && issue != nil {
		return normalizedID, nil
	}

	issues, err := store.ListIssues(ctx, types.IssueFilter{IncludeTombstones: true})
	if err != nil {
		return "", fmt.Errorf("failed to list issues: %w", err)
	}

	hashPart := strings.TrimPrefix(normalizedID, strings.TrimSuffix(prefix, "-")+"-")

	var matches []string
	for _, issue := range issues {
		if issue.ID == input {
			return issue.ID, nil
		}
		issueHash := issue.ID
		if idx := strings.Index(issue.ID, "-"); idx >= 0 {
			issueHash = issue.ID[idx+1:]
		}
		if strings.HasPrefix(issueHash, hashPart) {
			matches = append(matches, issue.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", types.NewNotFound("issue", input)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("ambiguous ID %q matches %d issues: %v\nUse more characters to disambiguate", input, len(matches), matches)
	}
}

// ResolvePartialIDs resolves multiple potentially partial issue IDs.
func ResolvePartialIDs(ctx context.Context, store storage.Storage, inputs []string) ([]string, error) {
	resolved := make([]string, 0, len(inputs))
	for _, input := range inputs {
		fullID, err := ResolvePartialID(ctx, store, input)
		if err != nil {
			return nil, err
		}
		resolved = append(resolved, fullID)
	}
	return resolved, nil
}
