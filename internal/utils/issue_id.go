package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// HashLength is the number of base36 characters after the prefix.
const HashLength = 4

var issueIDPattern = regexp.MustCompile(`^([a-z0-9][a-z0-9_]*)-([0-9a-z]+)((?:\.[1-9][0-9]*)*)$`)

// ExtractIssuePrefix extracts the prefix from an issue ID like "bd-a3f8" -> "bd"
// Only considers the first hyphen, so "vc-baseline-test" -> "vc"
func ExtractIssuePrefix(issueID string) string {
	idx := strings.Index(issueID, "-")
	if idx <= 0 {
		return ""
	}
	return issueID[:idx]
}

// ParentID returns the parent of a hierarchical ID: "bd-a3f8.1.2" -> "bd-a3f8.1".
// The second return value is false for root IDs.
func ParentID(issueID string) (string, bool) {
	hyphen := strings.Index(issueID, "-")
	dot := strings.LastIndex(issueID, ".")
	if dot <= hyphen {
		return "", false
	}
	return issueID[:dot], true
}

// RootID strips every child segment: "bd-a3f8.1.2" -> "bd-a3f8".
func RootID(issueID string) string {
	hyphen := strings.Index(issueID, "-")
	if dot := strings.Index(issueID[hyphen+1:], "."); dot >= 0 {
		return issueID[:hyphen+1+dot]
	}
	return issueID
}

// IsHierarchical reports whether issueID has at least one child segment.
func IsHierarchical(issueID string) bool {
	_, ok := ParentID(issueID)
	return ok
}

// ChildNumber returns N for "parent.N" or 0 for root IDs.
func ChildNumber(issueID string) int {
	parent, ok := ParentID(issueID)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(issueID[len(parent)+1:])
	if err != nil {
		return 0
	}
	return n
}

// IsDirectChildOf reports whether childID is exactly one level below parentID.
func IsDirectChildOf(childID, parentID string) bool {
	p, ok := ParentID(childID)
	return ok && p == parentID
}

// ChildID builds the Nth child ID of parentID.
func ChildID(parentID string, n int) string {
	return fmt.Sprintf("%s.%d", parentID, n)
}

// Depth returns how many child segments an ID carries.
func Depth(issueID string) int {
	hyphen := strings.Index(issueID, "-")
	return strings.Count(issueID[hyphen+1:], ".")
}

// ValidateIssueID checks that issueID has the form <prefix>-<base36>[.N...].
// An empty prefix accepts any prefix.
func ValidateIssueID(issueID, prefix string) error {
	m := issueIDPattern.FindStringSubmatch(issueID)
	if m == nil {
		return fmt.Errorf("invalid issue id %q: expected <prefix>-<base36>[.N]", issueID)
	}
	if prefix != "" && m[1] != strings.TrimSuffix(prefix, "-") {
		return fmt.Errorf("issue id %q does not match prefix %q", issueID, prefix)
	}
	return nil
}
