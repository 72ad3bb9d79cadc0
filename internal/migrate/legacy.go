package migrate

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// legacyCommentNamespace derives stable comment ids from legacy integer ids.
var legacyCommentNamespace = uuid.MustParse("3d6f0a52-8f1e-4b8e-a4c7-0b5d3f9e2a61")

// legacyIssue is one record of the predecessor tracker's JSONL export.
type legacyIssue struct {
	ID                 string             `json:"id"`
	Title              string             `json:"title"`
	Description        string             `json:"description"`
	IssueType          string             `json:"issue_type"`
	Status             string             `json:"status"`
	Priority           *int               `json:"priority"`
	Assignee           string             `json:"assignee"`
	Labels             []string           `json:"labels"`
	Design             string             `json:"design"`
	AcceptanceCriteria string             `json:"acceptance_criteria"`
	Notes              string             `json:"notes"`
	EstimatedMinutes   *int               `json:"estimated_minutes"`
	ExternalRef        string             `json:"external_ref"`
	SpecID             string             `json:"spec_id"`
	Metadata           json.RawMessage    `json:"metadata"`
	CreatedAt          *time.Time         `json:"created_at"`
	UpdatedAt          *time.Time         `json:"updated_at"`
	ClosedAt           *time.Time         `json:"closed_at"`
	Comments           []legacyComment    `json:"comments"`
	Dependencies       []legacyDependency `json:"dependencies"`
}

type legacyComment struct {
	ID        json.Number `json:"id"`
	Author    string      `json:"author"`
	Text      string      `json:"text"`
	CreatedAt *time.Time  `json:"created_at"`
}

type legacyDependency struct {
	IssueID     string `json:"issue_id"`
	DependsOnID string `json:"depends_on_id"`
	Type        string `json:"type"`
}

// legacyPriorities maps the textual priorities some old exports carry.
var legacyPriorities = map[string]int{"critical": 0, "high": 1, "medium": 2, "low": 3, "backlog": 4}

// parseLegacy decodes records line by line. Malformed lines are reported
// and skipped.
func parseLegacy(r io.Reader) ([]*legacyIssue, []*types.ImportParseError, error) {
	var (
		records   []*legacyIssue
		parseErrs []*types.ImportParseError
	)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		rec, err := decodeLegacy(raw)
		if err != nil {
			parseErrs = append(parseErrs, &types.ImportParseError{Line: line, Err: err})
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, &types.IoError{Op: "read", Err: err}
	}
	return records, parseErrs, nil
}

func decodeLegacy(raw []byte) (*legacyIssue, error) {
	// Priority was written as a number or as a word.
	var probe struct {
		Priority json.RawMessage `json:"priority"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, err
	}
	var word string
	if len(probe.Priority) > 0 && probe.Priority[0] == '"' {
		if err := json.Unmarshal(probe.Priority, &word); err != nil {
			return nil, err
		}
		raw = replacePriority(raw)
	}

	var rec legacyIssue
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&rec); err != nil {
		return nil, err
	}
	if word != "" {
		p, ok := legacyPriorities[strings.ToLower(word)]
		if !ok {
			n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(word), "p"))
			if err != nil {
				return nil, fmt.Errorf("unknown priority %q", word)
			}
			p = n
		}
		rec.Priority = &p
	}
	if rec.ID == "" {
		return nil, fmt.Errorf("record has no id")
	}
	return &rec, nil
}

// replacePriority drops a string priority so the typed decode succeeds.
func replacePriority(raw []byte) []byte {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(raw, &m); err != nil {
		return raw
	}
	delete(m, "priority")
	out, err := json.Marshal(m)
	if err != nil {
		return raw
	}
	return out
}

// toIssue maps a legacy record to the current shape. fallback stands in for
// missing timestamps so repeated runs produce identical records.
func (l *legacyIssue) toIssue(fallback time.Time) *types.Issue {
	created := fallback
	if l.CreatedAt != nil {
		created = l.CreatedAt.UTC()
	}
	updated := created
	if l.UpdatedAt != nil {
		updated = l.UpdatedAt.UTC()
	}

	issue := &types.Issue{
		ID:              l.ID,
		Title:           l.Title,
		Description:     l.Description,
		IssueType:       legacyType(l.IssueType),
		Status:          legacyStatus(l.Status),
		Priority:        2,
		Labels:          l.Labels,
		CreatedAt:       created,
		UpdatedAt:       updated,
		ClosedAt:        l.ClosedAt,
		EstimateMinutes: l.EstimatedMinutes,
		Metadata:        l.Metadata,
	}
	if l.Priority != nil {
		issue.Priority = *l.Priority
	}
	issue.Assignee = optional(l.Assignee)
	issue.DesignNotes = optional(l.Design)
	issue.AcceptanceCriteria = optional(l.AcceptanceCriteria)
	issue.WorkingNotes = optional(l.Notes)
	issue.ExternalRef = optional(l.ExternalRef)
	issue.SpecID = optional(l.SpecID)
	if issue.Status == types.StatusClosed && issue.ClosedAt == nil {
		closed := updated
		issue.ClosedAt = &closed
	}

	for _, c := range l.Comments {
		at := created
		if c.CreatedAt != nil {
			at = c.CreatedAt.UTC()
		}
		issue.Comments = append(issue.Comments, &types.Comment{
			ID:        legacyCommentID(l.ID, c),
			IssueID:   l.ID,
			Author:    c.Author,
			Content:   c.Text,
			CreatedAt: at,
		})
	}
	for _, d := range l.Dependencies {
		depType := types.DependencyType(d.Type)
		if depType == "" {
			depType = types.DepBlocks
		}
		issue.Dependencies = append(issue.Dependencies, &types.Dependency{
			IssueID:     l.ID,
			DependsOnID: d.DependsOnID,
			Type:        depType,
			CreatedAt:   created,
		})
	}
	return issue
}

func legacyCommentID(issueID string, c legacyComment) string {
	key := issueID + "#" + c.ID.String()
	if c.ID == "" {
		key = issueID + "\x00" + c.Author + "\x00" + c.Text
	}
	return uuid.NewSHA1(legacyCommentNamespace, []byte(key)).String()
}

func legacyType(s string) types.IssueType {
	switch t := types.IssueType(strings.ToLower(s)); t {
	case "":
		return types.TypeTask
	case "story", "enhancement":
		return types.TypeFeature
	default:
		return t
	}
}

func legacyStatus(s string) types.Status {
	switch st := types.Status(strings.ToLower(strings.ReplaceAll(s, "-", "_"))); st {
	case "":
		return types.StatusOpen
	case "done", "resolved":
		return types.StatusClosed
	case "todo":
		return types.StatusOpen
	case "deleted":
		return types.StatusTombstone
	default:
		return st
	}
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
