// Package fixtures provides realistic test data generation for benchmarks and tests.
package fixtures

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/export"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/importer"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// labels used across all fixtures
var commonLabels = []string{
	"backend",
	"frontend",
	"urgent",
	"tech-debt",
	"documentation",
	"performance",
	"security",
	"api",
}

// assignees used across all fixtures
var commonAssignees = []string{"alice", "bob", "charlie", "diana"}

var epicTitles = []string{
	"User Authentication System",
	"Payment Processing Integration",
	"Search Functionality Enhancement",
	"Notification System",
	"Data Export Feature",
}

var featureTitles = []string{
	"OAuth2 Integration",
	"Password Reset Flow",
	"Session Management",
	"API Endpoints",
	"Background Jobs",
}

var taskTitles = []string{
	"Implement login endpoint",
	"Add validation logic",
	"Write unit tests",
	"Fix memory leak",
	"Optimize query performance",
	"Update database migrations",
}

// DataConfig controls the distribution and characteristics of generated test data
type DataConfig struct {
	TotalIssues    int     // total number of issues to generate
	EpicRatio      float64 // share of issues that are epics (e.g., 0.1 for 10%)
	FeatureRatio   float64 // share of issues that are features (e.g., 0.3 for 30%)
	OpenRatio      float64 // share of issues that are open (e.g., 0.5 for 50%)
	CrossLinkRatio float64 // share of tasks with a blocking edge to another task
	RandSeed       int64   // random seed for reproducibility
}

// DefaultLargeConfig returns configuration for 10K issue dataset
func DefaultLargeConfig() DataConfig {
	return DataConfig{
		TotalIssues:    10000,
		EpicRatio:      0.1,
		FeatureRatio:   0.3,
		OpenRatio:      0.5,
		CrossLinkRatio: 0.2,
		RandSeed:       42,
	}
}

// LargeSQLite creates a 10K issue database with realistic patterns
func LargeSQLite(ctx context.Context, store storage.Storage) error {
	return Generate(ctx, store, DefaultLargeConfig())
}

// LargeFromJSONL builds the 10K dataset, exports it, hard-deletes every
// issue and imports the file back, exercising the interchange path.
func LargeFromJSONL(ctx context.Context, store storage.Storage, tempDir string) error {
	cfg := DefaultLargeConfig()
	cfg.RandSeed = 44 // different seed for JSONL path
	if err := Generate(ctx, store, cfg); err != nil {
		return err
	}

	jsonlPath := filepath.Join(tempDir, "issues.jsonl")
	if _, err := export.WriteJSONL(ctx, store, jsonlPath, export.Options{}); err != nil {
		return fmt.Errorf("failed to export to JSONL: %w", err)
	}

	all, err := store.ListIssues(ctx, types.IssueFilter{IncludeTombstones: true})
	if err != nil {
		return fmt.Errorf("failed to get all issues: %w", err)
	}
	for _, issue := range all {
		if err := store.DeleteIssue(ctx, issue.ID, true); err != nil {
			return fmt.Errorf("failed to delete issue %s: %w", issue.ID, err)
		}
	}

	if _, err := importer.ImportFile(ctx, store, jsonlPath, importer.Options{}); err != nil {
		return fmt.Errorf("failed to import from JSONL: %w", err)
	}
	return nil
}

// Generate creates epics, child features and child tasks with labels and
// cross-task blocking edges.
func Generate(ctx context.Context, store storage.Storage, cfg DataConfig) error {
	rng := rand.New(rand.NewSource(cfg.RandSeed))

	numEpics := int(float64(cfg.TotalIssues) * cfg.EpicRatio)
	numFeatures := int(float64(cfg.TotalIssues) * cfg.FeatureRatio)
	numTasks := cfg.TotalIssues - numEpics - numFeatures
	if numEpics == 0 || numFeatures == 0 {
		return fmt.Errorf("config yields %d epics and %d features; need at least one of each", numEpics, numFeatures)
	}

	newIssue := func(title, desc string, typ types.IssueType) *types.Issue {
		assignee := commonAssignees[rng.Intn(len(commonAssignees))]
		labels := make([]string, 0, 2)
		for j := 0; j < rng.Intn(2)+1; j++ {
			labels = append(labels, commonLabels[rng.Intn(len(commonLabels))])
		}
		return &types.Issue{
			Title:       title,
			Description: desc,
			Status:      randomStatus(rng, cfg.OpenRatio),
			Priority:    randomPriority(rng),
			IssueType:   typ,
			Assignee:    &assignee,
			Labels:      labels,
		}
	}

	epics := make([]*types.Issue, 0, numEpics)
	for i := 0; i < numEpics; i++ {
		title := epicTitles[i%len(epicTitles)]
		created, err := store.CreateIssue(ctx, newIssue(fmt.Sprintf("%s (Epic %d)", title, i), "Epic for "+title, types.TypeEpic), "fixture")
		if err != nil {
			return fmt.Errorf("failed to create epic: %w", err)
		}
		epics = append(epics, created)
	}

	features := make([]*types.Issue, 0, numFeatures)
	for i := 0; i < numFeatures; i++ {
		parent := epics[i%len(epics)]
		title := featureTitles[i%len(featureTitles)]
		created, err := store.CreateChildIssue(ctx, parent.ID, newIssue(fmt.Sprintf("%s (Feature %d)", title, i), "Feature under "+parent.Title, types.TypeFeature), "fixture")
		if err != nil {
			return fmt.Errorf("failed to create feature: %w", err)
		}
		features = append(features, created)
	}

	tasks := make([]*types.Issue, 0, numTasks)
	for i := 0; i < numTasks; i++ {
		parent := features[i%len(features)]
		title := taskTitles[i%len(taskTitles)]
		created, err := store.CreateChildIssue(ctx, parent.ID, newIssue(fmt.Sprintf("%s (Task %d)", title, i), "Task under "+parent.Title, types.TypeTask), "fixture")
		if err != nil {
			return fmt.Errorf("failed to create task: %w", err)
		}
		tasks = append(tasks, created)
	}

	if len(tasks) < 2 {
		return nil
	}
	numCrossLinks := int(float64(numTasks) * cfg.CrossLinkRatio)
	for i := 0; i < numCrossLinks; i++ {
		from := tasks[rng.Intn(len(tasks))]
		to := tasks[rng.Intn(len(tasks))]
		if from.ID == to.ID {
			continue
		}
		// Cycle and duplicate rejections are expected for random edges.
		_ = store.AddDependency(ctx, &types.Dependency{IssueID: from.ID, DependsOnID: to.ID, Type: types.DepBlocks}, "fixture")
	}
	return nil
}

// Small creates a compact, fully populated project: an epic with two
// children, a blocking edge, comments, labels, a closed issue and one with
// every optional field set. Returned issues are in creation order.
func Small(ctx context.Context, store storage.Storage) ([]*types.Issue, error) {
	var out []*types.Issue
	add := func(issue *types.Issue, err error) error {
		if err != nil {
			return err
		}
		out = append(out, issue)
		return nil
	}

	epic, err := store.CreateIssue(ctx, &types.Issue{
		Title:     "Offline sync",
		IssueType: types.TypeEpic,
		Priority:  1,
		Labels:    []string{"sync"},
	}, "fixture")
	if err := add(epic, err); err != nil {
		return nil, fmt.Errorf("failed to create epic: %w", err)
	}
	if err := add(store.CreateChildIssue(ctx, epic.ID, &types.Issue{
		Title:       "Export issues to JSONL",
		Description: "atomic rename over the committed file",
		Priority:    1,
	}, "fixture")); err != nil {
		return nil, err
	}
	if err := add(store.CreateChildIssue(ctx, epic.ID, &types.Issue{
		Title:       "Import with conflict detection",
		Description: "last write wins unless both sides changed",
		IssueType:   types.TypeFeature,
		Priority:    2,
		Assignee:    types.StringPtr("alice"),
	}, "fixture")); err != nil {
		return nil, err
	}
	if err := add(store.CreateIssue(ctx, &types.Issue{
		Title:              "Crash on empty config",
		Description:        "nil map write in loader",
		IssueType:          types.TypeBug,
		Priority:           0,
		Assignee:           types.StringPtr("bob"),
		Labels:             []string{"urgent", "backend"},
		EstimateMinutes:    types.IntPtr(45),
		DesignNotes:        types.StringPtr("guard the map"),
		AcceptanceCriteria: types.StringPtr("loader survives empty file"),
		WorkingNotes:       types.StringPtr("repro in loader_test"),
		ExternalRef:        types.StringPtr("gh-101"),
		SpecID:             types.StringPtr("spec-7"),
		Metadata:           []byte(`{"severity":"high"}`),
	}, "fixture")); err != nil {
		return nil, err
	}
	if err := add(store.CreateIssue(ctx, &types.Issue{
		Title:     "Write release notes",
		IssueType: types.TypeChore,
		Status:    types.StatusClosed,
		Priority:  3,
	}, "fixture")); err != nil {
		return nil, err
	}

	exportTask, importFeature, bug := out[1], out[2], out[3]
	if err := store.AddDependency(ctx, &types.Dependency{IssueID: importFeature.ID, DependsOnID: exportTask.ID, Type: types.DepBlocks}, "fixture"); err != nil {
		return nil, err
	}
	if err := store.AddDependency(ctx, &types.Dependency{IssueID: bug.ID, DependsOnID: epic.ID, Type: types.DepRelated}, "fixture"); err != nil {
		return nil, err
	}
	for _, c := range []struct{ issue, author, text string }{
		{bug.ID, "bob", "Reproduced on main"},
		{bug.ID, "alice", "Fix is one line"},
		{importFeature.ID, "alice", "Needs a fake git"},
	} {
		if _, err := store.AddComment(ctx, c.issue, c.author, c.text); err != nil {
			return nil, err
		}
	}

	for i, issue := range out {
		full, err := store.GetIssueDetails(ctx, issue.ID)
		if err != nil {
			return nil, err
		}
		out[i] = full
	}
	return out, nil
}

// randomStatus returns a random status with given open ratio
func randomStatus(rng *rand.Rand, openRatio float64) types.Status {
	if rng.Float64() < openRatio {
		statuses := []types.Status{types.StatusOpen, types.StatusInProgress, types.StatusBlocked}
		return statuses[rng.Intn(len(statuses))]
	}
	return types.StatusClosed
}

// randomPriority returns a random priority with realistic distribution
// P0: 5%, P1: 15%, P2: 50%, P3: 25%, P4: 5%
func randomPriority(rng *rand.Rand) int {
	r := rng.Intn(100)
	switch {
	case r < 5:
		return 0
	case r < 20:
		return 1
	case r < 70:
		return 2
	case r < 95:
		return 3
	default:
		return 4
	}
}
