package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/adapter"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// outputJSON outputs data as pretty-printed JSON
func outputJSON(v interface{}) {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

// fatal prints err and exits.
func fatal(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

// resolveID expands a partial id or exits.
func resolveID(input string) string {
	id, err := eng.ResolveID(rootCtx, input)
	if err != nil {
		fatal(err)
	}
	return id
}

func statusColor(status string) func(a ...interface{}) string {
	switch types.Status(status) {
	case types.StatusClosed, types.StatusTombstone:
		return color.New(color.Faint).SprintFunc()
	case types.StatusInProgress:
		return color.New(color.FgCyan).SprintFunc()
	case types.StatusBlocked:
		return color.New(color.FgRed).SprintFunc()
	}
	return fmt.Sprint
}

func priorityColor(priority string) func(a ...interface{}) string {
	switch priority {
	case "p0":
		return color.New(color.FgRed, color.Bold).SprintFunc()
	case "p1":
		return color.New(color.FgYellow).SprintFunc()
	}
	return fmt.Sprint
}

// formatIssueLine renders one list row: id, priority, type, status, title.
func formatIssueLine(v *adapter.View) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s [%s] [%s] %s - %s",
		v.ID, priorityColor(v.Priority)(v.Priority), v.Type, statusColor(v.Status)(v.Status), v.Title)
	if v.Assignee != nil {
		fmt.Fprintf(&sb, " (@%s)", *v.Assignee)
	}
	if len(v.Labels) > 0 {
		fmt.Fprintf(&sb, " {%s}", strings.Join(v.Labels, ", "))
	}
	return sb.String()
}

func printIssueList(issues []*types.Issue) {
	views, err := eng.Views(rootCtx, issues)
	if err != nil {
		fatal(err)
	}
	if jsonOutput {
		outputJSON(views)
		return
	}
	if len(views) == 0 {
		fmt.Println("No issues found.")
		return
	}
	for _, v := range views {
		fmt.Println(formatIssueLine(v))
	}
}

// printIssueDetails prints a full issue view.
func printIssueDetails(v *adapter.View) {
	cyan := color.New(color.FgCyan).SprintFunc()
	fmt.Printf("%s: %s\n", cyan(v.ID), v.Title)
	fmt.Printf("Status: %s\n", statusColor(v.Status)(v.Status))
	fmt.Printf("Priority: %s\n", priorityColor(v.Priority)(v.Priority))
	fmt.Printf("Type: %s\n", v.Type)
	if v.Assignee != nil {
		fmt.Printf("Assignee: %s\n", *v.Assignee)
	}
	fmt.Printf("Created: %s\n", v.CreatedAt.Local().Format("2006-01-02 15:04"))
	fmt.Printf("Updated: %s\n", v.UpdatedAt.Local().Format("2006-01-02 15:04"))
	if v.ClosedAt != nil {
		fmt.Printf("Closed: %s\n", v.ClosedAt.Local().Format("2006-01-02 15:04"))
	}
	if v.EstimateMinutes != nil {
		fmt.Printf("Estimate: %d minutes\n", *v.EstimateMinutes)
	}
	if v.ExternalRef != nil {
		fmt.Printf("External Ref: %s\n", *v.ExternalRef)
	}
	if v.SpecID != nil {
		fmt.Printf("Spec: %s\n", *v.SpecID)
	}
	if len(v.Labels) > 0 {
		fmt.Printf("Labels: %s\n", strings.Join(v.Labels, ", "))
	}

	section := func(title string, body *string) {
		if body != nil && *body != "" {
			fmt.Printf("\n%s:\n%s\n", title, *body)
		}
	}
	if v.Description != "" {
		fmt.Printf("\nDescription:\n%s\n", v.Description)
	}
	section("Design", v.DesignNotes)
	section("Acceptance Criteria", v.AcceptanceCriteria)
	section("Notes", v.WorkingNotes)

	list := func(title string, ids []string) {
		if len(ids) > 0 {
			fmt.Printf("\n%s: %s\n", title, strings.Join(ids, ", "))
		}
	}
	if v.Parent != nil {
		fmt.Printf("\nParent: %s\n", *v.Parent)
	}
	list("Children", v.Children)
	list("Blocked by", v.BlockedBy)
	list("Blocks", v.Blocks)
	if len(v.Related) > 0 {
		fmt.Printf("\nRelated:\n")
		for _, l := range v.Related {
			arrow := "<-"
			if l.Outgoing {
				arrow = "->"
			}
			fmt.Printf("  %s %s (%s)\n", arrow, l.ID, l.Type)
		}
	}

	if len(v.Comments) > 0 {
		fmt.Printf("\nComments (%d):\n", len(v.Comments))
		for _, c := range v.Comments {
			fmt.Printf("  [%s] %s at %s\n", shortID(c.ID), c.Author, c.CreatedAt.Local().Format("2006-01-02 15:04"))
			for _, line := range strings.Split(c.Content, "\n") {
				fmt.Printf("    %s\n", line)
			}
		}
	}
}

// shortID trims a comment uuid to its first block.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
