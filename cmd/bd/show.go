package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/adapter"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

var showCmd = &cobra.Command{
	Use:   "show [id...]",
	Short: "Show issue details",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		var issues []*types.Issue
		for _, arg := range args {
			issue, err := eng.GetIssue(rootCtx, resolveID(arg))
			if err != nil {
				fatal(err)
			}
			issues = append(issues, issue)
		}
		views, err := eng.Views(rootCtx, issues)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(views)
			return
		}
		for i, v := range views {
			if i > 0 {
				fmt.Println(strings.Repeat("─", 60))
			}
			printIssueDetails(v)
		}
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List issues",
	Run: func(cmd *cobra.Command, args []string) {
		filter, err := listFilterFromFlags(cmd)
		if err != nil {
			fatal(err)
		}
		issues, err := eng.ListIssues(rootCtx, filter)
		if err != nil {
			fatal(err)
		}
		printIssueList(issues)
	},
}

// listFilterFromFlags builds an IssueFilter from list's flags.
func listFilterFromFlags(cmd *cobra.Command) (types.IssueFilter, error) {
	var filter types.IssueFilter
	if status, _ := cmd.Flags().GetString("status"); status != "" {
		s := types.Status(status)
		if !s.IsValid() {
			return filter, types.NewValidationError("status", fmt.Sprintf("invalid status %q", status))
		}
		filter.Status = &s
		if s == types.StatusTombstone {
			filter.IncludeTombstones = true
		}
	}
	if issueType, _ := cmd.Flags().GetString("type"); issueType != "" {
		t := types.IssueType(issueType)
		if !t.IsValid() {
			return filter, types.NewValidationError("type", fmt.Sprintf("invalid issue type %q", issueType))
		}
		filter.IssueType = &t
	}
	if cmd.Flags().Changed("priority") {
		raw, _ := cmd.Flags().GetString("priority")
		p, err := adapter.ParsePriority(raw)
		if err != nil {
			return filter, err
		}
		filter.Priority = &p
	}
	if assignee, _ := cmd.Flags().GetString("assignee"); assignee != "" {
		filter.Assignee = &assignee
	}
	filter.Labels, _ = cmd.Flags().GetStringSlice("label")
	filter.Limit, _ = cmd.Flags().GetInt("limit")
	if all, _ := cmd.Flags().GetBool("all"); all {
		filter.IncludeTombstones = true
	}
	return filter, nil
}

var readyCmd = &cobra.Command{
	Use:   "ready",
	Short: "Show open issues with no open blockers",
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		issues, err := eng.ReadyWork(rootCtx, limit)
		if err != nil {
			fatal(err)
		}
		if !jsonOutput && len(issues) == 0 {
			fmt.Println("No ready work.")
			return
		}
		printIssueList(issues)
	},
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over titles, descriptions and notes",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		limit, _ := cmd.Flags().GetInt("limit")
		all, _ := cmd.Flags().GetBool("all")
		results, err := eng.Search(rootCtx, strings.Join(args, " "), types.SearchOptions{Limit: limit, IncludeTombstones: all})
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			type hit struct {
				*adapter.View
				Score   float64 `json:"score"`
				Snippet string  `json:"snippet"`
			}
			hits := make([]hit, 0, len(results))
			for _, r := range results {
				hits = append(hits, hit{View: adapter.ToView(r.Issue, nil), Score: r.Score, Snippet: r.Snippet})
			}
			outputJSON(hits)
			return
		}
		if len(results) == 0 {
			fmt.Fprintf(os.Stderr, "No matches.\n")
			return
		}
		for _, r := range results {
			fmt.Println(formatIssueLine(adapter.ToView(r.Issue, nil)))
			if r.Snippet != "" {
				fmt.Printf("    %s\n", r.Snippet)
			}
		}
	},
}

func init() {
	listCmd.Flags().StringP("status", "s", "", "Filter by status")
	listCmd.Flags().StringP("type", "t", "", "Filter by type")
	listCmd.Flags().StringP("priority", "p", "", "Filter by priority (p0-p4)")
	listCmd.Flags().StringP("assignee", "a", "", "Filter by assignee")
	listCmd.Flags().StringSliceP("label", "l", []string{}, "Filter by labels (all must match)")
	listCmd.Flags().IntP("limit", "n", 0, "Maximum number of issues")
	listCmd.Flags().Bool("all", false, "Include deleted issues")

	readyCmd.Flags().IntP("limit", "n", 10, "Maximum number of issues")

	searchCmd.Flags().IntP("limit", "n", 0, "Maximum number of results")
	searchCmd.Flags().Bool("all", false, "Include deleted issues")

	rootCmd.AddCommand(showCmd, listCmd, readyCmd, searchCmd)
}
