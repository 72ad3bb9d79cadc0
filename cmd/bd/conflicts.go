package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/adapter"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts",
	Short: "List issues edited both locally and remotely",
	Run: func(cmd *cobra.Command, args []string) {
		conflicts, err := eng.ListConflicts(rootCtx)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(conflicts)
			return
		}
		if len(conflicts) == 0 {
			fmt.Println("No open conflicts.")
			return
		}
		yellow := color.New(color.FgYellow).SprintFunc()
		for _, c := range conflicts {
			fmt.Printf("%s %s on %s (recorded %s)\n", yellow("⚠"), c.ID, c.IssueID, c.CreatedAt.Local().Format("2006-01-02 15:04"))
			for _, line := range conflictDiff(c) {
				fmt.Printf("    %s\n", line)
			}
		}
		fmt.Printf("\nResolve with 'bd conflicts resolve <id> --keep local|remote' or 'bd conflicts dismiss <id>'\n")
	},
}

// conflictDiff lists the headline fields that differ between the two sides.
func conflictDiff(c *types.Conflict) []string {
	if c.Local == nil || c.Remote == nil {
		return nil
	}
	var out []string
	field := func(name, local, remote string) {
		if local != remote {
			out = append(out, fmt.Sprintf("%s: local %q, remote %q", name, local, remote))
		}
	}
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	field("title", c.Local.Title, c.Remote.Title)
	field("description", c.Local.Description, c.Remote.Description)
	field("status", string(c.Local.Status), string(c.Remote.Status))
	field("priority", adapter.FormatPriority(c.Local.Priority), adapter.FormatPriority(c.Remote.Priority))
	field("type", string(c.Local.IssueType), string(c.Remote.IssueType))
	field("assignee", deref(c.Local.Assignee), deref(c.Remote.Assignee))
	if len(out) == 0 {
		out = append(out, "labels, comments, dependencies or notes differ")
	}
	return out
}

var conflictsShowCmd = &cobra.Command{
	Use:   "show <conflict-id>",
	Short: "Show both sides of a conflict",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c, err := eng.GetConflict(rootCtx, args[0])
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(c)
			return
		}
		fmt.Printf("Conflict %s on %s\n", c.ID, c.IssueID)
		fmt.Println("\n--- local ---")
		printIssueDetails(adapter.ToView(c.Local, nil))
		fmt.Println("\n--- remote ---")
		printIssueDetails(adapter.ToView(c.Remote, nil))
	},
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve <conflict-id>",
	Short: "Resolve a conflict by keeping one side",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		keep, _ := cmd.Flags().GetString("keep")
		issue, err := eng.ResolveConflict(rootCtx, args[0], types.Resolution(keep), actor)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(adapter.ToView(issue, nil))
			return
		}
		fmt.Printf("✓ Resolved %s keeping %s copy of %s\n", args[0], keep, issue.ID)
	},
}

var conflictsDismissCmd = &cobra.Command{
	Use:   "dismiss <conflict-id>",
	Short: "Drop a conflict record without changing the issue",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := eng.DismissConflict(rootCtx, args[0]); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"dismissed": args[0]})
			return
		}
		fmt.Printf("✓ Dismissed %s\n", args[0])
	},
}

func init() {
	conflictsResolveCmd.Flags().String("keep", "", "Side to keep: local or remote")
	_ = conflictsResolveCmd.MarkFlagRequired("keep")
	conflictsCmd.AddCommand(conflictsShowCmd, conflictsResolveCmd, conflictsDismissCmd)
	rootCmd.AddCommand(conflictsCmd)
}
