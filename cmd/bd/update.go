package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/adapter"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

var updateCmd = &cobra.Command{
	Use:   "update <id>",
	Short: "Update issue fields",
	Long: `Update issue fields. Clearable fields (assignee, design, acceptance,
notes, external-ref, spec, estimate, metadata) are removed with --clear.`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		patch, err := patchFromFlags(cmd)
		if err != nil {
			fatal(err)
		}
		updated, err := eng.ApplyPatch(rootCtx, resolveID(args[0]), patch, actor)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(adapter.ToView(updated, nil))
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Updated issue: %s\n", green("✓"), updated.ID)
	},
}

// clearableFlags maps --clear names to the flag that sets the same field.
var clearableFlags = []string{"assignee", "design", "acceptance", "notes", "external-ref", "spec", "estimate", "metadata"}

// patchFromFlags builds a Patch from the flags the user changed.
func patchFromFlags(cmd *cobra.Command) (adapter.Patch, error) {
	var p adapter.Patch
	str := func(name string) *string {
		if !cmd.Flags().Changed(name) {
			return nil
		}
		v, _ := cmd.Flags().GetString(name)
		return &v
	}
	nullable := func(name string) adapter.Nullable[string] {
		if v := str(name); v != nil {
			return adapter.Set(*v)
		}
		return adapter.Nullable[string]{}
	}

	p.Title = str("title")
	p.Description = str("description")
	p.Type = str("type")
	p.Status = str("status")
	p.Priority = str("priority")
	if cmd.Flags().Changed("labels") {
		labels, _ := cmd.Flags().GetStringSlice("labels")
		p.Labels = &labels
	}
	p.Assignee = nullable("assignee")
	p.DesignNotes = nullable("design")
	p.AcceptanceCriteria = nullable("acceptance")
	p.WorkingNotes = nullable("notes")
	p.ExternalRef = nullable("external-ref")
	p.SpecID = nullable("spec")
	if cmd.Flags().Changed("estimate") {
		v, _ := cmd.Flags().GetInt("estimate")
		p.EstimateMinutes = adapter.Set(v)
	}
	if raw := str("metadata"); raw != nil {
		if !json.Valid([]byte(*raw)) {
			return p, types.NewValidationError("metadata", "metadata must be valid JSON")
		}
		p.Metadata = adapter.Set(json.RawMessage(*raw))
	}

	clears, _ := cmd.Flags().GetStringSlice("clear")
	for _, name := range clears {
		if cmd.Flags().Changed(name) {
			return p, types.NewValidationError(name, "cannot both set and clear")
		}
		switch name {
		case "assignee":
			p.Assignee = adapter.Clear[string]()
		case "design":
			p.DesignNotes = adapter.Clear[string]()
		case "acceptance":
			p.AcceptanceCriteria = adapter.Clear[string]()
		case "notes":
			p.WorkingNotes = adapter.Clear[string]()
		case "external-ref":
			p.ExternalRef = adapter.Clear[string]()
		case "spec":
			p.SpecID = adapter.Clear[string]()
		case "estimate":
			p.EstimateMinutes = adapter.Clear[int]()
		case "metadata":
			p.Metadata = adapter.Clear[json.RawMessage]()
		default:
			return p, types.NewValidationError("clear", fmt.Sprintf("%q cannot be cleared (one of %v)", name, clearableFlags))
		}
	}
	return p, nil
}

var closeCmd = &cobra.Command{
	Use:   "close <id...>",
	Short: "Close one or more issues",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatusChange(args, "Closed", eng.CloseIssue)
	},
}

var reopenCmd = &cobra.Command{
	Use:   "reopen <id...>",
	Short: "Reopen closed issues",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runStatusChange(args, "Reopened", eng.ReopenIssue)
	},
}

func runStatusChange(args []string, verb string, change func(ctx context.Context, id, actor string) (*types.Issue, error)) {
	var changed []*types.Issue
	for _, arg := range args {
		issue, err := change(rootCtx, resolveID(arg), actor)
		if err != nil {
			fatal(err)
		}
		changed = append(changed, issue)
	}
	if jsonOutput {
		outputJSON(adapter.ToViews(changed))
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	for _, issue := range changed {
		fmt.Printf("%s %s %s: %s\n", green("✓"), verb, issue.ID, issue.Title)
	}
}

var deleteCmd = &cobra.Command{
	Use:   "delete <id...>",
	Short: "Delete issues (tombstone by default)",
	Long: `Delete issues. By default the issue is kept as a tombstone so the
deletion reaches other clones on the next sync. --hard removes the row,
its comments, labels and every dependency edge touching it.`,
	Args: cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		hard, _ := cmd.Flags().GetBool("hard")
		var deleted []string
		for _, arg := range args {
			id := resolveID(arg)
			if err := eng.DeleteIssue(rootCtx, id, hard); err != nil {
				fatal(err)
			}
			deleted = append(deleted, id)
		}
		if jsonOutput {
			outputJSON(map[string]interface{}{"deleted": deleted, "hard": hard})
			return
		}
		for _, id := range deleted {
			fmt.Printf("✓ Deleted %s\n", id)
		}
	},
}

func init() {
	updateCmd.Flags().String("title", "", "New title")
	updateCmd.Flags().StringP("description", "d", "", "New description")
	updateCmd.Flags().StringP("type", "t", "", "New type")
	updateCmd.Flags().StringP("status", "s", "", "New status")
	updateCmd.Flags().StringP("priority", "p", "", "New priority (p0-p4)")
	updateCmd.Flags().StringSliceP("labels", "l", nil, "Replace labels")
	updateCmd.Flags().StringP("assignee", "a", "", "Assignee")
	updateCmd.Flags().String("design", "", "Design notes")
	updateCmd.Flags().String("acceptance", "", "Acceptance criteria")
	updateCmd.Flags().String("notes", "", "Working notes")
	updateCmd.Flags().String("external-ref", "", "External reference")
	updateCmd.Flags().String("spec", "", "Spec document id")
	updateCmd.Flags().Int("estimate", 0, "Estimate in minutes")
	updateCmd.Flags().String("metadata", "", "Metadata as a JSON document")
	updateCmd.Flags().StringSlice("clear", nil, "Fields to clear (assignee, design, acceptance, notes, external-ref, spec, estimate, metadata)")

	deleteCmd.Flags().Bool("hard", false, "Remove the issue entirely instead of leaving a tombstone")

	rootCmd.AddCommand(updateCmd, closeCmd, reopenCmd, deleteCmd)
}
