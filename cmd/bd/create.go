package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/adapter"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

var createCmd = &cobra.Command{
	Use:     "create [title]",
	Aliases: []string{"new"},
	Short:   "Create a new issue",
	Args:    cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		titleFlag, _ := cmd.Flags().GetString("title")
		var title string
		switch {
		case len(args) > 0 && titleFlag != "" && args[0] != titleFlag:
			fmt.Fprintf(os.Stderr, "Error: cannot specify different titles as both positional argument and --title flag\n")
			os.Exit(1)
		case len(args) > 0:
			title = args[0]
		case titleFlag != "":
			title = titleFlag
		default:
			fmt.Fprintf(os.Stderr, "Error: title required\n")
			os.Exit(1)
		}

		priorityStr, _ := cmd.Flags().GetString("priority")
		priority, err := adapter.ParsePriority(priorityStr)
		if err != nil {
			fatal(err)
		}

		description, _ := cmd.Flags().GetString("description")
		issueType, _ := cmd.Flags().GetString("type")
		assignee, _ := cmd.Flags().GetString("assignee")
		labels, _ := cmd.Flags().GetStringSlice("labels")
		design, _ := cmd.Flags().GetString("design")
		acceptance, _ := cmd.Flags().GetString("acceptance")
		notes, _ := cmd.Flags().GetString("notes")
		externalRef, _ := cmd.Flags().GetString("external-ref")
		specID, _ := cmd.Flags().GetString("spec")
		parentID, _ := cmd.Flags().GetString("parent")
		deps, _ := cmd.Flags().GetStringSlice("deps")

		issue := &types.Issue{
			Title:              title,
			Description:        description,
			IssueType:          types.IssueType(issueType),
			Status:             types.StatusOpen,
			Priority:           priority,
			Labels:             labels,
			Assignee:           optionalString(assignee),
			DesignNotes:        optionalString(design),
			AcceptanceCriteria: optionalString(acceptance),
			WorkingNotes:       optionalString(notes),
			ExternalRef:        optionalString(externalRef),
			SpecID:             optionalString(specID),
		}
		if cmd.Flags().Changed("estimate") {
			estimate, _ := cmd.Flags().GetInt("estimate")
			issue.EstimateMinutes = &estimate
		}
		for _, spec := range deps {
			dep, err := parseDepSpec(spec)
			if err != nil {
				fatal(err)
			}
			dep.DependsOnID = resolveID(dep.DependsOnID)
			issue.Dependencies = append(issue.Dependencies, dep)
		}
		if parentID != "" {
			parentID = resolveID(parentID)
		}

		created, err := eng.CreateIssue(rootCtx, issue, parentID, actor)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(adapter.ToView(created, nil))
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Created issue: %s\n", green("✓"), created.ID)
		fmt.Printf("  Title: %s\n", created.Title)
		fmt.Printf("  Priority: %s\n", adapter.FormatPriority(created.Priority))
		fmt.Printf("  Status: %s\n", created.Status)
	},
}

// parseDepSpec parses "id" or "type:id" into a dependency on id.
func parseDepSpec(spec string) (*types.Dependency, error) {
	spec = strings.TrimSpace(spec)
	depType := types.DepBlocks
	target := spec
	if i := strings.Index(spec, ":"); i >= 0 {
		depType = types.DependencyType(strings.TrimSpace(spec[:i]))
		target = strings.TrimSpace(spec[i+1:])
	}
	if target == "" {
		return nil, types.NewValidationError("deps", fmt.Sprintf("missing issue id in %q", spec))
	}
	if !depType.IsValid() {
		return nil, types.NewValidationError("deps", fmt.Sprintf("invalid dependency type %q", depType))
	}
	return &types.Dependency{DependsOnID: target, Type: depType}, nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func init() {
	createCmd.Flags().String("title", "", "Issue title (alternative to positional argument)")
	createCmd.Flags().StringP("description", "d", "", "Issue description")
	createCmd.Flags().String("design", "", "Design notes")
	createCmd.Flags().String("acceptance", "", "Acceptance criteria")
	createCmd.Flags().String("notes", "", "Working notes")
	createCmd.Flags().StringP("priority", "p", "2", "Priority (0-4 or p0-p4, 0=highest)")
	createCmd.Flags().StringP("type", "t", "task", "Issue type (bug|feature|task|epic|chore)")
	createCmd.Flags().StringP("assignee", "a", "", "Assignee")
	createCmd.Flags().StringSliceP("labels", "l", []string{}, "Labels (comma-separated)")
	createCmd.Flags().String("external-ref", "", "External reference (e.g., 'gh-9', 'jira-ABC')")
	createCmd.Flags().String("spec", "", "Spec document id")
	createCmd.Flags().Int("estimate", 0, "Estimate in minutes")
	createCmd.Flags().String("parent", "", "Parent issue id; the new issue gets the next child id")
	createCmd.Flags().StringSlice("deps", []string{}, "Dependencies in format 'type:id' or 'id' (e.g., 'related:bd-20,bd-15')")
	rootCmd.AddCommand(createCmd)
}
