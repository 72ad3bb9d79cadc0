package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var labelCmd = &cobra.Command{
	Use:   "label",
	Short: "Manage issue labels",
}

var labelAddCmd = &cobra.Command{
	Use:   "add <id> <label...>",
	Short: "Add labels to an issue",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveID(args[0])
		for _, label := range args[1:] {
			if err := eng.AddLabel(rootCtx, id, label, actor); err != nil {
				fatal(err)
			}
		}
		printLabels(id, "Added", args[1:])
	},
}

var labelRemoveCmd = &cobra.Command{
	Use:   "remove <id> <label...>",
	Short: "Remove labels from an issue",
	Args:  cobra.MinimumNArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveID(args[0])
		for _, label := range args[1:] {
			if err := eng.RemoveLabel(rootCtx, id, label, actor); err != nil {
				fatal(err)
			}
		}
		printLabels(id, "Removed", args[1:])
	},
}

func printLabels(id, verb string, labels []string) {
	issue, err := eng.GetIssue(rootCtx, id)
	if err != nil {
		fatal(err)
	}
	if jsonOutput {
		outputJSON(map[string]interface{}{"id": id, "labels": issue.Labels})
		return
	}
	fmt.Printf("✓ %s %v on %s (now: %v)\n", verb, labels, id, issue.Labels)
}

func init() {
	labelCmd.AddCommand(labelAddCmd, labelRemoveCmd)
	rootCmd.AddCommand(labelCmd)
}
