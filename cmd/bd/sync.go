package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/importer"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Synchronize issues with git remote",
	Long: `Synchronize issues with git remote in a single operation:
1. Export the database to JSONL
2. Commit the JSONL file
3. Pull from remote (rebase)
4. Import the merged JSONL, recording conflicts
5. Push local commits to remote

Calls inside the cooldown window (sync.cooldown) return immediately.
Use --flush-only to only export, --import-only to only import.`,
	Run: func(cmd *cobra.Command, _ []string) {
		flushOnly, _ := cmd.Flags().GetBool("flush-only")
		importOnly, _ := cmd.Flags().GetBool("import-only")

		switch {
		case flushOnly && importOnly:
			fmt.Fprintf(os.Stderr, "Error: --flush-only and --import-only are mutually exclusive\n")
			os.Exit(1)
		case flushOnly:
			result, err := eng.Export(rootCtx, "", false)
			if err != nil {
				fatal(err)
			}
			if jsonOutput {
				outputJSON(result)
				return
			}
			fmt.Printf("✓ Exported %d issues to %s\n", result.Exported, result.Path)
			return
		case importOnly:
			result, err := eng.Import(rootCtx, "", false)
			if err != nil {
				fatal(err)
			}
			printImportResult(result, false)
			return
		}

		result, err := eng.Sync(rootCtx)
		var syncErr *types.SyncError
		if err != nil && !(errors.As(err, &syncErr) && syncErr.Step == "push" && result != nil) {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(result)
			if err != nil {
				os.Exit(1)
			}
			return
		}
		if result.Skipped {
			fmt.Printf("Sync skipped: %s\n", result.SkipReason)
			return
		}
		if wt := result.WorkingTree; wt != nil && (wt.Created > 0 || wt.Updated > 0) {
			fmt.Printf("→ Merged checked-out file: %d created, %d updated\n", wt.Created, wt.Updated)
		}
		fmt.Printf("→ Exported %d issues\n", result.Exported)
		if result.Import != nil {
			printImportResult(result.Import, false)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Hint: local changes are imported; run 'bd sync' again once the remote is reachable\n")
			os.Exit(1)
		}
		if result.Pushed {
			fmt.Println("→ Pushed to remote")
		}
		green := color.New(color.FgGreen).SprintFunc()
		fmt.Printf("%s Sync complete\n", green("✓"))
	},
}

// printImportResult summarizes an import for humans, or as JSON.
func printImportResult(result *importer.Result, dryRun bool) {
	if jsonOutput {
		outputJSON(result)
		return
	}
	prefix := "→"
	if dryRun {
		prefix = "→ [DRY RUN]"
	}
	fmt.Printf("%s Import: %d created, %d updated, %d unchanged, %d stale, %d kept local\n",
		prefix, result.Created, result.Updated, result.Unchanged, result.Stale, result.KeptLocal)
	if result.CommentsAdded > 0 {
		fmt.Printf("  %d comments added\n", result.CommentsAdded)
	}
	yellow := color.New(color.FgYellow).SprintFunc()
	if result.Conflicts > 0 {
		fmt.Printf("%s %d new conflicts; review with 'bd conflicts'\n", yellow("⚠"), result.Conflicts)
	}
	for _, perr := range result.ParseErrors {
		fmt.Fprintf(os.Stderr, "%s skipped malformed line: %v\n", yellow("⚠"), perr)
	}
	for _, invalid := range result.Invalid {
		fmt.Fprintf(os.Stderr, "%s skipped invalid record %s\n", yellow("⚠"), invalid)
	}
	for _, dep := range result.SkippedDependencies {
		fmt.Fprintf(os.Stderr, "%s skipped dependency %s (unknown issue)\n", yellow("⚠"), dep)
	}
}

func init() {
	syncCmd.Flags().StringP("message", "m", "", "Commit message (default: sync.commit-message)")
	syncCmd.Flags().Bool("no-push", false, "Skip pushing to remote")
	syncCmd.Flags().Bool("flush-only", false, "Only export the database to JSONL")
	syncCmd.Flags().Bool("import-only", false, "Only import from JSONL")
	rootCmd.AddCommand(syncCmd)
}
