package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import issues from JSONL format",
	Long: `Import issues from JSON Lines format (one JSON object per line).

Reads the project's interchange file by default, or use -i for another file.

Behavior:
  - New issues are created
  - Identical issues are left alone
  - Newer remote copies replace local copies that were not edited since the last sync
  - Issues edited on both sides are recorded as conflicts (see 'bd conflicts')
  - Malformed lines are skipped and reported
  - Use --dry-run to preview changes without applying them`,
	Run: func(cmd *cobra.Command, args []string) {
		input, _ := cmd.Flags().GetString("input")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		result, err := eng.Import(rootCtx, input, dryRun)
		if err != nil {
			fatal(err)
		}
		printImportResult(result, dryRun)
	},
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export issues to JSONL format",
	Long: `Export every issue, tombstones included, as JSON Lines sorted by id.

Writes the project's interchange file by default, or use -o for another file.
Refuses to replace a non-empty file with an empty export unless --force is set.`,
	Run: func(cmd *cobra.Command, args []string) {
		output, _ := cmd.Flags().GetString("output")
		force, _ := cmd.Flags().GetBool("force")

		result, err := eng.Export(rootCtx, output, force)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(result)
			return
		}
		fmt.Printf("✓ Exported %d issues to %s\n", result.Exported, result.Path)
	},
}

func init() {
	importCmd.Flags().StringP("input", "i", "", "Input file (default: .beads/issues.jsonl)")
	importCmd.Flags().Bool("dry-run", false, "Preview changes without applying them")

	exportCmd.Flags().StringP("output", "o", "", "Output file (default: .beads/issues.jsonl)")
	exportCmd.Flags().Bool("force", false, "Allow replacing a non-empty file with an empty export")

	rootCmd.AddCommand(importCmd, exportCmd)
}
