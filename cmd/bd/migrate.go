package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/migrate"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Import issues from a legacy tracker export",
	Long: `Import issues and comments from a legacy JSONL export into this project.

Legacy statuses, types and priorities are mapped onto bd's vocabulary.
Running the migration again adds nothing: unchanged issues are left alone
and comments keep stable ids.

With --attachments, files under the given directory are copied into
.beads/attachments, skipping files that are already identical.`,
	Run: func(cmd *cobra.Command, _ []string) {
		from, _ := cmd.Flags().GetString("from")
		attachments, _ := cmd.Flags().GetString("attachments")
		dryRun, _ := cmd.Flags().GetBool("dry-run")

		result, err := eng.Migrate(rootCtx, migrate.Options{
			LegacyJSONL:    from,
			AttachmentsSrc: attachments,
			DryRun:         dryRun,
		})
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(result)
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		verb := "Migrated"
		if dryRun {
			verb = "Would migrate"
		}
		fmt.Printf("%s %s %d issues and %d comments\n", green("✓"), verb, result.Issues, result.Comments)
		if result.Import != nil && result.Import.Unchanged > 0 {
			fmt.Printf("  %d issues already up to date\n", result.Import.Unchanged)
		}
		if n := len(result.ParseErrors); n > 0 {
			fmt.Printf("  %d malformed records skipped\n", n)
		}
		if attachments != "" && !dryRun {
			fmt.Printf("  Attachments: %d copied, %d already present\n", result.AttachmentsCopied, result.AttachmentsSkipped)
		}
	},
}

func init() {
	migrateCmd.Flags().String("from", "", "Legacy JSONL export to import")
	migrateCmd.Flags().String("attachments", "", "Legacy attachments directory to copy")
	migrateCmd.Flags().Bool("dry-run", false, "Report what would be migrated without writing")
	_ = migrateCmd.MarkFlagRequired("from")
	rootCmd.AddCommand(migrateCmd)
}
