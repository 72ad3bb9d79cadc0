package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

var depCmd = &cobra.Command{
	Use:   "dep",
	Short: "Manage dependencies",
}

var depAddCmd = &cobra.Command{
	Use:   "add <issue> <depends-on>",
	Short: "Record that issue depends on another",
	Long: `Record that <issue> depends on <depends-on>. With the default type
"blocks", <issue> stays out of 'bd ready' until <depends-on> is closed.`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		depType, _ := cmd.Flags().GetString("type")
		dep := &types.Dependency{
			IssueID:     resolveID(args[0]),
			DependsOnID: resolveID(args[1]),
			Type:        types.DependencyType(depType),
		}
		if err := eng.AddDependency(rootCtx, dep, actor); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(dep)
			return
		}
		fmt.Printf("✓ Added dependency: %s depends on %s (%s)\n", dep.IssueID, dep.DependsOnID, dep.Type)
	},
}

var depRemoveCmd = &cobra.Command{
	Use:   "remove <issue> <depends-on>",
	Short: "Remove a dependency",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		from, to := resolveID(args[0]), resolveID(args[1])
		if err := eng.RemoveDependency(rootCtx, from, to, actor); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"issue_id": from, "depends_on_id": to})
			return
		}
		fmt.Printf("✓ Removed dependency: %s no longer depends on %s\n", from, to)
	},
}

func init() {
	depAddCmd.Flags().StringP("type", "t", string(types.DepBlocks), "Dependency type (blocks|parent-child|related|relates-to|duplicates|supersedes|caused-by|discovered-from)")
	depCmd.AddCommand(depAddCmd, depRemoveCmd)
	rootCmd.AddCommand(depCmd)
}
