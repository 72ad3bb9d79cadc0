package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/config"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/engine"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize bd in the current directory",
	Long: `Initialize bd in the current directory by creating a .beads/ directory
with the database, metadata.json, config.yaml and .gitignore.

Running init again is safe: existing files are left alone.`,
	Run: func(cmd *cobra.Command, _ []string) {
		prefix, _ := cmd.Flags().GetString("prefix")
		quiet, _ := cmd.Flags().GetBool("quiet")

		dir := projectDir
		if dir == "" {
			cwd, err := os.Getwd()
			if err != nil {
				fatal(fmt.Errorf("failed to get current directory: %w", err))
			}
			dir = cwd
		}

		// flag > config > directory name
		if prefix == "" {
			prefix = config.GetString("issue-prefix")
		}
		if prefix == "" {
			prefix = derivePrefix(dir)
		}
		prefix = strings.TrimRight(prefix, "-")

		result, err := engine.Init(rootCtx, dir, prefix)
		if err != nil {
			fatal(err)
		}

		if jsonOutput {
			outputJSON(result)
			return
		}
		if quiet {
			return
		}
		green := color.New(color.FgGreen).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		fmt.Printf("\n%s bd initialized successfully!\n\n", green("✓"))
		fmt.Printf("  Database: %s\n", cyan(result.DatabasePath))
		fmt.Printf("  Issue prefix: %s\n", cyan(result.Prefix))
		fmt.Printf("  Issues will be named: %s\n\n", cyan(result.Prefix+"-<hash> (e.g., "+result.Prefix+"-a3f2)"))
		fmt.Printf("Run %s to get started.\n\n", cyan("bd create --title \"First issue\""))
	},
}

// derivePrefix turns a directory name into a valid issue prefix.
func derivePrefix(dir string) string {
	name := strings.ToLower(filepath.Base(dir))
	var sb strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		case r == '_' || r == '-' || r == '.' || r == ' ':
			if sb.Len() > 0 {
				sb.WriteByte('_')
			}
		}
	}
	prefix := strings.TrimRight(sb.String(), "_")
	if prefix == "" {
		return "bd"
	}
	return prefix
}

func init() {
	initCmd.Flags().StringP("prefix", "p", "", "Issue prefix (default: current directory name)")
	initCmd.Flags().BoolP("quiet", "q", false, "Suppress output")
	rootCmd.AddCommand(initCmd)
}
