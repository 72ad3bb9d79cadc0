package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var commentCmd = &cobra.Command{
	Use:   "comment <id> [text]",
	Short: "Add a comment to an issue",
	Long:  `Add a comment to an issue. Text comes from the arguments or, with --file, from a file ("-" reads stdin).`,
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		id := resolveID(args[0])
		text := strings.Join(args[1:], " ")
		if file, _ := cmd.Flags().GetString("file"); file != "" {
			var data []byte
			var err error
			if file == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(file) // #nosec G304 - user-supplied comment file
			}
			if err != nil {
				fatal(fmt.Errorf("failed to read comment: %w", err))
			}
			text = strings.TrimRight(string(data), "\n")
		}
		if strings.TrimSpace(text) == "" {
			fmt.Fprintf(os.Stderr, "Error: comment text required\n")
			os.Exit(1)
		}
		c, err := eng.AddComment(rootCtx, id, actor, text)
		if err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(c)
			return
		}
		fmt.Printf("✓ Added comment %s to %s\n", shortID(c.ID), id)
	},
}

var commentDeleteCmd = &cobra.Command{
	Use:   "delete <comment-id>",
	Short: "Delete a comment",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := eng.DeleteComment(rootCtx, args[0]); err != nil {
			fatal(err)
		}
		if jsonOutput {
			outputJSON(map[string]string{"deleted": args[0]})
			return
		}
		fmt.Printf("✓ Deleted comment %s\n", args[0])
	},
}

func init() {
	commentCmd.Flags().StringP("file", "f", "", "Read comment text from file")
	commentCmd.AddCommand(commentDeleteCmd)
	rootCmd.AddCommand(commentCmd)
}
