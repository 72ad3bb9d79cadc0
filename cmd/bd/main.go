package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/beads"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/config"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/engine"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/git"
)

var (
	dbPath     string
	actor      string
	jsonOutput bool

	projectDir string
	registry   *engine.Registry
	eng        *engine.Engine
	rootCtx    = context.Background()
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "Database path (default: auto-discover .beads/beads.db)")
	rootCmd.PersistentFlags().StringVar(&actor, "actor", "", "Actor name for audit trail (default: $BD_ACTOR or $USER)")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	rootCmd.Flags().BoolP("version", "v", false, "Print version information")
}

// noDbCommands never open a project.
var noDbCommands = []string{"bash", "completion", "fish", "help", "init", "powershell", "version", "zsh"}

var rootCmd = &cobra.Command{
	Use:   "bd",
	Short: "bd - Local-first issue tracker",
	Long:  `Issues chained together like beads. A local-first issue tracker that syncs through git.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("bd version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// Priority: flags > viper (config file + env vars) > defaults
		if err := config.Initialize(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
		}
		if !cmd.Flags().Changed("json") {
			jsonOutput = config.GetBool("json")
		}
		if !cmd.Flags().Changed("db") && dbPath == "" {
			dbPath = config.GetString("db")
		}
		if !cmd.Flags().Changed("actor") && actor == "" {
			actor = config.GetString("actor")
		}
		if actor == "" {
			if user := os.Getenv("USER"); user != "" {
				actor = user
			} else {
				actor = "unknown"
			}
		}
		if logFile := config.GetString("log.file"); logFile != "" {
			debug.SetLogFile(logFile, config.GetInt("log.max-size-mb"))
		}

		if slices.Contains(noDbCommands, cmd.Name()) {
			return
		}

		dir, err := resolveProjectDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			fmt.Fprintf(os.Stderr, "Hint: run 'bd init' to create a database in the current directory\n")
			fmt.Fprintf(os.Stderr, "      or set BEADS_DIR to point to your .beads directory\n")
			os.Exit(1)
		}
		projectDir = dir

		// Per-invocation sync flags override config for this run.
		if f := cmd.Flags().Lookup("no-push"); f != nil && f.Changed {
			config.Set("sync.no-push", f.Value.String() == "true")
		}
		if f := cmd.Flags().Lookup("message"); f != nil && f.Changed {
			config.Set("sync.commit-message", f.Value.String())
		}

		repo := git.New(projectDir)
		repo.Remote = config.GetString("sync.remote")
		registry = engine.NewRegistry(engine.Options{
			Git:           repo,
			Cooldown:      config.GetDuration("sync.cooldown"),
			CommitMessage: config.GetString("sync.commit-message"),
			NoPush:        config.GetBool("sync.no-push"),
		})
		eng, err = registry.Get(rootCtx, projectDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: failed to open project: %v\n", err)
			os.Exit(1)
		}
		debug.Logf("using project %s\n", projectDir)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if registry != nil {
			if err := registry.CloseAll(); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		_ = debug.Close()
	},
}

// resolveProjectDir finds the directory holding .beads, honouring --db.
func resolveProjectDir() (string, error) {
	if dbPath != "" {
		abs, err := filepath.Abs(dbPath)
		if err != nil {
			return "", err
		}
		beadsDir := filepath.Dir(abs)
		if filepath.Base(beadsDir) != beads.DirName {
			return "", fmt.Errorf("database %s is not inside a %s directory", dbPath, beads.DirName)
		}
		return filepath.Dir(beadsDir), nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	beadsDir := beads.FindBeadsDir(cwd)
	if beadsDir == "" {
		return "", fmt.Errorf("no beads database found")
	}
	return filepath.Dir(beadsDir), nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
