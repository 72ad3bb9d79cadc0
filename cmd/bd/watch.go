package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/config"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/debug"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-import the interchange file whenever it changes",
	Long: `Watch .beads/issues.jsonl and import it after each change settles.

Changes are debounced (watch.debounce in config.yaml, default 500ms) so a
burst of writes from git checkout or pull triggers a single import.
With --sync-interval, a full sync also runs on that schedule.
Stops on Ctrl-C.`,
	Run: func(cmd *cobra.Command, _ []string) {
		interval, _ := cmd.Flags().GetDuration("sync-interval")

		ctx, stop := signal.NotifyContext(rootCtx, os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := runWatch(ctx, interval); err != nil {
			fatal(err)
		}
	},
}

func runWatch(ctx context.Context, interval time.Duration) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	// Watch the directory, not the file: atomic renames replace the inode.
	jsonlPath := eng.JSONLPath()
	if err := watcher.Add(filepath.Dir(jsonlPath)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", filepath.Dir(jsonlPath), err)
	}

	delay := config.GetDuration("watch.debounce")
	if delay <= 0 {
		delay = 500 * time.Millisecond
	}
	reimport := newDebouncer(delay, func() {
		result, err := eng.Import(ctx, "", false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: import failed: %v\n", err)
			return
		}
		if result.Created+result.Updated+result.Conflicts > 0 {
			printImportResult(result, false)
		}
	})
	defer reimport.Stop()

	var tick <-chan time.Time
	if interval > 0 {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	fmt.Printf("Watching %s (Ctrl-C to stop)\n", jsonlPath)
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if isInterchangeEvent(event, jsonlPath) {
				debug.Logf("watch: %s %s\n", event.Op, event.Name)
				reimport.Trigger()
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(os.Stderr, "Warning: watcher error: %v\n", err)

		case <-tick:
			result, err := eng.Sync(ctx)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Warning: sync failed: %v\n", err)
				continue
			}
			if result.Skipped {
				debug.Logf("watch: sync skipped: %s\n", result.SkipReason)
			}
		}
	}
}

// isInterchangeEvent reports whether event changed the file at path.
// Chmod-only events are ignored.
func isInterchangeEvent(event fsnotify.Event, path string) bool {
	if filepath.Base(event.Name) != filepath.Base(path) {
		return false
	}
	return event.Has(fsnotify.Create) || event.Has(fsnotify.Write) || event.Has(fsnotify.Rename)
}

// debouncer runs fn once after Trigger stops being called for delay.
type debouncer struct {
	mu    sync.Mutex
	delay time.Duration
	timer *time.Timer
	fn    func()
}

func newDebouncer(delay time.Duration, fn func()) *debouncer {
	return &debouncer{delay: delay, fn: fn}
}

// Trigger (re)starts the countdown.
func (d *debouncer) Trigger() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.delay, d.fn)
}

// Stop cancels a pending run.
func (d *debouncer) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.timer != nil {
		d.timer.Stop()
		d.timer = nil
	}
}

func init() {
	watchCmd.Flags().Duration("sync-interval", 0, "Also run a full sync at this interval (0 disables)")
	rootCmd.AddCommand(watchCmd)
}
