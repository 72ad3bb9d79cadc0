//go:build bench

package sqlite

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"sync"
	"testing"
	"time"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/storage"
	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/testutil/fixtures"
)

var (
	profileOnce   sync.Once
	profileFile   *os.File
	benchCacheDir = filepath.Join(os.TempDir(), "beads-bench-cache")
)

// startBenchmarkProfiling starts CPU profiling once per test process and
// writes bench-cpu-<timestamp>.prof in the current directory.
func startBenchmarkProfiling(b *testing.B) {
	b.Helper()
	profileOnce.Do(func() {
		profilePath := fmt.Sprintf("bench-cpu-%s.prof", time.Now().Format("2006-01-02-150405"))
		f, err := os.Create(profilePath)
		if err != nil {
			b.Logf("Warning: failed to create CPU profile: %v", err)
			return
		}
		profileFile = f
		if err := pprof.StartCPUProfile(f); err != nil {
			b.Logf("Warning: failed to start CPU profiling: %v", err)
			f.Close()
			return
		}
		b.Cleanup(func() {
			pprof.StopCPUProfile()
			profileFile.Close()
			b.Logf("CPU profile saved: %s", profilePath)
		})
	})
}

// getCachedOrGenerateDB returns the path of a cached dataset, generating it
// with generateFn the first time. Generating 10K issues takes minutes.
func getCachedOrGenerateDB(b *testing.B, cacheKey string, generateFn func(context.Context, storage.Storage) error) string {
	b.Helper()
	if err := os.MkdirAll(benchCacheDir, 0o755); err != nil {
		b.Fatalf("Failed to create benchmark cache directory: %v", err)
	}
	dbPath := filepath.Join(benchCacheDir, cacheKey+".db")
	if _, err := os.Stat(dbPath); err == nil {
		return dbPath
	}

	b.Logf("Generating benchmark database %s (one-time)", dbPath)
	ctx := context.Background()
	store, err := New(ctx, dbPath)
	if err != nil {
		b.Fatalf("Failed to create storage: %v", err)
	}
	if err := store.SetConfig(ctx, "issue_prefix", "bd"); err != nil {
		store.Close()
		b.Fatalf("Failed to set issue_prefix: %v", err)
	}
	if err := generateFn(ctx, store); err != nil {
		store.Close()
		os.Remove(dbPath)
		b.Fatalf("Failed to generate dataset: %v", err)
	}
	if err := store.CheckpointWAL(ctx); err != nil {
		b.Logf("Warning: checkpoint failed: %v", err)
	}
	store.Close()
	return dbPath
}

func copyFile(src, dst string) error {
	srcFile, err := os.Open(src)
	if err != nil {
		return err
	}
	defer srcFile.Close()

	dstFile, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer dstFile.Close()

	if _, err := io.Copy(dstFile, srcFile); err != nil {
		return err
	}
	return dstFile.Sync()
}

// openCachedCopy copies a cached dataset so benchmarks may mutate it.
func openCachedCopy(b *testing.B, cacheKey string, generateFn func(context.Context, storage.Storage) error) *SQLiteStorage {
	b.Helper()
	startBenchmarkProfiling(b)

	cachedPath := getCachedOrGenerateDB(b, cacheKey, generateFn)
	tmpPath := filepath.Join(b.TempDir(), cacheKey+".db")
	if err := copyFile(cachedPath, tmpPath); err != nil {
		b.Fatalf("Failed to copy cached database: %v", err)
	}
	store, err := New(context.Background(), tmpPath)
	if err != nil {
		b.Fatalf("Failed to open database: %v", err)
	}
	b.Cleanup(func() { store.Close() })
	return store
}

// setupLargeBenchDB opens a copy of the cached 10K issue dataset.
func setupLargeBenchDB(b *testing.B) *SQLiteStorage {
	return openCachedCopy(b, "large", fixtures.LargeSQLite)
}

// setupLargeFromJSONL opens a copy of the 10K dataset built through the
// export and import path.
func setupLargeFromJSONL(b *testing.B) *SQLiteStorage {
	return openCachedCopy(b, "large-jsonl", func(ctx context.Context, store storage.Storage) error {
		return fixtures.LargeFromJSONL(ctx, store, b.TempDir())
	})
}

// setupBenchDB opens an empty store for benchmarks that build their own graph.
func setupBenchDB(b *testing.B) *SQLiteStorage {
	b.Helper()
	ctx := context.Background()
	store, err := New(ctx, filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatalf("Failed to create storage: %v", err)
	}
	b.Cleanup(func() { store.Close() })
	if err := store.SetConfig(ctx, "issue_prefix", "bd"); err != nil {
		b.Fatalf("Failed to set issue_prefix: %v", err)
	}
	return store
}
