package migrate

import (
	"bytes"
	"crypto/sha256"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/w3dev33/beads-task-issue-tracker-sub001/internal/types"
)

// copyAttachments mirrors every regular file under src into dst, byte for
// byte. Files already present with the same size and hash are skipped.
func copyAttachments(src, dst string) (copied, skipped int, err error) {
	if _, statErr := os.Stat(src); os.IsNotExist(statErr) {
		return 0, 0, nil
	}

	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return &types.IoError{Op: "walk", Path: path, Err: walkErr}
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dst, rel)

		same, err := sameFile(path, target)
		if err != nil {
			return err
		}
		if same {
			skipped++
			return nil
		}
		if err := copyFile(path, target); err != nil {
			return err
		}
		copied++
		return nil
	})
	return copied, skipped, err
}

func sameFile(a, b string) (bool, error) {
	ai, err := os.Stat(a)
	if err != nil {
		return false, &types.IoError{Op: "stat", Path: a, Err: err}
	}
	bi, err := os.Stat(b)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, &types.IoError{Op: "stat", Path: b, Err: err}
	}
	if ai.Size() != bi.Size() {
		return false, nil
	}
	ah, err := fileHash(a)
	if err != nil {
		return false, err
	}
	bh, err := fileHash(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(ah, bh), nil
}

func fileHash(path string) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 - attachment under a migration root
	if err != nil {
		return nil, &types.IoError{Op: "open", Path: path, Err: err}
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return nil, &types.IoError{Op: "read", Path: path, Err: err}
	}
	return h.Sum(nil), nil
}

// copyFile writes through a temporary sibling and renames it into place.
func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - attachment under a migration root
	if err != nil {
		return &types.IoError{Op: "open", Path: src, Err: err}
	}
	defer in.Close()

	if err := os.MkdirAll(filepath.Dir(dst), 0o750); err != nil {
		return &types.IoError{Op: "mkdir", Path: filepath.Dir(dst), Err: err}
	}
	tmp, err := os.CreateTemp(filepath.Dir(dst), filepath.Base(dst)+".tmp.*")
	if err != nil {
		return &types.IoError{Op: "create", Path: dst, Err: err}
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := io.Copy(tmp, in); err != nil {
		return &types.IoError{Op: "copy", Path: dst, Err: err}
	}
	if err := tmp.Sync(); err != nil {
		return &types.IoError{Op: "sync", Path: tmpPath, Err: err}
	}
	if err := tmp.Close(); err != nil {
		return &types.IoError{Op: "close", Path: tmpPath, Err: err}
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return &types.IoError{Op: "rename", Path: dst, Err: err}
	}
	return nil
}
