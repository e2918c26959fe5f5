package utils

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// WriteFileAtomic streams r into a temp file next to path and renames it into place.
// Parent directories are created. It returns the bytes written and their md5 hex digest.
// The destination is left untouched when anything fails.
func WriteFileAtomic(path string, r io.Reader) (int64, string, error) {
	dir := filepath.Dir(path)
	if err := EnsureDir(dir); err != nil {
		return 0, "", fmt.Errorf("create parent: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".bsync.tmp.*")
	if err != nil {
		return 0, "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	hasher := md5.New()
	n, err := io.Copy(io.MultiWriter(tmp, hasher), r)
	if err != nil {
		return 0, "", fmt.Errorf("write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		return 0, "", fmt.Errorf("sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		return 0, "", fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return 0, "", fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return n, hex.EncodeToString(hasher.Sum(nil)), nil
}
