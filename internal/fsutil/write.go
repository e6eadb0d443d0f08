// Package fsutil holds small file helpers shared by the persistent stores.
package fsutil

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
)

const (
	// FilePerms is the mode applied to every file written by the proxy.
	FilePerms = 0o644
	// DirPerms is the mode used when creating data directories.
	DirPerms = 0o755
)

// WriteFile replaces path with data in a single rename, so readers see either
// the old or the new content and never a partial file.
func WriteFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), DirPerms); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	// atomic.WriteFile leaves new files at 0600
	if err := os.Chmod(path, FilePerms); err != nil {
		return fmt.Errorf("failed to set file permissions: %w", err)
	}

	return nil
}
