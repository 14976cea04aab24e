// Package testutil provides testing utilities for atkrun tests: an in-process
// fake bridge and small filesystem helpers.
package testutil

import (
	"os"
	"path/filepath"
	"testing"
)

// WriteFiles creates files under dir. The files map contains relative paths
// to file contents; parent directories are created as needed.
func WriteFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()

	for path, content := range files {
		fullPath := filepath.Join(dir, path)
		if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
			t.Fatalf("failed to create directory for %s: %v", path, err)
		}
		if err := os.WriteFile(fullPath, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write file %s: %v", path, err)
		}
	}
}

// SetupBatchDir creates a temporary directory holding the given files and
// returns its path.
func SetupBatchDir(t *testing.T, files map[string]string) string {
	t.Helper()

	dir := t.TempDir()
	WriteFiles(t, dir, files)
	return dir
}

// IntPtr returns a pointer to v, for optional int fields such as waitMs.
func IntPtr(v int) *int {
	return &v
}
