// Package filex holds small filesystem helpers for locating local state.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDataDir creates (if needed) a subdirectory of the current working
// directory for local state such as the database file, and returns its
// absolute path.
func EnsureDataDir(dirName string) (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("getwd: %w", err)
	}

	dir := filepath.Join(cwd, dirName)

	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}

	return dir, nil
}
