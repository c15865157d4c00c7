// Package pathutil finds config files and prepares directories.
package pathutil

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// EnsureDir expands path, makes it absolute and creates it if missing.
func EnsureDir(path string) (string, error) {
	expanded, err := Expand(path)
	if err != nil {
		return "", errors.Wrap(err, "failed to expand path")
	}
	absPath, err := filepath.Abs(expanded)
	if err != nil {
		return "", errors.Wrap(err, "failed to expand path")
	}

	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		if err := os.MkdirAll(absPath, 0750); err != nil {
			return "", errors.Wrap(err, "failed to create dir")
		}
	}

	return absPath, nil
}
