package store

import (
	"fmt"
	"os"
	"path/filepath"
)

// BookDir returns the on-disk directory of the policy book under datadir:
//
//	datadir/policies/
func BookDir(datadir string) string {
	return filepath.Join(datadir, "policies")
}

func ensureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", path, err)
	}
	return nil
}
