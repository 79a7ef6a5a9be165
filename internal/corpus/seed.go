package corpus

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	DefaultSeedName    = "default_seed"
	defaultSeedContent = "hi"
)

// EnsureSeed creates dir if needed and drops a single seed into it when it
// has no entries, since some engines refuse to start on an empty corpus.
// It reports whether a seed was written.
func EnsureSeed(dir string) (bool, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create corpus dir: %w", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return false, fmt.Errorf("failed to read corpus dir: %w", err)
	}
	if len(entries) > 0 {
		return false, nil
	}

	if err := os.WriteFile(filepath.Join(dir, DefaultSeedName), []byte(defaultSeedContent), 0o644); err != nil {
		return false, fmt.Errorf("failed to write default seed: %w", err)
	}
	return true, nil
}
