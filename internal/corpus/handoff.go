// Package corpus moves fuzzing corpora between phases.
package corpus

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"switchfuzz/internal/layout"
	"switchfuzz/internal/utils"

	"github.com/google/uuid"
)

// ReservedPrefix marks engine bookkeeping entries (lock files, metadata
// dirs) that never travel with the corpus.
const ReservedPrefix = "."

var ErrDestinationExists = errors.New("handoff destination already exists")

func reserved(name string) bool {
	return strings.HasPrefix(name, ReservedPrefix)
}

// Handoff copies every non-reserved entry of src into the new directory dst
// and returns the number of files copied. The tree is staged next to dst and
// renamed into place, so dst either does not exist or is complete.
func Handoff(src, dst string) (int, error) {
	if _, err := os.Lstat(dst); err == nil {
		return 0, fmt.Errorf("%w: %s", ErrDestinationExists, dst)
	} else if !errors.Is(err, os.ErrNotExist) {
		return 0, fmt.Errorf("failed to stat handoff destination: %w", err)
	}

	staging := layout.PartialDir(dst, uuid.New().String())
	count, err := utils.CopyTree(src, staging, reserved)
	if err != nil {
		os.RemoveAll(staging)
		return 0, fmt.Errorf("failed to copy corpus %s: %w", src, err)
	}

	if err := os.Rename(staging, dst); err != nil {
		os.RemoveAll(staging)
		return 0, fmt.Errorf("failed to move corpus into %s: %w", dst, err)
	}
	return count, nil
}

// RemoveStaging deletes leftovers of handoffs into dst that never finished.
func RemoveStaging(dst string) ([]string, error) {
	matches, err := filepath.Glob(layout.PartialGlob(dst))
	if err != nil {
		return nil, err
	}
	for _, m := range matches {
		if err := os.RemoveAll(m); err != nil {
			return nil, fmt.Errorf("failed to remove stale handoff %s: %w", m, err)
		}
	}
	return matches, nil
}
