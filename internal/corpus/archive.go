package corpus

import (
	"fmt"
	"os"
	"path/filepath"

	"switchfuzz/internal/layout"
	"switchfuzz/internal/utils"

	"go.uber.org/zap"
)

// Archiver keeps a tar.gz snapshot of the queue each phase ends with.
type Archiver struct {
	dir    string
	logger *zap.Logger
}

// NewArchiver returns nil when dir is empty, which disables archiving.
func NewArchiver(dir string, logger *zap.Logger) *Archiver {
	if dir == "" {
		return nil
	}
	return &Archiver{dir: dir, logger: logger}
}

// Archive packs queueDir into <dir>/<engine>_<phase>.tar.gz and returns the
// archive path. The queue is staged without reserved entries first.
func (a *Archiver) Archive(engine string, phase int, queueDir string) (string, error) {
	if err := os.MkdirAll(a.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create corpus archive dir: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "corpus-snapshot-*")
	if err != nil {
		return "", fmt.Errorf("failed to create snapshot dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	snapshot := filepath.Join(tmpDir, "queue")
	count, err := utils.CopyTree(queueDir, snapshot, reserved)
	if err != nil {
		return "", fmt.Errorf("failed to snapshot queue: %w", err)
	}

	archive := filepath.Join(a.dir, layout.PhaseDirName(engine, phase)+".tar.gz")
	if err := utils.CompressTarGz(snapshot, archive); err != nil {
		return "", err
	}

	a.logger.Info("Archived phase corpus",
		zap.String("engine", engine),
		zap.Int("phase", phase),
		zap.Int("seeds_count", count),
		zap.String("archive", archive))
	return archive, nil
}
