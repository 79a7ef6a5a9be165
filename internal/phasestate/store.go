// Package phasestate persists the index of the phase a session is in.
package phasestate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Store is read by everyone and written only by the scheduler.
type Store interface {
	Read() int
	Write(phase int) error
}

type FileStore struct {
	path   string
	logger *zap.Logger
}

func NewFileStore(path string, logger *zap.Logger) *FileStore {
	return &FileStore{path: path, logger: logger}
}

func (s *FileStore) Path() string {
	return s.path
}

// Read returns the persisted phase index. Anything that is not a
// non-negative integer counts as phase 0.
func (s *FileStore) Read() int {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("Failed to read phase counter, assuming phase 0", zap.String("path", s.path), zap.Error(err))
		}
		return 0
	}

	phase, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || phase < 0 {
		s.logger.Warn("Invalid phase counter, assuming phase 0", zap.String("path", s.path), zap.ByteString("content", data))
		return 0
	}
	return phase
}

// Write replaces the persisted index. Readers see either the old or the
// new value, never a torn write.
func (s *FileStore) Write(phase int) error {
	if phase < 0 {
		return fmt.Errorf("invalid phase counter %d", phase)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temp counter file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(strconv.Itoa(phase)); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write phase counter: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync phase counter: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close phase counter: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("failed to chmod phase counter: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace phase counter: %w", err)
	}
	return nil
}
