package phasestate

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	return NewFileStore(filepath.Join(t.TempDir(), "phase_counter"), zap.NewNop())
}

func TestReadAbsentIsZero(t *testing.T) {
	assert.Equal(t, 0, newStore(t).Read())
}

func TestWriteThenRead(t *testing.T) {
	s := newStore(t)
	for _, n := range []int{0, 1, 7, 1234} {
		require.NoError(t, s.Write(n))
		assert.Equal(t, n, s.Read())
	}

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestReadGarbageIsZero(t *testing.T) {
	for name, content := range map[string]string{
		"empty":    "",
		"text":     "three",
		"negative": "-4",
		"float":    "1.5",
	} {
		t.Run(name, func(t *testing.T) {
			s := newStore(t)
			require.NoError(t, os.WriteFile(s.Path(), []byte(content), 0o644))
			assert.Equal(t, 0, s.Read())
		})
	}
}

func TestReadToleratesWhitespace(t *testing.T) {
	s := newStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(" 5\n"), 0o644))
	assert.Equal(t, 5, s.Read())
}

func TestWriteRejectsNegative(t *testing.T) {
	s := newStore(t)
	assert.Error(t, s.Write(-1))
	assert.NoFileExists(t, s.Path())
}

func TestWriteFailsInMissingDir(t *testing.T) {
	s := NewFileStore(filepath.Join(t.TempDir(), "missing", "counter"), zap.NewNop())
	assert.Error(t, s.Write(1))
}
