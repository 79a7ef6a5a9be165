package crash

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"switchfuzz/internal/types"
	"switchfuzz/pkg/watchdog"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newManager(t *testing.T) (*CrashManager, string) {
	t.Helper()
	archive := filepath.Join(t.TempDir(), "crashes")
	c := New(archive, 10*time.Millisecond, nil, watchdog.NewWatchDogFactory(zap.NewNop()), zap.NewNop())
	require.NoError(t, c.Start())
	return c, archive
}

// writeCrash renames into place the way engines publish finished crashes.
func writeCrash(t *testing.T, dir, name, content string) {
	t.Helper()
	tmp := filepath.Join(dir, "."+name+".tmp")
	require.NoError(t, os.WriteFile(tmp, []byte(content), 0o644))
	require.NoError(t, os.Rename(tmp, filepath.Join(dir, name)))
}

func TestIsCrashFile(t *testing.T) {
	assert.True(t, IsCrashFile("/o/crashes/id:000000,sig:11"))
	assert.True(t, IsCrashFile("/o/crashes/crash-da39a3ee"))
	assert.False(t, IsCrashFile("/o/crashes/README.txt"))
	assert.False(t, IsCrashFile("/o/crashes/.da39a3ee.metadata"))
}

func TestWatchArchivesDeduplicatedCrashes(t *testing.T) {
	c, archive := newManager(t)

	out := t.TempDir()
	crashDir := filepath.Join(out, "crashes")
	phase := &types.Phase{Session: "s", Index: 2, Engine: "libafl", OutputDir: out}

	ctx, cancel := context.WithCancel(context.Background())
	c.Watch(ctx, phase, crashDir)

	// created after the watch began polling
	require.NoError(t, os.Mkdir(crashDir, 0o755))
	writeCrash(t, crashDir, "crash-1", "boom")
	writeCrash(t, crashDir, "crash-2", "boom")
	writeCrash(t, crashDir, "crash-3", "bang")
	writeCrash(t, crashDir, ".crash-3.metadata", "meta")
	writeCrash(t, crashDir, "README.txt", "afl")

	require.Eventually(t, func() bool {
		files, err := c.Archived()
		return err == nil && len(files) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	c.Stop()

	files, err := c.Archived()
	require.NoError(t, err)
	assert.Len(t, files, 2)
	for _, f := range files {
		assert.Equal(t, filepath.Join(archive, "libafl_2"), filepath.Dir(f))
	}
}

func TestStopCollectsRemainingCrashes(t *testing.T) {
	c, _ := newManager(t)

	crashDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(crashDir, "crash-old"), []byte("old"), 0o644))

	c.Watch(context.Background(), &types.Phase{Index: 0, Engine: "storfuzz"}, crashDir)
	c.Stop()

	files, err := c.Archived()
	require.NoError(t, err)
	assert.Len(t, files, 1)
}

func TestWatchWithoutCrashDir(t *testing.T) {
	c, _ := newManager(t)

	ctx, cancel := context.WithCancel(context.Background())
	c.Watch(ctx, &types.Phase{Index: 1, Engine: "wingfuzz"}, filepath.Join(t.TempDir(), "never"))
	cancel()
	c.Stop()

	files, err := c.Archived()
	require.NoError(t, err)
	assert.Empty(t, files)
}
