package watchdog

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestWatchDogForwardsCreatedFiles(t *testing.T) {
	dir := t.TempDir()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	notify := make(chan string, 8)
	dog, err := NewWatchDogFactory(zap.NewNop()).New(ctx, notify, func(path string) bool {
		return !strings.HasSuffix(path, "README.txt")
	})
	require.NoError(t, err)
	require.NoError(t, dog.AddDir(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "crash-1"), []byte("x"), 0o644))

	select {
	case path := <-notify:
		assert.Equal(t, "crash-1", filepath.Base(path))
	case <-time.After(5 * time.Second):
		t.Fatal("no notification")
	}

	cancel()
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-notify:
			return !ok
		default:
			return false
		}
	}, 5*time.Second, 10*time.Millisecond, "channel is closed once the context is done")
}

func TestAddMissingDir(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dog, err := NewWatchDogFactory(zap.NewNop()).New(ctx, make(chan string), nil)
	require.NoError(t, err)
	assert.Error(t, dog.AddDir(filepath.Join(t.TempDir(), "missing")))
}
