package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFilePreservesMode(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	require.NoError(t, os.WriteFile(src, []byte("\x00\x01payload"), 0o750))

	dst := filepath.Join(dir, "dst")
	require.NoError(t, CopyFile(src, dst))

	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, []byte("\x00\x01payload"), data)

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o750), info.Mode().Perm())

	assert.Error(t, CopyFile(src, dst), "existing destination must not be overwritten")
}

func TestCopyTreeSkipsAtEveryDepth(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "sub", ".hidden_dir"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "a"), []byte("a"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, ".lock"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", "b"), []byte("b"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", ".c"), []byte("c"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(src, "sub", ".hidden_dir", "d"), []byte("d"), 0o644))

	dst := filepath.Join(t.TempDir(), "copy")
	n, err := CopyTree(src, dst, func(name string) bool { return strings.HasPrefix(name, ".") })
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	assert.FileExists(t, filepath.Join(dst, "a"))
	assert.FileExists(t, filepath.Join(dst, "sub", "b"))
	assert.NoFileExists(t, filepath.Join(dst, ".lock"))
	assert.NoFileExists(t, filepath.Join(dst, "sub", ".c"))
	assert.NoDirExists(t, filepath.Join(dst, "sub", ".hidden_dir"))
}

func TestCopyTreeRequiresFreshDestination(t *testing.T) {
	src := t.TempDir()
	_, err := CopyTree(src, t.TempDir(), nil)
	assert.Error(t, err)

	_, err = CopyTree(filepath.Join(src, "missing"), filepath.Join(t.TempDir(), "x"), nil)
	assert.Error(t, err)
}

func TestTarGzRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(src, "seed"), []byte("seed"), 0o644))

	archive := filepath.Join(t.TempDir(), "queue.tar.gz")
	require.NoError(t, CompressTarGz(src, archive))

	out := t.TempDir()
	require.NoError(t, UnpackTarGz(archive, out))
	data, err := os.ReadFile(filepath.Join(out, "seed"))
	require.NoError(t, err)
	assert.Equal(t, "seed", string(data))
}

func TestCopyTreeFollowsSymlinks(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "queue")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "store", "dir"), 0o755))
	require.NoError(t, os.Mkdir(src, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "store", "blob"), []byte("blob"), 0o640))
	require.NoError(t, os.WriteFile(filepath.Join(root, "store", "dir", "inner"), []byte("inner"), 0o644))
	require.NoError(t, os.Symlink("../store/blob", filepath.Join(src, "id_1")))
	require.NoError(t, os.Symlink("../store/dir", filepath.Join(src, "linked")))
	require.NoError(t, os.Symlink("../store/missing", filepath.Join(src, "dangling")))
	require.NoError(t, os.Symlink(".", filepath.Join(src, "loop")))

	dst := filepath.Join(t.TempDir(), "copy")
	n, err := CopyTree(src, dst, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	info, err := os.Lstat(filepath.Join(dst, "id_1"))
	require.NoError(t, err)
	assert.True(t, info.Mode().IsRegular())
	assert.Equal(t, os.FileMode(0o640), info.Mode().Perm())

	data, err := os.ReadFile(filepath.Join(dst, "linked", "inner"))
	require.NoError(t, err)
	assert.Equal(t, "inner", string(data))

	_, err = os.Lstat(filepath.Join(dst, "dangling"))
	assert.True(t, os.IsNotExist(err))
}
