package utils

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// SkipFunc reports whether an entry of a tree copy must be left out. A
// skipped directory is not descended into.
type SkipFunc func(name string) bool

// CopyFile copies the bytes and permission bits of src into a new file dst.
// dst must not exist.
func CopyFile(src, dst string) (err error) {
	source, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer source.Close()

	info, err := source.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat source file: %w", err)
	}

	destination, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	defer func() {
		if cerr := destination.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close destination file: %w", cerr)
		}
	}()

	copied, err := io.Copy(destination, source)
	if err != nil {
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	if copied != info.Size() {
		return fmt.Errorf("incomplete copy of %s: expected %d bytes, got %d bytes", src, info.Size(), copied)
	}

	// umask may have masked the mode on create
	if err := destination.Chmod(info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to set mode of destination file: %w", err)
	}
	return nil
}

// CopyTree recreates the tree under src at dst, which must not exist yet.
// Regular files and directories are copied. Symlinks are followed and their
// targets copied by content; dangling links and links back into a directory
// being copied are left out. Anything else is ignored. It returns the number
// of regular files copied.
func CopyTree(src, dst string, skip SkipFunc) (int, error) {
	return copyTree(src, dst, skip, make(map[string]bool))
}

// copyTree tracks the resolved directories on the current path in visiting.
func copyTree(src, dst string, skip SkipFunc, visiting map[string]bool) (int, error) {
	info, err := os.Stat(src)
	if err != nil {
		return 0, fmt.Errorf("failed to stat source directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("source %s is not a directory", src)
	}
	resolved, err := filepath.EvalSymlinks(src)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve source directory: %w", err)
	}
	if err := os.Mkdir(dst, info.Mode().Perm()); err != nil {
		return 0, fmt.Errorf("failed to create destination directory: %w", err)
	}

	visiting[resolved] = true
	defer delete(visiting, resolved)
	return copyEntries(src, dst, skip, visiting)
}

func copyEntries(src, dst string, skip SkipFunc, visiting map[string]bool) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, fmt.Errorf("failed to read directory %s: %w", src, err)
	}

	count := 0
	for _, entry := range entries {
		if skip != nil && skip(entry.Name()) {
			continue
		}
		from := filepath.Join(src, entry.Name())
		to := filepath.Join(dst, entry.Name())

		mode := entry.Type()
		if mode&os.ModeSymlink != 0 {
			target, err := os.Stat(from)
			if errors.Is(err, fs.ErrNotExist) {
				// dangling
				continue
			}
			if err != nil {
				return count, fmt.Errorf("failed to follow link %s: %w", from, err)
			}
			if target.IsDir() {
				resolved, err := filepath.EvalSymlinks(from)
				if err != nil {
					return count, fmt.Errorf("failed to resolve link %s: %w", from, err)
				}
				if visiting[resolved] {
					continue
				}
			}
			mode = target.Mode().Type()
		}

		switch {
		case mode.IsDir():
			n, err := copyTree(from, to, skip, visiting)
			count += n
			if err != nil {
				return count, err
			}
		case mode.IsRegular():
			if err := CopyFile(from, to); err != nil {
				return count, err
			}
			count++
		}
	}
	return count, nil
}
