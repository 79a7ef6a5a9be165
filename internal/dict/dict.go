// Package dict finds the fuzzing dictionary that belongs to a target.
package dict

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

const (
	dictSuffix       = ".dict"
	optionsSuffix    = ".options"
	libfuzzerSection = "libfuzzer"
	dictOption       = "dict"
)

// Lookup returns <target>.dict if present, otherwise the dict named in the
// [libfuzzer] section of <target>.options, resolved against the target's
// directory. An empty path means the target has no dictionary.
func Lookup(target string) (string, error) {
	dictPath := target + dictSuffix
	if fileExists(dictPath) {
		return dictPath, nil
	}

	optionsPath := target + optionsSuffix
	if !fileExists(optionsPath) {
		return "", nil
	}

	name, err := readOption(optionsPath, libfuzzerSection, dictOption)
	if err != nil || name == "" {
		return "", err
	}

	dictPath = filepath.Join(filepath.Dir(target), name)
	if !fileExists(dictPath) {
		return "", fmt.Errorf("dictionary %s named in %s does not exist", dictPath, optionsPath)
	}
	return dictPath, nil
}

// readOption reads one key of one section of an ini-style options file.
func readOption(path, section, key string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open options file: %w", err)
	}
	defer file.Close()

	current := ""
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, ";") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			current = strings.TrimSpace(line[1 : len(line)-1])
			continue
		}
		if current != section {
			continue
		}
		k, v, ok := strings.Cut(line, "=")
		if !ok {
			k, v, ok = strings.Cut(line, ":")
		}
		if ok && strings.TrimSpace(k) == key {
			return strings.TrimSpace(v), nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read options file: %w", err)
	}
	return "", nil
}

// Merge concatenates dictionary files into a temporary file, dropping empty
// lines, comments and duplicate entries.
func Merge(paths []string) (string, error) {
	if len(paths) == 0 {
		return "", errors.New("no dictionaries to merge")
	}

	lineSet := make(map[string]struct{})
	var finalLines []string
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read dict file %s: %w", path, err)
		}
		for _, line := range strings.Split(string(content), "\n") {
			line = strings.TrimSpace(line)
			if line == "" || strings.HasPrefix(line, "#") {
				continue
			}
			if _, ok := lineSet[line]; !ok {
				lineSet[line] = struct{}{}
				finalLines = append(finalLines, line)
			}
		}
	}

	tmpFile, err := os.CreateTemp("", "merged_dict_*.dict")
	if err != nil {
		return "", fmt.Errorf("failed to create temp dict file: %w", err)
	}
	defer tmpFile.Close()

	if _, err := tmpFile.WriteString(strings.Join(finalLines, "\n") + "\n"); err != nil {
		return "", fmt.Errorf("failed to write merged dict file: %w", err)
	}
	return tmpFile.Name(), nil
}

// Resolver picks the dictionary an engine launch should use.
type Resolver struct {
	disabled bool
	extras   []string
	logger   *zap.Logger
}

func NewResolver(disabled bool, extras []string, logger *zap.Logger) *Resolver {
	return &Resolver{disabled: disabled, extras: extras, logger: logger}
}

// Resolve returns the target's dictionary, or the first existing fallback
// when the target has none. Extra dictionaries are merged in. Failures are
// logged and yield no dictionary: fuzzing without one beats not fuzzing.
func (r *Resolver) Resolve(target string, fallbacks ...string) string {
	if r == nil || r.disabled {
		return ""
	}

	var paths []string
	primary, err := Lookup(target)
	if err != nil {
		r.logger.Warn("Failed to look up target dictionary", zap.String("target", target), zap.Error(err))
	}
	if primary == "" {
		for _, fallback := range fallbacks {
			if fileExists(fallback) {
				primary = fallback
				break
			}
		}
	}
	if primary != "" {
		paths = append(paths, primary)
	}
	for _, extra := range r.extras {
		if fileExists(extra) {
			paths = append(paths, extra)
		} else {
			r.logger.Warn("Extra dictionary not found", zap.String("path", extra))
		}
	}

	switch len(paths) {
	case 0:
		return ""
	case 1:
		return paths[0]
	}

	merged, err := Merge(paths)
	if err != nil {
		r.logger.Error("Failed to merge dictionaries, using the target's own", zap.Error(err))
		return paths[0]
	}
	r.logger.Info("Merged dictionaries", zap.Strings("dicts", paths), zap.String("merged", merged))
	return merged
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
