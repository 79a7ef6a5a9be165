package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"switchfuzz/internal/dict"
	"switchfuzz/internal/proc"

	"go.uber.org/zap"
)

const (
	LibFuzzerName = "libfuzzer"
	WingFuzzName  = "wingfuzz"
)

func libFuzzerFlags(crashDir string) []string {
	return []string{
		"-print_final_stats=1",
		// keep target output from flooding the log
		"-close_fd_mask=3",
		// fork mode survives ooms, timeouts and crashes
		"-fork=1",
		"-ignore_ooms=1",
		"-ignore_timeouts=1",
		"-ignore_crashes=1",
		"-entropic=1",
		"-keep_seed=1",
		"-cross_over_uniform_dist=1",
		"-entropic_scale_per_exec_time=1",
		// other engines do not detect leaks either
		"-detect_leaks=0",
		"-artifact_prefix=" + crashDir + "/",
	}
}

// LibFuzzer runs libFuzzer-compatible binaries:
// <binary> <flags> <out>/queue <in>, crashes under <out>/crashes.
type LibFuzzer struct {
	name           string
	subdir         string
	extraFlags     []string
	additionalArgs []string

	dicts  *dict.Resolver
	logger *zap.Logger
}

func NewLibFuzzer(p Params) *LibFuzzer {
	return &LibFuzzer{
		name:           LibFuzzerName,
		additionalArgs: p.Config.AdditionalArgs,
		dicts:          p.Dicts,
		logger:         p.Logger,
	}
}

func NewWingFuzz(p Params) *LibFuzzer {
	return &LibFuzzer{
		name:   WingFuzzName,
		subdir: WingFuzzName,
		extraFlags: []string{
			"-fork=0", "-keep_seed=1",
			"-jobs=2147483647", "-workers=1",
			"-reload=0",
		},
		additionalArgs: p.Config.AdditionalArgs,
		dicts:          p.Dicts,
		logger:         p.Logger,
	}
}

func (e *LibFuzzer) Name() string {
	return e.name
}

func (e *LibFuzzer) QueueDir(out string) string {
	return filepath.Join(out, "queue")
}

func (e *LibFuzzer) CrashDir(out string) string {
	return filepath.Join(out, "crashes")
}

// libFuzzer keeps its statistics on stderr only.
func (e *LibFuzzer) StatsFile(string) string {
	return ""
}

func (e *LibFuzzer) Command(in, out, target string) (*exec.Cmd, error) {
	binary, err := filepath.Abs(BinaryFor(target, e.subdir))
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s binary: %w", e.name, err)
	}

	flags := libFuzzerFlags(e.CrashDir(out))
	flags = append(flags, e.extraFlags...)
	flags = append(flags, e.additionalArgs...)
	if dictPath := e.dicts.Resolve(target); dictPath != "" {
		flags = append(flags, "-dict="+dictPath)
	}

	env := FuzzEnv()
	for _, flag := range flags {
		if strings.HasPrefix(flag, "-focus_function") {
			env = appendOption(env, "ASAN_OPTIONS", "symbolize=1")
			env = appendOption(env, "UBSAN_OPTIONS", "symbolize=1")
			break
		}
	}

	args := append(flags, e.QueueDir(out), in)
	cmd := exec.Command(binary, args...)
	cmd.Dir = filepath.Dir(binary)
	cmd.Env = env
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

func (e *LibFuzzer) Launch(ctx context.Context, in, out, target string) (proc.Handle, error) {
	// separate corpus and crashes so reloading the corpus never picks up crashes
	for _, dir := range []string{e.CrashDir(out), e.QueueDir(out)} {
		if err := os.Mkdir(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to prepare %s output: %w", e.name, err)
		}
	}

	cmd, err := e.Command(in, out, target)
	if err != nil {
		return nil, err
	}
	return StartCommand(ctx, e.logger, e.name, cmd)
}
