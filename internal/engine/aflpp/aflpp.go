// Package aflpp runs AFL++ as a rotation engine.
package aflpp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"switchfuzz/internal/dict"
	"switchfuzz/internal/engine"
	"switchfuzz/internal/proc"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	Name = "aflpp"

	instanceName   = "main" // -M main
	defaultTimeout = 5000   // ms per execution, "+" skips slow seeds
)

type AFLPlusPlus struct {
	aflFuzz string // afl-fuzz executable
	timeout int

	dicts  *dict.Resolver
	logger *zap.Logger
}

// NewAFLPlusPlus returns nil when afl-fuzz is not installed, which leaves
// the engine unregistered.
func NewAFLPlusPlus(p engine.Params) *AFLPlusPlus {
	aflFuzz, err := exec.LookPath("afl-fuzz")
	if err != nil {
		p.Logger.Debug("afl-fuzz not found, aflpp engine disabled", zap.Error(err))
		return nil
	}
	return newAFLPlusPlus(aflFuzz, p.Dicts, p.Logger)
}

func newAFLPlusPlus(aflFuzz string, dicts *dict.Resolver, logger *zap.Logger) *AFLPlusPlus {
	return &AFLPlusPlus{
		aflFuzz: aflFuzz,
		timeout: defaultTimeout,
		dicts:   dicts,
		logger:  logger,
	}
}

func (f *AFLPlusPlus) Name() string {
	return Name
}

func (f *AFLPlusPlus) QueueDir(out string) string {
	return filepath.Join(out, instanceName, "queue")
}

func (f *AFLPlusPlus) CrashDir(out string) string {
	return filepath.Join(out, instanceName, "crashes")
}

func (f *AFLPlusPlus) StatsFile(out string) string {
	return filepath.Join(out, instanceName, "fuzzer_stats")
}

// buildArgs builds the afl-fuzz command line for the single main instance.
func (f *AFLPlusPlus) buildArgs(in, out, harness, dictPath string) []string {
	args := []string{"-i", in, "-o", out, "-M", instanceName}

	timeout := f.timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	args = append(args, "-t", fmt.Sprintf("%d+", timeout))

	if dictPath != "" {
		args = append(args, "-x", dictPath)
	}

	// recommended way to run a harness with the AFL++ driver
	return append(args, "--", harness)
}

func (f *AFLPlusPlus) Command(in, out, target string) (*exec.Cmd, error) {
	harness := engine.BinaryFor(target, Name)
	args := f.buildArgs(in, out, harness, f.dicts.Resolve(target))

	cmd := exec.Command(f.aflFuzz, args...)
	cmd.Dir = filepath.Dir(harness)
	cmd.Env = append(engine.FuzzEnv(), mainAFLEnv()...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd, nil
}

func (f *AFLPlusPlus) Launch(ctx context.Context, in, out, target string) (proc.Handle, error) {
	cmd, err := f.Command(in, out, target)
	if err != nil {
		return nil, err
	}
	return engine.StartCommand(ctx, f.logger, Name, cmd)
}

func defaultAFLEnv() []string {
	return []string{
		"AFL_NO_UI=1",
		"AFL_I_DONT_CARE_ABOUT_MISSING_CRASHES=1",
		"AFL_SKIP_CPUFREQ=1",
		"AFL_TRY_AFFINITY=1",
		"AFL_FAST_CAL=1",
		"AFL_CMPLOG_ONLY_NEW=1",
		"AFL_FORKSRV_INIT_TMOUT=30000",
		"AFL_IGNORE_PROBLEMS=1",      // do not terminate fuzzing
		"AFL_IGNORE_SEED_PROBLEMS=1", // skip crashing or hanging seeds instead of exiting
		"AFL_IGNORE_UNKNOWN_ENVS=1",
	}
}

// AFL_FINAL_SYNC imports the queue one last time on exit so the main
// instance's queue is complete when it is handed over.
func mainAFLEnv() []string {
	return append(defaultAFLEnv(), "AFL_FINAL_SYNC=1")
}

var Module = fx.Options(
	fx.Provide(engine.AsEngine(NewAFLPlusPlus)),
)
