package engine

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"

	"switchfuzz/config"
	"switchfuzz/internal/dict"
	"switchfuzz/internal/proc"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	LibAFLName   = "libafl"
	StorFuzzName = "storfuzz"
	DDFuzzName   = "ddfuzz"

	StorFuzzDictFallback = "/out/storfuzz.dict"

	libAFLStatsFile = "stats.toml"
)

// LibAFL runs fuzzers built on LibAFL's fuzzbench frontend:
// <binary> [-x dict] -o <out> -i <in>.
type LibAFL struct {
	name          string
	subdir        string // empty: the original target
	dictFallbacks []string
	workDir       string // empty: the engine binary's directory
	preloadLib    string

	dicts  *dict.Resolver
	logger *zap.Logger
}

type Params struct {
	fx.In

	Config *config.AppConfig
	Dicts  *dict.Resolver
	Logger *zap.Logger
}

func NewLibAFL(p Params) *LibAFL {
	workDir := p.Config.BuildOutDir
	if workDir == "" && p.Config.TargetBinary != "" {
		workDir = filepath.Dir(p.Config.TargetBinary)
	}
	return &LibAFL{
		name:       LibAFLName,
		workDir:    workDir,
		preloadLib: p.Config.PreloadLib,
		dicts:      p.Dicts,
		logger:     p.Logger,
	}
}

func NewStorFuzz(p Params) *LibAFL {
	return &LibAFL{
		name:          StorFuzzName,
		subdir:        StorFuzzName,
		dictFallbacks: []string{StorFuzzDictFallback},
		preloadLib:    p.Config.PreloadLib,
		dicts:         p.Dicts,
		logger:        p.Logger,
	}
}

func NewDDFuzz(p Params) *LibAFL {
	return &LibAFL{
		name:       DDFuzzName,
		subdir:     DDFuzzName,
		preloadLib: p.Config.PreloadLib,
		dicts:      p.Dicts,
		logger:     p.Logger,
	}
}

func (e *LibAFL) Name() string {
	return e.name
}

func (e *LibAFL) QueueDir(out string) string {
	return filepath.Join(out, "queue")
}

func (e *LibAFL) CrashDir(out string) string {
	return filepath.Join(out, "crashes")
}

func (e *LibAFL) StatsFile(out string) string {
	return filepath.Join(out, libAFLStatsFile)
}

func (e *LibAFL) Command(in, out, target string) (*exec.Cmd, error) {
	binary := BinaryFor(target, e.subdir)

	var args []string
	if dictPath := e.dicts.Resolve(target, e.dictFallbacks...); dictPath != "" {
		args = append(args, "-x", dictPath)
	}
	args = append(args, "-o", out, "-i", in)

	cmd := exec.Command(binary, args...)
	cmd.Dir = e.workDir
	if cmd.Dir == "" {
		cmd.Dir = filepath.Dir(binary)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	cmd.Env = FuzzEnv()
	if e.preloadLib != "" {
		if _, err := os.Stat(e.preloadLib); err == nil {
			cmd.Env = SetEnv(cmd.Env, "LD_PRELOAD", e.preloadLib)
		} else {
			e.logger.Warn("Preload library not found, running without it",
				zap.String("engine", e.name),
				zap.String("lib", e.preloadLib))
		}
	}
	return cmd, nil
}

func (e *LibAFL) Launch(ctx context.Context, in, out, target string) (proc.Handle, error) {
	cmd, err := e.Command(in, out, target)
	if err != nil {
		return nil, err
	}
	return StartCommand(ctx, e.logger, e.name, cmd)
}
