// Package engine knows how to start each supported fuzzer and where it keeps
// its queue, crashes and statistics.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"switchfuzz/internal/layout"
	"switchfuzz/internal/proc"
	"switchfuzz/pkg/telemetry"

	"go.uber.org/zap"
)

var ErrUnknownEngine = errors.New("unknown engine")

// Engine is one fuzzer a rotation slot can run.
type Engine interface {
	Name() string
	// Launch starts the engine on in, writing into the existing dir out, and
	// returns without waiting. The process leads its own process group.
	Launch(ctx context.Context, in, out, target string) (proc.Handle, error)
	QueueDir(out string) string
	CrashDir(out string) string
	// StatsFile is empty for engines that write no statistics file.
	StatsFile(out string) string
}

// BinaryFor is where the build step leaves target compiled for the engine
// whose builds live in subdir.
func BinaryFor(target, subdir string) string {
	return layout.Layout{TargetBinary: target}.EngineBinary(subdir)
}

// StartCommand runs cmd as a new process group and records the launch.
func StartCommand(ctx context.Context, logger *zap.Logger, name string, cmd *exec.Cmd) (proc.Handle, error) {
	logger.Info("Launching engine",
		zap.String("engine", name),
		zap.String("command", cmd.String()),
		zap.String("cwd", cmd.Dir))

	handle, err := proc.Start(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to launch %s: %w", name, err)
	}

	telemetry.FromContext(ctx).AddEvent("engine.launched", telemetry.NewEventAttributes(map[string]string{
		"engine":  name,
		"pid":     fmt.Sprint(handle.Pid()),
		"command": strings.Join(cmd.Args, " "),
	}))
	return handle, nil
}
