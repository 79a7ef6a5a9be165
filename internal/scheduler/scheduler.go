// Package scheduler runs the rotation: one engine per phase, a fixed time
// budget each, the corpus carried from one phase to the next.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync/atomic"
	"time"

	"switchfuzz/config"
	"switchfuzz/internal/corpus"
	"switchfuzz/internal/crash"
	"switchfuzz/internal/events"
	"switchfuzz/internal/layout"
	"switchfuzz/internal/phasestate"
	"switchfuzz/internal/proc"
	"switchfuzz/internal/rotation"
	"switchfuzz/internal/stats"
	"switchfuzz/internal/types"
	"switchfuzz/pkg/telemetry"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// DefaultNotifyTimeout bounds the delivery of a phase_started event.
const DefaultNotifyTimeout = 5 * time.Second

var (
	ErrPhaseDirCollision = errors.New("phase output directory already exists")
	ErrLaunchFailed      = errors.New("engine launch failed")
	ErrEngineExited      = errors.New("engine exited before its run time")
)

type Scheduler struct {
	store          phasestate.Store
	rotation       *rotation.Rotation
	layout         layout.Layout
	session        string
	earlyExitPause time.Duration
	notifyTimeout  time.Duration

	parser        *stats.Parser
	archiver      *corpus.Archiver
	crashes       *crash.CrashManager
	events        *events.Broadcaster
	tracerFactory *telemetry.TracerFactory
	logger        *zap.Logger

	state    atomic.Int32
	lastSpan string // exported span of the previous phase
}

// Options are the collaborators of a Scheduler. Archiver, Crashes, Events and
// TracerFactory may be nil.
type Options struct {
	Store          phasestate.Store
	Rotation       *rotation.Rotation
	Layout         layout.Layout
	Session        string
	EarlyExitPause time.Duration
	NotifyTimeout  time.Duration

	Parser        *stats.Parser
	Archiver      *corpus.Archiver
	Crashes       *crash.CrashManager
	Events        *events.Broadcaster
	TracerFactory *telemetry.TracerFactory
	Logger        *zap.Logger
}

func New(o Options) *Scheduler {
	parser := o.Parser
	if parser == nil {
		parser = stats.NewParser(config.DefaultInstanceSection, o.Logger)
	}
	notifyTimeout := o.NotifyTimeout
	if notifyTimeout <= 0 {
		notifyTimeout = DefaultNotifyTimeout
	}
	return &Scheduler{
		store:          o.Store,
		rotation:       o.Rotation,
		layout:         o.Layout,
		session:        o.Session,
		earlyExitPause: o.EarlyExitPause,
		notifyTimeout:  notifyTimeout,
		parser:         parser,
		archiver:       o.Archiver,
		crashes:        o.Crashes,
		events:         o.Events,
		tracerFactory:  o.TracerFactory,
		logger:         o.Logger,
	}
}

type SchedulerParams struct {
	fx.In

	Lc         fx.Lifecycle
	Shutdowner fx.Shutdowner
	AppConfig  *config.AppConfig
	Store      phasestate.Store
	Rotation   *rotation.Rotation
	Layout     layout.Layout
	Parser     *stats.Parser
	Archiver   *corpus.Archiver    `optional:"true"`
	Crashes    *crash.CrashManager `optional:"true"`
	Events     *events.Broadcaster `optional:"true"`
	Tracers    *telemetry.TracerFactory
	Logger     *zap.Logger
}

// NewScheduler runs the scheduler for the lifetime of the fx app. A fatal
// error shuts the app down with exit code 1.
func NewScheduler(params SchedulerParams) *Scheduler {
	scheduler := New(Options{
		Store:          params.Store,
		Rotation:       params.Rotation,
		Layout:         params.Layout,
		Session:        params.AppConfig.SessionID,
		EarlyExitPause: params.AppConfig.EarlyExitPause,
		Parser:         params.Parser,
		Archiver:       params.Archiver,
		Crashes:        params.Crashes,
		Events:         params.Events,
		TracerFactory:  params.Tracers,
		Logger:         params.Logger,
	})

	schedulerCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	params.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				defer close(done)
				err := scheduler.Run(schedulerCtx)
				if err == nil || errors.Is(err, context.Canceled) {
					return
				}
				scheduler.logger.Error("scheduler stopped", zap.Error(err))
				if err := params.Shutdowner.Shutdown(fx.ExitCode(1)); err != nil {
					scheduler.logger.Error("failed to shut down", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			cancel()
			<-done
			return nil
		},
	})
	return scheduler
}

func (s *Scheduler) State() State {
	return State(s.state.Load())
}

func (s *Scheduler) setState(state State) {
	if old := State(s.state.Swap(int32(state))); old != state {
		s.logger.Debug("scheduler state", zap.Stringer("from", old), zap.Stringer("to", state))
	}
}

// Run loops over the rotation until ctx is cancelled or a fatal error occurs.
// It resumes from the persisted phase.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.rotation.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.layout.OutputCorpus, 0o755); err != nil {
		return fmt.Errorf("failed to create output corpus: %w", err)
	}

	phase := s.store.Read()
	in, err := s.recover(ctx, phase)
	if err != nil {
		return err
	}
	s.logger.Info("Starting rotation",
		zap.Int("phase", phase),
		zap.Int("slots", s.rotation.Len()),
		zap.String("input", in))

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		next, err := s.runPhase(ctx, phase, in)
		if err != nil {
			return err
		}
		phase++
		in = next
	}
}

// recover repairs what a controller killed mid-phase left behind and
// returns the input directory of phase.
func (s *Scheduler) recover(ctx context.Context, phase int) (string, error) {
	in := s.layout.PhaseInputDir(phase)

	if phase == 0 {
		created, err := corpus.EnsureSeed(in)
		if err != nil {
			return "", err
		}
		if created {
			s.logger.Info("Empty seed corpus, created a default seed", zap.String("dir", in))
		}
	} else {
		stale, err := corpus.RemoveStaging(in)
		if err != nil {
			return "", err
		}
		for _, dir := range stale {
			s.logger.Warn("Removed unfinished corpus handoff", zap.String("dir", dir))
		}

		if _, err := os.Stat(in); errors.Is(err, fs.ErrNotExist) {
			prev := s.rotation.At(phase - 1)
			prevOut := s.layout.PhaseOutputDir(prev.Engine.Name(), phase-1)
			s.logger.Warn("Input of the current phase is missing, redoing the handoff",
				zap.Int("phase", phase),
				zap.String("from", prevOut))
			count, err := corpus.Handoff(prev.Engine.QueueDir(prevOut), in)
			if err != nil {
				return "", fmt.Errorf("failed to redo handoff into phase %d: %w", phase, err)
			}
			s.logger.Info("Handoff redone", zap.Int("phase", phase), zap.Int("files", count))
		} else if err != nil {
			return "", fmt.Errorf("failed to stat phase input: %w", err)
		}
	}

	slot := s.rotation.At(phase)
	out := s.layout.PhaseOutputDir(slot.Engine.Name(), phase)
	if _, err := os.Lstat(out); err == nil {
		moved := layout.InterruptedDir(out, uuid.New().String())
		if err := os.Rename(out, moved); err != nil {
			return "", fmt.Errorf("failed to move interrupted phase dir: %w", err)
		}
		s.logger.Warn("Previous run was interrupted mid-phase, restarting the phase",
			zap.Int("phase", phase),
			zap.String("moved_to", moved))
		s.notify(ctx, types.PhaseEvent{
			Kind:  types.PhaseInterrupted,
			Phase: s.phaseInfo(phase, slot, in),
		})
	}
	return in, nil
}

func (s *Scheduler) phaseInfo(phase int, slot rotation.Slot, in string) types.Phase {
	return types.Phase{
		Session:   s.session,
		Index:     phase,
		Engine:    slot.Engine.Name(),
		InputDir:  in,
		OutputDir: s.layout.PhaseOutputDir(slot.Engine.Name(), phase),
	}
}

// runPhase runs one phase to its end and returns the input directory of the
// next one.
func (s *Scheduler) runPhase(ctx context.Context, phase int, in string) (string, error) {
	slot := s.rotation.At(phase)
	info := s.phaseInfo(phase, slot, in)
	out := info.OutputDir
	logger := s.logger.With(zap.Int("phase", phase), zap.String("engine", info.Engine))

	s.setState(Launching)
	defer s.setState(Idle)

	if err := os.Mkdir(out, 0o755); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("%w: %s", ErrPhaseDirCollision, out)
		}
		return "", fmt.Errorf("failed to create phase dir: %w", err)
	}

	tracer := s.tracerFactory.NewTracerWithLinks(ctx, []string{s.lastSpan}, fmt.Sprintf("phase %d %s", phase, info.Engine)).
		WithAttributes(
			telemetry.NewSpanAttributes(telemetry.Fuzzing).
				WithSession(s.session).
				WithPhase(phase, info.Engine).
				WithRunTime(slot.RunTime).
				WithTargetBinary(s.layout.TargetBinary),
		)
	tracer.Start()
	defer tracer.End()
	s.lastSpan = tracer.Export()

	phaseCtx, cancel := context.WithCancel(context.WithValue(ctx, telemetry.TracerKey{}, tracer))
	defer cancel()

	start := time.Now()
	handle, err := slot.Engine.Launch(phaseCtx, in, out, s.layout.TargetBinary)
	started := types.PhaseEvent{Kind: types.PhaseStarted, Phase: info, TraceContext: s.lastSpan}
	if err != nil {
		logger.Error("Failed to launch engine", zap.Error(err))
		tracer.SetStatus(codes.Error, err.Error())
		s.notifyBounded(ctx, started)
		s.notify(ctx, types.PhaseEvent{Kind: types.PhaseFailed, Phase: info, Error: err.Error()})
		return "", fmt.Errorf("%w: %s: %w", ErrLaunchFailed, info.Engine, err)
	}
	timer := time.NewTimer(slot.RunTime)
	defer timer.Stop()

	if s.crashes != nil {
		s.crashes.Watch(phaseCtx, &info, slot.Engine.CrashDir(out))
	}

	s.setState(Running)
	logger.Info("Phase running", zap.Int("pid", handle.Pid()), zap.Duration("run_time", slot.RunTime))
	s.notifyBounded(ctx, started)

	select {
	case <-ctx.Done():
		if err := handle.Terminate(); err != nil {
			logger.Error("Failed to kill engine on shutdown", zap.Error(err))
		}
		logger.Info("Phase interrupted by shutdown", zap.Duration("ran", time.Since(start)))
		tracer.AddEvent("phase.interrupted", nil)
		s.notify(context.WithoutCancel(ctx), types.PhaseEvent{Kind: types.PhaseInterrupted, Phase: info})
		return "", ctx.Err()

	case <-handle.Done():
		return "", s.exitedEarly(ctx, logger, tracer, info, handle, time.Since(start))

	case <-timer.C:
		tracer.AddEvent("phase.timeout", nil)
	}

	s.setState(Rotating)
	if err := handle.Terminate(); err != nil {
		return "", fmt.Errorf("failed to kill %s process group: %w", info.Engine, err)
	}
	logger.Info("Phase finished", zap.Duration("ran", time.Since(start)))

	report := stats.Report{}
	if statsFile := slot.Engine.StatsFile(out); statsFile != "" {
		report = s.parser.Parse(statsFile)
	}
	tracer.WithAttributes(telemetry.EmptySpanAttributes().WithExtraAttributes(report))

	if err := s.store.Write(phase + 1); err != nil {
		return "", fmt.Errorf("failed to persist phase %d: %w", phase+1, err)
	}

	queue := slot.Engine.QueueDir(out)
	next := s.layout.PhaseInputDir(phase + 1)
	count, err := corpus.Handoff(queue, next)
	if err != nil {
		return "", fmt.Errorf("failed to hand corpus over to phase %d: %w", phase+1, err)
	}
	tracer.WithAttributes(telemetry.EmptySpanAttributes().WithCorpusSize(count))
	tracer.AddEvent("phase.handoff", telemetry.NewEventAttributes(map[string]string{
		"to":    next,
		"files": fmt.Sprint(count),
	}))
	logger.Info("Corpus handed over", zap.String("to", next), zap.Int("files", count))

	if s.archiver != nil {
		if _, err := s.archiver.Archive(info.Engine, phase, queue); err != nil {
			logger.Warn("Failed to archive phase corpus", zap.Error(err))
		}
	}

	s.notify(ctx, types.PhaseEvent{
		Kind:        types.PhaseRotated,
		Phase:       info,
		Stats:       report,
		CorpusCount: count,
	})
	return next, nil
}

// exitedEarly handles an engine that stopped on its own. The scheduler does
// not restart it: after the pause the error ends the run.
func (s *Scheduler) exitedEarly(ctx context.Context, logger *zap.Logger, tracer telemetry.Tracer, info types.Phase, handle proc.Handle, ran time.Duration) error {
	exitErr := handle.Err()
	logger.Error("Engine exited before its run time",
		zap.Duration("ran", ran),
		zap.NamedError("exit", exitErr))
	tracer.AddEvent("phase.exited_early", nil)
	tracer.SetStatus(codes.Error, "engine exited early")

	// children of the engine may still hold the group
	if err := handle.Terminate(); err != nil {
		logger.Warn("Failed to kill leftover engine processes", zap.Error(err))
	}

	event := types.PhaseEvent{Kind: types.PhaseExitedEarly, Phase: info}
	if exitErr != nil {
		event.Error = exitErr.Error()
	}
	s.notify(ctx, event)

	if s.earlyExitPause > 0 {
		logger.Error("Pausing before giving up", zap.Duration("pause", s.earlyExitPause))
		timer := time.NewTimer(s.earlyExitPause)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
	return fmt.Errorf("%w: %s, phase %d, after %s", ErrEngineExited, info.Engine, info.Index, ran.Round(time.Millisecond))
}

// notifyBounded is notify for events sent while an engine is running: a slow
// sink must not eat into the phase's run time.
func (s *Scheduler) notifyBounded(ctx context.Context, event types.PhaseEvent) {
	ctx, cancel := context.WithTimeout(ctx, s.notifyTimeout)
	defer cancel()
	s.notify(ctx, event)
}

func (s *Scheduler) notify(ctx context.Context, event types.PhaseEvent) {
	if s.events == nil {
		return
	}
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	// errors are logged by the broadcaster
	_ = s.events.Notify(ctx, event)
}
