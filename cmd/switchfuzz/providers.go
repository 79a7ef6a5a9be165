package main

import (
	"context"
	"os/exec"

	"switchfuzz/config"
	"switchfuzz/internal/corpus"
	"switchfuzz/internal/dict"
	"switchfuzz/internal/engine"
	"switchfuzz/internal/engine/aflpp"
	"switchfuzz/internal/layout"
	"switchfuzz/internal/phasestate"
	"switchfuzz/internal/rotation"
	"switchfuzz/internal/stats"
	"switchfuzz/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func newDictResolver(cfg *config.AppConfig, logger *zap.Logger) *dict.Resolver {
	return dict.NewResolver(cfg.NoDictionaries, cfg.ExtraDictionaries, logger)
}

func newLayout(cfg *config.AppConfig) layout.Layout {
	return layout.New(cfg.InputCorpus, cfg.OutputCorpus, cfg.TargetBinary)
}

func newPhaseStore(cfg *config.AppConfig, logger *zap.Logger) phasestate.Store {
	return phasestate.NewFileStore(cfg.PhaseCounterFile, logger)
}

func newRotation(cfg *config.AppConfig, registry *engine.Registry, logger *zap.Logger) (*rotation.Rotation, error) {
	specs, err := cfg.LoadRotation()
	if err != nil {
		return nil, err
	}
	rot, err := rotation.FromSpecs(specs, registry)
	if err != nil {
		return nil, err
	}
	for i, slot := range rot.Slots() {
		logger.Info("rotation slot",
			zap.Int("slot", i),
			zap.String("engine", slot.Engine.Name()),
			zap.Duration("run_time", slot.RunTime))
	}
	return rot, nil
}

func newParser(cfg *config.AppConfig, logger *zap.Logger) *stats.Parser {
	return stats.NewParser(cfg.StatsInstanceSection, logger)
}

func newArchiver(cfg *config.AppConfig, logger *zap.Logger) *corpus.Archiver {
	return corpus.NewArchiver(cfg.CorpusArchiveDir, logger)
}

type PublisherParams struct {
	fx.In

	Lc          fx.Lifecycle
	AppConfig   *config.AppConfig
	Aggregator  *stats.Aggregator
	RedisClient *redis.Client `optional:"true"`
	Logger      *zap.Logger
}

// startPublisher pushes the stats report to redis while the app runs.
func startPublisher(p PublisherParams) *stats.Publisher {
	publisher := stats.NewPublisher(p.Aggregator, p.RedisClient, p.AppConfig.SessionID, p.AppConfig.StatsPublishInterval, p.Logger)
	if publisher == nil {
		return nil
	}
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			p.Logger.Info("publishing stats report", zap.String("key", publisher.Key()))
			publisher.Start()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			publisher.Stop(ctx)
			return nil
		},
	})
	return publisher
}

func setUpMmapRNDBits(logger *zap.Logger) {
	// sanitizers cannot map shadow memory with the default ASLR entropy
	if err := exec.Command("sysctl", "-w", "vm.mmap_rnd_bits=28").Run(); err != nil {
		logger.Warn("Failed to set mmap_rnd_bits", zap.Error(err))
	} else {
		logger.Info("Successfully set mmap_rnd_bits to 28")
	}
}

func fxLogger(log *zap.Logger) fxevent.Logger {
	zlogger := fxevent.ZapLogger{Logger: log}
	zlogger.UseLogLevel(zap.DebugLevel)
	return &zlogger
}

// sessionOptions are shared by every command that reads a session: engines,
// rotation, counter and stats.
func sessionOptions(cfg *config.AppConfig) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		fx.Provide(
			logger.NewLogger,
			newDictResolver,
			newLayout,
			newPhaseStore,
			newRotation,
			newParser,
			stats.NewAggregator,
		),
		engine.Module,
		aflpp.Module,
	)
}
