package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"switchfuzz/config"
	"switchfuzz/internal/crash"
	"switchfuzz/internal/events"
	"switchfuzz/internal/phasestate"
	"switchfuzz/internal/scheduler"
	"switchfuzz/internal/stats"
	"switchfuzz/pkg/database"
	"switchfuzz/pkg/mq"
	"switchfuzz/pkg/telemetry"
	"switchfuzz/pkg/watchdog"

	"github.com/urfave/cli/v2"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var (
	fuzzCommand = &cli.Command{
		Name:   "fuzz",
		Usage:  "Run the rotation until interrupted (default command)",
		Flags:  fuzzFlags,
		Action: fuzzAction,
	}
	statsCommand = &cli.Command{
		Name:   "stats",
		Usage:  "Print the merged stats report of the current and previous phase as JSON",
		Flags:  sessionFlags,
		Action: statsAction,
	}
	phaseCommand = &cli.Command{
		Name:   "phase",
		Usage:  "Print the persisted phase counter",
		Flags:  []cli.Flag{PhaseCounterFileFlag},
		Action: phaseAction,
	}
	presetsCommand = &cli.Command{
		Name:   "presets",
		Usage:  "List the built-in rotation presets",
		Action: presetsAction,
	}
)

func fuzzAction(c *cli.Context) error {
	cfg := loadConfig(c)
	if err := cfg.Validate(); err != nil {
		return cli.Exit(err.Error(), 2)
	}

	app := fx.New(
		sessionOptions(cfg),
		fx.Provide(
			database.NewDBConnection,    // inject db connection
			database.NewRedisClient,     // inject redis client
			mq.NewRabbitMQ,              // inject rabbitmq service
			telemetry.NewTelemetry,      // inject telemetry
			telemetry.NewTracerFactory,  // inject telemetry tracer factory
			watchdog.NewWatchDogFactory, // inject watchdog factory
			crash.NewCrashManager,       // inject crash manager
			newArchiver,                 // inject corpus archiver
		),
		events.Module, // inject phase event sinks
		fx.Invoke(
			setUpMmapRNDBits,
			startPublisher,
			scheduler.NewScheduler,
		),
		fx.WithLogger(fxLogger),
	)

	startCtx, cancel := context.WithTimeout(context.Background(), app.StartTimeout())
	defer cancel()
	if err := app.Start(startCtx); err != nil {
		return cli.Exit(fmt.Sprintf("failed to start: %v", err), 1)
	}

	signal := <-app.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), app.StopTimeout())
	defer cancel()
	if err := app.Stop(stopCtx); err != nil {
		return cli.Exit(fmt.Sprintf("failed to stop cleanly: %v", err), 1)
	}
	if signal.ExitCode != 0 {
		return cli.Exit("scheduler stopped on a fatal error", signal.ExitCode)
	}
	return nil
}

func statsAction(c *cli.Context) error {
	cfg := loadConfig(c)
	cfg.LogLevel = "error" // keep stdout to the report

	var aggregator *stats.Aggregator
	app := fx.New(
		sessionOptions(cfg),
		fx.Populate(&aggregator),
		fx.NopLogger,
	)
	if err := app.Err(); err != nil {
		return cli.Exit(err.Error(), 1)
	}

	report, err := aggregator.JSON()
	if err != nil {
		return cli.Exit(err.Error(), 1)
	}
	fmt.Fprintln(c.App.Writer, report)
	return nil
}

func phaseAction(c *cli.Context) error {
	cfg := loadConfig(c)
	store := phasestate.NewFileStore(cfg.PhaseCounterFile, zap.NewNop())
	fmt.Fprintln(c.App.Writer, store.Read())
	return nil
}

func presetsAction(c *cli.Context) error {
	for _, name := range config.PresetNames() {
		specs, _ := config.Preset(name)
		slots := make([]string, 0, len(specs))
		for _, spec := range specs {
			slots = append(slots, fmt.Sprintf("%s=%s", spec.Engine, time.Duration(spec.RunTime)))
		}
		marker := ""
		if name == config.DefaultPreset {
			marker = " (default)"
		}
		fmt.Fprintf(c.App.Writer, "%s%s: %s\n", name, marker, strings.Join(slots, ","))
	}
	return nil
}
