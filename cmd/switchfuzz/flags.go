package main

import (
	"switchfuzz/config"

	"github.com/urfave/cli/v2"
)

var (
	InputCorpusFlag = &cli.StringFlag{
		Name:    "input-corpus",
		Aliases: []string{"i"},
		Usage:   "Seed corpus, input of phase 0 (INPUT_CORPUS)",
	}
	OutputCorpusFlag = &cli.StringFlag{
		Name:    "output-corpus",
		Aliases: []string{"o"},
		Usage:   "Directory holding one output dir per phase (OUTPUT_CORPUS)",
	}
	TargetBinaryFlag = &cli.StringFlag{
		Name:    "target-binary",
		Aliases: []string{"t"},
		Usage:   "Fuzz target; engine builds are looked up next to it (TARGET_BINARY)",
	}
	RotationFileFlag = &cli.StringFlag{
		Name:  "rotation-file",
		Usage: "YAML file listing the rotation slots (ROTATION_FILE)",
	}
	RotationFlag = &cli.StringFlag{
		Name:  "rotation",
		Usage: `Inline rotation, e.g. "storfuzz=24h,libafl=24h" (ROTATION)`,
	}
	PresetFlag = &cli.StringFlag{
		Name:  "preset",
		Usage: "Named rotation preset, see the presets command (ROTATION_PRESET)",
	}
	PhaseCounterFileFlag = &cli.StringFlag{
		Name:  "phase-counter-file",
		Usage: "File persisting the current phase (PHASE_COUNTER_FILE)",
	}
	EarlyExitPauseFlag = &cli.DurationFlag{
		Name:  "early-exit-pause",
		Usage: "Pause after an engine exits on its own before giving up (EARLY_EXIT_PAUSE)",
	}
	LogLevelFlag = &cli.StringFlag{
		Name:  "log-level",
		Usage: "debug, info, warn or error (LOG_LEVEL)",
	}

	fuzzFlags = []cli.Flag{
		InputCorpusFlag,
		OutputCorpusFlag,
		TargetBinaryFlag,
		RotationFileFlag,
		RotationFlag,
		PresetFlag,
		PhaseCounterFileFlag,
		EarlyExitPauseFlag,
		LogLevelFlag,
	}

	// flags the read-only commands need to find the session
	sessionFlags = []cli.Flag{
		InputCorpusFlag,
		OutputCorpusFlag,
		TargetBinaryFlag,
		RotationFileFlag,
		RotationFlag,
		PresetFlag,
		PhaseCounterFileFlag,
	}
)

// loadConfig reads the environment, then lets flags set on the command line
// override it.
func loadConfig(c *cli.Context) *config.AppConfig {
	cfg := config.LoadConfig()
	overrideString(c, InputCorpusFlag.Name, &cfg.InputCorpus)
	overrideString(c, OutputCorpusFlag.Name, &cfg.OutputCorpus)
	overrideString(c, TargetBinaryFlag.Name, &cfg.TargetBinary)
	overrideString(c, RotationFileFlag.Name, &cfg.RotationFile)
	overrideString(c, RotationFlag.Name, &cfg.RotationSpec)
	overrideString(c, PresetFlag.Name, &cfg.RotationPreset)
	overrideString(c, PhaseCounterFileFlag.Name, &cfg.PhaseCounterFile)
	overrideString(c, LogLevelFlag.Name, &cfg.LogLevel)
	if c.IsSet(EarlyExitPauseFlag.Name) {
		cfg.EarlyExitPause = c.Duration(EarlyExitPauseFlag.Name)
	}
	return cfg
}

func overrideString(c *cli.Context, name string, dst *string) {
	if c.IsSet(name) {
		*dst = c.String(name)
	}
}
