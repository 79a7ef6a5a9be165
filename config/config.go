package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

const (
	DefaultPhaseCounterFile = "/.switchfuzz_phase_counter"
	DefaultPreloadLib       = "/usr/lib/x86_64-linux-gnu/libjemalloc.so.2"
	DefaultInstanceSection  = "client_0"
)

type AppConfig struct {
	InputCorpus      string // seed corpus, input of phase 0
	OutputCorpus     string // parent of every phase output dir
	TargetBinary     string // original target; engine builds live next to it
	PhaseCounterFile string

	RotationFile   string
	RotationSpec   string
	RotationPreset string

	EarlyExitPause       time.Duration
	StatsInstanceSection string
	PreloadLib           string
	BuildOutDir          string   // $OUT of the build step, cwd of plain libafl
	AdditionalArgs       []string // appended to libFuzzer-family command lines
	NoDictionaries       bool
	ExtraDictionaries    []string

	CrashArchiveDir      string
	CorpusArchiveDir     string
	CrashPollInterval    time.Duration
	StatsPublishInterval time.Duration

	DatabaseURL        string
	RabbitMQURL        string
	RedisSentinelHosts string
	RedisMasterName    string
	RedisUrl           string
	OtelEndpoint       string

	LogLevel    string
	ServiceName string
	SessionID   string
}

func LoadConfig() *AppConfig {
	// use a temporary logger for now
	logger := zap.NewExample().Named("config")

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Warn("failed to load .env file", zap.Error(err))
	}

	config := &AppConfig{
		InputCorpus:      os.Getenv("INPUT_CORPUS"),
		OutputCorpus:     os.Getenv("OUTPUT_CORPUS"),
		TargetBinary:     os.Getenv("TARGET_BINARY"),
		PhaseCounterFile: parseString(os.Getenv("PHASE_COUNTER_FILE"), DefaultPhaseCounterFile),

		RotationFile:   os.Getenv("ROTATION_FILE"),
		RotationSpec:   os.Getenv("ROTATION"),
		RotationPreset: os.Getenv("ROTATION_PRESET"),

		EarlyExitPause:       parseDuration(os.Getenv("EARLY_EXIT_PAUSE"), time.Hour),
		StatsInstanceSection: parseString(os.Getenv("STATS_INSTANCE_SECTION"), DefaultInstanceSection),
		PreloadLib:           parseString(os.Getenv("LD_PRELOAD_LIB"), DefaultPreloadLib),
		BuildOutDir:          os.Getenv("OUT"),
		AdditionalArgs:       strings.Fields(os.Getenv("ADDITIONAL_ARGS")),
		NoDictionaries:       os.Getenv("NO_DICTIONARIES") != "",
		ExtraDictionaries:    parseList(os.Getenv("EXTRA_DICTIONARIES")),

		CrashArchiveDir:      os.Getenv("CRASH_ARCHIVE_DIR"),
		CorpusArchiveDir:     os.Getenv("CORPUS_ARCHIVE_DIR"),
		CrashPollInterval:    parseDuration(os.Getenv("CRASH_POLL_INTERVAL"), 10*time.Second),
		StatsPublishInterval: parseDuration(os.Getenv("STATS_PUBLISH_INTERVAL"), time.Minute),

		DatabaseURL:        os.Getenv("DATABASE_URL"),
		RabbitMQURL:        os.Getenv("RABBITMQ_URL"),
		RedisSentinelHosts: os.Getenv("REDIS_SENTINEL_HOSTS"),
		RedisMasterName:    os.Getenv("REDIS_MASTER"),
		RedisUrl:           os.Getenv("OVERRIDE_REDIS_URL"), // optional, for local dev
		OtelEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		LogLevel:    os.Getenv("LOG_LEVEL"),
		ServiceName: os.Getenv("SERVICE_NAME"),
		SessionID:   os.Getenv("SESSION_ID"),
	}

	if config.LogLevel == "" {
		config.LogLevel = "info" // Set default log level
	}
	if config.ServiceName == "" {
		config.ServiceName = "switchfuzz" // Default service name
	}
	if config.SessionID == "" {
		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = uuid.New().String()
		}
		config.SessionID = hostname
	}

	return config
}

// Validate checks the settings the fuzzing loop cannot run without.
func (c *AppConfig) Validate() error {
	if c.InputCorpus == "" {
		return errors.New("input corpus is required (INPUT_CORPUS or --input-corpus)")
	}
	if c.OutputCorpus == "" {
		return errors.New("output corpus is required (OUTPUT_CORPUS or --output-corpus)")
	}
	if c.TargetBinary == "" {
		return errors.New("target binary is required (TARGET_BINARY or --target-binary)")
	}
	if c.PhaseCounterFile == "" {
		return errors.New("phase counter file is required")
	}
	if c.EarlyExitPause < 0 {
		return errors.New("early exit pause must not be negative")
	}
	return nil
}

// RedisEnabled reports whether any redis endpoint is configured.
func (c *AppConfig) RedisEnabled() bool {
	return c.RedisUrl != "" || (c.RedisSentinelHosts != "" && c.RedisMasterName != "")
}

func parseString(val string, defaultVal string) string {
	if val == "" {
		return defaultVal
	}
	return val
}

func parseDuration(val string, defaultVal time.Duration) time.Duration {
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return defaultVal
	}
	return d
}

func parseList(val string) []string {
	var items []string
	for _, item := range strings.Split(val, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
