package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, key := range []string{"PHASE_COUNTER_FILE", "EARLY_EXIT_PAUSE", "LOG_LEVEL", "SERVICE_NAME", "STATS_INSTANCE_SECTION"} {
		t.Setenv(key, "")
	}
	t.Setenv("SESSION_ID", "bench-1")

	cfg := LoadConfig()
	assert.Equal(t, DefaultPhaseCounterFile, cfg.PhaseCounterFile)
	assert.Equal(t, time.Hour, cfg.EarlyExitPause)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "switchfuzz", cfg.ServiceName)
	assert.Equal(t, DefaultInstanceSection, cfg.StatsInstanceSection)
	assert.Equal(t, "bench-1", cfg.SessionID)
	assert.False(t, cfg.RedisEnabled())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("INPUT_CORPUS", "/in")
	t.Setenv("OUTPUT_CORPUS", "/out/corpus")
	t.Setenv("TARGET_BINARY", "/out/fuzzer")
	t.Setenv("EARLY_EXIT_PAUSE", "0s")
	t.Setenv("CRASH_POLL_INTERVAL", "not-a-duration")
	t.Setenv("OVERRIDE_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("ADDITIONAL_ARGS", "-max_len=4096  -rss_limit_mb=2560")
	t.Setenv("EXTRA_DICTIONARIES", "/dicts/a.dict, ,/dicts/b.dict")
	t.Setenv("NO_DICTIONARIES", "")

	cfg := LoadConfig()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "/in", cfg.InputCorpus)
	assert.Equal(t, time.Duration(0), cfg.EarlyExitPause)
	assert.Equal(t, 10*time.Second, cfg.CrashPollInterval, "invalid durations fall back to the default")
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, []string{"-max_len=4096", "-rss_limit_mb=2560"}, cfg.AdditionalArgs)
	assert.Equal(t, []string{"/dicts/a.dict", "/dicts/b.dict"}, cfg.ExtraDictionaries)
	assert.False(t, cfg.NoDictionaries)
}

func TestValidateRequiresPaths(t *testing.T) {
	cfg := &AppConfig{PhaseCounterFile: "/tmp/counter"}
	assert.Error(t, cfg.Validate())

	cfg.InputCorpus, cfg.OutputCorpus = "/in", "/out"
	assert.Error(t, cfg.Validate())

	cfg.TargetBinary = "/fuzzer"
	assert.NoError(t, cfg.Validate())

	cfg.EarlyExitPause = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestParseRotationFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotation.yaml")
	content := `
rotation:
  - engine: storfuzz
    run_time: 24h
  - engine: libafl
    run_time: 3600
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	specs, err := ParseRotationFile(path)
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "storfuzz", specs[0].Engine)
	assert.Equal(t, Duration(24*time.Hour), specs[0].RunTime)
	assert.Equal(t, "libafl", specs[1].Engine)
	assert.Equal(t, Duration(time.Hour), specs[1].RunTime)
}

func TestParseRotationFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ParseRotationFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	empty := filepath.Join(dir, "empty.yaml")
	require.NoError(t, os.WriteFile(empty, []byte("rotation: []\n"), 0644))
	_, err = ParseRotationFile(empty)
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rotation:\n  - engine: libafl\n    run_time: soon\n"), 0644))
	_, err = ParseRotationFile(bad)
	assert.Error(t, err)
}

func TestParseRotationSpec(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		want    []PhaseSpec
		wantErr bool
	}{
		{
			name: "durations and seconds",
			spec: "wingfuzz=12h, libfuzzer=60",
			want: []PhaseSpec{
				{Engine: "wingfuzz", RunTime: Duration(12 * time.Hour)},
				{Engine: "libfuzzer", RunTime: Duration(time.Minute)},
			},
		},
		{name: "missing run time", spec: "libafl", wantErr: true},
		{name: "missing engine", spec: "=5s", wantErr: true},
		{name: "empty", spec: " , ", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRotationSpec(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoadRotationPrecedence(t *testing.T) {
	cfg := &AppConfig{}
	specs, err := cfg.LoadRotation()
	require.NoError(t, err)
	assert.Equal(t, "storfuzz", specs[0].Engine, "default preset")

	cfg.RotationPreset = "wingfuzz_libfuzzer"
	specs, err = cfg.LoadRotation()
	require.NoError(t, err)
	assert.Equal(t, "wingfuzz", specs[0].Engine)

	cfg.RotationSpec = "ddfuzz=1h"
	specs, err = cfg.LoadRotation()
	require.NoError(t, err)
	require.Len(t, specs, 1)
	assert.Equal(t, "ddfuzz", specs[0].Engine)

	cfg.RotationSpec = ""
	cfg.RotationPreset = "nope"
	_, err = cfg.LoadRotation()
	assert.Error(t, err)
}

func TestPresetReturnsCopy(t *testing.T) {
	specs, ok := Preset("libafl_libafl")
	require.True(t, ok)
	specs[0].Engine = "changed"

	again, _ := Preset("libafl_libafl")
	assert.Equal(t, "libafl", again[0].Engine)
	assert.Equal(t, []string{"ddfuzz_libafl", "libafl_libafl", "storfuzz_libafl", "wingfuzz_libfuzzer"}, PresetNames())
}
