package stats

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"switchfuzz/internal/layout"
	"switchfuzz/internal/phasestate"
	"switchfuzz/internal/proc"
	"switchfuzz/internal/rotation"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type tomlEngine string

func (e tomlEngine) Name() string { return string(e) }
func (e tomlEngine) Launch(context.Context, string, string, string) (proc.Handle, error) {
	return nil, nil
}
func (e tomlEngine) QueueDir(out string) string  { return filepath.Join(out, "queue") }
func (e tomlEngine) CrashDir(out string) string  { return filepath.Join(out, "crashes") }
func (e tomlEngine) StatsFile(out string) string { return filepath.Join(out, "stats.toml") }

type silentEngine string

func (e silentEngine) Name() string { return string(e) }
func (e silentEngine) Launch(context.Context, string, string, string) (proc.Handle, error) {
	return nil, nil
}
func (e silentEngine) QueueDir(out string) string { return filepath.Join(out, "queue") }
func (e silentEngine) CrashDir(out string) string { return filepath.Join(out, "crashes") }
func (e silentEngine) StatsFile(string) string    { return "" }

type fixture struct {
	store  *phasestate.FileStore
	layout layout.Layout
	agg    *Aggregator
}

func newFixture(t *testing.T, slots ...rotation.Slot) fixture {
	t.Helper()
	root := t.TempDir()
	l := layout.New(filepath.Join(root, "seeds"), filepath.Join(root, "corpus"), filepath.Join(root, "fuzzer"))
	require.NoError(t, os.MkdirAll(l.OutputCorpus, 0o755))

	rot, err := rotation.New(slots...)
	require.NoError(t, err)

	store := phasestate.NewFileStore(filepath.Join(root, "counter"), zap.NewNop())
	return fixture{
		store:  store,
		layout: l,
		agg:    NewAggregator(store, rot, l, newParser()),
	}
}

func (f fixture) writePhaseStats(t *testing.T, engine string, phase int, content string) {
	t.Helper()
	dir := f.layout.PhaseOutputDir(engine, phase)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "stats.toml"), []byte(content), 0o644))
}

func twoSlots() []rotation.Slot {
	return []rotation.Slot{
		{Engine: tomlEngine("storfuzz"), RunTime: time.Hour},
		{Engine: tomlEngine("libafl"), RunTime: time.Hour},
	}
}

func TestCollectPhaseZeroHasNoPrevKeys(t *testing.T) {
	f := newFixture(t, twoSlots()...)
	f.writePhaseStats(t, "storfuzz", 0, "[client_0]\ncorpus = 5\nobjectives = 1\n")

	report := f.agg.Collect()
	assert.Equal(t, 0, report[KeyPhase])
	assert.Equal(t, "storfuzz", report[KeyEngine])
	assert.Equal(t, int64(5), report[KeyCorpusCount])
	for k := range report {
		assert.NotContains(t, k, PrevPrefix)
	}
}

func TestCollectMergesPreviousPhase(t *testing.T) {
	f := newFixture(t, twoSlots()...)
	require.NoError(t, f.store.Write(3))
	f.writePhaseStats(t, "libafl", 3, "[client_0]\ncorpus = 50\nobjectives = 2\nedges = \"10/20\"\n")
	f.writePhaseStats(t, "storfuzz", 2, "[client_0]\ncorpus = 40\nobjectives = 1\n")

	out, err := f.agg.JSON()
	require.NoError(t, err)

	var report map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, float64(3), report["phase"])
	assert.Equal(t, "libafl", report["engine"])
	assert.Equal(t, float64(50), report["corpus_count"])
	assert.Equal(t, float64(10), report["edges_hit_count"])
	assert.Equal(t, float64(2), report["prev.phase"])
	assert.Equal(t, "storfuzz", report["prev.engine"])
	assert.Equal(t, float64(40), report["prev.corpus_count"])
	assert.Equal(t, float64(1), report["prev.crashes"])
}

func TestCollectPreviousStatsMissing(t *testing.T) {
	f := newFixture(t, twoSlots()...)
	require.NoError(t, f.store.Write(1))
	f.writePhaseStats(t, "libafl", 1, "[client_0]\ncorpus = 7\n")

	report := f.agg.Collect()
	assert.Equal(t, int64(7), report[KeyCorpusCount])
	assert.Equal(t, 0, report["prev.phase"])
	assert.Equal(t, "storfuzz", report["prev.engine"])
	assert.NotContains(t, report, "prev.corpus_count")
}

func TestCollectEngineWithoutStatsFile(t *testing.T) {
	f := newFixture(t,
		rotation.Slot{Engine: silentEngine("wingfuzz"), RunTime: time.Hour},
		rotation.Slot{Engine: silentEngine("libfuzzer"), RunTime: time.Hour},
	)
	require.NoError(t, f.store.Write(1))

	report := f.agg.Collect()
	assert.Equal(t, Report{
		"phase": 1, "engine": "libfuzzer",
		"prev.phase": 0, "prev.engine": "wingfuzz",
	}, report)
}

func TestPublisher(t *testing.T) {
	f := newFixture(t, twoSlots()...)
	assert.Nil(t, NewPublisher(f.agg, nil, "s", time.Second, zap.NewNop()))

	// nothing listens on port 1
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	defer client.Close()

	p := NewPublisher(f.agg, client, "bench-7", 0, zap.NewNop())
	require.NotNil(t, p)
	assert.Equal(t, "switchfuzz:stats:bench-7", p.Key())
	assert.Error(t, p.Publish(context.Background()))

	p.Start()
	p.Stop(context.Background())
}
