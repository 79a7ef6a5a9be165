package stats

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newParser() *Parser {
	return NewParser("client_0", zap.NewNop())
}

func writeStats(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestParseMissingFile(t *testing.T) {
	report := newParser().Parse(filepath.Join(t.TempDir(), "stats.toml"))
	assert.NotNil(t, report)
	assert.Empty(t, report)
}

func TestParseLibAFLStats(t *testing.T) {
	path := writeStats(t, "stats.toml", `
[global]
run_time = "1h-2m-3s"
clients = 2
corpus = 120
objectives = 3
executions = 1000000
exec_sec = 512.5

[client_0]
corpus = 100
objectives = 1
edges = "12/34"
data = "no ratio here"
`)
	report := newParser().Parse(path)

	// global is merged last and wins
	assert.Equal(t, int64(120), report["corpus"])
	assert.Equal(t, int64(120), report[KeyCorpusCount])
	assert.Equal(t, int64(3), report[KeyCrashes])
	assert.Equal(t, 512.5, report["exec_sec"])

	assert.Equal(t, "12/34", report["edges"])
	assert.Equal(t, int64(12), report["edges_hit_count"])
	assert.Equal(t, int64(34), report["edges_total"])

	assert.Equal(t, "no ratio here", report["data"])
	assert.NotContains(t, report, "data_hit_count")
}

func TestParseRatioInsideText(t *testing.T) {
	path := writeStats(t, "stats.toml", "[client_0]\ndata = \"7/9 (77%)\"\n")
	report := newParser().Parse(path)
	assert.Equal(t, int64(7), report["data_hit_count"])
	assert.Equal(t, int64(9), report["data_total"])
}

func TestParseMalformedGlobalKeepsInstance(t *testing.T) {
	path := writeStats(t, "stats.toml", `
[client_0]
corpus = 42
objectives = 0
edges = "5/10"

[global]
corpus = = broken
objectives "oops"
`)
	report := newParser().Parse(path)
	assert.Equal(t, int64(42), report[KeyCorpusCount])
	assert.Equal(t, int64(0), report[KeyCrashes])
	assert.Equal(t, int64(5), report["edges_hit_count"])
}

func TestParseMissingInstanceSection(t *testing.T) {
	path := writeStats(t, "stats.toml", "[global]\ncorpus = 9\nobjectives = 2\n")
	report := newParser().Parse(path)
	assert.Equal(t, int64(9), report[KeyCorpusCount])
	assert.Equal(t, int64(2), report[KeyCrashes])
}

func TestParseCustomInstanceSection(t *testing.T) {
	path := writeStats(t, "stats.toml", "[client_0]\ncorpus = 1\n\n[client_1]\ncorpus = 2\n")
	report := NewParser("client_1", zap.NewNop()).Parse(path)
	assert.Equal(t, int64(2), report[KeyCorpusCount])
}

func TestParseAFLFuzzerStats(t *testing.T) {
	path := writeStats(t, "fuzzer_stats", `start_time        : 1700000000
execs_done        : 123456
execs_per_sec     : 2048.17
corpus_count      : 77
saved_crashes     : 4
bitmap_cvg        : 12.34%
afl_version       : ++4.21c
target_mode       : shmem_testcase default
`)
	report := newParser().Parse(path)
	assert.Equal(t, int64(123456), report["execs_done"])
	assert.Equal(t, 2048.17, report["execs_per_sec"])
	assert.Equal(t, int64(77), report[KeyCorpusCount])
	assert.Equal(t, int64(4), report[KeyCrashes])
	assert.Equal(t, "12.34%", report["bitmap_cvg"])
	assert.Equal(t, "shmem_testcase default", report["target_mode"])
}

func TestParseRatioOnlyForCoverageFields(t *testing.T) {
	path := writeStats(t, "fuzzer_stats", `corpus_count      : 3
command_line      : afl-fuzz -i /work/input_12/34 -o /work/out -- ./target
`)
	report := newParser().Parse(path)
	assert.Equal(t, "afl-fuzz -i /work/input_12/34 -o /work/out -- ./target", report["command_line"])
	assert.NotContains(t, report, "command_line_hit_count")
	assert.NotContains(t, report, "command_line_total")
}

func TestParseNonFiniteFloatsStayEncodable(t *testing.T) {
	afl := writeStats(t, "fuzzer_stats", `execs_per_sec     : nan
stability         : inf
corpus_count      : 1
`)
	report := newParser().Parse(afl)
	assert.Equal(t, "NaN", report["execs_per_sec"])
	assert.Equal(t, "+Inf", report["stability"])
	_, err := report.JSON()
	require.NoError(t, err)

	libafl := writeStats(t, "stats.toml", `[client_0]
corpus = 4
exec_sec = nan
ratio = -inf
`)
	report = newParser().Parse(libafl)
	assert.Equal(t, int64(4), report[KeyCorpusCount])
	assert.Equal(t, "NaN", report["exec_sec"])
	assert.Equal(t, "-Inf", report["ratio"])
	out, err := report.JSON()
	require.NoError(t, err)
	assert.Contains(t, out, `"exec_sec":"NaN"`)
}

func TestSplitSections(t *testing.T) {
	sections := splitSections([]byte(`title = "ignored"
[global]  # comment
a = 1
[[array]]
b = 2
["client_0"]
c = [1, 2]
`))
	assert.Equal(t, []string{"a = 1\n"}, sections["global"])
	assert.Equal(t, []string{"c = [1, 2]\n"}, sections["client_0"])
	assert.NotContains(t, sections, "")
	assert.NotContains(t, sections, "array")
}

func TestReportJSON(t *testing.T) {
	r := Report{"phase": 1}
	r.Merge(PrevPrefix, Report{"crashes": 2})
	out, err := r.JSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"phase":1,"prev.crashes":2}`, out)
}
