package layout

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhaseDirs(t *testing.T) {
	l := New("/work/seeds", "/work/out", "/out/fuzz-target")

	assert.Equal(t, "storfuzz_3", PhaseDirName("storfuzz", 3))
	assert.Equal(t, "/work/out/libafl_0", l.PhaseOutputDir("libafl", 0))

	assert.Equal(t, "/work/seeds", l.PhaseInputDir(0))
	assert.Equal(t, "/work/input_1", l.PhaseInputDir(1))
	assert.Equal(t, "/work/input_12", New("/work/seeds/", "", "").PhaseInputDir(12))
}

func TestEngineBinary(t *testing.T) {
	l := New("", "", "/out/fuzz-target")
	assert.Equal(t, "/out/fuzz-target", l.EngineBinary(""))
	assert.Equal(t, "/out/wingfuzz/fuzz-target", l.EngineBinary("wingfuzz"))
}

func TestStagingNames(t *testing.T) {
	assert.Equal(t, "/w/input_2.partial-abc", PartialDir("/w/input_2/", "abc"))
	assert.Equal(t, "/o/libafl_1.interrupted-x", InterruptedDir("/o/libafl_1", "x"))

	matched, err := filepath.Match(PartialGlob("/w/input_2"), "/w/input_2.partial-1234")
	assert.NoError(t, err)
	assert.True(t, matched)
}
