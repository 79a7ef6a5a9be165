package rotation

import (
	"context"
	"testing"
	"time"

	"switchfuzz/config"
	"switchfuzz/internal/engine"
	"switchfuzz/internal/proc"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedEngine string

func (n namedEngine) Name() string { return string(n) }
func (n namedEngine) Launch(context.Context, string, string, string) (proc.Handle, error) {
	return nil, nil
}
func (n namedEngine) QueueDir(out string) string  { return out }
func (n namedEngine) CrashDir(out string) string  { return out }
func (n namedEngine) StatsFile(out string) string { return "" }

func TestAtCycles(t *testing.T) {
	r, err := New(
		Slot{Engine: namedEngine("A"), RunTime: time.Second},
		Slot{Engine: namedEngine("B"), RunTime: 2 * time.Second},
	)
	require.NoError(t, err)
	assert.Equal(t, 2, r.Len())

	assert.Equal(t, "A", r.At(0).Engine.Name())
	assert.Equal(t, "B", r.At(1).Engine.Name())
	assert.Equal(t, "A", r.At(4).Engine.Name())
	assert.Equal(t, "B", r.At(5).Engine.Name())
	assert.Equal(t, 2*time.Second, r.At(5).RunTime)
}

func TestValidate(t *testing.T) {
	_, err := New()
	assert.ErrorIs(t, err, ErrEmptyRotation)

	_, err = New(Slot{Engine: namedEngine("A"), RunTime: 0})
	assert.Error(t, err)

	_, err = New(Slot{Engine: namedEngine("A"), RunTime: -time.Second})
	assert.Error(t, err)

	_, err = New(Slot{RunTime: time.Second})
	assert.Error(t, err)
}

func TestSlotsIsACopy(t *testing.T) {
	r, err := New(Slot{Engine: namedEngine("A"), RunTime: time.Second})
	require.NoError(t, err)

	slots := r.Slots()
	slots[0].RunTime = time.Hour
	assert.Equal(t, time.Second, r.At(0).RunTime)
}

func TestFromSpecs(t *testing.T) {
	registry := engine.NewStaticRegistry(namedEngine("libafl"), namedEngine("storfuzz"))

	r, err := FromSpecs([]config.PhaseSpec{
		{Engine: "storfuzz", RunTime: config.Duration(24 * time.Hour)},
		{Engine: "libafl", RunTime: config.Duration(24 * time.Hour)},
	}, registry)
	require.NoError(t, err)
	assert.Equal(t, "storfuzz", r.At(0).Engine.Name())
	assert.Equal(t, 24*time.Hour, r.At(1).RunTime)

	_, err = FromSpecs([]config.PhaseSpec{{Engine: "honggfuzz", RunTime: config.Duration(time.Hour)}}, registry)
	assert.ErrorIs(t, err, engine.ErrUnknownEngine)
}
