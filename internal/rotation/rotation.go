// Package rotation holds the fixed, cyclic list of engines a session runs.
package rotation

import (
	"errors"
	"fmt"
	"time"

	"switchfuzz/config"
	"switchfuzz/internal/engine"
)

var ErrEmptyRotation = errors.New("rotation has no slots")

// Slot runs Engine for RunTime before the scheduler rotates.
type Slot struct {
	Engine  engine.Engine
	RunTime time.Duration
}

// Rotation is immutable once built; phase i runs slot i mod Len().
type Rotation struct {
	slots []Slot
}

// New validates slots and copies them.
func New(slots ...Slot) (*Rotation, error) {
	r := &Rotation{slots: append([]Slot(nil), slots...)}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return r, nil
}

// FromSpecs resolves engine names against the registry.
func FromSpecs(specs []config.PhaseSpec, registry *engine.Registry) (*Rotation, error) {
	slots := make([]Slot, 0, len(specs))
	for i, spec := range specs {
		e, err := registry.Get(spec.Engine)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		slots = append(slots, Slot{Engine: e, RunTime: time.Duration(spec.RunTime)})
	}
	return New(slots...)
}

func (r *Rotation) Validate() error {
	if len(r.slots) == 0 {
		return ErrEmptyRotation
	}
	for i, slot := range r.slots {
		if slot.Engine == nil {
			return fmt.Errorf("slot %d has no engine", i)
		}
		if slot.RunTime <= 0 {
			return fmt.Errorf("slot %d (%s): run time must be positive, got %s", i, slot.Engine.Name(), slot.RunTime)
		}
	}
	return nil
}

func (r *Rotation) Len() int {
	return len(r.slots)
}

// At returns the slot of phase i.
func (r *Rotation) At(phase int) Slot {
	return r.slots[phase%len(r.slots)]
}

// Slots returns a copy of the slots in order.
func (r *Rotation) Slots() []Slot {
	return append([]Slot(nil), r.slots...)
}
