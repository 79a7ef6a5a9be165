// Package layout names every directory and file a fuzzing session touches.
//
// All names are derived from the session roots and the phase index only, so
// the scheduler and any number of stats readers agree on them without talking
// to each other.
package layout

import (
	"fmt"
	"path/filepath"
)

const (
	inputDirTmpl    = "input_%d"
	phaseDirTmpl    = "%s_%d" // <engine>_<phase>
	interruptedTmpl = "%s.interrupted-%s"
	partialTmpl     = "%s.partial-%s"
)

type Layout struct {
	InputCorpus  string
	OutputCorpus string
	TargetBinary string
}

func New(inputCorpus, outputCorpus, targetBinary string) Layout {
	return Layout{
		InputCorpus:  inputCorpus,
		OutputCorpus: outputCorpus,
		TargetBinary: targetBinary,
	}
}

// PhaseDirName is the name of the output dir of a phase run by engine.
func PhaseDirName(engine string, phase int) string {
	return fmt.Sprintf(phaseDirTmpl, engine, phase)
}

func (l Layout) PhaseOutputDir(engine string, phase int) string {
	return filepath.Join(l.OutputCorpus, PhaseDirName(engine, phase))
}

// PhaseInputDir is the seed corpus for phase 0 and a sibling
// "input_<phase>" of the seed corpus for every later phase.
func (l Layout) PhaseInputDir(phase int) string {
	if phase == 0 {
		return l.InputCorpus
	}
	return filepath.Join(filepath.Dir(filepath.Clean(l.InputCorpus)), fmt.Sprintf(inputDirTmpl, phase))
}

// EngineBinary returns where the build step leaves the target compiled for an
// engine: <dir(target)>/<subdir>/<base(target)>. An empty subdir means the
// engine uses the original target binary.
func (l Layout) EngineBinary(subdir string) string {
	if subdir == "" {
		return l.TargetBinary
	}
	return filepath.Join(filepath.Dir(l.TargetBinary), subdir, filepath.Base(l.TargetBinary))
}

// InterruptedDir is where an output dir left by a dead controller is moved.
func InterruptedDir(dir, suffix string) string {
	return fmt.Sprintf(interruptedTmpl, filepath.Clean(dir), suffix)
}

// PartialDir is the staging name used while a directory is being filled.
func PartialDir(dir, suffix string) string {
	return fmt.Sprintf(partialTmpl, filepath.Clean(dir), suffix)
}

// PartialGlob matches every staging dir of dir.
func PartialGlob(dir string) string {
	return fmt.Sprintf(partialTmpl, filepath.Clean(dir), "*")
}
