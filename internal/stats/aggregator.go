package stats

import (
	"switchfuzz/internal/layout"
	"switchfuzz/internal/phasestate"
	"switchfuzz/internal/rotation"
)

// Aggregator answers stats queries from the filesystem alone, so it can run
// in any process next to a live scheduler.
type Aggregator struct {
	store    phasestate.Store
	rotation *rotation.Rotation
	layout   layout.Layout
	parser   *Parser
}

func NewAggregator(store phasestate.Store, rot *rotation.Rotation, l layout.Layout, parser *Parser) *Aggregator {
	return &Aggregator{
		store:    store,
		rotation: rot,
		layout:   l,
		parser:   parser,
	}
}

// Collect reports the current phase and, from phase 1 on, the previous one
// under the "prev." prefix.
func (a *Aggregator) Collect() Report {
	phase := a.store.Read()

	report := a.phaseReport(phase)
	if phase >= 1 {
		report.Merge(PrevPrefix, a.phaseReport(phase-1))
	}
	return report
}

func (a *Aggregator) JSON() (string, error) {
	return a.Collect().JSON()
}

func (a *Aggregator) phaseReport(phase int) Report {
	slot := a.rotation.At(phase)
	name := slot.Engine.Name()

	report := Report{}
	if statsFile := slot.Engine.StatsFile(a.layout.PhaseOutputDir(name, phase)); statsFile != "" {
		report = a.parser.Parse(statsFile)
	}
	report[KeyPhase] = phase
	report[KeyEngine] = name
	return report
}
