package types

import "time"

// Phase identifies one run of one engine within a session
type Phase struct {
	Session   string `json:"session"`
	Index     int    `json:"phase"`
	Engine    string `json:"engine"`
	InputDir  string `json:"input_dir"`
	OutputDir string `json:"output_dir"`
}

type PhaseEventKind string

const (
	PhaseStarted     PhaseEventKind = "phase_started"
	PhaseRotated     PhaseEventKind = "phase_rotated"
	PhaseExitedEarly PhaseEventKind = "phase_exited_early"
	PhaseFailed      PhaseEventKind = "phase_failed"
	PhaseInterrupted PhaseEventKind = "phase_interrupted"
)

// PhaseEvent is broadcast on every scheduler transition
type PhaseEvent struct {
	Kind         PhaseEventKind `json:"kind"`
	Phase        Phase          `json:"phase_info"`
	Time         time.Time      `json:"time"`
	Stats        map[string]any `json:"stats,omitempty"`
	CorpusCount  int            `json:"corpus_count,omitempty"` // files handed over to the next phase
	Error        string         `json:"error,omitempty"`
	TraceContext string         `json:"trace_context,omitempty"`
}
