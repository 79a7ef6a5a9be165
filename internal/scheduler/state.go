package scheduler

// State is where the scheduler is in the current phase.
type State int32

const (
	Idle State = iota
	Launching
	Running
	Rotating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Launching:
		return "launching"
	case Running:
		return "running"
	case Rotating:
		return "rotating"
	default:
		return "unknown"
	}
}
