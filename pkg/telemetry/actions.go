package telemetry

type ActionCategory int

const (
	Fuzzing ActionCategory = iota
	CorpusTransfer
	CrashCollection
	Reporting
)

func (a ActionCategory) String() string {
	switch a {
	case Fuzzing:
		return "fuzzing"
	case CorpusTransfer:
		return "corpus_transfer"
	case CrashCollection:
		return "crash_collection"
	case Reporting:
		return "reporting"
	default:
		return "unknown"
	}
}
