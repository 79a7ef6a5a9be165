package types

type CrashMessage struct {
	CrashFile string // path to the crash file on local filesystem
	Phase     *Phase
}
