package pipeline

// State is a step of the session lifecycle:
// Starting -> Running -> (Stopping | Faulted) -> Terminated.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateStopping
	StateFaulted
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateFaulted:
		return "faulted"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// ExitCode maps the outcome of a session to a process exit code.
func ExitCode(err error) int {
	if err != nil {
		return 1
	}
	return 0
}
