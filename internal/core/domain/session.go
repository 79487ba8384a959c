package domain

// SessionState is the lifecycle state of one recording session.
type SessionState int

const (
	SessionIdle SessionState = iota
	SessionStarting
	SessionRunning
	SessionStopping
	SessionStopped
	SessionErrored
)

func (s SessionState) String() string {
	switch s {
	case SessionIdle:
		return "idle"
	case SessionStarting:
		return "starting"
	case SessionRunning:
		return "running"
	case SessionStopping:
		return "stopping"
	case SessionStopped:
		return "stopped"
	case SessionErrored:
		return "errored"
	}
	return "unknown"
}

// StreamStatus reports the supervisor's view of one configured stream.
type StreamStatus struct {
	Name    string
	Enabled bool
	State   SessionState
}

// SupervisorStatus is the full status report: one entry per configured
// stream plus the count of sessions currently running.
type SupervisorStatus struct {
	Streams       []StreamStatus
	ActiveStreams int
}

// Recording reports whether any session is spinning up or running. A
// session still in Starting counts: the encoder has been spawned even
// though liveness is not confirmed yet.
func (s SupervisorStatus) Recording() bool {
	for _, stream := range s.Streams {
		if stream.State == SessionStarting || stream.State == SessionRunning {
			return true
		}
	}
	return false
}
