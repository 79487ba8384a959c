package domain

// Severity classifies a notification for the UI.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is anything the core pushes to the UI channel.
type Event interface {
	Kind() string
}

// Notification is a user-facing message.
type Notification struct {
	Title    string
	Body     string
	Severity Severity
}

func (Notification) Kind() string { return "notification" }

// RecordingState reports a recording state change. Recording covers
// Starting sessions too; ActiveStreams counts confirmed Running ones.
type RecordingState struct {
	StreamName    string
	State         SessionState
	Recording     bool
	ActiveStreams int
}

func (RecordingState) Kind() string { return "recording_state" }
