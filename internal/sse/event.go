// Package sse reads and writes the text/event-stream frames used by the seed
// generation endpoint.
//
// See https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

const ContentType = "text/event-stream"

// Event names emitted by the generation stream.
const (
	EventStatus   = "status"
	EventFragment = "fragment"
	EventDone     = "done"
	EventError    = "error"
)

// Event is a single parsed frame, delimited by a blank line.
type Event struct {
	// Type is the "event:" field. Empty means the default "message" type.
	Type string

	// Data holds all "data:" lines joined with "\n".
	Data string

	ID string
}

type StatusPayload struct {
	Phase string `json:"phase"`
}

type FragmentPayload struct {
	Text string `json:"text"`
}

type DonePayload struct {
	Model      string `json:"model"`
	ArchiveKey string `json:"archive_key,omitempty"`
	SeedID     string `json:"seed_id,omitempty"`
}

type ErrorPayload struct {
	ErrorCode string `json:"error_code"`
	Message   string `json:"message"`
}
