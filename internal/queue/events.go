package queue

import "time"

// EventType identifies a queue progress event.
type EventType string

const (
	// EventQueued is emitted when segments become visible to the worker.
	EventQueued EventType = "QUEUED"
	// EventStarted is emitted when the worker picks up a segment.
	EventStarted EventType = "STARTED"
	// EventProgress is emitted after each segment reaches a terminal status,
	// carrying done/total counts for the session.
	EventProgress EventType = "PROGRESS"
	// EventCompleted is emitted when a segment transcription succeeds.
	EventCompleted EventType = "COMPLETED"
	// EventFailed is emitted when a transcription attempt fails. Terminal is
	// set once retries are exhausted.
	EventFailed EventType = "FAILED"
	// EventSessionDone is emitted when every segment of a session is terminal.
	EventSessionDone EventType = "SESSION_DONE"
)

// Event is one entry in the queue's progress stream. Subscribers (lifecycle,
// UI adapters) react to events; the queue never calls back into them
// synchronously beyond the handler invocation itself and depends on none.
type Event struct {
	Type      EventType
	SessionID string
	Seq       int
	Done      int
	Total     int
	Succeeded int
	Terminal  bool
	Err       string
	At        time.Time
}

// Subscriber receives queue events. Handlers run on the worker goroutine and
// must return promptly.
type Subscriber func(Event)
