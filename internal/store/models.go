package store

import "time"

// SessionState is the lifecycle state of a session.
type SessionState string

const (
	StateCollecting   SessionState = "COLLECTING"
	StateInterrupted  SessionState = "INTERRUPTED"
	StateTranscribing SessionState = "TRANSCRIBING"
	StateTranscribed  SessionState = "TRANSCRIBED"
	StateEmbedding    SessionState = "EMBEDDING"
	StateReady        SessionState = "READY"
	StateDiscarded    SessionState = "DISCARDED"
	StateError        SessionState = "ERROR"
)

// Terminal reports whether the state admits no further transitions.
func (s SessionState) Terminal() bool {
	return s == StateDiscarded || s == StateError
}

// SegmentStatus is the transcription status of an audio segment.
type SegmentStatus string

const (
	SegmentPending SegmentStatus = "PENDING"
	SegmentSuccess SegmentStatus = "SUCCESS"
	SegmentFailed  SegmentStatus = "FAILED"
)

// NameSource records where a session name came from.
type NameSource string

const (
	NameAuto NameSource = "auto"
	NameUser NameSource = "user"
)

// AudioSegment is one captured audio unit within a session.
// Seq and Filename are assigned once and never change.
type AudioSegment struct {
	Seq             int           `json:"seq"`
	ReceivedAt      time.Time     `json:"received_at"`
	SourceRef       string        `json:"source_ref,omitempty"`
	Filename        string        `json:"filename"`
	SizeBytes       int64         `json:"size_bytes"`
	DurationSeconds float64       `json:"duration_seconds,omitempty"`
	Checksum        string        `json:"checksum"`
	Status          SegmentStatus `json:"status"`
	Retries         int           `json:"retries,omitempty"`
	Transcript      string        `json:"transcript,omitempty"`
	LastError       string        `json:"last_error,omitempty"`
}

// ProcessingResponse records one output from a downstream processor run.
type ProcessingResponse struct {
	Processor string    `json:"processor"`
	CreatedAt time.Time `json:"created_at"`
	Success   bool      `json:"success"`
	Artifacts []string  `json:"artifacts,omitempty"`
	Error     string    `json:"error,omitempty"`
}

// ErrorEntry is one entry in a session's error log.
type ErrorEntry struct {
	At      time.Time `json:"at"`
	Message string    `json:"message"`
}

// Session is the unit of work: one voice-note capture session and
// everything derived from it.
type Session struct {
	ID          string               `json:"id"`
	State       SessionState         `json:"state"`
	Name        string               `json:"name"`
	NameSource  NameSource           `json:"name_source"`
	OwnerID     string               `json:"owner_id"`
	CreatedAt   time.Time            `json:"created_at"`
	FinalizedAt *time.Time           `json:"finalized_at,omitempty"`
	ResumedAt   *time.Time           `json:"resumed_at,omitempty"`
	Segments    []AudioSegment       `json:"segments"`
	Responses   []ProcessingResponse `json:"responses,omitempty"`
	Errors      []ErrorEntry         `json:"errors,omitempty"`
	ReopenCount int                  `json:"reopen_count"`
}

// NextSeq returns the sequence number the next captured segment must use.
// Sequence numbers are contiguous starting at 1.
func (s *Session) NextSeq() int {
	return len(s.Segments) + 1
}

// Segment returns the segment with the given sequence number, or nil.
func (s *Session) Segment(seq int) *AudioSegment {
	if seq < 1 || seq > len(s.Segments) {
		return nil
	}
	return &s.Segments[seq-1]
}

// LastActivity returns the most recent of creation, explicit resume, and
// segment receipt times.
func (s *Session) LastActivity() time.Time {
	latest := s.CreatedAt
	if s.ResumedAt != nil && s.ResumedAt.After(latest) {
		latest = *s.ResumedAt
	}
	for _, seg := range s.Segments {
		if seg.ReceivedAt.After(latest) {
			latest = seg.ReceivedAt
		}
	}
	return latest
}

// LogError appends a message to the session's error log.
func (s *Session) LogError(at time.Time, msg string) {
	s.Errors = append(s.Errors, ErrorEntry{At: at, Message: msg})
}
