// Package transcribe provides the speech-to-text collaborator interface.
//
// The queue is the only invoker. Implementations must be safe to call
// repeatedly for the same audio file: retries re-submit the same path.
package transcribe

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_transcriber.go -package=mocks voicevault/internal/transcribe Transcriber

import "context"

// Result is the outcome of one transcription call.
type Result struct {
	Text string
}

// Transcriber converts an audio file to text.
type Transcriber interface {
	// Transcribe reads the audio file at path and returns its transcript.
	// The caller bounds the call with a context deadline.
	Transcribe(ctx context.Context, audioPath string) (Result, error)
}
