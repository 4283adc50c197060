package transcribe

import (
	"context"
	"fmt"
	"sync"
)

// Stub is a Transcriber for tests: it returns canned text, optionally fails a
// configurable number of times first, and records every call.
type Stub struct {
	mu sync.Mutex

	// Text returned on success. When empty, the audio path is echoed back.
	Text string
	// FailFirst makes the first N calls per path return an error.
	FailFirst int
	// Err overrides the default failure error.
	Err error
	// Block, when set, makes calls wait for ctx cancellation and return ctx.Err().
	Block bool

	calls map[string]int
}

func (s *Stub) Transcribe(ctx context.Context, audioPath string) (Result, error) {
	s.mu.Lock()
	if s.calls == nil {
		s.calls = make(map[string]int)
	}
	s.calls[audioPath]++
	n := s.calls[audioPath]
	s.mu.Unlock()

	if s.Block {
		<-ctx.Done()
		return Result{}, ctx.Err()
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	if n <= s.FailFirst {
		if s.Err != nil {
			return Result{}, s.Err
		}
		return Result{}, fmt.Errorf("stub failure %d for %s", n, audioPath)
	}

	text := s.Text
	if text == "" {
		text = "transcript of " + audioPath
	}
	return Result{Text: text}, nil
}

// Calls returns how many times the given path was transcribed.
func (s *Stub) Calls(audioPath string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[audioPath]
}
