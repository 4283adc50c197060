package process

import "context"

// Stub is a Processor for tests: canned artifacts, optional error, and a
// record of the sessions it saw.
type Stub struct {
	Artifacts []Artifact
	Err       error

	Sessions []string
}

func (s *Stub) Name() string { return "stub" }

func (s *Stub) Process(_ context.Context, sessionID, _ string) ([]Artifact, error) {
	s.Sessions = append(s.Sessions, sessionID)
	if s.Err != nil {
		return nil, s.Err
	}
	return s.Artifacts, nil
}
