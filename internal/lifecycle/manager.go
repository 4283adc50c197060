// Package lifecycle owns the session state machine: creation, finalization,
// reopening, interruption recovery, and the post-transcription march to READY.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"voicevault/internal/capture"
	"voicevault/internal/contextutil"
	"voicevault/internal/process"
	"voicevault/internal/store"
)

var (
	// ErrStateConflict means the operation is invalid for the session's
	// current state. It is synchronous and side-effect free.
	ErrStateConflict = errors.New("operation invalid for session state")
	// ErrActiveSessionExists means the owner already has a COLLECTING
	// session. One open capture at a time per owner.
	ErrActiveSessionExists = errors.New("owner already has an active session")
	// ErrNoSegments means finalize was called on a session with no audio.
	ErrNoSegments = errors.New("session has no segments to finalize")
)

// Enqueuer nudges the transcription worker after a session is finalized.
type Enqueuer interface {
	Enqueue(ctx context.Context, sessionID string)
}

// Assembler consolidates per-segment transcripts into one document.
type Assembler interface {
	Assemble(ctx context.Context, sessionID string) (string, error)
}

// SearchIndex is the slice of the search engine the lifecycle drives:
// embedding a finished session's corpus and refreshing the index.
type SearchIndex interface {
	EmbedSession(ctx context.Context, sessionID string) error
	Rebuild(ctx context.Context) error
}

// OrphanScanner reports audio files on disk that no session references.
type OrphanScanner interface {
	RecoverOrphans(ctx context.Context) ([]capture.Orphan, error)
}

// Processor consumes a READY session's consolidated transcript downstream.
type Processor = process.Processor

// Manager drives sessions through their states. All state writes go through
// the store's atomic update path; the manager holds no session state itself.
type Manager struct {
	store      *store.Store
	queue      Enqueuer
	assembler  Assembler
	search     SearchIndex
	orphans    OrphanScanner
	processor  Processor
	staleAfter time.Duration
	now        func() time.Time
}

// Options configures a Manager. Queue and Assembler are required; Search and
// Orphans may be nil, disabling embedding and orphan-based interruption
// detection respectively.
type Options struct {
	Queue      Enqueuer
	Assembler  Assembler
	Search     SearchIndex
	Orphans    OrphanScanner
	Processor  Processor
	StaleAfter time.Duration
	Now        func() time.Time
}

// NewManager creates a lifecycle manager over the given store.
func NewManager(st *store.Store, opts Options) *Manager {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 30 * time.Minute
	}
	return &Manager{
		store:      st,
		queue:      opts.Queue,
		assembler:  opts.Assembler,
		search:     opts.Search,
		orphans:    opts.Orphans,
		processor:  opts.Processor,
		staleAfter: opts.StaleAfter,
		now:        opts.Now,
	}
}

// Create opens a new COLLECTING session for the owner. An owner with a
// session already collecting gets ErrActiveSessionExists; the existing
// session must be finalized, recovered, or discarded first.
func (m *Manager) Create(ctx context.Context, ownerID, name string) (*store.Session, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if ownerID == "" {
		return nil, errors.New("owner id is required")
	}

	sessions, err := m.store.List(ctx)
	if err != nil {
		logger.WarnContext(ctx, "create proceeding past unreadable sessions", slog.String("error", err.Error()))
	}
	for _, s := range sessions {
		if s.OwnerID == ownerID && s.State == store.StateCollecting {
			return nil, fmt.Errorf("session %s: %w", s.ID, ErrActiveSessionExists)
		}
	}

	now := m.now().UTC()
	sess := &store.Session{
		ID:         newSessionID(now),
		State:      store.StateCollecting,
		OwnerID:    ownerID,
		CreatedAt:  now,
		Name:       name,
		NameSource: store.NameUser,
	}
	if name == "" {
		sess.Name = "Voice note " + now.Format("2006-01-02 15:04")
		sess.NameSource = store.NameAuto
	}

	if err := m.store.Create(sess); err != nil {
		return nil, err
	}
	logger.InfoContext(ctx, "session created",
		slog.String("session_id", sess.ID),
		slog.String("owner_id", ownerID))
	return sess, nil
}

// Finalize moves a COLLECTING session with at least one segment to
// TRANSCRIBING and nudges the queue. The segments are already PENDING on
// disk, so the single state write is the enqueue: there is no separate queue
// record to get out of sync.
func (m *Manager) Finalize(ctx context.Context, id string) (*store.Session, error) {
	logger := contextutil.LoggerFromContext(ctx)

	sess, err := m.store.Update(id, func(s *store.Session) error {
		if s.State != store.StateCollecting {
			return fmt.Errorf("finalize in state %s: %w", s.State, ErrStateConflict)
		}
		if len(s.Segments) == 0 {
			return ErrNoSegments
		}
		now := m.now().UTC()
		s.State = store.StateTranscribing
		s.FinalizedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.queue.Enqueue(ctx, id)
	logger.InfoContext(ctx, "session finalized",
		slog.String("session_id", id),
		slog.Int("segments", len(sess.Segments)))
	return sess, nil
}

// Reopen returns a READY session to COLLECTING for more audio. Prior
// segments and responses are untouched; new segments continue the sequence.
func (m *Manager) Reopen(ctx context.Context, id string) (*store.Session, error) {
	logger := contextutil.LoggerFromContext(ctx)

	sess, err := m.store.Update(id, func(s *store.Session) error {
		if s.State != store.StateReady {
			return fmt.Errorf("reopen in state %s: %w", s.State, ErrStateConflict)
		}
		now := m.now().UTC()
		s.State = store.StateCollecting
		s.ReopenCount++
		s.FinalizedAt = nil
		s.ResumedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "session reopened",
		slog.String("session_id", id),
		slog.Int("reopen_count", sess.ReopenCount))
	return sess, nil
}

// Get loads a session.
func (m *Manager) Get(ctx context.Context, id string) (*store.Session, error) {
	return m.store.Load(id)
}

// List returns all sessions.
func (m *Manager) List(ctx context.Context) ([]*store.Session, error) {
	return m.store.List(ctx)
}

func newSessionID(now time.Time) string {
	suffix := strings.SplitN(uuid.NewString(), "-", 2)[0]
	return now.Format("20060102T150405") + "-" + suffix
}
