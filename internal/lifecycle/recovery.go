package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voicevault/internal/contextutil"
	"voicevault/internal/store"
)

// Action is a recovery decision for an interrupted session.
type Action string

const (
	// ActionResume clears the interruption and keeps collecting.
	ActionResume Action = "RESUME"
	// ActionFinalize finalizes over the segments already captured.
	ActionFinalize Action = "FINALIZE"
	// ActionDiscard marks the session discarded. Audio files stay on disk
	// for manual inspection.
	ActionDiscard Action = "DISCARD"
)

// ParseAction validates a recovery action string.
func ParseAction(s string) (Action, error) {
	switch Action(s) {
	case ActionResume, ActionFinalize, ActionDiscard:
		return Action(s), nil
	default:
		return "", fmt.Errorf("unknown recovery action %q", s)
	}
}

// InterruptedSession is a derived view of a COLLECTING session that looks
// abandoned. Nothing is persisted for it; the session on disk still says
// COLLECTING.
type InterruptedSession struct {
	SessionID    string    `json:"session_id"`
	Reason       string    `json:"reason"`
	LastActivity time.Time `json:"last_activity"`
	OrphanCount  int       `json:"orphan_count,omitempty"`
}

// DetectInterrupted scans COLLECTING sessions for staleness and orphan
// files. It mutates nothing; acting on a finding is a separate Recover call.
func (m *Manager) DetectInterrupted(ctx context.Context) ([]InterruptedSession, error) {
	logger := contextutil.LoggerFromContext(ctx)

	sessions, err := m.store.List(ctx)
	if err != nil && len(sessions) == 0 {
		return nil, err
	}

	orphansBySession := map[string]int{}
	if m.orphans != nil {
		found, err := m.orphans.RecoverOrphans(ctx)
		if err != nil {
			logger.WarnContext(ctx, "orphan scan failed during interruption check", slog.String("error", err.Error()))
		}
		for _, o := range found {
			orphansBySession[o.SessionID]++
		}
	}

	now := m.now().UTC()
	var interrupted []InterruptedSession
	for _, s := range sessions {
		if s.State != store.StateCollecting {
			continue
		}
		last := s.LastActivity()
		stale := now.Sub(last) > m.staleAfter
		orphanCount := orphansBySession[s.ID]
		if !stale && orphanCount == 0 {
			continue
		}

		reason := "stale"
		if orphanCount > 0 {
			reason = "orphan files"
			if stale {
				reason = "stale, orphan files"
			}
		}
		interrupted = append(interrupted, InterruptedSession{
			SessionID:    s.ID,
			Reason:       reason,
			LastActivity: last,
			OrphanCount:  orphanCount,
		})
	}
	return interrupted, nil
}

// Recover resolves an interrupted COLLECTING session. RESUME stamps fresh
// activity and keeps collecting; FINALIZE hands the captured segments to the
// queue; DISCARD marks the session terminal without deleting any file.
func (m *Manager) Recover(ctx context.Context, id string, action Action) (*store.Session, error) {
	logger := contextutil.LoggerFromContext(ctx)

	switch action {
	case ActionFinalize:
		return m.Finalize(ctx, id)

	case ActionResume:
		sess, err := m.store.Update(id, func(s *store.Session) error {
			if s.State != store.StateCollecting {
				return fmt.Errorf("resume in state %s: %w", s.State, ErrStateConflict)
			}
			now := m.now().UTC()
			s.ResumedAt = &now
			return nil
		})
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "session resumed", slog.String("session_id", id))
		return sess, nil

	case ActionDiscard:
		sess, err := m.store.Update(id, func(s *store.Session) error {
			if s.State.Terminal() {
				return fmt.Errorf("discard in state %s: %w", s.State, ErrStateConflict)
			}
			s.State = store.StateDiscarded
			return nil
		})
		if err != nil {
			return nil, err
		}
		logger.InfoContext(ctx, "session discarded, files kept", slog.String("session_id", id))
		return sess, nil

	default:
		return nil, fmt.Errorf("unknown recovery action %q", action)
	}
}
