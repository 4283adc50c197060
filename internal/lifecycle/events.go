package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"voicevault/internal/contextutil"
	"voicevault/internal/process"
	"voicevault/internal/queue"
	"voicevault/internal/search"
	"voicevault/internal/store"
)

// HandleQueueEvent reacts to queue progress. Only SESSION_DONE matters here:
// it carries the signal that every segment of a TRANSCRIBING session reached
// a terminal status. The queue emits events one way; the lifecycle never gets
// called back synchronously by queue internals beyond this handler.
func (m *Manager) HandleQueueEvent(ev queue.Event) {
	if ev.Type != queue.EventSessionDone {
		return
	}
	ctx := context.Background()
	if err := m.completeSession(ctx, ev.SessionID, ev.Succeeded); err != nil {
		contextutil.LoggerFromContext(ctx).Error("session completion failed",
			slog.String("session_id", ev.SessionID),
			slog.String("error", err.Error()))
	}
}

// completeSession takes a fully-drained session the rest of the way:
// TRANSCRIBING → TRANSCRIBED → consolidated transcript → EMBEDDING → READY.
// Zero transcription successes is an unrecoverable outcome: the session goes
// to ERROR with all data kept. An embedding failure is softer; the session
// stays TRANSCRIBED and search degrades to name matching.
func (m *Manager) completeSession(ctx context.Context, id string, succeeded int) error {
	logger := contextutil.LoggerFromContext(ctx)

	if succeeded == 0 {
		_, err := m.store.Update(id, func(s *store.Session) error {
			if s.State != store.StateTranscribing {
				return fmt.Errorf("complete in state %s: %w", s.State, ErrStateConflict)
			}
			s.State = store.StateError
			s.LogError(m.now().UTC(), "transcription failed for every segment")
			return nil
		})
		return err
	}

	if _, err := m.store.Update(id, func(s *store.Session) error {
		if s.State != store.StateTranscribing {
			return fmt.Errorf("complete in state %s: %w", s.State, ErrStateConflict)
		}
		s.State = store.StateTranscribed
		return nil
	}); err != nil {
		return err
	}

	if _, err := m.assembler.Assemble(ctx, id); err != nil {
		_, uerr := m.store.Update(id, func(s *store.Session) error {
			s.LogError(m.now().UTC(), "transcript assembly: "+err.Error())
			return nil
		})
		return errors.Join(fmt.Errorf("assembling transcript for %s: %w", id, err), uerr)
	}

	m.maybeAutoName(ctx, id)

	if m.search == nil {
		return m.markReady(ctx, id)
	}

	if _, err := m.store.Update(id, func(s *store.Session) error {
		s.State = store.StateEmbedding
		return nil
	}); err != nil {
		return err
	}

	if err := m.search.EmbedSession(ctx, id); err != nil {
		if errors.Is(err, search.ErrEmbeddingsDisabled) {
			return m.markReady(ctx, id)
		}
		logger.WarnContext(ctx, "embedding failed, session stays searchable by name",
			slog.String("session_id", id),
			slog.String("error", err.Error()))
		_, uerr := m.store.Update(id, func(s *store.Session) error {
			s.State = store.StateTranscribed
			s.LogError(m.now().UTC(), "embedding: "+err.Error())
			return nil
		})
		return uerr
	}

	return m.markReady(ctx, id)
}

func (m *Manager) markReady(ctx context.Context, id string) error {
	logger := contextutil.LoggerFromContext(ctx)

	if _, err := m.store.Update(id, func(s *store.Session) error {
		s.State = store.StateReady
		return nil
	}); err != nil {
		return err
	}
	logger.InfoContext(ctx, "session ready", slog.String("session_id", id))

	if m.search != nil {
		if err := m.search.Rebuild(ctx); err != nil {
			logger.WarnContext(ctx, "index rebuild failed", slog.String("error", err.Error()))
		}
	}

	if m.processor != nil {
		resp, err := process.Run(ctx, m.store, m.processor, id)
		if err != nil {
			logger.WarnContext(ctx, "processor response not recorded",
				slog.String("session_id", id),
				slog.String("error", err.Error()))
		} else if !resp.Success {
			logger.WarnContext(ctx, "processor failed",
				slog.String("session_id", id),
				slog.String("error", resp.Error))
		}
	}
	return nil
}

// maybeAutoName replaces a placeholder auto-generated name with the opening
// words of the consolidated transcript. User-chosen names are never touched.
func (m *Manager) maybeAutoName(ctx context.Context, id string) {
	logger := contextutil.LoggerFromContext(ctx)

	sess, err := m.store.Load(id)
	if err != nil || sess.NameSource != store.NameAuto {
		return
	}

	content, err := os.ReadFile(m.store.ConsolidatedPath(id))
	if err != nil {
		return
	}
	name := openingWords(search.ExtractCorpus(content), sess.Name)
	if name == sess.Name {
		return
	}

	if _, err := m.store.Update(id, func(s *store.Session) error {
		if s.NameSource != store.NameAuto {
			return nil
		}
		s.Name = name
		return nil
	}); err != nil {
		logger.WarnContext(ctx, "auto-naming failed", slog.String("session_id", id))
	}
}

// openingWords takes up to six words of prose as a session name, skipping
// the title and timestamp lines the assembler writes.
func openingWords(corpus, fallback string) string {
	for _, line := range strings.Split(corpus, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "Voice note") || strings.HasPrefix(line, "Recorded ") || strings.HasPrefix(line, "Segment ") {
			continue
		}
		words := strings.Fields(line)
		if len(words) == 0 {
			continue
		}
		if len(words) > 6 {
			words = words[:6]
		}
		return strings.Join(words, " ")
	}
	return fallback
}
