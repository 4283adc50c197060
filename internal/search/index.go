package search

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"voicevault/internal/contextutil"
	"voicevault/internal/store"
	"voicevault/internal/vectorstore"
)

// pointNamespace seeds deterministic point IDs so a session always maps to
// the same vector store point across rebuilds.
var pointNamespace = uuid.MustParse("3f1a6c2e-9b4d-4e7a-8c1f-2d5b7e9a0c4d")

// indexEntry is the immutable snapshot of one session held by the index.
type indexEntry struct {
	ID           string
	Name         string
	OwnerID      string
	State        store.SessionState
	CreatedAt    time.Time
	PointID      string
	HasEmbedding bool
}

// index is a read-only snapshot. Searches operate on whichever snapshot was
// current when they started; Rebuild swaps in a fresh one atomically.
type index struct {
	entries []indexEntry
	byPoint map[string]indexEntry
	builtAt time.Time
}

// PointID derives the vector store point ID for a session. Vector backends
// require UUID-shaped IDs, so the session ID is hashed into one.
func PointID(sessionID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(sessionID)).String()
}

// Rebuild rescans the store and swaps in a fresh index. Sessions that fail
// to load are skipped and logged; they do not abort the rebuild. Embeddings
// found on disk are upserted into the vector store so semantic search sees
// the current corpus.
func (e *Engine) Rebuild(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	sessions, err := e.store.List(ctx)
	if err != nil {
		// List reports corrupted sessions alongside the healthy ones.
		logger.Warn("index rebuild skipping unreadable sessions", slog.String("error", err.Error()))
	}

	fresh := &index{
		byPoint: make(map[string]indexEntry, len(sessions)),
		builtAt: time.Now().UTC(),
	}
	var points []vectorstore.Point

	for _, s := range sessions {
		entry := indexEntry{
			ID:        s.ID,
			Name:      s.Name,
			OwnerID:   s.OwnerID,
			State:     s.State,
			CreatedAt: s.CreatedAt,
			PointID:   PointID(s.ID),
		}

		vec, err := e.store.ReadEmbedding(s.ID)
		if err != nil {
			logger.Warn("index rebuild skipping embedding",
				slog.String("session_id", s.ID),
				slog.String("error", err.Error()))
		} else if len(vec) > 0 {
			entry.HasEmbedding = true
			points = append(points, vectorstore.Point{
				ID:   entry.PointID,
				Vec:  vec,
				Meta: map[string]any{"session_id": s.ID},
			})
		}

		fresh.entries = append(fresh.entries, entry)
		fresh.byPoint[entry.PointID] = entry
	}

	if e.vectors != nil && len(points) > 0 {
		if err := e.vectors.Upsert(ctx, e.collection, points); err != nil {
			return fmt.Errorf("upserting %d points: %w", len(points), err)
		}
	}

	e.index.Store(fresh)
	logger.Info("search index rebuilt",
		slog.Int("sessions", len(fresh.entries)),
		slog.Int("embedded", len(points)))
	return nil
}

// snapshot returns the current index, or an empty one when Rebuild has not
// run yet.
func (e *Engine) snapshot() *index {
	if idx := e.index.Load(); idx != nil {
		return idx
	}
	return &index{byPoint: map[string]indexEntry{}}
}
