// Package search resolves natural queries to capture sessions. Matching
// runs through a fallback chain so a lookup always gets an answer it can
// act on, even when embeddings are unavailable.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"sync/atomic"

	"voicevault/internal/contextutil"
	"voicevault/internal/llm"
	"voicevault/internal/store"
	"voicevault/internal/vectorstore"
)

var (
	// ErrEmbeddingsDisabled is returned by EmbedSession when no embedder
	// is configured.
	ErrEmbeddingsDisabled = errors.New("embeddings not configured")
	// ErrEmptyCorpus is returned when a consolidated transcript yields no
	// text worth embedding.
	ErrEmptyCorpus = errors.New("transcript has no embeddable text")
)

const (
	// semanticMinScore is the cosine floor below which a semantic hit is
	// treated as noise.
	semanticMinScore = 0.35
	// semanticMargin is how far ahead of the runner-up the top hit must be
	// to count as a single confident winner.
	semanticMargin = 0.05
	// fuzzyMaxDistance bounds how many edits away a name may be from the
	// query and still match.
	fuzzyMaxDistance = 2

	semanticTopK = 5
	defaultLimit = 10
)

// Engine answers session lookups. It degrades through a chain of strategies
// rather than failing: exact name match, fuzzy name match, semantic match
// over transcript embeddings, and finally a chronological listing.
type Engine struct {
	store      *store.Store
	embedder   llm.Embedder
	vectors    vectorstore.VectorStore
	collection string
	index      atomic.Pointer[index]
}

// New creates a search engine. embedder and vectors may be nil, in which
// case the semantic tier is skipped and the chain degrades straight from
// fuzzy matching to suggestions.
func New(st *store.Store, embedder llm.Embedder, vectors vectorstore.VectorStore, collection string) *Engine {
	return &Engine{
		store:      st,
		embedder:   embedder,
		vectors:    vectors,
		collection: collection,
	}
}

// Search resolves a query to sessions. It never returns an error: failures
// in any one strategy demote the response to the next strategy, and a query
// nothing matches comes back as NOT_FOUND with suggestions.
func (e *Engine) Search(ctx context.Context, query string, f Filters) Response {
	idx := e.snapshot()

	var entries []indexEntry
	for _, entry := range idx.entries {
		if f.allows(entry) {
			entries = append(entries, entry)
		}
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return e.chronological(entries, f.Limit)
	}

	if resp, ok := e.exact(entries, query); ok {
		return resp
	}
	if resp, ok := e.fuzzy(entries, query); ok {
		return resp
	}
	if resp, ok := e.semantic(ctx, idx, query, f); ok {
		return resp
	}

	return e.notFound(entries, query)
}

// chronological lists sessions newest first. It is the answer to an empty
// query and the suggested recourse when nothing matches.
func (e *Engine) chronological(entries []indexEntry, limit int) Response {
	sorted := make([]indexEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
		}
		return sorted[i].ID > sorted[j].ID
	})

	if limit <= 0 {
		limit = defaultLimit
	}
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	return Response{
		Status:  StatusOK,
		Kind:    MatchChronological,
		Results: candidates(sorted, func(indexEntry) float64 { return 1 }),
	}
}

// exact finds case-insensitive substring matches on session names. One hit
// is a confident answer; several hits are returned as an ambiguity for the
// caller to resolve.
func (e *Engine) exact(entries []indexEntry, query string) (Response, bool) {
	needle := strings.ToLower(query)

	var hits []indexEntry
	for _, entry := range entries {
		if strings.Contains(strings.ToLower(entry.Name), needle) {
			hits = append(hits, entry)
		}
	}
	if len(hits) == 0 {
		return Response{}, false
	}

	sortByRecency(hits)
	status := StatusOK
	if len(hits) > 1 {
		status = StatusAmbiguous
	}
	return Response{
		Status:  status,
		Kind:    MatchExact,
		Query:   query,
		Results: candidates(hits, func(indexEntry) float64 { return 1 }),
	}, true
}

// fuzzy tolerates small typos by matching names within a bounded edit
// distance of the query.
func (e *Engine) fuzzy(entries []indexEntry, query string) (Response, bool) {
	queryLen := len([]rune(query))
	// A query no longer than the edit bound matches every name by deleting
	// itself, so the tier has no discriminating power below this length.
	if queryLen <= fuzzyMaxDistance {
		return Response{}, false
	}

	type scored struct {
		entry indexEntry
		dist  int
	}

	var hits []scored
	for _, entry := range entries {
		if d := fuzzyDistance(entry.Name, query); d <= fuzzyMaxDistance {
			hits = append(hits, scored{entry: entry, dist: d})
		}
	}
	if len(hits) == 0 {
		return Response{}, false
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].dist != hits[j].dist {
			return hits[i].dist < hits[j].dist
		}
		return hits[i].entry.CreatedAt.After(hits[j].entry.CreatedAt)
	})

	results := make([]Candidate, 0, len(hits))
	for _, h := range hits {
		results = append(results, candidate(h.entry, 1-float64(h.dist)/float64(queryLen+1)))
	}

	status := StatusOK
	if len(hits) > 1 {
		status = StatusAmbiguous
	}
	return Response{
		Status:  status,
		Kind:    MatchFuzzy,
		Query:   query,
		Results: results,
	}, true
}

// semantic embeds the query and ranks sessions by transcript similarity.
// A single winner needs both an absolute score floor and clear separation
// from the runner-up; close calls are surfaced as ambiguous.
func (e *Engine) semantic(ctx context.Context, idx *index, query string, f Filters) (Response, bool) {
	if e.embedder == nil || e.vectors == nil {
		return Response{}, false
	}

	logger := contextutil.LoggerFromContext(ctx)

	vecs, err := e.embedder.EmbedTexts(ctx, []string{query})
	if err != nil || len(vecs) != 1 {
		logger.Warn("semantic search unavailable", slog.Any("error", err))
		return Response{}, false
	}
	vec := vecs[0]

	hits, err := e.vectors.Search(ctx, e.collection, vec, semanticTopK, nil)
	if err != nil {
		logger.Warn("vector search failed", slog.String("error", err.Error()))
		return Response{}, false
	}

	type scored struct {
		entry indexEntry
		score float64
	}
	var matches []scored
	for _, h := range hits {
		entry, ok := idx.byPoint[h.PointID]
		if !ok || !f.allows(entry) {
			continue
		}
		if score := float64(h.Score); score >= semanticMinScore {
			matches = append(matches, scored{entry: entry, score: score})
		}
	}
	if len(matches) == 0 {
		return Response{}, false
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].score != matches[j].score {
			return matches[i].score > matches[j].score
		}
		return matches[i].entry.ID < matches[j].entry.ID
	})

	results := make([]Candidate, 0, len(matches))
	for _, m := range matches {
		results = append(results, candidate(m.entry, m.score))
	}

	status := StatusOK
	if len(matches) > 1 && matches[0].score-matches[1].score < semanticMargin {
		status = StatusAmbiguous
	}
	return Response{
		Status:  status,
		Kind:    MatchSemantic,
		Query:   query,
		Results: results,
	}, true
}

// notFound explains the miss instead of returning an empty 200 with no
// guidance. Recent session names are included so the caller can recover.
func (e *Engine) notFound(entries []indexEntry, query string) Response {
	suggestions := []string{
		fmt.Sprintf("no session matches %q", query),
		"try a shorter or different phrase",
		"browse sessions chronologically with an empty query",
	}

	sortByRecency(entries)
	for i, entry := range entries {
		if i == 3 {
			break
		}
		suggestions = append(suggestions, fmt.Sprintf("recent: %s (%s)", entry.Name, entry.ID))
	}

	return Response{
		Status:      StatusNotFound,
		Kind:        MatchChronological,
		Query:       query,
		Results:     []Candidate{},
		Suggestions: suggestions,
	}
}

func sortByRecency(entries []indexEntry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].CreatedAt.Equal(entries[j].CreatedAt) {
			return entries[i].CreatedAt.After(entries[j].CreatedAt)
		}
		return entries[i].ID > entries[j].ID
	})
}

func candidate(e indexEntry, confidence float64) Candidate {
	return Candidate{
		SessionID:  e.ID,
		Name:       e.Name,
		State:      e.State,
		CreatedAt:  e.CreatedAt,
		Confidence: confidence,
	}
}

func candidates(entries []indexEntry, confidence func(indexEntry) float64) []Candidate {
	out := make([]Candidate, 0, len(entries))
	for _, e := range entries {
		out = append(out, candidate(e, confidence(e)))
	}
	return out
}

// EmbedSession reads a session's consolidated transcript, embeds its text,
// and persists the vector for later indexing. ErrEmptyCorpus is returned
// when there is no transcript text to embed.
func (e *Engine) EmbedSession(ctx context.Context, sessionID string) error {
	if e.embedder == nil {
		return ErrEmbeddingsDisabled
	}

	content, err := os.ReadFile(e.store.ConsolidatedPath(sessionID))
	if err != nil {
		return fmt.Errorf("reading transcript for %s: %w", sessionID, err)
	}

	corpus := ExtractCorpus(content)
	if corpus == "" {
		return fmt.Errorf("session %s: %w", sessionID, ErrEmptyCorpus)
	}

	vecs, err := e.embedder.EmbedTexts(ctx, []string{corpus})
	if err != nil {
		return fmt.Errorf("embedding session %s: %w", sessionID, err)
	}
	if len(vecs) != 1 {
		return fmt.Errorf("embedding session %s: got %d vectors for one text", sessionID, len(vecs))
	}
	vec := vecs[0]

	if err := e.store.WriteEmbedding(sessionID, vec); err != nil {
		return fmt.Errorf("persisting embedding for %s: %w", sessionID, err)
	}

	if e.vectors != nil {
		point := vectorstore.Point{
			ID:   PointID(sessionID),
			Vec:  vec,
			Meta: map[string]any{"session_id": sessionID},
		}
		if err := e.vectors.Upsert(ctx, e.collection, []vectorstore.Point{point}); err != nil {
			return fmt.Errorf("upserting session %s: %w", sessionID, err)
		}
	}
	return nil
}
