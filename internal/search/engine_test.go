package search

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"voicevault/internal/store"
	"voicevault/internal/vectorstore"
	"voicevault/internal/vectorstore/mocks"
)

type stubEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (s *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		vec, ok := s.vectors[t]
		if !ok {
			vec = []float32{0, 0, 1}
		}
		out[i] = vec
	}
	return out, nil
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return st
}

func seedSession(t *testing.T, st *store.Store, id, name string, state store.SessionState, created time.Time) {
	t.Helper()
	sess := &store.Session{
		ID:         id,
		State:      state,
		Name:       name,
		NameSource: store.NameUser,
		OwnerID:    "owner-1",
		CreatedAt:  created,
	}
	if err := st.Create(sess); err != nil {
		t.Fatalf("Create %s: %v", id, err)
	}
}

func seedEmbedding(t *testing.T, st *store.Store, id string, vec []float32) {
	t.Helper()
	if err := st.WriteEmbedding(id, vec); err != nil {
		t.Fatalf("WriteEmbedding %s: %v", id, err)
	}
}

func rebuild(t *testing.T, e *Engine) {
	t.Helper()
	if err := e.Rebuild(context.Background()); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
}

func TestSearchEmptyQueryListsChronologically(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	seedSession(t, st, "20260301T100000-aaaa", "Grocery run", store.StateReady, base)
	seedSession(t, st, "20260302T100000-bbbb", "Standup notes", store.StateReady, base.Add(24*time.Hour))
	seedSession(t, st, "20260303T100000-cccc", "Trip planning", store.StateReady, base.Add(48*time.Hour))

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "", Filters{})
	if resp.Status != StatusOK || resp.Kind != MatchChronological {
		t.Fatalf("got status %s kind %s", resp.Status, resp.Kind)
	}
	if len(resp.Results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(resp.Results))
	}
	if resp.Results[0].Name != "Trip planning" || resp.Results[2].Name != "Grocery run" {
		t.Errorf("results not newest-first: %v", resp.Results)
	}
}

func TestSearchEmptyQueryRespectsLimit(t *testing.T) {
	st := newTestStore(t)
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i, id := range []string{"s-a", "s-b", "s-c"} {
		seedSession(t, st, id, "Session "+id, store.StateReady, base.Add(time.Duration(i)*time.Hour))
	}

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "", Filters{Limit: 2})
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(resp.Results))
	}
}

func TestSearchExactSingleMatch(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "s-1", "Grocery run", store.StateReady, now)
	seedSession(t, st, "s-2", "Standup notes", store.StateReady, now)

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "grocery", Filters{})
	if resp.Status != StatusOK || resp.Kind != MatchExact {
		t.Fatalf("got status %s kind %s", resp.Status, resp.Kind)
	}
	if len(resp.Results) != 1 || resp.Results[0].SessionID != "s-1" {
		t.Fatalf("unexpected results: %v", resp.Results)
	}
	if resp.Results[0].Confidence != 1 {
		t.Errorf("exact match confidence = %v, want 1", resp.Results[0].Confidence)
	}
}

func TestSearchExactMultipleMatchesIsAmbiguous(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "s-1", "Standup Monday", store.StateReady, now)
	seedSession(t, st, "s-2", "Standup Tuesday", store.StateReady, now.Add(time.Hour))

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "standup", Filters{})
	if resp.Status != StatusAmbiguous || resp.Kind != MatchExact {
		t.Fatalf("got status %s kind %s", resp.Status, resp.Kind)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected both candidates, got %d", len(resp.Results))
	}
}

func TestSearchFuzzyToleratesTypos(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "s-1", "Grocery run", store.StateReady, now)
	seedSession(t, st, "s-2", "Quarterly review", store.StateReady, now)

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "grocrey", Filters{})
	if resp.Status != StatusOK || resp.Kind != MatchFuzzy {
		t.Fatalf("got status %s kind %s", resp.Status, resp.Kind)
	}
	if len(resp.Results) != 1 || resp.Results[0].SessionID != "s-1" {
		t.Fatalf("unexpected results: %v", resp.Results)
	}
	if c := resp.Results[0].Confidence; c <= 0 || c >= 1 {
		t.Errorf("fuzzy confidence = %v, want between 0 and 1", c)
	}
}

func TestSearchFuzzyDistanceBound(t *testing.T) {
	st := newTestStore(t)
	seedSession(t, st, "s-1", "Grocery run", store.StateReady, time.Now().UTC())

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	// Three edits away: beyond the fuzzy bound, no semantic tier configured.
	resp := e.Search(context.Background(), "grxxxry", Filters{})
	if resp.Status != StatusNotFound {
		t.Fatalf("got status %s, want NOT_FOUND", resp.Status)
	}
}

func TestSearchShortQuerySkipsFuzzyTier(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "s-1", "Grocery run", store.StateReady, now)
	seedSession(t, st, "s-2", "Quarterly review", store.StateReady, now)

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	// Two runes are erasable within the edit bound, which would put every
	// name in range. The fuzzy tier must not fire for such queries.
	resp := e.Search(context.Background(), "zq", Filters{})
	if resp.Status != StatusNotFound {
		t.Fatalf("got status %s kind %s with %d results, want NOT_FOUND",
			resp.Status, resp.Kind, len(resp.Results))
	}

	// Short queries still match exactly when they are real substrings.
	resp = e.Search(context.Background(), "run", Filters{})
	if resp.Status != StatusOK || resp.Kind != MatchExact {
		t.Fatalf("got status %s kind %s, want exact match", resp.Status, resp.Kind)
	}
}

func TestSearchSemanticSingleWinner(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "s-food", "Tuesday thoughts", store.StateReady, now)
	seedSession(t, st, "s-work", "Friday thoughts", store.StateReady, now)
	seedEmbedding(t, st, "s-food", []float32{1, 0, 0})
	seedEmbedding(t, st, "s-work", []float32{0, 1, 0})

	emb := &stubEmbedder{vectors: map[string][]float32{
		"dinner ideas": {0.95, 0.05, 0},
	}}
	e := New(st, emb, vectorstore.NewMemoryStore(), "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "dinner ideas", Filters{})
	if resp.Status != StatusOK || resp.Kind != MatchSemantic {
		t.Fatalf("got status %s kind %s", resp.Status, resp.Kind)
	}
	if resp.Results[0].SessionID != "s-food" {
		t.Fatalf("winner = %s, want s-food", resp.Results[0].SessionID)
	}
	if resp.Results[0].Confidence < semanticMinScore {
		t.Errorf("confidence %v below floor", resp.Results[0].Confidence)
	}
}

func TestSearchSemanticCloseScoresAreAmbiguous(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "s-1", "Alpha", store.StateReady, now)
	seedSession(t, st, "s-2", "Beta", store.StateReady, now)
	// Nearly identical vectors: both score high, separation under the margin.
	seedEmbedding(t, st, "s-1", []float32{1, 0.10, 0})
	seedEmbedding(t, st, "s-2", []float32{1, 0.12, 0})

	emb := &stubEmbedder{vectors: map[string][]float32{
		"that recording about the thing": {1, 0.11, 0},
	}}
	e := New(st, emb, vectorstore.NewMemoryStore(), "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "that recording about the thing", Filters{})
	if resp.Status != StatusAmbiguous || resp.Kind != MatchSemantic {
		t.Fatalf("got status %s kind %s", resp.Status, resp.Kind)
	}
	if len(resp.Results) != 2 {
		t.Fatalf("expected 2 candidates, got %d", len(resp.Results))
	}
}

func TestSearchSemanticBelowFloorFallsThrough(t *testing.T) {
	st := newTestStore(t)
	seedSession(t, st, "s-1", "Alpha", store.StateReady, time.Now().UTC())
	seedEmbedding(t, st, "s-1", []float32{1, 0, 0})

	// Orthogonal query vector: cosine 0, under the floor.
	emb := &stubEmbedder{vectors: map[string][]float32{
		"unrelated": {0, 1, 0},
	}}
	e := New(st, emb, vectorstore.NewMemoryStore(), "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "unrelated", Filters{})
	if resp.Status != StatusNotFound {
		t.Fatalf("got status %s, want NOT_FOUND", resp.Status)
	}
	if len(resp.Suggestions) == 0 {
		t.Error("expected suggestions on NOT_FOUND")
	}
}

func TestSearchEmbedderFailureDegradesGracefully(t *testing.T) {
	st := newTestStore(t)
	seedSession(t, st, "s-1", "Alpha", store.StateReady, time.Now().UTC())
	seedEmbedding(t, st, "s-1", []float32{1, 0, 0})

	emb := &stubEmbedder{err: errors.New("model offline")}
	e := New(st, emb, vectorstore.NewMemoryStore(), "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "no such name", Filters{})
	if resp.Status != StatusNotFound {
		t.Fatalf("got status %s, want NOT_FOUND", resp.Status)
	}
}

func TestSearchSemanticQueriesVectorStore(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	st := newTestStore(t)
	seedSession(t, st, "s-1", "Alpha", store.StateReady, time.Now().UTC())
	seedEmbedding(t, st, "s-1", []float32{1, 0, 0})

	queryVec := []float32{0.9, 0.1, 0}
	emb := &stubEmbedder{vectors: map[string][]float32{"topic": queryVec}}

	mockStore := mocks.NewMockVectorStore(ctrl)
	mockStore.EXPECT().
		Upsert(gomock.Any(), "sessions", gomock.Len(1)).
		Return(nil)
	mockStore.EXPECT().
		Search(gomock.Any(), "sessions", queryVec, semanticTopK, nil).
		Return([]vectorstore.SearchResult{{PointID: PointID("s-1"), Score: 0.9}}, nil)

	e := New(st, emb, mockStore, "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "topic", Filters{})
	if resp.Status != StatusOK || resp.Kind != MatchSemantic {
		t.Fatalf("got status %s kind %s", resp.Status, resp.Kind)
	}
	if resp.Results[0].SessionID != "s-1" {
		t.Fatalf("unexpected winner: %+v", resp.Results)
	}
}

func TestSearchFiltersByOwnerAndState(t *testing.T) {
	st := newTestStore(t)
	now := time.Now().UTC()
	seedSession(t, st, "s-1", "Standup Monday", store.StateReady, now)
	seedSession(t, st, "s-2", "Standup Tuesday", store.StateCollecting, now)

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	resp := e.Search(context.Background(), "standup", Filters{States: []store.SessionState{store.StateReady}})
	if resp.Status != StatusOK || len(resp.Results) != 1 || resp.Results[0].SessionID != "s-1" {
		t.Fatalf("state filter not applied: %+v", resp)
	}

	resp = e.Search(context.Background(), "standup", Filters{OwnerID: "someone-else"})
	if resp.Status != StatusNotFound {
		t.Fatalf("owner filter not applied: %+v", resp)
	}
}

func TestSearchBeforeRebuildReturnsEmpty(t *testing.T) {
	st := newTestStore(t)
	seedSession(t, st, "s-1", "Alpha", store.StateReady, time.Now().UTC())

	e := New(st, nil, nil, "sessions")

	resp := e.Search(context.Background(), "", Filters{})
	if resp.Status != StatusOK || len(resp.Results) != 0 {
		t.Fatalf("expected empty listing before rebuild, got %+v", resp)
	}

	rebuild(t, e)
	resp = e.Search(context.Background(), "", Filters{})
	if len(resp.Results) != 1 {
		t.Fatalf("expected 1 result after rebuild, got %d", len(resp.Results))
	}
}

func TestRebuildPicksUpNewSessions(t *testing.T) {
	st := newTestStore(t)
	seedSession(t, st, "s-1", "Alpha", store.StateReady, time.Now().UTC())

	e := New(st, nil, nil, "sessions")
	rebuild(t, e)

	seedSession(t, st, "s-2", "Beta", store.StateReady, time.Now().UTC())

	resp := e.Search(context.Background(), "beta", Filters{})
	if resp.Status != StatusNotFound {
		t.Fatalf("stale index should not see s-2 yet: %+v", resp)
	}

	rebuild(t, e)
	resp = e.Search(context.Background(), "beta", Filters{})
	if resp.Status != StatusOK || resp.Results[0].SessionID != "s-2" {
		t.Fatalf("rebuilt index missing s-2: %+v", resp)
	}
}

func TestPointIDDeterministic(t *testing.T) {
	a := PointID("20260301T100000-aaaa")
	b := PointID("20260301T100000-aaaa")
	c := PointID("20260301T100000-bbbb")
	if a != b {
		t.Errorf("PointID not stable: %s vs %s", a, b)
	}
	if a == c {
		t.Error("distinct sessions share a point ID")
	}
}

func TestEmbedSessionPersistsVector(t *testing.T) {
	st := newTestStore(t)
	seedSession(t, st, "s-1", "Alpha", store.StateTranscribed, time.Now().UTC())

	transcript := "# Alpha\n\nRecorded 2026-03-01T10:00:00Z\n\n## Segment 1\n\ntalking about dinner plans\n"
	if err := store.WriteFileAtomic(st.ConsolidatedPath("s-1"), []byte(transcript)); err != nil {
		t.Fatalf("writing transcript: %v", err)
	}

	want := []float32{0.1, 0.2, 0.3}
	emb := &stubEmbedder{vectors: map[string][]float32{
		ExtractCorpus([]byte(transcript)): want,
	}}

	e := New(st, emb, vectorstore.NewMemoryStore(), "sessions")
	if err := e.EmbedSession(context.Background(), "s-1"); err != nil {
		t.Fatalf("EmbedSession: %v", err)
	}

	got, err := st.ReadEmbedding("s-1")
	if err != nil {
		t.Fatalf("ReadEmbedding: %v", err)
	}
	if len(got) != len(want) {
		t.Fatalf("embedding length = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("embedding[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestEmbedSessionWithoutEmbedder(t *testing.T) {
	st := newTestStore(t)
	e := New(st, nil, nil, "sessions")
	if err := e.EmbedSession(context.Background(), "s-1"); !errors.Is(err, ErrEmbeddingsDisabled) {
		t.Fatalf("got %v, want ErrEmbeddingsDisabled", err)
	}
}

func TestExtractCorpusStripsMarkdown(t *testing.T) {
	md := []byte("# Title\n\nSome **bold** prose.\n\n- item one\n- item two\n")
	got := ExtractCorpus(md)
	if got == "" {
		t.Fatal("empty corpus")
	}
	for _, forbidden := range []string{"#", "**", "- "} {
		if strings.Contains(got, forbidden) {
			t.Errorf("corpus retains markdown %q: %q", forbidden, got)
		}
	}
	for _, want := range []string{"Title", "bold", "item one"} {
		if !strings.Contains(got, want) {
			t.Errorf("corpus missing %q: %q", want, got)
		}
	}
}
