package search

import (
	"time"

	"voicevault/internal/store"
)

// Status classifies the outcome of a search. Search never fails: every
// outcome is an explained response.
type Status string

const (
	// StatusOK means a confident result set was found.
	StatusOK Status = "OK"
	// StatusAmbiguous means several sessions matched with no clear winner;
	// Results carries all candidates.
	StatusAmbiguous Status = "AMBIGUOUS"
	// StatusNotFound means no matching strategy produced a candidate;
	// Suggestions explains what to try next.
	StatusNotFound Status = "NOT_FOUND"
)

// MatchKind identifies which strategy in the fallback chain produced a result.
type MatchKind string

const (
	MatchExact         MatchKind = "EXACT"
	MatchFuzzy         MatchKind = "FUZZY"
	MatchSemantic      MatchKind = "SEMANTIC"
	MatchChronological MatchKind = "CHRONOLOGICAL"
)

// Candidate is one session in a search response.
type Candidate struct {
	SessionID  string             `json:"session_id"`
	Name       string             `json:"name"`
	State      store.SessionState `json:"state"`
	CreatedAt  time.Time          `json:"created_at"`
	Confidence float64            `json:"confidence"`
}

// Response is the always-present answer to a search.
type Response struct {
	Status      Status      `json:"status"`
	Kind        MatchKind   `json:"kind"`
	Query       string      `json:"query,omitempty"`
	Results     []Candidate `json:"results"`
	Suggestions []string    `json:"suggestions,omitempty"`
}

// Filters narrow the searched corpus.
type Filters struct {
	OwnerID string
	States  []store.SessionState
	Limit   int
}

func (f Filters) allows(e indexEntry) bool {
	if f.OwnerID != "" && e.OwnerID != f.OwnerID {
		return false
	}
	if len(f.States) > 0 {
		ok := false
		for _, s := range f.States {
			if e.State == s {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}
