// Package store owns the on-disk representation of sessions.
//
// Layout per session:
//
//	<root>/<session-id>/
//	  session.json           metadata record
//	  audio/                 sequence-numbered raw audio files
//	  transcripts/           sequence-numbered transcript files
//	  responses/             downstream processor artifacts
//	  transcript.md          consolidated transcript
//	  embedding.json         session embedding vector
//
// All metadata writes go through a write-temp-then-rename primitive and are
// serialized per session, so concurrent read-modify-write cycles from
// capture, lifecycle, and the queue cannot race.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

const (
	metadataFile     = "session.json"
	audioDirName     = "audio"
	transcriptDir    = "transcripts"
	responseDirName  = "responses"
	embeddingFile    = "embedding.json"
	consolidatedFile = "transcript.md"
)

var (
	// ErrNotFound is returned when a session does not exist.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupted is returned when session metadata exists but cannot be parsed.
	// It is deliberately distinct from ErrNotFound: an unreadable session is a
	// loud failure, not a missing one.
	ErrCorrupted = errors.New("session metadata corrupted")
	// ErrExists is returned when creating a session whose directory already exists.
	ErrExists = errors.New("session already exists")
)

// Store provides atomic, serialized access to session records under a root directory.
type Store struct {
	root string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New opens a store rooted at the given directory, creating it if needed.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store root: %w", err)
	}
	return &Store{
		root:  root,
		locks: make(map[string]*sync.Mutex),
	}, nil
}

// Root returns the store root directory.
func (s *Store) Root() string { return s.root }

// lock returns the per-session mutex for id, creating it on first use.
func (s *Store) lock(id string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	return l
}

// Dir returns the session directory for id.
func (s *Store) Dir(id string) string { return filepath.Join(s.root, id) }

// AudioDir returns the audio directory for id.
func (s *Store) AudioDir(id string) string { return filepath.Join(s.root, id, audioDirName) }

// TranscriptDir returns the transcript directory for id.
func (s *Store) TranscriptDir(id string) string { return filepath.Join(s.root, id, transcriptDir) }

// ResponseDir returns the downstream artifact directory for id.
func (s *Store) ResponseDir(id string) string { return filepath.Join(s.root, id, responseDirName) }

// AudioPath returns the path of an audio file within a session.
func (s *Store) AudioPath(id, filename string) string {
	return filepath.Join(s.AudioDir(id), filename)
}

// TranscriptPath returns the path of a transcript file within a session.
func (s *Store) TranscriptPath(id, filename string) string {
	return filepath.Join(s.TranscriptDir(id), filename)
}

// ConsolidatedPath returns the path of the consolidated transcript for id.
func (s *Store) ConsolidatedPath(id string) string {
	return filepath.Join(s.root, id, consolidatedFile)
}

func (s *Store) metadataPath(id string) string {
	return filepath.Join(s.root, id, metadataFile)
}

func (s *Store) embeddingPath(id string) string {
	return filepath.Join(s.root, id, embeddingFile)
}

// Create builds the session directory tree and writes the initial metadata.
func (s *Store) Create(sess *Session) error {
	l := s.lock(sess.ID)
	l.Lock()
	defer l.Unlock()

	dir := s.Dir(sess.ID)
	if _, err := os.Stat(dir); err == nil {
		return fmt.Errorf("%w: %s", ErrExists, sess.ID)
	}

	for _, d := range []string{dir, s.AudioDir(sess.ID), s.TranscriptDir(sess.ID), s.ResponseDir(sess.ID)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("failed to create session directories: %w", err)
		}
	}

	return s.writeMetadata(sess)
}

// Load reads a session's metadata. A missing session yields ErrNotFound; an
// unparseable metadata file yields ErrCorrupted.
func (s *Store) Load(id string) (*Session, error) {
	data, err := os.ReadFile(s.metadataPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("failed to read session metadata: %w", err)
	}

	var sess Session
	// Unknown fields are ignored so records written by future versions stay readable.
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupted, id, err)
	}
	if sess.ID == "" {
		return nil, fmt.Errorf("%w: %s: missing id", ErrCorrupted, id)
	}
	return &sess, nil
}

// List loads all sessions under the root, sorted by ID (creation order).
// Corrupted sessions do not hide healthy ones: they are reported through the
// joined error alongside the loadable result.
func (s *Store) List(ctx context.Context) ([]*Session, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list store root: %w", err)
	}

	var sessions []*Session
	var problems []error
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return sessions, err
		}
		if !e.IsDir() {
			continue
		}
		sess, err := s.Load(e.Name())
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				// A directory without metadata is not a session.
				continue
			}
			problems = append(problems, err)
			continue
		}
		sessions = append(sessions, sess)
	}

	sort.Slice(sessions, func(i, j int) bool { return sessions[i].ID < sessions[j].ID })
	return sessions, errors.Join(problems...)
}

// Update applies fn to the session under its per-session lock and persists the
// result atomically. If fn returns an error, nothing is written. A failed
// metadata write is retried once before being surfaced; the on-disk record is
// never left partially written either way.
func (s *Store) Update(id string, fn func(*Session) error) (*Session, error) {
	l := s.lock(id)
	l.Lock()
	defer l.Unlock()

	sess, err := s.Load(id)
	if err != nil {
		return nil, err
	}

	if err := fn(sess); err != nil {
		return nil, err
	}

	if err := s.writeMetadata(sess); err != nil {
		if retryErr := s.writeMetadata(sess); retryErr != nil {
			return nil, fmt.Errorf("failed to persist session update: %w", retryErr)
		}
	}
	return sess, nil
}

// AppendResponse records a downstream processor response on the session.
func (s *Store) AppendResponse(id string, resp ProcessingResponse) error {
	_, err := s.Update(id, func(sess *Session) error {
		sess.Responses = append(sess.Responses, resp)
		return nil
	})
	return err
}

// WriteEmbedding persists the session embedding vector atomically.
func (s *Store) WriteEmbedding(id string, vec []float32) error {
	data, err := json.Marshal(vec)
	if err != nil {
		return fmt.Errorf("failed to marshal embedding: %w", err)
	}
	return WriteFileAtomic(s.embeddingPath(id), data)
}

// ReadEmbedding loads the session embedding vector. A session without an
// embedding yields (nil, nil); search degrades rather than fails.
func (s *Store) ReadEmbedding(id string) ([]float32, error) {
	data, err := os.ReadFile(s.embeddingPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read embedding: %w", err)
	}
	var vec []float32
	if err := json.Unmarshal(data, &vec); err != nil {
		return nil, fmt.Errorf("failed to parse embedding: %w", err)
	}
	return vec, nil
}

func (s *Store) writeMetadata(sess *Session) error {
	data, err := json.MarshalIndent(sess, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal session metadata: %w", err)
	}
	return WriteFileAtomic(s.metadataPath(sess.ID), data)
}

// WriteFileAtomic writes data to path via a temporary file in the same
// directory, fsyncs it, and renames it into place. A reader never observes a
// partially written file.
func WriteFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	if _, err := tmp.Write(data); err != nil {
		cleanup()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		cleanup()
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
