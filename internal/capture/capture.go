// Package capture accepts audio chunks for a session and persists them with
// integrity guarantees. The write path is ordered so a crash at any point
// loses nothing: bytes are written to a temp file and fsynced, the checksum is
// computed over the durable file, the file is renamed into its final
// sequence-numbered name, and only then is the segment appended to session
// metadata. A crash between rename and metadata append leaves a readable,
// checksummed orphan that the recovery scan reports.
package capture

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-audio/wav"

	"voicevault/internal/checksum"
	"voicevault/internal/contextutil"
	"voicevault/internal/store"
)

// ErrStateConflict is returned when a capture operation is invalid for the
// session's current lifecycle state. It is rejected synchronously with no
// side effects.
var ErrStateConflict = errors.New("operation invalid for session state")

const tempPrefix = ".upload-"

// Service persists audio segments for sessions.
type Service struct {
	store *store.Store
}

// NewService creates a capture service over the given store.
func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// AddSegment durably persists an audio chunk for a COLLECTING session and
// appends its segment record with status PENDING. The returned segment carries
// the assigned sequence number, filename, and checksum.
func (s *Service) AddSegment(ctx context.Context, sessionID string, data []byte, receivedAt time.Time, sourceRef string) (store.AudioSegment, error) {
	logger := contextutil.LoggerFromContext(ctx)

	// Fail fast before touching the disk; the state is re-checked under the
	// session lock before the metadata append.
	sess, err := s.store.Load(sessionID)
	if err != nil {
		return store.AudioSegment{}, err
	}
	if sess.State != store.StateCollecting {
		return store.AudioSegment{}, fmt.Errorf("%w: session %s is %s, want COLLECTING", ErrStateConflict, sessionID, sess.State)
	}
	if len(data) == 0 {
		return store.AudioSegment{}, fmt.Errorf("empty audio payload for session %s", sessionID)
	}

	audioDir := s.store.AudioDir(sessionID)
	tmp, err := os.CreateTemp(audioDir, tempPrefix+"*")
	if err != nil {
		return store.AudioSegment{}, fmt.Errorf("failed to create temp audio file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return store.AudioSegment{}, fmt.Errorf("failed to write audio: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return store.AudioSegment{}, fmt.Errorf("failed to sync audio: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return store.AudioSegment{}, fmt.Errorf("failed to close audio file: %w", err)
	}

	// Checksum strictly after the bytes are durable.
	sum, err := checksum.SumFile(tmpName)
	if err != nil {
		_ = os.Remove(tmpName)
		return store.AudioSegment{}, fmt.Errorf("failed to checksum audio: %w", err)
	}

	var segment store.AudioSegment
	renamed := false
	_, err = s.store.Update(sessionID, func(sess *store.Session) error {
		if sess.State != store.StateCollecting {
			return fmt.Errorf("%w: session %s is %s, want COLLECTING", ErrStateConflict, sessionID, sess.State)
		}
		seq := sess.NextSeq()
		filename := SegmentFilename(seq)
		if err := os.Rename(tmpName, s.store.AudioPath(sessionID, filename)); err != nil {
			return fmt.Errorf("failed to place audio file: %w", err)
		}
		renamed = true

		segment = store.AudioSegment{
			Seq:        seq,
			ReceivedAt: receivedAt.UTC(),
			SourceRef:  sourceRef,
			Filename:   filename,
			SizeBytes:  int64(len(data)),
			Checksum:   sum,
			Status:     store.SegmentPending,
		}
		if dur := probeDuration(data); dur > 0 {
			segment.DurationSeconds = dur
		}
		sess.Segments = append(sess.Segments, segment)
		return nil
	})
	if err != nil {
		if !renamed {
			_ = os.Remove(tmpName)
		}
		// When the rename succeeded but the metadata append failed, the file
		// stays on disk as an orphan for the recovery scan. Never silently lost.
		return store.AudioSegment{}, err
	}

	logger.InfoContext(ctx, "segment captured",
		"session_id", sessionID,
		"seq", segment.Seq,
		"size_bytes", segment.SizeBytes,
		"checksum", segment.Checksum,
	)
	return segment, nil
}

// SegmentFilename returns the canonical audio filename for a sequence number.
func SegmentFilename(seq int) string {
	return fmt.Sprintf("segment_%04d.wav", seq)
}

// probeDuration attempts to read the duration of a WAV payload.
// Non-WAV or unparseable payloads simply have no duration.
func probeDuration(data []byte) float64 {
	dec := wav.NewDecoder(bytes.NewReader(data))
	dur, err := dec.Duration()
	if err != nil || dur <= 0 {
		return 0
	}
	return dur.Seconds()
}

// Mismatch describes one segment whose on-disk bytes disagree with its record.
type Mismatch struct {
	Seq      int    `json:"seq"`
	Filename string `json:"filename"`
	Expected string `json:"expected"`
	Actual   string `json:"actual,omitempty"`
	Missing  bool   `json:"missing,omitempty"`
}

// IntegrityReport is the result of a full checksum verification of a session.
type IntegrityReport struct {
	SessionID  string     `json:"session_id"`
	Checked    int        `json:"checked"`
	Mismatches []Mismatch `json:"mismatches,omitempty"`
}

// OK reports whether every segment verified cleanly.
func (r IntegrityReport) OK() bool { return len(r.Mismatches) == 0 }

// VerifyIntegrity recomputes checksums for all segments of a session and
// reports mismatches. It never mutates anything: integrity failures are
// reported, not auto-repaired.
func (s *Service) VerifyIntegrity(ctx context.Context, sessionID string) (IntegrityReport, error) {
	sess, err := s.store.Load(sessionID)
	if err != nil {
		return IntegrityReport{}, err
	}

	report := IntegrityReport{SessionID: sessionID}
	for _, seg := range sess.Segments {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		report.Checked++
		path := s.store.AudioPath(sessionID, seg.Filename)
		actual, err := checksum.SumFile(path)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				report.Mismatches = append(report.Mismatches, Mismatch{
					Seq: seg.Seq, Filename: seg.Filename, Expected: seg.Checksum, Missing: true,
				})
				continue
			}
			return report, err
		}
		if actual != seg.Checksum {
			report.Mismatches = append(report.Mismatches, Mismatch{
				Seq: seg.Seq, Filename: seg.Filename, Expected: seg.Checksum, Actual: actual,
			})
		}
	}
	return report, nil
}

// OrphanAction is the suggested handling for an orphaned file.
type OrphanAction string

const (
	// OrphanAttach suggests attaching a complete, final-named file back to
	// its session.
	OrphanAttach OrphanAction = "ATTACH"
	// OrphanQuarantine suggests setting aside a file whose provenance is unclear.
	OrphanQuarantine OrphanAction = "QUARANTINE"
	// OrphanDiscard suggests removing an abandoned partial upload.
	OrphanDiscard OrphanAction = "DISCARD"
)

// Orphan is an on-disk audio file with no corresponding metadata record.
type Orphan struct {
	SessionID string       `json:"session_id"`
	Path      string       `json:"path"`
	SizeBytes int64        `json:"size_bytes"`
	Checksum  string       `json:"checksum"`
	Suggested OrphanAction `json:"suggested"`
}

// RecoverOrphans walks the storage tree for audio files absent from session
// metadata and returns each with a suggested action. It acts on nothing.
func (s *Service) RecoverOrphans(ctx context.Context) ([]Orphan, error) {
	logger := contextutil.LoggerFromContext(ctx)

	sessions, listErr := s.store.List(ctx)
	if listErr != nil && len(sessions) == 0 {
		return nil, listErr
	}

	var orphans []Orphan
	for _, sess := range sessions {
		if err := ctx.Err(); err != nil {
			return orphans, err
		}

		referenced := make(map[string]bool, len(sess.Segments))
		for _, seg := range sess.Segments {
			referenced[seg.Filename] = true
		}

		entries, err := os.ReadDir(s.store.AudioDir(sess.ID))
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return orphans, fmt.Errorf("failed to scan audio dir for %s: %w", sess.ID, err)
		}

		for _, e := range entries {
			if e.IsDir() || referenced[e.Name()] {
				continue
			}
			path := filepath.Join(s.store.AudioDir(sess.ID), e.Name())
			info, err := e.Info()
			if err != nil {
				continue
			}
			sum, err := checksum.SumFile(path)
			if err != nil {
				logger.WarnContext(ctx, "unreadable orphan candidate", "path", path, "error", err)
				continue
			}
			orphans = append(orphans, Orphan{
				SessionID: sess.ID,
				Path:      path,
				SizeBytes: info.Size(),
				Checksum:  sum,
				Suggested: suggestAction(e.Name()),
			})
		}
	}

	if len(orphans) > 0 {
		logger.InfoContext(ctx, "orphan scan complete", "orphans", len(orphans))
	}
	return orphans, listErr
}

func suggestAction(name string) OrphanAction {
	switch {
	case strings.HasPrefix(name, tempPrefix):
		// Abandoned before the checksum step; its integrity was never pinned.
		return OrphanDiscard
	case strings.HasPrefix(name, "segment_"):
		// Fully written and renamed; only the metadata append was lost.
		return OrphanAttach
	default:
		return OrphanQuarantine
	}
}
