// Package transcript assembles per-segment transcript files into one
// consolidated markdown document per session. The consolidated file is the
// input to the embedding path and to downstream processors.
package transcript

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"voicevault/internal/contextutil"
	"voicevault/internal/store"
)

// Assembler builds consolidated transcripts from session segment files.
type Assembler struct {
	store *store.Store
}

// NewAssembler creates an assembler over the given store.
func NewAssembler(st *store.Store) *Assembler {
	return &Assembler{store: st}
}

// Assemble concatenates every successful segment transcript of a session into
// the consolidated markdown file and returns its path. Failed segments are
// noted in place so gaps are visible rather than silent. The write is atomic;
// re-assembling after a reopen simply replaces the document.
func (a *Assembler) Assemble(ctx context.Context, sessionID string) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	sess, err := a.store.Load(sessionID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(fmt.Sprintf("# %s\n\n", sess.Name))
	b.WriteString(fmt.Sprintf("Recorded %s.\n", sess.CreatedAt.Format(time.RFC3339)))

	included := 0
	for _, seg := range sess.Segments {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		switch seg.Status {
		case store.SegmentSuccess:
			text, err := os.ReadFile(a.store.TranscriptPath(sessionID, seg.Transcript))
			if err != nil {
				return "", fmt.Errorf("failed to read transcript for segment %d: %w", seg.Seq, err)
			}
			b.WriteString(fmt.Sprintf("\n## Segment %d\n\n", seg.Seq))
			b.WriteString(strings.TrimSpace(string(text)))
			b.WriteString("\n")
			included++
		case store.SegmentFailed:
			b.WriteString(fmt.Sprintf("\n## Segment %d\n\n*Transcription failed; audio retained at %s.*\n", seg.Seq, seg.Filename))
		}
	}

	if included == 0 {
		return "", fmt.Errorf("session %s has no successful transcripts to assemble", sessionID)
	}

	path := a.store.ConsolidatedPath(sessionID)
	if err := store.WriteFileAtomic(path, []byte(b.String())); err != nil {
		return "", fmt.Errorf("failed to write consolidated transcript: %w", err)
	}

	logger.InfoContext(ctx, "consolidated transcript assembled",
		"session_id", sessionID,
		"segments_included", included,
	)
	return path, nil
}
