package transcript

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"voicevault/internal/store"
)

func setupSession(t *testing.T, segments []store.AudioSegment, transcripts map[string]string) (*store.Store, string) {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	id := "20260301T120000-asm"
	err = st.Create(&store.Session{
		ID:         id,
		State:      store.StateTranscribed,
		Name:       "Weekly planning",
		NameSource: store.NameUser,
		OwnerID:    "owner-1",
		CreatedAt:  time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Segments:   segments,
	})
	if err != nil {
		t.Fatal(err)
	}
	for name, text := range transcripts {
		if err := store.WriteFileAtomic(st.TranscriptPath(id, name), []byte(text)); err != nil {
			t.Fatal(err)
		}
	}
	return st, id
}

func TestAssemble(t *testing.T) {
	st, id := setupSession(t,
		[]store.AudioSegment{
			{Seq: 1, Filename: "segment_0001.wav", Status: store.SegmentSuccess, Transcript: "segment_0001.txt"},
			{Seq: 2, Filename: "segment_0002.wav", Status: store.SegmentFailed},
			{Seq: 3, Filename: "segment_0003.wav", Status: store.SegmentSuccess, Transcript: "segment_0003.txt"},
		},
		map[string]string{
			"segment_0001.txt": "First thought.",
			"segment_0003.txt": "Third thought.",
		},
	)

	a := NewAssembler(st)
	path, err := a.Assemble(context.Background(), id)
	if err != nil {
		t.Fatalf("Assemble() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	doc := string(data)

	if !strings.HasPrefix(doc, "# Weekly planning") {
		t.Errorf("document does not open with the session name:\n%s", doc)
	}
	for _, want := range []string{"## Segment 1", "First thought.", "## Segment 3", "Third thought."} {
		if !strings.Contains(doc, want) {
			t.Errorf("document missing %q", want)
		}
	}
	// The failed segment is visible as a gap, not silently dropped.
	if !strings.Contains(doc, "## Segment 2") || !strings.Contains(doc, "segment_0002.wav") {
		t.Error("failed segment should be noted in place")
	}
}

func TestAssemble_NoSuccessfulSegments(t *testing.T) {
	st, id := setupSession(t,
		[]store.AudioSegment{
			{Seq: 1, Filename: "segment_0001.wav", Status: store.SegmentFailed},
		},
		nil,
	)

	a := NewAssembler(st)
	if _, err := a.Assemble(context.Background(), id); err == nil {
		t.Error("Assemble() expected error when nothing succeeded")
	}
}

func TestAssemble_Idempotent(t *testing.T) {
	st, id := setupSession(t,
		[]store.AudioSegment{
			{Seq: 1, Filename: "segment_0001.wav", Status: store.SegmentSuccess, Transcript: "segment_0001.txt"},
		},
		map[string]string{"segment_0001.txt": "Only thought."},
	)

	a := NewAssembler(st)
	first, err := a.Assemble(context.Background(), id)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Assemble(context.Background(), id)
	if err != nil {
		t.Fatalf("second Assemble() error = %v", err)
	}
	if first != second {
		t.Errorf("paths differ: %s vs %s", first, second)
	}
	d1, _ := os.ReadFile(first)
	d2, _ := os.ReadFile(second)
	if string(d1) != string(d2) {
		t.Error("re-assembly changed content")
	}
}
