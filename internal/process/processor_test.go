package process

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"testing"

	"voicevault/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	sess := &store.Session{ID: "s-1", State: store.StateReady, OwnerID: "o"}
	if err := st.Create(sess); err != nil {
		t.Fatalf("Create: %v", err)
	}
	return st
}

func TestRunRecordsSuccess(t *testing.T) {
	st := newTestStore(t)
	stub := &Stub{Artifacts: []Artifact{{Path: "out/summary.md"}}}

	resp, err := Run(context.Background(), st, stub, "s-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !resp.Success || len(resp.Artifacts) != 1 || resp.Artifacts[0] != "out/summary.md" {
		t.Fatalf("unexpected response: %+v", resp)
	}

	sess, err := st.Load("s-1")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(sess.Responses) != 1 || !sess.Responses[0].Success {
		t.Fatalf("response not recorded: %+v", sess.Responses)
	}
}

func TestRunRecordsFailureWithoutPropagating(t *testing.T) {
	st := newTestStore(t)
	stub := &Stub{Err: errors.New("renderer crashed")}

	resp, err := Run(context.Background(), st, stub, "s-1")
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Success || resp.Error == "" {
		t.Fatalf("failure not captured: %+v", resp)
	}

	sess, _ := st.Load("s-1")
	if len(sess.Responses) != 1 || sess.Responses[0].Success {
		t.Fatalf("failed response not recorded: %+v", sess.Responses)
	}
	// The session itself is untouched by a processor failure.
	if sess.State != store.StateReady {
		t.Errorf("state = %s, want READY", sess.State)
	}
}

func TestCommandProcessorParsesStdout(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based test")
	}
	// The transcript path lands in $0; the script ignores it.
	p := NewCommandProcessor("sh", "-c", `printf 'a.md\n\nb.md\n'`)

	artifacts, err := p.Process(context.Background(), "s-1", "ignored")
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(artifacts) != 2 || artifacts[0].Path != "a.md" || artifacts[1].Path != "b.md" {
		t.Fatalf("unexpected artifacts: %+v", artifacts)
	}
}

func TestCommandProcessorSurfacesStderr(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("shell-based test")
	}
	p := NewCommandProcessor("sh", "-c", `echo boom >&2; exit 1`)

	_, err := p.Process(context.Background(), "s-1", "ignored")
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("stderr not surfaced: %v", err)
	}
}
