// Package process runs downstream consumers over consolidated transcripts.
// What a processor produces is its own business; this package only invokes
// it and records the outcome on the session.
package process

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"voicevault/internal/store"
)

// Artifact is one output a processor produced, referenced by path.
type Artifact struct {
	Path string `json:"path"`
}

// Processor turns a consolidated transcript into downstream artifacts.
type Processor interface {
	Name() string
	Process(ctx context.Context, sessionID, transcriptPath string) ([]Artifact, error)
}

// CommandProcessor execs a configured binary with the transcript path as its
// argument. The binary writes one artifact path per stdout line; a non-zero
// exit is a processing failure.
type CommandProcessor struct {
	Command string
	Args    []string
}

// NewCommandProcessor creates a processor around the given command line.
func NewCommandProcessor(command string, args ...string) *CommandProcessor {
	return &CommandProcessor{Command: command, Args: args}
}

func (p *CommandProcessor) Name() string { return p.Command }

func (p *CommandProcessor) Process(ctx context.Context, sessionID, transcriptPath string) ([]Artifact, error) {
	args := append(append([]string{}, p.Args...), transcriptPath)
	cmd := exec.CommandContext(ctx, p.Command, args...)
	cmd.Env = append(os.Environ(), "VOICEVAULT_SESSION_ID="+sessionID)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = err.Error()
		}
		return nil, fmt.Errorf("processor %s: %s", p.Command, msg)
	}

	var artifacts []Artifact
	scanner := bufio.NewScanner(&stdout)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" {
			artifacts = append(artifacts, Artifact{Path: line})
		}
	}
	return artifacts, scanner.Err()
}

// Run invokes the processor over a session's consolidated transcript and
// folds the outcome into the session's responses. A processing failure is
// recorded, not propagated: the session itself is unaffected.
func Run(ctx context.Context, st *store.Store, p Processor, sessionID string) (store.ProcessingResponse, error) {
	artifacts, err := p.Process(ctx, sessionID, st.ConsolidatedPath(sessionID))

	resp := store.ProcessingResponse{
		Processor: p.Name(),
		CreatedAt: time.Now().UTC(),
		Success:   err == nil,
	}
	if err != nil {
		resp.Error = err.Error()
	}
	for _, a := range artifacts {
		resp.Artifacts = append(resp.Artifacts, a.Path)
	}

	if aerr := st.AppendResponse(sessionID, resp); aerr != nil {
		return resp, fmt.Errorf("recording processor response for %s: %w", sessionID, aerr)
	}
	return resp, nil
}
