package commands

import (
	"context"
	"fmt"
	"log/slog"
	nethttp "net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"voicevault/internal/capture"
	"voicevault/internal/http"
	"voicevault/internal/lifecycle"
	"voicevault/internal/llm"
	"voicevault/internal/process"
	"voicevault/internal/queue"
	"voicevault/internal/search"
	"voicevault/internal/transcribe"
	"voicevault/internal/transcript"
	"voicevault/internal/vectorstore"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the transcription worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, st, err := bootstrap()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		var vectors vectorstore.VectorStore
		switch cfg.VectorBackend {
		case "qdrant":
			qs, err := vectorstore.NewQdrantStore(cfg.QdrantURL)
			if err != nil {
				return fmt.Errorf("connecting to qdrant: %w", err)
			}
			if err := qs.EnsureCollection(ctx, cfg.QdrantCollection, cfg.EmbeddingVectorSize); err != nil {
				return fmt.Errorf("ensuring qdrant collection: %w", err)
			}
			vectors = qs
		default:
			vectors = vectorstore.NewMemoryStore()
		}

		var embedder llm.Embedder
		if cfg.EmbeddingBaseURL != "" {
			embedder = llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingVectorSize)
		} else {
			slog.Info("no embedding endpoint configured, search degrades to name matching")
		}

		transcriber := transcribe.NewHTTPClient(cfg.TranscriberBaseURL, cfg.TranscriberAPIKey, cfg.TranscriberModel)
		q := queue.New(st, transcriber, queue.Options{
			Timeout:     cfg.TranscribeTimeout,
			MaxRetries:  cfg.MaxRetries,
			BackoffBase: cfg.RetryBackoffBase,
		})

		engine := search.New(st, embedder, vectors, cfg.QdrantCollection)
		captureSvc := capture.NewService(st)

		var processor lifecycle.Processor
		if cfg.ProcessorCommand != "" {
			processor = process.NewCommandProcessor(cfg.ProcessorCommand)
		}

		manager := lifecycle.NewManager(st, lifecycle.Options{
			Queue:      q,
			Assembler:  transcript.NewAssembler(st),
			Search:     engine,
			Orphans:    captureSvc,
			Processor:  processor,
			StaleAfter: cfg.StaleThreshold,
		})
		q.Subscribe(manager.HandleQueueEvent)

		if err := engine.Rebuild(ctx); err != nil {
			slog.Warn("initial index rebuild failed", "error", err)
		}
		if interrupted, err := manager.DetectInterrupted(ctx); err != nil {
			slog.Warn("interruption scan failed", "error", err)
		} else if len(interrupted) > 0 {
			for _, s := range interrupted {
				slog.Warn("interrupted session awaiting recovery",
					"session_id", s.SessionID,
					"reason", s.Reason,
					"last_activity", s.LastActivity)
			}
		}

		go q.Run(ctx)
		// Resume sessions that were mid-transcription when the process died.
		q.Notify()

		router := http.NewRouter(&http.Deps{
			Manager: manager,
			Capture: captureSvc,
			Search:  engine,
			Queue:   q,
		})

		server := &nethttp.Server{Addr: ":" + cfg.APIPort, Handler: router}
		go func() {
			<-ctx.Done()
			slog.Info("shutting down")
			_ = server.Shutdown(context.Background())
		}()

		slog.Info("voicevault listening",
			"addr", server.Addr,
			"data_root", cfg.DataRoot,
			"vector_backend", cfg.VectorBackend)
		if err := server.ListenAndServe(); err != nil && err != nethttp.ErrServerClosed {
			return err
		}
		return nil
	},
}
