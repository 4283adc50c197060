// Package commands holds the voicevault CLI: a long-running server plus a
// handful of offline administration commands that operate directly on the
// session store.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"voicevault/internal/config"
	"voicevault/internal/store"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "voicevault",
	Short: "Voice note capture, transcription, and search",
	Long: `voicevault captures audio segments into crash-safe sessions, drives them
through transcription and embedding, and answers natural-language lookups.

The serve command runs the HTTP API and the transcription worker; the other
commands inspect or repair the session store offline.`,
}

// SetVersion sets the version information.
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// bootstrap loads config, configures slog, and opens the store. Every
// command starts here so offline commands observe the same data layout as
// the server.
func bootstrap() (*config.Config, *store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("loading configuration: %w", err)
	}

	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))

	st, err := store.New(cfg.DataRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("opening session store at %s: %w", cfg.DataRoot, err)
	}
	return cfg, st, nil
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("voicevault %s (commit %s, built %s)\n", version, commit, date)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(orphansCmd)
	rootCmd.AddCommand(versionCmd)
}
