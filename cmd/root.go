// Package cmd provides CLI commands for anidex.
//
// Commands:
//   - ask: Answer a question over the indexed shows
//   - ingest: Bulk-index shows from a JSON export
//   - reindex: Rebuild vector rows from the metadata cache
//   - info: Show index and cache statistics
//   - version: Show version information
//
// Signal handling and graceful shutdown are implemented
// for all commands via context cancellation.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/anidex/anidex/internal/app"
	"github.com/anidex/anidex/internal/config"
	"github.com/anidex/anidex/internal/log"
)

var rootCmd = &cobra.Command{
	Use:   "anidex",
	Short: "anidex - anime metadata search with external fallback",
	Long: `anidex answers questions about anime shows using vector search over
an indexed catalog. When local results are too weak it can fall back to
an AniDB MCP server, cache the fetched metadata, and index it for next time.`,
	SilenceUsage: true,
}

// Execute is the main entry point for the anidex CLI application.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{Level: level}))

	return rootCmd.Execute()
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// withApp loads configuration, initializes the application, runs fn,
// and shuts everything down afterwards. The shared setup path for
// every command that needs the full stack. Overrides run after Load
// and are re-validated, so flag values obey the same ranges as config.
func withApp(fn func(ctx context.Context, a *app.App) error, overrides ...func(*config.Config)) error {
	ctx, cancel := signalContext()
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	if len(overrides) > 0 {
		for _, o := range overrides {
			o(cfg)
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("validating configuration: %w", err)
		}
	}

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("closing application", "error", err)
		}
	}()

	return fn(ctx, a)
}
