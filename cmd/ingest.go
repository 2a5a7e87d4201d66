package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/anidex/anidex/internal/app"
	"github.com/anidex/anidex/internal/ingest"
)

var (
	ingestFile      string
	ingestBatchSize int
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [file]",
	Short: "Bulk-index shows from a JSON export",
	Long: `Ingest reads a JSON export of show rows, normalizes each row, and
upserts the resulting documents into the vector index in batches.
Invalid rows are skipped with a warning; a failed batch aborts the run.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestFile, "file", "",
		"path to the JSON export (defaults to shows_json from config)")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0,
		"records per upsert batch (defaults to batch_size from config)")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		path := ingestFile
		if len(args) > 0 {
			path = args[0]
		}
		if path == "" {
			path = a.Config.ShowsJSON
		}
		batchSize := ingestBatchSize
		if batchSize <= 0 {
			batchSize = a.Config.BatchSize
		}

		records, err := ingest.ReadShows(path, slog.Default().With("component", "ingest"))
		if err != nil {
			return fmt.Errorf("reading shows: %w", err)
		}

		indexed, err := ingest.Run(ctx, a.Vectors, records, batchSize, slog.Default().With("component", "ingest"))
		if err != nil {
			return fmt.Errorf("indexed %d of %d records: %w", indexed, len(records), err)
		}

		fmt.Printf("Indexed %d shows from %s\n", indexed, path)
		return nil
	})
}
