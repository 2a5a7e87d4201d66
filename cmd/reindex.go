package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anidex/anidex/internal/app"
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild vector rows from the metadata cache",
	Long: `Reindex loads every record from the file-backed metadata cache and
upserts it into the vector index. Useful after a schema migration or
when the index and cache have drifted apart.`,
	RunE: runReindex,
}

func init() {
	rootCmd.AddCommand(reindexCmd)
}

func runReindex(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		indexed, err := a.Reindex(ctx)
		if err != nil {
			return fmt.Errorf("reindexing from cache: %w", err)
		}

		fmt.Printf("Reindexed %d shows from cache\n", indexed)
		return nil
	})
}
