package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/anidex/anidex/internal/app"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show index and cache statistics",
	RunE:  runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	return withApp(func(ctx context.Context, a *app.App) error {
		count, err := a.Vectors.Count(ctx)
		if err != nil {
			return fmt.Errorf("counting indexed shows: %w", err)
		}

		stats, err := a.Cache.Stats()
		if err != nil {
			return fmt.Errorf("reading cache stats: %w", err)
		}

		fmt.Println("Index:")
		fmt.Printf("  Shows: %d\n", count)
		fmt.Println()
		fmt.Println("Cache:")
		fmt.Printf("  Shows: %d\n", stats.Shows)
		fmt.Printf("  Directory: %s\n", stats.Dir)
		if !stats.Created.IsZero() {
			fmt.Printf("  Created: %s\n", stats.Created.Format("2006-01-02 15:04:05"))
		}
		fmt.Println()
		fmt.Println("Retrieval:")
		fmt.Printf("  K: %d\n", a.Config.RetrievalK)
		fmt.Printf("  Min count: %d\n", a.Config.MinCount)
		fmt.Printf("  Max distance: %.2f\n", a.Config.MaxDistance)
		fmt.Printf("  Fallback enabled: %t\n", a.Config.FallbackEnabled)
		return nil
	})
}
