package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/anidex/anidex/internal/app"
	"github.com/anidex/anidex/internal/config"
	"github.com/anidex/anidex/internal/rag"
)

var (
	askFormat string
	askK      int
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Answer a question over the indexed shows",
	Long: `Ask runs the full answer chain: vector retrieval (with the external
AniDB fallback when enabled), then answer generation grounded in the
retrieved show metadata.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVar(&askFormat, "format", string(rag.FormatText),
		`answer format: "text" or "json"`)
	askCmd.Flags().IntVar(&askK, "k", 0,
		"documents to retrieve (defaults to retrieval_k from config)")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	question := strings.TrimSpace(strings.Join(args, " "))
	if question == "" {
		return fmt.Errorf("question cannot be empty")
	}

	return withApp(func(ctx context.Context, a *app.App) error {
		answer, err := a.Chain.Answer(ctx, question, rag.Format(askFormat))
		if err != nil {
			return fmt.Errorf("answering question: %w", err)
		}

		fmt.Println(answer.Text)

		if answer.FallbackUsed {
			fmt.Fprintln(cmd.ErrOrStderr(), "(external metadata lookup was used)")
		}
		return nil
	}, func(cfg *config.Config) {
		if askK > 0 {
			cfg.RetrievalK = askK
		}
	})
}
