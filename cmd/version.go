package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runVersion(cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(w io.Writer) error {
	fmt.Fprintf(w, "anidex %s\n", AppVersion)
	fmt.Fprintf(w, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(w, "Git Commit: %s\n", GitCommit)
	fmt.Fprintln(w)

	// Check API Key from environment (don't display full content)
	geminiKey := os.Getenv("GEMINI_API_KEY")
	if geminiKey != "" && len(geminiKey) >= 8 {
		fmt.Fprintf(w, "GEMINI_API_KEY: %s...%s (configured)\n",
			geminiKey[:4],
			geminiKey[len(geminiKey)-4:])
	} else if geminiKey != "" {
		fmt.Fprintln(w, "GEMINI_API_KEY: configured")
	} else {
		fmt.Fprintln(w, "GEMINI_API_KEY: Not set")
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Hint: Please set GEMINI_API_KEY environment variable")
		fmt.Fprintln(w, "  export GEMINI_API_KEY=your-api-key")
	}

	return nil
}
