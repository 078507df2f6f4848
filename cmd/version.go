package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ychsieh/ragchat/internal/config"
)

// Version information (injected at build time via ldflags).
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version and configuration information",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("loading config: %w", err)
		}
		runVersion(cmd, cfg)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func runVersion(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "ragchat %s\n", AppVersion)
	fmt.Fprintf(out, "Build Time: %s\n", BuildTime)
	fmt.Fprintf(out, "Git Commit: %s\n", GitCommit)
	fmt.Fprintln(out)

	fmt.Fprintln(out, "Configuration:")
	fmt.Fprintf(out, "  Model: %s\n", cfg.ModelName)
	fmt.Fprintf(out, "  Embedder: %s\n", cfg.EmbedderModel)
	fmt.Fprintf(out, "  Temperature: %.2f\n", cfg.Temperature)
	fmt.Fprintf(out, "  Retriever top-k: %d\n", cfg.RetrieverTopK)
	fmt.Fprintf(out, "  Chunking: %d bytes, %d overlap\n", cfg.ChunkSize, cfg.ChunkOverlap)
	fmt.Fprintf(out, "  Listen: %s\n", cfg.Addr())
	fmt.Fprintf(out, "  PostgreSQL: %s:%d/%s\n", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDBName)

	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		key = os.Getenv("GOOGLE_API_KEY")
	}
	if len(key) >= 8 {
		fmt.Fprintf(out, "  API key: %s...%s (configured)\n", key[:4], key[len(key)-4:])
	} else if key != "" {
		fmt.Fprintln(out, "  API key: (configured)")
	} else {
		fmt.Fprintln(out, "  API key: not set")
		fmt.Fprintln(out, "  Hint: export GEMINI_API_KEY=your-api-key")
	}
}
