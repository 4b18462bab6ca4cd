package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"docchat/internal/app"
	"docchat/internal/config"
	"docchat/internal/ingest"
)

var (
	ingestDir       string
	ingestChunkSize int
	ingestOverlap   int
	ingestBatch     int
	ingestReset     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest [pattern]",
	Short: "Ingest documents into the knowledge base",
	Long: `Ingest loads files matching the glob pattern, splits them into chunks,
embeds each chunk, and stores everything in the knowledge base.

The pattern supports ** and brace alternatives, e.g. "docs/**/*.{md,txt}".`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := "docs/**/*.{md,txt}"
		if len(args) > 0 {
			pattern = args[0]
		}
		return runIngest(pattern)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDir, "dir", ".", "base directory to ingest from")
	ingestCmd.Flags().IntVar(&ingestChunkSize, "chunk-size", 0, "chunk size in bytes (default from config)")
	ingestCmd.Flags().IntVar(&ingestOverlap, "chunk-overlap", -1, "chunk overlap in bytes (default from config)")
	ingestCmd.Flags().IntVar(&ingestBatch, "batch-size", 0, "chunks per embedding batch (default from config)")
	ingestCmd.Flags().BoolVar(&ingestReset, "reset", false, "delete all existing chunks before ingesting")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(pattern string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := checkProviderEnv(cfg.Provider); err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := app.Setup(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	defer a.Close()

	opts := ingest.Options{
		Pattern:      pattern,
		ChunkSize:    cfg.ChunkSize,
		ChunkOverlap: cfg.ChunkOverlap,
		BatchSize:    cfg.IngestBatch,
		Reset:        ingestReset,
	}
	if ingestChunkSize > 0 {
		opts.ChunkSize = ingestChunkSize
	}
	if ingestOverlap >= 0 {
		opts.ChunkOverlap = ingestOverlap
	}
	if ingestBatch > 0 {
		opts.BatchSize = ingestBatch
	}

	summary, err := a.Ingest.Run(ctx, os.DirFS(ingestDir), opts)
	if err != nil {
		return fmt.Errorf("ingesting: %w", err)
	}

	fmt.Printf("Ingestion complete: %d documents, %d chunks, %d inserted\n",
		summary.Documents, summary.Chunks, summary.Inserted)
	return nil
}
