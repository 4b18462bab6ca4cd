package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"docchat/internal/config"
	"docchat/internal/log"
	"docchat/internal/store"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge base statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStats()
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

// runStats only needs the database, not the AI provider.
func runStats() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, cfg.PostgresConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	st := store.New(pool, cfg.EmbeddingDim, log.NewNop())
	count, err := st.DocumentCount(ctx)
	if err != nil {
		return fmt.Errorf("counting documents: %w", err)
	}

	status := "no_documents"
	if count > 0 {
		status = "ready"
	}
	fmt.Printf("Documents: %d\nStatus:    %s\n", count, status)
	return nil
}
