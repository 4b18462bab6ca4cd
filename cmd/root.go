// Package cmd contains the docchat command line interface.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "docchat",
	Short: "docchat - retrieval-augmented chat over your documents",
	Long: `docchat answers questions about your documents.

Ingest markdown or text files into a PostgreSQL/pgvector knowledge base,
then serve a chat API that retrieves the most relevant chunks and generates
grounded, source-cited answers.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// checkProviderEnv verifies credentials for the configured provider before
// doing any real work, so misconfiguration fails fast with guidance.
func checkProviderEnv(provider string) error {
	if provider != "gemini" {
		return nil
	}
	if os.Getenv("GEMINI_API_KEY") == "" && os.Getenv("GOOGLE_API_KEY") == "" {
		fmt.Fprintln(os.Stderr, "Error: GEMINI_API_KEY environment variable not set")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "docchat requires a Gemini API key for embeddings and generation.")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "To set your API key:")
		fmt.Fprintln(os.Stderr, "  export GEMINI_API_KEY=your-api-key")
		fmt.Fprintln(os.Stderr, "")
		fmt.Fprintln(os.Stderr, "Get your API key at: https://ai.google.dev/")
		return fmt.Errorf("GEMINI_API_KEY not set")
	}
	return nil
}
