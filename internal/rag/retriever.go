// Package rag implements the retrieval-and-answer pipeline: semantic search
// over stored chunks and grounded answer generation.
package rag

import (
	"context"
	"fmt"
	"log/slog"

	"docchat/internal/store"
)

// Default retrieval parameters. The threshold is deliberately loose,
// favoring recall over precision.
const (
	DefaultLimit     = 5
	DefaultThreshold = 0.3
)

// Embedder converts a query into a vector. Satisfied by *embed.Service.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Searcher performs vector similarity search. Satisfied by *store.Store.
type Searcher interface {
	SimilaritySearch(ctx context.Context, embedding []float32, limit int, threshold float64) ([]store.Source, error)
}

// Option configures retrieval behavior using the functional options pattern.
type Option func(*retrieveConfig)

type retrieveConfig struct {
	limit     int
	threshold float64
}

// WithLimit sets the maximum number of sources to return. Default is 5.
func WithLimit(limit int) Option {
	return func(c *retrieveConfig) {
		if limit > 0 {
			c.limit = limit
		}
	}
}

// WithThreshold sets the minimum cosine similarity a chunk must exceed.
// Default is 0.3.
func WithThreshold(threshold float64) Option {
	return func(c *retrieveConfig) {
		c.threshold = threshold
	}
}

func buildRetrieveConfig(opts []Option) retrieveConfig {
	cfg := retrieveConfig{limit: DefaultLimit, threshold: DefaultThreshold}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// Retriever finds the stored chunks most similar to a query.
type Retriever struct {
	embedder Embedder
	searcher Searcher
	logger   *slog.Logger
}

// NewRetriever creates a Retriever. A nil logger falls back to slog.Default().
func NewRetriever(embedder Embedder, searcher Searcher, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{embedder: embedder, searcher: searcher, logger: logger}
}

// Retrieve embeds the query once and returns the most similar chunks, best
// first. An empty result is a valid outcome, not an error: it means nothing
// in the knowledge base cleared the threshold.
func (r *Retriever) Retrieve(ctx context.Context, query string, opts ...Option) ([]store.Source, error) {
	cfg := buildRetrieveConfig(opts)

	embedding, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	sources, err := r.searcher.SimilaritySearch(ctx, embedding, cfg.limit, cfg.threshold)
	if err != nil {
		return nil, fmt.Errorf("searching documents: %w", err)
	}

	r.logger.Debug("retrieved sources",
		"query_length", len(query),
		"count", len(sources),
		"limit", cfg.limit,
		"threshold", cfg.threshold)
	return sources, nil
}
