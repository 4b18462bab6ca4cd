// Package embed converts text into fixed-dimension vectors via a Genkit
// embedder.
//
// Failures are surfaced, never retried: a degraded embedding silently lowers
// answer quality, so callers are expected to propagate errors instead of
// masking them.
package embed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/firebase/genkit/go/ai"
)

// ErrEmbedding indicates the external embedding call failed or returned an
// unusable response.
var ErrEmbedding = errors.New("embedding failed")

// Service generates embeddings through an ai.Embedder.
// Safe for concurrent use.
type Service struct {
	embedder ai.Embedder
	dim      int
	logger   *slog.Logger
}

// New creates a Service. dim is the expected vector dimensionality; every
// returned vector is validated against it. A nil logger falls back to
// slog.Default().
func New(embedder ai.Embedder, dim int, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{embedder: embedder, dim: dim, logger: logger}
}

// Embed embeds a batch of texts in a single request. The result has exactly
// one vector per input text, in input order.
func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	docs := make([]*ai.Document, len(texts))
	for i, text := range texts {
		docs[i] = ai.DocumentFromText(text, nil)
	}

	resp, err := s.embedder.Embed(ctx, &ai.EmbedRequest{Input: docs})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEmbedding, err)
	}

	if len(resp.Embeddings) != len(texts) {
		return nil, fmt.Errorf("%w: requested %d embeddings, got %d", ErrEmbedding, len(texts), len(resp.Embeddings))
	}

	vectors := make([][]float32, len(resp.Embeddings))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Embedding) == 0 {
			return nil, fmt.Errorf("%w: empty embedding at index %d", ErrEmbedding, i)
		}
		if len(e.Embedding) != s.dim {
			return nil, fmt.Errorf("%w: model returned %d dimensions, expected %d", ErrEmbedding, len(e.Embedding), s.dim)
		}
		vectors[i] = e.Embedding
	}

	s.logger.Debug("embedded batch", "texts", len(texts))
	return vectors, nil
}

// EmbedOne embeds a single text.
func (s *Service) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}
