package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/gofrs/flock"
	"golang.org/x/time/rate"

	"docchat/internal/store"
)

// ErrLocked indicates a concurrent ingestion holds the lock file.
var ErrLocked = errors.New("another ingestion is already running")

// DefaultBatchSize is the number of chunks embedded and inserted per batch.
const DefaultBatchSize = 10

// Embedder produces one vector per input text. Satisfied by *embed.Service.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore is the document persistence the pipeline needs.
// Satisfied by *store.Store.
type ChunkStore interface {
	InsertChunks(ctx context.Context, chunks []store.Chunk) ([]store.Chunk, error)
	DeleteAllChunks(ctx context.Context) error
}

// Config contains the dependencies for creating a Pipeline.
type Config struct {
	Store    ChunkStore
	Embedder Embedder
	Logger   *slog.Logger

	// Limiter throttles embedding batches. Nil means unthrottled.
	Limiter *rate.Limiter

	// LockPath, when set, serializes ingestion runs across processes via a
	// lock file. Concurrent runs would race on a --reset wipe.
	LockPath string
}

func (cfg Config) validate() error {
	if cfg.Store == nil {
		return errors.New("store is required")
	}
	if cfg.Embedder == nil {
		return errors.New("embedder is required")
	}
	return nil
}

// Options control one ingestion run. Zero values use the package defaults.
type Options struct {
	Pattern      string
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int

	// Reset wipes all existing chunks before inserting.
	Reset bool
}

// Summary reports what one ingestion run did.
type Summary struct {
	Documents int
	Chunks    int
	Inserted  int
}

// Pipeline ingests documents: load, chunk, embed, insert.
type Pipeline struct {
	store    ChunkStore
	embedder Embedder
	logger   *slog.Logger
	limiter  *rate.Limiter
	lockPath string
}

// New creates an ingestion Pipeline.
func New(cfg Config) (*Pipeline, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		store:    cfg.Store,
		embedder: cfg.Embedder,
		logger:   logger,
		limiter:  cfg.Limiter,
		lockPath: cfg.LockPath,
	}, nil
}

// Run executes one ingestion over fsys. Batches are embedded and inserted
// sequentially; a mid-run failure leaves earlier batches in place.
func (p *Pipeline) Run(ctx context.Context, fsys fs.FS, opts Options) (Summary, error) {
	if p.lockPath != "" {
		lock := flock.New(p.lockPath)
		locked, err := lock.TryLock()
		if err != nil {
			return Summary{}, fmt.Errorf("acquiring ingest lock: %w", err)
		}
		if !locked {
			return Summary{}, ErrLocked
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				p.logger.Warn("releasing ingest lock", "error", err)
			}
		}()
	}

	chunkSize := opts.ChunkSize
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	chunkOverlap := opts.ChunkOverlap
	if chunkOverlap < 0 {
		chunkOverlap = DefaultChunkOverlap
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	splitter, err := NewSplitter(chunkSize, chunkOverlap)
	if err != nil {
		return Summary{}, err
	}

	p.logger.Info("starting ingestion", "pattern", opts.Pattern, "chunk_size", chunkSize, "chunk_overlap", chunkOverlap)

	documents, err := LoadDocuments(fsys, opts.Pattern)
	if err != nil {
		return Summary{}, fmt.Errorf("loading documents: %w", err)
	}
	if len(documents) == 0 {
		p.logger.Warn("no documents matched pattern", "pattern", opts.Pattern)
		return Summary{}, nil
	}
	p.logger.Info("loaded documents", "count", len(documents))

	var allChunks []store.Chunk
	for _, doc := range documents {
		allChunks = append(allChunks, splitter.ChunkDocument(doc)...)
	}
	p.logger.Info("chunked documents", "chunks", len(allChunks))

	summary := Summary{Documents: len(documents), Chunks: len(allChunks)}

	if opts.Reset {
		if err := p.store.DeleteAllChunks(ctx); err != nil {
			return summary, fmt.Errorf("resetting knowledge base: %w", err)
		}
		p.logger.Info("cleared existing chunks")
	}

	for start := 0; start < len(allChunks); start += batchSize {
		end := min(start+batchSize, len(allChunks))
		batch := allChunks[start:end]

		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return summary, fmt.Errorf("waiting for rate limiter: %w", err)
			}
		}

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}
		embeddings, err := p.embedder.Embed(ctx, texts)
		if err != nil {
			return summary, fmt.Errorf("embedding batch at chunk %d: %w", start, err)
		}
		for i := range batch {
			batch[i].Embedding = embeddings[i]
		}

		if _, err := p.store.InsertChunks(ctx, batch); err != nil {
			return summary, fmt.Errorf("inserting batch at chunk %d: %w", start, err)
		}
		summary.Inserted += len(batch)
		p.logger.Info("ingestion progress", "inserted", summary.Inserted, "total", len(allChunks))
	}

	p.logger.Info("ingestion complete", "documents", summary.Documents, "chunks", summary.Chunks)
	return summary, nil
}
