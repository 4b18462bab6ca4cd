// Package app wires configuration, storage, the AI provider, and the RAG
// services into a running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/firebase/genkit/go/plugins/googlegenai"
	"github.com/firebase/genkit/go/plugins/ollama"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/time/rate"

	"docchat/db"
	"docchat/internal/chat"
	"docchat/internal/config"
	"docchat/internal/embed"
	"docchat/internal/ingest"
	"docchat/internal/log"
	"docchat/internal/observability"
	"docchat/internal/rag"
	"docchat/internal/store"
)

// App holds the initialized application components.
// Call Close to release resources.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	Pool   *pgxpool.Pool
	Genkit *genkit.Genkit

	Store     *store.Store
	Embedder  *embed.Service
	Retriever *rag.Retriever
	Generator *rag.Generator
	Chat      *chat.Service
	Ingest    *ingest.Pipeline

	traceCleanup func()
}

// Setup initializes the application: migrations, connection pool, AI
// provider, and the service graph.
func Setup(ctx context.Context, cfg *config.Config) (_ *App, retErr error) {
	var level slog.Level
	_ = level.UnmarshalText([]byte(cfg.LogLevel))
	logger := log.New(log.Config{Level: level, JSON: cfg.LogJSON})
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	// Tracing registers with Genkit's TracerProvider, so it must come
	// before genkit.Init.
	a.traceCleanup = provideTracing(ctx, cfg, logger)

	pool, err := providePool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Pool = pool

	g, embedder, err := provideGenkit(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a.Genkit = g

	a.Store = store.New(pool, cfg.EmbeddingDim, logger)
	a.Embedder = embed.New(embedder, cfg.EmbeddingDim, logger)
	a.Retriever = rag.NewRetriever(a.Embedder, a.Store, logger)
	a.Generator = rag.NewGenerator(g, qualifiedModelName(cfg), logger)

	chatSvc, err := chat.New(chat.Config{
		Retriever:           a.Retriever,
		Generator:           a.Generator,
		Sessions:            a.Store,
		Logger:              logger,
		RetrievalLimit:      cfg.RetrievalLimit,
		SimilarityThreshold: cfg.SimilarityThreshold,
		HistoryLimit:        cfg.HistoryLimit,
	})
	if err != nil {
		return nil, err
	}
	a.Chat = chatSvc

	var limiter *rate.Limiter
	if cfg.EmbedRateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.EmbedRateLimit), 1)
	}
	pipeline, err := ingest.New(ingest.Config{
		Store:    a.Store,
		Embedder: a.Embedder,
		Logger:   logger,
		Limiter:  limiter,
		LockPath: cfg.IngestLockFile,
	})
	if err != nil {
		return nil, err
	}
	a.Ingest = pipeline

	return a, nil
}

// Close releases the pool and flushes pending trace spans. Safe to call on
// a partially initialized App.
func (a *App) Close() {
	if a.Pool != nil {
		a.Pool.Close()
	}
	if a.traceCleanup != nil {
		a.traceCleanup()
	}
}

// provideTracing sets up the OTLP exporter when tracing is enabled.
// Always returns a non-nil cleanup.
func provideTracing(ctx context.Context, cfg *config.Config, logger *slog.Logger) func() {
	if !cfg.TraceEnabled {
		return func() {}
	}

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.TraceEndpoint,
		ServiceName: "docchat",
		Logger:      logger,
	})
	if err != nil || shutdown == nil {
		logger.Warn("tracing setup failed", "error", err)
		return func() {}
	}

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			logger.Warn("shutting down tracer provider", "error", err)
		}
	}
}

// providePool runs migrations and creates the connection pool.
func providePool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGenkit initializes Genkit with the configured provider and returns
// the instance plus its embedder.
func provideGenkit(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*genkit.Genkit, ai.Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		plugin := &ollama.Ollama{ServerAddress: cfg.OllamaHost}
		g := genkit.Init(ctx, genkit.WithPlugins(plugin))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with ollama provider")
		}
		// Ollama requires explicit registration; there is no auto-discovery.
		plugin.DefineModel(g, ollama.ModelDefinition{
			Name: strings.TrimPrefix(cfg.ModelName, "ollama/"),
			Type: "chat",
		}, nil)
		plugin.DefineEmbedder(g, cfg.OllamaHost, cfg.EmbedderModel, nil)
		logger.Info("initialized genkit with ollama provider",
			"model", cfg.ModelName, "host", cfg.OllamaHost)

		embedder := ollama.Embedder(g, cfg.OllamaHost)
		if embedder == nil {
			return nil, nil, fmt.Errorf("embedder %q not found for ollama provider", cfg.EmbedderModel)
		}
		return g, embedder, nil

	default: // "gemini"
		g := genkit.Init(ctx, genkit.WithPlugins(&googlegenai.GoogleAI{}))
		if g == nil {
			return nil, nil, errors.New("initializing genkit with gemini provider")
		}
		logger.Info("initialized genkit with gemini provider", "model", cfg.ModelName)

		embedder := googlegenai.GoogleAIEmbedder(g, cfg.EmbedderModel)
		if embedder == nil {
			return nil, nil, fmt.Errorf("embedder %q not found for gemini provider", cfg.EmbedderModel)
		}
		return g, embedder, nil
	}
}

// qualifiedModelName returns the provider-qualified model name the
// generation call expects.
func qualifiedModelName(cfg *config.Config) string {
	if cfg.Provider == "ollama" && !strings.Contains(cfg.ModelName, "/") {
		return "ollama/" + cfg.ModelName
	}
	return cfg.ModelName
}
