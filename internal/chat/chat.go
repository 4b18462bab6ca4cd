// Package chat orchestrates one conversational exchange: session resolution,
// history loading, retrieval, generation, and persistence of both turns.
// It is the single entry point consumed by the API layer.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"docchat/internal/rag"
	"docchat/internal/store"
)

// Retriever finds sources for a query. Satisfied by *rag.Retriever.
type Retriever interface {
	Retrieve(ctx context.Context, query string, opts ...rag.Option) ([]store.Source, error)
}

// Generator produces an answer from sources and history.
// Satisfied by *rag.Generator.
type Generator interface {
	Generate(ctx context.Context, question string, sources []store.Source, history []rag.Turn) (string, error)
}

// SessionStore is the session and message persistence the orchestrator needs.
// Satisfied by *store.Store.
type SessionStore interface {
	CreateSession(ctx context.Context) (store.Session, error)
	AppendMessage(ctx context.Context, sessionID int64, role, content string, sourceIDs []int64) (store.Message, error)
	History(ctx context.Context, sessionID int64, limit int) ([]store.Message, error)
}

// Response is the result of one chat exchange.
type Response struct {
	Answer         string
	Sources        []store.Source
	ConversationID int64
}

// Config contains the required dependencies and tuning for a Service.
type Config struct {
	Retriever Retriever
	Generator Generator
	Sessions  SessionStore
	Logger    *slog.Logger

	// RetrievalLimit and SimilarityThreshold tune retrieval per exchange.
	// Zero values fall back to the rag package defaults.
	RetrievalLimit      int
	SimilarityThreshold float64

	// HistoryLimit caps how many stored messages are loaded per exchange.
	// Zero falls back to 20.
	HistoryLimit int
}

func (cfg Config) validate() error {
	if cfg.Retriever == nil {
		return errors.New("retriever is required")
	}
	if cfg.Generator == nil {
		return errors.New("generator is required")
	}
	if cfg.Sessions == nil {
		return errors.New("session store is required")
	}
	return nil
}

// Service handles chat exchanges. Stateless; all shared state lives in the
// database, so independent requests may run concurrently.
type Service struct {
	retriever Retriever
	generator Generator
	sessions  SessionStore
	logger    *slog.Logger

	retrievalLimit      int
	similarityThreshold float64
	historyLimit        int
}

// New creates a chat Service.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	limit := cfg.RetrievalLimit
	if limit <= 0 {
		limit = rag.DefaultLimit
	}
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = rag.DefaultThreshold
	}
	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 20
	}

	return &Service{
		retriever:           cfg.Retriever,
		generator:           cfg.Generator,
		sessions:            cfg.Sessions,
		logger:              logger,
		retrievalLimit:      limit,
		similarityThreshold: threshold,
		historyLimit:        historyLimit,
	}, nil
}

// Chat processes one user message. A nil sessionID starts a new session;
// any non-nil id (including 0) is used as-is and fails downstream if the
// session does not exist.
//
// The user message is persisted before retrieval and generation, so the
// user's turn survives a failed exchange; conversation state is never
// rolled back.
func (s *Service) Chat(ctx context.Context, message string, sessionID *int64) (Response, error) {
	var currentSession int64
	if sessionID != nil {
		currentSession = *sessionID
	} else {
		session, err := s.sessions.CreateSession(ctx)
		if err != nil {
			return Response{}, fmt.Errorf("creating session: %w", err)
		}
		currentSession = session.ID
		s.logger.Debug("created session", "session_id", currentSession)
	}

	history, err := s.sessions.History(ctx, currentSession, s.historyLimit)
	if err != nil {
		return Response{}, fmt.Errorf("loading history: %w", err)
	}
	turns := make([]rag.Turn, len(history))
	for i, msg := range history {
		turns[i] = rag.Turn{Role: msg.Role, Content: msg.Content}
	}

	if _, err := s.sessions.AppendMessage(ctx, currentSession, store.RoleUser, message, nil); err != nil {
		return Response{}, fmt.Errorf("persisting user message: %w", err)
	}

	sources, err := s.retriever.Retrieve(ctx, message,
		rag.WithLimit(s.retrievalLimit),
		rag.WithThreshold(s.similarityThreshold),
	)
	if err != nil {
		return Response{}, fmt.Errorf("retrieving sources: %w", err)
	}

	answer, err := s.generator.Generate(ctx, message, sources, turns)
	if err != nil {
		return Response{}, fmt.Errorf("generating answer: %w", err)
	}

	sourceIDs := make([]int64, len(sources))
	for i, src := range sources {
		sourceIDs[i] = src.ID
	}
	if _, err := s.sessions.AppendMessage(ctx, currentSession, store.RoleAssistant, answer, sourceIDs); err != nil {
		return Response{}, fmt.Errorf("persisting assistant message: %w", err)
	}

	s.logger.Info("chat exchange completed",
		"session_id", currentSession,
		"sources", len(sources),
		"history_turns", len(turns))

	return Response{
		Answer:         answer,
		Sources:        sources,
		ConversationID: currentSession,
	}, nil
}
