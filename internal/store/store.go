// Package store persists document chunks, chat sessions, and messages in
// PostgreSQL with pgvector similarity search.
//
// Every operation is a durable read or write against the shared database;
// there is no in-process caching. The store is safe for concurrent use by
// multiple goroutines.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"
)

// ErrDimensionMismatch indicates an embedding's length does not match the
// dimensionality the schema was provisioned with.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")

// DB is the subset of pgxpool.Pool the store uses.
// Defined by the consumer so tests can substitute implementations.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// Store provides access to the documents, chat_sessions, and messages tables.
type Store struct {
	db     DB
	dim    int
	logger *slog.Logger
}

// New creates a Store. dim is the embedding dimensionality the schema was
// provisioned with; vectors of any other length are rejected before they
// reach the database. A nil logger falls back to slog.Default().
func New(db DB, dim int, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, dim: dim, logger: logger}
}

// checkDim validates one embedding against the configured dimensionality.
func (s *Store) checkDim(embedding []float32) error {
	if len(embedding) != s.dim {
		return fmt.Errorf("%w: got %d, schema expects %d", ErrDimensionMismatch, len(embedding), s.dim)
	}
	return nil
}

// InsertChunks inserts document chunks in one batch and returns them with
// generated ids and timestamps. An empty input returns an empty slice
// without a database round trip.
func (s *Store) InsertChunks(ctx context.Context, chunks []Chunk) ([]Chunk, error) {
	if len(chunks) == 0 {
		return []Chunk{}, nil
	}

	for i := range chunks {
		if err := s.checkDim(chunks[i].Embedding); err != nil {
			return nil, fmt.Errorf("chunk %d (%s): %w", i, chunks[i].Source, err)
		}
	}

	const insertChunk = `
		INSERT INTO documents (content, metadata, source, embedding)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	batch := &pgx.Batch{}
	for i := range chunks {
		metadataJSON, err := json.Marshal(chunks[i].Metadata)
		if err != nil {
			return nil, fmt.Errorf("marshaling metadata for chunk %d: %w", i, err)
		}
		embedding := pgvector.NewVector(chunks[i].Embedding)
		batch.Queue(insertChunk, chunks[i].Content, string(metadataJSON), chunks[i].Source, embedding)
	}

	results := s.db.SendBatch(ctx, batch)
	defer func() {
		if err := results.Close(); err != nil {
			s.logger.Warn("closing insert batch", "error", err)
		}
	}()

	inserted := make([]Chunk, len(chunks))
	for i := range chunks {
		inserted[i] = chunks[i]
		if err := results.QueryRow().Scan(&inserted[i].ID, &inserted[i].CreatedAt); err != nil {
			return nil, fmt.Errorf("inserting chunk %d: %w", i, err)
		}
	}

	s.logger.Debug("inserted chunks", "count", len(inserted))
	return inserted, nil
}

// SimilaritySearch returns up to limit chunks whose cosine similarity to the
// query embedding strictly exceeds threshold, ordered most similar first.
// Similarity is computed as 1 - cosine distance, so identical vectors score 1.
func (s *Store) SimilaritySearch(ctx context.Context, embedding []float32, limit int, threshold float64) ([]Source, error) {
	if err := s.checkDim(embedding); err != nil {
		return nil, err
	}

	const searchChunks = `
		SELECT id, content, metadata, source, 1 - (embedding <=> $1) AS similarity
		FROM documents
		WHERE 1 - (embedding <=> $1) > $2
		ORDER BY embedding <=> $1
		LIMIT $3`

	query := pgvector.NewVector(embedding)
	rows, err := s.db.Query(ctx, searchChunks, query, threshold, limit)
	if err != nil {
		return nil, fmt.Errorf("similarity search: %w", err)
	}
	defer rows.Close()

	sources := make([]Source, 0, limit)
	for rows.Next() {
		var (
			src          Source
			metadataText string
		)
		if err := rows.Scan(&src.ID, &src.Content, &metadataText, &src.SourceName, &src.Similarity); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		src.Metadata = s.decodeMetadata(src.ID, metadataText)
		sources = append(sources, src)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("similarity search rows: %w", err)
	}

	return sources, nil
}

// decodeMetadata parses the metadata text column. Malformed values degrade to
// zero metadata rather than failing the read; older rows may predate the
// structured form.
func (s *Store) decodeMetadata(id int64, text string) ChunkMetadata {
	var md ChunkMetadata
	if text == "" {
		return md
	}
	if err := json.Unmarshal([]byte(text), &md); err != nil {
		s.logger.Warn("failed to parse chunk metadata", "document_id", id, "error", err)
		return ChunkMetadata{}
	}
	return md
}

// CreateSession creates a new chat session and returns it.
func (s *Store) CreateSession(ctx context.Context) (Session, error) {
	const createSession = `
		INSERT INTO chat_sessions DEFAULT VALUES
		RETURNING id, created_at, updated_at`

	var session Session
	err := s.db.QueryRow(ctx, createSession).Scan(&session.ID, &session.CreatedAt, &session.UpdatedAt)
	if err != nil {
		return Session{}, fmt.Errorf("creating session: %w", err)
	}

	s.logger.Debug("created session", "id", session.ID)
	return session, nil
}

// AppendMessage appends a message to a session and bumps the session's
// updated_at. sourceIDs may be nil; when present it is stored as a JSON array
// of document chunk ids.
func (s *Store) AppendMessage(ctx context.Context, sessionID int64, role, content string, sourceIDs []int64) (Message, error) {
	var sourcesText *string
	if sourceIDs != nil {
		encoded, err := json.Marshal(sourceIDs)
		if err != nil {
			return Message{}, fmt.Errorf("marshaling source ids: %w", err)
		}
		text := string(encoded)
		sourcesText = &text
	}

	const insertMessage = `
		INSERT INTO messages (session_id, role, content, sources)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`

	msg := Message{
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		SourceIDs: sourceIDs,
	}
	if err := s.db.QueryRow(ctx, insertMessage, sessionID, role, content, sourcesText).Scan(&msg.ID, &msg.CreatedAt); err != nil {
		return Message{}, fmt.Errorf("appending message to session %d: %w", sessionID, err)
	}

	const touchSession = `UPDATE chat_sessions SET updated_at = NOW() WHERE id = $1`
	if _, err := s.db.Exec(ctx, touchSession, sessionID); err != nil {
		// The message is already durable; a failed touch only skews session ordering.
		s.logger.Warn("failed to touch session", "session_id", sessionID, "error", err)
	}

	return msg, nil
}

// History returns the limit most recent messages of a session in
// chronological order (oldest first).
func (s *Store) History(ctx context.Context, sessionID int64, limit int) ([]Message, error) {
	const recentMessages = `
		SELECT id, session_id, role, content, sources, created_at
		FROM (
			SELECT id, session_id, role, content, sources, created_at
			FROM messages
			WHERE session_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		) recent
		ORDER BY created_at ASC, id ASC`

	rows, err := s.db.Query(ctx, recentMessages, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history for session %d: %w", sessionID, err)
	}
	defer rows.Close()

	messages := make([]Message, 0, limit)
	for rows.Next() {
		var (
			msg         Message
			sourcesText *string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &msg.Role, &msg.Content, &sourcesText, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		msg.SourceIDs = s.decodeSourceIDs(msg.ID, sourcesText)
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history rows: %w", err)
	}

	return messages, nil
}

// decodeSourceIDs parses the sources text column; NULL or malformed values
// decode to nil.
func (s *Store) decodeSourceIDs(msgID int64, text *string) []int64 {
	if text == nil || *text == "" {
		return nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(*text), &ids); err != nil {
		s.logger.Warn("failed to parse message sources", "message_id", msgID, "error", err)
		return nil
	}
	return ids
}

// DocumentCount returns the total number of stored chunks.
func (s *Store) DocumentCount(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM documents`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting documents: %w", err)
	}
	return count, nil
}

// DeleteAllChunks removes every stored chunk. Idempotent; used before
// re-ingestion.
func (s *Store) DeleteAllChunks(ctx context.Context) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM documents`)
	if err != nil {
		return fmt.Errorf("deleting documents: %w", err)
	}
	s.logger.Info("deleted all document chunks", "count", tag.RowsAffected())
	return nil
}
