package store

import "time"

// Message roles. The schema enforces the same set with a CHECK constraint.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ChunkMetadata describes where a chunk came from within its source document.
// It is persisted as a JSON text column; unknown or malformed stored values
// decode to the zero value rather than failing a read.
type ChunkMetadata struct {
	Source      string `json:"source"`
	Filename    string `json:"filename,omitempty"`
	Extension   string `json:"extension,omitempty"`
	Path        string `json:"path,omitempty"`
	ChunkIndex  int    `json:"chunkIndex"`
	TotalChunks int    `json:"totalChunks"`
}

// Chunk is a bounded slice of a source document stored with its embedding.
// Chunks are immutable once inserted; re-ingestion deletes and re-creates them.
type Chunk struct {
	ID        int64
	Content   string
	Metadata  ChunkMetadata
	Source    string
	Embedding []float32
	CreatedAt time.Time
}

// Source is a chunk annotated with its similarity score for one query.
// It is derived, never persisted.
type Source struct {
	ID         int64         `json:"id"`
	Content    string        `json:"content"`
	SourceName string        `json:"source"`
	Metadata   ChunkMetadata `json:"metadata"`
	Similarity float64       `json:"similarity"`
}

// Session is a persisted conversation thread.
type Session struct {
	ID        int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one turn in a session. SourceIDs carries the document chunk ids
// the assistant cited, nil for user messages.
type Message struct {
	ID        int64
	SessionID int64
	Role      string
	Content   string
	SourceIDs []int64
	CreatedAt time.Time
}
