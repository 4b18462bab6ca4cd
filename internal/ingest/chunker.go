package ingest

import (
	"errors"
	"strings"

	"docchat/internal/store"
)

// Chunking defaults, tuned for prose documents.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 150
)

// Separators tried in order when splitting, from coarsest (paragraph) to
// finest. The empty string means a hard split on character boundaries.
var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Splitter breaks text into chunks of at most Size bytes, preferring to cut
// on paragraph and sentence boundaries, with adjacent chunks sharing up to
// Overlap bytes of trailing context.
type Splitter struct {
	size    int
	overlap int
}

// NewSplitter creates a Splitter. Overlap must be smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, errors.New("chunk size must be positive")
	}
	if overlap < 0 || overlap >= size {
		return nil, errors.New("chunk overlap must be non-negative and smaller than the chunk size")
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split breaks text into chunks. Chunks are trimmed of surrounding
// whitespace; empty chunks are dropped.
func (s *Splitter) Split(text string) []string {
	return s.split(text, defaultSeparators)
}

func (s *Splitter) split(text string, separators []string) []string {
	if len(text) <= s.size {
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			return []string{trimmed}
		}
		return nil
	}

	sep := ""
	var remaining []string
	for i, candidate := range separators {
		if candidate == "" || strings.Contains(text, candidate) {
			sep = candidate
			remaining = separators[i+1:]
			break
		}
	}

	var pieces []string
	if sep == "" {
		pieces = hardSplit(text, s.size)
	} else {
		pieces = strings.Split(text, sep)
	}

	var chunks []string
	var current []string
	currentLen := 0

	emit := func(keepOverlap bool) {
		if len(current) == 0 {
			return
		}
		if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
			chunks = append(chunks, chunk)
		}
		if !keepOverlap {
			current = nil
			currentLen = 0
			return
		}
		// Carry trailing pieces up to the overlap budget into the next chunk.
		tailStart := len(current)
		tailLen := 0
		for i := len(current) - 1; i >= 0; i-- {
			pieceLen := len(current[i]) + len(sep)
			if tailLen+pieceLen > s.overlap {
				break
			}
			tailLen += pieceLen
			tailStart = i
		}
		current = append([]string(nil), current[tailStart:]...)
		currentLen = tailLen
	}

	for _, piece := range pieces {
		if len(piece) > s.size {
			// The piece alone exceeds a chunk; close the running chunk and
			// recurse with the finer separators.
			emit(false)
			chunks = append(chunks, s.split(piece, remaining)...)
			continue
		}
		if currentLen+len(piece)+len(sep) > s.size && len(current) > 0 {
			emit(true)
			// The carried overlap may still not leave room for this piece;
			// shed pieces from its front until it does.
			for len(current) > 0 && currentLen+len(piece)+len(sep) > s.size {
				currentLen -= len(current[0]) + len(sep)
				current = current[1:]
			}
		}
		current = append(current, piece)
		currentLen += len(piece) + len(sep)
	}
	emit(false)

	return chunks
}

// hardSplit cuts text into windows of at most size bytes without breaking
// UTF-8 sequences. Last resort when no separator fits.
func hardSplit(text string, size int) []string {
	var parts []string
	var b strings.Builder
	for _, r := range text {
		if b.Len()+len(string(r)) > size && b.Len() > 0 {
			parts = append(parts, b.String())
			b.Reset()
		}
		b.WriteRune(r)
	}
	if b.Len() > 0 {
		parts = append(parts, b.String())
	}
	return parts
}

// ChunkDocument splits a document and annotates every chunk with its
// provenance. ChunkIndex runs from 0 to TotalChunks-1 in document order.
func (s *Splitter) ChunkDocument(doc Document) []store.Chunk {
	pieces := s.Split(doc.Content)
	chunks := make([]store.Chunk, len(pieces))
	for i, content := range pieces {
		chunks[i] = store.Chunk{
			Content: content,
			Source:  doc.Source,
			Metadata: store.ChunkMetadata{
				Source:      doc.Source,
				Filename:    doc.Filename,
				Extension:   doc.Extension,
				Path:        doc.Source,
				ChunkIndex:  i,
				TotalChunks: len(pieces),
			},
		}
	}
	return chunks
}
