// Package ingest loads source documents, splits them into bounded chunks,
// and writes them to the knowledge base with their embeddings.
package ingest

import (
	"fmt"
	"io/fs"
	"path"
	"slices"

	"github.com/bmatcuk/doublestar/v4"
)

// Document is one loaded source file before chunking.
type Document struct {
	Content   string
	Source    string // slash-separated path relative to the ingest root
	Filename  string
	Extension string
}

// LoadDocuments reads every file under fsys matching pattern. The pattern
// supports ** and brace alternatives (e.g. "docs/**/*.{md,txt}"). A pattern
// that matches nothing returns an empty slice, not an error.
func LoadDocuments(fsys fs.FS, pattern string) ([]Document, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("invalid pattern %q", pattern)
	}

	matches, err := doublestar.Glob(fsys, pattern)
	if err != nil {
		return nil, fmt.Errorf("globbing %q: %w", pattern, err)
	}
	slices.Sort(matches)

	var documents []Document
	for _, name := range matches {
		info, err := fs.Stat(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", name, err)
		}
		if info.IsDir() {
			continue
		}

		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", name, err)
		}

		documents = append(documents, Document{
			Content:   string(data),
			Source:    name,
			Filename:  path.Base(name),
			Extension: path.Ext(name),
		})
	}
	return documents, nil
}
