package ingest

import (
	"fmt"
	"strings"
	"testing"
)

func TestNewSplitterValidation(t *testing.T) {
	tests := []struct {
		name    string
		size    int
		overlap int
		wantErr bool
	}{
		{name: "valid", size: 1000, overlap: 150},
		{name: "zero overlap", size: 100, overlap: 0},
		{name: "zero size", size: 0, overlap: 0, wantErr: true},
		{name: "overlap equals size", size: 100, overlap: 100, wantErr: true},
		{name: "negative overlap", size: 100, overlap: -1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSplitter(tt.size, tt.overlap)
			if (err != nil) != tt.wantErr {
				t.Errorf("NewSplitter(%d, %d) error = %v, wantErr %v", tt.size, tt.overlap, err, tt.wantErr)
			}
		})
	}
}

func TestSplitShortTextIsOneChunk(t *testing.T) {
	s, _ := NewSplitter(1000, 150)

	chunks := s.Split("a short document")
	if len(chunks) != 1 || chunks[0] != "a short document" {
		t.Errorf("chunks = %q, want the text unchanged", chunks)
	}
}

func TestSplitEmptyTextYieldsNothing(t *testing.T) {
	s, _ := NewSplitter(100, 10)

	for _, text := range []string{"", "   ", "\n\n\n"} {
		if chunks := s.Split(text); len(chunks) != 0 {
			t.Errorf("Split(%q) = %q, want no chunks", text, chunks)
		}
	}
}

func TestSplitRespectsChunkSize(t *testing.T) {
	s, _ := NewSplitter(100, 20)

	var b strings.Builder
	for i := range 100 {
		fmt.Fprintf(&b, "sentence number %d. ", i)
	}

	chunks := s.Split(b.String())
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 100 {
			t.Errorf("chunk %d is %d bytes, want <= 100: %q", i, len(chunk), chunk)
		}
		if chunk != strings.TrimSpace(chunk) {
			t.Errorf("chunk %d has surrounding whitespace: %q", i, chunk)
		}
	}
}

func TestSplitPrefersParagraphBoundaries(t *testing.T) {
	s, _ := NewSplitter(30, 0)

	text := "first paragraph here.\n\nsecond paragraph here.\n\nthird paragraph here."
	chunks := s.Split(text)

	if len(chunks) != 3 {
		t.Fatalf("got %d chunks, want one per paragraph: %q", len(chunks), chunks)
	}
	for i, chunk := range chunks {
		if strings.Contains(chunk, "\n\n") {
			t.Errorf("chunk %d spans a paragraph break: %q", i, chunk)
		}
	}
	joined := strings.Join(chunks, " ")
	for _, want := range []string{"first paragraph", "second paragraph", "third paragraph"} {
		if !strings.Contains(joined, want) {
			t.Errorf("content %q lost in split: %q", want, chunks)
		}
	}
}

func TestSplitOverlapsAdjacentChunks(t *testing.T) {
	s, _ := NewSplitter(100, 40)

	var b strings.Builder
	for i := range 50 {
		fmt.Fprintf(&b, "sentence %02d. ", i)
	}

	chunks := s.Split(b.String())
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}
	for i := 0; i < len(chunks)-1; i++ {
		// The next chunk starts with trailing context of the current one.
		prefix := chunks[i+1]
		if len(prefix) > 12 {
			prefix = prefix[:12]
		}
		if !strings.Contains(chunks[i], prefix) {
			t.Errorf("chunk %d does not overlap chunk %d:\n%q\n%q", i, i+1, chunks[i], chunks[i+1])
		}
	}
}

func TestSplitOverlapCarryRespectsChunkSize(t *testing.T) {
	s, _ := NewSplitter(1000, 150)

	// A small paragraph followed by a near-size one: the small paragraph is
	// carried as overlap, and must be shed again when the big paragraph
	// leaves no room for it.
	text := strings.Repeat("a", 140) + "\n\n" + strings.Repeat("b", 950) + "\n\n" + strings.Repeat("c", 100)

	chunks := s.Split(text)
	for i, chunk := range chunks {
		if len(chunk) > 1000 {
			t.Errorf("chunk %d is %d bytes, want <= 1000", i, len(chunk))
		}
	}
	joined := strings.Join(chunks, " ")
	for _, want := range []string{strings.Repeat("a", 140), strings.Repeat("b", 950), strings.Repeat("c", 100)} {
		if !strings.Contains(joined, want) {
			t.Errorf("content run %q... lost in split", want[:1])
		}
	}
}

func TestSplitHardSplitsUnbreakableRuns(t *testing.T) {
	s, _ := NewSplitter(50, 0)

	chunks := s.Split(strings.Repeat("x", 500))
	if len(chunks) != 10 {
		t.Fatalf("got %d chunks, want 10", len(chunks))
	}
	for i, chunk := range chunks {
		if len(chunk) > 50 {
			t.Errorf("chunk %d is %d bytes, want <= 50", i, len(chunk))
		}
	}
}

func TestSplitKeepsUTF8Intact(t *testing.T) {
	s, _ := NewSplitter(10, 0)

	chunks := s.Split(strings.Repeat("日本語", 20))
	for i, chunk := range chunks {
		if !strings.HasPrefix(chunk, "日") && !strings.HasPrefix(chunk, "本") && !strings.HasPrefix(chunk, "語") {
			t.Errorf("chunk %d starts mid-rune: %q", i, chunk)
		}
	}
}

func TestChunkDocumentMetadata(t *testing.T) {
	s, _ := NewSplitter(60, 0)

	doc := Document{
		Content:   "first paragraph here.\n\nsecond paragraph here.\n\nthird paragraph here.",
		Source:    "docs/guide.md",
		Filename:  "guide.md",
		Extension: ".md",
	}
	chunks := s.ChunkDocument(doc)
	if len(chunks) < 2 {
		t.Fatalf("got %d chunks, want several", len(chunks))
	}

	for i, chunk := range chunks {
		meta := chunk.Metadata
		if meta.ChunkIndex != i {
			t.Errorf("chunk %d: ChunkIndex = %d", i, meta.ChunkIndex)
		}
		if meta.TotalChunks != len(chunks) {
			t.Errorf("chunk %d: TotalChunks = %d, want %d", i, meta.TotalChunks, len(chunks))
		}
		if meta.Source != "docs/guide.md" || chunk.Source != "docs/guide.md" {
			t.Errorf("chunk %d: source = %q / %q", i, meta.Source, chunk.Source)
		}
		if meta.Filename != "guide.md" || meta.Extension != ".md" {
			t.Errorf("chunk %d: metadata = %+v", i, meta)
		}
	}
}
