package embed

import (
	"context"
	"errors"
	"testing"

	"docchat/internal/log"
	"docchat/internal/testutil"
)

func TestEmbedBatch(t *testing.T) {
	mock := &testutil.MockEmbedder{Dim: 8}
	s := New(mock, 8, log.NewNop())

	vectors, err := s.Embed(context.Background(), []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("Embed: %v", err)
	}
	if len(vectors) != 3 {
		t.Fatalf("got %d vectors, want 3", len(vectors))
	}
	for i, v := range vectors {
		if len(v) != 8 {
			t.Errorf("vector %d has %d dimensions, want 8", i, len(v))
		}
	}
	if mock.CallCount != 1 {
		t.Errorf("embedder called %d times, want 1 (single batched request)", mock.CallCount)
	}
	if len(mock.LastInputs) != 3 || mock.LastInputs[0] != "alpha" {
		t.Errorf("inputs = %v", mock.LastInputs)
	}
}

func TestEmbedEmptyInput(t *testing.T) {
	mock := &testutil.MockEmbedder{Dim: 8}
	s := New(mock, 8, log.NewNop())

	vectors, err := s.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("Embed(nil) = %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("got %d vectors, want 0", len(vectors))
	}
	if mock.CallCount != 0 {
		t.Errorf("embedder called %d times for empty input, want 0", mock.CallCount)
	}
}

func TestEmbedErrors(t *testing.T) {
	tests := []struct {
		name string
		mock *testutil.MockEmbedder
	}{
		{
			name: "external failure",
			mock: &testutil.MockEmbedder{Err: errors.New("quota exceeded")},
		},
		{
			name: "batch size mismatch",
			mock: &testutil.MockEmbedder{Dim: 8, ShortResponse: true},
		},
		{
			name: "dimension mismatch",
			mock: &testutil.MockEmbedder{Dim: 4},
		},
		{
			name: "empty embedding",
			mock: &testutil.MockEmbedder{Vectors: [][]float32{{}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New(tt.mock, 8, log.NewNop())
			_, err := s.Embed(context.Background(), []string{"a", "b"})
			if !errors.Is(err, ErrEmbedding) {
				t.Fatalf("Embed = %v, want ErrEmbedding", err)
			}
		})
	}
}

func TestEmbedOne(t *testing.T) {
	mock := &testutil.MockEmbedder{Dim: 8}
	s := New(mock, 8, log.NewNop())

	v1, err := s.EmbedOne(context.Background(), "query text")
	if err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}
	v2, err := s.EmbedOne(context.Background(), "query text")
	if err != nil {
		t.Fatalf("EmbedOne: %v", err)
	}

	// The mock is deterministic per text; the service must pass texts through unchanged.
	for i := range v1 {
		if v1[i] != v2[i] {
			t.Fatalf("EmbedOne not deterministic at %d: %v vs %v", i, v1[i], v2[i])
		}
	}
}
