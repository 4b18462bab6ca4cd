// Package testutil provides shared testing utilities for the docchat project.
package testutil

import (
	"context"
	"hash/fnv"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/core/api"
)

// MockEmbedder implements ai.Embedder for tests.
//
// By default it returns a deterministic vector per input text (derived from
// an FNV hash), so identical texts embed identically across calls. Behavior
// can be overridden per test via the exported fields.
type MockEmbedder struct {
	// Dim is the dimensionality of generated vectors. Default 8.
	Dim int

	// Err, when set, is returned from every Embed call.
	Err error

	// Vectors, when set, overrides generation: one vector per input text,
	// matched by index, cycling if shorter than the batch.
	Vectors [][]float32

	// ShortResponse drops the last embedding from the response, simulating
	// a batch-size mismatch from the provider.
	ShortResponse bool

	// CallCount tracks the number of Embed calls.
	CallCount int

	// LastInputs records the texts of the most recent call.
	LastInputs []string
}

func (m *MockEmbedder) Name() string { return "mock-embedder" }

func (m *MockEmbedder) Register(api.Registry) {}

func (m *MockEmbedder) Embed(ctx context.Context, req *ai.EmbedRequest) (*ai.EmbedResponse, error) {
	m.CallCount++

	m.LastInputs = m.LastInputs[:0]
	for _, doc := range req.Input {
		if len(doc.Content) > 0 {
			m.LastInputs = append(m.LastInputs, doc.Content[0].Text)
		} else {
			m.LastInputs = append(m.LastInputs, "")
		}
	}

	if m.Err != nil {
		return nil, m.Err
	}

	embeddings := make([]*ai.Embedding, 0, len(req.Input))
	for i, text := range m.LastInputs {
		var vec []float32
		if len(m.Vectors) > 0 {
			vec = m.Vectors[i%len(m.Vectors)]
		} else {
			vec = m.vectorFor(text)
		}
		embeddings = append(embeddings, &ai.Embedding{Embedding: vec})
	}

	if m.ShortResponse && len(embeddings) > 0 {
		embeddings = embeddings[:len(embeddings)-1]
	}

	return &ai.EmbedResponse{Embeddings: embeddings}, nil
}

// vectorFor produces a deterministic pseudo-embedding for a text.
func (m *MockEmbedder) vectorFor(text string) []float32 {
	dim := m.Dim
	if dim == 0 {
		dim = 8
	}

	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()

	vec := make([]float32, dim)
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(seed%1000)/1000 - 0.5
	}
	return vec
}
