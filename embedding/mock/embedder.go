// Package mock provides a test double for embedding.Embedder.
//
// The default behavior is deterministic: each text maps to a pseudo-random
// vector seeded from its hash, so the same text always embeds to the same
// vector across runs. Custom behavior is injected via the EmbedTextsFunc
// field.
package mock

import (
	"context"
	"hash/fnv"
	"sync"
)

// MockEmbedder is a test double for embedding.Embedder.
type MockEmbedder struct {
	// EmbedTextsFunc is called by EmbedTexts if set.
	// If nil, uses default deterministic behavior.
	EmbedTextsFunc func(ctx context.Context, texts []string) ([][]float32, error)

	// ProviderName, ModelName and Dims override the reported identity.
	ProviderName string
	ModelName    string
	Dims         int

	mu        sync.Mutex
	callCount int
	textCount int
}

// NewMockEmbedder creates a mock embedder with default deterministic
// behavior, reporting provider "mock", model "mock-embed" and 8 dimensions.
func NewMockEmbedder() *MockEmbedder {
	return &MockEmbedder{
		ProviderName: "mock",
		ModelName:    "mock-embed",
		Dims:         8,
	}
}

// EmbedTexts generates deterministic embeddings for the texts.
func (m *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	m.mu.Lock()
	m.callCount++
	m.textCount += len(texts)
	m.mu.Unlock()

	if m.EmbedTextsFunc != nil {
		return m.EmbedTextsFunc(ctx, texts)
	}

	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = generateDeterministicVector(text, m.Dims)
	}
	return vectors, nil
}

// Provider returns the configured provider name.
func (m *MockEmbedder) Provider() string { return m.ProviderName }

// Model returns the configured model name.
func (m *MockEmbedder) Model() string { return m.ModelName }

// Dimensions returns the configured vector length.
func (m *MockEmbedder) Dimensions() int { return m.Dims }

// CallCount returns the number of EmbedTexts calls.
func (m *MockEmbedder) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// TextCount returns the total number of texts embedded across all calls.
func (m *MockEmbedder) TextCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.textCount
}

// Reset clears counters and injected behavior.
func (m *MockEmbedder) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.textCount = 0
	m.EmbedTextsFunc = nil
}

// generateDeterministicVector creates a deterministic embedding vector from
// text. It uses FNV hash to ensure the same text always produces the same
// vector.
func generateDeterministicVector(text string, dim int) []float32 {
	h := fnv.New32a()
	h.Write([]byte(text))
	seed := h.Sum32()

	vector := make([]float32, dim)
	for i := 0; i < dim; i++ {
		seed = seed*1664525 + 1013904223 // LCG constants
		vector[i] = float32(seed%1000) / 1000.0
	}
	return vector
}
