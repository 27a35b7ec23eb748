package embedding

import "context"

// Embedder generates vector embeddings from text.
// Implementations must be thread-safe for concurrent use.
type Embedder interface {
	// EmbedTexts generates vector embeddings for multiple text strings in
	// a batch. The returned slice contains embeddings in the same order as
	// the input texts, one per text.
	// Failures carry one of the package's sentinel error kinds.
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)

	// Provider returns the provider name this embedder is registered
	// under, for example "nomic".
	Provider() string

	// Model returns the model identifier vectors are computed with.
	// Part of the cache key: changing the model invalidates cached
	// vectors.
	Model() string

	// Dimensions returns the length of every vector this embedder
	// produces.
	Dimensions() int
}
