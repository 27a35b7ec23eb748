package ingestion

import "errors"

var (
	// ErrDocumentRepositoryRequired is returned when a document repository is not provided.
	ErrDocumentRepositoryRequired = errors.New("document repository required")

	// ErrJobRepositoryRequired is returned when a job repository is not provided.
	ErrJobRepositoryRequired = errors.New("job repository required")

	// ErrConverterRequired is returned when a converter is not provided.
	ErrConverterRequired = errors.New("converter required")

	// ErrEmbedderRegistryRequired is returned when an embedder registry is not provided.
	ErrEmbedderRegistryRequired = errors.New("embedder registry required")

	// ErrEmbeddingCacheRequired is returned when an embedding cache is not provided.
	ErrEmbeddingCacheRequired = errors.New("embedding cache required")

	// ErrVectorIndexRequired is returned when a vector index is not provided.
	ErrVectorIndexRequired = errors.New("vector index required")

	// ErrDocumentBusy is returned when an operation needs exclusive access
	// to a document that is currently being processed.
	ErrDocumentBusy = errors.New("document is being processed")
)
