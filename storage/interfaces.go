package storage

import (
	"context"

	"github.com/quillworks/docpipe/core"
)

// Repository provides common storage operations shared across all repositories.
// Implementations must be thread-safe and support concurrent access.
type Repository interface {
	// WithTransaction executes a function within a transaction.
	// If fn returns an error, the transaction is rolled back.
	// If fn returns nil, the transaction is committed.
	// The context passed to fn may contain transaction state.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// Close closes the storage backend and releases resources.
	Close() error
}

// DocumentRepository provides operations for managing documents and the
// per-stage artifacts the pipeline persists alongside them.
type DocumentRepository interface {
	Repository

	// AddDocument stores a new document record.
	// Sets CreatedAt and UpdatedAt if not already set.
	// Returns ErrDuplicateKey if a document with the same id exists.
	AddDocument(ctx context.Context, doc *core.Document) error

	// UpdateDocument replaces an existing document record.
	// Updates the UpdatedAt timestamp automatically.
	// Returns ErrNotFound if the document doesn't exist.
	UpdateDocument(ctx context.Context, doc *core.Document) error

	// UpdateStatus transitions a document's status in a single transaction.
	// detail becomes the document's Error field (empty clears it).
	// Returns the updated record, or ErrNotFound if the document doesn't exist.
	UpdateStatus(ctx context.Context, id string, status core.ProcessingStatus, detail string) (*core.Document, error)

	// GetDocument retrieves a single document by id.
	// Returns ErrNotFound if the document doesn't exist.
	GetDocument(ctx context.Context, id string) (*core.Document, error)

	// DeleteDocument removes a document and all of its stored artifacts
	// (raw content, blocks, chunks, embeddings).
	// Returns ErrNotFound if the document doesn't exist.
	DeleteDocument(ctx context.Context, id string) error

	// ListDocuments retrieves documents ordered by creation time descending.
	// offset skips that many documents; limit bounds the page size.
	ListDocuments(ctx context.Context, limit, offset int) ([]*core.Document, error)

	// GetDocumentsByStatus retrieves up to limit documents in the given
	// status, ordered by creation time ascending.
	GetDocumentsByStatus(ctx context.Context, status core.ProcessingStatus, limit int) ([]*core.Document, error)

	// CountDocuments returns the number of stored documents.
	CountDocuments(ctx context.Context) (int, error)

	// SetContent stores the raw uploaded bytes for a document.
	SetContent(ctx context.Context, id string, content []byte) error

	// GetContent retrieves the raw uploaded bytes.
	// Returns ErrNotFound if no content is stored for the id.
	GetContent(ctx context.Context, id string) ([]byte, error)

	// SetBlocks stores the conversion output for a document, replacing any
	// previous blocks.
	SetBlocks(ctx context.Context, id string, blocks []core.Block) error

	// GetBlocks retrieves the stored conversion output.
	// Returns ErrNotFound if conversion has not been persisted for the id.
	GetBlocks(ctx context.Context, id string) ([]core.Block, error)

	// SetChunks stores the chunking output for a document, replacing any
	// previous chunks.
	SetChunks(ctx context.Context, id string, chunks []core.Chunk) error

	// GetChunks retrieves the stored chunks.
	// Returns ErrNotFound if chunking has not been persisted for the id.
	GetChunks(ctx context.Context, id string) ([]core.Chunk, error)

	// SetEmbeddings stores the embedding output for a document, replacing
	// any previous embeddings.
	SetEmbeddings(ctx context.Context, id string, embeddings []core.Embedding) error

	// GetEmbeddings retrieves the stored embeddings.
	// Returns ErrNotFound if embedding has not been persisted for the id.
	GetEmbeddings(ctx context.Context, id string) ([]core.Embedding, error)
}

// JobRepository provides operations for managing pipeline job records.
type JobRepository interface {
	Repository

	// AddJob stores a new job record.
	// Sets CreatedAt if not already set.
	AddJob(ctx context.Context, job *core.Job) error

	// UpdateJob replaces an existing job record.
	// Returns ErrNotFound if the job doesn't exist.
	UpdateJob(ctx context.Context, job *core.Job) error

	// GetJob retrieves a single job by id.
	// Returns ErrNotFound if the job doesn't exist.
	GetJob(ctx context.Context, id string) (*core.Job, error)

	// GetJobsByDocument retrieves all jobs recorded for a document,
	// newest first.
	GetJobsByDocument(ctx context.Context, documentID string) ([]*core.Job, error)
}
