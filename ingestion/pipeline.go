package ingestion

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/quillworks/docpipe/cache"
	"github.com/quillworks/docpipe/chunker"
	"github.com/quillworks/docpipe/convert"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/embedding"
	"github.com/quillworks/docpipe/storage"
	"github.com/quillworks/docpipe/vector"
)

const (
	// DefaultStageTimeout bounds each processing stage.
	DefaultStageTimeout = 2 * time.Minute

	// DefaultMaxContentSize caps uploads at 50 MiB.
	DefaultMaxContentSize = 50 << 20
)

// Upload is a raw document submission.
type Upload struct {
	Filename string
	Content  []byte
	Metadata map[string]string
}

// Pipeline orchestrates document processing from upload to searchable
// vectors. It manages conversion, chunking, embedding, and index updates,
// serializing work per document while distinct documents proceed in
// parallel on a worker pool.
type Pipeline struct {
	documentRepository storage.DocumentRepository
	jobRepository      storage.JobRepository
	converter          convert.Converter
	embedders          *embedding.Registry
	embeddingCache     *cache.EmbeddingCache
	vectorIndex        vector.Index
	splitter           *chunker.Chunker
	pool               *ants.Pool
	locks              *documentLocks
	monitor            PipelineMonitor
	logger             *slog.Logger

	maxContentSize int64
	allowedTypes   map[string]struct{}
	stageTimeout   time.Duration
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithPoolSize sets the worker pool size for concurrent processing.
// Default is runtime.NumCPU() / 2, with a minimum of 1.
func WithPoolSize(size int) Option {
	return func(p *Pipeline) error {
		if size < 1 {
			size = 1
		}

		// Release old pool
		if p.pool != nil {
			p.pool.Release()
		}

		pool, err := ants.NewPool(size)
		if err != nil {
			return err
		}

		p.pool = pool
		return nil
	}
}

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) error {
		if logger == nil {
			logger = slog.Default()
		}
		p.logger = logger
		return nil
	}
}

// WithChunker sets the chunker used to split converted text.
// Default uses chunker.DefaultMaxChunkSize.
func WithChunker(c *chunker.Chunker) Option {
	return func(p *Pipeline) error {
		if c == nil {
			return fmt.Errorf("chunker cannot be nil")
		}
		p.splitter = c
		return nil
	}
}

// WithStageTimeout bounds each processing stage. Zero disables the bound.
func WithStageTimeout(d time.Duration) Option {
	return func(p *Pipeline) error {
		if d < 0 {
			return fmt.Errorf("stage timeout cannot be negative, got %s", d)
		}
		p.stageTimeout = d
		return nil
	}
}

// WithMaxContentSize caps the accepted upload size in bytes.
func WithMaxContentSize(n int64) Option {
	return func(p *Pipeline) error {
		if n <= 0 {
			return fmt.Errorf("max content size must be positive, got %d", n)
		}
		p.maxContentSize = n
		return nil
	}
}

// WithAllowedMediaTypes restricts the media types accepted at submit.
// Default is convert.DefaultAllowedTypes().
func WithAllowedMediaTypes(types []string) Option {
	return func(p *Pipeline) error {
		if len(types) == 0 {
			return fmt.Errorf("at least one media type required")
		}
		allowed := make(map[string]struct{}, len(types))
		for _, t := range types {
			allowed[t] = struct{}{}
		}
		p.allowedTypes = allowed
		return nil
	}
}

// WithMonitor sets the processing monitor. Use MultiMonitor to attach
// more than one.
func WithMonitor(m PipelineMonitor) Option {
	return func(p *Pipeline) error {
		if m == nil {
			m = &noopMonitor{}
		}
		p.monitor = m
		return nil
	}
}

// NewPipeline creates a new document processing pipeline.
func NewPipeline(
	documentRepository storage.DocumentRepository,
	jobRepository storage.JobRepository,
	converter convert.Converter,
	embedders *embedding.Registry,
	embeddingCache *cache.EmbeddingCache,
	vectorIndex vector.Index,
	opts ...Option,
) (*Pipeline, error) {
	if documentRepository == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if jobRepository == nil {
		return nil, ErrJobRepositoryRequired
	}
	if converter == nil {
		return nil, ErrConverterRequired
	}
	if embedders == nil {
		return nil, ErrEmbedderRegistryRequired
	}
	if embeddingCache == nil {
		return nil, ErrEmbeddingCacheRequired
	}
	if vectorIndex == nil {
		return nil, ErrVectorIndexRequired
	}

	// Default pool size
	poolSize := runtime.NumCPU() / 2
	if poolSize < 1 {
		poolSize = 1
	}

	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, err
	}

	splitter, err := chunker.New()
	if err != nil {
		pool.Release()
		return nil, err
	}

	allowed := make(map[string]struct{})
	for _, t := range convert.DefaultAllowedTypes() {
		allowed[t] = struct{}{}
	}

	// Create pipeline with defaults
	p := &Pipeline{
		documentRepository: documentRepository,
		jobRepository:      jobRepository,
		converter:          converter,
		embedders:          embedders,
		embeddingCache:     embeddingCache,
		vectorIndex:        vectorIndex,
		splitter:           splitter,
		pool:               pool,
		locks:              newDocumentLocks(),
		monitor:            &noopMonitor{},
		logger:             slog.Default(),
		maxContentSize:     DefaultMaxContentSize,
		allowedTypes:       allowed,
		stageTimeout:       DefaultStageTimeout,
	}

	// Apply options (may override defaults)
	for _, opt := range opts {
		if optErr := opt(p); optErr != nil {
			p.Release()
			return nil, optErr
		}
	}

	p.logger = p.logger.With("component", "pipeline")

	return p, nil
}

// Submit validates and stores an upload, records a processing job, and
// schedules processing asynchronously. Validation failures are returned
// as *core.ValidationError without writing anything; they never produce
// a failed document.
func (p *Pipeline) Submit(ctx context.Context, upload Upload) (*core.Document, error) {
	if strings.TrimSpace(upload.Filename) == "" {
		return nil, core.NewValidationError("filename", core.ErrEmptyFilename)
	}
	if len(upload.Content) == 0 {
		return nil, core.NewValidationError("content", core.ErrEmptyContent)
	}
	if int64(len(upload.Content)) > p.maxContentSize {
		return nil, core.NewValidationError("content",
			fmt.Errorf("%w: %d bytes over the %d byte limit", core.ErrContentTooLarge, len(upload.Content), p.maxContentSize))
	}

	mediaType := convert.DetectMediaType(upload.Filename, upload.Content)
	if _, ok := p.allowedTypes[mediaType]; !ok {
		return nil, core.NewValidationError("media_type",
			fmt.Errorf("%w: %s", core.ErrUnsupportedMediaType, mediaType))
	}

	now := time.Now().UTC()
	doc := &core.Document{
		Id:          uuid.NewString(),
		Filename:    upload.Filename,
		MediaType:   mediaType,
		ContentSize: int64(len(upload.Content)),
		Status:      core.StatusReceived,
		Metadata:    upload.Metadata,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := p.documentRepository.AddDocument(ctx, doc); err != nil {
		return nil, err
	}
	if err := p.documentRepository.SetContent(ctx, doc.Id, upload.Content); err != nil {
		return nil, err
	}

	job := &core.Job{
		Id:         uuid.NewString(),
		DocumentId: doc.Id,
		Type:       core.JobTypeDocumentProcessing,
		Status:     core.JobPending,
		Total:      len(pipelineStages),
		CreatedAt:  now,
	}
	if err := p.jobRepository.AddJob(ctx, job); err != nil {
		return nil, err
	}

	p.monitor.DocumentSubmitted(doc)
	p.logger.Info("document submitted",
		"document", doc.Id, "filename", doc.Filename, "media_type", mediaType, "bytes", doc.ContentSize)

	// Processing outlives the submit request, so it gets its own context.
	if err := p.pool.Submit(func() {
		if err := p.Process(context.Background(), doc.Id, false); err != nil {
			p.logger.Error("async processing failed", "document", doc.Id, "err", err)
		}
	}); err != nil {
		p.logger.Error("scheduling processing failed", "document", doc.Id, "err", err)
	}

	return doc, nil
}

// Status returns a document's current status and failure detail.
func (p *Pipeline) Status(ctx context.Context, documentID string) (core.ProcessingStatus, string, error) {
	doc, err := p.documentRepository.GetDocument(ctx, documentID)
	if err != nil {
		return "", "", err
	}
	return doc.Status, doc.Error, nil
}

// Delete removes a document, its stored artifacts, and its vectors.
// Returns ErrDocumentBusy while the document is being processed.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	release, ok := p.locks.tryAcquire(documentID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrDocumentBusy, documentID)
	}
	defer release()

	// Vectors go first so a failed delete never leaves hits pointing at
	// a missing document.
	if err := p.vectorIndex.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := p.documentRepository.DeleteDocument(ctx, documentID); err != nil {
		return err
	}

	p.monitor.DocumentDeleted(documentID)
	p.logger.Info("document deleted", "document", documentID)
	return nil
}

// Release releases resources including the worker pool.
// The pipeline should not be used after calling Release.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}
