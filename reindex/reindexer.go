// Copyright 2025 Quillworks Labs
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package reindex

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/docpipe/cache"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/embedding"
	"github.com/quillworks/docpipe/storage"
	"github.com/quillworks/docpipe/vector"
)

// Config holds configuration for a reindex run.
type Config struct {
	// BatchSize is the number of documents fetched per page
	BatchSize int

	// ReportInterval is how often to report progress (number of documents)
	ReportInterval int

	// MaxRetries is the maximum number of retry attempts for failed operations
	MaxRetries int

	// RetryDelay is the base delay for exponential backoff
	RetryDelay time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		BatchSize:      100,
		ReportInterval: 100,
		MaxRetries:     3,
		RetryDelay:     1 * time.Second,
	}
}

// Reindexer re-embeds every indexed document with the configured
// embedder and replaces its vectors in the index. Documents keep
// serving their old vectors until their replacement upsert lands, so
// search stays available throughout a run.
type Reindexer struct {
	documents storage.DocumentRepository
	jobs      storage.JobRepository
	embedder  embedding.Embedder
	cache     *cache.EmbeddingCache
	index     vector.Index
	config    *Config
	progress  io.Writer
	iterator  *DocumentIterator
}

// NewReindexer creates a new reindexer.
// progress: where to write progress output (typically os.Stderr)
func NewReindexer(documents storage.DocumentRepository, jobs storage.JobRepository, embedder embedding.Embedder, embeddingCache *cache.EmbeddingCache, index vector.Index, config *Config, progress io.Writer) *Reindexer {
	if config == nil {
		config = DefaultConfig()
	}
	if progress == nil {
		progress = io.Discard
	}

	return &Reindexer{
		documents: documents,
		jobs:      jobs,
		embedder:  embedder,
		cache:     embeddingCache,
		index:     index,
		config:    config,
		progress:  progress,
		iterator:  NewDocumentIterator(documents, config.BatchSize),
	}
}

// Run executes the reindex operation.
// All indexed documents are re-embedded with the configured embedder and
// their vectors replaced in the index. Progress is reported to the
// configured writer, and the run is recorded as an embedding generation
// job so it shows up in job history.
func (r *Reindexer) Run(ctx context.Context) error {
	total, err := r.documents.CountDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to count documents: %w", err)
	}

	if total == 0 {
		fmt.Fprintf(r.progress, "No documents found (0 documents)\n")
		return nil
	}

	fmt.Fprintf(r.progress, "Starting reindex of %d documents with provider %s (batch size: %d)\n",
		total, r.embedder.Provider(), r.config.BatchSize)

	now := time.Now().UTC()
	job := &core.Job{
		Id:        uuid.NewString(),
		Type:      core.JobTypeEmbeddingGeneration,
		Status:    core.JobPending,
		Total:     total,
		CreatedAt: now,
	}
	if err := r.jobs.AddJob(ctx, job); err != nil {
		return fmt.Errorf("failed to record reindex job: %w", err)
	}
	job.Start(now)
	if err := r.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to start reindex job: %w", err)
	}

	tracker := NewProgressTracker(r.progress, total, r.config.ReportInterval)
	tracker.Start()

	processed := 0
	reindexed := 0

	err = r.iterator.ForEach(ctx, func(docs []*core.Document) error {
		for _, doc := range docs {
			// Only documents whose vectors are live need re-embedding.
			// Failed and in-flight documents are the pipeline's business,
			// and empty documents have nothing in the index.
			if doc.Status == core.StatusIndexed && doc.ChunkCount > 0 {
				if err := r.reindexDocument(ctx, doc); err != nil {
					return fmt.Errorf("document %s: %w", doc.Id, err)
				}
				reindexed++
			}
			processed++
		}

		tracker.Update(processed)

		job.Progress = processed
		if err := r.jobs.UpdateJob(ctx, job); err != nil {
			return fmt.Errorf("failed to update job progress: %w", err)
		}

		return nil
	})

	if err != nil {
		// Record the failure even when ctx is the reason we stopped.
		job.Fail(time.Now().UTC(), err.Error())
		if updateErr := r.jobs.UpdateJob(context.Background(), job); updateErr != nil {
			fmt.Fprintf(r.progress, "failed to record job failure: %v\n", updateErr)
		}
		return err
	}

	job.Complete(time.Now().UTC())
	if err := r.jobs.UpdateJob(ctx, job); err != nil {
		return fmt.Errorf("failed to complete reindex job: %w", err)
	}

	tracker.Finish()

	elapsed := tracker.Elapsed()
	fmt.Fprintf(r.progress, "Reindex complete. Examined %d documents, re-embedded %d in %v (%.1f documents/sec)\n",
		total, reindexed, elapsed.Round(time.Second), float64(total)/elapsed.Seconds())

	return nil
}

// reindexDocument re-embeds one document's chunks and swaps its vectors.
func (r *Reindexer) reindexDocument(ctx context.Context, doc *core.Document) error {
	chunks, err := r.documents.GetChunks(ctx, doc.Id)
	if err != nil {
		return fmt.Errorf("failed to load chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil
	}

	provider := r.embedder.Provider()
	model := r.embedder.Model()

	keys := make([]cache.Key, len(chunks))
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		keys[i] = cache.NewKey(provider, model, chunk.Text)
		texts[i] = chunk.Text
	}

	var vectors [][]float32
	err = RetryWithBackoff(ctx, func() error {
		var embedErr error
		vectors, embedErr = r.cache.GetOrComputeBatch(ctx, keys, texts, r.embedder.EmbedTexts)
		return embedErr
	}, r.config.MaxRetries, r.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("failed to generate embeddings after %d attempts: %w", r.config.MaxRetries, err)
	}

	embeddings := make([]core.Embedding, len(chunks))
	entries := make([]vector.Entry, len(chunks))
	for i, chunk := range chunks {
		embeddings[i] = core.Embedding{
			ChunkId:  chunk.Id,
			Provider: provider,
			Model:    model,
			Vector:   vectors[i],
		}
		entries[i] = vector.Entry{
			ChunkID:  chunk.Id,
			Sequence: chunk.Sequence,
			Provider: provider,
			Vector:   vectors[i],
			Metadata: doc.Metadata,
		}
	}

	if err := r.documents.SetEmbeddings(ctx, doc.Id, embeddings); err != nil {
		return fmt.Errorf("failed to store embeddings: %w", err)
	}

	err = RetryWithBackoff(ctx, func() error {
		return r.index.Upsert(ctx, doc.Id, entries)
	}, r.config.MaxRetries, r.config.RetryDelay)
	if err != nil {
		return fmt.Errorf("failed to update index after %d attempts: %w", r.config.MaxRetries, err)
	}

	doc.Provider = provider
	doc.Model = model
	doc.IndexedAt = time.Now().UTC()
	if err := r.documents.UpdateDocument(ctx, doc); err != nil {
		return fmt.Errorf("failed to update document: %w", err)
	}

	return nil
}
