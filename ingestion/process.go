package ingestion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/quillworks/docpipe/cache"
	"github.com/quillworks/docpipe/convert"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/embedding"
	"github.com/quillworks/docpipe/vector"
)

// Stage names, in happy-path order. They appear in monitor callbacks and
// in the "<stage>: <kind>: <cause>" failure detail on failed documents.
const (
	StageConvert = "convert"
	StageChunk   = "chunk"
	StageEmbed   = "embed"
	StageIndex   = "index"
)

var pipelineStages = []string{StageConvert, StageChunk, StageEmbed, StageIndex}

// Process runs the remaining stages for a document, resuming from the
// last persisted status. It is idempotent and re-entrant: an indexed
// document is a no-op unless force is set, and concurrent calls for the
// same id serialize on a per-document lock. Each status transition is
// persisted before the next stage starts, so an interrupted run picks
// up where it stopped.
//
// Any stage error marks the document failed with the stage, the error
// kind, and the cause, fails the job, and is returned to the caller.
func (p *Pipeline) Process(ctx context.Context, documentID string, force bool) error {
	if documentID == "" {
		return core.NewValidationError("document_id", core.ErrEmptyDocumentID)
	}

	release, err := p.locks.acquire(ctx, documentID)
	if err != nil {
		return err
	}
	defer release()

	doc, err := p.documentRepository.GetDocument(ctx, documentID)
	if err != nil {
		return err
	}

	if doc.Status == core.StatusIndexed && !force {
		p.logger.Debug("document already indexed, nothing to do", "document", doc.Id)
		return nil
	}

	remaining := stagesFrom(doc.Status, force)
	completed := len(pipelineStages) - len(remaining)

	job, err := p.claimJob(ctx, doc.Id, completed)
	if err != nil {
		return err
	}

	p.logger.Info("processing document",
		"document", doc.Id, "status", doc.Status, "stages", len(remaining), "force", force)

	for _, stage := range remaining {
		if err := p.runStage(ctx, stage, doc); err != nil {
			p.fail(doc, job, stage, err)
			return err
		}

		job.Progress++
		if err := p.jobRepository.UpdateJob(context.Background(), job); err != nil {
			p.logger.Warn("updating job progress failed", "job", job.Id, "err", err)
		}

		// An empty document is finished early with zero vectors.
		if doc.Status == core.StatusIndexed {
			break
		}
	}

	job.Complete(time.Now().UTC())
	if err := p.jobRepository.UpdateJob(context.Background(), job); err != nil {
		p.logger.Warn("completing job failed", "job", job.Id, "err", err)
	}

	return nil
}

// stagesFrom maps a persisted status to the stages still to run. An
// in-progress status repeats its own stage: its artifacts were not
// fully persisted when the previous run stopped.
func stagesFrom(status core.ProcessingStatus, force bool) []string {
	if force {
		return pipelineStages
	}
	switch status {
	case core.StatusConverted, core.StatusChunking:
		return pipelineStages[1:]
	case core.StatusEmbedding:
		return pipelineStages[2:]
	default:
		// received, converting, failed
		return pipelineStages
	}
}

// claimJob finds the pending processing job recorded at submit, or
// creates one for a re-triggered run, and marks it running.
func (p *Pipeline) claimJob(ctx context.Context, documentID string, completed int) (*core.Job, error) {
	jobs, err := p.jobRepository.GetJobsByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	var job *core.Job
	for _, j := range jobs {
		if j.Type == core.JobTypeDocumentProcessing && j.Status == core.JobPending {
			job = j
			break
		}
	}

	now := time.Now().UTC()
	if job == nil {
		job = &core.Job{
			Id:         uuid.NewString(),
			DocumentId: documentID,
			Type:       core.JobTypeDocumentProcessing,
			Status:     core.JobPending,
			Total:      len(pipelineStages),
			CreatedAt:  now,
		}
		if err := p.jobRepository.AddJob(ctx, job); err != nil {
			return nil, err
		}
	}

	job.Start(now)
	job.Progress = completed
	if err := p.jobRepository.UpdateJob(ctx, job); err != nil {
		return nil, err
	}
	return job, nil
}

// runStage executes one stage under the configured stage timeout.
func (p *Pipeline) runStage(ctx context.Context, stage string, doc *core.Document) error {
	if p.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.stageTimeout)
		defer cancel()
	}

	p.monitor.StageStarted(doc.Id, stage)
	started := time.Now()

	var err error
	switch stage {
	case StageConvert:
		err = p.convertStage(ctx, doc)
	case StageChunk:
		err = p.chunkStage(ctx, doc)
	case StageEmbed:
		err = p.embedStage(ctx, doc)
	case StageIndex:
		err = p.indexStage(ctx, doc)
	}
	if err != nil {
		return err
	}

	took := time.Since(started)
	p.monitor.StageCompleted(doc.Id, stage, took)
	p.logger.Debug("stage completed", "document", doc.Id, "stage", stage, "took", took)
	return nil
}

// convertStage turns raw content into text blocks and persists them.
func (p *Pipeline) convertStage(ctx context.Context, doc *core.Document) error {
	updated, err := p.documentRepository.UpdateStatus(ctx, doc.Id, core.StatusConverting, "")
	if err != nil {
		return err
	}
	*doc = *updated

	content, err := p.documentRepository.GetContent(ctx, doc.Id)
	if err != nil {
		return err
	}

	blocks, err := p.converter.Convert(ctx, content, doc.Filename, doc.MediaType)
	if err != nil {
		return err
	}

	if err := p.documentRepository.SetBlocks(ctx, doc.Id, blocks); err != nil {
		return err
	}

	doc.Status = core.StatusConverted
	doc.ConvertedAt = time.Now().UTC()
	if err := p.documentRepository.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	p.logger.Debug("conversion persisted", "document", doc.Id, "blocks", len(blocks))
	return nil
}

// chunkStage splits persisted blocks into chunks. A document with no
// chunkable text finishes here with zero vectors.
func (p *Pipeline) chunkStage(ctx context.Context, doc *core.Document) error {
	updated, err := p.documentRepository.UpdateStatus(ctx, doc.Id, core.StatusChunking, "")
	if err != nil {
		return err
	}
	*doc = *updated

	blocks, err := p.documentRepository.GetBlocks(ctx, doc.Id)
	if err != nil {
		return err
	}

	chunks := p.splitter.Split(doc.Id, blocks)
	if err := p.documentRepository.SetChunks(ctx, doc.Id, chunks); err != nil {
		return err
	}
	p.monitor.ChunksProduced(doc.Id, chunks)

	if len(chunks) == 0 {
		return p.finishEmpty(ctx, doc)
	}

	updated, err = p.documentRepository.UpdateStatus(ctx, doc.Id, core.StatusEmbedding, "")
	if err != nil {
		return err
	}
	*doc = *updated

	p.logger.Debug("chunking persisted", "document", doc.Id, "chunks", len(chunks))
	return nil
}

// embedStage resolves a vector for every chunk through the cache and
// persists the result. Misses reach the default provider in batches.
func (p *Pipeline) embedStage(ctx context.Context, doc *core.Document) error {
	chunks, err := p.documentRepository.GetChunks(ctx, doc.Id)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		// Resumed run on a document that chunked to nothing.
		return p.finishEmpty(ctx, doc)
	}

	embedder, err := p.embedders.Default()
	if err != nil {
		return err
	}

	keys := make([]cache.Key, len(chunks))
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		keys[i] = cache.NewKey(embedder.Provider(), embedder.Model(), chunk.Text)
		texts[i] = chunk.Text
	}

	vectors, err := p.embeddingCache.GetOrComputeBatch(ctx, keys, texts, embedder.EmbedTexts)
	if err != nil {
		return err
	}

	embeddings := make([]core.Embedding, len(chunks))
	for i, chunk := range chunks {
		embeddings[i] = core.Embedding{
			ChunkId:  chunk.Id,
			Provider: embedder.Provider(),
			Model:    embedder.Model(),
			Vector:   vectors[i],
		}
	}
	if err := p.documentRepository.SetEmbeddings(ctx, doc.Id, embeddings); err != nil {
		return err
	}

	p.logger.Debug("embeddings persisted", "document", doc.Id, "vectors", len(embeddings))
	return nil
}

// indexStage atomically replaces the document's vectors in the index
// and marks the document indexed.
func (p *Pipeline) indexStage(ctx context.Context, doc *core.Document) error {
	chunks, err := p.documentRepository.GetChunks(ctx, doc.Id)
	if err != nil {
		return err
	}
	embeddings, err := p.documentRepository.GetEmbeddings(ctx, doc.Id)
	if err != nil {
		return err
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("embedding count mismatch: %d vectors for %d chunks", len(embeddings), len(chunks))
	}

	sequences := make(map[string]int, len(chunks))
	for _, chunk := range chunks {
		sequences[chunk.Id] = chunk.Sequence
	}

	entries := make([]vector.Entry, len(embeddings))
	var provider, model string
	for i, emb := range embeddings {
		seq, ok := sequences[emb.ChunkId]
		if !ok {
			return fmt.Errorf("embedding for unknown chunk %s", emb.ChunkId)
		}
		entries[i] = vector.Entry{
			ChunkID:  emb.ChunkId,
			Sequence: seq,
			Provider: emb.Provider,
			Vector:   emb.Vector,
			Metadata: doc.Metadata,
		}
		provider, model = emb.Provider, emb.Model
	}

	if err := p.vectorIndex.Upsert(ctx, doc.Id, entries); err != nil {
		return err
	}

	doc.Status = core.StatusIndexed
	doc.Provider = provider
	doc.Model = model
	doc.ChunkCount = len(chunks)
	doc.IndexedAt = time.Now().UTC()
	if err := p.documentRepository.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	p.monitor.DocumentIndexed(doc)
	p.logger.Info("document indexed",
		"document", doc.Id, "chunks", doc.ChunkCount, "provider", provider)
	return nil
}

// finishEmpty completes a document whose conversion produced no text.
// It becomes indexed with zero vectors; the embedder and index are only
// touched if a previous run left vectors behind.
func (p *Pipeline) finishEmpty(ctx context.Context, doc *core.Document) error {
	if err := p.documentRepository.SetEmbeddings(ctx, doc.Id, nil); err != nil {
		return err
	}
	if doc.ChunkCount > 0 {
		if err := p.vectorIndex.DeleteDocument(ctx, doc.Id); err != nil {
			return err
		}
	}

	doc.Status = core.StatusIndexed
	doc.Provider = ""
	doc.Model = ""
	doc.ChunkCount = 0
	doc.IndexedAt = time.Now().UTC()
	if err := p.documentRepository.UpdateDocument(ctx, doc); err != nil {
		return err
	}

	p.monitor.DocumentIndexed(doc)
	p.logger.Info("document indexed with no content", "document", doc.Id)
	return nil
}

// fail records a stage failure on the document and its job. The writes
// use a fresh context so a canceled caller cannot leave the document
// stuck in an in-progress status.
func (p *Pipeline) fail(doc *core.Document, job *core.Job, stage string, cause error) {
	detail := failureDetail(stage, cause)
	ctx := context.Background()

	if _, err := p.documentRepository.UpdateStatus(ctx, doc.Id, core.StatusFailed, detail); err != nil {
		p.logger.Error("recording document failure failed", "document", doc.Id, "err", err)
	}
	doc.Status = core.StatusFailed
	doc.Error = detail

	if job != nil {
		job.Fail(time.Now().UTC(), detail)
		if err := p.jobRepository.UpdateJob(ctx, job); err != nil {
			p.logger.Error("recording job failure failed", "job", job.Id, "err", err)
		}
	}

	p.monitor.DocumentFailed(doc, stage, cause)
	p.logger.Error("document processing failed",
		"document", doc.Id, "stage", stage, "err", cause)
}

// failureDetail formats the Document.Error value: "<stage>: <kind>: <cause>".
func failureDetail(stage string, err error) string {
	return fmt.Sprintf("%s: %s: %v", stage, errorKind(err), err)
}

// errorKind classifies a stage error for the failure detail.
func errorKind(err error) string {
	var convErr *convert.Error
	switch {
	case errors.Is(err, embedding.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, embedding.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, embedding.ErrUnavailable), errors.Is(err, vector.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, core.ErrUnsupportedMediaType):
		return "unsupported_media_type"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &convErr):
		return "conversion"
	default:
		return "internal"
	}
}
