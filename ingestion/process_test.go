package ingestion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/docpipe/chunker"
	"github.com/quillworks/docpipe/convert"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/embedding"
	"github.com/quillworks/docpipe/storage"
	"github.com/quillworks/docpipe/vector"
)

// recordingMonitor captures monitor callbacks for assertions.
type recordingMonitor struct {
	mu          sync.Mutex
	submitted   []string
	started     []string
	completed   []string
	chunkEvents int
	indexed     []string
	failedStage []string
	deleted     []string
}

var _ PipelineMonitor = (*recordingMonitor)(nil)

func (r *recordingMonitor) DocumentSubmitted(doc *core.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.submitted = append(r.submitted, doc.Id)
}

func (r *recordingMonitor) StageStarted(_, stage string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = append(r.started, stage)
}

func (r *recordingMonitor) StageCompleted(_, stage string, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, stage)
}

func (r *recordingMonitor) ChunksProduced(_ string, _ []core.Chunk) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chunkEvents++
}

func (r *recordingMonitor) DocumentIndexed(doc *core.Document) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.indexed = append(r.indexed, doc.Id)
}

func (r *recordingMonitor) DocumentFailed(_ *core.Document, stage string, _ error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failedStage = append(r.failedStage, stage)
}

func (r *recordingMonitor) DocumentDeleted(documentID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deleted = append(r.deleted, documentID)
}

func TestPipeline_Process_EndToEnd(t *testing.T) {
	small, err := chunker.New(chunker.WithMaxChunkSize(20))
	require.NoError(t, err)

	tp := setupTestPipeline(t, WithChunker(small))
	ctx := context.Background()

	doc := addDocument(t, tp, "First paragraph.\n\nSecond paragraph.")
	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))

	stored, err := tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, stored.Status)
	assert.Empty(t, stored.Error)
	assert.Equal(t, 2, stored.ChunkCount)
	assert.Equal(t, "mock", stored.Provider)
	assert.Equal(t, "mock-embed", stored.Model)
	assert.False(t, stored.ConvertedAt.IsZero())
	assert.False(t, stored.IndexedAt.IsZero())

	// Every stage artifact is persisted.
	blocks, err := tp.docRepo.GetBlocks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, blocks, 2)

	chunks, err := tp.docRepo.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, core.ChunkID(doc.Id, 0), chunks[0].Id)
	assert.Equal(t, core.ChunkID(doc.Id, 1), chunks[1].Id)

	embeddings, err := tp.docRepo.GetEmbeddings(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, embeddings, 2)
	assert.Equal(t, "mock", embeddings[0].Provider)
	assert.Len(t, embeddings[0].Vector, tp.embedder.Dimensions())

	upserts, _ := tp.index.counts()
	assert.Equal(t, 1, upserts)
	assert.Equal(t, 2, tp.memory.Len())

	assert.Equal(t, 1, tp.converter.CallCount())
	assert.Equal(t, 1, tp.embedder.CallCount())

	jobs, err := tp.jobRepo.GetJobsByDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, core.JobCompleted, jobs[0].Status)
	assert.Equal(t, len(pipelineStages), jobs[0].Total)
	assert.Equal(t, jobs[0].Total, jobs[0].Progress)
	assert.False(t, jobs[0].StartedAt.IsZero())
	assert.False(t, jobs[0].CompletedAt.IsZero())
}

func TestPipeline_Process_NotFound(t *testing.T) {
	tp := setupTestPipeline(t)

	err := tp.pipeline.Process(context.Background(), "missing", false)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	var verr *core.ValidationError
	err = tp.pipeline.Process(context.Background(), "", false)
	assert.ErrorAs(t, err, &verr)
}

func TestPipeline_Process_AlreadyIndexedNoOp(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "hello world")
	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))

	tp.converter.Reset()
	tp.embedder.Reset()
	upsertsBefore, deletesBefore := tp.index.counts()
	jobsBefore, err := tp.jobRepo.GetJobsByDocument(ctx, doc.Id)
	require.NoError(t, err)

	// A second run without force touches no collaborator and records
	// no new job.
	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))

	assert.Zero(t, tp.converter.CallCount())
	assert.Zero(t, tp.embedder.CallCount())
	upserts, deletes := tp.index.counts()
	assert.Equal(t, upsertsBefore, upserts)
	assert.Equal(t, deletesBefore, deletes)

	jobsAfter, err := tp.jobRepo.GetJobsByDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Len(t, jobsAfter, len(jobsBefore))
}

func TestPipeline_Process_ForceReprocess(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "hello world")
	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))
	tp.embCache.Wait()

	tp.converter.Reset()
	tp.embedder.Reset()

	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, true))

	// Conversion reruns, but identical chunk text resolves from the
	// embedding cache without reaching the provider.
	assert.Equal(t, 1, tp.converter.CallCount())
	assert.Zero(t, tp.embedder.CallCount())

	upserts, _ := tp.index.counts()
	assert.Equal(t, 2, upserts)

	stored, err := tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, stored.Status)
}

func TestPipeline_Process_ResumesFromConverted(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "ignored")
	blocks := []core.Block{{Type: core.BlockTypeParagraph, Text: "persisted text", Page: 1}}
	require.NoError(t, tp.docRepo.SetBlocks(ctx, doc.Id, blocks))
	_, err := tp.docRepo.UpdateStatus(ctx, doc.Id, core.StatusConverted, "")
	require.NoError(t, err)

	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))

	// Conversion already ran in a previous attempt; the persisted blocks
	// are reused untouched.
	assert.Zero(t, tp.converter.CallCount())

	chunks, err := tp.docRepo.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "persisted text", chunks[0].Text)

	stored, err := tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, stored.Status)
}

func TestPipeline_Process_ResumesFromEmbedding(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "ignored")
	blocks := []core.Block{{Type: core.BlockTypeParagraph, Text: "persisted text", Page: 1}}
	require.NoError(t, tp.docRepo.SetBlocks(ctx, doc.Id, blocks))

	splitter, err := chunker.New()
	require.NoError(t, err)
	chunks := splitter.Split(doc.Id, blocks)
	require.NoError(t, tp.docRepo.SetChunks(ctx, doc.Id, chunks))
	_, err = tp.docRepo.UpdateStatus(ctx, doc.Id, core.StatusEmbedding, "")
	require.NoError(t, err)

	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))

	// Neither conversion nor chunking rerun; embedding and indexing do.
	assert.Zero(t, tp.converter.CallCount())
	assert.Equal(t, 1, tp.embedder.CallCount())

	upserts, _ := tp.index.counts()
	assert.Equal(t, 1, upserts)

	stored, err := tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, stored.Status)
	assert.Equal(t, len(chunks), stored.ChunkCount)
}

func TestPipeline_Process_ConversionFailure(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "hello")
	tp.converter.ConvertFunc = func(ctx context.Context, content []byte, filename, mediaType string) ([]core.Block, error) {
		return nil, convert.NewError(errors.New("service unreachable"))
	}

	err := tp.pipeline.Process(ctx, doc.Id, false)
	require.Error(t, err)

	stored, getErr := tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.StatusFailed, stored.Status)
	assert.True(t, strings.HasPrefix(stored.Error, "convert: conversion:"), "got %q", stored.Error)
	assert.Contains(t, stored.Error, "service unreachable")

	// Nothing past the failed stage is persisted or indexed.
	_, chunksErr := tp.docRepo.GetChunks(ctx, doc.Id)
	assert.ErrorIs(t, chunksErr, storage.ErrNotFound)
	assert.Zero(t, tp.embedder.CallCount())
	upserts, _ := tp.index.counts()
	assert.Zero(t, upserts)

	jobs, jobsErr := tp.jobRepo.GetJobsByDocument(ctx, doc.Id)
	require.NoError(t, jobsErr)
	require.Len(t, jobs, 1)
	assert.Equal(t, core.JobFailed, jobs[0].Status)
	assert.Equal(t, stored.Error, jobs[0].Error)
}

func TestPipeline_Process_EmbeddingFailureThenRetry(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "hello world")
	tp.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, fmt.Errorf("mock: %w: quota exhausted", embedding.ErrRateLimited)
	}

	err := tp.pipeline.Process(ctx, doc.Id, false)
	require.ErrorIs(t, err, embedding.ErrRateLimited)

	stored, getErr := tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.StatusFailed, stored.Status)
	assert.True(t, strings.HasPrefix(stored.Error, "embed: rate_limited:"), "got %q", stored.Error)

	// Artifacts from completed stages survive the failure.
	_, blocksErr := tp.docRepo.GetBlocks(ctx, doc.Id)
	assert.NoError(t, blocksErr)
	chunks, chunksErr := tp.docRepo.GetChunks(ctx, doc.Id)
	require.NoError(t, chunksErr)
	require.NotEmpty(t, chunks)

	// Retry restarts from conversion and succeeds once the provider
	// recovers. Nothing was cached from the failed attempt.
	tp.embedder.EmbedTextsFunc = nil
	tp.converter.Reset()
	tp.embedder.Reset()

	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))
	assert.Equal(t, 1, tp.converter.CallCount())
	assert.Equal(t, 1, tp.embedder.CallCount())

	stored, getErr = tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.StatusIndexed, stored.Status)
	assert.Empty(t, stored.Error)

	jobs, jobsErr := tp.jobRepo.GetJobsByDocument(ctx, doc.Id)
	require.NoError(t, jobsErr)
	require.Len(t, jobs, 2)
	assert.Equal(t, core.JobCompleted, jobs[0].Status)
	assert.Equal(t, core.JobFailed, jobs[1].Status)
}

func TestPipeline_Process_IndexFailure(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "hello world")
	tp.index.setUpsertErr(fmt.Errorf("%w: bulk rejected", vector.ErrUnavailable))

	err := tp.pipeline.Process(ctx, doc.Id, false)
	require.ErrorIs(t, err, vector.ErrUnavailable)

	stored, getErr := tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.StatusFailed, stored.Status)
	assert.True(t, strings.HasPrefix(stored.Error, "index: unavailable:"), "got %q", stored.Error)

	// Embeddings persisted before the index rejected the upsert.
	embeddings, embErr := tp.docRepo.GetEmbeddings(ctx, doc.Id)
	require.NoError(t, embErr)
	assert.NotEmpty(t, embeddings)

	tp.index.setUpsertErr(nil)
	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))

	stored, getErr = tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.StatusIndexed, stored.Status)
}

func TestPipeline_Process_EmptyDocument(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "anything")
	tp.converter.ConvertFunc = func(ctx context.Context, content []byte, filename, mediaType string) ([]core.Block, error) {
		return []core.Block{}, nil
	}

	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))

	stored, err := tp.docRepo.GetDocument(ctx, doc.Id)
	require.NoError(t, err)
	assert.Equal(t, core.StatusIndexed, stored.Status)
	assert.Zero(t, stored.ChunkCount)
	assert.Empty(t, stored.Provider)
	assert.False(t, stored.IndexedAt.IsZero())

	// The embedder and the index are never touched.
	assert.Zero(t, tp.embedder.CallCount())
	upserts, deletes := tp.index.counts()
	assert.Zero(t, upserts)
	assert.Zero(t, deletes)

	chunks, err := tp.docRepo.GetChunks(ctx, doc.Id)
	require.NoError(t, err)
	assert.Empty(t, chunks)

	jobs, err := tp.jobRepo.GetJobsByDocument(ctx, doc.Id)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, core.JobCompleted, jobs[0].Status)
}

func TestPipeline_Process_SerializesPerDocument(t *testing.T) {
	tp := setupTestPipeline(t)
	ctx := context.Background()

	doc := addDocument(t, tp, "hello world")

	var active, maxActive int32
	tp.converter.ConvertFunc = func(ctx context.Context, content []byte, filename, mediaType string) ([]core.Block, error) {
		cur := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			old := atomic.LoadInt32(&maxActive)
			if cur <= old || atomic.CompareAndSwapInt32(&maxActive, old, cur) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		return []core.Block{{Type: core.BlockTypeParagraph, Text: "hello", Page: 1}}, nil
	}

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(slot int) {
			defer wg.Done()
			errs[slot] = tp.pipeline.Process(ctx, doc.Id, true)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&maxActive), "conversions for one document must not overlap")
}

func TestPipeline_Process_CanceledCallerStillRecordsFailure(t *testing.T) {
	tp := setupTestPipeline(t, WithStageTimeout(0))

	doc := addDocument(t, tp, "hello")
	tp.converter.ConvertFunc = func(ctx context.Context, content []byte, filename, mediaType string) ([]core.Block, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := tp.pipeline.Process(ctx, doc.Id, false)
	require.ErrorIs(t, err, context.Canceled)

	// The failure is persisted even though the caller's context is gone.
	stored, getErr := tp.docRepo.GetDocument(context.Background(), doc.Id)
	require.NoError(t, getErr)
	assert.Equal(t, core.StatusFailed, stored.Status)
	assert.True(t, strings.HasPrefix(stored.Error, "convert: canceled:"), "got %q", stored.Error)
}

func TestPipeline_Process_MonitorCallbacks(t *testing.T) {
	first := &recordingMonitor{}
	second := &recordingMonitor{}
	tp := setupTestPipeline(t, WithMonitor(MultiMonitor(first, second)))
	ctx := context.Background()

	doc := addDocument(t, tp, "hello world")
	require.NoError(t, tp.pipeline.Process(ctx, doc.Id, false))

	for _, rec := range []*recordingMonitor{first, second} {
		assert.Equal(t, []string{StageConvert, StageChunk, StageEmbed, StageIndex}, rec.started)
		assert.Equal(t, []string{StageConvert, StageChunk, StageEmbed, StageIndex}, rec.completed)
		assert.Equal(t, 1, rec.chunkEvents)
		assert.Equal(t, []string{doc.Id}, rec.indexed)
		assert.Empty(t, rec.failedStage)
	}

	require.NoError(t, tp.pipeline.Delete(ctx, doc.Id))
	assert.Equal(t, []string{doc.Id}, first.deleted)
}

func TestPipeline_Process_MonitorSeesFailure(t *testing.T) {
	rec := &recordingMonitor{}
	tp := setupTestPipeline(t, WithMonitor(rec))
	ctx := context.Background()

	doc := addDocument(t, tp, "hello")
	tp.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, fmt.Errorf("mock: %w: down", embedding.ErrUnavailable)
	}

	require.Error(t, tp.pipeline.Process(ctx, doc.Id, false))

	assert.Equal(t, []string{StageEmbed}, rec.failedStage)
	assert.Empty(t, rec.indexed)
	// Stages before the failure completed normally.
	assert.Equal(t, []string{StageConvert, StageChunk}, rec.completed)
}

func TestStagesFrom(t *testing.T) {
	all := []string{StageConvert, StageChunk, StageEmbed, StageIndex}

	tests := []struct {
		status core.ProcessingStatus
		force  bool
		want   []string
	}{
		{core.StatusReceived, false, all},
		{core.StatusConverting, false, all},
		{core.StatusFailed, false, all},
		{core.StatusConverted, false, all[1:]},
		{core.StatusChunking, false, all[1:]},
		{core.StatusEmbedding, false, all[2:]},
		{core.StatusIndexed, true, all},
		{core.StatusEmbedding, true, all},
	}

	for _, tt := range tests {
		got := stagesFrom(tt.status, tt.force)
		assert.Equal(t, tt.want, got, "status %s force %v", tt.status, tt.force)
	}
}

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"rate limited", fmt.Errorf("p: %w: x", embedding.ErrRateLimited), "rate_limited"},
		{"invalid input", embedding.ErrInvalidInput, "invalid_input"},
		{"embedder unavailable", fmt.Errorf("p: %w: down", embedding.ErrUnavailable), "unavailable"},
		{"index unavailable", vector.ErrUnavailable, "unavailable"},
		{"unsupported media type", fmt.Errorf("%w: application/zip", core.ErrUnsupportedMediaType), "unsupported_media_type"},
		{"timeout", context.DeadlineExceeded, "timeout"},
		{"canceled", context.Canceled, "canceled"},
		{"conversion", convert.NewError(errors.New("bad input")), "conversion"},
		{"anything else", errors.New("surprise"), "internal"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errorKind(tt.err))
		})
	}
}
