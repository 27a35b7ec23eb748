package search

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quillworks/docpipe/cache"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/embedding"
	embedmock "github.com/quillworks/docpipe/embedding/mock"
	"github.com/quillworks/docpipe/storage"
	"github.com/quillworks/docpipe/storage/badger"
	"github.com/quillworks/docpipe/vector"
	"github.com/quillworks/docpipe/vector/memory"
)

const testDims = 3

type testSearcher struct {
	searcher *Searcher
	docRepo  storage.DocumentRepository
	embedder *embedmock.MockEmbedder
	embCache *cache.EmbeddingCache
	results  *cache.SearchCache
	index    *memory.Index
}

func setupSearcher(t *testing.T, opts ...Option) *testSearcher {
	t.Helper()

	docRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	embedder := embedmock.NewMockEmbedder()
	embedder.Dims = testDims

	registry := embedding.NewRegistry()
	require.NoError(t, registry.Register(embedder))

	embCache, err := cache.NewEmbeddingCache(1000, time.Hour)
	require.NoError(t, err)
	results, err := cache.NewSearchCache(1000, time.Minute)
	require.NoError(t, err)
	t.Cleanup(func() {
		embCache.Close()
		results.Close()
	})

	index, err := memory.NewIndex(testDims)
	require.NoError(t, err)

	searcher, err := NewSearcher(docRepo, registry, embCache, results, index, opts...)
	require.NoError(t, err)

	return &testSearcher{
		searcher: searcher,
		docRepo:  docRepo,
		embedder: embedder,
		embCache: embCache,
		results:  results,
		index:    index,
	}
}

// queryReturns pins the vector the mock embedder produces for query text.
func (ts *testSearcher) queryReturns(vec []float32) {
	ts.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return [][]float32{vec}, nil
	}
}

// seedDocument stores an indexed document with one chunk and one vector
// per text, bypassing the pipeline.
func (ts *testSearcher) seedDocument(t *testing.T, filename string, metadata map[string]string, texts []string, vectors [][]float32) *core.Document {
	t.Helper()
	require.Equal(t, len(texts), len(vectors))
	ctx := context.Background()
	now := time.Now().UTC()

	doc := &core.Document{
		Id:         uuid.NewString(),
		Filename:   filename,
		MediaType:  "text/plain",
		Status:     core.StatusIndexed,
		Provider:   "mock",
		Model:      "mock-embed",
		ChunkCount: len(texts),
		Metadata:   metadata,
		CreatedAt:  now,
		UpdatedAt:  now,
		IndexedAt:  now,
	}
	require.NoError(t, ts.docRepo.AddDocument(ctx, doc))

	chunks := make([]core.Chunk, len(texts))
	entries := make([]vector.Entry, len(texts))
	for i, text := range texts {
		chunks[i] = core.Chunk{
			Id:         core.ChunkID(doc.Id, i),
			DocumentId: doc.Id,
			Sequence:   i,
			Text:       text,
		}
		entries[i] = vector.Entry{
			ChunkID:  chunks[i].Id,
			Sequence: i,
			Provider: "mock",
			Vector:   vectors[i],
			Metadata: metadata,
		}
	}
	require.NoError(t, ts.docRepo.SetChunks(ctx, doc.Id, chunks))
	require.NoError(t, ts.index.Upsert(ctx, doc.Id, entries))
	return doc
}

// recordingSearchMonitor counts monitor callbacks.
type recordingSearchMonitor struct {
	starts       int
	cacheHits    int
	embeds       int
	indexQueries int
	finishes     int
}

var _ SearchMonitor = (*recordingSearchMonitor)(nil)

func (m *recordingSearchMonitor) Start(_ string)           { m.starts++ }
func (m *recordingSearchMonitor) CacheHit(_ string, _ int) { m.cacheHits++ }
func (m *recordingSearchMonitor) QueryEmbedded(_, _ string, _ time.Duration) {
	m.embeds++
}
func (m *recordingSearchMonitor) AfterIndexQuery(_ []vector.Hit, _ time.Duration) {
	m.indexQueries++
}
func (m *recordingSearchMonitor) Finish(_ []core.SearchResult) { m.finishes++ }

func TestNewSearcher(t *testing.T) {
	docRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	registry := embedding.NewRegistry()
	require.NoError(t, registry.Register(embedmock.NewMockEmbedder()))

	embCache, err := cache.NewEmbeddingCache(100, time.Hour)
	require.NoError(t, err)
	defer embCache.Close()
	results, err := cache.NewSearchCache(100, time.Minute)
	require.NoError(t, err)
	defer results.Close()

	index, err := memory.NewIndex(8)
	require.NoError(t, err)

	t.Run("valid configuration", func(t *testing.T) {
		searcher, err := NewSearcher(docRepo, registry, embCache, results, index)
		require.NoError(t, err)
		require.NotNil(t, searcher)
		assert.Equal(t, DefaultK, searcher.defaultK)
		assert.Equal(t, DefaultMaxK, searcher.maxK)
	})

	t.Run("with k options", func(t *testing.T) {
		searcher, err := NewSearcher(docRepo, registry, embCache, results, index,
			WithDefaultK(5), WithMaxK(20))
		require.NoError(t, err)
		assert.Equal(t, 5, searcher.defaultK)
		assert.Equal(t, 20, searcher.maxK)
	})

	t.Run("rejects non-positive k options", func(t *testing.T) {
		_, err := NewSearcher(docRepo, registry, embCache, results, index, WithDefaultK(0))
		require.Error(t, err)
		_, err = NewSearcher(docRepo, registry, embCache, results, index, WithMaxK(-1))
		require.Error(t, err)
	})

	t.Run("with nil logger falls back to default", func(t *testing.T) {
		searcher, err := NewSearcher(docRepo, registry, embCache, results, index, WithLogger(nil))
		require.NoError(t, err)
		assert.NotNil(t, searcher)
	})

	t.Run("nil document repository", func(t *testing.T) {
		_, err := NewSearcher(nil, registry, embCache, results, index)
		assert.Equal(t, ErrDocumentRepositoryRequired, err)
	})

	t.Run("nil registry", func(t *testing.T) {
		_, err := NewSearcher(docRepo, nil, embCache, results, index)
		assert.Equal(t, ErrEmbedderRegistryRequired, err)
	})

	t.Run("nil embedding cache", func(t *testing.T) {
		_, err := NewSearcher(docRepo, registry, nil, results, index)
		assert.Equal(t, ErrEmbeddingCacheRequired, err)
	})

	t.Run("nil search cache", func(t *testing.T) {
		_, err := NewSearcher(docRepo, registry, embCache, nil, index)
		assert.Equal(t, ErrSearchCacheRequired, err)
	})

	t.Run("nil vector index", func(t *testing.T) {
		_, err := NewSearcher(docRepo, registry, embCache, results, nil)
		assert.Equal(t, ErrVectorIndexRequired, err)
	})
}

func TestSearcher_Search_Validation(t *testing.T) {
	ts := setupSearcher(t)
	ctx := context.Background()

	_, err := ts.searcher.Search(ctx, "   ", Options{})
	var verr *core.ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrEmptyQuery)

	_, err = ts.searcher.Search(ctx, "query", Options{K: -1})
	assert.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrNegativeK)

	_, err = ts.searcher.Search(ctx, "query", Options{Provider: "nope"})
	assert.ErrorIs(t, err, embedding.ErrUnknownProvider)
}

func TestSearcher_Search_EmptyIndex(t *testing.T) {
	ts := setupSearcher(t)
	ts.queryReturns([]float32{1, 0, 0})

	results, err := ts.searcher.Search(context.Background(), "anything", Options{})
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.NotNil(t, results)
}

func TestSearcher_Search_RanksAndJoins(t *testing.T) {
	ts := setupSearcher(t)
	ctx := context.Background()

	docA := ts.seedDocument(t, "alpha.txt", map[string]string{"team": "docs"},
		[]string{"close match text", "far text"},
		[][]float32{{1, 0, 0}, {0, 1, 0}})
	docB := ts.seedDocument(t, "beta.txt", map[string]string{"team": "infra"},
		[]string{"middle text"},
		[][]float32{{0.7, 0.7, 0}})

	ts.queryReturns([]float32{1, 0, 0})

	results, err := ts.searcher.Search(ctx, "close match", Options{})
	require.NoError(t, err)
	require.Len(t, results, 3)

	// Best hit carries the joined chunk and document fields.
	assert.Equal(t, docA.Id, results[0].DocumentId)
	assert.Equal(t, core.ChunkID(docA.Id, 0), results[0].ChunkId)
	assert.Equal(t, 0, results[0].Sequence)
	assert.Equal(t, "close match text", results[0].Text)
	assert.Equal(t, "alpha.txt", results[0].Filename)
	assert.Equal(t, "docs", results[0].Metadata["team"])
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-3)

	assert.Equal(t, docB.Id, results[1].DocumentId)
	assert.Equal(t, "middle text", results[1].Text)

	for i := 0; i < len(results)-1; i++ {
		assert.GreaterOrEqual(t, results[i].Score, results[i+1].Score)
	}
}

func TestSearcher_Search_ServesFromCache(t *testing.T) {
	mon := &recordingSearchMonitor{}
	ts := setupSearcher(t, WithMonitor(mon))
	ctx := context.Background()

	ts.seedDocument(t, "a.txt", nil, []string{"hello"}, [][]float32{{1, 0, 0}})
	ts.queryReturns([]float32{1, 0, 0})

	first, err := ts.searcher.Search(ctx, "hello", Options{})
	require.NoError(t, err)
	require.Len(t, first, 1)
	ts.results.Wait()

	second, err := ts.searcher.Search(ctx, "hello", Options{})
	require.NoError(t, err)
	assert.Equal(t, first, second)

	assert.Equal(t, 2, mon.starts)
	assert.Equal(t, 1, mon.indexQueries)
	assert.Equal(t, 1, mon.cacheHits)
	assert.Equal(t, 2, mon.finishes)
	assert.Equal(t, 1, ts.embedder.CallCount())

	// Callers get their own copy; mutating it cannot poison the cache.
	second[0].Text = "tampered"
	third, err := ts.searcher.Search(ctx, "hello", Options{})
	require.NoError(t, err)
	assert.Equal(t, "hello", third[0].Text)
}

func TestSearcher_Search_ClearedCacheSeesNewDocuments(t *testing.T) {
	mon := &recordingSearchMonitor{}
	ts := setupSearcher(t, WithMonitor(mon))
	ctx := context.Background()

	ts.seedDocument(t, "a.txt", nil, []string{"first"}, [][]float32{{1, 0, 0}})
	ts.queryReturns([]float32{1, 0, 0})

	results, err := ts.searcher.Search(ctx, "first", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	ts.results.Wait()

	// Indexing a new document clears the result cache, so the same query
	// reflects the change instead of replaying the stale list.
	ts.seedDocument(t, "b.txt", nil, []string{"second"}, [][]float32{{1, 0, 0}})
	ts.results.Clear()

	results, err = ts.searcher.Search(ctx, "first", Options{})
	require.NoError(t, err)
	assert.Len(t, results, 2)
	assert.Equal(t, 2, mon.indexQueries)
	assert.Zero(t, mon.cacheHits)
}

func TestSearcher_Search_KBounds(t *testing.T) {
	ts := setupSearcher(t, WithDefaultK(2), WithMaxK(3))
	ctx := context.Background()

	texts := []string{"one", "two", "three", "four", "five"}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 0, 0}
	}
	ts.seedDocument(t, "long.txt", nil, texts, vectors)
	ts.queryReturns([]float32{1, 0, 0})

	results, err := ts.searcher.Search(ctx, "query one", Options{})
	require.NoError(t, err)
	require.Len(t, results, 2)

	// Equal scores fall back to ascending sequence.
	assert.Equal(t, 0, results[0].Sequence)
	assert.Equal(t, 1, results[1].Sequence)

	results, err = ts.searcher.Search(ctx, "query two", Options{K: 100})
	require.NoError(t, err)
	assert.Len(t, results, 3)

	results, err = ts.searcher.Search(ctx, "query three", Options{K: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestSearcher_Search_MetadataFilter(t *testing.T) {
	ts := setupSearcher(t)
	ctx := context.Background()

	docA := ts.seedDocument(t, "a.txt", map[string]string{"team": "docs"},
		[]string{"alpha"}, [][]float32{{1, 0, 0}})
	ts.seedDocument(t, "b.txt", map[string]string{"team": "infra"},
		[]string{"beta"}, [][]float32{{1, 0, 0}})

	ts.queryReturns([]float32{1, 0, 0})

	results, err := ts.searcher.Search(ctx, "query", Options{Filter: map[string]string{"team": "docs"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, docA.Id, results[0].DocumentId)
}

func TestSearcher_Search_SkipsMissingDocument(t *testing.T) {
	ts := setupSearcher(t)
	ctx := context.Background()

	docA := ts.seedDocument(t, "a.txt", nil, []string{"alpha"}, [][]float32{{1, 0, 0}})
	docB := ts.seedDocument(t, "b.txt", nil, []string{"beta"}, [][]float32{{1, 0, 0}})

	// Drop docA's record but leave its vectors behind, as a crashed
	// delete would.
	require.NoError(t, ts.docRepo.DeleteDocument(ctx, docA.Id))

	ts.queryReturns([]float32{1, 0, 0})

	results, err := ts.searcher.Search(ctx, "query", Options{})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, docB.Id, results[0].DocumentId)
}

func TestSearcher_SearchWithMonitor_PerCallOverride(t *testing.T) {
	base := &recordingSearchMonitor{}
	override := &recordingSearchMonitor{}
	ts := setupSearcher(t, WithMonitor(base))

	ts.seedDocument(t, "a.txt", nil, []string{"x"}, [][]float32{{1, 0, 0}})
	ts.queryReturns([]float32{1, 0, 0})

	_, err := ts.searcher.SearchWithMonitor(context.Background(), "x", Options{}, override)
	require.NoError(t, err)

	assert.Zero(t, base.starts)
	assert.Equal(t, 1, override.starts)
	assert.Equal(t, 1, override.finishes)
}

func TestSearcher_Search_EmbedderFailure(t *testing.T) {
	ts := setupSearcher(t)

	ts.embedder.EmbedTextsFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		return nil, fmt.Errorf("mock: %w: down", embedding.ErrUnavailable)
	}

	_, err := ts.searcher.Search(context.Background(), "query", Options{})
	assert.ErrorIs(t, err, embedding.ErrUnavailable)
}

type failingIndex struct {
	vector.Index
}

func (f *failingIndex) Query(ctx context.Context, v []float32, k int, filter vector.Filter) ([]vector.Hit, error) {
	return nil, fmt.Errorf("%w: connection refused", vector.ErrUnavailable)
}

func TestSearcher_Search_IndexUnavailable(t *testing.T) {
	docRepo, _, backend, err := badger.NewMemoryRepositories()
	require.NoError(t, err)
	defer backend.Close()

	registry := embedding.NewRegistry()
	require.NoError(t, registry.Register(embedmock.NewMockEmbedder()))

	embCache, err := cache.NewEmbeddingCache(100, time.Hour)
	require.NoError(t, err)
	defer embCache.Close()
	results, err := cache.NewSearchCache(100, time.Minute)
	require.NoError(t, err)
	defer results.Close()

	searcher, err := NewSearcher(docRepo, registry, embCache, results, &failingIndex{})
	require.NoError(t, err)

	_, err = searcher.Search(context.Background(), "query", Options{})
	assert.ErrorIs(t, err, vector.ErrUnavailable)
}
