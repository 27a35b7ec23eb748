package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/quillworks/docpipe/cache"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/embedding"
	"github.com/quillworks/docpipe/storage"
	"github.com/quillworks/docpipe/vector"
)

const (
	// DefaultK is the result count used when a query does not ask for one.
	DefaultK = 10

	// DefaultMaxK caps the result count a single query may request.
	DefaultMaxK = 50
)

// Searcher answers text queries against the vector index, joining hits
// with the stored chunk and document fields.
type Searcher struct {
	documentRepository storage.DocumentRepository
	embedders          *embedding.Registry
	embeddingCache     *cache.EmbeddingCache
	searchCache        *cache.SearchCache
	vectorIndex        vector.Index

	defaultK int
	maxK     int
	monitor  SearchMonitor
	logger   *slog.Logger
}

// Options shape one query.
type Options struct {
	// Provider names the embedding provider to search with. Empty means
	// the registry default.
	Provider string

	// K is the number of results to return. Zero means the configured
	// default; values above the configured maximum are capped.
	K int

	// Filter restricts hits to chunks whose document metadata contains
	// every given entry.
	Filter map[string]string
}

// Option configures a Searcher.
type Option func(*Searcher) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) error {
		if logger == nil {
			logger = slog.Default()
		}
		s.logger = logger
		return nil
	}
}

// WithMonitor sets the monitor used when Search is called without one.
func WithMonitor(monitor SearchMonitor) Option {
	return func(s *Searcher) error {
		if monitor == nil {
			monitor = &noopMonitor{}
		}
		s.monitor = monitor
		return nil
	}
}

// WithDefaultK sets the result count used when a query does not ask for one.
func WithDefaultK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return fmt.Errorf("default k must be positive, got %d", k)
		}
		s.defaultK = k
		return nil
	}
}

// WithMaxK caps the result count a single query may request.
func WithMaxK(k int) Option {
	return func(s *Searcher) error {
		if k < 1 {
			return fmt.Errorf("max k must be positive, got %d", k)
		}
		s.maxK = k
		return nil
	}
}

// NewSearcher creates a new searcher.
func NewSearcher(
	documentRepository storage.DocumentRepository,
	embedders *embedding.Registry,
	embeddingCache *cache.EmbeddingCache,
	searchCache *cache.SearchCache,
	vectorIndex vector.Index,
	opts ...Option,
) (*Searcher, error) {
	if documentRepository == nil {
		return nil, ErrDocumentRepositoryRequired
	}
	if embedders == nil {
		return nil, ErrEmbedderRegistryRequired
	}
	if embeddingCache == nil {
		return nil, ErrEmbeddingCacheRequired
	}
	if searchCache == nil {
		return nil, ErrSearchCacheRequired
	}
	if vectorIndex == nil {
		return nil, ErrVectorIndexRequired
	}

	s := &Searcher{
		documentRepository: documentRepository,
		embedders:          embedders,
		embeddingCache:     embeddingCache,
		searchCache:        searchCache,
		vectorIndex:        vectorIndex,
		defaultK:           DefaultK,
		maxK:               DefaultMaxK,
		monitor:            &noopMonitor{},
		logger:             slog.Default(),
	}

	// Apply options
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	s.logger = s.logger.With("component", "searcher")
	return s, nil
}

// Search runs one query and returns up to opts.K results, ranked by
// descending score with ties broken by ascending chunk sequence.
func (s *Searcher) Search(ctx context.Context, query string, opts Options) ([]core.SearchResult, error) {
	return s.SearchWithMonitor(ctx, query, opts, nil)
}

// SearchWithMonitor runs one query with monitoring. The monitor receives
// callbacks at each stage of the search; nil falls back to the monitor
// configured on the searcher.
func (s *Searcher) SearchWithMonitor(ctx context.Context, query string, opts Options, monitor SearchMonitor) ([]core.SearchResult, error) {
	if monitor == nil {
		monitor = s.monitor
	}

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, core.NewValidationError("query", ErrEmptyQuery)
	}
	if opts.K < 0 {
		return nil, core.NewValidationError("k", ErrNegativeK)
	}

	k := opts.K
	if k == 0 {
		k = s.defaultK
	}
	if k > s.maxK {
		k = s.maxK
	}

	embedder, err := s.embedders.Get(opts.Provider)
	if err != nil {
		return nil, err
	}

	monitor.Start(query)

	// 1. Check the result cache.
	cacheKey := cache.SearchKey(embedder.Provider(), embedder.Model(), query, k, opts.Filter)
	if cached, ok := s.searchCache.Get(cacheKey); ok {
		s.logger.Debug("search served from cache", "query", query, "results", len(cached))
		monitor.CacheHit(query, len(cached))
		monitor.Finish(cached)
		return slices.Clone(cached), nil
	}

	// 2. Embed the query. Identical queries share the chunk embedding
	// cache, so a repeated query skips the provider entirely.
	embedStart := time.Now()
	queryVector, err := s.embeddingCache.GetOrCompute(ctx, cache.NewKey(embedder.Provider(), embedder.Model(), query),
		func(ctx context.Context) ([]float32, error) {
			vectors, err := embedder.EmbedTexts(ctx, []string{query})
			if err != nil {
				return nil, err
			}
			if len(vectors) != 1 {
				return nil, fmt.Errorf("expected one vector for the query, got %d", len(vectors))
			}
			return vectors[0], nil
		})
	if err != nil {
		s.logger.Error("error generating embedding for query", "query", query, "err", err)
		return nil, err
	}
	monitor.QueryEmbedded(embedder.Provider(), embedder.Model(), time.Since(embedStart))

	// 3. Query the index.
	queryStart := time.Now()
	hits, err := s.vectorIndex.Query(ctx, queryVector, k, vector.Filter{
		Provider: embedder.Provider(),
		Metadata: opts.Filter,
	})
	if err != nil {
		s.logger.Error("error querying vector index", "err", err)
		return nil, err
	}
	monitor.AfterIndexQuery(hits, time.Since(queryStart))

	// 4. Join hits with stored chunk and document fields. A hit whose
	// document disappeared between query and join is skipped.
	results := make([]core.SearchResult, 0, len(hits))
	seen := make(map[string]*docEntry)

	for _, hit := range hits {
		entry, ok := seen[hit.DocumentID]
		if !ok {
			entry, err = s.loadDocument(ctx, hit.DocumentID)
			if err != nil {
				return nil, err
			}
			seen[hit.DocumentID] = entry
		}
		if entry == nil {
			continue
		}

		text, ok := entry.chunkTexts[hit.ChunkID]
		if !ok {
			s.logger.Warn("hit references a missing chunk", "chunk", hit.ChunkID)
			continue
		}

		results = append(results, core.SearchResult{
			DocumentId: hit.DocumentID,
			ChunkId:    hit.ChunkID,
			Sequence:   hit.Sequence,
			Score:      hit.Score,
			Text:       text,
			Filename:   entry.doc.Filename,
			Metadata:   entry.doc.Metadata,
		})
	}

	// Sort by score descending, ties by ascending sequence
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].Sequence < results[j].Sequence
	})
	if len(results) > k {
		results = results[:k]
	}

	s.searchCache.Store(cacheKey, slices.Clone(results))
	monitor.Finish(results)

	return results, nil
}

// docEntry is one joined document: its record plus chunk texts by id.
type docEntry struct {
	doc        *core.Document
	chunkTexts map[string]string
}

// loadDocument fetches the document and its chunk texts. Returns nil
// (and no error) when the document or its chunks no longer exist.
func (s *Searcher) loadDocument(ctx context.Context, documentID string) (*docEntry, error) {
	doc, err := s.documentRepository.GetDocument(ctx, documentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("hit references a missing document", "document", documentID)
			return nil, nil
		}
		return nil, err
	}

	chunks, err := s.documentRepository.GetChunks(ctx, documentID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.Warn("document has no stored chunks", "document", documentID)
			return nil, nil
		}
		return nil, err
	}

	texts := make(map[string]string, len(chunks))
	for _, chunk := range chunks {
		texts[chunk.Id] = chunk.Text
	}
	return &docEntry{doc: doc, chunkTexts: texts}, nil
}
