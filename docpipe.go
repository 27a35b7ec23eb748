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

// Package docpipe assembles the document processing service from its
// parts: storage, conversion, embedding providers, caches, the vector
// index, the ingestion pipeline, search and the HTTP server, all wired
// from a single configuration.
package docpipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/quillworks/docpipe/cache"
	"github.com/quillworks/docpipe/chunker"
	"github.com/quillworks/docpipe/config"
	"github.com/quillworks/docpipe/convert"
	"github.com/quillworks/docpipe/convert/docling"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/embedding"
	"github.com/quillworks/docpipe/embedding/openai"
	"github.com/quillworks/docpipe/embedding/rest"
	"github.com/quillworks/docpipe/ingestion"
	"github.com/quillworks/docpipe/metrics"
	"github.com/quillworks/docpipe/reindex"
	"github.com/quillworks/docpipe/search"
	"github.com/quillworks/docpipe/server"
	"github.com/quillworks/docpipe/storage"
	"github.com/quillworks/docpipe/storage/badger"
	"github.com/quillworks/docpipe/vector"
	"github.com/quillworks/docpipe/vector/elastic"
	"github.com/quillworks/docpipe/vector/memory"
)

// Service owns every component of the running system. Construct it with
// NewService and release resources with Close.
type Service struct {
	config *config.Config

	backend   *badger.Backend
	documents storage.DocumentRepository
	jobs      storage.JobRepository

	converter   convert.Converter
	registry    *embedding.Registry
	embCache    *cache.EmbeddingCache
	searchCache *cache.SearchCache
	index       vector.Index

	pipeline *ingestion.Pipeline
	searcher *search.Searcher
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Option configures a Service.
type Option func(*serviceOptions)

type serviceOptions struct {
	logger    *slog.Logger
	converter convert.Converter
	embedders []embedding.Embedder
	index     vector.Index
}

// WithLogger sets the logger passed to every component. Defaults to
// slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *serviceOptions) {
		o.logger = logger
	}
}

// WithConverter replaces the configured conversion client.
func WithConverter(converter convert.Converter) Option {
	return func(o *serviceOptions) {
		o.converter = converter
	}
}

// WithEmbedders replaces the configured embedding providers. The first
// embedder becomes the registry default.
func WithEmbedders(embedders ...embedding.Embedder) Option {
	return func(o *serviceOptions) {
		o.embedders = embedders
	}
}

// WithVectorIndex replaces the configured vector index.
func WithVectorIndex(index vector.Index) Option {
	return func(o *serviceOptions) {
		o.index = index
	}
}

// NewService wires the full system from cfg. Missing settings fall back
// to their defaults, so a partially filled Config works. Construction
// opens the storage backend but performs no network calls; remote
// dependencies are first contacted when documents or queries arrive.
func NewService(cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	// Apply options
	options := &serviceOptions{
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(options)
	}
	logger := options.logger

	config.ApplyDefaults(cfg)

	// Open backend
	backend, err := badger.OpenBackend(cfg.Storage.Path, cfg.Storage.InMemory)
	if err != nil {
		return nil, err
	}

	// Create document repository
	documents, err := badger.NewDocumentRepository(backend)
	if err != nil {
		backend.Close()
		return nil, err
	}

	// Create job repository
	jobs, err := badger.NewJobRepository(backend)
	if err != nil {
		documents.Close()
		backend.Close()
		return nil, err
	}

	// Create conversion client
	converter := options.converter
	if converter == nil {
		converter, err = docling.NewClient(docling.Config{
			BaseURL: cfg.Convert.ServiceURL,
			Timeout: cfg.Convert.Timeout(),
		})
		if err != nil {
			jobs.Close()
			documents.Close()
			backend.Close()
			return nil, err
		}
	}

	// Register embedding providers
	registry := embedding.NewRegistry()
	if len(options.embedders) > 0 {
		for _, e := range options.embedders {
			if err := registry.Register(e); err != nil {
				jobs.Close()
				documents.Close()
				backend.Close()
				return nil, err
			}
		}
	} else {
		for _, p := range cfg.Embedding.Providers {
			embedder, err := buildEmbedder(p)
			if err != nil {
				jobs.Close()
				documents.Close()
				backend.Close()
				return nil, err
			}
			if err := registry.Register(embedder); err != nil {
				jobs.Close()
				documents.Close()
				backend.Close()
				return nil, err
			}
		}
		if cfg.Embedding.Default != "" {
			if err := registry.SetDefault(cfg.Embedding.Default); err != nil {
				jobs.Close()
				documents.Close()
				backend.Close()
				return nil, err
			}
		}
	}

	m := metrics.New()

	// Create caches
	embCache, err := cache.NewEmbeddingCache(
		int64(cfg.Cache.EmbeddingMaxEntries), cfg.Cache.EmbeddingTTL(),
		cache.WithEmbeddingLogger(logger),
		cache.WithLookupFunc(m.EmbeddingLookupFunc()),
	)
	if err != nil {
		jobs.Close()
		documents.Close()
		backend.Close()
		return nil, err
	}
	searchCache, err := cache.NewSearchCache(
		int64(cfg.Cache.SearchMaxEntries), cfg.Cache.SearchTTL(),
	)
	if err != nil {
		embCache.Close()
		jobs.Close()
		documents.Close()
		backend.Close()
		return nil, err
	}

	// Create vector index, sized to the default provider
	index := options.index
	if index == nil {
		index, err = buildIndex(cfg.Index, registry)
		if err != nil {
			searchCache.Close()
			embCache.Close()
			jobs.Close()
			documents.Close()
			backend.Close()
			return nil, err
		}
	}

	// Assemble the pipeline. Indexing and deletion invalidate cached
	// search results through the monitor.
	splitter, err := chunker.New(chunker.WithMaxChunkSize(cfg.Chunking.MaxChunkSize))
	if err != nil {
		index.Close()
		searchCache.Close()
		embCache.Close()
		jobs.Close()
		documents.Close()
		backend.Close()
		return nil, err
	}
	pipelineOpts := []ingestion.Option{
		ingestion.WithLogger(logger),
		ingestion.WithChunker(splitter),
		ingestion.WithStageTimeout(cfg.Pipeline.StageTimeout()),
		ingestion.WithMaxContentSize(cfg.Pipeline.MaxContentSize()),
		ingestion.WithMonitor(ingestion.MultiMonitor(
			m.Pipeline,
			&searchCacheInvalidator{cache: searchCache},
		)),
	}
	if cfg.Pipeline.PoolSize > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithPoolSize(cfg.Pipeline.PoolSize))
	}
	if len(cfg.Convert.AllowedTypes) > 0 {
		pipelineOpts = append(pipelineOpts, ingestion.WithAllowedMediaTypes(cfg.Convert.AllowedTypes))
	}
	pipeline, err := ingestion.NewPipeline(documents, jobs, converter, registry, embCache, index, pipelineOpts...)
	if err != nil {
		index.Close()
		searchCache.Close()
		embCache.Close()
		jobs.Close()
		documents.Close()
		backend.Close()
		return nil, err
	}

	// Assemble the searcher
	searcher, err := search.NewSearcher(documents, registry, embCache, searchCache, index,
		search.WithLogger(logger),
		search.WithMonitor(m.Search),
		search.WithDefaultK(cfg.Search.DefaultK),
		search.WithMaxK(cfg.Search.MaxK),
	)
	if err != nil {
		pipeline.Release()
		index.Close()
		searchCache.Close()
		embCache.Close()
		jobs.Close()
		documents.Close()
		backend.Close()
		return nil, err
	}

	return &Service{
		config:      cfg,
		backend:     backend,
		documents:   documents,
		jobs:        jobs,
		converter:   converter,
		registry:    registry,
		embCache:    embCache,
		searchCache: searchCache,
		index:       index,
		pipeline:    pipeline,
		searcher:    searcher,
		metrics:     m,
		logger:      logger,
	}, nil
}

// buildEmbedder constructs one provider from its configuration.
func buildEmbedder(p config.ProviderConfig) (embedding.Embedder, error) {
	switch p.Type {
	case "openai":
		return openai.NewEmbedder(openai.Config{
			Provider:   p.Name,
			BaseURL:    p.BaseURL,
			APIKey:     p.APIKey(),
			Model:      p.Model,
			Dimensions: p.Dimensions,
		})
	case "rest":
		return rest.NewEmbedder(rest.Config{
			Provider:          p.Name,
			URL:               p.BaseURL,
			APIKey:            p.APIKey(),
			Model:             p.Model,
			Dimensions:        p.Dimensions,
			RequestsPerSecond: p.RequestsPerSecond,
			Timeout:           p.Timeout(),
		})
	default:
		return nil, fmt.Errorf("embedding provider %q: unknown type %q", p.Name, p.Type)
	}
}

// buildIndex constructs the vector index named by the configuration.
// Dimensions come from the default embedding provider so the index and
// the vectors written to it always agree.
func buildIndex(cfg config.IndexConfig, registry *embedding.Registry) (vector.Index, error) {
	def, err := registry.Default()
	if err != nil {
		return nil, err
	}

	switch cfg.Kind {
	case "elastic":
		return elastic.NewIndex(elastic.Config{
			URL:        cfg.URL,
			Username:   cfg.Username,
			Password:   cfg.Password(),
			Index:      cfg.IndexName,
			Dimensions: def.Dimensions(),
			Timeout:    cfg.Timeout(),
		})
	case "", "memory":
		return memory.NewIndex(def.Dimensions())
	default:
		return nil, fmt.Errorf("index: unknown kind %q", cfg.Kind)
	}
}

// searchCacheInvalidator drops cached search results whenever the
// indexed corpus changes under them.
type searchCacheInvalidator struct {
	cache *cache.SearchCache
}

var _ ingestion.PipelineMonitor = (*searchCacheInvalidator)(nil)

func (v *searchCacheInvalidator) DocumentSubmitted(_ *core.Document)                 {}
func (v *searchCacheInvalidator) StageStarted(_, _ string)                           {}
func (v *searchCacheInvalidator) StageCompleted(_, _ string, _ time.Duration)        {}
func (v *searchCacheInvalidator) ChunksProduced(_ string, _ []core.Chunk)            {}
func (v *searchCacheInvalidator) DocumentFailed(_ *core.Document, _ string, _ error) {}

func (v *searchCacheInvalidator) DocumentIndexed(_ *core.Document) {
	v.cache.Clear()
}

func (v *searchCacheInvalidator) DocumentDeleted(_ string) {
	v.cache.Clear()
}

// Close releases every component. The pipeline drains first so no
// worker touches storage after it goes away.
func (s *Service) Close() error {
	s.pipeline.Release()

	s.embCache.Close()
	s.searchCache.Close()

	if err := s.index.Close(); err != nil {
		s.logger.Error("error closing vector index", "err", err)
	}

	// Close repositories
	if err := s.jobs.Close(); err != nil {
		s.logger.Error("error closing job repository", "err", err)
		return err
	}
	if err := s.documents.Close(); err != nil {
		s.logger.Error("error closing document repository", "err", err)
		return err
	}

	// Close backend
	if err := s.backend.Close(); err != nil {
		s.logger.Error("error closing storage backend", "err", err)
		return err
	}
	return nil
}

// Pipeline returns the ingestion pipeline.
func (s *Service) Pipeline() *ingestion.Pipeline {
	return s.pipeline
}

// Searcher returns the query side.
func (s *Service) Searcher() *search.Searcher {
	return s.searcher
}

// Documents returns the document repository.
func (s *Service) Documents() storage.DocumentRepository {
	return s.documents
}

// Jobs returns the job repository.
func (s *Service) Jobs() storage.JobRepository {
	return s.jobs
}

// Metrics returns the Prometheus collectors.
func (s *Service) Metrics() *metrics.Metrics {
	return s.metrics
}

// NewServer builds the HTTP server over this service. The caller owns
// its lifecycle.
func (s *Service) NewServer() *server.Server {
	return server.NewServer(s.pipeline, s.searcher, s.documents, s.jobs,
		s.metrics.Handler(), s.config.Server, s.logger)
}

// Reindex re-embeds every indexed document with the named provider and
// rewrites its vectors. An empty provider selects the default. Progress
// lines are written to progress; pass nil to discard them.
func (s *Service) Reindex(ctx context.Context, provider string, progress io.Writer) error {
	embedder, err := s.registry.Get(provider)
	if err != nil {
		return err
	}

	r := reindex.NewReindexer(s.documents, s.jobs, embedder, s.embCache, s.index, nil, progress)
	if err := r.Run(ctx); err != nil {
		return err
	}

	// Vectors changed under any cached results.
	s.searchCache.Clear()
	return nil
}
