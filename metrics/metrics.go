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

// Package metrics exports Prometheus collectors for the ingestion
// pipeline, the search path and the embedding cache. The collectors plug
// into the pipeline and searcher through their monitor interfaces, so
// neither package imports Prometheus directly.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/ingestion"
	"github.com/quillworks/docpipe/search"
	"github.com/quillworks/docpipe/vector"
)

// Metrics bundles all collectors behind one registry.
type Metrics struct {
	registry *prometheus.Registry

	// Pipeline implements ingestion.PipelineMonitor.
	Pipeline *PipelineCollector

	// Search implements search.SearchMonitor.
	Search *SearchCollector

	cacheLookups *prometheus.CounterVec
}

// New creates a Metrics with a fresh registry, including the standard
// Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		Pipeline: newPipelineCollector(factory),
		Search:   newSearchCollector(factory),
		cacheLookups: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "embedding_cache_lookups_total",
			Help: "Embedding cache lookups, partitioned by result",
		}, []string{"result"}),
	}
}

// Registry exposes the underlying registry so callers can register
// additional collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the exposition handler served at GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// EmbeddingLookupFunc returns a callback for cache.WithLookupFunc that
// feeds the hit/miss counters.
func (m *Metrics) EmbeddingLookupFunc() func(hit bool) {
	return func(hit bool) {
		if hit {
			m.cacheLookups.WithLabelValues("hit").Inc()
		} else {
			m.cacheLookups.WithLabelValues("miss").Inc()
		}
	}
}

// PipelineCollector records document processing metrics.
type PipelineCollector struct {
	documentsSubmitted prometheus.Counter
	documentsIndexed   prometheus.Counter
	documentsDeleted   prometheus.Counter
	documentsFailed    *prometheus.CounterVec
	activeDocuments    prometheus.Gauge
	stageDuration      *prometheus.HistogramVec
	chunksProduced     prometheus.Counter
	chunkSizeBytes     prometheus.Histogram
}

var _ ingestion.PipelineMonitor = (*PipelineCollector)(nil)

func newPipelineCollector(factory promauto.Factory) *PipelineCollector {
	return &PipelineCollector{
		documentsSubmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "documents_submitted_total",
			Help: "Documents accepted for processing",
		}),
		documentsIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "documents_indexed_total",
			Help: "Documents that reached the indexed status",
		}),
		documentsDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "documents_deleted_total",
			Help: "Documents removed from the store and index",
		}),
		documentsFailed: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "documents_failed_total",
			Help: "Documents that failed processing, partitioned by stage",
		}, []string{"stage"}),
		activeDocuments: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_documents",
			Help: "Number of documents currently being processed",
		}),
		stageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "document_processing_seconds",
			Help:    "Time spent processing documents",
			Buckets: prometheus.DefBuckets,
		}, []string{"stage"}),
		chunksProduced: factory.NewCounter(prometheus.CounterOpts{
			Name: "document_chunks_total",
			Help: "Total number of chunks created",
		}),
		chunkSizeBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "chunk_size_bytes",
			Help:    "Distribution of chunk sizes in bytes",
			Buckets: prometheus.ExponentialBuckets(64, 2, 12),
		}),
	}
}

func (p *PipelineCollector) DocumentSubmitted(_ *core.Document) {
	p.documentsSubmitted.Inc()
}

func (p *PipelineCollector) StageStarted(_, _ string) {
	p.activeDocuments.Inc()
}

func (p *PipelineCollector) StageCompleted(_, stage string, took time.Duration) {
	p.activeDocuments.Dec()
	p.stageDuration.WithLabelValues(stage).Observe(took.Seconds())
}

func (p *PipelineCollector) ChunksProduced(_ string, chunks []core.Chunk) {
	p.chunksProduced.Add(float64(len(chunks)))
	for _, chunk := range chunks {
		p.chunkSizeBytes.Observe(float64(len(chunk.Text)))
	}
}

func (p *PipelineCollector) DocumentIndexed(_ *core.Document) {
	p.documentsIndexed.Inc()
}

// DocumentFailed closes the active slot opened by StageStarted: a failing
// stage never reports StageCompleted.
func (p *PipelineCollector) DocumentFailed(_ *core.Document, stage string, _ error) {
	p.activeDocuments.Dec()
	p.documentsFailed.WithLabelValues(stage).Inc()
}

func (p *PipelineCollector) DocumentDeleted(_ string) {
	p.documentsDeleted.Inc()
}

// SearchCollector records search path metrics.
type SearchCollector struct {
	searches        prometheus.Counter
	cacheHits       prometheus.Counter
	embedDuration   prometheus.Histogram
	queryDuration   prometheus.Histogram
	resultsReturned prometheus.Histogram
}

var _ search.SearchMonitor = (*SearchCollector)(nil)

func newSearchCollector(factory promauto.Factory) *SearchCollector {
	return &SearchCollector{
		searches: factory.NewCounter(prometheus.CounterOpts{
			Name: "searches_total",
			Help: "Search requests received",
		}),
		cacheHits: factory.NewCounter(prometheus.CounterOpts{
			Name: "search_cache_hits_total",
			Help: "Searches served from the result cache",
		}),
		embedDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "query_embedding_seconds",
			Help:    "Time spent embedding query text",
			Buckets: prometheus.DefBuckets,
		}),
		queryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "index_query_seconds",
			Help:    "Time spent querying the vector index",
			Buckets: prometheus.DefBuckets,
		}),
		resultsReturned: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "search_results_returned",
			Help:    "Results returned per search",
			Buckets: prometheus.LinearBuckets(0, 5, 11),
		}),
	}
}

func (s *SearchCollector) Start(_ string) {
	s.searches.Inc()
}

func (s *SearchCollector) CacheHit(_ string, _ int) {
	s.cacheHits.Inc()
}

func (s *SearchCollector) QueryEmbedded(_, _ string, took time.Duration) {
	s.embedDuration.Observe(took.Seconds())
}

func (s *SearchCollector) AfterIndexQuery(_ []vector.Hit, took time.Duration) {
	s.queryDuration.Observe(took.Seconds())
}

func (s *SearchCollector) Finish(results []core.SearchResult) {
	s.resultsReturned.Observe(float64(len(results)))
}
