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


// Package server provides the HTTP API over the document pipeline:
// uploads, document inspection, reprocessing, semantic search, health,
// and Prometheus metrics.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/quillworks/docpipe/config"
	"github.com/quillworks/docpipe/ingestion"
	"github.com/quillworks/docpipe/search"
	"github.com/quillworks/docpipe/storage"
)

// Server is the HTTP server for the docpipe API.
type Server struct {
	pipeline  *ingestion.Pipeline
	searcher  *search.Searcher
	documents storage.DocumentRepository
	jobs      storage.JobRepository
	metrics   http.Handler
	config    config.ServerConfig
	logger    *slog.Logger
	server    *http.Server
}

// NewServer creates a server with the given dependencies. metricsHandler
// serves GET /metrics; nil leaves the endpoint unregistered. A nil
// logger falls back to slog.Default().
func NewServer(
	pipeline *ingestion.Pipeline,
	searcher *search.Searcher,
	documents storage.DocumentRepository,
	jobs storage.JobRepository,
	metricsHandler http.Handler,
	cfg config.ServerConfig,
	logger *slog.Logger,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		pipeline:  pipeline,
		searcher:  searcher,
		documents: documents,
		jobs:      jobs,
		metrics:   metricsHandler,
		config:    cfg,
		logger:    logger.With("component", "server"),
	}
}

// Handler builds the routed handler with the middleware stack applied.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if d := s.config.RequestTimeout(); d > 0 {
		r.Use(middleware.Timeout(d))
	}
	r.Use(middleware.Compress(5))

	r.Post("/api/v1/documents", s.handleUploadDocument)
	r.Get("/api/v1/documents/{id}", s.handleGetDocument)
	r.Delete("/api/v1/documents/{id}", s.handleDeleteDocument)
	r.Get("/api/v1/documents/{id}/status", s.handleDocumentStatus)
	r.Post("/api/v1/documents/{id}/process", s.handleProcessDocument)
	r.Get("/api/v1/documents/{id}/chunks", s.handleGetChunks)
	r.Get("/api/v1/documents/{id}/embeddings", s.handleGetEmbeddings)
	r.Get("/api/v1/documents/{id}/jobs", s.handleGetJobs)
	r.Post("/api/v1/search", s.handleSearch)
	r.Get("/health", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	return r
}

// Start begins serving on the configured address and blocks until the
// listener stops. It returns http.ErrServerClosed after a clean Stop.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:    s.config.Addr(),
		Handler: s.Handler(),
	}
	s.logger.Info("http server listening", "addr", s.config.Addr())
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server, waiting for in-flight
// requests up to the context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// requestLogger logs one line per request with method, path, status,
// response size, and duration.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start))
	})
}
