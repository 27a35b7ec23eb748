package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/ingestion"
	"github.com/quillworks/docpipe/search"
	"github.com/quillworks/docpipe/storage"
)

// handleUploadDocument accepts a multipart upload with a required
// "file" part and an optional "metadata" part holding a JSON object of
// string values. The document is stored and scheduled for processing;
// the response carries the record in its initial received state.
func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "reading upload failed")
		return
	}

	metadata, err := parseMetadata(r.FormValue("metadata"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "metadata must be a JSON object of string values")
		return
	}

	doc, err := s.pipeline.Submit(r.Context(), ingestion.Upload{
		Filename: header.Filename,
		Content:  content,
		Metadata: metadata,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusAccepted, newDocumentResponse(doc))
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.documents.GetDocument(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, newDocumentResponse(doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.pipeline.Delete(r.Context(), id); err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"id": id, "status": "deleted"})
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	status, detail, err := s.pipeline.Status(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	s.respondJSON(w, http.StatusOK, statusResponse{Status: string(status), Error: detail})
}

// handleProcessDocument re-triggers processing for a stored document.
// With ?force=true all stages rerun even when the document is already
// indexed. The busy check is advisory: concurrent runs serialize on
// the pipeline's per-document lock either way.
func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	force := r.URL.Query().Get("force") == "true"

	doc, err := s.documents.GetDocument(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}
	if !doc.Status.Terminal() && doc.Status != core.StatusReceived {
		s.respondError(w, http.StatusConflict, "document is being processed")
		return
	}

	// Processing outlives the request, so it gets its own context.
	go func() {
		if err := s.pipeline.Process(context.Background(), id, force); err != nil {
			s.logger.Error("reprocessing failed", "document", id, "err", err)
		}
	}()

	s.respondJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": "processing"})
}

// handleGetChunks returns 404 for an unknown document and an empty
// list for a known one that has not been chunked yet.
func (s *Server) handleGetChunks(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.documents.GetDocument(r.Context(), id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	chunks, err := s.documents.GetChunks(r.Context(), id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.respondErr(w, r, err)
		return
	}

	out := make([]chunkResponse, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, newChunkResponse(c))
	}
	s.respondJSON(w, http.StatusOK, chunksResponse{DocumentId: id, Chunks: out})
}

// handleGetEmbeddings elides the vectors unless ?include_vectors=true
// is given; the dimension count is always reported.
func (s *Server) handleGetEmbeddings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.documents.GetDocument(r.Context(), id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	embeddings, err := s.documents.GetEmbeddings(r.Context(), id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		s.respondErr(w, r, err)
		return
	}

	includeVectors := r.URL.Query().Get("include_vectors") == "true"
	out := make([]embeddingResponse, 0, len(embeddings))
	for _, e := range embeddings {
		out = append(out, newEmbeddingResponse(e, includeVectors))
	}
	s.respondJSON(w, http.StatusOK, embeddingsResponse{DocumentId: id, Embeddings: out})
}

func (s *Server) handleGetJobs(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.documents.GetDocument(r.Context(), id); err != nil {
		s.respondErr(w, r, err)
		return
	}

	jobs, err := s.jobs.GetJobsByDocument(r.Context(), id)
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	out := make([]jobResponse, 0, len(jobs))
	for _, j := range jobs {
		out = append(out, newJobResponse(j))
	}
	s.respondJSON(w, http.StatusOK, jobsResponse{DocumentId: id, Jobs: out})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	results, err := s.searcher.Search(r.Context(), req.Query, search.Options{
		Provider: req.Provider,
		K:        req.K,
		Filter:   req.Filter,
	})
	if err != nil {
		s.respondErr(w, r, err)
		return
	}

	out := make([]searchResultResponse, 0, len(results))
	for _, res := range results {
		out = append(out, newSearchResultResponse(res))
	}
	s.respondJSON(w, http.StatusOK, searchResponse{Results: out})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := map[string]string{"storage": "ok"}
	status := http.StatusOK
	health := "ok"

	count, err := s.documents.CountDocuments(r.Context())
	if err != nil {
		s.logger.Error("health: storage check failed", "err", err)
		components["storage"] = "unavailable"
		status = http.StatusServiceUnavailable
		health = "degraded"
	}

	s.respondJSON(w, status, healthResponse{Status: health, Components: components, Documents: count})
}

// parseMetadata decodes the optional metadata form field, a JSON
// object of string values.
func parseMetadata(raw string) (map[string]string, error) {
	if raw == "" {
		return nil, nil
	}
	var m map[string]string
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, err
	}
	return m, nil
}
