package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/embedding"
	"github.com/quillworks/docpipe/ingestion"
	"github.com/quillworks/docpipe/storage"
	"github.com/quillworks/docpipe/vector"
)

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("writing response failed", "err", err)
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// respondErr maps a domain error onto its HTTP status and writes the
// error envelope. Server-side failures are logged; client errors are
// already visible in the request log line.
func (s *Server) respondErr(w http.ResponseWriter, r *http.Request, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	s.respondError(w, status, err.Error())
}

// errorStatus picks the HTTP status for a domain error.
func errorStatus(err error) int {
	var validation *core.ValidationError
	switch {
	case errors.As(err, &validation),
		errors.Is(err, embedding.ErrUnknownProvider),
		errors.Is(err, embedding.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ingestion.ErrDocumentBusy):
		return http.StatusConflict
	case errors.Is(err, embedding.ErrUnavailable),
		errors.Is(err, embedding.ErrRateLimited):
		return http.StatusBadGateway
	case errors.Is(err, vector.ErrUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
