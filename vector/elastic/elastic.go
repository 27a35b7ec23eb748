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

// Package elastic is a vector.Index backed by an Elasticsearch
// dense_vector index, spoken to over its REST API.
package elastic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quillworks/docpipe/vector"
)

const (
	// DefaultIndexName is the index documents land in.
	DefaultIndexName = "document_embeddings"

	// DefaultDimensions matches the 768-dimension embedding models the
	// pipeline ships with.
	DefaultDimensions = 768

	// DefaultTimeout bounds one index call.
	DefaultTimeout = 15 * time.Second

	// maxErrorBody caps how much of an error response is read back.
	maxErrorBody = 8 << 10
)

// Config holds the connection settings for the Elasticsearch index.
type Config struct {
	// URL is the cluster root, for example "http://localhost:9200".
	URL string

	// Username and Password enable basic auth when set.
	Username string
	Password string

	// Index is the index name. Zero means DefaultIndexName.
	Index string

	// Dimensions is the dense_vector length. Zero means DefaultDimensions.
	Dimensions int

	// Timeout bounds a single call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.URL == "" {
		return errors.New("elastic: URL is required")
	}
	if c.Dimensions < 0 {
		return fmt.Errorf("elastic: dimensions cannot be negative, got %d", c.Dimensions)
	}
	if c.Index == "" {
		c.Index = DefaultIndexName
	}
	if c.Dimensions == 0 {
		c.Dimensions = DefaultDimensions
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

// Index stores chunk vectors in Elasticsearch. Safe for concurrent use.
type Index struct {
	url        string
	username   string
	password   string
	index      string
	dimensions int
	client     *http.Client
	logger     *slog.Logger
}

// NewIndex creates an Elasticsearch-backed index client. It does not touch
// the cluster; call EnsureIndex before first use.
func NewIndex(config Config) (*Index, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Index{
		url:        strings.TrimRight(config.URL, "/"),
		username:   config.Username,
		password:   config.Password,
		index:      config.Index,
		dimensions: config.Dimensions,
		client:     &http.Client{Timeout: config.Timeout},
		logger:     slog.Default().With("component", "elastic", "index", config.Index),
	}, nil
}

// EnsureIndex creates the index with its vector mapping if it is missing.
func (x *Index) EnsureIndex(ctx context.Context) error {
	status, err := x.do(ctx, http.MethodHead, "/"+x.index, nil, nil)
	if err != nil && status != http.StatusNotFound {
		return err
	}
	if status == http.StatusOK {
		return nil
	}

	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"document_id":        map[string]any{"type": "keyword"},
				"chunk_id":           map[string]any{"type": "keyword"},
				"sequence":           map[string]any{"type": "integer"},
				"embedding_provider": map[string]any{"type": "keyword"},
				"embedding": map[string]any{
					"type":       "dense_vector",
					"dims":       x.dimensions,
					"index":      true,
					"similarity": "cosine",
				},
				"metadata":   map[string]any{"type": "object", "dynamic": true},
				"created_at": map[string]any{"type": "date"},
			},
		},
	}
	if _, err := x.do(ctx, http.MethodPut, "/"+x.index, mapping, nil); err != nil {
		return err
	}

	x.logger.Info("created index", "dimensions", x.dimensions)
	return nil
}

// indexedDoc is the stored shape of one chunk vector.
type indexedDoc struct {
	DocumentID string            `json:"document_id"`
	ChunkID    string            `json:"chunk_id"`
	Sequence   int               `json:"sequence"`
	Provider   string            `json:"embedding_provider"`
	Embedding  []float32         `json:"embedding"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  string            `json:"created_at"`
}

// Upsert replaces all vectors of one document. Old vectors are deleted
// unrefreshed and the bulk insert carries refresh, so both changes become
// searchable at the same refresh point.
func (x *Index) Upsert(ctx context.Context, documentID string, entries []vector.Entry) error {
	if documentID == "" {
		return fmt.Errorf("elastic: document id is required")
	}

	refreshDelete := len(entries) == 0
	if err := x.deleteByDocument(ctx, documentID, refreshDelete); err != nil {
		return err
	}
	if len(entries) == 0 {
		return nil
	}

	now := time.Now().UTC().Format(time.RFC3339)
	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, e := range entries {
		action := map[string]any{
			"index": map[string]any{
				"_index": x.index,
				"_id":    e.ChunkID + "_" + e.Provider,
			},
		}
		if err := enc.Encode(action); err != nil {
			return fmt.Errorf("elastic: encoding bulk action: %w", err)
		}
		doc := indexedDoc{
			DocumentID: documentID,
			ChunkID:    e.ChunkID,
			Sequence:   e.Sequence,
			Provider:   e.Provider,
			Embedding:  e.Vector,
			Metadata:   e.Metadata,
			CreatedAt:  now,
		}
		if err := enc.Encode(doc); err != nil {
			return fmt.Errorf("elastic: encoding bulk document: %w", err)
		}
	}

	var result struct {
		Errors bool `json:"errors"`
	}
	if _, err := x.doRaw(ctx, http.MethodPost, "/_bulk?refresh=true", &body, "application/x-ndjson", &result); err != nil {
		return err
	}
	if result.Errors {
		return fmt.Errorf("%w: bulk insert reported item failures", vector.ErrUnavailable)
	}

	x.logger.Debug("upserted vectors", "document_id", documentID, "count", len(entries))
	return nil
}

// Query runs a cosine similarity search.
func (x *Index) Query(ctx context.Context, queryVector []float32, k int, filter vector.Filter) ([]vector.Hit, error) {
	if k <= 0 {
		return nil, fmt.Errorf("elastic: k must be positive, got %d", k)
	}

	var filters []map[string]any
	if filter.Provider != "" {
		filters = append(filters, map[string]any{
			"term": map[string]any{"embedding_provider": filter.Provider},
		})
	}
	for key, value := range filter.Metadata {
		filters = append(filters, map[string]any{
			"term": map[string]any{"metadata." + key + ".keyword": value},
		})
	}

	inner := map[string]any{"match_all": map[string]any{}}
	if len(filters) > 0 {
		inner = map[string]any{"bool": map[string]any{"filter": filters}}
	}

	body := map[string]any{
		"size": k,
		"query": map[string]any{
			"script_score": map[string]any{
				"query": inner,
				"script": map[string]any{
					// cosineSimilarity is shifted because scores cannot be
					// negative; the shift is undone below.
					"source": "cosineSimilarity(params.query_vector, 'embedding') + 1.0",
					"params": map[string]any{"query_vector": queryVector},
				},
			},
		},
		"sort": []any{
			map[string]any{"_score": map[string]any{"order": "desc"}},
			map[string]any{"sequence": map[string]any{"order": "asc"}},
		},
		"_source": []string{"document_id", "chunk_id", "sequence", "metadata"},
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Score  float32 `json:"_score"`
				Source struct {
					DocumentID string            `json:"document_id"`
					ChunkID    string            `json:"chunk_id"`
					Sequence   int               `json:"sequence"`
					Metadata   map[string]string `json:"metadata"`
				} `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if _, err := x.do(ctx, http.MethodPost, "/"+x.index+"/_search", body, &result); err != nil {
		return nil, err
	}

	hits := make([]vector.Hit, 0, len(result.Hits.Hits))
	for _, h := range result.Hits.Hits {
		hits = append(hits, vector.Hit{
			DocumentID: h.Source.DocumentID,
			ChunkID:    h.Source.ChunkID,
			Sequence:   h.Source.Sequence,
			Score:      h.Score - 1.0,
			Metadata:   h.Source.Metadata,
		})
	}
	return hits, nil
}

// DeleteDocument removes all vectors of one document.
func (x *Index) DeleteDocument(ctx context.Context, documentID string) error {
	return x.deleteByDocument(ctx, documentID, true)
}

// Close releases idle connections.
func (x *Index) Close() error {
	x.client.CloseIdleConnections()
	return nil
}

func (x *Index) deleteByDocument(ctx context.Context, documentID string, refresh bool) error {
	path := "/" + x.index + "/_delete_by_query?conflicts=proceed"
	if refresh {
		path += "&refresh=true"
	}
	body := map[string]any{
		"query": map[string]any{
			"term": map[string]any{"document_id": documentID},
		},
	}
	_, err := x.do(ctx, http.MethodPost, path, body, nil)
	return err
}

// do sends a JSON request. A nil out discards the response body.
func (x *Index) do(ctx context.Context, method, path string, body any, out any) (int, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return 0, fmt.Errorf("elastic: encoding request: %w", err)
		}
		reader = bytes.NewReader(data)
	}
	return x.doRaw(ctx, method, path, reader, "application/json", out)
}

func (x *Index) doRaw(ctx context.Context, method, path string, body io.Reader, contentType string, out any) (int, error) {
	req, err := http.NewRequestWithContext(ctx, method, x.url+path, body)
	if err != nil {
		return 0, fmt.Errorf("%w: building request: %w", vector.ErrUnavailable, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", contentType)
	}
	if x.username != "" {
		req.SetBasicAuth(x.username, x.password)
	}

	resp, err := x.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", vector.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return resp.StatusCode, fmt.Errorf("%w: %s %s returned %s: %s",
			vector.ErrUnavailable, method, path, resp.Status, snippet)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("%w: decoding response: %w", vector.ErrUnavailable, err)
		}
	}
	return resp.StatusCode, nil
}
