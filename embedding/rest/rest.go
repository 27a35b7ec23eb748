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

// Package rest implements embedding.Embedder against bearer-token JSON
// endpoints: one POST per text, {"text", "model"} in, {"embedding"} out.
// Self-hosted nomic and granite deployments speak this protocol.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/quillworks/docpipe/embedding"
)

const (
	// DefaultTimeout bounds one embedding call.
	DefaultTimeout = 30 * time.Second

	// maxErrorBody caps how much of an error response is read back.
	maxErrorBody = 4 << 10
)

// Config holds the settings for one REST embedding provider.
type Config struct {
	// Provider is the registry name, for example "nomic".
	Provider string

	// URL is the full embeddings endpoint. Required.
	URL string

	// APIKey is sent as a bearer token when set.
	APIKey string

	// Model is the model identifier included in each request. Required.
	Model string

	// Dimensions is the vector length the model produces. Required.
	Dimensions int

	// RequestsPerSecond throttles outgoing calls. Zero disables
	// client-side throttling.
	RequestsPerSecond float64

	// Burst is the throttle burst size. Zero means 1.
	Burst int

	// Timeout bounds a single call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.New("rest: provider name is required")
	}
	if c.URL == "" {
		return errors.New("rest: endpoint URL is required")
	}
	if c.Model == "" {
		return errors.New("rest: model is required")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("rest: dimensions must be positive, got %d", c.Dimensions)
	}
	if c.RequestsPerSecond < 0 {
		return fmt.Errorf("rest: requests per second cannot be negative, got %g", c.RequestsPerSecond)
	}
	if c.Burst == 0 {
		c.Burst = 1
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

// Embedder calls a bearer-token embedding endpoint, one request per text.
// Safe for concurrent use.
type Embedder struct {
	provider   string
	model      string
	dimensions int
	url        string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// NewEmbedder creates an embedder from the configuration.
//
// Returns the embedding.Embedder interface to enforce abstraction.
func NewEmbedder(config Config) (embedding.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var limiter *rate.Limiter
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst)
	}

	return &Embedder{
		provider:   config.Provider,
		model:      config.Model,
		dimensions: config.Dimensions,
		url:        config.URL,
		apiKey:     config.APIKey,
		client:     &http.Client{Timeout: config.Timeout},
		limiter:    limiter,
		logger:     slog.Default().With("component", "rest-embedder", "provider", config.Provider),
	}, nil
}

// embedRequest is the endpoint's request payload.
type embedRequest struct {
	Text  string `json:"text"`
	Model string `json:"model"`
}

// embedResponse is the endpoint's success payload.
type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedTexts generates one vector per text, in order. Each text is its own
// request, gated by the configured rate limit.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.embedOne(ctx, text)
		if err != nil {
			e.logger.Error("embedding failed", "index", i, "of", len(texts), "err", err)
			return nil, err
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func (e *Embedder) embedOne(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	payload, err := json.Marshal(embedRequest{Text: text, Model: e.model})
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", e.provider, embedding.ErrInvalidInput, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", e.provider, embedding.ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %w", e.provider, embedding.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, e.statusError(resp)
	}

	var decoded embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%s: %w: decoding response: %w", e.provider, embedding.ErrUnavailable, err)
	}
	if len(decoded.Embedding) != e.dimensions {
		return nil, fmt.Errorf("%s: %w: got %d dimensions, want %d",
			e.provider, embedding.ErrUnavailable, len(decoded.Embedding), e.dimensions)
	}

	return decoded.Embedding, nil
}

// statusError classifies a non-OK response into the package's error kinds.
func (e *Embedder) statusError(resp *http.Response) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	var kind error
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		kind = embedding.ErrRateLimited
	case resp.StatusCode == http.StatusBadRequest,
		resp.StatusCode == http.StatusRequestEntityTooLarge,
		resp.StatusCode == http.StatusUnprocessableEntity:
		kind = embedding.ErrInvalidInput
	default:
		kind = embedding.ErrUnavailable
	}

	if len(snippet) > 0 {
		return fmt.Errorf("%s: %w: status %d: %s", e.provider, kind, resp.StatusCode, snippet)
	}
	return fmt.Errorf("%s: %w: status %d", e.provider, kind, resp.StatusCode)
}

// Provider returns the registry name.
func (e *Embedder) Provider() string { return e.provider }

// Model returns the embedding model identifier.
func (e *Embedder) Model() string { return e.model }

// Dimensions returns the vector length.
func (e *Embedder) Dimensions() int { return e.dimensions }
