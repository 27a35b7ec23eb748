// Package openai implements embedding.Embedder against OpenAI-compatible
// embedding APIs, including self-hosted services that speak the same
// protocol.
package openai

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/quillworks/docpipe/embedding"
)

// Config holds the settings for one OpenAI-compatible provider.
type Config struct {
	// Provider is the registry name, for example "openai".
	Provider string

	// BaseURL is the API root. Required.
	BaseURL string

	// APIKey authenticates requests. Leave empty for local services
	// that accept any token.
	APIKey string

	// Model is the embedding model identifier. Required.
	Model string

	// Dimensions is the vector length the model produces. Required.
	Dimensions int
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Provider == "" {
		return errors.New("openai: provider name is required")
	}
	if c.BaseURL == "" {
		return errors.New("openai: base URL is required")
	}
	if c.Model == "" {
		return errors.New("openai: model is required")
	}
	if c.Dimensions <= 0 {
		return fmt.Errorf("openai: dimensions must be positive, got %d", c.Dimensions)
	}
	return nil
}

// Embedder calls an OpenAI-compatible embeddings endpoint.
type Embedder struct {
	embedder   embeddings.Embedder
	provider   string
	model      string
	dimensions int
	logger     *slog.Logger
}

// NewEmbedder creates an embedder from the configuration.
//
// Returns the embedding.Embedder interface to enforce abstraction.
func NewEmbedder(config Config) (embedding.Embedder, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	// Local OpenAI-compatible services accept any token; "none" keeps
	// the client happy without real credentials.
	token := config.APIKey
	if token == "" {
		token = "none"
	}

	client, err := openai.New(
		openai.WithBaseURL(config.BaseURL),
		openai.WithToken(token),
		openai.WithEmbeddingModel(config.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("openai: creating client: %w", err)
	}

	embedder, err := embeddings.NewEmbedder(client, embeddings.WithStripNewLines(true))
	if err != nil {
		return nil, fmt.Errorf("openai: creating embedder: %w", err)
	}

	return &Embedder{
		embedder:   embedder,
		provider:   config.Provider,
		model:      config.Model,
		dimensions: config.Dimensions,
		logger:     slog.Default().With("component", "openai-embedder", "provider", config.Provider),
	}, nil
}

// EmbedTexts generates vector embeddings for multiple text strings in a batch.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.logger.Debug("generating embeddings", "count", len(texts))

	vectors, err := e.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		e.logger.Error("failed to generate embeddings", "count", len(texts), "err", err)
		return nil, fmt.Errorf("%s: %w: %w", e.provider, embedding.ErrUnavailable, err)
	}

	return vectors, nil
}

// Provider returns the registry name.
func (e *Embedder) Provider() string { return e.provider }

// Model returns the embedding model identifier.
func (e *Embedder) Model() string { return e.model }

// Dimensions returns the vector length.
func (e *Embedder) Dimensions() int { return e.dimensions }
