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

// Package docling converts documents through a docling-style HTTP
// conversion service.
package docling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/quillworks/docpipe/convert"
	"github.com/quillworks/docpipe/core"
)

const (
	// DefaultTimeout bounds one conversion call. OCR-heavy documents
	// take a while.
	DefaultTimeout = 2 * time.Minute

	// maxErrorBody caps how much of an error response is read back.
	maxErrorBody = 8 << 10
)

// Config holds the connection settings for the conversion service.
type Config struct {
	// BaseURL is the service root, for example "http://localhost:5001".
	BaseURL string

	// Timeout bounds a single conversion call. Zero means DefaultTimeout.
	Timeout time.Duration
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errors.New("docling: base URL is required")
	}
	if c.Timeout < 0 {
		return fmt.Errorf("docling: timeout cannot be negative, got %s", c.Timeout)
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	return nil
}

// Client is a convert.Converter backed by the conversion service.
// Safe for concurrent use.
type Client struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewClient creates a conversion client. The config is validated and
// normalized before use.
func NewClient(config Config) (convert.Converter, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Client{
		baseURL: strings.TrimRight(config.BaseURL, "/"),
		client:  &http.Client{Timeout: config.Timeout},
		logger:  slog.Default().With("component", "docling"),
	}, nil
}

// convertResponse is the service's success payload.
type convertResponse struct {
	Blocks []struct {
		Type string `json:"type"`
		Text string `json:"text"`
		Page int    `json:"page"`
	} `json:"blocks"`
}

// errorResponse is the service's failure payload.
type errorResponse struct {
	Error string `json:"error"`
}

// Convert uploads content and returns the extracted blocks in document
// order. Failures are reported as *convert.Error.
func (c *Client) Convert(ctx context.Context, content []byte, filename, mediaType string) ([]core.Block, error) {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	part, err := form.CreateFormFile("file", filename)
	if err != nil {
		return nil, convert.NewError(fmt.Errorf("building request: %w", err))
	}
	if _, err := part.Write(content); err != nil {
		return nil, convert.NewError(fmt.Errorf("building request: %w", err))
	}
	if err := form.WriteField("media_type", mediaType); err != nil {
		return nil, convert.NewError(fmt.Errorf("building request: %w", err))
	}
	if err := form.Close(); err != nil {
		return nil, convert.NewError(fmt.Errorf("building request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/convert", body)
	if err != nil {
		return nil, convert.NewError(fmt.Errorf("building request: %w", err))
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, convert.NewError(fmt.Errorf("calling conversion service: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, convert.NewError(c.errorFrom(resp, mediaType))
	}

	var decoded convertResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, convert.NewError(fmt.Errorf("decoding conversion response: %w", err))
	}

	blocks := make([]core.Block, 0, len(decoded.Blocks))
	for _, b := range decoded.Blocks {
		blocks = append(blocks, core.Block{
			Type: core.BlockTypeFromString(b.Type),
			Text: b.Text,
			Page: b.Page,
		})
	}

	c.logger.Debug("converted document",
		"filename", filename,
		"media_type", mediaType,
		"blocks", len(blocks),
		"duration", time.Since(start))

	return blocks, nil
}

// errorFrom maps a non-OK response to the failure cause.
func (c *Client) errorFrom(resp *http.Response, mediaType string) error {
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))

	if resp.StatusCode == http.StatusUnsupportedMediaType {
		return fmt.Errorf("%w: %s", core.ErrUnsupportedMediaType, mediaType)
	}

	var decoded errorResponse
	if err := json.Unmarshal(snippet, &decoded); err == nil && decoded.Error != "" {
		return fmt.Errorf("conversion service returned %s: %s", resp.Status, decoded.Error)
	}
	return fmt.Errorf("conversion service returned %s", resp.Status)
}
