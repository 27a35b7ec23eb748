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

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// maxErrorBody caps how much of an error response is read back.
const maxErrorBody = 8 << 10

// apiClient talks to a running server over its HTTP API.
type apiClient struct {
	base   string
	client *http.Client
}

func newAPIClient(base string) *apiClient {
	return &apiClient{
		base:   strings.TrimRight(base, "/"),
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// Wire shapes for the slice of the API the CLI uses.

type documentPayload struct {
	Id         string `json:"id"`
	Filename   string `json:"filename"`
	MediaType  string `json:"media_type"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	ChunkCount int    `json:"chunk_count"`
}

type statusPayload struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type processPayload struct {
	Id     string `json:"id"`
	Status string `json:"status"`
}

type searchPayload struct {
	Query    string            `json:"query"`
	Provider string            `json:"provider,omitempty"`
	K        int               `json:"k,omitempty"`
	Filter   map[string]string `json:"filter,omitempty"`
}

type searchHitPayload struct {
	DocumentId string  `json:"document_id"`
	ChunkId    string  `json:"chunk_id"`
	Score      float32 `json:"score"`
	Text       string  `json:"text"`
	Filename   string  `json:"filename"`
}

type searchResultsPayload struct {
	Results []searchHitPayload `json:"results"`
}

// upload posts the file at path as a multipart form. metadata, when not
// empty, must be a JSON object of string values.
func (c *apiClient) upload(ctx context.Context, path, metadata string) (*documentPayload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := form.WriteField("metadata", metadata); err != nil {
			return nil, err
		}
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/api/v1/documents", &body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var doc documentPayload
	if err := c.do(req, http.StatusAccepted, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

func (c *apiClient) status(ctx context.Context, id string) (*statusPayload, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.base+"/api/v1/documents/"+id+"/status", nil)
	if err != nil {
		return nil, err
	}

	var st statusPayload
	if err := c.do(req, http.StatusOK, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *apiClient) process(ctx context.Context, id string, force bool) (*processPayload, error) {
	url := c.base + "/api/v1/documents/" + id + "/process"
	if force {
		url += "?force=true"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return nil, err
	}

	var resp processPayload
	if err := c.do(req, http.StatusAccepted, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) search(ctx context.Context, query searchPayload) (*searchResultsPayload, error) {
	data, err := json.Marshal(query)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/api/v1/search", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	var resp searchResultsPayload
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// do sends the request and decodes the body into out. Any status other
// than want becomes an error carrying the server's message.
func (c *apiClient) do(req *http.Request, want int, out any) error {
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != want {
		return apiError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

func apiError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return fmt.Errorf("server returned %s: %s", resp.Status, payload.Error)
	}
	return fmt.Errorf("server returned %s", resp.Status)
}
