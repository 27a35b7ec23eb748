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


package server

import (
	"time"

	"github.com/quillworks/docpipe/core"
)

// documentResponse is the wire form of a stored document. Raw content
// is never returned over the API.
type documentResponse struct {
	Id          string            `json:"id"`
	Filename    string            `json:"filename"`
	MediaType   string            `json:"media_type"`
	ContentSize int64             `json:"content_size"`
	Status      string            `json:"status"`
	Error       string            `json:"error,omitempty"`
	Provider    string            `json:"provider,omitempty"`
	Model       string            `json:"model,omitempty"`
	ChunkCount  int               `json:"chunk_count"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	ConvertedAt *time.Time        `json:"converted_at,omitempty"`
	IndexedAt   *time.Time        `json:"indexed_at,omitempty"`
}

func newDocumentResponse(doc *core.Document) documentResponse {
	return documentResponse{
		Id:          doc.Id,
		Filename:    doc.Filename,
		MediaType:   doc.MediaType,
		ContentSize: doc.ContentSize,
		Status:      string(doc.Status),
		Error:       doc.Error,
		Provider:    doc.Provider,
		Model:       doc.Model,
		ChunkCount:  doc.ChunkCount,
		Metadata:    doc.Metadata,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
		ConvertedAt: timeOrNil(doc.ConvertedAt),
		IndexedAt:   timeOrNil(doc.IndexedAt),
	}
}

type statusResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type chunkResponse struct {
	Id         string `json:"id"`
	DocumentId string `json:"document_id"`
	Sequence   int    `json:"sequence"`
	Text       string `json:"text"`
	StartBlock int    `json:"start_block"`
	StartChar  int    `json:"start_char"`
	EndChar    int    `json:"end_char"`
}

func newChunkResponse(c core.Chunk) chunkResponse {
	return chunkResponse{
		Id:         c.Id,
		DocumentId: c.DocumentId,
		Sequence:   c.Sequence,
		Text:       c.Text,
		StartBlock: c.StartBlock,
		StartChar:  c.StartChar,
		EndChar:    c.EndChar,
	}
}

type chunksResponse struct {
	DocumentId string          `json:"document_id"`
	Chunks     []chunkResponse `json:"chunks"`
}

type embeddingResponse struct {
	ChunkId    string    `json:"chunk_id"`
	Provider   string    `json:"provider"`
	Model      string    `json:"model"`
	Dimensions int       `json:"dimensions"`
	Vector     []float32 `json:"vector,omitempty"`
}

func newEmbeddingResponse(e core.Embedding, includeVector bool) embeddingResponse {
	resp := embeddingResponse{
		ChunkId:    e.ChunkId,
		Provider:   e.Provider,
		Model:      e.Model,
		Dimensions: len(e.Vector),
	}
	if includeVector {
		resp.Vector = e.Vector
	}
	return resp
}

type embeddingsResponse struct {
	DocumentId string              `json:"document_id"`
	Embeddings []embeddingResponse `json:"embeddings"`
}

type jobResponse struct {
	Id          string     `json:"id"`
	DocumentId  string     `json:"document_id,omitempty"`
	Type        string     `json:"type"`
	Status      string     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Progress    int        `json:"progress"`
	Total       int        `json:"total"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

func newJobResponse(j *core.Job) jobResponse {
	return jobResponse{
		Id:          j.Id,
		DocumentId:  j.DocumentId,
		Type:        string(j.Type),
		Status:      string(j.Status),
		Error:       j.Error,
		Progress:    j.Progress,
		Total:       j.Total,
		CreatedAt:   j.CreatedAt,
		StartedAt:   timeOrNil(j.StartedAt),
		CompletedAt: timeOrNil(j.CompletedAt),
	}
}

type jobsResponse struct {
	DocumentId string        `json:"document_id"`
	Jobs       []jobResponse `json:"jobs"`
}

type searchRequest struct {
	Query    string            `json:"query"`
	Provider string            `json:"provider,omitempty"`
	K        int               `json:"k,omitempty"`
	Filter   map[string]string `json:"filter,omitempty"`
}

type searchResultResponse struct {
	DocumentId string            `json:"document_id"`
	ChunkId    string            `json:"chunk_id"`
	Sequence   int               `json:"sequence"`
	Score      float32           `json:"score"`
	Text       string            `json:"text"`
	Filename   string            `json:"filename"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

func newSearchResultResponse(res core.SearchResult) searchResultResponse {
	return searchResultResponse{
		DocumentId: res.DocumentId,
		ChunkId:    res.ChunkId,
		Sequence:   res.Sequence,
		Score:      res.Score,
		Text:       res.Text,
		Filename:   res.Filename,
		Metadata:   res.Metadata,
	}
}

type searchResponse struct {
	Results []searchResultResponse `json:"results"`
}

type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components"`
	Documents  int               `json:"documents"`
}

// timeOrNil elides zero times from JSON output.
func timeOrNil(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
