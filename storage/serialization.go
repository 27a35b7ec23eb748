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


package storage

import (
	"github.com/quillworks/docpipe/core"
)

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, core.IDMUS.Size(id))
	core.IDMUS.Marshal(id, buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := core.IDMUS.Unmarshal(data)
	return id, err
}

// MarshalDocument serializes a Document to bytes.
func MarshalDocument(doc *core.Document) []byte {
	buf := make([]byte, core.DocumentMUS.Size(*doc))
	core.DocumentMUS.Marshal(*doc, buf)
	return buf
}

// UnmarshalDocument deserializes a Document from bytes.
func UnmarshalDocument(data []byte) (*core.Document, error) {
	doc, _, err := core.DocumentMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// MarshalBlocks serializes a block slice to bytes.
func MarshalBlocks(blocks []core.Block) []byte {
	buf := make([]byte, core.BlocksMUS.Size(blocks))
	core.BlocksMUS.Marshal(blocks, buf)
	return buf
}

// UnmarshalBlocks deserializes a block slice from bytes.
func UnmarshalBlocks(data []byte) ([]core.Block, error) {
	blocks, _, err := core.BlocksMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return blocks, nil
}

// MarshalChunks serializes a chunk slice to bytes.
func MarshalChunks(chunks []core.Chunk) []byte {
	buf := make([]byte, core.ChunksMUS.Size(chunks))
	core.ChunksMUS.Marshal(chunks, buf)
	return buf
}

// UnmarshalChunks deserializes a chunk slice from bytes.
func UnmarshalChunks(data []byte) ([]core.Chunk, error) {
	chunks, _, err := core.ChunksMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return chunks, nil
}

// MarshalEmbeddings serializes an embedding slice to bytes.
func MarshalEmbeddings(embeddings []core.Embedding) []byte {
	buf := make([]byte, core.EmbeddingsMUS.Size(embeddings))
	core.EmbeddingsMUS.Marshal(embeddings, buf)
	return buf
}

// UnmarshalEmbeddings deserializes an embedding slice from bytes.
func UnmarshalEmbeddings(data []byte) ([]core.Embedding, error) {
	embeddings, _, err := core.EmbeddingsMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

// MarshalJob serializes a Job to bytes.
func MarshalJob(job *core.Job) []byte {
	buf := make([]byte, core.JobMUS.Size(*job))
	core.JobMUS.Marshal(*job, buf)
	return buf
}

// UnmarshalJob deserializes a Job from bytes.
func UnmarshalJob(data []byte) (*core.Job, error) {
	job, _, err := core.JobMUS.Unmarshal(data)
	if err != nil {
		return nil, err
	}
	return &job, nil
}
