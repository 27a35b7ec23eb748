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


// Package vector defines the similarity index collaborator: the store that
// holds chunk vectors and answers nearest-neighbor queries.
//
// Implementations live in subpackages: vector/elastic speaks to an
// Elasticsearch dense_vector index, vector/memory keeps everything
// in-process for tests and small deployments.
package vector

import (
	"context"
	"errors"
)

// ErrUnavailable indicates the index cannot be reached or failed
// server-side. Queries and writes may succeed later.
var ErrUnavailable = errors.New("vector index unavailable")

// Entry is one chunk vector to be indexed.
type Entry struct {
	// ChunkID identifies the owning chunk.
	ChunkID string

	// Sequence is the chunk's position within its document, used for
	// deterministic tie-breaking.
	Sequence int

	// Provider names the embedding provider the vector came from.
	// Queries match vectors of one provider only.
	Provider string

	// Vector is the embedding itself.
	Vector []float32

	// Metadata is carried into hits and can be filtered on.
	Metadata map[string]string
}

// Hit is one query result.
type Hit struct {
	DocumentID string
	ChunkID    string
	Sequence   int
	Score      float32
	Metadata   map[string]string
}

// Filter restricts a query.
type Filter struct {
	// Provider restricts hits to vectors from one embedding provider.
	Provider string

	// Metadata entries must all match exactly.
	Metadata map[string]string
}

// Index stores chunk vectors grouped by document and answers similarity
// queries. Implementations must be safe for concurrent use.
type Index interface {
	// Upsert replaces all vectors of one document with entries. The
	// replacement is never observed partially: a concurrent Query sees
	// either the old vector set or the new one. An empty entries slice
	// just removes the document's vectors.
	Upsert(ctx context.Context, documentID string, entries []Entry) error

	// Query returns up to k hits most similar to vector, restricted by
	// filter, ordered by descending score with ties broken by ascending
	// chunk sequence.
	Query(ctx context.Context, vector []float32, k int, filter Filter) ([]Hit, error)

	// DeleteDocument removes all vectors of one document. Removing an
	// unknown document is not an error.
	DeleteDocument(ctx context.Context, documentID string) error

	// Close releases resources held by the index client.
	Close() error
}
