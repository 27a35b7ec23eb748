// Package memory is an in-process vector.Index using brute-force cosine
// similarity. It backs tests and single-node deployments that do not want
// an external search engine.
package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/quillworks/docpipe/vector"
)

// Index holds vectors grouped by document. A document's vector set is
// swapped in one step under the lock, so queries never observe a partial
// replacement. Safe for concurrent use.
type Index struct {
	dimensions int

	mu   sync.RWMutex
	docs map[string][]vector.Entry
}

// NewIndex creates an empty index. Vectors must all have the given length.
func NewIndex(dimensions int) (*Index, error) {
	if dimensions <= 0 {
		return nil, fmt.Errorf("memory: dimensions must be positive, got %d", dimensions)
	}
	return &Index{
		dimensions: dimensions,
		docs:       make(map[string][]vector.Entry),
	}, nil
}

// Upsert replaces all vectors of one document.
func (x *Index) Upsert(ctx context.Context, documentID string, entries []vector.Entry) error {
	if documentID == "" {
		return fmt.Errorf("memory: document id is required")
	}
	for i, e := range entries {
		if len(e.Vector) != x.dimensions {
			return fmt.Errorf("memory: entry %d has %d dimensions, want %d", i, len(e.Vector), x.dimensions)
		}
	}

	// Build the replacement before taking the lock; the swap itself is
	// a single map assignment.
	replacement := make([]vector.Entry, len(entries))
	copy(replacement, entries)

	x.mu.Lock()
	defer x.mu.Unlock()
	if len(replacement) == 0 {
		delete(x.docs, documentID)
		return nil
	}
	x.docs[documentID] = replacement
	return nil
}

// Query scans every stored vector and returns the k best cosine matches.
func (x *Index) Query(ctx context.Context, queryVector []float32, k int, filter vector.Filter) ([]vector.Hit, error) {
	if len(queryVector) != x.dimensions {
		return nil, fmt.Errorf("memory: query vector has %d dimensions, want %d", len(queryVector), x.dimensions)
	}
	if k <= 0 {
		return nil, fmt.Errorf("memory: k must be positive, got %d", k)
	}

	x.mu.RLock()
	defer x.mu.RUnlock()

	var hits []vector.Hit
	for documentID, entries := range x.docs {
		for _, e := range entries {
			if !matches(e, filter) {
				continue
			}
			hits = append(hits, vector.Hit{
				DocumentID: documentID,
				ChunkID:    e.ChunkID,
				Sequence:   e.Sequence,
				Score:      cosine(queryVector, e.Vector),
				Metadata:   e.Metadata,
			})
		}
	}

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		if hits[i].Sequence != hits[j].Sequence {
			return hits[i].Sequence < hits[j].Sequence
		}
		// Last resort so equal-score, equal-sequence hits from different
		// documents still order deterministically.
		return strings.Compare(hits[i].ChunkID, hits[j].ChunkID) < 0
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// DeleteDocument removes all vectors of one document.
func (x *Index) DeleteDocument(ctx context.Context, documentID string) error {
	x.mu.Lock()
	defer x.mu.Unlock()
	delete(x.docs, documentID)
	return nil
}

// Close is a no-op for the in-process index.
func (x *Index) Close() error {
	return nil
}

// Len reports how many vectors are stored. Intended for tests.
func (x *Index) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	total := 0
	for _, entries := range x.docs {
		total += len(entries)
	}
	return total
}

func matches(e vector.Entry, filter vector.Filter) bool {
	if filter.Provider != "" && e.Provider != filter.Provider {
		return false
	}
	for key, want := range filter.Metadata {
		if e.Metadata[key] != want {
			return false
		}
	}
	return true
}

// cosine computes cosine similarity. A zero vector on either side scores 0.
func cosine(a, b []float32) float32 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
