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

package cache

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"

	"github.com/quillworks/docpipe/core"
)

// SearchCache holds recent search results keyed by the full query shape:
// provider, model, query text, result count and metadata filter. Entries
// expire after a short TTL and the whole cache is cleared whenever the
// index changes, so stale result lists never outlive an upsert.
type SearchCache struct {
	store *ristretto.Cache[string, []core.SearchResult]
	ttl   time.Duration
}

// NewSearchCache creates a search cache holding up to maxEntries result
// lists, each expiring after ttl.
func NewSearchCache(maxEntries int64, ttl time.Duration) (*SearchCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", maxEntries)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, []core.SearchResult]{
		NumCounters: maxEntries * countersPerEntry,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache store: %w", err)
	}

	return &SearchCache{store: store, ttl: ttl}, nil
}

// SearchKey builds the canonical cache key for one query. Filter entries
// are folded in sorted order so equal filters always produce equal keys.
func SearchKey(provider, model, query string, k int, filter map[string]string) string {
	var sb strings.Builder
	sb.WriteString(provider)
	sb.WriteByte('|')
	sb.WriteString(model)
	sb.WriteByte('|')
	sb.WriteString(query)
	fmt.Fprintf(&sb, "|%d", k)

	if len(filter) > 0 {
		names := make([]string, 0, len(filter))
		for name := range filter {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sb.WriteByte('|')
			sb.WriteString(name)
			sb.WriteByte('=')
			sb.WriteString(filter[name])
		}
	}

	return fmt.Sprintf("search:%x", uint64(core.IDFromContent(sb.String())))
}

// Get returns the cached results for key, if present.
func (c *SearchCache) Get(key string) ([]core.SearchResult, bool) {
	return c.store.Get(key)
}

// Store inserts a result list under key.
func (c *SearchCache) Store(key string, results []core.SearchResult) {
	c.store.SetWithTTL(key, results, 1, c.ttl)
}

// Clear drops every cached result list. Called after any index mutation.
func (c *SearchCache) Clear() {
	c.store.Clear()
}

// Wait blocks until pending store writes are applied. Intended for tests.
func (c *SearchCache) Wait() {
	c.store.Wait()
}

// Close releases the underlying store.
func (c *SearchCache) Close() {
	c.store.Close()
}
