package cache

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

const (
	// countersPerEntry oversizes ristretto's frequency sketch relative to
	// capacity, per the ristretto sizing guidance.
	countersPerEntry = 10

	defaultBatchSize = 50
)

// ComputeFunc produces one vector for one text.
type ComputeFunc func(ctx context.Context) ([]float32, error)

// BatchComputeFunc produces one vector per input text, in input order.
type BatchComputeFunc func(ctx context.Context, texts []string) ([][]float32, error)

// EmbeddingCache is a bounded, TTL-limited store of computed vectors with
// per-key compute coalescing: at most one compute runs for a key at a time,
// concurrent requesters wait for the winner's result, and a failed compute
// leaves no entry behind.
type EmbeddingCache struct {
	store     *ristretto.Cache[string, []float32]
	ttl       time.Duration
	batchSize int
	logger    *slog.Logger
	onLookup  func(hit bool)

	mu       sync.Mutex
	inflight map[string]*computeCall
}

// computeCall is one in-progress compute. done is closed after vec/err are
// set, never before.
type computeCall struct {
	done chan struct{}
	vec  []float32
	err  error
}

// EmbeddingCacheOption configures an EmbeddingCache.
type EmbeddingCacheOption func(*EmbeddingCache) error

// WithEmbeddingLogger sets the logger used for cache diagnostics.
func WithEmbeddingLogger(logger *slog.Logger) EmbeddingCacheOption {
	return func(c *EmbeddingCache) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		c.logger = logger
		return nil
	}
}

// WithBatchSize caps how many texts a single compute call receives.
func WithBatchSize(n int) EmbeddingCacheOption {
	return func(c *EmbeddingCache) error {
		if n <= 0 {
			return fmt.Errorf("batch size must be positive, got %d", n)
		}
		c.batchSize = n
		return nil
	}
}

// WithLookupFunc registers a callback invoked on every cache lookup.
// Used to feed hit/miss metrics.
func WithLookupFunc(fn func(hit bool)) EmbeddingCacheOption {
	return func(c *EmbeddingCache) error {
		c.onLookup = fn
		return nil
	}
}

// NewEmbeddingCache creates an embedding cache holding up to maxEntries
// vectors, each expiring after ttl.
func NewEmbeddingCache(maxEntries int64, ttl time.Duration, opts ...EmbeddingCacheOption) (*EmbeddingCache, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("max entries must be positive, got %d", maxEntries)
	}
	if ttl <= 0 {
		return nil, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	store, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: maxEntries * countersPerEntry,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating cache store: %w", err)
	}

	c := &EmbeddingCache{
		store:     store,
		ttl:       ttl,
		batchSize: defaultBatchSize,
		logger:    slog.Default(),
		inflight:  make(map[string]*computeCall),
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			store.Close()
			return nil, err
		}
	}

	c.logger = c.logger.With("component", "embedding_cache")
	return c, nil
}

// Get returns the cached vector for key, if present.
func (c *EmbeddingCache) Get(key Key) ([]float32, bool) {
	vec, ok := c.store.Get(key.String())
	if c.onLookup != nil {
		c.onLookup(ok)
	}
	return vec, ok
}

// Store inserts a vector. Admission may drop the entry under pressure.
func (c *EmbeddingCache) Store(key Key, vec []float32) {
	c.store.SetWithTTL(key.String(), vec, 1, c.ttl)
}

// GetOrCompute returns the cached vector for key, computing it on a miss.
// Concurrent callers with the same key share one compute: the first caller
// runs compute, the rest wait and receive the winner's vector or error.
func (c *EmbeddingCache) GetOrCompute(ctx context.Context, key Key, compute ComputeFunc) ([]float32, error) {
	if vec, ok := c.Get(key); ok {
		return vec, nil
	}

	k := key.String()

	c.mu.Lock()
	if call, ok := c.inflight[k]; ok {
		c.mu.Unlock()
		return c.await(ctx, call)
	}
	call := &computeCall{done: make(chan struct{})}
	c.inflight[k] = call
	c.mu.Unlock()

	vec, err := compute(ctx)
	if err == nil {
		c.store.SetWithTTL(k, vec, 1, c.ttl)
	} else {
		c.logger.Debug("compute failed, nothing cached", "key", k, "err", err)
	}
	c.publish(k, call, vec, err)

	return vec, err
}

// GetOrComputeBatch resolves a batch of keys in input order. Hits come from
// the store; misses are claimed and computed in sub-batches of at most the
// configured batch size, one compute call per sub-batch. Keys already being
// computed by another caller are awaited rather than recomputed.
func (c *EmbeddingCache) GetOrComputeBatch(ctx context.Context, keys []Key, texts []string, compute BatchComputeFunc) ([][]float32, error) {
	if len(keys) != len(texts) {
		return nil, ErrMismatchedInput
	}

	results := make([][]float32, len(keys))

	// Claim phase: every miss becomes either owned (we compute it) or
	// awaited (another caller is computing it).
	var owned []int
	type pending struct {
		idx  int
		call *computeCall
	}
	var awaited []pending
	claimed := make(map[string]*computeCall)

	for i, key := range keys {
		if vec, ok := c.Get(key); ok {
			results[i] = vec
			continue
		}
		k := key.String()

		if call, ok := claimed[k]; ok {
			// Duplicate text within this batch; we already own its call.
			awaited = append(awaited, pending{idx: i, call: call})
			continue
		}

		c.mu.Lock()
		if call, ok := c.inflight[k]; ok {
			c.mu.Unlock()
			awaited = append(awaited, pending{idx: i, call: call})
			continue
		}
		call := &computeCall{done: make(chan struct{})}
		c.inflight[k] = call
		c.mu.Unlock()

		claimed[k] = call
		owned = append(owned, i)
	}

	// Compute phase: owned keys in sub-batches, publishing as we go so
	// other callers (and our own await phase) unblock promptly.
	for start := 0; start < len(owned); start += c.batchSize {
		end := min(start+c.batchSize, len(owned))
		batch := owned[start:end]

		batchTexts := make([]string, len(batch))
		for j, idx := range batch {
			batchTexts[j] = texts[idx]
		}

		vecs, err := compute(ctx, batchTexts)
		if err == nil && len(vecs) != len(batchTexts) {
			err = fmt.Errorf("%w: got %d for %d texts", ErrVectorCountMismatch, len(vecs), len(batchTexts))
		}
		if err != nil {
			// Unblock everything we claimed, including sub-batches that
			// never ran, then fail the whole batch.
			for _, idx := range owned[start:] {
				k := keys[idx].String()
				c.publish(k, claimed[k], nil, err)
			}
			return nil, err
		}

		for j, idx := range batch {
			k := keys[idx].String()
			results[idx] = vecs[j]
			c.store.SetWithTTL(k, vecs[j], 1, c.ttl)
			c.publish(k, claimed[k], vecs[j], nil)
		}
	}

	// Await phase: runs after our own publishes, so two callers holding
	// disjoint claims can never deadlock on each other.
	for _, p := range awaited {
		vec, err := c.await(ctx, p.call)
		if err != nil {
			return nil, err
		}
		results[p.idx] = vec
	}

	return results, nil
}

// Wait blocks until pending store writes are applied. Intended for tests.
func (c *EmbeddingCache) Wait() {
	c.store.Wait()
}

// Clear drops every cached vector. In-flight computes are unaffected.
func (c *EmbeddingCache) Clear() {
	c.store.Clear()
}

// Close releases the underlying store.
func (c *EmbeddingCache) Close() {
	c.store.Close()
}

// publish resolves an in-flight compute: removes the claim and releases
// waiters with the result. Fields are set before done is closed.
func (c *EmbeddingCache) publish(k string, call *computeCall, vec []float32, err error) {
	call.vec = vec
	call.err = err
	c.mu.Lock()
	delete(c.inflight, k)
	c.mu.Unlock()
	close(call.done)
}

// await blocks until a compute finishes or the caller's context ends.
func (c *EmbeddingCache) await(ctx context.Context, call *computeCall) ([]float32, error) {
	select {
	case <-call.done:
		return call.vec, call.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
