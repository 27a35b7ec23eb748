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


package ingestion

import (
	"context"
	"sync"
)

// documentLocks serializes work per document id. Lock entries are created
// on demand and removed once no goroutine holds or waits on them, so the
// map stays proportional to the number of active documents.
type documentLocks struct {
	mu    sync.Mutex
	locks map[string]*docLock
}

// docLock is one per-document lock. The channel has capacity one; a
// goroutine holds the lock while its token sits in the channel. refs
// counts holders plus waiters and guards removal from the map.
type docLock struct {
	ch   chan struct{}
	refs int
}

func newDocumentLocks() *documentLocks {
	return &documentLocks{locks: make(map[string]*docLock)}
}

// acquire blocks until the lock for id is held or ctx ends. The returned
// release function must be called exactly once.
func (d *documentLocks) acquire(ctx context.Context, id string) (func(), error) {
	l := d.ref(id)

	select {
	case l.ch <- struct{}{}:
		return func() { d.release(id, l) }, nil
	case <-ctx.Done():
		d.unref(id, l)
		return nil, ctx.Err()
	}
}

// tryAcquire takes the lock for id only if it is immediately free.
func (d *documentLocks) tryAcquire(id string) (func(), bool) {
	l := d.ref(id)

	select {
	case l.ch <- struct{}{}:
		return func() { d.release(id, l) }, true
	default:
		d.unref(id, l)
		return nil, false
	}
}

func (d *documentLocks) ref(id string) *docLock {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.locks[id]
	if !ok {
		l = &docLock{ch: make(chan struct{}, 1)}
		d.locks[id] = l
	}
	l.refs++
	return l
}

func (d *documentLocks) release(id string, l *docLock) {
	<-l.ch
	d.unref(id, l)
}

func (d *documentLocks) unref(id string, l *docLock) {
	d.mu.Lock()
	defer d.mu.Unlock()

	l.refs--
	if l.refs == 0 {
		delete(d.locks, id)
	}
}
