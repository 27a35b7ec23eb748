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


// Package cache provides the content-addressed embedding cache and the
// search-result cache.
//
// The embedding cache keys vectors by (provider, model, content hash), so
// identical chunk text embeds once per provider and model across documents
// and across reprocessing runs. Concurrent requests for the same missing
// key coalesce: exactly one compute runs, waiters share its result, and a
// failed compute stores nothing.
//
// The search cache keys ranked result lists by a digest of the full query
// shape. It is invalidated whenever a document's vectors are replaced, so
// cached results never mix pre- and post-upsert index state.
//
// Both caches are bounded (entry count) and TTL-limited, backed by
// ristretto. Admission is probabilistic: a stored entry may be dropped
// under pressure, which only costs a recompute later.
package cache
