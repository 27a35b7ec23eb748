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


// Package search answers text queries against the vector index.
//
// The Searcher embeds the query text (through the shared embedding
// cache), runs a similarity query against the index, and joins the hits
// with stored chunk and document fields. Repeated queries are served
// from a TTL-bound result cache that is cleared whenever the index
// changes.
//
// Results are ordered by descending score; equal scores are broken by
// ascending chunk sequence for determinism.
package search
