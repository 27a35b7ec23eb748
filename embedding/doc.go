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


// Package embedding provides abstractions for the embedding collaborator:
// services that turn batches of chunk texts into fixed-dimension vectors.
//
// The package defines the Embedder interface plus a Registry that resolves
// named providers at request time, so a deployment can serve several
// embedding backends side by side and pick one per search or ingestion.
//
// # Implementation Packages
//
//   - embedding/openai: OpenAI-compatible APIs via langchaingo
//   - embedding/rest:   bearer-token JSON endpoints (self-hosted models)
//   - embedding/mock:   deterministic test doubles
//
// # Error Contract
//
// Implementations classify failures into three sentinel kinds so callers
// can decide between backing off, rejecting the input, and failing over:
//
//   - ErrRateLimited: the provider pushed back, retry later
//   - ErrInvalidInput: the text is unusable, retrying is pointless
//   - ErrUnavailable: transport or server failure, the provider is down
//
// Returned vector batches are always aligned with the input texts: same
// length, same order.
package embedding
