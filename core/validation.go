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


package core

import "fmt"

// ValidateDocument validates a Document according to domain rules.
//
// Validation rules:
//   - Id must not be empty
//   - Filename must not be empty
//   - Status must be a known value
//
// NOT validated (populated by the pipeline):
//   - ChunkCount, Provider, Model (set as stages complete)
//   - Error (set only on failure)
func ValidateDocument(doc *Document) error {
	if doc == nil {
		return fmt.Errorf("%w: document is nil", ErrInvalidDocument)
	}

	if doc.Id == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyDocumentID)
	}

	if doc.Filename == "" {
		return fmt.Errorf("%w: %w", ErrInvalidDocument, ErrEmptyFilename)
	}

	if !doc.Status.Valid() {
		return fmt.Errorf("%w: %w: %q", ErrInvalidDocument, ErrInvalidStatus, doc.Status)
	}

	return nil
}

// ValidateChunk validates a Chunk according to domain rules.
//
// Validation rules:
//   - Id and DocumentId must not be empty
//   - Sequence must not be negative
//   - Id must be the deterministic id for (DocumentId, Sequence)
func ValidateChunk(chunk *Chunk) error {
	if chunk == nil {
		return fmt.Errorf("%w: chunk is nil", ErrInvalidChunk)
	}

	if chunk.DocumentId == "" {
		return fmt.Errorf("%w: %w", ErrInvalidChunk, ErrEmptyDocumentID)
	}

	if chunk.Sequence < 0 {
		return fmt.Errorf("%w: negative sequence %d", ErrInvalidChunk, chunk.Sequence)
	}

	if chunk.Id != ChunkID(chunk.DocumentId, chunk.Sequence) {
		return fmt.Errorf("%w: id %q does not match document %q sequence %d",
			ErrInvalidChunk, chunk.Id, chunk.DocumentId, chunk.Sequence)
	}

	return nil
}
