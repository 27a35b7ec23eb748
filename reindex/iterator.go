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


package reindex

import (
	"context"

	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/storage"
)

const (
	// DefaultBatchSize is the default number of documents to fetch in each page
	DefaultBatchSize = 100
)

// DocumentIterator iterates over all stored documents in pages.
type DocumentIterator struct {
	repo      storage.DocumentRepository
	batchSize int
}

// NewDocumentIterator creates a new document iterator.
// batchSize: number of documents to fetch in each page (must be > 0)
func NewDocumentIterator(repo storage.DocumentRepository, batchSize int) *DocumentIterator {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}

	return &DocumentIterator{
		repo:      repo,
		batchSize: batchSize,
	}
}

// ForEach iterates over all documents, calling fn for each page.
// Iteration stops on first error from fn or when all documents are seen.
// Context cancellation is checked between pages.
//
// Pages follow creation order, so documents updated mid-run keep their
// page position and are visited exactly once.
func (it *DocumentIterator) ForEach(ctx context.Context, fn func([]*core.Document) error) error {
	// Check context before starting
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	for offset := 0; ; offset += it.batchSize {
		docs, err := it.repo.ListDocuments(ctx, it.batchSize, offset)
		if err != nil {
			return err
		}
		if len(docs) == 0 {
			return nil
		}

		// Call user function with page
		if err := fn(docs); err != nil {
			return err
		}

		// Check context after each page
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if len(docs) < it.batchSize {
			return nil
		}
	}
}
