package badger

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/storage"
)

// DocumentRepository implements storage.DocumentRepository for BadgerDB.
type DocumentRepository struct {
	backend *Backend
}

var _ storage.DocumentRepository = (*DocumentRepository)(nil)

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository(backend *Backend) (*DocumentRepository, error) {
	return &DocumentRepository{
		backend: backend,
	}, nil
}

// Close releases resources. DocumentRepository has no resources of its own;
// the owner closes the backend.
func (r *DocumentRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *DocumentRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddDocument stores a new document record.
func (r *DocumentRepository) AddDocument(ctx context.Context, doc *core.Document) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.Id)

		existing, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			return storage.ErrDuplicateKey
		}

		now := time.Now().UTC()
		if doc.CreatedAt.IsZero() {
			doc.CreatedAt = now
		}
		doc.UpdatedAt = now

		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}

		// Creation-time index
		if err := tx.Set(makeDocCreatedKey(doc.CreatedAt, doc.Id), []byte(doc.Id)); err != nil {
			return err
		}

		// Status index
		if err := tx.Set(makeDocStatusKey(doc.Status, doc.CreatedAt, doc.Id), []byte(doc.Id)); err != nil {
			return err
		}

		return tx.Commit()
	}, true)
}

// UpdateDocument replaces an existing document record.
func (r *DocumentRepository) UpdateDocument(ctx context.Context, doc *core.Document) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(doc.Id)

		old, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		// CreatedAt is immutable once stored; the indexes key on it.
		doc.CreatedAt = old.CreatedAt
		doc.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}

		if old.Status != doc.Status {
			if err := tx.Delete(makeDocStatusKey(old.Status, old.CreatedAt, old.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeDocStatusKey(doc.Status, doc.CreatedAt, doc.Id), []byte(doc.Id)); err != nil {
				return err
			}
		}

		return tx.Commit()
	}, true)
}

// UpdateStatus transitions a document's status in a single transaction.
func (r *DocumentRepository) UpdateStatus(ctx context.Context, id string, status core.ProcessingStatus, detail string) (*core.Document, error) {
	var updated *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)

		doc, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		oldStatus := doc.Status
		doc.Status = status
		doc.Error = detail
		doc.UpdatedAt = time.Now().UTC()

		if err := tx.Set(key, storage.MarshalDocument(doc)); err != nil {
			return err
		}

		if oldStatus != status {
			if err := tx.Delete(makeDocStatusKey(oldStatus, doc.CreatedAt, doc.Id)); err != nil {
				return err
			}
			if err := tx.Set(makeDocStatusKey(status, doc.CreatedAt, doc.Id), []byte(doc.Id)); err != nil {
				return err
			}
		}

		updated = doc
		return tx.Commit()
	}, true)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// GetDocument retrieves a single document by id.
func (r *DocumentRepository) GetDocument(ctx context.Context, id string) (*core.Document, error) {
	var result *core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readDocument(tx, makeDocumentKey(id))
		if err != nil {
			return err
		}
		if result == nil {
			return storage.ErrNotFound
		}
		return nil
	}, false)
	return result, err
}

// DeleteDocument removes a document and all of its stored artifacts.
func (r *DocumentRepository) DeleteDocument(ctx context.Context, id string) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeDocumentKey(id)

		doc, err := r.readDocument(tx, key)
		if err != nil {
			return err
		}
		if doc == nil {
			return storage.ErrNotFound
		}

		keys := [][]byte{
			makeDocCreatedKey(doc.CreatedAt, doc.Id),
			makeDocStatusKey(doc.Status, doc.CreatedAt, doc.Id),
			makeContentKey(id),
			makeBlocksKey(id),
			makeChunksKey(id),
			makeEmbeddingsKey(id),
			key,
		}
		for _, k := range keys {
			if err := tx.Delete(k); err != nil {
				return err
			}
		}

		return tx.Commit()
	}, true)
}

// ListDocuments retrieves documents ordered by creation time descending.
func (r *DocumentRepository) ListDocuments(ctx context.Context, limit, offset int) ([]*core.Document, error) {
	if limit <= 0 || offset < 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the newest possible index entry, then walk backwards.
		startKey := makePartialDocCreatedKey(time.Date(9999, 12, 31, 23, 59, 59, 999999999, time.UTC))
		prefix := []byte(docCreatedPrefix + ":")

		skipped := 0
		for iter.Seek(startKey); iter.Valid() && len(results) < limit; iter.Next() {
			key := iter.Item().Key()
			if !bytes.HasPrefix(key, prefix) {
				break
			}
			if skipped < offset {
				skipped++
				continue
			}

			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			doc, err := r.readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if doc != nil {
				results = append(results, doc)
			}
		}
		return nil
	}, false)

	return results, err
}

// GetDocumentsByStatus retrieves up to limit documents in the given status,
// ordered by creation time ascending.
func (r *DocumentRepository) GetDocumentsByStatus(ctx context.Context, status core.ProcessingStatus, limit int) ([]*core.Document, error) {
	if limit <= 0 {
		return nil, storage.ErrInvalidQuery
	}

	var results []*core.Document
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialDocStatusKey(status)
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix

		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid() && len(results) < limit; iter.Next() {
			var id string
			if err := iter.Item().Value(func(val []byte) error {
				id = string(val)
				return nil
			}); err != nil {
				return err
			}

			doc, err := r.readDocument(tx, makeDocumentKey(id))
			if err != nil {
				return err
			}
			if doc != nil {
				results = append(results, doc)
			}
		}
		return nil
	}, false)

	return results, err
}

// CountDocuments returns the number of stored documents.
func (r *DocumentRepository) CountDocuments(ctx context.Context) (int, error) {
	count := 0
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(docCreatedPrefix + ":")
		opts.PrefetchValues = false

		iter := tx.NewIterator(opts)
		defer iter.Close()

		for iter.Rewind(); iter.Valid(); iter.Next() {
			count++
		}
		return nil
	}, false)
	return count, err
}

// SetContent stores the raw uploaded bytes for a document.
func (r *DocumentRepository) SetContent(ctx context.Context, id string, content []byte) error {
	return r.setArtifact(makeContentKey(id), content)
}

// GetContent retrieves the raw uploaded bytes.
func (r *DocumentRepository) GetContent(ctx context.Context, id string) ([]byte, error) {
	var content []byte
	err := r.getArtifact(makeContentKey(id), func(val []byte) error {
		content = append([]byte(nil), val...)
		return nil
	})
	return content, err
}

// SetBlocks stores the conversion output for a document.
func (r *DocumentRepository) SetBlocks(ctx context.Context, id string, blocks []core.Block) error {
	return r.setArtifact(makeBlocksKey(id), storage.MarshalBlocks(blocks))
}

// GetBlocks retrieves the stored conversion output.
func (r *DocumentRepository) GetBlocks(ctx context.Context, id string) ([]core.Block, error) {
	var blocks []core.Block
	err := r.getArtifact(makeBlocksKey(id), func(val []byte) error {
		var err error
		blocks, err = storage.UnmarshalBlocks(val)
		return err
	})
	return blocks, err
}

// SetChunks stores the chunking output for a document.
func (r *DocumentRepository) SetChunks(ctx context.Context, id string, chunks []core.Chunk) error {
	return r.setArtifact(makeChunksKey(id), storage.MarshalChunks(chunks))
}

// GetChunks retrieves the stored chunks.
func (r *DocumentRepository) GetChunks(ctx context.Context, id string) ([]core.Chunk, error) {
	var chunks []core.Chunk
	err := r.getArtifact(makeChunksKey(id), func(val []byte) error {
		var err error
		chunks, err = storage.UnmarshalChunks(val)
		return err
	})
	return chunks, err
}

// SetEmbeddings stores the embedding output for a document.
func (r *DocumentRepository) SetEmbeddings(ctx context.Context, id string, embeddings []core.Embedding) error {
	return r.setArtifact(makeEmbeddingsKey(id), storage.MarshalEmbeddings(embeddings))
}

// GetEmbeddings retrieves the stored embeddings.
func (r *DocumentRepository) GetEmbeddings(ctx context.Context, id string) ([]core.Embedding, error) {
	var embeddings []core.Embedding
	err := r.getArtifact(makeEmbeddingsKey(id), func(val []byte) error {
		var err error
		embeddings, err = storage.UnmarshalEmbeddings(val)
		return err
	})
	return embeddings, err
}

// Helper methods

// readDocument reads a document record from the transaction.
// Returns (nil, nil) when the key does not exist.
func (r *DocumentRepository) readDocument(tx *badger.Txn, key []byte) (*core.Document, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var doc *core.Document
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		doc, unmarshalErr = storage.UnmarshalDocument(val)
		return unmarshalErr
	})
	return doc, err
}

func (r *DocumentRepository) setArtifact(key, value []byte) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if err := tx.Set(key, value); err != nil {
			return err
		}
		return tx.Commit()
	}, true)
}

func (r *DocumentRepository) getArtifact(key []byte, fn func(val []byte) error) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		item, err := tx.Get(key)
		if err != nil {
			if err == badger.ErrKeyNotFound {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(fn)
	}, false)
}
