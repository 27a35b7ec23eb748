package badger

import (
	"bytes"
	"context"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/storage"
)

// JobRepository implements storage.JobRepository for BadgerDB.
type JobRepository struct {
	backend *Backend
}

var _ storage.JobRepository = (*JobRepository)(nil)

// NewJobRepository creates a new JobRepository.
func NewJobRepository(backend *Backend) (*JobRepository, error) {
	return &JobRepository{
		backend: backend,
	}, nil
}

// Close releases resources. JobRepository has no resources to release.
func (r *JobRepository) Close() error {
	return nil
}

// WithTransaction delegates to the backend.
func (r *JobRepository) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return r.backend.WithTransaction(ctx, fn)
}

// AddJob stores a new job record.
func (r *JobRepository) AddJob(ctx context.Context, job *core.Job) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		if job.CreatedAt.IsZero() {
			job.CreatedAt = time.Now().UTC()
		}

		if err := tx.Set(makeJobKey(job.Id), storage.MarshalJob(job)); err != nil {
			return err
		}

		// Per-document index
		indexKey := makeJobDocumentKey(job.DocumentId, job.CreatedAt, job.Id)
		if err := tx.Set(indexKey, []byte(job.Id)); err != nil {
			return err
		}

		return tx.Commit()
	}, true)
}

// UpdateJob replaces an existing job record. The per-document index key is
// derived from immutable fields, so it never moves.
func (r *JobRepository) UpdateJob(ctx context.Context, job *core.Job) error {
	return r.backend.WithTx(func(tx *badger.Txn) error {
		key := makeJobKey(job.Id)

		old, err := r.readJob(tx, key)
		if err != nil {
			return err
		}
		if old == nil {
			return storage.ErrNotFound
		}

		job.CreatedAt = old.CreatedAt
		if err := tx.Set(key, storage.MarshalJob(job)); err != nil {
			return err
		}

		return tx.Commit()
	}, true)
}

// GetJob retrieves a single job by id.
func (r *JobRepository) GetJob(ctx context.Context, id string) (*core.Job, error) {
	var result *core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		var err error
		result, err = r.readJob(tx, makeJobKey(id))
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

// GetJobsByDocument retrieves all jobs recorded for a document, newest first.
func (r *JobRepository) GetJobsByDocument(ctx context.Context, documentID string) ([]*core.Job, error) {
	var results []*core.Job
	err := r.backend.WithTx(func(tx *badger.Txn) error {
		prefix := makePartialJobDocumentKey(documentID)

		opts := badger.DefaultIteratorOptions
		opts.Reverse = true

		iter := tx.NewIterator(opts)
		defer iter.Close()

		// Seek past the newest possible entry for this document, then walk
		// backwards while still inside the prefix.
		startKey := append(append([]byte(nil), prefix...), 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF)

		for iter.Seek(startKey); iter.Valid(); iter.Next() {
			key := iter.Item().Key()
			if !bytes.HasPrefix(key, prefix) {
				break
			}

			var jobID string
			if err := iter.Item().Value(func(val []byte) error {
				jobID = string(val)
				return nil
			}); err != nil {
				return err
			}

			job, err := r.readJob(tx, makeJobKey(jobID))
			if err != nil {
				return err
			}
			if job != nil {
				results = append(results, job)
			}
		}
		return nil
	}, false)

	return results, err
}

// readJob reads a job record from the transaction.
// Returns (nil, nil) when the key does not exist.
func (r *JobRepository) readJob(tx *badger.Txn, key []byte) (*core.Job, error) {
	item, err := tx.Get(key)
	if err != nil {
		if err == badger.ErrKeyNotFound {
			return nil, nil
		}
		return nil, err
	}

	var job *core.Job
	err = item.Value(func(val []byte) error {
		var unmarshalErr error
		job, unmarshalErr = storage.UnmarshalJob(val)
		return unmarshalErr
	})
	return job, err
}
