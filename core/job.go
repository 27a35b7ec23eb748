package core

import "time"

// JobType identifies the kind of work a job tracks.
type JobType string

const (
	// JobTypeDocumentProcessing covers a full submit-to-index run.
	JobTypeDocumentProcessing JobType = "document-processing"
	// JobTypeEmbeddingGeneration covers re-embedding existing chunks.
	JobTypeEmbeddingGeneration JobType = "embedding-generation"
	// JobTypeIndexUpdate covers re-upserting stored vectors.
	JobTypeIndexUpdate JobType = "index-update"
)

// JobStatus is the lifecycle state of a job record.
type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobCompleted JobStatus = "completed"
	JobFailed    JobStatus = "failed"
)

// Job records one asynchronous pipeline run against a document.
// Progress/Total advance at stage boundaries so an interrupted run
// shows how far it got.
type Job struct {
	Id          string // UUID
	DocumentId  string
	Type        JobType
	Status      JobStatus
	Error       string
	Progress    int
	Total       int
	CreatedAt   time.Time
	StartedAt   time.Time // zero until the job starts running
	CompletedAt time.Time // zero until the job reaches completed or failed
}

// Start marks the job running.
func (j *Job) Start(now time.Time) {
	j.Status = JobRunning
	j.StartedAt = now
}

// Complete marks the job completed.
func (j *Job) Complete(now time.Time) {
	j.Status = JobCompleted
	j.Progress = j.Total
	j.CompletedAt = now
}

// Fail marks the job failed with the given detail.
func (j *Job) Fail(now time.Time, detail string) {
	j.Status = JobFailed
	j.Error = detail
	j.CompletedAt = now
}
