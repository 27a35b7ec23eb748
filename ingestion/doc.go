// Package ingestion provides pipeline orchestration for processing documents.
//
// The Pipeline type manages the document workflow from upload to searchable
// vectors, including:
//   - Validating and storing uploads
//   - Converting raw content into text blocks
//   - Chunking, embedding, and indexing asynchronously
//
// Every status transition is persisted before the next stage starts, so an
// interrupted run resumes from its last completed stage. Errors during async
// processing mark the document failed; they never fail the submit call.
package ingestion
