// Package reindex provides functionality for re-embedding stored documents
// with a new or updated embedding provider.
//
// This package supports paged iteration over the document store, progress
// tracking, retry logic with exponential backoff, and records each run as
// an embedding generation job so it shows up in job history.
package reindex
