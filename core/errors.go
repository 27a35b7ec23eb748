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

import "errors"

// Domain validation errors
var (
	// ErrInvalidDocument indicates a Document failed validation.
	ErrInvalidDocument = errors.New("invalid document")

	// ErrInvalidChunk indicates a Chunk failed validation.
	ErrInvalidChunk = errors.New("invalid chunk")

	// ErrEmptyFilename indicates the Filename field is empty.
	ErrEmptyFilename = errors.New("filename cannot be empty")

	// ErrEmptyDocumentID indicates the document identifier is empty.
	ErrEmptyDocumentID = errors.New("document id cannot be empty")

	// ErrInvalidStatus indicates an unknown ProcessingStatus value.
	ErrInvalidStatus = errors.New("invalid processing status")

	// ErrContentTooLarge indicates the raw content exceeds the configured limit.
	ErrContentTooLarge = errors.New("content exceeds maximum size")

	// ErrUnsupportedMediaType indicates the detected media type is not allowed.
	ErrUnsupportedMediaType = errors.New("unsupported media type")

	// ErrEmptyContent indicates an upload carried no bytes.
	ErrEmptyContent = errors.New("content cannot be empty")
)

// ValidationError is a submit-time rejection. It never marks a stored
// document failed; the upload is refused before any record is written.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Err.Error()
	}
	return "validation failed: " + e.Field + ": " + e.Err.Error()
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError wraps a sentinel with the offending field name.
func NewValidationError(field string, err error) *ValidationError {
	return &ValidationError{Field: field, Err: err}
}
