// Package convert defines the document conversion collaborator: the service
// that turns raw uploaded bytes into ordered structural text blocks.
//
// The conversion engine itself is external. Implementations live in
// subpackages (convert/docling for the HTTP service, convert/mock for
// tests); this package holds the interface, the failure type and media-type
// detection.
package convert

import (
	"context"

	"github.com/quillworks/docpipe/core"
)

// Converter produces the structural blocks of a document.
// Implementations must be safe for concurrent use.
type Converter interface {
	// Convert parses content and returns its text blocks in document
	// order. The filename and media type guide format selection.
	// Failures are reported as *Error.
	Convert(ctx context.Context, content []byte, filename, mediaType string) ([]core.Block, error)
}

// Error is a conversion failure. The pipeline marks the owning document
// failed and surfaces the cause in its error detail.
type Error struct {
	Cause error
}

// NewError wraps a cause as a conversion failure.
func NewError(cause error) *Error {
	return &Error{Cause: cause}
}

func (e *Error) Error() string {
	return "conversion failed: " + e.Cause.Error()
}

func (e *Error) Unwrap() error {
	return e.Cause
}
