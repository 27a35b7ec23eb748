// Package mock provides a test double for convert.Converter.
//
// The default behavior is deterministic: content splits into paragraph
// blocks on blank lines, so tests get stable chunk sequences without a
// running conversion service. Custom behavior is injected via the
// ConvertFunc field.
package mock

import (
	"context"
	"strings"
	"sync"

	"github.com/quillworks/docpipe/core"
)

// MockConverter is a test double for convert.Converter.
type MockConverter struct {
	// ConvertFunc is called by Convert if set.
	// If nil, content splits into paragraph blocks on blank lines.
	ConvertFunc func(ctx context.Context, content []byte, filename, mediaType string) ([]core.Block, error)

	mu        sync.Mutex
	callCount int
}

// NewMockConverter creates a mock converter with default behavior.
func NewMockConverter() *MockConverter {
	return &MockConverter{}
}

// Convert returns blocks for the content.
func (m *MockConverter) Convert(ctx context.Context, content []byte, filename, mediaType string) ([]core.Block, error) {
	m.mu.Lock()
	m.callCount++
	m.mu.Unlock()

	if m.ConvertFunc != nil {
		return m.ConvertFunc(ctx, content, filename, mediaType)
	}

	var blocks []core.Block
	for _, paragraph := range strings.Split(string(content), "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if paragraph == "" {
			continue
		}
		blocks = append(blocks, core.Block{
			Type: core.BlockTypeParagraph,
			Text: paragraph,
			Page: 1,
		})
	}
	return blocks, nil
}

// CallCount returns the number of Convert calls.
func (m *MockConverter) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.callCount
}

// Reset clears the call count and injected behavior.
func (m *MockConverter) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.callCount = 0
	m.ConvertFunc = nil
}
