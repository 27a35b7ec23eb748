package ingestion

import (
	"time"

	"github.com/quillworks/docpipe/core"
)

// PipelineMonitor provides hooks to observe document processing.
// Implement this interface to track stage progress and outcomes, for
// example to export metrics or invalidate caches when a document's
// vectors change.
type PipelineMonitor interface {
	DocumentSubmitted(doc *core.Document)
	StageStarted(documentID, stage string)
	StageCompleted(documentID, stage string, took time.Duration)
	ChunksProduced(documentID string, chunks []core.Chunk)
	DocumentIndexed(doc *core.Document)
	DocumentFailed(doc *core.Document, stage string, err error)
	DocumentDeleted(documentID string)
}

// noopMonitor is a no-op implementation of PipelineMonitor
type noopMonitor struct{}

var _ PipelineMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) DocumentSubmitted(_ *core.Document)                 {}
func (n *noopMonitor) StageStarted(_, _ string)                           {}
func (n *noopMonitor) StageCompleted(_, _ string, _ time.Duration)        {}
func (n *noopMonitor) ChunksProduced(_ string, _ []core.Chunk)            {}
func (n *noopMonitor) DocumentIndexed(_ *core.Document)                   {}
func (n *noopMonitor) DocumentFailed(_ *core.Document, _ string, _ error) {}
func (n *noopMonitor) DocumentDeleted(_ string)                           {}

// MultiMonitor fans every callback out to the given monitors in order.
func MultiMonitor(monitors ...PipelineMonitor) PipelineMonitor {
	return multiMonitor(monitors)
}

type multiMonitor []PipelineMonitor

func (m multiMonitor) DocumentSubmitted(doc *core.Document) {
	for _, mon := range m {
		mon.DocumentSubmitted(doc)
	}
}

func (m multiMonitor) StageStarted(documentID, stage string) {
	for _, mon := range m {
		mon.StageStarted(documentID, stage)
	}
}

func (m multiMonitor) StageCompleted(documentID, stage string, took time.Duration) {
	for _, mon := range m {
		mon.StageCompleted(documentID, stage, took)
	}
}

func (m multiMonitor) ChunksProduced(documentID string, chunks []core.Chunk) {
	for _, mon := range m {
		mon.ChunksProduced(documentID, chunks)
	}
}

func (m multiMonitor) DocumentIndexed(doc *core.Document) {
	for _, mon := range m {
		mon.DocumentIndexed(doc)
	}
}

func (m multiMonitor) DocumentFailed(doc *core.Document, stage string, err error) {
	for _, mon := range m {
		mon.DocumentFailed(doc, stage, err)
	}
}

func (m multiMonitor) DocumentDeleted(documentID string) {
	for _, mon := range m {
		mon.DocumentDeleted(documentID)
	}
}
