package search

import (
	"time"

	"github.com/quillworks/docpipe/core"
	"github.com/quillworks/docpipe/vector"
)

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string)
	CacheHit(query string, results int)
	QueryEmbedded(provider, model string, took time.Duration)
	AfterIndexQuery(hits []vector.Hit, took time.Duration)
	Finish(results []core.SearchResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string)                                  {}
func (n *noopMonitor) CacheHit(_ string, _ int)                        {}
func (n *noopMonitor) QueryEmbedded(_, _ string, _ time.Duration)      {}
func (n *noopMonitor) AfterIndexQuery(_ []vector.Hit, _ time.Duration) {}
func (n *noopMonitor) Finish(_ []core.SearchResult)                    {}
