package search

import "github.com/poiesic/marketsearch/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(req *Request)
	AfterEmbedding(vector []float32, err error)
	AfterVectorSearch(hits []*core.Hit, err error)
	Fallback(reason string)
	Finish(resp *Response)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ *Request)                          {}
func (n *noopMonitor) AfterEmbedding(_ []float32, _ error)       {}
func (n *noopMonitor) AfterVectorSearch(_ []*core.Hit, _ error)  {}
func (n *noopMonitor) Fallback(_ string)                         {}
func (n *noopMonitor) Finish(_ *Response)                        {}
