package search

import "github.com/poiesic/ragrelay/core"

// SearchMonitor provides hooks to observe the search process.
// Implement this interface to track intermediate steps and results during search.
type SearchMonitor interface {
	Start(query string, weight float64)
	AfterQueryEmbedding(dimension int)
	AfterSemanticScoring(candidates int)
	AfterKeywordScoring(tokens []string, matches int, maxScore float64)
	SkippedMissing(id core.ID)
	Finish(results []core.ScoredResult)
}

// noopMonitor is a no-op implementation of SearchMonitor
type noopMonitor struct{}

var _ SearchMonitor = (*noopMonitor)(nil)

func (n *noopMonitor) Start(_ string, _ float64)                        {}
func (n *noopMonitor) AfterQueryEmbedding(_ int)                        {}
func (n *noopMonitor) AfterSemanticScoring(_ int)                       {}
func (n *noopMonitor) AfterKeywordScoring(_ []string, _ int, _ float64) {}
func (n *noopMonitor) SkippedMissing(_ core.ID)                         {}
func (n *noopMonitor) Finish(_ []core.ScoredResult)                     {}
