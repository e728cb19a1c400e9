package search

import (
	"time"

	"github.com/musegraph/artsearch/internal/domain"
)

// Hit is one scored document inside a RankedList. Scores are comparable only
// within the list that produced them; cross-list comparison requires
// normalization first.
type Hit struct {
	ID      string         `json:"id"`
	Score   float64        `json:"score"`
	Artwork domain.Artwork `json:"artwork"`
}

// RankedList is one retrieval mode's output: hits in descending score order,
// ties kept in backend order.
type RankedList struct {
	TookMillis int64 `json:"took_ms"`
	Total      int   `json:"total"`
	Hits       []Hit `json:"hits"`
}

// Truncate caps the hit list at size without reordering.
func (l RankedList) Truncate(size int) RankedList {
	if size > 0 && len(l.Hits) > size {
		l.Hits = l.Hits[:size]
	}
	return l
}

// HybridResult is the fused list plus a label naming the strategy and
// inputs that produced it.
type HybridResult struct {
	Source  string     `json:"source"`
	Results RankedList `json:"results"`
}

// Meta carries response observability data. Queries holds a redacted,
// human-readable description of each sub-search issued; raw vectors are
// never echoed.
type Meta struct {
	Timestamp  time.Time         `json:"timestamp"`
	TookMillis map[string]int64  `json:"took_ms"`
	Queries    map[string]string `json:"queries,omitempty"`
}

// UnifiedResult is the aggregate response for one search request. It is
// assembled fresh per request and never persisted.
type UnifiedResult struct {
	Keyword  *RankedList                    `json:"keyword"`
	Semantic map[domain.ModelKey]RankedList `json:"semantic"`
	Hybrid   *HybridResult                  `json:"hybrid"`
	Meta     Meta                           `json:"metadata"`
}
