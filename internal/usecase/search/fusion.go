package search

import (
	"sort"

	domsearch "github.com/musegraph/artsearch/internal/domain/search"
)

// rrfK is the Reciprocal Rank Fusion constant (standard value from Cormack et al. 2009).
const rrfK = 60

type fusedHit struct {
	hit   domsearch.Hit
	score float64
	// order is the encounter position across input lists; equal fused
	// scores keep this order so responses are deterministic.
	order int
}

// fuseWeighted merges a lexical and a semantic list by min-max normalizing
// each list's scores and blending them with balance (0 = lexical only,
// 1 = semantic only). Documents found by only one list contribute 0 from
// the other.
func fuseWeighted(
	lexical, semantic domsearch.RankedList, balance float64, size int,
) domsearch.RankedList {
	merged := make(map[string]*fusedHit)
	var order []string

	add := func(hits []domsearch.Hit, norms []float64, weight float64) {
		for i, h := range hits {
			f, ok := merged[h.ID]
			if !ok {
				f = &fusedHit{hit: h, order: len(order)}
				merged[h.ID] = f
				order = append(order, h.ID)
			}
			f.score += weight * norms[i]
		}
	}

	add(lexical.Hits, normalizeScores(lexical.Hits), 1-balance)
	add(semantic.Hits, normalizeScores(semantic.Hits), balance)

	return rankFused(merged, order, size)
}

// fuseRRF merges ranked lists by Reciprocal Rank Fusion:
// score(d) = sum over lists of 1/(k + rank(d)).
func fuseRRF(lists []domsearch.RankedList, size int) domsearch.RankedList {
	merged := make(map[string]*fusedHit)
	var order []string

	for _, list := range lists {
		for rank, h := range list.Hits {
			f, ok := merged[h.ID]
			if !ok {
				f = &fusedHit{hit: h, order: len(order)}
				merged[h.ID] = f
				order = append(order, h.ID)
			}
			f.score += 1.0 / float64(rrfK+rank+1)
		}
	}

	return rankFused(merged, order, size)
}

// unionMax merges already-fused lists, keeping each document's best score.
// Used when hybrid mode runs more than one vector model.
func unionMax(lists []domsearch.RankedList, size int) domsearch.RankedList {
	merged := make(map[string]*fusedHit)
	var order []string

	for _, list := range lists {
		for _, h := range list.Hits {
			f, ok := merged[h.ID]
			if !ok {
				merged[h.ID] = &fusedHit{hit: h, score: h.Score, order: len(order)}
				order = append(order, h.ID)
				continue
			}
			if h.Score > f.score {
				f.score = h.Score
				f.hit = h
			}
		}
	}

	return rankFused(merged, order, size)
}

// normalizeScores min-max normalizes a list's scores into [0,1]. A
// constant-score list normalizes to all 1.0 so a single-hit list still
// contributes fully.
func normalizeScores(hits []domsearch.Hit) []float64 {
	norms := make([]float64, len(hits))
	if len(hits) == 0 {
		return norms
	}

	minS, maxS := hits[0].Score, hits[0].Score
	for _, h := range hits[1:] {
		if h.Score < minS {
			minS = h.Score
		}
		if h.Score > maxS {
			maxS = h.Score
		}
	}

	if maxS == minS {
		for i := range norms {
			norms[i] = 1.0
		}
		return norms
	}

	span := maxS - minS
	for i, h := range hits {
		norms[i] = (h.Score - minS) / span
	}
	return norms
}

func rankFused(merged map[string]*fusedHit, order []string, size int) domsearch.RankedList {
	fused := make([]*fusedHit, 0, len(merged))
	for _, id := range order {
		fused = append(fused, merged[id])
	}

	sort.SliceStable(fused, func(i, j int) bool {
		return fused[i].score > fused[j].score
	})

	list := domsearch.RankedList{
		Total: len(fused),
		Hits:  make([]domsearch.Hit, 0, len(fused)),
	}
	for _, f := range fused {
		h := f.hit
		h.Score = f.score
		list.Hits = append(list.Hits, h)
	}
	return list.Truncate(size)
}
