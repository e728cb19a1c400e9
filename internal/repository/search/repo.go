package search

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/musegraph/artsearch/internal/db"
	"github.com/musegraph/artsearch/internal/domain"
	domsearch "github.com/musegraph/artsearch/internal/domain/search"
)

// store is the consumer interface for retrieval operations (ISP).
type store interface {
	SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	SearchHybrid(ctx context.Context, q *db.HybridQuery) (*db.SearchResult, error)
	SupportsHybridQuery(ctx context.Context) bool
}

// Config tunes the adapters.
type Config struct {
	IndexName string
	// OverfetchFactor and MinCandidates control how many KNN candidates are
	// requested beyond the display size before truncation.
	OverfetchFactor int
	MinCandidates   int
}

// Repo adapts index queries into uniform RankedLists. It implements the
// lexical, per-model vector and backend-native hybrid retrieval contracts.
type Repo struct {
	store           store
	index           string
	keyPrefix       string
	overfetchFactor int
	minCandidates   int
}

// New creates a retrieval repository.
func New(s store, cfg Config) *Repo {
	name := cfg.IndexName
	if name == "" {
		name = "artworks"
	}
	factor := cfg.OverfetchFactor
	if factor <= 0 {
		factor = 3
	}
	minCand := cfg.MinCandidates
	if minCand <= 0 {
		minCand = 50
	}
	return &Repo{
		store:           s,
		index:           domain.KeyPrefix + name + ":idx",
		keyPrefix:       domain.KeyPrefix + name + ":",
		overfetchFactor: factor,
		minCandidates:   minCand,
	}
}

// IndexName returns the FT index this repository queries.
func (r *Repo) IndexName() string { return r.index }

// KeyPrefix returns the document key prefix backing the index.
func (r *Repo) KeyPrefix() string { return r.keyPrefix }

// Lexical runs the weighted multi-field fuzzy query. An empty query degrades
// to match-all, returning the index's natural ordering.
func (r *Repo) Lexical(ctx context.Context, query string, size int) (domsearch.RankedList, error) {
	start := time.Now()

	sr, err := r.store.SearchText(ctx, &db.TextQuery{
		IndexName:    r.index,
		Query:        BuildLexicalQuery(query),
		TopK:         size,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return domsearch.RankedList{}, fmt.Errorf("search lexical: %w", err)
	}

	return r.toRankedList(sr, start, size), nil
}

// KNN runs an approximate nearest-neighbor query over the model's vector
// field, over-fetching candidates for recall and truncating to size.
func (r *Repo) KNN(ctx context.Context, model domain.ModelKey, vector []float32, size int) (domsearch.RankedList, error) {
	info, ok := domain.Model(model)
	if !ok {
		return domsearch.RankedList{}, fmt.Errorf("%w: %q", domain.ErrUnknownModel, model)
	}

	start := time.Now()

	sr, err := r.store.SearchKNN(ctx, &db.KNNQuery{
		IndexName:    r.index,
		Field:        info.VectorField,
		Vector:       vector,
		K:            r.candidates(size),
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return domsearch.RankedList{}, fmt.Errorf("search knn %s: %w", model, err)
	}

	return r.toRankedList(sr, start, size), nil
}

// NativeHybrid issues one backend-fused lexical+vector query. supported is
// false when the backend lacks native multi-retriever fusion; callers fall
// back to client-side fusion then.
func (r *Repo) NativeHybrid(
	ctx context.Context,
	query string, model domain.ModelKey, vector []float32,
	balance float64, size int,
) (domsearch.RankedList, bool, error) {
	if !r.store.SupportsHybridQuery(ctx) {
		return domsearch.RankedList{}, false, nil
	}

	info, ok := domain.Model(model)
	if !ok {
		return domsearch.RankedList{}, true, fmt.Errorf("%w: %q", domain.ErrUnknownModel, model)
	}

	start := time.Now()

	sr, err := r.store.SearchHybrid(ctx, &db.HybridQuery{
		IndexName:    r.index,
		Query:        BuildLexicalQuery(query),
		Field:        info.VectorField,
		Vector:       vector,
		Alpha:        balance,
		TopK:         size,
		ReturnFields: []string{"$"},
	})
	if err != nil {
		return domsearch.RankedList{}, true, fmt.Errorf("search hybrid %s: %w", model, err)
	}

	return r.toRankedList(sr, start, size), true, nil
}

func (r *Repo) candidates(size int) int {
	c := size * r.overfetchFactor
	if c < r.minCandidates {
		c = r.minCandidates
	}
	return c
}

func (r *Repo) toRankedList(sr *db.SearchResult, start time.Time, size int) domsearch.RankedList {
	list := domsearch.RankedList{
		TookMillis: time.Since(start).Milliseconds(),
		Hits:       []domsearch.Hit{},
	}
	if sr == nil {
		return list
	}
	list.Total = sr.Total

	for _, entry := range sr.Entries {
		if len(list.Hits) >= size {
			break
		}
		id := strings.TrimPrefix(entry.Key, r.keyPrefix)
		artwork, err := parseArtworkDoc(id, entry.Fields["$"])
		if err != nil {
			// Malformed documents are skipped, not fatal.
			continue
		}
		list.Hits = append(list.Hits, domsearch.Hit{
			ID:      id,
			Score:   entry.Score,
			Artwork: artwork,
		})
	}
	return list
}

// docEnvelope is the stored document shape: catalog fields plus per-model
// vectors. Embeddings never leave the repository.
type docEnvelope struct {
	domain.Artwork
	Embeddings map[string]json.RawMessage `json:"embeddings,omitempty"`
}

func parseArtworkDoc(id, raw string) (domain.Artwork, error) {
	if raw == "" {
		return domain.Artwork{}, fmt.Errorf("empty document %s", id)
	}
	var env docEnvelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return domain.Artwork{}, fmt.Errorf("unmarshal document %s: %w", id, err)
	}
	artwork := env.Artwork
	artwork.ID = id
	return artwork, nil
}

// BuildLexicalQuery turns free text into an FT query matching each term
// exactly or fuzzily across the weighted text fields. Empty input matches
// everything.
func BuildLexicalQuery(query string) string {
	terms := strings.Fields(query)
	if len(terms) == 0 {
		return "*"
	}

	parts := make([]string, 0, len(terms))
	for _, term := range terms {
		escaped := escapeTerm(term)
		if escaped == "" {
			continue
		}
		// Fuzzy matching needs terms of a minimum length to be useful.
		if len([]rune(escaped)) >= 4 {
			parts = append(parts, fmt.Sprintf("(%s|%%%s%%)", escaped, escaped))
		} else {
			parts = append(parts, escaped)
		}
	}
	if len(parts) == 0 {
		return "*"
	}
	return strings.Join(parts, " ")
}

var termEscaper = strings.NewReplacer(
	`\`, `\\`,
	`'`, `\'`,
	`"`, `\"`,
	`@`, `\@`,
	`{`, `\{`,
	`}`, `\}`,
	`(`, `\(`,
	`)`, `\)`,
	`|`, `\|`,
	`-`, `\-`,
	`~`, `\~`,
	`*`, `\*`,
	`[`, `\[`,
	`]`, `\]`,
	`!`, `\!`,
	`%`, `\%`,
	`^`, `\^`,
	`$`, `\$`,
	`<`, `\<`,
	`>`, `\>`,
	`=`, `\=`,
	`;`, `\;`,
	`+`, `\+`,
	`:`, `\:`,
)

func escapeTerm(term string) string {
	return termEscaper.Replace(term)
}
