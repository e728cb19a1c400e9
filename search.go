package artsearch

import (
	"context"
	"fmt"
	"time"

	"github.com/musegraph/artsearch/internal/domain"
	domsearch "github.com/musegraph/artsearch/internal/domain/search"
)

// Artwork is a museum object record.
type Artwork struct {
	ID             string
	Title          string
	Artist         string
	Date           string
	Medium         string
	Dimensions     string
	Classification string
	Department     string
	Collection     string
	ImageURL       string
	Description    string
}

// Hit is one scored search result.
type Hit struct {
	ID      string
	Score   float64
	Artwork Artwork
}

// ResultList is one retrieval mode's ranked output.
type ResultList struct {
	TookMillis int64
	Total      int
	Hits       []Hit
}

// HybridResult is the fused list plus its strategy label.
type HybridResult struct {
	Source  string
	Results ResultList
}

// Results is the unified multi-mode search response.
type Results struct {
	Keyword   *ResultList
	Semantic  map[string]ResultList
	Hybrid    *HybridResult
	Timestamp time.Time
}

// SearchOptions configures a search query. Zero values mean defaults; at
// least one of Keyword, Models, or Hybrid must be set.
type SearchOptions struct {
	Keyword             bool
	Models              []string
	Hybrid              bool
	HybridMode          string
	HybridBalance       *float64
	Fusion              string
	IncludeDescriptions bool
	Size                int
}

// Search runs the selected retrieval modes and returns the unified result.
func (c *Client) Search(ctx context.Context, query string, opts *SearchOptions) (*Results, error) {
	if opts == nil {
		opts = &SearchOptions{Keyword: true}
	}

	models := make(map[string]bool, len(opts.Models))
	for _, m := range opts.Models {
		models[m] = true
	}

	req, err := domsearch.NewRequest(query, domsearch.Options{
		Keyword:             opts.Keyword,
		Models:              models,
		Hybrid:              opts.Hybrid,
		HybridMode:          opts.HybridMode,
		HybridBalance:       opts.HybridBalance,
		FusionMode:          opts.Fusion,
		IncludeDescriptions: opts.IncludeDescriptions,
		Size:                opts.Size,
	})
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	unified, err := c.searchSvc.Search(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	return fromUnified(unified), nil
}

// SearchImage finds artworks visually similar to the image payload.
func (c *Client) SearchImage(ctx context.Context, image []byte, size int) (ResultList, error) {
	list, err := c.searchSvc.SearchImage(ctx, image, size)
	if err != nil {
		return ResultList{}, fmt.Errorf("search image: %w", err)
	}
	return fromRankedList(list), nil
}

func fromUnified(u *domsearch.UnifiedResult) *Results {
	out := &Results{
		Semantic:  make(map[string]ResultList, len(u.Semantic)),
		Timestamp: u.Meta.Timestamp,
	}
	if u.Keyword != nil {
		l := fromRankedList(*u.Keyword)
		out.Keyword = &l
	}
	for key, list := range u.Semantic {
		out.Semantic[string(key)] = fromRankedList(list)
	}
	if u.Hybrid != nil {
		out.Hybrid = &HybridResult{
			Source:  u.Hybrid.Source,
			Results: fromRankedList(u.Hybrid.Results),
		}
	}
	return out
}

func fromRankedList(l domsearch.RankedList) ResultList {
	out := ResultList{
		TookMillis: l.TookMillis,
		Total:      l.Total,
		Hits:       make([]Hit, len(l.Hits)),
	}
	for i, h := range l.Hits {
		out.Hits[i] = Hit{
			ID:      h.ID,
			Score:   h.Score,
			Artwork: fromDomainArtwork(h.Artwork),
		}
	}
	return out
}

func fromDomainArtwork(a domain.Artwork) Artwork {
	return Artwork{
		ID:             a.ID,
		Title:          a.Title,
		Artist:         a.Artist,
		Date:           a.Date,
		Medium:         a.Medium,
		Dimensions:     a.Dimensions,
		Classification: a.Classification,
		Department:     a.Department,
		Collection:     a.Collection,
		ImageURL:       a.ImageURL,
		Description:    a.Description,
	}
}

func toDomainArtwork(a Artwork) domain.Artwork {
	return domain.Artwork{
		ID:             a.ID,
		Title:          a.Title,
		Artist:         a.Artist,
		Date:           a.Date,
		Medium:         a.Medium,
		Dimensions:     a.Dimensions,
		Classification: a.Classification,
		Department:     a.Department,
		Collection:     a.Collection,
		ImageURL:       a.ImageURL,
		Description:    a.Description,
	}
}
