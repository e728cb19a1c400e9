package search

import (
	"fmt"
	"sort"

	"github.com/musegraph/artsearch/internal/domain"
)

const (
	// DefaultSize is the result list size when the caller does not set one.
	DefaultSize = 10
	// MaxSize caps the result list size per mode.
	MaxSize = 100
	// DefaultBalance weights lexical and semantic contributions equally.
	DefaultBalance = 0.5
)

// Request is a validated search request. Build it with NewRequest; a zero
// Request is not meaningful.
type Request struct {
	Query string
	// Keyword enables the lexical sub-search.
	Keyword bool
	// Models are the display-selected semantic models, sorted for
	// deterministic fan-out and response shape.
	Models []domain.ModelKey
	// Hybrid enables fusion of lexical and semantic lists.
	Hybrid        bool
	HybridMode    HybridMode
	HybridBalance float64
	FusionMode    FusionMode
	// IncludeDescriptions keeps long-form description text in hit payloads.
	IncludeDescriptions bool
	Size                int
}

// Options carries the caller-controlled knobs for NewRequest.
// Zero values mean "use defaults".
type Options struct {
	Keyword             bool
	Models              map[string]bool
	Hybrid              bool
	HybridMode          string
	HybridBalance       *float64
	FusionMode          string
	IncludeDescriptions bool
	Size                int
}

// NewRequest validates options into a Request. Model keys are checked
// against the closed registry, balance is clamped to [0,1] and size to
// [1,MaxSize]. At least one retrieval mode must be selected.
func NewRequest(query string, opts Options) (Request, error) {
	req := Request{
		Query:               query,
		Keyword:             opts.Keyword,
		Hybrid:              opts.Hybrid,
		HybridMode:          HybridText,
		HybridBalance:       DefaultBalance,
		FusionMode:          FusionWeighted,
		IncludeDescriptions: opts.IncludeDescriptions,
		Size:                DefaultSize,
	}

	for raw, selected := range opts.Models {
		if !selected {
			continue
		}
		key, err := domain.ParseModelKey(raw)
		if err != nil {
			return Request{}, fmt.Errorf("%w: %w", domain.ErrValidation, err)
		}
		req.Models = append(req.Models, key)
	}
	sort.Slice(req.Models, func(i, j int) bool { return req.Models[i] < req.Models[j] })

	if !req.Keyword && len(req.Models) == 0 && !req.Hybrid {
		return Request{}, fmt.Errorf("%w: no retrieval mode selected", domain.ErrValidation)
	}

	switch HybridMode(opts.HybridMode) {
	case "":
		// keep default
	case HybridText, HybridImage, HybridBoth:
		req.HybridMode = HybridMode(opts.HybridMode)
	default:
		return Request{}, fmt.Errorf("%w: hybrid mode %q", domain.ErrValidation, opts.HybridMode)
	}

	switch FusionMode(opts.FusionMode) {
	case "":
		// keep default
	case FusionWeighted, FusionRank:
		req.FusionMode = FusionMode(opts.FusionMode)
	default:
		return Request{}, fmt.Errorf("%w: fusion mode %q", domain.ErrValidation, opts.FusionMode)
	}

	if opts.HybridBalance != nil {
		req.HybridBalance = clamp01(*opts.HybridBalance)
	}

	if opts.Size > 0 {
		req.Size = opts.Size
	}
	if req.Size > MaxSize {
		req.Size = MaxSize
	}

	return req, nil
}

// HasModel reports whether key is display-selected.
func (r Request) HasModel(key domain.ModelKey) bool {
	for _, m := range r.Models {
		if m == key {
			return true
		}
	}
	return false
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
