// Package search orchestrates multi-model retrieval: embedding resolution,
// concurrent fan-out across lexical and vector sub-searches, fusion, and
// response assembly.
package search

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/musegraph/artsearch/internal/domain"
	domsearch "github.com/musegraph/artsearch/internal/domain/search"
	"github.com/musegraph/artsearch/internal/metrics"
)

// Service fans a search request out across its retrieval modes and merges
// the results. A failing sub-search degrades its own slot; the request
// fails only when every requested mode does.
type Service struct {
	retr       Retriever
	resolver   Resolver
	textModel  domain.ModelKey
	imageModel domain.ModelKey
	logger     *zap.Logger
}

// Config selects which models back the hybrid modes.
type Config struct {
	// TextModel drives hybrid mode "text".
	TextModel domain.ModelKey
	// ImageModel drives hybrid mode "image" (its text tower embeds the
	// query; true cross-modal search goes through SearchImage).
	ImageModel domain.ModelKey
	Logger     *zap.Logger
}

// New creates a search service.
func New(retr Retriever, resolver Resolver, cfg *Config) *Service {
	return &Service{
		retr:       retr,
		resolver:   resolver,
		textModel:  cfg.TextModel,
		imageModel: cfg.ImageModel,
		logger:     cfg.Logger,
	}
}

// Search executes every retrieval mode the request selects, concurrently,
// and assembles one unified response. An empty query yields match-all for
// the keyword slot and empty lists for the vector-driven slots.
func (s *Service) Search(
	ctx context.Context, req domsearch.Request,
) (*domsearch.UnifiedResult, error) {
	out := &domsearch.UnifiedResult{
		Semantic: make(map[domain.ModelKey]domsearch.RankedList),
		Meta: domsearch.Meta{
			Timestamp:  time.Now().UTC(),
			TookMillis: make(map[string]int64),
			Queries:    make(map[string]string),
		},
	}

	hasQuery := strings.TrimSpace(req.Query) != ""
	hybridModels := s.hybridModels(req.HybridMode)

	var vectors map[domain.ModelKey][]float32
	if hasQuery {
		needed := req.Models
		if req.Hybrid {
			needed = unionModels(req.Models, hybridModels)
		}
		if len(needed) > 0 {
			v, err := s.resolver.Resolve(ctx, req.Query, needed)
			if err != nil {
				s.logger.Warn("Embedding resolution failed, vector slots degrade",
					zap.Error(err))
			}
			vectors = v
		}
	}

	var (
		mu        sync.Mutex
		attempted int
		succeeded int
	)
	degrade := func(slot string, err error) {
		metrics.RetrievalDegradedTotal.WithLabelValues(slot).Inc()
		s.logger.Warn("Retrieval slot degraded",
			zap.String("slot", slot), zap.Error(err))
	}

	g, gctx := errgroup.WithContext(ctx)

	if req.Keyword {
		attempted++
		g.Go(func() error {
			start := time.Now()
			list, err := s.retr.Lexical(gctx, req.Query, req.Size)
			if err != nil {
				degrade("keyword", err)
				return nil
			}
			metrics.RetrievalDuration.WithLabelValues("keyword").
				Observe(time.Since(start).Seconds())
			mu.Lock()
			defer mu.Unlock()
			succeeded++
			out.Keyword = &list
			out.Meta.TookMillis["keyword"] = list.TookMillis
			out.Meta.Queries["keyword"] = req.Query
			return nil
		})
	}

	for _, model := range req.Models {
		if !hasQuery {
			out.Semantic[model] = emptyList()
			continue
		}
		slot := "semantic:" + string(model)
		vec, ok := vectors[model]
		if !ok {
			attempted++
			degrade(slot, fmt.Errorf("no vector resolved for %s", model))
			mu.Lock()
			out.Semantic[model] = emptyList()
			mu.Unlock()
			continue
		}
		attempted++
		model := model
		g.Go(func() error {
			start := time.Now()
			list, err := s.retr.KNN(gctx, model, vec, req.Size)
			if err != nil {
				degrade(slot, err)
				mu.Lock()
				out.Semantic[model] = emptyList()
				mu.Unlock()
				return nil
			}
			metrics.RetrievalDuration.WithLabelValues("semantic").
				Observe(time.Since(start).Seconds())
			mu.Lock()
			defer mu.Unlock()
			succeeded++
			out.Semantic[model] = list
			out.Meta.TookMillis[slot] = list.TookMillis
			out.Meta.Queries[slot] = redactedVector(model)
			return nil
		})
	}

	if req.Hybrid {
		if !hasQuery {
			out.Hybrid = &domsearch.HybridResult{
				Source:  hybridSource(string(req.FusionMode), hybridModels),
				Results: emptyList(),
			}
		} else {
			attempted++
			g.Go(func() error {
				if s.runHybrid(gctx, req, hybridModels, vectors, out, &mu, degrade) {
					mu.Lock()
					succeeded++
					mu.Unlock()
				}
				return nil
			})
		}
	}

	_ = g.Wait()

	if attempted > 0 && succeeded == 0 {
		return nil, domain.ErrRetrievalFailed
	}

	if !req.IncludeDescriptions {
		stripDescriptions(out)
	}

	return out, nil
}

// SearchImage embeds the image with the cross-modal model and runs KNN
// against its vector field.
func (s *Service) SearchImage(
	ctx context.Context, image []byte, size int,
) (domsearch.RankedList, error) {
	if len(image) == 0 {
		return domsearch.RankedList{}, fmt.Errorf("%w: empty image payload", domain.ErrValidation)
	}
	if size <= 0 {
		size = domsearch.DefaultSize
	}
	if size > domsearch.MaxSize {
		size = domsearch.MaxSize
	}

	vec, err := s.resolver.ResolveImage(ctx, image, s.imageModel)
	if err != nil {
		return domsearch.RankedList{}, err
	}

	start := time.Now()
	list, err := s.retr.KNN(ctx, s.imageModel, vec, size)
	if err != nil {
		return domsearch.RankedList{}, fmt.Errorf("image knn: %w", err)
	}
	metrics.RetrievalDuration.WithLabelValues("image").
		Observe(time.Since(start).Seconds())
	return list, nil
}

// runHybrid retrieves the hybrid legs and fuses them into one list. With
// more than one model the per-model KNN lists are unioned by best raw
// score into a single semantic list before fusion, so every document is
// normalized on the same scale. Rank fusion prefers the backend's native
// hybrid query and falls back to client-side RRF when unsupported.
// Returns false when every leg degraded.
func (s *Service) runHybrid(
	ctx context.Context,
	req domsearch.Request,
	models []domain.ModelKey,
	vectors map[domain.ModelKey][]float32,
	out *domsearch.UnifiedResult,
	mu *sync.Mutex,
	degrade func(slot string, err error),
) bool {
	start := time.Now()

	resolved := make([]domain.ModelKey, 0, len(models))
	for _, model := range models {
		if _, ok := vectors[model]; !ok {
			degrade("hybrid:"+string(model), fmt.Errorf("no vector resolved for %s", model))
			continue
		}
		resolved = append(resolved, model)
	}
	if len(resolved) == 0 {
		return false
	}

	// The native query fuses a single vector field; multi-model hybrid
	// unions client-side.
	if req.FusionMode == domsearch.FusionRank && len(resolved) == 1 {
		model := resolved[0]
		list, supported, err := s.retr.NativeHybrid(
			ctx, req.Query, model, vectors[model], req.HybridBalance, req.Size,
		)
		if err != nil {
			degrade("hybrid:"+string(model), err)
			return false
		}
		if supported {
			s.publishHybrid(out, mu, req.Query, "native", resolved, list, start)
			return true
		}
	}

	lex, err := s.retr.Lexical(ctx, req.Query, req.Size)
	if err != nil {
		degrade("hybrid", fmt.Errorf("hybrid lexical leg: %w", err))
		return false
	}

	knn := make([]domsearch.RankedList, 0, len(resolved))
	for _, model := range resolved {
		list, err := s.retr.KNN(ctx, model, vectors[model], req.Size)
		if err != nil {
			degrade("hybrid:"+string(model), fmt.Errorf("hybrid vector leg: %w", err))
			continue
		}
		knn = append(knn, list)
	}
	if len(knn) == 0 {
		return false
	}

	sem := knn[0]
	if len(knn) > 1 {
		sem = unionMax(knn, 0)
	}

	// Fusion needs both signals. With either side empty the hybrid slot
	// stays null rather than echoing the surviving list.
	if len(lex.Hits) == 0 || len(sem.Hits) == 0 {
		metrics.FusionTotal.WithLabelValues("skipped").Inc()
		return true
	}

	var (
		result   domsearch.RankedList
		strategy string
	)
	if req.FusionMode == domsearch.FusionRank {
		result = fuseRRF([]domsearch.RankedList{lex, sem}, req.Size)
		strategy = "rrf"
	} else {
		result = fuseWeighted(lex, sem, req.HybridBalance, req.Size)
		strategy = "weighted"
	}
	s.publishHybrid(out, mu, req.Query, strategy, resolved, result, start)
	return true
}

// publishHybrid stamps timing, records fusion metrics and writes the
// hybrid slot. The source label names the strategy actually used, not the
// one requested.
func (s *Service) publishHybrid(
	out *domsearch.UnifiedResult,
	mu *sync.Mutex,
	query, strategy string,
	models []domain.ModelKey,
	result domsearch.RankedList,
	start time.Time,
) {
	result.TookMillis = time.Since(start).Milliseconds()

	metrics.FusionTotal.WithLabelValues(strategy).Inc()
	metrics.RetrievalDuration.WithLabelValues("hybrid").
		Observe(time.Since(start).Seconds())

	mu.Lock()
	defer mu.Unlock()
	out.Hybrid = &domsearch.HybridResult{
		Source:  hybridSource(strategy, models),
		Results: result,
	}
	out.Meta.TookMillis["hybrid"] = result.TookMillis
	out.Meta.Queries["hybrid"] = query
}

func (s *Service) hybridModels(mode domsearch.HybridMode) []domain.ModelKey {
	switch mode {
	case domsearch.HybridImage:
		return []domain.ModelKey{s.imageModel}
	case domsearch.HybridBoth:
		if s.textModel == s.imageModel {
			return []domain.ModelKey{s.textModel}
		}
		return []domain.ModelKey{s.textModel, s.imageModel}
	default:
		return []domain.ModelKey{s.textModel}
	}
}

func hybridSource(strategy string, models []domain.ModelKey) string {
	keys := make([]string, len(models))
	for i, m := range models {
		keys[i] = string(m)
	}
	return fmt.Sprintf("%s(keyword+%s)", strategy, strings.Join(keys, "+"))
}

// redactedVector is the query echo for vector sub-searches; raw embeddings
// never leave the service.
func redactedVector(model domain.ModelKey) string {
	info, _ := domain.Model(model)
	return fmt.Sprintf("<%d-d %s vector>", info.Dimensions, model)
}

func unionModels(a, b []domain.ModelKey) []domain.ModelKey {
	seen := make(map[domain.ModelKey]bool, len(a)+len(b))
	out := make([]domain.ModelKey, 0, len(a)+len(b))
	for _, list := range [][]domain.ModelKey{a, b} {
		for _, k := range list {
			if seen[k] {
				continue
			}
			seen[k] = true
			out = append(out, k)
		}
	}
	return out
}

func emptyList() domsearch.RankedList {
	return domsearch.RankedList{Hits: []domsearch.Hit{}}
}

func stripDescriptions(out *domsearch.UnifiedResult) {
	strip := func(list *domsearch.RankedList) {
		for i := range list.Hits {
			list.Hits[i].Artwork.Description = ""
		}
	}
	if out.Keyword != nil {
		strip(out.Keyword)
	}
	for key, list := range out.Semantic {
		strip(&list)
		out.Semantic[key] = list
	}
	if out.Hybrid != nil {
		strip(&out.Hybrid.Results)
	}
}
