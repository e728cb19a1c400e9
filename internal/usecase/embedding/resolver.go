// Package embedding resolves query text into per-model vectors, cache first.
package embedding

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/musegraph/artsearch/internal/domain"
)

// Resolver turns query text into embedding vectors for a set of models.
// Cached vectors are reused; misses are grouped by provider so each backend
// is called at most once per query.
type Resolver struct {
	cache     Cache
	providers map[domain.ModelKey]domain.TextEmbedder
	image     domain.ImageEmbedder
	logger    *zap.Logger
}

// NewResolver creates an embedding resolver. providers maps each model to
// the embedder that serves it; image may be nil if no provider supports
// image input.
func NewResolver(
	cache Cache,
	providers map[domain.ModelKey]domain.TextEmbedder,
	image domain.ImageEmbedder,
	logger *zap.Logger,
) *Resolver {
	return &Resolver{
		cache:     cache,
		providers: providers,
		image:     image,
		logger:    logger,
	}
}

// Resolve returns a vector for each requested model, resolving from the
// cache where possible and calling providers for the rest. Provider
// failures degrade per model: the returned map holds every model that
// resolved, and an error is returned only when none did.
func (r *Resolver) Resolve(
	ctx context.Context, query string, models []domain.ModelKey,
) (map[domain.ModelKey][]float32, error) {
	if len(models) == 0 {
		return map[domain.ModelKey][]float32{}, nil
	}

	resolved := make(map[domain.ModelKey][]float32, len(models))

	bundle, ok := r.cache.Get(ctx, query)
	if ok {
		for _, key := range models {
			if vec := bundle.Vector(key); len(vec) > 0 {
				resolved[key] = vec
			}
		}
	}

	missing := missingModels(models, resolved)
	if len(missing) == 0 {
		return resolved, nil
	}

	fetched, err := r.fetch(ctx, query, missing)
	if len(fetched) > 0 {
		r.cache.Put(ctx, query, fetched)
		for key, vec := range fetched {
			resolved[key] = vec
		}
	}

	if len(resolved) == 0 {
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("resolve embeddings: %w", domain.ErrEmbeddingBackend)
	}
	if err != nil {
		r.logger.Warn("Partial embedding resolution",
			zap.Int("resolved", len(resolved)),
			zap.Int("requested", len(models)),
			zap.Error(err),
		)
	}
	return resolved, nil
}

// fetch groups the models by provider and calls each provider once,
// concurrently. It returns every vector that arrived; err reports the
// first provider failure (callers decide whether a partial result is
// acceptable).
func (r *Resolver) fetch(
	ctx context.Context, query string, models []domain.ModelKey,
) (map[domain.ModelKey][]float32, error) {
	groups := make(map[domain.TextEmbedder][]domain.ModelKey)
	for _, key := range models {
		provider, ok := r.providers[key]
		if !ok {
			return nil, fmt.Errorf("%w: no provider for %q", domain.ErrUnknownModel, key)
		}
		groups[provider] = append(groups[provider], key)
	}

	var (
		mu      sync.Mutex
		fetched = make(map[domain.ModelKey][]float32, len(models))
		firstE  error
	)

	g, gctx := errgroup.WithContext(ctx)
	for provider, keys := range groups {
		provider, keys := provider, keys
		g.Go(func() error {
			vectors, err := provider.EmbedText(gctx, query, keys)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				r.logger.Warn("Embedding provider failed",
					zap.String("provider", provider.Name()),
					zap.Error(err),
				)
				if firstE == nil {
					firstE = fmt.Errorf("provider %s: %w", provider.Name(), err)
				}
				return nil
			}
			for key, vec := range vectors {
				fetched[key] = vec
			}
			return nil
		})
	}
	_ = g.Wait()

	return fetched, firstE
}

// ResolveImage embeds raw image bytes with a cross-modal model. Image
// payloads are never cached.
func (r *Resolver) ResolveImage(
	ctx context.Context, image []byte, model domain.ModelKey,
) ([]float32, error) {
	info, ok := domain.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownModel, model)
	}
	if !info.SupportsImage {
		return nil, fmt.Errorf("%w: %s", domain.ErrImageNotSupported, model)
	}
	if r.image == nil {
		return nil, fmt.Errorf("no image embedding provider configured: %w", domain.ErrImageNotSupported)
	}
	vec, err := r.image.EmbedImage(ctx, image, model)
	if err != nil {
		return nil, fmt.Errorf("embed image: %w", err)
	}
	return vec, nil
}

// Warmup pings every distinct provider that supports it so cold backends
// spin up before real traffic. Failures are logged, not returned.
func (r *Resolver) Warmup(ctx context.Context) {
	seen := make(map[domain.TextEmbedder]bool)
	for _, provider := range r.providers {
		if seen[provider] {
			continue
		}
		seen[provider] = true
		warmer, ok := provider.(domain.Warmer)
		if !ok {
			continue
		}
		if err := warmer.Warmup(ctx); err != nil {
			r.logger.Warn("Provider warmup failed",
				zap.String("provider", provider.Name()),
				zap.Error(err),
			)
		}
	}
}

func missingModels(
	requested []domain.ModelKey, have map[domain.ModelKey][]float32,
) []domain.ModelKey {
	var missing []domain.ModelKey
	for _, key := range requested {
		if _, ok := have[key]; !ok {
			missing = append(missing, key)
		}
	}
	sort.Slice(missing, func(i, j int) bool { return missing[i] < missing[j] })
	return missing
}
