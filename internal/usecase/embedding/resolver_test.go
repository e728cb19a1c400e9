package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/domain"
)

// --- Mocks ---

type mockCache struct {
	bundle    domain.EmbeddingBundle
	found     bool
	putCalled bool
	putVecs   map[domain.ModelKey][]float32
}

func (m *mockCache) Get(_ context.Context, _ string) (domain.EmbeddingBundle, bool) {
	return m.bundle, m.found
}

func (m *mockCache) Put(_ context.Context, _ string, vectors map[domain.ModelKey][]float32) {
	m.putCalled = true
	m.putVecs = vectors
}

type mockTextEmbedder struct {
	name       string
	vectors    map[domain.ModelKey][]float32
	err        error
	calls      int
	lastModels []domain.ModelKey
}

func (m *mockTextEmbedder) Name() string { return m.name }

func (m *mockTextEmbedder) EmbedText(
	_ context.Context, _ string, models []domain.ModelKey,
) (map[domain.ModelKey][]float32, error) {
	m.calls++
	m.lastModels = models
	return m.vectors, m.err
}

type mockImageEmbedder struct {
	vec    []float32
	err    error
	called bool
}

func (m *mockImageEmbedder) EmbedImage(
	_ context.Context, _ []byte, _ domain.ModelKey,
) ([]float32, error) {
	m.called = true
	return m.vec, m.err
}

func bundleWith(keys ...domain.ModelKey) domain.EmbeddingBundle {
	vectors := make(map[domain.ModelKey][]float32, len(keys))
	for _, k := range keys {
		vectors[k] = []float32{0.1, 0.2}
	}
	return domain.EmbeddingBundle{Vectors: vectors}
}

// --- Tests ---

func TestResolveCacheHit(t *testing.T) {
	cache := &mockCache{bundle: bundleWith(domain.ModelJinaV3, domain.ModelSigLIP2), found: true}
	provider := &mockTextEmbedder{name: "modal"}
	r := NewResolver(cache, map[domain.ModelKey]domain.TextEmbedder{
		domain.ModelJinaV3: provider,
		domain.ModelSigLIP2: provider,
	}, nil, zap.NewNop())

	got, err := r.Resolve(context.Background(), "sunflowers",
		[]domain.ModelKey{domain.ModelJinaV3, domain.ModelSigLIP2})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("resolved %d models, want 2", len(got))
	}
	if provider.calls != 0 {
		t.Errorf("provider called %d times on full cache hit, want 0", provider.calls)
	}
	if cache.putCalled {
		t.Error("cache written on full hit")
	}
}

func TestResolvePartialHitFetchesOnlyMissing(t *testing.T) {
	cache := &mockCache{bundle: bundleWith(domain.ModelJinaV3), found: true}
	provider := &mockTextEmbedder{
		name:    "modal",
		vectors: map[domain.ModelKey][]float32{domain.ModelSigLIP2: {0.3, 0.4}},
	}
	r := NewResolver(cache, map[domain.ModelKey]domain.TextEmbedder{
		domain.ModelJinaV3: provider,
		domain.ModelSigLIP2: provider,
	}, nil, zap.NewNop())

	got, err := r.Resolve(context.Background(), "sunflowers",
		[]domain.ModelKey{domain.ModelJinaV3, domain.ModelSigLIP2})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("resolved %d models, want 2", len(got))
	}
	if len(provider.lastModels) != 1 || provider.lastModels[0] != domain.ModelSigLIP2 {
		t.Errorf("provider asked for %v, want only siglip2", provider.lastModels)
	}
	if !cache.putCalled {
		t.Error("fetched vectors not written back to cache")
	}
	if _, ok := cache.putVecs[domain.ModelJinaV3]; ok {
		t.Error("cached vector re-written on partial hit")
	}
}

func TestResolveEmptyCachedVectorRefetches(t *testing.T) {
	bundle := domain.EmbeddingBundle{
		Vectors: map[domain.ModelKey][]float32{domain.ModelJinaV3: {}},
	}
	cache := &mockCache{bundle: bundle, found: true}
	provider := &mockTextEmbedder{
		name:    "modal",
		vectors: map[domain.ModelKey][]float32{domain.ModelJinaV3: {0.1, 0.2}},
	}
	r := NewResolver(cache, map[domain.ModelKey]domain.TextEmbedder{
		domain.ModelJinaV3: provider,
	}, nil, zap.NewNop())

	got, err := r.Resolve(context.Background(), "sunflowers",
		[]domain.ModelKey{domain.ModelJinaV3})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if len(got[domain.ModelJinaV3]) != 2 {
		t.Errorf("vector = %v, want the refetched one", got[domain.ModelJinaV3])
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1 for the empty cached slot", provider.calls)
	}
}

func TestResolveProviderFailureDegrades(t *testing.T) {
	cache := &mockCache{}
	okProvider := &mockTextEmbedder{
		name:    "modal",
		vectors: map[domain.ModelKey][]float32{domain.ModelJinaV3: {0.1}},
	}
	badProvider := &mockTextEmbedder{name: "openai", err: domain.ErrEmbeddingBackend}
	r := NewResolver(cache, map[domain.ModelKey]domain.TextEmbedder{
		domain.ModelJinaV3: okProvider,
		domain.ModelSigLIP2: badProvider,
	}, nil, zap.NewNop())

	got, err := r.Resolve(context.Background(), "q",
		[]domain.ModelKey{domain.ModelJinaV3, domain.ModelSigLIP2})
	if err != nil {
		t.Fatalf("Resolve() error = %v, want degraded success", err)
	}
	if _, ok := got[domain.ModelJinaV3]; !ok {
		t.Error("healthy provider's model missing from result")
	}
	if _, ok := got[domain.ModelSigLIP2]; ok {
		t.Error("failed provider's model present in result")
	}
}

func TestResolveAllProvidersFail(t *testing.T) {
	cache := &mockCache{}
	bad := &mockTextEmbedder{name: "modal", err: errors.New("boom")}
	r := NewResolver(cache, map[domain.ModelKey]domain.TextEmbedder{
		domain.ModelJinaV3: bad,
	}, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), "q", []domain.ModelKey{domain.ModelJinaV3})
	if err == nil {
		t.Fatal("expected error when nothing resolves")
	}
}

func TestResolveUnknownModel(t *testing.T) {
	r := NewResolver(&mockCache{}, map[domain.ModelKey]domain.TextEmbedder{}, nil, zap.NewNop())

	_, err := r.Resolve(context.Background(), "q", []domain.ModelKey{domain.ModelKey("clip_v1")})
	if !errors.Is(err, domain.ErrUnknownModel) {
		t.Errorf("error = %v, want ErrUnknownModel", err)
	}
}

func TestResolveImage(t *testing.T) {
	img := &mockImageEmbedder{vec: []float32{0.5}}
	r := NewResolver(&mockCache{}, nil, img, zap.NewNop())

	got, err := r.ResolveImage(context.Background(), []byte{1, 2}, domain.ModelSigLIP2)
	if err != nil {
		t.Fatalf("ResolveImage() error = %v", err)
	}
	if !img.called {
		t.Error("image embedder not called")
	}
	if len(got) != 1 {
		t.Errorf("vector len = %d, want 1", len(got))
	}
}

func TestResolveImageTextOnlyModel(t *testing.T) {
	r := NewResolver(&mockCache{}, nil, &mockImageEmbedder{}, zap.NewNop())

	_, err := r.ResolveImage(context.Background(), []byte{1}, domain.ModelJinaV3)
	if !errors.Is(err, domain.ErrImageNotSupported) {
		t.Errorf("error = %v, want ErrImageNotSupported", err)
	}
}

func TestWarmupSkipsNonWarmers(t *testing.T) {
	provider := &mockTextEmbedder{name: "openai"}
	r := NewResolver(&mockCache{}, map[domain.ModelKey]domain.TextEmbedder{
		domain.ModelJinaV3: provider,
	}, nil, zap.NewNop())

	// Must not panic on providers without warmup support.
	r.Warmup(context.Background())
}
