package search

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/musegraph/artsearch/internal/db"
)

// mockStore implements the consumer interface for tests.
type mockStore struct {
	searchTextFn          func(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error)
	searchKNNFn           func(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error)
	searchHybridFn        func(ctx context.Context, q *db.HybridQuery) (*db.SearchResult, error)
	supportsHybridQueryFn func(ctx context.Context) bool
}

func (m *mockStore) SearchText(ctx context.Context, q *db.TextQuery) (*db.SearchResult, error) {
	if m.searchTextFn != nil {
		return m.searchTextFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchKNN(ctx context.Context, q *db.KNNQuery) (*db.SearchResult, error) {
	if m.searchKNNFn != nil {
		return m.searchKNNFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SearchHybrid(ctx context.Context, q *db.HybridQuery) (*db.SearchResult, error) {
	if m.searchHybridFn != nil {
		return m.searchHybridFn(ctx, q)
	}
	return &db.SearchResult{}, nil
}

func (m *mockStore) SupportsHybridQuery(ctx context.Context) bool {
	if m.supportsHybridQueryFn != nil {
		return m.supportsHybridQueryFn(ctx)
	}
	return false
}

func newTestRepo(t *testing.T) (*Repo, *mockStore) {
	t.Helper()
	ms := &mockStore{}
	repo := New(ms, Config{})
	return repo, ms
}

func testVector() []float32 {
	vec := make([]float32, 768)
	for i := range vec {
		vec[i] = 0.1
	}
	return vec
}

func artworkDoc(t *testing.T, title, artist string) string {
	t.Helper()
	doc := map[string]any{
		"title":  title,
		"artist": artist,
		"embeddings": map[string]any{
			"jina_v3": []float32{0.1, 0.2},
		},
	}
	data, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal doc: %v", err)
	}
	return string(data)
}
