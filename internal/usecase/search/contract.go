package search

import (
	"context"

	"github.com/musegraph/artsearch/internal/domain"
	domsearch "github.com/musegraph/artsearch/internal/domain/search"
)

// Retriever runs sub-searches against the artwork index.
type Retriever interface {
	Lexical(ctx context.Context, query string, size int) (domsearch.RankedList, error)

	KNN(
		ctx context.Context, model domain.ModelKey, vector []float32, size int,
	) (domsearch.RankedList, error)

	// NativeHybrid reports supported=false when the backend cannot fuse
	// lexical and vector retrieval in one query.
	NativeHybrid(
		ctx context.Context, query string, model domain.ModelKey,
		vector []float32, balance float64, size int,
	) (domsearch.RankedList, bool, error)
}

// Resolver turns query text or image bytes into embedding vectors.
type Resolver interface {
	Resolve(
		ctx context.Context, query string, models []domain.ModelKey,
	) (map[domain.ModelKey][]float32, error)

	ResolveImage(
		ctx context.Context, image []byte, model domain.ModelKey,
	) ([]float32, error)
}
