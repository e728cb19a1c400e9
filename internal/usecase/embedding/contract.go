package embedding

import (
	"context"

	"github.com/musegraph/artsearch/internal/domain"
)

// Cache stores resolved query embeddings across requests.
type Cache interface {
	Get(ctx context.Context, query string) (domain.EmbeddingBundle, bool)
	Put(ctx context.Context, query string, vectors map[domain.ModelKey][]float32)
}
