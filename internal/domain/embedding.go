package domain

import (
	"context"
	"time"
)

// EmbeddingBundle holds per-model query vectors resolved for one query.
// Vector values are write-once; only RefreshedAt is ever updated.
type EmbeddingBundle struct {
	Vectors     map[ModelKey][]float32
	RefreshedAt time.Time
}

// Vector returns the vector for a model, nil when absent.
func (b EmbeddingBundle) Vector(key ModelKey) []float32 {
	return b.Vectors[key]
}

// Covers reports whether the bundle has a vector for every given model.
func (b EmbeddingBundle) Covers(keys []ModelKey) bool {
	for _, k := range keys {
		if len(b.Vectors[k]) == 0 {
			return false
		}
	}
	return true
}

// Missing returns the subset of keys the bundle has no vector for,
// preserving input order.
func (b EmbeddingBundle) Missing(keys []ModelKey) []ModelKey {
	var missing []ModelKey
	for _, k := range keys {
		if len(b.Vectors[k]) == 0 {
			missing = append(missing, k)
		}
	}
	return missing
}

// TextEmbedder is an embedding backend producing vectors for text queries.
// One backend may serve several models; implementations resolve all requested
// models in a single upstream round trip where the wire protocol allows it.
type TextEmbedder interface {
	// Name identifies the backend for logs, metrics and config wiring.
	Name() string
	EmbedText(ctx context.Context, text string, models []ModelKey) (map[ModelKey][]float32, error)
}

// ImageEmbedder is an embedding backend accepting raw image payloads.
type ImageEmbedder interface {
	EmbedImage(ctx context.Context, image []byte, model ModelKey) ([]float32, error)
}

// Warmer is implemented by backends whose compute goes cold when idle.
// Warmup is best effort; correctness never depends on it.
type Warmer interface {
	Warmup(ctx context.Context) error
}

// HealthChecker verifies embedding backend availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
