package artwork

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/musegraph/artsearch/internal/db"
	"github.com/musegraph/artsearch/internal/domain"
)

// store is the consumer interface for artwork documents (ISP).
type store interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
	CreateIndex(ctx context.Context, def *db.IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
}

// HNSWConfig tunes the vector index graph.
type HNSWConfig struct {
	M           int
	EFConstruct int
}

// Repo reads and writes artwork documents and owns the FT index definition.
type Repo struct {
	store     store
	index     string
	keyPrefix string
	hnsw      HNSWConfig
}

// New creates an artwork repository for the named index.
func New(s store, indexName string) *Repo {
	if indexName == "" {
		indexName = "artworks"
	}
	return &Repo{
		store:     s,
		index:     domain.KeyPrefix + indexName + ":idx",
		keyPrefix: domain.KeyPrefix + indexName + ":",
	}
}

// WithHNSW overrides HNSW index parameters.
func (r *Repo) WithHNSW(cfg HNSWConfig) *Repo {
	r.hnsw = cfg
	return r
}

// EnsureIndex creates the artworks FT index if it does not exist yet:
// weighted text fields for lexical relevance plus one HNSW vector field per
// registered model.
func (r *Repo) EnsureIndex(ctx context.Context) error {
	exists, err := r.store.IndexExists(ctx, r.index)
	if err != nil {
		return fmt.Errorf("check index %s: %w", r.index, err)
	}
	if exists {
		return nil
	}

	builder := db.NewIndex(r.index).
		OnJSON().
		Prefix(r.keyPrefix).
		TextWeighted("$.title", "title", 5).
		TextWeighted("$.artist", "artist", 3).
		TextWeighted("$.classification", "classification", 2).
		Text("$.medium", "medium").
		Text("$.date", "date").
		Text("$.department", "department").
		Text("$.description", "description").
		Tag("$.collection", "collection")

	for _, key := range domain.AllModelKeys() {
		info, _ := domain.Model(key)
		builder = builder.VectorHNSW(
			"$.embeddings."+string(key), info.VectorField,
			info.Dimensions, db.DistanceCosine,
			r.hnsw.M, r.hnsw.EFConstruct,
		)
	}

	def, err := builder.Build()
	if err != nil {
		return fmt.Errorf("build index definition: %w", err)
	}

	if err := r.store.CreateIndex(ctx, def); err != nil && !errors.Is(err, db.ErrIndexExists) {
		return fmt.Errorf("create index %s: %w", r.index, err)
	}
	return nil
}

// Get returns one artwork by id with embeddings stripped.
func (r *Repo) Get(ctx context.Context, id string) (domain.Artwork, error) {
	data, err := r.store.JSONGet(ctx, r.keyPrefix+id)
	if err != nil {
		if errors.Is(err, db.ErrKeyNotFound) {
			return domain.Artwork{}, fmt.Errorf("%w: %s", domain.ErrArtworkNotFound, id)
		}
		return domain.Artwork{}, fmt.Errorf("get artwork %s: %w", id, err)
	}

	var env docEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.Artwork{}, fmt.Errorf("unmarshal artwork %s: %w", id, err)
	}

	artwork := env.Artwork
	artwork.ID = id
	return artwork, nil
}

// Upsert writes an artwork document with its per-model vectors.
func (r *Repo) Upsert(ctx context.Context, artwork domain.Artwork, vectors map[domain.ModelKey][]float32) error {
	if artwork.ID == "" {
		return fmt.Errorf("%w: artwork id is required", domain.ErrValidation)
	}
	for key, vec := range vectors {
		info, ok := domain.Model(key)
		if !ok {
			return fmt.Errorf("%w: %q", domain.ErrUnknownModel, key)
		}
		if len(vec) != info.Dimensions {
			return fmt.Errorf("%w: model %s expects %d dimensions, got %d",
				domain.ErrValidation, key, info.Dimensions, len(vec))
		}
	}

	env := docEnvelope{Artwork: artwork}
	if len(vectors) > 0 {
		env.Embeddings = make(map[string][]float32, len(vectors))
		for key, vec := range vectors {
			env.Embeddings[string(key)] = vec
		}
	}
	env.Artwork.ID = "" // the id lives in the key

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal artwork %s: %w", artwork.ID, err)
	}

	if err := r.store.JSONSet(ctx, r.keyPrefix+artwork.ID, "$", data); err != nil {
		return fmt.Errorf("json.set %s: %w", artwork.ID, err)
	}
	return nil
}

// Count returns the number of indexed documents.
func (r *Repo) Count(ctx context.Context) (int, error) {
	n, err := r.store.SearchCount(ctx, r.index, "*")
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

type docEnvelope struct {
	domain.Artwork
	Embeddings map[string][]float32 `json:"embeddings,omitempty"`
}
