// Package artsearch is the embedded SDK for the artwork search engine: the
// same retrieval, fusion, and caching stack as the HTTP server, wired for
// direct use from Go programs.
package artsearch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/db"
	dbRedis "github.com/musegraph/artsearch/internal/db/redis"
	"github.com/musegraph/artsearch/internal/domain"
	artworkrepo "github.com/musegraph/artsearch/internal/repository/artwork"
	"github.com/musegraph/artsearch/internal/repository/embcache"
	searchrepo "github.com/musegraph/artsearch/internal/repository/search"
	"github.com/musegraph/artsearch/internal/transport/modalemb"
	openaiEmb "github.com/musegraph/artsearch/internal/transport/openai"
	embeddinguc "github.com/musegraph/artsearch/internal/usecase/embedding"
	searchuc "github.com/musegraph/artsearch/internal/usecase/search"
)

const defaultReadinessTimeout = 10 * time.Second

// Client is the artsearch SDK entry point.
type Client struct {
	store     db.Store
	artworks  *artworkrepo.Repo
	resolver  *embeddinguc.Resolver
	searchSvc *searchuc.Service
}

// New creates a Client and connects to the database.
func New(opts ...Option) (*Client, error) {
	cfg := &clientConfig{
		cacheCapacity:     1000,
		cacheTTL:          7 * 24 * time.Hour,
		cacheRefreshAfter: time.Hour,
		textModel:         string(domain.ModelJinaV3),
		imageModel:        string(domain.ModelSigLIP2),
		logger:            zap.NewNop(),
	}
	for _, o := range opts {
		o(cfg)
	}

	if len(cfg.addrs) == 0 {
		return nil, errors.New("artsearch: database address required (use WithRedis)")
	}

	textKey, err := domain.ParseModelKey(cfg.textModel)
	if err != nil {
		return nil, fmt.Errorf("artsearch: text model: %w", err)
	}
	imageKey, err := domain.ParseModelKey(cfg.imageModel)
	if err != nil {
		return nil, fmt.Errorf("artsearch: image model: %w", err)
	}

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.addrs,
		Username: cfg.username,
		Password: cfg.password,
	})
	if err != nil {
		return nil, fmt.Errorf("artsearch: create redis store: %w", err)
	}

	ctx := context.Background()
	if err := store.WaitForReady(ctx, defaultReadinessTimeout); err != nil {
		store.Close()
		return nil, fmt.Errorf("artsearch: database not ready: %w", err)
	}

	return wireClient(store, cfg, textKey, imageKey), nil
}

func wireClient(
	store db.Store, cfg *clientConfig, textKey, imageKey domain.ModelKey,
) *Client {
	cache := embcache.New(
		store, cfg.cacheCapacity, cfg.cacheTTL, cfg.cacheRefreshAfter, nil, cfg.logger,
	)

	providers, imageEmbedder := buildProviders(cfg)
	resolver := embeddinguc.NewResolver(cache, providers, imageEmbedder, cfg.logger)

	artworks := artworkrepo.New(store, cfg.indexName)
	if cfg.hnswM > 0 || cfg.hnswEFConstruct > 0 {
		artworks = artworks.WithHNSW(artworkrepo.HNSWConfig{
			M:           cfg.hnswM,
			EFConstruct: cfg.hnswEFConstruct,
		})
	}

	retriever := searchrepo.New(store, searchrepo.Config{
		IndexName:       cfg.indexName,
		OverfetchFactor: cfg.overfetchFactor,
		MinCandidates:   cfg.minCandidates,
	})

	searchSvc := searchuc.New(retriever, resolver, &searchuc.Config{
		TextModel:  textKey,
		ImageModel: imageKey,
		Logger:     cfg.logger,
	})

	return &Client{
		store:     store,
		artworks:  artworks,
		resolver:  resolver,
		searchSvc: searchSvc,
	}
}

func buildProviders(cfg *clientConfig) (map[domain.ModelKey]domain.TextEmbedder, domain.ImageEmbedder) {
	providers := make(map[domain.ModelKey]domain.TextEmbedder)
	var image domain.ImageEmbedder

	if cfg.modalBaseURL != "" {
		modal := modalemb.NewEmbedder(&modalemb.Config{
			BaseURL: cfg.modalBaseURL,
			Timeout: cfg.modalTimeout,
			Logger:  cfg.logger,
		})
		image = modal
		for _, key := range domain.AllModelKeys() {
			providers[key] = modal
		}
	}

	if cfg.openAIKey != "" && len(cfg.openAIModels) > 0 {
		models := make(map[domain.ModelKey]string, len(cfg.openAIModels))
		for raw, apiModel := range cfg.openAIModels {
			models[domain.ModelKey(raw)] = apiModel
		}
		oa := openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:  cfg.openAIKey,
			BaseURL: cfg.openAIBaseURL,
			Models:  models,
			Logger:  cfg.logger,
		})
		// Explicit OpenAI assignments win over the catch-all GPU service.
		for key := range models {
			providers[key] = oa
		}
	}

	return providers, image
}

// Close releases all resources.
func (c *Client) Close() {
	if c.store != nil {
		c.store.Close()
	}
}

// Ping checks database connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.store.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

// EnsureIndex creates the artwork search index if it does not exist.
func (c *Client) EnsureIndex(ctx context.Context) error {
	if err := c.artworks.EnsureIndex(ctx); err != nil {
		return fmt.Errorf("ensure index: %w", err)
	}
	return nil
}

// Warmup pings the embedding backends so cold ones spin up.
func (c *Client) Warmup(ctx context.Context) {
	c.resolver.Warmup(ctx)
}

// Artwork fetches one artwork document by id.
func (c *Client) Artwork(ctx context.Context, id string) (Artwork, error) {
	artwork, err := c.artworks.Get(ctx, id)
	if err != nil {
		return Artwork{}, fmt.Errorf("artwork: %w", err)
	}
	return fromDomainArtwork(artwork), nil
}

// IndexArtwork stores an artwork document with its per-model vectors.
func (c *Client) IndexArtwork(
	ctx context.Context, artwork Artwork, vectors map[string][]float32,
) error {
	vecs := make(map[domain.ModelKey][]float32, len(vectors))
	for raw, v := range vectors {
		key, err := domain.ParseModelKey(raw)
		if err != nil {
			return fmt.Errorf("index artwork: %w", err)
		}
		vecs[key] = v
	}
	if err := c.artworks.Upsert(ctx, toDomainArtwork(artwork), vecs); err != nil {
		return fmt.Errorf("index artwork: %w", err)
	}
	return nil
}

// Count returns the number of indexed artworks.
func (c *Client) Count(ctx context.Context) (int, error) {
	n, err := c.artworks.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count: %w", err)
	}
	return n, nil
}
