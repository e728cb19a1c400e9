package artsearch

import (
	"time"

	"go.uber.org/zap"
)

// Option configures the Client.
type Option func(*clientConfig)

type clientConfig struct {
	addrs    []string
	username string
	password string

	indexName       string
	overfetchFactor int
	minCandidates   int
	hnswM           int
	hnswEFConstruct int

	modalBaseURL string
	modalTimeout time.Duration

	openAIKey     string
	openAIBaseURL string
	// openAIModels maps registry model keys to upstream identifiers.
	openAIModels map[string]string

	cacheCapacity     int
	cacheTTL          time.Duration
	cacheRefreshAfter time.Duration

	textModel  string
	imageModel string

	logger *zap.Logger
}

// WithRedis sets Redis connection addresses.
func WithRedis(addrs ...string) Option {
	return func(c *clientConfig) {
		c.addrs = addrs
	}
}

// WithAuth sets database credentials.
func WithAuth(username, password string) Option {
	return func(c *clientConfig) {
		c.username = username
		c.password = password
	}
}

// WithIndexName sets the artwork index name (default "artworks").
func WithIndexName(name string) Option {
	return func(c *clientConfig) {
		c.indexName = name
	}
}

// WithHNSW overrides HNSW index build parameters.
func WithHNSW(m, efConstruct int) Option {
	return func(c *clientConfig) {
		c.hnswM = m
		c.hnswEFConstruct = efConstruct
	}
}

// WithOverfetch tunes KNN candidate overfetching for fusion quality.
func WithOverfetch(factor, minCandidates int) Option {
	return func(c *clientConfig) {
		c.overfetchFactor = factor
		c.minCandidates = minCandidates
	}
}

// WithModalEndpoint points the client at the GPU embedding service.
func WithModalEndpoint(baseURL string, timeout time.Duration) Option {
	return func(c *clientConfig) {
		c.modalBaseURL = baseURL
		c.modalTimeout = timeout
	}
}

// WithOpenAI routes the listed models through an OpenAI-compatible
// embeddings API. models maps registry keys to upstream model names.
func WithOpenAI(apiKey, baseURL string, models map[string]string) Option {
	return func(c *clientConfig) {
		c.openAIKey = apiKey
		c.openAIBaseURL = baseURL
		c.openAIModels = models
	}
}

// WithEmbeddingCache tunes the two-tier embedding cache.
func WithEmbeddingCache(capacity int, ttl, refreshAfter time.Duration) Option {
	return func(c *clientConfig) {
		c.cacheCapacity = capacity
		c.cacheTTL = ttl
		c.cacheRefreshAfter = refreshAfter
	}
}

// WithHybridModels pins the model pairing for hybrid search modes.
func WithHybridModels(textModel, imageModel string) Option {
	return func(c *clientConfig) {
		c.textModel = textModel
		c.imageModel = imageModel
	}
}

// WithLogger sets the structured logger (default: no-op).
func WithLogger(logger *zap.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}
