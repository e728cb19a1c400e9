package embcache

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/db"
	"github.com/musegraph/artsearch/internal/domain"
)

var cacheKeyPrefix = domain.KeyPrefix + "emb_cache:"

// store is the consumer interface for the durable cache tier (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// Cache is a two-tier query-embedding cache: a bounded in-process LRU in
// front of a shared key-value store. Both tiers enforce the same TTL, and
// neither tier's failure ever fails a request.
type Cache struct {
	store        store // nil when the durable tier is not configured
	local        *lru.Cache[string, domain.EmbeddingBundle]
	ttl          time.Duration
	refreshAfter time.Duration
	cacheTotal   *prometheus.CounterVec
	logger       *zap.Logger
	now          func() time.Time
}

// New creates a cache with the given local capacity and lifetimes.
// cacheTotal is a counter vec with labels "result"/"tier"; it may be nil.
func New(
	s store,
	capacity int,
	ttl, refreshAfter time.Duration,
	cacheTotal *prometheus.CounterVec,
	logger *zap.Logger,
) *Cache {
	local, _ := lru.New[string, domain.EmbeddingBundle](capacity)
	return &Cache{
		store:        s,
		local:        local,
		ttl:          ttl,
		refreshAfter: refreshAfter,
		cacheTotal:   cacheTotal,
		logger:       logger,
		now:          time.Now,
	}
}

// Fold canonicalizes a query for cache keying: incidental whitespace and
// letter case never split cache slots.
func Fold(query string) string {
	return strings.ToLower(strings.TrimSpace(query))
}

// Get returns the cached bundle for a query. The bundle may cover only a
// subset of registry models; callers check coverage themselves.
func (c *Cache) Get(ctx context.Context, query string) (domain.EmbeddingBundle, bool) {
	key := c.key(query)

	if bundle, ok := c.local.Get(key); ok {
		if c.now().Sub(bundle.RefreshedAt) < c.ttl {
			c.incCache("hit", "local")
			return bundle, true
		}
		c.local.Remove(key)
	}

	if c.store == nil {
		c.incCache("miss", "local")
		return domain.EmbeddingBundle{}, false
	}

	data, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, db.ErrKeyNotFound) {
			c.logger.Warn("Failed to get cached embedding", zap.String("key", key), zap.Error(err))
		}
		c.incCache("miss", "durable")
		return domain.EmbeddingBundle{}, false
	}

	bundle, err := decodeBundle(data)
	if err != nil {
		c.logger.Warn("Failed to parse cached embedding", zap.String("key", key), zap.Error(err))
		c.incCache("miss", "durable")
		return domain.EmbeddingBundle{}, false
	}

	if c.now().Sub(bundle.RefreshedAt) >= c.ttl {
		c.incCache("miss", "durable")
		return domain.EmbeddingBundle{}, false
	}

	// Amortized refresh: bump the timestamp of hot entries at most once per
	// refresh window instead of on every access.
	if c.now().Sub(bundle.RefreshedAt) >= c.refreshAfter {
		refreshed := bundle
		refreshed.RefreshedAt = c.now()
		c.writeDurable(ctx, key, refreshed)
		bundle = refreshed
	}

	c.local.Add(key, bundle)
	c.incCache("hit", "durable")
	return bundle, true
}

// Put stores freshly resolved vectors, merging them into any bundle already
// cached for the query. Existing vectors are write-once and never replaced.
func (c *Cache) Put(ctx context.Context, query string, vectors map[domain.ModelKey][]float32) {
	if len(vectors) == 0 {
		return
	}
	key := c.key(query)

	merged := make(map[domain.ModelKey][]float32, len(vectors))
	if existing, ok := c.local.Get(key); ok {
		for k, v := range existing.Vectors {
			merged[k] = v
		}
	} else if c.store != nil {
		if data, err := c.store.Get(ctx, key); err == nil {
			if existing, err := decodeBundle(data); err == nil {
				for k, v := range existing.Vectors {
					merged[k] = v
				}
			}
		}
	}
	for k, v := range vectors {
		if _, ok := merged[k]; !ok {
			merged[k] = v
		}
	}

	bundle := domain.EmbeddingBundle{Vectors: merged, RefreshedAt: c.now()}
	c.local.Add(key, bundle)
	if c.store != nil {
		c.writeDurable(ctx, key, bundle)
	}
}

func (c *Cache) writeDurable(ctx context.Context, key string, bundle domain.EmbeddingBundle) {
	data, err := encodeBundle(bundle)
	if err != nil {
		c.logger.Warn("Failed to encode embedding bundle", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.SetWithTTL(ctx, key, data, c.ttl); err != nil {
		c.logger.Warn("Failed to cache embedding", zap.String("key", key), zap.Error(err))
	}
}

func (c *Cache) key(query string) string {
	h := sha256.Sum256([]byte(Fold(query)))
	return cacheKeyPrefix + hex.EncodeToString(h[:])
}

func (c *Cache) incCache(result, tier string) {
	if c.cacheTotal != nil {
		c.cacheTotal.WithLabelValues(result, tier).Inc()
	}
}

// envelope is the durable-tier wire format: vectors as base64 float32 LE.
type envelope struct {
	RefreshedAt int64             `json:"refreshed_at"`
	Vectors     map[string]string `json:"vectors"`
}

func encodeBundle(bundle domain.EmbeddingBundle) ([]byte, error) {
	env := envelope{
		RefreshedAt: bundle.RefreshedAt.Unix(),
		Vectors:     make(map[string]string, len(bundle.Vectors)),
	}
	for key, vec := range bundle.Vectors {
		env.Vectors[string(key)] = base64.StdEncoding.EncodeToString(vectorToBytes(vec))
	}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal bundle: %w", err)
	}
	return data, nil
}

func decodeBundle(data []byte) (domain.EmbeddingBundle, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return domain.EmbeddingBundle{}, fmt.Errorf("unmarshal bundle: %w", err)
	}

	bundle := domain.EmbeddingBundle{
		Vectors:     make(map[domain.ModelKey][]float32, len(env.Vectors)),
		RefreshedAt: time.Unix(env.RefreshedAt, 0),
	}
	for raw, encoded := range env.Vectors {
		key, err := domain.ParseModelKey(raw)
		if err != nil {
			// A model removed from the registry; skip its vector.
			continue
		}
		blob, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return domain.EmbeddingBundle{}, fmt.Errorf("decode vector %s: %w", key, err)
		}
		vec, err := bytesToVector(blob)
		if err != nil {
			return domain.EmbeddingBundle{}, fmt.Errorf("decode vector %s: %w", key, err)
		}
		bundle.Vectors[key] = vec
	}
	return bundle, nil
}

func vectorToBytes(v []float32) []byte {
	buf := make([]byte, len(v)*4)
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func bytesToVector(data []byte) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("invalid embedding data: len=%d (not multiple of 4)", len(data))
	}
	vec := make([]float32, len(data)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return vec, nil
}
