package db

import (
	"context"
	"time"
)

// Store is the full search-index backend contract.
type Store interface {
	Pinger
	KVStore
	JSONStore
	IndexManager
	Searcher
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks backend connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides plain key-value operations with expiry, used by the
// durable embedding-cache tier.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}

// JSONStore provides JSON document operations.
type JSONStore interface {
	JSONSet(ctx context.Context, key, path string, data []byte) error
	JSONGet(ctx context.Context, key string, paths ...string) ([]byte, error)
}

// IndexManager manages FT index lifecycle.
type IndexManager interface {
	CreateIndex(ctx context.Context, def *IndexDefinition) error
	IndexExists(ctx context.Context, name string) (bool, error)
}

// Searcher executes index queries.
type Searcher interface {
	SearchText(ctx context.Context, q *TextQuery) (*SearchResult, error)
	SearchKNN(ctx context.Context, q *KNNQuery) (*SearchResult, error)
	// SearchHybrid issues one backend-fused lexical+vector query.
	// Callers must check SupportsHybridQuery first.
	SearchHybrid(ctx context.Context, q *HybridQuery) (*SearchResult, error)
	SearchCount(ctx context.Context, index, query string) (int, error)
	SupportsHybridQuery(ctx context.Context) bool
}

// TextQuery is a lexical full-text query.
type TextQuery struct {
	IndexName string
	// Query is a raw FT query string; callers escape/build it.
	Query        string
	TopK         int
	ReturnFields []string
}

// KNNQuery is an approximate nearest-neighbor query over one vector field.
type KNNQuery struct {
	IndexName string
	Field     string
	Vector    []float32
	// K is the candidate count requested from the index; callers over-fetch
	// beyond the display size and truncate after.
	K            int
	ReturnFields []string
}

// HybridQuery is a backend-native fused lexical+vector query.
type HybridQuery struct {
	IndexName string
	Query     string
	Field     string
	Vector    []float32
	// Alpha weights the vector contribution in [0,1]; lexical gets 1-alpha.
	Alpha        float64
	TopK         int
	ReturnFields []string
}

// SearchEntry is one raw hit from the index.
type SearchEntry struct {
	Key    string
	Score  float64
	Fields map[string]string
}

// SearchResult is the raw outcome of one index query.
type SearchResult struct {
	Total   int
	Entries []SearchEntry
}
