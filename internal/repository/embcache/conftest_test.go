package embcache

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/db"
	"github.com/musegraph/artsearch/internal/domain"
)

// mockKV implements the durable-tier consumer interface for tests.
type mockKV struct {
	data    map[string][]byte
	getErr  error
	setErr  error
	setTTLs map[string]time.Duration
}

func newMockKV() *mockKV {
	return &mockKV{
		data:    make(map[string][]byte),
		setTTLs: make(map[string]time.Duration),
	}
}

func (m *mockKV) Get(_ context.Context, key string) ([]byte, error) {
	if m.getErr != nil {
		return nil, m.getErr
	}
	data, ok := m.data[key]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return data, nil
}

func (m *mockKV) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.setErr != nil {
		return m.setErr
	}
	m.data[key] = value
	m.setTTLs[key] = ttl
	return nil
}

func newTestCache(t *testing.T, kv *mockKV) *Cache {
	t.Helper()
	return New(kv, 16, time.Hour, 10*time.Minute, nil, zap.NewNop())
}

func testVectors() map[domain.ModelKey][]float32 {
	return map[domain.ModelKey][]float32{
		domain.ModelJinaV3: {0.1, 0.2, 0.3},
	}
}
