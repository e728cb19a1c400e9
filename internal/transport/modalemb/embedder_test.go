package modalemb

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/domain"
)

func newTestEmbedder(t *testing.T, handler http.HandlerFunc) *Embedder {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewEmbedder(&Config{BaseURL: srv.URL, Logger: zap.NewNop()})
}

func vectorOf(dim int, val float32) []float32 {
	v := make([]float32, dim)
	for i := range v {
		v[i] = val
	}
	return v
}

func TestEmbedTextAllModels(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed_text" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["text"] != "starry night" {
			t.Errorf("unexpected text %q", req["text"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": map[string]any{
				"jina_v3": map[string]any{"embedding": vectorOf(768, 0.1), "dimension": 768},
				"siglip2": map[string]any{"embedding": vectorOf(768, 0.2), "dimension": 768},
			},
		})
	})

	got, err := e.EmbedText(context.Background(), "starry night",
		[]domain.ModelKey{domain.ModelJinaV3, domain.ModelSigLIP2})
	if err != nil {
		t.Fatalf("EmbedText() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d models, want 2", len(got))
	}
	if len(got[domain.ModelJinaV3]) != 768 {
		t.Errorf("jina_v3 vector has %d dims, want 768", len(got[domain.ModelJinaV3]))
	}
}

func TestEmbedTextPartialFailure(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": map[string]any{
				"jina_v3": map[string]any{"embedding": vectorOf(768, 0.1), "dimension": 768},
				"siglip2": map[string]any{"error": "model load failed"},
			},
		})
	})

	got, err := e.EmbedText(context.Background(), "q",
		[]domain.ModelKey{domain.ModelJinaV3, domain.ModelSigLIP2})
	if err != nil {
		t.Fatalf("EmbedText() error = %v", err)
	}
	if _, ok := got[domain.ModelSigLIP2]; ok {
		t.Error("expected siglip2 to be omitted")
	}
	if _, ok := got[domain.ModelJinaV3]; !ok {
		t.Error("expected jina_v3 to survive partial failure")
	}
}

func TestEmbedTextAllFailed(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"embeddings": map[string]any{}})
	})

	_, err := e.EmbedText(context.Background(), "q", []domain.ModelKey{domain.ModelJinaV3})
	if !errors.Is(err, domain.ErrEmbeddingBackend) {
		t.Errorf("error = %v, want ErrEmbeddingBackend", err)
	}
}

func TestEmbedTextBackendError(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"cuda out of memory"}`))
	})

	_, err := e.EmbedText(context.Background(), "q", []domain.ModelKey{domain.ModelJinaV3})
	if !errors.Is(err, domain.ErrEmbeddingBackend) {
		t.Errorf("error = %v, want ErrEmbeddingBackend", err)
	}
}

func TestEmbedTextDimensionMismatch(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": map[string]any{
				"jina_v3": map[string]any{"embedding": vectorOf(12, 0.1), "dimension": 12},
			},
		})
	})

	_, err := e.EmbedText(context.Background(), "q", []domain.ModelKey{domain.ModelJinaV3})
	if !errors.Is(err, domain.ErrEmbeddingBackend) {
		t.Errorf("error = %v, want ErrEmbeddingBackend", err)
	}
}

func TestEmbedImage(t *testing.T) {
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/embed_image" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		var req map[string]string
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		if req["image"] == "" {
			t.Error("expected base64 image payload")
		}
		if req["model"] != "siglip2" {
			t.Errorf("unexpected model %q", req["model"])
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"embeddings": map[string]any{
				"siglip2": map[string]any{"embedding": vectorOf(768, 0.3), "dimension": 768},
			},
		})
	})

	got, err := e.EmbedImage(context.Background(), []byte{0xFF, 0xD8, 0xFF}, domain.ModelSigLIP2)
	if err != nil {
		t.Fatalf("EmbedImage() error = %v", err)
	}
	if len(got) != 768 {
		t.Errorf("vector has %d dims, want 768", len(got))
	}
}

func TestEmbedImageTextOnlyModel(t *testing.T) {
	e := NewEmbedder(&Config{BaseURL: "http://unused", Logger: zap.NewNop()})

	_, err := e.EmbedImage(context.Background(), []byte{1}, domain.ModelJinaV3)
	if !errors.Is(err, domain.ErrImageNotSupported) {
		t.Errorf("error = %v, want ErrImageNotSupported", err)
	}
}

func TestWarmup(t *testing.T) {
	hits := 0
	e := newTestEmbedder(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		hits++
		w.WriteHeader(http.StatusOK)
	})

	if err := e.Warmup(context.Background()); err != nil {
		t.Fatalf("Warmup() error = %v", err)
	}
	if hits != 1 {
		t.Errorf("health endpoint hit %d times, want 1", hits)
	}
}
