// Package modalemb is the client for the GPU embedding service: one POST
// returns vectors for every text model the service hosts, so multi-model
// queries cost a single round trip. The service scales to zero when idle;
// the first call after a cold start can take tens of seconds.
package modalemb

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/domain"
	"github.com/musegraph/artsearch/internal/metrics"
)

const providerName = "modal"

// Embedder implements domain.TextEmbedder, domain.ImageEmbedder and
// domain.Warmer against the GPU embedding service.
type Embedder struct {
	baseURL string
	client  *http.Client
	logger  *zap.Logger
}

// Config holds the GPU embedding service settings.
type Config struct {
	BaseURL string
	// Timeout must leave room for cold starts.
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewEmbedder creates a GPU embedding service client.
func NewEmbedder(cfg *Config) *Embedder {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &Embedder{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  cfg.Logger,
	}
}

// Name implements domain.TextEmbedder.
func (e *Embedder) Name() string { return providerName }

type textRequest struct {
	Text string `json:"text"`
}

type imageRequest struct {
	Image string `json:"image"`
	Model string `json:"model"`
}

type embedResponse struct {
	Embeddings map[string]modelResult `json:"embeddings"`
	Error      string                 `json:"error,omitempty"`
}

type modelResult struct {
	Embedding []float32 `json:"embedding"`
	Dimension int       `json:"dimension"`
	Error     string    `json:"error,omitempty"`
}

// EmbedText resolves all requested models from one upstream call. Models the
// service did not return (or returned malformed) are omitted; an error is
// returned only when no requested model could be served.
func (e *Embedder) EmbedText(
	ctx context.Context, text string, models []domain.ModelKey,
) (map[domain.ModelKey][]float32, error) {
	label := batchLabel(models)

	start := time.Now()
	resp, err := e.post(ctx, "/embed_text", textRequest{Text: text})
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, label, "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, label, "transport").Inc()
		return nil, err
	}

	out := make(map[domain.ModelKey][]float32, len(models))
	for _, key := range models {
		res, ok := resp.Embeddings[string(key)]
		if !ok || res.Error != "" || len(res.Embedding) == 0 {
			e.logger.Warn("Embedding model missing from backend response",
				zap.String("provider", providerName),
				zap.String("model", string(key)),
				zap.String("backend_error", res.Error),
			)
			continue
		}
		if info, _ := domain.Model(key); info.Dimensions > 0 && len(res.Embedding) != info.Dimensions {
			e.logger.Warn("Embedding dimension mismatch",
				zap.String("model", string(key)),
				zap.Int("got", len(res.Embedding)),
				zap.Int("want", info.Dimensions),
			)
			continue
		}
		out[key] = res.Embedding
	}

	if len(out) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, label, "error").Inc()
		return nil, fmt.Errorf("no usable embeddings in response: %w", domain.ErrEmbeddingBackend)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, label, "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, label).Observe(duration.Seconds())

	return out, nil
}

// EmbedImage implements domain.ImageEmbedder for cross-modal models.
func (e *Embedder) EmbedImage(ctx context.Context, image []byte, model domain.ModelKey) ([]float32, error) {
	info, ok := domain.Model(model)
	if !ok {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownModel, model)
	}
	if !info.SupportsImage {
		return nil, fmt.Errorf("%w: %s", domain.ErrImageNotSupported, model)
	}

	start := time.Now()
	resp, err := e.post(ctx, "/embed_image", imageRequest{
		Image: base64.StdEncoding.EncodeToString(image),
		Model: string(model),
	})
	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, string(model), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, string(model), "transport").Inc()
		return nil, err
	}

	res, ok := resp.Embeddings[string(model)]
	if !ok || res.Error != "" || len(res.Embedding) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, string(model), "error").Inc()
		return nil, fmt.Errorf("no image embedding in response: %w", domain.ErrEmbeddingBackend)
	}
	if info.Dimensions > 0 && len(res.Embedding) != info.Dimensions {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, string(model), "error").Inc()
		return nil, fmt.Errorf("image embedding has %d dimensions, want %d: %w",
			len(res.Embedding), info.Dimensions, domain.ErrEmbeddingBackend)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, string(model), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, string(model)).Observe(duration.Seconds())

	return res.Embedding, nil
}

// Warmup implements domain.Warmer: it pokes the health endpoint so the
// service spins its container up before real traffic arrives. Best effort.
func (e *Embedder) Warmup(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("build warmup request: %w", err)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("warmup: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("warmup: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// HealthCheck implements domain.HealthChecker.
func (e *Embedder) HealthCheck(ctx context.Context) error {
	return e.Warmup(ctx)
}

func (e *Embedder) post(ctx context.Context, path string, body any) (*embedResponse, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embedding request failed: %w: %w", domain.ErrEmbeddingBackend, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 32<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w: %w", domain.ErrEmbeddingBackend, err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embedding API error %d: %s: %w",
			resp.StatusCode, truncate(raw, 256), domain.ErrEmbeddingBackend)
	}

	var parsed embedResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("malformed embedding response: %w: %w", domain.ErrEmbeddingBackend, err)
	}
	if parsed.Error != "" {
		return nil, fmt.Errorf("embedding API error: %s: %w", parsed.Error, domain.ErrEmbeddingBackend)
	}
	return &parsed, nil
}

func batchLabel(models []domain.ModelKey) string {
	parts := make([]string, len(models))
	for i, m := range models {
		parts[i] = string(m)
	}
	return strings.Join(parts, ",")
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
