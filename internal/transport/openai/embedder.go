package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/domain"
	"github.com/musegraph/artsearch/internal/metrics"
)

const providerName = "openai"

// Embedder resolves text embeddings through an OpenAI-compatible
// /embeddings API (e.g. Jina's hosted endpoint). The protocol takes one
// model per call, so a multi-model request costs one round trip per model.
type Embedder struct {
	client *openai.Client
	// models maps registry keys to upstream model identifiers.
	models map[domain.ModelKey]string
	logger *zap.Logger
}

// Config holds the embedding provider settings.
type Config struct {
	APIKey  string
	BaseURL string
	Models  map[domain.ModelKey]string
	Logger  *zap.Logger
}

// NewEmbedder creates an OpenAI-compatible embedding provider.
func NewEmbedder(cfg *Config) *Embedder {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Embedder{
		client: openai.NewClientWithConfig(clientCfg),
		models: cfg.Models,
		logger: cfg.Logger,
	}
}

// Name implements domain.TextEmbedder.
func (e *Embedder) Name() string { return providerName }

// EmbedText resolves vectors for the requested models. Per-model failures
// are logged and omitted from the result; an error is returned only when
// every requested model failed.
func (e *Embedder) EmbedText(
	ctx context.Context, text string, models []domain.ModelKey,
) (map[domain.ModelKey][]float32, error) {
	out := make(map[domain.ModelKey][]float32, len(models))
	var lastErr error

	for _, key := range models {
		vec, err := e.embedOne(ctx, text, key)
		if err != nil {
			e.logger.Warn("Embedding model failed",
				zap.String("provider", providerName),
				zap.String("model", string(key)),
				zap.Error(err),
			)
			lastErr = err
			continue
		}
		out[key] = vec
	}

	if len(out) == 0 && lastErr != nil {
		return nil, lastErr
	}
	return out, nil
}

func (e *Embedder) embedOne(ctx context.Context, text string, key domain.ModelKey) ([]float32, error) {
	apiModel, ok := e.models[key]
	if !ok {
		return nil, fmt.Errorf("model %s not configured for provider %s: %w",
			key, providerName, domain.ErrEmbeddingBackend)
	}
	info, _ := domain.Model(key)

	req := openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          openai.EmbeddingModel(apiModel),
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	}
	if info.Dimensions > 0 {
		req.Dimensions = info.Dimensions
	}

	start := time.Now()

	resp, err := e.client.CreateEmbeddings(ctx, req)

	duration := time.Since(start)

	if err != nil {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, string(key), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, string(key), "api_error").Inc()
		return nil, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, string(key), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, string(key), "empty_response").Inc()
		return nil, fmt.Errorf("empty embedding response: %w", domain.ErrEmbeddingBackend)
	}

	vec := resp.Data[0].Embedding
	if info.Dimensions > 0 && len(vec) != info.Dimensions {
		metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, string(key), "error").Inc()
		metrics.EmbeddingErrorsTotal.WithLabelValues(providerName, string(key), "dim_mismatch").Inc()
		return nil, fmt.Errorf("model %s returned %d dimensions, want %d: %w",
			key, len(vec), info.Dimensions, domain.ErrEmbeddingBackend)
	}

	metrics.EmbeddingRequestsTotal.WithLabelValues(providerName, string(key), "success").Inc()
	metrics.EmbeddingRequestDuration.WithLabelValues(providerName, string(key)).Observe(duration.Seconds())

	return vec, nil
}

// HealthCheck verifies API availability via ListModels (free endpoint).
func (e *Embedder) HealthCheck(ctx context.Context) error {
	if _, err := e.client.ListModels(ctx); err != nil {
		return fmt.Errorf("list models: %w", err)
	}
	return nil
}

// parseAPIError extracts a human-readable error from the API response.
// All errors are wrapped with domain.ErrEmbeddingBackend for status mapping.
func parseAPIError(err error) error {
	wrap := domain.ErrEmbeddingBackend

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		detail := extractDetail(reqErr.Body)
		if detail != "" {
			return fmt.Errorf("embedding API error %d: %s: %w",
				reqErr.HTTPStatusCode, detail, wrap)
		}
		return fmt.Errorf("embedding API error %d: %s: %w",
			reqErr.HTTPStatusCode, string(reqErr.Body), wrap)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return fmt.Errorf("embedding API error %d: %s: %w",
			apiErr.HTTPStatusCode, apiErr.Message, wrap)
	}

	return fmt.Errorf("embedding request failed: %w", wrap)
}

// extractDetail extracts the "detail" field from a JSON error body.
func extractDetail(body []byte) string {
	var parsed struct {
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &parsed) == nil && parsed.Detail != "" {
		return parsed.Detail
	}
	return ""
}
