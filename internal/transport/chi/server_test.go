package chi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	chirouter "github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/domain"
	domsearch "github.com/musegraph/artsearch/internal/domain/search"
	healthuc "github.com/musegraph/artsearch/internal/usecase/health"
	searchuc "github.com/musegraph/artsearch/internal/usecase/search"
)

// --- Mocks ---

type stubRetriever struct {
	hits domsearch.RankedList
	err  error
}

func (s *stubRetriever) Lexical(_ context.Context, _ string, _ int) (domsearch.RankedList, error) {
	return s.hits, s.err
}

func (s *stubRetriever) KNN(
	_ context.Context, _ domain.ModelKey, _ []float32, _ int,
) (domsearch.RankedList, error) {
	return s.hits, s.err
}

func (s *stubRetriever) NativeHybrid(
	_ context.Context, _ string, _ domain.ModelKey, _ []float32, _ float64, _ int,
) (domsearch.RankedList, bool, error) {
	return domsearch.RankedList{}, false, nil
}

type stubResolver struct {
	vectors map[domain.ModelKey][]float32
	err     error
}

func (s *stubResolver) Resolve(
	_ context.Context, _ string, _ []domain.ModelKey,
) (map[domain.ModelKey][]float32, error) {
	return s.vectors, s.err
}

func (s *stubResolver) ResolveImage(
	_ context.Context, _ []byte, _ domain.ModelKey,
) ([]float32, error) {
	return []float32{0.1}, s.err
}

type stubArtworks struct {
	artwork domain.Artwork
	count   int
	err     error
}

func (s *stubArtworks) Get(_ context.Context, _ string) (domain.Artwork, error) {
	return s.artwork, s.err
}

func (s *stubArtworks) Count(_ context.Context) (int, error) {
	return s.count, s.err
}

type stubPinger struct{ err error }

func (s *stubPinger) Ping(_ context.Context) error { return s.err }

func newTestRouter(retr searchuc.Retriever, res searchuc.Resolver, art *stubArtworks, dbErr error) http.Handler {
	logger := zap.NewNop()
	searchSvc := searchuc.New(retr, res, &searchuc.Config{
		TextModel:  domain.ModelJinaV3,
		ImageModel: domain.ModelSigLIP2,
		Logger:     logger,
	})
	healthSvc := healthuc.New(&stubPinger{err: dbErr}, nil)

	srv := NewServer(searchSvc, art, healthSvc, nil, logger)
	r := chirouter.NewRouter()
	srv.Register(r)
	return r
}

func defaultRouter() http.Handler {
	hits := domsearch.RankedList{
		Total: 1,
		Hits:  []domsearch.Hit{{ID: "obj-1", Score: 1.0, Artwork: domain.Artwork{Title: "Irises"}}},
	}
	return newTestRouter(
		&stubRetriever{hits: hits},
		&stubResolver{vectors: map[domain.ModelKey][]float32{
			domain.ModelJinaV3:  {0.1},
			domain.ModelSigLIP2: {0.2},
		}},
		&stubArtworks{artwork: domain.Artwork{ID: "obj-1", Title: "Irises"}, count: 42},
		nil,
	)
}

func doJSON(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

// --- Tests ---

func TestSearchEndpoint(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "POST", "/api/search",
		`{"query":"irises","keyword":true,"models":{"jina_v3":true}}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}

	var resp domsearch.UnifiedResult
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Keyword == nil || len(resp.Keyword.Hits) != 1 {
		t.Error("keyword slot missing")
	}
	if _, ok := resp.Semantic[domain.ModelJinaV3]; !ok {
		t.Error("semantic slot missing")
	}
}

func TestSearchEndpointInvalidBody(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "POST", "/api/search", `{not json`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestSearchEndpointNoModeSelected(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "POST", "/api/search", `{"query":"irises"}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != codeValidationFailed {
		t.Errorf("code = %s, want %s", resp.Code, codeValidationFailed)
	}
}

func TestSearchEndpointUnknownModel(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "POST", "/api/search",
		`{"query":"irises","models":{"clip_v1":true}}`)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rr.Code)
	}
	var resp errorResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Code != codeUnknownModel {
		t.Errorf("code = %s, want %s", resp.Code, codeUnknownModel)
	}
}

func TestSearchEndpointAllModesDown(t *testing.T) {
	h := newTestRouter(
		&stubRetriever{err: errors.New("backend down")},
		&stubResolver{vectors: map[domain.ModelKey][]float32{domain.ModelJinaV3: {0.1}}},
		&stubArtworks{},
		nil,
	)

	rr := doJSON(t, h, "POST", "/api/search", `{"query":"q","keyword":true}`)
	if rr.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rr.Code)
	}
}

func TestImageSearchEndpoint(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "POST", "/api/search/image",
		`{"image":"/9j/4A==","size":5}`)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rr.Code, rr.Body.String())
	}
	var resp imageSearchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Model != "siglip2" {
		t.Errorf("model = %q, want siglip2", resp.Model)
	}
}

func TestImageSearchEndpointBadBase64(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "POST", "/api/search/image",
		`{"image":"not base64!!!"}`)

	if rr.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rr.Code)
	}
}

func TestGetArtworkEndpoint(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "GET", "/api/artworks/obj-1", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var artwork domain.Artwork
	if err := json.NewDecoder(rr.Body).Decode(&artwork); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if artwork.Title != "Irises" {
		t.Errorf("title = %q", artwork.Title)
	}
}

func TestGetArtworkEndpointNotFound(t *testing.T) {
	h := newTestRouter(
		&stubRetriever{}, &stubResolver{},
		&stubArtworks{err: domain.ErrArtworkNotFound},
		nil,
	)

	rr := doJSON(t, h, "GET", "/api/artworks/missing", "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}

func TestStatsEndpoint(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "GET", "/api/stats", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp statsResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Artworks != 42 {
		t.Errorf("artworks = %d, want 42", resp.Artworks)
	}
	if len(resp.Models) != 2 {
		t.Errorf("models = %d, want 2", len(resp.Models))
	}
}

func TestHealthEndpoint(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rr.Code)
	}
}

func TestHealthEndpointDatabaseDown(t *testing.T) {
	h := newTestRouter(&stubRetriever{}, &stubResolver{}, &stubArtworks{},
		errors.New("connection refused"))

	rr := doJSON(t, h, "GET", "/health", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rr.Code)
	}

	var resp struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(bytes.NewReader(rr.Body.Bytes())).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "error" {
		t.Errorf("status = %q, want error", resp.Status)
	}
}

func TestWarmupEndpoint(t *testing.T) {
	rr := doJSON(t, defaultRouter(), "POST", "/api/warmup", "")
	if rr.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rr.Code)
	}
}
