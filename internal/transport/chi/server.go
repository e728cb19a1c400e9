// Package chi is the HTTP transport: request decoding, routing, and the
// mapping from domain sentinel errors to status codes.
package chi

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/domain"
	domsearch "github.com/musegraph/artsearch/internal/domain/search"
	healthuc "github.com/musegraph/artsearch/internal/usecase/health"
	searchuc "github.com/musegraph/artsearch/internal/usecase/search"
	"github.com/musegraph/artsearch/internal/version"
)

// Error codes returned in JSON error bodies.
const (
	codeBadRequest        = "bad_request"
	codeValidationFailed  = "validation_failed"
	codeUnknownModel      = "unknown_model"
	codeArtworkNotFound   = "artwork_not_found"
	codeImageNotSupported = "image_not_supported"
	codeEmbeddingBackend  = "embedding_backend_error"
	codeRetrievalFailed   = "retrieval_failed"
	codeInternalError     = "internal_error"
)

// maxImageBytes caps decoded image payloads.
const maxImageBytes = 8 << 20

// ArtworkReader reads artwork documents and index stats.
type ArtworkReader interface {
	Get(ctx context.Context, id string) (domain.Artwork, error)
	Count(ctx context.Context) (int, error)
}

// Warmer spins cold embedding backends up.
type Warmer interface {
	Warmup(ctx context.Context)
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server exposes the search API over HTTP.
type Server struct {
	search        *searchuc.Service
	artworks      ArtworkReader
	health        *healthuc.Service
	warmer        Warmer
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. warmer may be nil.
func NewServer(
	search *searchuc.Service,
	artworks ArtworkReader,
	health *healthuc.Service,
	warmer Warmer,
	logger *zap.Logger,
) *Server {
	s := &Server{
		search:   search,
		artworks: artworks,
		health:   health,
		warmer:   warmer,
		logger:   logger,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrUnknownModel, http.StatusBadRequest, codeUnknownModel),
		sentinelHandler(domain.ErrValidation, http.StatusBadRequest, codeValidationFailed),
		sentinelHandler(domain.ErrArtworkNotFound, http.StatusNotFound, codeArtworkNotFound),
		sentinelHandler(domain.ErrImageNotSupported, http.StatusBadRequest, codeImageNotSupported),
		sentinelHandler(domain.ErrEmbeddingBackend, http.StatusBadGateway, codeEmbeddingBackend),
		sentinelHandler(domain.ErrRetrievalFailed, http.StatusBadGateway, codeRetrievalFailed),
	}
	return s
}

// Register mounts every route on the router.
func (s *Server) Register(r chi.Router) {
	r.Post("/api/search", s.handleSearch)
	r.Post("/api/search/image", s.handleSearchImage)
	r.Get("/api/artworks/{id}", s.handleGetArtwork)
	r.Get("/api/stats", s.handleStats)
	r.Post("/api/warmup", s.handleWarmup)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)
}

type searchRequest struct {
	Query               string          `json:"query"`
	Keyword             bool            `json:"keyword"`
	Models              map[string]bool `json:"models"`
	Hybrid              bool            `json:"hybrid"`
	HybridMode          string          `json:"hybrid_mode"`
	HybridBalance       *float64        `json:"hybrid_balance"`
	Fusion              string          `json:"fusion"`
	IncludeDescriptions bool            `json:"include_descriptions"`
	Size                int             `json:"size"`
}

// handleSearch handles POST /api/search.
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	domReq, err := domsearch.NewRequest(req.Query, domsearch.Options{
		Keyword:             req.Keyword,
		Models:              req.Models,
		Hybrid:              req.Hybrid,
		HybridMode:          req.HybridMode,
		HybridBalance:       req.HybridBalance,
		FusionMode:          req.Fusion,
		IncludeDescriptions: req.IncludeDescriptions,
		Size:                req.Size,
	})
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	result, err := s.search.Search(r.Context(), domReq)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

type imageSearchRequest struct {
	// Image is the base64-encoded payload.
	Image string `json:"image"`
	Size  int    `json:"size"`
}

type imageSearchResponse struct {
	Model   string               `json:"model"`
	Results domsearch.RankedList `json:"results"`
}

// handleSearchImage handles POST /api/search/image.
func (s *Server) handleSearchImage(w http.ResponseWriter, r *http.Request) {
	var req imageSearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeBadRequest, "Invalid request body: "+err.Error())
		return
	}

	image, err := base64.StdEncoding.DecodeString(req.Image)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "image must be base64 encoded")
		return
	}
	if len(image) > maxImageBytes {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "image payload too large")
		return
	}

	results, err := s.search.SearchImage(r.Context(), image, req.Size)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	model := domain.ImageModelKeys()
	resp := imageSearchResponse{Results: results}
	if len(model) > 0 {
		resp.Model = string(model[0])
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleGetArtwork handles GET /api/artworks/{id}.
func (s *Server) handleGetArtwork(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		writeError(w, http.StatusBadRequest, codeValidationFailed, "artwork id is required")
		return
	}

	artwork, err := s.artworks.Get(r.Context(), id)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, artwork)
}

type statsResponse struct {
	Artworks int          `json:"artworks"`
	Models   []modelStats `json:"models"`
	Version  string       `json:"version"`
}

type modelStats struct {
	Key           string `json:"key"`
	DisplayName   string `json:"display_name"`
	Dimensions    int    `json:"dimensions"`
	SupportsImage bool   `json:"supports_image"`
}

// handleStats handles GET /api/stats.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	count, err := s.artworks.Count(r.Context())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	resp := statsResponse{Artworks: count, Version: version.Version}
	for _, key := range domain.AllModelKeys() {
		info, _ := domain.Model(key)
		resp.Models = append(resp.Models, modelStats{
			Key:           string(key),
			DisplayName:   info.DisplayName,
			Dimensions:    info.Dimensions,
			SupportsImage: info.SupportsImage,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleWarmup handles POST /api/warmup.
func (s *Server) handleWarmup(w http.ResponseWriter, r *http.Request) {
	if s.warmer != nil {
		s.warmer.Warmup(r.Context())
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "warming"})
}

// handleHealth handles GET /health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status == healthuc.Unhealthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, map[string]any{
		"status": report.Status,
		"checks": report.Checks,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Code: code, Message: message})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrValidation,
		domain.ErrUnknownModel,
		domain.ErrArtworkNotFound,
		domain.ErrImageNotSupported,
		domain.ErrEmbeddingBackend,
		domain.ErrRetrievalFailed,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
}
