package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/musegraph/artsearch/internal/config"
	dbRedis "github.com/musegraph/artsearch/internal/db/redis"
	"github.com/musegraph/artsearch/internal/domain"
	logpkg "github.com/musegraph/artsearch/internal/logger"
	"github.com/musegraph/artsearch/internal/metrics"
	artworkrepo "github.com/musegraph/artsearch/internal/repository/artwork"
	"github.com/musegraph/artsearch/internal/repository/embcache"
	searchrepo "github.com/musegraph/artsearch/internal/repository/search"
	chiTransport "github.com/musegraph/artsearch/internal/transport/chi"
	"github.com/musegraph/artsearch/internal/transport/modalemb"
	openaiEmb "github.com/musegraph/artsearch/internal/transport/openai"
	embeddinguc "github.com/musegraph/artsearch/internal/usecase/embedding"
	healthuc "github.com/musegraph/artsearch/internal/usecase/health"
	searchuc "github.com/musegraph/artsearch/internal/usecase/search"
	"github.com/musegraph/artsearch/internal/version"
)

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.New(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting artsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Strings("db_addrs", cfg.Database.Addrs),
	)

	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Username: cfg.Database.Username,
		Password: cfg.Database.Password,
	})
	if err != nil {
		logger.Fatal("Failed to create database store", zap.Error(err))
	}
	defer store.Close()

	// Wait for database to be ready
	ctx := context.Background()
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		logger.Fatal("Database not ready", zap.Error(err))
	}
	logger.Info("Connected to database")

	// Register metrics explicitly (no init())
	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	// Embedding providers — composition root
	providers, imageEmbedder, checkers := buildProviders(cfg, logger)
	logger.Info("Embedding providers created",
		zap.Int("models", len(providers)),
		zap.Bool("image_search", imageEmbedder != nil),
	)

	cache := embcache.New(
		store,
		cfg.Cache.LocalCapacity,
		time.Duration(cfg.Cache.TTLHours)*time.Hour,
		time.Duration(cfg.Cache.RefreshAfterMinutes)*time.Minute,
		metrics.EmbeddingCacheTotal,
		logger,
	)

	resolver := embeddinguc.NewResolver(cache, providers, imageEmbedder, logger)

	// Repositories
	artworkRepo := artworkrepo.New(store, cfg.Search.IndexName).WithHNSW(artworkrepo.HNSWConfig{
		M:           cfg.Search.HNSWM,
		EFConstruct: cfg.Search.HNSWEFConstruct,
	})
	if err := artworkRepo.EnsureIndex(ctx); err != nil {
		logger.Fatal("Failed to ensure artwork index", zap.Error(err))
	}
	retriever := searchrepo.New(store, searchrepo.Config{
		IndexName:       cfg.Search.IndexName,
		OverfetchFactor: cfg.Search.OverfetchFactor,
		MinCandidates:   cfg.Search.MinCandidates,
	})

	// Use case services
	searchSvc := searchuc.New(retriever, resolver, &searchuc.Config{
		TextModel:  domain.ModelKey(cfg.Hybrid.TextModel),
		ImageModel: domain.ModelKey(cfg.Hybrid.ImageModel),
		Logger:     logger,
	})
	healthSvc := healthuc.New(store, checkers)

	// Kick cold embedding backends awake while the server boots.
	go resolver.Warmup(ctx)

	server := chiTransport.NewServer(searchSvc, artworkRepo, healthSvc, resolver, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.BearerAuthMiddleware(cfg.Auth.APIKeys))
	r.Use(metrics.Middleware())
	server.Register(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// buildProviders assembles one shared embedder per configured backend and
// maps each registry model to the embedder its assignment names.
func buildProviders(
	cfg config.Config, logger *zap.Logger,
) (map[domain.ModelKey]domain.TextEmbedder, domain.ImageEmbedder, map[string]healthuc.EmbeddingChecker) {
	var (
		modal  *modalemb.Embedder
		openAI *openaiEmb.Embedder
	)

	if cfg.Embedding.Providers.Modal.BaseURL != "" {
		modal = modalemb.NewEmbedder(&modalemb.Config{
			BaseURL: cfg.Embedding.Providers.Modal.BaseURL,
			Timeout: time.Duration(cfg.Embedding.Providers.Modal.TimeoutSec) * time.Second,
			Logger:  logger,
		})
	}

	openAIModels := make(map[domain.ModelKey]string)
	for raw, assignment := range cfg.Embedding.Models {
		if assignment.Provider == "openai" {
			openAIModels[domain.ModelKey(raw)] = assignment.APIModel
		}
	}
	if len(openAIModels) > 0 {
		openAI = openaiEmb.NewEmbedder(&openaiEmb.Config{
			APIKey:  cfg.Embedding.Providers.OpenAI.APIKey,
			BaseURL: cfg.Embedding.Providers.OpenAI.BaseURL,
			Models:  openAIModels,
			Logger:  logger,
		})
	}

	providers := make(map[domain.ModelKey]domain.TextEmbedder)
	for raw, assignment := range cfg.Embedding.Models {
		key := domain.ModelKey(raw)
		switch assignment.Provider {
		case "modal":
			if modal != nil {
				providers[key] = modal
			}
		case "openai":
			if openAI != nil {
				providers[key] = openAI
			}
		}
	}

	checkers := make(map[string]healthuc.EmbeddingChecker)
	// Image input only goes through the GPU service; pass a nil interface,
	// not a typed nil pointer, when it is absent.
	var image domain.ImageEmbedder
	if modal != nil {
		image = modal
		checkers[modal.Name()] = modal
	}
	if openAI != nil {
		checkers[openAI.Name()] = openAI
	}

	return providers, image, checkers
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(map[string]string{
						"code":    "internal_error",
						"message": "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())

			// Set X-Request-ID in response header
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			// Per-request logger with request_id
			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
