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
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/stacksearch/relay/internal/config"
	dbRedis "github.com/stacksearch/relay/internal/db/redis"
	"github.com/stacksearch/relay/internal/domain"
	logpkg "github.com/stacksearch/relay/internal/logger"
	"github.com/stacksearch/relay/internal/metrics"
	"github.com/stacksearch/relay/internal/repository/embcache"
	indexrepo "github.com/stacksearch/relay/internal/repository/index"
	chiTransport "github.com/stacksearch/relay/internal/transport/chi"
	"github.com/stacksearch/relay/internal/transport/contentstack"
	openaiTransport "github.com/stacksearch/relay/internal/transport/openai"
	healthuc "github.com/stacksearch/relay/internal/usecase/health"
	ingestuc "github.com/stacksearch/relay/internal/usecase/ingest"
	searchuc "github.com/stacksearch/relay/internal/usecase/search"
	webhookuc "github.com/stacksearch/relay/internal/usecase/webhook"
	"github.com/stacksearch/relay/internal/version"
)

const syncWorkers = 4

func main() {
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

	logger.Info("Starting relay API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.Bool("index_configured", cfg.Database.Configured()),
		zap.Bool("embedding_configured", cfg.Embedding.Configured()),
		zap.Bool("expander_configured", cfg.Expander.Configured()),
		zap.Bool("cms_configured", cfg.Contentstack.Configured()),
	)

	metrics.RegisterEmbeddingMetrics()
	metrics.RegisterSearchMetrics()

	ctx := context.Background()

	// Vector index. Missing credentials leave collaborators nil; the
	// service then answers in degraded or demo mode instead of dying.
	var store *dbRedis.Store
	var indexRepo *indexrepo.Repo
	if cfg.Database.Configured() {
		store, err = dbRedis.NewStore(dbRedis.Config{
			Addrs:    cfg.Database.Addrs,
			Password: cfg.Database.Password,
		})
		if err != nil {
			logger.Fatal("Failed to create index store", zap.Error(err))
		}
		defer store.Close()

		if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
			logger.Fatal("Index store not ready", zap.Error(err))
		}

		indexRepo = indexrepo.New(store, cfg.Index.Name, cfg.Embedding.Dimensions).
			WithHNSW(indexrepo.HNSWConfig{
				M:           cfg.Index.HNSWM,
				EFConstruct: cfg.Index.HNSWEFConstruct,
			})
		if err := indexRepo.EnsureIndex(ctx); err != nil {
			logger.Fatal("Failed to ensure vector index", zap.Error(err))
		}
		logger.Info("Vector index ready", zap.String("index", cfg.Index.Name))
	} else {
		logger.Warn("Vector index unconfigured; search runs in demo/unavailable mode")
	}

	// Embedders: one chain per direction so the cache key includes the
	// instruction prefix.
	var baseEmbedder *openaiTransport.Embedder
	var docEmbedder, queryEmbedder domain.Embedder
	if cfg.Embedding.Configured() {
		baseEmbedder = openaiTransport.NewEmbedder(&openaiTransport.EmbedderConfig{
			APIKey:     cfg.Embedding.APIKey,
			BaseURL:    cfg.Embedding.BaseURL,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Logger:     logger,
		})
		docEmbedder = buildEmbedder(baseEmbedder, store, cfg.Embedding.DocumentInstruction, logger)
		queryEmbedder = buildEmbedder(baseEmbedder, store, cfg.Embedding.QueryInstruction, logger)
		logger.Info("Embedder created",
			zap.String("model", cfg.Embedding.Model),
			zap.Int("dimensions", cfg.Embedding.Dimensions))
	} else {
		logger.Warn("Embedding provider unconfigured")
	}

	var expander *openaiTransport.Expander
	if cfg.Expander.Configured() {
		expander = openaiTransport.NewExpander(&openaiTransport.ExpanderConfig{
			APIKey:  cfg.Expander.APIKey,
			BaseURL: cfg.Expander.BaseURL,
			Model:   cfg.Expander.Model,
			Logger:  logger,
		})
		logger.Info("Query expander created", zap.String("model", cfg.Expander.Model))
	} else {
		logger.Warn("Query expander unconfigured; searches use the original query only")
	}

	var cms *contentstack.Client
	if cfg.Contentstack.Configured() {
		cms = contentstack.New(&contentstack.Config{
			BaseURL:       cfg.Contentstack.BaseURL,
			APIKey:        cfg.Contentstack.APIKey,
			DeliveryToken: cfg.Contentstack.DeliveryToken,
			Environment:   cfg.Contentstack.Environment,
			Timeout:       time.Duration(cfg.Contentstack.TimeoutSec) * time.Second,
			Logger:        logger,
		})
		logger.Info("CMS client created", zap.String("base_url", cfg.Contentstack.BaseURL))
	} else {
		logger.Warn("CMS unconfigured; sync and webhooks are inactive")
	}

	// Typed-nil gotcha: a nil *Repo wrapped in an interface is not a nil
	// interface, so each collaborator is assigned only when present.
	var searchIndex searchuc.Index
	var ingestIndex ingestuc.Index
	var webhookIndex webhookuc.Index
	var healthIndex healthuc.IndexPinger
	if indexRepo != nil {
		searchIndex = indexRepo
		ingestIndex = indexRepo
		webhookIndex = indexRepo
		healthIndex = indexRepo
	}

	var searchExpander searchuc.Expander
	if expander != nil {
		searchExpander = expander
	}

	var ingestCMS ingestuc.CMS
	var healthCMS healthuc.CMSPinger
	if cms != nil {
		ingestCMS = cms
		healthCMS = cms
	}

	var healthEmbedding healthuc.EmbeddingChecker
	if baseEmbedder != nil {
		healthEmbedding = baseEmbedder
	}

	searchSvc := searchuc.New(searchIndex, queryEmbedder, searchExpander, searchuc.Config{
		DefaultTopK:   cfg.Search.DefaultTopK,
		MaxTopK:       cfg.Search.MaxTopK,
		IndexQueryCap: cfg.Search.IndexQueryCap,
		MaxExpansions: cfg.Expander.MaxExpansions,
	}, logger)

	ingestSvc, err := ingestuc.New(ingestCMS, docEmbedder, ingestIndex, syncWorkers, logger)
	if err != nil {
		logger.Fatal("Failed to create ingestion service", zap.Error(err))
	}
	defer ingestSvc.Release()

	webhookSvc := webhookuc.New(docEmbedder, webhookIndex, logger)

	healthSvc := healthuc.New(healthIndex, healthEmbedding, cfg.Expander.Configured(),
		healthCMS, cfg.Contentstack.ContentType)

	server := chiTransport.NewServer(searchSvc, ingestSvc, webhookSvc, healthSvc,
		cfg.Contentstack.ContentType, cfg.Search.DemoFallback, cfg.Database.Configured(), logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins(cfg.HTTP.AllowedOrigins),
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
	r.Use(metrics.Middleware())
	server.Register(r, cfg.Auth.APIKeys)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

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

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction.
func buildEmbedder(
	base *openaiTransport.Embedder,
	store *dbRedis.Store,
	instruction string,
	logger *zap.Logger,
) domain.Embedder {
	var embedder domain.Embedder = base
	if store != nil {
		embedder = embcache.New(base, store, metrics.EmbeddingCacheTotal, logger)
	}
	if instruction != "" {
		return domain.NewInstructionEmbedder(embedder, instruction)
	}
	return embedder
}

func allowedOrigins(origins []string) []string {
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
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

			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line — one line per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
