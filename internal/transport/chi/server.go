package chi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/stacksearch/relay/internal/domain"
	"github.com/stacksearch/relay/internal/metrics"
	healthuc "github.com/stacksearch/relay/internal/usecase/health"
	ingestuc "github.com/stacksearch/relay/internal/usecase/ingest"
	searchuc "github.com/stacksearch/relay/internal/usecase/search"
	webhookuc "github.com/stacksearch/relay/internal/usecase/webhook"
)

// Server exposes the relay over HTTP.
type Server struct {
	search          *searchuc.Service
	ingest          *ingestuc.Service
	webhook         *webhookuc.Service
	health          *healthuc.Service
	contentType     string
	demoFallback    bool
	indexConfigured bool
	logger          *zap.Logger
}

// NewServer creates the HTTP API server.
func NewServer(
	search *searchuc.Service,
	ingest *ingestuc.Service,
	webhook *webhookuc.Service,
	health *healthuc.Service,
	contentType string,
	demoFallback bool,
	indexConfigured bool,
	logger *zap.Logger,
) *Server {
	return &Server{
		search:          search,
		ingest:          ingest,
		webhook:         webhook,
		health:          health,
		contentType:     contentType,
		demoFallback:    demoFallback,
		indexConfigured: indexConfigured,
		logger:          logger,
	}
}

// Register mounts the API routes. The /sync route is additionally
// wrapped in bearer auth when apiKeys is non-empty.
func (s *Server) Register(r chi.Router, apiKeys []string) {
	r.Post("/search", s.handleSearch)
	r.Post("/webhook", s.handleWebhook)
	r.Get("/health", s.handleHealth)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(g chi.Router) {
		g.Use(BearerAuthMiddleware(apiKeys))
		g.Post("/sync", s.handleSync)
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "Invalid request body: "+err.Error())
		return
	}

	result, err := s.search.Search(r.Context(), req.Query, req.TopK, req.Rewrite)
	if err != nil {
		s.handleSearchError(w, req, result, err)
		return
	}

	status := "success"
	metricStatus := "success"
	if result.Degraded {
		status = "fallback_mode"
		metricStatus = "fallback"
	}
	metrics.SearchesTotal.WithLabelValues(metricStatus).Inc()

	items := make([]map[string]any, len(result.Matches))
	for i, m := range result.Matches {
		items[i] = matchToItem(m)
	}

	writeJSON(w, http.StatusOK, searchResponse{
		Query:           req.Query,
		ExpandedQueries: result.Queries,
		Results:         items,
		TotalResults:    len(items),
		Status:          status,
	})
}

func (s *Server) handleSearchError(w http.ResponseWriter, req searchRequest, result searchuc.Result, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidQuery):
		writeError(w, http.StatusBadRequest, "invalid_query", "Query parameter is required")

	case errors.Is(err, domain.ErrIndexUnavailable):
		// Demo mode covers the "nothing configured" local setup only;
		// a configured but unreachable index is a real outage.
		if !s.indexConfigured && s.demoFallback {
			metrics.SearchesTotal.WithLabelValues("demo").Inc()
			writeJSON(w, http.StatusOK, s.demoResponse(req.Query, result.Queries))
			return
		}
		metrics.SearchesTotal.WithLabelValues("unavailable").Inc()
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "unavailable",
			"message": "vector index unavailable",
		})

	default:
		s.logger.Error("Search failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
	}
}

func (s *Server) demoResponse(query string, queries []string) searchResponse {
	if len(queries) == 0 {
		queries = []string{query}
	}
	return searchResponse{
		Query:           query,
		ExpandedQueries: queries,
		Results: []map[string]any{
			{
				"product_id":  "demo_product_1",
				"title":       "Demo Product",
				"description": "Sample result; no vector index is configured",
				"score":       0.0,
				"query_used":  query,
			},
		},
		TotalResults: 1,
		Status:       "demo_mode",
	}
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		// Deliveries are always acknowledged so the CMS does not retry
		// forever on payloads we cannot use.
		s.logger.Warn("Undecodable webhook payload", zap.Error(err))
		writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
		return
	}

	contentType := payload.ContentTypeUID
	if contentType == "" {
		contentType = s.contentType
	}

	uid, _ := payload.Data.Entry["uid"].(string)
	entry := domain.Entry{
		UID:         uid,
		ContentType: contentType,
		Fields:      payload.Data.Entry,
	}

	outcome := s.webhook.Process(r.Context(), payload.Event, contentType, entry)

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "success",
		"result": string(outcome),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	contentType := r.URL.Query().Get("content_type")
	if contentType == "" {
		contentType = s.contentType
	}

	report, err := s.ingest.Sync(r.Context(), contentType)
	if err != nil {
		s.logger.Error("Sync failed", zap.String("content_type", contentType), zap.Error(err))
		switch {
		case errors.Is(err, domain.ErrConfigurationMissing),
			errors.Is(err, domain.ErrCMSUnavailable),
			errors.Is(err, domain.ErrIndexUnavailable):
			writeError(w, http.StatusServiceUnavailable, "unavailable", err.Error())
		default:
			writeError(w, http.StatusInternalServerError, "internal_error", "internal error")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":       "sync_completed",
		"content_type": contentType,
		"fetched":      report.Fetched,
		"indexed":      report.Indexed,
		"failed":       report.Failed,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": string(report.Status),
		"checks": checks,
	})
}
