package chi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/stacksearch/relay/internal/domain"
	repoindex "github.com/stacksearch/relay/internal/repository/index"
	healthuc "github.com/stacksearch/relay/internal/usecase/health"
	ingestuc "github.com/stacksearch/relay/internal/usecase/ingest"
	searchuc "github.com/stacksearch/relay/internal/usecase/search"
	webhookuc "github.com/stacksearch/relay/internal/usecase/webhook"
)

// --- Stubs shared across handler tests ---

type stubIndex struct {
	matches  []domain.Match
	queryErr error
	upserted []string
	deleted  []string
}

func (s *stubIndex) Query(_ context.Context, _ []float32, _ int) ([]domain.Match, error) {
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	return s.matches, nil
}

func (s *stubIndex) Upsert(_ context.Context, id string, _ []float32, _ map[string]string) error {
	s.upserted = append(s.upserted, id)
	return nil
}

func (s *stubIndex) Delete(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func (s *stubIndex) UpsertBatch(_ context.Context, items []repoindex.UpsertItem) error {
	for _, item := range items {
		s.upserted = append(s.upserted, item.ID)
	}
	return nil
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, _ string) (domain.EmbeddingResult, error) {
	return domain.EmbeddingResult{Embedding: []float32{1, 0}}, nil
}

type stubExpander struct {
	variants []string
	err      error
}

func (s *stubExpander) Expand(_ context.Context, _ string, _ int) ([]string, error) {
	return s.variants, s.err
}

type stubCMS struct {
	entries []domain.Entry
}

func (s *stubCMS) FetchEntries(_ context.Context, _ string, _, skip int) ([]domain.Entry, int, error) {
	if skip > 0 {
		return nil, len(s.entries), nil
	}
	return s.entries, len(s.entries), nil
}

type serverOpts struct {
	idx             *stubIndex
	expander        searchuc.Expander
	cms             *stubCMS
	noIndex         bool
	demoFallback    bool
	indexConfigured bool
	apiKeys         []string
}

func newTestRouter(t *testing.T, opts serverOpts) http.Handler {
	t.Helper()

	logger := zap.NewNop()
	cfg := searchuc.Config{DefaultTopK: 5, MaxTopK: 20, IndexQueryCap: 10, MaxExpansions: 3}

	var searchSvc *searchuc.Service
	if opts.noIndex {
		searchSvc = searchuc.New(nil, nil, nil, cfg, logger)
	} else {
		searchSvc = searchuc.New(opts.idx, stubEmbedder{}, opts.expander, cfg, logger)
	}

	var cms ingestuc.CMS
	if opts.cms != nil {
		cms = opts.cms
	}
	var ingestIdx ingestuc.Index
	var webhookIdx webhookuc.Index
	if opts.idx != nil {
		ingestIdx = opts.idx
		webhookIdx = opts.idx
	}
	ingestSvc, err := ingestuc.New(cms, stubEmbedder{}, ingestIdx, 2, logger)
	if err != nil {
		t.Fatalf("ingest service: %v", err)
	}
	t.Cleanup(ingestSvc.Release)

	webhookSvc := webhookuc.New(stubEmbedder{}, webhookIdx, logger)
	healthSvc := healthuc.New(nil, nil, false, nil, "product")

	srv := NewServer(searchSvc, ingestSvc, webhookSvc, healthSvc,
		"product", opts.demoFallback, opts.indexConfigured, logger)

	r := chi.NewRouter()
	srv.Register(r, opts.apiKeys)
	return r
}

func doJSON(t *testing.T, handler http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	return rr
}

// --- Search handler ---

func TestHandleSearch_Success(t *testing.T) {
	idx := &stubIndex{matches: []domain.Match{
		{EntryID: "shoe_42", Score: 0.9, Metadata: map[string]string{"title": "Red Sneakers", "price": "59.99"}},
	}}
	handler := newTestRouter(t, serverOpts{idx: idx, indexConfigured: true})

	rr := doJSON(t, handler, "POST", "/search", `{"query": "red sneakers"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "success" {
		t.Errorf("status: got %q, want success", resp.Status)
	}
	if resp.Query != "red sneakers" {
		t.Errorf("query echo: got %q", resp.Query)
	}
	if len(resp.ExpandedQueries) != 1 || resp.ExpandedQueries[0] != "red sneakers" {
		t.Errorf("expanded_queries: got %v", resp.ExpandedQueries)
	}
	if resp.TotalResults != 1 || len(resp.Results) != 1 {
		t.Fatalf("results: got %d/%d", resp.TotalResults, len(resp.Results))
	}
	item := resp.Results[0]
	if item["product_id"] != "shoe_42" {
		t.Errorf("product_id: got %v", item["product_id"])
	}
	if item["title"] != "Red Sneakers" || item["price"] != "59.99" {
		t.Errorf("metadata not flattened: %v", item)
	}
	if item["query_used"] != "red sneakers" {
		t.Errorf("query_used: got %v", item["query_used"])
	}
}

func TestHandleSearch_EmptyQuery400(t *testing.T) {
	handler := newTestRouter(t, serverOpts{idx: &stubIndex{}, indexConfigured: true})

	rr := doJSON(t, handler, "POST", "/search", `{"query": "  "}`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestHandleSearch_BadJSON400(t *testing.T) {
	handler := newTestRouter(t, serverOpts{idx: &stubIndex{}, indexConfigured: true})

	rr := doJSON(t, handler, "POST", "/search", `{not json`)
	if rr.Code != http.StatusBadRequest {
		t.Errorf("got %d, want 400", rr.Code)
	}
}

func TestHandleSearch_IndexDown503(t *testing.T) {
	idx := &stubIndex{queryErr: errors.New("connection refused")}
	handler := newTestRouter(t, serverOpts{idx: idx, indexConfigured: true})

	rr := doJSON(t, handler, "POST", "/search", `{"query": "red sneakers"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "unavailable" {
		t.Errorf("status: got %q, want unavailable", resp["status"])
	}
}

func TestHandleSearch_DemoModeWhenUnconfigured(t *testing.T) {
	handler := newTestRouter(t, serverOpts{noIndex: true, demoFallback: true})

	rr := doJSON(t, handler, "POST", "/search", `{"query": "red sneakers"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "demo_mode" {
		t.Errorf("status: got %q, want demo_mode", resp.Status)
	}
	if resp.TotalResults != 1 {
		t.Errorf("expected one canned result, got %d", resp.TotalResults)
	}
}

func TestHandleSearch_NoDemoWithoutFallbackFlag(t *testing.T) {
	handler := newTestRouter(t, serverOpts{noIndex: true, demoFallback: false})

	rr := doJSON(t, handler, "POST", "/search", `{"query": "red sneakers"}`)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", rr.Code)
	}
}

func TestHandleSearch_ExpanderFailureFallbackMode(t *testing.T) {
	idx := &stubIndex{matches: []domain.Match{{EntryID: "p1", Score: 0.8}}}
	exp := &stubExpander{err: errors.New("llm down")}
	handler := newTestRouter(t, serverOpts{idx: idx, expander: exp, indexConfigured: true})

	rr := doJSON(t, handler, "POST", "/search", `{"query": "red sneakers", "rewrite": true}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "fallback_mode" {
		t.Errorf("status: got %q, want fallback_mode", resp.Status)
	}
	if resp.TotalResults != 1 {
		t.Errorf("expected results despite degradation, got %d", resp.TotalResults)
	}
}

func TestHandleSearch_RewriteExpandsQueries(t *testing.T) {
	idx := &stubIndex{matches: []domain.Match{{EntryID: "p1", Score: 0.8}}}
	exp := &stubExpander{variants: []string{"red athletic shoes"}}
	handler := newTestRouter(t, serverOpts{idx: idx, expander: exp, indexConfigured: true})

	rr := doJSON(t, handler, "POST", "/search", `{"query": "red sneakers", "rewrite": true}`)

	var resp searchResponse
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.ExpandedQueries) != 2 {
		t.Errorf("expanded_queries: got %v", resp.ExpandedQueries)
	}
}

// --- Webhook handler ---

func TestHandleWebhook_PublishIndexes(t *testing.T) {
	idx := &stubIndex{}
	handler := newTestRouter(t, serverOpts{idx: idx, indexConfigured: true})

	body := `{"event": "entry_published", "content_type_uid": "product",
		"data": {"entry": {"uid": "shoe_42", "title": "Red Sneakers"}}}`
	rr := doJSON(t, handler, "POST", "/webhook", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "success" || resp["result"] != "indexed" {
		t.Errorf("unexpected response %v", resp)
	}
	if len(idx.upserted) != 1 || idx.upserted[0] != "shoe_42" {
		t.Errorf("unexpected upserts %v", idx.upserted)
	}
}

func TestHandleWebhook_UnpublishDeletes(t *testing.T) {
	idx := &stubIndex{}
	handler := newTestRouter(t, serverOpts{idx: idx, indexConfigured: true})

	body := `{"event": "entry_unpublished", "content_type_uid": "product",
		"data": {"entry": {"uid": "shoe_42"}}}`
	rr := doJSON(t, handler, "POST", "/webhook", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}
	if len(idx.deleted) != 1 || idx.deleted[0] != "shoe_42" {
		t.Errorf("unexpected deletes %v", idx.deleted)
	}
}

func TestHandleWebhook_BadJSONStill200(t *testing.T) {
	handler := newTestRouter(t, serverOpts{idx: &stubIndex{}, indexConfigured: true})

	rr := doJSON(t, handler, "POST", "/webhook", `{broken`)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "received" {
		t.Errorf("status: got %q, want received", resp["status"])
	}
}

func TestHandleWebhook_UnknownEventIgnored(t *testing.T) {
	idx := &stubIndex{}
	handler := newTestRouter(t, serverOpts{idx: idx, indexConfigured: true})

	body := `{"event": "entry_previewed", "data": {"entry": {"uid": "p1"}}}`
	rr := doJSON(t, handler, "POST", "/webhook", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}

	var resp map[string]string
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["result"] != "ignored" {
		t.Errorf("result: got %q, want ignored", resp["result"])
	}
}

// --- Sync handler ---

func TestHandleSync_Success(t *testing.T) {
	idx := &stubIndex{}
	cms := &stubCMS{entries: []domain.Entry{
		{UID: "p1", ContentType: "product", Fields: map[string]any{"uid": "p1", "title": "Red Sneakers"}},
	}}
	handler := newTestRouter(t, serverOpts{idx: idx, cms: cms, indexConfigured: true})

	rr := doJSON(t, handler, "POST", "/sync?content_type=product", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200: %s", rr.Code, rr.Body.String())
	}

	var resp map[string]any
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp["status"] != "sync_completed" || resp["content_type"] != "product" {
		t.Errorf("unexpected response %v", resp)
	}
	if resp["indexed"].(float64) != 1 {
		t.Errorf("indexed: got %v", resp["indexed"])
	}
}

func TestHandleSync_Unconfigured503(t *testing.T) {
	handler := newTestRouter(t, serverOpts{noIndex: true})

	rr := doJSON(t, handler, "POST", "/sync", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("got %d, want 503", rr.Code)
	}
}

func TestHandleSync_RequiresAuthWhenConfigured(t *testing.T) {
	idx := &stubIndex{}
	cms := &stubCMS{}
	handler := newTestRouter(t, serverOpts{idx: idx, cms: cms, indexConfigured: true, apiKeys: []string{"secret"}})

	rr := doJSON(t, handler, "POST", "/sync", "")
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("unauthenticated sync: got %d, want 401", rr.Code)
	}

	req := httptest.NewRequest("POST", "/sync", http.NoBody)
	req.Header.Set("Authorization", "Bearer secret")
	rr2 := httptest.NewRecorder()
	handler.ServeHTTP(rr2, req)
	if rr2.Code != http.StatusOK {
		t.Errorf("authenticated sync: got %d, want 200", rr2.Code)
	}

	// search stays open
	rr3 := doJSON(t, handler, "POST", "/search", `{"query": "red sneakers"}`)
	if rr3.Code == http.StatusUnauthorized {
		t.Error("search must not require auth")
	}
}

// --- Health handler ---

func TestHandleHealth(t *testing.T) {
	handler := newTestRouter(t, serverOpts{idx: &stubIndex{}, indexConfigured: true})

	req := httptest.NewRequest("GET", "/health", http.NoBody)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rr.Code)
	}

	var resp struct {
		Status string            `json:"status"`
		Checks map[string]string `json:"checks"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("status: got %q, want ok", resp.Status)
	}
	for _, name := range []string{"index", "embedding", "expander", "cms"} {
		if _, ok := resp.Checks[name]; !ok {
			t.Errorf("missing check %q", name)
		}
	}
}
