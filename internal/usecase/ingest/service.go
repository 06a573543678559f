package ingest

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/stacksearch/relay/internal/domain"
	"github.com/stacksearch/relay/internal/repository/index"
)

const pageSize = 100

// Service performs full-catalog synchronization from the CMS into the
// vector index. Entries are fetched page by page, embedded concurrently
// on a worker pool, and written in pipelined batches.
type Service struct {
	cms    CMS
	embed  Embedder
	index  Index
	pool   *ants.Pool
	logger *zap.Logger
}

// New creates an ingestion service with a worker pool of the given size.
func New(cms CMS, embed Embedder, idx Index, workers int, logger *zap.Logger) (*Service, error) {
	if workers < 1 {
		workers = 1
	}
	pool, err := ants.NewPool(workers)
	if err != nil {
		return nil, fmt.Errorf("create worker pool: %w", err)
	}

	return &Service{
		cms:    cms,
		embed:  embed,
		index:  idx,
		pool:   pool,
		logger: logger,
	}, nil
}

// Release frees the worker pool. The service must not be used afterwards.
func (s *Service) Release() {
	if s.pool != nil {
		s.pool.Release()
	}
}

// Report summarizes one sync run.
type Report struct {
	Fetched int `json:"fetched"`
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`
}

// Sync fetches every entry of contentType and indexes it. Entries with
// no searchable text or failed embeddings are counted as failed and
// skipped; a page-level index write failure fails that page only.
func (s *Service) Sync(ctx context.Context, contentType string) (Report, error) {
	var report Report

	if s.cms == nil || s.embed == nil || s.index == nil {
		return report, fmt.Errorf("sync requires cms, embedding and index: %w", domain.ErrConfigurationMissing)
	}

	skip := 0
	for {
		entries, total, err := s.cms.FetchEntries(ctx, contentType, pageSize, skip)
		if err != nil {
			return report, fmt.Errorf("fetch entries at offset %d: %w", skip, err)
		}
		if len(entries) == 0 {
			break
		}
		report.Fetched += len(entries)

		items, failed := s.embedPage(ctx, entries)
		report.Failed += failed

		if len(items) > 0 {
			if err := s.index.UpsertBatch(ctx, items); err != nil {
				s.logger.Error("Failed to index page",
					zap.Int("offset", skip), zap.Int("count", len(items)), zap.Error(err))
				report.Failed += len(items)
			} else {
				report.Indexed += len(items)
			}
		}

		skip += len(entries)
		if skip >= total || len(entries) < pageSize {
			break
		}
	}

	s.logger.Info("Sync completed",
		zap.String("content_type", contentType),
		zap.Int("fetched", report.Fetched),
		zap.Int("indexed", report.Indexed),
		zap.Int("failed", report.Failed))

	return report, nil
}

// embedPage embeds one page of entries on the worker pool and returns
// the index items plus the number of entries that could not be embedded.
func (s *Service) embedPage(ctx context.Context, entries []domain.Entry) ([]index.UpsertItem, int) {
	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		items  []index.UpsertItem
		failed int
	)
	// Counted outside mu: only the submitting goroutine touches it.
	skipped := 0

	for _, entry := range entries {
		entry := entry

		text := entry.SearchableText()
		if text == "" {
			s.logger.Warn("Entry has no searchable text", zap.String("uid", entry.UID))
			skipped++
			continue
		}

		wg.Add(1)
		submitErr := s.pool.Submit(func() {
			defer wg.Done()

			result, err := s.embed.Embed(ctx, text)
			if err != nil {
				s.logger.Warn("Failed to embed entry",
					zap.String("uid", entry.UID), zap.Error(err))
				mu.Lock()
				failed++
				mu.Unlock()
				return
			}

			mu.Lock()
			items = append(items, index.UpsertItem{
				ID:       entry.UID,
				Vector:   result.Embedding,
				Metadata: entry.Metadata(),
			})
			mu.Unlock()
		})
		if submitErr != nil {
			wg.Done()
			skipped++
		}
	}

	wg.Wait()
	return items, failed + skipped
}
