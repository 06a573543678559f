package search

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/stacksearch/relay/internal/domain"
	"github.com/stacksearch/relay/internal/metrics"
)

// Config holds server-side search caps.
type Config struct {
	DefaultTopK   int
	MaxTopK       int
	IndexQueryCap int
	MaxExpansions int
}

// Service runs multi-query semantic search: expand, embed each variant,
// retrieve, merge by best score, rank.
//
// Any collaborator may be nil when unconfigured; the service degrades
// instead of failing wherever at least one retrieval can still succeed.
type Service struct {
	index  Index
	embed  Embedder
	expand Expander
	cfg    Config
	logger *zap.Logger
}

// New creates a search service. index, embed and expand may be nil.
func New(index Index, embed Embedder, expand Expander, cfg Config, logger *zap.Logger) *Service {
	return &Service{
		index:  index,
		embed:  embed,
		expand: expand,
		cfg:    cfg,
		logger: logger,
	}
}

// Result is the outcome of one search call.
type Result struct {
	Matches  []domain.Match
	Queries  []string // variants actually used, original first
	Degraded bool     // true when any collaborator failed along the way
}

// Search answers a free-text query.
//
// The original query always participates in retrieval. With expand set,
// rewritten variants run too; each variant is embedded and queried
// independently, and per-entry results keep the highest score across
// variants. Variant-level failures degrade the result. Only a total
// retrieval failure returns ErrIndexUnavailable.
func (s *Service) Search(ctx context.Context, query string, topK int, expand bool) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidQuery)
	}
	topK = s.clampTopK(topK)

	variants, degraded := s.buildVariants(ctx, query, expand)
	metrics.SearchVariants.Observe(float64(len(variants)))

	res := Result{Queries: variants}

	if s.index == nil || s.embed == nil {
		return res, fmt.Errorf("%w: no retrieval backend configured", domain.ErrIndexUnavailable)
	}

	k := topK
	if s.cfg.IndexQueryCap > 0 && k > s.cfg.IndexQueryCap {
		k = s.cfg.IndexQueryCap
	}

	merged := newMerger()
	retrievals := 0

	for _, variant := range variants {
		emb, err := s.embed.Embed(ctx, variant)
		if err != nil {
			s.logger.Warn("Failed to embed query variant",
				zap.String("variant", variant), zap.Error(err))
			degraded = true
			continue
		}

		matches, err := s.index.Query(ctx, emb.Embedding, k)
		if err != nil {
			s.logger.Warn("Retrieval failed for query variant",
				zap.String("variant", variant), zap.Error(err))
			degraded = true
			continue
		}

		retrievals++
		merged.add(variant, matches)
	}

	res.Degraded = degraded

	if retrievals == 0 {
		return res, fmt.Errorf("%w: all retrieval attempts failed", domain.ErrIndexUnavailable)
	}

	res.Matches = merged.ranked(topK)
	return res, nil
}

// buildVariants returns the deduplicated query variants, original first.
// Expansion failures are absorbed; the original query always survives.
func (s *Service) buildVariants(ctx context.Context, query string, expand bool) ([]string, bool) {
	degraded := false
	raw := []string{query}

	if expand && s.expand != nil && s.cfg.MaxExpansions > 0 {
		rewrites, err := s.expand.Expand(ctx, query, s.cfg.MaxExpansions)
		if err != nil {
			s.logger.Warn("Query expansion failed", zap.String("query", query), zap.Error(err))
			degraded = true
		} else {
			raw = append(raw, rewrites...)
		}
	}

	seen := make(map[string]struct{}, len(raw))
	variants := make([]string, 0, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		key := strings.ToLower(v)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		variants = append(variants, v)
	}

	return variants, degraded
}

func (s *Service) clampTopK(topK int) int {
	if topK <= 0 {
		topK = s.cfg.DefaultTopK
	}
	if topK < 1 {
		topK = 1
	}
	if s.cfg.MaxTopK > 0 && topK > s.cfg.MaxTopK {
		topK = s.cfg.MaxTopK
	}
	return topK
}

// merger accumulates matches across variants, keeping the highest score
// per entry. Ties keep the first-seen match.
type merger struct {
	byID  map[string]int
	order []domain.Match
}

func newMerger() *merger {
	return &merger{byID: make(map[string]int)}
}

func (m *merger) add(variant string, matches []domain.Match) {
	for _, match := range matches {
		match.QueryUsed = variant

		i, ok := m.byID[match.EntryID]
		if !ok {
			m.byID[match.EntryID] = len(m.order)
			m.order = append(m.order, match)
			continue
		}
		if match.Score > m.order[i].Score {
			m.order[i] = match
		}
	}
}

// ranked returns the merged matches sorted by score descending,
// truncated to topK. The sort is stable so equal scores preserve
// first-seen order.
func (m *merger) ranked(topK int) []domain.Match {
	out := make([]domain.Match, len(m.order))
	copy(out, m.order)

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Score > out[j].Score
	})

	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
