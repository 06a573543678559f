package search

import (
	"context"

	"github.com/stacksearch/relay/internal/domain"
)

// Index runs KNN retrieval against the vector index.
type Index interface {
	Query(ctx context.Context, vector []float32, k int) ([]domain.Match, error)
}

// Embedder vectorizes text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Expander rewrites a query into semantically similar variants.
type Expander interface {
	Expand(ctx context.Context, query string, n int) ([]string, error)
}
