package ingest

import (
	"context"

	"github.com/stacksearch/relay/internal/domain"
	"github.com/stacksearch/relay/internal/repository/index"
)

// CMS fetches entries from the headless CMS delivery API.
type CMS interface {
	FetchEntries(ctx context.Context, contentType string, limit, skip int) ([]domain.Entry, int, error)
}

// Embedder vectorizes entry text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index writes entry vectors to the vector index.
type Index interface {
	UpsertBatch(ctx context.Context, items []index.UpsertItem) error
}
