package webhook

import (
	"context"

	"github.com/stacksearch/relay/internal/domain"
)

// Embedder vectorizes entry text into embeddings.
type Embedder interface {
	Embed(ctx context.Context, text string) (domain.EmbeddingResult, error)
}

// Index applies single-entry mutations to the vector index.
type Index interface {
	Upsert(ctx context.Context, id string, vector []float32, metadata map[string]string) error
	Delete(ctx context.Context, id string) error
}
