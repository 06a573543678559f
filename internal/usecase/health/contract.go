package health

import "context"

// IndexPinger checks vector index availability.
type IndexPinger interface {
	Ping(ctx context.Context) error
}

// EmbeddingChecker checks embedding provider availability.
type EmbeddingChecker interface {
	HealthCheck(ctx context.Context) error
}

// CMSPinger checks CMS delivery API availability.
type CMSPinger interface {
	Ping(ctx context.Context, contentType string) error
}
