package webhook

import (
	"context"

	"go.uber.org/zap"

	"github.com/stacksearch/relay/internal/domain"
)

// Outcome tells the caller what happened to a webhook event.
type Outcome string

const (
	OutcomeIndexed Outcome = "indexed"
	OutcomeDeleted Outcome = "deleted"
	OutcomeIgnored Outcome = "ignored"
)

// Service applies CMS publish lifecycle events to the vector index.
type Service struct {
	embed  Embedder
	index  Index
	logger *zap.Logger
}

// New creates a webhook processing service. embed and index may be nil;
// events are then acknowledged and ignored.
func New(embed Embedder, idx Index, logger *zap.Logger) *Service {
	return &Service{embed: embed, index: idx, logger: logger}
}

// Process applies one event. Publish-class events re-embed and upsert
// the entry; unpublish-class events delete it. Unknown events and
// processing failures are reported as ignored, never as errors, so the
// HTTP layer can always acknowledge the delivery.
func (s *Service) Process(ctx context.Context, event, contentType string, entry domain.Entry) Outcome {
	switch event {
	case "entry_published", "entry_updated", "entry_created":
		return s.upsert(ctx, contentType, entry)
	case "entry_unpublished", "entry_deleted":
		return s.delete(ctx, entry.UID)
	default:
		s.logger.Info("Ignoring unhandled webhook event", zap.String("event", event))
		return OutcomeIgnored
	}
}

func (s *Service) upsert(ctx context.Context, contentType string, entry domain.Entry) Outcome {
	if s.embed == nil || s.index == nil {
		s.logger.Warn("Webhook upsert skipped: index or embedding unconfigured",
			zap.String("uid", entry.UID))
		return OutcomeIgnored
	}
	if entry.UID == "" {
		s.logger.Warn("Webhook entry has no uid")
		return OutcomeIgnored
	}
	if entry.ContentType == "" {
		entry.ContentType = contentType
	}

	text := entry.SearchableText()
	if text == "" {
		s.logger.Warn("Webhook entry has no searchable text", zap.String("uid", entry.UID))
		return OutcomeIgnored
	}

	result, err := s.embed.Embed(ctx, text)
	if err != nil {
		s.logger.Error("Failed to embed webhook entry",
			zap.String("uid", entry.UID), zap.Error(err))
		return OutcomeIgnored
	}

	if err := s.index.Upsert(ctx, entry.UID, result.Embedding, entry.Metadata()); err != nil {
		s.logger.Error("Failed to index webhook entry",
			zap.String("uid", entry.UID), zap.Error(err))
		return OutcomeIgnored
	}

	s.logger.Info("Indexed webhook entry", zap.String("uid", entry.UID))
	return OutcomeIndexed
}

func (s *Service) delete(ctx context.Context, uid string) Outcome {
	if s.index == nil {
		s.logger.Warn("Webhook delete skipped: index unconfigured", zap.String("uid", uid))
		return OutcomeIgnored
	}
	if uid == "" {
		s.logger.Warn("Webhook entry has no uid")
		return OutcomeIgnored
	}

	if err := s.index.Delete(ctx, uid); err != nil {
		s.logger.Error("Failed to remove webhook entry",
			zap.String("uid", uid), zap.Error(err))
		return OutcomeIgnored
	}

	s.logger.Info("Removed webhook entry", zap.String("uid", uid))
	return OutcomeDeleted
}
