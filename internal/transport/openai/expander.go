package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/stacksearch/relay/internal/domain"
	"github.com/stacksearch/relay/internal/metrics"
)

const expanderPrompt = `Given the search query: %q

Generate %d different but semantically similar search queries that would help find the same or related products.

Focus on:
- Synonyms and related terms
- Different ways to express the same intent
- Common variations people might search for
- Broader or narrower related concepts

Return only the rewritten queries as a JSON array of strings, no other text.

Examples:
Original: "red sneakers"
Rewrites: ["red athletic shoes", "crimson sneakers", "red running shoes"]

Original: "wireless headphones"
Rewrites: ["bluetooth headphones", "wireless earbuds", "cordless headphones"]`

// Expander rewrites a search query into semantically similar variants
// via a chat-completion model.
type Expander struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// ExpanderConfig holds the query expander settings.
type ExpanderConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Logger  *zap.Logger
}

// NewExpander creates a chat-completion backed query expander.
func NewExpander(cfg *ExpanderConfig) *Expander {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &Expander{
		client: openai.NewClientWithConfig(clientCfg),
		model:  cfg.Model,
		logger: cfg.Logger,
	}
}

// Expand returns up to n rewritten variants of query. The original query
// is not included; callers decide how to combine it with the variants.
func (e *Expander) Expand(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	start := time.Now()

	resp, err := e.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: e.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: fmt.Sprintf(expanderPrompt, query, n),
			},
		},
		Temperature: 0.7,
	})
	if err != nil {
		metrics.ExpansionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: chat completion: %w", domain.ErrExpanderUnavailable, err)
	}

	if len(resp.Choices) == 0 {
		metrics.ExpansionsTotal.WithLabelValues("error").Inc()
		return nil, fmt.Errorf("%w: empty completion response", domain.ErrExpanderUnavailable)
	}

	variants := parseExpansions(resp.Choices[0].Message.Content, n)

	metrics.ExpansionsTotal.WithLabelValues("success").Inc()
	e.logger.Debug("Expanded query",
		zap.String("query", query),
		zap.Int("variants", len(variants)),
		zap.Duration("duration", time.Since(start)))

	return variants, nil
}

// parseExpansions parses the model output. A well-behaved model returns a
// JSON array of strings; anything else falls back to line splitting with
// quotes, commas and brackets stripped.
func parseExpansions(text string, n int) []string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var parsed []string
	if err := json.Unmarshal([]byte(text), &parsed); err == nil {
		out := make([]string, 0, n)
		for _, v := range parsed {
			v = strings.TrimSpace(v)
			if v != "" {
				out = append(out, v)
			}
			if len(out) == n {
				break
			}
		}
		return out
	}

	out := make([]string, 0, n)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "[") || strings.HasPrefix(line, "]") {
			continue
		}
		line = strings.Trim(line, `"'`)
		line = strings.TrimSuffix(line, ",")
		line = strings.Trim(line, `"'`)
		if line != "" {
			out = append(out, line)
		}
		if len(out) == n {
			break
		}
	}
	return out
}
