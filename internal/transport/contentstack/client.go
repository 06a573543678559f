package contentstack

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/stacksearch/relay/internal/domain"
)

const defaultTimeout = 15 * time.Second

// Client is a Contentstack delivery API client.
type Client struct {
	httpClient    *http.Client
	baseURL       string
	apiKey        string
	deliveryToken string
	environment   string
	logger        *zap.Logger
}

// Config holds delivery API settings.
type Config struct {
	BaseURL       string
	APIKey        string
	DeliveryToken string
	Environment   string
	Timeout       time.Duration
	Logger        *zap.Logger
}

// New creates a delivery API client.
func New(cfg *Config) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &Client{
		httpClient:    &http.Client{Timeout: timeout},
		baseURL:       cfg.BaseURL,
		apiKey:        cfg.APIKey,
		deliveryToken: cfg.DeliveryToken,
		environment:   cfg.Environment,
		logger:        cfg.Logger,
	}
}

type entriesResponse struct {
	Entries []map[string]any `json:"entries"`
	Count   int              `json:"count"`
}

type entryResponse struct {
	Entry map[string]any `json:"entry"`
}

// FetchEntries fetches one page of entries for a content type.
// The returned total is the full entry count for the content type
// (include_count=true), not the page size.
func (c *Client) FetchEntries(ctx context.Context, contentType string, limit, skip int) ([]domain.Entry, int, error) {
	if err := c.checkConfigured(); err != nil {
		return nil, 0, err
	}

	endpoint := fmt.Sprintf("%s/content_types/%s/entries", c.baseURL, url.PathEscape(contentType))

	params := url.Values{}
	params.Set("environment", c.environment)
	params.Set("limit", strconv.Itoa(limit))
	params.Set("skip", strconv.Itoa(skip))
	params.Set("include_count", "true")

	var resp entriesResponse
	if err := c.get(ctx, endpoint+"?"+params.Encode(), &resp); err != nil {
		return nil, 0, err
	}

	entries := make([]domain.Entry, 0, len(resp.Entries))
	for _, fields := range resp.Entries {
		uid, _ := fields["uid"].(string)
		if uid == "" {
			continue
		}
		entries = append(entries, domain.Entry{
			UID:         uid,
			ContentType: contentType,
			Fields:      fields,
		})
	}

	return entries, resp.Count, nil
}

// FetchEntry fetches a single entry by UID.
func (c *Client) FetchEntry(ctx context.Context, contentType, uid string) (domain.Entry, error) {
	if err := c.checkConfigured(); err != nil {
		return domain.Entry{}, err
	}

	endpoint := fmt.Sprintf("%s/content_types/%s/entries/%s",
		c.baseURL, url.PathEscape(contentType), url.PathEscape(uid))

	params := url.Values{}
	params.Set("environment", c.environment)

	var resp entryResponse
	if err := c.get(ctx, endpoint+"?"+params.Encode(), &resp); err != nil {
		return domain.Entry{}, err
	}
	if resp.Entry == nil {
		return domain.Entry{}, fmt.Errorf("entry %s: %w", uid, domain.ErrEntryNotFound)
	}

	return domain.Entry{
		UID:         uid,
		ContentType: contentType,
		Fields:      resp.Entry,
	}, nil
}

// Ping checks delivery API reachability with a minimal single-entry request.
func (c *Client) Ping(ctx context.Context, contentType string) error {
	_, _, err := c.FetchEntries(ctx, contentType, 1, 0)
	return err
}

func (c *Client) get(ctx context.Context, rawURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("api_key", c.apiKey)
	req.Header.Set("access_token", c.deliveryToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", domain.ErrCMSUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("delivery API %d: %w", resp.StatusCode, domain.ErrEntryNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: delivery API %d: %s", domain.ErrCMSUnavailable, resp.StatusCode, body)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", domain.ErrCMSUnavailable, err)
	}
	return nil
}

func (c *Client) checkConfigured() error {
	if c.apiKey == "" || c.deliveryToken == "" {
		return fmt.Errorf("contentstack credentials: %w", domain.ErrConfigurationMissing)
	}
	return nil
}
