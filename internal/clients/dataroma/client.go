// Package dataroma provides the holdings-source adapter: discovery of the
// tracked fund managers and scraping of each manager's holdings page.
package dataroma

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/html"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/fetch"
)

const (
	// DefaultBaseURL is the root of the manager pages
	DefaultBaseURL = "https://www.dataroma.com/m"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Options configures the client
type Options struct {
	BaseURL string
	Timeout time.Duration
	Retry   fetch.RetryPolicy
	Gate    *fetch.HostGate // Shared politeness gate; nil disables spacing
}

// Client is the Dataroma scraper. It implements domain.HoldingsSource.
type Client struct {
	baseURL    string
	httpClient *http.Client
	retry      fetch.RetryPolicy
	gate       *fetch.HostGate
	log        zerolog.Logger
	now        func() time.Time
}

// NewClient creates a new Dataroma client
func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Gate == nil {
		opts.Gate = fetch.NewHostGate(0)
	}
	return &Client{
		baseURL:    opts.BaseURL,
		httpClient: &http.Client{Timeout: opts.Timeout},
		retry:      opts.Retry,
		gate:       opts.Gate,
		log:        log.With().Str("client", "dataroma").Logger(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// DiscoverEntities reads the home page and lists every manager with its
// reported update date.
func (c *Client) DiscoverEntities(ctx context.Context) ([]domain.UpstreamEntity, error) {
	homeURL := c.baseURL + "/home.php"
	c.log.Info().Str("url", homeURL).Msg("Discovering investors")

	doc, err := c.getDocument(ctx, homeURL)
	if err != nil {
		return nil, fmt.Errorf("failed to discover investors: %w", err)
	}

	entities := ParseDiscovery(doc, c.baseURL)
	c.log.Info().Int("count", len(entities)).Msg("Discovered investors")
	return entities, nil
}

// FetchHoldings scrapes the holdings table of one manager
func (c *Client) FetchHoldings(ctx context.Context, entity domain.UpstreamEntity) ([]domain.HoldingFact, error) {
	if entity.ID == "" {
		return nil, fmt.Errorf("entity %q has no fund id: %w", entity.Name, domain.ErrMalformedFact)
	}
	pageURL := entity.SourceURL
	if pageURL == "" {
		pageURL = HoldingsURL(c.baseURL, entity.ID)
	}

	c.log.Info().Str("investor", entity.Name).Str("fund_id", entity.ID).Msg("Scraping holdings")

	doc, err := c.getDocument(ctx, pageURL)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch holdings of %s: %w", entity.ID, err)
	}

	entity.SourceURL = pageURL
	facts, skipped := ParseHoldings(doc, entity, c.now())
	if skipped > 0 {
		c.log.Warn().Str("fund_id", entity.ID).Int("skipped", skipped).Msg("Skipped malformed holding rows")
	}
	if len(facts) == 0 {
		c.log.Warn().Str("fund_id", entity.ID).Msg("No holdings table found")
	}
	return facts, nil
}

// HoldingsURL builds the holdings page location of a fund
func HoldingsURL(baseURL, fundID string) string {
	return baseURL + "/holdings.php?m=" + url.QueryEscape(fundID)
}

func (c *Client) getDocument(ctx context.Context, pageURL string) (*html.Node, error) {
	host := fetch.HostOf(pageURL)
	return fetch.Retry(ctx, c.retry, c.log, pageURL, func(ctx context.Context) (*html.Node, error) {
		var doc *html.Node
		err := c.gate.Do(ctx, host, func(ctx context.Context) error {
			var err error
			doc, err = c.get(ctx, pageURL)
			return err
		})
		return doc, err
	})
}

func (c *Client) get(ctx context.Context, pageURL string) (*html.Node, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fetch.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		err := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, fetch.Permanent(err)
		}
		return nil, err
	}

	doc, err := html.Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse page: %w", err)
	}
	return doc, nil
}
