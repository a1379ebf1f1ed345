// Package substack provides the mentions-source adapter: it reads each
// publication's RSS feed and reports the tickers mentioned per article.
package substack

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/mmcdole/gofeed"
	"github.com/rs/zerolog"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/fetch"
	"github.com/aristath/consensus/internal/ticker"
)

const (
	// DefaultMaxArticles is the number of feed entries read per publication
	DefaultMaxArticles = 10

	excerptLength = 300
)

// Options configures the client
type Options struct {
	MaxArticles int
	Timeout     time.Duration
	Retry       fetch.RetryPolicy
	Gate        *fetch.HostGate
	Extractor   ticker.Extractor // Defaults to the regex extractor
}

// Client reads publication feeds. It implements domain.MentionsSource.
type Client struct {
	httpClient  *http.Client
	maxArticles int
	retry       fetch.RetryPolicy
	gate        *fetch.HostGate
	extractor   ticker.Extractor
	log         zerolog.Logger
}

// NewClient creates a new Substack client
func NewClient(opts Options, log zerolog.Logger) *Client {
	if opts.MaxArticles <= 0 {
		opts.MaxArticles = DefaultMaxArticles
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Gate == nil {
		opts.Gate = fetch.NewHostGate(0)
	}
	if opts.Extractor == nil {
		opts.Extractor = ticker.RegexExtractor{}
	}
	return &Client{
		httpClient:  &http.Client{Timeout: opts.Timeout},
		maxArticles: opts.MaxArticles,
		retry:       opts.Retry,
		gate:        opts.Gate,
		extractor:   opts.Extractor,
		log:         log.With().Str("client", "substack").Logger(),
	}
}

// FetchMentions parses the publication feed and returns one fact per
// (article, ticker) pair. Articles without tickers contribute nothing.
func (c *Client) FetchMentions(ctx context.Context, pub domain.Publication) ([]domain.MentionFact, error) {
	feedURL := pub.Feed()
	c.log.Info().Str("publication", pub.Name).Str("feed", feedURL).Msg("Parsing RSS feed")

	feed, err := fetch.Retry(ctx, c.retry, c.log, feedURL, func(ctx context.Context) (*gofeed.Feed, error) {
		var feed *gofeed.Feed
		err := c.gate.Do(ctx, fetch.HostOf(feedURL), func(ctx context.Context) error {
			var err error
			feed, err = c.getFeed(ctx, feedURL)
			return err
		})
		return feed, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed of %s: %w", pub.Name, err)
	}

	items := feed.Items
	if len(items) > c.maxArticles {
		items = items[:c.maxArticles]
	}
	if len(items) == 0 {
		c.log.Warn().Str("publication", pub.Name).Msg("No articles found in feed")
	}

	var facts []domain.MentionFact
	articles := 0
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		articleID := item.Link
		if articleID == "" {
			articleID = item.GUID
		}
		if articleID == "" {
			c.log.Warn().Str("publication", pub.Name).Str("title", item.Title).Msg("Skipping article without link")
			continue
		}

		tickers := c.extract(ctx, item.Title+"\n\n"+item.Description)
		if len(tickers) == 0 {
			c.log.Debug().Str("title", item.Title).Msg("No tickers found in article")
			continue
		}
		articles++

		for _, t := range tickers {
			facts = append(facts, domain.MentionFact{
				Ticker:      t,
				Publication: pub.Name,
				ArticleID:   articleID,
				Title:       item.Title,
				Excerpt:     excerpt(item.Description, excerptLength),
				PublishedAt: item.PublishedParsed,
			})
		}
	}

	c.log.Info().
		Str("publication", pub.Name).
		Int("articles", articles).
		Int("mentions", len(facts)).
		Msg("Parsed publication")

	return facts, nil
}

func (c *Client) extract(ctx context.Context, text string) []string {
	tickers, err := c.extractor.Extract(ctx, text)
	if err != nil {
		c.log.Warn().Err(err).Msg("Ticker extraction failed, using patterns")
		return ticker.ExtractRegex(text)
	}
	return tickers
}

func (c *Client) getFeed(ctx context.Context, feedURL string) (*gofeed.Feed, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fetch.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", "consensus/1.0 (+rss)")

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

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return nil, fetch.Permanent(fmt.Errorf("failed to parse feed: %w", err))
	}
	return feed, nil
}

// excerpt trims s to at most n runes
func excerpt(s string, n int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
