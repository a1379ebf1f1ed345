// Package yahoo provides the market-data adapter on top of go-yfinance.
package yahoo

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/fetch"
)

// ErrNoPrice is returned when the symbol resolves but carries no usable price.
var ErrNoPrice = errors.New("no market price")

// Host is the politeness key for every Yahoo request.
const Host = "query1.finance.yahoo.com"

// alternateSuffixes are tried, in order, for numeric international symbols
// that did not resolve as given.
var alternateSuffixes = []string{".KS", ".KQ", ".HK", ".T", ".L", ".DE", ".PA", ".AS", ".SW"}

// Quote is the flattened subset of Yahoo data used to build a snapshot.
// Zero numbers mean "not reported".
type Quote struct {
	Symbol        string
	Name          string
	QuoteType     string
	Industry      string
	Country       string
	Exchange      string
	Price         float64
	PreviousClose float64
	TrailingPE    float64
	ForwardPE     float64
	PriceToBook   float64
	PEGRatio      float64
	MarketCap     float64
	Week52High    float64
	Week52Low     float64
	RSI14         float64
	SMA200        float64
}

type backend interface {
	Lookup(symbol string) (*Quote, error)
}

// Options configures the client
type Options struct {
	Timeout time.Duration // Per-lookup timeout
	Retry   fetch.RetryPolicy
	Gate    *fetch.HostGate
}

// Client fetches market snapshots. It implements domain.MarketDataSource.
type Client struct {
	backend backend
	timeout time.Duration
	retry   fetch.RetryPolicy
	gate    *fetch.HostGate
	log     zerolog.Logger
	now     func() time.Time
}

// NewClient creates a new Yahoo Finance client
func NewClient(opts Options, log zerolog.Logger) *Client {
	return newClient(&yfBackend{}, opts, log)
}

func newClient(b backend, opts Options, log zerolog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.Gate == nil {
		opts.Gate = fetch.NewHostGate(0)
	}
	return &Client{
		backend: b,
		timeout: opts.Timeout,
		retry:   opts.Retry,
		gate:    opts.Gate,
		log:     log.With().Str("client", "yahoo").Logger(),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// FetchMarketSnapshot looks up one canonical ticker. Numeric international
// symbols that do not resolve are retried under alternate exchange suffixes.
func (c *Client) FetchMarketSnapshot(ctx context.Context, symbol string) (domain.MarketSnapshot, error) {
	var lastErr error
	for _, candidate := range Candidates(symbol) {
		q, err := fetch.Retry(ctx, c.retry, c.log, candidate, func(ctx context.Context) (*Quote, error) {
			var q *Quote
			err := c.gate.Do(ctx, Host, func(ctx context.Context) error {
				var err error
				q, err = c.lookup(ctx, candidate)
				return err
			})
			return q, err
		})
		if err == nil {
			if candidate != symbol {
				c.log.Info().Str("ticker", symbol).Str("as", candidate).Msg("Resolved under alternate symbol")
			}
			return ToSnapshot(symbol, q, c.now()), nil
		}
		if ctx.Err() != nil {
			return domain.MarketSnapshot{}, ctx.Err()
		}
		lastErr = err
	}

	c.log.Warn().Err(lastErr).Str("ticker", symbol).Msg("Failed to fetch market data")
	return domain.MarketSnapshot{}, fmt.Errorf("failed to fetch market data for %s: %w", symbol, lastErr)
}

// lookup runs the blocking backend call under the per-lookup timeout
func (c *Client) lookup(ctx context.Context, symbol string) (*Quote, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	type result struct {
		q   *Quote
		err error
	}
	done := make(chan result, 1)
	go func() {
		q, err := c.backend.Lookup(symbol)
		done <- result{q, err}
	}()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r := <-done:
		if r.err != nil {
			return nil, r.err
		}
		if r.q == nil || r.q.Price <= 0 {
			return nil, fetch.Permanent(fmt.Errorf("%s: %w", symbol, ErrNoPrice))
		}
		return r.q, nil
	}
}

// Candidates lists the symbols tried for a ticker, the ticker itself first
func Candidates(symbol string) []string {
	out := []string{symbol}
	head := symbol
	if len(head) > 4 {
		head = head[:4]
	}
	if !strings.ContainsAny(head, "0123456789") {
		return out
	}
	base := strings.SplitN(strings.SplitN(symbol, ".", 2)[0], "-", 2)[0]
	for _, suffix := range alternateSuffixes {
		if c := base + suffix; c != symbol {
			out = append(out, c)
		}
	}
	return out
}

// ToSnapshot maps a quote onto the domain snapshot of ticker
func ToSnapshot(ticker string, q *Quote, fetchedAt time.Time) domain.MarketSnapshot {
	s := domain.MarketSnapshot{
		Ticker:        ticker,
		Status:        domain.MarketOK,
		Name:          q.Name,
		QuoteType:     domain.ProductType(strings.ToUpper(q.QuoteType)),
		Sector:        q.Industry,
		Country:       q.Country,
		Exchange:      q.Exchange,
		Price:         positive(q.Price),
		PreviousClose: positive(q.PreviousClose),
		PERatio:       positive(q.TrailingPE),
		ForwardPE:     positive(q.ForwardPE),
		PBRatio:       positive(q.PriceToBook),
		PEGRatio:      positive(q.PEGRatio),
		MarketCap:     positive(q.MarketCap),
		Week52High:    positive(q.Week52High),
		Week52Low:     positive(q.Week52Low),
		RSI14:         positive(q.RSI14),
		FetchedAt:     fetchedAt,
	}
	if q.SMA200 > 0 && q.Price > 0 {
		s.SMA200Distance = domain.Some((q.Price - q.SMA200) / q.SMA200 * 100)
	}
	s.Derive52WeekPositions()
	return s
}

func positive(v float64) domain.Metric {
	if v > 0 {
		return domain.Some(v)
	}
	return domain.NA
}
