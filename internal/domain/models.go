// Package domain provides the core data model shared by every consensus component:
// upstream entities, per-source facts, market snapshots and the reconciled
// canonical security record.
package domain

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned by lookups that found nothing.
	ErrNotFound = errors.New("not found")
	// ErrMalformedFact marks an individual fact that cannot be ingested.
	ErrMalformedFact = errors.New("malformed fact")
)

// Source identifies one of the independent upstream sources.
type Source string

const (
	// SourceHoldings is the investor-holdings site.
	SourceHoldings Source = "Dataroma"
	// SourceMentions is the set of subscription newsletters.
	SourceMentions Source = "Substack"
)

// ProductType represents the instrument type reported by the market-data source
type ProductType string

const (
	// ProductTypeEquity represents individual stocks/shares
	ProductTypeEquity ProductType = "EQUITY"
	// ProductTypeETF represents Exchange Traded Funds
	ProductTypeETF ProductType = "ETF"
	// ProductTypeMutualFund represents mutual funds
	ProductTypeMutualFund ProductType = "MUTUALFUND"
)

// IsFundLike reports whether the product type describes a pooled instrument.
func (p ProductType) IsFundLike() bool {
	switch ProductType(strings.ToUpper(string(p))) {
	case ProductTypeETF, ProductTypeMutualFund:
		return true
	}
	return false
}

// UpstreamEntity is one externally discoverable source-of-truth feed,
// e.g. one fund manager's holdings page.
type UpstreamEntity struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	FullName string `json:"full_name,omitempty"`
	// LastModified is the source's self-reported modification value (ISO date).
	// Empty when the source did not report one.
	LastModified string `json:"last_modified,omitempty"`
	SourceURL    string `json:"source_url,omitempty"`
}

// EntityState is the locally persisted processing state of an UpstreamEntity.
type EntityState struct {
	LastProcessedModified string    `json:"last_processed_modified"`
	LastProcessedAt       time.Time `json:"last_processed_at"`
}

// HoldingFact is one (entity, security) observation from the holdings source.
type HoldingFact struct {
	Ticker          string    `json:"ticker"`
	RawTicker       string    `json:"raw_ticker"`
	SecurityName    string    `json:"security_name"`
	Entity          string    `json:"entity"`
	EntityID        string    `json:"entity_id,omitempty"`
	PortfolioWeight Metric    `json:"portfolio_pct"`
	Shares          Metric    `json:"shares"`
	Activity        Activity  `json:"activity"`
	ActivityRaw     string    `json:"activity_raw"`
	SourceURL       string    `json:"source_url,omitempty"`
	ObservedAt      time.Time `json:"observed_at"`
}

// Publication is one newsletter feed tracked by the mentions source.
type Publication struct {
	Name    string `json:"name" yaml:"name"`
	URL     string `json:"url" yaml:"url"`
	FeedURL string `json:"rss_feed" yaml:"rss_feed"`
}

// Feed returns the RSS feed location, deriving it from the URL when unset.
func (p Publication) Feed() string {
	if p.FeedURL != "" {
		return p.FeedURL
	}
	return strings.TrimRight(p.URL, "/") + "/feed"
}

// MentionFact is one (publication, security) observation from a text source.
type MentionFact struct {
	Ticker      string     `json:"ticker"`
	Publication string     `json:"publication"`
	ArticleID   string     `json:"article_url"`
	Title       string     `json:"article_title"`
	Excerpt     string     `json:"thesis"`
	PublishedAt *time.Time `json:"published_date,omitempty"`
}

// MarketStatus describes the outcome of this run's market-data fetch.
type MarketStatus string

const (
	MarketOK      MarketStatus = "ok"
	MarketFailed  MarketStatus = "failed"
	MarketMissing MarketStatus = "missing"
)

// MarketSnapshot is one observation of a security from the market-data source.
// Every numeric field is a Metric so unknown values serialize as "N/A".
type MarketSnapshot struct {
	Ticker    string       `json:"-"`
	Status    MarketStatus `json:"status"`
	Error     string       `json:"error,omitempty"`
	Name      string       `json:"-"`
	QuoteType ProductType  `json:"quote_type,omitempty"`
	Sector    string       `json:"sector"`
	Country   string       `json:"country"`
	Exchange  string       `json:"exchange"`

	Price           Metric `json:"current_price"`
	PreviousClose   Metric `json:"previous_close"`
	PERatio         Metric `json:"pe_ratio"`
	ForwardPE       Metric `json:"forward_pe"`
	PBRatio         Metric `json:"pb_ratio"`
	PEGRatio        Metric `json:"peg_ratio"`
	MarketCap       Metric `json:"market_cap"`
	Week52High      Metric `json:"week_52_high"`
	Week52Low       Metric `json:"week_52_low"`
	PctAbove52wLow  Metric `json:"pct_above_52w_low"`
	PctBelow52wHigh Metric `json:"pct_below_52w_high"`
	RSI14           Metric `json:"rsi_14"`
	SMA200Distance  Metric `json:"sma_200_distance"`

	FetchedAt time.Time `json:"fetched_at,omitempty"`
}

// FailedSnapshot builds the explicit failure marker for a ticker.
func FailedSnapshot(ticker string, err error) MarketSnapshot {
	s := MarketSnapshot{Ticker: ticker, Status: MarketFailed, FetchedAt: time.Now().UTC()}
	if err != nil {
		s.Error = err.Error()
	}
	return s
}

// Failed reports whether the snapshot is a failure marker.
func (s MarketSnapshot) Failed() bool {
	return s.Status == MarketFailed
}

// PctChange returns the percentage move between price and previous close.
func (s MarketSnapshot) PctChange() Metric {
	if !s.Price.Valid || !s.PreviousClose.Valid || s.PreviousClose.Value == 0 {
		return NA
	}
	return Some((s.Price.Value - s.PreviousClose.Value) / s.PreviousClose.Value * 100)
}

// Derive52WeekPositions fills the 52-week distance metrics from price and range.
func (s *MarketSnapshot) Derive52WeekPositions() {
	if s.Price.Valid && s.Week52Low.Valid && s.Week52Low.Value > 0 {
		s.PctAbove52wLow = Some((s.Price.Value - s.Week52Low.Value) / s.Week52Low.Value * 100)
	}
	if s.Price.Valid && s.Week52High.Valid && s.Week52High.Value > 0 {
		s.PctBelow52wHigh = Some((s.Week52High.Value - s.Price.Value) / s.Week52High.Value * 100)
	}
}

// HoldingsData groups the holdings-source facts of a security.
type HoldingsData struct {
	Investors []HoldingFact `json:"investors"`
}

// MentionsData groups the mentions-source facts of a security.
type MentionsData struct {
	Mentions []MentionFact `json:"mentions"`
}

// CanonicalSecurity is the reconciled record for one normalized ticker.
type CanonicalSecurity struct {
	Ticker            string         `json:"ticker"`
	Name              string         `json:"company_name"`
	Sources           []Source       `json:"sources"`
	Holdings          HoldingsData   `json:"dataroma_data"`
	Mentions          MentionsData   `json:"substack_data"`
	Market            MarketSnapshot `json:"fundamentals"`
	AggregateActivity Action         `json:"aggregate_activity"`
	HoldingCount      int            `json:"investor_count"`
	MentionCount      int            `json:"mention_count"`
	IsStale           bool           `json:"is_stale"`
	IsFund            bool           `json:"is_etf"`
	Link              string         `json:"stockanalysis_link"`
}

// HasSource reports whether the given source has ever observed the security.
func (c *CanonicalSecurity) HasSource(src Source) bool {
	for _, s := range c.Sources {
		if s == src {
			return true
		}
	}
	return false
}

// HolderNames returns the reporting-entity names, in attachment order.
func (c *CanonicalSecurity) HolderNames() []string {
	names := make([]string, 0, len(c.Holdings.Investors))
	for _, h := range c.Holdings.Investors {
		names = append(names, h.Entity)
	}
	return names
}

// PublicationNames returns the distinct publication names, in attachment order.
func (c *CanonicalSecurity) PublicationNames() []string {
	seen := make(map[string]bool)
	names := make([]string, 0, len(c.Mentions.Mentions))
	for _, m := range c.Mentions.Mentions {
		if seen[m.Publication] {
			continue
		}
		seen[m.Publication] = true
		names = append(names, m.Publication)
	}
	return names
}

// FailureRecord tracks cumulative market-data fetch failures for a ticker.
type FailureRecord struct {
	Ticker           string    `json:"ticker"`
	FirstFailedAt    time.Time `json:"first_failed_at"`
	LastFailedAt     time.Time `json:"last_failed_at"`
	ConsecutiveCount int       `json:"consecutive_count"`
}

// AlertRule is a declarative, source-managed notification rule.
type AlertRule struct {
	Name      string `json:"rule_name" yaml:"name"`
	Condition string `json:"condition" yaml:"condition"`
	Target    string `json:"email" yaml:"email"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// AlertType identifies the kind of alert event.
type AlertType string

const (
	AlertPriceMove   AlertType = "price_move"
	AlertCrossSource AlertType = "cross_source"
	AlertCustomRule  AlertType = "custom_rule"
)

// AlertMatch is one security listed in an alert event.
type AlertMatch struct {
	Ticker        string   `json:"ticker"`
	Name          string   `json:"company_name"`
	HoldingCount  int      `json:"investor_count"`
	MentionCount  int      `json:"mention_count"`
	PctChange     Metric   `json:"pct_change"`
	CurrentPrice  Metric   `json:"current_price"`
	PreviousClose Metric   `json:"previous_close"`
	Holders       []string `json:"investors,omitempty"`
	Publications  []string `json:"publications,omitempty"`
	Link          string   `json:"stockanalysis_link"`
}

// AlertEvent is the output of the alert evaluator.
type AlertEvent struct {
	Type              AlertType    `json:"type"`
	RuleName          string       `json:"rule_name,omitempty"`
	Condition         string       `json:"condition,omitempty"`
	Target            string       `json:"email,omitempty"`
	Direction         string       `json:"direction,omitempty"`
	Matches           []AlertMatch `json:"matching_stocks"`
	AdditionalMatches int          `json:"additional_matches"`
	CreatedAt         time.Time    `json:"timestamp"`
}

// PersistedState is the cross-run state read at start and written at end of a run.
type PersistedState struct {
	Entities map[string]EntityState   `json:"entities"`
	Failures map[string]FailureRecord `json:"failures"`
}

// NewPersistedState returns an empty state with non-nil maps.
func NewPersistedState() PersistedState {
	return PersistedState{
		Entities: make(map[string]EntityState),
		Failures: make(map[string]FailureRecord),
	}
}

// RunStatus is the terminal status of a pipeline run.
type RunStatus string

const (
	RunSucceeded   RunStatus = "succeeded"
	RunDegraded    RunStatus = "degraded"
	RunInterrupted RunStatus = "interrupted"
	RunFailed      RunStatus = "failed"
)

// RunRecord summarizes a single pipeline invocation.
type RunRecord struct {
	ID              string    `json:"id"`
	StartedAt       time.Time `json:"started_at"`
	FinishedAt      time.Time `json:"finished_at"`
	Status          RunStatus `json:"status"`
	EntitiesFetched int       `json:"entities_fetched"`
	EntitiesSkipped int       `json:"entities_skipped"`
	EntitiesFailed  int       `json:"entities_failed"`
	Articles        int       `json:"articles"`
	Securities      int       `json:"securities"`
	MarketFailures  int       `json:"market_failures"`
	Alerts          int       `json:"alerts"`
	Delivered       int       `json:"delivered"`
}
