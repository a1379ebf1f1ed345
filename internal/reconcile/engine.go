// Package reconcile folds per-source facts into one canonical record per
// normalized ticker and derives the aggregate fields.
package reconcile

import (
	"fmt"
	"sort"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/ticker"
	"github.com/rs/zerolog"
)

// Staleness is the view of the failure tracker the engine needs.
type Staleness interface {
	IsStale(ticker string) bool
	FailedThisRun(ticker string) bool
}

type entry struct {
	ticker   string
	name     string
	sources  map[domain.Source]bool
	holdings map[string]domain.HoldingFact
	mentions map[string]domain.MentionFact
	market   *domain.MarketSnapshot
}

// Engine owns the canonical-security map for the duration of a run.
// It is not safe for concurrent use; callers merge from a single goroutine.
type Engine struct {
	entries   map[string]*entry
	staleness Staleness
	log       zerolog.Logger
}

// NewEngine creates an empty engine. A nil staleness source marks only
// current-run failures as stale.
func NewEngine(staleness Staleness, log zerolog.Logger) *Engine {
	return &Engine{
		entries:   make(map[string]*entry),
		staleness: staleness,
		log:       log.With().Str("component", "reconcile").Logger(),
	}
}

func (e *Engine) getOrCreate(t, name string) *entry {
	en, ok := e.entries[t]
	if !ok {
		if name == "" {
			name = t
		}
		en = &entry{
			ticker:   t,
			name:     name,
			sources:  make(map[domain.Source]bool),
			holdings: make(map[string]domain.HoldingFact),
			mentions: make(map[string]domain.MentionFact),
		}
		e.entries[t] = en
	}
	return en
}

// validateHolding normalizes the fact in place or reports why it is malformed.
func validateHolding(f *domain.HoldingFact) error {
	raw := f.Ticker
	if raw == "" {
		raw = f.RawTicker
	}
	f.Ticker = ticker.Normalize(raw)
	if f.Ticker == "" {
		return fmt.Errorf("%w: missing ticker", domain.ErrMalformedFact)
	}
	if f.Entity == "" {
		return fmt.Errorf("%w: missing reporting entity for %s", domain.ErrMalformedFact, f.Ticker)
	}
	if f.Activity.Action == "" {
		act, err := domain.ParseActivity(f.ActivityRaw)
		if err != nil {
			return err
		}
		f.Activity = act
	}
	if !f.Activity.Action.Valid() {
		return fmt.Errorf("%w: unknown action %q for %s", domain.ErrMalformedFact, f.Activity.Action, f.Ticker)
	}
	return nil
}

// AddHoldings merges holding facts. A later fact from the same entity replaces
// the earlier one. Malformed facts are logged and skipped.
func (e *Engine) AddHoldings(facts []domain.HoldingFact) (added, skipped int) {
	for _, f := range facts {
		if err := validateHolding(&f); err != nil {
			e.log.Warn().
				Err(err).
				Str("raw_ticker", f.RawTicker).
				Str("entity", f.Entity).
				Msg("Skipping malformed holding")
			skipped++
			continue
		}

		en := e.getOrCreate(f.Ticker, f.SecurityName)
		if f.SecurityName != "" {
			en.name = f.SecurityName
		}
		if _, exists := en.holdings[f.Entity]; exists {
			e.log.Debug().Str("ticker", f.Ticker).Str("entity", f.Entity).Msg("Replacing holding from same entity")
		}
		en.holdings[f.Entity] = f
		en.sources[domain.SourceHoldings] = true
		added++
	}
	return added, skipped
}

// AddMentions merges mention facts, ignoring articles already attached to the security.
func (e *Engine) AddMentions(facts []domain.MentionFact) (added, skipped int) {
	for _, f := range facts {
		f.Ticker = ticker.Normalize(f.Ticker)
		if f.Ticker == "" || f.ArticleID == "" {
			e.log.Warn().
				Err(domain.ErrMalformedFact).
				Str("ticker", f.Ticker).
				Str("publication", f.Publication).
				Msg("Skipping malformed mention")
			skipped++
			continue
		}

		en := e.getOrCreate(f.Ticker, "")
		en.sources[domain.SourceMentions] = true
		if _, exists := en.mentions[f.ArticleID]; exists {
			continue
		}
		en.mentions[f.ArticleID] = f
		added++
	}
	return added, skipped
}

// ApplyMarket attaches market snapshots. Snapshots for tickers that no content
// source observed are skipped; market data never creates a security.
func (e *Engine) ApplyMarket(snapshots map[string]domain.MarketSnapshot) (applied, skipped int) {
	keys := make([]string, 0, len(snapshots))
	for k := range snapshots {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		snap := snapshots[k]
		t := ticker.Normalize(k)
		en, ok := e.entries[t]
		if !ok {
			e.log.Warn().Str("ticker", t).Msg("Market snapshot for unknown security, skipping")
			skipped++
			continue
		}
		snap.Ticker = t
		if !snap.Failed() && snap.Name != "" {
			en.name = snap.Name
		}
		en.market = &snap
		applied++
	}
	return applied, skipped
}

// Tickers returns every normalized ticker currently known, sorted.
func (e *Engine) Tickers() []string {
	out := make([]string, 0, len(e.entries))
	for t := range e.entries {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Result builds the canonical set, sorted by ticker.
func (e *Engine) Result() []domain.CanonicalSecurity {
	out := make([]domain.CanonicalSecurity, 0, len(e.entries))
	for _, t := range e.Tickers() {
		out = append(out, e.build(e.entries[t]))
	}
	return out
}

func (e *Engine) build(en *entry) domain.CanonicalSecurity {
	sec := domain.CanonicalSecurity{
		Ticker: en.ticker,
		Name:   en.name,
	}

	for _, src := range []domain.Source{domain.SourceHoldings, domain.SourceMentions} {
		if en.sources[src] {
			sec.Sources = append(sec.Sources, src)
		}
	}

	sec.Holdings.Investors = make([]domain.HoldingFact, 0, len(en.holdings))
	for _, h := range en.holdings {
		sec.Holdings.Investors = append(sec.Holdings.Investors, h)
	}
	sort.Slice(sec.Holdings.Investors, func(i, j int) bool {
		return sec.Holdings.Investors[i].Entity < sec.Holdings.Investors[j].Entity
	})

	sec.Mentions.Mentions = make([]domain.MentionFact, 0, len(en.mentions))
	for _, m := range en.mentions {
		sec.Mentions.Mentions = append(sec.Mentions.Mentions, m)
	}
	sort.Slice(sec.Mentions.Mentions, func(i, j int) bool {
		return sec.Mentions.Mentions[i].ArticleID < sec.Mentions.Mentions[j].ArticleID
	})

	if en.market != nil {
		sec.Market = *en.market
	} else {
		sec.Market = domain.MarketSnapshot{Ticker: en.ticker, Status: domain.MarketMissing}
	}

	// Investors are sorted by entity, so equal-priority ties go to the first entity name.
	sec.AggregateActivity = domain.AggregateActivity(sec.Holdings.Investors)
	sec.HoldingCount = len(sec.Holdings.Investors)
	sec.MentionCount = len(sec.Mentions.Mentions)
	sec.IsFund = isFund(en.ticker, sec.Market)
	sec.IsStale = e.isStale(en.ticker, sec.Market)
	sec.Link = ticker.Link(en.ticker, sec.IsFund)
	return sec
}

// isFund is true if any signal says fund-like.
func isFund(t string, m domain.MarketSnapshot) bool {
	if ticker.IsKnownFund(t) || m.QuoteType.IsFundLike() {
		return true
	}
	return m.Status == domain.MarketOK && m.Sector == ""
}

func (e *Engine) isStale(t string, m domain.MarketSnapshot) bool {
	if m.Status != domain.MarketOK {
		return true
	}
	if e.staleness == nil {
		return false
	}
	return e.staleness.IsStale(t) || e.staleness.FailedThisRun(t)
}
