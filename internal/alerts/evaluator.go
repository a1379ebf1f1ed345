// Package alerts evaluates notification rules and the built-in alert types
// over the canonical security set.
package alerts

import (
	"math"
	"time"

	"github.com/aristath/consensus/internal/domain"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const (
	DefaultPriceThreshold = 10.0
	DefaultMinHoldings    = 2
	DefaultMinMentions    = 1
	DefaultDisplayLimit   = 10

	// crossSourceListLimit bounds holder and publication names in cross-source matches.
	crossSourceListLimit = 5
)

// Config holds alert thresholds.
type Config struct {
	PriceThreshold float64
	MinHoldings    int
	MinMentions    int
	DisplayLimit   int
}

func (c Config) withDefaults() Config {
	if c.PriceThreshold <= 0 {
		c.PriceThreshold = DefaultPriceThreshold
	}
	if c.MinHoldings < 1 {
		c.MinHoldings = DefaultMinHoldings
	}
	if c.MinMentions < 1 {
		c.MinMentions = DefaultMinMentions
	}
	if c.DisplayLimit < 1 {
		c.DisplayLimit = DefaultDisplayLimit
	}
	return c
}

// Evaluator produces alert events from a canonical set.
type Evaluator struct {
	cfg Config
	now func() time.Time
	log zerolog.Logger
}

// NewEvaluator creates an evaluator. Non-positive thresholds fall back to defaults.
func NewEvaluator(cfg Config, log zerolog.Logger) *Evaluator {
	return &Evaluator{
		cfg: cfg.withDefaults(),
		now: time.Now,
		log: log.With().Str("component", "alerts").Logger(),
	}
}

// Evaluate compiles and evaluates a condition against one security.
// Any error yields false and a warning.
func (e *Evaluator) Evaluate(sec *domain.CanonicalSecurity, condition string) bool {
	cond, err := Compile(condition)
	if err != nil {
		e.log.Warn().Err(err).Str("condition", condition).Msg("Failed to evaluate condition")
		return false
	}
	return cond.Match(Variables(sec))
}

// EvaluateAll runs the built-in alerts and every enabled rule.
func (e *Evaluator) EvaluateAll(secs []domain.CanonicalSecurity, rules []domain.AlertRule) []domain.AlertEvent {
	var events []domain.AlertEvent
	events = append(events, e.PriceMoveAlerts(secs)...)
	events = append(events, e.CrossSourceAlerts(secs)...)
	events = append(events, e.RuleAlerts(secs, rules)...)

	e.log.Info().Int("count", len(events)).Msg("Alerts generated")
	return events
}

// PriceMoveAlerts emits one event per non-stale security whose rounded absolute
// daily move reaches the threshold.
func (e *Evaluator) PriceMoveAlerts(secs []domain.CanonicalSecurity) []domain.AlertEvent {
	var events []domain.AlertEvent
	threshold := decimal.NewFromFloat(e.cfg.PriceThreshold)

	for i := range secs {
		sec := &secs[i]
		if sec.IsStale {
			continue
		}
		chg := sec.Market.PctChange()
		if !chg.Valid || math.IsNaN(chg.Value) || math.IsInf(chg.Value, 0) {
			continue
		}
		rounded := decimal.NewFromFloat(chg.Value).Round(2)
		if rounded.Abs().LessThan(threshold) {
			continue
		}

		direction := "down"
		if rounded.IsPositive() {
			direction = "up"
		}
		pct := rounded.InexactFloat64()
		match := matchFor(sec)
		match.PctChange = domain.Some(pct)

		events = append(events, domain.AlertEvent{
			Type:      domain.AlertPriceMove,
			Direction: direction,
			Matches:   []domain.AlertMatch{match},
			CreatedAt: e.now().UTC(),
		})
		e.log.Info().Str("ticker", sec.Ticker).Float64("pct_change", pct).Msg("Price move alert")
	}
	return events
}

// CrossSourceAlerts emits one event per security confirmed by both sources.
func (e *Evaluator) CrossSourceAlerts(secs []domain.CanonicalSecurity) []domain.AlertEvent {
	var events []domain.AlertEvent
	for i := range secs {
		sec := &secs[i]
		holdingsOK := sec.HasSource(domain.SourceHoldings) && sec.HoldingCount >= e.cfg.MinHoldings
		mentionsOK := sec.HasSource(domain.SourceMentions) && sec.MentionCount >= e.cfg.MinMentions
		if !holdingsOK || !mentionsOK {
			continue
		}

		match := matchFor(sec)
		match.Holders = truncate(sec.HolderNames(), crossSourceListLimit)
		match.Publications = truncate(sec.PublicationNames(), crossSourceListLimit)

		events = append(events, domain.AlertEvent{
			Type:      domain.AlertCrossSource,
			Matches:   []domain.AlertMatch{match},
			CreatedAt: e.now().UTC(),
		})
		e.log.Info().
			Str("ticker", sec.Ticker).
			Int("holdings", sec.HoldingCount).
			Int("mentions", sec.MentionCount).
			Msg("Cross-source alert")
	}
	return events
}

// RuleAlerts evaluates every enabled rule. A rule that fails to compile is
// skipped with a warning. A rule with no matches emits nothing.
func (e *Evaluator) RuleAlerts(secs []domain.CanonicalSecurity, rules []domain.AlertRule) []domain.AlertEvent {
	var events []domain.AlertEvent
	for _, rule := range rules {
		if !rule.Enabled || rule.Condition == "" {
			continue
		}
		cond, err := Compile(rule.Condition)
		if err != nil {
			e.log.Warn().
				Err(err).
				Str("rule", rule.Name).
				Str("condition", rule.Condition).
				Msg("Rule disabled: condition does not compile")
			continue
		}

		var matches []domain.AlertMatch
		total := 0
		for i := range secs {
			if !cond.Match(Variables(&secs[i])) {
				continue
			}
			total++
			if len(matches) < e.cfg.DisplayLimit {
				matches = append(matches, matchFor(&secs[i]))
			}
		}
		if total == 0 {
			continue
		}

		events = append(events, domain.AlertEvent{
			Type:              domain.AlertCustomRule,
			RuleName:          rule.Name,
			Condition:         rule.Condition,
			Target:            rule.Target,
			Matches:           matches,
			AdditionalMatches: total - len(matches),
			CreatedAt:         e.now().UTC(),
		})
		e.log.Info().Str("rule", rule.Name).Int("matches", total).Msg("Custom rule matched")
	}
	return events
}

// RuleProblem describes a rule whose condition does not compile.
type RuleProblem struct {
	Rule domain.AlertRule
	Err  error
}

// CheckRules compiles every rule and returns the ones that fail.
func CheckRules(rules []domain.AlertRule) []RuleProblem {
	var problems []RuleProblem
	for _, r := range rules {
		if _, err := Compile(r.Condition); err != nil {
			problems = append(problems, RuleProblem{Rule: r, Err: err})
		}
	}
	return problems
}

func matchFor(sec *domain.CanonicalSecurity) domain.AlertMatch {
	return domain.AlertMatch{
		Ticker:        sec.Ticker,
		Name:          sec.Name,
		HoldingCount:  sec.HoldingCount,
		MentionCount:  sec.MentionCount,
		PctChange:     sec.Market.PctChange(),
		CurrentPrice:  sec.Market.Price,
		PreviousClose: sec.Market.PreviousClose,
		Link:          sec.Link,
	}
}

func truncate(s []string, n int) []string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
