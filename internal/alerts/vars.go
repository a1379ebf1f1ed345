package alerts

import (
	"sort"

	"github.com/aristath/consensus/internal/domain"
)

// variables is the fixed vocabulary exposed to conditions. Unavailable numbers read as 0.
var variables = map[string]func(s *domain.CanonicalSecurity) float64{
	"dataroma_count": func(s *domain.CanonicalSecurity) float64 { return float64(s.HoldingCount) },
	"investor_count": func(s *domain.CanonicalSecurity) float64 { return float64(s.HoldingCount) },
	"substack_count": func(s *domain.CanonicalSecurity) float64 { return float64(s.MentionCount) },
	"mention_count":  func(s *domain.CanonicalSecurity) float64 { return float64(s.MentionCount) },
	"has_dataroma":   func(s *domain.CanonicalSecurity) float64 { return boolValue(s.HasSource(domain.SourceHoldings)) },
	"has_substack":   func(s *domain.CanonicalSecurity) float64 { return boolValue(s.HasSource(domain.SourceMentions)) },

	"pe_ratio":           func(s *domain.CanonicalSecurity) float64 { return s.Market.PERatio.Or(0) },
	"forward_pe":         func(s *domain.CanonicalSecurity) float64 { return s.Market.ForwardPE.Or(0) },
	"pb_ratio":           func(s *domain.CanonicalSecurity) float64 { return s.Market.PBRatio.Or(0) },
	"peg_ratio":          func(s *domain.CanonicalSecurity) float64 { return s.Market.PEGRatio.Or(0) },
	"market_cap":         func(s *domain.CanonicalSecurity) float64 { return s.Market.MarketCap.Or(0) },
	"price":              func(s *domain.CanonicalSecurity) float64 { return s.Market.Price.Or(0) },
	"pct_change":         func(s *domain.CanonicalSecurity) float64 { return s.Market.PctChange().Or(0) },
	"pct_above_52w_low":  func(s *domain.CanonicalSecurity) float64 { return s.Market.PctAbove52wLow.Or(0) },
	"pct_below_52w_high": func(s *domain.CanonicalSecurity) float64 { return s.Market.PctBelow52wHigh.Or(0) },
	"rsi_14":             func(s *domain.CanonicalSecurity) float64 { return s.Market.RSI14.Or(0) },
	"sma200_distance":    func(s *domain.CanonicalSecurity) float64 { return s.Market.SMA200Distance.Or(0) },

	"is_etf":   func(s *domain.CanonicalSecurity) float64 { return boolValue(s.IsFund) },
	"is_stale": func(s *domain.CanonicalSecurity) float64 { return boolValue(s.IsStale) },
}

// IsVariable reports whether name (lowercase) is part of the vocabulary.
func IsVariable(name string) bool {
	_, ok := variables[name]
	return ok
}

// VariableNames lists the vocabulary, sorted.
func VariableNames() []string {
	names := make([]string, 0, len(variables))
	for name := range variables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Variables builds the variable table for one security.
func Variables(s *domain.CanonicalSecurity) map[string]float64 {
	vars := make(map[string]float64, len(variables))
	for name, get := range variables {
		vars[name] = get(s)
	}
	return vars
}
