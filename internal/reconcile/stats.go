package reconcile

import (
	"math"
	"sort"

	"github.com/aristath/consensus/internal/domain"
	"gonum.org/v1/gonum/stat"
)

// Stats summarizes a canonical set.
type Stats struct {
	Total          int     `json:"total_stocks"`
	HoldingsStocks int     `json:"dataroma_stocks"`
	MentionsStocks int     `json:"substack_stocks"`
	BothSources    int     `json:"both_sources"`
	HoldingsOnly   int     `json:"dataroma_only"`
	MentionsOnly   int     `json:"substack_only"`
	Funds          int     `json:"etfs"`
	Stale          int     `json:"stale"`
	WithMarketData int     `json:"with_market_data"`
	MeanAbsMove    float64 `json:"mean_abs_move_pct"`
	MedianAbsMove  float64 `json:"median_abs_move_pct"`
}

// Summarize computes source overlap counts and the distribution of absolute
// daily moves across securities with usable market data.
func Summarize(secs []domain.CanonicalSecurity) Stats {
	st := Stats{Total: len(secs)}
	moves := make([]float64, 0, len(secs))

	for i := range secs {
		s := &secs[i]
		h := s.HasSource(domain.SourceHoldings)
		m := s.HasSource(domain.SourceMentions)
		if h {
			st.HoldingsStocks++
		}
		if m {
			st.MentionsStocks++
		}
		if h && m {
			st.BothSources++
		}
		if s.IsFund {
			st.Funds++
		}
		if s.IsStale {
			st.Stale++
		}
		if s.Market.Status == domain.MarketOK {
			st.WithMarketData++
			if chg := s.Market.PctChange(); chg.Valid {
				moves = append(moves, math.Abs(chg.Value))
			}
		}
	}
	st.HoldingsOnly = st.HoldingsStocks - st.BothSources
	st.MentionsOnly = st.MentionsStocks - st.BothSources

	if len(moves) > 0 {
		sort.Float64s(moves)
		st.MeanAbsMove = stat.Mean(moves, nil)
		st.MedianAbsMove = stat.Quantile(0.5, stat.Empirical, moves, nil)
	}
	return st
}
