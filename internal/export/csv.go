package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/aristath/consensus/internal/domain"
)

var csvHeader = []string{
	"ticker", "company_name", "sources", "investor_count", "mention_count",
	"aggregate_activity", "investors", "publications", "is_etf", "is_stale",
	"market_status", "current_price", "previous_close", "pct_change",
	"pe_ratio", "forward_pe", "pb_ratio", "peg_ratio", "market_cap",
	"week_52_high", "week_52_low", "pct_above_52w_low", "pct_below_52w_high",
	"sector", "country", "exchange", "stockanalysis_link",
}

// WriteCSV writes one flattened row per security. Unavailable numbers are
// written as the N/A marker.
func WriteCSV(out io.Writer, secs []domain.CanonicalSecurity) error {
	w := csv.NewWriter(out)
	if err := w.Write(csvHeader); err != nil {
		return err
	}

	for i := range secs {
		s := &secs[i]
		m := s.Market
		sources := make([]string, len(s.Sources))
		for j, src := range s.Sources {
			sources[j] = string(src)
		}

		row := []string{
			s.Ticker,
			s.Name,
			strings.Join(sources, "; "),
			strconv.Itoa(s.HoldingCount),
			strconv.Itoa(s.MentionCount),
			string(s.AggregateActivity),
			strings.Join(s.HolderNames(), "; "),
			strings.Join(s.PublicationNames(), "; "),
			strconv.FormatBool(s.IsFund),
			strconv.FormatBool(s.IsStale),
			string(m.Status),
			m.Price.String(),
			m.PreviousClose.String(),
			rounded(m.PctChange()),
			m.PERatio.String(),
			m.ForwardPE.String(),
			m.PBRatio.String(),
			m.PEGRatio.String(),
			m.MarketCap.String(),
			m.Week52High.String(),
			m.Week52Low.String(),
			rounded(m.PctAbove52wLow),
			rounded(m.PctBelow52wHigh),
			m.Sector,
			m.Country,
			m.Exchange,
			s.Link,
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}

	w.Flush()
	return w.Error()
}

func rounded(m domain.Metric) string {
	if !m.Valid {
		return domain.NotAvailable
	}
	return strconv.FormatFloat(m.Value, 'f', 2, 64)
}
