package reconcile

import (
	"testing"

	"github.com/aristath/consensus/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestSummarize(t *testing.T) {
	secs := []domain.CanonicalSecurity{
		{Ticker: "A", Sources: []domain.Source{domain.SourceHoldings}, Market: okSnapshot(110, 100, "X")},
		{Ticker: "B", Sources: []domain.Source{domain.SourceHoldings, domain.SourceMentions}, Market: okSnapshot(95, 100, "X")},
		{Ticker: "C", Sources: []domain.Source{domain.SourceMentions}, Market: okSnapshot(102, 100, "X"), IsFund: true},
		{Ticker: "D", Sources: []domain.Source{domain.SourceMentions}, Market: domain.FailedSnapshot("D", nil), IsStale: true},
	}

	st := Summarize(secs)
	assert.Equal(t, 4, st.Total)
	assert.Equal(t, 2, st.HoldingsStocks)
	assert.Equal(t, 3, st.MentionsStocks)
	assert.Equal(t, 1, st.BothSources)
	assert.Equal(t, 1, st.HoldingsOnly)
	assert.Equal(t, 2, st.MentionsOnly)
	assert.Equal(t, 1, st.Funds)
	assert.Equal(t, 1, st.Stale)
	assert.Equal(t, 3, st.WithMarketData)
	assert.InDelta(t, 17.0/3.0, st.MeanAbsMove, 1e-9)
	assert.InDelta(t, 5.0, st.MedianAbsMove, 1e-9)
}

func TestSummarize_Empty(t *testing.T) {
	st := Summarize(nil)
	assert.Equal(t, Stats{}, st)
}
