package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMarketSnapshot_PctChange(t *testing.T) {
	s := MarketSnapshot{Price: Some(500), PreviousClose: Some(450)}
	assert.InDelta(t, 11.111, s.PctChange().Value, 0.001)

	assert.False(t, MarketSnapshot{Price: Some(1)}.PctChange().Valid)
	assert.False(t, MarketSnapshot{Price: Some(1), PreviousClose: Some(0)}.PctChange().Valid)
}

func TestMarketSnapshot_Derive52WeekPositions(t *testing.T) {
	s := MarketSnapshot{Price: Some(90), Week52Low: Some(60), Week52High: Some(120)}
	s.Derive52WeekPositions()
	assert.InDelta(t, 50.0, s.PctAbove52wLow.Value, 1e-9)
	assert.InDelta(t, 25.0, s.PctBelow52wHigh.Value, 1e-9)

	empty := MarketSnapshot{Price: Some(90)}
	empty.Derive52WeekPositions()
	assert.False(t, empty.PctAbove52wLow.Valid)
	assert.False(t, empty.PctBelow52wHigh.Valid)
}

func TestFailedSnapshot(t *testing.T) {
	s := FailedSnapshot("AAPL", errors.New("timeout"))
	assert.True(t, s.Failed())
	assert.Equal(t, "timeout", s.Error)
	assert.False(t, s.Price.Valid)
}

func TestProductType_IsFundLike(t *testing.T) {
	assert.True(t, ProductTypeETF.IsFundLike())
	assert.True(t, ProductType("mutualfund").IsFundLike())
	assert.False(t, ProductTypeEquity.IsFundLike())
	assert.False(t, ProductType("").IsFundLike())
}

func TestCanonicalSecurity_Names(t *testing.T) {
	c := CanonicalSecurity{
		Sources:  []Source{SourceHoldings},
		Holdings: HoldingsData{Investors: []HoldingFact{{Entity: "A"}, {Entity: "B"}}},
		Mentions: MentionsData{Mentions: []MentionFact{{Publication: "P"}, {Publication: "Q"}, {Publication: "P"}}},
	}
	assert.True(t, c.HasSource(SourceHoldings))
	assert.False(t, c.HasSource(SourceMentions))
	assert.Equal(t, []string{"A", "B"}, c.HolderNames())
	assert.Equal(t, []string{"P", "Q"}, c.PublicationNames())
}

func TestPublication_Feed(t *testing.T) {
	assert.Equal(t, "https://x.substack.com/feed", Publication{URL: "https://x.substack.com/"}.Feed())
	assert.Equal(t, "https://y/rss", Publication{URL: "https://x", FeedURL: "https://y/rss"}.Feed())
}
