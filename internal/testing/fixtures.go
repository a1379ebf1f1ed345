package testing

import (
	"time"

	"github.com/aristath/consensus/internal/domain"
)

// FixtureTime is the fixed observation time used by every fixture.
var FixtureTime = time.Date(2024, 11, 15, 12, 0, 0, 0, time.UTC)

// NewEntityFixtures returns three holdings-source entities.
func NewEntityFixtures() []domain.UpstreamEntity {
	return []domain.UpstreamEntity{
		{ID: "BRK", Name: "Warren Buffett", FullName: "Warren Buffett - Berkshire Hathaway", LastModified: "2024-11-14"},
		{ID: "AKO", Name: "Thomas Russo", FullName: "Thomas Russo - Gardner Russo & Quinn", LastModified: "2024-11-10"},
		{ID: "GLRE", Name: "David Einhorn", FullName: "David Einhorn - Greenlight Capital", LastModified: ""},
	}
}

// NewHoldingFixtures returns holding facts keyed by entity ID.
func NewHoldingFixtures() map[string][]domain.HoldingFact {
	holding := func(raw, name string, entity domain.UpstreamEntity, weight float64, activity string) domain.HoldingFact {
		return domain.HoldingFact{
			RawTicker:       raw,
			SecurityName:    name,
			Entity:          entity.Name,
			EntityID:        entity.ID,
			PortfolioWeight: domain.Some(weight),
			Shares:          domain.NA,
			ActivityRaw:     activity,
			ObservedAt:      FixtureTime,
		}
	}

	entities := NewEntityFixtures()
	brk, ako, glre := entities[0], entities[1], entities[2]
	return map[string][]domain.HoldingFact{
		brk.ID: {
			holding("AAPL", "Apple Inc.", brk, 28.1, "Reduce 25.00%"),
			holding("BRK.B", "Berkshire Hathaway Class B", brk, 0.5, ""),
			holding("OXY", "Occidental Petroleum", brk, 4.9, "Add 2.10%"),
		},
		ako.ID: {
			holding("BRK.A", "Berkshire Hathaway Class A", ako, 20.3, "Buy"),
			holding("MC.PA", "LVMH", ako, 3.2, ""),
		},
		glre.ID: {
			holding("AAPL", "Apple", glre, 1.1, "Sell 100%"),
		},
	}
}

// NewPublicationFixtures returns two newsletter publications.
func NewPublicationFixtures() []domain.Publication {
	return []domain.Publication{
		{Name: "Value Notes", URL: "https://valuenotes.substack.com"},
		{Name: "Compounders", URL: "https://compounders.substack.com", FeedURL: "https://compounders.substack.com/feed"},
	}
}

// NewMentionFixtures returns mention facts keyed by publication name.
func NewMentionFixtures() map[string][]domain.MentionFact {
	published := FixtureTime.Add(-24 * time.Hour)
	return map[string][]domain.MentionFact{
		"Value Notes": {
			{Ticker: "AAPL", Publication: "Value Notes", ArticleID: "https://valuenotes.substack.com/p/apple", Title: "Apple after the buyback", Excerpt: "Services margin keeps expanding.", PublishedAt: &published},
			{Ticker: "BRK-B", Publication: "Value Notes", ArticleID: "https://valuenotes.substack.com/p/berkshire", Title: "Cash pile", PublishedAt: &published},
		},
		"Compounders": {
			{Ticker: "AAPL", Publication: "Compounders", ArticleID: "https://compounders.substack.com/p/mega-caps", Title: "Mega caps", PublishedAt: &published},
			{Ticker: "NVDA", Publication: "Compounders", ArticleID: "https://compounders.substack.com/p/mega-caps", Title: "Mega caps", PublishedAt: &published},
		},
	}
}

// NewSnapshotFixtures returns successful market snapshots keyed by normalized ticker.
func NewSnapshotFixtures() map[string]domain.MarketSnapshot {
	snap := func(ticker, name string, price, prev, pe float64, quoteType domain.ProductType, sector string) domain.MarketSnapshot {
		s := domain.MarketSnapshot{
			Ticker:        ticker,
			Status:        domain.MarketOK,
			Name:          name,
			QuoteType:     quoteType,
			Sector:        sector,
			Country:       "United States",
			Exchange:      "NMS",
			Price:         domain.Some(price),
			PreviousClose: domain.Some(prev),
			PERatio:       domain.Some(pe),
			Week52High:    domain.Some(price * 1.2),
			Week52Low:     domain.Some(price * 0.8),
			FetchedAt:     FixtureTime,
		}
		s.Derive52WeekPositions()
		return s
	}

	return map[string]domain.MarketSnapshot{
		"AAPL":  snap("AAPL", "Apple Inc.", 228.0, 207.0, 37.5, domain.ProductTypeEquity, "Technology"),
		"BRK-B": snap("BRK-B", "Berkshire Hathaway Inc.", 470.0, 468.0, 13.2, domain.ProductTypeEquity, "Financial Services"),
		"BRK-A": snap("BRK-A", "Berkshire Hathaway Inc.", 705000.0, 700000.0, 13.1, domain.ProductTypeEquity, "Financial Services"),
		"OXY":   snap("OXY", "Occidental Petroleum Corporation", 50.0, 52.0, 12.8, domain.ProductTypeEquity, "Energy"),
		"NVDA":  snap("NVDA", "NVIDIA Corporation", 140.0, 139.0, 55.0, domain.ProductTypeEquity, "Technology"),
	}
}
