package domain

import "context"

// HoldingsSource defines the investor-holdings adapter consumed by the pipeline
type HoldingsSource interface {
	// DiscoverEntities lists every upstream entity with its self-reported last-modified value
	DiscoverEntities(ctx context.Context) ([]UpstreamEntity, error)

	// FetchHoldings returns the current holdings of a single entity
	FetchHoldings(ctx context.Context, entity UpstreamEntity) ([]HoldingFact, error)
}

// MentionsSource defines the newsletter adapter consumed by the pipeline
type MentionsSource interface {
	// FetchMentions returns one MentionFact per (article, ticker) pair found in the publication
	FetchMentions(ctx context.Context, pub Publication) ([]MentionFact, error)
}

// MarketDataSource defines the market-data adapter consumed by the pipeline
// A failed lookup is reported through the error; callers convert it into a failure marker
type MarketDataSource interface {
	FetchMarketSnapshot(ctx context.Context, ticker string) (MarketSnapshot, error)
}

// RunCommit is everything written at end-of-run, applied atomically
type RunCommit struct {
	Run        RunRecord
	State      PersistedState
	Securities []CanonicalSecurity
	// KeepSnapshot leaves the previously stored canonical set untouched
	KeepSnapshot bool
}

// StateStore defines the cross-run persisted state
// Reads happen once at start-of-run and writes once at end-of-run
type StateStore interface {
	LoadState(ctx context.Context) (PersistedState, error)
	LoadSnapshot(ctx context.Context) ([]CanonicalSecurity, error)
	Commit(ctx context.Context, commit RunCommit) error
}

// Notifier delivers alert events and reports how many were delivered
type Notifier interface {
	Notify(ctx context.Context, events []AlertEvent) (int, error)
}
