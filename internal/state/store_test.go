package state

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/consensus/internal/domain"
	testingpkg "github.com/aristath/consensus/internal/testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, cleanup := testingpkg.NewTestDB(t, "state")
	t.Cleanup(cleanup)
	return NewStore(db, zerolog.New(nil).Level(zerolog.Disabled))
}

func sampleSecurities() []domain.CanonicalSecurity {
	pct := 25.0
	published := testingpkg.FixtureTime
	snaps := testingpkg.NewSnapshotFixtures()
	return []domain.CanonicalSecurity{
		{
			Ticker:  "AAPL",
			Name:    "Apple Inc.",
			Sources: []domain.Source{domain.SourceHoldings, domain.SourceMentions},
			Holdings: domain.HoldingsData{Investors: []domain.HoldingFact{{
				Ticker:          "AAPL",
				Entity:          "Warren Buffett",
				EntityID:        "BRK",
				PortfolioWeight: domain.Some(28.1),
				Shares:          domain.NA,
				Activity:        domain.Activity{Action: domain.ActionReduce, Percentage: &pct},
				ObservedAt:      testingpkg.FixtureTime,
			}}},
			Mentions: domain.MentionsData{Mentions: []domain.MentionFact{{
				Ticker:      "AAPL",
				Publication: "Value Notes",
				ArticleID:   "https://valuenotes.substack.com/p/apple",
				PublishedAt: &published,
			}}},
			Market:            snaps["AAPL"],
			AggregateActivity: domain.ActionReduce,
			HoldingCount:      1,
			MentionCount:      1,
			Link:              "https://stockanalysis.com/stocks/aapl/",
		},
		{
			Ticker:            "SPY",
			Sources:           []domain.Source{domain.SourceMentions},
			Market:            domain.MarketSnapshot{Ticker: "SPY", Status: domain.MarketMissing},
			AggregateActivity: domain.ActionHold,
			IsStale:           true,
			IsFund:            true,
		},
	}
}

func TestStore_EmptyDatabase(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	state, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Empty(t, state.Entities)
	assert.Empty(t, state.Failures)
	assert.NotNil(t, state.Entities)

	secs, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, secs)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestStore_CommitRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	started := time.Date(2024, 11, 15, 6, 0, 0, 0, time.UTC)

	state := domain.NewPersistedState()
	state.Entities["BRK"] = domain.EntityState{LastProcessedModified: "2024-11-14", LastProcessedAt: started}
	state.Failures["XYZ"] = domain.FailureRecord{Ticker: "XYZ", FirstFailedAt: started, LastFailedAt: started, ConsecutiveCount: 2}

	err := store.Commit(ctx, domain.RunCommit{
		Run: domain.RunRecord{
			ID:         "run-1",
			StartedAt:  started,
			FinishedAt: started.Add(time.Minute),
			Status:     domain.RunSucceeded,
			Securities: 2,
		},
		State:      state,
		Securities: sampleSecurities(),
	})
	require.NoError(t, err)

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, state.Entities, loaded.Entities)
	assert.Equal(t, state.Failures, loaded.Failures)

	secs, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.Len(t, secs, 2)

	aapl := secs[0]
	assert.Equal(t, "AAPL", aapl.Ticker)
	assert.Equal(t, []domain.Source{domain.SourceHoldings, domain.SourceMentions}, aapl.Sources)
	require.Len(t, aapl.Holdings.Investors, 1)
	h := aapl.Holdings.Investors[0]
	assert.Equal(t, domain.ActionReduce, h.Activity.Action)
	require.NotNil(t, h.Activity.Percentage)
	assert.Equal(t, 25.0, *h.Activity.Percentage)
	assert.Equal(t, domain.Some(28.1), h.PortfolioWeight)
	assert.False(t, h.Shares.Valid)
	assert.True(t, h.ObservedAt.Equal(testingpkg.FixtureTime))
	require.Len(t, aapl.Mentions.Mentions, 1)
	require.NotNil(t, aapl.Mentions.Mentions[0].PublishedAt)
	assert.Equal(t, domain.MarketOK, aapl.Market.Status)
	assert.Equal(t, domain.Some(228.0), aapl.Market.Price)
	assert.Equal(t, "https://stockanalysis.com/stocks/aapl/", aapl.Link)

	spy := secs[1]
	assert.True(t, spy.IsFund)
	assert.True(t, spy.IsStale)
	assert.Equal(t, domain.MarketMissing, spy.Market.Status)
	assert.False(t, spy.Market.Price.Valid)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
	assert.Equal(t, domain.RunSucceeded, runs[0].Status)
	assert.Equal(t, 2, runs[0].Securities)
	assert.Equal(t, started, runs[0].StartedAt)
}

func TestStore_CommitReplacesFailuresAndUpsertsEntities(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 11, 15, 6, 0, 0, 0, time.UTC)

	first := domain.NewPersistedState()
	first.Entities["BRK"] = domain.EntityState{LastProcessedModified: "2024-11-01", LastProcessedAt: at}
	first.Entities["AKO"] = domain.EntityState{LastProcessedModified: "2024-10-01", LastProcessedAt: at}
	first.Failures["OLD"] = domain.FailureRecord{Ticker: "OLD", FirstFailedAt: at, LastFailedAt: at, ConsecutiveCount: 1}
	require.NoError(t, store.Commit(ctx, domain.RunCommit{
		Run:   domain.RunRecord{ID: "run-1", StartedAt: at, FinishedAt: at, Status: domain.RunSucceeded},
		State: first,
	}))

	second := domain.NewPersistedState()
	second.Entities["BRK"] = domain.EntityState{LastProcessedModified: "2024-11-14", LastProcessedAt: at.Add(time.Hour)}
	second.Failures["NEW"] = domain.FailureRecord{Ticker: "NEW", FirstFailedAt: at, LastFailedAt: at, ConsecutiveCount: 1}
	require.NoError(t, store.Commit(ctx, domain.RunCommit{
		Run:   domain.RunRecord{ID: "run-2", StartedAt: at.Add(time.Hour), FinishedAt: at.Add(time.Hour), Status: domain.RunSucceeded},
		State: second,
	}))

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2024-11-14", loaded.Entities["BRK"].LastProcessedModified)
	assert.Equal(t, "2024-10-01", loaded.Entities["AKO"].LastProcessedModified)
	assert.Contains(t, loaded.Failures, "NEW")
	assert.NotContains(t, loaded.Failures, "OLD")

	runs, err := store.ListRuns(ctx, 0)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
}

func TestStore_KeepSnapshot(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 11, 15, 6, 0, 0, 0, time.UTC)

	require.NoError(t, store.Commit(ctx, domain.RunCommit{
		Run:        domain.RunRecord{ID: "run-1", StartedAt: at, FinishedAt: at, Status: domain.RunSucceeded},
		State:      domain.NewPersistedState(),
		Securities: sampleSecurities(),
	}))

	require.NoError(t, store.Commit(ctx, domain.RunCommit{
		Run:          domain.RunRecord{StartedAt: at.Add(time.Hour), FinishedAt: at.Add(time.Hour), Status: domain.RunInterrupted},
		State:        domain.NewPersistedState(),
		KeepSnapshot: true,
	}))

	secs, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Len(t, secs, 2)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, domain.RunInterrupted, runs[0].Status)
	assert.NotEmpty(t, runs[0].ID, "missing run IDs are generated")
}

func TestStore_CommitIsAtomic(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 11, 15, 6, 0, 0, 0, time.UTC)

	run := domain.RunRecord{ID: "dup", StartedAt: at, FinishedAt: at, Status: domain.RunSucceeded}
	require.NoError(t, store.Commit(ctx, domain.RunCommit{Run: run, State: domain.NewPersistedState()}))

	state := domain.NewPersistedState()
	state.Entities["BRK"] = domain.EntityState{LastProcessedModified: "2024-11-14", LastProcessedAt: at}
	err := store.Commit(ctx, domain.RunCommit{Run: run, State: state, Securities: sampleSecurities()})
	require.Error(t, err, "duplicate run ID")

	loaded, err := store.LoadState(ctx)
	require.NoError(t, err)
	assert.Empty(t, loaded.Entities)

	secs, err := store.LoadSnapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, secs)
}

func TestStore_ResetFailures(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 11, 15, 6, 0, 0, 0, time.UTC)

	state := domain.NewPersistedState()
	for _, ticker := range []string{"AAA", "BBB", "CCC"} {
		state.Failures[ticker] = domain.FailureRecord{Ticker: ticker, FirstFailedAt: at, LastFailedAt: at, ConsecutiveCount: 3}
	}
	require.NoError(t, store.Commit(ctx, domain.RunCommit{
		Run:   domain.RunRecord{ID: "run-1", StartedAt: at, FinishedAt: at, Status: domain.RunSucceeded},
		State: state,
	}))

	n, err := store.ResetFailures(ctx, "aaa", "ZZZ")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	list, err := store.ListFailures(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "BBB", list[0].Ticker)
	assert.Equal(t, 3, list[0].ConsecutiveCount)

	n, err = store.ResetFailures(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	list, err = store.ListFailures(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestNewRunID(t *testing.T) {
	a, b := NewRunID(), NewRunID()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}

var _ domain.StateStore = (*Store)(nil)

func TestStore_PruneRuns(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 11, 15, 6, 0, 0, 0, time.UTC)

	for i, id := range []string{"run-1", "run-2", "run-3", "run-4"} {
		started := at.Add(time.Duration(i) * time.Hour)
		require.NoError(t, store.Commit(ctx, domain.RunCommit{
			Run:          domain.RunRecord{ID: id, StartedAt: started, FinishedAt: started, Status: domain.RunSucceeded},
			State:        domain.NewPersistedState(),
			KeepSnapshot: true,
		}))
	}

	removed, err := store.PruneRuns(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	runs, err := store.ListRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-4", runs[0].ID)
	assert.Equal(t, "run-3", runs[1].ID)

	removed, err = store.PruneRuns(ctx, 2)
	require.NoError(t, err)
	assert.Zero(t, removed)

	_, err = store.PruneRuns(ctx, 0)
	assert.Error(t, err)
}
