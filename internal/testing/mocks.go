package testing

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aristath/consensus/internal/domain"
)

// MockHoldingsSource is a mock implementation of domain.HoldingsSource for testing
type MockHoldingsSource struct {
	mu           sync.Mutex
	entities     []domain.UpstreamEntity
	holdings     map[string][]domain.HoldingFact
	failEntities map[string]error
	discoverErr  error
	fetched      []string
}

// NewMockHoldingsSource creates a new mock holdings source
func NewMockHoldingsSource(entities []domain.UpstreamEntity, holdings map[string][]domain.HoldingFact) *MockHoldingsSource {
	if holdings == nil {
		holdings = make(map[string][]domain.HoldingFact)
	}
	return &MockHoldingsSource{
		entities:     entities,
		holdings:     holdings,
		failEntities: make(map[string]error),
	}
}

// SetDiscoverError sets the error returned by DiscoverEntities
func (m *MockHoldingsSource) SetDiscoverError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.discoverErr = err
}

// FailEntity makes FetchHoldings fail for the given entity ID
func (m *MockHoldingsSource) FailEntity(id string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failEntities[id] = err
}

// DiscoverEntities returns the configured entities
func (m *MockHoldingsSource) DiscoverEntities(ctx context.Context) ([]domain.UpstreamEntity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.discoverErr != nil {
		return nil, m.discoverErr
	}
	return append([]domain.UpstreamEntity(nil), m.entities...), nil
}

// FetchHoldings returns the configured holdings of an entity
func (m *MockHoldingsSource) FetchHoldings(ctx context.Context, entity domain.UpstreamEntity) ([]domain.HoldingFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetched = append(m.fetched, entity.ID)
	if err, ok := m.failEntities[entity.ID]; ok {
		return nil, err
	}
	return append([]domain.HoldingFact(nil), m.holdings[entity.ID]...), nil
}

// Fetched returns the entity IDs fetched so far, sorted
func (m *MockHoldingsSource) Fetched() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.fetched...)
	sort.Strings(out)
	return out
}

// MockMentionsSource is a mock implementation of domain.MentionsSource for testing
type MockMentionsSource struct {
	mu       sync.Mutex
	mentions map[string][]domain.MentionFact
	failPubs map[string]error
}

// NewMockMentionsSource creates a new mock mentions source keyed by publication name
func NewMockMentionsSource(mentions map[string][]domain.MentionFact) *MockMentionsSource {
	if mentions == nil {
		mentions = make(map[string][]domain.MentionFact)
	}
	return &MockMentionsSource{mentions: mentions, failPubs: make(map[string]error)}
}

// FailPublication makes FetchMentions fail for the given publication
func (m *MockMentionsSource) FailPublication(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failPubs[name] = err
}

// FetchMentions returns the configured mentions of a publication
func (m *MockMentionsSource) FetchMentions(ctx context.Context, pub domain.Publication) ([]domain.MentionFact, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err, ok := m.failPubs[pub.Name]; ok {
		return nil, err
	}
	return append([]domain.MentionFact(nil), m.mentions[pub.Name]...), nil
}

// MockMarketDataSource is a mock implementation of domain.MarketDataSource for testing.
// Tickers without a configured snapshot fail.
type MockMarketDataSource struct {
	mu        sync.Mutex
	snapshots map[string]domain.MarketSnapshot
	requested []string
}

// NewMockMarketDataSource creates a new mock market-data source
func NewMockMarketDataSource(snapshots map[string]domain.MarketSnapshot) *MockMarketDataSource {
	if snapshots == nil {
		snapshots = make(map[string]domain.MarketSnapshot)
	}
	return &MockMarketDataSource{snapshots: snapshots}
}

// SetSnapshot sets or replaces the snapshot of a ticker
func (m *MockMarketDataSource) SetSnapshot(s domain.MarketSnapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[s.Ticker] = s
}

// Remove makes the ticker fail from now on
func (m *MockMarketDataSource) Remove(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snapshots, ticker)
}

// FetchMarketSnapshot returns the configured snapshot or an error
func (m *MockMarketDataSource) FetchMarketSnapshot(ctx context.Context, ticker string) (domain.MarketSnapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.MarketSnapshot{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requested = append(m.requested, ticker)
	s, ok := m.snapshots[ticker]
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("no market data for %s", ticker)
	}
	return s, nil
}

// Requested returns the tickers requested so far, sorted
func (m *MockMarketDataSource) Requested() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]string(nil), m.requested...)
	sort.Strings(out)
	return out
}

// MockNotifier is a mock implementation of domain.Notifier for testing
type MockNotifier struct {
	mu     sync.Mutex
	events []domain.AlertEvent
	err    error
	hook   func()
}

// NewMockNotifier creates a new mock notifier
func NewMockNotifier() *MockNotifier {
	return &MockNotifier{}
}

// SetError sets the error to return
func (m *MockNotifier) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// OnNotify registers a function called at the start of every Notify
func (m *MockNotifier) OnNotify(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.hook = fn
}

// Notify records the events and reports them all delivered
func (m *MockNotifier) Notify(ctx context.Context, events []domain.AlertEvent) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.hook != nil {
		m.hook()
	}
	if m.err != nil {
		return 0, m.err
	}
	m.events = append(m.events, events...)
	return len(events), nil
}

// Events returns every event received so far
func (m *MockNotifier) Events() []domain.AlertEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.AlertEvent(nil), m.events...)
}

// MockStateStore is an in-memory implementation of domain.StateStore for testing
type MockStateStore struct {
	mu        sync.Mutex
	state     domain.PersistedState
	snapshot  []domain.CanonicalSecurity
	commits     []domain.RunCommit
	commitErr   error
	snapshotErr error
}

// NewMockStateStore creates an empty in-memory state store
func NewMockStateStore() *MockStateStore {
	return &MockStateStore{state: domain.NewPersistedState()}
}

// SetCommitError sets the error returned by Commit
func (m *MockStateStore) SetCommitError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitErr = err
}

// SetSnapshotError sets the error returned by LoadSnapshot
func (m *MockStateStore) SetSnapshotError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshotErr = err
}

// LoadState returns a copy of the stored state
func (m *MockStateStore) LoadState(ctx context.Context) (domain.PersistedState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := domain.NewPersistedState()
	for k, v := range m.state.Entities {
		out.Entities[k] = v
	}
	for k, v := range m.state.Failures {
		out.Failures[k] = v
	}
	return out, nil
}

// LoadSnapshot returns the stored canonical set
func (m *MockStateStore) LoadSnapshot(ctx context.Context) ([]domain.CanonicalSecurity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshotErr != nil {
		return nil, m.snapshotErr
	}
	return append([]domain.CanonicalSecurity(nil), m.snapshot...), nil
}

// Commit stores the run outcome
func (m *MockStateStore) Commit(ctx context.Context, commit domain.RunCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.commitErr != nil {
		return m.commitErr
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.commits = append(m.commits, commit)
	m.state = commit.State
	if !commit.KeepSnapshot {
		m.snapshot = commit.Securities
	}
	return nil
}

// Commits returns every commit received so far
func (m *MockStateStore) Commits() []domain.RunCommit {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]domain.RunCommit(nil), m.commits...)
}
