// Package failures tracks market-data fetch failures across runs and derives
// per-ticker staleness from the consecutive-failure count.
package failures

import (
	"sort"
	"sync"
	"time"

	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/ticker"
	"github.com/rs/zerolog"
)

// DefaultThreshold is the number of consecutive failures after which a ticker is stale.
const DefaultThreshold = 3

// Tracker is safe for concurrent use by fetch workers.
type Tracker struct {
	mu        sync.Mutex
	records   map[string]domain.FailureRecord
	failedNow map[string]bool
	threshold int
	now       func() time.Time
	log       zerolog.Logger
}

// NewTracker creates a tracker seeded with persisted records.
// A threshold below 1 falls back to DefaultThreshold.
func NewTracker(records map[string]domain.FailureRecord, threshold int, log zerolog.Logger) *Tracker {
	if threshold < 1 {
		threshold = DefaultThreshold
	}
	seeded := make(map[string]domain.FailureRecord, len(records))
	for key, rec := range records {
		t := ticker.Normalize(key)
		rec.Ticker = t
		seeded[t] = rec
	}
	return &Tracker{
		records:   seeded,
		failedNow: make(map[string]bool),
		threshold: threshold,
		now:       time.Now,
		log:       log.With().Str("component", "failure_tracker").Logger(),
	}
}

// RecordOutcome applies one fetch outcome. A success clears the record entirely.
func (t *Tracker) RecordOutcome(symbol string, succeeded bool) {
	key := ticker.Normalize(symbol)
	if key == "" {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if succeeded {
		if rec, ok := t.records[key]; ok {
			t.log.Info().
				Str("ticker", key).
				Int("previous_count", rec.ConsecutiveCount).
				Msg("Ticker recovered")
			delete(t.records, key)
		}
		delete(t.failedNow, key)
		return
	}

	now := t.now().UTC()
	rec, ok := t.records[key]
	if !ok {
		rec = domain.FailureRecord{Ticker: key, FirstFailedAt: now}
	}
	rec.LastFailedAt = now
	rec.ConsecutiveCount++
	t.records[key] = rec
	t.failedNow[key] = true

	if rec.ConsecutiveCount == t.threshold {
		t.log.Warn().
			Str("ticker", key).
			Int("count", rec.ConsecutiveCount).
			Msg("Ticker marked stale after consecutive failures")
	}
}

// IsStale reports whether the consecutive-failure count reached the threshold.
func (t *Tracker) IsStale(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records[ticker.Normalize(symbol)].ConsecutiveCount >= t.threshold
}

// FailedThisRun reports whether the most recent outcome recorded in this process was a failure.
func (t *Tracker) FailedThisRun(symbol string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.failedNow[ticker.Normalize(symbol)]
}

// Count returns the current consecutive-failure count.
func (t *Tracker) Count(symbol string) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.records[ticker.Normalize(symbol)].ConsecutiveCount
}

// Threshold returns the configured staleness threshold.
func (t *Tracker) Threshold() int {
	return t.threshold
}

// Records returns a copy of the current failure registry for persistence.
func (t *Tracker) Records() map[string]domain.FailureRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]domain.FailureRecord, len(t.records))
	for k, v := range t.records {
		out[k] = v
	}
	return out
}

// List returns the failure records sorted by ticker.
func (t *Tracker) List() []domain.FailureRecord {
	recs := t.Records()
	out := make([]domain.FailureRecord, 0, len(recs))
	for _, r := range recs {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}
