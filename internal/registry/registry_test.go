package registry

import (
	"testing"
	"time"

	"github.com/aristath/consensus/internal/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShouldFetch(t *testing.T) {
	prior := &domain.EntityState{LastProcessedModified: "2025-11-26"}

	tests := []struct {
		name     string
		entity   domain.UpstreamEntity
		prior    *domain.EntityState
		force    bool
		expected bool
	}{
		{"new entity", domain.UpstreamEntity{ID: "A", LastModified: "2025-11-26"}, nil, false, true},
		{"unchanged", domain.UpstreamEntity{ID: "A", LastModified: "2025-11-26"}, prior, false, false},
		{"unchanged forced", domain.UpstreamEntity{ID: "A", LastModified: "2025-11-26"}, prior, true, true},
		{"newer", domain.UpstreamEntity{ID: "A", LastModified: "2025-12-01"}, prior, false, true},
		{"older", domain.UpstreamEntity{ID: "A", LastModified: "2025-10-01"}, prior, false, false},
		{"no reported value", domain.UpstreamEntity{ID: "A"}, prior, false, true},
		{"no stored value", domain.UpstreamEntity{ID: "A", LastModified: "2025-10-01"}, &domain.EntityState{}, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ShouldFetch(tt.entity, tt.prior, tt.force))
		})
	}
}

func TestRegistry_PlanAndStage(t *testing.T) {
	log := zerolog.New(nil).Level(zerolog.Disabled)
	prior := map[string]domain.EntityState{
		"SEQUX": {LastProcessedModified: "2025-11-26"},
		"BRK":   {LastProcessedModified: "2025-11-01"},
	}
	r := New(prior, false, log)
	r.now = func() time.Time { return time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC) }

	fetch, skip := r.Plan([]domain.UpstreamEntity{
		{ID: "SEQUX", LastModified: "2025-11-26"},
		{ID: "BRK", LastModified: "2025-11-30"},
		{ID: "NEW", LastModified: "2025-11-30"},
	})
	require.Len(t, fetch, 2)
	require.Len(t, skip, 1)
	assert.Equal(t, "SEQUX", skip[0].ID)

	// nothing is committed until MarkProcessed
	assert.Equal(t, "2025-11-01", r.State()["BRK"].LastProcessedModified)
	_, ok := r.State()["NEW"]
	assert.False(t, ok)

	r.MarkProcessed(fetch[0])
	state := r.State()
	assert.Equal(t, "2025-11-30", state["BRK"].LastProcessedModified)
	assert.Equal(t, time.Date(2025, 12, 2, 0, 0, 0, 0, time.UTC), state["BRK"].LastProcessedAt)
	assert.Equal(t, "2025-11-26", state["SEQUX"].LastProcessedModified)
	assert.Equal(t, 1, r.Processed())

	// prior map is not mutated
	assert.Equal(t, "2025-11-01", prior["BRK"].LastProcessedModified)
}

func TestRegistry_ForceFetchesEverything(t *testing.T) {
	r := New(map[string]domain.EntityState{"A": {LastProcessedModified: "2030-01-01"}}, true, zerolog.New(nil).Level(zerolog.Disabled))
	fetch, skip := r.Plan([]domain.UpstreamEntity{{ID: "A", LastModified: "2025-01-01"}})
	assert.Len(t, fetch, 1)
	assert.Empty(t, skip)
}

func TestFilterAllowed(t *testing.T) {
	entities := []domain.UpstreamEntity{
		{ID: "SEQUX", Name: "Ruane Cunniff"},
		{ID: "BRK", Name: "Warren Buffett"},
		{ID: "PI", Name: "Mohnish Pabrai"},
	}
	assert.Len(t, FilterAllowed(entities, nil), 3)

	got := FilterAllowed(entities, []string{"brk", " Mohnish Pabrai "})
	require.Len(t, got, 2)
	assert.Equal(t, "BRK", got[0].ID)
	assert.Equal(t, "PI", got[1].ID)
}
