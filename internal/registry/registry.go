// Package registry decides which upstream entities need re-fetching and
// records what was processed, committing nothing until a fetch succeeds.
package registry

import (
	"strings"
	"sync"
	"time"

	"github.com/aristath/consensus/internal/domain"
	"github.com/rs/zerolog"
)

// ShouldFetch reports whether an entity must be re-fetched this run.
// Missing information always errs toward fetching.
func ShouldFetch(entity domain.UpstreamEntity, prior *domain.EntityState, forceFullRefresh bool) bool {
	if forceFullRefresh {
		return true
	}
	if prior == nil || entity.LastModified == "" || prior.LastProcessedModified == "" {
		return true
	}
	return entity.LastModified > prior.LastProcessedModified
}

// Registry holds the entity state read at start-of-run plus the updates
// staged by successful fetches during the run.
type Registry struct {
	mu      sync.Mutex
	prior   map[string]domain.EntityState
	pending map[string]domain.EntityState
	force   bool
	now     func() time.Time
	log     zerolog.Logger
}

// New creates a registry over the persisted entity map.
func New(prior map[string]domain.EntityState, forceFullRefresh bool, log zerolog.Logger) *Registry {
	copied := make(map[string]domain.EntityState, len(prior))
	for id, st := range prior {
		copied[id] = st
	}
	return &Registry{
		prior:   copied,
		pending: make(map[string]domain.EntityState),
		force:   forceFullRefresh,
		now:     time.Now,
		log:     log.With().Str("component", "registry").Logger(),
	}
}

// Plan splits discovered entities into those to fetch and those that are up to date.
func (r *Registry) Plan(discovered []domain.UpstreamEntity) (fetch, skip []domain.UpstreamEntity) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, e := range discovered {
		var prior *domain.EntityState
		if st, ok := r.prior[e.ID]; ok {
			prior = &st
		}
		if ShouldFetch(e, prior, r.force) {
			fetch = append(fetch, e)
			continue
		}
		r.log.Debug().
			Str("entity", e.ID).
			Str("last_modified", e.LastModified).
			Msg("Entity unchanged, skipping")
		skip = append(skip, e)
	}

	r.log.Info().
		Int("discovered", len(discovered)).
		Int("fetch", len(fetch)).
		Int("skip", len(skip)).
		Bool("force", r.force).
		Msg("Planned entity fetches")
	return fetch, skip
}

// MarkProcessed stages the entity's reported modification value. Call it only
// after the entity's facts were fetched and merged.
func (r *Registry) MarkProcessed(entity domain.UpstreamEntity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[entity.ID] = domain.EntityState{
		LastProcessedModified: entity.LastModified,
		LastProcessedAt:       r.now().UTC(),
	}
}

// State returns the entity map to persist: prior state overlaid with staged updates.
func (r *Registry) State() map[string]domain.EntityState {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]domain.EntityState, len(r.prior)+len(r.pending))
	for id, st := range r.prior {
		out[id] = st
	}
	for id, st := range r.pending {
		out[id] = st
	}
	return out
}

// Processed returns how many entities were staged this run.
func (r *Registry) Processed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// FilterAllowed keeps entities whose id or name is on the allow-list.
// An empty allow-list keeps everything.
func FilterAllowed(entities []domain.UpstreamEntity, allow []string) []domain.UpstreamEntity {
	if len(allow) == 0 {
		return entities
	}
	allowed := make(map[string]bool, len(allow))
	for _, a := range allow {
		allowed[strings.ToLower(strings.TrimSpace(a))] = true
	}
	out := make([]domain.UpstreamEntity, 0, len(entities))
	for _, e := range entities {
		if allowed[strings.ToLower(e.ID)] || allowed[strings.ToLower(e.Name)] {
			out = append(out, e)
		}
	}
	return out
}
