// Package pipeline runs one logical pass: load state, discover and fetch
// every source, reconcile, evaluate alerts, export and persist.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/aristath/consensus/internal/alerts"
	"github.com/aristath/consensus/internal/domain"
	"github.com/aristath/consensus/internal/export"
	"github.com/aristath/consensus/internal/failures"
	"github.com/aristath/consensus/internal/fetch"
	"github.com/aristath/consensus/internal/reconcile"
	"github.com/aristath/consensus/internal/registry"
)

// ErrInterrupted is returned when the run was cancelled. Nothing but the run
// record is persisted and the previous output files are left in place.
var ErrInterrupted = errors.New("run interrupted")

// Publisher uploads an exported file
type Publisher interface {
	Publish(ctx context.Context, path string) error
}

// Deps are the collaborators of a pipeline. Writer and Publisher are optional.
type Deps struct {
	Holdings  domain.HoldingsSource
	Mentions  domain.MentionsSource
	Market    domain.MarketDataSource
	Store     domain.StateStore
	Notifier  domain.Notifier
	Writer    *export.Writer
	Publisher Publisher
}

// Options holds per-run settings
type Options struct {
	ForceFullRefresh bool
	StaleThreshold   int
	Workers          int
	Publications     []domain.Publication
	Investors        []string
	Rules            []domain.AlertRule
	Alerts           alerts.Config
}

// Result is the outcome of a run
type Result struct {
	Run        domain.RunRecord
	Securities []domain.CanonicalSecurity
	Alerts     []domain.AlertEvent
	Failures   []domain.FailureRecord
}

// Pipeline wires the sources to the reconciliation core
type Pipeline struct {
	deps Deps
	opts Options
	now  func() time.Time
	log  zerolog.Logger
}

// New creates a pipeline
func New(deps Deps, opts Options, log zerolog.Logger) *Pipeline {
	if opts.Workers < 1 {
		opts.Workers = 1
	}
	return &Pipeline{
		deps: deps,
		opts: opts,
		now:  time.Now,
		log:  log.With().Str("component", "pipeline").Logger(),
	}
}

// run carries the per-invocation state
type run struct {
	record   domain.RunRecord
	prior    domain.PersistedState
	previous []domain.CanonicalSecurity
	registry *registry.Registry
	tracker  *failures.Tracker
	engine   *reconcile.Engine
	degraded bool
}

// Run executes one pass. Source failures degrade the run but never abort it;
// only cancellation of ctx does, returning ErrInterrupted.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	r := &run{record: domain.RunRecord{
		ID:        uuid.NewString(),
		StartedAt: p.now().UTC(),
	}}
	log := p.log.With().Str("run_id", r.record.ID).Logger()
	log.Info().Msg("Run started")

	prior, err := p.deps.Store.LoadState(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted state: %w", err)
	}
	r.prior = prior

	forceFull := p.opts.ForceFullRefresh
	r.previous, err = p.deps.Store.LoadSnapshot(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to load previous snapshot, refetching every entity")
		r.previous = nil
		forceFull = true
		r.degraded = true
	} else if len(r.previous) == 0 && len(prior.Entities) > 0 {
		// Skipped entities are carried forward from the snapshot, so
		// without one they would silently drop out.
		log.Warn().Int("entities", len(prior.Entities)).Msg("Previous snapshot is empty, refetching every entity")
		forceFull = true
		r.degraded = true
	}

	r.registry = registry.New(prior.Entities, forceFull, log)
	r.tracker = failures.NewTracker(prior.Failures, p.opts.StaleThreshold, log)
	r.engine = reconcile.NewEngine(r.tracker, log)

	if err := p.collectHoldings(ctx, r, log); err != nil {
		return p.interrupted(ctx, r, err, log)
	}
	if err := p.collectMentions(ctx, r, log); err != nil {
		return p.interrupted(ctx, r, err, log)
	}
	if err := p.collectMarket(ctx, r, log); err != nil {
		return p.interrupted(ctx, r, err, log)
	}

	secs := r.engine.Result()
	r.record.Securities = len(secs)

	evaluator := alerts.NewEvaluator(p.opts.Alerts, log)
	events := evaluator.EvaluateAll(secs, p.opts.Rules)
	r.record.Alerts = len(events)

	if err := ctx.Err(); err != nil {
		return p.interrupted(ctx, r, err, log)
	}
	if len(events) > 0 && p.deps.Notifier != nil {
		delivered, err := p.deps.Notifier.Notify(ctx, events)
		r.record.Delivered = delivered
		if err != nil {
			log.Error().Err(err).Int("delivered", delivered).Msg("Alert delivery failed")
			r.degraded = true
		}
	}
	if err := ctx.Err(); err != nil {
		return p.interrupted(ctx, r, err, log)
	}

	// Output files are replaced past this point, so the commit must land
	// even if ctx is cancelled meanwhile.
	commitCtx := context.WithoutCancel(ctx)

	keepSnapshot := len(secs) == 0
	if keepSnapshot {
		log.Warn().Msg("No securities collected, keeping previous snapshot and output files")
		r.degraded = true
	} else {
		p.export(commitCtx, r, secs, log)
	}

	r.record.Status = domain.RunSucceeded
	if r.degraded {
		r.record.Status = domain.RunDegraded
	}
	r.record.FinishedAt = p.now().UTC()

	commit := domain.RunCommit{
		Run: r.record,
		State: domain.PersistedState{
			Entities: r.registry.State(),
			Failures: r.tracker.Records(),
		},
		Securities:   secs,
		KeepSnapshot: keepSnapshot,
	}
	if err := p.deps.Store.Commit(commitCtx, commit); err != nil {
		log.Error().Err(err).Msg("Failed to persist run")
		return nil, fmt.Errorf("failed to commit run: %w", err)
	}

	log.Info().
		Str("status", string(r.record.Status)).
		Int("securities", r.record.Securities).
		Int("entities_fetched", r.record.EntitiesFetched).
		Int("entities_skipped", r.record.EntitiesSkipped).
		Int("entities_failed", r.record.EntitiesFailed).
		Int("market_failures", r.record.MarketFailures).
		Int("alerts", r.record.Alerts).
		Dur("duration", r.record.FinishedAt.Sub(r.record.StartedAt)).
		Msg("Run finished")

	return &Result{
		Run:        r.record,
		Securities: secs,
		Alerts:     events,
		Failures:   r.tracker.List(),
	}, nil
}

// collectHoldings discovers entities, fetches the changed ones and merges
// them. Facts of unchanged or failed entities are carried forward from the
// previous snapshot.
func (p *Pipeline) collectHoldings(ctx context.Context, r *run, log zerolog.Logger) error {
	if p.deps.Holdings == nil {
		return nil
	}

	discovered, err := p.deps.Holdings.DiscoverEntities(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn().Err(err).Msg("Holdings discovery failed, source contributes nothing this run")
		r.degraded = true
		return nil
	}
	discovered = registry.FilterAllowed(discovered, p.opts.Investors)

	toFetch, skipped := r.registry.Plan(discovered)
	r.record.EntitiesSkipped = len(skipped)

	results := make([][]domain.HoldingFact, len(toFetch))
	errs := make([]error, len(toFetch))
	err = fetch.ForEach(ctx, p.opts.Workers, indexes(len(toFetch)), func(ctx context.Context, i int) error {
		results[i], errs[i] = p.deps.Holdings.FetchHoldings(ctx, toFetch[i])
		return nil
	})
	if err != nil {
		return err
	}

	carry := make(map[string]bool, len(skipped))
	for _, e := range skipped {
		carry[e.ID] = true
	}
	for i, entity := range toFetch {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("entity", entity.ID).Msg("Holdings fetch failed, keeping previous facts")
			r.record.EntitiesFailed++
			carry[entity.ID] = true
		}
	}
	if r.record.EntitiesFailed > 0 {
		r.degraded = true
	}

	// Carried facts go in first so names seen this run win.
	carried := previousHoldings(r.previous, carry)
	if len(carried) > 0 {
		added, _ := r.engine.AddHoldings(carried)
		log.Info().Int("facts", added).Int("entities", len(carry)).Msg("Carried forward unchanged holdings")
	}

	for i, entity := range toFetch {
		if errs[i] != nil {
			continue
		}
		added, bad := r.engine.AddHoldings(results[i])
		r.registry.MarkProcessed(entity)
		log.Debug().Str("entity", entity.ID).Int("added", added).Int("skipped", bad).Msg("Merged holdings")
	}
	r.record.EntitiesFetched = r.registry.Processed()
	return nil
}

// collectMentions reads every publication. A failed publication keeps its
// mentions from the previous snapshot.
func (p *Pipeline) collectMentions(ctx context.Context, r *run, log zerolog.Logger) error {
	pubs := p.opts.Publications
	if p.deps.Mentions == nil || len(pubs) == 0 {
		return nil
	}

	results := make([][]domain.MentionFact, len(pubs))
	errs := make([]error, len(pubs))
	err := fetch.ForEach(ctx, p.opts.Workers, indexes(len(pubs)), func(ctx context.Context, i int) error {
		results[i], errs[i] = p.deps.Mentions.FetchMentions(ctx, pubs[i])
		return nil
	})
	if err != nil {
		return err
	}

	failed := make(map[string]bool)
	articles := make(map[string]bool)
	for i, pub := range pubs {
		if errs[i] != nil {
			log.Warn().Err(errs[i]).Str("publication", pub.Name).Msg("Publication fetch failed, keeping previous mentions")
			failed[pub.Name] = true
			continue
		}
		for _, m := range results[i] {
			articles[m.ArticleID] = true
		}
		r.engine.AddMentions(results[i])
	}
	r.record.Articles = len(articles)

	if len(failed) > 0 {
		r.degraded = true
		r.engine.AddMentions(previousMentions(r.previous, failed))
	}
	return nil
}

// collectMarket fetches a snapshot for every known ticker and feeds the
// failure tracker before attaching the snapshots.
func (p *Pipeline) collectMarket(ctx context.Context, r *run, log zerolog.Logger) error {
	if p.deps.Market == nil {
		return nil
	}

	tickers := r.engine.Tickers()
	var mu sync.Mutex
	snapshots := make(map[string]domain.MarketSnapshot, len(tickers))

	err := fetch.ForEach(ctx, p.opts.Workers, tickers, func(ctx context.Context, t string) error {
		snap, err := p.deps.Market.FetchMarketSnapshot(ctx, t)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.tracker.RecordOutcome(t, false)
			snap = domain.FailedSnapshot(t, err)
			log.Warn().Err(err).Str("ticker", t).Int("consecutive", r.tracker.Count(t)).Msg("Market data fetch failed")
		} else {
			if snap.Status == "" {
				snap.Status = domain.MarketOK
			}
			r.tracker.RecordOutcome(t, true)
		}

		mu.Lock()
		snapshots[t] = snap
		mu.Unlock()
		return nil
	})
	if err != nil {
		return err
	}

	for _, s := range snapshots {
		if s.Failed() {
			r.record.MarketFailures++
		}
	}
	r.engine.ApplyMarket(snapshots)
	log.Info().
		Int("tickers", len(tickers)).
		Int("failed", r.record.MarketFailures).
		Msg("Market data collected")
	return nil
}

// export writes the output files and publishes stocks.json. Failures here
// degrade the run; the snapshot is still committed.
func (p *Pipeline) export(ctx context.Context, r *run, secs []domain.CanonicalSecurity, log zerolog.Logger) {
	if p.deps.Writer == nil {
		return
	}

	status := domain.RunSucceeded
	if r.degraded {
		status = domain.RunDegraded
	}
	doc := export.NewDocument(secs, p.now())
	meta := export.NewMetadata(doc, r.record.ID, status, r.record.Alerts)
	if err := p.deps.Writer.Write(doc, meta); err != nil {
		log.Error().Err(err).Msg("Failed to write output files")
		r.degraded = true
		return
	}

	if p.deps.Publisher == nil {
		return
	}
	if err := p.deps.Publisher.Publish(ctx, p.deps.Writer.Path(export.StocksJSON)); err != nil {
		log.Warn().Err(err).Msg("Failed to publish snapshot")
	}
}

// interrupted records the aborted run without touching entity or failure
// state, so nothing fetched during the partial run is considered processed.
func (p *Pipeline) interrupted(ctx context.Context, r *run, cause error, log zerolog.Logger) (*Result, error) {
	r.record.Status = domain.RunInterrupted
	r.record.FinishedAt = p.now().UTC()
	log.Warn().Err(cause).Msg("Run interrupted, keeping previous snapshot")

	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	commit := domain.RunCommit{
		Run:          r.record,
		State:        r.prior,
		KeepSnapshot: true,
	}
	if err := p.deps.Store.Commit(commitCtx, commit); err != nil {
		log.Error().Err(err).Msg("Failed to record interrupted run")
	}

	return &Result{Run: r.record, Securities: r.previous}, fmt.Errorf("%w: %w", ErrInterrupted, cause)
}

func previousHoldings(prev []domain.CanonicalSecurity, entities map[string]bool) []domain.HoldingFact {
	var out []domain.HoldingFact
	for _, sec := range prev {
		for _, h := range sec.Holdings.Investors {
			if h.EntityID != "" && entities[h.EntityID] {
				out = append(out, h)
			}
		}
	}
	return out
}

func previousMentions(prev []domain.CanonicalSecurity, pubs map[string]bool) []domain.MentionFact {
	var out []domain.MentionFact
	for _, sec := range prev {
		for _, m := range sec.Mentions.Mentions {
			if pubs[m.Publication] {
				out = append(out, m)
			}
		}
	}
	return out
}

func indexes(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}
