package pipeline

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tripsniper/tripsniper/internal/models"
	"github.com/tripsniper/tripsniper/internal/providers"
	"github.com/tripsniper/tripsniper/internal/scoring"
)

// State names the phases of one pipeline run.
type State string

const (
	StateIdle             State = "idle"
	StateResolvingWeights State = "resolving_weights"
	StateFetching         State = "fetching"
	StateNormalizing      State = "normalizing"
	StateScoring          State = "scoring"
	StatePersisting       State = "persisting"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// BatchStore is the persistence contract the orchestrator needs: write one
// complete batch atomically, and read the previous batch's price index for
// novelty scoring.
type BatchStore interface {
	SaveBatch(ctx context.Context, batch *models.RunBatch) error
	PreviousPrices(ctx context.Context, selectorKey string) (scoring.PriceIndex, error)
}

// Options configures an Orchestrator.
type Options struct {
	// WeightsInline and WeightsPath are the runtime weight overrides, in
	// precedence order. Both may be empty.
	WeightsInline string
	WeightsPath   string
	// Disabled carries providers excluded at configuration time, keyed by
	// provider id, so the batch reports them as disabled rather than
	// omitting them.
	Disabled map[string]models.ProviderStatus
	Gather   GatherConfig
	// Clock overrides the run reference time; nil means time.Now. Used by
	// tests to pin urgency scoring.
	Clock func() time.Time
}

// RunOutcome is what a trigger (scheduler, admin endpoint, CLI) gets back
// from one run.
type RunOutcome struct {
	Outcome   models.Outcome
	Batch     *models.RunBatch
	Providers map[string]models.ProviderStatus
	Err       error
}

// Orchestrator sequences weight resolution, fetching, normalization,
// scoring and persistence for pipeline runs. Runs for distinct selectors
// proceed in parallel; runs for the same selector are serialized by
// rejection.
type Orchestrator struct {
	store    BatchStore
	fetchers []providers.Fetcher
	opts     Options

	mu      sync.Mutex
	running map[string]bool
}

func New(store BatchStore, fetchers []providers.Fetcher, opts Options) *Orchestrator {
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Orchestrator{
		store:    store,
		fetchers: fetchers,
		opts:     opts,
		running:  make(map[string]bool),
	}
}

// Run executes one full pipeline pass for the selector. It returns
// ErrRunInFlight without touching anything when a run for the same selector
// key is already executing.
func (o *Orchestrator) Run(ctx context.Context, sel models.Selector) (RunOutcome, error) {
	key := sel.Key()

	o.mu.Lock()
	if o.running[key] {
		o.mu.Unlock()
		return RunOutcome{}, ErrRunInFlight
	}
	o.running[key] = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		delete(o.running, key)
		o.mu.Unlock()
	}()

	startedAt := o.opts.Clock()
	runID := uuid.New().String()
	log.Printf("[pipeline] run %s starting for selector %s", runID, key)

	// Weight resolution failure is recoverable: a configuration mistake
	// must never stop scoring, so the run proceeds on pure defaults.
	o.transition(runID, StateResolvingWeights)
	weights, err := scoring.ResolveWeights(o.opts.WeightsInline, o.opts.WeightsPath, scoring.DefaultWeights())
	if err != nil {
		log.Printf("[pipeline] run %s: %v, falling back to default weights", runID, err)
		weights = scoring.DefaultWeights()
	}

	o.transition(runID, StateFetching)
	enabled, statuses := o.enabledFetchers(sel)
	gathered := Gather(ctx, sel, enabled, o.opts.Gather)
	for id, st := range gathered.Status {
		statuses[id] = st
	}

	if ctx.Err() != nil {
		log.Printf("[pipeline] run %s cancelled during fetch, discarding results", runID)
		return o.fail(runID, statuses, ctx.Err()), nil
	}

	o.transition(runID, StateNormalizing)
	now := o.opts.Clock()

	// Assemble in sorted provider order so the scored batch does not
	// depend on map iteration order.
	providerIDs := make([]string, 0, len(gathered.Raw))
	for providerID := range gathered.Raw {
		providerIDs = append(providerIDs, providerID)
	}
	sort.Strings(providerIDs)

	var flights, hotels, others []models.Offer
	for _, providerID := range providerIDs {
		for _, raw := range gathered.Raw[providerID] {
			offer, err := Normalize(providerID, raw, now)
			if err != nil {
				log.Printf("[pipeline] run %s: %v, skipping", runID, err)
				st := statuses[providerID]
				st.Skipped++
				statuses[providerID] = st
				continue
			}
			switch offer.Kind {
			case models.KindFlight:
				flights = append(flights, offer)
			case models.KindHotel:
				hotels = append(hotels, offer)
			default:
				others = append(others, offer)
			}
		}
	}

	offers := make([]models.Offer, 0, len(flights)+len(hotels)+len(others))
	offers = append(offers, flights...)
	offers = append(offers, hotels...)
	offers = append(offers, others...)
	if len(hotels) > 0 {
		offers = append(offers, CombineBundles(flights, hotels)...)
	}

	o.transition(runID, StateScoring)
	previous, err := o.store.PreviousPrices(ctx, key)
	if err != nil {
		// Novelty degrades to "everything is new"; not worth failing over.
		log.Printf("[pipeline] run %s: previous batch unavailable: %v", runID, err)
		previous = nil
	}
	engine := scoring.Engine{
		Weights:  weights,
		Now:      now,
		Previous: previous,
		Filter:   sel.Filter,
	}
	scored := engine.ScoreAll(offers)

	batch := &models.RunBatch{
		RunID:       runID,
		SelectorKey: key,
		StartedAt:   startedAt,
		CompletedAt: o.opts.Clock(),
		Offers:      scored,
		Providers:   statuses,
		Outcome:     outcomeFor(statuses),
	}

	o.transition(runID, StatePersisting)
	if ctx.Err() != nil {
		log.Printf("[pipeline] run %s cancelled before persistence, nothing published", runID)
		return o.fail(runID, statuses, ctx.Err()), nil
	}
	if err := o.store.SaveBatch(ctx, batch); err != nil {
		perr := &PersistenceError{Err: err}
		log.Printf("[pipeline] run %s: %v", runID, perr)
		return o.fail(runID, statuses, perr), nil
	}

	o.transition(runID, StateDone)
	log.Printf("[pipeline] run %s %s: %d offers, providers %v", runID, batch.Outcome, len(scored), summarize(statuses))
	return RunOutcome{Outcome: batch.Outcome, Batch: batch, Providers: statuses}, nil
}

func (o *Orchestrator) fail(runID string, statuses map[string]models.ProviderStatus, err error) RunOutcome {
	o.transition(runID, StateFailed)
	return RunOutcome{Outcome: models.OutcomeFailure, Providers: statuses, Err: err}
}

func (o *Orchestrator) transition(runID string, state State) {
	log.Printf("[pipeline] run %s -> %s", runID, state)
}

// enabledFetchers applies the selector's flights_only flag on top of the
// configuration-time disabled set.
func (o *Orchestrator) enabledFetchers(sel models.Selector) ([]providers.Fetcher, map[string]models.ProviderStatus) {
	statuses := make(map[string]models.ProviderStatus, len(o.opts.Disabled))
	for id, st := range o.opts.Disabled {
		statuses[id] = st
	}

	var enabled []providers.Fetcher
	for _, f := range o.fetchers {
		if sel.FlightsOnly && f.Kind() != models.KindFlight {
			statuses[f.ID()] = models.ProviderStatus{State: models.ProviderDisabled, Reason: "flights_only selector"}
			continue
		}
		enabled = append(enabled, f)
	}
	return enabled, statuses
}

// outcomeFor derives the run-level outcome from per-provider accounting.
// Provider failures and skipped offers degrade the run to partial, even
// when every provider failed. Only persistence errors are fatal.
func outcomeFor(statuses map[string]models.ProviderStatus) models.Outcome {
	for _, st := range statuses {
		if st.State == models.ProviderFailed || st.Skipped > 0 {
			return models.OutcomePartial
		}
	}
	return models.OutcomeSuccess
}

func summarize(statuses map[string]models.ProviderStatus) map[string]models.ProviderState {
	out := make(map[string]models.ProviderState, len(statuses))
	for id, st := range statuses {
		out[id] = st.State
	}
	return out
}
