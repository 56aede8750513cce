package pipeline

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
	"github.com/tripsniper/tripsniper/internal/providers"
	"golang.org/x/sync/errgroup"
)

// GatherConfig bounds the coordinator's concurrency and per-call latency.
type GatherConfig struct {
	MaxInFlight int           // concurrent provider calls, default 4
	CallTimeout time.Duration // per provider call, default 30s
}

func (c GatherConfig) withDefaults() GatherConfig {
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 4
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	return c
}

// GatherResult carries the raw offers and per-provider accounting of one
// fetch phase.
type GatherResult struct {
	Raw    map[string][]providers.RawOffer
	Status map[string]models.ProviderStatus
}

// Gather invokes every fetcher for every (destination, date) cell of the
// selector, awaiting immediate and suspending fetchers uniformly under a
// bounded concurrency limit. A failed call (timeout, non-2xx, malformed
// payload) marks that provider failed and never fails the gather itself:
// partial results are still returned, and an all-failed gather returns
// empty-but-valid maps.
func Gather(ctx context.Context, sel models.Selector, fetchers []providers.Fetcher, cfg GatherConfig) GatherResult {
	cfg = cfg.withDefaults()

	res := GatherResult{
		Raw:    make(map[string][]providers.RawOffer),
		Status: make(map[string]models.ProviderStatus),
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.MaxInFlight)

	for _, f := range fetchers {
		for _, dest := range sel.Destinations {
			for _, date := range sel.Dates {
				f := f
				q := providers.Query{Origin: sel.Origin, Destination: dest, Date: date}
				g.Go(func() error {
					offers, err := dispatch(gctx, f, q, cfg.CallTimeout)

					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						log.Printf("[gather] %s %s->%s %s: %v",
							f.ID(), q.Origin, q.Destination, q.Date.Format("2006-01-02"), err)
						status := res.Status[f.ID()]
						status.State = models.ProviderFailed
						if status.Reason == "" {
							status.Reason = err.Error()
						}
						res.Status[f.ID()] = status
						return nil
					}
					res.Raw[f.ID()] = append(res.Raw[f.ID()], offers...)
					status := res.Status[f.ID()]
					status.Fetched += len(offers)
					res.Status[f.ID()] = status
					return nil
				})
			}
		}
	}
	_ = g.Wait()

	// Settle final states: providers with no recorded failure are ok or
	// empty depending on whether anything came back.
	for _, f := range fetchers {
		status := res.Status[f.ID()]
		if status.State == models.ProviderFailed {
			continue
		}
		if status.Fetched == 0 {
			status.State = models.ProviderEmpty
		} else {
			status.State = models.ProviderOK
		}
		res.Status[f.ID()] = status
	}
	return res
}

// dispatch is the single place that inspects a fetcher's capability tag.
// Immediate fetchers run inline on the worker goroutine; suspending
// fetchers are started and awaited, so both styles block the worker for the
// duration of exactly one provider call.
func dispatch(ctx context.Context, f providers.Fetcher, q providers.Query, timeout time.Duration) ([]providers.RawOffer, error) {
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch f.Mode() {
	case providers.ModeSuspending:
		return f.Begin(callCtx, q).Await(callCtx)
	default:
		return f.Fetch(callCtx, q)
	}
}
