package providers

import (
	"context"
	"fmt"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
)

// Query is one (origin, destination, date) cell of a selector's
// cross-product, handed to a fetcher as-is.
type Query struct {
	Origin      string
	Destination string
	Date        time.Time
}

// RawOffer is the provider-specific payload of one offer as returned by a
// fetch call. It is consumed only by the normalizer and never persisted.
type RawOffer struct {
	Provider  string
	Kind      models.OfferKind
	Fields    map[string]any
	FetchedAt time.Time
}

// FetchMode tags a fetcher's capability variant. Immediate fetchers do their
// work inline in Fetch; suspending fetchers launch the call in Begin and
// deliver through the returned Pending.
type FetchMode int

const (
	ModeImmediate FetchMode = iota
	ModeSuspending
)

// Fetcher retrieves raw offers from one external provider. The coordinator
// inspects Mode once per call and dispatches uniformly; call sites never
// branch on concrete types.
type Fetcher interface {
	ID() string
	Kind() models.OfferKind
	Mode() FetchMode
	Fetch(ctx context.Context, q Query) ([]RawOffer, error)
	Begin(ctx context.Context, q Query) *Pending
}

type pendingResult struct {
	offers []RawOffer
	err    error
}

// Pending is the handle to an in-flight suspending fetch.
type Pending struct {
	ch chan pendingResult
}

// BeginFunc runs fn in its own goroutine and returns the pending handle for
// it. Suspending fetchers build their Begin on top of this.
func BeginFunc(fn func() ([]RawOffer, error)) *Pending {
	p := &Pending{ch: make(chan pendingResult, 1)}
	go func() {
		offers, err := fn()
		p.ch <- pendingResult{offers: offers, err: err}
	}()
	return p
}

// Await blocks until the fetch completes or ctx is done. When the context
// expires first the in-flight call is abandoned and its eventual result
// discarded.
func (p *Pending) Await(ctx context.Context) ([]RawOffer, error) {
	select {
	case res := <-p.ch:
		return res.offers, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ProviderError wraps a failed fetch with its provider id so the coordinator
// can attribute it in the status map.
type ProviderError struct {
	Provider string
	Err      error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("provider %s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
