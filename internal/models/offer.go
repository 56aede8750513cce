package models

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// OfferKind distinguishes the provider product behind an offer. Bundles are
// flight+hotel pairs joined by destination and travel date.
type OfferKind string

const (
	KindFlight OfferKind = "flight"
	KindHotel  OfferKind = "hotel"
	KindBundle OfferKind = "bundle"
)

// FlightAttributes are the quality attributes meaningful for flight (and
// bundle) offers.
type FlightAttributes struct {
	Direct          bool   `json:"direct"`
	Stops           int    `json:"stops"`
	DurationMinutes int    `json:"duration_minutes"`
	CabinClass      string `json:"cabin_class,omitempty"`
}

// HotelAttributes are the quality attributes meaningful for hotel (and
// bundle) offers.
type HotelAttributes struct {
	Rating              float64 `json:"rating"` // review score on a 0-10 scale
	Stars               int     `json:"stars"`
	DistanceFromBeachKm float64 `json:"distance_from_beach_km,omitempty"`
}

// Offer is the normalized unit the pipeline operates on.
type Offer struct {
	Kind           OfferKind         `json:"kind"`
	Origin         string            `json:"origin"`
	Destination    string            `json:"destination"`
	Date           time.Time         `json:"date"`
	Price          float64           `json:"price"`
	Currency       string            `json:"currency"`
	ReferencePrice float64           `json:"reference_price,omitempty"` // 0 means absent
	Flight         *FlightAttributes `json:"flight,omitempty"`
	Hotel          *HotelAttributes  `json:"hotel,omitempty"`
	ProviderID     string            `json:"provider_id"`
	SourceID       string            `json:"source_id"`
	FetchedAt      time.Time         `json:"fetched_at"`
	VisibleFrom    time.Time         `json:"visible_from"`
}

// RouteKey identifies an offer across runs for novelty comparison.
func (o Offer) RouteKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", o.Origin, o.Destination, o.Date.UTC().Format("2006-01-02"), o.ProviderID)
}

// FeatureScores maps feature name to a sub-score in [0, 1].
type FeatureScores map[string]float64

// ScoredOffer is an Offer with its feature breakdown, composite steal score
// and rank within the batch (1-based, descending by score).
type ScoredOffer struct {
	Offer
	Features   FeatureScores `json:"features"`
	StealScore float64       `json:"steal_score"`
	Rank       int           `json:"rank"`
}

// ProviderState classifies how a provider fared during one run.
type ProviderState string

const (
	ProviderOK       ProviderState = "ok"
	ProviderEmpty    ProviderState = "empty"
	ProviderFailed   ProviderState = "failed"
	ProviderDisabled ProviderState = "disabled"
)

// ProviderStatus is the per-provider accounting attached to a RunBatch.
type ProviderStatus struct {
	State   ProviderState `json:"state"`
	Reason  string        `json:"reason,omitempty"`
	Fetched int           `json:"fetched"`
	Skipped int           `json:"skipped"`
}

// Outcome is the run-level result reported to the trigger.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomePartial Outcome = "partial"
	OutcomeFailure Outcome = "failure"
)

// RunBatch is the immutable, published output of one pipeline execution.
// New batches supersede but never delete prior ones.
type RunBatch struct {
	RunID       string                    `json:"run_id"`
	SelectorKey string                    `json:"selector_key"`
	Outcome     Outcome                   `json:"outcome"`
	StartedAt   time.Time                 `json:"started_at"`
	CompletedAt time.Time                 `json:"completed_at"`
	Offers      []ScoredOffer             `json:"offers"`
	Providers   map[string]ProviderStatus `json:"providers"`
}

// RunSummary is the lightweight view of a batch used by run listings.
type RunSummary struct {
	RunID       string    `json:"run_id"`
	SelectorKey string    `json:"selector_key"`
	Outcome     Outcome   `json:"outcome"`
	OfferCount  int       `json:"offer_count"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// CategoryFilter narrows which offers count as a category match for a run.
// A nil filter matches everything.
type CategoryFilter struct {
	Locations []string `json:"locations,omitempty"`
	MaxPrice  float64  `json:"max_price,omitempty"`
	MinStars  int      `json:"min_stars,omitempty"`
}

// Matches reports whether the offer satisfies every active constraint.
func (f *CategoryFilter) Matches(o Offer) bool {
	if f == nil {
		return true
	}
	if len(f.Locations) > 0 {
		found := false
		for _, loc := range f.Locations {
			if strings.EqualFold(loc, o.Destination) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.MaxPrice > 0 && o.Price > f.MaxPrice {
		return false
	}
	if f.MinStars > 0 {
		if o.Hotel == nil || o.Hotel.Stars < f.MinStars {
			return false
		}
	}
	return true
}

// Selector bounds one pipeline run. Immutable once constructed.
type Selector struct {
	Origin       string          `json:"origin"`
	Destinations []string        `json:"destinations"`
	Dates        []time.Time     `json:"dates"`
	FlightsOnly  bool            `json:"flights_only"`
	Filter       *CategoryFilter `json:"filter,omitempty"`
}

// Key returns a stable identifier used to serialize concurrent runs for the
// same selector. Destinations and dates are sorted so ordering in the input
// does not produce distinct keys.
func (s Selector) Key() string {
	dests := append([]string(nil), s.Destinations...)
	sort.Strings(dests)

	dates := make([]string, 0, len(s.Dates))
	for _, d := range s.Dates {
		dates = append(dates, d.UTC().Format("2006-01-02"))
	}
	sort.Strings(dates)

	mode := "all"
	if s.FlightsOnly {
		mode = "flights"
	}
	return fmt.Sprintf("%s|%s|%s|%s", s.Origin, strings.Join(dests, ","), strings.Join(dates, ","), mode)
}
