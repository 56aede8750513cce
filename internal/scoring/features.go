package scoring

import (
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
)

// Horizon constants for the time-sensitive features.
const (
	urgencyHorizonDays = 30
	maxDurationMinutes = 720
)

// PriceIndex maps an offer's route key to the price it carried in the
// previously published batch. A nil index means no prior batch exists.
type PriceIndex map[string]float64

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// DiscountPct scores the gap between price and reference price. 0 when no
// reference price is known or the offer is not cheaper than it.
func DiscountPct(o models.Offer) float64 {
	if o.ReferencePrice <= 0 || o.Price >= o.ReferencePrice {
		return 0
	}
	return clamp01((o.ReferencePrice - o.Price) / o.ReferencePrice)
}

// AbsolutePriceScore scores the offer's price against the [min, max] price
// spread of its run/destination/date cohort. Cheapest gets 1, priciest 0; a
// single-offer cohort scores 1.
func AbsolutePriceScore(o models.Offer, cohortMin, cohortMax float64) float64 {
	if cohortMax <= cohortMin {
		return 1
	}
	return clamp01((cohortMax - o.Price) / (cohortMax - cohortMin))
}

// HotelQuality combines review score and star class. 0 for offers without
// hotel attributes.
func HotelQuality(o models.Offer) float64 {
	if o.Hotel == nil {
		return 0
	}
	rating := clamp01(o.Hotel.Rating/10) * 0.6
	stars := clamp01(float64(o.Hotel.Stars)/5) * 0.4
	return clamp01(rating + stars)
}

// FlightComfort scores directness and total duration. 0 for offers without
// flight attributes.
func FlightComfort(o models.Offer) float64 {
	if o.Flight == nil {
		return 0
	}
	duration := float64(o.Flight.DurationMinutes)
	if duration > maxDurationMinutes {
		duration = maxDurationMinutes
	}
	score := (1 - duration/maxDurationMinutes) * 0.8
	if o.Flight.Direct {
		score += 0.2
	}
	return clamp01(score)
}

// UrgencyScore is higher for travel dates closer to the run reference time
// and 0 beyond the horizon. This is the only feature that reads the run
// time, keeping the engine deterministic for a fixed reference.
func UrgencyScore(o models.Offer, now time.Time) float64 {
	days := o.Date.Sub(now).Hours() / 24
	if days < 0 {
		days = 0
	}
	if days >= urgencyHorizonDays {
		return 0
	}
	return clamp01(1 - days/urgencyHorizonDays)
}

// NoveltyScore is 1 when the offer's route key did not appear in the
// previous batch (including the very first run), the relative price drop
// when it reappeared cheaper, and 0 otherwise.
func NoveltyScore(o models.Offer, prev PriceIndex) float64 {
	if prev == nil {
		return 1
	}
	prevPrice, seen := prev[o.RouteKey()]
	if !seen {
		return 1
	}
	if prevPrice > 0 && o.Price < prevPrice {
		return clamp01((prevPrice - o.Price) / prevPrice)
	}
	return 0
}

// CategoryMatch is 1 when the offer satisfies the caller's filter and 0
// otherwise. A nil filter matches everything.
func CategoryMatch(o models.Offer, f *models.CategoryFilter) float64 {
	if f.Matches(o) {
		return 1
	}
	return 0
}
