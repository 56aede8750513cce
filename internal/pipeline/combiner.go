package pipeline

import (
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
)

// CombineBundles joins flight and hotel offers sharing a destination and
// calendar date into bundle offers. Prices and reference prices are summed
// (an absent reference falls back to the leg's own price so the bundle's
// discount never overstates either leg), quality attributes come from the
// respective legs, and visibility starts when both legs are visible.
func CombineBundles(flights, hotels []models.Offer) []models.Offer {
	var bundles []models.Offer
	for _, flight := range flights {
		for _, hotel := range hotels {
			if flight.Destination != hotel.Destination {
				continue
			}
			if !sameDay(flight.Date, hotel.Date) {
				continue
			}

			fetchedAt := flight.FetchedAt
			if hotel.FetchedAt.After(fetchedAt) {
				fetchedAt = hotel.FetchedAt
			}
			visibleFrom := flight.VisibleFrom
			if hotel.VisibleFrom.After(visibleFrom) {
				visibleFrom = hotel.VisibleFrom
			}

			bundles = append(bundles, models.Offer{
				Kind:           models.KindBundle,
				Origin:         flight.Origin,
				Destination:    flight.Destination,
				Date:           flight.Date,
				Price:          flight.Price + hotel.Price,
				Currency:       flight.Currency,
				ReferencePrice: referenceOrPrice(flight) + referenceOrPrice(hotel),
				Flight:         flight.Flight,
				Hotel:          hotel.Hotel,
				ProviderID:     flight.ProviderID + "+" + hotel.ProviderID,
				SourceID:       flight.SourceID + "-" + hotel.SourceID,
				FetchedAt:      fetchedAt,
				VisibleFrom:    visibleFrom,
			})
		}
	}
	return bundles
}

func referenceOrPrice(o models.Offer) float64 {
	if o.ReferencePrice > 0 {
		return o.ReferencePrice
	}
	return o.Price
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
