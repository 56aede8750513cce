package pipeline

import (
	"strconv"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
	"github.com/tripsniper/tripsniper/internal/providers"
)

// Offers further out than this violate the date-horizon invariant and are
// skipped during normalization.
const maxDateHorizon = 365 * 24 * time.Hour

// Normalize maps one provider-specific raw offer into the canonical Offer.
// Pure: no I/O, no clock reads beyond the supplied run time. Missing or
// invalid price, date or destination returns a *NormalizationError.
func Normalize(providerID string, raw providers.RawOffer, now time.Time) (models.Offer, error) {
	price, ok := fieldFloat(raw.Fields, "price")
	if !ok {
		return models.Offer{}, &NormalizationError{Provider: providerID, Field: "price", Reason: "missing or not numeric"}
	}
	if price < 0 {
		return models.Offer{}, &NormalizationError{Provider: providerID, Field: "price", Reason: "negative"}
	}

	date, ok := fieldDate(raw.Fields, "date")
	if !ok {
		return models.Offer{}, &NormalizationError{Provider: providerID, Field: "date", Reason: "missing or unparseable"}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if date.Before(today) {
		return models.Offer{}, &NormalizationError{Provider: providerID, Field: "date", Reason: "in the past"}
	}
	if date.Sub(today) > maxDateHorizon {
		return models.Offer{}, &NormalizationError{Provider: providerID, Field: "date", Reason: "beyond the booking horizon"}
	}

	destination, ok := fieldString(raw.Fields, "destination")
	if !ok || destination == "" {
		return models.Offer{}, &NormalizationError{Provider: providerID, Field: "destination", Reason: "missing"}
	}

	origin, _ := fieldString(raw.Fields, "origin")
	currency, _ := fieldString(raw.Fields, "currency")
	sourceID, _ := fieldString(raw.Fields, "id")
	referencePrice, _ := fieldFloat(raw.Fields, "reference_price")
	if referencePrice < 0 {
		referencePrice = 0
	}

	fetchedAt := raw.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = now
	}
	visibleFrom := fetchedAt
	if v, ok := fieldDate(raw.Fields, "visible_from"); ok {
		visibleFrom = v
	}

	offer := models.Offer{
		Kind:           raw.Kind,
		Origin:         origin,
		Destination:    destination,
		Date:           date,
		Price:          price,
		Currency:       currency,
		ReferencePrice: referencePrice,
		ProviderID:     providerID,
		SourceID:       sourceID,
		FetchedAt:      fetchedAt,
		VisibleFrom:    visibleFrom,
	}

	switch raw.Kind {
	case models.KindFlight:
		direct, _ := fieldBool(raw.Fields, "direct")
		stops := fieldInt(raw.Fields, "stops")
		duration := fieldInt(raw.Fields, "duration_minutes")
		cabin, _ := fieldString(raw.Fields, "cabin_class")
		offer.Flight = &models.FlightAttributes{
			Direct:          direct,
			Stops:           stops,
			DurationMinutes: duration,
			CabinClass:      cabin,
		}
	case models.KindHotel:
		rating, _ := fieldFloat(raw.Fields, "rating")
		stars := fieldInt(raw.Fields, "stars")
		distance, _ := fieldFloat(raw.Fields, "distance_from_beach_km")
		offer.Hotel = &models.HotelAttributes{
			Rating:              rating,
			Stars:               stars,
			DistanceFromBeachKm: distance,
		}
	}

	return offer, nil
}

func fieldString(fields map[string]any, key string) (string, bool) {
	v, ok := fields[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// fieldFloat accepts the numeric shapes providers actually return: JSON
// numbers, Go ints, and numeric strings (Amadeus prices are strings).
func fieldFloat(fields map[string]any, key string) (float64, bool) {
	v, ok := fields[key]
	if !ok {
		return 0, false
	}
	switch typed := v.(type) {
	case float64:
		return typed, true
	case float32:
		return float64(typed), true
	case int:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case string:
		f, err := strconv.ParseFloat(typed, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}

func fieldInt(fields map[string]any, key string) int {
	f, ok := fieldFloat(fields, key)
	if !ok {
		return 0
	}
	return int(f)
}

func fieldBool(fields map[string]any, key string) (bool, bool) {
	v, ok := fields[key]
	if !ok {
		return false, false
	}
	b, ok := v.(bool)
	return b, ok
}

func fieldDate(fields map[string]any, key string) (time.Time, bool) {
	v, ok := fields[key]
	if !ok {
		return time.Time{}, false
	}
	switch typed := v.(type) {
	case time.Time:
		return typed.UTC(), true
	case string:
		if t, err := time.Parse(time.RFC3339, typed); err == nil {
			return t.UTC(), true
		}
		if t, err := time.Parse("2006-01-02", typed); err == nil {
			return t.UTC(), true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
