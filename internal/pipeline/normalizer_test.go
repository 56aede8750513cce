package pipeline

import (
	"errors"
	"testing"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
	"github.com/tripsniper/tripsniper/internal/providers"
)

func TestNormalizeRejectsBrokenOffers(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		fields    map[string]any
		wantField string
	}{
		{
			name:      "missing price",
			fields:    map[string]any{"destination": "LIS", "date": "2026-07-01"},
			wantField: "price",
		},
		{
			name:      "price not numeric",
			fields:    map[string]any{"price": "cheap", "destination": "LIS", "date": "2026-07-01"},
			wantField: "price",
		},
		{
			name:      "negative price",
			fields:    map[string]any{"price": -10.0, "destination": "LIS", "date": "2026-07-01"},
			wantField: "price",
		},
		{
			name:      "missing date",
			fields:    map[string]any{"price": 100.0, "destination": "LIS"},
			wantField: "date",
		},
		{
			name:      "date in the past",
			fields:    map[string]any{"price": 100.0, "destination": "LIS", "date": "2026-05-01"},
			wantField: "date",
		},
		{
			name:      "date beyond the booking horizon",
			fields:    map[string]any{"price": 100.0, "destination": "LIS", "date": "2028-01-01"},
			wantField: "date",
		},
		{
			name:      "missing destination",
			fields:    map[string]any{"price": 100.0, "date": "2026-07-01"},
			wantField: "destination",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			raw := providers.RawOffer{Kind: models.KindFlight, Fields: tt.fields}
			_, err := Normalize("testprov", raw, now)

			var nerr *NormalizationError
			if !errors.As(err, &nerr) {
				t.Fatalf("expected *NormalizationError, got %v", err)
			}
			if nerr.Field != tt.wantField {
				t.Errorf("error field = %s, want %s", nerr.Field, tt.wantField)
			}
			if nerr.Provider != "testprov" {
				t.Errorf("error provider = %s, want testprov", nerr.Provider)
			}
		})
	}
}

func TestNormalizeFlight(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	fetched := now.Add(-time.Minute)

	raw := providers.RawOffer{
		Kind: models.KindFlight,
		Fields: map[string]any{
			"id":               "AM-42",
			"origin":           "WAW",
			"destination":      "LIS",
			"date":             "2026-07-01",
			"price":            "437.50", // numeric string, as some providers send
			"currency":         "PLN",
			"reference_price":  600.0,
			"direct":           true,
			"stops":            0,
			"duration_minutes": 245,
		},
		FetchedAt: fetched,
	}

	offer, err := Normalize("amadeus", raw, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if offer.Kind != models.KindFlight {
		t.Errorf("kind = %s", offer.Kind)
	}
	if offer.Price != 437.50 {
		t.Errorf("price = %v", offer.Price)
	}
	if offer.ReferencePrice != 600 {
		t.Errorf("reference price = %v", offer.ReferencePrice)
	}
	if offer.ProviderID != "amadeus" || offer.SourceID != "AM-42" {
		t.Errorf("ids = %s / %s", offer.ProviderID, offer.SourceID)
	}
	if offer.Flight == nil || !offer.Flight.Direct || offer.Flight.DurationMinutes != 245 {
		t.Errorf("flight attributes = %+v", offer.Flight)
	}
	if !offer.FetchedAt.Equal(fetched) || !offer.VisibleFrom.Equal(fetched) {
		t.Errorf("timestamps = %v / %v", offer.FetchedAt, offer.VisibleFrom)
	}
}

func TestNormalizeHotel(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

	raw := providers.RawOffer{
		Kind: models.KindHotel,
		Fields: map[string]any{
			"id":          "BK18-77",
			"destination": "LIS",
			"date":        "2026-07-01",
			"price":       120.0,
			"currency":    "EUR",
			"rating":      8.6,
			"stars":       4,
		},
	}

	offer, err := Normalize("booking", raw, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offer.Hotel == nil || offer.Hotel.Rating != 8.6 || offer.Hotel.Stars != 4 {
		t.Errorf("hotel attributes = %+v", offer.Hotel)
	}
	// No FetchedAt on the raw offer; the run time fills in.
	if !offer.FetchedAt.Equal(now) {
		t.Errorf("fetched_at = %v, want run time", offer.FetchedAt)
	}
}

func TestNormalizeNegativeReferencePriceDropped(t *testing.T) {
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	raw := providers.RawOffer{
		Kind: models.KindFlight,
		Fields: map[string]any{
			"destination":     "LIS",
			"date":            "2026-07-01",
			"price":           100.0,
			"reference_price": -50.0,
		},
	}

	offer, err := Normalize("amadeus", raw, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if offer.ReferencePrice != 0 {
		t.Errorf("negative reference price kept: %v", offer.ReferencePrice)
	}
}
