package models

import (
	"testing"
	"time"
)

func TestSelectorKeyOrderIndependent(t *testing.T) {
	d1 := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	d2 := time.Date(2026, 7, 8, 0, 0, 0, 0, time.UTC)

	a := Selector{Origin: "WAW", Destinations: []string{"LIS", "BCN"}, Dates: []time.Time{d1, d2}}
	b := Selector{Origin: "WAW", Destinations: []string{"BCN", "LIS"}, Dates: []time.Time{d2, d1}}

	if a.Key() != b.Key() {
		t.Errorf("keys differ for reordered selectors: %s vs %s", a.Key(), b.Key())
	}
}

func TestSelectorKeyDistinguishesMode(t *testing.T) {
	d := time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)
	all := Selector{Origin: "WAW", Destinations: []string{"LIS"}, Dates: []time.Time{d}}
	flights := all
	flights.FlightsOnly = true

	if all.Key() == flights.Key() {
		t.Error("flights_only selector must have a distinct key")
	}
}

func TestRouteKeyStableAcrossClockTime(t *testing.T) {
	morning := Offer{Origin: "WAW", Destination: "LIS", ProviderID: "amadeus",
		Date: time.Date(2026, 7, 1, 6, 0, 0, 0, time.UTC)}
	evening := morning
	evening.Date = time.Date(2026, 7, 1, 22, 30, 0, 0, time.UTC)

	if morning.RouteKey() != evening.RouteKey() {
		t.Error("route key must depend on the calendar date only")
	}
}

func TestCategoryFilterMatches(t *testing.T) {
	flight := Offer{Kind: KindFlight, Destination: "LIS", Price: 300}
	hotel := Offer{Kind: KindHotel, Destination: "LIS", Price: 120, Hotel: &HotelAttributes{Stars: 4}}

	tests := []struct {
		name   string
		filter *CategoryFilter
		offer  Offer
		want   bool
	}{
		{"nil filter matches all", nil, flight, true},
		{"empty filter matches all", &CategoryFilter{}, flight, true},
		{"location case-insensitive", &CategoryFilter{Locations: []string{"lis"}}, flight, true},
		{"location mismatch", &CategoryFilter{Locations: []string{"BCN"}}, flight, false},
		{"within budget", &CategoryFilter{MaxPrice: 300}, flight, true},
		{"over budget", &CategoryFilter{MaxPrice: 299}, flight, false},
		{"stars satisfied", &CategoryFilter{MinStars: 4}, hotel, true},
		{"stars too low", &CategoryFilter{MinStars: 5}, hotel, false},
		{"stars exclude non-hotels", &CategoryFilter{MinStars: 1}, flight, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.Matches(tt.offer); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}
