package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
)

// fastClient keeps provider tests snappy: no retries, generous rate limit.
func fastClient() *Client {
	return NewClient(FetchConfig{TimeoutSeconds: 5, MaxRetries: 1, RateLimitRPS: 1000})
}

func testQuery() Query {
	return Query{Origin: "WAW", Destination: "LIS", Date: time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC)}
}

func TestAmadeusFetch(t *testing.T) {
	var tokenCalls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/security/oauth2/token":
			tokenCalls++
			if err := r.ParseForm(); err != nil || r.Form.Get("grant_type") != "client_credentials" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 1800})
		case "/v2/shopping/flight-offers":
			if r.Header.Get("Authorization") != "Bearer tok-1" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			if r.URL.Query().Get("originLocationCode") != "WAW" {
				w.WriteHeader(http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(map[string]any{
				"data": []map[string]any{
					{
						"id": "1",
						"itineraries": []map[string]any{{
							"segments": []map[string]any{{
								"departure": map[string]any{"at": "2026-07-01T06:00:00"},
								"arrival":   map[string]any{"at": "2026-07-01T10:05:00"},
							}},
						}},
						"price": map[string]any{"grandTotal": "437.50", "currency": "PLN"},
					},
					{
						// No segments: must be skipped, not fail the fetch.
						"id":          "2",
						"itineraries": []map[string]any{},
						"price":       map[string]any{"grandTotal": "100.00", "currency": "PLN"},
					},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()

	f, err := NewAmadeusFetcher(ProviderConfig{
		ID: "amadeus", APIKey: "key", APISecret: "secret", BaseURL: srv.URL,
	}, fastClient())
	if err != nil {
		t.Fatal(err)
	}

	offers, err := f.Fetch(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("offers = %d, want 1", len(offers))
	}

	fields := offers[0].Fields
	if fields["price"] != "437.50" || fields["currency"] != "PLN" {
		t.Errorf("price fields = %v / %v", fields["price"], fields["currency"])
	}
	if fields["direct"] != true || fields["stops"] != 0 {
		t.Errorf("segment fields = %v / %v", fields["direct"], fields["stops"])
	}
	if fields["duration_minutes"] != 245 {
		t.Errorf("duration = %v, want 245", fields["duration_minutes"])
	}

	// Second fetch reuses the cached token.
	if _, err := f.Fetch(context.Background(), testQuery()); err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if tokenCalls != 1 {
		t.Errorf("token endpoint called %d times, want 1", tokenCalls)
	}
}

func TestAmadeusRequiresCredentials(t *testing.T) {
	if _, err := NewAmadeusFetcher(ProviderConfig{ID: "amadeus"}, fastClient()); err == nil {
		t.Fatal("expected error for missing credentials")
	}
}

func TestSkyscannerFetchPaginates(t *testing.T) {
	var pages []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("apikey") != "sky-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		page := r.URL.Query().Get("page")
		pages = append(pages, page)

		resp := map[string]any{
			"itineraries": []map[string]any{{
				"id": "it-" + page, "price": 320.0, "averagePrice": 400.0,
				"currency": "EUR", "direct": false, "stopCount": 1, "durationMinutes": 310,
			}},
		}
		if page == "0" {
			resp["nextPageToken"] = "tok-next"
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	f, err := NewSkyscannerFetcher(ProviderConfig{
		ID: "skyscanner", APIKey: "sky-key", BaseURL: srv.URL, MaxPages: 5,
	}, fastClient())
	if err != nil {
		t.Fatal(err)
	}

	offers, err := f.Begin(context.Background(), testQuery()).Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 2 {
		t.Fatalf("offers = %d, want 2 (one per page)", len(offers))
	}
	if len(pages) != 2 {
		t.Errorf("pages requested = %v, want 2 then stop on empty token", pages)
	}
	if offers[0].Fields["reference_price"] != 400.0 {
		t.Errorf("reference price = %v", offers[0].Fields["reference_price"])
	}
}

func TestSkyscannerFetchRespectsPageCap(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Always hand back a token, forcing the cap to stop the loop.
		json.NewEncoder(w).Encode(map[string]any{
			"itineraries":   []map[string]any{{"id": "x", "price": 100.0}},
			"nextPageToken": "more",
		})
	}))
	defer srv.Close()

	f, err := NewSkyscannerFetcher(ProviderConfig{
		ID: "skyscanner", APIKey: "k", BaseURL: srv.URL, MaxPages: 3,
	}, fastClient())
	if err != nil {
		t.Fatal(err)
	}

	offers, err := f.Fetch(context.Background(), testQuery())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 || len(offers) != 3 {
		t.Errorf("calls = %d offers = %d, want 3 each", calls, len(offers))
	}
}

func TestBookingFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-RapidAPI-Key") != "rapid-key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		q := r.URL.Query()
		if q.Get("checkin_date") != "2026-07-01" || q.Get("checkout_date") != "2026-07-02" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"result": []map[string]any{
				{"hotel_id": 77, "min_total_price": 240.0, "review_score": 8.6, "class": 4},
				{"hotel_id": 78, "min_total_price": 300.0, "review_score": 7.1, "class": 3},
			},
		})
	}))
	defer srv.Close()

	f, err := NewBookingFetcher(ProviderConfig{
		ID: "booking", APIKey: "rapid-key", Host: "test-host", BaseURL: srv.URL, MaxResults: 1,
	}, fastClient())
	if err != nil {
		t.Fatal(err)
	}

	offers, err := f.Begin(context.Background(), testQuery()).Await(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(offers) != 1 {
		t.Fatalf("offers = %d, want 1 (max_results cap)", len(offers))
	}

	fields := offers[0].Fields
	if fields["id"] != "BK18-77" {
		t.Errorf("id = %v", fields["id"])
	}
	// Per-person price: total split across the booked adults.
	if fields["price"] != 120.0 {
		t.Errorf("price = %v, want 120", fields["price"])
	}
	if fields["rating"] != 8.6 || fields["stars"] != 4 {
		t.Errorf("quality fields = %v / %v", fields["rating"], fields["stars"])
	}
	if offers[0].Kind != models.KindHotel {
		t.Errorf("kind = %s", offers[0].Kind)
	}
}

func TestBookingRequiresHostAndKey(t *testing.T) {
	if _, err := NewBookingFetcher(ProviderConfig{ID: "booking", APIKey: "k"}, fastClient()); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewBookingFetcher(ProviderConfig{ID: "booking", Host: "h"}, fastClient()); err == nil {
		t.Fatal("expected error for missing key")
	}
}

func TestDoJSONRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"ok": "yes"})
	}))
	defer srv.Close()

	client := NewClient(FetchConfig{TimeoutSeconds: 5, MaxRetries: 3, RateLimitRPS: 1000})
	var out map[string]string
	if err := client.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
	if out["ok"] != "yes" {
		t.Errorf("decoded body = %v", out)
	}
}

func TestDoJSONDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer srv.Close()

	client := fastClient()
	var out map[string]string
	if err := client.DoJSON(context.Background(), http.MethodGet, srv.URL, nil, nil, &out); err == nil {
		t.Fatal("expected error for 400 response")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retry on 4xx)", calls)
	}
}

func TestPendingAwaitHonorsContext(t *testing.T) {
	blocked := make(chan struct{})
	p := BeginFunc(func() ([]RawOffer, error) {
		<-blocked
		return nil, nil
	})
	defer close(blocked)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := p.Await(ctx); err != context.DeadlineExceeded {
		t.Errorf("err = %v, want deadline exceeded", err)
	}
}
