package providers

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
)

// AmadeusFetcher fetches flight offers from the Amadeus flight offers search
// API. Amadeus responds fast enough to be the pipeline's immediate provider.
type AmadeusFetcher struct {
	cfg    ProviderConfig
	client *Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewAmadeusFetcher(cfg ProviderConfig, client *Client) (*AmadeusFetcher, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" {
		return nil, fmt.Errorf("amadeus credentials not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://test.api.amadeus.com"
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 20
	}
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		client.Configure(u.Host, cfg.Fetch)
	}
	return &AmadeusFetcher{cfg: cfg, client: client}, nil
}

func (f *AmadeusFetcher) ID() string             { return f.cfg.ID }
func (f *AmadeusFetcher) Kind() models.OfferKind { return models.KindFlight }
func (f *AmadeusFetcher) Mode() FetchMode        { return ModeImmediate }

// Begin satisfies the suspending half of the interface; the coordinator does
// not use it for immediate providers.
func (f *AmadeusFetcher) Begin(ctx context.Context, q Query) *Pending {
	return BeginFunc(func() ([]RawOffer, error) { return f.Fetch(ctx, q) })
}

type amadeusTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

type amadeusSegment struct {
	Departure struct {
		At string `json:"at"`
	} `json:"departure"`
	Arrival struct {
		At string `json:"at"`
	} `json:"arrival"`
}

type amadeusFlightOffer struct {
	ID          string `json:"id"`
	Itineraries []struct {
		Segments []amadeusSegment `json:"segments"`
	} `json:"itineraries"`
	Price struct {
		GrandTotal string `json:"grandTotal"`
		Currency   string `json:"currency"`
	} `json:"price"`
}

type amadeusSearchResponse struct {
	Data []amadeusFlightOffer `json:"data"`
}

func (f *AmadeusFetcher) token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accessToken != "" && time.Now().Before(f.tokenExpiry) {
		return f.accessToken, nil
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", f.cfg.APIKey)
	form.Set("client_secret", f.cfg.APISecret)

	var resp amadeusTokenResponse
	err := f.client.DoJSON(ctx, http.MethodPost, f.cfg.BaseURL+"/v1/security/oauth2/token",
		map[string]string{"Content-Type": "application/x-www-form-urlencoded"},
		[]byte(form.Encode()), &resp)
	if err != nil {
		return "", fmt.Errorf("authenticating: %w", err)
	}
	if resp.AccessToken == "" {
		return "", fmt.Errorf("authentication returned empty token")
	}

	f.accessToken = resp.AccessToken
	// Refresh one minute early to avoid racing the expiry.
	f.tokenExpiry = time.Now().Add(time.Duration(resp.ExpiresIn-60) * time.Second)
	return f.accessToken, nil
}

// Fetch searches flight offers for one origin/destination/date cell.
func (f *AmadeusFetcher) Fetch(ctx context.Context, q Query) ([]RawOffer, error) {
	token, err := f.token(ctx)
	if err != nil {
		return nil, &ProviderError{Provider: f.cfg.ID, Err: err}
	}

	params := url.Values{}
	params.Set("originLocationCode", q.Origin)
	params.Set("destinationLocationCode", q.Destination)
	params.Set("departureDate", q.Date.Format("2006-01-02"))
	params.Set("adults", "1")
	if f.cfg.Currency != "" {
		params.Set("currencyCode", f.cfg.Currency)
	}
	params.Set("max", fmt.Sprintf("%d", f.cfg.MaxResults))

	var resp amadeusSearchResponse
	err = f.client.DoJSON(ctx, http.MethodGet,
		f.cfg.BaseURL+"/v2/shopping/flight-offers?"+params.Encode(),
		map[string]string{"Authorization": "Bearer " + token}, nil, &resp)
	if err != nil {
		return nil, &ProviderError{Provider: f.cfg.ID, Err: err}
	}

	fetchedAt := time.Now().UTC()
	offers := make([]RawOffer, 0, len(resp.Data))
	for _, item := range resp.Data {
		if len(item.Itineraries) == 0 || len(item.Itineraries[0].Segments) == 0 {
			log.Printf("[amadeus] offer %s has no segments, skipping", item.ID)
			continue
		}
		segments := item.Itineraries[0].Segments
		duration := 0
		dep, depErr := parseAmadeusTime(segments[0].Departure.At)
		arr, arrErr := parseAmadeusTime(segments[len(segments)-1].Arrival.At)
		if depErr == nil && arrErr == nil && arr.After(dep) {
			duration = int(arr.Sub(dep).Minutes())
		}

		offers = append(offers, RawOffer{
			Provider:  f.cfg.ID,
			Kind:      models.KindFlight,
			FetchedAt: fetchedAt,
			Fields: map[string]any{
				"id":               item.ID,
				"origin":           q.Origin,
				"destination":      q.Destination,
				"date":             q.Date.Format("2006-01-02"),
				"price":            item.Price.GrandTotal,
				"currency":         item.Price.Currency,
				"direct":           len(segments) == 1,
				"stops":            len(segments) - 1,
				"duration_minutes": duration,
			},
		})
	}
	return offers, nil
}

func parseAmadeusTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	// Amadeus omits the zone designator on local times.
	return time.Parse("2006-01-02T15:04:05", value)
}
