package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
)

// SkyscannerFetcher fetches flight offers from the Skyscanner extended
// search API. Searches there poll a result set that fills in over several
// seconds, so this provider is suspending: Begin launches the paginated
// fetch and the coordinator awaits the handle.
type SkyscannerFetcher struct {
	cfg    ProviderConfig
	client *Client
}

func NewSkyscannerFetcher(cfg ProviderConfig, client *Client) (*SkyscannerFetcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("skyscanner API key not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://partners.api.skyscanner.net"
	}
	if cfg.MaxPages == 0 {
		cfg.MaxPages = 3
	}
	if u, err := url.Parse(cfg.BaseURL); err == nil {
		client.Configure(u.Host, cfg.Fetch)
	}
	return &SkyscannerFetcher{cfg: cfg, client: client}, nil
}

func (f *SkyscannerFetcher) ID() string             { return f.cfg.ID }
func (f *SkyscannerFetcher) Kind() models.OfferKind { return models.KindFlight }
func (f *SkyscannerFetcher) Mode() FetchMode        { return ModeSuspending }

func (f *SkyscannerFetcher) Begin(ctx context.Context, q Query) *Pending {
	return BeginFunc(func() ([]RawOffer, error) { return f.Fetch(ctx, q) })
}

type skyscannerItinerary struct {
	ID              string  `json:"id"`
	Price           float64 `json:"price"`
	AveragePrice    float64 `json:"averagePrice"`
	Currency        string  `json:"currency"`
	Direct          bool    `json:"direct"`
	StopCount       int     `json:"stopCount"`
	DurationMinutes int     `json:"durationMinutes"`
}

type skyscannerSearchResponse struct {
	Itineraries   []skyscannerItinerary `json:"itineraries"`
	NextPageToken string                `json:"nextPageToken"`
}

// Fetch pages through the extended search results until the API stops
// returning a next-page token or the configured page cap is reached.
func (f *SkyscannerFetcher) Fetch(ctx context.Context, q Query) ([]RawOffer, error) {
	var offers []RawOffer
	nextPageToken := ""

	for page := 0; page < f.cfg.MaxPages; page++ {
		params := url.Values{}
		params.Set("origin", q.Origin)
		params.Set("destination", q.Destination)
		params.Set("date", q.Date.Format("2006-01-02"))
		params.Set("page", fmt.Sprintf("%d", page))
		if nextPageToken != "" {
			params.Set("next_page_token", nextPageToken)
		}

		var resp skyscannerSearchResponse
		err := f.client.DoJSON(ctx, http.MethodGet,
			f.cfg.BaseURL+"/apiservices/v3/flights/extended-search?"+params.Encode(),
			map[string]string{"apikey": f.cfg.APIKey}, nil, &resp)
		if err != nil {
			return nil, &ProviderError{Provider: f.cfg.ID, Err: err}
		}

		fetchedAt := time.Now().UTC()
		for _, it := range resp.Itineraries {
			offers = append(offers, RawOffer{
				Provider:  f.cfg.ID,
				Kind:      models.KindFlight,
				FetchedAt: fetchedAt,
				Fields: map[string]any{
					"id":               it.ID,
					"origin":           q.Origin,
					"destination":      q.Destination,
					"date":             q.Date.Format("2006-01-02"),
					"price":            it.Price,
					"reference_price":  it.AveragePrice,
					"currency":         it.Currency,
					"direct":           it.Direct,
					"stops":            it.StopCount,
					"duration_minutes": it.DurationMinutes,
				},
			})
		}

		nextPageToken = resp.NextPageToken
		if nextPageToken == "" {
			break
		}
	}
	return offers, nil
}
