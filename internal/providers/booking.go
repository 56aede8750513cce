package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
)

const bookingAdults = 2

// BookingFetcher fetches hotel offers from the booking-com18 RapidAPI
// endpoints. Hotel searches are slow, so this provider is suspending and
// runs concurrently with the flight fetchers.
type BookingFetcher struct {
	cfg    ProviderConfig
	client *Client
}

func NewBookingFetcher(cfg ProviderConfig, client *Client) (*BookingFetcher, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("booking RapidAPI key not set")
	}
	if cfg.Host == "" {
		return nil, fmt.Errorf("booking RapidAPI host not set")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://" + cfg.Host
	}
	if cfg.MaxResults == 0 {
		cfg.MaxResults = 30
	}
	if cfg.Currency == "" {
		cfg.Currency = "EUR"
	}
	client.Configure(cfg.Host, cfg.Fetch)
	return &BookingFetcher{cfg: cfg, client: client}, nil
}

func (f *BookingFetcher) ID() string             { return f.cfg.ID }
func (f *BookingFetcher) Kind() models.OfferKind { return models.KindHotel }
func (f *BookingFetcher) Mode() FetchMode        { return ModeSuspending }

func (f *BookingFetcher) Begin(ctx context.Context, q Query) *Pending {
	return BeginFunc(func() ([]RawOffer, error) { return f.Fetch(ctx, q) })
}

type bookingHotel struct {
	HotelID       int64   `json:"hotel_id"`
	MinTotalPrice float64 `json:"min_total_price"`
	ReviewScore   float64 `json:"review_score"`
	Class         int     `json:"class"`
}

type bookingSearchResponse struct {
	Result []bookingHotel `json:"result"`
}

// Fetch searches hotels for a one-night stay on the query date.
func (f *BookingFetcher) Fetch(ctx context.Context, q Query) ([]RawOffer, error) {
	checkin := q.Date.Format("2006-01-02")
	checkout := q.Date.AddDate(0, 0, 1).Format("2006-01-02")

	params := url.Values{}
	params.Set("checkin_date", checkin)
	params.Set("checkout_date", checkout)
	params.Set("adults_number", fmt.Sprintf("%d", bookingAdults))
	params.Set("dest_id", q.Destination)
	params.Set("dest_type", "city")
	params.Set("order_by", "price")
	params.Set("room_number", "1")
	params.Set("units", "metric")
	params.Set("locale", "en-gb")
	params.Set("filter_by_currency", f.cfg.Currency)
	params.Set("page_number", "0")
	params.Set("include_adjacency", "true")

	headers := map[string]string{
		"X-RapidAPI-Key":  f.cfg.APIKey,
		"X-RapidAPI-Host": f.cfg.Host,
	}

	var resp bookingSearchResponse
	err := f.client.DoJSON(ctx, http.MethodGet,
		f.cfg.BaseURL+"/v3/hotels/search?"+params.Encode(), headers, nil, &resp)
	if err != nil {
		return nil, &ProviderError{Provider: f.cfg.ID, Err: err}
	}

	fetchedAt := time.Now().UTC()
	results := resp.Result
	if len(results) > f.cfg.MaxResults {
		results = results[:f.cfg.MaxResults]
	}

	offers := make([]RawOffer, 0, len(results))
	for _, hotel := range results {
		offers = append(offers, RawOffer{
			Provider:  f.cfg.ID,
			Kind:      models.KindHotel,
			FetchedAt: fetchedAt,
			Fields: map[string]any{
				"id":          fmt.Sprintf("BK18-%d", hotel.HotelID),
				"origin":      q.Origin,
				"destination": q.Destination,
				"date":        checkin,
				"price":       hotel.MinTotalPrice / bookingAdults,
				"currency":    f.cfg.Currency,
				"rating":      hotel.ReviewScore,
				"stars":       hotel.Class,
			},
		})
	}
	return offers, nil
}
