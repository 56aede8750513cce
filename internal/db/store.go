package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tripsniper/tripsniper/internal/models"
	"github.com/tripsniper/tripsniper/internal/scoring"
)

// ErrNoBatch is returned when no published batch exists for a selector.
var ErrNoBatch = errors.New("no published batch")

type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// offerQuality is the JSONB payload holding the kind-specific attributes of
// one stored offer.
type offerQuality struct {
	Flight *models.FlightAttributes `json:"flight,omitempty"`
	Hotel  *models.HotelAttributes  `json:"hotel,omitempty"`
}

// SaveBatch writes a complete batch inside one transaction: the batch row
// lands unpublished, every offer is inserted, and only then is the batch
// flipped to published. Readers filtering on published never observe a
// half-written batch.
func (s *Store) SaveBatch(ctx context.Context, batch *models.RunBatch) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin failed: %w", err)
	}
	defer tx.Rollback(ctx)

	providerJSON, err := json.Marshal(batch.Providers)
	if err != nil {
		return fmt.Errorf("encoding provider status: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO run_batches (run_id, selector_key, outcome, provider_status, started_at, completed_at, published)
		VALUES ($1, $2, $3, $4, $5, $6, FALSE)
	`, batch.RunID, batch.SelectorKey, string(batch.Outcome), providerJSON, batch.StartedAt, batch.CompletedAt)
	if err != nil {
		return fmt.Errorf("inserting batch %s: %w", batch.RunID, err)
	}

	for _, offer := range batch.Offers {
		quality, err := json.Marshal(offerQuality{Flight: offer.Flight, Hotel: offer.Hotel})
		if err != nil {
			return fmt.Errorf("encoding offer quality: %w", err)
		}
		features, err := json.Marshal(offer.Features)
		if err != nil {
			return fmt.Errorf("encoding offer features: %w", err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO scored_offers
				(run_id, rank, kind, origin, destination, travel_date, price, currency,
				 reference_price, quality, features, steal_score, provider_id, source_id,
				 fetched_at, visible_from)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`, batch.RunID, offer.Rank, string(offer.Kind), offer.Origin, offer.Destination,
			offer.Date, offer.Price, offer.Currency, offer.ReferencePrice, quality,
			features, offer.StealScore, offer.ProviderID, offer.SourceID,
			offer.FetchedAt, offer.VisibleFrom)
		if err != nil {
			return fmt.Errorf("inserting offer rank %d: %w", offer.Rank, err)
		}
	}

	if _, err = tx.Exec(ctx, "UPDATE run_batches SET published = TRUE WHERE run_id = $1", batch.RunID); err != nil {
		return fmt.Errorf("publishing batch %s: %w", batch.RunID, err)
	}

	return tx.Commit(ctx)
}

// LatestBatch returns the most recently completed published batch for the
// selector, offers included in rank order. An empty selectorKey matches any
// selector.
func (s *Store) LatestBatch(ctx context.Context, selectorKey string) (*models.RunBatch, error) {
	where := "WHERE published"
	args := []interface{}{}
	if selectorKey != "" {
		where += " AND selector_key = $1"
		args = append(args, selectorKey)
	}

	row := s.pool.QueryRow(ctx, fmt.Sprintf(`
		SELECT run_id, selector_key, outcome, provider_status, started_at, completed_at
		FROM run_batches %s
		ORDER BY completed_at DESC
		LIMIT 1
	`, where), args...)

	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoBatch
		}
		return nil, fmt.Errorf("loading latest batch: %w", err)
	}

	offers, err := s.batchOffers(ctx, batch.RunID)
	if err != nil {
		return nil, err
	}
	batch.Offers = offers
	return batch, nil
}

// GetBatch loads one batch by run id, published or not.
func (s *Store) GetBatch(ctx context.Context, runID string) (*models.RunBatch, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT run_id, selector_key, outcome, provider_status, started_at, completed_at
		FROM run_batches
		WHERE run_id = $1
	`, runID)

	batch, err := scanBatch(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNoBatch
		}
		return nil, fmt.Errorf("loading batch %s: %w", runID, err)
	}

	offers, err := s.batchOffers(ctx, batch.RunID)
	if err != nil {
		return nil, err
	}
	batch.Offers = offers
	return batch, nil
}

func scanBatch(row pgx.Row) (*models.RunBatch, error) {
	var batch models.RunBatch
	var outcome string
	var providerJSON []byte
	if err := row.Scan(&batch.RunID, &batch.SelectorKey, &outcome, &providerJSON, &batch.StartedAt, &batch.CompletedAt); err != nil {
		return nil, err
	}
	batch.Outcome = models.Outcome(outcome)
	batch.Providers = map[string]models.ProviderStatus{}
	if len(providerJSON) > 0 {
		if err := json.Unmarshal(providerJSON, &batch.Providers); err != nil {
			return nil, fmt.Errorf("decoding provider status: %w", err)
		}
	}
	return &batch, nil
}

func (s *Store) batchOffers(ctx context.Context, runID string) ([]models.ScoredOffer, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT rank, kind, origin, destination, travel_date, price, currency,
			reference_price, quality, features, steal_score, provider_id, source_id,
			fetched_at, visible_from
		FROM scored_offers
		WHERE run_id = $1
		ORDER BY rank
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query offers failed: %w", err)
	}
	defer rows.Close()

	var offers []models.ScoredOffer
	for rows.Next() {
		var o models.ScoredOffer
		var kind string
		var qualityRaw, featuresRaw []byte
		err := rows.Scan(&o.Rank, &kind, &o.Origin, &o.Destination, &o.Date, &o.Price,
			&o.Currency, &o.ReferencePrice, &qualityRaw, &featuresRaw, &o.StealScore,
			&o.ProviderID, &o.SourceID, &o.FetchedAt, &o.VisibleFrom)
		if err != nil {
			return nil, fmt.Errorf("scan offer failed: %w", err)
		}
		o.Kind = models.OfferKind(kind)
		if len(qualityRaw) > 0 {
			var quality offerQuality
			if err := json.Unmarshal(qualityRaw, &quality); err == nil {
				o.Flight = quality.Flight
				o.Hotel = quality.Hotel
			}
		}
		if len(featuresRaw) > 0 {
			_ = json.Unmarshal(featuresRaw, &o.Features)
		}
		offers = append(offers, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return offers, nil
}

// PreviousPrices builds the route-to-price index of the latest published
// batch for the selector, used for novelty scoring in the next run. A
// missing previous batch is not an error; novelty then treats every offer
// as new.
func (s *Store) PreviousPrices(ctx context.Context, selectorKey string) (scoring.PriceIndex, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT o.origin, o.destination, o.travel_date, o.provider_id, o.price
		FROM scored_offers o
		JOIN run_batches b ON b.run_id = o.run_id
		WHERE b.run_id = (
			SELECT run_id FROM run_batches
			WHERE published AND selector_key = $1
			ORDER BY completed_at DESC
			LIMIT 1
		)
	`, selectorKey)
	if err != nil {
		return nil, fmt.Errorf("query previous prices failed: %w", err)
	}
	defer rows.Close()

	index := scoring.PriceIndex{}
	for rows.Next() {
		var origin, destination, providerID string
		var travelDate time.Time
		var price float64
		if err := rows.Scan(&origin, &destination, &travelDate, &providerID, &price); err != nil {
			return nil, fmt.Errorf("scan previous price failed: %w", err)
		}
		key := models.Offer{Origin: origin, Destination: destination, Date: travelDate, ProviderID: providerID}.RouteKey()
		index[key] = price
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return index, nil
}

// RecentRuns lists published batches newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]models.RunSummary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `
		SELECT b.run_id, b.selector_key, b.outcome, b.started_at, b.completed_at,
			(SELECT COUNT(*) FROM scored_offers o WHERE o.run_id = b.run_id)
		FROM run_batches b
		WHERE b.published
		ORDER BY b.completed_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query runs failed: %w", err)
	}
	defer rows.Close()

	var runs []models.RunSummary
	for rows.Next() {
		var r models.RunSummary
		var outcome string
		if err := rows.Scan(&r.RunID, &r.SelectorKey, &outcome, &r.StartedAt, &r.CompletedAt, &r.OfferCount); err != nil {
			return nil, fmt.Errorf("scan run failed: %w", err)
		}
		r.Outcome = models.Outcome(outcome)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration failed: %w", err)
	}
	return runs, nil
}
