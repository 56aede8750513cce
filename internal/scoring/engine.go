package scoring

import (
	"fmt"
	"sort"
	"time"

	"github.com/tripsniper/tripsniper/internal/models"
)

// Engine computes feature scores and the composite steal score for one run.
// All inputs are fixed at construction so scoring is deterministic: the same
// offers, weights, reference time and previous prices always produce the
// same ranked output.
type Engine struct {
	Weights  WeightTable
	Now      time.Time
	Previous PriceIndex
	Filter   *models.CategoryFilter
}

type cohortStats struct {
	min float64
	max float64
}

func cohortKey(o models.Offer) string {
	return fmt.Sprintf("%s|%s", o.Destination, o.Date.UTC().Format("2006-01-02"))
}

// ScoreAll scores every offer against the whole run set and returns them
// ranked descending by steal score, ties broken by fetched_at ascending,
// then provider id, then source id lexical order.
func (e *Engine) ScoreAll(offers []models.Offer) []models.ScoredOffer {
	cohorts := make(map[string]cohortStats)
	for _, o := range offers {
		key := cohortKey(o)
		st, ok := cohorts[key]
		if !ok {
			cohorts[key] = cohortStats{min: o.Price, max: o.Price}
			continue
		}
		if o.Price < st.min {
			st.min = o.Price
		}
		if o.Price > st.max {
			st.max = o.Price
		}
		cohorts[key] = st
	}

	// Float addition is not associative, so the weighted sum runs over the
	// weight keys in a fixed lexical order. Ranging over the map directly
	// would make repeated runs disagree in the last bits.
	weightNames := make([]string, 0, len(e.Weights))
	for name := range e.Weights {
		weightNames = append(weightNames, name)
	}
	sort.Strings(weightNames)

	scored := make([]models.ScoredOffer, 0, len(offers))
	for _, o := range offers {
		st := cohorts[cohortKey(o)]
		features := models.FeatureScores{
			FeatureDiscountPct:   DiscountPct(o),
			FeatureAbsolutePrice: AbsolutePriceScore(o, st.min, st.max),
			FeatureHotelQuality:  HotelQuality(o),
			FeatureFlightComfort: FlightComfort(o),
			FeatureUrgency:       UrgencyScore(o, e.Now),
			FeatureNovelty:       NoveltyScore(o, e.Previous),
			FeatureCategoryMatch: CategoryMatch(o, e.Filter),
		}

		// Every key of the active weight table gets an entry, defaulting
		// to 0 when the feature is not computable for this offer kind.
		var score float64
		for _, name := range weightNames {
			if _, ok := features[name]; !ok {
				features[name] = 0
			}
			score += e.Weights[name] * features[name]
		}

		scored = append(scored, models.ScoredOffer{
			Offer:      o,
			Features:   features,
			StealScore: score,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		a, b := scored[i], scored[j]
		if a.StealScore != b.StealScore {
			return a.StealScore > b.StealScore
		}
		if !a.FetchedAt.Equal(b.FetchedAt) {
			return a.FetchedAt.Before(b.FetchedAt)
		}
		if a.ProviderID != b.ProviderID {
			return a.ProviderID < b.ProviderID
		}
		return a.SourceID < b.SourceID
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}
	return scored
}
