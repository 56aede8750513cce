package scoring

import (
	"encoding/json"
	"fmt"
	"os"
)

// Feature names known to the score engine. The weight table keys are always
// a subset of this set.
const (
	FeatureDiscountPct   = "discount_pct"
	FeatureAbsolutePrice = "absolute_price_score"
	FeatureHotelQuality  = "hotel_quality"
	FeatureFlightComfort = "flight_comfort"
	FeatureUrgency       = "urgency_score"
	FeatureNovelty       = "novelty_score"
	FeatureCategoryMatch = "category_match"
)

// WeightTable maps feature name to a non-negative weight. The score is a
// weighted sum, not a convex combination, so the table need not sum to 1.
type WeightTable map[string]float64

// DefaultWeights returns a fresh copy of the compiled-in weight table.
func DefaultWeights() WeightTable {
	return WeightTable{
		FeatureDiscountPct:   0.25,
		FeatureAbsolutePrice: 0.20,
		FeatureHotelQuality:  0.20,
		FeatureFlightComfort: 0.15,
		FeatureUrgency:       0.05,
		FeatureNovelty:       0.05,
		FeatureCategoryMatch: 0.10,
	}
}

// ConfigError reports a malformed weight override. The caller is expected to
// fall back to defaults rather than abort the run.
type ConfigError struct {
	Source string // "inline" or the file path
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid weight override (%s): %v", e.Source, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// ResolveWeights produces the effective weight table for a run. Precedence:
// inline JSON text, then a JSON file at path, then defaults. The merge is
// per-key over a copy of defaults; keys not present in defaults and negative
// values are ignored. A malformed override returns the untouched defaults
// copy together with a *ConfigError.
func ResolveWeights(inline, path string, defaults WeightTable) (WeightTable, error) {
	merged := make(WeightTable, len(defaults))
	for k, v := range defaults {
		merged[k] = v
	}

	var (
		data   []byte
		source string
	)
	switch {
	case inline != "":
		data = []byte(inline)
		source = "inline"
	case path != "":
		b, err := os.ReadFile(path)
		if err != nil {
			return merged, &ConfigError{Source: path, Err: err}
		}
		data = b
		source = path
	default:
		return merged, nil
	}

	var override map[string]float64
	if err := json.Unmarshal(data, &override); err != nil {
		return merged, &ConfigError{Source: source, Err: err}
	}

	for k, v := range override {
		if _, known := defaults[k]; !known {
			continue
		}
		if v < 0 {
			continue
		}
		merged[k] = v
	}
	return merged, nil
}
