package scoring

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultWeightsCoverAllFeatures(t *testing.T) {
	defaults := DefaultWeights()

	features := []string{
		FeatureDiscountPct,
		FeatureAbsolutePrice,
		FeatureHotelQuality,
		FeatureFlightComfort,
		FeatureUrgency,
		FeatureNovelty,
		FeatureCategoryMatch,
	}
	for _, name := range features {
		if _, ok := defaults[name]; !ok {
			t.Errorf("default weights missing %s", name)
		}
	}
	if len(defaults) != len(features) {
		t.Errorf("expected %d default weights, got %d", len(features), len(defaults))
	}
}

func TestResolveWeights(t *testing.T) {
	tests := []struct {
		name    string
		inline  string
		path    string
		want    map[string]float64
		wantErr bool
	}{
		{
			name:   "no overrides returns defaults",
			inline: "",
			path:   "",
			want:   map[string]float64{FeatureDiscountPct: 0.25, FeatureHotelQuality: 0.20},
		},
		{
			name:   "subset override merges over defaults",
			inline: `{"discount_pct": 0.5}`,
			want:   map[string]float64{FeatureDiscountPct: 0.5, FeatureHotelQuality: 0.20},
		},
		{
			name:   "unknown keys are ignored",
			inline: `{"discount_pct": 0.5, "made_up_feature": 0.9}`,
			want:   map[string]float64{FeatureDiscountPct: 0.5},
		},
		{
			name:   "negative values are ignored",
			inline: `{"discount_pct": -1}`,
			want:   map[string]float64{FeatureDiscountPct: 0.25},
		},
		{
			name:    "malformed json returns defaults and error",
			inline:  `{not json`,
			want:    map[string]float64{FeatureDiscountPct: 0.25, FeatureHotelQuality: 0.20},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWeights(tt.inline, tt.path, DefaultWeights())
			if tt.wantErr {
				var cfgErr *ConfigError
				if !errors.As(err, &cfgErr) {
					t.Fatalf("expected *ConfigError, got %v", err)
				}
			} else if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("weight %s = %v, want %v", k, got[k], v)
				}
			}
		})
	}
}

func TestResolveWeightsInlineBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")
	if err := os.WriteFile(path, []byte(`{"discount_pct": 0.9}`), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveWeights(`{"discount_pct": 0.1}`, path, DefaultWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[FeatureDiscountPct] != 0.1 {
		t.Errorf("inline override lost to file: got %v", got[FeatureDiscountPct])
	}
}

func TestResolveWeightsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weights.json")
	if err := os.WriteFile(path, []byte(`{"urgency_score": 0.4}`), 0o600); err != nil {
		t.Fatal(err)
	}

	got, err := ResolveWeights("", path, DefaultWeights())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got[FeatureUrgency] != 0.4 {
		t.Errorf("file override not applied: got %v", got[FeatureUrgency])
	}
}

func TestResolveWeightsUnreadableFile(t *testing.T) {
	got, err := ResolveWeights("", filepath.Join(t.TempDir(), "missing.json"), DefaultWeights())
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected *ConfigError, got %v", err)
	}
	if got[FeatureDiscountPct] != 0.25 {
		t.Errorf("defaults not preserved after unreadable file: got %v", got[FeatureDiscountPct])
	}
}

func TestDefaultWeightsReturnsCopy(t *testing.T) {
	a := DefaultWeights()
	a[FeatureDiscountPct] = 99

	if DefaultWeights()[FeatureDiscountPct] == 99 {
		t.Fatal("mutating a returned table leaked into the defaults")
	}
}
