package providers

import (
	"embed"
	"fmt"
	"log"
	"os"

	"github.com/tripsniper/tripsniper/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed config/providers.yaml
var providersYAML embed.FS

// Registry holds the configuration for all offer providers.
type Registry struct {
	Providers []ProviderConfig `yaml:"providers"`
}

// FetchConfig defines HTTP fetching configuration for a provider.
type FetchConfig struct {
	TimeoutSeconds int     `yaml:"timeout_seconds,omitempty"` // Default: 20
	MaxRetries     int     `yaml:"max_retries,omitempty"`     // Default: 3
	RateLimitRPS   float64 `yaml:"rate_limit_rps,omitempty"`  // Requests per second, default: 1.0
}

// ProviderConfig defines a single offer provider.
type ProviderConfig struct {
	ID         string      `yaml:"id"`
	Kind       string      `yaml:"kind"` // "flight", "hotel"
	Enabled    bool        `yaml:"enabled"`
	BaseURL    string      `yaml:"base_url,omitempty"`
	APIKey     string      `yaml:"api_key,omitempty"`
	APISecret  string      `yaml:"api_secret,omitempty"`
	Host       string      `yaml:"host,omitempty"`
	Currency   string      `yaml:"currency,omitempty"`
	MaxResults int         `yaml:"max_results,omitempty"`
	MaxPages   int         `yaml:"max_pages,omitempty"`
	Fetch      FetchConfig `yaml:"fetch,omitempty"`
}

// LoadRegistry reads the embedded providers.yaml, falling back to the given
// filesystem path for local overrides. Environment variables in the YAML
// (e.g. ${AMADEUS_API_KEY}) are expanded before parsing.
func LoadRegistry(path string) (*Registry, error) {
	data, err := providersYAML.ReadFile("config/providers.yaml")
	if path != "" {
		fileData, fileErr := os.ReadFile(path)
		if fileErr != nil {
			log.Printf("[providers] registry override %s unreadable: %v, using embedded registry", path, fileErr)
		} else {
			data, err = fileData, nil
		}
	}
	if err != nil {
		return nil, err
	}

	expanded := os.ExpandEnv(string(data))

	var reg Registry
	if err := yaml.Unmarshal([]byte(expanded), &reg); err != nil {
		return nil, err
	}
	return &reg, nil
}

// Build constructs fetchers for every usable provider in the registry and a
// preset status map for the rest. Providers disabled by config, or missing
// credentials, contribute no fetchers and are reported as disabled rather
// than failed.
func Build(reg *Registry, client *Client) ([]Fetcher, map[string]models.ProviderStatus) {
	var fetchers []Fetcher
	preset := make(map[string]models.ProviderStatus)

	for _, cfg := range reg.Providers {
		if !cfg.Enabled {
			preset[cfg.ID] = models.ProviderStatus{State: models.ProviderDisabled, Reason: "disabled by configuration"}
			continue
		}
		f, err := newFetcher(cfg, client)
		if err != nil {
			log.Printf("[providers] %s not usable: %v", cfg.ID, err)
			preset[cfg.ID] = models.ProviderStatus{State: models.ProviderDisabled, Reason: err.Error()}
			continue
		}
		fetchers = append(fetchers, f)
	}
	return fetchers, preset
}

func newFetcher(cfg ProviderConfig, client *Client) (Fetcher, error) {
	switch cfg.ID {
	case "amadeus":
		return NewAmadeusFetcher(cfg, client)
	case "skyscanner":
		return NewSkyscannerFetcher(cfg, client)
	case "booking":
		return NewBookingFetcher(cfg, client)
	default:
		return nil, fmt.Errorf("unknown provider id %q", cfg.ID)
	}
}
