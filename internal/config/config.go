package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/tripsniper/tripsniper/internal/models"
)

// LoadEnv loads a .env file when present. Missing files are fine; real
// deployments set the environment directly.
func LoadEnv() {
	if err := godotenv.Load(); err == nil {
		log.Print("[config] loaded .env")
	}
}

// SelectorFromEnv builds the run selector from the environment:
//
//	ORIGIN_IATA   origin airport code, default WAW
//	DESTINATIONS  comma-separated destination codes
//	DATES         comma-separated travel dates (YYYY-MM-DD)
//	FLIGHTS_ONLY  "1" restricts the run to flight providers
func SelectorFromEnv() (models.Selector, error) {
	origin := strings.TrimSpace(os.Getenv("ORIGIN_IATA"))
	if origin == "" {
		origin = "WAW"
	}

	destinations := splitList(os.Getenv("DESTINATIONS"))
	if len(destinations) == 0 {
		return models.Selector{}, fmt.Errorf("DESTINATIONS must list at least one destination")
	}

	rawDates := splitList(os.Getenv("DATES"))
	if len(rawDates) == 0 {
		return models.Selector{}, fmt.Errorf("DATES must list at least one travel date")
	}
	dates := make([]time.Time, 0, len(rawDates))
	for _, raw := range rawDates {
		d, err := time.Parse("2006-01-02", raw)
		if err != nil {
			return models.Selector{}, fmt.Errorf("parsing date %q: %w", raw, err)
		}
		dates = append(dates, d.UTC())
	}

	return models.Selector{
		Origin:       origin,
		Destinations: destinations,
		Dates:        dates,
		FlightsOnly:  os.Getenv("FLIGHTS_ONLY") == "1",
	}, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
