package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/tripsniper/tripsniper/internal/config"
	"github.com/tripsniper/tripsniper/internal/db"
	"github.com/tripsniper/tripsniper/internal/pipeline"
	"github.com/tripsniper/tripsniper/internal/providers"
)

func main() {
	config.LoadEnv()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}

	sel, err := config.SelectorFromEnv()
	if err != nil {
		log.Fatalf("Invalid selector configuration: %v", err)
	}

	reg, err := providers.LoadRegistry(os.Getenv("PROVIDERS_CONFIG"))
	if err != nil {
		log.Fatalf("Failed to load provider registry: %v", err)
	}
	fetchers, disabled := providers.Build(reg, providers.NewClient(providers.FetchConfig{}))

	orch := pipeline.New(db.NewStore(pool), fetchers, pipeline.Options{
		WeightsInline: os.Getenv("OFFER_WEIGHTS_JSON"),
		WeightsPath:   os.Getenv("OFFER_WEIGHTS_FILE"),
		Disabled:      disabled,
	})

	outcome, err := orch.Run(ctx, sel)
	if err != nil {
		log.Fatalf("Run rejected: %v", err)
	}
	if outcome.Err != nil {
		log.Fatalf("Run failed: %v", outcome.Err)
	}

	offers := 0
	if outcome.Batch != nil {
		offers = len(outcome.Batch.Offers)
	}
	log.Printf("Run finished: outcome=%s offers=%d", outcome.Outcome, offers)
	for id, st := range outcome.Providers {
		log.Printf("  %s: %s fetched=%d skipped=%d %s", id, st.State, st.Fetched, st.Skipped, st.Reason)
	}
}
