package main

import (
	"context"
	"log"
	"os"

	"github.com/tripsniper/tripsniper/internal/api"
	"github.com/tripsniper/tripsniper/internal/config"
	"github.com/tripsniper/tripsniper/internal/db"
	"github.com/tripsniper/tripsniper/internal/pipeline"
	"github.com/tripsniper/tripsniper/internal/providers"
)

func main() {
	config.LoadEnv()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8082"
	}

	ctx := context.Background()
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

	store := db.NewStore(pool)
	orch := pipeline.New(store, fetchers, pipeline.Options{
		WeightsInline: os.Getenv("OFFER_WEIGHTS_JSON"),
		WeightsPath:   os.Getenv("OFFER_WEIGHTS_FILE"),
		Disabled:      disabled,
	})

	srv := api.NewServer(store, orch, sel)
	log.Printf("Server starting on port %s...", port)
	if err := srv.Start(port); err != nil {
		log.Fatal(err)
	}
}
