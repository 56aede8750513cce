package main

import (
	"context"
	"errors"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/tripsniper/tripsniper/internal/config"
	"github.com/tripsniper/tripsniper/internal/db"
	"github.com/tripsniper/tripsniper/internal/pipeline"
	"github.com/tripsniper/tripsniper/internal/providers"
)

func main() {
	config.LoadEnv()

	spec := os.Getenv("RUN_PIPELINE_CRON")
	if spec == "" {
		spec = "0 * * * *"
	}
	if _, err := cron.ParseStandard(spec); err != nil {
		log.Fatalf("Invalid RUN_PIPELINE_CRON %q: %v", spec, err)
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

	orch := pipeline.New(db.NewStore(pool), fetchers, pipeline.Options{
		WeightsInline: os.Getenv("OFFER_WEIGHTS_JSON"),
		WeightsPath:   os.Getenv("OFFER_WEIGHTS_FILE"),
		Disabled:      disabled,
	})

	c := cron.New()
	_, err = c.AddFunc(spec, func() {
		runCtx, cancel := context.WithTimeout(ctx, 15*time.Minute)
		defer cancel()

		outcome, err := orch.Run(runCtx, sel)
		if errors.Is(err, pipeline.ErrRunInFlight) {
			log.Print("[scheduler] previous run still in flight, skipping tick")
			return
		}
		if err != nil {
			log.Printf("[scheduler] run rejected: %v", err)
			return
		}
		log.Printf("[scheduler] run finished with outcome %s", outcome.Outcome)
	})
	if err != nil {
		log.Fatalf("Failed to schedule pipeline: %v", err)
	}

	log.Printf("[scheduler] running %q for selector %s", spec, sel.Key())
	c.Start()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Print("[scheduler] shutting down")
	<-c.Stop().Done()
}
