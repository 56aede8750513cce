package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/tripsniper/tripsniper/internal/db"
)

func main() {
	ctx := context.Background()
	pool, err := db.Connect(ctx)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	store := db.NewStore(pool)
	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		log.Fatal(err)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Run", "Selector", "Outcome", "Offers", "Duration", "Completed At"})

	for _, r := range runs {
		duration := r.CompletedAt.Sub(r.StartedAt).Round(time.Second).String()
		t.AppendRow(table.Row{shortID(r.RunID), r.SelectorKey, r.Outcome, r.OfferCount, duration, r.CompletedAt.Format("2006-01-02 15:04:05")})
	}
	t.Render()

	fmt.Printf("%d runs\n", len(runs))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
