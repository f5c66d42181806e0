package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/polyglotta/polyglotta-backend/internal/app"
)

func main() {
	path := flag.String("catalog", "", "path to the yaml concept catalog")
	timeout := flag.Duration("timeout", 10*time.Minute, "overall seeding timeout")
	flag.Parse()

	if *path == "" {
		fmt.Println("usage: seed_concepts -catalog <file.yaml>")
		os.Exit(2)
	}

	a, err := app.New()
	if err != nil {
		fmt.Printf("Failed to start: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	count, err := a.Services.Seed.SeedFromFile(ctx, *path)
	if err != nil {
		a.Log.Error("Seeding failed", "path", *path, "error", err.Error())
		a.Stop(context.Background())
		os.Exit(1)
	}
	a.Log.Info("Seeding complete", "path", *path, "concepts", count)
	a.Stop(context.Background())
}
