package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"slotbook/internal/catalog"
	"slotbook/internal/database"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	var (
		catalogPath = flag.String("catalog", "configs/catalog.yaml", "path to catalog.yaml")
		dbPath      = flag.String("db", "./data/slotbook.db", "path to sqlite db")
		dryRun      = flag.Bool("dry-run", false, "validate the catalog without writing")
	)
	flag.Parse()

	c, err := catalog.Load(*catalogPath)
	if err != nil {
		return err
	}
	if *dryRun {
		fmt.Printf("catalog ok: services=%d staff=%d\n", len(c.Services), len(c.Staff))
		return nil
	}

	db, err := database.NewDB(*dbPath, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	res, err := catalog.Apply(ctx, db, c, time.Now().UTC(), &logger)
	if err != nil {
		return err
	}

	fmt.Printf("done: services=%d staff=%d assignments=%d schedules=%d operating=%d skipped=%d\n",
		res.Services, res.Staff, res.Assignments, res.Schedules, res.OperatingSchedules, res.Skipped)
	return nil
}
