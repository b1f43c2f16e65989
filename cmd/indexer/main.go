package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/zatekoja/recursiadx/internal/adapters/database"
	"github.com/zatekoja/recursiadx/internal/adapters/search"
	"github.com/zatekoja/recursiadx/internal/domain/repositories"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/postgres"
	"github.com/zatekoja/recursiadx/internal/infrastructure/clients/typesense"
	"github.com/zatekoja/recursiadx/internal/infrastructure/observability"
	"github.com/zatekoja/recursiadx/pkg/config"
)

const pageSize = 200

func main() {
	var reset bool
	var intervalFlag string
	flag.BoolVar(&reset, "reset", false, "delete existing Typesense collection before reindexing")
	flag.StringVar(&intervalFlag, "interval", "", "repeat interval for reindexing (e.g. 6h, 30m)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	observability.InitLogger("recursiadx-indexer", cfg.Env)

	intervalValue := strings.TrimSpace(intervalFlag)
	if intervalValue == "" {
		intervalValue = strings.TrimSpace(os.Getenv("REINDEX_INTERVAL"))
	}

	var interval time.Duration
	if intervalValue != "" {
		interval, err = time.ParseDuration(intervalValue)
		if err != nil {
			log.Fatal().Err(err).Str("interval", intervalValue).Msg("Invalid interval")
		}
		if interval <= 0 {
			log.Fatal().Msg("Interval must be greater than zero")
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	for {
		if err := indexOnce(ctx, cfg, reset); err != nil {
			log.Error().Err(err).Msg("Reindex failed")
		}

		if interval <= 0 {
			break
		}

		reset = false
		log.Info().Dur("next_run_in", interval).Msg("Reindex complete")

		select {
		case <-ctx.Done():
			log.Info().Msg("Reindexer shutting down")
			return
		case <-time.After(interval):
		}
	}
}

func indexOnce(ctx context.Context, cfg *config.Config, reset bool) error {
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		return err
	}
	defer pgClient.Close()

	tsClient, err := typesense.NewClient(&cfg.Typesense)
	if err != nil {
		return err
	}

	if reset {
		err = tsClient.ResetSchema(ctx)
	} else {
		err = tsClient.InitSchema(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to prepare collection: %w", err)
	}

	samples := database.NewSampleAdapter(pgClient)
	index := search.NewTypesenseAdapter(tsClient)

	start := time.Now()
	indexed, failed := 0, 0
	for offset := 0; ; offset += pageSize {
		page, total, err := samples.List(ctx, repositories.SampleFilter{Limit: pageSize, Offset: offset})
		if err != nil {
			return fmt.Errorf("failed to list samples at offset %d: %w", offset, err)
		}

		for _, sample := range page {
			if err := index.Index(ctx, sample); err != nil {
				failed++
				log.Warn().Err(err).Str("sample", sample.SampleID).Msg("Failed to index sample")
				continue
			}
			indexed++
		}

		if len(page) < pageSize || offset+len(page) >= total {
			break
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	log.Info().
		Int("indexed", indexed).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("Sample index rebuilt")
	return nil
}
