// Copyright (c) 2026 The Wrapped Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Wrapped — Historical Backfill Command
//
// Standalone CLI tool that sweeps the mailbox for receipt emails within a
// date window, parses them, and merges the orders into the persisted
// collection. Intended for seeding data on new deployments.
//
// Usage:
//
//	go run ./cmd/backfill/ [--after 2025/01/01] [--before 2026/01/01] [--no-dedup]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ddwrapped/ingestion/internal/config"
	"github.com/ddwrapped/ingestion/internal/dedup"
	"github.com/ddwrapped/ingestion/internal/gmail"
	"github.com/ddwrapped/ingestion/internal/models"
	"github.com/ddwrapped/ingestion/internal/orders"
	"github.com/ddwrapped/ingestion/internal/queue"
	"github.com/ddwrapped/ingestion/internal/receipt"
	"github.com/ddwrapped/ingestion/internal/store"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	_ = godotenv.Load()

	// --- CLI Flags ---
	afterFlag := flag.String("after", "", "Only sweep emails after this date (YYYY/MM/DD, optional)")
	beforeFlag := flag.String("before", "", "Only sweep emails before this date (YYYY/MM/DD, optional)")
	noDedupFlag := flag.Bool("no-dedup", false, "Re-fetch messages already seen by previous sweeps")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	if cfg.Gmail.AccessToken == "" {
		slog.Error("GMAIL_ACCESS_TOKEN is required for backfill")
		os.Exit(1)
	}
	if cfg.DatabaseURL == "" {
		slog.Error("DATABASE_URL is required for backfill")
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// --- Connect to Redis ---
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		slog.Error("invalid REDIS_URL", "error", err)
		os.Exit(1)
	}
	rdb := redis.NewClient(opt)
	defer rdb.Close()

	publisher := queue.NewPublisher(rdb, cfg.RenderQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Connect to PostgreSQL ---
	pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to create Postgres pool", "error", err)
		os.Exit(1)
	}
	defer pgPool.Close()

	orderStore, err := store.NewStore(ctx, pgPool)
	if err != nil {
		slog.Error("failed to initialise order store", "error", err)
		os.Exit(1)
	}

	// --- Build the sweep ---
	query := cfg.Gmail.Query
	if query == "" {
		query = gmail.DefaultQuery
	}
	if *afterFlag != "" {
		query = fmt.Sprintf("%s after:%s", query, *afterFlag)
	}
	if *beforeFlag != "" {
		query = fmt.Sprintf("%s before:%s", query, *beforeFlag)
	}

	httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: cfg.Gmail.AccessToken},
	))
	fetcher := gmail.NewFetcher(gmail.FetcherConfig{
		HTTPClient: httpClient,
		PageSize:   cfg.Gmail.PageSize,
		PageRate:   rate.Every(cfg.Gmail.PageDelay),
	})

	var filter gmail.SeenFilter
	if !*noDedupFlag {
		filter = dedup.NewFilter(rdb)
	}
	sweeper := gmail.NewSweeper(fetcher, filter, query)

	slog.Info("starting historical backfill", "query", query)

	// --- Run Sweep ---
	result, err := sweeper.Run(ctx)
	if err != nil {
		slog.Error("mailbox sweep failed", "error", err)
		os.Exit(1)
	}

	// --- Parse and Merge ---
	parsed := receipt.ParseBatch(result.RawEmails)

	existing, err := orderStore.LoadAll(ctx)
	if err != nil {
		slog.Error("failed to load persisted orders", "error", err)
		os.Exit(1)
	}

	before := make(map[string]bool, len(existing))
	for _, o := range existing {
		before[o.ID] = true
	}

	merged := orders.Merge(existing, parsed)
	var newOrders []models.Order
	for _, o := range merged {
		if !before[o.ID] {
			newOrders = append(newOrders, o)
		}
	}

	if err := orderStore.UpsertAll(ctx, merged); err != nil {
		slog.Error("failed to persist merged orders", "error", err)
		os.Exit(1)
	}

	if len(newOrders) > 0 {
		if err := publisher.PublishUpdate(ctx, "backfill", newOrders, len(merged)); err != nil {
			slog.Error("failed to publish update", "error", err)
		}
	}

	// --- Summary ---
	slog.Info("backfill complete",
		"fetched", result.Fetched,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"parsed", len(parsed),
		"added", len(newOrders),
		"order_count", len(merged),
		"elapsed", result.Elapsed,
	)
}
