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

// Wrapped — Ingestion Service
//
// Entry point for the order ingestion service. It:
//  1. Loads configuration from config.yaml and the environment
//  2. Connects to PostgreSQL and Redis
//  3. Loads the persisted order collection
//  4. Serves the ingestion API (capture snapshots, email batches,
//     orders, statistics)
//  5. Optionally runs a daily Gmail sweep in the background
//  6. Handles graceful shutdown on SIGTERM/SIGINT
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/ddwrapped/ingestion/internal/checkpoint"
	"github.com/ddwrapped/ingestion/internal/config"
	"github.com/ddwrapped/ingestion/internal/dedup"
	"github.com/ddwrapped/ingestion/internal/gmail"
	"github.com/ddwrapped/ingestion/internal/models"
	"github.com/ddwrapped/ingestion/internal/queue"
	"github.com/ddwrapped/ingestion/internal/store"
	"github.com/ddwrapped/ingestion/internal/webhook"
)

func main() {
	// Structured JSON logging
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	// Local development convenience; absent .env is fine.
	_ = godotenv.Load()

	slog.Info("starting wrapped ingestion service")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
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

	publisher := queue.NewPublisher(rdb, cfg.RenderQueue)
	if err := publisher.Ping(ctx); err != nil {
		slog.Error("failed to connect to Redis", "error", err)
		os.Exit(1)
	}
	slog.Info("connected to Redis")

	// --- Connect to PostgreSQL (optional) ---
	var orderStore *store.Store
	var seed []models.Order
	if cfg.DatabaseURL != "" {
		pgPool, err := pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			slog.Error("failed to create Postgres pool", "error", err)
			os.Exit(1)
		}
		defer pgPool.Close()

		if err := pgPool.Ping(ctx); err != nil {
			slog.Error("failed to connect to PostgreSQL", "error", err)
			os.Exit(1)
		}
		slog.Info("connected to PostgreSQL")

		orderStore, err = store.NewStore(ctx, pgPool)
		if err != nil {
			slog.Error("failed to initialise order store", "error", err)
			os.Exit(1)
		}

		seed, err = orderStore.LoadAll(ctx)
		if err != nil {
			slog.Error("failed to load persisted orders", "error", err)
			os.Exit(1)
		}
		slog.Info("order collection loaded", "orders", len(seed))
	} else {
		slog.Warn("DATABASE_URL not set, running without persistence")
	}

	// --- API Handler ---
	var persister webhook.Persister
	if orderStore != nil {
		persister = orderStore
	}
	handler := webhook.NewHandler(persister, publisher, seed)

	ready, err := webhook.Serve(ctx, cfg.Port, handler)
	if err != nil {
		slog.Error("failed to start API server", "error", err)
		os.Exit(1)
	}
	<-ready

	// --- Gmail Poller (optional) ---
	if cfg.Gmail.AccessToken != "" {
		httpClient := oauth2.NewClient(ctx, oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: cfg.Gmail.AccessToken},
		))

		fetcher := gmail.NewFetcher(gmail.FetcherConfig{
			HTTPClient: httpClient,
			PageSize:   cfg.Gmail.PageSize,
			PageRate:   rate.Every(cfg.Gmail.PageDelay),
		})
		sweeper := gmail.NewSweeper(fetcher, dedup.NewFilter(rdb), cfg.Gmail.Query)
		poller := gmail.NewPoller(sweeper, checkpoint.NewRedisStore(rdb), cfg.PollInterval, handler.IngestEmails)

		go poller.Run(ctx)
	} else {
		slog.Info("GMAIL_ACCESS_TOKEN not set, mailbox poller disabled")
	}

	// --- Graceful Shutdown ---
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	sig := <-sigCh

	slog.Info("received shutdown signal", "signal", sig)
	cancel()
	rdb.Close()

	slog.Info("ingestion service stopped")
}
