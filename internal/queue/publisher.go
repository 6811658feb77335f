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

// Package queue publishes collection updates to a Redis list. This is the
// bridge between ingestion and the downstream recap renderer, which pops
// tasks and rebuilds the user's yearly summary.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/ddwrapped/ingestion/internal/models"
)

// Publisher sends collection-update tasks to Redis.
type Publisher struct {
	rdb       *redis.Client
	queueName string
}

// NewPublisher creates a Redis publisher targeting the specified queue.
func NewPublisher(rdb *redis.Client, queueName string) *Publisher {
	return &Publisher{
		rdb:       rdb,
		queueName: queueName,
	}
}

// renderTask is the message body the renderer worker consumes.
type renderTask struct {
	ID         string         `json:"id"`
	Task       string         `json:"task"`
	Source     string         `json:"source"`
	OrderCount int            `json:"order_count"`
	Added      []models.Order `json:"added"`
	QueuedAt   time.Time      `json:"queued_at"`
}

// PublishUpdate announces newly merged orders. source names the ingest
// surface ("email", "capture", "backfill"); added carries only the orders
// new to the collection, orderCount the collection size after the merge.
func (p *Publisher) PublishUpdate(ctx context.Context, source string, added []models.Order, orderCount int) error {
	taskID := uuid.New().String()

	task := renderTask{
		ID:         taskID,
		Task:       "wrapped.render",
		Source:     source,
		OrderCount: orderCount,
		Added:      added,
		QueuedAt:   time.Now().UTC(),
	}

	taskJSON, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal render task: %w", err)
	}

	// The renderer BRPOPs, so new work goes on the left.
	if err := p.rdb.LPush(ctx, p.queueName, string(taskJSON)).Err(); err != nil {
		return fmt.Errorf("redis LPUSH: %w", err)
	}

	slog.Info("published collection update",
		"task_id", taskID,
		"source", source,
		"added", len(added),
		"order_count", orderCount,
		"queue", p.queueName,
	)

	return nil
}

// Ping checks the Redis connection.
func (p *Publisher) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return p.rdb.Ping(ctx).Err()
}
