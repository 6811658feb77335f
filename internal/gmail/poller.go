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

package gmail

import (
	"context"
	"log/slog"
	"time"

	"github.com/ddwrapped/ingestion/internal/checkpoint"
)

// BatchCallback receives the raw emails collected by one sweep.
type BatchCallback func(ctx context.Context, rawEmails []string) error

// Poller runs mailbox sweeps on an interval. At most one sweep is
// performed per calendar day; the checkpoint store remembers the last
// successful sweep date so restarts do not re-fetch.
type Poller struct {
	sweeper    *Sweeper
	checkpoint checkpoint.Store
	interval   time.Duration
	onBatch    BatchCallback
}

// NewPoller creates a poller that checks whether a sweep is due at the
// given interval.
func NewPoller(sweeper *Sweeper, cp checkpoint.Store, interval time.Duration, onBatch BatchCallback) *Poller {
	return &Poller{
		sweeper:    sweeper,
		checkpoint: cp,
		interval:   interval,
		onBatch:    onBatch,
	}
}

// Run starts the polling loop. It blocks until the context is cancelled.
func (p *Poller) Run(ctx context.Context) {
	slog.Info("gmail poller starting", "interval", p.interval)

	// Do an initial check immediately
	p.poll(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("gmail poller stopping")
			return
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

// poll runs one sweep if none has completed today.
func (p *Poller) poll(ctx context.Context) {
	now := time.Now().UTC()

	skip, err := checkpoint.ShouldSkip(ctx, p.checkpoint, now)
	if err != nil {
		slog.Error("failed to read sweep checkpoint", "error", err)
		return
	}
	if skip {
		slog.Debug("sweep already completed today")
		return
	}

	result, err := p.sweeper.Run(ctx)
	if err != nil {
		slog.Error("mailbox sweep failed", "error", err)
		return
	}

	if len(result.RawEmails) > 0 {
		if err := p.onBatch(ctx, result.RawEmails); err != nil {
			slog.Error("failed to process email batch",
				"count", len(result.RawEmails),
				"error", err,
			)
			return
		}
	}

	// Checkpoint only after the batch lands so a failed run retries.
	if err := p.checkpoint.SetLastFetchDate(ctx, checkpoint.Today(now)); err != nil {
		slog.Error("failed to write sweep checkpoint", "error", err)
	}
}
