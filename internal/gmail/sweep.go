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
)

// SeenFilter skips messages that were already fetched on a previous sweep.
// Implemented by dedup.Filter; tests supply an in-memory fake.
type SeenFilter interface {
	IsNew(ctx context.Context, messageID string) (bool, error)
}

// SweepResult summarises one completed mailbox sweep.
type SweepResult struct {
	RawEmails []string
	Fetched   int
	Skipped   int
	Errors    int
	Elapsed   time.Duration
}

// Sweeper runs a full search-and-fetch pass over the mailbox.
type Sweeper struct {
	fetcher *Fetcher
	filter  SeenFilter
	query   string
}

// NewSweeper creates a mailbox sweeper. A nil filter disables fetch-level
// dedup (every listed message is downloaded).
func NewSweeper(fetcher *Fetcher, filter SeenFilter, query string) *Sweeper {
	if query == "" {
		query = DefaultQuery
	}
	return &Sweeper{fetcher: fetcher, filter: filter, query: query}
}

// Run searches the mailbox and downloads every unseen message. One bad
// message never aborts the sweep; it is counted and skipped.
func (s *Sweeper) Run(ctx context.Context) (*SweepResult, error) {
	start := time.Now()

	ids, err := s.fetcher.Search(ctx, s.query)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, id := range ids {
		if s.filter != nil {
			isNew, err := s.filter.IsNew(ctx, id)
			if err != nil {
				slog.Warn("dedup check failed", "error", err)
			} else if !isNew {
				result.Skipped++
				continue
			}
		}

		raw, err := s.fetcher.FetchRaw(ctx, id)
		if err != nil {
			slog.Warn("fetch message failed", "message_id", id, "error", err)
			result.Errors++
			continue
		}
		if raw == "" {
			result.Skipped++
			continue
		}

		result.RawEmails = append(result.RawEmails, raw)
		result.Fetched++
	}

	result.Elapsed = time.Since(start)

	slog.Info("mailbox sweep complete",
		"fetched", result.Fetched,
		"skipped", result.Skipped,
		"errors", result.Errors,
		"elapsed", result.Elapsed,
	)
	return result, nil
}
