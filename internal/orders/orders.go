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

// Package orders holds the order collection logic: merging batches from
// independent capture sources and normalizing the result into a
// chronologically sorted sequence.
//
// Two dedup policies coexist on purpose. Within one email batch the first
// occurrence of an id wins (see receipt.ParseBatch); across capture
// batches a colliding id keeps the existing record unless the incoming one
// adds a delivery address. The asymmetry mirrors the recorded behavior of
// both capture paths and is flagged in DESIGN.md rather than unified.
package orders

import (
	"log/slog"
	"sort"

	"github.com/ddwrapped/ingestion/internal/models"
)

// Merge combines an already-deduplicated collection with a new batch.
//
// On an id collision the existing record is kept, unless it lacks a
// delivery address and the incoming record has one — the more complete
// record then replaces it atomically. The number of collisions is logged
// as a diagnostic; it is never an error.
//
// Merge is pure with respect to its inputs and safe to call once per
// captured snapshot as batches arrive.
func Merge(existing, incoming []models.Order) []models.Order {
	merged := make([]models.Order, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	for _, o := range existing {
		if at, ok := index[o.ID]; ok {
			merged[at] = o
			continue
		}
		index[o.ID] = len(merged)
		merged = append(merged, o)
	}

	collisions := 0
	for _, o := range incoming {
		at, ok := index[o.ID]
		if !ok {
			index[o.ID] = len(merged)
			merged = append(merged, o)
			continue
		}
		collisions++
		if merged[at].DeliveryAddress == nil && o.DeliveryAddress != nil {
			merged[at] = o
		}
	}

	if collisions > 0 {
		slog.Info("deduplicated colliding orders", "collisions", collisions)
	}

	SortNewestFirst(merged)
	return merged
}

// SortNewestFirst sorts in place by CreatedAt descending. Records with an
// unresolvable date (the zero time) sort last; ties keep input order.
func SortNewestFirst(os []models.Order) {
	sort.SliceStable(os, func(i, j int) bool {
		ti, tj := os[i].CreatedAt, os[j].CreatedAt
		if ti.IsZero() {
			return false
		}
		if tj.IsZero() {
			return true
		}
		return ti.After(tj)
	})
}
