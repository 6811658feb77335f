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

package checkpoint

import (
	"context"
	"testing"
	"time"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	got, err := s.LastFetchDate(ctx)
	if err != nil || got != "" {
		t.Fatalf("fresh store = %q, %v", got, err)
	}

	if err := s.SetLastFetchDate(ctx, "2025-12-14"); err != nil {
		t.Fatal(err)
	}
	got, err = s.LastFetchDate(ctx)
	if err != nil || got != "2025-12-14" {
		t.Errorf("after set = %q, %v", got, err)
	}
}

func TestShouldSkip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	now := time.Date(2025, 12, 14, 9, 0, 0, 0, time.UTC)

	skip, err := ShouldSkip(ctx, s, now)
	if err != nil || skip {
		t.Fatalf("fresh store must not skip: %v, %v", skip, err)
	}

	if err := s.SetLastFetchDate(ctx, Today(now)); err != nil {
		t.Fatal(err)
	}
	skip, err = ShouldSkip(ctx, s, now)
	if err != nil || !skip {
		t.Errorf("same-day sweep must skip: %v, %v", skip, err)
	}

	skip, err = ShouldSkip(ctx, s, now.Add(24*time.Hour))
	if err != nil || skip {
		t.Errorf("next-day sweep must not skip: %v, %v", skip, err)
	}
}
