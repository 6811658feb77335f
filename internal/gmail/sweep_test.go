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
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

// memFilter is an in-memory SeenFilter for tests.
type memFilter struct {
	seen map[string]bool
}

func (f *memFilter) IsNew(ctx context.Context, id string) (bool, error) {
	if f.seen[id] {
		return false, nil
	}
	f.seen[id] = true
	return true, nil
}

// sweepServer serves a one-page message list and raw fetches for the
// given message bodies.
func sweepServer(t *testing.T, bodies map[string]string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/messages") {
			var stubs []messageStub
			for id := range bodies {
				stubs = append(stubs, messageStub{ID: id})
			}
			json.NewEncoder(w).Encode(listResponse{Messages: stubs})
			return
		}

		parts := strings.Split(r.URL.Path, "/")
		id := parts[len(parts)-1]
		body, ok := bodies[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(rawResponse{
			ID:  id,
			Raw: base64.RawURLEncoding.EncodeToString([]byte(body)),
		})
	}))
}

func TestSweep_FetchesUnseenMessages(t *testing.T) {
	server := sweepServer(t, map[string]string{
		"m1": "raw one",
		"m2": "raw two",
	})
	defer server.Close()

	filter := &memFilter{seen: map[string]bool{"m2": true}}
	sweeper := NewSweeper(newTestFetcher(server.URL), filter, "")

	result, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Fetched != 1 {
		t.Errorf("Fetched = %d, want 1", result.Fetched)
	}
	if result.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", result.Skipped)
	}
	if len(result.RawEmails) != 1 || result.RawEmails[0] != "raw one" {
		t.Errorf("RawEmails = %v, want [raw one]", result.RawEmails)
	}
}

func TestSweep_SecondRunSkipsEverything(t *testing.T) {
	server := sweepServer(t, map[string]string{"m1": "raw one"})
	defer server.Close()

	filter := &memFilter{seen: map[string]bool{}}
	sweeper := NewSweeper(newTestFetcher(server.URL), filter, "")

	if _, err := sweeper.Run(context.Background()); err != nil {
		t.Fatalf("first run: %v", err)
	}

	result, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if result.Fetched != 0 || result.Skipped != 1 {
		t.Errorf("second run fetched %d skipped %d, want 0 and 1",
			result.Fetched, result.Skipped)
	}
}

func TestSweep_NilFilterFetchesAll(t *testing.T) {
	server := sweepServer(t, map[string]string{
		"m1": "a",
		"m2": "b",
	})
	defer server.Close()

	sweeper := NewSweeper(newTestFetcher(server.URL), nil, "")

	result, err := sweeper.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Fetched != 2 {
		t.Errorf("Fetched = %d, want 2", result.Fetched)
	}
}
