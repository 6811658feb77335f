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

package webhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ddwrapped/ingestion/internal/models"
)

// fakeStore records persisted batches.
type fakeStore struct {
	batches [][]models.Order
}

func (s *fakeStore) UpsertAll(ctx context.Context, os []models.Order) error {
	s.batches = append(s.batches, os)
	return nil
}

// fakePublisher records published updates.
type fakePublisher struct {
	sources []string
	added   [][]models.Order
}

func (p *fakePublisher) PublishUpdate(ctx context.Context, source string, added []models.Order, orderCount int) error {
	p.sources = append(p.sources, source)
	p.added = append(p.added, added)
	return nil
}

func testOrder(id, restaurant string, total int64) models.Order {
	return models.Order{
		ID:             id,
		RestaurantName: restaurant,
		CreatedAt:      time.Date(2025, 6, 14, 12, 0, 0, 0, time.UTC),
		TotalPrice:     total,
		Currency:       "USD",
	}
}

const capturePayload = `{
	"sourceType": "order_details",
	"url": "https://www.example.com/graphql",
	"payload": {
		"data": {
			"orders": [
				{
					"id": "order-1",
					"store": {"name": "Taco Spot"},
					"createdAt": "2025-06-14T12:00:00Z",
					"grandTotal": {"unitAmount": 2599},
					"items": [{"name": "Tacos", "quantity": 2, "price": 1299}]
				}
			]
		}
	}
}`

func TestServeCapture_IngestsSnapshot(t *testing.T) {
	store := &fakeStore{}
	pub := &fakePublisher{}
	h := NewHandler(store, pub, nil)

	req := httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(capturePayload))
	rec := httptest.NewRecorder()
	h.ServeCapture(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		SnapshotID string `json:"snapshotId"`
		Received   int    `json:"received"`
		Added      int    `json:"added"`
		OrderCount int    `json:"orderCount"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.SnapshotID == "" {
		t.Error("snapshot id should be assigned")
	}
	if resp.Received != 1 || resp.Added != 1 || resp.OrderCount != 1 {
		t.Errorf("response = %+v, want 1 received, 1 added, 1 total", resp)
	}

	if len(store.batches) != 1 {
		t.Fatalf("persisted %d batches, want 1", len(store.batches))
	}
	if len(pub.sources) != 1 || pub.sources[0] != "capture" {
		t.Errorf("published sources = %v, want [capture]", pub.sources)
	}

	got := h.Orders()
	if len(got) != 1 || got[0].RestaurantName != "Taco Spot" {
		t.Errorf("orders = %+v, want one Taco Spot order", got)
	}
}

func TestServeCapture_DuplicateOrdersNotRepublished(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandler(nil, pub, nil)

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader(capturePayload))
		h.ServeCapture(httptest.NewRecorder(), req)
	}

	if len(h.Orders()) != 1 {
		t.Errorf("collection has %d orders, want 1 after duplicate capture", len(h.Orders()))
	}
	if len(pub.sources) != 1 {
		t.Errorf("published %d updates, want 1 (no update for pure duplicates)", len(pub.sources))
	}
}

func TestServeCapture_RejectsInvalidJSON(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	req := httptest.NewRequest(http.MethodPost, "/capture", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.ServeCapture(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestServeCapture_MethodNotAllowed(t *testing.T) {
	h := NewHandler(nil, nil, nil)
	rec := httptest.NewRecorder()
	h.ServeCapture(rec, httptest.NewRequest(http.MethodGet, "/capture", nil))

	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestServeEmails_ParsesAndMerges(t *testing.T) {
	raw := "From: DoorDash <no-reply@doordash.com>\r\n" +
		"Subject: Order Confirmation for Dana from Taco Spot\r\n" +
		"Message-ID: <receipt-1@mail.doordash.com>\r\n" +
		"Date: Sat, 14 Jun 2025 12:00:00 +0000\r\n" +
		"\r\n" +
		"1x Tacos $12.99\r\n" +
		"Total: $25.99\r\n"

	body, _ := json.Marshal(emailBatchRequest{Emails: []string{raw}})
	h := NewHandler(nil, nil, nil)

	req := httptest.NewRequest(http.MethodPost, "/emails", strings.NewReader(string(body)))
	rec := httptest.NewRecorder()
	h.ServeEmails(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	got := h.Orders()
	if len(got) != 1 {
		t.Fatalf("collection has %d orders, want 1", len(got))
	}
	if got[0].RestaurantName != "Taco Spot" {
		t.Errorf("restaurant = %q, want Taco Spot", got[0].RestaurantName)
	}
}

func TestServeOrders_ReturnsSeed(t *testing.T) {
	seed := []models.Order{
		testOrder("a", "Noodle House", 1500),
		testOrder("b", "Burger Barn", 2200),
	}
	h := NewHandler(nil, nil, seed)

	rec := httptest.NewRecorder()
	h.ServeOrders(rec, httptest.NewRequest(http.MethodGet, "/orders", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		Orders []models.Order `json:"orders"`
		Count  int            `json:"count"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Orders) != 2 {
		t.Errorf("count = %d with %d orders, want 2", resp.Count, len(resp.Orders))
	}
}

func TestServeStats_ReflectsCollection(t *testing.T) {
	seed := []models.Order{testOrder("a", "Noodle House", 1500)}
	h := NewHandler(nil, nil, seed)

	rec := httptest.NewRecorder()
	h.ServeStats(rec, httptest.NewRequest(http.MethodGet, "/stats", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var resp struct {
		TotalOrders int     `json:"totalOrders"`
		TotalSpent  float64 `json:"totalSpent"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalOrders != 1 {
		t.Errorf("totalOrders = %d, want 1", resp.TotalOrders)
	}
	if resp.TotalSpent != 15.00 {
		t.Errorf("totalSpent = %v, want 15.00", resp.TotalSpent)
	}
}

func TestServeHealth(t *testing.T) {
	h := NewHandler(nil, nil, []models.Order{testOrder("a", "Noodle House", 1500)})

	rec := httptest.NewRecorder()
	h.ServeHealth(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Errorf("body = %s, want status ok", rec.Body.String())
	}
}

func TestIngestEmails_PollerCallback(t *testing.T) {
	pub := &fakePublisher{}
	h := NewHandler(nil, pub, nil)

	raw := "From: DoorDash <no-reply@doordash.com>\r\n" +
		"Subject: Final receipt for Dana from Taco Spot\r\n" +
		"Message-ID: <receipt-2@mail.doordash.com>\r\n" +
		"Date: Sat, 14 Jun 2025 19:30:00 +0000\r\n" +
		"\r\n" +
		"1x Tacos $12.99\r\n" +
		"Total: $25.99\r\n"

	if err := h.IngestEmails(context.Background(), []string{raw}); err != nil {
		t.Fatalf("IngestEmails: %v", err)
	}
	if len(h.Orders()) != 1 {
		t.Errorf("collection has %d orders, want 1", len(h.Orders()))
	}
	if len(pub.sources) != 1 || pub.sources[0] != "email" {
		t.Errorf("published sources = %v, want [email]", pub.sources)
	}
}
