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

// Package webhook exposes the ingestion HTTP surface. The capture layer
// POSTs intercepted order-history responses, the email path POSTs raw
// receipt batches, and readers pull the merged collection and its
// computed statistics.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ddwrapped/ingestion/internal/capture"
	"github.com/ddwrapped/ingestion/internal/models"
	"github.com/ddwrapped/ingestion/internal/orders"
	"github.com/ddwrapped/ingestion/internal/receipt"
	"github.com/ddwrapped/ingestion/internal/stats"
)

// Persister durably stores merged orders. Implemented by store.Store.
type Persister interface {
	UpsertAll(ctx context.Context, os []models.Order) error
}

// UpdatePublisher announces newly merged orders to the render queue.
// Implemented by queue.Publisher.
type UpdatePublisher interface {
	PublishUpdate(ctx context.Context, source string, added []models.Order, orderCount int) error
}

// Handler holds the in-memory collection and serves the ingestion API.
type Handler struct {
	store     Persister
	publisher UpdatePublisher

	mu        sync.Mutex
	orders    []models.Order
	snapshots []models.Snapshot
}

// NewHandler creates an API handler. seed is the persisted collection
// loaded at startup; store and publisher may be nil in tests.
func NewHandler(store Persister, publisher UpdatePublisher, seed []models.Order) *Handler {
	return &Handler{
		store:     store,
		publisher: publisher,
		orders:    seed,
	}
}

// captureRequest is one intercepted order-history response posted by the
// capture surface.
type captureRequest struct {
	SourceType string          `json:"sourceType"`
	URL        string          `json:"url"`
	Payload    json.RawMessage `json:"payload"`
}

// emailBatchRequest is a batch of raw RFC-2822 emails.
type emailBatchRequest struct {
	Emails []string `json:"emails"`
}

// ServeCapture handles POST /capture. The payload is normalized with the
// tolerant capture decoder; a payload that yields nothing is still
// accepted so the capture surface never retries uselessly.
func (h *Handler) ServeCapture(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	var req captureRequest
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	result := capture.Normalize(req.Payload)

	snapshot := models.Snapshot{
		ID:         uuid.New().String(),
		Ts:         time.Now().UTC(),
		SourceType: req.SourceType,
		URL:        req.URL,
		Creator:    result.Creator,
		GroupInfo:  result.Groups,
	}

	added, total := h.ingest(r.Context(), "capture", result.Orders, &snapshot)

	slog.Info("capture snapshot ingested",
		"snapshot_id", snapshot.ID,
		"source_type", req.SourceType,
		"orders", len(result.Orders),
		"added", added,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"snapshotId": snapshot.ID,
		"received":   len(result.Orders),
		"added":      added,
		"orderCount": total,
	})
}

// ServeEmails handles POST /emails: parse a raw receipt batch and merge
// the resulting orders into the collection.
func (h *Handler) ServeEmails(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	var req emailBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid JSON", http.StatusBadRequest)
		return
	}

	parsed := receipt.ParseBatch(req.Emails)
	added, total := h.ingest(r.Context(), "email", parsed, nil)

	slog.Info("email batch ingested",
		"emails", len(req.Emails),
		"parsed", len(parsed),
		"added", added,
	)

	writeJSON(w, http.StatusOK, map[string]any{
		"received":   len(req.Emails),
		"parsed":     len(parsed),
		"added":      added,
		"orderCount": total,
	})
}

// ServeOrders handles GET /orders.
func (h *Handler) ServeOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	os := make([]models.Order, len(h.orders))
	copy(os, h.orders)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"orders": os,
		"count":  len(os),
	})
}

// ServeStats handles GET /stats. Statistics are recomputed on every read
// so they always reflect the current collection.
func (h *Handler) ServeStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.mu.Lock()
	os := make([]models.Order, len(h.orders))
	copy(os, h.orders)
	snaps := make([]models.Snapshot, len(h.snapshots))
	copy(snaps, h.snapshots)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, stats.Compute(os, snaps))
}

// ServeHealth handles GET /health.
func (h *Handler) ServeHealth(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	count := len(h.orders)
	h.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"orders": count,
	})
}

// IngestEmails merges a raw email batch fetched outside the HTTP surface.
// Used as the mailbox poller's batch callback.
func (h *Handler) IngestEmails(ctx context.Context, rawEmails []string) error {
	parsed := receipt.ParseBatch(rawEmails)
	added, total := h.ingest(ctx, "email", parsed, nil)
	slog.Info("mailbox batch ingested",
		"emails", len(rawEmails),
		"parsed", len(parsed),
		"added", added,
		"order_count", total,
	)
	return nil
}

// Orders returns a copy of the current collection.
func (h *Handler) Orders() []models.Order {
	h.mu.Lock()
	defer h.mu.Unlock()
	os := make([]models.Order, len(h.orders))
	copy(os, h.orders)
	return os
}

// ingest merges incoming orders into the collection, records the optional
// snapshot, persists the merged set, and publishes the update. Persistence
// and publish failures are logged, not surfaced; the in-memory merge is
// already committed and a later batch re-persists everything.
func (h *Handler) ingest(ctx context.Context, source string, incoming []models.Order, snapshot *models.Snapshot) (added, total int) {
	h.mu.Lock()
	before := make(map[string]bool, len(h.orders))
	for _, o := range h.orders {
		before[o.ID] = true
	}

	h.orders = orders.Merge(h.orders, incoming)
	if snapshot != nil {
		h.snapshots = append(h.snapshots, *snapshot)
	}

	var newOrders []models.Order
	for _, o := range h.orders {
		if !before[o.ID] {
			newOrders = append(newOrders, o)
		}
	}
	merged := make([]models.Order, len(h.orders))
	copy(merged, h.orders)
	total = len(h.orders)
	h.mu.Unlock()

	if h.store != nil {
		if err := h.store.UpsertAll(ctx, merged); err != nil {
			slog.Error("persist orders failed", "error", err)
		}
	}

	if h.publisher != nil && len(newOrders) > 0 {
		if err := h.publisher.PublishUpdate(ctx, source, newOrders, total); err != nil {
			slog.Error("publish update failed", "source", source, "error", err)
		}
	}

	return len(newOrders), total
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response failed", "error", err)
	}
}

// Serve starts the API HTTP server on the given port. It binds the port
// immediately and signals readiness via the returned channel before
// accepting connections.
func Serve(ctx context.Context, port int, handler *Handler) (<-chan struct{}, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/capture", handler.ServeCapture)
	mux.HandleFunc("/emails", handler.ServeEmails)
	mux.HandleFunc("/orders", handler.ServeOrders)
	mux.HandleFunc("/stats", handler.ServeStats)
	mux.HandleFunc("/health", handler.ServeHealth)

	server := &http.Server{
		Handler: mux,
	}

	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return nil, fmt.Errorf("bind API port %d: %w", port, err)
	}

	ready := make(chan struct{})

	go func() {
		<-ctx.Done()
		slog.Info("API server shutting down")
		server.Close()
	}()

	go func() {
		slog.Info("API server listening", "port", port)
		close(ready)
		if err := server.Serve(ln); err != http.ErrServerClosed {
			slog.Error("API server error", "error", err)
		}
	}()

	return ready, nil
}
