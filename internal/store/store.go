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

// Package store provides a Postgres-backed order store. Orders are kept
// flat, keyed by their stable id, with structured fields (items, address,
// fees) stored as JSONB so the collection survives restarts without a
// re-sweep of the mailbox.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ddwrapped/ingestion/internal/models"
)

// Store provides persistence for the order collection.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates an order store backed by the given Postgres pool.
// It ensures the orders table exists on creation.
func NewStore(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	s := &Store{pool: pool}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure orders schema: %w", err)
	}
	slog.Info("order store initialised")
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS orders (
			id               TEXT PRIMARY KEY,
			restaurant_name  TEXT NOT NULL,
			created_at       TIMESTAMPTZ,
			total_price      BIGINT NOT NULL DEFAULT 0,
			currency         TEXT NOT NULL DEFAULT 'USD',
			subject          TEXT DEFAULT '',
			email_type       TEXT DEFAULT '',
			items            JSONB NOT NULL DEFAULT '[]',
			delivery_address JSONB,
			fees             JSONB,
			updated_at       TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_orders_created ON orders(created_at);
		CREATE INDEX IF NOT EXISTS idx_orders_restaurant ON orders(restaurant_name);
	`)
	return err
}

// UpsertAll persists a batch of orders. On id collision the stored row is
// replaced only when the incoming order carries a delivery address and the
// stored one does not, mirroring the in-memory merge policy.
func (s *Store) UpsertAll(ctx context.Context, orders []models.Order) error {
	for _, o := range orders {
		if err := s.upsert(ctx, o); err != nil {
			return fmt.Errorf("upsert order %s: %w", o.ID, err)
		}
	}
	return nil
}

func (s *Store) upsert(ctx context.Context, o models.Order) error {
	items, err := json.Marshal(o.Items)
	if err != nil {
		return fmt.Errorf("marshal items: %w", err)
	}

	var address []byte
	if o.DeliveryAddress != nil {
		if address, err = json.Marshal(o.DeliveryAddress); err != nil {
			return fmt.Errorf("marshal address: %w", err)
		}
	}

	var fees []byte
	if o.Fees != nil {
		if fees, err = json.Marshal(o.Fees); err != nil {
			return fmt.Errorf("marshal fees: %w", err)
		}
	}

	var createdAt *time.Time
	if !o.CreatedAt.IsZero() {
		createdAt = &o.CreatedAt
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO orders
			(id, restaurant_name, created_at, total_price, currency,
			 subject, email_type, items, delivery_address, fees)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (id) DO UPDATE SET
			restaurant_name  = EXCLUDED.restaurant_name,
			created_at       = EXCLUDED.created_at,
			total_price      = EXCLUDED.total_price,
			currency         = EXCLUDED.currency,
			subject          = EXCLUDED.subject,
			email_type       = EXCLUDED.email_type,
			items            = EXCLUDED.items,
			delivery_address = EXCLUDED.delivery_address,
			fees             = EXCLUDED.fees,
			updated_at       = NOW()
		WHERE orders.delivery_address IS NULL
		  AND EXCLUDED.delivery_address IS NOT NULL
	`, o.ID, o.RestaurantName, createdAt, o.TotalPrice, o.Currency,
		o.Subject, string(o.EmailType), items, address, fees)
	return err
}

// LoadAll returns every stored order, newest first with undated orders
// last, matching the in-memory collection's ordering.
func (s *Store) LoadAll(ctx context.Context) ([]models.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, restaurant_name, created_at, total_price, currency,
		       subject, email_type, items, delivery_address, fees
		FROM orders
		ORDER BY created_at DESC NULLS LAST, id
	`)
	if err != nil {
		return nil, fmt.Errorf("query orders: %w", err)
	}
	defer rows.Close()

	var orders []models.Order
	for rows.Next() {
		var (
			o         models.Order
			emailType string
			createdAt *time.Time
			items     []byte
			address   []byte
			fees      []byte
		)
		if err := rows.Scan(
			&o.ID, &o.RestaurantName, &createdAt, &o.TotalPrice, &o.Currency,
			&o.Subject, &emailType, &items, &address, &fees,
		); err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}

		o.EmailType = models.EmailType(emailType)
		if createdAt != nil {
			o.CreatedAt = *createdAt
		}
		if err := json.Unmarshal(items, &o.Items); err != nil {
			return nil, fmt.Errorf("unmarshal items for %s: %w", o.ID, err)
		}
		if len(address) > 0 {
			o.DeliveryAddress = &models.DeliveryAddress{}
			if err := json.Unmarshal(address, o.DeliveryAddress); err != nil {
				return nil, fmt.Errorf("unmarshal address for %s: %w", o.ID, err)
			}
		}
		if len(fees) > 0 {
			o.Fees = &models.Fees{}
			if err := json.Unmarshal(fees, o.Fees); err != nil {
				return nil, fmt.Errorf("unmarshal fees for %s: %w", o.ID, err)
			}
		}

		orders = append(orders, o)
	}
	return orders, rows.Err()
}

// Count returns the number of stored orders.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM orders`).Scan(&n)
	return n, err
}

// Ping verifies database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
