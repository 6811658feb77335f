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

// Package models defines the canonical data structures shared across the
// ingestion pipeline. An Order looks the same whether it came from a parsed
// receipt email or from an intercepted network response.
package models

import "time"

// EmailType classifies a receipt email by its subject line.
type EmailType string

const (
	EmailTypeFinalReceipt EmailType = "final_receipt"
	EmailTypeConfirmation EmailType = "confirmation"
	EmailTypeOther        EmailType = "other"
)

// Item is a single line item on an order. Price is in minor currency
// units (cents) and covers one unit of the item.
type Item struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Price    int64  `json:"price"`
}

// DeliveryAddress is the resolved destination of an order. Lat/Lng are only
// available on the network-capture path; email receipts carry the printable
// address at best.
type DeliveryAddress struct {
	Lat              float64 `json:"lat,omitempty"`
	Lng              float64 `json:"lng,omitempty"`
	Street           string  `json:"street,omitempty"`
	City             string  `json:"city,omitempty"`
	State            string  `json:"state,omitempty"`
	ZipCode          string  `json:"zipCode,omitempty"`
	PrintableAddress string  `json:"printableAddress"`
}

// Fees breaks down the non-item charges on an order, all in minor units.
// A fee the parser could not find is 0, not absent.
type Fees struct {
	Subtotal    int64 `json:"subtotal"`
	Tax         int64 `json:"tax"`
	DeliveryFee int64 `json:"deliveryFee"`
	ServiceFee  int64 `json:"serviceFee"`
	Tip         int64 `json:"tip"`
}

// Order is the canonical order record.
//
// ID is stable per source: the stripped email Message-ID on the email path,
// the platform order identifier on the capture path. The same real-world
// order captured through both paths does NOT collide — a known limitation.
//
// CreatedAt is the zero time when the source date could not be parsed;
// consumers must treat that as absent.
type Order struct {
	ID              string           `json:"id"`
	RestaurantName  string           `json:"restaurantName"`
	CreatedAt       time.Time        `json:"createdAt"`
	Items           []Item           `json:"items"`
	TotalPrice      int64            `json:"totalPrice"`
	Currency        string           `json:"currency,omitempty"`
	DeliveryAddress *DeliveryAddress `json:"deliveryAddress,omitempty"`
	Fees            *Fees            `json:"fees,omitempty"`
	Subject         string           `json:"subject,omitempty"`
	EmailType       EmailType        `json:"emailType,omitempty"`
}

// TotalItemCount sums the quantities of all line items.
func (o *Order) TotalItemCount() int {
	n := 0
	for _, it := range o.Items {
		n += it.Quantity
	}
	return n
}

// Participant is one named member of a group order, used for collaborator
// statistics on the network-capture path.
type Participant struct {
	Name  string `json:"name"`
	Items []Item `json:"items"`
}

// Snapshot is one raw network capture as received from the browser
// collaborator, kept alongside the normalized orders because group-order
// statistics need the nested per-participant detail the normalization
// flattens away.
type Snapshot struct {
	ID         string       `json:"id"`
	Ts         time.Time    `json:"ts"`
	SourceType string       `json:"sourceType"`
	URL        string       `json:"url,omitempty"`
	Creator    string       `json:"creator,omitempty"`
	GroupInfo  []GroupOrder `json:"groupInfo,omitempty"`
}

// GroupOrder is the group-order detail extracted from one captured order:
// who created it and what each participant added.
type GroupOrder struct {
	OrderID      string        `json:"orderId"`
	Creator      string        `json:"creator,omitempty"`
	Participants []Participant `json:"participants,omitempty"`
}
