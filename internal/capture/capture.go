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

// Package capture normalizes intercepted network response envelopes into
// canonical orders. The platform's GraphQL responses arrive in a few
// shapes; every field has an ordered fallback chain and a default, so one
// malformed order never aborts the rest of the batch.
package capture

import (
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ddwrapped/ingestion/internal/models"
)

// Result is one normalized capture: the canonical orders plus the
// group-order detail that order normalization flattens away.
type Result struct {
	Orders  []models.Order
	Groups  []models.GroupOrder
	Creator string // first order creator encountered in the payload
}

// envelope covers the response shapes:
// {data:{getConsumerOrdersWithDetails:[...]}} — the array directly,
// {data:{getConsumerOrdersWithDetails:{orders:[...]}}} — wrapped,
// {data:{orders:[...]}} — the short form.
type envelope struct {
	Data struct {
		GetConsumerOrdersWithDetails json.RawMessage `json:"getConsumerOrdersWithDetails"`
		Orders                       []rawOrder      `json:"orders"`
	} `json:"data"`
}

type rawOrder struct {
	ID             string `json:"id"`
	OrderUUID      string `json:"orderUuid"`
	OrderID        string `json:"orderId"`
	CreatedAt      string `json:"createdAt"`
	SubmittedAt    string `json:"submittedAt"`
	StoreName      string `json:"storeName"`
	RestaurantName string `json:"restaurantName"`
	Store          *struct {
		Name string `json:"name"`
	} `json:"store"`
	GrandTotal *struct {
		UnitAmount int64  `json:"unitAmount"`
		Currency   string `json:"currency"`
	} `json:"grandTotal"`
	TotalPrice      int64       `json:"totalPrice"`
	IsGroup         bool        `json:"isGroup"`
	Creator         *rawCreator `json:"creator"`
	Orders          []rawSub    `json:"orders"`
	Items           []rawItem   `json:"items"`
	DeliveryAddress *rawAddress `json:"deliveryAddress"`
}

type rawCreator struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
}

func (c *rawCreator) fullName() string {
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

type rawSub struct {
	Creator *rawCreator `json:"creator"`
	Items   []rawItem   `json:"items"`
}

type rawItem struct {
	Name              string          `json:"name"`
	ItemName          string          `json:"itemName"`
	Quantity          int             `json:"quantity"`
	OriginalItemPrice int64           `json:"originalItemPrice"`
	SubstitutionPrice *struct {
		UnitAmount int64 `json:"unitAmount"`
	} `json:"substitutionPrice"`
	Price json.RawMessage `json:"price"` // bare number or {unitAmount}
}

type rawAddress struct {
	Lat              float64 `json:"lat"`
	Latitude         float64 `json:"latitude"`
	Lng              float64 `json:"lng"`
	Longitude        float64 `json:"longitude"`
	Street           string  `json:"street"`
	City             string  `json:"city"`
	State            string  `json:"state"`
	ZipCode          string  `json:"zipCode"`
	PrintableAddress string  `json:"printableAddress"`
}

// Normalize converts a raw response body into canonical orders. A payload
// that is not a recognizable envelope yields an empty result, never an
// error; per-order problems drop only that order.
func Normalize(payload []byte) Result {
	var env envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		slog.Warn("capture payload not a valid envelope", "error", err)
		return Result{}
	}

	raws := env.Data.Orders
	if len(env.Data.GetConsumerOrdersWithDetails) > 0 {
		raws = decodeDetails(env.Data.GetConsumerOrdersWithDetails)
	}

	var res Result
	for _, ro := range raws {
		if res.Creator == "" {
			res.Creator = ro.Creator.fullName()
		}
		res.Orders = append(res.Orders, normalizeOrder(ro))
		if ro.IsGroup && len(ro.Orders) > 0 {
			res.Groups = append(res.Groups, normalizeGroup(ro))
		}
	}
	return res
}

// decodeDetails handles getConsumerOrdersWithDetails being either the
// order array itself or an object wrapping one.
func decodeDetails(raw json.RawMessage) []rawOrder {
	var list []rawOrder
	if err := json.Unmarshal(raw, &list); err == nil {
		return list
	}
	var wrapped struct {
		Orders []rawOrder `json:"orders"`
	}
	if err := json.Unmarshal(raw, &wrapped); err == nil {
		return wrapped.Orders
	}
	slog.Warn("unrecognized getConsumerOrdersWithDetails shape")
	return nil
}

func normalizeOrder(ro rawOrder) models.Order {
	o := models.Order{
		ID:             firstNonEmpty(ro.ID, ro.OrderUUID, ro.OrderID),
		RestaurantName: "Unknown Restaurant",
		CreatedAt:      parseTimestamp(ro.CreatedAt, ro.SubmittedAt),
		TotalPrice:     ro.TotalPrice,
		Currency:       "USD",
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}
	if name := firstNonEmpty(storeName(ro), ro.StoreName, ro.RestaurantName); name != "" {
		o.RestaurantName = name
	}
	if ro.GrandTotal != nil {
		if ro.GrandTotal.UnitAmount != 0 {
			o.TotalPrice = ro.GrandTotal.UnitAmount
		}
		if ro.GrandTotal.Currency != "" {
			o.Currency = ro.GrandTotal.Currency
		}
	}

	// Group orders nest items per participant; flatten them all. Orders
	// without sub-orders carry their items directly.
	for _, sub := range ro.Orders {
		for _, it := range sub.Items {
			o.Items = append(o.Items, normalizeItem(it))
		}
	}
	if len(o.Items) == 0 {
		for _, it := range ro.Items {
			o.Items = append(o.Items, normalizeItem(it))
		}
	}

	if ro.DeliveryAddress != nil {
		o.DeliveryAddress = normalizeAddress(ro.DeliveryAddress)
	}
	return o
}

func normalizeGroup(ro rawOrder) models.GroupOrder {
	g := models.GroupOrder{
		OrderID: firstNonEmpty(ro.ID, ro.OrderUUID, ro.OrderID),
		Creator: ro.Creator.fullName(),
	}
	for _, sub := range ro.Orders {
		name := sub.Creator.fullName()
		if name == "" {
			continue
		}
		p := models.Participant{Name: name}
		for _, it := range sub.Items {
			p.Items = append(p.Items, normalizeItem(it))
		}
		g.Participants = append(g.Participants, p)
	}
	return g
}

func normalizeItem(it rawItem) models.Item {
	item := models.Item{
		Name:     firstNonEmpty(it.Name, it.ItemName),
		Quantity: it.Quantity,
		Price:    itemPrice(it),
	}
	if item.Name == "" {
		item.Name = "Unknown Item"
	}
	if item.Quantity == 0 {
		item.Quantity = 1
	}
	return item
}

// itemPrice resolves the price fallback chain: originalItemPrice, then
// substitutionPrice.unitAmount, then price as an object or bare number.
func itemPrice(it rawItem) int64 {
	if it.OriginalItemPrice != 0 {
		return it.OriginalItemPrice
	}
	if it.SubstitutionPrice != nil && it.SubstitutionPrice.UnitAmount != 0 {
		return it.SubstitutionPrice.UnitAmount
	}
	if len(it.Price) == 0 {
		return 0
	}
	var obj struct {
		UnitAmount int64 `json:"unitAmount"`
	}
	if err := json.Unmarshal(it.Price, &obj); err == nil && obj.UnitAmount != 0 {
		return obj.UnitAmount
	}
	var n int64
	if err := json.Unmarshal(it.Price, &n); err == nil {
		return n
	}
	return 0
}

func normalizeAddress(ra *rawAddress) *models.DeliveryAddress {
	addr := &models.DeliveryAddress{
		Lat:              ra.Lat,
		Lng:              ra.Lng,
		Street:           ra.Street,
		City:             ra.City,
		State:            ra.State,
		ZipCode:          ra.ZipCode,
		PrintableAddress: ra.PrintableAddress,
	}
	if addr.Lat == 0 {
		addr.Lat = ra.Latitude
	}
	if addr.Lng == 0 {
		addr.Lng = ra.Longitude
	}
	if addr.PrintableAddress == "" {
		addr.PrintableAddress = strings.TrimSpace(strings.Trim(
			ra.Street+", "+ra.City+", "+ra.State, ", "))
	}
	return addr
}

// parseTimestamp tries the createdAt then submittedAt fields as RFC-3339.
// Both missing means the capture arrived live; stamp it now, as the
// extension did.
func parseTimestamp(candidates ...string) time.Time {
	for _, c := range candidates {
		if c == "" {
			continue
		}
		if t, err := time.Parse(time.RFC3339, c); err == nil {
			return t
		}
	}
	return time.Now().UTC()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func storeName(ro rawOrder) string {
	if ro.Store == nil {
		return ""
	}
	return ro.Store.Name
}
