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

package receipt

import (
	"fmt"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/ddwrapped/ingestion/internal/email"
	"github.com/ddwrapped/ingestion/internal/models"
	"github.com/ddwrapped/ingestion/internal/orders"
)

// senderMarker identifies receipt emails by sender domain. This is the one
// hard rejection in the pipeline: everything else degrades to defaults.
const senderMarker = "doordash"

var nonAlnum = regexp.MustCompile(`[^a-zA-Z0-9]`)

// Assemble parses one raw email into a canonical order.
//
// Returns nil when the From header does not mention the platform; callers
// must treat that as "skip", not as a failure. Missing fields never reject
// the record — they take their documented defaults.
func Assemble(raw string) *models.Order {
	msg := email.Parse(raw)

	from := msg.Header("from")
	if !strings.Contains(strings.ToLower(from), senderMarker) {
		return nil
	}

	subject := msg.Header("subject")
	createdAt := parseDate(msg.Header("date"))
	restaurant := ExtractRestaurant(subject)

	// One strategy per email, chosen after MIME extraction. The address
	// always comes from the plain part.
	kind, body := PlainText, msg.PlainText
	if body == "" && msg.HTMLText != "" {
		kind, body = HTML, msg.HTMLText
	}

	order := &models.Order{
		RestaurantName: restaurant,
		CreatedAt:      createdAt,
		Items:          ExtractItems(body, kind),
		TotalPrice:     ExtractTotal(body, kind),
		Subject:        subject,
		EmailType:      classifySubject(subject),
	}

	fees := ExtractFees(body, kind)
	order.Fees = &fees

	if addr := ExtractAddress(msg.PlainText); addr != "" {
		order.DeliveryAddress = &models.DeliveryAddress{PrintableAddress: addr}
	}

	order.ID = orderID(msg.Header("message-id"), createdAt, restaurant)
	return order
}

// ParseBatch assembles every raw email and deduplicates within the batch:
// an order is kept only if its restaurant resolved and its id has not been
// seen, first occurrence winning. The result is sorted newest first.
func ParseBatch(raws []string) []models.Order {
	var batch []models.Order
	seen := make(map[string]bool)

	for _, raw := range raws {
		order := Assemble(raw)
		if order == nil || order.RestaurantName == "" || seen[order.ID] {
			continue
		}
		seen[order.ID] = true
		batch = append(batch, *order)
	}

	orders.SortNewestFirst(batch)
	return batch
}

// orderID derives the stable identifier: the Message-ID header when
// present, otherwise {unixMillis}-{restaurant}, with all non-alphanumeric
// characters stripped. Synthesized ids can collide for two distinct orders
// at the same restaurant in the same millisecond; that matches the source
// data's guarantees and is deliberately not salted away.
func orderID(messageID string, createdAt time.Time, restaurant string) string {
	if messageID == "" {
		var ms int64
		if !createdAt.IsZero() {
			ms = createdAt.UnixMilli()
		}
		messageID = fmt.Sprintf("%d-%s", ms, restaurant)
	}
	return nonAlnum.ReplaceAllString(messageID, "")
}

// parseDate parses an RFC-2822 date header ("Sun, 14 Dec 2025 01:12:45
// +0000 (UTC)"). Returns the zero time when the header is absent or
// unparseable.
func parseDate(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := mail.ParseDate(s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func classifySubject(subject string) models.EmailType {
	lower := strings.ToLower(subject)
	switch {
	case strings.Contains(lower, "final receipt"):
		return models.EmailTypeFinalReceipt
	case strings.Contains(lower, "confirmation"):
		return models.EmailTypeConfirmation
	}
	return models.EmailTypeOther
}
