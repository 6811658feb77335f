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

// Package receipt extracts order fields from decoded DoorDash receipt email
// bodies and assembles them into canonical orders.
//
// Every extractor is a pure function over the body text. Patterns are tried
// in a fixed priority order and the first match wins; no match yields the
// documented default (empty string, nil, or 0) rather than an error.
package receipt

import (
	"fmt"
	"html"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/ddwrapped/ingestion/internal/models"
)

// ContentKind selects the parsing strategy for item/total/fee extraction.
// The delivery address is always extracted from plain text, where the
// formatting is reliable unescaped.
type ContentKind int

const (
	PlainText ContentKind = iota
	HTML
)

// restaurantPatterns are tried against the subject line in order.
var restaurantPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Final receipt for .+ from (.+)$`),
	regexp.MustCompile(`(?i)Order Confirmation for .+ from (.+)$`),
	regexp.MustCompile(`(?i)Your .+ order from (.+)$`),
	regexp.MustCompile(`(?i)Receipt from (.+)$`),
}

// ExtractRestaurant pulls the restaurant name out of the subject line.
// Returns "" when no known subject template matches.
func ExtractRestaurant(subject string) string {
	for _, p := range restaurantPatterns {
		if m := p.FindStringSubmatch(subject); m != nil {
			return strings.TrimSpace(m[1])
		}
	}
	return ""
}

var (
	// "1x Item Name $12.34", plus the localized multiplication-sign variant.
	plainItemPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(\d+)x\s+([^\n$]+?)\s*\$?([\d,]+\.?\d*)`),
		regexp.MustCompile(`(\d+)\s*×\s*([^\n$]+?)\s*\$?([\d,]+\.?\d*)`),
	}

	// Bolded quantity, item name in the adjacent cell, then the first
	// currency amount that follows.
	htmlItemPattern = regexp.MustCompile(
		`(?s)<b[^>]*>\s*(\d+)\s*[x×]\s*</b>\s*(?:</td>\s*<td[^>]*>)?\s*([^<]+?)\s*<.*?\$\s*([\d,]+\.?\d*)`)

	itemNameTrailer = regexp.MustCompile(`[^a-zA-Z0-9)\s]+$`)
	multiSpace      = regexp.MustCompile(`\s+`)
)

// ExtractItems finds every line item in the body. An item is dropped when
// its price parses to zero or its name is empty after cleanup.
func ExtractItems(text string, kind ContentKind) []models.Item {
	var items []models.Item

	appendItem := func(qty, name, price string, unescape bool) {
		quantity, err := strconv.Atoi(qty)
		if err != nil || quantity < 1 {
			return
		}
		if unescape {
			name = html.UnescapeString(name)
		}
		name = multiSpace.ReplaceAllString(strings.TrimSpace(name), " ")
		name = strings.TrimSpace(itemNameTrailer.ReplaceAllString(name, ""))

		cents := parseCents(price)
		if name == "" || cents <= 0 {
			return
		}
		items = append(items, models.Item{Name: name, Quantity: quantity, Price: cents})
	}

	if kind == HTML {
		for _, m := range htmlItemPattern.FindAllStringSubmatch(text, -1) {
			appendItem(m[1], m[2], m[3], true)
		}
		return items
	}

	for _, p := range plainItemPatterns {
		for _, m := range p.FindAllStringSubmatch(text, -1) {
			appendItem(m[1], m[2], m[3], false)
		}
	}
	return items
}

var (
	plainTotalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)Final total charged\s*\$?([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)Total:\s*\$?([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)ESTIMATED TOTAL:\s*\$?([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)Grand Total\s*\$?([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?i)Order Total\s*\$?([\d,]+\.?\d*)`),
	}

	htmlTotalPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?is)Final total charged.*?\$\s*([\d,]+\.?\d*)`),
		regexp.MustCompile(`(?is)>\s*Total:?\s*<.*?\$\s*([\d,]+\.?\d*)`),
	}
)

// ExtractTotal returns the grand total in cents, or 0 when no pattern
// matches.
func ExtractTotal(text string, kind ContentKind) int64 {
	patterns := plainTotalPatterns
	if kind == HTML {
		patterns = htmlTotalPatterns
	}
	for _, p := range patterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return parseCents(m[1])
		}
	}
	return 0
}

// addressPatterns match a street + city + state + ZIP (+ country) shape.
var addressPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)Your receipt\s+(.+?,\s*[A-Z]{2}\s*\d{5}(?:-\d{4})?,?\s*USA?)`),
	regexp.MustCompile(`(?i)Deliver(?:ed)? to[:\s]+(.+?,\s*[A-Z]{2}\s*\d{5}(?:-\d{4})?)`),
	regexp.MustCompile(`(?i)(\d+[^,\n]+,\s*[^,\n]+,\s*[A-Z]{2}\s*\d{5}(?:-\d{4})?,?\s*USA?)`),
}

// ExtractAddress finds the delivery address in plain body text. Returns ""
// when nothing address-shaped is present.
func ExtractAddress(text string) string {
	for _, p := range addressPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return multiSpace.ReplaceAllString(strings.TrimSpace(m[1]), " ")
		}
	}
	return ""
}

// feeLabels maps each fee to its plain-text pattern, in a fixed order so
// the HTML patterns can be derived from the same labels.
var plainFeePatterns = map[string]*regexp.Regexp{
	"subtotal": regexp.MustCompile(`(?i)Subtotal\s*\$?([\d,]+\.?\d*)`),
	"tax":      regexp.MustCompile(`(?i)Tax\s*\$?([\d,]+\.?\d*)`),
	"delivery": regexp.MustCompile(`(?i)Delivery fee\s*\$?([\d,]+\.?\d*)`),
	"service":  regexp.MustCompile(`(?i)Service\s*fee\s*\$?([\d,]+\.?\d*)`),
	"tip":      regexp.MustCompile(`(?i)(?:Dasher\s*)?tip\s*\$?([\d,]+\.?\d*)`),
}

// htmlFeePattern builds the structural cell-pair pattern for one fee label:
// the label closes a table cell and the amount closes a paragraph.
func htmlFeePattern(label string) *regexp.Regexp {
	return regexp.MustCompile(fmt.Sprintf(`(?is)%s\s*</td>.*?\$?\s*([\d,]+\.?\d*)\s*</p>`, label))
}

var htmlFeePatterns = map[string]*regexp.Regexp{
	"subtotal": htmlFeePattern(`Subtotal`),
	"tax":      htmlFeePattern(`Tax`),
	"delivery": htmlFeePattern(`Delivery fee`),
	"service":  htmlFeePattern(`Service\s*fee`),
	"tip":      htmlFeePattern(`(?:Dasher\s*)?tip`),
}

// ExtractFees pulls the fee breakdown out of the body. Each fee is looked
// up independently; anything unmatched stays 0.
func ExtractFees(text string, kind ContentKind) models.Fees {
	patterns := plainFeePatterns
	if kind == HTML {
		patterns = htmlFeePatterns
	}

	lookup := func(name string) int64 {
		if m := patterns[name].FindStringSubmatch(text); m != nil {
			return parseCents(m[1])
		}
		return 0
	}

	return models.Fees{
		Subtotal:    lookup("subtotal"),
		Tax:         lookup("tax"),
		DeliveryFee: lookup("delivery"),
		ServiceFee:  lookup("service"),
		Tip:         lookup("tip"),
	}
}

// parseCents converts a captured dollar amount ("1,234.56") to integer
// cents, stripping thousands separators. Unparseable input yields 0.
func parseCents(s string) int64 {
	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
	if err != nil {
		return 0
	}
	return int64(math.Round(v * 100))
}
