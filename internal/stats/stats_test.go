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

package stats

import (
	"math"
	"testing"
	"time"

	"github.com/ddwrapped/ingestion/internal/models"
)

func sampleOrders() []models.Order {
	return []models.Order{
		{
			ID:             "1",
			RestaurantName: "Chipotle",
			CreatedAt:      time.Date(2025, 6, 14, 19, 30, 0, 0, time.UTC), // Saturday
			TotalPrice:     4058,
			Fees:           &models.Fees{Tip: 500},
			Items: []models.Item{
				{Name: "Burrito Bowl", Quantity: 2, Price: 1299},
			},
			DeliveryAddress: &models.DeliveryAddress{
				Lat: 37.7649, Lng: -122.3927, PrintableAddress: "1 Arkansas St",
			},
		},
		{
			ID:             "2",
			RestaurantName: "Chipotle",
			CreatedAt:      time.Date(2025, 6, 21, 12, 0, 0, 0, time.UTC), // Saturday
			TotalPrice:     1500,
			Items: []models.Item{
				{Name: "Burrito Bowl", Quantity: 1, Price: 1299},
				{Name: "Chips", Quantity: 1, Price: 299},
			},
			DeliveryAddress: &models.DeliveryAddress{
				Lat: 40.7128, Lng: -74.0060, PrintableAddress: "NYC",
			},
		},
		{
			ID:             "3",
			RestaurantName: "Sweetgreen",
			CreatedAt:      time.Date(2025, 7, 1, 12, 0, 0, 0, time.UTC),
			TotalPrice:     0, // excluded from extremes, included elsewhere
			Items:          []models.Item{{Name: "Harvest Bowl", Quantity: 1, Price: 1399}},
		},
	}
}

func TestCompute_Totals(t *testing.T) {
	s := Compute(sampleOrders(), nil)

	if s.TotalOrders != 3 {
		t.Errorf("totalOrders = %d", s.TotalOrders)
	}
	// Cents converted to dollars only at aggregation time.
	if math.Abs(s.TotalSpent-55.58) > 1e-9 {
		t.Errorf("totalSpent = %v, want 55.58", s.TotalSpent)
	}
	if math.Abs(s.TotalTips-5.00) > 1e-9 {
		t.Errorf("totalTips = %v, want 5.00", s.TotalTips)
	}
	if s.TotalItems != 5 {
		t.Errorf("totalItems = %d, want sum of quantities 5", s.TotalItems)
	}
	if math.Abs(s.AvgOrder-55.58/3) > 1e-9 {
		t.Errorf("avgOrder = %v", s.AvgOrder)
	}
}

func TestCompute_TopRestaurantsAndDishes(t *testing.T) {
	s := Compute(sampleOrders(), nil)

	if s.UniqueRestaurants != 2 {
		t.Errorf("uniqueRestaurants = %d", s.UniqueRestaurants)
	}
	if len(s.TopRestaurants) != 2 || s.TopRestaurants[0].Name != "Chipotle" || s.TopRestaurants[0].Count != 2 {
		t.Errorf("topRestaurants = %+v", s.TopRestaurants)
	}
	if len(s.TopDishes) == 0 || s.TopDishes[0].Name != "Burrito Bowl" || s.TopDishes[0].Count != 3 {
		t.Errorf("topDishes = %+v", s.TopDishes)
	}
	if math.Abs(s.TopDishes[0].Spent-38.97) > 1e-9 {
		t.Errorf("dish spent = %v, want 38.97", s.TopDishes[0].Spent)
	}
}

func TestCompute_TiesBreakByFirstEncounter(t *testing.T) {
	orders := []models.Order{
		{ID: "1", RestaurantName: "Alpha"},
		{ID: "2", RestaurantName: "Beta"},
	}
	s := Compute(orders, nil)
	if s.TopRestaurants[0].Name != "Alpha" {
		t.Errorf("tie must go to first encountered, got %+v", s.TopRestaurants)
	}
}

func TestCompute_TimeHistograms(t *testing.T) {
	s := Compute(sampleOrders(), nil)

	if s.TopDay == nil || s.TopDay.Name != "Saturday" || s.TopDay.Count != 2 {
		t.Errorf("topDay = %+v", s.TopDay)
	}
	if s.BusiestHour == nil || s.BusiestHour.Hour != 12 || s.BusiestHour.Count != 2 {
		t.Errorf("busiestHour = %+v", s.BusiestHour)
	}
	if s.TopMonth == nil || s.TopMonth.Name != "Jun" || s.TopMonth.Count != 2 {
		t.Errorf("topMonth = %+v", s.TopMonth)
	}
	// day 6 (Saturday) at hour 19 appears once in the heatmap.
	if s.ActivityMap["6-19"] != 1 {
		t.Errorf("activityMap = %+v", s.ActivityMap)
	}
}

func TestCompute_PriceExtremes(t *testing.T) {
	s := Compute(sampleOrders(), nil)

	if s.MostExpensive == nil || s.MostExpensive.ID != "1" {
		t.Errorf("mostExpensive = %+v", s.MostExpensive)
	}
	if s.LeastExpensive == nil || s.LeastExpensive.ID != "2" {
		t.Errorf("zero-total order must not win leastExpensive: %+v", s.LeastExpensive)
	}
}

func TestCompute_Locations(t *testing.T) {
	s := Compute(sampleOrders(), nil)

	loc := s.DeliveryLocations
	if loc.UniqueCount != 2 || loc.OrdersWithLocation != 2 {
		t.Errorf("locations = %+v", loc)
	}
	// SF to NYC is roughly 2565 miles.
	if loc.MaxDistance < 2500 || loc.MaxDistance > 2650 {
		t.Errorf("maxDistance = %v", loc.MaxDistance)
	}
	if len(loc.FurthestPair) != 2 {
		t.Errorf("furthestPair = %+v", loc.FurthestPair)
	}
}

func TestCompute_FriendStats(t *testing.T) {
	snapshots := []models.Snapshot{
		{
			Creator: "Lev E",
			GroupInfo: []models.GroupOrder{
				{
					OrderID: "g-1",
					Creator: "Lev E",
					Participants: []models.Participant{
						{Name: "Lev E", Items: []models.Item{{Name: "Poke Bowl", Quantity: 1, Price: 1500}}},
						{Name: "Sam K", Items: []models.Item{{Name: "Miso Soup", Quantity: 2, Price: 400}}},
					},
				},
				{
					OrderID: "g-2",
					Creator: "Lev E",
					Participants: []models.Participant{
						{Name: "Sam K", Items: []models.Item{{Name: "Miso Soup", Quantity: 1, Price: 400}}},
					},
				},
			},
		},
	}

	s := Compute(nil, snapshots)
	if s.GroupOrdersCount != 2 {
		t.Errorf("groupOrdersCount = %d", s.GroupOrdersCount)
	}
	if len(s.TopFriends) != 1 {
		t.Fatalf("primary account holder must be excluded: %+v", s.TopFriends)
	}
	f := s.TopFriends[0]
	if f.Name != "Sam K" || f.Count != 2 {
		t.Errorf("friend = %+v", f)
	}
	if math.Abs(f.Spent-12.00) > 1e-9 {
		t.Errorf("friend spent = %v, want 12.00", f.Spent)
	}
	if f.FavoriteDish != "Miso Soup" {
		t.Errorf("favoriteDish = %q", f.FavoriteDish)
	}
}

func TestCompute_EmptyCollection(t *testing.T) {
	s := Compute(nil, nil)
	if s.TotalOrders != 0 || s.TotalSpent != 0 || s.AvgOrder != 0 {
		t.Errorf("empty stats = %+v", s)
	}
	if s.MostExpensive != nil || s.LeastExpensive != nil {
		t.Error("extremes must be nil for an empty collection")
	}
	if s.TopDay != nil || s.BusiestHour != nil || s.TopMonth != nil {
		t.Error("time aggregates must be nil for an empty collection")
	}
}

func TestHaversine(t *testing.T) {
	if d := Haversine(37.7649, -122.3927, 37.7649, -122.3927); d != 0 {
		t.Errorf("distance between identical points = %v, want 0", d)
	}

	d1 := Haversine(37.7649, -122.3927, 40.7128, -74.0060)
	d2 := Haversine(40.7128, -74.0060, 37.7649, -122.3927)
	if math.Abs(d1-d2) > 1e-9 {
		t.Errorf("haversine not symmetric: %v vs %v", d1, d2)
	}
	if d1 < 2500 || d1 > 2650 {
		t.Errorf("SF-NYC distance = %v miles, expected ~2565", d1)
	}
}
