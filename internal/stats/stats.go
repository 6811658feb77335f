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

// Package stats computes the descriptive aggregates behind the Wrapped
// slideshow. Compute is a pure function of its inputs: it is re-run from
// the full collection whenever the collection changes and is never cached
// or persisted on its own.
//
// Monetary fields at rest are integer cents; conversion to dollars happens
// here and only here.
package stats

import (
	"fmt"
	"math"
	"sort"

	"github.com/ddwrapped/ingestion/internal/models"
)

const (
	topRestaurantCount = 5
	topDishCount       = 5
	topLocationCount   = 5
	topFriendCount     = 3

	earthRadiusMiles = 3959
)

var (
	dayNames   = []string{"Sunday", "Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}
	monthNames = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}
)

// NameCount is a ranked key with its occurrence count.
type NameCount struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// HourCount is the busiest-hour aggregate.
type HourCount struct {
	Hour  int `json:"hour"`
	Count int `json:"count"`
}

// Dish is a ranked item with the dollars spent on it.
type Dish struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	Spent float64 `json:"spent"`
}

// Friend is a group-order collaborator.
type Friend struct {
	Name         string  `json:"name"`
	Count        int     `json:"count"`
	Spent        float64 `json:"spent"`
	FavoriteDish string  `json:"favoriteDish"`
}

// Location is a delivery location cluster (lat/lng rounded to 4 decimals).
type Location struct {
	Lat     float64 `json:"lat"`
	Lng     float64 `json:"lng"`
	Address string  `json:"address"`
	Count   int     `json:"count"`
}

// LocationStats summarizes where orders were delivered.
type LocationStats struct {
	UniqueCount        int        `json:"uniqueCount"`
	OrdersWithLocation int        `json:"ordersWithLocation"`
	TopLocations       []Location `json:"topLocations"`
	MaxDistance        float64    `json:"maxDistance"`
	FurthestPair       []Location `json:"furthestPair,omitempty"`
}

// Statistics is the full derived aggregate over one collection snapshot.
type Statistics struct {
	TotalOrders       int     `json:"totalOrders"`
	TotalSpent        float64 `json:"totalSpent"`
	AvgOrder          float64 `json:"avgOrder"`
	TotalItems        int     `json:"totalItems"`
	TotalTips         float64 `json:"totalTips"`
	UniqueRestaurants int     `json:"uniqueRestaurants"`

	TopRestaurants []NameCount `json:"topRestaurants"`
	TopDishes      []Dish      `json:"topDishes"`

	GroupOrdersCount int      `json:"groupOrdersCount"`
	TopFriends       []Friend `json:"topFriends"`

	TopDay      *NameCount     `json:"topDay"`
	BusiestHour *HourCount     `json:"busiestHour"`
	TopMonth    *NameCount     `json:"topMonth"`
	DayCounts   map[string]int `json:"dayCounts"`
	HourCounts  map[int]int    `json:"hourCounts"`
	MonthCounts map[string]int `json:"monthCounts"`
	ActivityMap map[string]int `json:"activityMap"` // "{weekday}-{hour}" heatmap keys

	MostExpensive  *models.Order `json:"mostExpensive,omitempty"`
	LeastExpensive *models.Order `json:"leastExpensive,omitempty"`

	DeliveryLocations LocationStats `json:"deliveryLocations"`
}

// Compute aggregates a collection snapshot. Snapshots carry the raw
// group-order detail needed for collaborator stats on the capture path;
// pass nil when only email-sourced orders exist.
func Compute(orders []models.Order, snapshots []models.Snapshot) *Statistics {
	s := &Statistics{
		TotalOrders: len(orders),
		DayCounts:   make(map[string]int),
		HourCounts:  make(map[int]int),
		MonthCounts: make(map[string]int),
		ActivityMap: make(map[string]int),
	}

	restaurants := newTally()
	dishes := newTally()
	dishSpent := make(map[string]int64)

	var totalCents, tipCents int64

	for i := range orders {
		o := &orders[i]
		totalCents += o.TotalPrice
		s.TotalItems += o.TotalItemCount()
		if o.Fees != nil {
			tipCents += o.Fees.Tip
		}

		restaurants.add(o.RestaurantName, 1)
		for _, it := range o.Items {
			dishes.add(it.Name, it.Quantity)
			dishSpent[it.Name] += it.Price * int64(it.Quantity)
		}

		if !o.CreatedAt.IsZero() {
			day := dayNames[int(o.CreatedAt.Weekday())]
			hour := o.CreatedAt.Hour()
			s.DayCounts[day]++
			s.HourCounts[hour]++
			s.MonthCounts[monthNames[int(o.CreatedAt.Month())-1]]++
			s.ActivityMap[fmt.Sprintf("%d-%d", int(o.CreatedAt.Weekday()), hour)]++
		}
	}

	s.TotalSpent = dollars(totalCents)
	s.TotalTips = dollars(tipCents)
	if s.TotalOrders > 0 {
		s.AvgOrder = s.TotalSpent / float64(s.TotalOrders)
	}

	s.UniqueRestaurants = restaurants.size()
	s.TopRestaurants = restaurants.top(topRestaurantCount)
	for _, nc := range dishes.top(topDishCount) {
		s.TopDishes = append(s.TopDishes, Dish{
			Name:  nc.Name,
			Count: nc.Count,
			Spent: dollars(dishSpent[nc.Name]),
		})
	}

	s.TopDay = maxName(s.DayCounts)
	s.TopMonth = maxName(s.MonthCounts)
	s.BusiestHour = maxHour(s.HourCounts)

	s.MostExpensive, s.LeastExpensive = priceExtremes(orders)
	s.DeliveryLocations = locationStats(orders)
	s.GroupOrdersCount, s.TopFriends = friendStats(snapshots)

	return s
}

// priceExtremes is a single pass over orders with a strictly positive
// total. Zero-total orders are excluded here but counted everywhere else.
func priceExtremes(orders []models.Order) (max, min *models.Order) {
	for i := range orders {
		o := &orders[i]
		if o.TotalPrice <= 0 {
			continue
		}
		if max == nil || o.TotalPrice > max.TotalPrice {
			max = o
		}
		if min == nil || o.TotalPrice < min.TotalPrice {
			min = o
		}
	}
	return max, min
}

// locationStats clusters orders by rounded lat/lng and finds the furthest
// pair of clusters. The pairwise scan is quadratic in the number of
// clusters, which is bounded by unique delivery addresses.
func locationStats(orders []models.Order) LocationStats {
	ls := LocationStats{}

	clusters := make(map[string]*Location)
	var keys []string

	for i := range orders {
		addr := orders[i].DeliveryAddress
		if addr == nil || addr.Lat == 0 || addr.Lng == 0 {
			continue
		}
		ls.OrdersWithLocation++
		key := fmt.Sprintf("%.4f,%.4f", addr.Lat, addr.Lng)
		c, ok := clusters[key]
		if !ok {
			printable := addr.PrintableAddress
			if printable == "" {
				printable = "Unknown"
			}
			c = &Location{Lat: addr.Lat, Lng: addr.Lng, Address: printable}
			clusters[key] = c
			keys = append(keys, key)
		}
		c.Count++
	}

	ls.UniqueCount = len(clusters)

	ranked := make([]Location, 0, len(keys))
	for _, k := range keys {
		ranked = append(ranked, *clusters[k])
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > topLocationCount {
		ls.TopLocations = ranked[:topLocationCount]
	} else {
		ls.TopLocations = ranked
	}

	for i := 0; i < len(keys); i++ {
		for j := i + 1; j < len(keys); j++ {
			a, b := clusters[keys[i]], clusters[keys[j]]
			d := Haversine(a.Lat, a.Lng, b.Lat, b.Lng)
			if d > ls.MaxDistance {
				ls.MaxDistance = d
				ls.FurthestPair = []Location{*a, *b}
			}
		}
	}
	return ls
}

// friendStats attributes spending and a favorite dish to each group-order
// participant, excluding the primary account holder — inferred as the
// first order creator encountered across the snapshots.
func friendStats(snapshots []models.Snapshot) (groupCount int, friends []Friend) {
	primary := ""
	for _, snap := range snapshots {
		if snap.Creator != "" {
			primary = snap.Creator
			break
		}
	}

	type friendAcc struct {
		orders int
		cents  int64
		dishes *tally
	}
	acc := make(map[string]*friendAcc)
	var names []string

	for _, snap := range snapshots {
		for _, g := range snap.GroupInfo {
			groupCount++
			for _, p := range g.Participants {
				if p.Name == primary {
					continue
				}
				fa, ok := acc[p.Name]
				if !ok {
					fa = &friendAcc{dishes: newTally()}
					acc[p.Name] = fa
					names = append(names, p.Name)
				}
				fa.orders++
				for _, it := range p.Items {
					fa.cents += it.Price * int64(it.Quantity)
					fa.dishes.add(it.Name, it.Quantity)
				}
			}
		}
	}

	for _, name := range names {
		fa := acc[name]
		favorite := "N/A"
		if top := fa.dishes.top(1); len(top) > 0 {
			favorite = top[0].Name
		}
		friends = append(friends, Friend{
			Name:         name,
			Count:        fa.orders,
			Spent:        dollars(fa.cents),
			FavoriteDish: favorite,
		})
	}

	sort.SliceStable(friends, func(i, j int) bool { return friends[i].Count > friends[j].Count })
	if len(friends) > topFriendCount {
		friends = friends[:topFriendCount]
	}
	return groupCount, friends
}

// Haversine returns the great-circle distance in miles between two points.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	dLat := (lat2 - lat1) * math.Pi / 180
	dLon := (lon2 - lon1) * math.Pi / 180
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*math.Pi/180)*math.Cos(lat2*math.Pi/180)*
			math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusMiles * c
}

// tally counts occurrences by key while remembering first-seen order, so
// ranking ties resolve to the earlier-encountered key.
type tally struct {
	counts map[string]int
	order  []string
}

func newTally() *tally {
	return &tally{counts: make(map[string]int)}
}

func (t *tally) add(key string, n int) {
	if _, ok := t.counts[key]; !ok {
		t.order = append(t.order, key)
	}
	t.counts[key] += n
}

func (t *tally) size() int { return len(t.counts) }

// top returns the n highest-count keys, ties broken by first encounter.
func (t *tally) top(n int) []NameCount {
	ranked := make([]NameCount, 0, len(t.order))
	for _, k := range t.order {
		ranked = append(ranked, NameCount{Name: k, Count: t.counts[k]})
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].Count > ranked[j].Count })
	if len(ranked) > n {
		ranked = ranked[:n]
	}
	return ranked
}

func maxName(counts map[string]int) *NameCount {
	var best *NameCount
	// Map iteration order is random; scan the canonical name lists so the
	// result is deterministic.
	for _, name := range append(append([]string{}, dayNames...), monthNames...) {
		c, ok := counts[name]
		if !ok {
			continue
		}
		if best == nil || c > best.Count {
			best = &NameCount{Name: name, Count: c}
		}
	}
	return best
}

func maxHour(counts map[int]int) *HourCount {
	var best *HourCount
	for hour := 0; hour < 24; hour++ {
		c, ok := counts[hour]
		if !ok {
			continue
		}
		if best == nil || c > best.Count {
			best = &HourCount{Hour: hour, Count: c}
		}
	}
	return best
}

func dollars(cents int64) float64 {
	return float64(cents) / 100
}
