package profile

import (
	"math"

	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/orders"
)

const (
	priceSensitivityScale = 1000.0
	frequencyWindowDays   = 30.0
)

// Build derives a profile from one user's orders. Orders whose restaurant is
// not in the catalog count toward the average spend only.
func Build(userOrders []orders.Order, cat *catalog.Catalog) Profile {
	if len(userOrders) == 0 {
		return Default()
	}

	var (
		total          float64
		resolved       int
		ratingSum      float64
		deliverySum    float64
		cuisineCounts  = make(map[string]int)
		cuisineTallied int
	)
	for _, o := range userOrders {
		total += o.Total
		r, ok := cat.Lookup(o.Restaurant)
		if !ok {
			continue
		}
		resolved++
		ratingSum += r.Rating
		deliverySum += r.DeliveryMinutes()
		if r.Cuisine != "" {
			cuisineCounts[r.Cuisine]++
			cuisineTallied++
		}
	}

	avg := total / float64(len(userOrders))
	p := Profile{
		AvgOrderValue:          avg,
		PreferredCuisines:      make(map[string]float64, len(cuisineCounts)),
		PriceSensitivity:       math.Min(avg/priceSensitivityScale, 1.0),
		RatingPreference:       DefaultRatingPreference,
		DeliveryTimePreference: DefaultDeliveryTimePreference,
		OrderFrequency:         float64(len(userOrders)) / frequencyWindowDays,
	}
	if p.PriceSensitivity < 0 {
		p.PriceSensitivity = 0
	}
	for c, n := range cuisineCounts {
		p.PreferredCuisines[c] = float64(n) / float64(cuisineTallied)
	}
	if resolved > 0 {
		p.RatingPreference = ratingSum / float64(resolved)
		p.DeliveryTimePreference = deliverySum / float64(resolved)
	}
	return p
}

// BuildAll computes a profile for every user in h.
func BuildAll(h *orders.History, cat *catalog.Catalog) map[string]Profile {
	out := make(map[string]Profile)
	for _, u := range h.Users() {
		out[u] = Build(h.Orders(u), cat)
	}
	return out
}
