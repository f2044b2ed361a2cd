package recommend

import (
	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/orders"
)

// Feature is the attribute vector of one restaurant.
type Feature struct {
	Name            string
	Rating          float64
	DeliveryMinutes float64
	Cuisine         []float64 // one-hot over Features.Cuisines()
}

// Features is the restaurant × feature matrix. Catalog restaurants come
// first in catalog order, then restaurants known only from orders.
type Features struct {
	cuisines []string
	rows     []Feature
	idx      map[string]int
}

// BuildFeatures derives a feature row for every restaurant in the catalog or
// the order history.
func BuildFeatures(cat *catalog.Catalog, h *orders.History) *Features {
	f := &Features{
		cuisines: cat.Cuisines(),
		idx:      make(map[string]int),
	}
	cuisineCol := make(map[string]int, len(f.cuisines))
	for i, c := range f.cuisines {
		cuisineCol[c] = i
	}

	add := func(name string) {
		if name == "" {
			return
		}
		if _, ok := f.idx[name]; ok {
			return
		}
		row := Feature{
			Name:            name,
			Rating:          catalog.UnknownRating,
			DeliveryMinutes: catalog.DefaultDeliveryMinutes,
			Cuisine:         make([]float64, len(f.cuisines)),
		}
		if r, ok := cat.Lookup(name); ok {
			row.Rating = r.Rating
			row.DeliveryMinutes = r.DeliveryMinutes()
			if j, ok := cuisineCol[r.Cuisine]; ok {
				row.Cuisine[j] = 1
			}
		}
		f.idx[name] = len(f.rows)
		f.rows = append(f.rows, row)
	}

	for _, r := range cat.All() {
		add(r.Name)
	}
	for _, u := range h.Users() {
		for _, o := range h.Orders(u) {
			add(o.Restaurant)
		}
	}
	return f
}

// Cuisines returns the one-hot column labels.
func (f *Features) Cuisines() []string { return append([]string(nil), f.cuisines...) }

// Rows returns every feature row in iteration order.
func (f *Features) Rows() []Feature { return f.rows }

// Get returns the row for name.
func (f *Features) Get(name string) (Feature, bool) {
	i, ok := f.idx[name]
	if !ok {
		return Feature{}, false
	}
	return f.rows[i], true
}

// cuisineAffinity sums the user's preference over the cuisines set in row.
func (f *Features) cuisineAffinity(row Feature, prefs map[string]float64) float64 {
	var sum float64
	for j, v := range row.Cuisine {
		if v > 0 {
			sum += prefs[f.cuisines[j]]
		}
	}
	return sum
}
