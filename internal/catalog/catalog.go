// Package catalog holds the restaurant catalog the recommender and the
// support assistant describe restaurants from.
package catalog

import (
	"regexp"
	"strconv"
)

const (
	// DefaultDeliveryMinutes is used when a delivery label has no number in it.
	DefaultDeliveryMinutes = 30.0

	// Description used for restaurants that only exist in order history.
	UnknownCuisine      = "Mixed"
	UnknownRating       = 4.0
	UnknownDeliveryTime = "30-40 min"
)

// Restaurant is one catalog entry.
type Restaurant struct {
	Name         string  `json:"name"`
	Cuisine      string  `json:"cuisine"`
	Rating       float64 `json:"rating"`
	DeliveryTime string  `json:"delivery_time"` // label such as "25-35 min"
}

// DeliveryMinutes returns the parsed delivery label.
func (r Restaurant) DeliveryMinutes() float64 {
	return ParseDeliveryTime(r.DeliveryTime)
}

// Catalog is an ordered, read-only set of restaurants keyed by name.
// Iteration order is the order restaurants were supplied in.
type Catalog struct {
	restaurants []Restaurant
	byName      map[string]int
	cuisines    []string
}

// New builds a Catalog. Later duplicates of a name replace the earlier entry
// in place. Entries with an empty name are dropped.
func New(restaurants []Restaurant) *Catalog {
	c := &Catalog{byName: make(map[string]int, len(restaurants))}
	seenCuisine := make(map[string]bool)
	for _, r := range restaurants {
		if r.Name == "" {
			continue
		}
		if i, ok := c.byName[r.Name]; ok {
			c.restaurants[i] = r
		} else {
			c.byName[r.Name] = len(c.restaurants)
			c.restaurants = append(c.restaurants, r)
		}
	}
	for _, r := range c.restaurants {
		if r.Cuisine != "" && !seenCuisine[r.Cuisine] {
			seenCuisine[r.Cuisine] = true
			c.cuisines = append(c.cuisines, r.Cuisine)
		}
	}
	return c
}

// Len returns the number of restaurants.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.restaurants)
}

// Lookup finds a restaurant by exact name.
func (c *Catalog) Lookup(name string) (Restaurant, bool) {
	if c == nil {
		return Restaurant{}, false
	}
	i, ok := c.byName[name]
	if !ok {
		return Restaurant{}, false
	}
	return c.restaurants[i], true
}

// Info describes a restaurant for display. Names missing from the catalog get
// a generic description instead of an error.
func (c *Catalog) Info(name string) Restaurant {
	if r, ok := c.Lookup(name); ok {
		return r
	}
	return Restaurant{
		Name:         name,
		Cuisine:      UnknownCuisine,
		Rating:       UnknownRating,
		DeliveryTime: UnknownDeliveryTime,
	}
}

// All returns a copy of every restaurant in catalog order.
func (c *Catalog) All() []Restaurant {
	if c == nil {
		return nil
	}
	out := make([]Restaurant, len(c.restaurants))
	copy(out, c.restaurants)
	return out
}

// Top returns a copy of the first n restaurants.
func (c *Catalog) Top(n int) []Restaurant {
	all := c.All()
	if n < len(all) && n >= 0 {
		all = all[:n]
	}
	return all
}

// Cuisines returns the distinct cuisines in order of first appearance.
func (c *Catalog) Cuisines() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.cuisines))
	copy(out, c.cuisines)
	return out
}

var minutesRe = regexp.MustCompile(`\d+`)

// ParseDeliveryTime turns a label like "25-35 min" into minutes. Two numbers
// are averaged, a single number is used as-is, anything else yields
// DefaultDeliveryMinutes.
func ParseDeliveryTime(label string) float64 {
	matches := minutesRe.FindAllString(label, -1)
	nums := make([]float64, 0, 2)
	for _, m := range matches {
		v, err := strconv.Atoi(m)
		if err != nil {
			continue
		}
		nums = append(nums, float64(v))
	}
	switch {
	case len(nums) >= 2:
		return (nums[0] + nums[1]) / 2
	case len(nums) == 1 && nums[0] > 0:
		return nums[0]
	default:
		return DefaultDeliveryMinutes
	}
}
