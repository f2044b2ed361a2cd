package recommend

import (
	"math"

	"github.com/quickdeliver/qdsupport/internal/orders"
)

// Interactions is the user × restaurant affinity matrix. Rows are users with
// at least one order, columns are restaurants seen in any order.
type Interactions struct {
	users       []string
	userIdx     map[string]int
	restaurants []string
	restIdx     map[string]int
	rows        [][]float64

	// ordered holds every restaurant each user has an order at, whatever
	// the order's weight.
	ordered map[string]map[string]struct{}
}

// InteractionWeight scores one order: min(total/scale, cap) × status weight.
func InteractionWeight(cfg *Config, o orders.Order) float64 {
	total := math.Max(o.Total, 0)
	value := math.Min(total/cfg.OrderValueScale, cfg.MaxValueWeight)
	return value * cfg.statusWeight(o.Status)
}

// BuildInteractions accumulates order weights per (user, restaurant).
func BuildInteractions(h *orders.History, cfg *Config) *Interactions {
	m := &Interactions{
		userIdx: make(map[string]int),
		restIdx: make(map[string]int),
		ordered: make(map[string]map[string]struct{}),
	}
	for _, u := range h.Users() {
		userOrders := h.Orders(u)
		if len(userOrders) == 0 {
			continue
		}
		m.userIdx[u] = len(m.users)
		m.users = append(m.users, u)
		seen := make(map[string]struct{})
		m.ordered[u] = seen
		for _, o := range userOrders {
			if o.Restaurant == "" {
				continue
			}
			seen[o.Restaurant] = struct{}{}
			if _, ok := m.restIdx[o.Restaurant]; !ok {
				m.restIdx[o.Restaurant] = len(m.restaurants)
				m.restaurants = append(m.restaurants, o.Restaurant)
			}
		}
	}

	m.rows = make([][]float64, len(m.users))
	for i, u := range m.users {
		row := make([]float64, len(m.restaurants))
		for _, o := range h.Orders(u) {
			if o.Restaurant == "" {
				continue
			}
			row[m.restIdx[o.Restaurant]] += InteractionWeight(cfg, o)
		}
		m.rows[i] = row
	}
	return m
}

// Users returns the row labels.
func (m *Interactions) Users() []string { return append([]string(nil), m.users...) }

// Restaurants returns the column labels.
func (m *Interactions) Restaurants() []string { return append([]string(nil), m.restaurants...) }

// Score returns the affinity of user for restaurant, 0 when either is unknown.
func (m *Interactions) Score(user, restaurant string) float64 {
	i, ok := m.userIdx[user]
	if !ok {
		return 0
	}
	j, ok := m.restIdx[restaurant]
	if !ok {
		return 0
	}
	return m.rows[i][j]
}

// Tried reports whether user has a non-zero affinity for restaurant.
func (m *Interactions) Tried(user, restaurant string) bool {
	return m.Score(user, restaurant) > 0
}

// Ordered reports whether user has any order at restaurant, including orders
// that carry zero affinity.
func (m *Interactions) Ordered(user, restaurant string) bool {
	_, ok := m.ordered[user][restaurant]
	return ok
}

func (m *Interactions) row(user string) ([]float64, bool) {
	i, ok := m.userIdx[user]
	if !ok {
		return nil, false
	}
	return m.rows[i], true
}
