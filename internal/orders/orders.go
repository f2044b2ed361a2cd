// Package orders defines the order records the recommender learns from.
package orders

import "time"

// DateLayout is the storage format of Order.Date.
const DateLayout = "2006-01-02"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending   Status = "Pending"
	StatusPreparing Status = "Preparing"
	StatusInTransit Status = "In Transit"
	StatusDelivered Status = "Delivered"
	StatusCancelled Status = "Cancelled"
)

// Statuses lists every known status.
var Statuses = []Status{StatusPending, StatusPreparing, StatusInTransit, StatusDelivered, StatusCancelled}

// Valid reports whether s is one of the known statuses.
func (s Status) Valid() bool {
	for _, k := range Statuses {
		if s == k {
			return true
		}
	}
	return false
}

// Item is one line of an order.
type Item struct {
	Name     string  `json:"name"`
	Quantity int     `json:"quantity"`
	Price    float64 `json:"price"`
}

// Order is an immutable historical order.
type Order struct {
	ID         string  `json:"id,omitempty"`
	Number     string  `json:"order_number,omitempty"`
	Restaurant string  `json:"restaurant"`
	Items      []Item  `json:"items,omitempty"`
	Total      float64 `json:"total"`
	Status     Status  `json:"status"`
	Date       string  `json:"date"` // YYYY-MM-DD
}

// ParsedDate parses Date in loc.
func (o Order) ParsedDate(loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(DateLayout, o.Date, loc)
}

// History is the order history of every user. Users keep the order they were
// first added in, so anything iterating a History is deterministic.
type History struct {
	users  []string
	orders map[string][]Order
}

// NewHistory returns an empty History.
func NewHistory() *History {
	return &History{orders: make(map[string][]Order)}
}

// Add appends orders for user. Calling Add with no orders registers a user
// without history.
func (h *History) Add(user string, orders ...Order) {
	if _, ok := h.orders[user]; !ok {
		h.users = append(h.users, user)
		h.orders[user] = nil
	}
	h.orders[user] = append(h.orders[user], orders...)
}

// Users returns every user in insertion order.
func (h *History) Users() []string {
	if h == nil {
		return nil
	}
	out := make([]string, len(h.users))
	copy(out, h.users)
	return out
}

// Orders returns the orders of user, oldest first as supplied.
func (h *History) Orders(user string) []Order {
	if h == nil {
		return nil
	}
	return h.orders[user]
}

// Has reports whether user is known.
func (h *History) Has(user string) bool {
	if h == nil {
		return false
	}
	_, ok := h.orders[user]
	return ok
}

// Len returns the total number of orders.
func (h *History) Len() int {
	if h == nil {
		return 0
	}
	n := 0
	for _, os := range h.orders {
		n += len(os)
	}
	return n
}
