package recommend

import (
	"math"
	"time"

	"github.com/quickdeliver/qdsupport/internal/orders"
)

// RecencyWeight returns the trending weight of o as seen at now. Unparseable
// dates get the oldest weight.
func RecencyWeight(cfg RecencyConfig, o orders.Order, now time.Time) float64 {
	d, err := o.ParsedDate(now.Location())
	if err != nil {
		return cfg.OlderWeight
	}
	days := int(math.Floor(now.Sub(d).Hours() / 24))
	switch {
	case days <= cfg.RecentDays:
		return cfg.RecentWeight
	case days <= cfg.MonthDays:
		return cfg.MonthWeight
	default:
		return cfg.OlderWeight
	}
}

// trendingScores aggregates recency-weighted order counts per restaurant
// across every user, in first-seen order.
func trendingScores(h *orders.History, cfg RecencyConfig, now time.Time) []scored {
	acc := newAccumulator()
	for _, u := range h.Users() {
		for _, o := range h.Orders(u) {
			if o.Restaurant == "" {
				continue
			}
			acc.add(o.Restaurant, RecencyWeight(cfg, o, now))
		}
	}
	return acc.items
}
