package recommend

import (
	"fmt"

	"github.com/quickdeliver/qdsupport/internal/orders"
)

// Default tuning constants. None of these are learned.
const (
	DefaultCollaborativeWeight = 0.6
	DefaultContentWeight       = 0.4

	DefaultRatingWeight   = 0.3
	DefaultDeliveryWeight = 0.2
	DefaultCuisineWeight  = 0.5

	DefaultDeliveryToleranceMinutes = 30.0
	DefaultNeighbors                = 5

	DefaultOrderValueScale   = 500.0
	DefaultMaxValueWeight    = 2.0
	DefaultOtherStatusWeight = 0.5

	DefaultLimit         = 5
	DefaultHybridLimit   = 8
	DefaultTrendingLimit = 6
)

// Config holds every weight and list size the engine uses.
type Config struct {
	// Hybrid blend. Not renormalized: a restaurant found by one method only
	// keeps that method's weighted score.
	CollaborativeWeight float64 `json:"collaborative_weight"`
	ContentWeight       float64 `json:"content_weight"`

	// Content-based score components.
	RatingWeight             float64 `json:"rating_weight"`
	DeliveryWeight           float64 `json:"delivery_weight"`
	CuisineWeight            float64 `json:"cuisine_weight"`
	DeliveryToleranceMinutes float64 `json:"delivery_tolerance_minutes"`

	// Neighbors is how many similar users feed collaborative scores.
	Neighbors int `json:"neighbors"`

	// Interaction weighting.
	OrderValueScale   float64                   `json:"order_value_scale"`
	MaxValueWeight    float64                   `json:"max_value_weight"`
	StatusWeights     map[orders.Status]float64 `json:"status_weights"`
	OtherStatusWeight float64                   `json:"other_status_weight"`

	Recency RecencyConfig `json:"recency"`
	Bundle  BundleConfig  `json:"bundle"`

	// List sizes used when a caller passes n <= 0.
	DefaultLimit         int `json:"default_limit"`
	DefaultHybridLimit   int `json:"default_hybrid_limit"`
	DefaultTrendingLimit int `json:"default_trending_limit"`
}

// RecencyConfig defines the trending decay steps.
type RecencyConfig struct {
	RecentDays   int     `json:"recent_days"`
	RecentWeight float64 `json:"recent_weight"`
	MonthDays    int     `json:"month_days"`
	MonthWeight  float64 `json:"month_weight"`
	OlderWeight  float64 `json:"older_weight"` // also used for unparseable dates
}

// BundleConfig sizes the lists of a personalized bundle and its fallback.
type BundleConfig struct {
	Hybrid        int `json:"hybrid"`
	Collaborative int `json:"collaborative"`
	ContentBased  int `json:"content_based"`
	Trending      int `json:"trending"`
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		CollaborativeWeight:      DefaultCollaborativeWeight,
		ContentWeight:            DefaultContentWeight,
		RatingWeight:             DefaultRatingWeight,
		DeliveryWeight:           DefaultDeliveryWeight,
		CuisineWeight:            DefaultCuisineWeight,
		DeliveryToleranceMinutes: DefaultDeliveryToleranceMinutes,
		Neighbors:                DefaultNeighbors,
		OrderValueScale:          DefaultOrderValueScale,
		MaxValueWeight:           DefaultMaxValueWeight,
		StatusWeights: map[orders.Status]float64{
			orders.StatusDelivered: 1.0,
			orders.StatusInTransit: 0.8,
			orders.StatusPreparing: 0.6,
			orders.StatusCancelled: 0.1,
		},
		OtherStatusWeight: DefaultOtherStatusWeight,
		Recency: RecencyConfig{
			RecentDays:   7,
			RecentWeight: 1.0,
			MonthDays:    30,
			MonthWeight:  0.5,
			OlderWeight:  0.1,
		},
		Bundle: BundleConfig{
			Hybrid:        6,
			Collaborative: 4,
			ContentBased:  4,
			Trending:      4,
		},
		DefaultLimit:         DefaultLimit,
		DefaultHybridLimit:   DefaultHybridLimit,
		DefaultTrendingLimit: DefaultTrendingLimit,
	}
}

// Validate checks the configuration for values the scorers cannot use.
func (c *Config) Validate() error {
	if c.CollaborativeWeight < 0 || c.ContentWeight < 0 {
		return fmt.Errorf("hybrid weights must be non-negative, got %f/%f", c.CollaborativeWeight, c.ContentWeight)
	}
	if c.RatingWeight < 0 || c.DeliveryWeight < 0 || c.CuisineWeight < 0 {
		return fmt.Errorf("content weights must be non-negative, got %f/%f/%f", c.RatingWeight, c.DeliveryWeight, c.CuisineWeight)
	}
	if c.DeliveryToleranceMinutes <= 0 {
		return fmt.Errorf("delivery_tolerance_minutes must be positive, got %f", c.DeliveryToleranceMinutes)
	}
	if c.Neighbors < 1 {
		return fmt.Errorf("neighbors must be positive, got %d", c.Neighbors)
	}
	if c.OrderValueScale <= 0 {
		return fmt.Errorf("order_value_scale must be positive, got %f", c.OrderValueScale)
	}
	if c.MaxValueWeight <= 0 {
		return fmt.Errorf("max_value_weight must be positive, got %f", c.MaxValueWeight)
	}
	for s, w := range c.StatusWeights {
		if w < 0 || w > 1 {
			return fmt.Errorf("status weight for %q must be in [0, 1], got %f", s, w)
		}
	}
	if c.OtherStatusWeight < 0 || c.OtherStatusWeight > 1 {
		return fmt.Errorf("other_status_weight must be in [0, 1], got %f", c.OtherStatusWeight)
	}
	if c.Recency.RecentDays < 0 || c.Recency.MonthDays < c.Recency.RecentDays {
		return fmt.Errorf("recency windows must satisfy 0 <= recent_days <= month_days, got %d/%d", c.Recency.RecentDays, c.Recency.MonthDays)
	}
	b := c.Bundle
	if b.Hybrid < 1 || b.Collaborative < 1 || b.ContentBased < 1 || b.Trending < 1 {
		return fmt.Errorf("bundle sizes must be positive, got %+v", b)
	}
	if c.DefaultLimit < 1 || c.DefaultHybridLimit < 1 || c.DefaultTrendingLimit < 1 {
		return fmt.Errorf("default limits must be positive, got %d/%d/%d", c.DefaultLimit, c.DefaultHybridLimit, c.DefaultTrendingLimit)
	}
	return nil
}

func (c *Config) statusWeight(s orders.Status) float64 {
	if w, ok := c.StatusWeights[s]; ok {
		return w
	}
	return c.OtherStatusWeight
}
