package profile

// Profile summarizes a user's ordering habits.
type Profile struct {
	AvgOrderValue          float64            `json:"avg_order_value"`
	PreferredCuisines      map[string]float64 `json:"preferred_cuisines"` // cuisine → share of resolved orders
	PriceSensitivity       float64            `json:"price_sensitivity"`
	RatingPreference       float64            `json:"rating_preference"`
	DeliveryTimePreference float64            `json:"delivery_time_preference"` // minutes
	OrderFrequency         float64            `json:"order_frequency"`          // orders per day over a 30-day window
}

// Values for users without any order history.
const (
	DefaultAvgOrderValue          = 500.0
	DefaultPriceSensitivity       = 0.5
	DefaultRatingPreference       = 4.0
	DefaultDeliveryTimePreference = 30.0
	DefaultOrderFrequency         = 0.1
)

// Default returns the profile assigned to users with no orders.
func Default() Profile {
	return Profile{
		AvgOrderValue:          DefaultAvgOrderValue,
		PreferredCuisines:      map[string]float64{},
		PriceSensitivity:       DefaultPriceSensitivity,
		RatingPreference:       DefaultRatingPreference,
		DeliveryTimePreference: DefaultDeliveryTimePreference,
		OrderFrequency:         DefaultOrderFrequency,
	}
}

// Clone returns a deep copy of p.
func (p Profile) Clone() Profile {
	cp := p
	cp.PreferredCuisines = make(map[string]float64, len(p.PreferredCuisines))
	for k, v := range p.PreferredCuisines {
		cp.PreferredCuisines[k] = v
	}
	return cp
}
