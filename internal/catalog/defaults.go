package catalog

// DefaultRestaurants is the seed catalog written to a fresh store.
func DefaultRestaurants() []Restaurant {
	return []Restaurant{
		{Name: "Pizza Hut", Cuisine: "Italian", Rating: 4.2, DeliveryTime: "30-40 min"},
		{Name: "Domino's", Cuisine: "Italian", Rating: 4.1, DeliveryTime: "25-35 min"},
		{Name: "Burger King", Cuisine: "American", Rating: 4.0, DeliveryTime: "20-30 min"},
		{Name: "McDonald's", Cuisine: "American", Rating: 4.0, DeliveryTime: "20-30 min"},
		{Name: "KFC", Cuisine: "American", Rating: 3.9, DeliveryTime: "25-35 min"},
		{Name: "Biryani Blues", Cuisine: "Indian", Rating: 4.4, DeliveryTime: "35-45 min"},
		{Name: "Behrouz Biryani", Cuisine: "Indian", Rating: 4.5, DeliveryTime: "40-50 min"},
		{Name: "Saravana Bhavan", Cuisine: "South Indian", Rating: 4.3, DeliveryTime: "30-40 min"},
		{Name: "Mainland China", Cuisine: "Chinese", Rating: 4.3, DeliveryTime: "35-45 min"},
		{Name: "Wow! Momo", Cuisine: "Chinese", Rating: 4.0, DeliveryTime: "20-30 min"},
		{Name: "Subway", Cuisine: "Healthy", Rating: 4.1, DeliveryTime: "15-25 min"},
		{Name: "Taco Bell", Cuisine: "Mexican", Rating: 3.8, DeliveryTime: "30-40 min"},
	}
}
