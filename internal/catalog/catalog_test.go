package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDeliveryTime(t *testing.T) {
	tests := []struct {
		label string
		want  float64
	}{
		{"25-35 min", 30},
		{"30-45 min", 37.5},
		{"20 min", 20},
		{"45", 45},
		{"fast", DefaultDeliveryMinutes},
		{"", DefaultDeliveryMinutes},
		{"0 min", DefaultDeliveryMinutes},
	}
	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			assert.InDelta(t, tt.want, ParseDeliveryTime(tt.label), 1e-9)
		})
	}
}

func TestNew_OrderAndDuplicates(t *testing.T) {
	c := New([]Restaurant{
		{Name: "A", Cuisine: "Thai", Rating: 4},
		{Name: "", Cuisine: "Ghost"},
		{Name: "B", Cuisine: "Indian", Rating: 3},
		{Name: "A", Cuisine: "Thai", Rating: 5},
		{Name: "C", Cuisine: "Thai", Rating: 2},
	})

	require.Equal(t, 3, c.Len())
	names := []string{}
	for _, r := range c.All() {
		names = append(names, r.Name)
	}
	assert.Equal(t, []string{"A", "B", "C"}, names)
	assert.Equal(t, []string{"Thai", "Indian"}, c.Cuisines())

	a, ok := c.Lookup("A")
	require.True(t, ok)
	assert.Equal(t, 5.0, a.Rating)
}

func TestInfo_FallbackForUnknown(t *testing.T) {
	c := New(DefaultRestaurants())

	got := c.Info("Corner Dhaba")
	assert.Equal(t, Restaurant{Name: "Corner Dhaba", Cuisine: "Mixed", Rating: 4.0, DeliveryTime: "30-40 min"}, got)

	known := c.Info("Pizza Hut")
	assert.Equal(t, "Italian", known.Cuisine)
}

func TestTop(t *testing.T) {
	c := New(DefaultRestaurants())
	assert.Len(t, c.Top(4), 4)
	assert.Len(t, c.Top(100), c.Len())

	var nilCat *Catalog
	assert.Empty(t, nilCat.Top(3))
	assert.Equal(t, "x", nilCat.Info("x").Name)
}
