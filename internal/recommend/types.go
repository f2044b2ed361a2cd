// Package recommend ranks restaurants for a user by blending collaborative
// filtering over order history with content-based matching of restaurant
// attributes against the user's profile.
//
// All derived matrices live in an immutable Snapshot. Engine publishes
// snapshots atomically, so readers never observe a half-built model.
package recommend

import "github.com/quickdeliver/qdsupport/internal/catalog"

// Source identifies the list a Record came from.
type Source string

const (
	SourceCollaborative Source = "collaborative"
	SourceContentBased  Source = "content_based"
	SourceHybrid        Source = "hybrid"
	SourceTrending      Source = "trending"
)

// Record is one ranked restaurant.
type Record struct {
	Name         string  `json:"name"`
	Cuisine      string  `json:"cuisine"`
	Rating       float64 `json:"rating"`
	DeliveryTime string  `json:"delivery_time"`
	Score        float64 `json:"score"`
	Source       Source  `json:"source"`
}

// Personalized bundles every list for one user.
type Personalized struct {
	Hybrid        []Record `json:"hybrid"`
	Collaborative []Record `json:"collaborative"`
	ContentBased  []Record `json:"content_based"`
	Trending      []Record `json:"trending"`

	// Generation of the snapshot that produced the bundle; 0 for a fallback.
	Generation uint64 `json:"generation"`
	Fallback   bool   `json:"fallback,omitempty"`
}

func newRecord(r catalog.Restaurant, score float64, src Source) Record {
	return Record{
		Name:         r.Name,
		Cuisine:      r.Cuisine,
		Rating:       r.Rating,
		DeliveryTime: r.DeliveryTime,
		Score:        score,
		Source:       src,
	}
}
