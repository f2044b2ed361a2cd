package recommend

import (
	"math"
	"time"

	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/orders"
	"github.com/quickdeliver/qdsupport/internal/profile"
)

// Snapshot is one fully built recommendation model. It is never mutated
// after NewSnapshot returns and is safe for concurrent readers.
type Snapshot struct {
	Generation uint64
	BuiltAt    time.Time

	cfg          Config
	catalog      *catalog.Catalog
	history      *orders.History
	interactions *Interactions
	features     *Features
	profiles     map[string]profile.Profile
	similarity   *Similarity
}

// NewSnapshot runs every builder over h and cat.
func NewSnapshot(cfg Config, h *orders.History, cat *catalog.Catalog, generation uint64, builtAt time.Time) *Snapshot {
	if h == nil {
		h = orders.NewHistory()
	}
	if cat == nil {
		cat = catalog.New(nil)
	}
	interactions := BuildInteractions(h, &cfg)
	return &Snapshot{
		Generation:   generation,
		BuiltAt:      builtAt,
		cfg:          cfg,
		catalog:      cat,
		history:      h,
		interactions: interactions,
		features:     BuildFeatures(cat, h),
		profiles:     profile.BuildAll(h, cat),
		similarity:   ComputeSimilarity(interactions),
	}
}

// Catalog returns the catalog the snapshot was built from.
func (s *Snapshot) Catalog() *catalog.Catalog { return s.catalog }

// Interactions returns the affinity matrix.
func (s *Snapshot) Interactions() *Interactions { return s.interactions }

// Features returns the restaurant feature matrix.
func (s *Snapshot) Features() *Features { return s.features }

// Similarity returns the user similarity matrix.
func (s *Snapshot) Similarity() *Similarity { return s.similarity }

// Users returns the number of users with at least one order.
func (s *Snapshot) Users() int { return len(s.interactions.users) }

// Profile returns the user's profile; unknown users get the default profile.
func (s *Snapshot) Profile(user string) profile.Profile {
	if p, ok := s.profiles[user]; ok {
		return p.Clone()
	}
	return profile.Default()
}

func (s *Snapshot) limit(n, def int) int {
	if n <= 0 {
		return def
	}
	return n
}

func (s *Snapshot) records(items []scored, src Source) []Record {
	out := make([]Record, 0, len(items))
	for _, it := range items {
		out = append(out, newRecord(s.catalog.Info(it.name), it.score, src))
	}
	return out
}

// Collaborative scores restaurants the user has not tried by the affinity of
// the most similar users, weighted by similarity.
func (s *Snapshot) Collaborative(user string, n int) []Record {
	n = s.limit(n, s.cfg.DefaultLimit)
	own, ok := s.interactions.row(user)
	if !ok {
		return []Record{}
	}
	acc := newAccumulator()
	for _, nb := range s.similarity.Neighbors(user, s.cfg.Neighbors) {
		theirs, _ := s.interactions.row(nb.User)
		for j, v := range theirs {
			if v <= 0 || own[j] > 0 {
				continue
			}
			acc.add(s.interactions.restaurants[j], nb.Similarity*v)
		}
	}
	return s.records(topN(acc.items, n), SourceCollaborative)
}

// ContentBased scores restaurants the user has never ordered from against the
// user's profile: rating, closeness to the preferred delivery time and
// cuisine affinity.
func (s *Snapshot) ContentBased(user string, n int) []Record {
	n = s.limit(n, s.cfg.DefaultLimit)
	p := s.Profile(user)
	var items []scored
	for _, f := range s.features.rows {
		if s.interactions.Ordered(user, f.Name) {
			continue
		}
		items = append(items, scored{name: f.Name, score: s.contentScore(f, p)})
	}
	return s.records(topN(items, n), SourceContentBased)
}

func (s *Snapshot) contentScore(f Feature, p profile.Profile) float64 {
	c := &s.cfg
	rating := c.RatingWeight * (f.Rating / 5)
	closeness := 1 - math.Abs(f.DeliveryMinutes-p.DeliveryTimePreference)/c.DeliveryToleranceMinutes
	delivery := c.DeliveryWeight * math.Max(0, closeness)
	cuisine := c.CuisineWeight * s.features.cuisineAffinity(f, p.PreferredCuisines)
	return rating + delivery + cuisine
}

// Hybrid blends the collaborative and content-based lists. A restaurant in
// both gets the weighted sum; one in a single list gets that weight alone.
func (s *Snapshot) Hybrid(user string, n int) []Record {
	n = s.limit(n, s.cfg.DefaultHybridLimit)
	acc := newAccumulator()
	for _, r := range s.Collaborative(user, n) {
		acc.add(r.Name, r.Score*s.cfg.CollaborativeWeight)
	}
	for _, r := range s.ContentBased(user, n) {
		acc.add(r.Name, r.Score*s.cfg.ContentWeight)
	}
	return s.records(topN(acc.items, n), SourceHybrid)
}

// Trending ranks restaurants by recency-weighted order volume at now.
func (s *Snapshot) Trending(n int, now time.Time) []Record {
	n = s.limit(n, s.cfg.DefaultTrendingLimit)
	return s.records(topN(trendingScores(s.history, s.cfg.Recency, now), n), SourceTrending)
}

// Personalized computes the full bundle for user.
func (s *Snapshot) Personalized(user string, now time.Time) Personalized {
	b := s.cfg.Bundle
	return Personalized{
		Hybrid:        s.Hybrid(user, b.Hybrid),
		Collaborative: s.Collaborative(user, b.Collaborative),
		ContentBased:  s.ContentBased(user, b.ContentBased),
		Trending:      s.Trending(b.Trending, now),
		Generation:    s.Generation,
	}
}
