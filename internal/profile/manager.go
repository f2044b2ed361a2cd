package profile

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/orders"
)

// OrderStore defines the storage operations the Manager needs.
// Implemented by storage.Store.
type OrderStore interface {
	ListOrders(username string) ([]orders.Order, error)
}

// CatalogFunc returns the catalog profiles are resolved against.
type CatalogFunc func() *catalog.Catalog

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

type cacheEntry struct {
	profile Profile
	at      time.Time
}

// Manager serves per-user profiles computed from the live order store.
// The recommendation model only sees orders as of its last rebuild; the
// Manager lets the chat assistant describe a user including orders placed since.
type Manager struct {
	store   OrderStore
	catalog CatalogFunc
	clock   Clock
	ttl     time.Duration

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewManager creates a Manager with a 60-second cache TTL.
func NewManager(store OrderStore, cat CatalogFunc) *Manager {
	return NewManagerWithClock(store, cat, realClock{}, 60*time.Second)
}

// NewManagerWithClock creates a Manager with a custom clock (for testing).
func NewManagerWithClock(store OrderStore, cat CatalogFunc, clock Clock, ttl time.Duration) *Manager {
	return &Manager{
		store:   store,
		catalog: cat,
		clock:   clock,
		ttl:     ttl,
		cache:   make(map[string]cacheEntry),
	}
}

// Get returns the profile of username. Unknown users get the default profile.
func (m *Manager) Get(username string) (Profile, error) {
	m.mu.RLock()
	if e, ok := m.cache[username]; ok && m.clock.Now().Before(e.at.Add(m.ttl)) {
		p := e.profile.Clone()
		m.mu.RUnlock()
		return p, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	// Double-check after acquiring write lock.
	if e, ok := m.cache[username]; ok && m.clock.Now().Before(e.at.Add(m.ttl)) {
		return e.profile.Clone(), nil
	}

	userOrders, err := m.store.ListOrders(username)
	if err != nil {
		return Profile{}, fmt.Errorf("loading orders for %q: %w", username, err)
	}
	var cat *catalog.Catalog
	if m.catalog != nil {
		cat = m.catalog()
	}
	p := Build(userOrders, cat)
	m.cache[username] = cacheEntry{profile: p, at: m.clock.Now()}
	return p.Clone(), nil
}

// Invalidate drops the cached profile of username.
func (m *Manager) Invalidate(username string) {
	m.mu.Lock()
	delete(m.cache, username)
	m.mu.Unlock()
}

// Summary returns a compact description of the user's profile suitable for
// a system prompt.
func (m *Manager) Summary(username string) (string, error) {
	p, err := m.Get(username)
	if err != nil {
		return "", fmt.Errorf("getting profile for summary: %w", err)
	}
	return Summarize(p), nil
}

// maxSummaryChars caps the summary to stay under ~500 tokens (4 chars/token).
const maxSummaryChars = 2000

// Summarize renders p as a few short sentences.
func Summarize(p Profile) string {
	var parts []string

	if len(p.PreferredCuisines) > 0 {
		cuisines := make([]string, 0, len(p.PreferredCuisines))
		for c := range p.PreferredCuisines {
			cuisines = append(cuisines, c)
		}
		// Largest share first, name breaks ties.
		sort.Slice(cuisines, func(i, j int) bool {
			a, b := p.PreferredCuisines[cuisines[i]], p.PreferredCuisines[cuisines[j]]
			if a != b {
				return a > b
			}
			return cuisines[i] < cuisines[j]
		})
		var shares []string
		for _, c := range cuisines {
			shares = append(shares, fmt.Sprintf("%s (%.0f%%)", c, p.PreferredCuisines[c]*100))
		}
		parts = append(parts, fmt.Sprintf("Favourite cuisines: %s.", strings.Join(shares, ", ")))
	}

	parts = append(parts,
		fmt.Sprintf("Average order: ₹%.0f.", p.AvgOrderValue),
		fmt.Sprintf("Usually picks restaurants rated around %.1f delivering in about %.0f min.", p.RatingPreference, p.DeliveryTimePreference),
	)
	switch {
	case p.PriceSensitivity >= 0.8:
		parts = append(parts, "Spends freely.")
	case p.PriceSensitivity <= 0.3:
		parts = append(parts, "Budget conscious.")
	}

	summary := strings.Join(parts, " ")
	if len(summary) > maxSummaryChars {
		// Ensure we don't split a multi-byte UTF-8 character.
		end := maxSummaryChars
		for end > 0 && !utf8.RuneStart(summary[end]) {
			end--
		}
		if idx := strings.LastIndex(summary[:end], " "); idx > 0 {
			summary = summary[:idx]
		} else {
			summary = summary[:end]
		}
	}
	return summary
}
