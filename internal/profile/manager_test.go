package profile

import (
	"math"
	"reflect"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/orders"
)

// --- Mock store ---

type mockStore struct {
	mu   sync.Mutex
	data map[string][]orders.Order

	listCalls int
}

func newMockStore() *mockStore {
	return &mockStore{data: make(map[string][]orders.Order)}
}

func (m *mockStore) add(user string, o orders.Order) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[user] = append(m.data[user], o)
}

func (m *mockStore) ListOrders(username string) ([]orders.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	return append([]orders.Order(nil), m.data[username]...), nil
}

// --- Mock clock ---

type mockClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *mockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *mockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func testCatalog() *catalog.Catalog {
	return catalog.New([]catalog.Restaurant{
		{Name: "Pizza Hut", Cuisine: "Italian", Rating: 4.2, DeliveryTime: "30-40 min"},
		{Name: "Biryani Blues", Cuisine: "Indian", Rating: 4.4, DeliveryTime: "35-45 min"},
	})
}

func approx(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

// --- Builder ---

func TestBuild_NoOrdersIsDefault(t *testing.T) {
	got := Build(nil, testCatalog())
	if !reflect.DeepEqual(got, Default()) {
		t.Errorf("Build(nil) = %+v, want %+v", got, Default())
	}
}

func TestBuild_Computed(t *testing.T) {
	userOrders := []orders.Order{
		{Restaurant: "Pizza Hut", Total: 600},
		{Restaurant: "Pizza Hut", Total: 400},
		{Restaurant: "Biryani Blues", Total: 800},
		{Restaurant: "Corner Dhaba", Total: 200}, // off-catalog
	}
	p := Build(userOrders, testCatalog())

	if !approx(p.AvgOrderValue, 500) {
		t.Errorf("AvgOrderValue = %v, want 500", p.AvgOrderValue)
	}
	if !approx(p.PriceSensitivity, 0.5) {
		t.Errorf("PriceSensitivity = %v, want 0.5", p.PriceSensitivity)
	}
	if !approx(p.OrderFrequency, 4.0/30) {
		t.Errorf("OrderFrequency = %v, want %v", p.OrderFrequency, 4.0/30)
	}
	if !approx(p.PreferredCuisines["Italian"], 2.0/3) || !approx(p.PreferredCuisines["Indian"], 1.0/3) {
		t.Errorf("PreferredCuisines = %v", p.PreferredCuisines)
	}
	wantRating := (4.2 + 4.2 + 4.4) / 3
	if !approx(p.RatingPreference, wantRating) {
		t.Errorf("RatingPreference = %v, want %v", p.RatingPreference, wantRating)
	}
	wantDelivery := (35.0 + 35.0 + 40.0) / 3
	if !approx(p.DeliveryTimePreference, wantDelivery) {
		t.Errorf("DeliveryTimePreference = %v, want %v", p.DeliveryTimePreference, wantDelivery)
	}
}

func TestBuild_NothingResolved(t *testing.T) {
	p := Build([]orders.Order{{Restaurant: "Nowhere", Total: 3000}}, testCatalog())
	if len(p.PreferredCuisines) != 0 {
		t.Errorf("PreferredCuisines = %v, want empty", p.PreferredCuisines)
	}
	if p.RatingPreference != DefaultRatingPreference || p.DeliveryTimePreference != DefaultDeliveryTimePreference {
		t.Errorf("preferences = %v/%v, want defaults", p.RatingPreference, p.DeliveryTimePreference)
	}
	if p.PriceSensitivity != 1.0 {
		t.Errorf("PriceSensitivity = %v, want capped 1.0", p.PriceSensitivity)
	}
}

func TestBuildAll_IncludesUsersWithoutOrders(t *testing.T) {
	h := orders.NewHistory()
	h.Add("alice", orders.Order{Restaurant: "Pizza Hut", Total: 600})
	h.Add("bob")

	all := BuildAll(h, testCatalog())
	if len(all) != 2 {
		t.Fatalf("BuildAll returned %d profiles, want 2", len(all))
	}
	if !reflect.DeepEqual(all["bob"], Default()) {
		t.Errorf("bob = %+v, want default", all["bob"])
	}
}

// --- Manager ---

func TestGet_UnknownUser(t *testing.T) {
	mgr := NewManager(newMockStore(), testCatalog)

	p, err := mgr.Get("nobody")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !reflect.DeepEqual(p, Default()) {
		t.Errorf("Get(nobody) = %+v, want default", p)
	}
}

func TestGet_ReturnsCopy(t *testing.T) {
	store := newMockStore()
	store.add("alice", orders.Order{Restaurant: "Pizza Hut", Total: 600})
	mgr := NewManager(store, testCatalog)

	p, _ := mgr.Get("alice")
	p.PreferredCuisines["Italian"] = 42

	again, _ := mgr.Get("alice")
	if again.PreferredCuisines["Italian"] != 1 {
		t.Errorf("cached profile was mutated: %v", again.PreferredCuisines)
	}
}

func TestCacheTTL(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Now()}
	mgr := NewManagerWithClock(store, testCatalog, clock, 60*time.Second)

	mgr.Get("alice")
	mgr.Get("alice")

	store.mu.Lock()
	calls := store.listCalls
	store.mu.Unlock()

	if calls != 1 {
		t.Errorf("expected 1 store call (cache hit on second), got %d", calls)
	}
}

func TestCacheExpiryAndInvalidate(t *testing.T) {
	store := newMockStore()
	clock := &mockClock{now: time.Now()}
	ttl := 60 * time.Second
	mgr := NewManagerWithClock(store, testCatalog, clock, ttl)

	mgr.Get("alice")
	clock.Advance(ttl + time.Second)
	mgr.Get("alice")

	store.add("alice", orders.Order{Restaurant: "Pizza Hut", Total: 900})
	mgr.Invalidate("alice")
	p, _ := mgr.Get("alice")

	store.mu.Lock()
	calls := store.listCalls
	store.mu.Unlock()

	if calls != 3 {
		t.Errorf("expected 3 store calls, got %d", calls)
	}
	if p.AvgOrderValue != 900 {
		t.Errorf("AvgOrderValue = %v, want 900 after invalidate", p.AvgOrderValue)
	}
}

// --- Summary ---

func TestSummarize(t *testing.T) {
	p := Profile{
		AvgOrderValue:          850,
		PreferredCuisines:      map[string]float64{"Indian": 0.25, "Italian": 0.75},
		PriceSensitivity:       0.85,
		RatingPreference:       4.3,
		DeliveryTimePreference: 35,
	}
	s := Summarize(p)

	for _, want := range []string{"Italian (75%), Indian (25%)", "₹850", "4.3", "35 min", "Spends freely"} {
		if !strings.Contains(s, want) {
			t.Errorf("summary missing %q: %s", want, s)
		}
	}
}

func TestSummarize_TokenBudget(t *testing.T) {
	p := Default()
	for i := 0; i < 300; i++ {
		p.PreferredCuisines[strings.Repeat("x", 5)+string(rune('a'+i%26))+strings.Repeat("é", i%7)] = 0.01
	}
	s := Summarize(p)
	if len(s) > maxSummaryChars {
		t.Errorf("summary too long: %d chars", len(s))
	}
	if !utf8Valid(s) {
		t.Error("summary is not valid UTF-8")
	}
}

func utf8Valid(s string) bool {
	return strings.ToValidUTF8(s, "�") == s
}
