package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/quickdeliver/qdsupport/internal/catalog"
	"github.com/quickdeliver/qdsupport/internal/orders"
)

func TestUpsertAndGetUser(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertUser(User{Username: "alice", Name: "Alice", Email: "alice@example.com"}); err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	u, err := s.GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Subscription != "Basic" {
		t.Errorf("Subscription = %q, want Basic", u.Subscription)
	}
	created := u.CreatedAt

	if err := s.UpsertUser(User{Username: "alice", Name: "Alice B", Email: "alice@example.com", Subscription: "Premium"}); err != nil {
		t.Fatalf("UpsertUser update: %v", err)
	}
	u, err = s.GetUser("alice")
	if err != nil {
		t.Fatalf("GetUser: %v", err)
	}
	if u.Name != "Alice B" || u.Subscription != "Premium" {
		t.Errorf("update not applied: %+v", u)
	}
	if !u.CreatedAt.Equal(created) {
		t.Errorf("CreatedAt changed: %v -> %v", created, u.CreatedAt)
	}
}

func TestGetUserNotFound(t *testing.T) {
	s := openTestStore(t)

	if _, err := s.GetUser("nobody"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSeedCatalogOnlyWhenEmpty(t *testing.T) {
	s := openTestStore(t)

	n, err := s.SeedCatalog(catalog.DefaultRestaurants())
	if err != nil {
		t.Fatalf("SeedCatalog: %v", err)
	}
	if n != len(catalog.DefaultRestaurants()) {
		t.Errorf("seeded %d, want %d", n, len(catalog.DefaultRestaurants()))
	}

	n, err = s.SeedCatalog(catalog.DefaultRestaurants())
	if err != nil {
		t.Fatalf("second SeedCatalog: %v", err)
	}
	if n != 0 {
		t.Errorf("second seed inserted %d, want 0", n)
	}

	cat, err := s.LoadCatalog(context.Background())
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	if cat.Len() != len(catalog.DefaultRestaurants()) {
		t.Errorf("catalog len = %d", cat.Len())
	}
	if first := cat.All()[0].Name; first != catalog.DefaultRestaurants()[0].Name {
		t.Errorf("first restaurant = %q, catalog order not kept", first)
	}
}

func TestUpsertRestaurantAppends(t *testing.T) {
	s := openTestStore(t)

	if err := s.UpsertRestaurant(catalog.Restaurant{Name: "A", Cuisine: "Thai", Rating: 4.1, DeliveryTime: "20-30 min"}); err != nil {
		t.Fatalf("UpsertRestaurant: %v", err)
	}
	if err := s.UpsertRestaurant(catalog.Restaurant{Name: "B", Cuisine: "Thai", Rating: 4.2, DeliveryTime: "20-30 min"}); err != nil {
		t.Fatalf("UpsertRestaurant: %v", err)
	}
	if err := s.UpsertRestaurant(catalog.Restaurant{Name: "A", Cuisine: "Vietnamese", Rating: 4.5, DeliveryTime: "10-20 min"}); err != nil {
		t.Fatalf("UpsertRestaurant update: %v", err)
	}

	rs, err := s.ListRestaurants()
	if err != nil {
		t.Fatalf("ListRestaurants: %v", err)
	}
	if len(rs) != 2 {
		t.Fatalf("len = %d, want 2", len(rs))
	}
	if rs[0].Name != "A" || rs[0].Cuisine != "Vietnamese" || rs[0].Rating != 4.5 {
		t.Errorf("rs[0] = %+v", rs[0])
	}
	if rs[1].Name != "B" {
		t.Errorf("rs[1] = %+v", rs[1])
	}
}

func TestSaveOrderDefaults(t *testing.T) {
	s := openTestStore(t)

	o, err := s.SaveOrder("alice", orders.Order{Restaurant: "KFC", Total: 450})
	if err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	if o.ID == "" {
		t.Error("expected generated ID")
	}
	if len(o.Number) != 10 || o.Number[:2] != "QD" {
		t.Errorf("Number = %q, want QD + 8 chars", o.Number)
	}
	if o.Status != orders.StatusPending {
		t.Errorf("Status = %q, want Pending", o.Status)
	}
	if o.Date == "" {
		t.Error("expected date to be set")
	}

	got, err := s.GetOrder("alice", o.Number)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Restaurant != "KFC" || got.Total != 450 {
		t.Errorf("GetOrder = %+v", got)
	}
	if got.Items == nil || len(got.Items) != 0 {
		t.Errorf("Items = %#v, want empty slice", got.Items)
	}
}

func TestOrderOrdering(t *testing.T) {
	s := openTestStore(t)

	for _, o := range []orders.Order{
		{Number: "N2", Restaurant: "KFC", Total: 300, Status: orders.StatusDelivered, Date: "2026-03-02"},
		{Number: "N1", Restaurant: "Subway", Total: 200, Status: orders.StatusDelivered, Date: "2026-03-01"},
		{Number: "N3", Restaurant: "Taco Bell", Total: 250, Status: orders.StatusPreparing, Date: "2026-03-03",
			Items: []orders.Item{{Name: "Taco", Quantity: 2, Price: 125}}},
	} {
		if _, err := s.SaveOrder("alice", o); err != nil {
			t.Fatalf("SaveOrder %s: %v", o.Number, err)
		}
	}

	list, err := s.ListOrders("alice")
	if err != nil {
		t.Fatalf("ListOrders: %v", err)
	}
	if len(list) != 3 || list[0].Number != "N1" || list[2].Number != "N3" {
		t.Fatalf("ListOrders order wrong: %+v", list)
	}
	if len(list[2].Items) != 1 || list[2].Items[0].Name != "Taco" {
		t.Errorf("items not round-tripped: %+v", list[2].Items)
	}

	recent, err := s.RecentOrders("alice", 2)
	if err != nil {
		t.Fatalf("RecentOrders: %v", err)
	}
	if len(recent) != 2 || recent[0].Number != "N3" || recent[1].Number != "N2" {
		t.Errorf("RecentOrders = %+v", recent)
	}
}

func TestLoadHistory(t *testing.T) {
	s := openTestStore(t)

	for _, u := range []string{"carol", "alice"} {
		if err := s.UpsertUser(User{Username: u, Name: u, Email: u + "@example.com"}); err != nil {
			t.Fatalf("UpsertUser: %v", err)
		}
	}
	if _, err := s.SaveOrder("alice", orders.Order{Restaurant: "KFC", Total: 500, Status: orders.StatusDelivered, Date: "2026-03-01"}); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	if _, err := s.SaveOrder("ghost", orders.Order{Restaurant: "Subway", Total: 200, Status: orders.StatusDelivered, Date: "2026-03-02"}); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	h, err := s.LoadHistory(context.Background())
	if err != nil {
		t.Fatalf("LoadHistory: %v", err)
	}
	users := h.Users()
	want := []string{"carol", "alice", "ghost"}
	if len(users) != len(want) {
		t.Fatalf("Users = %v, want %v", users, want)
	}
	for i := range want {
		if users[i] != want[i] {
			t.Errorf("Users[%d] = %q, want %q", i, users[i], want[i])
		}
	}
	if len(h.Orders("carol")) != 0 {
		t.Errorf("carol should have no orders")
	}
	if got := h.Orders("alice"); len(got) != 1 || got[0].Restaurant != "KFC" {
		t.Errorf("alice orders = %+v", got)
	}
}

func TestDecodeItemsMalformed(t *testing.T) {
	if items := decodeItems("o1", "not json"); items != nil {
		t.Errorf("items = %v, want nil", items)
	}
}

func TestBills(t *testing.T) {
	s := openTestStore(t)

	for _, b := range []Bill{
		{Username: "alice", Month: "January 2026", Amount: 1200, Status: "Paid", DueDate: "2026-02-05"},
		{Username: "alice", Month: "February 2026", Amount: 900, DueDate: "2026-03-05"},
		{Username: "bob", Month: "February 2026", Amount: 300, DueDate: "2026-03-05"},
	} {
		if _, err := s.SaveBill(b); err != nil {
			t.Fatalf("SaveBill: %v", err)
		}
	}

	bills, err := s.ListBills("alice")
	if err != nil {
		t.Fatalf("ListBills: %v", err)
	}
	if len(bills) != 2 {
		t.Fatalf("len = %d, want 2", len(bills))
	}
	if bills[0].Month != "February 2026" {
		t.Errorf("bills[0].Month = %q, want latest due first", bills[0].Month)
	}
	if bills[0].Status != "Pending" {
		t.Errorf("default status = %q, want Pending", bills[0].Status)
	}
}

func TestChatSessions(t *testing.T) {
	s := openTestStore(t)

	cs := ChatSession{ID: "s1", Username: "alice", StateJSON: `{"message_count":1}`, MessageCount: 1, Summary: "Order Tracking"}
	if err := s.SaveChatSession(cs); err != nil {
		t.Fatalf("SaveChatSession: %v", err)
	}
	cs.StateJSON = `{"message_count":2}`
	cs.MessageCount = 2
	if err := s.SaveChatSession(cs); err != nil {
		t.Fatalf("SaveChatSession update: %v", err)
	}
	if err := s.SaveChatSession(ChatSession{ID: "s2", Username: "bob", StateJSON: `{}`}); err != nil {
		t.Fatalf("SaveChatSession: %v", err)
	}

	list, err := s.ListChatSessions("alice", 10)
	if err != nil {
		t.Fatalf("ListChatSessions: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("len = %d, want 1", len(list))
	}
	if list[0].MessageCount != 2 || list[0].StateJSON != `{"message_count":2}` {
		t.Errorf("session not updated: %+v", list[0])
	}
	if list[0].Summary != "Order Tracking" {
		t.Errorf("Summary = %q", list[0].Summary)
	}

	got, err := s.GetChatSession("s1")
	if err != nil {
		t.Fatalf("GetChatSession: %v", err)
	}
	if got.Username != "alice" || got.MessageCount != 2 || got.CreatedAt.IsZero() {
		t.Errorf("GetChatSession = %+v", got)
	}
	if _, err := s.GetChatSession("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}

	n, err := s.DeleteChatSessions("alice")
	if err != nil {
		t.Fatalf("DeleteChatSessions: %v", err)
	}
	if n != 1 {
		t.Errorf("deleted %d, want 1", n)
	}
	if list, _ := s.ListChatSessions("bob", 10); len(list) != 1 {
		t.Errorf("bob's history should be untouched")
	}
}
