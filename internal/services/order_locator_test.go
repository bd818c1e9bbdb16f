package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopward/api/internal/domain"
)

var locatorNow = time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)

func newLocatorFixture(t *testing.T) (*memoryOrderRepo, *memoryUserRepo, OrderLocator) {
	t.Helper()
	orders := newMemoryOrderRepo()
	users := newMemoryUserRepo()
	locator, err := NewOrderLocator(OrderLocatorDeps{
		Orders: orders,
		Users:  users,
		Clock:  fixedClock(locatorNow),
		Logger: discardLog,
	})
	if err != nil {
		t.Fatalf("NewOrderLocator returned error: %v", err)
	}
	return orders, users, locator
}

func seedCollectionOrder(t *testing.T, orders *memoryOrderRepo, id string) domain.Order {
	t.Helper()
	order := domain.Order{
		ID:          id,
		OrderID:     id,
		OwnerUserID: "user-1",
		Status:      domain.OrderStatusPending,
		Amount:      1500,
		Currency:    "USD",
		CreatedAt:   locatorNow,
	}
	if _, err := orders.PutOrder(context.Background(), order); err != nil {
		t.Fatal(err)
	}
	return order
}

func TestLocateFindsCollectionOrderFirst(t *testing.T) {
	orders, users, locator := newLocatorFixture(t)
	seedCollectionOrder(t, orders, "ORD-1")
	// A same-id legacy copy must be shadowed by the collection record.
	users.store["user-2"] = domain.User{
		ID:     "user-2",
		Role:   domain.RoleUser,
		Orders: []domain.Order{{ID: "ORD-1", Status: "shipped"}},
	}

	loc, err := locator.Locate(context.Background(), "ORD-1")
	if err != nil {
		t.Fatalf("Locate returned error: %v", err)
	}
	if loc.Source != LocationCollection {
		t.Fatalf("source = %q, want collection", loc.Source)
	}
	if loc.Record.Order.Status != domain.OrderStatusPending {
		t.Fatalf("picked the wrong record: %+v", loc.Record.Order)
	}
}

func TestLocateFallsBackToUserArrays(t *testing.T) {
	_, users, locator := newLocatorFixture(t)
	users.store["user-3"] = domain.User{
		ID:   "user-3",
		Role: domain.RoleUser,
		Orders: []domain.Order{
			{ID: "other", Status: "pending"},
			{OrderID: "ORD-legacy", Status: "processing"},
		},
	}

	loc, err := locator.Locate(context.Background(), "ORD-legacy")
	if err != nil {
		t.Fatalf("Locate returned error: %v", err)
	}
	if loc.Source != LocationUserArray || loc.UserID != "user-3" || loc.Index != 1 {
		t.Fatalf("unexpected location: %+v", loc)
	}
	// Legacy vocabulary collapses on the way out.
	if loc.Record.Order.Status != domain.OrderStatusConfirmed {
		t.Fatalf("status = %q, want confirmed", loc.Record.Order.Status)
	}
	if loc.Record.Order.OwnerUserID != "user-3" {
		t.Fatalf("owner not backfilled: %+v", loc.Record.Order)
	}
}

func TestLocateMatchesEitherAlias(t *testing.T) {
	_, users, locator := newLocatorFixture(t)
	users.store["user-4"] = domain.User{
		ID:     "user-4",
		Role:   domain.RoleUser,
		Orders: []domain.Order{{ID: "doc-77", OrderID: "ORD-77", Status: "pending"}},
	}

	for _, id := range []string{"doc-77", "ORD-77"} {
		if _, err := locator.Locate(context.Background(), id); err != nil {
			t.Errorf("Locate(%q) returned error: %v", id, err)
		}
	}
}

func TestLocateFirstMatchWinsAcrossUsers(t *testing.T) {
	_, users, locator := newLocatorFixture(t)
	// Map iteration order is unstable; the memory repo lists users sorted by
	// id, so user-a is scanned first.
	users.store["user-a"] = domain.User{ID: "user-a", Orders: []domain.Order{{ID: "ORD-dup", Status: "pending"}}}
	users.store["user-b"] = domain.User{ID: "user-b", Orders: []domain.Order{{ID: "ORD-dup", Status: "completed"}}}

	loc, err := locator.Locate(context.Background(), "ORD-dup")
	if err != nil {
		t.Fatalf("Locate returned error: %v", err)
	}
	if loc.UserID != "user-a" {
		t.Fatalf("first match should win, got user %q", loc.UserID)
	}
}

func TestLocateMissingOrder(t *testing.T) {
	_, _, locator := newLocatorFixture(t)
	if _, err := locator.Locate(context.Background(), "ORD-missing"); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestSaveRoutesBackToUserArray(t *testing.T) {
	_, users, locator := newLocatorFixture(t)
	users.store["user-5"] = domain.User{
		ID:     "user-5",
		Orders: []domain.Order{{ID: "ORD-5", Status: "pending"}},
	}

	loc, err := locator.Locate(context.Background(), "ORD-5")
	if err != nil {
		t.Fatal(err)
	}
	updated := loc.Record.Order
	updated.Status = domain.OrderStatusConfirmed

	if _, err := locator.Save(context.Background(), loc, updated); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	stored := users.store["user-5"].Orders[0]
	if stored.Status != domain.OrderStatusConfirmed {
		t.Fatalf("stored status = %q, want confirmed", stored.Status)
	}
}

func TestDeleteRemovesFromUserArray(t *testing.T) {
	_, users, locator := newLocatorFixture(t)
	users.store["user-6"] = domain.User{
		ID: "user-6",
		Orders: []domain.Order{
			{ID: "ORD-keep", Status: "pending"},
			{ID: "ORD-drop", Status: "pending"},
		},
	}

	loc, err := locator.Locate(context.Background(), "ORD-drop")
	if err != nil {
		t.Fatal(err)
	}
	if err := locator.Delete(context.Background(), loc); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	remaining := users.store["user-6"].Orders
	if len(remaining) != 1 || remaining[0].ID != "ORD-keep" {
		t.Fatalf("remaining orders = %+v", remaining)
	}
}
