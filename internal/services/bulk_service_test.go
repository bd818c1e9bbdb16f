package services

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopward/api/internal/domain"
)

var bulkNow = time.Date(2025, 6, 4, 14, 0, 0, 0, time.UTC)

func newBulkFixture(t *testing.T) (*memoryOrderRepo, *memoryUserRepo, BulkService) {
	t.Helper()
	orders := newMemoryOrderRepo()
	users := newMemoryUserRepo()
	locator, err := NewOrderLocator(OrderLocatorDeps{Orders: orders, Users: users, Logger: discardLog})
	if err != nil {
		t.Fatal(err)
	}
	svc, err := NewBulkService(BulkServiceDeps{
		Locator: locator,
		Clock:   fixedClock(bulkNow),
		Logger:  discardLog,
	})
	if err != nil {
		t.Fatalf("NewBulkService returned error: %v", err)
	}
	return orders, users, svc
}

var admin = domain.Actor{ID: "root", Role: domain.RoleAdmin}

func TestBulkDeletePartitionsResults(t *testing.T) {
	orders, _, svc := newBulkFixture(t)
	seedCollectionOrder(t, orders, "A")
	seedCollectionOrder(t, orders, "C")

	result, err := svc.BulkDelete(context.Background(), admin, []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("BulkDelete returned error: %v", err)
	}
	if !reflect.DeepEqual(result.Mutated, []string{"A", "C"}) {
		t.Fatalf("mutated = %v, want [A C]", result.Mutated)
	}
	if !reflect.DeepEqual(result.NotFound, []string{"B"}) {
		t.Fatalf("notFound = %v, want [B]", result.NotFound)
	}
	if len(result.Errors) != 0 {
		t.Fatalf("errors = %v, want empty", result.Errors)
	}

	if _, err := orders.GetOrderByID(context.Background(), "A"); err == nil {
		t.Fatal("order A must be gone")
	}
}

func TestBulkDeleteSpansBothStorageShapes(t *testing.T) {
	orders, users, svc := newBulkFixture(t)
	seedCollectionOrder(t, orders, "ORD-col")
	users.store["user-1"] = domain.User{
		ID:     "user-1",
		Orders: []domain.Order{{ID: "ORD-arr", Status: "pending"}},
	}

	result, err := svc.BulkDelete(context.Background(), admin, []string{"ORD-col", "ORD-arr"})
	if err != nil {
		t.Fatal(err)
	}
	if len(result.Mutated) != 2 || len(result.NotFound) != 0 || len(result.Errors) != 0 {
		t.Fatalf("result = %+v", result)
	}
	if len(users.store["user-1"].Orders) != 0 {
		t.Fatal("embedded order must be removed")
	}
}

func TestBulkDeleteRequiresAdmin(t *testing.T) {
	_, _, svc := newBulkFixture(t)
	for _, role := range []domain.Role{domain.RoleAccount, domain.RolePacker, domain.RoleDeliveryman, domain.RoleUser} {
		if _, err := svc.BulkDelete(context.Background(), domain.Actor{ID: "x", Role: role}, []string{"A"}); !errors.Is(err, ErrBulkForbidden) {
			t.Errorf("%s: err = %v, want ErrBulkForbidden", role, err)
		}
	}
}

func TestBulkUpdateStatusRecordsPerIDErrors(t *testing.T) {
	orders, _, svc := newBulkFixture(t)
	seedCollectionOrder(t, orders, "A") // pending -> confirmed is fine
	delivered := domain.Order{ID: "D", OwnerUserID: "user-1", Status: domain.OrderStatusDelivered, CreatedAt: bulkNow}
	if _, err := orders.PutOrder(context.Background(), delivered); err != nil {
		t.Fatal(err)
	}

	result, err := svc.BulkUpdateStatus(context.Background(), admin, []string{"A", "D", "missing"}, domain.OrderStatusConfirmed)
	if err != nil {
		t.Fatalf("BulkUpdateStatus returned error: %v", err)
	}
	if !reflect.DeepEqual(result.Mutated, []string{"A"}) {
		t.Fatalf("mutated = %v, want [A]", result.Mutated)
	}
	if !reflect.DeepEqual(result.NotFound, []string{"missing"}) {
		t.Fatalf("notFound = %v, want [missing]", result.NotFound)
	}
	if len(result.Errors) != 1 || result.Errors[0].OrderID != "D" {
		t.Fatalf("errors = %+v, want one entry for D", result.Errors)
	}

	// The terminal order stays untouched.
	record, _ := orders.GetOrderByID(context.Background(), "D")
	if record.Order.Status != domain.OrderStatusDelivered {
		t.Fatalf("terminal order mutated: %+v", record.Order)
	}
}

func TestBulkUpdateStatusRejectsUnknownStatus(t *testing.T) {
	_, _, svc := newBulkFixture(t)
	if _, err := svc.BulkUpdateStatus(context.Background(), admin, []string{"A"}, "warp"); !errors.Is(err, domain.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestBulkResultBucketsAreNeverNil(t *testing.T) {
	_, _, svc := newBulkFixture(t)
	result, err := svc.BulkDelete(context.Background(), admin, nil)
	if err != nil {
		t.Fatal(err)
	}
	if result.Mutated == nil || result.NotFound == nil || result.Errors == nil {
		t.Fatalf("buckets must serialise as arrays, got %+v", result)
	}
}
