package handlers

import (
	"fmt"
	"net/http"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/platform/auth"
	"github.com/shopward/api/internal/services"
)

func newAdminRouter(bulk services.BulkService, users services.UserService) chi.Router {
	h := NewAdminHandlers(nil, bulk, users)
	return mountRoutes("/admin", h.Routes)
}

var adminIdentity = &auth.Identity{UID: "root", Email: "root@example.com", Role: domain.RoleAdmin}

func TestBulkDeleteReturnsPartitionedBuckets(t *testing.T) {
	bulk := &stubBulkService{
		result: services.BulkResult{
			Mutated:  []string{"A", "C"},
			NotFound: []string{"B"},
			Errors:   []services.BulkError{},
		},
	}
	router := newAdminRouter(bulk, &stubUserService{})

	rec := doRequest(t, router, http.MethodPost, "/admin/orders/bulk-delete",
		[]byte(`{"orderIds":["A","B","C"]}`), adminIdentity)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}

	payload := decodeBody(t, rec)
	deleted, _ := payload["deleted"].([]any)
	notFound, _ := payload["notFound"].([]any)
	if len(deleted) != 2 || len(notFound) != 1 {
		t.Fatalf("payload = %v", payload)
	}
	if errList, ok := payload["errors"].([]any); !ok || len(errList) != 0 {
		t.Fatalf("errors must serialise as an empty array, got %v", payload["errors"])
	}

	if len(bulk.calls) != 1 || bulk.calls[0].actor.Role != domain.RoleAdmin {
		t.Fatalf("calls = %+v", bulk.calls)
	}
}

func TestBulkDeleteRejectsEmptyAndOversizedBatches(t *testing.T) {
	bulk := &stubBulkService{}
	router := newAdminRouter(bulk, &stubUserService{})

	rec := doRequest(t, router, http.MethodPost, "/admin/orders/bulk-delete", []byte(`{"orderIds":[]}`), adminIdentity)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("empty batch status = %d, want 400", rec.Code)
	}

	ids := make([]string, 201)
	for i := range ids {
		ids[i] = fmt.Sprintf("%q", fmt.Sprintf("ORD-%d", i))
	}
	body := []byte(`{"orderIds":[` + strings.Join(ids, ",") + `]}`)
	rec = doRequest(t, router, http.MethodPost, "/admin/orders/bulk-delete", body, adminIdentity)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("oversized batch status = %d, want 400", rec.Code)
	}

	if len(bulk.calls) != 0 {
		t.Fatal("service must not be reached for rejected batches")
	}
}

func TestBulkUpdateStatusForwardsTarget(t *testing.T) {
	bulk := &stubBulkService{
		result: services.BulkResult{Mutated: []string{"A"}, NotFound: []string{}, Errors: []services.BulkError{}},
	}
	router := newAdminRouter(bulk, &stubUserService{})

	rec := doRequest(t, router, http.MethodPost, "/admin/orders/bulk-status",
		[]byte(`{"orderIds":["A"],"status":" Confirmed "}`), adminIdentity)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if updated, _ := payload["updated"].([]any); len(updated) != 1 {
		t.Fatalf("payload = %v", payload)
	}
	if len(bulk.calls) != 1 || bulk.calls[0].to != domain.OrderStatusConfirmed {
		t.Fatalf("target status not normalised: %+v", bulk.calls)
	}
}

func TestBulkUpdateStatusRequiresStatus(t *testing.T) {
	router := newAdminRouter(&stubBulkService{}, &stubUserService{})
	rec := doRequest(t, router, http.MethodPost, "/admin/orders/bulk-status",
		[]byte(`{"orderIds":["A"]}`), adminIdentity)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestBulkEndpointsSurfaceForbidden(t *testing.T) {
	router := newAdminRouter(&stubBulkService{err: services.ErrBulkForbidden}, &stubUserService{})
	rec := doRequest(t, router, http.MethodPost, "/admin/orders/bulk-delete",
		[]byte(`{"orderIds":["A"]}`), &auth.Identity{UID: "u-1", Role: domain.RoleAccount})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["error"] != "forbidden" {
		t.Fatalf("error code = %v", payload["error"])
	}
}

func TestChangeRoleEndpoint(t *testing.T) {
	users := &stubUserService{user: domain.User{ID: "u-2", Email: "two@example.com", Role: domain.RolePacker}}
	router := newAdminRouter(&stubBulkService{}, users)

	rec := doRequest(t, router, http.MethodPatch, "/admin/users/u-2/role",
		[]byte(`{"role":"packer"}`), adminIdentity)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	if payload := decodeBody(t, rec); payload["role"] != "packer" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestChangeRoleRejectsUnknownRole(t *testing.T) {
	router := newAdminRouter(&stubBulkService{}, &stubUserService{err: services.ErrInvalidRole})
	rec := doRequest(t, router, http.MethodPatch, "/admin/users/u-2/role",
		[]byte(`{"role":"superuser"}`), adminIdentity)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestListUsersEndpoint(t *testing.T) {
	users := &stubUserService{users: []domain.User{
		{ID: "u-1", Email: "one@example.com", Role: domain.RoleUser},
		{ID: "u-2", Email: "two@example.com", Role: domain.RolePacker},
	}}
	router := newAdminRouter(&stubBulkService{}, users)

	rec := doRequest(t, router, http.MethodGet, "/admin/users", nil, adminIdentity)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	payload := decodeBody(t, rec)
	if list, _ := payload["users"].([]any); len(list) != 2 {
		t.Fatalf("payload = %v", payload)
	}
}
