package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/platform/auth"
	"github.com/shopward/api/internal/services"
)

type stubCheckoutService struct {
	beginResult services.CheckoutSessionResult
	beginErr    error
	beginCmds   []services.BeginCheckoutCommand

	reconcileResult services.OrderSummary
	reconcileErr    error
	reconcileCmds   []services.ReconcileCommand
}

func (s *stubCheckoutService) BeginCheckout(_ context.Context, cmd services.BeginCheckoutCommand) (services.CheckoutSessionResult, error) {
	s.beginCmds = append(s.beginCmds, cmd)
	return s.beginResult, s.beginErr
}

func (s *stubCheckoutService) ReconcileAfterPayment(_ context.Context, cmd services.ReconcileCommand) (services.OrderSummary, error) {
	s.reconcileCmds = append(s.reconcileCmds, cmd)
	return s.reconcileResult, s.reconcileErr
}

type stubBulkService struct {
	result services.BulkResult
	err    error
	calls  []struct {
		actor domain.Actor
		ids   []string
		to    domain.OrderStatus
	}
}

func (s *stubBulkService) record(actor domain.Actor, ids []string, to domain.OrderStatus) {
	s.calls = append(s.calls, struct {
		actor domain.Actor
		ids   []string
		to    domain.OrderStatus
	}{actor, ids, to})
}

func (s *stubBulkService) BulkDelete(_ context.Context, actor domain.Actor, orderIDs []string) (services.BulkResult, error) {
	s.record(actor, orderIDs, "")
	return s.result, s.err
}

func (s *stubBulkService) BulkUpdateStatus(_ context.Context, actor domain.Actor, orderIDs []string, to domain.OrderStatus) (services.BulkResult, error) {
	s.record(actor, orderIDs, to)
	return s.result, s.err
}

type stubUserService struct {
	user  domain.User
	users []domain.User
	err   error
}

func (s *stubUserService) EnsureUser(context.Context, services.EnsureUserCommand) (domain.User, error) {
	return s.user, s.err
}

func (s *stubUserService) GetUser(context.Context, domain.Actor, string) (domain.User, error) {
	return s.user, s.err
}

func (s *stubUserService) ListUsers(context.Context, domain.Actor) ([]domain.User, error) {
	return s.users, s.err
}

func (s *stubUserService) ChangeRole(context.Context, domain.Actor, string, domain.Role) (domain.User, error) {
	return s.user, s.err
}

func (s *stubUserService) UpsertAddress(context.Context, domain.Actor, string, domain.Address) (domain.User, error) {
	return s.user, s.err
}

type stubOrderService struct {
	order  domain.Order
	orders []domain.Order
	next   []domain.OrderStatus
	err    error
}

func (s *stubOrderService) GetOrder(context.Context, domain.Actor, string) (domain.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) ListOrders(context.Context, domain.Actor) ([]domain.Order, error) {
	return s.orders, s.err
}

func (s *stubOrderService) UpdateStatus(context.Context, domain.Actor, services.UpdateStatusCommand) (domain.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) UpdatePaymentStatus(context.Context, domain.Actor, services.UpdatePaymentStatusCommand) (domain.Order, error) {
	return s.order, s.err
}

func (s *stubOrderService) LegalNextStatuses(domain.Actor, domain.OrderStatus) []domain.OrderStatus {
	return s.next
}

// mountRoutes registers the handler routes on a fresh router. Authentication
// is skipped by the handlers when no authenticator is wired, so tests inject
// the identity straight into the request context.
func mountRoutes(prefix string, register func(chi.Router)) chi.Router {
	r := chi.NewRouter()
	r.Route(prefix, register)
	return r
}

func doRequest(t *testing.T, router http.Handler, method, target string, body []byte, identity *auth.Identity) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if identity != nil {
		req = req.WithContext(auth.WithIdentity(req.Context(), identity))
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var payload map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("response is not valid JSON: %v\n%s", err, rec.Body.String())
	}
	return payload
}
