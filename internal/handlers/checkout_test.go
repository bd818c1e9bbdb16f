package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/platform/auth"
	"github.com/shopward/api/internal/services"
)

func newCheckoutRouter(svc services.CheckoutService) chi.Router {
	h := NewCheckoutHandlers(nil, svc)
	return mountRoutes("/checkout", h.Routes)
}

var customer = &auth.Identity{UID: "user-1", Email: "one@example.com", Role: domain.RoleUser}

func TestBeginCheckoutCreatesSession(t *testing.T) {
	svc := &stubCheckoutService{
		beginResult: services.CheckoutSessionResult{
			OrderID:     "ORD-1",
			SessionID:   "cs_test_1",
			RedirectURL: "https://pay.example/cs_test_1",
			Amount:      2000,
			Currency:    "USD",
		},
	}
	router := newCheckoutRouter(svc)

	body := []byte(`{"items":[{"productId":"p-1","title":"Mug","quantity":2,"unitPrice":1000},{"productId":"p-2","title":"Poster","quantity":3,"lineTotal":600}],"paymentMethod":"online"}`)
	rec := doRequest(t, router, http.MethodPost, "/checkout/session", body, customer)

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201\n%s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["orderId"] != "ORD-1" || payload["sessionId"] != "cs_test_1" {
		t.Fatalf("payload = %v", payload)
	}

	if len(svc.beginCmds) != 1 {
		t.Fatalf("begin calls = %d, want 1", len(svc.beginCmds))
	}
	cmd := svc.beginCmds[0]
	if cmd.UserID != "user-1" || cmd.CustomerEmail != "one@example.com" {
		t.Fatalf("identity not forwarded: %+v", cmd)
	}
	if len(cmd.Items) != 2 || cmd.Items[0].Quantity != 2 || cmd.Items[0].UnitPrice != 1000 {
		t.Fatalf("items not forwarded: %+v", cmd.Items)
	}
	if cmd.Items[1].LineTotal != 600 || cmd.Items[1].UnitPrice != 0 {
		t.Fatalf("line total not forwarded: %+v", cmd.Items[1])
	}
}

func TestBeginCheckoutRequiresIdentity(t *testing.T) {
	svc := &stubCheckoutService{}
	router := newCheckoutRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/checkout/session", []byte(`{"items":[]}`), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if len(svc.beginCmds) != 0 {
		t.Fatal("service must not be reached without an identity")
	}
}

func TestBeginCheckoutMapsServiceErrors(t *testing.T) {
	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"invalid item", services.ErrCheckoutInvalidItem, http.StatusBadRequest, "invalid_request"},
		{"gateway down", services.ErrCheckoutGateway, http.StatusBadGateway, "gateway_error"},
		{"storage down", services.ErrCheckoutUnavailable, http.StatusServiceUnavailable, "unavailable"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newCheckoutRouter(&stubCheckoutService{beginErr: tc.err})
			rec := doRequest(t, router, http.MethodPost, "/checkout/session",
				[]byte(`{"items":[{"productId":"p","quantity":1,"unitPrice":1}]}`), customer)
			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			if payload := decodeBody(t, rec); payload["error"] != tc.wantCode {
				t.Fatalf("error code = %v, want %q", payload["error"], tc.wantCode)
			}
		})
	}
}

func TestBeginCheckoutRejectsMalformedJSON(t *testing.T) {
	router := newCheckoutRouter(&stubCheckoutService{})
	rec := doRequest(t, router, http.MethodPost, "/checkout/session", []byte(`{"items":`), customer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCompleteCheckoutReturnsSummary(t *testing.T) {
	svc := &stubCheckoutService{
		reconcileResult: services.OrderSummary{
			OrderID:       "ORD-1",
			Status:        domain.OrderStatusConfirmed,
			PaymentStatus: domain.PaymentStatusPaid,
			Amount:        2000,
			Currency:      "USD",
			DisplayAmount: "$20.00",
		},
	}
	router := newCheckoutRouter(svc)

	rec := doRequest(t, router, http.MethodPost, "/checkout/complete", []byte(`{"sessionId":"cs_test_1"}`), customer)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200\n%s", rec.Code, rec.Body.String())
	}
	payload := decodeBody(t, rec)
	if payload["status"] != "confirmed" || payload["paymentStatus"] != "paid" || payload["displayAmount"] != "$20.00" {
		t.Fatalf("payload = %v", payload)
	}
	if len(svc.reconcileCmds) != 1 || svc.reconcileCmds[0].SessionID != "cs_test_1" || svc.reconcileCmds[0].UserID != "user-1" {
		t.Fatalf("reconcile calls = %+v", svc.reconcileCmds)
	}
}

func TestCompleteCheckoutRequiresSessionID(t *testing.T) {
	svc := &stubCheckoutService{}
	router := newCheckoutRouter(svc)
	rec := doRequest(t, router, http.MethodPost, "/checkout/complete", []byte(`{}`), customer)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if len(svc.reconcileCmds) != 0 {
		t.Fatal("service must not be reached without a session id")
	}
}

func TestCompleteCheckoutUnpaidSession(t *testing.T) {
	router := newCheckoutRouter(&stubCheckoutService{reconcileErr: services.ErrPaymentNotCompleted})
	rec := doRequest(t, router, http.MethodPost, "/checkout/complete", []byte(`{"sessionId":"cs_test_1"}`), customer)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", rec.Code)
	}
	if payload := decodeBody(t, rec); payload["error"] != "payment_not_completed" {
		t.Fatalf("error code = %v", payload["error"])
	}
}
