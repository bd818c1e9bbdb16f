package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/platform/auth"
	"github.com/shopward/api/internal/platform/httpx"
	"github.com/shopward/api/internal/services"
)

const maxCheckoutRequestBody = 16 * 1024

// CheckoutHandlers exposes checkout endpoints for authenticated customers.
type CheckoutHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewCheckoutHandlers constructs checkout handlers guarded by authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *CheckoutHandlers {
	return &CheckoutHandlers{authn: authn, checkout: checkout}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	group.Post("/session", h.beginCheckout)
	group.Post("/complete", h.completeCheckout)
}

type checkoutItemRequest struct {
	ProductID string `json:"productId"`
	Title     string `json:"title"`
	Quantity  int64  `json:"quantity"`
	UnitPrice int64  `json:"unitPrice,omitempty"`
	LineTotal int64  `json:"lineTotal,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

type beginCheckoutRequest struct {
	Items           []checkoutItemRequest `json:"items"`
	ShippingAddress *domain.Address       `json:"shippingAddress,omitempty"`
	PaymentMethod   string                `json:"paymentMethod,omitempty"`
	OrderID         string                `json:"orderId,omitempty"`
}

type beginCheckoutResponse struct {
	OrderID     string `json:"orderId"`
	SessionID   string `json:"sessionId,omitempty"`
	RedirectURL string `json:"redirectUrl,omitempty"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
}

type completeCheckoutRequest struct {
	SessionID string `json:"sessionId"`
}

type completeCheckoutResponse struct {
	OrderID       string `json:"orderId"`
	Status        string `json:"status"`
	PaymentStatus string `json:"paymentStatus"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
	DisplayAmount string `json:"displayAmount"`
}

func (h *CheckoutHandlers) beginCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req beginCheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}

	items := make([]services.CheckoutItem, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, services.CheckoutItem{
			ProductID: item.ProductID,
			Title:     item.Title,
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			LineTotal: item.LineTotal,
			ImageURL:  item.ImageURL,
		})
	}

	result, err := h.checkout.BeginCheckout(ctx, services.BeginCheckoutCommand{
		UserID:          identity.UID,
		CustomerEmail:   identity.Email,
		Items:           items,
		ShippingAddress: req.ShippingAddress,
		PaymentMethod:   domain.PaymentMethod(strings.ToLower(strings.TrimSpace(req.PaymentMethod))),
		ExistingOrderID: req.OrderID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusCreated, beginCheckoutResponse{
		OrderID:     result.OrderID,
		SessionID:   result.SessionID,
		RedirectURL: result.RedirectURL,
		Amount:      result.Amount,
		Currency:    result.Currency,
	})
}

func (h *CheckoutHandlers) completeCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	body, err := readLimitedBody(r, maxCheckoutRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req completeCheckoutRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.SessionID) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "sessionId is required", http.StatusBadRequest))
		return
	}

	summary, err := h.checkout.ReconcileAfterPayment(ctx, services.ReconcileCommand{
		SessionID: req.SessionID,
		UserID:    identity.UID,
	})
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, completeCheckoutResponse{
		OrderID:       summary.OrderID,
		Status:        string(summary.Status),
		PaymentStatus: string(summary.PaymentStatus),
		Amount:        summary.Amount,
		Currency:      summary.Currency,
		DisplayAmount: summary.DisplayAmount,
	})
}
