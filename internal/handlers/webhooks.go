package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"

	"github.com/shopward/api/internal/platform/httpx"
	"github.com/shopward/api/internal/services"
)

const maxWebhookBody = 256 * 1024

// WebhookHandlers receives asynchronous gateway notifications. Signature
// verification happens before any payload is trusted.
type WebhookHandlers struct {
	signingSecret string
	checkout      services.CheckoutService
}

// NewWebhookHandlers constructs gateway webhook handlers.
func NewWebhookHandlers(signingSecret string, checkout services.CheckoutService) *WebhookHandlers {
	return &WebhookHandlers{
		signingSecret: strings.TrimSpace(signingSecret),
		checkout:      checkout,
	}
}

// Routes registers webhook endpoints under the provided router.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.handleStripe)
}

// handleStripe settles orders on checkout.session.completed so a customer
// who never returns to the storefront still gets their order confirmed.
func (h *WebhookHandlers) handleStripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	event, err := webhook.ConstructEvent(body, r.Header.Get("Stripe-Signature"), h.signingSecret)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	switch event.Type {
	case "checkout.session.completed", "checkout.session.async_payment_succeeded":
		var session stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed session payload", http.StatusBadRequest))
			return
		}
		if _, err := h.checkout.ReconcileAfterPayment(ctx, services.ReconcileCommand{SessionID: session.ID}); err != nil {
			// Gateway retries on 5xx; unattributable sessions must not loop.
			if errors.Is(err, services.ErrCustomerNotFound) || errors.Is(err, services.ErrPaymentNotCompleted) {
				httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true, "skipped": err.Error()})
				return
			}
			writeServiceError(ctx, w, err)
			return
		}
	}

	httpx.WriteJSON(w, http.StatusOK, map[string]any{"received": true})
}
