package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/platform/httpx"
	"github.com/shopward/api/internal/repositories"
	"github.com/shopward/api/internal/services"
)

var errBodyTooLarge = errors.New("request body too large")

func readLimitedBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	defer r.Body.Close()

	body, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, errBodyTooLarge
	}
	return body, nil
}

// writeServiceError maps the service error taxonomy onto the JSON envelope.
func writeServiceError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusUnprocessableEntity))
	case errors.Is(err, domain.ErrForbidden),
		errors.Is(err, services.ErrOrderForbidden),
		errors.Is(err, services.ErrUserForbidden),
		errors.Is(err, services.ErrBulkForbidden):
		httpx.WriteError(ctx, w, httpx.NewError("forbidden", err.Error(), http.StatusForbidden))
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrUserNotFound),
		errors.Is(err, services.ErrCustomerNotFound),
		repositories.IsNotFound(err):
		httpx.WriteError(ctx, w, httpx.NewError("not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, services.ErrOrderConflict),
		errors.Is(err, services.ErrCheckoutConflict),
		repositories.IsConflict(err):
		httpx.WriteError(ctx, w, httpx.NewError("conflict", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInvalidItem),
		errors.Is(err, services.ErrInvalidRole):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentNotCompleted):
		httpx.WriteError(ctx, w, httpx.NewError("payment_not_completed", err.Error(), http.StatusPaymentRequired))
	case errors.Is(err, services.ErrCheckoutGateway):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_error", err.Error(), http.StatusBadGateway))
	case errors.Is(err, services.ErrCheckoutUnavailable),
		errors.Is(err, services.ErrLocatorUnavailable),
		repositories.IsUnavailable(err):
		httpx.WriteError(ctx, w, httpx.NewError("unavailable", err.Error(), http.StatusServiceUnavailable))
	case repositories.IsCorrupt(err):
		httpx.WriteError(ctx, w, httpx.NewError("storage_corruption", err.Error(), http.StatusInternalServerError))
	case errors.Is(err, context.DeadlineExceeded):
		httpx.WriteError(ctx, w, httpx.NewError("timeout", "upstream call timed out", http.StatusGatewayTimeout))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}

func orderResponse(order domain.Order) map[string]any {
	payload := map[string]any{
		"id":            order.ID,
		"orderId":       order.OrderID,
		"ownerUserId":   order.OwnerUserID,
		"status":        order.Status,
		"paymentStatus": order.PaymentStatus,
		"paymentMethod": order.PaymentMethod,
		"items":         order.Items,
		"amount":        order.Amount,
		"currency":      order.Currency,
		"displayAmount": services.FormatAmount(order.Amount, order.Currency),
		"createdAt":     order.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":     order.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if order.CustomerEmail != "" {
		payload["customerEmail"] = order.CustomerEmail
	}
	if order.ShippingAddr != nil {
		payload["shippingAddress"] = order.ShippingAddr
	}
	if len(order.StatusHistory) > 0 {
		payload["statusHistory"] = order.StatusHistory
	}
	if len(order.PaymentHistory) > 0 {
		payload["paymentHistory"] = order.PaymentHistory
	}
	return payload
}
