package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrCorruptOrder flags a stored order document that cannot be interpreted.
// Corrupt documents are rejected at the read boundary instead of propagating
// half-typed values into the services.
var ErrCorruptOrder = errors.New("order: corrupt record")

// NormalizeOrder collapses legacy status vocabularies and backfills the
// id/orderId aliases, then validates the result. It is applied to every order
// read from storage, whether from the collection or a user's embedded array.
func NormalizeOrder(order Order) (Order, error) {
	order.ID = strings.TrimSpace(order.ID)
	order.OrderID = strings.TrimSpace(order.OrderID)
	if order.ID == "" && order.OrderID != "" {
		order.ID = order.OrderID
	}
	if order.OrderID == "" {
		order.OrderID = order.ID
	}
	if order.ID == "" {
		return Order{}, fmt.Errorf("%w: missing id", ErrCorruptOrder)
	}

	status, ok := CanonicalStatus(string(order.Status))
	if !ok {
		if order.Status == "" {
			status = OrderStatusPending
		} else {
			return Order{}, fmt.Errorf("%w: unrecognised status %q on %s", ErrCorruptOrder, order.Status, order.ID)
		}
	}
	order.Status = status

	if order.PaymentStatus == "" {
		order.PaymentStatus = PaymentStatusPending
	}
	if !ValidPaymentStatus(order.PaymentStatus) {
		return Order{}, fmt.Errorf("%w: unrecognised payment status %q on %s", ErrCorruptOrder, order.PaymentStatus, order.ID)
	}

	switch order.PaymentMethod {
	case PaymentMethodOnline, PaymentMethodCash:
	case "":
		order.PaymentMethod = PaymentMethodOnline
	default:
		return Order{}, fmt.Errorf("%w: unrecognised payment method %q on %s", ErrCorruptOrder, order.PaymentMethod, order.ID)
	}

	if order.Amount < 0 {
		return Order{}, fmt.Errorf("%w: negative amount on %s", ErrCorruptOrder, order.ID)
	}
	for i, item := range order.Items {
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %d of %s has quantity %d", ErrCorruptOrder, i, order.ID, item.Quantity)
		}
	}
	return order, nil
}
