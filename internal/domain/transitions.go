package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	// ErrInvalidTransition indicates the target status is not adjacent to the
	// current status in the fulfillment graph. Structural; role-independent.
	ErrInvalidTransition = errors.New("order: invalid status transition")
	// ErrForbidden indicates the actor's role does not permit the transition.
	ErrForbidden = errors.New("order: transition forbidden for role")
)

// statusGraph is the adjacency relation of the fulfillment state machine.
// Terminal statuses have no entry. Cancellation is reachable from every
// non-terminal status.
var statusGraph = map[OrderStatus][]OrderStatus{
	OrderStatusPending:        {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:      {OrderStatusPacked, OrderStatusCancelled},
	OrderStatusPacked:         {OrderStatusOutForDelivery, OrderStatusCancelled},
	OrderStatusOutForDelivery: {OrderStatusDelivered, OrderStatusCancelled},
}

// roleTransitions lists the exact status edges each non-admin role may drive.
// account is handled separately (cancel-only from any non-terminal status),
// and admin has blanket role permission.
var roleTransitions = map[Role]map[OrderStatus][]OrderStatus{
	RolePacker: {
		OrderStatusPending:   {OrderStatusConfirmed},
		OrderStatusConfirmed: {OrderStatusPacked},
	},
	RoleDeliveryman: {
		OrderStatusPacked:         {OrderStatusOutForDelivery},
		OrderStatusOutForDelivery: {OrderStatusDelivered},
	},
}

// AdjacentStatuses returns the structurally reachable statuses from s,
// ignoring roles. Empty for terminal statuses.
func AdjacentStatuses(s OrderStatus) []OrderStatus {
	return slices.Clone(statusGraph[s])
}

// CanTransition is the pure role decision: does role have permission to move
// an order from one status to the other? It deliberately ignores adjacency;
// the state machine enforces that structurally.
func CanTransition(role Role, from, to OrderStatus) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleAccount:
		// Financial/fraud cancellation authority only.
		return to == OrderStatusCancelled && !IsTerminal(from)
	default:
		edges, ok := roleTransitions[role]
		if !ok {
			return false
		}
		return slices.Contains(edges[from], to)
	}
}

// LegalNextStatuses enumerates statuses the role may move the order to from
// its current status: the intersection of the structural graph and the role's
// rights. Always empty for terminal statuses, admin included.
func LegalNextStatuses(role Role, from OrderStatus) []OrderStatus {
	adjacent := statusGraph[from]
	next := make([]OrderStatus, 0, len(adjacent))
	for _, to := range adjacent {
		if CanTransition(role, from, to) {
			next = append(next, to)
		}
	}
	return next
}

// CanSetPaymentStatus gates payment-status transitions by role. The account
// role holds full payment authority; a deliveryman may only mark a cash order
// collected.
func CanSetPaymentStatus(role Role, method PaymentMethod, from, to PaymentStatus) bool {
	switch role {
	case RoleAdmin, RoleAccount:
		return true
	case RoleDeliveryman:
		return method == PaymentMethodCash && from == PaymentStatusPending && to == PaymentStatusPaid
	default:
		return false
	}
}

// rolesAllowing lists the roles that could perform the transition, used to
// build actionable permission errors.
func rolesAllowing(from, to OrderStatus) []Role {
	allowed := []Role{RoleAdmin}
	for role := range roleTransitions {
		if CanTransition(role, from, to) {
			allowed = append(allowed, role)
		}
	}
	if CanTransition(RoleAccount, from, to) {
		allowed = append(allowed, RoleAccount)
	}
	slices.Sort(allowed)
	return allowed
}

// ApplyStatusTransition validates and applies a status transition, returning
// the updated order. The structural adjacency check runs before the role
// check, so skipping a pipeline step fails as invalid even for admins. On
// success exactly one entry is appended to StatusHistory and UpdatedAt is
// refreshed. The caller persists the result.
func ApplyStatusTransition(order Order, to OrderStatus, actor Actor, now time.Time, notes string) (Order, error) {
	from := order.Status
	if !ValidStatus(to) {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, to)
	}
	if !slices.Contains(statusGraph[from], to) {
		return Order{}, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	if !CanTransition(actor.Role, from, to) {
		return Order{}, fmt.Errorf("%w: %s -> %s requires one of %v, actor has %q",
			ErrForbidden, from, to, rolesAllowing(from, to), actor.Role)
	}

	order.Status = to
	order.StatusHistory = append(slices.Clone(order.StatusHistory), HistoryEntry{
		Status:    string(to),
		Timestamp: now,
		UpdatedBy: actor.ID,
		UserRole:  actor.Role,
		Notes:     notes,
	})
	order.UpdatedAt = now
	return order, nil
}

// ApplyPaymentTransition is the payment-status counterpart of
// ApplyStatusTransition, appending to PaymentHistory and gated by
// CanSetPaymentStatus.
func ApplyPaymentTransition(order Order, to PaymentStatus, actor Actor, now time.Time, notes string) (Order, error) {
	from := order.PaymentStatus
	if !ValidPaymentStatus(to) {
		return Order{}, fmt.Errorf("%w: unknown payment status %q", ErrInvalidTransition, to)
	}
	if from == to {
		return Order{}, fmt.Errorf("%w: payment status already %q", ErrInvalidTransition, to)
	}
	if !CanSetPaymentStatus(actor.Role, order.PaymentMethod, from, to) {
		return Order{}, fmt.Errorf("%w: payment %s -> %s on %s order not permitted for %q",
			ErrForbidden, from, to, order.PaymentMethod, actor.Role)
	}

	order.PaymentStatus = to
	order.PaymentHistory = append(slices.Clone(order.PaymentHistory), HistoryEntry{
		Status:    string(to),
		Timestamp: now,
		UpdatedBy: actor.ID,
		UserRole:  actor.Role,
		Notes:     notes,
	})
	order.UpdatedAt = now
	return order, nil
}
