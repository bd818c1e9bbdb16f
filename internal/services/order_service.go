package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/repositories"
)

var (
	// ErrOrderForbidden indicates the actor may not see or mutate the order.
	ErrOrderForbidden = errors.New("orders: forbidden")
	// ErrOrderConflict indicates a concurrent mutation invalidated the write.
	ErrOrderConflict = errors.New("orders: conflict")
)

// staffRoles may read any order to act on it; plain users only see their own.
var staffRoles = map[domain.Role]struct{}{
	domain.RoleAdmin:       {},
	domain.RoleAccount:     {},
	domain.RolePacker:      {},
	domain.RoleDeliveryman: {},
}

// OrderServiceDeps wires the dependencies required by the order service.
type OrderServiceDeps struct {
	Locator OrderLocator
	Orders  repositories.OrderRepository
	Events  OrderEventPublisher
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	locator OrderLocator
	orders  repositories.OrderRepository
	events  OrderEventPublisher
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderService constructs an OrderService validating required dependencies.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Locator == nil {
		return nil, errors.New("order service: locator is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		locator: deps.Locator,
		orders:  deps.Orders,
		events:  deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// GetOrder loads an order the actor is entitled to see.
func (s *orderService) GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error) {
	loc, err := s.locator.Locate(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	order := loc.Record.Order
	if !canReadOrder(actor, order) {
		return domain.Order{}, fmt.Errorf("%w: order %s", ErrOrderForbidden, order.ID)
	}
	return order, nil
}

// ListOrders returns all orders for staff, and only the actor's own orders
// otherwise.
func (s *orderService) ListOrders(ctx context.Context, actor domain.Actor) ([]domain.Order, error) {
	var (
		records []repositories.OrderRecord
		err     error
	)
	if _, staff := staffRoles[actor.Role]; staff {
		records, err = s.orders.ListAllOrders(ctx)
	} else {
		records, err = s.orders.FindByOwner(ctx, actor.ID)
	}
	if err != nil {
		return nil, err
	}
	orders := make([]domain.Order, 0, len(records))
	for _, record := range records {
		orders = append(orders, record.Order)
	}
	return orders, nil
}

// UpdateStatus applies a role-gated fulfillment transition and persists it
// back to wherever the order record lives.
func (s *orderService) UpdateStatus(ctx context.Context, actor domain.Actor, cmd UpdateStatusCommand) (domain.Order, error) {
	loc, err := s.locator.Locate(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := domain.ApplyStatusTransition(loc.Record.Order, cmd.To, actor, s.now(), strings.TrimSpace(cmd.Notes))
	if err != nil {
		return domain.Order{}, err
	}

	saved, err := s.locator.Save(ctx, loc, updated)
	if err != nil {
		if repositories.IsConflict(err) {
			return domain.Order{}, fmt.Errorf("%w: order %s changed since read", ErrOrderConflict, updated.ID)
		}
		return domain.Order{}, err
	}

	s.publishEvent(ctx, "order.statusChanged", saved.Record.Order, actor)
	return saved.Record.Order, nil
}

// UpdatePaymentStatus applies a role-gated payment transition.
func (s *orderService) UpdatePaymentStatus(ctx context.Context, actor domain.Actor, cmd UpdatePaymentStatusCommand) (domain.Order, error) {
	loc, err := s.locator.Locate(ctx, cmd.OrderID)
	if err != nil {
		return domain.Order{}, err
	}

	updated, err := domain.ApplyPaymentTransition(loc.Record.Order, cmd.To, actor, s.now(), strings.TrimSpace(cmd.Notes))
	if err != nil {
		return domain.Order{}, err
	}

	saved, err := s.locator.Save(ctx, loc, updated)
	if err != nil {
		if repositories.IsConflict(err) {
			return domain.Order{}, fmt.Errorf("%w: order %s changed since read", ErrOrderConflict, updated.ID)
		}
		return domain.Order{}, err
	}

	s.publishEvent(ctx, "order.paymentStatusChanged", saved.Record.Order, actor)
	return saved.Record.Order, nil
}

// LegalNextStatuses enumerates the transitions the actor may drive from the
// given status. Terminal statuses yield an empty slice for every role.
func (s *orderService) LegalNextStatuses(actor domain.Actor, from domain.OrderStatus) []domain.OrderStatus {
	return domain.LegalNextStatuses(actor.Role, from)
}

func (s *orderService) publishEvent(ctx context.Context, eventType string, order domain.Order, actor domain.Actor) {
	if s.events == nil {
		return
	}
	if _, err := s.events.PublishOrderEvent(ctx, OrderEventMessage{
		EventType:     eventType,
		OrderID:       order.ID,
		OwnerUserID:   order.OwnerUserID,
		Status:        string(order.Status),
		PaymentStatus: string(order.PaymentStatus),
		ActorID:       actor.ID,
		ActorRole:     string(actor.Role),
		OccurredAt:    s.now(),
	}); err != nil {
		s.logger(ctx, "orders.event.publishFailed", map[string]any{
			"orderId":   order.ID,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}

func canReadOrder(actor domain.Actor, order domain.Order) bool {
	if _, staff := staffRoles[actor.Role]; staff {
		return true
	}
	return order.OwnerUserID != "" && order.OwnerUserID == actor.ID
}
