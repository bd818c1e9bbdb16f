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

// ErrBulkForbidden indicates the actor may not run bulk mutations.
var ErrBulkForbidden = errors.New("bulk: admin role required")

// BulkServiceDeps wires the dependencies required by the bulk service.
type BulkServiceDeps struct {
	Locator OrderLocator
	Events  OrderEventPublisher
	Clock   func() time.Time
	Logger  func(ctx context.Context, event string, fields map[string]any)
}

type bulkService struct {
	locator OrderLocator
	events  OrderEventPublisher
	now     func() time.Time
	logger  func(ctx context.Context, event string, fields map[string]any)
}

// NewBulkService constructs a BulkService validating required dependencies.
func NewBulkService(deps BulkServiceDeps) (BulkService, error) {
	if deps.Locator == nil {
		return nil, errors.New("bulk service: locator is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &bulkService{
		locator: deps.Locator,
		events:  deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// BulkDelete removes each order independently; a failure on one id never
// aborts the rest. Every requested id lands in exactly one result bucket.
func (s *bulkService) BulkDelete(ctx context.Context, actor domain.Actor, orderIDs []string) (BulkResult, error) {
	if actor.Role != domain.RoleAdmin {
		return BulkResult{}, ErrBulkForbidden
	}

	result := newBulkResult()
	for _, rawID := range orderIDs {
		id := strings.TrimSpace(rawID)
		if id == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		loc, err := s.locator.Locate(ctx, id)
		if err != nil {
			s.bucketLocateFailure(ctx, &result, id, err)
			continue
		}
		if err := s.locator.Delete(ctx, loc); err != nil {
			if repositories.IsNotFound(err) || errors.Is(err, ErrOrderNotFound) {
				result.NotFound = append(result.NotFound, id)
				continue
			}
			s.logger(ctx, "bulk.delete.failed", map[string]any{
				"orderId": id,
				"source":  string(loc.Source),
				"error":   err.Error(),
			})
			result.Errors = append(result.Errors, BulkError{OrderID: id, Message: err.Error()})
			continue
		}
		result.Mutated = append(result.Mutated, id)
		s.publishEvent(ctx, "order.deleted", loc.Record.Order, actor)
	}
	return result, nil
}

// BulkUpdateStatus applies the same transition to each order independently.
// Structural and role failures for one id are recorded and the loop moves on.
func (s *bulkService) BulkUpdateStatus(ctx context.Context, actor domain.Actor, orderIDs []string, to domain.OrderStatus) (BulkResult, error) {
	if actor.Role != domain.RoleAdmin {
		return BulkResult{}, ErrBulkForbidden
	}
	if !domain.ValidStatus(to) {
		return BulkResult{}, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidTransition, to)
	}

	result := newBulkResult()
	for _, rawID := range orderIDs {
		id := strings.TrimSpace(rawID)
		if id == "" {
			continue
		}
		if err := ctx.Err(); err != nil {
			return result, err
		}

		loc, err := s.locator.Locate(ctx, id)
		if err != nil {
			s.bucketLocateFailure(ctx, &result, id, err)
			continue
		}

		updated, err := domain.ApplyStatusTransition(loc.Record.Order, to, actor, s.now(), "")
		if err != nil {
			result.Errors = append(result.Errors, BulkError{OrderID: id, Message: err.Error()})
			continue
		}
		saved, err := s.locator.Save(ctx, loc, updated)
		if err != nil {
			s.logger(ctx, "bulk.updateStatus.failed", map[string]any{
				"orderId": id,
				"source":  string(loc.Source),
				"error":   err.Error(),
			})
			result.Errors = append(result.Errors, BulkError{OrderID: id, Message: err.Error()})
			continue
		}
		result.Mutated = append(result.Mutated, id)
		s.publishEvent(ctx, "order.statusChanged", saved.Record.Order, actor)
	}
	return result, nil
}

func (s *bulkService) bucketLocateFailure(ctx context.Context, result *BulkResult, id string, err error) {
	if errors.Is(err, ErrOrderNotFound) || repositories.IsNotFound(err) {
		result.NotFound = append(result.NotFound, id)
		return
	}
	s.logger(ctx, "bulk.locate.failed", map[string]any{
		"orderId": id,
		"error":   err.Error(),
	})
	result.Errors = append(result.Errors, BulkError{OrderID: id, Message: err.Error()})
}

func (s *bulkService) publishEvent(ctx context.Context, eventType string, order domain.Order, actor domain.Actor) {
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
		s.logger(ctx, "bulk.event.publishFailed", map[string]any{
			"orderId":   order.ID,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}

func newBulkResult() BulkResult {
	return BulkResult{
		Mutated:  []string{},
		NotFound: []string{},
		Errors:   []BulkError{},
	}
}
