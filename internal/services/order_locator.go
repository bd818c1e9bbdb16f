package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/repositories"
)

var (
	// ErrOrderNotFound indicates no storage site holds the requested id.
	ErrOrderNotFound = errors.New("orders: order not found")
	// ErrLocatorUnavailable indicates order storage could not be reached.
	ErrLocatorUnavailable = errors.New("orders: storage unavailable")
)

// OrderLocatorDeps wires the dependencies required by the locator.
type OrderLocatorDeps struct {
	Orders repositories.OrderRepository
	Users  repositories.UserRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type orderLocator struct {
	orders repositories.OrderRepository
	users  repositories.UserRepository
	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewOrderLocator constructs an OrderLocator over both storage sites.
func NewOrderLocator(deps OrderLocatorDeps) (OrderLocator, error) {
	if deps.Orders == nil {
		return nil, errors.New("order locator: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("order locator: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderLocator{
		orders: deps.Orders,
		users:  deps.Users,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// Locate probes the canonical collection first, then falls back to scanning
// the legacy embedded arrays. The first match wins; further matches are
// logged and ignored.
func (l *orderLocator) Locate(ctx context.Context, orderID string) (OrderLocation, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return OrderLocation{}, ErrOrderNotFound
	}

	record, err := l.orders.GetOrderByID(ctx, orderID)
	switch {
	case err == nil:
		return OrderLocation{Record: record, Source: LocationCollection}, nil
	case repositories.IsNotFound(err):
		// Fall through to the alias and legacy probes.
	case repositories.IsCorrupt(err):
		l.logger(ctx, "orders.locate.corrupt", map[string]any{
			"orderId": orderID,
			"source":  string(LocationCollection),
			"error":   err.Error(),
		})
		return OrderLocation{}, err
	default:
		return OrderLocation{}, err
	}

	// The query id may be a display id aliasing a differently keyed document.
	if loc, ok, err := l.locateByAlias(ctx, orderID); err != nil {
		return OrderLocation{}, err
	} else if ok {
		return loc, nil
	}

	return l.locateInUserArrays(ctx, orderID)
}

func (l *orderLocator) locateByAlias(ctx context.Context, orderID string) (OrderLocation, bool, error) {
	records, err := l.orders.ListAllOrders(ctx)
	if err != nil {
		if repositories.IsUnavailable(err) {
			return OrderLocation{}, false, ErrLocatorUnavailable
		}
		return OrderLocation{}, false, err
	}

	var found *OrderLocation
	for _, record := range records {
		if !record.Order.MatchesID(orderID) {
			continue
		}
		if found != nil {
			l.logger(ctx, "orders.locate.duplicate", map[string]any{
				"orderId":   orderID,
				"keptId":    found.Record.Order.ID,
				"ignoredId": record.Order.ID,
				"source":    string(LocationCollection),
			})
			continue
		}
		loc := OrderLocation{Record: record, Source: LocationCollection}
		found = &loc
	}
	if found == nil {
		return OrderLocation{}, false, nil
	}
	return *found, true, nil
}

func (l *orderLocator) locateInUserArrays(ctx context.Context, orderID string) (OrderLocation, error) {
	users, err := l.users.ListAllUsers(ctx)
	if err != nil {
		if repositories.IsUnavailable(err) {
			return OrderLocation{}, ErrLocatorUnavailable
		}
		return OrderLocation{}, err
	}

	var found *OrderLocation
	for _, user := range users {
		for i, raw := range user.Orders {
			if !raw.MatchesID(orderID) {
				continue
			}
			order, err := domain.NormalizeOrder(raw)
			if err != nil {
				l.logger(ctx, "orders.locate.corrupt", map[string]any{
					"orderId": orderID,
					"userId":  user.ID,
					"source":  string(LocationUserArray),
					"error":   err.Error(),
				})
				continue
			}
			if order.OwnerUserID == "" {
				order.OwnerUserID = user.ID
			}
			if found != nil {
				l.logger(ctx, "orders.locate.duplicate", map[string]any{
					"orderId":   orderID,
					"keptUser":  found.UserID,
					"duplicate": user.ID,
					"source":    string(LocationUserArray),
				})
				continue
			}
			loc := OrderLocation{
				Record: repositories.OrderRecord{Order: order},
				Source: LocationUserArray,
				UserID: user.ID,
				Index:  i,
			}
			found = &loc
		}
	}
	if found == nil {
		return OrderLocation{}, ErrOrderNotFound
	}
	return *found, nil
}

// Save routes the mutated order back to the site it was located at.
func (l *orderLocator) Save(ctx context.Context, loc OrderLocation, order domain.Order) (OrderLocation, error) {
	switch loc.Source {
	case LocationCollection:
		record, err := l.orders.UpdateOrder(ctx, order, loc.Record.SyncTime)
		if err != nil {
			return OrderLocation{}, err
		}
		return OrderLocation{Record: record, Source: LocationCollection}, nil

	case LocationUserArray:
		user, err := l.users.GetUser(ctx, loc.UserID)
		if err != nil {
			return OrderLocation{}, err
		}
		if loc.Index < 0 || loc.Index >= len(user.Orders) || !user.Orders[loc.Index].MatchesID(order.ID) {
			return OrderLocation{}, ErrOrderNotFound
		}
		user.Orders[loc.Index] = order
		if err := l.users.UpdateUserOrders(ctx, user.ID, user.Orders); err != nil {
			return OrderLocation{}, err
		}
		loc.Record = repositories.OrderRecord{Order: order}
		return loc, nil
	}
	return OrderLocation{}, errors.New("orders: unknown location source")
}

// Delete removes the order from the site it was located at.
func (l *orderLocator) Delete(ctx context.Context, loc OrderLocation) error {
	switch loc.Source {
	case LocationCollection:
		return l.orders.DeleteOrder(ctx, loc.Record.Order.ID)

	case LocationUserArray:
		user, err := l.users.GetUser(ctx, loc.UserID)
		if err != nil {
			return err
		}
		if loc.Index < 0 || loc.Index >= len(user.Orders) || !user.Orders[loc.Index].MatchesID(loc.Record.Order.ID) {
			return ErrOrderNotFound
		}
		remaining := append(user.Orders[:loc.Index:loc.Index], user.Orders[loc.Index+1:]...)
		return l.users.UpdateUserOrders(ctx, user.ID, remaining)
	}
	return errors.New("orders: unknown location source")
}
