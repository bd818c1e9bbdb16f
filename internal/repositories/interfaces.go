package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/shopward/api/internal/domain"
)

// RepositoryError categorises storage failures so services can branch on the
// failure class without knowing the backend.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
	IsCorrupt() bool
}

// IsNotFound reports whether err represents a missing record.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsNotFound()
}

// IsConflict reports whether err represents a concurrent-update conflict.
func IsConflict(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsConflict()
}

// IsUnavailable reports whether err represents a transient backend outage.
func IsUnavailable(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsUnavailable()
}

// IsCorrupt reports whether err represents a stored record that failed
// validation at the read boundary.
func IsCorrupt(err error) bool {
	var repoErr RepositoryError
	return errors.As(err, &repoErr) && repoErr.IsCorrupt()
}

// OrderRecord pairs an order with its storage sync time. SyncTime feeds the
// optimistic precondition on subsequent updates; a zero SyncTime makes the
// write unconditional.
type OrderRecord struct {
	Order    domain.Order
	SyncTime time.Time
}

// OrderRepository persists orders in the canonical orders collection.
type OrderRepository interface {
	// GetOrderByID loads an order by its storage id.
	GetOrderByID(ctx context.Context, id string) (OrderRecord, error)
	// PutOrder creates or overwrites the order document.
	PutOrder(ctx context.Context, order domain.Order) (OrderRecord, error)
	// UpdateOrder overwrites the order, enforcing the optimistic precondition
	// when syncTime is non-zero. A stale syncTime yields a conflict error.
	UpdateOrder(ctx context.Context, order domain.Order, syncTime time.Time) (OrderRecord, error)
	// DeleteOrder removes the order document. Missing documents yield a
	// not-found error.
	DeleteOrder(ctx context.Context, id string) error
	// ListAllOrders scans the whole collection, newest first.
	ListAllOrders(ctx context.Context) ([]OrderRecord, error)
	// FindByOwner returns the owner's orders, newest first.
	FindByOwner(ctx context.Context, ownerUserID string) ([]OrderRecord, error)
}

// UserRepository persists user profiles, roles, and the legacy embedded
// orders arrays.
type UserRepository interface {
	GetUser(ctx context.Context, id string) (domain.User, error)
	FindByEmail(ctx context.Context, email string) (domain.User, error)
	ListAllUsers(ctx context.Context) ([]domain.User, error)
	UpsertUser(ctx context.Context, user domain.User) (domain.User, error)
	// UpdateRole sets the user's role without touching the rest of the profile.
	UpdateRole(ctx context.Context, userID string, role domain.Role) error
	// UpdateUserOrders replaces the user's embedded orders array. Retained for
	// the degraded legacy layout where orders live on the user document.
	UpdateUserOrders(ctx context.Context, userID string, orders []domain.Order) error
}
