package services

import (
	"context"
	"time"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/repositories"
)

// CheckoutItem is a cart line submitted at checkout. Prices are in minor
// currency units and validated server-side before any total is computed.
// A line states either UnitPrice or LineTotal; when only LineTotal is set the
// unit price is derived as LineTotal divided by Quantity.
type CheckoutItem struct {
	ProductID string
	Title     string
	Quantity  int64
	UnitPrice int64
	LineTotal int64
	ImageURL  string
}

// BeginCheckoutCommand starts a checkout. ExistingOrderID retries a pending
// checkout instead of minting a new order.
type BeginCheckoutCommand struct {
	UserID          string
	CustomerEmail   string
	Items           []CheckoutItem
	ShippingAddress *domain.Address
	PaymentMethod   domain.PaymentMethod
	ExistingOrderID string
}

// CheckoutSessionResult is handed back to the storefront for redirecting the
// customer to the hosted payment page. RedirectURL is empty for cash orders.
type CheckoutSessionResult struct {
	OrderID     string
	SessionID   string
	RedirectURL string
	Amount      int64
	Currency    string
}

// ReconcileCommand completes a checkout after the customer returns from the
// gateway. UserID is the authenticated caller when known.
type ReconcileCommand struct {
	SessionID string
	UserID    string
}

// OrderSummary is the condensed view returned from reconciliation and reads.
type OrderSummary struct {
	OrderID       string
	OwnerUserID   string
	Status        domain.OrderStatus
	PaymentStatus domain.PaymentStatus
	PaymentMethod domain.PaymentMethod
	Amount        int64
	Currency      string
	DisplayAmount string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CheckoutService drives the checkout-to-order pipeline.
type CheckoutService interface {
	BeginCheckout(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutSessionResult, error)
	ReconcileAfterPayment(ctx context.Context, cmd ReconcileCommand) (OrderSummary, error)
}

// UpdateStatusCommand mutates an order's fulfillment status.
type UpdateStatusCommand struct {
	OrderID string
	To      domain.OrderStatus
	Notes   string
}

// UpdatePaymentStatusCommand mutates an order's payment status.
type UpdatePaymentStatusCommand struct {
	OrderID string
	To      domain.PaymentStatus
	Notes   string
}

// OrderService exposes order reads and role-gated lifecycle mutations.
type OrderService interface {
	GetOrder(ctx context.Context, actor domain.Actor, orderID string) (domain.Order, error)
	ListOrders(ctx context.Context, actor domain.Actor) ([]domain.Order, error)
	UpdateStatus(ctx context.Context, actor domain.Actor, cmd UpdateStatusCommand) (domain.Order, error)
	UpdatePaymentStatus(ctx context.Context, actor domain.Actor, cmd UpdatePaymentStatusCommand) (domain.Order, error)
	LegalNextStatuses(actor domain.Actor, from domain.OrderStatus) []domain.OrderStatus
}

// LocationSource names where an order record physically lives.
type LocationSource string

const (
	// LocationCollection is the canonical orders collection.
	LocationCollection LocationSource = "collection"
	// LocationUserArray is the legacy embedded array on a user document.
	LocationUserArray LocationSource = "userArray"
)

// OrderLocation identifies an order together with its storage site so writes
// can be routed back to where the record was found.
type OrderLocation struct {
	Record repositories.OrderRecord
	Source LocationSource
	// UserID and Index address the element for LocationUserArray records.
	UserID string
	Index  int
}

// OrderLocator finds orders across the canonical collection and the legacy
// embedded arrays, and routes writes back to the found site.
type OrderLocator interface {
	Locate(ctx context.Context, orderID string) (OrderLocation, error)
	Save(ctx context.Context, loc OrderLocation, order domain.Order) (OrderLocation, error)
	Delete(ctx context.Context, loc OrderLocation) error
}

// BulkError records a per-id failure inside a bulk mutation.
type BulkError struct {
	OrderID string `json:"orderId"`
	Message string `json:"message"`
}

// BulkResult partitions the requested ids by outcome. Every requested id
// lands in exactly one bucket.
type BulkResult struct {
	Mutated  []string    `json:"mutated"`
	NotFound []string    `json:"notFound"`
	Errors   []BulkError `json:"errors"`
}

// BulkService applies independent per-id mutations across order storage.
type BulkService interface {
	BulkDelete(ctx context.Context, actor domain.Actor, orderIDs []string) (BulkResult, error)
	BulkUpdateStatus(ctx context.Context, actor domain.Actor, orderIDs []string, to domain.OrderStatus) (BulkResult, error)
}

// EnsureUserCommand provisions a profile on first sign-in.
type EnsureUserCommand struct {
	UserID string
	Email  string
	Name   string
}

// UserService manages profiles, role assignment, and addresses.
type UserService interface {
	EnsureUser(ctx context.Context, cmd EnsureUserCommand) (domain.User, error)
	GetUser(ctx context.Context, actor domain.Actor, userID string) (domain.User, error)
	ListUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error)
	ChangeRole(ctx context.Context, actor domain.Actor, userID string, role domain.Role) (domain.User, error)
	UpsertAddress(ctx context.Context, actor domain.Actor, userID string, address domain.Address) (domain.User, error)
}

// OrderEventMessage is the payload published for every order lifecycle change.
type OrderEventMessage struct {
	EventType     string    `json:"eventType"`
	OrderID       string    `json:"orderId"`
	OwnerUserID   string    `json:"ownerUserId,omitempty"`
	Status        string    `json:"status,omitempty"`
	PaymentStatus string    `json:"paymentStatus,omitempty"`
	ActorID       string    `json:"actorId,omitempty"`
	ActorRole     string    `json:"actorRole,omitempty"`
	OccurredAt    time.Time `json:"occurredAt"`
}

// OrderEventPublisher pushes lifecycle events to downstream consumers.
// Publishing is best effort; failures are logged, never surfaced to callers.
type OrderEventPublisher interface {
	PublishOrderEvent(ctx context.Context, message OrderEventMessage) (string, error)
}
