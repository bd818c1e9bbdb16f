package domain

import (
	"strings"
	"time"
)

// OrderStatus enumerates the canonical fulfillment states of an order.
type OrderStatus string

const (
	// OrderStatusPending indicates the order awaits payment completion.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed indicates payment succeeded (or a cash order was accepted).
	OrderStatusConfirmed OrderStatus = "confirmed"
	// OrderStatusPacked indicates the order has been packed and awaits handoff.
	OrderStatusPacked OrderStatus = "packed"
	// OrderStatusOutForDelivery indicates the order is with the delivery person.
	OrderStatusOutForDelivery OrderStatus = "out_for_delivery"
	// OrderStatusDelivered indicates the order reached the customer. Terminal.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled indicates the order was cancelled. Terminal.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// PaymentStatus tracks money movement independently of fulfillment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

// PaymentMethod distinguishes gateway payments from cash on delivery.
type PaymentMethod string

const (
	PaymentMethodOnline PaymentMethod = "online"
	PaymentMethodCash   PaymentMethod = "cash"
)

// Role is a fixed capability set assigned to an actor, not a hierarchy.
type Role string

const (
	RoleAdmin       Role = "admin"
	RoleAccount     Role = "account"
	RolePacker      Role = "packer"
	RoleDeliveryman Role = "deliveryman"
	RoleUser        Role = "user"
)

// Actor identifies the authenticated principal performing a mutation.
type Actor struct {
	ID    string
	Email string
	Role  Role
}

// OrderItem is a single purchased line. UnitPrice is in minor currency units.
type OrderItem struct {
	ProductID string `firestore:"productId"`
	Title     string `firestore:"title"`
	Quantity  int64  `firestore:"quantity"`
	UnitPrice int64  `firestore:"unitPrice"`
	ImageURL  string `firestore:"imageUrl,omitempty"`
}

// Total returns the line total in minor units.
func (i OrderItem) Total() int64 {
	return i.UnitPrice * i.Quantity
}

// HistoryEntry is one append-only audit record on an order's status or
// payment-status trail. Entries are never mutated or reordered.
type HistoryEntry struct {
	Status    string    `firestore:"status"`
	Timestamp time.Time `firestore:"timestamp"`
	UpdatedBy string    `firestore:"updatedBy"`
	UserRole  Role      `firestore:"userRole"`
	Notes     string    `firestore:"notes,omitempty"`
}

// Address captures a shipping or billing destination.
type Address struct {
	Name       string `firestore:"name,omitempty"`
	Line1      string `firestore:"line1"`
	Line2      string `firestore:"line2,omitempty"`
	City       string `firestore:"city"`
	State      string `firestore:"state,omitempty"`
	PostalCode string `firestore:"postalCode"`
	Country    string `firestore:"country"`
	Phone      string `firestore:"phone,omitempty"`
	IsDefault  bool   `firestore:"isDefault"`
}

// Order is the central entity. Amount is the authoritative server-computed
// total in minor currency units; it is never trusted from the client after
// reconciliation.
type Order struct {
	ID             string         `firestore:"id"`
	OrderID        string         `firestore:"orderId"`
	OwnerUserID    string         `firestore:"ownerUserId"`
	Status         OrderStatus    `firestore:"status"`
	PaymentStatus  PaymentStatus  `firestore:"paymentStatus"`
	PaymentMethod  PaymentMethod  `firestore:"paymentMethod"`
	Items          []OrderItem    `firestore:"items"`
	Amount         int64          `firestore:"amount"`
	Currency       string         `firestore:"currency"`
	CustomerEmail  string         `firestore:"customerEmail"`
	ShippingAddr   *Address       `firestore:"shippingAddress,omitempty"`
	BillingAddr    *Address       `firestore:"billingAddress,omitempty"`
	StatusHistory  []HistoryEntry `firestore:"statusHistory"`
	PaymentHistory []HistoryEntry `firestore:"paymentHistory"`
	CreatedAt      time.Time      `firestore:"createdAt"`
	UpdatedAt      time.Time      `firestore:"updatedAt"`
}

// MatchesID reports whether the query id equals either the storage id or the
// display id. The two are aliases in legacy data and must both be searchable.
func (o Order) MatchesID(id string) bool {
	id = strings.TrimSpace(id)
	if id == "" {
		return false
	}
	return o.ID == id || o.OrderID == id
}

// User owns a role, profile addresses, and the legacy embedded orders array.
type User struct {
	ID        string    `firestore:"id"`
	Email     string    `firestore:"email"`
	Name      string    `firestore:"name,omitempty"`
	Role      Role      `firestore:"role"`
	Addresses []Address `firestore:"addresses,omitempty"`
	Orders    []Order   `firestore:"orders,omitempty"`
	CreatedAt time.Time `firestore:"createdAt"`
	UpdatedAt time.Time `firestore:"updatedAt"`
}

// statusAliases collapses the legacy vocabulary found in older documents onto
// the canonical six-state graph.
var statusAliases = map[string]OrderStatus{
	"processing":         OrderStatusConfirmed,
	"ready_for_shipping": OrderStatusPacked,
	"shipped":            OrderStatusOutForDelivery,
	"completed":          OrderStatusDelivered,
	"canceled":           OrderStatusCancelled,
}

var validStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:        {},
	OrderStatusConfirmed:      {},
	OrderStatusPacked:         {},
	OrderStatusOutForDelivery: {},
	OrderStatusDelivered:      {},
	OrderStatusCancelled:      {},
}

var validPaymentStatuses = map[PaymentStatus]struct{}{
	PaymentStatusPending:  {},
	PaymentStatusPaid:     {},
	PaymentStatusFailed:   {},
	PaymentStatusRefunded: {},
}

// CanonicalStatus maps a raw stored status onto the canonical vocabulary.
// The second return is false when the value is not recognised at all.
func CanonicalStatus(raw string) (OrderStatus, bool) {
	s := OrderStatus(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := validStatuses[s]; ok {
		return s, true
	}
	if alias, ok := statusAliases[string(s)]; ok {
		return alias, true
	}
	return "", false
}

// ValidStatus reports whether s belongs to the canonical vocabulary.
func ValidStatus(s OrderStatus) bool {
	_, ok := validStatuses[s]
	return ok
}

// ValidPaymentStatus reports whether s is a known payment status.
func ValidPaymentStatus(s PaymentStatus) bool {
	_, ok := validPaymentStatuses[s]
	return ok
}

// ValidRole reports whether r is one of the enumerated roles.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdmin, RoleAccount, RolePacker, RoleDeliveryman, RoleUser:
		return true
	}
	return false
}

// IsTerminal reports whether no further status transitions are possible,
// regardless of role.
func IsTerminal(s OrderStatus) bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}
