package services

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/payments"
	"github.com/shopward/api/internal/repositories"
)

const (
	checkoutNoteOnline   = "Order placed via online payment"
	checkoutNoteCash     = "Order placed with cash on delivery"
	checkoutNotePaid     = "Payment confirmed by gateway"
	gatewayActorID       = "payment-gateway"
	metadataKeyOrderID   = "orderId"
	metadataKeyUserID    = "userId"
	metadataKeyEmail     = "customerEmail"
	metadataKeyShipping  = "shippingAddress"
	defaultGatewayBound  = 20 * time.Second
	orderIDPrefix        = "ORD"
	orderIDSuffixLen     = 8
)

var (
	// ErrCheckoutInvalidItem indicates the submitted cart is empty, holds a
	// line with a non-positive quantity or unresolvable price, or names an
	// order id that is not an open checkout.
	ErrCheckoutInvalidItem = errors.New("checkout: invalid item")
	// ErrCheckoutUnavailable indicates checkout dependencies are unreachable.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrCheckoutGateway indicates the payment gateway call failed; any order
	// already persisted stays pending and the checkout can be retried.
	ErrCheckoutGateway = errors.New("checkout: gateway failure")
	// ErrPaymentNotCompleted indicates the gateway does not report the
	// session as paid; nothing is mutated.
	ErrPaymentNotCompleted = errors.New("checkout: payment not completed")
	// ErrCustomerNotFound indicates no account matches the payer and the
	// order cannot be attributed.
	ErrCustomerNotFound = errors.New("checkout: customer not found")
	// ErrCheckoutConflict indicates a concurrent mutation beat the
	// reconciliation write.
	ErrCheckoutConflict = errors.New("checkout: conflict")
)

// checkoutGateway abstracts payments.Manager for easier testing.
type checkoutGateway interface {
	CreateCheckoutSession(ctx context.Context, preferred string, req payments.SessionRequest) (payments.Session, error)
	RetrieveSession(ctx context.Context, preferred, sessionID string) (payments.SessionDetails, error)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Orders         repositories.OrderRepository
	Users          repositories.UserRepository
	Payments       checkoutGateway
	Events         OrderEventPublisher
	Clock          func() time.Time
	Logger         func(ctx context.Context, event string, fields map[string]any)
	Entropy        io.Reader
	SuccessURL     string
	CancelURL      string
	Currency       string
	GatewayTimeout time.Duration
}

type checkoutService struct {
	orders         repositories.OrderRepository
	users          repositories.UserRepository
	payments       checkoutGateway
	events         OrderEventPublisher
	now            func() time.Time
	logger         func(ctx context.Context, event string, fields map[string]any)
	entropy        io.Reader
	successURL     string
	cancelURL      string
	currency       string
	gatewayTimeout time.Duration
}

// NewCheckoutService constructs a CheckoutService validating required
// dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Users == nil {
		return nil, errors.New("checkout service: user repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment gateway is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	entropy := deps.Entropy
	if entropy == nil {
		entropy = rand.Reader
	}
	timeout := deps.GatewayTimeout
	if timeout <= 0 {
		timeout = defaultGatewayBound
	}
	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "USD"
	}

	return &checkoutService{
		orders:   deps.Orders,
		users:    deps.Users,
		payments: deps.Payments,
		events:   deps.Events,
		now: func() time.Time {
			return clock().UTC()
		},
		logger:         logger,
		entropy:        entropy,
		successURL:     strings.TrimSpace(deps.SuccessURL),
		cancelURL:      strings.TrimSpace(deps.CancelURL),
		currency:       currency,
		gatewayTimeout: timeout,
	}, nil
}

// BeginCheckout validates the cart, persists a pending order, and (for online
// payment) opens a gateway session the storefront redirects the customer to.
// A gateway failure leaves the pending order in place; retrying with the same
// order id overwrites it rather than minting a duplicate, but only when the
// order belongs to the caller and has not progressed past the pending state.
func (s *checkoutService) BeginCheckout(ctx context.Context, cmd BeginCheckoutCommand) (CheckoutSessionResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return CheckoutSessionResult{}, fmt.Errorf("%w: user id is required", ErrCheckoutInvalidItem)
	}
	items, err := resolveItems(cmd.Items)
	if err != nil {
		return CheckoutSessionResult{}, err
	}

	method := cmd.PaymentMethod
	if method == "" {
		method = domain.PaymentMethodOnline
	}
	if method != domain.PaymentMethodOnline && method != domain.PaymentMethodCash {
		return CheckoutSessionResult{}, fmt.Errorf("%w: unrecognised payment method %q", ErrCheckoutInvalidItem, cmd.PaymentMethod)
	}

	now := s.now()
	total := ComputeTotal(items)
	orderID := strings.TrimSpace(cmd.ExistingOrderID)
	if orderID == "" {
		orderID = s.newOrderID(now)
	} else if err := s.guardRetryOrder(ctx, orderID, userID); err != nil {
		return CheckoutSessionResult{}, err
	}

	note := checkoutNoteOnline
	if method == domain.PaymentMethodCash {
		note = checkoutNoteCash
	}
	actor := domain.Actor{ID: userID, Email: cmd.CustomerEmail, Role: domain.RoleUser}
	order := domain.Order{
		ID:            orderID,
		OrderID:       orderID,
		OwnerUserID:   userID,
		Status:        domain.OrderStatusPending,
		PaymentStatus: domain.PaymentStatusPending,
		PaymentMethod: method,
		Items:         toOrderItems(items),
		Amount:        total,
		Currency:      s.currency,
		CustomerEmail: strings.ToLower(strings.TrimSpace(cmd.CustomerEmail)),
		ShippingAddr:  cmd.ShippingAddress,
		StatusHistory: []domain.HistoryEntry{{
			Status:    string(domain.OrderStatusPending),
			Timestamp: now,
			UpdatedBy: actor.ID,
			UserRole:  actor.Role,
			Notes:     note,
		}},
		PaymentHistory: []domain.HistoryEntry{{
			Status:    string(domain.PaymentStatusPending),
			Timestamp: now,
			UpdatedBy: actor.ID,
			UserRole:  actor.Role,
			Notes:     note,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if _, err := s.orders.PutOrder(ctx, order); err != nil {
		if repositories.IsUnavailable(err) {
			return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		return CheckoutSessionResult{}, err
	}

	result := CheckoutSessionResult{
		OrderID:  orderID,
		Amount:   total,
		Currency: s.currency,
	}

	if method == domain.PaymentMethodCash {
		s.publishEvent(ctx, "order.placed", order, actor)
		return result, nil
	}

	metadata := map[string]string{
		metadataKeyOrderID: orderID,
		metadataKeyUserID:  userID,
	}
	if order.CustomerEmail != "" {
		metadata[metadataKeyEmail] = order.CustomerEmail
	}
	if cmd.ShippingAddress != nil {
		if data, err := json.Marshal(cmd.ShippingAddress); err == nil {
			metadata[metadataKeyShipping] = string(data)
		}
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	session, err := s.payments.CreateCheckoutSession(gatewayCtx, "", payments.SessionRequest{
		Amount:        total,
		Currency:      s.currency,
		CustomerEmail: order.CustomerEmail,
		SuccessURL:    s.successURL,
		CancelURL:     s.cancelURL,
		Metadata:      metadata,
		Items:         toSessionItems(items, s.currency),
	})
	if err != nil {
		s.logger(ctx, "checkout.session.failed", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return CheckoutSessionResult{}, fmt.Errorf("%w: %v", ErrCheckoutGateway, err)
	}

	s.publishEvent(ctx, "order.placed", order, actor)

	result.SessionID = session.ID
	result.RedirectURL = session.RedirectURL
	return result, nil
}

// guardRetryOrder gates the overwrite path taken when a caller re-supplies an
// order id. The id must either be unused or name the caller's own order that
// is still pending on both the fulfillment and payment trails; anything else
// would let a checkout retry clobber live state.
func (s *checkoutService) guardRetryOrder(ctx context.Context, orderID, userID string) error {
	record, err := s.orders.GetOrderByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return nil
		}
		if repositories.IsUnavailable(err) {
			return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		return err
	}
	existing := record.Order
	if existing.OwnerUserID != userID {
		return fmt.Errorf("%w: order %s belongs to another customer", ErrOrderForbidden, orderID)
	}
	if existing.Status != domain.OrderStatusPending || existing.PaymentStatus != domain.PaymentStatusPending {
		return fmt.Errorf("%w: order %s is no longer an open checkout", ErrCheckoutInvalidItem, orderID)
	}
	return nil
}

// ReconcileAfterPayment completes a checkout after the customer returns from
// the gateway. The gateway's own record is authoritative for amount and payer;
// reconciling an already settled order is a no-op returning the stored state.
func (s *checkoutService) ReconcileAfterPayment(ctx context.Context, cmd ReconcileCommand) (OrderSummary, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return OrderSummary{}, fmt.Errorf("%w: session id is required", ErrCheckoutInvalidItem)
	}

	gatewayCtx, cancel := context.WithTimeout(ctx, s.gatewayTimeout)
	defer cancel()

	details, err := s.payments.RetrieveSession(gatewayCtx, "", sessionID)
	if err != nil {
		return OrderSummary{}, fmt.Errorf("%w: %v", ErrCheckoutGateway, err)
	}
	if !details.Paid() {
		return OrderSummary{}, fmt.Errorf("%w: session %s reports %q", ErrPaymentNotCompleted, sessionID, details.Status)
	}

	orderID := strings.TrimSpace(details.Metadata[metadataKeyOrderID])
	if orderID == "" {
		orderID = details.ID
	}

	record, err := s.orders.GetOrderByID(ctx, orderID)
	switch {
	case err == nil:
		return s.settleExistingOrder(ctx, record, details)
	case repositories.IsNotFound(err):
		return s.createSettledOrder(ctx, orderID, cmd.UserID, details)
	case repositories.IsUnavailable(err):
		return OrderSummary{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	default:
		return OrderSummary{}, err
	}
}

func (s *checkoutService) settleExistingOrder(ctx context.Context, record repositories.OrderRecord, details payments.SessionDetails) (OrderSummary, error) {
	order := record.Order
	if order.PaymentStatus == domain.PaymentStatusPaid {
		// Already reconciled; repeating the call must not duplicate history.
		return s.summarise(order), nil
	}

	now := s.now()
	actor := domain.Actor{ID: gatewayActorID, Role: domain.RoleAdmin}

	if order.Status == domain.OrderStatusCancelled {
		// Payment completed for an order cancelled in the meantime. The money
		// is still recorded as received; flag it so the payment can be
		// refunded rather than settling silently.
		s.logger(ctx, "checkout.reconcile.paidAfterCancel", map[string]any{
			"orderId":   order.ID,
			"sessionId": details.ID,
			"amount":    details.Amount,
			"currency":  details.Currency,
		})
	}

	order, err := domain.ApplyPaymentTransition(order, domain.PaymentStatusPaid, actor, now, checkoutNotePaid)
	if err != nil {
		return OrderSummary{}, err
	}
	if order.Status == domain.OrderStatusPending {
		order, err = domain.ApplyStatusTransition(order, domain.OrderStatusConfirmed, actor, now, checkoutNotePaid)
		if err != nil {
			return OrderSummary{}, err
		}
	}
	if details.Amount > 0 {
		order.Amount = details.Amount
	}
	if details.Currency != "" {
		order.Currency = details.Currency
	}

	saved, err := s.orders.UpdateOrder(ctx, order, record.SyncTime)
	if err != nil {
		if repositories.IsConflict(err) {
			return OrderSummary{}, fmt.Errorf("%w: %v", ErrCheckoutConflict, err)
		}
		if repositories.IsUnavailable(err) {
			return OrderSummary{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		return OrderSummary{}, err
	}

	s.publishEvent(ctx, "order.paid", saved.Order, actor)
	return s.summarise(saved.Order), nil
}

func (s *checkoutService) createSettledOrder(ctx context.Context, orderID, callerUserID string, details payments.SessionDetails) (OrderSummary, error) {
	ownerID := strings.TrimSpace(callerUserID)
	if ownerID == "" {
		email := strings.ToLower(strings.TrimSpace(details.CustomerEmail))
		if email == "" {
			return OrderSummary{}, fmt.Errorf("%w: gateway session carries no payer email", ErrCustomerNotFound)
		}
		user, err := s.users.FindByEmail(ctx, email)
		if err != nil {
			if repositories.IsNotFound(err) {
				return OrderSummary{}, fmt.Errorf("%w: no account for %s", ErrCustomerNotFound, email)
			}
			return OrderSummary{}, err
		}
		ownerID = user.ID
	}

	now := s.now()
	actor := domain.Actor{ID: gatewayActorID, Role: domain.RoleAdmin}
	order := domain.Order{
		ID:            orderID,
		OrderID:       orderID,
		OwnerUserID:   ownerID,
		Status:        domain.OrderStatusConfirmed,
		PaymentStatus: domain.PaymentStatusPaid,
		PaymentMethod: domain.PaymentMethodOnline,
		Items:         fromSessionItems(details.Items),
		Amount:        details.Amount,
		Currency:      details.Currency,
		CustomerEmail: strings.ToLower(strings.TrimSpace(details.CustomerEmail)),
		ShippingAddr:  s.shippingFromMetadata(ctx, orderID, details.Metadata),
		StatusHistory: []domain.HistoryEntry{
			{Status: string(domain.OrderStatusPending), Timestamp: now, UpdatedBy: actor.ID, UserRole: actor.Role, Notes: checkoutNoteOnline},
			{Status: string(domain.OrderStatusConfirmed), Timestamp: now, UpdatedBy: actor.ID, UserRole: actor.Role, Notes: checkoutNotePaid},
		},
		PaymentHistory: []domain.HistoryEntry{
			{Status: string(domain.PaymentStatusPaid), Timestamp: now, UpdatedBy: actor.ID, UserRole: actor.Role, Notes: checkoutNotePaid},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if order.Currency == "" {
		order.Currency = s.currency
	}

	saved, err := s.orders.PutOrder(ctx, order)
	if err != nil {
		if repositories.IsUnavailable(err) {
			return OrderSummary{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
		}
		return OrderSummary{}, err
	}

	s.publishEvent(ctx, "order.paid", saved.Order, actor)
	return s.summarise(saved.Order), nil
}

// shippingFromMetadata decodes the shipping address round-tripped through the
// gateway metadata. Malformed payloads are logged and dropped rather than
// failing the reconciliation.
func (s *checkoutService) shippingFromMetadata(ctx context.Context, orderID string, metadata map[string]string) *domain.Address {
	raw := strings.TrimSpace(metadata[metadataKeyShipping])
	if raw == "" {
		return nil
	}
	var addr domain.Address
	if err := json.Unmarshal([]byte(raw), &addr); err != nil {
		s.logger(ctx, "checkout.reconcile.badShipping", map[string]any{
			"orderId": orderID,
			"error":   err.Error(),
		})
		return nil
	}
	return &addr
}

func (s *checkoutService) summarise(order domain.Order) OrderSummary {
	return OrderSummary{
		OrderID:       order.ID,
		OwnerUserID:   order.OwnerUserID,
		Status:        order.Status,
		PaymentStatus: order.PaymentStatus,
		PaymentMethod: order.PaymentMethod,
		Amount:        order.Amount,
		Currency:      order.Currency,
		DisplayAmount: FormatAmount(order.Amount, order.Currency),
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
}

func (s *checkoutService) publishEvent(ctx context.Context, eventType string, order domain.Order, actor domain.Actor) {
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
		s.logger(ctx, "checkout.event.publishFailed", map[string]any{
			"orderId":   order.ID,
			"eventType": eventType,
			"error":     err.Error(),
		})
	}
}

func (s *checkoutService) newOrderID(now time.Time) string {
	id := ulid.MustNew(ulid.Timestamp(now), s.entropy)
	suffix := id.String()
	if len(suffix) > orderIDSuffixLen {
		suffix = suffix[len(suffix)-orderIDSuffixLen:]
	}
	return fmt.Sprintf("%s-%d-%s", orderIDPrefix, now.UnixMilli(), suffix)
}

// resolveItems validates the cart and resolves each line's unit price. A line
// may carry either an explicit unit price or a line total; when only the
// total is present the unit price is derived as total divided by quantity.
func resolveItems(items []CheckoutItem) ([]CheckoutItem, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: cart is empty", ErrCheckoutInvalidItem)
	}
	resolved := make([]CheckoutItem, len(items))
	for i, item := range items {
		if strings.TrimSpace(item.ProductID) == "" {
			return nil, fmt.Errorf("%w: item %d has no product id", ErrCheckoutInvalidItem, i)
		}
		if item.Quantity <= 0 {
			return nil, fmt.Errorf("%w: item %d has quantity %d", ErrCheckoutInvalidItem, i, item.Quantity)
		}
		if item.UnitPrice <= 0 && item.LineTotal > 0 {
			item.UnitPrice = item.LineTotal / item.Quantity
		}
		if item.UnitPrice <= 0 {
			return nil, fmt.Errorf("%w: item %d has no resolvable price", ErrCheckoutInvalidItem, i)
		}
		resolved[i] = item
	}
	return resolved, nil
}

func toOrderItems(items []CheckoutItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		out = append(out, domain.OrderItem{
			ProductID: strings.TrimSpace(item.ProductID),
			Title:     strings.TrimSpace(item.Title),
			Quantity:  item.Quantity,
			UnitPrice: item.UnitPrice,
			ImageURL:  strings.TrimSpace(item.ImageURL),
		})
	}
	return out
}

func toSessionItems(items []CheckoutItem, currency string) []payments.SessionLineItem {
	out := make([]payments.SessionLineItem, 0, len(items))
	for _, item := range items {
		out = append(out, payments.SessionLineItem{
			Name:     item.Title,
			SKU:      item.ProductID,
			Quantity: item.Quantity,
			Amount:   item.UnitPrice,
			Currency: currency,
		})
	}
	return out
}

func fromSessionItems(items []payments.SessionLineItem) []domain.OrderItem {
	out := make([]domain.OrderItem, 0, len(items))
	for _, item := range items {
		qty := item.Quantity
		if qty <= 0 {
			qty = 1
		}
		out = append(out, domain.OrderItem{
			Title:     item.Name,
			Quantity:  qty,
			UnitPrice: item.Amount,
		})
	}
	return out
}
