package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"

	"github.com/shopward/api/internal/domain"
	pfirestore "github.com/shopward/api/internal/platform/firestore"
	"github.com/shopward/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository persists orders in the canonical Firestore collection,
// keyed by storage id. Every read passes through domain.NormalizeOrder so
// legacy vocabularies never leak into the services.
type OrderRepository struct {
	provider *pfirestore.Provider
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{provider: provider}, nil
}

// GetOrderByID loads an order by its storage id.
func (r *OrderRepository) GetOrderByID(ctx context.Context, id string) (repositories.OrderRecord, error) {
	const op = "orders.get"
	id = strings.TrimSpace(id)
	if id == "" {
		return repositories.OrderRecord{}, errors.New("order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.WrapError(op, err)
	}

	snap, err := client.Collection(orderCollection).Doc(id).Get(ctx)
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.WrapError(op, err)
	}
	return recordFromSnapshot(op, snap)
}

// PutOrder creates or overwrites the order document.
func (r *OrderRepository) PutOrder(ctx context.Context, order domain.Order) (repositories.OrderRecord, error) {
	const op = "orders.put"
	normalized, err := domain.NormalizeOrder(order)
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.NewCorruptError(op, err)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.WrapError(op, err)
	}

	result, err := client.Collection(orderCollection).Doc(normalized.ID).Set(ctx, fromDomainOrder(normalized))
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.WrapError(op, err)
	}
	return repositories.OrderRecord{Order: normalized, SyncTime: result.UpdateTime}, nil
}

// UpdateOrder overwrites the order document. When syncTime is non-zero the
// write carries a last-update-time precondition; a stale value surfaces as a
// conflict error.
func (r *OrderRepository) UpdateOrder(ctx context.Context, order domain.Order, syncTime time.Time) (repositories.OrderRecord, error) {
	const op = "orders.update"
	normalized, err := domain.NormalizeOrder(order)
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.NewCorruptError(op, err)
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.WrapError(op, err)
	}

	docRef := client.Collection(orderCollection).Doc(normalized.ID)
	if syncTime.IsZero() {
		result, err := docRef.Set(ctx, fromDomainOrder(normalized))
		if err != nil {
			return repositories.OrderRecord{}, pfirestore.WrapError(op, err)
		}
		return repositories.OrderRecord{Order: normalized, SyncTime: result.UpdateTime}, nil
	}

	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(docRef)
		if err != nil {
			return err
		}
		if !snap.UpdateTime.Equal(syncTime) {
			return pfirestore.NewConflictError(op, errors.New("order changed since read"))
		}
		return tx.Set(docRef, fromDomainOrder(normalized))
	})
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.WrapError(op, err)
	}

	snap, err := docRef.Get(ctx)
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.WrapError(op, err)
	}
	return recordFromSnapshot(op, snap)
}

// DeleteOrder removes the order document. Deleting a missing document is
// reported as not found so bulk callers can bucket the id correctly.
func (r *OrderRepository) DeleteOrder(ctx context.Context, id string) error {
	const op = "orders.delete"
	id = strings.TrimSpace(id)
	if id == "" {
		return errors.New("order id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError(op, err)
	}

	docRef := client.Collection(orderCollection).Doc(id)
	if _, err := docRef.Get(ctx); err != nil {
		return pfirestore.WrapError(op, err)
	}
	if _, err := docRef.Delete(ctx); err != nil {
		return pfirestore.WrapError(op, err)
	}
	return nil
}

// ListAllOrders scans the collection, newest first.
func (r *OrderRepository) ListAllOrders(ctx context.Context) ([]repositories.OrderRecord, error) {
	const op = "orders.list"
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError(op, err)
	}
	query := client.Collection(orderCollection).OrderBy("createdAt", firestore.Desc)
	return collectRecords(ctx, op, query.Documents(ctx))
}

// FindByOwner returns the owner's orders, newest first.
func (r *OrderRepository) FindByOwner(ctx context.Context, ownerUserID string) ([]repositories.OrderRecord, error) {
	const op = "orders.findByOwner"
	ownerUserID = strings.TrimSpace(ownerUserID)
	if ownerUserID == "" {
		return nil, errors.New("owner user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError(op, err)
	}
	query := client.Collection(orderCollection).
		Where("ownerUserId", "==", ownerUserID).
		OrderBy("createdAt", firestore.Desc)
	return collectRecords(ctx, op, query.Documents(ctx))
}

func collectRecords(ctx context.Context, op string, iter *firestore.DocumentIterator) ([]repositories.OrderRecord, error) {
	defer iter.Stop()

	var records []repositories.OrderRecord
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		record, err := recordFromSnapshot(op, snap)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return records, nil
}

func recordFromSnapshot(op string, snap *firestore.DocumentSnapshot) (repositories.OrderRecord, error) {
	var doc orderDocument
	if err := snap.DataTo(&doc); err != nil {
		return repositories.OrderRecord{}, pfirestore.NewCorruptError(op, err)
	}

	order := toDomainOrder(doc)
	if order.ID == "" {
		order.ID = snap.Ref.ID
	}
	normalized, err := domain.NormalizeOrder(order)
	if err != nil {
		return repositories.OrderRecord{}, pfirestore.NewCorruptError(op, err)
	}
	if normalized.CreatedAt.IsZero() {
		normalized.CreatedAt = snap.CreateTime
	}
	if normalized.UpdatedAt.IsZero() {
		normalized.UpdatedAt = snap.UpdateTime
	}
	return repositories.OrderRecord{Order: normalized, SyncTime: snap.UpdateTime}, nil
}

type orderDocument struct {
	ID             string                 `firestore:"id"`
	OrderID        string                 `firestore:"orderId"`
	OwnerUserID    string                 `firestore:"ownerUserId"`
	Status         string                 `firestore:"status"`
	PaymentStatus  string                 `firestore:"paymentStatus"`
	PaymentMethod  string                 `firestore:"paymentMethod"`
	Items          []domain.OrderItem     `firestore:"items"`
	Amount         int64                  `firestore:"amount"`
	Currency       string                 `firestore:"currency"`
	CustomerEmail  string                 `firestore:"customerEmail"`
	ShippingAddr   *domain.Address        `firestore:"shippingAddress,omitempty"`
	BillingAddr    *domain.Address        `firestore:"billingAddress,omitempty"`
	StatusHistory  []domain.HistoryEntry  `firestore:"statusHistory"`
	PaymentHistory []domain.HistoryEntry  `firestore:"paymentHistory"`
	CreatedAt      time.Time              `firestore:"createdAt"`
	UpdatedAt      time.Time              `firestore:"updatedAt"`
}

func toDomainOrder(doc orderDocument) domain.Order {
	return domain.Order{
		ID:             strings.TrimSpace(doc.ID),
		OrderID:        strings.TrimSpace(doc.OrderID),
		OwnerUserID:    strings.TrimSpace(doc.OwnerUserID),
		Status:         domain.OrderStatus(doc.Status),
		PaymentStatus:  domain.PaymentStatus(doc.PaymentStatus),
		PaymentMethod:  domain.PaymentMethod(doc.PaymentMethod),
		Items:          doc.Items,
		Amount:         doc.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(doc.Currency)),
		CustomerEmail:  strings.TrimSpace(doc.CustomerEmail),
		ShippingAddr:   doc.ShippingAddr,
		BillingAddr:    doc.BillingAddr,
		StatusHistory:  doc.StatusHistory,
		PaymentHistory: doc.PaymentHistory,
		CreatedAt:      doc.CreatedAt,
		UpdatedAt:      doc.UpdatedAt,
	}
}

func fromDomainOrder(order domain.Order) orderDocument {
	return orderDocument{
		ID:             order.ID,
		OrderID:        order.OrderID,
		OwnerUserID:    order.OwnerUserID,
		Status:         string(order.Status),
		PaymentStatus:  string(order.PaymentStatus),
		PaymentMethod:  string(order.PaymentMethod),
		Items:          order.Items,
		Amount:         order.Amount,
		Currency:       strings.ToUpper(strings.TrimSpace(order.Currency)),
		CustomerEmail:  strings.TrimSpace(order.CustomerEmail),
		ShippingAddr:   order.ShippingAddr,
		BillingAddr:    order.BillingAddr,
		StatusHistory:  order.StatusHistory,
		PaymentHistory: order.PaymentHistory,
		CreatedAt:      order.CreatedAt,
		UpdatedAt:      order.UpdatedAt,
	}
}
