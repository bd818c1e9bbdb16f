package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/payments"
	"github.com/shopward/api/internal/repositories"
)

type repoErr struct {
	err         error
	notFound    bool
	conflict    bool
	unavailable bool
	corrupt     bool
}

func (e *repoErr) Error() string       { return e.err.Error() }
func (e *repoErr) Unwrap() error       { return e.err }
func (e *repoErr) IsNotFound() bool    { return e.notFound }
func (e *repoErr) IsConflict() bool    { return e.conflict }
func (e *repoErr) IsUnavailable() bool { return e.unavailable }
func (e *repoErr) IsCorrupt() bool     { return e.corrupt }

type memoryOrderRepo struct {
	mu      sync.Mutex
	store   map[string]repositories.OrderRecord
	version int64
	down    bool
}

func newMemoryOrderRepo() *memoryOrderRepo {
	return &memoryOrderRepo{store: make(map[string]repositories.OrderRecord)}
}

func (m *memoryOrderRepo) nextSyncTime() time.Time {
	m.version++
	return time.Unix(m.version, 0).UTC()
}

func (m *memoryOrderRepo) GetOrderByID(_ context.Context, id string) (repositories.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return repositories.OrderRecord{}, &repoErr{err: fmt.Errorf("orders down"), unavailable: true}
	}
	record, ok := m.store[id]
	if !ok {
		return repositories.OrderRecord{}, &repoErr{err: fmt.Errorf("order %s not found", id), notFound: true}
	}
	return record, nil
}

func (m *memoryOrderRepo) PutOrder(_ context.Context, order domain.Order) (repositories.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return repositories.OrderRecord{}, &repoErr{err: fmt.Errorf("orders down"), unavailable: true}
	}
	normalized, err := domain.NormalizeOrder(order)
	if err != nil {
		return repositories.OrderRecord{}, &repoErr{err: err, corrupt: true}
	}
	record := repositories.OrderRecord{Order: normalized, SyncTime: m.nextSyncTime()}
	m.store[normalized.ID] = record
	return record, nil
}

func (m *memoryOrderRepo) UpdateOrder(_ context.Context, order domain.Order, syncTime time.Time) (repositories.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return repositories.OrderRecord{}, &repoErr{err: fmt.Errorf("orders down"), unavailable: true}
	}
	existing, ok := m.store[order.ID]
	if !ok {
		return repositories.OrderRecord{}, &repoErr{err: fmt.Errorf("order %s not found", order.ID), notFound: true}
	}
	if !syncTime.IsZero() && !existing.SyncTime.Equal(syncTime) {
		return repositories.OrderRecord{}, &repoErr{err: fmt.Errorf("order %s stale", order.ID), conflict: true}
	}
	normalized, err := domain.NormalizeOrder(order)
	if err != nil {
		return repositories.OrderRecord{}, &repoErr{err: err, corrupt: true}
	}
	record := repositories.OrderRecord{Order: normalized, SyncTime: m.nextSyncTime()}
	m.store[normalized.ID] = record
	return record, nil
}

func (m *memoryOrderRepo) DeleteOrder(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return &repoErr{err: fmt.Errorf("orders down"), unavailable: true}
	}
	if _, ok := m.store[id]; !ok {
		return &repoErr{err: fmt.Errorf("order %s not found", id), notFound: true}
	}
	delete(m.store, id)
	return nil
}

func (m *memoryOrderRepo) ListAllOrders(_ context.Context) ([]repositories.OrderRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return nil, &repoErr{err: fmt.Errorf("orders down"), unavailable: true}
	}
	records := make([]repositories.OrderRecord, 0, len(m.store))
	for _, record := range m.store {
		records = append(records, record)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Order.CreatedAt.After(records[j].Order.CreatedAt)
	})
	return records, nil
}

func (m *memoryOrderRepo) FindByOwner(_ context.Context, ownerUserID string) ([]repositories.OrderRecord, error) {
	records, err := m.ListAllOrders(context.Background())
	if err != nil {
		return nil, err
	}
	owned := records[:0]
	for _, record := range records {
		if record.Order.OwnerUserID == ownerUserID {
			owned = append(owned, record)
		}
	}
	return owned, nil
}

type memoryUserRepo struct {
	mu    sync.Mutex
	store map[string]domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{store: make(map[string]domain.User)}
}

func (m *memoryUserRepo) GetUser(_ context.Context, id string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.store[id]
	if !ok {
		return domain.User{}, &repoErr{err: fmt.Errorf("user %s not found", id), notFound: true}
	}
	return user, nil
}

func (m *memoryUserRepo) FindByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, user := range m.store {
		if user.Email == email {
			return user, nil
		}
	}
	return domain.User{}, &repoErr{err: fmt.Errorf("no user with email %s", email), notFound: true}
}

func (m *memoryUserRepo) ListAllUsers(_ context.Context) ([]domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	users := make([]domain.User, 0, len(m.store))
	for _, user := range m.store {
		users = append(users, user)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return users, nil
}

func (m *memoryUserRepo) UpsertUser(_ context.Context, user domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.store[user.ID] = user
	return user, nil
}

func (m *memoryUserRepo) UpdateRole(_ context.Context, userID string, role domain.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.store[userID]
	if !ok {
		return &repoErr{err: fmt.Errorf("user %s not found", userID), notFound: true}
	}
	user.Role = role
	m.store[userID] = user
	return nil
}

func (m *memoryUserRepo) UpdateUserOrders(_ context.Context, userID string, orders []domain.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.store[userID]
	if !ok {
		return &repoErr{err: fmt.Errorf("user %s not found", userID), notFound: true}
	}
	user.Orders = orders
	m.store[userID] = user
	return nil
}

type stubGateway struct {
	createErr   error
	created     []payments.SessionRequest
	session     payments.Session
	retrieveErr error
	details     payments.SessionDetails
	retrieved   []string
}

func (g *stubGateway) CreateCheckoutSession(_ context.Context, _ string, req payments.SessionRequest) (payments.Session, error) {
	g.created = append(g.created, req)
	if g.createErr != nil {
		return payments.Session{}, g.createErr
	}
	session := g.session
	if session.ID == "" {
		session.ID = "cs_test_1"
	}
	if session.RedirectURL == "" {
		session.RedirectURL = "https://pay.example.com/" + session.ID
	}
	return session, nil
}

func (g *stubGateway) RetrieveSession(_ context.Context, _ string, sessionID string) (payments.SessionDetails, error) {
	g.retrieved = append(g.retrieved, sessionID)
	if g.retrieveErr != nil {
		return payments.SessionDetails{}, g.retrieveErr
	}
	return g.details, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []OrderEventMessage
	err    error
}

func (p *recordingPublisher) PublishOrderEvent(_ context.Context, message OrderEventMessage) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return "", p.err
	}
	p.events = append(p.events, message)
	return fmt.Sprintf("msg-%d", len(p.events)), nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func discardLog(context.Context, string, map[string]any) {}
