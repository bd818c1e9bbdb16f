package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Status enumerates the normalised gateway payment states.
type Status string

const (
	// StatusPending indicates the session is awaiting customer action or
	// gateway confirmation.
	StatusPending Status = "pending"
	// StatusPaid indicates the gateway reports the payment as captured.
	StatusPaid Status = "paid"
	// StatusFailed indicates the gateway reports the session as expired or
	// otherwise unrecoverable.
	StatusFailed Status = "failed"
)

// ErrUnsupportedProvider is returned when the manager cannot locate a provider.
var ErrUnsupportedProvider = errors.New("payments: unsupported provider")

// SessionLineItem describes a single line item to include in a hosted
// checkout session. Amount is the unit price in minor currency units.
type SessionLineItem struct {
	Name        string
	Description string
	SKU         string
	Quantity    int64
	Amount      int64
	Currency    string
}

// SessionRequest captures the payload required to create a checkout session.
type SessionRequest struct {
	Amount        int64
	Currency      string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
	Items         []SessionLineItem
}

// Session represents the gateway session handed back to the storefront.
type Session struct {
	ID          string
	Provider    string
	RedirectURL string
	ExpiresAt   time.Time
}

// SessionDetails normalises the gateway's view of a completed (or pending)
// session for reconciliation. Metadata round-trips whatever was attached at
// session creation.
type SessionDetails struct {
	ID            string
	Provider      string
	Status        Status
	Amount        int64
	Currency      string
	CustomerEmail string
	CustomerName  string
	Items         []SessionLineItem
	Metadata      map[string]string
}

// Paid reports whether the gateway considers the session settled.
func (d SessionDetails) Paid() bool { return d.Status == StatusPaid }

// Provider defines the contract gateway adapters implement.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (Session, error)
	RetrieveSession(ctx context.Context, sessionID string) (SessionDetails, error)
}

// Manager routes gateway calls to a registered provider.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider overrides the default provider.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = strings.TrimSpace(strings.ToLower(provider))
	}
}

// NewManager constructs a Manager over the supplied providers.
func NewManager(providers map[string]Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	copyMap := make(map[string]Provider, len(providers))
	for k, v := range providers {
		key := strings.TrimSpace(strings.ToLower(k))
		if key == "" || v == nil {
			return nil, fmt.Errorf("payments: invalid provider registration for key %q", k)
		}
		copyMap[key] = v
	}
	m := &Manager{providers: copyMap}
	if _, ok := copyMap["stripe"]; ok {
		m.defaultProvider = "stripe"
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	return m, nil
}

func (m *Manager) resolveProvider(preferred string) (string, Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return "", nil, errors.New("payments: no providers registered")
	}
	if key := strings.TrimSpace(strings.ToLower(preferred)); key != "" {
		if p, ok := m.providers[key]; ok {
			return key, p, nil
		}
	}
	if def := m.defaultProvider; def != "" {
		if p, ok := m.providers[def]; ok {
			return def, p, nil
		}
	}
	if len(m.providers) == 1 {
		for key, p := range m.providers {
			return key, p, nil
		}
	}
	return "", nil, ErrUnsupportedProvider
}

// CreateCheckoutSession delegates to the resolved provider.
func (m *Manager) CreateCheckoutSession(ctx context.Context, preferred string, req SessionRequest) (Session, error) {
	key, provider, err := m.resolveProvider(preferred)
	if err != nil {
		return Session{}, err
	}
	session, err := provider.CreateCheckoutSession(ctx, req)
	if err != nil {
		return Session{}, err
	}
	session.Provider = key
	return session, nil
}

// RetrieveSession delegates to the resolved provider.
func (m *Manager) RetrieveSession(ctx context.Context, preferred, sessionID string) (SessionDetails, error) {
	key, provider, err := m.resolveProvider(preferred)
	if err != nil {
		return SessionDetails{}, err
	}
	details, err := provider.RetrieveSession(ctx, sessionID)
	if err != nil {
		return SessionDetails{}, err
	}
	if details.Provider == "" {
		details.Provider = key
	}
	return details, nil
}
