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
)

const userCollection = "users"

// UserRepository persists user profiles, role assignments, and the legacy
// embedded orders arrays.
type UserRepository struct {
	provider *pfirestore.Provider
	clock    func() time.Time
}

// NewUserRepository constructs a Firestore-backed user repository.
func NewUserRepository(provider *pfirestore.Provider) (*UserRepository, error) {
	if provider == nil {
		return nil, errors.New("user repository requires firestore provider")
	}
	return &UserRepository{provider: provider, clock: time.Now}, nil
}

// GetUser loads the user profile by uid.
func (r *UserRepository) GetUser(ctx context.Context, id string) (domain.User, error) {
	const op = "users.get"
	id = strings.TrimSpace(id)
	if id == "" {
		return domain.User{}, errors.New("user id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError(op, err)
	}

	snap, err := client.Collection(userCollection).Doc(id).Get(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError(op, err)
	}
	return userFromSnapshot(op, snap)
}

// FindByEmail locates a user by their normalised email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (domain.User, error) {
	const op = "users.findByEmail"
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return domain.User{}, errors.New("email is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError(op, err)
	}

	iter := client.Collection(userCollection).Where("email", "==", email).Limit(1).Documents(ctx)
	defer iter.Stop()

	snap, err := iter.Next()
	if errors.Is(err, iterator.Done) {
		return domain.User{}, pfirestore.NewNotFoundError(op, errors.New("user not found by email"))
	}
	if err != nil {
		return domain.User{}, pfirestore.WrapError(op, err)
	}
	return userFromSnapshot(op, snap)
}

// ListAllUsers scans the whole user collection.
func (r *UserRepository) ListAllUsers(ctx context.Context) ([]domain.User, error) {
	const op = "users.list"
	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, pfirestore.WrapError(op, err)
	}

	iter := client.Collection(userCollection).Documents(ctx)
	defer iter.Stop()

	var users []domain.User
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, pfirestore.WrapError(op, err)
		}
		user, err := userFromSnapshot(op, snap)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return users, nil
}

// UpsertUser creates or overwrites the user document.
func (r *UserRepository) UpsertUser(ctx context.Context, user domain.User) (domain.User, error) {
	const op = "users.upsert"
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return domain.User{}, errors.New("user id is required")
	}
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if !domain.ValidRole(user.Role) {
		user.Role = domain.RoleUser
	}

	now := r.clock().UTC()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = now
	}
	user.UpdatedAt = now

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.User{}, pfirestore.WrapError(op, err)
	}
	if _, err := client.Collection(userCollection).Doc(user.ID).Set(ctx, fromDomainUser(user)); err != nil {
		return domain.User{}, pfirestore.WrapError(op, err)
	}
	return user, nil
}

// UpdateRole sets the user's role without touching the rest of the profile.
func (r *UserRepository) UpdateRole(ctx context.Context, userID string, role domain.Role) error {
	const op = "users.updateRole"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}
	if !domain.ValidRole(role) {
		return errors.New("unrecognised role")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError(op, err)
	}
	_, err = client.Collection(userCollection).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "role", Value: string(role)},
		{Path: "updatedAt", Value: r.clock().UTC()},
	})
	return pfirestore.WrapError(op, err)
}

// UpdateUserOrders replaces the embedded orders array on the user document.
// Only used for records still stored in the legacy layout.
func (r *UserRepository) UpdateUserOrders(ctx context.Context, userID string, orders []domain.Order) error {
	const op = "users.updateOrders"
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("user id is required")
	}

	docs := make([]orderDocument, 0, len(orders))
	for _, order := range orders {
		docs = append(docs, fromDomainOrder(order))
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return pfirestore.WrapError(op, err)
	}
	_, err = client.Collection(userCollection).Doc(userID).Update(ctx, []firestore.Update{
		{Path: "orders", Value: docs},
		{Path: "updatedAt", Value: r.clock().UTC()},
	})
	return pfirestore.WrapError(op, err)
}

func userFromSnapshot(op string, snap *firestore.DocumentSnapshot) (domain.User, error) {
	var doc userDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.User{}, pfirestore.NewCorruptError(op, err)
	}

	user := toDomainUser(doc)
	if user.ID == "" {
		user.ID = snap.Ref.ID
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = snap.CreateTime
	}
	if user.UpdatedAt.IsZero() {
		user.UpdatedAt = snap.UpdateTime
	}
	return user, nil
}

type userDocument struct {
	ID        string           `firestore:"id"`
	Email     string           `firestore:"email"`
	Name      string           `firestore:"name,omitempty"`
	Role      string           `firestore:"role"`
	Addresses []domain.Address `firestore:"addresses,omitempty"`
	Orders    []orderDocument  `firestore:"orders,omitempty"`
	CreatedAt time.Time        `firestore:"createdAt"`
	UpdatedAt time.Time        `firestore:"updatedAt"`
}

func toDomainUser(doc userDocument) domain.User {
	user := domain.User{
		ID:        strings.TrimSpace(doc.ID),
		Email:     strings.ToLower(strings.TrimSpace(doc.Email)),
		Name:      strings.TrimSpace(doc.Name),
		Role:      domain.Role(strings.ToLower(strings.TrimSpace(doc.Role))),
		Addresses: doc.Addresses,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if !domain.ValidRole(user.Role) {
		user.Role = domain.RoleUser
	}
	// Embedded orders are carried raw; callers normalise when they read them.
	user.Orders = make([]domain.Order, 0, len(doc.Orders))
	for _, orderDoc := range doc.Orders {
		user.Orders = append(user.Orders, toDomainOrder(orderDoc))
	}
	return user
}

func fromDomainUser(user domain.User) userDocument {
	doc := userDocument{
		ID:        user.ID,
		Email:     user.Email,
		Name:      user.Name,
		Role:      string(user.Role),
		Addresses: user.Addresses,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	}
	doc.Orders = make([]orderDocument, 0, len(user.Orders))
	for _, order := range user.Orders {
		doc.Orders = append(doc.Orders, fromDomainOrder(order))
	}
	return doc
}
