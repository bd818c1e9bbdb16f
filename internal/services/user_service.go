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

var (
	// ErrUserForbidden indicates the actor may not see or mutate the profile.
	ErrUserForbidden = errors.New("users: forbidden")
	// ErrUserNotFound indicates no profile matches the requested id.
	ErrUserNotFound = errors.New("users: user not found")
	// ErrInvalidRole indicates the requested role is not one of the
	// enumerated capability sets.
	ErrInvalidRole = errors.New("users: unrecognised role")
)

// UserServiceDeps wires the dependencies required by the user service.
type UserServiceDeps struct {
	Users  repositories.UserRepository
	Clock  func() time.Time
	Logger func(ctx context.Context, event string, fields map[string]any)
}

type userService struct {
	users  repositories.UserRepository
	now    func() time.Time
	logger func(ctx context.Context, event string, fields map[string]any)
}

// NewUserService constructs a UserService validating required dependencies.
func NewUserService(deps UserServiceDeps) (UserService, error) {
	if deps.Users == nil {
		return nil, errors.New("user service: user repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &userService{
		users: deps.Users,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// EnsureUser provisions a profile on first sign-in. Existing profiles are
// returned untouched; new ones start with the user role.
func (s *userService) EnsureUser(ctx context.Context, cmd EnsureUserCommand) (domain.User, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return domain.User{}, errors.New("user service: user id is required")
	}

	existing, err := s.users.GetUser(ctx, userID)
	if err == nil {
		return existing, nil
	}
	if !repositories.IsNotFound(err) {
		return domain.User{}, err
	}

	now := s.now()
	user, err := s.users.UpsertUser(ctx, domain.User{
		ID:        userID,
		Email:     strings.ToLower(strings.TrimSpace(cmd.Email)),
		Name:      strings.TrimSpace(cmd.Name),
		Role:      domain.RoleUser,
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return domain.User{}, err
	}
	s.logger(ctx, "users.provisioned", map[string]any{"userId": user.ID})
	return user, nil
}

// GetUser returns the profile. Admins see anyone; others only themselves.
func (s *userService) GetUser(ctx context.Context, actor domain.Actor, userID string) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if actor.Role != domain.RoleAdmin && actor.ID != userID {
		return domain.User{}, fmt.Errorf("%w: profile %s", ErrUserForbidden, userID)
	}
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return domain.User{}, err
	}
	return user, nil
}

// ListUsers is admin only.
func (s *userService) ListUsers(ctx context.Context, actor domain.Actor) ([]domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return nil, ErrUserForbidden
	}
	return s.users.ListAllUsers(ctx)
}

// ChangeRole reassigns a user's role. Only admins may grant roles, and an
// admin cannot strip their own admin role by accident.
func (s *userService) ChangeRole(ctx context.Context, actor domain.Actor, userID string, role domain.Role) (domain.User, error) {
	if actor.Role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("%w: role assignment requires admin", ErrUserForbidden)
	}
	if !domain.ValidRole(role) {
		return domain.User{}, fmt.Errorf("%w: %q", ErrInvalidRole, role)
	}
	userID = strings.TrimSpace(userID)
	if userID == actor.ID && role != domain.RoleAdmin {
		return domain.User{}, fmt.Errorf("%w: cannot demote own admin role", ErrUserForbidden)
	}

	if err := s.users.UpdateRole(ctx, userID, role); err != nil {
		if repositories.IsNotFound(err) {
			return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return domain.User{}, err
	}
	s.logger(ctx, "users.roleChanged", map[string]any{
		"userId":  userID,
		"role":    string(role),
		"actorId": actor.ID,
	})
	return s.users.GetUser(ctx, userID)
}

// UpsertAddress adds or replaces an address on the profile. Marking an
// address default clears the flag on every other address.
func (s *userService) UpsertAddress(ctx context.Context, actor domain.Actor, userID string, address domain.Address) (domain.User, error) {
	userID = strings.TrimSpace(userID)
	if actor.Role != domain.RoleAdmin && actor.ID != userID {
		return domain.User{}, fmt.Errorf("%w: profile %s", ErrUserForbidden, userID)
	}
	if strings.TrimSpace(address.Line1) == "" || strings.TrimSpace(address.City) == "" {
		return domain.User{}, errors.New("user service: address requires line1 and city")
	}

	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return domain.User{}, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
		}
		return domain.User{}, err
	}

	replaced := false
	for i := range user.Addresses {
		if address.IsDefault {
			user.Addresses[i].IsDefault = false
		}
		if sameAddress(user.Addresses[i], address) {
			user.Addresses[i] = address
			replaced = true
		}
	}
	if !replaced {
		user.Addresses = append(user.Addresses, address)
	}
	if address.IsDefault || len(user.Addresses) == 1 {
		// Exactly one default at all times once any address exists.
		for i := range user.Addresses {
			user.Addresses[i].IsDefault = sameAddress(user.Addresses[i], address)
		}
	}

	return s.users.UpsertUser(ctx, user)
}

func sameAddress(a, b domain.Address) bool {
	return strings.EqualFold(strings.TrimSpace(a.Line1), strings.TrimSpace(b.Line1)) &&
		strings.EqualFold(strings.TrimSpace(a.PostalCode), strings.TrimSpace(b.PostalCode)) &&
		strings.EqualFold(strings.TrimSpace(a.City), strings.TrimSpace(b.City))
}
