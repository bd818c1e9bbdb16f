package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/shopward/api/internal/domain"
	"github.com/shopward/api/internal/platform/auth"
	"github.com/shopward/api/internal/platform/httpx"
	"github.com/shopward/api/internal/services"
)

const (
	maxAdminRequestBody = 64 * 1024
	maxBulkIDs          = 200
)

// AdminHandlers exposes bulk order mutations and role assignment. Every
// route requires the admin role.
type AdminHandlers struct {
	authn *auth.Authenticator
	bulk  services.BulkService
	users services.UserService
}

// NewAdminHandlers constructs admin handlers guarded by the admin role.
func NewAdminHandlers(authn *auth.Authenticator, bulk services.BulkService, users services.UserService) *AdminHandlers {
	return &AdminHandlers{authn: authn, bulk: bulk, users: users}
}

// Routes registers admin endpoints under the provided router.
func (h *AdminHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth(domain.RoleAdmin))
	}
	group.Post("/orders/bulk-delete", h.bulkDelete)
	group.Post("/orders/bulk-status", h.bulkUpdateStatus)
	group.Get("/users", h.listUsers)
	group.Patch("/users/{userId}/role", h.changeRole)
}

type bulkDeleteRequest struct {
	OrderIDs []string `json:"orderIds"`
}

type bulkStatusRequest struct {
	OrderIDs []string `json:"orderIds"`
	Status   string   `json:"status"`
}

type changeRoleRequest struct {
	Role string `json:"role"`
}

func (h *AdminHandlers) bulkDelete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req bulkDeleteRequest
	if !h.decodeAdminBody(w, r, &req) {
		return
	}
	if len(req.OrderIDs) == 0 || len(req.OrderIDs) > maxBulkIDs {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderIds must hold between 1 and 200 ids", http.StatusBadRequest))
		return
	}

	result, err := h.bulk.BulkDelete(ctx, identity.Actor(), req.OrderIDs)
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"deleted":  result.Mutated,
		"notFound": result.NotFound,
		"errors":   result.Errors,
	})
}

func (h *AdminHandlers) bulkUpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req bulkStatusRequest
	if !h.decodeAdminBody(w, r, &req) {
		return
	}
	if len(req.OrderIDs) == 0 || len(req.OrderIDs) > maxBulkIDs {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "orderIds must hold between 1 and 200 ids", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	result, err := h.bulk.BulkUpdateStatus(ctx, identity.Actor(), req.OrderIDs,
		domain.OrderStatus(strings.ToLower(strings.TrimSpace(req.Status))))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"updated":  result.Mutated,
		"notFound": result.NotFound,
		"errors":   result.Errors,
	})
}

func (h *AdminHandlers) listUsers(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	users, err := h.users.ListUsers(ctx, identity.Actor())
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}

	payload := make([]map[string]any, 0, len(users))
	for _, user := range users {
		payload = append(payload, map[string]any{
			"id":    user.ID,
			"email": user.Email,
			"name":  user.Name,
			"role":  user.Role,
		})
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{"users": payload})
}

func (h *AdminHandlers) changeRole(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok {
		httpx.WriteError(ctx, w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return
	}

	var req changeRoleRequest
	if !h.decodeAdminBody(w, r, &req) {
		return
	}

	user, err := h.users.ChangeRole(ctx, identity.Actor(), chi.URLParam(r, "userId"),
		domain.Role(strings.ToLower(strings.TrimSpace(req.Role))))
	if err != nil {
		writeServiceError(ctx, w, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]any{
		"id":    user.ID,
		"email": user.Email,
		"role":  user.Role,
	})
}

func (h *AdminHandlers) decodeAdminBody(w http.ResponseWriter, r *http.Request, out any) bool {
	ctx := r.Context()
	body, err := readLimitedBody(r, maxAdminRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return false
	}
	if err := json.Unmarshal(body, out); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return false
	}
	return true
}
