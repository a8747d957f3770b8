package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"tendermarket/db"
	"tendermarket/internal/audit"
	"tendermarket/internal/auth"
)

// ListUsersHandler обрабатывает GET /api/admin/users запрос
func (h *Handler) ListUsersHandler(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.Store.ListAccounts(r.Context())
	if err != nil {
		h.storageError(w, err, "Failed to list users")
		return
	}
	if accounts == nil {
		accounts = []db.Account{}
	}
	writeJSON(w, http.StatusOK, accounts)
}

// ChangeRoleHandler обрабатывает PUT /api/admin/users/{userId}/role запрос.
// Смена роли и её аудит-запись фиксируются вместе.
func (h *Handler) ChangeRoleHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userId")

	var req struct {
		Role string `json:"role"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	switch req.Role {
	case auth.RoleAdmin, auth.RoleVendor, auth.RoleCustomer:
	default:
		http.Error(w, "invalid role", http.StatusBadRequest)
		return
	}

	if err := h.Store.ChangeAccountRole(r.Context(), identity.ID, userID, req.Role); err != nil {
		h.storageError(w, err, "Failed to change role")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// BlockUserHandler обрабатывает PUT /api/admin/users/{userId}/block запрос
func (h *Handler) BlockUserHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	userID := chi.URLParam(r, "userId")

	var req struct {
		Blocked bool `json:"blocked"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	target, err := h.Store.GetAccountByID(r.Context(), userID)
	if err != nil {
		h.storageError(w, err, "Failed to get user")
		return
	}

	if err := h.Store.SetAccountBlocked(r.Context(), userID, req.Blocked); err != nil {
		h.storageError(w, err, "Failed to update user")
		return
	}

	action := audit.ActionUserBlocked
	if !req.Blocked {
		action = audit.ActionUserUnblocked
	}
	h.Audit.Record(r.Context(), identity.ID, action, &userID, map[string]any{
		"email": target.Email,
	})
	w.WriteHeader(http.StatusOK)
}

// GetAuditLogHandler обрабатывает GET /api/admin/logs запрос
func (h *Handler) GetAuditLogHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	entries, err := h.Store.GetAuditEntries(r.Context(), params.Limit, params.Offset)
	if err != nil {
		h.storageError(w, err, "Failed to get audit log")
		return
	}
	if entries == nil {
		entries = []db.AuditLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}
