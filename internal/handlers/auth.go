package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"tendermarket/internal/auth"
	"tendermarket/internal/eds"
)

type tokenResponse struct {
	Token string         `json:"token"`
	User  *auth.Identity `json:"user"`
}

// RegisterHandler обрабатывает POST /api/auth/register запрос
func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity, err := h.Auth.RegisterWithPassword(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		h.authError(w, err)
		return
	}
	h.issueToken(w, identity)
}

// RegisterEDSHandler обрабатывает POST /api/auth/register/eds запрос.
// Личность берется из сертификата внутри подписанного конверта.
func (h *Handler) RegisterEDSHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Envelope string `json:"envelope"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fields, err := h.extractFields(req.Envelope)
	if err != nil {
		edsError(w, err)
		return
	}

	identity, err := h.Auth.RegisterWithCertificate(r.Context(), fields, req.Password, req.Email)
	if err != nil {
		h.authError(w, err)
		return
	}
	h.issueToken(w, identity)
}

// LoginHandler обрабатывает POST /api/auth/login запрос
func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	identity, err := h.Auth.LoginWithPassword(r.Context(), req.Email, req.Password)
	if err != nil {
		h.authError(w, err)
		return
	}
	h.issueToken(w, identity)
}

// LoginEDSHandler обрабатывает POST /api/auth/login/eds запрос
func (h *Handler) LoginEDSHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Envelope string `json:"envelope"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	fields, err := h.extractFields(req.Envelope)
	if err != nil {
		edsError(w, err)
		return
	}

	identity, err := h.Auth.LoginWithCertificate(r.Context(), fields.PersonalID, fields.Email)
	if err != nil {
		h.authError(w, err)
		return
	}
	h.issueToken(w, identity)
}

// SignNonceHandler обрабатывает POST /api/auth/eds/sign запрос.
// Просит локальный агент подписать одноразовую строку и возвращает конверт.
func (h *Handler) SignNonceHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nonce string `json:"nonce"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Nonce == "" {
		http.Error(w, "nonce is required", http.StatusBadRequest)
		return
	}

	envelope, err := h.Agent.SignNonce(r.Context(), req.Nonce)
	if err != nil {
		edsError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"envelope": envelope})
}

// GetProfileHandler обрабатывает GET /api/profile запрос
func (h *Handler) GetProfileHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	account, err := h.Store.GetAccountByID(r.Context(), identity.ID)
	if err != nil {
		h.storageError(w, err, "Failed to load profile")
		return
	}

	resp := map[string]any{
		"id":    account.ID,
		"name":  account.Name,
		"email": account.Email,
		"role":  account.Role,
	}
	if account.IIN != nil {
		resp["iin"] = *account.IIN
	}
	if org, err := h.Store.GetOrganizationByOwner(r.Context(), account.ID); err == nil {
		resp["companyName"] = org.Name
		if org.BIN != nil {
			resp["bin"] = *org.BIN
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// UpdateProfileHandler обрабатывает PUT /api/profile запрос
func (h *Handler) UpdateProfileHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	var req struct {
		Name        string  `json:"name"`
		IIN         *string `json:"iin"`
		CompanyName string  `json:"companyName"`
		BIN         *string `json:"bin"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "name is required", http.StatusBadRequest)
		return
	}

	if err := h.Store.UpdateProfile(r.Context(), identity.ID, req.Name, req.IIN, req.CompanyName, req.BIN); err != nil {
		h.storageError(w, err, "Failed to update profile")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// extractFields достает сертификат из конверта и разбирает поля субъекта
func (h *Handler) extractFields(envelope string) (*eds.Fields, error) {
	cert, err := eds.CertificateFromEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	return eds.Extract(cert)
}

// issueToken выдает JWT для аутентифицированного пользователя
func (h *Handler) issueToken(w http.ResponseWriter, identity *auth.Identity) {
	token, err := h.Tokens.Generate(identity.ID)
	if err != nil {
		h.Log.Error("token generation failed", zap.Error(err))
		http.Error(w, "Failed to issue token", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{Token: token, User: identity})
}

// authError переводит ошибки сервиса аутентификации в HTTP-статусы.
// Неверный пароль и несуществующий аккаунт не различаются в ответе.
func (h *Handler) authError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrAccountBlocked):
		http.Error(w, "Account is blocked", http.StatusForbidden)
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrAccountNotFound):
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
	case errors.Is(err, auth.ErrDuplicateAccount):
		http.Error(w, "Account already exists", http.StatusConflict)
	case errors.Is(err, auth.ErrInvalidInput):
		http.Error(w, "Invalid input", http.StatusBadRequest)
	default:
		h.Log.Error("auth error", zap.Error(err))
		http.Error(w, "Authentication failed", http.StatusInternalServerError)
	}
}
