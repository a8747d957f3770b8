package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"tendermarket/db"
	"tendermarket/internal/audit"
	"tendermarket/internal/auth"
	"tendermarket/internal/blobstore"
	"tendermarket/internal/eds"
)

// SigningAgent подписывает данные через локальный агент ЭЦП
type SigningAgent interface {
	SignNonce(ctx context.Context, nonce string) (string, error)
}

// BlobStore сохраняет загруженные файлы и возвращает публичный URL
type BlobStore interface {
	Store(ctx context.Context, name string, data []byte, contentType string) (*blobstore.Attachment, error)
}

// Handler оборачивает Storage и сервисы для доступа из HTTP-слоя
type Handler struct {
	Store  StorageInterface
	Auth   *auth.Service
	Tokens *auth.TokenManager
	Audit  *audit.Recorder
	Agent  SigningAgent
	Blobs  BlobStore
	Log    *zap.Logger
}

// NewHandler создает новый Handler
func NewHandler(store StorageInterface, svc *auth.Service, tokens *auth.TokenManager, rec *audit.Recorder, agent SigningAgent, blobs BlobStore, log *zap.Logger) *Handler {
	return &Handler{
		Store:  store,
		Auth:   svc,
		Tokens: tokens,
		Audit:  rec,
		Agent:  agent,
		Blobs:  blobs,
		Log:    log,
	}
}

// PingHandler отвечает "ok" для проверки сервера
func (h *Handler) PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// PaginationParams параметры постраничного вывода
type PaginationParams struct {
	Limit  int
	Offset int
}

// parsePaginationParams читает limit/offset из query string
func parsePaginationParams(r *http.Request) PaginationParams {
	params := PaginationParams{Limit: 20, Offset: 0}

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			if n > 100 {
				n = 100
			}
			params.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			params.Offset = n
		}
	}
	return params
}

// decodeJSON читает тело запроса с ограничением размера
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1048576)

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return errors.New("failed to read request body")
	}
	defer r.Body.Close()

	if err := json.Unmarshal(body, dst); err != nil {
		return errors.New("invalid JSON format")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// identityFrom достает аутентифицированного пользователя из контекста
func identityFrom(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return nil, false
	}
	return identity, true
}

// storageError переводит ошибки хранилища в HTTP-статусы
func (h *Handler) storageError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, db.ErrCrossTenderBid):
		http.Error(w, "Bid does not belong to this tender", http.StatusConflict)
	case errors.Is(err, db.ErrWinnerAlreadySelected):
		http.Error(w, "Winner has already been selected", http.StatusConflict)
	case errors.Is(err, db.ErrTenderClosed):
		http.Error(w, "Tender is closed", http.StatusConflict)
	case errors.Is(err, db.ErrDuplicateBid):
		http.Error(w, "You have already placed a bid on this tender", http.StatusConflict)
	default:
		h.Log.Error("storage error", zap.Error(err))
		http.Error(w, fallback, http.StatusInternalServerError)
	}
}

// edsError переводит ошибки разбора сертификата и агента подписи
func edsError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, eds.ErrMissingIdentity):
		http.Error(w, "Certificate does not contain a subject name", http.StatusBadRequest)
	case errors.Is(err, eds.ErrNoCertificate), errors.Is(err, eds.ErrParse):
		http.Error(w, "Could not read the signing certificate, check the selected key", http.StatusBadRequest)
	case errors.Is(err, eds.ErrSigningCancelled):
		http.Error(w, "Key selection was cancelled", http.StatusBadRequest)
	case errors.Is(err, eds.ErrAgentUnavailable):
		http.Error(w, "Local signing agent is not running", http.StatusServiceUnavailable)
	default:
		http.Error(w, "Signing failed", http.StatusInternalServerError)
	}
}
