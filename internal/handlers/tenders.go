package handlers

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"tendermarket/db"
	"tendermarket/internal/audit"
	"tendermarket/internal/ranking"
)

// CreateTenderHandler обрабатывает POST /api/tenders запрос
func (h *Handler) CreateTenderHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	var tender db.Tender
	if err := decodeJSON(w, r, &tender); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := validateTenderRequest(&tender); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	tender.Status = db.TenderStatusActive
	tender.WinnerID = nil

	if err := h.Store.CreateTender(r.Context(), &tender); err != nil {
		h.storageError(w, err, "Failed to create tender")
		return
	}

	tenderID := strconv.Itoa(tender.ID)
	h.Audit.Record(r.Context(), identity.ID, audit.ActionTenderCreated, &tenderID, map[string]any{
		"title": tender.Title,
		"price": tender.Price,
	})

	writeJSON(w, http.StatusOK, tender)
}

// validateTenderRequest проверяет обязательные поля при создании
func validateTenderRequest(t *db.Tender) error {
	if t.Title == "" || len(t.Title) > 200 {
		return errors.New("title is required and max length 200")
	}
	if _, err := decimal.NewFromString(t.Price); err != nil {
		return errors.New("price must be a decimal number")
	}
	if t.Category == "" {
		return errors.New("category is required")
	}
	return nil
}

// GetTendersHandler возвращает список тендеров, активные первыми
func (h *Handler) GetTendersHandler(w http.ResponseWriter, r *http.Request) {
	params := parsePaginationParams(r)

	tenders, err := h.Store.GetTenders(r.Context(), params.Limit, params.Offset)
	if err != nil {
		h.storageError(w, err, "Failed to get tenders")
		return
	}
	if tenders == nil {
		tenders = []db.Tender{}
	}
	writeJSON(w, http.StatusOK, tenders)
}

// GetTenderHandler возвращает тендер вместе с ранжированными откликами
func (h *Handler) GetTenderHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := strconv.Atoi(chi.URLParam(r, "tenderId"))
	if err != nil {
		http.Error(w, "Invalid tender ID", http.StatusBadRequest)
		return
	}

	tender, err := h.Store.GetTender(r.Context(), tenderID)
	if err != nil {
		h.storageError(w, err, "Failed to get tender")
		return
	}

	bids, err := h.Store.GetBidsForTender(r.Context(), tenderID)
	if err != nil {
		h.storageError(w, err, "Failed to get bids")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tender": tender,
		"bids":   ranking.Rank(bids),
	})
}

// UpdateTenderHandler обрабатывает PUT /api/tenders/{tenderId} запрос
func (h *Handler) UpdateTenderHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := strconv.Atoi(chi.URLParam(r, "tenderId"))
	if err != nil {
		http.Error(w, "Invalid tender ID", http.StatusBadRequest)
		return
	}

	tender, err := h.Store.GetTender(r.Context(), tenderID)
	if err != nil {
		h.storageError(w, err, "Failed to get tender")
		return
	}

	var req db.Tender
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateTenderRequest(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	// Статус и победитель меняются только через выбор победителя
	req.ID = tender.ID
	req.Status = tender.Status
	req.WinnerID = tender.WinnerID

	if err := h.Store.UpdateTender(r.Context(), &req); err != nil {
		h.storageError(w, err, "Failed to update tender")
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// SelectWinnerHandler обрабатывает POST /api/tenders/{tenderId}/winner запрос.
// Победитель назначается один раз, повторный выбор отклоняется.
func (h *Handler) SelectWinnerHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := strconv.Atoi(chi.URLParam(r, "tenderId"))
	if err != nil {
		http.Error(w, "Invalid tender ID", http.StatusBadRequest)
		return
	}

	var req struct {
		BidID int `json:"bidId"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if req.BidID <= 0 {
		http.Error(w, "bidId must be positive", http.StatusBadRequest)
		return
	}

	if err := h.Store.SelectWinner(r.Context(), tenderID, req.BidID); err != nil {
		h.storageError(w, err, "Failed to select winner")
		return
	}

	tender, err := h.Store.GetTender(r.Context(), tenderID)
	if err != nil {
		h.storageError(w, err, "Failed to get tender")
		return
	}
	writeJSON(w, http.StatusOK, tender)
}

// UploadAttachmentHandler обрабатывает POST /api/tenders/attachments запрос.
// Принимает multipart-файл и возвращает URL для вложения тендера.
func (h *Handler) UploadAttachmentHandler(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		http.Error(w, "Failed to parse upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "Failed to read upload", http.StatusBadRequest)
		return
	}

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	attachment, err := h.Blobs.Store(r.Context(), header.Filename, data, contentType)
	if err != nil {
		h.Log.Error("attachment upload failed", zap.Error(err))
		http.Error(w, "Failed to store attachment", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, attachment)
}
