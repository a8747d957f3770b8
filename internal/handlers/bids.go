package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"tendermarket/db"
	"tendermarket/internal/audit"
	"tendermarket/internal/ranking"
)

// CreateBidHandler обрабатывает POST /api/tenders/{tenderId}/bids запрос.
// Имя поставщика фиксируется на момент подачи отклика.
func (h *Handler) CreateBidHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}

	tenderID, err := strconv.Atoi(chi.URLParam(r, "tenderId"))
	if err != nil {
		http.Error(w, "Invalid tender ID", http.StatusBadRequest)
		return
	}

	var req struct {
		OfferPrice string  `json:"offerPrice"`
		Message    *string `json:"message"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := validateBidRequest(req.OfferPrice); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	vendorName := identity.CompanyName
	if vendorName == "" {
		vendorName = identity.Name
	}

	bid := db.Bid{
		TenderID:   tenderID,
		UserID:     identity.ID,
		VendorName: vendorName,
		OfferPrice: req.OfferPrice,
		Message:    req.Message,
	}
	if err := h.Store.CreateBid(r.Context(), &bid); err != nil {
		h.storageError(w, err, "Failed to create bid")
		return
	}

	target := strconv.Itoa(tenderID)
	h.Audit.Record(r.Context(), identity.ID, audit.ActionBidPlaced, &target, map[string]any{
		"bidId":      bid.ID,
		"offerPrice": bid.OfferPrice,
	})

	writeJSON(w, http.StatusOK, bid)
}

func validateBidRequest(offerPrice string) error {
	if offerPrice == "" {
		return errors.New("offerPrice is required")
	}
	if _, err := decimal.NewFromString(offerPrice); err != nil {
		return errors.New("offerPrice must be a decimal number")
	}
	return nil
}

// GetBidsForTenderHandler возвращает отклики тендера с флагом лучшей цены
func (h *Handler) GetBidsForTenderHandler(w http.ResponseWriter, r *http.Request) {
	tenderID, err := strconv.Atoi(chi.URLParam(r, "tenderId"))
	if err != nil {
		http.Error(w, "Invalid tender ID", http.StatusBadRequest)
		return
	}

	if _, err := h.Store.GetTender(r.Context(), tenderID); err != nil {
		h.storageError(w, err, "Failed to get tender")
		return
	}

	bids, err := h.Store.GetBidsForTender(r.Context(), tenderID)
	if err != nil {
		h.storageError(w, err, "Failed to get bids")
		return
	}
	writeJSON(w, http.StatusOK, ranking.Rank(bids))
}

// GetUserBidsHandler возвращает отклики текущего пользователя
func (h *Handler) GetUserBidsHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	params := parsePaginationParams(r)

	bids, err := h.Store.GetUserBids(r.Context(), identity.ID, params.Limit, params.Offset)
	if err != nil {
		h.storageError(w, err, "Failed to get bids")
		return
	}
	if bids == nil {
		bids = []db.Bid{}
	}
	writeJSON(w, http.StatusOK, bids)
}

// MarkBidsReadHandler обрабатывает PUT /api/bids/read запрос (админ)
func (h *Handler) MarkBidsReadHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.MarkBidsSeenByAdmin(r.Context()); err != nil {
		h.storageError(w, err, "Failed to mark bids as read")
		return
	}
	w.WriteHeader(http.StatusOK)
}

// MarkWinnerBidsReadHandler обрабатывает PUT /api/bids/winner-read запрос.
// Поставщик отмечает просмотренными свои победившие отклики.
func (h *Handler) MarkWinnerBidsReadHandler(w http.ResponseWriter, r *http.Request) {
	identity, ok := identityFrom(w, r)
	if !ok {
		return
	}
	if err := h.Store.MarkWinnerBidsSeen(r.Context(), identity.ID); err != nil {
		h.storageError(w, err, "Failed to mark winner bids as read")
		return
	}
	w.WriteHeader(http.StatusOK)
}
