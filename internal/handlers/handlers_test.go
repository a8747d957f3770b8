package handlers_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tendermarket/db"
	"tendermarket/internal/audit"
	"tendermarket/internal/auth"
	"tendermarket/internal/handlers"
	"tendermarket/internal/handlers/testutils"
)

// MockStorage реализует StorageInterface
type MockStorage struct {
	CreateTenderErr        error
	SelectWinnerFunc       func(ctx context.Context, tenderID, bidID int) error
	CreateBidFunc          func(ctx context.Context, bid *db.Bid) error
	GetTendersFunc         func(ctx context.Context, limit, offset int) ([]db.Tender, error)
	GetBidsForTenderFunc   func(ctx context.Context, tenderID int) ([]db.Bid, error)
	ChangeAccountRoleCalls []string
	AuditEntries           []db.AuditLogEntry
}

func (m *MockStorage) GetAccountByID(ctx context.Context, id string) (*db.Account, error) {
	return &db.Account{ID: id, Email: "user@example.com", Name: "Test User", Role: auth.RoleVendor}, nil
}
func (m *MockStorage) ListAccounts(ctx context.Context) ([]db.Account, error) {
	return []db.Account{{ID: "u1", Email: "user@example.com", Name: "Test User"}}, nil
}
func (m *MockStorage) SetAccountBlocked(ctx context.Context, id string, blocked bool) error {
	return nil
}
func (m *MockStorage) ChangeAccountRole(ctx context.Context, actorID, targetID, newRole string) error {
	m.ChangeAccountRoleCalls = append(m.ChangeAccountRoleCalls, targetID+":"+newRole)
	return nil
}
func (m *MockStorage) UpdateProfile(ctx context.Context, accountID, name string, iin *string, orgName string, bin *string) error {
	return nil
}
func (m *MockStorage) GetOrganizationByOwner(ctx context.Context, ownerID string) (*db.Organization, error) {
	return &db.Organization{ID: 1, Name: "Test Org", OwnerID: ownerID}, nil
}

func (m *MockStorage) CreateTender(ctx context.Context, tender *db.Tender) error {
	tender.ID = 42
	return m.CreateTenderErr
}
func (m *MockStorage) GetTender(ctx context.Context, tenderID int) (*db.Tender, error) {
	return &db.Tender{ID: tenderID, Title: "Sample Tender", Price: "1000", Category: "construction", Status: db.TenderStatusActive}, nil
}
func (m *MockStorage) UpdateTender(ctx context.Context, tender *db.Tender) error { return nil }
func (m *MockStorage) GetTenders(ctx context.Context, limit, offset int) ([]db.Tender, error) {
	if m.GetTendersFunc != nil {
		return m.GetTendersFunc(ctx, limit, offset)
	}
	return []db.Tender{{ID: 1, Title: "Sample Tender", Price: "1000", Status: db.TenderStatusActive}}, nil
}
func (m *MockStorage) SelectWinner(ctx context.Context, tenderID, bidID int) error {
	if m.SelectWinnerFunc != nil {
		return m.SelectWinnerFunc(ctx, tenderID, bidID)
	}
	return nil
}

func (m *MockStorage) CreateBid(ctx context.Context, bid *db.Bid) error {
	if m.CreateBidFunc != nil {
		return m.CreateBidFunc(ctx, bid)
	}
	bid.ID = 7
	return nil
}
func (m *MockStorage) GetBid(ctx context.Context, bidID int) (*db.Bid, error) {
	return &db.Bid{ID: bidID, TenderID: 1, UserID: "u1", VendorName: "Vendor", OfferPrice: "900"}, nil
}
func (m *MockStorage) GetBidsForTender(ctx context.Context, tenderID int) ([]db.Bid, error) {
	if m.GetBidsForTenderFunc != nil {
		return m.GetBidsForTenderFunc(ctx, tenderID)
	}
	return []db.Bid{
		{ID: 1, TenderID: tenderID, VendorName: "Cheap Vendor", OfferPrice: "100"},
		{ID: 2, TenderID: tenderID, VendorName: "Pricey Vendor", OfferPrice: "150"},
	}, nil
}
func (m *MockStorage) GetUserBids(ctx context.Context, userID string, limit, offset int) ([]db.Bid, error) {
	return []db.Bid{{ID: 1, TenderID: 1, UserID: userID, VendorName: "Vendor", OfferPrice: "900"}}, nil
}
func (m *MockStorage) MarkBidsSeenByAdmin(ctx context.Context) error { return nil }
func (m *MockStorage) MarkWinnerBidsSeen(ctx context.Context, userID string) error {
	return nil
}

func (m *MockStorage) AppendAuditEntry(ctx context.Context, e *db.AuditLogEntry) error {
	m.AuditEntries = append(m.AuditEntries, *e)
	return nil
}
func (m *MockStorage) GetAuditEntries(ctx context.Context, limit, offset int) ([]db.AuditLogEntry, error) {
	return m.AuditEntries, nil
}

func newTestHandler(store *MockStorage) *handlers.Handler {
	log := zap.NewNop()
	rec := audit.NewRecorder(store, log)
	return handlers.NewHandler(store, nil, nil, rec, nil, nil, log)
}

func asVendor(req *http.Request) *http.Request {
	identity := &auth.Identity{ID: "u1", Name: "Test User", Role: auth.RoleVendor, CompanyName: "Test Org"}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func asAdmin(req *http.Request) *http.Request {
	identity := &auth.Identity{ID: "admin1", Name: "Admin", Role: auth.RoleAdmin}
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func TestGetTendersHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest("GET", "/api/tenders", nil)
	w := httptest.NewRecorder()

	handler.GetTendersHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, 200, res.StatusCode)
	require.Contains(t, string(body), "Sample Tender")
}

func TestCreateTenderHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	reqBody := `{
        "title": "Test Tender",
        "price": "150000.50",
        "category": "construction"
    }`
	req := httptest.NewRequest(http.MethodPost, "/api/tenders", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.CreateTenderHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "Test Tender")
	require.Contains(t, string(body), `"status":"Active"`)

	require.Len(t, mockStore.AuditEntries, 1)
	require.Equal(t, audit.ActionTenderCreated, mockStore.AuditEntries[0].Action)
}

func TestCreateTenderHandlerRejectsBadPrice(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	reqBody := `{"title": "Test Tender", "price": "not-a-number", "category": "construction"}`
	req := httptest.NewRequest(http.MethodPost, "/api/tenders", strings.NewReader(reqBody))
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.CreateTenderHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
}

func TestGetTenderHandlerRanksBids(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/tenders/1", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.GetTenderHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `"vendorName":"Cheap Vendor","offerPrice":"100"`)
	require.Contains(t, string(body), `"isBestPrice":true`)
}

func TestSelectWinnerHandler(t *testing.T) {
	var gotTender, gotBid int
	mockStore := &MockStorage{
		SelectWinnerFunc: func(ctx context.Context, tenderID, bidID int) error {
			gotTender, gotBid = tenderID, bidID
			return nil
		},
	}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/tenders/123/winner", strings.NewReader(`{"bidId": 7}`))
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "123"})
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.SelectWinnerHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Equal(t, 123, gotTender)
	require.Equal(t, 7, gotBid)
}

func TestSelectWinnerHandlerCrossTenderBid(t *testing.T) {
	mockStore := &MockStorage{
		SelectWinnerFunc: func(ctx context.Context, tenderID, bidID int) error {
			return db.ErrCrossTenderBid
		},
	}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/tenders/123/winner", strings.NewReader(`{"bidId": 7}`))
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "123"})
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.SelectWinnerHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
}

func TestSelectWinnerHandlerAlreadySelected(t *testing.T) {
	mockStore := &MockStorage{
		SelectWinnerFunc: func(ctx context.Context, tenderID, bidID int) error {
			return db.ErrWinnerAlreadySelected
		},
	}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/tenders/123/winner", strings.NewReader(`{"bidId": 7}`))
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "123"})
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.SelectWinnerHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
}

func TestCreateBidHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	reqBody := `{"offerPrice": "900.50", "message": "We can start next week"}`
	req := httptest.NewRequest(http.MethodPost, "/api/tenders/1/bids", strings.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	req = asVendor(req)
	w := httptest.NewRecorder()

	handler.CreateBidHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `"vendorName":"Test Org"`)

	require.Len(t, mockStore.AuditEntries, 1)
	require.Equal(t, audit.ActionBidPlaced, mockStore.AuditEntries[0].Action)
}

func TestCreateBidHandlerTenderClosed(t *testing.T) {
	mockStore := &MockStorage{
		CreateBidFunc: func(ctx context.Context, bid *db.Bid) error {
			return db.ErrTenderClosed
		},
	}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/tenders/1/bids", strings.NewReader(`{"offerPrice": "900"}`))
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	req = asVendor(req)
	w := httptest.NewRecorder()

	handler.CreateBidHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
	require.Empty(t, mockStore.AuditEntries)
}

func TestCreateBidHandlerDuplicate(t *testing.T) {
	mockStore := &MockStorage{
		CreateBidFunc: func(ctx context.Context, bid *db.Bid) error {
			return db.ErrDuplicateBid
		},
	}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPost, "/api/tenders/1/bids", strings.NewReader(`{"offerPrice": "900"}`))
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	req = asVendor(req)
	w := httptest.NewRecorder()

	handler.CreateBidHandler(w, req)

	require.Equal(t, http.StatusConflict, w.Result().StatusCode)
}

func TestGetBidsForTenderHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/tenders/1/bids", nil)
	req = testutils.WithChiURLParams(req, map[string]string{"tenderId": "1"})
	w := httptest.NewRecorder()

	handler.GetBidsForTenderHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "Cheap Vendor")
	require.Contains(t, string(body), `"isBestPrice":true`)
	require.Contains(t, string(body), `"isBestPrice":false`)
}

func TestGetUserBidsHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/bids/my", nil)
	req = asVendor(req)
	w := httptest.NewRecorder()

	handler.GetUserBidsHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), `"userId":"u1"`)
}

func TestGetUserBidsHandlerRequiresAuth(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/bids/my", nil)
	w := httptest.NewRecorder()

	handler.GetUserBidsHandler(w, req)

	require.Equal(t, http.StatusUnauthorized, w.Result().StatusCode)
}

func TestChangeRoleHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/u2/role", strings.NewReader(`{"role":"customer"}`))
	req = testutils.WithChiURLParams(req, map[string]string{"userId": "u2"})
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.ChangeRoleHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Equal(t, []string{"u2:customer"}, mockStore.ChangeAccountRoleCalls)
}

func TestChangeRoleHandlerRejectsUnknownRole(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/u2/role", strings.NewReader(`{"role":"superuser"}`))
	req = testutils.WithChiURLParams(req, map[string]string{"userId": "u2"})
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.ChangeRoleHandler(w, req)

	require.Equal(t, http.StatusBadRequest, w.Result().StatusCode)
	require.Empty(t, mockStore.ChangeAccountRoleCalls)
}

func TestBlockUserHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/u2/block", strings.NewReader(`{"blocked":true}`))
	req = testutils.WithChiURLParams(req, map[string]string{"userId": "u2"})
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.BlockUserHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Len(t, mockStore.AuditEntries, 1)
	require.Equal(t, audit.ActionUserBlocked, mockStore.AuditEntries[0].Action)
}

func TestUnblockUserRecordsAudit(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPut, "/api/admin/users/u2/block", strings.NewReader(`{"blocked":false}`))
	req = testutils.WithChiURLParams(req, map[string]string{"userId": "u2"})
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.BlockUserHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
	require.Len(t, mockStore.AuditEntries, 1)
	require.Equal(t, audit.ActionUserUnblocked, mockStore.AuditEntries[0].Action)
}

func TestGetAuditLogHandler(t *testing.T) {
	mockStore := &MockStorage{
		AuditEntries: []db.AuditLogEntry{
			{ID: 1, UserID: "u1", Action: audit.ActionTenderCreated},
		},
	}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/admin/logs", nil)
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.GetAuditLogHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "TENDER_CREATED")
}

func TestMarkBidsReadHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPut, "/api/bids/read", nil)
	req = asAdmin(req)
	w := httptest.NewRecorder()

	handler.MarkBidsReadHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestMarkWinnerBidsReadHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodPut, "/api/bids/winner-read", nil)
	req = asVendor(req)
	w := httptest.NewRecorder()

	handler.MarkWinnerBidsReadHandler(w, req)

	require.Equal(t, http.StatusOK, w.Result().StatusCode)
}

func TestGetProfileHandler(t *testing.T) {
	mockStore := &MockStorage{}
	handler := newTestHandler(mockStore)

	req := httptest.NewRequest(http.MethodGet, "/api/profile", nil)
	req = asVendor(req)
	w := httptest.NewRecorder()

	handler.GetProfileHandler(w, req)

	res := w.Result()
	defer res.Body.Close()
	body, _ := io.ReadAll(res.Body)

	require.Equal(t, http.StatusOK, res.StatusCode)
	require.Contains(t, string(body), "user@example.com")
	require.Contains(t, string(body), "Test Org")
}
