package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// Ошибки уровня хранилища. Обработчики переводят их в HTTP-статусы.
var (
	ErrNotFound              = errors.New("db: not found")
	ErrCrossTenderBid        = errors.New("db: bid belongs to another tender")
	ErrWinnerAlreadySelected = errors.New("db: winner already selected")
	ErrTenderClosed          = errors.New("db: tender is closed")
	ErrDuplicateBid          = errors.New("db: duplicate bid for tender")
)

const uniqueViolation = "23505"

type Storage struct {
	db *sqlx.DB
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{db: db}
}

// Account (Пользователь)
type Account struct {
	ID           string    `db:"id" json:"id"`
	Email        string    `db:"email" json:"email"`
	PasswordHash *string   `db:"password_hash" json:"-"`
	Name         string    `db:"name" json:"name"`
	Role         string    `db:"role" json:"role"`
	IIN          *string   `db:"iin" json:"iin,omitempty"`
	Blocked      bool      `db:"blocked" json:"blocked"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

func (s *Storage) CreateAccount(ctx context.Context, a *Account) error {
	query := `
        INSERT INTO accounts (id, email, password_hash, name, role, iin)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING created_at`
	return s.db.QueryRowContext(ctx, query,
		a.ID, a.Email, a.PasswordHash, a.Name, a.Role, a.IIN).
		Scan(&a.CreatedAt)
}

func (s *Storage) GetAccountByID(ctx context.Context, id string) (*Account, error) {
	a := &Account{}
	query := `SELECT * FROM accounts WHERE id=$1`
	err := s.db.GetContext(ctx, a, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *Storage) GetAccountByEmail(ctx context.Context, email string) (*Account, error) {
	a := &Account{}
	query := `SELECT * FROM accounts WHERE email=$1`
	err := s.db.GetContext(ctx, a, query, email)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *Storage) GetAccountByIIN(ctx context.Context, iin string) (*Account, error) {
	a := &Account{}
	query := `SELECT * FROM accounts WHERE iin=$1`
	err := s.db.GetContext(ctx, a, query, iin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func (s *Storage) ListAccounts(ctx context.Context) ([]Account, error) {
	accounts := []Account{}
	query := `SELECT * FROM accounts ORDER BY created_at DESC`
	err := s.db.SelectContext(ctx, &accounts, query)
	return accounts, err
}

func (s *Storage) SetAccountBlocked(ctx context.Context, id string, blocked bool) error {
	query := `UPDATE accounts SET blocked=$1 WHERE id=$2`
	res, err := s.db.ExecContext(ctx, query, blocked, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ChangeAccountRole меняет роль пользователя и пишет запись аудита в одной
// транзакции: смена роли без следа в журнале недопустима.
func (s *Storage) ChangeAccountRole(ctx context.Context, actorID, targetID, newRole string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	target := &Account{}
	if err := tx.GetContext(ctx, target, `SELECT * FROM accounts WHERE id=$1`, targetID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE accounts SET role=$1 WHERE id=$2`, newRole, targetID); err != nil {
		return err
	}

	details, err := json.Marshal(map[string]any{
		"userEmail": target.Email,
		"oldRole":   target.Role,
		"newRole":   newRole,
	})
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO audit_log (user_id, action, target_id, details) VALUES ($1, $2, $3, $4)`,
		actorID, "ROLE_CHANGE", targetID, details)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// Organization (Организация поставщика)
type Organization struct {
	ID      int     `db:"id" json:"id"`
	Name    string  `db:"name" json:"name"`
	BIN     *string `db:"bin" json:"bin,omitempty"`
	OwnerID string  `db:"owner_id" json:"ownerId"`
}

func (s *Storage) CreateOrganization(ctx context.Context, o *Organization) error {
	query := `
        INSERT INTO organizations (name, bin, owner_id)
        VALUES ($1, $2, $3)
        RETURNING id`
	return s.db.QueryRowContext(ctx, query, o.Name, o.BIN, o.OwnerID).Scan(&o.ID)
}

func (s *Storage) GetOrganizationByOwner(ctx context.Context, ownerID string) (*Organization, error) {
	o := &Organization{}
	query := `SELECT * FROM organizations WHERE owner_id=$1`
	err := s.db.GetContext(ctx, o, query, ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// UpdateProfile обновляет имя и ИИН пользователя, а для поставщика заодно
// название и БИН его организации. Одна транзакция, чтобы профиль не разъехался.
func (s *Storage) UpdateProfile(ctx context.Context, accountID, name string, iin *string, orgName string, bin *string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `UPDATE accounts SET name=$1, iin=$2 WHERE id=$3`, name, iin, accountID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}

	if orgName != "" {
		_, err = tx.ExecContext(ctx, `UPDATE organizations SET name=$1, bin=$2 WHERE owner_id=$3`, orgName, bin, accountID)
		if err != nil {
			return err
		}
	}

	return tx.Commit()
}

// Tender (Тендер / Лот)
type Tender struct {
	ID           int            `db:"id" json:"id"`
	Title        string         `db:"title" json:"title"`
	Price        string         `db:"price" json:"price"`
	Category     string         `db:"category" json:"category"`
	Subcategory  *string        `db:"subcategory" json:"subcategory,omitempty"`
	WorkType     *string        `db:"work_type" json:"workType,omitempty"`
	Requirements pq.StringArray `db:"requirements" json:"requirements"`
	EstimateURL  *string        `db:"estimate_url" json:"estimateUrl,omitempty"`
	EstimateName *string        `db:"estimate_name" json:"estimateName,omitempty"`
	VolumeURL    *string        `db:"volume_url" json:"volumeUrl,omitempty"`
	VolumeName   *string        `db:"volume_name" json:"volumeName,omitempty"`
	Status       string         `db:"status" json:"status"`
	WinnerID     *int           `db:"winner_id" json:"winnerId,omitempty"`
	CreatedAt    time.Time      `db:"created_at" json:"createdAt"`
}

const (
	TenderStatusActive = "Active"
	TenderStatusClosed = "Closed"
)

func (s *Storage) CreateTender(ctx context.Context, t *Tender) error {
	query := `
        INSERT INTO tenders
            (title, price, category, subcategory, work_type, requirements,
             estimate_url, estimate_name, volume_url, volume_name, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
        RETURNING id, created_at`
	t.Status = TenderStatusActive
	return s.db.QueryRowContext(ctx, query,
		t.Title, t.Price, t.Category, t.Subcategory, t.WorkType, t.Requirements,
		t.EstimateURL, t.EstimateName, t.VolumeURL, t.VolumeName, t.Status).
		Scan(&t.ID, &t.CreatedAt)
}

func (s *Storage) GetTender(ctx context.Context, id int) (*Tender, error) {
	t := &Tender{}
	query := `SELECT * FROM tenders WHERE id=$1`
	err := s.db.GetContext(ctx, t, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return t, err
}

func (s *Storage) UpdateTender(ctx context.Context, t *Tender) error {
	query := `
        UPDATE tenders
        SET title=$1, price=$2, category=$3, subcategory=$4, work_type=$5, requirements=$6
        WHERE id=$7`
	_, err := s.db.ExecContext(ctx, query,
		t.Title, t.Price, t.Category, t.Subcategory, t.WorkType, t.Requirements, t.ID)
	return err
}

func (s *Storage) GetTenders(ctx context.Context, limit, offset int) ([]Tender, error) {
	tenders := []Tender{}
	query := `
        SELECT * FROM tenders
        ORDER BY (status = 'Active') DESC, created_at DESC
        LIMIT $1 OFFSET $2`
	err := s.db.SelectContext(ctx, &tenders, query, limit, offset)
	return tenders, err
}

// SelectWinner переводит тендер в статус Closed и записывает победителя одним
// условным UPDATE. Повторный выбор той же заявки — no-op, попытка выбрать
// другую заявку на закрытом тендере отклоняется: первый победитель остаётся.
func (s *Storage) SelectWinner(ctx context.Context, tenderID, bidID int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var bidTenderID int
	err = tx.GetContext(ctx, &bidTenderID, `SELECT tender_id FROM bids WHERE id=$1`, bidID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if bidTenderID != tenderID {
		return ErrCrossTenderBid
	}

	res, err := tx.ExecContext(ctx, `
        UPDATE tenders
        SET status=$1, winner_id=$2
        WHERE id=$3 AND (winner_id IS NULL OR winner_id=$2)`,
		TenderStatusClosed, bidID, tenderID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Тендер либо не существует, либо уже закрыт с другим победителем.
		var exists bool
		if err := tx.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tenders WHERE id=$1)`, tenderID); err != nil {
			return err
		}
		if !exists {
			return ErrNotFound
		}
		return ErrWinnerAlreadySelected
	}

	return tx.Commit()
}

// Bid (Отклик поставщика)
type Bid struct {
	ID           int       `db:"id" json:"id"`
	TenderID     int       `db:"tender_id" json:"tenderId"`
	UserID       string    `db:"user_id" json:"userId"`
	VendorName   string    `db:"vendor_name" json:"vendorName"`
	OfferPrice   string    `db:"offer_price" json:"offerPrice"`
	Message      *string   `db:"message" json:"message,omitempty"`
	SeenByAdmin  bool      `db:"seen_by_admin" json:"seenByAdmin"`
	SeenByWinner bool      `db:"seen_by_winner" json:"seenByWinner"`
	CreatedAt    time.Time `db:"created_at" json:"createdAt"`
}

// CreateBid вставляет отклик только если тендер существует и активен.
// Проверка и вставка — один оператор, между ними нет окна для гонки.
func (s *Storage) CreateBid(ctx context.Context, b *Bid) error {
	query := `
        INSERT INTO bids (tender_id, user_id, vendor_name, offer_price, message)
        SELECT $1, $2, $3, $4, $5
        WHERE EXISTS (SELECT 1 FROM tenders WHERE id=$1 AND status=$6)
        RETURNING id, created_at`
	err := s.db.QueryRowContext(ctx, query,
		b.TenderID, b.UserID, b.VendorName, b.OfferPrice, b.Message, TenderStatusActive).
		Scan(&b.ID, &b.CreatedAt)
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return ErrDuplicateBid
	}
	if errors.Is(err, sql.ErrNoRows) {
		var exists bool
		if gerr := s.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM tenders WHERE id=$1)`, b.TenderID); gerr != nil {
			return gerr
		}
		if !exists {
			return ErrNotFound
		}
		return ErrTenderClosed
	}
	return err
}

func (s *Storage) GetBid(ctx context.Context, id int) (*Bid, error) {
	b := &Bid{}
	query := `SELECT * FROM bids WHERE id=$1`
	err := s.db.GetContext(ctx, b, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return b, err
}

func (s *Storage) GetBidsForTender(ctx context.Context, tenderID int) ([]Bid, error) {
	bids := []Bid{}
	query := `SELECT * FROM bids WHERE tender_id=$1 ORDER BY created_at DESC`
	err := s.db.SelectContext(ctx, &bids, query, tenderID)
	return bids, err
}

func (s *Storage) GetUserBids(ctx context.Context, userID string, limit, offset int) ([]Bid, error) {
	bids := []Bid{}
	query := `
        SELECT * FROM bids
        WHERE user_id = $1
        ORDER BY created_at DESC
        LIMIT $2 OFFSET $3`
	err := s.db.SelectContext(ctx, &bids, query, userID, limit, offset)
	return bids, err
}

func (s *Storage) MarkBidsSeenByAdmin(ctx context.Context) error {
	query := `UPDATE bids SET seen_by_admin = TRUE WHERE seen_by_admin = FALSE`
	_, err := s.db.ExecContext(ctx, query)
	return err
}

// MarkWinnerBidsSeen помечает прочитанными выигравшие отклики поставщика.
func (s *Storage) MarkWinnerBidsSeen(ctx context.Context, userID string) error {
	query := `
        UPDATE bids SET seen_by_winner = TRUE
        WHERE user_id = $1 AND seen_by_winner = FALSE
        AND id IN (SELECT winner_id FROM tenders WHERE winner_id IS NOT NULL)`
	_, err := s.db.ExecContext(ctx, query, userID)
	return err
}

// AuditLogEntry (Запись журнала аудита)
// Журнал только дописывается: ни UPDATE, ни DELETE для него не существует.
type AuditLogEntry struct {
	ID        int             `db:"id" json:"id"`
	UserID    string          `db:"user_id" json:"userId"`
	Action    string          `db:"action" json:"action"`
	TargetID  *string         `db:"target_id" json:"targetId,omitempty"`
	Details   json.RawMessage `db:"details" json:"details"`
	CreatedAt time.Time       `db:"created_at" json:"createdAt"`
}

func (s *Storage) AppendAuditEntry(ctx context.Context, e *AuditLogEntry) error {
	if len(e.Details) == 0 {
		e.Details = json.RawMessage(`{}`)
	}
	query := `
        INSERT INTO audit_log (user_id, action, target_id, details)
        VALUES ($1, $2, $3, $4)
        RETURNING id, created_at`
	return s.db.QueryRowContext(ctx, query, e.UserID, e.Action, e.TargetID, []byte(e.Details)).
		Scan(&e.ID, &e.CreatedAt)
}

func (s *Storage) GetAuditEntries(ctx context.Context, limit, offset int) ([]AuditLogEntry, error) {
	entries := []AuditLogEntry{}
	query := `
        SELECT * FROM audit_log
        ORDER BY created_at DESC, id DESC
        LIMIT $1 OFFSET $2`
	err := s.db.SelectContext(ctx, &entries, query, limit, offset)
	return entries, err
}
