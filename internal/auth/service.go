// Package auth разрешает личность пользователя: регистрация и вход по паролю
// или по сертификату ЭЦП, проверка блокировки, выдача и проверка токенов.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tendermarket/db"
	"tendermarket/internal/audit"
	"tendermarket/internal/eds"
)

const (
	RoleVendor   = "vendor"
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
)

// Storage — часть хранилища, нужная сервису аутентификации.
type Storage interface {
	GetAccountByID(ctx context.Context, id string) (*db.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (*db.Account, error)
	GetAccountByIIN(ctx context.Context, iin string) (*db.Account, error)
	CreateAccount(ctx context.Context, a *db.Account) error
	CreateOrganization(ctx context.Context, o *db.Organization) error
	GetOrganizationByOwner(ctx context.Context, ownerID string) (*db.Organization, error)
}

// Identity — результат успешной аутентификации: аккаунт, развёрнутый данными
// его организации.
type Identity struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	BIN         string `json:"bin,omitempty"`
	CompanyName string `json:"companyName,omitempty"`
}

type Service struct {
	store Storage
	audit *audit.Recorder
}

func NewService(store Storage, recorder *audit.Recorder) *Service {
	return &Service{store: store, audit: recorder}
}

// RegisterWithCertificate заводит аккаунт поставщика по полям сертификата.
// Итоговый email — явно указанный, иначе из сертификата.
func (s *Service) RegisterWithCertificate(ctx context.Context, fields *eds.Fields, password, explicitEmail string) (*Identity, error) {
	email := explicitEmail
	if email == "" {
		email = fields.Email
	}
	if email == "" {
		return nil, fmt.Errorf("%w: email is required", ErrInvalidInput)
	}

	existing, err := s.lookup(ctx, fields.PersonalID, email)
	if err != nil && !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}
	if existing != nil {
		return nil, ErrDuplicateAccount
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &db.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: &hash,
		Name:         fields.FullName,
		Role:         RoleVendor,
	}
	if fields.PersonalID != "" {
		iin := fields.PersonalID
		account.IIN = &iin
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	orgName := fields.OrganizationName
	if orgName == "" {
		orgName = "Sole Proprietor " + fields.FullName
	}
	org := &db.Organization{Name: orgName, OwnerID: account.ID}
	if fields.OrganizationID != "" {
		bin := fields.OrganizationID
		org.BIN = &bin
	}
	if err := s.store.CreateOrganization(ctx, org); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, account.ID, audit.ActionUserRegistered, nil, map[string]any{
		"method": "certificate",
		"email":  email,
	})

	return &Identity{
		ID:          account.ID,
		Name:        account.Name,
		Email:       account.Email,
		Role:        account.Role,
		BIN:         fields.OrganizationID,
		CompanyName: orgName,
	}, nil
}

// RegisterWithPassword заводит аккаунт по email и паролю. Организация в этом
// пути не создаётся: поставщик заполняет её позже в профиле.
func (s *Service) RegisterWithPassword(ctx context.Context, name, email, password string) (*Identity, error) {
	if name == "" || email == "" {
		return nil, fmt.Errorf("%w: name and email are required", ErrInvalidInput)
	}

	_, err := s.store.GetAccountByEmail(ctx, email)
	if err == nil {
		return nil, ErrDuplicateAccount
	}
	if !errors.Is(err, db.ErrNotFound) {
		return nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	account := &db.Account{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: &hash,
		Name:         name,
		Role:         RoleVendor,
	}
	if err := s.store.CreateAccount(ctx, account); err != nil {
		return nil, err
	}

	s.audit.Record(ctx, account.ID, audit.ActionUserRegistered, nil, map[string]any{
		"method": "password",
		"email":  email,
	})

	return &Identity{ID: account.ID, Name: account.Name, Email: account.Email, Role: account.Role}, nil
}

// LoginWithCertificate ищет аккаунт по ИИН, иначе по email из сертификата.
func (s *Service) LoginWithCertificate(ctx context.Context, personalID, email string) (*Identity, error) {
	account, err := s.lookup(ctx, personalID, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}

	if account.Blocked {
		s.audit.Record(ctx, account.ID, audit.ActionLoginAttemptBlocked, nil, map[string]any{
			"method": "certificate",
		})
		return nil, ErrAccountBlocked
	}

	identity := s.identityOf(ctx, account)
	s.audit.Record(ctx, account.ID, audit.ActionUserLoginEDS, nil, map[string]any{
		"iin": personalID,
	})
	return identity, nil
}

// LoginWithPassword проверяет пароль. Проверка блокировки идёт строго до
// сверки пароля: заблокированный аккаунт не должен по ответу или аудиту
// выдавать, верен ли пароль.
func (s *Service) LoginWithPassword(ctx context.Context, email, password string) (*Identity, error) {
	account, err := s.store.GetAccountByEmail(ctx, email)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if account.PasswordHash == nil {
		return nil, ErrAccountNotFound
	}

	if account.Blocked {
		s.audit.Record(ctx, account.ID, audit.ActionLoginAttemptBlocked, nil, map[string]any{
			"method": "password",
		})
		return nil, ErrAccountBlocked
	}

	if err := VerifyPassword(*account.PasswordHash, password); err != nil {
		s.audit.Record(ctx, account.ID, audit.ActionLoginFailed, nil, map[string]any{
			"email": email,
		})
		return nil, ErrInvalidCredentials
	}

	return s.identityOf(ctx, account), nil
}

// ResolveAccount перечитывает аккаунт по id и применяет политику блокировки.
// Вызывается на каждом защищённом запросе: сессия, выданная до блокировки,
// перестаёт действовать сразу после неё.
func (s *Service) ResolveAccount(ctx context.Context, accountID string) (*Identity, error) {
	account, err := s.store.GetAccountByID(ctx, accountID)
	if errors.Is(err, db.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, err
	}
	if account.Blocked {
		return nil, ErrAccountBlocked
	}
	return &Identity{ID: account.ID, Name: account.Name, Email: account.Email, Role: account.Role}, nil
}

func (s *Service) lookup(ctx context.Context, personalID, email string) (*db.Account, error) {
	if personalID != "" {
		return s.store.GetAccountByIIN(ctx, personalID)
	}
	if email == "" {
		return nil, db.ErrNotFound
	}
	return s.store.GetAccountByEmail(ctx, email)
}

// identityOf разворачивает аккаунт данными организации. Отсутствие
// организации — не ошибка входа.
func (s *Service) identityOf(ctx context.Context, account *db.Account) *Identity {
	identity := &Identity{
		ID:    account.ID,
		Name:  account.Name,
		Email: account.Email,
		Role:  account.Role,
	}
	org, err := s.store.GetOrganizationByOwner(ctx, account.ID)
	if err == nil {
		identity.CompanyName = org.Name
		if org.BIN != nil {
			identity.BIN = *org.BIN
		}
	}
	return identity
}
