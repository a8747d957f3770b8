package handlers

import (
	"context"

	"tendermarket/db"
)

type StorageInterface interface {
	GetAccountByID(ctx context.Context, id string) (*db.Account, error)
	ListAccounts(ctx context.Context) ([]db.Account, error)
	SetAccountBlocked(ctx context.Context, id string, blocked bool) error
	ChangeAccountRole(ctx context.Context, actorID, targetID, newRole string) error
	UpdateProfile(ctx context.Context, accountID, name string, iin *string, orgName string, bin *string) error
	GetOrganizationByOwner(ctx context.Context, ownerID string) (*db.Organization, error)

	CreateTender(ctx context.Context, tender *db.Tender) error
	GetTender(ctx context.Context, tenderID int) (*db.Tender, error)
	UpdateTender(ctx context.Context, tender *db.Tender) error
	GetTenders(ctx context.Context, limit, offset int) ([]db.Tender, error)
	SelectWinner(ctx context.Context, tenderID, bidID int) error

	CreateBid(ctx context.Context, bid *db.Bid) error
	GetBid(ctx context.Context, bidID int) (*db.Bid, error)
	GetBidsForTender(ctx context.Context, tenderID int) ([]db.Bid, error)
	GetUserBids(ctx context.Context, userID string, limit, offset int) ([]db.Bid, error)
	MarkBidsSeenByAdmin(ctx context.Context) error
	MarkWinnerBidsSeen(ctx context.Context, userID string) error

	GetAuditEntries(ctx context.Context, limit, offset int) ([]db.AuditLogEntry, error)
}
