package account

import (
	"context"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Store persists accounts. Every lookup is scoped to an owner; an account
// belonging to someone else is reported as not found.
type Store interface {
	CreateAccount(ctx context.Context, a *Account) error
	GetAccount(ctx context.Context, ownerID string, accountID id.AccountID) (*Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]*Account, error)

	// UpdateAccount rewrites the display fields (kind, name, bank details).
	// Balance and OpeningBalance are left untouched.
	UpdateAccount(ctx context.Context, a *Account) error

	// AdjustBalance atomically adds delta to the stored balance.
	AdjustBalance(ctx context.Context, ownerID string, accountID id.AccountID, delta types.Money) error

	DeleteAccount(ctx context.Context, ownerID string, accountID id.AccountID) error
}
