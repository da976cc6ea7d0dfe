package tally

import (
	"context"
	"strings"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// CreateAccount opens an account. Its balance starts at OpeningBalance.
func (t *Tally) CreateAccount(ctx context.Context, a *account.Account) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}

	if err := t.validateAccount(a); err != nil {
		return err
	}

	if a.ID.IsNil() {
		a.ID = id.NewAccountID()
	}
	a.OwnerID = owner
	a.Entity = types.NewEntityAt(t.now())
	a.OpeningBalance = t.money(a.OpeningBalance)
	a.Balance = a.OpeningBalance

	if err := t.store.CreateAccount(ctx, a); err != nil {
		return err
	}

	t.logger.Debug("account created",
		"account_id", a.ID.String(),
		"kind", a.Kind,
		"opening_balance", a.OpeningBalance.String(),
	)
	t.plugins.EmitAccountCreated(ctx, a)

	return nil
}

// GetAccount retrieves an account by ID.
func (t *Tally) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.GetAccount(ctx, owner, accountID)
}

// ListAccounts returns the caller's accounts.
func (t *Tally) ListAccounts(ctx context.Context) ([]*account.Account, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListAccounts(ctx, owner)
}

// UpdateAccount rewrites an account's display fields. Balances are owned
// by the movement lifecycle and are never overwritten here.
func (t *Tally) UpdateAccount(ctx context.Context, a *account.Account) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}

	if err := t.validateAccount(a); err != nil {
		return err
	}

	release, err := t.locks.acquire(ctx, a.ID.String())
	if err != nil {
		return err
	}
	defer release()

	current, err := t.store.GetAccount(ctx, owner, a.ID)
	if err != nil {
		return err
	}

	current.Kind = a.Kind
	current.Name = a.Name
	current.BankName = a.BankName
	current.AccountNumber = a.AccountNumber
	current.Touch(t.now())

	if err := t.store.UpdateAccount(ctx, current); err != nil {
		return err
	}

	*a = *current
	return nil
}

// DeleteAccount removes an account. Movements that reference it are kept
// as they are: their historical record is not rewritten.
func (t *Tally) DeleteAccount(ctx context.Context, accountID id.AccountID) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}

	release, err := t.locks.acquire(ctx, accountID.String())
	if err != nil {
		return err
	}
	defer release()

	a, err := t.store.GetAccount(ctx, owner, accountID)
	if err != nil {
		return err
	}

	if err := t.store.DeleteAccount(ctx, owner, accountID); err != nil {
		return err
	}

	release()

	t.logger.Debug("account deleted", "account_id", accountID.String())
	t.plugins.EmitAccountDeleted(ctx, a)

	return nil
}

func (t *Tally) validateAccount(a *account.Account) error {
	switch {
	case a == nil:
		return ValidationError{Field: "account", Message: "is required"}
	case !a.Kind.Valid():
		return ValidationError{Field: "kind", Message: "must be cash or bank"}
	case strings.TrimSpace(a.Name) == "":
		return ValidationError{Field: "name", Message: "is required"}
	case a.OpeningBalance.Currency != "" && a.OpeningBalance.Currency != t.currency:
		return ValidationError{Field: "opening_balance", Message: "currency must be " + t.currency}
	}
	return nil
}

// money rebinds an amount to the engine currency.
func (t *Tally) money(m types.Money) types.Money {
	return types.New(m.Amount, t.currency)
}
