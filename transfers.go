package tally

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/effect"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// TransferInput describes money moved between two of the caller's accounts.
type TransferInput struct {
	FromAccountID id.AccountID
	ToAccountID   id.AccountID
	Amount        decimal.Decimal
	Remark        string    // defaults to "<from> → <to>"
	OccurredAt    time.Time // defaults to now
}

func (in TransferInput) validate() error {
	switch {
	case in.FromAccountID.IsNil():
		return ValidationError{Field: "from_account_id", Message: "is required"}
	case in.ToAccountID.IsNil():
		return ValidationError{Field: "to_account_id", Message: "is required"}
	case in.FromAccountID == in.ToAccountID:
		return ValidationError{Field: "to_account_id", Message: "must differ from the source account"}
	case !in.Amount.IsPositive():
		return ValidationError{Field: "amount", Message: "must be positive"}
	}
	return nil
}

// CreateTransfer debits the source and credits the destination by the same
// amount. The source must cover the amount.
func (t *Tally) CreateTransfer(ctx context.Context, in TransferInput) (_ *movement.Movement, err error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	defer t.reportShortfall(ctx, &err)
	if err := in.validate(); err != nil {
		return nil, err
	}

	release, err := t.locks.acquire(ctx, in.FromAccountID.String(), in.ToAccountID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	accts, err := t.loadAccounts(ctx, owner, []id.AccountID{in.FromAccountID, in.ToAccountID}, nil)
	if err != nil {
		return nil, err
	}

	total := t.amount(in.Amount)
	guards := []effect.Guard{effect.Require(in.FromAccountID, total)}
	if err := t.precheck(ctx, guards, accts); err != nil {
		return nil, err
	}

	now := t.now()
	m := &movement.Movement{
		Entity:        types.NewEntityAt(now),
		ID:            id.NewMovementID(),
		OwnerID:       owner,
		Kind:          movement.KindTransfer,
		State:         movement.StateSettled,
		Price:         total,
		Quantity:      decimal.NewFromInt(1),
		Total:         total,
		Remark:        transferRemark(in.Remark, accts[in.FromAccountID], accts[in.ToAccountID]),
		FromAccountID: in.FromAccountID,
		ToAccountID:   in.ToAccountID,
		OccurredAt:    in.OccurredAt,
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = now
	}

	if m.Code, err = t.codes.Next(ctx, owner, now); err != nil {
		return nil, err
	}

	if err := t.store.Commit(ctx, &store.Changeset{
		OwnerID: owner,
		Guards:  guards,
		Deltas:  effect.Of(m),
		Insert:  m,
	}); err != nil {
		return nil, err
	}

	release()

	t.logger.Debug("transfer created",
		"movement_id", m.ID.String(),
		"code", m.Code,
		"from", m.FromAccountID.String(),
		"to", m.ToAccountID.String(),
		"amount", m.Total.String(),
	)
	t.plugins.EmitTransferCreated(ctx, m)

	return m, nil
}

// EditTransfer re-points or re-sizes a transfer. The new source must cover
// the new amount once the old transfer's effect on it is reversed.
func (t *Tally) EditTransfer(ctx context.Context, movementID id.MovementID, in TransferInput) (_ *movement.Movement, err error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	defer t.reportShortfall(ctx, &err)
	if err := in.validate(); err != nil {
		return nil, err
	}

	releaseMovement, err := t.locks.acquire(ctx, movementID.String())
	if err != nil {
		return nil, err
	}
	defer releaseMovement()

	old, err := t.store.GetMovement(ctx, owner, movementID)
	if err != nil {
		return nil, err
	}
	if !old.IsTransfer() {
		return nil, ErrMovementNotFound
	}

	releaseAccounts, err := t.locks.acquire(ctx,
		accountKeys(old.Accounts(), []id.AccountID{in.FromAccountID, in.ToAccountID})...)
	if err != nil {
		return nil, err
	}
	defer releaseAccounts()

	accts, err := t.loadAccounts(ctx, owner,
		[]id.AccountID{in.FromAccountID, in.ToAccountID}, old.Accounts())
	if err != nil {
		return nil, err
	}

	total := t.amount(in.Amount)
	guards := []effect.Guard{{
		AccountID: in.FromAccountID,
		Need:      total,
		Headroom:  effect.On(effect.Reverse(effect.Of(old)), in.FromAccountID, t.currency),
	}}
	if err := t.precheck(ctx, guards, accts); err != nil {
		return nil, err
	}

	next := old.Clone()
	next.FromAccountID = in.FromAccountID
	next.ToAccountID = in.ToAccountID
	next.Price = total
	next.Total = total
	next.Remark = transferRemark(in.Remark, accts[in.FromAccountID], accts[in.ToAccountID])
	if !in.OccurredAt.IsZero() {
		next.OccurredAt = in.OccurredAt
	}
	next.Touch(t.now())

	if err := next.Validate(); err != nil {
		return nil, ValidationError{Field: "movement", Message: err.Error()}
	}

	if err := t.store.Commit(ctx, &store.Changeset{
		OwnerID: owner,
		Guards:  guards,
		Deltas:  present(effect.Diff(old, next), accts),
		Update:  next,
		Expect:  old,
	}); err != nil {
		return nil, err
	}
	releaseAccounts()
	releaseMovement()

	t.logger.Debug("transfer edited",
		"movement_id", next.ID.String(),
		"from", next.FromAccountID.String(),
		"to", next.ToAccountID.String(),
		"amount", next.Total.String(),
	)
	t.plugins.EmitTransferEdited(ctx, old, next)

	return next, nil
}

func transferRemark(remark string, from, to *account.Account) string {
	if remark != "" {
		return remark
	}
	return from.Name + " → " + to.Name
}
