package tally

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/effect"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// CreateInput describes a new expense or income.
type CreateInput struct {
	Kind       movement.Kind
	CategoryID id.CategoryID
	ItemID     id.ItemID
	ItemIDs    []id.ItemID
	Price      decimal.Decimal
	Quantity   decimal.Decimal
	Remark     string
	AccountID  id.AccountID // ignored when Credit is set
	OccurredAt time.Time    // defaults to now
	MultiItem  bool
	Credit     bool
}

// EditInput carries the editable fields of a single-item movement.
type EditInput struct {
	Price     decimal.Decimal
	Quantity  decimal.Decimal
	Remark    string
	Credit    bool
	AccountID id.AccountID // Nil keeps the current account of a settled movement
}

// CreateMovement records an expense or income. A settled expense must be
// covered by its account's balance; a pending credit expense touches no
// balance until it is paid.
func (t *Tally) CreateMovement(ctx context.Context, in CreateInput) (_ *movement.Movement, err error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	defer t.reportShortfall(ctx, &err)

	if err := validateCreate(in); err != nil {
		return nil, err
	}
	if err := t.checkReferences(ctx, owner, in); err != nil {
		return nil, err
	}

	now := t.now()
	m := &movement.Movement{
		Entity:     types.NewEntityAt(now),
		ID:         id.NewMovementID(),
		OwnerID:    owner,
		Kind:       in.Kind,
		State:      movement.StateSettled,
		CategoryID: in.CategoryID,
		ItemID:     in.ItemID,
		MultiItem:  in.MultiItem,
		Price:      t.amount(in.Price),
		Quantity:   in.Quantity,
		Remark:     in.Remark,
		AccountID:  in.AccountID,
		OccurredAt: in.OccurredAt,
	}
	if in.MultiItem {
		m.ItemID = id.Nil
		m.ItemIDs = append([]id.ItemID(nil), in.ItemIDs...)
		if m.Quantity.IsZero() {
			m.Quantity = decimal.NewFromInt(1)
		}
		// Multi-item totals are entered directly; quantity does not scale them.
		m.Total = m.Price
	} else {
		m.Total = m.Price.Mul(m.Quantity)
	}
	if in.Credit {
		m.State = movement.StatePendingCredit
		m.AccountID = id.Nil
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = now
	}
	if err := m.Validate(); err != nil {
		return nil, ValidationError{Field: "movement", Message: err.Error()}
	}

	release, err := t.locks.acquire(ctx, m.AccountID.String())
	if err != nil {
		return nil, err
	}
	defer release()

	var guards []effect.Guard
	if m.Kind == movement.KindExpense && m.State == movement.StateSettled {
		guards = append(guards, effect.Require(m.AccountID, m.Total))
	}

	accts, err := t.loadAccounts(ctx, owner, m.Accounts(), nil)
	if err != nil {
		return nil, err
	}
	if err := t.precheck(ctx, guards, accts); err != nil {
		return nil, err
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

	t.logger.Debug("movement created",
		"movement_id", m.ID.String(),
		"code", m.Code,
		"kind", m.Kind,
		"state", m.State,
		"total", m.Total.String(),
	)
	t.plugins.EmitMovementCreated(ctx, m)

	return m, nil
}

// EditMovement changes price, quantity, remark, credit flag or account of
// a single-item expense or income. The balance change is always "old
// effect out, new effect in", issued as the fewest adjustments that net
// to it.
func (t *Tally) EditMovement(ctx context.Context, movementID id.MovementID, in EditInput) (_ *movement.Movement, err error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	defer t.reportShortfall(ctx, &err)

	releaseMovement, err := t.locks.acquire(ctx, movementID.String())
	if err != nil {
		return nil, err
	}
	defer releaseMovement()

	old, err := t.store.GetMovement(ctx, owner, movementID)
	if err != nil {
		return nil, err
	}

	switch {
	case old.IsTransfer():
		return nil, StateError{Op: "edit movement", Reason: "transfers are edited with EditTransfer"}
	case old.MultiItem:
		return nil, StateError{Op: "edit movement", Reason: "multi-item movements cannot be edited"}
	}

	if err := validateAmounts(in.Price, in.Quantity); err != nil {
		return nil, err
	}
	if in.Credit && old.Kind != movement.KindExpense {
		return nil, ValidationError{Field: "credit", Message: "only expenses can be on credit"}
	}

	tr := classify(old, in.Credit, in.AccountID)

	next := old.Clone()
	next.Price = t.amount(in.Price)
	next.Quantity = in.Quantity
	next.Total = next.Price.Mul(next.Quantity)
	next.Remark = in.Remark
	next.Touch(t.now())

	isExpense := old.Kind == movement.KindExpense
	var guards []effect.Guard

	switch tr {
	case transitionRetain:
	case transitionSettle:
		if in.AccountID.IsNil() {
			return nil, ValidationError{Field: "account_id", Message: "is required when settling a credit"}
		}
		next.State = movement.StateSettled
		next.AccountID = in.AccountID
		if isExpense {
			guards = append(guards, effect.Require(next.AccountID, next.Total))
		}
	case transitionDefer:
		next.State = movement.StatePendingCredit
		next.AccountID = id.Nil
	case transitionAdjust:
		change := effect.On(effect.Diff(old, next), old.AccountID, t.currency)
		if isExpense && change.IsNegative() {
			guards = append(guards, effect.Require(old.AccountID, change.Abs()))
		}
	case transitionMove:
		next.AccountID = in.AccountID
		if isExpense {
			guards = append(guards, effect.Require(next.AccountID, next.Total))
		}
	}

	if err := next.Validate(); err != nil {
		return nil, ValidationError{Field: "movement", Message: err.Error()}
	}

	releaseAccounts, err := t.locks.acquire(ctx, accountKeys(old.Accounts(), next.Accounts())...)
	if err != nil {
		return nil, err
	}
	defer releaseAccounts()

	accts, err := t.loadAccounts(ctx, owner, next.Accounts(), old.Accounts())
	if err != nil {
		return nil, err
	}
	if err := t.precheck(ctx, guards, accts); err != nil {
		return nil, err
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

	t.logger.Debug("movement edited",
		"movement_id", next.ID.String(),
		"transition", tr.String(),
		"state", next.State,
		"total", next.Total.String(),
	)
	t.plugins.EmitMovementEdited(ctx, old, next)

	return next, nil
}

// PayCredit settles a pending credit expense against an account. The
// account's balance is not checked: paying a debt may overdraw it.
func (t *Tally) PayCredit(ctx context.Context, movementID id.MovementID, accountID id.AccountID) (*movement.Movement, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
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
	if !old.IsCredit() {
		return nil, StateError{Op: "pay credit", Reason: "movement is not pending"}
	}
	if accountID.IsNil() {
		return nil, ValidationError{Field: "account_id", Message: "is required"}
	}

	next := old.Clone()
	next.State = movement.StateSettled
	next.AccountID = accountID
	next.Touch(t.now())

	releaseAccount, err := t.locks.acquire(ctx, accountID.String())
	if err != nil {
		return nil, err
	}
	defer releaseAccount()

	if _, err := t.loadAccounts(ctx, owner, next.Accounts(), nil); err != nil {
		return nil, err
	}

	if err := t.store.Commit(ctx, &store.Changeset{
		OwnerID: owner,
		Deltas:  effect.Diff(old, next),
		Update:  next,
		Expect:  old,
	}); err != nil {
		return nil, err
	}
	releaseAccount()
	releaseMovement()

	t.logger.Debug("credit paid",
		"movement_id", next.ID.String(),
		"account_id", accountID.String(),
		"total", next.Total.String(),
	)
	t.plugins.EmitCreditPaid(ctx, next)

	return next, nil
}

// DeleteMovement removes a movement and reverses whatever effect it was
// contributing. Pending credits were never applied, so nothing is reversed.
func (t *Tally) DeleteMovement(ctx context.Context, movementID id.MovementID) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}

	releaseMovement, err := t.locks.acquire(ctx, movementID.String())
	if err != nil {
		return err
	}
	defer releaseMovement()

	old, err := t.store.GetMovement(ctx, owner, movementID)
	if err != nil {
		return err
	}

	releaseAccounts, err := t.locks.acquire(ctx, accountKeys(old.Accounts())...)
	if err != nil {
		return err
	}
	defer releaseAccounts()

	accts, err := t.loadAccounts(ctx, owner, nil, old.Accounts())
	if err != nil {
		return err
	}

	if err := t.store.Commit(ctx, &store.Changeset{
		OwnerID: owner,
		Deltas:  present(effect.Diff(old, nil), accts),
		Delete:  old.ID,
		Expect:  old,
	}); err != nil {
		return err
	}
	releaseAccounts()
	releaseMovement()

	t.logger.Debug("movement deleted",
		"movement_id", old.ID.String(),
		"kind", old.Kind,
		"state", old.State,
	)
	t.plugins.EmitMovementDeleted(ctx, old)

	return nil
}

// GetMovement retrieves a movement by ID.
func (t *Tally) GetMovement(ctx context.Context, movementID id.MovementID) (*movement.Movement, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.GetMovement(ctx, owner, movementID)
}

// ListMovements returns the caller's movements, newest first.
func (t *Tally) ListMovements(ctx context.Context, opts movement.ListOpts) ([]*movement.Movement, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListMovements(ctx, owner, opts)
}

// ──────────────────────────────────────────────────
// Helpers
// ──────────────────────────────────────────────────

func validateCreate(in CreateInput) error {
	switch in.Kind {
	case movement.KindExpense, movement.KindIncome:
	case movement.KindTransfer:
		return ValidationError{Field: "kind", Message: "transfers are created with CreateTransfer"}
	default:
		return ValidationError{Field: "kind", Message: "must be expense or income"}
	}

	if in.Credit && in.Kind != movement.KindExpense {
		return ValidationError{Field: "credit", Message: "only expenses can be on credit"}
	}
	if !in.Credit && in.AccountID.IsNil() {
		return ValidationError{Field: "account_id", Message: "is required unless on credit"}
	}

	if in.MultiItem {
		switch {
		case in.Kind == movement.KindIncome:
			return ValidationError{Field: "multi_item", Message: "income cannot be multi-item"}
		case len(in.ItemIDs) == 0:
			return ValidationError{Field: "item_ids", Message: "at least one item is required"}
		case !in.Price.IsPositive():
			return ValidationError{Field: "price", Message: "must be positive"}
		case in.Quantity.IsNegative():
			return ValidationError{Field: "quantity", Message: "must not be negative"}
		}
		return nil
	}

	if in.ItemID.IsNil() {
		return ValidationError{Field: "item_id", Message: "is required"}
	}
	return validateAmounts(in.Price, in.Quantity)
}

func validateAmounts(price, quantity decimal.Decimal) error {
	if price.IsNegative() {
		return ValidationError{Field: "price", Message: "must not be negative"}
	}
	if !quantity.IsPositive() {
		return ValidationError{Field: "quantity", Message: "must be positive"}
	}
	return nil
}

// checkReferences confirms the category and items exist for the owner.
func (t *Tally) checkReferences(ctx context.Context, owner string, in CreateInput) error {
	if !in.CategoryID.IsNil() {
		if _, err := t.store.GetCategory(ctx, owner, in.CategoryID); err != nil {
			return err
		}
	}

	items := in.ItemIDs
	if !in.MultiItem {
		items = []id.ItemID{in.ItemID}
	}
	for _, itemID := range items {
		if _, err := t.store.GetItem(ctx, owner, itemID); err != nil {
			return err
		}
	}
	return nil
}

// loadAccounts reads the accounts an operation touches. Every required
// account must exist. Optional accounts are those an existing movement
// referenced; they may have been deleted since, and are then left out.
func (t *Tally) loadAccounts(ctx context.Context, owner string, required, optional []id.AccountID) (map[id.AccountID]*account.Account, error) {
	out := make(map[id.AccountID]*account.Account, len(required)+len(optional))

	for _, accountID := range required {
		if _, ok := out[accountID]; ok {
			continue
		}
		a, err := t.store.GetAccount(ctx, owner, accountID)
		if err != nil {
			return nil, err
		}
		out[accountID] = a
	}

	for _, accountID := range optional {
		if _, ok := out[accountID]; ok {
			continue
		}
		a, err := t.store.GetAccount(ctx, owner, accountID)
		switch {
		case errors.Is(err, ErrNotFound):
			continue
		case err != nil:
			return nil, err
		}
		out[accountID] = a
	}

	return out, nil
}

// precheck evaluates guards against freshly read balances before anything
// is written.
func (t *Tally) precheck(ctx context.Context, guards []effect.Guard, accts map[id.AccountID]*account.Account) error {
	for _, g := range guards {
		a, ok := accts[g.AccountID]
		if !ok {
			return ErrAccountNotFound
		}
		if err := CheckGuard(a, g); err != nil {
			return err
		}
	}
	return nil
}

// reportShortfall emits OnInsufficientBalance when *errp carries a failed
// guard. It is deferred ahead of any lock acquisition so hooks run after
// the locks are released.
func (t *Tally) reportShortfall(ctx context.Context, errp *error) {
	var ib *InsufficientBalanceError
	if errors.As(*errp, &ib) {
		t.plugins.EmitInsufficientBalance(ctx, ib.AccountID.String(), ib.Available, ib.Required)
	}
}

// present drops deltas aimed at accounts that no longer exist.
func present(ds []effect.Delta, accts map[id.AccountID]*account.Account) []effect.Delta {
	out := ds[:0:0]
	for _, d := range ds {
		if _, ok := accts[d.AccountID]; ok {
			out = append(out, d)
		}
	}
	return out
}

func accountKeys(sets ...[]id.AccountID) []string {
	var keys []string
	for _, set := range sets {
		for _, a := range set {
			keys = append(keys, a.String())
		}
	}
	return keys
}

func (t *Tally) amount(d decimal.Decimal) types.Money {
	return types.New(d, t.currency)
}
