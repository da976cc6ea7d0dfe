// Package storetest is a conformance suite every store backend runs from
// its own tests.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/effect"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

const currency = "INR"

var base = time.Date(2026, 10, 16, 14, 5, 0, 0, time.UTC)

func inr(v int64) types.Money { return types.FromInt(v, currency) }

// Run exercises s. Every subtest works under its own owner, so a shared
// database needs no cleanup between runs.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, s.Migrate(ctx))
	require.NoError(t, s.Migrate(ctx), "migrate must be repeatable")
	require.NoError(t, s.Ping(ctx))

	t.Run("Accounts", func(t *testing.T) { testAccounts(t, s) })
	t.Run("Catalog", func(t *testing.T) { testCatalog(t, s) })
	t.Run("CommitInsert", func(t *testing.T) { testCommitInsert(t, s) })
	t.Run("CommitGuard", func(t *testing.T) { testCommitGuard(t, s) })
	t.Run("CommitMissingAccount", func(t *testing.T) { testCommitMissingAccount(t, s) })
	t.Run("CommitUpdateDelete", func(t *testing.T) { testCommitUpdateDelete(t, s) })
	t.Run("CommitStaleRevision", func(t *testing.T) { testCommitStaleRevision(t, s) })
	t.Run("ListMovements", func(t *testing.T) { testListMovements(t, s) })
	t.Run("MovementCodes", func(t *testing.T) { testMovementCodes(t, s) })
}

func newOwner() string { return "owner-" + id.NewMovementID().String() }

func newAccount(t *testing.T, s store.Store, owner, name string, balance int64) *account.Account {
	t.Helper()
	a := &account.Account{
		Entity:         types.NewEntityAt(base),
		ID:             id.NewAccountID(),
		OwnerID:        owner,
		Kind:           account.KindBank,
		Name:           name,
		BankName:       "HDFC",
		AccountNumber:  "0042",
		OpeningBalance: inr(balance),
		Balance:        inr(balance),
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))
	return a
}

func balanceOf(t *testing.T, s store.Store, owner string, accountID id.AccountID) types.Money {
	t.Helper()
	a, err := s.GetAccount(context.Background(), owner, accountID)
	require.NoError(t, err)
	return a.Balance
}

func assertMoney(t *testing.T, want, got types.Money, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, want.Equal(got), append([]any{"want %s, got %s", want, got}, msgAndArgs...)...)
}

func newExpense(owner string, acct id.AccountID, total int64, at time.Time) *movement.Movement {
	return &movement.Movement{
		Entity:     types.NewEntityAt(at),
		ID:         id.NewMovementID(),
		OwnerID:    owner,
		Code:       at.Format("02012006:15:04") + "01",
		Kind:       movement.KindExpense,
		State:      movement.StateSettled,
		ItemID:     id.NewItemID(),
		Price:      inr(total),
		Quantity:   decimal.NewFromInt(1),
		Total:      inr(total),
		Remark:     "groceries",
		AccountID:  acct,
		OccurredAt: at,
	}
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()

	a := newAccount(t, s, owner, "Wallet", 500)

	got, err := s.GetAccount(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, owner, got.OwnerID)
	assert.Equal(t, account.KindBank, got.Kind)
	assert.Equal(t, "Wallet", got.Name)
	assert.Equal(t, "HDFC", got.BankName)
	assert.Equal(t, "0042", got.AccountNumber)
	assertMoney(t, inr(500), got.OpeningBalance)
	assertMoney(t, inr(500), got.Balance)
	assert.True(t, got.CreatedAt.Equal(base))

	_, err = s.GetAccount(ctx, newOwner(), a.ID)
	assert.ErrorIs(t, err, tally.ErrNotFound, "other owners cannot see the account")

	assert.ErrorIs(t, s.CreateAccount(ctx, a), tally.ErrAlreadyExists)

	got.Name = "Pocket"
	got.Kind = account.KindCash
	got.Balance = inr(99999)
	got.Touch(base.Add(time.Hour))
	require.NoError(t, s.UpdateAccount(ctx, got))

	got, err = s.GetAccount(ctx, owner, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pocket", got.Name)
	assert.Equal(t, account.KindCash, got.Kind)
	assertMoney(t, inr(500), got.Balance, "update must not overwrite the balance")

	require.NoError(t, s.AdjustBalance(ctx, owner, a.ID, types.MustParse("-120.75", currency)))
	assertMoney(t, types.MustParse("379.25", currency), balanceOf(t, s, owner, a.ID))

	b := newAccount(t, s, owner, "Savings", 0)
	list, err := s.ListAccounts(ctx, owner)
	require.NoError(t, err)
	require.Len(t, list, 2)

	require.NoError(t, s.DeleteAccount(ctx, owner, b.ID))
	_, err = s.GetAccount(ctx, owner, b.ID)
	assert.ErrorIs(t, err, tally.ErrNotFound)
	assert.ErrorIs(t, s.DeleteAccount(ctx, owner, b.ID), tally.ErrNotFound)
	assert.ErrorIs(t, s.AdjustBalance(ctx, owner, b.ID, inr(1)), tally.ErrNotFound)
}

func testCatalog(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()

	food := &catalog.Category{Entity: types.NewEntityAt(base), ID: id.NewCategoryID(), OwnerID: owner, Name: "Food"}
	bills := &catalog.Category{Entity: types.NewEntityAt(base), ID: id.NewCategoryID(), OwnerID: owner, Name: "Bills"}
	require.NoError(t, s.CreateCategory(ctx, food))
	require.NoError(t, s.CreateCategory(ctx, bills))

	got, err := s.GetCategory(ctx, owner, food.ID)
	require.NoError(t, err)
	assert.Equal(t, "Food", got.Name)

	_, err = s.GetCategory(ctx, newOwner(), food.ID)
	assert.ErrorIs(t, err, tally.ErrNotFound)

	cats, err := s.ListCategories(ctx, owner)
	require.NoError(t, err)
	require.Len(t, cats, 2)
	assert.Equal(t, "Bills", cats[0].Name)

	rice := &catalog.Item{Entity: types.NewEntityAt(base), ID: id.NewItemID(), OwnerID: owner, CategoryID: food.ID, Name: "Rice", Unit: "kg"}
	power := &catalog.Item{Entity: types.NewEntityAt(base), ID: id.NewItemID(), OwnerID: owner, CategoryID: bills.ID, Name: "Electricity"}
	require.NoError(t, s.CreateItem(ctx, rice))
	require.NoError(t, s.CreateItem(ctx, power))

	it, err := s.GetItem(ctx, owner, rice.ID)
	require.NoError(t, err)
	assert.Equal(t, food.ID, it.CategoryID)
	assert.Equal(t, "kg", it.Unit)

	_, err = s.GetItem(ctx, owner, id.NewItemID())
	assert.ErrorIs(t, err, tally.ErrNotFound)

	all, err := s.ListItems(ctx, owner, id.Nil)
	require.NoError(t, err)
	assert.Len(t, all, 2)

	foodItems, err := s.ListItems(ctx, owner, food.ID)
	require.NoError(t, err)
	require.Len(t, foodItems, 1)
	assert.Equal(t, "Rice", foodItems[0].Name)
}

func testCommitInsert(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()
	a := newAccount(t, s, owner, "A", 500)
	b := newAccount(t, s, owner, "B", 100)

	m := &movement.Movement{
		Entity:        types.NewEntityAt(base),
		ID:            id.NewMovementID(),
		OwnerID:       owner,
		Code:          "16102026:14:0501",
		Kind:          movement.KindTransfer,
		State:         movement.StateSettled,
		Price:         types.MustParse("150.50", currency),
		Quantity:      decimal.NewFromInt(1),
		Total:         types.MustParse("150.50", currency),
		Remark:        "A → B",
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		OccurredAt:    base,
	}

	require.NoError(t, s.Commit(ctx, &store.Changeset{
		OwnerID: owner,
		Guards:  []effect.Guard{effect.Require(a.ID, m.Total)},
		Deltas:  effect.Of(m),
		Insert:  m,
	}))

	assertMoney(t, types.MustParse("349.50", currency), balanceOf(t, s, owner, a.ID))
	assertMoney(t, types.MustParse("250.50", currency), balanceOf(t, s, owner, b.ID))

	got, err := s.GetMovement(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, m.Code, got.Code)
	assert.Equal(t, movement.KindTransfer, got.Kind)
	assert.Equal(t, movement.StateSettled, got.State)
	assert.Equal(t, a.ID, got.FromAccountID)
	assert.Equal(t, b.ID, got.ToAccountID)
	assert.True(t, got.AccountID.IsNil())
	assert.True(t, got.CategoryID.IsNil())
	assertMoney(t, m.Total, got.Total)
	assertMoney(t, m.Price, got.Price)
	assert.True(t, m.Quantity.Equal(got.Quantity))
	assert.Equal(t, "A → B", got.Remark)
	assert.True(t, got.OccurredAt.Equal(base))

	multi := &movement.Movement{
		Entity:     types.NewEntityAt(base),
		ID:         id.NewMovementID(),
		OwnerID:    owner,
		Code:       "16102026:14:0502",
		Kind:       movement.KindExpense,
		State:      movement.StatePendingCredit,
		CategoryID: id.NewCategoryID(),
		ItemIDs:    []id.ItemID{id.NewItemID(), id.NewItemID()},
		MultiItem:  true,
		Price:      inr(80),
		Quantity:   decimal.NewFromInt(1),
		Total:      inr(80),
		OccurredAt: base,
	}
	require.NoError(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Insert: multi}))

	got, err = s.GetMovement(ctx, owner, multi.ID)
	require.NoError(t, err)
	assert.True(t, got.MultiItem)
	assert.Equal(t, movement.StatePendingCredit, got.State)
	assert.Equal(t, multi.CategoryID, got.CategoryID)
	assert.Equal(t, multi.ItemIDs, got.ItemIDs)
	assert.True(t, got.ItemID.IsNil())

	_, err = s.GetMovement(ctx, newOwner(), m.ID)
	assert.ErrorIs(t, err, tally.ErrNotFound)
}

func testCommitGuard(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()
	a := newAccount(t, s, owner, "A", 100)

	m := newExpense(owner, a.ID, 150, base)
	err := s.Commit(ctx, &store.Changeset{
		OwnerID: owner,
		Guards:  []effect.Guard{effect.Require(a.ID, m.Total)},
		Deltas:  effect.Of(m),
		Insert:  m,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, tally.ErrInsufficientBalance)

	assertMoney(t, inr(100), balanceOf(t, s, owner, a.ID))
	_, err = s.GetMovement(ctx, owner, m.ID)
	assert.ErrorIs(t, err, tally.ErrNotFound)

	// Headroom counts toward the guard.
	g := effect.Guard{AccountID: a.ID, Need: inr(150), Headroom: inr(50)}
	require.NoError(t, s.Commit(ctx, &store.Changeset{
		OwnerID: owner,
		Guards:  []effect.Guard{g},
		Deltas:  effect.Of(m),
		Insert:  m,
	}))
	assertMoney(t, inr(-50), balanceOf(t, s, owner, a.ID))
}

func testCommitMissingAccount(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()
	a := newAccount(t, s, owner, "A", 100)

	m := newExpense(owner, a.ID, 10, base)
	err := s.Commit(ctx, &store.Changeset{
		OwnerID: owner,
		Deltas: effect.Merge([]effect.Delta{
			{AccountID: a.ID, Amount: inr(-10)},
			{AccountID: id.NewAccountID(), Amount: inr(10)},
		}),
		Insert: m,
	})
	assert.ErrorIs(t, err, tally.ErrNotFound)

	assertMoney(t, inr(100), balanceOf(t, s, owner, a.ID))
	_, err = s.GetMovement(ctx, owner, m.ID)
	assert.ErrorIs(t, err, tally.ErrNotFound)
}

func testCommitUpdateDelete(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()
	a := newAccount(t, s, owner, "A", 500)

	m := newExpense(owner, a.ID, 200, base)
	require.NoError(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Deltas: effect.Of(m), Insert: m}))
	assertMoney(t, inr(300), balanceOf(t, s, owner, a.ID))

	next := m.Clone()
	next.State = movement.StatePendingCredit
	next.AccountID = id.Nil
	next.Price = inr(250)
	next.Total = inr(250)
	next.Touch(base.Add(time.Minute))

	require.NoError(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Deltas: effect.Diff(m, next), Update: next}))
	assertMoney(t, inr(500), balanceOf(t, s, owner, a.ID))

	got, err := s.GetMovement(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StatePendingCredit, got.State)
	assert.True(t, got.AccountID.IsNil())
	assertMoney(t, inr(250), got.Total)
	assert.True(t, got.UpdatedAt.Equal(base.Add(time.Minute)))

	missing := newExpense(owner, a.ID, 1, base)
	assert.ErrorIs(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Update: missing}), tally.ErrNotFound)

	require.NoError(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Delete: m.ID}))
	_, err = s.GetMovement(ctx, owner, m.ID)
	assert.ErrorIs(t, err, tally.ErrNotFound)

	assert.ErrorIs(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Delete: m.ID}), tally.ErrNotFound)
}

func testCommitStaleRevision(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()
	a := newAccount(t, s, owner, "A", 500)

	m := newExpense(owner, a.ID, 200, base)
	require.NoError(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Deltas: effect.Of(m), Insert: m}))

	read, err := s.GetMovement(ctx, owner, m.ID)
	require.NoError(t, err)

	first := read.Clone()
	first.Price = inr(250)
	first.Total = inr(250)
	first.Touch(base.Add(time.Minute))
	require.NoError(t, s.Commit(ctx, &store.Changeset{
		OwnerID: owner, Deltas: effect.Diff(read, first), Update: first, Expect: read,
	}))
	assertMoney(t, inr(250), balanceOf(t, s, owner, a.ID))

	// A second writer still holding the first read must not apply its diff.
	second := read.Clone()
	second.State = movement.StatePendingCredit
	second.AccountID = id.Nil
	second.Touch(base.Add(time.Minute))
	err = s.Commit(ctx, &store.Changeset{
		OwnerID: owner, Deltas: effect.Diff(read, second), Update: second, Expect: read,
	})
	assert.ErrorIs(t, err, tally.ErrConflict)
	assert.True(t, tally.IsRetryable(err))
	assertMoney(t, inr(250), balanceOf(t, s, owner, a.ID))

	got, err := s.GetMovement(ctx, owner, m.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StateSettled, got.State)
	assertMoney(t, inr(250), got.Total)

	err = s.Commit(ctx, &store.Changeset{
		OwnerID: owner, Deltas: effect.Diff(read, nil), Delete: m.ID, Expect: read,
	})
	assert.ErrorIs(t, err, tally.ErrConflict)
	assertMoney(t, inr(250), balanceOf(t, s, owner, a.ID))

	require.NoError(t, s.Commit(ctx, &store.Changeset{
		OwnerID: owner, Deltas: effect.Diff(got, nil), Delete: m.ID, Expect: got,
	}))
	assertMoney(t, inr(500), balanceOf(t, s, owner, a.ID))
}

func testListMovements(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()
	a := newAccount(t, s, owner, "A", 10000)
	b := newAccount(t, s, owner, "B", 0)
	cat := id.NewCategoryID()

	var ids []id.MovementID
	for i := range 5 {
		m := newExpense(owner, a.ID, int64(10*(i+1)), base.Add(time.Duration(i)*time.Hour))
		if i%2 == 0 {
			m.CategoryID = cat
		}
		require.NoError(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Deltas: effect.Of(m), Insert: m}))
		ids = append(ids, m.ID)
	}

	income := &movement.Movement{
		Entity: types.NewEntityAt(base), ID: id.NewMovementID(), OwnerID: owner,
		Code: "x", Kind: movement.KindIncome, State: movement.StateSettled,
		ItemID: id.NewItemID(), Price: inr(5), Quantity: decimal.NewFromInt(1), Total: inr(5),
		AccountID: b.ID, OccurredAt: base.Add(-time.Hour),
	}
	require.NoError(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Deltas: effect.Of(income), Insert: income}))

	all, err := s.ListMovements(ctx, owner, movement.ListOpts{})
	require.NoError(t, err)
	require.Len(t, all, 6)
	assert.Equal(t, ids[4], all[0].ID, "newest first")
	assert.Equal(t, income.ID, all[5].ID)

	expenses, err := s.ListMovements(ctx, owner, movement.ListOpts{Kind: movement.KindExpense})
	require.NoError(t, err)
	assert.Len(t, expenses, 5)

	onB, err := s.ListMovements(ctx, owner, movement.ListOpts{AccountID: b.ID})
	require.NoError(t, err)
	require.Len(t, onB, 1)
	assert.Equal(t, income.ID, onB[0].ID)

	inCat, err := s.ListMovements(ctx, owner, movement.ListOpts{CategoryID: cat})
	require.NoError(t, err)
	assert.Len(t, inCat, 3)

	window, err := s.ListMovements(ctx, owner, movement.ListOpts{
		Start: base.Add(time.Hour),
		End:   base.Add(3 * time.Hour),
	})
	require.NoError(t, err)
	require.Len(t, window, 2)
	assert.Equal(t, ids[2], window[0].ID)
	assert.Equal(t, ids[1], window[1].ID)

	page, err := s.ListMovements(ctx, owner, movement.ListOpts{Kind: movement.KindExpense, Limit: 2, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[3], page[0].ID)
	assert.Equal(t, ids[2], page[1].ID)

	none, err := s.ListMovements(ctx, newOwner(), movement.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testMovementCodes(t *testing.T, s store.Store) {
	ctx := context.Background()
	owner := newOwner()
	a := newAccount(t, s, owner, "A", 1000)

	for i, c := range []string{"16102026:14:0501", "16102026:14:0502", "16102026:14:0601"} {
		m := newExpense(owner, a.ID, 1, base.Add(time.Duration(i)*time.Second))
		m.Code = c
		require.NoError(t, s.Commit(ctx, &store.Changeset{OwnerID: owner, Deltas: effect.Of(m), Insert: m}))
	}

	codes, err := s.MovementCodes(ctx, owner, "16102026:14:05")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"16102026:14:0501", "16102026:14:0502"}, codes)

	codes, err = s.MovementCodes(ctx, newOwner(), "16102026:14:05")
	require.NoError(t, err)
	assert.Empty(t, codes)
}
