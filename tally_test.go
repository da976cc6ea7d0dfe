package tally_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/store/memory"
	"github.com/xraph/tally/types"
)

var fixedNow = time.Date(2026, 10, 16, 14, 5, 0, 0, time.UTC)

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func inr(v int64) types.Money { return types.FromInt(v, "INR") }

type harness struct {
	t      *testing.T
	store  store.Store
	tally  *tally.Tally
	ctx    context.Context
	cat    *catalog.Category
	item   *catalog.Item
	events *eventLog
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessOn(t, memory.New())
}

func newHarnessOn(t *testing.T, s store.Store) *harness {
	t.Helper()

	events := &eventLog{}
	tl := tally.New(s, engineOpts(tally.WithPlugin(events))...)
	ctx := tally.WithOwner(context.Background(), "user-1")
	require.NoError(t, tl.Start(ctx))
	t.Cleanup(func() { _ = tl.Stop() })

	h := &harness{t: t, store: s, tally: tl, ctx: ctx, events: events}

	h.cat = &catalog.Category{Name: "Groceries"}
	require.NoError(t, tl.CreateCategory(ctx, h.cat))
	h.item = &catalog.Item{CategoryID: h.cat.ID, Name: "Rice", Unit: "kg"}
	require.NoError(t, tl.CreateItem(ctx, h.item))

	return h
}

func engineOpts(extra ...tally.Option) []tally.Option {
	return append([]tally.Option{
		tally.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		tally.WithClock(func() time.Time { return fixedNow }),
		tally.WithCurrency("inr"),
	}, extra...)
}

// peer returns a second engine over the harness store, as another process
// sharing the database would be.
func (h *harness) peer() *tally.Tally {
	return tally.New(h.store, engineOpts()...)
}

func (h *harness) account(name string, opening int64) *account.Account {
	h.t.Helper()
	a := &account.Account{Kind: account.KindBank, Name: name, OpeningBalance: inr(opening)}
	require.NoError(h.t, h.tally.CreateAccount(h.ctx, a))
	return a
}

func (h *harness) balance(a *account.Account) types.Money {
	h.t.Helper()
	got, err := h.tally.GetAccount(h.ctx, a.ID)
	require.NoError(h.t, err)
	return got.Balance
}

func (h *harness) assertBalance(a *account.Account, want int64) {
	h.t.Helper()
	got := h.balance(a)
	assert.True(h.t, got.Equal(inr(want)), "%s: balance %s, want %s", a.Name, got, inr(want))
}

func (h *harness) expense(a *account.Account, total int64) (*movement.Movement, error) {
	in := tally.CreateInput{
		Kind:       movement.KindExpense,
		CategoryID: h.cat.ID,
		ItemID:     h.item.ID,
		Price:      dec(total),
		Quantity:   dec(1),
	}
	if a == nil {
		in.Credit = true
	} else {
		in.AccountID = a.ID
	}
	return h.tally.CreateMovement(h.ctx, in)
}

func (h *harness) income(a *account.Account, total int64) *movement.Movement {
	h.t.Helper()
	m, err := h.tally.CreateMovement(h.ctx, tally.CreateInput{
		Kind:      movement.KindIncome,
		ItemID:    h.item.ID,
		Price:     dec(total),
		Quantity:  dec(1),
		AccountID: a.ID,
	})
	require.NoError(h.t, err)
	return m
}

func (h *harness) reconciled() {
	h.t.Helper()
	d, err := h.tally.Reconcile(h.ctx)
	require.NoError(h.t, err)
	assert.Empty(h.t, d, "balances drifted from movement history")
}

type eventLog struct {
	mu     sync.Mutex
	events []string
	short  []types.Money
}

func (l *eventLog) Name() string { return "event-log" }

func (l *eventLog) add(e string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
	return nil
}

func (l *eventLog) seen() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.events...)
}

func (l *eventLog) OnMovementCreated(context.Context, *movement.Movement) error {
	return l.add("movement.created")
}

func (l *eventLog) OnMovementEdited(context.Context, *movement.Movement, *movement.Movement) error {
	return l.add("movement.edited")
}

func (l *eventLog) OnMovementDeleted(context.Context, *movement.Movement) error {
	return l.add("movement.deleted")
}

func (l *eventLog) OnCreditPaid(context.Context, *movement.Movement) error {
	return l.add("credit.paid")
}

func (l *eventLog) OnTransferCreated(context.Context, *movement.Movement) error {
	return l.add("transfer.created")
}

func (l *eventLog) OnTransferEdited(context.Context, *movement.Movement, *movement.Movement) error {
	return l.add("transfer.edited")
}

func (l *eventLog) OnInsufficientBalance(_ context.Context, _ string, available, required types.Money) error {
	l.mu.Lock()
	l.short = append(l.short, available, required)
	l.mu.Unlock()
	return l.add("balance.insufficient")
}

// ──────────────────────────────────────────────────
// Scenarios
// ──────────────────────────────────────────────────

func TestScenario_EditCreditAndPay(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 500)
	b := h.account("B", 1000)

	m, err := h.expense(a, 200)
	require.NoError(t, err)
	h.assertBalance(a, 300)

	m, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(250), Quantity: dec(1)})
	require.NoError(t, err)
	h.assertBalance(a, 250)
	assert.Equal(t, a.ID, m.AccountID)

	m, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(250), Quantity: dec(1), Credit: true})
	require.NoError(t, err)
	h.assertBalance(a, 500)
	assert.Equal(t, movement.StatePendingCredit, m.State)
	assert.True(t, m.AccountID.IsNil())

	m, err = h.tally.PayCredit(h.ctx, m.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StateSettled, m.State)
	h.assertBalance(b, 750)
	h.assertBalance(a, 500)

	h.reconciled()
}

func TestScenario_TransferEdit(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 300)
	b := h.account("B", 750)

	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(100),
	})
	require.NoError(t, err)
	h.assertBalance(a, 200)
	h.assertBalance(b, 850)
	assert.Equal(t, "A → B", tr.Remark)

	tr, err = h.tally.EditTransfer(h.ctx, tr.ID, tally.TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(50),
	})
	require.NoError(t, err)
	h.assertBalance(a, 250)
	h.assertBalance(b, 800)
	assert.True(t, tr.Total.Equal(inr(50)))

	h.reconciled()
}

// ──────────────────────────────────────────────────
// Properties
// ──────────────────────────────────────────────────

func TestSufficiencyGate(t *testing.T) {
	h := newHarness(t)
	a := h.account("Wallet", 100)

	_, err := h.expense(a, 150)
	require.Error(t, err)
	assert.True(t, tally.IsInsufficientBalance(err))

	var ib *tally.InsufficientBalanceError
	require.True(t, errors.As(err, &ib))
	assert.Equal(t, "Wallet", ib.AccountName)
	assert.True(t, ib.Available.Equal(inr(100)))
	assert.True(t, ib.Required.Equal(inr(150)))

	h.assertBalance(a, 100)

	ms, err := h.tally.ListMovements(h.ctx, movement.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, ms)

	assert.Contains(t, h.events.seen(), "balance.insufficient")
}

func TestSufficiencyGate_ExactBalanceAllowed(t *testing.T) {
	h := newHarness(t)
	a := h.account("Wallet", 100)

	_, err := h.expense(a, 100)
	require.NoError(t, err)
	h.assertBalance(a, 0)
}

func TestPendingNeutrality(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 50)

	m, err := h.expense(nil, 5000)
	require.NoError(t, err)
	assert.Equal(t, movement.StatePendingCredit, m.State)
	assert.True(t, m.AccountID.IsNil())
	h.assertBalance(a, 50)

	_, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(6000), Quantity: dec(1), Credit: true})
	require.NoError(t, err)
	h.assertBalance(a, 50)

	require.NoError(t, h.tally.DeleteMovement(h.ctx, m.ID))
	h.assertBalance(a, 50)
}

func TestCreateWithCreditIgnoresAccount(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 10)

	m, err := h.tally.CreateMovement(h.ctx, tally.CreateInput{
		Kind:      movement.KindExpense,
		ItemID:    h.item.ID,
		Price:     dec(100),
		Quantity:  dec(1),
		AccountID: a.ID,
		Credit:    true,
	})
	require.NoError(t, err)
	assert.True(t, m.AccountID.IsNil())
	h.assertBalance(a, 10)
}

func TestDeleteRestoresBalances(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 400)
	b := h.account("B", 100)

	e, err := h.expense(a, 120)
	require.NoError(t, err)
	i := h.income(b, 80)
	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(60)})
	require.NoError(t, err)

	h.assertBalance(a, 220)
	h.assertBalance(b, 240)

	for _, m := range []*movement.Movement{tr, i, e} {
		require.NoError(t, h.tally.DeleteMovement(h.ctx, m.ID))
	}

	h.assertBalance(a, 400)
	h.assertBalance(b, 100)

	_, err = h.tally.GetMovement(h.ctx, e.ID)
	assert.True(t, tally.IsNotFound(err))
}

func TestTransferSymmetry(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 1000)
	b := h.account("B", 0)

	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(300)})
	require.NoError(t, err)
	h.assertBalance(a, 700)
	h.assertBalance(b, 300)

	_, err = h.tally.EditTransfer(h.ctx, tr.ID, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(450)})
	require.NoError(t, err)
	h.assertBalance(a, 550)
	h.assertBalance(b, 450)
}

// ──────────────────────────────────────────────────
// Edit transitions
// ──────────────────────────────────────────────────

func TestEdit_SettleAtEdit(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)

	m, err := h.expense(nil, 80)
	require.NoError(t, err)

	t.Run("requires account", func(t *testing.T) {
		_, err := h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(80), Quantity: dec(1)})
		assert.True(t, tally.IsInvalidInput(err))
	})

	t.Run("checks new total", func(t *testing.T) {
		_, err := h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(120), Quantity: dec(1), AccountID: a.ID})
		assert.True(t, tally.IsInsufficientBalance(err))
		h.assertBalance(a, 100)
	})

	t.Run("applies new effect", func(t *testing.T) {
		got, err := h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(45), Quantity: dec(2), AccountID: a.ID})
		require.NoError(t, err)
		assert.Equal(t, movement.StateSettled, got.State)
		assert.True(t, got.Total.Equal(inr(90)))
		h.assertBalance(a, 10)
	})

	h.reconciled()
}

func TestEdit_SameAccountChecksOnlyTheDifference(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)

	m, err := h.expense(a, 90)
	require.NoError(t, err)
	h.assertBalance(a, 10)

	// 100 total exceeds the remaining 10 but the increase is exactly 10.
	_, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(100), Quantity: dec(1)})
	require.NoError(t, err)
	h.assertBalance(a, 0)

	_, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(101), Quantity: dec(1)})
	assert.True(t, tally.IsInsufficientBalance(err))
	h.assertBalance(a, 0)

	_, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(30), Quantity: dec(1)})
	require.NoError(t, err)
	h.assertBalance(a, 70)

	h.reconciled()
}

func TestEdit_ChangeAccount(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 500)
	b := h.account("B", 100)

	m, err := h.expense(a, 200)
	require.NoError(t, err)

	_, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(150), Quantity: dec(1), AccountID: b.ID})
	assert.True(t, tally.IsInsufficientBalance(err))
	h.assertBalance(a, 300)
	h.assertBalance(b, 100)

	got, err := h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(60), Quantity: dec(1), AccountID: b.ID})
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.AccountID)
	h.assertBalance(a, 500)
	h.assertBalance(b, 40)

	h.reconciled()
}

func TestEdit_IncomeChangeAccountNeedsNoCover(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 0)
	b := h.account("B", 0)

	m := h.income(a, 300)
	h.assertBalance(a, 300)

	_, err := h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(500), Quantity: dec(1), AccountID: b.ID})
	require.NoError(t, err)
	h.assertBalance(a, 0)
	h.assertBalance(b, 500)

	_, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(500), Quantity: dec(1), Credit: true})
	assert.True(t, tally.IsInvalidInput(err))
}

func TestEdit_Forbidden(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 1000)
	b := h.account("B", 0)

	multi, err := h.tally.CreateMovement(h.ctx, tally.CreateInput{
		Kind:      movement.KindExpense,
		ItemIDs:   []id.ItemID{h.item.ID},
		MultiItem: true,
		Price:     dec(300),
		AccountID: a.ID,
	})
	require.NoError(t, err)

	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(10)})
	require.NoError(t, err)

	for _, m := range []*movement.Movement{multi, tr} {
		_, err := h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(1), Quantity: dec(1)})
		assert.True(t, tally.IsInvalidState(err), "edit %s", m.Kind)
	}

	_, err = h.tally.EditTransfer(h.ctx, multi.ID, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(5)})
	assert.True(t, tally.IsNotFound(err))
}

// ──────────────────────────────────────────────────
// Create validation
// ──────────────────────────────────────────────────

func TestCreate_MultiItemTotalIsPrice(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 1000)

	m, err := h.tally.CreateMovement(h.ctx, tally.CreateInput{
		Kind:      movement.KindExpense,
		ItemIDs:   []id.ItemID{h.item.ID, h.item.ID},
		MultiItem: true,
		Price:     dec(250),
		Quantity:  dec(3),
		AccountID: a.ID,
	})
	require.NoError(t, err)
	assert.True(t, m.Total.Equal(inr(250)))
	h.assertBalance(a, 750)
}

func TestCreate_SingleItemTotalIsPriceTimesQuantity(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 1000)

	m, err := h.tally.CreateMovement(h.ctx, tally.CreateInput{
		Kind:      movement.KindExpense,
		ItemID:    h.item.ID,
		Price:     decimal.RequireFromString("42.50"),
		Quantity:  decimal.RequireFromString("2.5"),
		AccountID: a.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, "106.25", m.Total.FormatMajor())
	assert.Equal(t, "893.75", h.balance(a).FormatMajor())
}

func TestCreate_Validation(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 1000)

	tests := []struct {
		name string
		in   tally.CreateInput
		is   func(error) bool
	}{
		{
			name: "transfer kind",
			in:   tally.CreateInput{Kind: movement.KindTransfer, ItemID: h.item.ID, Price: dec(1), Quantity: dec(1), AccountID: a.ID},
			is:   tally.IsInvalidInput,
		},
		{
			name: "missing item",
			in:   tally.CreateInput{Kind: movement.KindExpense, Price: dec(1), Quantity: dec(1), AccountID: a.ID},
			is:   tally.IsInvalidInput,
		},
		{
			name: "zero quantity",
			in:   tally.CreateInput{Kind: movement.KindExpense, ItemID: h.item.ID, Price: dec(1), AccountID: a.ID},
			is:   tally.IsInvalidInput,
		},
		{
			name: "multi-item income",
			in:   tally.CreateInput{Kind: movement.KindIncome, ItemIDs: []id.ItemID{h.item.ID}, MultiItem: true, Price: dec(1), AccountID: a.ID},
			is:   tally.IsInvalidInput,
		},
		{
			name: "multi-item without price",
			in:   tally.CreateInput{Kind: movement.KindExpense, ItemIDs: []id.ItemID{h.item.ID}, MultiItem: true, AccountID: a.ID},
			is:   tally.IsInvalidInput,
		},
		{
			name: "credit income",
			in:   tally.CreateInput{Kind: movement.KindIncome, ItemID: h.item.ID, Price: dec(1), Quantity: dec(1), Credit: true},
			is:   tally.IsInvalidInput,
		},
		{
			name: "settled without account",
			in:   tally.CreateInput{Kind: movement.KindExpense, ItemID: h.item.ID, Price: dec(1), Quantity: dec(1)},
			is:   tally.IsInvalidInput,
		},
		{
			name: "unknown item",
			in:   tally.CreateInput{Kind: movement.KindExpense, ItemID: id.NewItemID(), Price: dec(1), Quantity: dec(1), AccountID: a.ID},
			is:   tally.IsNotFound,
		},
		{
			name: "unknown category",
			in:   tally.CreateInput{Kind: movement.KindExpense, CategoryID: id.NewCategoryID(), ItemID: h.item.ID, Price: dec(1), Quantity: dec(1), AccountID: a.ID},
			is:   tally.IsNotFound,
		},
		{
			name: "unknown account",
			in:   tally.CreateInput{Kind: movement.KindExpense, ItemID: h.item.ID, Price: dec(1), Quantity: dec(1), AccountID: id.NewAccountID()},
			is:   tally.IsNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.tally.CreateMovement(h.ctx, tt.in)
			require.Error(t, err)
			assert.True(t, tt.is(err), "unexpected error kind: %v", err)
		})
	}

	h.assertBalance(a, 1000)
}

func TestCodes(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 1000)

	first, err := h.expense(a, 1)
	require.NoError(t, err)
	second := h.income(a, 1)
	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: h.account("B", 0).ID, Amount: dec(1)})
	require.NoError(t, err)

	assert.Equal(t, "16102026:14:0501", first.Code)
	assert.Equal(t, "16102026:14:0502", second.Code)
	assert.Equal(t, "16102026:14:0503", tr.Code)
}

// ──────────────────────────────────────────────────
// Pay
// ──────────────────────────────────────────────────

func TestPayCredit(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 10)

	m, err := h.expense(nil, 500)
	require.NoError(t, err)

	t.Run("requires account", func(t *testing.T) {
		_, err := h.tally.PayCredit(h.ctx, m.ID, id.Nil)
		assert.True(t, tally.IsInvalidInput(err))
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := h.tally.PayCredit(h.ctx, m.ID, id.NewAccountID())
		assert.True(t, tally.IsNotFound(err))
	})

	t.Run("may overdraw", func(t *testing.T) {
		_, err := h.tally.PayCredit(h.ctx, m.ID, a.ID)
		require.NoError(t, err)
		h.assertBalance(a, -490)
	})

	t.Run("only once", func(t *testing.T) {
		_, err := h.tally.PayCredit(h.ctx, m.ID, a.ID)
		assert.True(t, tally.IsInvalidState(err))
		h.assertBalance(a, -490)
	})

	h.reconciled()
}

// ──────────────────────────────────────────────────
// Transfers
// ──────────────────────────────────────────────────

func TestTransfer_Validation(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)
	b := h.account("B", 0)

	_, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: a.ID, Amount: dec(1)})
	assert.True(t, tally.IsInvalidInput(err))

	_, err = h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID})
	assert.True(t, tally.IsInvalidInput(err))

	_, err = h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: id.NewAccountID(), Amount: dec(1)})
	assert.True(t, tally.IsNotFound(err))

	_, err = h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(101)})
	assert.True(t, tally.IsInsufficientBalance(err))

	h.assertBalance(a, 100)
	h.assertBalance(b, 0)
}

func TestEditTransfer_Repoint(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)
	b := h.account("B", 40)
	c := h.account("C", 0)

	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(100), Remark: "rent share",
	})
	require.NoError(t, err)
	h.assertBalance(a, 0)
	h.assertBalance(b, 140)

	// Reversing the old transfer takes 100 back out of B, leaving 40.
	_, err = h.tally.EditTransfer(h.ctx, tr.ID, tally.TransferInput{FromAccountID: b.ID, ToAccountID: c.ID, Amount: dec(41)})
	assert.True(t, tally.IsInsufficientBalance(err))
	h.assertBalance(a, 0)
	h.assertBalance(b, 140)

	got, err := h.tally.EditTransfer(h.ctx, tr.ID, tally.TransferInput{FromAccountID: b.ID, ToAccountID: c.ID, Amount: dec(40)})
	require.NoError(t, err)
	assert.Equal(t, "B → C", got.Remark)
	h.assertBalance(a, 100)
	h.assertBalance(b, 0)
	h.assertBalance(c, 40)

	h.reconciled()
}

func TestEditTransfer_ReverseDirection(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)
	b := h.account("B", 0)

	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(100)})
	require.NoError(t, err)

	// Reversing the original leaves B at 0, so it cannot send 100 back.
	_, err = h.tally.EditTransfer(h.ctx, tr.ID, tally.TransferInput{FromAccountID: b.ID, ToAccountID: a.ID, Amount: dec(100)})
	assert.True(t, tally.IsInsufficientBalance(err))

	_, err = h.tally.EditTransfer(h.ctx, tr.ID, tally.TransferInput{FromAccountID: b.ID, ToAccountID: a.ID, Amount: dec(0)})
	assert.True(t, tally.IsInvalidInput(err))

	h.assertBalance(a, 0)
	h.assertBalance(b, 100)
}

// ──────────────────────────────────────────────────
// Accounts
// ──────────────────────────────────────────────────

func TestAccountUpdateKeepsBalance(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)
	_, err := h.expense(a, 30)
	require.NoError(t, err)

	upd := &account.Account{ID: a.ID, Kind: account.KindCash, Name: "Pocket", Balance: inr(99999)}
	require.NoError(t, h.tally.UpdateAccount(h.ctx, upd))

	got, err := h.tally.GetAccount(h.ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Pocket", got.Name)
	assert.Equal(t, account.KindCash, got.Kind)
	assert.True(t, got.Balance.Equal(inr(70)))
}

func TestDeleteAccountKeepsMovements(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)
	b := h.account("B", 100)

	e, err := h.expense(a, 30)
	require.NoError(t, err)
	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(20)})
	require.NoError(t, err)

	require.NoError(t, h.tally.DeleteAccount(h.ctx, a.ID))

	got, err := h.tally.GetMovement(h.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.AccountID)

	// Reversal skips the vanished source and still restores B.
	require.NoError(t, h.tally.DeleteMovement(h.ctx, tr.ID))
	h.assertBalance(b, 100)
	require.NoError(t, h.tally.DeleteMovement(h.ctx, e.ID))
}

// ──────────────────────────────────────────────────
// Scoping, errors, concurrency
// ──────────────────────────────────────────────────

func TestOwnerScoping(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)
	m, err := h.expense(a, 10)
	require.NoError(t, err)

	other := tally.WithOwner(context.Background(), "user-2")

	_, err = h.tally.GetAccount(other, a.ID)
	assert.True(t, tally.IsNotFound(err))
	_, err = h.tally.GetMovement(other, m.ID)
	assert.True(t, tally.IsNotFound(err))
	assert.True(t, tally.IsNotFound(h.tally.DeleteMovement(other, m.ID)))

	_, err = h.tally.ListAccounts(context.Background())
	assert.ErrorIs(t, err, tally.ErrUnauthorized)
}

func TestConcurrentExpensesNeverOverdraw(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 200)

	const workers = 50
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.expense(a, 10)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case tally.IsInsufficientBalance(err):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, succeeded)
	assert.Equal(t, workers-20, rejected)
	h.assertBalance(a, 0)
	h.reconciled()
}

func TestConcurrentOpposingTransfers(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 1000)
	b := h.account("B", 1000)

	var wg sync.WaitGroup
	for i := range 40 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			from, to := a, b
			if i%2 == 1 {
				from, to = b, a
			}
			_, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: from.ID, ToAccountID: to.ID, Amount: dec(5)})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	h.assertBalance(a, 1000)
	h.assertBalance(b, 1000)
	h.reconciled()
}

// readBarrier holds GetMovement until n callers have read, so every caller
// computes its change from the same revision.
type readBarrier struct {
	store.Store
	n     int32
	armed atomic.Bool
	reads atomic.Int32
	ready chan struct{}
}

func newReadBarrier(s store.Store, n int32) *readBarrier {
	return &readBarrier{Store: s, n: n, ready: make(chan struct{})}
}

func (b *readBarrier) GetMovement(ctx context.Context, ownerID string, movementID id.MovementID) (*movement.Movement, error) {
	m, err := b.Store.GetMovement(ctx, ownerID, movementID)
	if !b.armed.Load() {
		return m, err
	}
	if b.reads.Add(1) == b.n {
		close(b.ready)
	}
	select {
	case <-b.ready:
	case <-time.After(5 * time.Second):
		return nil, errors.New("read barrier timed out")
	}
	return m, err
}

// race runs every fn at once and returns their errors in order.
func race(fns ...func() error) []error {
	errs := make([]error, len(fns))
	var wg sync.WaitGroup
	for i, fn := range fns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn()
		}()
	}
	wg.Wait()
	return errs
}

func TestConcurrentPayCredit_OneEngine(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 1000)

	m, err := h.expense(nil, 300)
	require.NoError(t, err)

	const workers = 20
	fns := make([]func() error, workers)
	for i := range fns {
		fns[i] = func() error {
			_, err := h.tally.PayCredit(h.ctx, m.ID, a.ID)
			return err
		}
	}

	paid := 0
	for _, err := range race(fns...) {
		switch {
		case err == nil:
			paid++
		case tally.IsInvalidState(err):
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, paid)
	h.assertBalance(a, 700)
	h.reconciled()
}

func TestConcurrentPayCredit_SharedStore(t *testing.T) {
	shared := newReadBarrier(memory.New(), 2)
	h := newHarnessOn(t, shared)
	other := h.peer()
	a := h.account("A", 1000)
	b := h.account("B", 1000)

	m, err := h.expense(nil, 300)
	require.NoError(t, err)

	shared.armed.Store(true)
	errs := race(
		func() error { _, err := h.tally.PayCredit(h.ctx, m.ID, a.ID); return err },
		func() error { _, err := other.PayCredit(h.ctx, m.ID, b.ID); return err },
	)
	shared.armed.Store(false)

	paid, conflicts := 0, 0
	for _, err := range errs {
		switch {
		case err == nil:
			paid++
		case tally.IsConflict(err):
			conflicts++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, paid)
	assert.Equal(t, 1, conflicts)

	got, err := h.tally.GetMovement(h.ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, movement.StateSettled, got.State)
	if got.AccountID == a.ID {
		h.assertBalance(a, 700)
		h.assertBalance(b, 1000)
	} else {
		h.assertBalance(a, 1000)
		h.assertBalance(b, 700)
	}
	h.reconciled()
}

func TestConcurrentEdit_SharedStore(t *testing.T) {
	shared := newReadBarrier(memory.New(), 2)
	h := newHarnessOn(t, shared)
	other := h.peer()
	a := h.account("A", 1000)

	m, err := h.expense(a, 100)
	require.NoError(t, err)

	edit := func(tl *tally.Tally, price int64) func() error {
		return func() error {
			_, err := tl.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(price), Quantity: dec(1)})
			return err
		}
	}

	shared.armed.Store(true)
	errs := race(edit(h.tally, 150), edit(other, 120))
	shared.armed.Store(false)

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, tally.IsConflict(err), "unexpected error: %v", err)
		assert.True(t, tally.IsRetryable(err))
	}
	assert.Equal(t, 1, ok)

	got, err := h.tally.GetMovement(h.ctx, m.ID)
	require.NoError(t, err)
	assert.True(t, got.Total.Equal(inr(150)) || got.Total.Equal(inr(120)), "total %s", got.Total)
	assert.True(t, h.balance(a).Equal(inr(1000).Subtract(got.Total)), "balance %s after total %s", h.balance(a), got.Total)
	h.reconciled()
}

func TestConcurrentDelete_SharedStore(t *testing.T) {
	shared := newReadBarrier(memory.New(), 2)
	h := newHarnessOn(t, shared)
	other := h.peer()
	a := h.account("A", 1000)

	m, err := h.expense(a, 100)
	require.NoError(t, err)

	shared.armed.Store(true)
	errs := race(
		func() error { return h.tally.DeleteMovement(h.ctx, m.ID) },
		func() error { return other.DeleteMovement(h.ctx, m.ID) },
	)
	shared.armed.Store(false)

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.True(t, tally.IsConflict(err) || tally.IsNotFound(err), "unexpected error: %v", err)
	}
	assert.Equal(t, 1, ok)
	h.assertBalance(a, 1000)
	h.reconciled()
}

func TestReconcileDuringWrites(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100000)
	b := h.account("B", 0)

	var (
		wg   sync.WaitGroup
		done atomic.Bool
	)
	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500 && !done.Load(); i++ {
				_, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(1)})
				if err != nil {
					t.Errorf("transfer: %v", err)
					return
				}
			}
		}()
	}

	for range 50 {
		d, err := h.tally.Reconcile(h.ctx)
		require.NoError(t, err)
		assert.Empty(t, d)
	}
	done.Store(true)
	wg.Wait()

	h.reconciled()
}

func TestCanceledContextFailsCleanly(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)

	ctx, cancel := context.WithCancel(h.ctx)
	cancel()

	_, err := h.tally.CreateMovement(ctx, tally.CreateInput{
		Kind: movement.KindExpense, ItemID: h.item.ID, Price: dec(10), Quantity: dec(1), AccountID: a.ID,
	})
	assert.ErrorIs(t, err, context.Canceled)
	h.assertBalance(a, 100)
}

func TestPluginEvents(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)
	b := h.account("B", 0)

	m, err := h.expense(nil, 10)
	require.NoError(t, err)
	_, err = h.tally.PayCredit(h.ctx, m.ID, a.ID)
	require.NoError(t, err)
	_, err = h.tally.EditMovement(h.ctx, m.ID, tally.EditInput{Price: dec(20), Quantity: dec(1)})
	require.NoError(t, err)
	tr, err := h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(5)})
	require.NoError(t, err)
	_, err = h.tally.EditTransfer(h.ctx, tr.ID, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(6)})
	require.NoError(t, err)
	require.NoError(t, h.tally.DeleteMovement(h.ctx, tr.ID))

	assert.Equal(t, []string{
		"movement.created",
		"credit.paid",
		"movement.edited",
		"transfer.created",
		"transfer.edited",
		"movement.deleted",
	}, h.events.seen())
}

func TestDuplicatePluginIsLogged(t *testing.T) {
	var buf bytes.Buffer
	events := &eventLog{}
	tally.New(memory.New(),
		tally.WithLogger(slog.New(slog.NewTextHandler(&buf, nil))),
		tally.WithPlugin(events),
		tally.WithPlugin(events),
	)

	assert.Contains(t, buf.String(), "plugin registration failed")
	assert.Contains(t, buf.String(), "plugin=event-log")
}

// refund answers every settled expense with an income on the same account
// from inside the hook.
type refund struct {
	tl   *tally.Tally
	item id.ItemID
	mu   sync.Mutex
	errs []error
}

func (r *refund) Name() string { return "refund" }

func (r *refund) OnMovementCreated(ctx context.Context, m *movement.Movement) error {
	if m.Kind != movement.KindExpense || m.AccountID.IsNil() {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := r.tl.CreateMovement(ctx, tally.CreateInput{
		Kind: movement.KindIncome, ItemID: r.item, Price: m.Total.Amount, Quantity: dec(1), AccountID: m.AccountID,
	})
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	return err
}

func TestHooksMayCallBackIntoEngine(t *testing.T) {
	h := newHarness(t)
	a := h.account("A", 100)

	r := &refund{item: h.item.ID}
	r.tl = tally.New(h.store, engineOpts(tally.WithPlugin(r))...)

	_, err := r.tl.CreateMovement(h.ctx, tally.CreateInput{
		Kind: movement.KindExpense, CategoryID: h.cat.ID, ItemID: h.item.ID, Price: dec(40), Quantity: dec(1), AccountID: a.ID,
	})
	require.NoError(t, err)

	r.mu.Lock()
	errs := append([]error(nil), r.errs...)
	r.mu.Unlock()
	require.Len(t, errs, 1, "hook did not finish before the engine returned")
	assert.NoError(t, errs[0])
	h.assertBalance(a, 100)
	h.reconciled()
}

func TestReporting(t *testing.T) {
	h := newHarness(t)
	a := h.account("Wallet", 1000)
	b := h.account("Savings", 0)

	_, err := h.expense(a, 100)
	require.NoError(t, err)
	_, err = h.expense(nil, 50)
	require.NoError(t, err)
	h.income(a, 300)
	_, err = h.tally.CreateTransfer(h.ctx, tally.TransferInput{FromAccountID: a.ID, ToAccountID: b.ID, Amount: dec(200)})
	require.NoError(t, err)

	rows, err := h.tally.Rows(h.ctx, movement.ListOpts{Kind: movement.KindTransfer})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "Wallet", rows[0].FromAccountName)
	assert.Equal(t, "Savings", rows[0].ToAccountName)

	rows, err = h.tally.Rows(h.ctx, movement.ListOpts{Kind: movement.KindExpense})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	for _, r := range rows {
		assert.Equal(t, "Groceries", r.CategoryName)
		assert.Equal(t, "Rice", r.ItemName)
	}

	s, err := h.tally.Summary(h.ctx, movement.ListOpts{Limit: 1})
	require.NoError(t, err)
	assert.True(t, s.Income.Equal(inr(300)))
	assert.True(t, s.Expense.Equal(inr(150)))
	assert.True(t, s.PendingCredit.Equal(inr(50)))
	assert.True(t, s.TransferVolume.Equal(inr(200)))
	assert.True(t, s.NetBalance.Equal(inr(1200)))
	assert.Equal(t, 4, s.Movements)

	h.reconciled()
}
