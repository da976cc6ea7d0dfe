package effect_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xraph/tally/effect"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

func inr(s string) types.Money { return types.MustParse(s, "INR") }

func expense(acct id.AccountID, total string, state movement.State) *movement.Movement {
	m := &movement.Movement{
		Kind:     movement.KindExpense,
		State:    state,
		Price:    inr(total),
		Quantity: decimal.NewFromInt(1),
		Total:    inr(total),
	}
	if state == movement.StateSettled {
		m.AccountID = acct
	}
	return m
}

func transfer(from, to id.AccountID, amount string) *movement.Movement {
	return &movement.Movement{
		Kind:          movement.KindTransfer,
		State:         movement.StateSettled,
		Price:         inr(amount),
		Quantity:      decimal.NewFromInt(1),
		Total:         inr(amount),
		FromAccountID: from,
		ToAccountID:   to,
	}
}

func TestOf(t *testing.T) {
	t.Parallel()

	a, b := id.NewAccountID(), id.NewAccountID()

	income := expense(a, "75", movement.StateSettled)
	income.Kind = movement.KindIncome

	tests := []struct {
		name string
		m    *movement.Movement
		want []effect.Delta
	}{
		{"nil", nil, nil},
		{"settled expense", expense(a, "200", movement.StateSettled), []effect.Delta{{AccountID: a, Amount: inr("-200")}}},
		{"settled income", income, []effect.Delta{{AccountID: a, Amount: inr("75")}}},
		{"pending credit", expense(a, "200", movement.StatePendingCredit), nil},
		{"transfer", transfer(a, b, "100"), []effect.Delta{
			{AccountID: a, Amount: inr("-100")},
			{AccountID: b, Amount: inr("100")},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := effect.Of(tt.m)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].AccountID, got[i].AccountID)
				assert.True(t, tt.want[i].Amount.Equal(got[i].Amount), "got %s want %s", got[i].Amount, tt.want[i].Amount)
			}
		})
	}
}

func TestDiffSameAccountIssuesSingleDelta(t *testing.T) {
	t.Parallel()

	a := id.NewAccountID()
	before := expense(a, "200", movement.StateSettled)
	after := expense(a, "250", movement.StateSettled)

	got := effect.Diff(before, after)

	require.Len(t, got, 1)
	assert.Equal(t, a, got[0].AccountID)
	assert.True(t, got[0].Amount.Equal(inr("-50")))
}

func TestDiffUnchangedIsEmpty(t *testing.T) {
	t.Parallel()

	a := id.NewAccountID()
	m := expense(a, "200", movement.StateSettled)

	assert.Empty(t, effect.Diff(m, m.Clone()))
}

func TestDiffAccountChange(t *testing.T) {
	t.Parallel()

	a, b := id.NewAccountID(), id.NewAccountID()
	got := effect.Diff(expense(a, "200", movement.StateSettled), expense(b, "250", movement.StateSettled))

	require.Len(t, got, 2)
	assert.True(t, effect.On(got, a, "INR").Equal(inr("200")))
	assert.True(t, effect.On(got, b, "INR").Equal(inr("-250")))
	assert.True(t, id.Less(got[0].AccountID, got[1].AccountID))
}

func TestDiffTransferAmountChangeIsNet(t *testing.T) {
	t.Parallel()

	a, b := id.NewAccountID(), id.NewAccountID()
	got := effect.Diff(transfer(a, b, "100"), transfer(a, b, "50"))

	require.Len(t, got, 2)
	assert.True(t, effect.On(got, a, "INR").Equal(inr("50")))
	assert.True(t, effect.On(got, b, "INR").Equal(inr("-50")))
}

func TestDiffDeleteReversesEverything(t *testing.T) {
	t.Parallel()

	a, b := id.NewAccountID(), id.NewAccountID()
	tr := transfer(a, b, "100")

	got := effect.Diff(tr, nil)
	assert.True(t, effect.On(got, a, "INR").Equal(inr("100")))
	assert.True(t, effect.On(got, b, "INR").Equal(inr("-100")))

	applied := effect.Merge(effect.Of(tr), got)
	assert.Empty(t, applied)
}

func TestAccountsSortedDistinct(t *testing.T) {
	t.Parallel()

	a, b := id.NewAccountID(), id.NewAccountID()
	got := effect.Accounts([]effect.Delta{
		{AccountID: b, Amount: inr("1")},
		{AccountID: a, Amount: inr("1")},
		{AccountID: b, Amount: inr("2")},
	})

	require.Len(t, got, 2)
	assert.True(t, id.Less(got[0], got[1]))
}

func TestGuard(t *testing.T) {
	t.Parallel()

	a := id.NewAccountID()

	tests := []struct {
		name    string
		guard   effect.Guard
		balance types.Money
		holds   bool
	}{
		{"exact cover", effect.Require(a, inr("100")), inr("100"), true},
		{"short", effect.Require(a, inr("150")), inr("100"), false},
		{"headroom covers", effect.Guard{AccountID: a, Need: inr("150"), Headroom: inr("100")}, inr("60"), true},
		{"negative headroom", effect.Guard{AccountID: a, Need: inr("50"), Headroom: inr("-100")}, inr("120"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.holds, tt.guard.Holds(tt.balance))
		})
	}
}
