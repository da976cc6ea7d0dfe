// Package effect computes the signed balance changes a movement applies to
// the accounts it references.
//
// Every mutation in the engine is expressed as "remove the old effect, add
// the new one": Diff merges both into the minimal set of per-account
// deltas, so an edit that keeps the account issues one adjustment instead
// of a reversal followed by a reapplication.
package effect

import (
	"sort"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// Delta is a signed change to one account's balance.
type Delta struct {
	AccountID id.AccountID `json:"account_id"`
	Amount    types.Money  `json:"amount"`
}

// Of returns the effect a movement currently contributes.
//
//	settled expense  -> [(account, -total)]
//	settled income   -> [(account, +total)]
//	pending credit   -> []
//	transfer         -> [(from, -total), (to, +total)]
//
// A nil movement has no effect.
func Of(m *movement.Movement) []Delta {
	if m == nil {
		return nil
	}

	switch m.Kind {
	case movement.KindTransfer:
		return []Delta{
			{AccountID: m.FromAccountID, Amount: m.Total.Negate()},
			{AccountID: m.ToAccountID, Amount: m.Total},
		}
	case movement.KindExpense:
		if m.State != movement.StateSettled {
			return nil
		}
		return []Delta{{AccountID: m.AccountID, Amount: m.Total.Negate()}}
	case movement.KindIncome:
		if m.State != movement.StateSettled {
			return nil
		}
		return []Delta{{AccountID: m.AccountID, Amount: m.Total}}
	default:
		return nil
	}
}

// Reverse negates every delta.
func Reverse(ds []Delta) []Delta {
	if len(ds) == 0 {
		return nil
	}
	out := make([]Delta, len(ds))
	for i, d := range ds {
		out[i] = Delta{AccountID: d.AccountID, Amount: d.Amount.Negate()}
	}
	return out
}

// Diff returns the adjustments that turn the effect of before into the
// effect of after. Either side may be nil.
func Diff(before, after *movement.Movement) []Delta {
	return Merge(Reverse(Of(before)), Of(after))
}

// Merge sums deltas per account, drops accounts whose net change is zero
// and orders the result by account ID.
func Merge(sets ...[]Delta) []Delta {
	sums := make(map[id.AccountID]types.Money)
	for _, set := range sets {
		for _, d := range set {
			if cur, ok := sums[d.AccountID]; ok {
				sums[d.AccountID] = cur.Add(d.Amount)
			} else {
				sums[d.AccountID] = d.Amount
			}
		}
	}

	out := make([]Delta, 0, len(sums))
	for acct, amt := range sums {
		if amt.IsZero() {
			continue
		}
		out = append(out, Delta{AccountID: acct, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i].AccountID, out[j].AccountID) })
	return out
}

// On returns the net delta for accountID within ds, or zero.
func On(ds []Delta, accountID id.AccountID, currency string) types.Money {
	total := types.Zero(currency)
	for _, d := range ds {
		if d.AccountID == accountID {
			total = total.Add(d.Amount)
		}
	}
	return total
}

// Accounts returns the distinct accounts touched by ds in ascending order.
func Accounts(ds []Delta) []id.AccountID {
	seen := make(map[id.AccountID]struct{}, len(ds))
	out := make([]id.AccountID, 0, len(ds))
	for _, d := range ds {
		if _, ok := seen[d.AccountID]; ok {
			continue
		}
		seen[d.AccountID] = struct{}{}
		out = append(out, d.AccountID)
	}
	sort.Slice(out, func(i, j int) bool { return id.Less(out[i], out[j]) })
	return out
}
