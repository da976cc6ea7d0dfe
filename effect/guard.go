package effect

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Guard is a sufficiency requirement on one account: the balance, after
// crediting back Headroom, must cover Need.
//
// Headroom is what the account gets back when an earlier effect it was
// party to is reversed. Editing a transfer from 100 to 150 out of the same
// source needs 150 against balance+100, not against the bare balance.
type Guard struct {
	AccountID id.AccountID `json:"account_id"`
	Need      types.Money  `json:"need"`
	Headroom  types.Money  `json:"headroom"`
}

// Available is the balance the guard measures against.
func (g Guard) Available(balance types.Money) types.Money {
	return balance.Add(g.Headroom)
}

// Holds reports whether balance satisfies the guard.
func (g Guard) Holds(balance types.Money) bool {
	return !g.Available(balance).LessThan(g.Need)
}

// Require builds a guard with no headroom.
func Require(accountID id.AccountID, need types.Money) Guard {
	return Guard{AccountID: accountID, Need: need, Headroom: types.Zero(need.Currency)}
}
