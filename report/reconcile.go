package report

import (
	"sort"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/effect"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// Discrepancy is an account whose stored balance differs from its opening
// balance plus the effects of the movements that reference it.
type Discrepancy struct {
	AccountID   id.AccountID `json:"account_id"`
	AccountName string       `json:"account_name"`
	Stored      types.Money  `json:"stored"`
	Expected    types.Money  `json:"expected"`
	Difference  types.Money  `json:"difference"` // Stored - Expected
}

// Reconcile replays every movement's effect over the opening balances and
// returns the accounts that disagree, ordered by account ID. ms must be the
// owner's complete movement history.
func Reconcile(accts []*account.Account, ms []*movement.Movement) []Discrepancy {
	expected := make(map[id.AccountID]types.Money, len(accts))
	for _, a := range accts {
		expected[a.ID] = a.OpeningBalance
	}

	for _, m := range ms {
		for _, d := range effect.Of(m) {
			if cur, ok := expected[d.AccountID]; ok {
				expected[d.AccountID] = cur.Add(d.Amount)
			}
		}
	}

	var out []Discrepancy
	for _, a := range accts {
		want := expected[a.ID]
		if a.Balance.Equal(want) {
			continue
		}
		out = append(out, Discrepancy{
			AccountID:   a.ID,
			AccountName: a.Name,
			Stored:      a.Balance,
			Expected:    want,
			Difference:  a.Balance.Subtract(want),
		})
	}

	sort.Slice(out, func(i, j int) bool { return id.Less(out[i].AccountID, out[j].AccountID) })
	return out
}
