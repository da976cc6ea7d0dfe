package tally

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
)

// transition names how an edit moves a single-item movement between
// settlement states. It is computed once from the stored state and the
// requested one; each value maps to exactly one set of guards and deltas.
type transition int

const (
	transitionRetain transition = iota // pending -> pending: fields only
	transitionSettle                   // pending -> settled: apply new effect
	transitionDefer                    // settled -> pending: reverse old effect
	transitionAdjust                   // settled -> settled, same account: apply the difference
	transitionMove                     // settled -> settled, new account: reverse on old, apply on new
)

func (tr transition) String() string {
	switch tr {
	case transitionRetain:
		return "retain"
	case transitionSettle:
		return "settle"
	case transitionDefer:
		return "defer"
	case transitionAdjust:
		return "adjust"
	case transitionMove:
		return "move"
	default:
		return "unknown"
	}
}

// classify picks the transition for editing old into the requested credit
// flag and account. A Nil account on a settled edit keeps the current one.
func classify(old *movement.Movement, credit bool, accountID id.AccountID) transition {
	wasCredit := old.IsCredit()

	switch {
	case wasCredit && credit:
		return transitionRetain
	case wasCredit:
		return transitionSettle
	case credit:
		return transitionDefer
	case accountID.IsNil() || accountID == old.AccountID:
		return transitionAdjust
	default:
		return transitionMove
	}
}
