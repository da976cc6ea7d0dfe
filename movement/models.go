// Package movement defines the financial events (expenses, incomes and
// transfers) whose balance effects the engine applies to accounts.
package movement

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Kind is the type of financial event.
type Kind string

const (
	KindExpense  Kind = "expense"
	KindIncome   Kind = "income"
	KindTransfer Kind = "transfer"
)

// Valid reports whether k is a known movement kind.
func (k Kind) Valid() bool {
	return k == KindExpense || k == KindIncome || k == KindTransfer
}

// State is the settlement state of a movement.
type State string

const (
	// StateSettled movements have their effect applied to an account.
	StateSettled State = "settled"
	// StatePendingCredit expenses are deferred and affect no balance until paid.
	StatePendingCredit State = "pending_credit"
)

// ErrInconsistent is wrapped by Validate when linkage and state disagree.
var ErrInconsistent = errors.New("movement: inconsistent account linkage")

// Movement is one recorded financial event.
//
// Total is Price × Quantity for single-item expenses and incomes. For
// multi-item expenses and for transfers the total is entered directly and
// Price carries the same amount.
type Movement struct {
	types.Entity
	ID         id.MovementID   `json:"id"`
	OwnerID    string          `json:"owner_id"`
	Code       string          `json:"code"`
	Kind       Kind            `json:"kind"`
	State      State           `json:"state"`
	CategoryID id.CategoryID   `json:"category_id,omitzero"`
	ItemID     id.ItemID       `json:"item_id,omitzero"`
	ItemIDs    []id.ItemID     `json:"item_ids,omitempty"`
	MultiItem  bool            `json:"multi_item"`
	Price      types.Money     `json:"price"`
	Quantity   decimal.Decimal `json:"quantity"`
	Total      types.Money     `json:"total"`
	Remark     string          `json:"remark,omitempty"`

	// AccountID is set on settled expenses and incomes.
	AccountID id.AccountID `json:"account_id,omitzero"`

	// FromAccountID and ToAccountID are set on transfers only.
	FromAccountID id.AccountID `json:"from_account_id,omitzero"`
	ToAccountID   id.AccountID `json:"to_account_id,omitzero"`

	OccurredAt time.Time `json:"occurred_at"`
}

// IsCredit reports whether the movement is a pending credit expense.
func (m *Movement) IsCredit() bool { return m.State == StatePendingCredit }

// IsTransfer reports whether the movement moves money between two accounts.
func (m *Movement) IsTransfer() bool { return m.Kind == KindTransfer }

// Accounts returns the accounts whose balance the movement currently affects.
func (m *Movement) Accounts() []id.AccountID {
	switch {
	case m.IsTransfer():
		return []id.AccountID{m.FromAccountID, m.ToAccountID}
	case m.State == StateSettled && !m.AccountID.IsNil():
		return []id.AccountID{m.AccountID}
	default:
		return nil
	}
}

// References reports whether the movement names accountID in any role.
func (m *Movement) References(accountID id.AccountID) bool {
	return m.AccountID == accountID || m.FromAccountID == accountID || m.ToAccountID == accountID
}

// SameRevision reports whether m and other agree on everything that
// decides a movement's balance effect, and on when it was last written.
func (m *Movement) SameRevision(other *Movement) bool {
	return m.State == other.State &&
		m.AccountID == other.AccountID &&
		m.FromAccountID == other.FromAccountID &&
		m.ToAccountID == other.ToAccountID &&
		m.Total.Amount.Equal(other.Total.Amount) &&
		m.UpdatedAt.Equal(other.UpdatedAt)
}

// Clone returns a deep copy.
func (m *Movement) Clone() *Movement {
	c := *m
	if m.ItemIDs != nil {
		c.ItemIDs = append([]id.ItemID(nil), m.ItemIDs...)
	}
	return &c
}

// Validate checks that state and account linkage agree:
// a pending credit names no account, a settled expense or income names
// exactly one, and a transfer names two distinct accounts.
func (m *Movement) Validate() error {
	if !m.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInconsistent, m.Kind)
	}

	switch m.State {
	case StateSettled, StatePendingCredit:
	default:
		return fmt.Errorf("%w: unknown state %q", ErrInconsistent, m.State)
	}

	if m.IsTransfer() {
		switch {
		case m.State != StateSettled:
			return fmt.Errorf("%w: transfer cannot be pending", ErrInconsistent)
		case m.FromAccountID.IsNil() || m.ToAccountID.IsNil():
			return fmt.Errorf("%w: transfer needs source and destination", ErrInconsistent)
		case m.FromAccountID == m.ToAccountID:
			return fmt.Errorf("%w: transfer source equals destination", ErrInconsistent)
		case !m.AccountID.IsNil():
			return fmt.Errorf("%w: transfer has a single account", ErrInconsistent)
		}
		return nil
	}

	if !m.FromAccountID.IsNil() || !m.ToAccountID.IsNil() {
		return fmt.Errorf("%w: %s has transfer accounts", ErrInconsistent, m.Kind)
	}

	switch {
	case m.State == StatePendingCredit && m.Kind != KindExpense:
		return fmt.Errorf("%w: only expenses can be pending credit", ErrInconsistent)
	case m.State == StatePendingCredit && !m.AccountID.IsNil():
		return fmt.Errorf("%w: pending credit has an account", ErrInconsistent)
	case m.State == StateSettled && m.AccountID.IsNil():
		return fmt.Errorf("%w: settled %s has no account", ErrInconsistent, m.Kind)
	}

	return nil
}
