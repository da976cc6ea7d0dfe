// Package account defines the account entity whose balance the engine keeps
// consistent with the movements recorded against it.
package account

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Kind distinguishes physical cash from bank-held money.
type Kind string

const (
	KindCash Kind = "cash"
	KindBank Kind = "bank"
)

// Valid reports whether k is a known account kind.
func (k Kind) Valid() bool {
	return k == KindCash || k == KindBank
}

// Account is a balance-bearing store of money owned by a single user.
//
// Balance always equals OpeningBalance plus the signed effect of every
// settled movement that references the account. Only the movement
// lifecycle changes Balance after creation.
type Account struct {
	types.Entity
	ID             id.AccountID `json:"id"`
	OwnerID        string       `json:"owner_id"`
	Kind           Kind         `json:"kind"`
	Name           string       `json:"name"`
	BankName       string       `json:"bank_name,omitempty"`
	AccountNumber  string       `json:"account_number,omitempty"`
	OpeningBalance types.Money  `json:"opening_balance"`
	Balance        types.Money  `json:"balance"`
}
