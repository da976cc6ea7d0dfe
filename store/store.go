// Package store defines the persistence contract for tally.
package store

import (
	"context"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/effect"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
)

// Store is the unified storage interface for all tally entities.
type Store interface {
	account.Store
	movement.Store
	catalog.Store

	// Commit applies a changeset atomically: every guard is evaluated
	// against the stored balances first, then the movement write and all
	// balance deltas are applied together, or nothing is.
	Commit(ctx context.Context, cs *Changeset) error

	// Migrate creates or upgrades the backing schema.
	Migrate(ctx context.Context) error

	// Ping checks connectivity.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Changeset is one atomic unit of ledger mutation. At most one of Insert,
// Update and Delete is set.
//
// Expect is the movement as the caller read it before computing Deltas.
// When set, backends lock the stored movement first and refuse the commit
// with tally.ErrConflict unless it is still that revision.
type Changeset struct {
	OwnerID string
	Guards  []effect.Guard
	Deltas  []effect.Delta
	Insert  *movement.Movement
	Update  *movement.Movement
	Delete  id.MovementID
	Expect  *movement.Movement
}

// Accounts returns every account the changeset reads or writes, sorted
// ascending. Backends lock rows in this order.
func (cs *Changeset) Accounts() []id.AccountID {
	ds := make([]effect.Delta, 0, len(cs.Deltas)+len(cs.Guards))
	ds = append(ds, cs.Deltas...)
	for _, g := range cs.Guards {
		ds = append(ds, effect.Delta{AccountID: g.AccountID})
	}
	return effect.Accounts(ds)
}
