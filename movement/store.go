package movement

import (
	"context"
	"time"

	"github.com/xraph/tally/id"
)

// Store reads movements. Movement writes go through the store's atomic
// commit so that a record and its balance effect change together.
type Store interface {
	GetMovement(ctx context.Context, ownerID string, movementID id.MovementID) (*Movement, error)
	ListMovements(ctx context.Context, ownerID string, opts ListOpts) ([]*Movement, error)

	// MovementCodes returns the display codes of the owner's movements that
	// start with prefix.
	MovementCodes(ctx context.Context, ownerID, prefix string) ([]string, error)
}

// ListOpts filters a movement listing. Results are ordered by OccurredAt
// descending, newest first.
type ListOpts struct {
	Kind       Kind
	State      State
	AccountID  id.AccountID // matches the account in any role
	CategoryID id.CategoryID
	Start      time.Time // inclusive
	End        time.Time // exclusive
	Limit      int
	Offset     int
}

// Match reports whether m passes the filter. Backends that cannot express
// a filter natively apply it in memory with Match.
func (o ListOpts) Match(m *Movement) bool {
	if o.Kind != "" && m.Kind != o.Kind {
		return false
	}
	if o.State != "" && m.State != o.State {
		return false
	}
	if !o.AccountID.IsNil() && !m.References(o.AccountID) {
		return false
	}
	if !o.CategoryID.IsNil() && m.CategoryID != o.CategoryID {
		return false
	}
	if !o.Start.IsZero() && m.OccurredAt.Before(o.Start) {
		return false
	}
	if !o.End.IsZero() && !m.OccurredAt.Before(o.End) {
		return false
	}
	return true
}
