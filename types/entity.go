package types

import "time"

// Entity carries the bookkeeping timestamps shared by accounts, movements
// and catalog entries.
type Entity struct {
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewEntity creates a new Entity stamped with the current UTC time.
func NewEntity() Entity {
	return NewEntityAt(time.Now())
}

// NewEntityAt creates an Entity stamped with t, truncated to milliseconds
// so the value survives a round trip through Postgres and Mongo unchanged.
func NewEntityAt(t time.Time) Entity {
	t = t.UTC().Truncate(time.Millisecond)
	return Entity{CreatedAt: t, UpdatedAt: t}
}

// Touch sets UpdatedAt to t.
func (e *Entity) Touch(t time.Time) {
	e.UpdatedAt = t.UTC().Truncate(time.Millisecond)
}
