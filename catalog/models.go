// Package catalog holds the reference data movements point at: categories
// and the items filed under them. The engine only reads it to validate
// references and to label reports.
package catalog

import (
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// Category groups items, e.g. "Groceries" or "Salary".
type Category struct {
	types.Entity
	ID      id.CategoryID `json:"id"`
	OwnerID string        `json:"owner_id"`
	Name    string        `json:"name"`
}

// Item is a purchasable or billable thing within a category.
type Item struct {
	types.Entity
	ID         id.ItemID     `json:"id"`
	OwnerID    string        `json:"owner_id"`
	CategoryID id.CategoryID `json:"category_id"`
	Name       string        `json:"name"`
	Unit       string        `json:"unit,omitempty"` // kg, litre, piece
}
