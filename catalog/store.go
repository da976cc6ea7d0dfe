package catalog

import (
	"context"

	"github.com/xraph/tally/id"
)

// Store persists categories and items, scoped per owner.
type Store interface {
	CreateCategory(ctx context.Context, c *Category) error
	GetCategory(ctx context.Context, ownerID string, categoryID id.CategoryID) (*Category, error)
	ListCategories(ctx context.Context, ownerID string) ([]*Category, error)

	CreateItem(ctx context.Context, it *Item) error
	GetItem(ctx context.Context, ownerID string, itemID id.ItemID) (*Item, error)

	// ListItems returns the owner's items, limited to one category unless
	// categoryID is Nil.
	ListItems(ctx context.Context, ownerID string, categoryID id.CategoryID) ([]*Item, error)
}
