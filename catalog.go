package tally

import (
	"context"
	"strings"

	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/types"
)

// CreateCategory adds a category to the caller's catalog.
func (t *Tally) CreateCategory(ctx context.Context, c *catalog.Category) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	if c == nil || strings.TrimSpace(c.Name) == "" {
		return ValidationError{Field: "name", Message: "is required"}
	}

	if c.ID.IsNil() {
		c.ID = id.NewCategoryID()
	}
	c.OwnerID = owner
	c.Entity = types.NewEntityAt(t.now())

	return t.store.CreateCategory(ctx, c)
}

// ListCategories returns the caller's categories.
func (t *Tally) ListCategories(ctx context.Context) ([]*catalog.Category, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListCategories(ctx, owner)
}

// CreateItem adds an item under an existing category.
func (t *Tally) CreateItem(ctx context.Context, it *catalog.Item) error {
	owner, err := requireOwner(ctx)
	if err != nil {
		return err
	}
	if it == nil || strings.TrimSpace(it.Name) == "" {
		return ValidationError{Field: "name", Message: "is required"}
	}
	if _, err := t.store.GetCategory(ctx, owner, it.CategoryID); err != nil {
		return err
	}

	if it.ID.IsNil() {
		it.ID = id.NewItemID()
	}
	it.OwnerID = owner
	it.Entity = types.NewEntityAt(t.now())

	return t.store.CreateItem(ctx, it)
}

// ListItems returns the caller's items, optionally limited to one category.
func (t *Tally) ListItems(ctx context.Context, categoryID id.CategoryID) ([]*catalog.Item, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}
	return t.store.ListItems(ctx, owner, categoryID)
}
