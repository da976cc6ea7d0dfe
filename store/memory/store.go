// Package memory provides an in-memory store for tests and development.
// Records are copied on the way in and out, so callers never share state
// with the store.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

var _ store.Store = (*Store)(nil)

type Store struct {
	mu sync.RWMutex

	accounts   map[id.AccountID]*account.Account
	movements  map[id.MovementID]*movement.Movement
	categories map[id.CategoryID]*catalog.Category
	items      map[id.ItemID]*catalog.Item

	closed bool
}

func New() *Store {
	return &Store{
		accounts:   make(map[id.AccountID]*account.Account),
		movements:  make(map[id.MovementID]*movement.Movement),
		categories: make(map[id.CategoryID]*catalog.Category),
		items:      make(map[id.ItemID]*catalog.Item),
	}
}

// ──────────────────────────────────────────────────
// Account Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.accounts[a.ID]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return nil
}

func (s *Store) GetAccount(_ context.Context, ownerID string, accountID id.AccountID) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.account(ownerID, accountID)
	if !ok {
		return nil, tally.ErrAccountNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *Store) ListAccounts(_ context.Context, ownerID string) ([]*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*account.Account, 0)
	for _, a := range s.accounts {
		if a.OwnerID == ownerID {
			cp := *a
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (s *Store) UpdateAccount(_ context.Context, a *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.account(a.OwnerID, a.ID)
	if !ok {
		return tally.ErrAccountNotFound
	}
	cur.Kind = a.Kind
	cur.Name = a.Name
	cur.BankName = a.BankName
	cur.AccountNumber = a.AccountNumber
	cur.UpdatedAt = a.UpdatedAt
	return nil
}

func (s *Store) AdjustBalance(_ context.Context, ownerID string, accountID id.AccountID, delta types.Money) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.account(ownerID, accountID)
	if !ok {
		return tally.ErrAccountNotFound
	}
	a.Balance = a.Balance.Add(delta)
	return nil
}

func (s *Store) DeleteAccount(_ context.Context, ownerID string, accountID id.AccountID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.account(ownerID, accountID); !ok {
		return tally.ErrAccountNotFound
	}
	delete(s.accounts, accountID)
	return nil
}

func (s *Store) account(ownerID string, accountID id.AccountID) (*account.Account, bool) {
	a, ok := s.accounts[accountID]
	if !ok || a.OwnerID != ownerID {
		return nil, false
	}
	return a, true
}

// ──────────────────────────────────────────────────
// Movement Store implementation
// ──────────────────────────────────────────────────

func (s *Store) GetMovement(_ context.Context, ownerID string, movementID id.MovementID) (*movement.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.movements[movementID]
	if !ok || m.OwnerID != ownerID {
		return nil, tally.ErrMovementNotFound
	}
	return m.Clone(), nil
}

func (s *Store) ListMovements(_ context.Context, ownerID string, opts movement.ListOpts) ([]*movement.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*movement.Movement, 0)
	for _, m := range s.movements {
		if m.OwnerID == ownerID && opts.Match(m) {
			result = append(result, m.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].OccurredAt.Equal(result[j].OccurredAt) {
			return result[i].OccurredAt.After(result[j].OccurredAt)
		}
		return result[i].Code > result[j].Code
	})

	// Apply limit/offset
	start := opts.Offset
	if start > len(result) {
		start = len(result)
	}
	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) MovementCodes(_ context.Context, ownerID, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var codes []string
	for _, m := range s.movements {
		if m.OwnerID == ownerID && strings.HasPrefix(m.Code, prefix) {
			codes = append(codes, m.Code)
		}
	}
	return codes, nil
}

// ──────────────────────────────────────────────────
// Catalog Store implementation
// ──────────────────────────────────────────────────

func (s *Store) CreateCategory(_ context.Context, c *catalog.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.categories[c.ID]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *c
	s.categories[c.ID] = &cp
	return nil
}

func (s *Store) GetCategory(_ context.Context, ownerID string, categoryID id.CategoryID) (*catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.categories[categoryID]
	if !ok || c.OwnerID != ownerID {
		return nil, tally.ErrCategoryNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]*catalog.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Category, 0)
	for _, c := range s.categories {
		if c.OwnerID == ownerID {
			cp := *c
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

func (s *Store) CreateItem(_ context.Context, it *catalog.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.items[it.ID]; exists {
		return tally.ErrAlreadyExists
	}
	cp := *it
	s.items[it.ID] = &cp
	return nil
}

func (s *Store) GetItem(_ context.Context, ownerID string, itemID id.ItemID) (*catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	it, ok := s.items[itemID]
	if !ok || it.OwnerID != ownerID {
		return nil, tally.ErrItemNotFound
	}
	cp := *it
	return &cp, nil
}

func (s *Store) ListItems(_ context.Context, ownerID string, categoryID id.CategoryID) ([]*catalog.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*catalog.Item, 0)
	for _, it := range s.items {
		if it.OwnerID != ownerID {
			continue
		}
		if !categoryID.IsNil() && it.CategoryID != categoryID {
			continue
		}
		cp := *it
		result = append(result, &cp)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

// ──────────────────────────────────────────────────
// Atomic commit
// ──────────────────────────────────────────────────

// Commit validates the whole changeset under the write lock before
// touching anything, so a failed guard or missing record leaves the store
// exactly as it was.
func (s *Store) Commit(_ context.Context, cs *store.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return tally.ErrStoreClosed
	}

	if cs.Expect != nil {
		m, ok := s.movements[cs.Expect.ID]
		if !ok || m.OwnerID != cs.OwnerID {
			return tally.ErrMovementNotFound
		}
		if err := tally.CheckRevision(m, cs.Expect); err != nil {
			return err
		}
	}

	for _, g := range cs.Guards {
		a, ok := s.account(cs.OwnerID, g.AccountID)
		if !ok {
			return tally.ErrAccountNotFound
		}
		if err := tally.CheckGuard(a, g); err != nil {
			return err
		}
	}
	for _, d := range cs.Deltas {
		if _, ok := s.account(cs.OwnerID, d.AccountID); !ok {
			return tally.ErrAccountNotFound
		}
	}

	switch {
	case cs.Insert != nil:
		if _, exists := s.movements[cs.Insert.ID]; exists {
			return tally.ErrAlreadyExists
		}
	case cs.Update != nil:
		if m, ok := s.movements[cs.Update.ID]; !ok || m.OwnerID != cs.OwnerID {
			return tally.ErrMovementNotFound
		}
	case !cs.Delete.IsNil():
		if m, ok := s.movements[cs.Delete]; !ok || m.OwnerID != cs.OwnerID {
			return tally.ErrMovementNotFound
		}
	}

	for _, d := range cs.Deltas {
		a := s.accounts[d.AccountID]
		a.Balance = a.Balance.Add(d.Amount)
	}

	switch {
	case cs.Insert != nil:
		s.movements[cs.Insert.ID] = cs.Insert.Clone()
	case cs.Update != nil:
		s.movements[cs.Update.ID] = cs.Update.Clone()
	case !cs.Delete.IsNil():
		delete(s.movements, cs.Delete)
	}

	return nil
}

// ──────────────────────────────────────────────────
// Lifecycle
// ──────────────────────────────────────────────────

func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(_ context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return tally.ErrStoreClosed
	}
	return nil
}

func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.closed = true
	return nil
}
