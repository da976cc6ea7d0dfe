// Package report projects stored movements into read models: joined rows
// for listings, dashboard totals and a balance reconciliation.
//
// Everything here is computed from records already loaded; nothing in this
// package writes or locks.
package report

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// Row is a movement joined with the display names of what it references.
// Names of records that no longer exist are left empty.
type Row struct {
	ID              id.MovementID   `json:"id"`
	Code            string          `json:"code"`
	Kind            movement.Kind   `json:"kind"`
	State           movement.State  `json:"state"`
	OccurredAt      time.Time       `json:"occurred_at"`
	CategoryID      id.CategoryID   `json:"category_id,omitzero"`
	CategoryName    string          `json:"category_name,omitempty"`
	ItemID          id.ItemID       `json:"item_id,omitzero"`
	ItemName        string          `json:"item_name,omitempty"`
	ItemNames       []string        `json:"item_names,omitempty"`
	Unit            string          `json:"unit,omitempty"`
	MultiItem       bool            `json:"multi_item"`
	Price           types.Money     `json:"price"`
	Quantity        decimal.Decimal `json:"quantity"`
	Total           types.Money     `json:"total"`
	Remark          string          `json:"remark,omitempty"`
	AccountID       id.AccountID    `json:"account_id,omitzero"`
	AccountName     string          `json:"account_name,omitempty"`
	FromAccountID   id.AccountID    `json:"from_account_id,omitzero"`
	FromAccountName string          `json:"from_account_name,omitempty"`
	ToAccountID     id.AccountID    `json:"to_account_id,omitzero"`
	ToAccountName   string          `json:"to_account_name,omitempty"`
}

// Catalog is the reference data a projection joins against.
type Catalog struct {
	Accounts   []*account.Account
	Categories []*catalog.Category
	Items      []*catalog.Item
}

type lookup struct {
	accounts   map[id.AccountID]*account.Account
	categories map[id.CategoryID]*catalog.Category
	items      map[id.ItemID]*catalog.Item
}

func (c Catalog) index() lookup {
	l := lookup{
		accounts:   make(map[id.AccountID]*account.Account, len(c.Accounts)),
		categories: make(map[id.CategoryID]*catalog.Category, len(c.Categories)),
		items:      make(map[id.ItemID]*catalog.Item, len(c.Items)),
	}
	for _, a := range c.Accounts {
		l.accounts[a.ID] = a
	}
	for _, cat := range c.Categories {
		l.categories[cat.ID] = cat
	}
	for _, it := range c.Items {
		l.items[it.ID] = it
	}
	return l
}

func (l lookup) accountName(accountID id.AccountID) string {
	if a, ok := l.accounts[accountID]; ok {
		return a.Name
	}
	return ""
}

// Rows joins movements with their names, preserving input order.
func Rows(ms []*movement.Movement, c Catalog) []Row {
	l := c.index()
	out := make([]Row, 0, len(ms))

	for _, m := range ms {
		r := Row{
			ID:            m.ID,
			Code:          m.Code,
			Kind:          m.Kind,
			State:         m.State,
			OccurredAt:    m.OccurredAt,
			CategoryID:    m.CategoryID,
			ItemID:        m.ItemID,
			MultiItem:     m.MultiItem,
			Price:         m.Price,
			Quantity:      m.Quantity,
			Total:         m.Total,
			Remark:        m.Remark,
			AccountID:     m.AccountID,
			AccountName:   l.accountName(m.AccountID),
			FromAccountID: m.FromAccountID,
			ToAccountID:   m.ToAccountID,
		}
		if m.IsTransfer() {
			r.FromAccountName = l.accountName(m.FromAccountID)
			r.ToAccountName = l.accountName(m.ToAccountID)
		}
		if cat, ok := l.categories[m.CategoryID]; ok {
			r.CategoryName = cat.Name
		}
		if it, ok := l.items[m.ItemID]; ok {
			r.ItemName = it.Name
			r.Unit = it.Unit
		}
		for _, itemID := range m.ItemIDs {
			if it, ok := l.items[itemID]; ok {
				r.ItemNames = append(r.ItemNames, it.Name)
			}
		}
		out = append(out, r)
	}

	return out
}

// CategoryTotal is the expense recorded under one category.
type CategoryTotal struct {
	CategoryID   id.CategoryID `json:"category_id,omitzero"`
	CategoryName string        `json:"category_name"`
	Total        types.Money   `json:"total"`
	Count        int           `json:"count"`
}

// Summary holds dashboard totals over a set of movements.
//
// Expense counts every expense, pending or settled; PendingCredit is the
// part of it not yet paid. NetBalance is the sum of current account
// balances and is not limited by the movement filter.
type Summary struct {
	Currency       string          `json:"currency"`
	Income         types.Money     `json:"income"`
	Expense        types.Money     `json:"expense"`
	PendingCredit  types.Money     `json:"pending_credit"`
	TransferVolume types.Money     `json:"transfer_volume"`
	NetBalance     types.Money     `json:"net_balance"`
	Accounts       int             `json:"accounts"`
	Movements      int             `json:"movements"`
	ByCategory     []CategoryTotal `json:"by_category"`
}

// Summarize computes totals for ms in currency.
func Summarize(currency string, ms []*movement.Movement, c Catalog) *Summary {
	l := c.index()
	s := &Summary{
		Currency:       currency,
		Income:         types.Zero(currency),
		Expense:        types.Zero(currency),
		PendingCredit:  types.Zero(currency),
		TransferVolume: types.Zero(currency),
		NetBalance:     types.Zero(currency),
		Accounts:       len(c.Accounts),
		Movements:      len(ms),
	}

	for _, a := range c.Accounts {
		s.NetBalance = s.NetBalance.Add(a.Balance)
	}

	byCategory := make(map[id.CategoryID]*CategoryTotal)
	for _, m := range ms {
		switch m.Kind {
		case movement.KindIncome:
			s.Income = s.Income.Add(m.Total)
		case movement.KindTransfer:
			s.TransferVolume = s.TransferVolume.Add(m.Total)
		case movement.KindExpense:
			s.Expense = s.Expense.Add(m.Total)
			if m.IsCredit() {
				s.PendingCredit = s.PendingCredit.Add(m.Total)
			}

			ct, ok := byCategory[m.CategoryID]
			if !ok {
				ct = &CategoryTotal{CategoryID: m.CategoryID, Total: types.Zero(currency)}
				if cat, found := l.categories[m.CategoryID]; found {
					ct.CategoryName = cat.Name
				}
				byCategory[m.CategoryID] = ct
			}
			ct.Total = ct.Total.Add(m.Total)
			ct.Count++
		}
	}

	s.ByCategory = make([]CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		s.ByCategory = append(s.ByCategory, *ct)
	}
	sort.Slice(s.ByCategory, func(i, j int) bool {
		if c := s.ByCategory[i].Total.Cmp(s.ByCategory[j].Total); c != 0 {
			return c > 0
		}
		return s.ByCategory[i].CategoryName < s.ByCategory[j].CategoryName
	})

	return s
}
