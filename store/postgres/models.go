package postgres

import (
	"github.com/shopspring/decimal"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// Numeric columns are selected as text and written from text so that no
// precision is lost between shopspring/decimal and NUMERIC.

type scanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, owner_id, kind, name, bank_name, account_number, currency,
	opening_balance::text, balance::text, created_at, updated_at`

func scanAccount(row scanner) (*account.Account, error) {
	var (
		a                account.Account
		kind, currency   string
		opening, balance decimal.Decimal
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &kind, &a.Name, &a.BankName, &a.AccountNumber, &currency,
		&opening, &balance, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Kind = account.Kind(kind)
	a.OpeningBalance = types.New(opening, currency)
	a.Balance = types.New(balance, currency)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return &a, nil
}

const categoryColumns = `id, owner_id, name, created_at, updated_at`

func scanCategory(row scanner) (*catalog.Category, error) {
	var c catalog.Category
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.CreatedAt = c.CreatedAt.UTC()
	c.UpdatedAt = c.UpdatedAt.UTC()
	return &c, nil
}

const itemColumns = `id, owner_id, category_id, name, unit, created_at, updated_at`

func scanItem(row scanner) (*catalog.Item, error) {
	var it catalog.Item
	if err := row.Scan(&it.ID, &it.OwnerID, &it.CategoryID, &it.Name, &it.Unit, &it.CreatedAt, &it.UpdatedAt); err != nil {
		return nil, err
	}
	it.CreatedAt = it.CreatedAt.UTC()
	it.UpdatedAt = it.UpdatedAt.UTC()
	return &it, nil
}

const movementColumns = `id, owner_id, code, kind, state, category_id, item_id, item_ids, multi_item,
	currency, price::text, quantity::text, total::text, remark, account_id, from_account_id, to_account_id,
	occurred_at, created_at, updated_at`

func scanMovement(row scanner) (*movement.Movement, error) {
	var (
		m                 movement.Movement
		kind, state, cur  string
		itemIDs           []string
		price, qty, total decimal.Decimal
	)
	if err := row.Scan(&m.ID, &m.OwnerID, &m.Code, &kind, &state, &m.CategoryID, &m.ItemID, &itemIDs,
		&m.MultiItem, &cur, &price, &qty, &total, &m.Remark, &m.AccountID, &m.FromAccountID,
		&m.ToAccountID, &m.OccurredAt, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}

	m.Kind = movement.Kind(kind)
	m.State = movement.State(state)
	m.Price = types.New(price, cur)
	m.Quantity = qty
	m.Total = types.New(total, cur)
	m.OccurredAt = m.OccurredAt.UTC()
	m.CreatedAt = m.CreatedAt.UTC()
	m.UpdatedAt = m.UpdatedAt.UTC()

	if len(itemIDs) > 0 {
		m.ItemIDs = make([]id.ItemID, len(itemIDs))
		for i, s := range itemIDs {
			v, err := id.ParseItemID(s)
			if err != nil {
				return nil, err
			}
			m.ItemIDs[i] = v
		}
	}
	return &m, nil
}

// movementArgs returns the insert values for movementColumns, in order.
func movementArgs(m *movement.Movement) []any {
	return []any{
		m.ID, m.OwnerID, m.Code, string(m.Kind), string(m.State), m.CategoryID, m.ItemID,
		itemIDStrings(m.ItemIDs), m.MultiItem, m.Total.Currency, m.Price.Amount.String(),
		m.Quantity.String(), m.Total.Amount.String(), m.Remark, m.AccountID, m.FromAccountID,
		m.ToAccountID, m.OccurredAt, m.CreatedAt, m.UpdatedAt,
	}
}

func itemIDStrings(ids []id.ItemID) []string {
	out := make([]string, len(ids))
	for i, v := range ids {
		out[i] = v.String()
	}
	return out
}
