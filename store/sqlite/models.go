package sqlite

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// Timestamps are stored as Unix milliseconds so that ordering in SQL is
// numeric rather than lexical.

func toMillis(t time.Time) int64 { return t.UnixMilli() }

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

type scanner interface {
	Scan(dest ...any) error
}

const accountColumns = `id, owner_id, kind, name, bank_name, account_number, currency,
	opening_balance, balance, created_at, updated_at`

func scanAccount(row scanner) (*account.Account, error) {
	var (
		a                account.Account
		kind, currency   string
		opening, balance decimal.Decimal
		created, updated int64
	)
	if err := row.Scan(&a.ID, &a.OwnerID, &kind, &a.Name, &a.BankName, &a.AccountNumber, &currency,
		&opening, &balance, &created, &updated); err != nil {
		return nil, err
	}
	a.Kind = account.Kind(kind)
	a.OpeningBalance = types.New(opening, currency)
	a.Balance = types.New(balance, currency)
	a.CreatedAt = fromMillis(created)
	a.UpdatedAt = fromMillis(updated)
	return &a, nil
}

const categoryColumns = `id, owner_id, name, created_at, updated_at`

func scanCategory(row scanner) (*catalog.Category, error) {
	var (
		c                catalog.Category
		created, updated int64
	)
	if err := row.Scan(&c.ID, &c.OwnerID, &c.Name, &created, &updated); err != nil {
		return nil, err
	}
	c.CreatedAt = fromMillis(created)
	c.UpdatedAt = fromMillis(updated)
	return &c, nil
}

const itemColumns = `id, owner_id, category_id, name, unit, created_at, updated_at`

func scanItem(row scanner) (*catalog.Item, error) {
	var (
		it               catalog.Item
		created, updated int64
	)
	if err := row.Scan(&it.ID, &it.OwnerID, &it.CategoryID, &it.Name, &it.Unit, &created, &updated); err != nil {
		return nil, err
	}
	it.CreatedAt = fromMillis(created)
	it.UpdatedAt = fromMillis(updated)
	return &it, nil
}

const movementColumns = `id, owner_id, code, kind, state, category_id, item_id, item_ids, multi_item,
	currency, price, quantity, total, remark, account_id, from_account_id, to_account_id,
	occurred_at, created_at, updated_at`

func scanMovement(row scanner) (*movement.Movement, error) {
	var (
		m                          movement.Movement
		kind, state, itemIDs, cur  string
		price, total               decimal.Decimal
		occurred, created, updated int64
	)
	if err := row.Scan(&m.ID, &m.OwnerID, &m.Code, &kind, &state, &m.CategoryID, &m.ItemID, &itemIDs,
		&m.MultiItem, &cur, &price, &m.Quantity, &total, &m.Remark, &m.AccountID, &m.FromAccountID,
		&m.ToAccountID, &occurred, &created, &updated); err != nil {
		return nil, err
	}

	m.Kind = movement.Kind(kind)
	m.State = movement.State(state)
	m.Price = types.New(price, cur)
	m.Total = types.New(total, cur)
	m.OccurredAt = fromMillis(occurred)
	m.CreatedAt = fromMillis(created)
	m.UpdatedAt = fromMillis(updated)

	ids, err := splitItemIDs(itemIDs)
	if err != nil {
		return nil, err
	}
	m.ItemIDs = ids
	return &m, nil
}

// movementArgs returns the values for movementColumns, in order.
func movementArgs(m *movement.Movement) []any {
	return []any{
		m.ID, m.OwnerID, m.Code, string(m.Kind), string(m.State), m.CategoryID, m.ItemID,
		joinItemIDs(m.ItemIDs), m.MultiItem, m.Total.Currency, m.Price.Amount, m.Quantity,
		m.Total.Amount, m.Remark, m.AccountID, m.FromAccountID, m.ToAccountID,
		toMillis(m.OccurredAt), toMillis(m.CreatedAt), toMillis(m.UpdatedAt),
	}
}

func joinItemIDs(ids []id.ItemID) string {
	parts := make([]string, len(ids))
	for i, v := range ids {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}

func splitItemIDs(s string) ([]id.ItemID, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]id.ItemID, len(parts))
	for i, p := range parts {
		v, err := id.ParseItemID(p)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
