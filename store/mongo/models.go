package mongo

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/xraph/grove"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// Amounts are stored as decimal strings. Optional references are stored
// as empty strings.

// ==================== Account models ====================

type accountModel struct {
	grove.BaseModel `grove:"table:tally_accounts"`

	ID             string    `grove:"id,pk"           bson:"_id"`
	OwnerID        string    `grove:"owner_id"        bson:"owner_id"`
	Kind           string    `grove:"kind"            bson:"kind"`
	Name           string    `grove:"name"            bson:"name"`
	BankName       string    `grove:"bank_name"       bson:"bank_name"`
	AccountNumber  string    `grove:"account_number"  bson:"account_number"`
	Currency       string    `grove:"currency"        bson:"currency"`
	OpeningBalance string    `grove:"opening_balance" bson:"opening_balance"`
	Balance        string    `grove:"balance"         bson:"balance"`
	CreatedAt      time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt      time.Time `grove:"updated_at"      bson:"updated_at"`
}

func toAccountModel(a *account.Account) *accountModel {
	return &accountModel{
		ID:             a.ID.String(),
		OwnerID:        a.OwnerID,
		Kind:           string(a.Kind),
		Name:           a.Name,
		BankName:       a.BankName,
		AccountNumber:  a.AccountNumber,
		Currency:       a.Balance.Currency,
		OpeningBalance: a.OpeningBalance.Amount.String(),
		Balance:        a.Balance.Amount.String(),
		CreatedAt:      a.CreatedAt,
		UpdatedAt:      a.UpdatedAt,
	}
}

func fromAccountModel(m *accountModel) (*account.Account, error) {
	accountID, err := id.ParseAccountID(m.ID)
	if err != nil {
		return nil, err
	}
	opening, err := decimal.NewFromString(m.OpeningBalance)
	if err != nil {
		return nil, fmt.Errorf("account %s opening balance: %w", m.ID, err)
	}
	balance, err := decimal.NewFromString(m.Balance)
	if err != nil {
		return nil, fmt.Errorf("account %s balance: %w", m.ID, err)
	}
	return &account.Account{
		Entity:         types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:             accountID,
		OwnerID:        m.OwnerID,
		Kind:           account.Kind(m.Kind),
		Name:           m.Name,
		BankName:       m.BankName,
		AccountNumber:  m.AccountNumber,
		OpeningBalance: types.New(opening, m.Currency),
		Balance:        types.New(balance, m.Currency),
	}, nil
}

// ==================== Catalog models ====================

type categoryModel struct {
	grove.BaseModel `grove:"table:tally_categories"`

	ID        string    `grove:"id,pk"      bson:"_id"`
	OwnerID   string    `grove:"owner_id"   bson:"owner_id"`
	Name      string    `grove:"name"       bson:"name"`
	CreatedAt time.Time `grove:"created_at" bson:"created_at"`
	UpdatedAt time.Time `grove:"updated_at" bson:"updated_at"`
}

func toCategoryModel(c *catalog.Category) *categoryModel {
	return &categoryModel{
		ID:        c.ID.String(),
		OwnerID:   c.OwnerID,
		Name:      c.Name,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	}
}

func fromCategoryModel(m *categoryModel) (*catalog.Category, error) {
	categoryID, err := id.ParseCategoryID(m.ID)
	if err != nil {
		return nil, err
	}
	return &catalog.Category{
		Entity:  types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:      categoryID,
		OwnerID: m.OwnerID,
		Name:    m.Name,
	}, nil
}

type itemModel struct {
	grove.BaseModel `grove:"table:tally_items"`

	ID         string    `grove:"id,pk"       bson:"_id"`
	OwnerID    string    `grove:"owner_id"    bson:"owner_id"`
	CategoryID string    `grove:"category_id" bson:"category_id"`
	Name       string    `grove:"name"        bson:"name"`
	Unit       string    `grove:"unit"        bson:"unit"`
	CreatedAt  time.Time `grove:"created_at"  bson:"created_at"`
	UpdatedAt  time.Time `grove:"updated_at"  bson:"updated_at"`
}

func toItemModel(it *catalog.Item) *itemModel {
	return &itemModel{
		ID:         it.ID.String(),
		OwnerID:    it.OwnerID,
		CategoryID: it.CategoryID.String(),
		Name:       it.Name,
		Unit:       it.Unit,
		CreatedAt:  it.CreatedAt,
		UpdatedAt:  it.UpdatedAt,
	}
}

func fromItemModel(m *itemModel) (*catalog.Item, error) {
	itemID, err := id.ParseItemID(m.ID)
	if err != nil {
		return nil, err
	}
	categoryID, err := id.ParseOptional(m.CategoryID, id.PrefixCategory)
	if err != nil {
		return nil, err
	}
	return &catalog.Item{
		Entity:     types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:         itemID,
		OwnerID:    m.OwnerID,
		CategoryID: categoryID,
		Name:       m.Name,
		Unit:       m.Unit,
	}, nil
}

// ==================== Movement models ====================

type movementModel struct {
	grove.BaseModel `grove:"table:tally_movements"`

	ID            string    `grove:"id,pk"           bson:"_id"`
	OwnerID       string    `grove:"owner_id"        bson:"owner_id"`
	Code          string    `grove:"code"            bson:"code"`
	Kind          string    `grove:"kind"            bson:"kind"`
	State         string    `grove:"state"           bson:"state"`
	CategoryID    string    `grove:"category_id"     bson:"category_id"`
	ItemID        string    `grove:"item_id"         bson:"item_id"`
	ItemIDs       []string  `grove:"item_ids"        bson:"item_ids,omitempty"`
	MultiItem     bool      `grove:"multi_item"      bson:"multi_item"`
	Currency      string    `grove:"currency"        bson:"currency"`
	Price         string    `grove:"price"           bson:"price"`
	Quantity      string    `grove:"quantity"        bson:"quantity"`
	Total         string    `grove:"total"           bson:"total"`
	Remark        string    `grove:"remark"          bson:"remark"`
	AccountID     string    `grove:"account_id"      bson:"account_id"`
	FromAccountID string    `grove:"from_account_id" bson:"from_account_id"`
	ToAccountID   string    `grove:"to_account_id"   bson:"to_account_id"`
	OccurredAt    time.Time `grove:"occurred_at"     bson:"occurred_at"`
	CreatedAt     time.Time `grove:"created_at"      bson:"created_at"`
	UpdatedAt     time.Time `grove:"updated_at"      bson:"updated_at"`
}

func toMovementModel(m *movement.Movement) *movementModel {
	var itemIDs []string
	if len(m.ItemIDs) > 0 {
		itemIDs = make([]string, len(m.ItemIDs))
		for i, v := range m.ItemIDs {
			itemIDs[i] = v.String()
		}
	}
	return &movementModel{
		ID:            m.ID.String(),
		OwnerID:       m.OwnerID,
		Code:          m.Code,
		Kind:          string(m.Kind),
		State:         string(m.State),
		CategoryID:    m.CategoryID.String(),
		ItemID:        m.ItemID.String(),
		ItemIDs:       itemIDs,
		MultiItem:     m.MultiItem,
		Currency:      m.Total.Currency,
		Price:         m.Price.Amount.String(),
		Quantity:      m.Quantity.String(),
		Total:         m.Total.Amount.String(),
		Remark:        m.Remark,
		AccountID:     m.AccountID.String(),
		FromAccountID: m.FromAccountID.String(),
		ToAccountID:   m.ToAccountID.String(),
		OccurredAt:    m.OccurredAt,
		CreatedAt:     m.CreatedAt,
		UpdatedAt:     m.UpdatedAt,
	}
}

func fromMovementModel(m *movementModel) (*movement.Movement, error) {
	movementID, err := id.ParseMovementID(m.ID)
	if err != nil {
		return nil, err
	}

	out := &movement.Movement{
		Entity:     types.Entity{CreatedAt: m.CreatedAt.UTC(), UpdatedAt: m.UpdatedAt.UTC()},
		ID:         movementID,
		OwnerID:    m.OwnerID,
		Code:       m.Code,
		Kind:       movement.Kind(m.Kind),
		State:      movement.State(m.State),
		MultiItem:  m.MultiItem,
		Remark:     m.Remark,
		OccurredAt: m.OccurredAt.UTC(),
	}

	refs := []struct {
		dst    *id.ID
		raw    string
		prefix id.Prefix
	}{
		{&out.CategoryID, m.CategoryID, id.PrefixCategory},
		{&out.ItemID, m.ItemID, id.PrefixItem},
		{&out.AccountID, m.AccountID, id.PrefixAccount},
		{&out.FromAccountID, m.FromAccountID, id.PrefixAccount},
		{&out.ToAccountID, m.ToAccountID, id.PrefixAccount},
	}
	for _, r := range refs {
		v, err := id.ParseOptional(r.raw, r.prefix)
		if err != nil {
			return nil, fmt.Errorf("movement %s: %w", m.ID, err)
		}
		*r.dst = v
	}

	if len(m.ItemIDs) > 0 {
		out.ItemIDs = make([]id.ItemID, len(m.ItemIDs))
		for i, s := range m.ItemIDs {
			v, err := id.ParseItemID(s)
			if err != nil {
				return nil, fmt.Errorf("movement %s: %w", m.ID, err)
			}
			out.ItemIDs[i] = v
		}
	}

	price, err := decimal.NewFromString(m.Price)
	if err != nil {
		return nil, fmt.Errorf("movement %s price: %w", m.ID, err)
	}
	qty, err := decimal.NewFromString(m.Quantity)
	if err != nil {
		return nil, fmt.Errorf("movement %s quantity: %w", m.ID, err)
	}
	total, err := decimal.NewFromString(m.Total)
	if err != nil {
		return nil, fmt.Errorf("movement %s total: %w", m.ID, err)
	}
	out.Price = types.New(price, m.Currency)
	out.Quantity = qty
	out.Total = types.New(total, m.Currency)

	return out, nil
}
