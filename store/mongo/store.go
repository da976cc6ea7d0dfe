// Package mongo implements store.Store on MongoDB through grove's mongo
// driver.
//
// Balances are stored as decimal strings, so Commit reads and rewrites
// them inside a multi-document transaction. Transactions need a replica
// set or sharded cluster; the driver retries transient write conflicts.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// Collection name constants.
const (
	colAccounts   = "tally_accounts"
	colCategories = "tally_categories"
	colItems      = "tally_items"
	colMovements  = "tally_movements"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for all tally collections.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%w: tally/mongo: %s indexes: %w", tally.ErrMigrationFailed, col, err)
		}
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.mdb.NewInsert(toAccountModel(a)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, ownerID string, accountID id.AccountID) (*account.Account, error) {
	return s.getAccount(ctx, ownerID, accountID)
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*account.Account, error) {
	var models []accountModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner_id": ownerID}).
		Sort(bson.D{{Key: "created_at", Value: 1}, {Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list accounts: %w", err)
	}

	result := make([]*account.Account, len(models))
	for i := range models {
		a, err := fromAccountModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = a
	}
	return result, nil
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	res, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": a.ID.String(), "owner_id": a.OwnerID}).
		Set("kind", string(a.Kind)).
		Set("name", a.Name).
		Set("bank_name", a.BankName).
		Set("account_number", a.AccountNumber).
		Set("updated_at", a.UpdatedAt).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: update account: %w", err)
	}
	if res.MatchedCount() == 0 {
		return tally.ErrAccountNotFound
	}
	return nil
}

func (s *Store) AdjustBalance(ctx context.Context, ownerID string, accountID id.AccountID, delta types.Money) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		a, err := s.getAccount(ctx, ownerID, accountID)
		if err != nil {
			return err
		}
		return s.setBalance(ctx, a.ID, a.Balance.Add(delta))
	})
}

func (s *Store) DeleteAccount(ctx context.Context, ownerID string, accountID id.AccountID) error {
	res, err := s.mdb.NewDelete((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String(), "owner_id": ownerID}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: delete account: %w", err)
	}
	if res.DeletedCount() == 0 {
		return tally.ErrAccountNotFound
	}
	return nil
}

// ==================== Catalog Store ====================

func (s *Store) CreateCategory(ctx context.Context, c *catalog.Category) error {
	_, err := s.mdb.NewInsert(toCategoryModel(c)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create category: %w", err)
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, ownerID string, categoryID id.CategoryID) (*catalog.Category, error) {
	var m categoryModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": categoryID.String(), "owner_id": ownerID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get category: %w", err)
	}
	return fromCategoryModel(&m)
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]*catalog.Category, error) {
	var models []categoryModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{"owner_id": ownerID}).
		Sort(bson.D{{Key: "name", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list categories: %w", err)
	}

	result := make([]*catalog.Category, len(models))
	for i := range models {
		c, err := fromCategoryModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = c
	}
	return result, nil
}

func (s *Store) CreateItem(ctx context.Context, it *catalog.Item) error {
	_, err := s.mdb.NewInsert(toItemModel(it)).Exec(ctx)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/mongo: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, ownerID string, itemID id.ItemID) (*catalog.Item, error) {
	var m itemModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": itemID.String(), "owner_id": ownerID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrItemNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get item: %w", err)
	}
	return fromItemModel(&m)
}

func (s *Store) ListItems(ctx context.Context, ownerID string, categoryID id.CategoryID) ([]*catalog.Item, error) {
	filter := bson.M{"owner_id": ownerID}
	if !categoryID.IsNil() {
		filter["category_id"] = categoryID.String()
	}

	var models []itemModel
	err := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "name", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: list items: %w", err)
	}

	result := make([]*catalog.Item, len(models))
	for i := range models {
		it, err := fromItemModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = it
	}
	return result, nil
}

// ==================== Movement Store ====================

func (s *Store) GetMovement(ctx context.Context, ownerID string, movementID id.MovementID) (*movement.Movement, error) {
	return s.getMovement(ctx, ownerID, movementID)
}

func (s *Store) getMovement(ctx context.Context, ownerID string, movementID id.MovementID) (*movement.Movement, error) {
	var m movementModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": movementID.String(), "owner_id": ownerID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrMovementNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get movement: %w", err)
	}
	return fromMovementModel(&m)
}

func (s *Store) ListMovements(ctx context.Context, ownerID string, opts movement.ListOpts) ([]*movement.Movement, error) {
	filter := bson.M{"owner_id": ownerID}
	if opts.Kind != "" {
		filter["kind"] = string(opts.Kind)
	}
	if opts.State != "" {
		filter["state"] = string(opts.State)
	}
	if !opts.AccountID.IsNil() {
		acct := opts.AccountID.String()
		filter["$or"] = bson.A{
			bson.M{"account_id": acct},
			bson.M{"from_account_id": acct},
			bson.M{"to_account_id": acct},
		}
	}
	if !opts.CategoryID.IsNil() {
		filter["category_id"] = opts.CategoryID.String()
	}
	if !opts.Start.IsZero() || !opts.End.IsZero() {
		occurred := bson.M{}
		if !opts.Start.IsZero() {
			occurred["$gte"] = opts.Start
		}
		if !opts.End.IsZero() {
			occurred["$lt"] = opts.End
		}
		filter["occurred_at"] = occurred
	}

	var models []movementModel
	q := s.mdb.NewFind(&models).
		Filter(filter).
		Sort(bson.D{{Key: "occurred_at", Value: -1}, {Key: "code", Value: -1}})

	if opts.Limit > 0 {
		q = q.Limit(int64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Skip(int64(opts.Offset))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("tally/mongo: list movements: %w", err)
	}

	result := make([]*movement.Movement, len(models))
	for i := range models {
		m, err := fromMovementModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = m
	}
	return result, nil
}

func (s *Store) MovementCodes(ctx context.Context, ownerID, prefix string) ([]string, error) {
	var models []movementModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{
			"owner_id": ownerID,
			"code":     bson.M{"$regex": "^" + regexp.QuoteMeta(prefix)},
		}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("tally/mongo: movement codes: %w", err)
	}

	codes := make([]string, len(models))
	for i := range models {
		codes[i] = models[i].Code
	}
	return codes, nil
}

// ==================== Atomic commit ====================

// Commit applies cs in one multi-document transaction.
func (s *Store) Commit(ctx context.Context, cs *tallystore.Changeset) error {
	return s.inTx(ctx, func(ctx context.Context) error {
		if cs.Expect != nil {
			cur, err := s.getMovement(ctx, cs.OwnerID, cs.Expect.ID)
			if err != nil {
				return err
			}
			if err := tally.CheckRevision(cur, cs.Expect); err != nil {
				return err
			}
		}

		accts := make(map[id.AccountID]*account.Account)
		for _, accountID := range cs.Accounts() {
			a, err := s.getAccount(ctx, cs.OwnerID, accountID)
			if err != nil {
				return err
			}
			accts[accountID] = a
		}

		for _, g := range cs.Guards {
			if err := tally.CheckGuard(accts[g.AccountID], g); err != nil {
				return err
			}
		}

		for _, d := range cs.Deltas {
			a := accts[d.AccountID]
			a.Balance = a.Balance.Add(d.Amount)
		}
		for _, accountID := range cs.Accounts() {
			if err := s.setBalance(ctx, accountID, accts[accountID].Balance); err != nil {
				return err
			}
		}

		switch {
		case cs.Insert != nil:
			if _, err := s.mdb.NewInsert(toMovementModel(cs.Insert)).Exec(ctx); err != nil {
				if mongo.IsDuplicateKeyError(err) {
					return tally.ErrAlreadyExists
				}
				return fmt.Errorf("tally/mongo: insert movement: %w", err)
			}

		case cs.Update != nil:
			m := toMovementModel(cs.Update)
			res, err := s.mdb.NewUpdate(m).
				Filter(revisionFilter(cs.OwnerID, m.ID, cs.Expect)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("tally/mongo: update movement: %w", err)
			}
			if res.MatchedCount() == 0 {
				return missingOrConflict(cs.Expect)
			}

		case !cs.Delete.IsNil():
			res, err := s.mdb.NewDelete((*movementModel)(nil)).
				Filter(revisionFilter(cs.OwnerID, cs.Delete.String(), cs.Expect)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("tally/mongo: delete movement: %w", err)
			}
			if res.DeletedCount() == 0 {
				return missingOrConflict(cs.Expect)
			}
		}

		return nil
	})
}

// ==================== Helpers ====================

// inTx runs fn in a transaction. Grove queries issued with the ctx passed
// to fn join the session.
func (s *Store) inTx(ctx context.Context, fn func(ctx context.Context) error) error {
	client := s.mdb.Collection(colAccounts).Database().Client()

	sess, err := client.StartSession()
	if err != nil {
		return fmt.Errorf("%w: tally/mongo: start session: %w", tally.ErrTransactionFailed, err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

func (s *Store) getAccount(ctx context.Context, ownerID string, accountID id.AccountID) (*account.Account, error) {
	var m accountModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": accountID.String(), "owner_id": ownerID}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tally/mongo: get account: %w", err)
	}
	return fromAccountModel(&m)
}

func (s *Store) setBalance(ctx context.Context, accountID id.AccountID, balance types.Money) error {
	_, err := s.mdb.NewUpdate((*accountModel)(nil)).
		Filter(bson.M{"_id": accountID.String()}).
		Set("balance", balance.Amount.String()).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("tally/mongo: set balance: %w", err)
	}
	return nil
}

// revisionFilter matches the movement, and when expect is set only while
// it still carries the expected state and write time.
func revisionFilter(ownerID, movementID string, expect *movement.Movement) bson.M {
	f := bson.M{"_id": movementID, "owner_id": ownerID}
	if expect != nil {
		f["state"] = string(expect.State)
		f["updated_at"] = expect.UpdatedAt
	}
	return f
}

func missingOrConflict(expect *movement.Movement) error {
	if expect != nil {
		return tally.ErrConflict
	}
	return tally.ErrMovementNotFound
}

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for all tally collections.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colAccounts: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "created_at", Value: 1}}},
		},
		colCategories: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "name", Value: 1}}},
		},
		colItems: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "category_id", Value: 1}, {Key: "name", Value: 1}}},
		},
		colMovements: {
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "occurred_at", Value: -1}, {Key: "code", Value: -1}}},
			{Keys: bson.D{{Key: "owner_id", Value: 1}, {Key: "code", Value: 1}}},
			{
				Keys:    bson.D{{Key: "account_id", Value: 1}},
				Options: options.Index().SetSparse(true),
			},
		},
	}
}
