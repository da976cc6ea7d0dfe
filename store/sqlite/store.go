// Package sqlite implements store.Store on an embedded SQLite database
// through the pure-Go modernc.org/sqlite driver.
//
// SQLite allows one writer at a time, so the store keeps a single open
// connection: a commit transaction owns the database until it finishes,
// which serializes balance updates across the whole file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/catalog"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	tallystore "github.com/xraph/tally/store"
	"github.com/xraph/tally/types"
)

// compile-time interface check
var _ tallystore.Store = (*Store)(nil)

// Store implements store.Store using SQLite.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open opens or creates the database file at path. Transactions begin
// IMMEDIATE so that stores in separate processes queue for the write lock
// instead of failing on a stale read snapshot.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tally/sqlite: ping %s: %w", path, err)
	}

	return New(db, opts...), nil
}

// New wraps an open database. The caller should limit it to one open
// connection.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// DB returns the underlying database for direct access.
func (s *Store) DB() *sql.DB { return s.db }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tally_accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.OwnerID, string(a.Kind), a.Name, a.BankName, a.AccountNumber, a.Balance.Currency,
		a.OpeningBalance.Amount, a.Balance.Amount, toMillis(a.CreatedAt), toMillis(a.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/sqlite: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, ownerID string, accountID id.AccountID) (*account.Account, error) {
	return getAccount(ctx, s.db, ownerID, accountID)
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*account.Account, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+accountColumns+` FROM tally_accounts
		WHERE owner_id = ? ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: list accounts: %w", err)
	}
	defer rows.Close()

	result := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/sqlite: list accounts: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	res, err := s.db.ExecContext(ctx, `UPDATE tally_accounts
		SET kind = ?, name = ?, bank_name = ?, account_number = ?, updated_at = ?
		WHERE id = ? AND owner_id = ?`,
		string(a.Kind), a.Name, a.BankName, a.AccountNumber, toMillis(a.UpdatedAt), a.ID, a.OwnerID)
	if err != nil {
		return fmt.Errorf("tally/sqlite: update account: %w", err)
	}
	return expectOne(res, tally.ErrAccountNotFound)
}

func (s *Store) AdjustBalance(ctx context.Context, ownerID string, accountID id.AccountID, delta types.Money) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		a, err := getAccount(ctx, tx, ownerID, accountID)
		if err != nil {
			return err
		}
		return setBalance(ctx, tx, a.ID, a.Balance.Add(delta))
	})
}

func (s *Store) DeleteAccount(ctx context.Context, ownerID string, accountID id.AccountID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tally_accounts WHERE id = ? AND owner_id = ?`,
		accountID, ownerID)
	if err != nil {
		return fmt.Errorf("tally/sqlite: delete account: %w", err)
	}
	return expectOne(res, tally.ErrAccountNotFound)
}

// ==================== Catalog Store ====================

func (s *Store) CreateCategory(ctx context.Context, c *catalog.Category) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tally_categories (`+categoryColumns+`)
		VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.OwnerID, c.Name, toMillis(c.CreatedAt), toMillis(c.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/sqlite: create category: %w", err)
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, ownerID string, categoryID id.CategoryID) (*catalog.Category, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+categoryColumns+` FROM tally_categories
		WHERE id = ? AND owner_id = ?`, categoryID, ownerID)
	c, err := scanCategory(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("tally/sqlite: get category: %w", err)
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]*catalog.Category, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+categoryColumns+` FROM tally_categories
		WHERE owner_id = ? ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: list categories: %w", err)
	}
	defer rows.Close()

	result := make([]*catalog.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/sqlite: list categories: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateItem(ctx context.Context, it *catalog.Item) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO tally_items (`+itemColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		it.ID, it.OwnerID, it.CategoryID, it.Name, it.Unit, toMillis(it.CreatedAt), toMillis(it.UpdatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/sqlite: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, ownerID string, itemID id.ItemID) (*catalog.Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM tally_items
		WHERE id = ? AND owner_id = ?`, itemID, ownerID)
	it, err := scanItem(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrItemNotFound
		}
		return nil, fmt.Errorf("tally/sqlite: get item: %w", err)
	}
	return it, nil
}

func (s *Store) ListItems(ctx context.Context, ownerID string, categoryID id.CategoryID) ([]*catalog.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM tally_items WHERE owner_id = ?`
	args := []any{ownerID}
	if !categoryID.IsNil() {
		query += ` AND category_id = ?`
		args = append(args, categoryID)
	}
	query += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: list items: %w", err)
	}
	defer rows.Close()

	result := make([]*catalog.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/sqlite: list items: %w", err)
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

// ==================== Movement Store ====================

func (s *Store) GetMovement(ctx context.Context, ownerID string, movementID id.MovementID) (*movement.Movement, error) {
	return getMovement(ctx, s.db, ownerID, movementID)
}

func (s *Store) ListMovements(ctx context.Context, ownerID string, opts movement.ListOpts) ([]*movement.Movement, error) {
	where := []string{"owner_id = ?"}
	args := []any{ownerID}

	if opts.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(opts.Kind))
	}
	if opts.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(opts.State))
	}
	if !opts.AccountID.IsNil() {
		where = append(where, "(account_id = ? OR from_account_id = ? OR to_account_id = ?)")
		args = append(args, opts.AccountID, opts.AccountID, opts.AccountID)
	}
	if !opts.CategoryID.IsNil() {
		where = append(where, "category_id = ?")
		args = append(args, opts.CategoryID)
	}
	if !opts.Start.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, toMillis(opts.Start))
	}
	if !opts.End.IsZero() {
		where = append(where, "occurred_at < ?")
		args = append(args, toMillis(opts.End))
	}

	query := `SELECT ` + movementColumns + ` FROM tally_movements WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY occurred_at DESC, code DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, opts.Limit)
	} else if opts.Offset > 0 {
		query += ` LIMIT -1`
	}
	if opts.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, opts.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: list movements: %w", err)
	}
	defer rows.Close()

	result := make([]*movement.Movement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/sqlite: list movements: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) MovementCodes(ctx context.Context, ownerID, prefix string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT code FROM tally_movements
		WHERE owner_id = ? AND substr(code, 1, ?) = ?`, ownerID, len(prefix), prefix)
	if err != nil {
		return nil, fmt.Errorf("tally/sqlite: movement codes: %w", err)
	}
	defer rows.Close()

	var codes []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("tally/sqlite: movement codes: %w", err)
		}
		codes = append(codes, c)
	}
	return codes, rows.Err()
}

// ==================== Atomic commit ====================

// Commit applies cs in one transaction. Guards are evaluated against the
// balances read inside it before any row is written.
func (s *Store) Commit(ctx context.Context, cs *tallystore.Changeset) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		if cs.Expect != nil {
			cur, err := getMovement(ctx, tx, cs.OwnerID, cs.Expect.ID)
			if err != nil {
				return err
			}
			if err := tally.CheckRevision(cur, cs.Expect); err != nil {
				return err
			}
		}

		accts := make(map[id.AccountID]*account.Account)
		for _, accountID := range cs.Accounts() {
			a, err := getAccount(ctx, tx, cs.OwnerID, accountID)
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
			if err := setBalance(ctx, tx, a.ID, a.Balance); err != nil {
				return err
			}
		}

		switch {
		case cs.Insert != nil:
			_, err := tx.ExecContext(ctx, `INSERT INTO tally_movements (`+movementColumns+`)
				VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				movementArgs(cs.Insert)...)
			if err != nil {
				if isUniqueViolation(err) {
					return tally.ErrAlreadyExists
				}
				return fmt.Errorf("tally/sqlite: insert movement: %w", err)
			}

		case cs.Update != nil:
			m := cs.Update
			res, err := tx.ExecContext(ctx, `UPDATE tally_movements SET
				code = ?, kind = ?, state = ?, category_id = ?, item_id = ?, item_ids = ?, multi_item = ?,
				currency = ?, price = ?, quantity = ?, total = ?, remark = ?, account_id = ?,
				from_account_id = ?, to_account_id = ?, occurred_at = ?, updated_at = ?
				WHERE id = ? AND owner_id = ?`,
				m.Code, string(m.Kind), string(m.State), m.CategoryID, m.ItemID, joinItemIDs(m.ItemIDs),
				m.MultiItem, m.Total.Currency, m.Price.Amount, m.Quantity, m.Total.Amount, m.Remark,
				m.AccountID, m.FromAccountID, m.ToAccountID, toMillis(m.OccurredAt), toMillis(m.UpdatedAt),
				m.ID, cs.OwnerID)
			if err != nil {
				return fmt.Errorf("tally/sqlite: update movement: %w", err)
			}
			if err := expectOne(res, tally.ErrMovementNotFound); err != nil {
				return err
			}

		case !cs.Delete.IsNil():
			res, err := tx.ExecContext(ctx, `DELETE FROM tally_movements WHERE id = ? AND owner_id = ?`,
				cs.Delete, cs.OwnerID)
			if err != nil {
				return fmt.Errorf("tally/sqlite: delete movement: %w", err)
			}
			if err := expectOne(res, tally.ErrMovementNotFound); err != nil {
				return err
			}
		}

		return nil
	})
}

// ==================== Helpers ====================

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getAccount(ctx context.Context, q querier, ownerID string, accountID id.AccountID) (*account.Account, error) {
	row := q.QueryRowContext(ctx, `SELECT `+accountColumns+` FROM tally_accounts
		WHERE id = ? AND owner_id = ?`, accountID, ownerID)
	a, err := scanAccount(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tally/sqlite: get account: %w", err)
	}
	return a, nil
}

func getMovement(ctx context.Context, q querier, ownerID string, movementID id.MovementID) (*movement.Movement, error) {
	row := q.QueryRowContext(ctx, `SELECT `+movementColumns+` FROM tally_movements
		WHERE id = ? AND owner_id = ?`, movementID, ownerID)
	m, err := scanMovement(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrMovementNotFound
		}
		return nil, fmt.Errorf("tally/sqlite: get movement: %w", err)
	}
	return m, nil
}

func setBalance(ctx context.Context, tx *sql.Tx, accountID id.AccountID, balance types.Money) error {
	_, err := tx.ExecContext(ctx, `UPDATE tally_accounts SET balance = ? WHERE id = ?`,
		balance.Amount, accountID)
	if err != nil {
		return fmt.Errorf("tally/sqlite: set balance: %w", err)
	}
	return nil
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: tally/sqlite: begin: %w", tally.ErrTransactionFailed, err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: tally/sqlite: commit: %w", tally.ErrTransactionFailed, err)
	}
	return nil
}

func expectOne(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return notFound
	}
	return nil
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
