// Package postgres implements store.Store on PostgreSQL through a pgx
// connection pool.
//
// Commit locks every account row it touches with SELECT ... FOR UPDATE in
// ascending id order, so concurrent commits over overlapping accounts
// serialize without deadlocking.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

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

// Store implements store.Store using PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for migrations.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// Open connects a new pool to dsn.
func Open(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: connect: %w", err)
	}
	return New(pool, opts...), nil
}

// New wraps an existing pool. Close closes the pool.
func New(pool *pgxpool.Pool, opts ...Option) *Store {
	s := &Store{pool: pool, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pool returns the underlying pool for direct access.
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

// ==================== Account Store ====================

func (s *Store) CreateAccount(ctx context.Context, a *account.Account) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tally_accounts
		(id, owner_id, kind, name, bank_name, account_number, currency, opening_balance, balance, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8::text::numeric, $9::text::numeric, $10, $11)`,
		a.ID, a.OwnerID, string(a.Kind), a.Name, a.BankName, a.AccountNumber, a.Balance.Currency,
		a.OpeningBalance.Amount.String(), a.Balance.Amount.String(), a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/postgres: create account: %w", err)
	}
	return nil
}

func (s *Store) GetAccount(ctx context.Context, ownerID string, accountID id.AccountID) (*account.Account, error) {
	return getAccount(ctx, s.pool, ownerID, accountID, false)
}

func (s *Store) ListAccounts(ctx context.Context, ownerID string) ([]*account.Account, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+accountColumns+` FROM tally_accounts
		WHERE owner_id = $1 ORDER BY created_at, id`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: list accounts: %w", err)
	}
	defer rows.Close()

	result := make([]*account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/postgres: list accounts: %w", err)
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) UpdateAccount(ctx context.Context, a *account.Account) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tally_accounts
		SET kind = $1, name = $2, bank_name = $3, account_number = $4, updated_at = $5
		WHERE id = $6 AND owner_id = $7`,
		string(a.Kind), a.Name, a.BankName, a.AccountNumber, a.UpdatedAt, a.ID, a.OwnerID)
	if err != nil {
		return fmt.Errorf("tally/postgres: update account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tally.ErrAccountNotFound
	}
	return nil
}

func (s *Store) AdjustBalance(ctx context.Context, ownerID string, accountID id.AccountID, delta types.Money) error {
	tag, err := s.pool.Exec(ctx, `UPDATE tally_accounts SET balance = balance + $1::text::numeric
		WHERE id = $2 AND owner_id = $3`, delta.Amount.String(), accountID, ownerID)
	if err != nil {
		return fmt.Errorf("tally/postgres: adjust balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tally.ErrAccountNotFound
	}
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, ownerID string, accountID id.AccountID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM tally_accounts WHERE id = $1 AND owner_id = $2`,
		accountID, ownerID)
	if err != nil {
		return fmt.Errorf("tally/postgres: delete account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return tally.ErrAccountNotFound
	}
	return nil
}

// ==================== Catalog Store ====================

func (s *Store) CreateCategory(ctx context.Context, c *catalog.Category) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tally_categories (`+categoryColumns+`)
		VALUES ($1, $2, $3, $4, $5)`,
		c.ID, c.OwnerID, c.Name, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/postgres: create category: %w", err)
	}
	return nil
}

func (s *Store) GetCategory(ctx context.Context, ownerID string, categoryID id.CategoryID) (*catalog.Category, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+categoryColumns+` FROM tally_categories
		WHERE id = $1 AND owner_id = $2`, categoryID, ownerID)
	c, err := scanCategory(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrCategoryNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get category: %w", err)
	}
	return c, nil
}

func (s *Store) ListCategories(ctx context.Context, ownerID string) ([]*catalog.Category, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+categoryColumns+` FROM tally_categories
		WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: list categories: %w", err)
	}
	defer rows.Close()

	result := make([]*catalog.Category, 0)
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/postgres: list categories: %w", err)
		}
		result = append(result, c)
	}
	return result, rows.Err()
}

func (s *Store) CreateItem(ctx context.Context, it *catalog.Item) error {
	_, err := s.pool.Exec(ctx, `INSERT INTO tally_items (`+itemColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		it.ID, it.OwnerID, it.CategoryID, it.Name, it.Unit, it.CreatedAt, it.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return tally.ErrAlreadyExists
		}
		return fmt.Errorf("tally/postgres: create item: %w", err)
	}
	return nil
}

func (s *Store) GetItem(ctx context.Context, ownerID string, itemID id.ItemID) (*catalog.Item, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM tally_items
		WHERE id = $1 AND owner_id = $2`, itemID, ownerID)
	it, err := scanItem(row)
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrItemNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get item: %w", err)
	}
	return it, nil
}

func (s *Store) ListItems(ctx context.Context, ownerID string, categoryID id.CategoryID) ([]*catalog.Item, error) {
	query := `SELECT ` + itemColumns + ` FROM tally_items WHERE owner_id = $1`
	args := []any{ownerID}
	if !categoryID.IsNil() {
		query += ` AND category_id = $2`
		args = append(args, categoryID)
	}
	query += ` ORDER BY name`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: list items: %w", err)
	}
	defer rows.Close()

	result := make([]*catalog.Item, 0)
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/postgres: list items: %w", err)
		}
		result = append(result, it)
	}
	return result, rows.Err()
}

// ==================== Movement Store ====================

func (s *Store) GetMovement(ctx context.Context, ownerID string, movementID id.MovementID) (*movement.Movement, error) {
	return getMovement(ctx, s.pool, ownerID, movementID, false)
}

func (s *Store) ListMovements(ctx context.Context, ownerID string, opts movement.ListOpts) ([]*movement.Movement, error) {
	var args []any
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	where := []string{"owner_id = " + arg(ownerID)}
	if opts.Kind != "" {
		where = append(where, "kind = "+arg(string(opts.Kind)))
	}
	if opts.State != "" {
		where = append(where, "state = "+arg(string(opts.State)))
	}
	if !opts.AccountID.IsNil() {
		p := arg(opts.AccountID)
		where = append(where, "(account_id = "+p+" OR from_account_id = "+p+" OR to_account_id = "+p+")")
	}
	if !opts.CategoryID.IsNil() {
		where = append(where, "category_id = "+arg(opts.CategoryID))
	}
	if !opts.Start.IsZero() {
		where = append(where, "occurred_at >= "+arg(opts.Start))
	}
	if !opts.End.IsZero() {
		where = append(where, "occurred_at < "+arg(opts.End))
	}

	query := `SELECT ` + movementColumns + ` FROM tally_movements WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY occurred_at DESC, code DESC`
	if opts.Limit > 0 {
		query += ` LIMIT ` + arg(opts.Limit)
	}
	if opts.Offset > 0 {
		query += ` OFFSET ` + arg(opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: list movements: %w", err)
	}
	defer rows.Close()

	result := make([]*movement.Movement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, fmt.Errorf("tally/postgres: list movements: %w", err)
		}
		result = append(result, m)
	}
	return result, rows.Err()
}

func (s *Store) MovementCodes(ctx context.Context, ownerID, prefix string) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT code FROM tally_movements
		WHERE owner_id = $1 AND left(code, length($2)) = $2`, ownerID, prefix)
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: movement codes: %w", err)
	}
	codes, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("tally/postgres: movement codes: %w", err)
	}
	return codes, nil
}

// ==================== Atomic commit ====================

// Commit applies cs in one transaction. Account rows are locked in
// ascending id order and guards are evaluated against the locked balances.
func (s *Store) Commit(ctx context.Context, cs *tallystore.Changeset) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		// The movement row is locked before any account row, so writers
		// racing on one movement queue here and the loser sees the winner's
		// revision.
		if cs.Expect != nil {
			cur, err := getMovement(ctx, tx, cs.OwnerID, cs.Expect.ID, true)
			if err != nil {
				return err
			}
			if err := tally.CheckRevision(cur, cs.Expect); err != nil {
				return err
			}
		}

		accts := make(map[id.AccountID]*account.Account)
		for _, accountID := range cs.Accounts() {
			a, err := getAccount(ctx, tx, cs.OwnerID, accountID, true)
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
			if _, err := tx.Exec(ctx, `UPDATE tally_accounts SET balance = balance + $1::text::numeric
				WHERE id = $2`, d.Amount.Amount.String(), d.AccountID); err != nil {
				return fmt.Errorf("tally/postgres: apply delta: %w", err)
			}
		}

		switch {
		case cs.Insert != nil:
			_, err := tx.Exec(ctx, `INSERT INTO tally_movements
				(id, owner_id, code, kind, state, category_id, item_id, item_ids, multi_item, currency,
				 price, quantity, total, remark, account_id, from_account_id, to_account_id,
				 occurred_at, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10,
				 $11::text::numeric, $12::text::numeric, $13::text::numeric, $14, $15, $16, $17,
				 $18, $19, $20)`, movementArgs(cs.Insert)...)
			if err != nil {
				if isUniqueViolation(err) {
					return tally.ErrAlreadyExists
				}
				return fmt.Errorf("tally/postgres: insert movement: %w", err)
			}

		case cs.Update != nil:
			m := cs.Update
			tag, err := tx.Exec(ctx, `UPDATE tally_movements SET
				code = $1, kind = $2, state = $3, category_id = $4, item_id = $5, item_ids = $6,
				multi_item = $7, currency = $8, price = $9::text::numeric, quantity = $10::text::numeric,
				total = $11::text::numeric, remark = $12, account_id = $13, from_account_id = $14,
				to_account_id = $15, occurred_at = $16, updated_at = $17
				WHERE id = $18 AND owner_id = $19`,
				m.Code, string(m.Kind), string(m.State), m.CategoryID, m.ItemID, itemIDStrings(m.ItemIDs),
				m.MultiItem, m.Total.Currency, m.Price.Amount.String(), m.Quantity.String(),
				m.Total.Amount.String(), m.Remark, m.AccountID, m.FromAccountID, m.ToAccountID,
				m.OccurredAt, m.UpdatedAt, m.ID, cs.OwnerID)
			if err != nil {
				return fmt.Errorf("tally/postgres: update movement: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return tally.ErrMovementNotFound
			}

		case !cs.Delete.IsNil():
			tag, err := tx.Exec(ctx, `DELETE FROM tally_movements WHERE id = $1 AND owner_id = $2`,
				cs.Delete, cs.OwnerID)
			if err != nil {
				return fmt.Errorf("tally/postgres: delete movement: %w", err)
			}
			if tag.RowsAffected() == 0 {
				return tally.ErrMovementNotFound
			}
		}

		return nil
	})
}

// ==================== Helpers ====================

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func getAccount(ctx context.Context, q querier, ownerID string, accountID id.AccountID, forUpdate bool) (*account.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM tally_accounts WHERE id = $1 AND owner_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	a, err := scanAccount(q.QueryRow(ctx, query, accountID, ownerID))
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrAccountNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get account: %w", err)
	}
	return a, nil
}

func getMovement(ctx context.Context, q querier, ownerID string, movementID id.MovementID, forUpdate bool) (*movement.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM tally_movements WHERE id = $1 AND owner_id = $2`
	if forUpdate {
		query += ` FOR UPDATE`
	}
	m, err := scanMovement(q.QueryRow(ctx, query, movementID, ownerID))
	if err != nil {
		if isNoRows(err) {
			return nil, tally.ErrMovementNotFound
		}
		return nil, fmt.Errorf("tally/postgres: get movement: %w", err)
	}
	return m, nil
}

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
