package tally

import (
	"context"

	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/report"
)

// Rows lists movements joined with account, category and item names.
func (t *Tally) Rows(ctx context.Context, opts movement.ListOpts) ([]report.Row, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	ms, err := t.store.ListMovements(ctx, owner, opts)
	if err != nil {
		return nil, err
	}
	c, err := t.reportCatalog(ctx, owner)
	if err != nil {
		return nil, err
	}
	return report.Rows(ms, c), nil
}

// Summary computes dashboard totals over the movements matching opts.
// Limit and Offset are ignored so totals always cover the whole range.
func (t *Tally) Summary(ctx context.Context, opts movement.ListOpts) (*report.Summary, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	opts.Limit, opts.Offset = 0, 0
	ms, err := t.store.ListMovements(ctx, owner, opts)
	if err != nil {
		return nil, err
	}
	c, err := t.reportCatalog(ctx, owner)
	if err != nil {
		return nil, err
	}
	return report.Summarize(t.currency, ms, c), nil
}

// Reconcile recomputes every account balance from its opening balance and
// the full movement history and reports accounts that disagree.
//
// The owner's accounts are locked while balances and movements are read, so
// writes through this engine cannot produce a false discrepancy. Writers in
// other processes are not excluded; run it against a quiet ledger there.
func (t *Tally) Reconcile(ctx context.Context) ([]report.Discrepancy, error) {
	owner, err := requireOwner(ctx)
	if err != nil {
		return nil, err
	}

	listed, err := t.store.ListAccounts(ctx, owner)
	if err != nil {
		return nil, err
	}
	ids := make([]id.AccountID, len(listed))
	for i, a := range listed {
		ids[i] = a.ID
	}

	release, err := t.locks.acquire(ctx, accountKeys(ids)...)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the locks. Accounts created since the first read are
	// not locked and are left out.
	locked := make(map[id.AccountID]bool, len(ids))
	for _, accountID := range ids {
		locked[accountID] = true
	}
	current, err := t.store.ListAccounts(ctx, owner)
	if err != nil {
		return nil, err
	}
	accts := current[:0:0]
	for _, a := range current {
		if locked[a.ID] {
			accts = append(accts, a)
		}
	}

	ms, err := t.store.ListMovements(ctx, owner, movement.ListOpts{})
	if err != nil {
		return nil, err
	}

	out := report.Reconcile(accts, ms)
	if len(out) > 0 {
		t.logger.Warn("balance discrepancies found", "owner_id", owner, "accounts", len(out))
	}
	return out, nil
}

func (t *Tally) reportCatalog(ctx context.Context, owner string) (report.Catalog, error) {
	accts, err := t.store.ListAccounts(ctx, owner)
	if err != nil {
		return report.Catalog{}, err
	}
	cats, err := t.store.ListCategories(ctx, owner)
	if err != nil {
		return report.Catalog{}, err
	}
	items, err := t.store.ListItems(ctx, owner, id.Nil)
	if err != nil {
		return report.Catalog{}, err
	}
	return report.Catalog{Accounts: accts, Categories: cats, Items: items}, nil
}
