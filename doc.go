// Package tally keeps account balances consistent with the expenses,
// incomes and transfers recorded against them.
//
// Tally is designed as a library, not a service. Import it into your Go
// application with the store of your choice. It provides:
//
//   - Cash and bank accounts whose balance always equals the opening
//     balance plus the effect of every settled movement
//   - Expenses and incomes, optionally deferred as pending credit
//   - Transfers between two accounts
//   - A sufficiency gate: a settled expense or transfer never overdraws
//   - Per-account serialization of concurrent mutations
//   - Human-readable movement codes (DDMMYYYY:HH:MM + sequence)
//   - Joined listings, dashboard totals and balance reconciliation
//
// # Quick Start
//
//	import (
//	    "github.com/xraph/tally"
//	    "github.com/xraph/tally/store/memory"
//	)
//
//	t := tally.New(memory.New(), tally.WithCurrency("INR"))
//	if err := t.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer t.Stop()
//
//	ctx = tally.WithOwner(ctx, userID)
//
// # Balance effects
//
// Each movement contributes a signed effect:
//
//	settled expense   account  -total
//	settled income    account  +total
//	pending credit    none
//	transfer          from -total, to +total
//
// Creating, editing, paying and deleting are all expressed as "remove the
// old effect, add the new one" and committed atomically together with the
// movement record. A rejected operation changes nothing.
//
// # Credit
//
// An expense created on credit names no account and touches no balance.
// PayCredit settles it against an account without a sufficiency check:
// the debt is owed either way.
//
// # TypeID
//
// All entities use TypeID for globally unique, type-safe identifiers:
//
//	acct_01h2xcejqtf2nbrexx3vqjhp41  // Account ID
//	mvt_01h2xcejqtf2nbrexx3vqjhp41   // Movement ID
//	cat_01h455vb4pex5vsknk084sn02q   // Category ID
//	item_01h455vb4pex5vsknk084sn02q  // Item ID
package tally
