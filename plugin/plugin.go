// Package plugin provides an extensible plugin system for Tally.
// Plugins can hook into lifecycle events to observe the ledger.
// Hooks run after the change they describe has been committed; a failing
// or slow hook never affects a balance.
package plugin

import (
	"context"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, t any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated is called when an account is opened.
type OnAccountCreated interface {
	Plugin
	OnAccountCreated(ctx context.Context, a *account.Account) error
}

// OnAccountDeleted is called when an account is removed.
type OnAccountDeleted interface {
	Plugin
	OnAccountDeleted(ctx context.Context, a *account.Account) error
}

// ──────────────────────────────────────────────────
// Movement lifecycle hooks
// ──────────────────────────────────────────────────

// OnMovementCreated is called when an expense or income is recorded.
type OnMovementCreated interface {
	Plugin
	OnMovementCreated(ctx context.Context, m *movement.Movement) error
}

// OnMovementEdited is called when an expense or income is edited.
type OnMovementEdited interface {
	Plugin
	OnMovementEdited(ctx context.Context, before, after *movement.Movement) error
}

// OnMovementDeleted is called when any movement is deleted.
type OnMovementDeleted interface {
	Plugin
	OnMovementDeleted(ctx context.Context, m *movement.Movement) error
}

// OnCreditPaid is called when a pending credit expense is settled.
type OnCreditPaid interface {
	Plugin
	OnCreditPaid(ctx context.Context, m *movement.Movement) error
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferCreated is called when a transfer is recorded.
type OnTransferCreated interface {
	Plugin
	OnTransferCreated(ctx context.Context, m *movement.Movement) error
}

// OnTransferEdited is called when a transfer is edited.
type OnTransferEdited interface {
	Plugin
	OnTransferEdited(ctx context.Context, before, after *movement.Movement) error
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnInsufficientBalance is called when an operation is rejected because
// an account cannot cover it.
type OnInsufficientBalance interface {
	Plugin
	OnInsufficientBalance(ctx context.Context, accountID string, available, required types.Money) error
}
