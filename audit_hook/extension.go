// Package audithook bridges tally lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import an
// audit backend directly. Callers inject a RecorderFunc adapter at wiring
// time.
package audithook

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/xraph/tally"
	"github.com/xraph/tally/account"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/types"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnAccountCreated      = (*Extension)(nil)
	_ plugin.OnAccountDeleted      = (*Extension)(nil)
	_ plugin.OnMovementCreated     = (*Extension)(nil)
	_ plugin.OnMovementEdited      = (*Extension)(nil)
	_ plugin.OnMovementDeleted     = (*Extension)(nil)
	_ plugin.OnCreditPaid          = (*Extension)(nil)
	_ plugin.OnTransferCreated     = (*Extension)(nil)
	_ plugin.OnTransferEdited      = (*Extension)(nil)
	_ plugin.OnInsufficientBalance = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	OwnerID    string         `json:"owner_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges tally lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (e *Extension) OnAccountCreated(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountCreated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryAccount, nil,
		"kind", string(a.Kind),
		"name", a.Name,
		"opening_balance", a.OpeningBalance.Amount.String(),
	)
}

// OnAccountDeleted implements plugin.OnAccountDeleted.
func (e *Extension) OnAccountDeleted(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionAccountDeleted, SeverityWarning, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryAccount, nil,
		"name", a.Name,
		"balance", a.Balance.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Movement hooks
// ──────────────────────────────────────────────────

// OnMovementCreated implements plugin.OnMovementCreated.
func (e *Extension) OnMovementCreated(ctx context.Context, m *movement.Movement) error {
	category := CategoryLedger
	if m.IsCredit() {
		category = CategoryCredit
	}
	return e.record(ctx, ActionMovementCreated, SeverityInfo, OutcomeSuccess,
		ResourceMovement, m.ID.String(), category, nil,
		movementFields(m)...,
	)
}

// OnMovementEdited implements plugin.OnMovementEdited.
func (e *Extension) OnMovementEdited(ctx context.Context, before, after *movement.Movement) error {
	return e.record(ctx, ActionMovementEdited, SeverityInfo, OutcomeSuccess,
		ResourceMovement, after.ID.String(), CategoryLedger, nil,
		"code", after.Code,
		"state_before", string(before.State),
		"state_after", string(after.State),
		"total_before", before.Total.Amount.String(),
		"total_after", after.Total.Amount.String(),
		"account_before", before.AccountID.String(),
		"account_after", after.AccountID.String(),
	)
}

// OnMovementDeleted implements plugin.OnMovementDeleted.
func (e *Extension) OnMovementDeleted(ctx context.Context, m *movement.Movement) error {
	resource := ResourceMovement
	if m.IsTransfer() {
		resource = ResourceTransfer
	}
	return e.record(ctx, ActionMovementDeleted, SeverityWarning, OutcomeSuccess,
		resource, m.ID.String(), CategoryLedger, nil,
		movementFields(m)...,
	)
}

// OnCreditPaid implements plugin.OnCreditPaid.
func (e *Extension) OnCreditPaid(ctx context.Context, m *movement.Movement) error {
	return e.record(ctx, ActionCreditPaid, SeverityInfo, OutcomeSuccess,
		ResourceMovement, m.ID.String(), CategoryCredit, nil,
		movementFields(m)...,
	)
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferCreated implements plugin.OnTransferCreated.
func (e *Extension) OnTransferCreated(ctx context.Context, m *movement.Movement) error {
	return e.record(ctx, ActionTransferCreated, SeverityInfo, OutcomeSuccess,
		ResourceTransfer, m.ID.String(), CategoryLedger, nil,
		movementFields(m)...,
	)
}

// OnTransferEdited implements plugin.OnTransferEdited.
func (e *Extension) OnTransferEdited(ctx context.Context, before, after *movement.Movement) error {
	return e.record(ctx, ActionTransferEdited, SeverityInfo, OutcomeSuccess,
		ResourceTransfer, after.ID.String(), CategoryLedger, nil,
		"code", after.Code,
		"from_before", before.FromAccountID.String(),
		"to_before", before.ToAccountID.String(),
		"from_after", after.FromAccountID.String(),
		"to_after", after.ToAccountID.String(),
		"amount_before", before.Total.Amount.String(),
		"amount_after", after.Total.Amount.String(),
	)
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnInsufficientBalance implements plugin.OnInsufficientBalance.
func (e *Extension) OnInsufficientBalance(ctx context.Context, accountID string, available, required types.Money) error {
	return e.record(ctx, ActionInsufficientBalance, SeverityWarning, OutcomeFailure,
		ResourceAccount, accountID, CategoryBalance, errors.New("insufficient balance"),
		"available", available.Amount.String(),
		"required", required.Amount.String(),
		"currency", required.Currency,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

func movementFields(m *movement.Movement) []any {
	kv := []any{
		"code", m.Code,
		"kind", string(m.Kind),
		"state", string(m.State),
		"total", m.Total.Amount.String(),
		"currency", m.Total.Currency,
	}
	if m.IsTransfer() {
		return append(kv, "from_account_id", m.FromAccountID.String(), "to_account_id", m.ToAccountID.String())
	}
	if !m.AccountID.IsNil() {
		kv = append(kv, "account_id", m.AccountID.String())
	}
	return kv
}

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	owner, _ := tally.OwnerFrom(ctx)

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		OwnerID:    owner,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
