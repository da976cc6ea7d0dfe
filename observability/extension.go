// Package observability provides a metrics extension for tally that records
// lifecycle event counts and amounts through a MetricFactory.
package observability

import (
	"context"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/plugin"
	"github.com/xraph/tally/types"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnAccountCreated      = (*MetricsExtension)(nil)
	_ plugin.OnAccountDeleted      = (*MetricsExtension)(nil)
	_ plugin.OnMovementCreated     = (*MetricsExtension)(nil)
	_ plugin.OnMovementEdited      = (*MetricsExtension)(nil)
	_ plugin.OnMovementDeleted     = (*MetricsExtension)(nil)
	_ plugin.OnCreditPaid          = (*MetricsExtension)(nil)
	_ plugin.OnTransferCreated     = (*MetricsExtension)(nil)
	_ plugin.OnTransferEdited      = (*MetricsExtension)(nil)
	_ plugin.OnInsufficientBalance = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a tally plugin to track ledger activity.
type MetricsExtension struct {
	factory MetricFactory

	// Account metrics
	AccountCreated Counter
	AccountDeleted Counter

	// Movement metrics
	ExpenseCreated   Counter
	IncomeCreated    Counter
	CreditCreated    Counter
	MovementEdited   Counter
	MovementDeleted  Counter
	CreditPaid       Counter
	MovementAmount   Histogram
	CreditPaidAmount Histogram

	// Transfer metrics
	TransferCreated Counter
	TransferEdited  Counter
	TransferAmount  Histogram

	// Balance metrics
	InsufficientBalance Counter
	Shortfall           Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
// Use NewOTelFactory to report through OpenTelemetry.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		AccountCreated: factory.Counter("tally.account.created"),
		AccountDeleted: factory.Counter("tally.account.deleted"),

		ExpenseCreated:   factory.Counter("tally.expense.created"),
		IncomeCreated:    factory.Counter("tally.income.created"),
		CreditCreated:    factory.Counter("tally.credit.created"),
		MovementEdited:   factory.Counter("tally.movement.edited"),
		MovementDeleted:  factory.Counter("tally.movement.deleted"),
		CreditPaid:       factory.Counter("tally.credit.paid"),
		MovementAmount:   factory.Histogram("tally.movement.amount"),
		CreditPaidAmount: factory.Histogram("tally.credit.paid.amount"),

		TransferCreated: factory.Counter("tally.transfer.created"),
		TransferEdited:  factory.Counter("tally.transfer.edited"),
		TransferAmount:  factory.Histogram("tally.transfer.amount"),

		InsufficientBalance: factory.Counter("tally.balance.insufficient"),
		Shortfall:           factory.Histogram("tally.balance.shortfall"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	return nil
}

// ──────────────────────────────────────────────────
// Account hooks
// ──────────────────────────────────────────────────

// OnAccountCreated implements plugin.OnAccountCreated.
func (m *MetricsExtension) OnAccountCreated(_ context.Context, _ *account.Account) error {
	m.AccountCreated.Inc()
	return nil
}

// OnAccountDeleted implements plugin.OnAccountDeleted.
func (m *MetricsExtension) OnAccountDeleted(_ context.Context, _ *account.Account) error {
	m.AccountDeleted.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Movement hooks
// ──────────────────────────────────────────────────

// OnMovementCreated implements plugin.OnMovementCreated.
func (m *MetricsExtension) OnMovementCreated(_ context.Context, mv *movement.Movement) error {
	switch {
	case mv.IsCredit():
		m.CreditCreated.Inc()
	case mv.Kind == movement.KindIncome:
		m.IncomeCreated.Inc()
	default:
		m.ExpenseCreated.Inc()
	}
	m.MovementAmount.Observe(amount(mv.Total))
	return nil
}

// OnMovementEdited implements plugin.OnMovementEdited.
func (m *MetricsExtension) OnMovementEdited(_ context.Context, _, _ *movement.Movement) error {
	m.MovementEdited.Inc()
	return nil
}

// OnMovementDeleted implements plugin.OnMovementDeleted.
func (m *MetricsExtension) OnMovementDeleted(_ context.Context, _ *movement.Movement) error {
	m.MovementDeleted.Inc()
	return nil
}

// OnCreditPaid implements plugin.OnCreditPaid.
func (m *MetricsExtension) OnCreditPaid(_ context.Context, mv *movement.Movement) error {
	m.CreditPaid.Inc()
	m.CreditPaidAmount.Observe(amount(mv.Total))
	return nil
}

// ──────────────────────────────────────────────────
// Transfer hooks
// ──────────────────────────────────────────────────

// OnTransferCreated implements plugin.OnTransferCreated.
func (m *MetricsExtension) OnTransferCreated(_ context.Context, mv *movement.Movement) error {
	m.TransferCreated.Inc()
	m.TransferAmount.Observe(amount(mv.Total))
	return nil
}

// OnTransferEdited implements plugin.OnTransferEdited.
func (m *MetricsExtension) OnTransferEdited(_ context.Context, _, _ *movement.Movement) error {
	m.TransferEdited.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnInsufficientBalance implements plugin.OnInsufficientBalance.
func (m *MetricsExtension) OnInsufficientBalance(_ context.Context, _ string, available, required types.Money) error {
	m.InsufficientBalance.Inc()
	m.Shortfall.Observe(amount(required.Subtract(available)))
	return nil
}

// amount converts to float64 for reporting only; precision loss is
// acceptable in a histogram.
func amount(v types.Money) float64 {
	f, _ := v.Amount.Float64()
	return f
}
