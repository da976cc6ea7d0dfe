package audithook

// Action constants for audit events.
const (
	// Account actions
	ActionAccountCreated = "account.created"
	ActionAccountDeleted = "account.deleted"

	// Movement actions
	ActionMovementCreated = "movement.created"
	ActionMovementEdited  = "movement.edited"
	ActionMovementDeleted = "movement.deleted"
	ActionCreditPaid      = "credit.paid"

	// Transfer actions
	ActionTransferCreated = "transfer.created"
	ActionTransferEdited  = "transfer.edited"

	// Balance actions
	ActionInsufficientBalance = "balance.insufficient"
)

// Resource constants for audit events.
const (
	ResourceAccount  = "account"
	ResourceMovement = "movement"
	ResourceTransfer = "transfer"
)

// Category constants for audit events.
const (
	CategoryAccount = "account"
	CategoryLedger  = "ledger"
	CategoryCredit  = "credit"
	CategoryBalance = "balance"
)

// Severity levels for audit events.
const (
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
