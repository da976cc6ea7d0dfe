package tally

import (
	"errors"
	"fmt"

	"github.com/xraph/tally/account"
	"github.com/xraph/tally/effect"
	"github.com/xraph/tally/id"
	"github.com/xraph/tally/movement"
	"github.com/xraph/tally/types"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrNotFound      = errors.New("tally: not found")
	ErrAlreadyExists = errors.New("tally: already exists")
	ErrInvalidInput  = errors.New("tally: invalid input")
	ErrInvalidState  = errors.New("tally: invalid state")
	ErrUnauthorized  = errors.New("tally: unauthorized")

	// Lookup errors; each also matches ErrNotFound.
	ErrAccountNotFound  = fmt.Errorf("%w: account", ErrNotFound)
	ErrMovementNotFound = fmt.Errorf("%w: movement", ErrNotFound)
	ErrCategoryNotFound = fmt.Errorf("%w: category", ErrNotFound)
	ErrItemNotFound     = fmt.Errorf("%w: item", ErrNotFound)

	// Balance errors
	ErrInsufficientBalance = errors.New("tally: insufficient balance")

	// ErrConflict reports that a movement changed between the read an
	// operation was based on and its commit.
	ErrConflict = errors.New("tally: movement changed concurrently")

	// Store errors
	ErrStoreClosed       = errors.New("tally: store is closed")
	ErrTransactionFailed = errors.New("tally: transaction failed")
	ErrMigrationFailed   = errors.New("tally: migration failed")
)

// InsufficientBalanceError reports that an account cannot cover a settled
// effect. It carries enough detail to render a message to the user.
type InsufficientBalanceError struct {
	AccountID   id.AccountID
	AccountName string
	Available   types.Money
	Required    types.Money
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("tally: insufficient balance: account %q has %s available, %s required",
		e.AccountName, e.Available, e.Required)
}

// Is lets errors.Is match ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}

// CheckGuard evaluates g against the account's stored balance and returns
// an *InsufficientBalanceError when it does not hold. Backends call it
// inside their commit transaction.
func CheckGuard(a *account.Account, g effect.Guard) error {
	if g.Holds(a.Balance) {
		return nil
	}
	return &InsufficientBalanceError{
		AccountID:   a.ID,
		AccountName: a.Name,
		Available:   g.Available(a.Balance),
		Required:    g.Need,
	}
}

// CheckRevision returns ErrConflict unless stored is still the revision an
// operation read as expected. Backends call it inside their commit
// transaction, after locking the movement.
func CheckRevision(stored, expected *movement.Movement) error {
	if stored.SameRevision(expected) {
		return nil
	}
	return ErrConflict
}

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("tally: validation failed for %s: %s", e.Field, e.Message)
}

// Is lets errors.Is match ErrInvalidInput.
func (e ValidationError) Is(target error) bool {
	return target == ErrInvalidInput
}

// StateError reports an operation not permitted for a movement's current
// settlement state or shape.
type StateError struct {
	Op     string
	Reason string
}

func (e StateError) Error() string {
	return fmt.Sprintf("tally: %s: %s", e.Op, e.Reason)
}

// Is lets errors.Is match ErrInvalidState.
func (e StateError) Is(target error) bool {
	return target == ErrInvalidState
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsInsufficientBalance returns true if the error is a sufficiency failure.
func IsInsufficientBalance(err error) bool {
	return errors.Is(err, ErrInsufficientBalance)
}

// IsInvalidInput returns true if the request itself was malformed.
func IsInvalidInput(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

// IsInvalidState returns true if the movement's state forbids the operation.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}

// IsConflict returns true if the movement changed under the operation.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsRetryable returns true if the error is a transient store failure or a
// lost race on a movement. Balance mutations are never retried
// automatically; callers decide.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransactionFailed) || errors.Is(err, ErrConflict)
}
