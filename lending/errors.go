/*
errors.go - Centralized error taxonomy for the lending engine

PURPOSE:
  All error kinds in one place. Callers distinguish four classes:

  1. Configuration errors - a strategy parameter is missing. Fatal,
     never retried.
  2. Validation errors - bad amount, settled loan, ineligible discount.
     Reported to the caller, no side effects applied.
  3. Consistency errors - an invariant broke mid-allocation. The
     surrounding transaction must abort; nothing partial commits.
  4. Concurrency conflicts - version/lock clash. Safe to retry the
     whole operation from a fresh read.

USAGE:
  if errors.Is(err, lending.ErrConcurrencyConflict) {
      // retry the allocation from a fresh load
  }

SEE ALSO:
  - allocate.go, schedule.go, discount.go: producers of these errors
  - api/handlers.go: maps the taxonomy onto HTTP statuses
*/
package lending

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrConfiguration marks a missing or invalid strategy parameter.
	ErrConfiguration = errors.New("configuration error")

	// ErrValidation marks rejected caller input. No side effects were
	// applied.
	ErrValidation = errors.New("validation error")

	// ErrConsistency marks an invariant violation detected while
	// allocating. The enclosing transaction must roll back.
	ErrConsistency = errors.New("consistency error")

	// ErrConcurrencyConflict marks an optimistic version clash.
	// The whole operation is safe to retry from a fresh read.
	ErrConcurrencyConflict = errors.New("concurrent modification detected")

	// ErrLoanNotFound is returned when a referenced loan doesn't exist.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrInstallmentNotFound is returned when a referenced installment
	// doesn't exist.
	ErrInstallmentNotFound = errors.New("installment not found")

	// ErrDiscountNotFound is returned when a referenced discount
	// doesn't exist.
	ErrDiscountNotFound = errors.New("discount not found")

	// ErrAlreadySettled is returned when funds arrive against a loan in
	// a terminal status. Funds are never silently accepted.
	ErrAlreadySettled = errors.New("loan already settled")

	// ErrDiscountNotEligible is returned when a discount fails its
	// eligibility chain.
	ErrDiscountNotEligible = errors.New("discount not eligible")

	// ErrPolicyViolation is returned when a discount is applied beyond
	// its application limit. Never a silent no-op.
	ErrPolicyViolation = errors.New("policy violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry the violated invariant
// =============================================================================

// ConfigurationError names the strategy and the parameter it is missing.
type ConfigurationError struct {
	Strategy string
	Param    string
	Detail   string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: strategy %s requires %s: %s", e.Strategy, e.Param, e.Detail)
}

func (e *ConfigurationError) Unwrap() error { return ErrConfiguration }

// InvalidAmountError reports a zero or negative payment amount.
type InvalidAmountError struct {
	Amount Money
}

func (e *InvalidAmountError) Error() string {
	return fmt.Sprintf("invalid payment amount %s: must be positive", e.Amount)
}

func (e *InvalidAmountError) Unwrap() error { return ErrValidation }

// AlreadySettledError reports a payment against a terminal loan.
type AlreadySettledError struct {
	LoanID LoanID
	Status LoanStatus
}

func (e *AlreadySettledError) Error() string {
	return fmt.Sprintf("loan %s is %s: no further payments accepted", e.LoanID, e.Status)
}

func (e *AlreadySettledError) Unwrap() error { return ErrAlreadySettled }

// InvariantViolationError names the invariant broken mid-operation.
type InvariantViolationError struct {
	Invariant string
	Detail    string
}

func (e *InvariantViolationError) Error() string {
	return fmt.Sprintf("invariant violated: %s (%s)", e.Invariant, e.Detail)
}

func (e *InvariantViolationError) Unwrap() error { return ErrConsistency }

// DiscountNotEligibleError reports which eligibility check failed.
type DiscountNotEligibleError struct {
	DiscountID DiscountID
	Check      string
	Detail     string
}

func (e *DiscountNotEligibleError) Error() string {
	return fmt.Sprintf("discount %s not eligible: %s check failed (%s)", e.DiscountID, e.Check, e.Detail)
}

func (e *DiscountNotEligibleError) Unwrap() error { return ErrDiscountNotEligible }

// PolicyViolationError reports an application-limit breach.
type PolicyViolationError struct {
	DiscountID      DiscountID
	MaxApplications int
	Applied         int
}

func (e *PolicyViolationError) Error() string {
	return fmt.Sprintf("discount %s already applied %d time(s), limit %d", e.DiscountID, e.Applied, e.MaxApplications)
}

func (e *PolicyViolationError) Unwrap() error { return ErrPolicyViolation }

// ConflictError carries the loan whose version check failed.
type ConflictError struct {
	LoanID          LoanID
	ExpectedVersion int64
	At              time.Time
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("loan %s: version %d is stale", e.LoanID, e.ExpectedVersion)
}

func (e *ConflictError) Unwrap() error { return ErrConcurrencyConflict }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the operation might succeed when retried
// from a fresh read.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}

// IsClientError returns true if the error is due to invalid caller
// input rather than an engine fault.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrAlreadySettled) ||
		errors.Is(err, ErrDiscountNotEligible) ||
		errors.Is(err, ErrPolicyViolation)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrInstallmentNotFound) ||
		errors.Is(err, ErrDiscountNotFound)
}
