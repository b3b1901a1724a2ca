/*
store.go - Persistence interface for the lending engine

PURPOSE:
  The boundary between the pure engine and durable storage. The engine
  consumes these operations inside one transaction per unit of work;
  implementations own serialization (per-loan version checks) and
  atomicity.

KEY INTERFACES:
  Store:    Loads and saves for loans, installments, payments,
            allocations, moratory records, and discounts
  TxStore:  Scoped transactions - WithTx(fn) commits all or nothing

CONCURRENCY CONTRACT:
  Concurrent payments against the same loan must be serialized.
  UpdateLoan takes the version the caller read; implementations reject
  a stale version with ErrConcurrencyConflict, which is safe to retry
  from a fresh read.

IMPLEMENTATIONS:
  - lending/store/memory.go: in-memory, snapshot/rollback transactions
  - store/sqlite: production SQLite
*/
package lending

import "context"

// Store handles persistence for the lending book. Allocations are
// append-only: there is no update or delete for them.
type Store interface {
	// SaveLoan inserts a new loan.
	SaveLoan(ctx context.Context, loan *Loan) error

	// Loan loads a loan by ID. Returns ErrLoanNotFound if absent.
	Loan(ctx context.Context, id LoanID) (*Loan, error)

	// LoanWithInstallments loads a loan and its full schedule, ordered
	// by sequence.
	LoanWithInstallments(ctx context.Context, id LoanID) (*Loan, []*Installment, error)

	// PendingInstallments returns the loan's not-fully-paid
	// installments ordered by due date, then sequence.
	PendingInstallments(ctx context.Context, id LoanID) ([]*Installment, error)

	// UpdateLoan persists loan status/balance. expectedVersion is the
	// version the caller read; a mismatch returns
	// ErrConcurrencyConflict and increments nothing.
	UpdateLoan(ctx context.Context, loan *Loan, expectedVersion int64) error

	// Installment loads one installment by ID. Returns
	// ErrInstallmentNotFound if absent.
	Installment(ctx context.Context, id InstallmentID) (*Installment, error)

	SaveInstallment(ctx context.Context, inst *Installment) error
	SaveInstallments(ctx context.Context, insts []*Installment) error

	SavePayment(ctx context.Context, p *Payment) error

	// SaveAllocation appends an allocation record. Append-only.
	SaveAllocation(ctx context.Context, a *Allocation) error

	// AllocationsForLoan returns all allocations against a loan's
	// installments, oldest first.
	AllocationsForLoan(ctx context.Context, id LoanID) ([]*Allocation, error)

	SaveMoratoryRecord(ctx context.Context, rec *MoratoryInterestRecord) error

	// MoratoryRecords returns the active moratory records for a loan,
	// keyed by installment.
	MoratoryRecords(ctx context.Context, id LoanID) (map[InstallmentID]*MoratoryInterestRecord, error)

	// MoratoryRecordFor returns the record for one installment, or nil
	// when none exists.
	MoratoryRecordFor(ctx context.Context, id InstallmentID) (*MoratoryInterestRecord, error)

	SaveDiscount(ctx context.Context, d *Discount) error
	Discount(ctx context.Context, id DiscountID) (*Discount, error)

	// DiscountApplications returns how many times a discount has been
	// applied against an installment.
	DiscountApplications(ctx context.Context, id DiscountID, target InstallmentID) (int, error)

	// RecordDiscountApplication increments the application counter and
	// stores the effect.
	RecordDiscountApplication(ctx context.Context, effect *DiscountEffect) error

	// ActiveLoans returns loans in a non-terminal status, for the
	// overdue-detection pass.
	ActiveLoans(ctx context.Context) ([]*Loan, error)
}

// TxStore wraps Store with scoped transactions. Every allocation,
// schedule generation and refinance runs inside WithTx so partial
// updates never become visible.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. An error from fn rolls
	// everything back; nil commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}
