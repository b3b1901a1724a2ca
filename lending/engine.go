/*
engine.go - Transactional orchestration of the lending engine

PURPOSE:
  The Engine is the facade the API layer calls. It owns the
  transaction boundaries: every operation loads its records, runs the
  pure algorithms (schedule.go, allocate.go, moratory.go, discount.go,
  refinance.go), and persists the outcome inside one WithTx scope -
  either everything commits or nothing does.

CONCURRENCY:
  The engine itself is single-threaded pure logic. Serialization of
  concurrent payments against the same loan is pushed to the store:
  UpdateLoan carries the version read at the start of the transaction,
  and a stale version surfaces ErrConcurrencyConflict, which callers
  retry from a fresh read.

SEE ALSO:
  - store.go: the persistence contract consumed here
  - api/handlers.go: the HTTP surface over this facade
*/
package lending

import (
	"context"
	"time"
)

// Engine orchestrates schedule generation, payment allocation,
// discounts, moratory accrual and refinancing over a TxStore.
type Engine struct {
	store TxStore

	// Now is injectable for tests; defaults to time.Now.
	Now func() time.Time
}

func NewEngine(store TxStore) *Engine {
	return &Engine{store: store, Now: time.Now}
}

// =============================================================================
// ORIGINATION
// =============================================================================

// Originate validates the loan, materializes its installment schedule,
// and persists both atomically. The loan must carry its terms
// (principal, rate, type, frequency, start date, term or grace).
func (e *Engine) Originate(ctx context.Context, loan *Loan) ([]*Installment, error) {
	if !loan.Principal.IsPositive() {
		return nil, &InvalidAmountError{Amount: loan.Principal}
	}

	now := e.Now()
	if loan.ID == "" {
		loan.ID = NewLoanID()
	}
	loan.RemainingBalance = loan.Principal
	loan.Status = LoanCreated
	loan.CreatedAt = now
	loan.UpdatedAt = now

	installments, err := GenerateSchedule(loan)
	if err != nil {
		return nil, err
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.SaveLoan(ctx, loan); err != nil {
			return err
		}
		return s.SaveInstallments(ctx, installments)
	})
	if err != nil {
		return nil, err
	}
	return installments, nil
}

// =============================================================================
// PAYMENT ALLOCATION
// =============================================================================

// AllocatePayment splits an incoming amount across the loan's
// outstanding installments following the waterfall, inside one
// transaction. Moratory accrual is brought up to date first so the
// late-fee bucket reflects today's delinquency.
func (e *Engine) AllocatePayment(ctx context.Context, loanID LoanID, amount Money) (*AllocationResult, error) {
	now := e.Now()
	var result *AllocationResult

	err := e.store.WithTx(ctx, func(s Store) error {
		loan, err := s.Loan(ctx, loanID)
		if err != nil {
			return err
		}
		version := loan.Version

		pending, err := s.PendingInstallments(ctx, loanID)
		if err != nil {
			return err
		}
		moratory, err := s.MoratoryRecords(ctx, loanID)
		if err != nil {
			return err
		}

		// Late fees accrue up to the payment date before allocating.
		overdue := DetectOverdue(loan, pending, moratory, now)

		result, err = AllocatePayment(loan, amount, pending, moratory, now)
		if err != nil {
			return err
		}

		if err := s.SavePayment(ctx, result.Payment); err != nil {
			return err
		}
		for _, alloc := range result.Allocations {
			if err := s.SaveAllocation(ctx, alloc); err != nil {
				return err
			}
		}
		touched := mergeInstallments(overdue.Flipped, result.Touched)
		if err := s.SaveInstallments(ctx, touched); err != nil {
			return err
		}
		for _, rec := range mergeMoratory(overdue.Accrued, result.TouchedMoratory) {
			if err := s.SaveMoratoryRecord(ctx, rec); err != nil {
				return err
			}
		}
		return s.UpdateLoan(ctx, loan, version)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// DISCOUNTS
// =============================================================================

// ApplyDiscount applies a discount against an installment's interest or
// its moratory record, records the application, and persists the
// reduced record - all in one transaction.
func (e *Engine) ApplyDiscount(ctx context.Context, installmentID InstallmentID, discountID DiscountID, target DiscountTarget) (*DiscountEffect, error) {
	now := e.Now()
	var effect *DiscountEffect

	err := e.store.WithTx(ctx, func(s Store) error {
		discount, err := s.Discount(ctx, discountID)
		if err != nil {
			return err
		}
		inst, err := s.Installment(ctx, installmentID)
		if err != nil {
			return err
		}
		loan, err := s.Loan(ctx, inst.LoanID)
		if err != nil {
			return err
		}
		applications, err := s.DiscountApplications(ctx, discountID, installmentID)
		if err != nil {
			return err
		}

		switch target {
		case TargetMoratory:
			rec, err := s.MoratoryRecordFor(ctx, installmentID)
			if err != nil {
				return err
			}
			if rec == nil {
				return &DiscountNotEligibleError{DiscountID: discountID, Check: "target", Detail: "installment has no moratory record"}
			}
			effect, err = ApplyToMoratory(discount, loan, rec, applications, now)
			if err != nil {
				return err
			}
			if err := s.SaveMoratoryRecord(ctx, rec); err != nil {
				return err
			}
		case TargetInterest:
			effect, err = ApplyToInterest(discount, loan, inst, applications, now)
			if err != nil {
				return err
			}
			if err := s.SaveInstallment(ctx, inst); err != nil {
				return err
			}
		default:
			return &DiscountNotEligibleError{DiscountID: discountID, Check: "target", Detail: "unknown target " + string(target)}
		}

		return s.RecordDiscountApplication(ctx, effect)
	})
	if err != nil {
		return nil, err
	}
	return effect, nil
}

// =============================================================================
// REFINANCE
// =============================================================================

// Refinance closes a loan into a successor carrying its outstanding
// balance plus an optional top-up. Both sides commit together or not
// at all.
func (e *Engine) Refinance(ctx context.Context, loanID LoanID, topUp Money) (*RefinanceResult, error) {
	now := e.Now()
	var result *RefinanceResult

	err := e.store.WithTx(ctx, func(s Store) error {
		old, installments, err := s.LoanWithInstallments(ctx, loanID)
		if err != nil {
			return err
		}
		version := old.Version

		result, err = BuildRefinance(old, installments, topUp, now)
		if err != nil {
			return err
		}

		if err := s.UpdateLoan(ctx, old, version); err != nil {
			return err
		}
		if err := s.SaveLoan(ctx, result.NewLoan); err != nil {
			return err
		}
		return s.SaveInstallments(ctx, result.Installments)
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// =============================================================================
// OVERDUE DETECTION PASS
// =============================================================================

// RunOverdueDetection walks every active loan, flips past-due pending
// installments to the overdue class, and accrues moratory interest.
// Each loan is processed in its own transaction so one bad loan cannot
// hold up the rest. Returns the number of loans touched.
func (e *Engine) RunOverdueDetection(ctx context.Context) (int, error) {
	now := e.Now()
	loans, err := e.store.ActiveLoans(ctx)
	if err != nil {
		return 0, err
	}

	touched := 0
	for _, l := range loans {
		loanID := l.ID
		err := e.store.WithTx(ctx, func(s Store) error {
			loan, err := s.Loan(ctx, loanID)
			if err != nil {
				return err
			}
			version := loan.Version

			pending, err := s.PendingInstallments(ctx, loanID)
			if err != nil {
				return err
			}
			moratory, err := s.MoratoryRecords(ctx, loanID)
			if err != nil {
				return err
			}

			result := DetectOverdue(loan, pending, moratory, now)
			if len(result.Flipped) == 0 && len(result.Accrued) == 0 && !result.LoanDown {
				return nil
			}
			touched++

			if err := s.SaveInstallments(ctx, result.Flipped); err != nil {
				return err
			}
			for _, rec := range result.Accrued {
				if err := s.SaveMoratoryRecord(ctx, rec); err != nil {
					return err
				}
			}
			return s.UpdateLoan(ctx, loan, version)
		})
		if err != nil {
			return touched, err
		}
	}
	return touched, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func mergeInstallments(a, b []*Installment) []*Installment {
	seen := make(map[InstallmentID]bool, len(a)+len(b))
	var merged []*Installment
	for _, inst := range append(a[:len(a):len(a)], b...) {
		if !seen[inst.ID] {
			seen[inst.ID] = true
			merged = append(merged, inst)
		}
	}
	return merged
}

func mergeMoratory(a, b []*MoratoryInterestRecord) []*MoratoryInterestRecord {
	seen := make(map[string]bool, len(a)+len(b))
	var merged []*MoratoryInterestRecord
	for _, rec := range append(a[:len(a):len(a)], b...) {
		if !seen[rec.ID] {
			seen[rec.ID] = true
			merged = append(merged, rec)
		}
	}
	return merged
}
