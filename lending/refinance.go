/*
refinance.go - Closing a loan into a successor

PURPOSE:
  Computes the payoff of an existing loan, marks it Refinanced
  (terminal), and builds a successor loan whose principal is the old
  remaining balance plus any caller-requested top-up. The successor's
  schedule comes from the same strategies as origination.

  BuildRefinance is pure; Engine.Refinance wraps it in one store
  transaction so the closure and the new loan are visible together or
  not at all.
*/
package lending

import (
	"time"
)

// RefinanceResult pairs the closed loan with its successor.
type RefinanceResult struct {
	OldLoan      *Loan
	NewLoan      *Loan
	Installments []*Installment // the successor's schedule

	// CarriedBalance is the payoff carried from the old loan,
	// excluding the top-up.
	CarriedBalance Money
}

// BuildRefinance closes old and constructs the successor. installments
// must be the old loan's full schedule; topUp may be zero.
//
// The payoff is the same summation the allocator uses for remaining
// balance - refinancing and payment processing can never disagree on
// what is owed.
func BuildRefinance(old *Loan, installments []*Installment, topUp Money, now time.Time) (*RefinanceResult, error) {
	if old.Status.Terminal() {
		return nil, &AlreadySettledError{LoanID: old.ID, Status: old.Status}
	}
	if topUp.IsNegative() {
		return nil, &InvalidAmountError{Amount: topUp}
	}

	carried := RemainingCapital(installments)
	principal := carried.Add(topUp)
	if !principal.IsPositive() {
		return nil, &InvalidAmountError{Amount: principal}
	}

	old.Status = LoanRefinanced
	old.RemainingBalance = ZeroMoney()
	old.UpdatedAt = now

	successor := &Loan{
		ID:               NewLoanID(),
		Principal:        principal,
		RemainingBalance: principal,
		AnnualRate:       old.AnnualRate,
		PenaltyRate:      old.PenaltyRate,
		Term:             old.Term,
		Frequency:        old.Frequency,
		Type:             old.Type,
		StartDate:        now,
		GraceMonths:      old.GraceMonths,
		Status:           LoanCreated,
		RefinancedFrom:   old.ID,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	schedule, err := GenerateSchedule(successor)
	if err != nil {
		return nil, err
	}

	return &RefinanceResult{
		OldLoan:        old,
		NewLoan:        successor,
		Installments:   schedule,
		CarriedBalance: carried,
	}, nil
}
