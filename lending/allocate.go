/*
allocate.go - Payment waterfall allocation

PURPOSE:
  Splits one incoming payment amount across the outstanding buckets of
  one or more installments. This is the single place where money enters
  the book, and the ordering and rounding rules here are the ones that
  prevent silent financial loss or duplication.

THE WATERFALL:
  1. Installments are ordered by due date ascending (oldest obligation
     first), sequence number as tie-break.
  2. Per installment, buckets are satisfied in priority order:
     late fee -> interest -> capital. Late fee first, so reducing
     principal can never mask delinquency.
  3. Whatever is left after every targeted installment is fully paid is
     reported as Excess - never silently discarded.
  4. The loan's remaining balance is recomputed as the SUM of unpaid
     capital across installments, not a running subtraction, so
     repeated allocations cannot drift.

ATOMICITY:
  The allocator is pure: it mutates the in-memory installments and
  moratory records it was handed and returns the records to persist.
  The caller runs it inside one store transaction so the whole payment
  commits or none of it does.

SEE ALSO:
  - moratory.go: source of the late-fee bucket
  - engine.go: transactional orchestration around this algorithm
*/
package lending

import (
	"sort"
	"time"
)

// AllocationResult is the outcome of allocating one payment.
type AllocationResult struct {
	Payment     *Payment
	Allocations []*Allocation

	// Excess is the portion of the payment not consumed by any
	// installment. The caller decides whether to apply it to future
	// installments or return it to the payer.
	Excess Money

	// NewRemainingBalance is the recomputed sum of unpaid capital.
	NewRemainingBalance Money

	IsFullyPaid bool

	// Touched are the installments whose state changed, in allocation
	// order, for persistence.
	Touched []*Installment

	// TouchedMoratory are the moratory records whose collected amount
	// changed.
	TouchedMoratory []*MoratoryInterestRecord
}

// AllocatePayment runs the waterfall. installments must be every
// not-fully-paid installment of the loan; moratory maps installment IDs
// to their active moratory record (absent entries mean no late fee).
//
// The sum of all bucket allocations exactly equals the amount consumed
// from the payment; a mismatch aborts with a consistency error.
func AllocatePayment(
	loan *Loan,
	amount Money,
	installments []*Installment,
	moratory map[InstallmentID]*MoratoryInterestRecord,
	now time.Time,
) (*AllocationResult, error) {

	if !amount.IsPositive() {
		return nil, &InvalidAmountError{Amount: amount}
	}
	if loan.Status.Terminal() {
		return nil, &AlreadySettledError{LoanID: loan.ID, Status: loan.Status}
	}

	// Single authoritative ordering: due date, then sequence.
	ordered := make([]*Installment, len(installments))
	copy(ordered, installments)
	sort.SliceStable(ordered, func(i, j int) bool {
		if ordered[i].DueDate.Equal(ordered[j].DueDate) {
			return ordered[i].Sequence < ordered[j].Sequence
		}
		return ordered[i].DueDate.Before(ordered[j].DueDate)
	})

	payment := &Payment{
		ID:         NewPaymentID(),
		LoanID:     loan.ID,
		Amount:     amount,
		ReceivedAt: now,
	}

	result := &AllocationResult{Payment: payment, Excess: ZeroMoney()}
	left := amount
	consumed := ZeroMoney()

	for _, inst := range ordered {
		if !left.IsPositive() {
			break
		}
		if inst.IsPaid() && remainingLateFee(moratory, inst.ID).IsZero() {
			continue
		}

		alloc := &Allocation{
			ID:            NewAllocationID(),
			PaymentID:     payment.ID,
			InstallmentID: inst.ID,
			ToCapital:     ZeroMoney(),
			ToInterest:    ZeroMoney(),
			ToLateFee:     ZeroMoney(),
			CreatedAt:     now,
		}

		// Bucket 1: late fee.
		if rec := moratory[inst.ID]; rec != nil {
			take := left.Min(rec.Remaining())
			if take.IsPositive() {
				if err := rec.Collect(take); err != nil {
					return nil, err
				}
				alloc.ToLateFee = take
				left = left.Sub(take)
				result.TouchedMoratory = append(result.TouchedMoratory, rec)
			}
		}

		// Bucket 2: interest.
		if take := left.Min(inst.OutstandingInterest()); take.IsPositive() {
			alloc.ToInterest = take
			left = left.Sub(take)
		}

		// Bucket 3: capital.
		if take := left.Min(inst.OutstandingCapital()); take.IsPositive() {
			alloc.ToCapital = take
			left = left.Sub(take)
		}

		if alloc.Consumed().IsZero() {
			continue
		}

		applied := alloc.ToInterest.Add(alloc.ToCapital)
		inst.PaidAmount = inst.PaidAmount.Add(applied)
		if inst.PaidAmount.GreaterThan(inst.Total) {
			return nil, &InvariantViolationError{
				Invariant: "paidAmount <= totalAmount",
				Detail:    "installment " + string(inst.ID) + " overpaid",
			}
		}
		inst.RefreshStatus(now)
		if inst.Status == InstallmentPaid && inst.PaidAt == nil {
			paidAt := now
			inst.PaidAt = &paidAt
		}

		consumed = consumed.Add(alloc.Consumed())
		result.Allocations = append(result.Allocations, alloc)
		result.Touched = append(result.Touched, inst)
	}

	// No rounding leakage: consumed + excess must equal the incoming
	// amount exactly.
	if !consumed.Add(left).Equal(amount) {
		return nil, &InvariantViolationError{
			Invariant: "consumed + excess == amount",
			Detail:    "allocation leaked value for payment " + string(payment.ID),
		}
	}

	result.Excess = left
	payment.Excess = left

	result.NewRemainingBalance = RemainingCapital(installments)
	if result.NewRemainingBalance.IsNegative() {
		return nil, &InvariantViolationError{
			Invariant: "remaining balance >= 0",
			Detail:    "loan " + string(loan.ID),
		}
	}
	result.IsFullyPaid = result.NewRemainingBalance.IsZero() && allPaid(installments)

	loan.RemainingBalance = result.NewRemainingBalance
	loan.UpdatedAt = now
	if result.IsFullyPaid {
		loan.Status = LoanPaid
	} else if loan.Status == LoanCreated || loan.Status == LoanOverdue {
		loan.Status = deriveLoanStatus(installments, now)
	}

	return result, nil
}

func remainingLateFee(moratory map[InstallmentID]*MoratoryInterestRecord, id InstallmentID) Money {
	if rec := moratory[id]; rec != nil {
		return rec.Remaining()
	}
	return ZeroMoney()
}

func allPaid(installments []*Installment) bool {
	for _, inst := range installments {
		if !inst.IsPaid() {
			return false
		}
	}
	return true
}

// deriveLoanStatus returns Overdue if any unpaid installment is past
// due, UpToDate otherwise.
func deriveLoanStatus(installments []*Installment, now time.Time) LoanStatus {
	for _, inst := range installments {
		if !inst.IsPaid() && inst.DueDate.Before(truncateDay(now)) {
			return LoanOverdue
		}
	}
	return LoanUpToDate
}
