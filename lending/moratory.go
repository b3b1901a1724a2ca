/*
moratory.go - Penalty interest on overdue installments

PURPOSE:
  Computes accrued late-fee amounts for installments whose due date has
  passed and tracks the paid/discounted/remaining sub-balances. The
  accrual base is the outstanding capital of the overdue installment,
  not the whole loan.

ACCRUAL:
  generated += days-late-since-last-accrual
               * (annual penalty rate / 360)
               * outstanding installment capital

  Accrual is incremental and idempotent per calendar day: running the
  pass twice on the same day adds nothing.

CLASSIFICATION:
  The record's state (unpaid / partially paid / paid / discounted /
  partially discounted) is derived from the four amounts on read -
  see MoratoryInterestRecord.Classify in types.go. It is never stored.
*/
package lending

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var daysPerYear = decimal.NewFromInt(360)

// NewMoratoryRecord creates an empty record for a past-due installment.
func NewMoratoryRecord(inst *Installment) *MoratoryInterestRecord {
	return &MoratoryInterestRecord{
		ID:            uuid.NewString(),
		InstallmentID: inst.ID,
		LoanID:        inst.LoanID,
		Generated:     ZeroMoney(),
		Collected:     ZeroMoney(),
		Discounted:    ZeroMoney(),
	}
}

// Accrue adds penalty interest for the days elapsed since the last
// accrual (or since the due date, whichever is later). Returns the
// newly generated amount; zero when the installment is not overdue,
// fully paid, or already accrued today.
func (r *MoratoryInterestRecord) Accrue(inst *Installment, penaltyRate decimal.Decimal, now time.Time) Money {
	if inst.IsPaid() {
		return ZeroMoney()
	}

	today := truncateDay(now)
	from := truncateDay(inst.DueDate)
	if !r.LastAccruedAt.IsZero() && r.LastAccruedAt.After(from) {
		from = truncateDay(r.LastAccruedAt)
	}
	days := DaysBetween(from, today)
	if days <= 0 {
		return ZeroMoney()
	}

	dailyRate := penaltyRate.Div(daysPerYear)
	accrued := inst.OutstandingCapital().
		Mul(dailyRate).
		Mul(decimal.NewFromInt(int64(days))).
		RoundCents()

	r.Generated = r.Generated.Add(accrued)
	r.LastAccruedAt = today
	return accrued
}

// Collect records a late-fee payment against the record. Invoked by the
// allocator for the "late fee" bucket.
func (r *MoratoryInterestRecord) Collect(amount Money) error {
	if amount.IsNegative() {
		return &InvariantViolationError{Invariant: "collected amount >= 0", Detail: "moratory record " + r.ID}
	}
	if amount.GreaterThan(r.Remaining()) {
		return &InvariantViolationError{
			Invariant: "collected + discounted <= generated",
			Detail:    "moratory record " + r.ID + " over-collected",
		}
	}
	r.Collected = r.Collected.Add(amount)
	return nil
}

// ApplyDiscount records a discount effect against the record. Invoked
// by the discount engine.
func (r *MoratoryInterestRecord) ApplyDiscount(amount Money) error {
	if amount.IsNegative() {
		return &InvariantViolationError{Invariant: "discounted amount >= 0", Detail: "moratory record " + r.ID}
	}
	if amount.GreaterThan(r.Remaining()) {
		return &InvariantViolationError{
			Invariant: "collected + discounted <= generated",
			Detail:    "moratory record " + r.ID + " over-discounted",
		}
	}
	r.Discounted = r.Discounted.Add(amount)
	return nil
}

// =============================================================================
// OVERDUE DETECTION PASS
// =============================================================================

// OverdueResult reports one pass of DetectOverdue over a loan.
type OverdueResult struct {
	Flipped  []*Installment            // installments newly marked overdue
	Accrued  []*MoratoryInterestRecord // records that accrued today
	LoanDown bool                      // loan transitioned to Overdue
}

// DetectOverdue flips Pending-class installments past their due date to
// the Overdue class and accrues moratory interest on them. moratory is
// both input and output: missing records are created for newly overdue
// installments.
func DetectOverdue(
	loan *Loan,
	installments []*Installment,
	moratory map[InstallmentID]*MoratoryInterestRecord,
	now time.Time,
) *OverdueResult {

	result := &OverdueResult{}
	if loan.Status.Terminal() {
		return result
	}

	anyOverdue := false
	for _, inst := range installments {
		if inst.IsPaid() || !inst.DueDate.Before(truncateDay(now)) {
			continue
		}
		anyOverdue = true

		before := inst.Status
		inst.RefreshStatus(now)
		if inst.Status != before {
			result.Flipped = append(result.Flipped, inst)
		}

		rec := moratory[inst.ID]
		if rec == nil {
			rec = NewMoratoryRecord(inst)
			moratory[inst.ID] = rec
		}
		if accrued := rec.Accrue(inst, loan.PenaltyRate, now); accrued.IsPositive() {
			result.Accrued = append(result.Accrued, rec)
		}
	}

	if anyOverdue && loan.Status != LoanOverdue {
		loan.Status = LoanOverdue
		loan.UpdatedAt = now
		result.LoanDown = true
	}
	return result
}
