/*
discount.go - Discount eligibility and effect computation

PURPOSE:
  Evaluates whether a discount can be applied and computes its monetary
  effect against an interest or moratory base.

ELIGIBILITY ORDER:
  1. isActive
  2. current date within [validFrom, validTo] when set
  3. loan amount >= minLoanAmount when set
  4. prior applications < maxApplications when set

  The first failing check is reported; checks 1-3 fail with
  ErrDiscountNotEligible, check 4 with ErrPolicyViolation (re-applying
  past the limit is a policy breach, never a silent no-op).

EFFECT:
  Percentage: value% of the base, capped at maxAmount when set.
  FixedAmount: min(value, base).
  Neither ever discounts below zero or more than what is owed.
*/
package lending

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// DiscountEffect is the computed outcome of one application.
type DiscountEffect struct {
	DiscountID    DiscountID
	Target        DiscountTarget
	InstallmentID InstallmentID
	Base          Money // what was owed before
	Amount        Money // how much was taken off
	AppliedAt     time.Time
}

// CheckEligibility runs the eligibility chain in order. applications is
// the prior per-loan/installment application count.
func CheckEligibility(d *Discount, loan *Loan, applications int, now time.Time) error {
	if !d.Active {
		return &DiscountNotEligibleError{DiscountID: d.ID, Check: "active", Detail: "discount is inactive"}
	}
	if d.ValidFrom != nil && now.Before(*d.ValidFrom) {
		return &DiscountNotEligibleError{DiscountID: d.ID, Check: "validity window", Detail: "not yet valid"}
	}
	if d.ValidTo != nil && now.After(*d.ValidTo) {
		return &DiscountNotEligibleError{DiscountID: d.ID, Check: "validity window", Detail: "expired"}
	}
	if d.MinLoanAmount != nil && loan.Principal.LessThan(*d.MinLoanAmount) {
		return &DiscountNotEligibleError{
			DiscountID: d.ID,
			Check:      "minimum loan amount",
			Detail:     fmt.Sprintf("loan principal %s below minimum %s", loan.Principal, *d.MinLoanAmount),
		}
	}
	if d.MaxApplications != nil && applications >= *d.MaxApplications {
		return &PolicyViolationError{DiscountID: d.ID, MaxApplications: *d.MaxApplications, Applied: applications}
	}
	return nil
}

// ComputeEffect returns the monetary reduction against the base.
func ComputeEffect(d *Discount, base Money) Money {
	if !base.IsPositive() {
		return ZeroMoney()
	}

	var effect Money
	switch d.Type {
	case DiscountPercentage:
		effect = base.Mul(d.Value.Div(hundred)).RoundCents()
		if d.MaxAmount != nil && effect.GreaterThan(*d.MaxAmount) {
			effect = *d.MaxAmount
		}
	case DiscountFixedAmount:
		effect = Money{Value: d.Value}
	default:
		return ZeroMoney()
	}

	// Never more than what's owed, never below zero.
	return effect.Min(base).Max(ZeroMoney())
}

// ApplyToMoratory applies an eligible discount against a moratory
// record's remaining amount and returns the effect.
func ApplyToMoratory(d *Discount, loan *Loan, rec *MoratoryInterestRecord, applications int, now time.Time) (*DiscountEffect, error) {
	if err := CheckEligibility(d, loan, applications, now); err != nil {
		return nil, err
	}
	base := rec.Remaining()
	effect := ComputeEffect(d, base)
	if err := rec.ApplyDiscount(effect); err != nil {
		return nil, err
	}
	return &DiscountEffect{
		DiscountID:    d.ID,
		Target:        TargetMoratory,
		InstallmentID: rec.InstallmentID,
		Base:          base,
		Amount:        effect,
		AppliedAt:     now,
	}, nil
}

// ApplyToInterest applies an eligible discount against an installment's
// outstanding interest, reducing Interest and Total together so the
// capital amount and the paidAmount invariants are untouched.
func ApplyToInterest(d *Discount, loan *Loan, inst *Installment, applications int, now time.Time) (*DiscountEffect, error) {
	if err := CheckEligibility(d, loan, applications, now); err != nil {
		return nil, err
	}
	base := inst.OutstandingInterest()
	effect := ComputeEffect(d, base)

	inst.Interest = inst.Interest.Sub(effect)
	inst.Total = inst.Total.Sub(effect)
	inst.RefreshStatus(now)
	if inst.Status == InstallmentPaid && inst.PaidAt == nil {
		paidAt := now
		inst.PaidAt = &paidAt
	}

	return &DiscountEffect{
		DiscountID:    d.ID,
		Target:        TargetInterest,
		InstallmentID: inst.ID,
		Base:          base,
		Amount:        effect,
		AppliedAt:     now,
	}, nil
}
