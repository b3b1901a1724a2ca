/*
schedule.go - Installment schedule generation strategies

PURPOSE:
  Materializes the installment plan for a loan at origination (and at
  refinancing). Two strategies, selected by the loan-type tag:

  FixedInstallments (French amortization):
    Equal total payment per installment. Interest is the periodic rate
    applied to the remaining balance, capital is the derived remainder.
    Rounding is applied only at the final cent, and the residual
    rounding error is absorbed into the LAST installment's capital so
    that the sum of all capital amounts equals the principal exactly.

  InterestOnlyWithGrace:
    During the grace window installments carry interest only
    (capital = 0). Capital amortization begins after grace expires:
    when the loan has a term, the amortizing tail is generated
    immediately after the grace installments; a zero term leaves the
    plan open-ended (extended later via ExtendAmortizing).

NUMERIC POLICY:
  All monetary arithmetic is decimal. float64 appears exactly once, for
  the (1+r)^n power in the annuity payment - the result is converted
  back to decimal and every subsequent step stays exact.

FAILURE:
  Both strategies fail fast with a ConfigurationError when their
  required parameter is missing. This is a distinct error kind from
  payment-processing failures.
*/
package lending

import (
	"math"
	"time"

	"github.com/shopspring/decimal"
)

// GenerateSchedule builds the installment plan for a loan. Dispatch is
// a closed switch over the loan type so an unhandled strategy cannot
// fall through silently.
func GenerateSchedule(loan *Loan) ([]*Installment, error) {
	switch loan.Type {
	case LoanTypeFixed:
		return fixedSchedule(loan)
	case LoanTypeInterestOnlyGrace:
		return graceSchedule(loan)
	default:
		return nil, &ConfigurationError{Strategy: string(loan.Type), Param: "loan type", Detail: "unknown schedule strategy"}
	}
}

// =============================================================================
// FIXED INSTALLMENTS - French amortization table
// =============================================================================

func fixedSchedule(loan *Loan) ([]*Installment, error) {
	if loan.Term < 1 {
		return nil, &ConfigurationError{Strategy: string(LoanTypeFixed), Param: "term", Detail: "installment count must be >= 1"}
	}
	return amortizingInstallments(loan, loan.Principal, loan.StartDate, 1, loan.Term), nil
}

// amortizingInstallments builds n equal-payment installments amortizing
// the given balance, starting numbering at firstSeq and dating from
// NextDueDate(afterDate).
func amortizingInstallments(loan *Loan, balance Money, afterDate time.Time, firstSeq, n int) []*Installment {
	rate := periodicRate(loan.AnnualRate, loan.Frequency)
	payment := annuityPayment(balance, rate, n)

	installments := make([]*Installment, 0, n)
	remaining := balance
	due := afterDate

	for i := 0; i < n; i++ {
		due = NextDueDate(loan.Frequency, due)

		interest := remaining.Mul(rate).RoundCents()
		capital := payment.Sub(interest)

		// The last installment absorbs the accumulated rounding
		// residual: its capital is whatever balance is left, which
		// guarantees sum(capital) == principal exactly.
		if i == n-1 {
			capital = remaining
		}

		remaining = remaining.Sub(capital)

		installments = append(installments, &Installment{
			ID:         NewInstallmentID(),
			LoanID:     loan.ID,
			Sequence:   firstSeq + i,
			DueDate:    due,
			Capital:    capital,
			Interest:   interest,
			Total:      capital.Add(interest),
			PaidAmount: ZeroMoney(),
			Status:     InstallmentPending,
		})
	}
	return installments
}

// annuityPayment computes the equal periodic payment
// P * r * (1+r)^n / ((1+r)^n - 1), cent-rounded.
func annuityPayment(principal Money, periodicRate decimal.Decimal, n int) Money {
	if periodicRate.IsZero() {
		return principal.Div(decimal.NewFromInt(int64(n))).RoundCents()
	}
	// float64 only for the power; everything else stays decimal.
	r, _ := periodicRate.Float64()
	factor := math.Pow(1+r, float64(n))
	factorDec := decimal.NewFromFloat(factor)

	numerator := principal.Value.Mul(periodicRate).Mul(factorDec)
	denominator := factorDec.Sub(decimal.NewFromInt(1))
	return Money{Value: numerator.Div(denominator)}.RoundCents()
}

func periodicRate(annual decimal.Decimal, f PaymentFrequency) decimal.Decimal {
	return annual.Div(decimal.NewFromInt(int64(f.PeriodsPerYear())))
}

// =============================================================================
// INTEREST-ONLY WITH GRACE
// =============================================================================

func graceSchedule(loan *Loan) ([]*Installment, error) {
	if loan.GraceMonths < 1 {
		return nil, &ConfigurationError{Strategy: string(LoanTypeInterestOnlyGrace), Param: "grace period", Detail: "grace months must be >= 1"}
	}

	rate := periodicRate(loan.AnnualRate, loan.Frequency)
	graceEnd := addMonthsClamped(loan.StartDate, loan.GraceMonths)

	var installments []*Installment
	due := loan.StartDate
	seq := 1
	for {
		due = NextDueDate(loan.Frequency, due)
		if due.After(graceEnd) {
			break
		}
		interest := loan.Principal.Mul(rate).RoundCents()
		installments = append(installments, &Installment{
			ID:         NewInstallmentID(),
			LoanID:     loan.ID,
			Sequence:   seq,
			DueDate:    due,
			Capital:    ZeroMoney(),
			Interest:   interest,
			Total:      interest,
			PaidAmount: ZeroMoney(),
			Status:     InstallmentPending,
		})
		seq++
	}

	if len(installments) == 0 {
		// A grace window shorter than one payment period produces no
		// interest-only installments; treat as misconfiguration.
		return nil, &ConfigurationError{Strategy: string(LoanTypeInterestOnlyGrace), Param: "grace period", Detail: "grace window shorter than one payment period"}
	}

	// With a known term the amortizing tail starts right after grace.
	// A zero term leaves the plan open-ended.
	if loan.Term > 0 {
		lastGraceDue := installments[len(installments)-1].DueDate
		tail := amortizingInstallments(loan, loan.Principal, lastGraceDue, seq, loan.Term)
		installments = append(installments, tail...)
	}

	return installments, nil
}

// ExtendAmortizing appends n amortizing installments to an open-ended
// interest-only loan, amortizing its current remaining capital. Used
// when the grace window of a zero-term loan expires.
func ExtendAmortizing(loan *Loan, existing []*Installment, n int) ([]*Installment, error) {
	if loan.Type != LoanTypeInterestOnlyGrace {
		return nil, &ConfigurationError{Strategy: string(loan.Type), Param: "loan type", Detail: "only interest-only loans are extended"}
	}
	if n < 1 {
		return nil, &ConfigurationError{Strategy: string(LoanTypeInterestOnlyGrace), Param: "extension length", Detail: "installment count must be >= 1"}
	}
	if len(existing) == 0 {
		return nil, &ConfigurationError{Strategy: string(LoanTypeInterestOnlyGrace), Param: "existing schedule", Detail: "no installments to extend from"}
	}

	last := existing[len(existing)-1]
	balance := RemainingCapital(existing)
	if balance.IsZero() {
		balance = loan.Principal
	}
	return amortizingInstallments(loan, balance, last.DueDate, last.Sequence+1, n), nil
}

// =============================================================================
// SCHEDULE TOTALS
// =============================================================================

// ScheduleTotals summarizes a generated plan.
type ScheduleTotals struct {
	Capital  Money
	Interest Money
	Total    Money
}

func SummarizeSchedule(installments []*Installment) ScheduleTotals {
	t := ScheduleTotals{Capital: ZeroMoney(), Interest: ZeroMoney(), Total: ZeroMoney()}
	for _, inst := range installments {
		t.Capital = t.Capital.Add(inst.Capital)
		t.Interest = t.Interest.Add(inst.Interest)
		t.Total = t.Total.Add(inst.Total)
	}
	return t
}
