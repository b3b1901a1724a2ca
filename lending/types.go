/*
Package lending provides the core loan book engine.

PURPOSE:
  This package contains the pure domain logic for operating a lending
  book: generating installment schedules, allocating incoming payments
  across capital/interest/late-fee buckets, accruing moratory (penalty)
  interest on overdue installments, applying discounts, and refinancing.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money: An exact-decimal monetary amount (cent precision)
  - Loan: The borrower's obligation and its repayment terms
  - Installment: One scheduled capital+interest obligation
  - Payment/Allocation: An incoming amount and how it was split
  - MoratoryInterestRecord: Penalty interest on an overdue installment
  - Discount: A reduction applied to interest or moratory amounts

DESIGN PRINCIPLES:
  1. Precision: Uses decimal.Decimal throughout - binary floats never
     touch monetary values
  2. Immutability: Allocations are append-only once created
  3. Derivation: Remaining balances and statuses are recomputed from
     the underlying amounts, never stored redundantly
  4. Type Safety: Strong typing for IDs prevents mixing loan and
     installment identifiers

SEE ALSO:
  - schedule.go: Installment schedule generation
  - allocate.go: Payment waterfall allocation
  - moratory.go: Penalty interest accrual and tracking
*/
package lending

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MONEY - Exact decimal monetary amount
// =============================================================================

// Money is a monetary amount with cent precision. All arithmetic stays
// in decimal space; rounding happens only at allocation boundaries via
// RoundCents (half-up to the smallest currency unit).
type Money struct {
	Value decimal.Decimal
}

func NewMoney(value int64) Money {
	return Money{Value: decimal.NewFromInt(value)}
}

// NewMoneyFromMinorUnits builds a Money from integer minor units
// (e.g. cents): 1050 -> 10.50.
func NewMoneyFromMinorUnits(units int64) Money {
	return Money{Value: decimal.NewFromInt(units).Shift(-2)}
}

// ParseMoney parses an exact-decimal string ("1234.56").
func ParseMoney(s string) (Money, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, err
	}
	return Money{Value: d}, nil
}

// MustParseMoney is for constants and tests.
func MustParseMoney(s string) Money {
	return Money{Value: decimal.RequireFromString(s)}
}

func ZeroMoney() Money { return Money{Value: decimal.Zero} }

func (m Money) Add(o Money) Money             { return Money{Value: m.Value.Add(o.Value)} }
func (m Money) Sub(o Money) Money             { return Money{Value: m.Value.Sub(o.Value)} }
func (m Money) Mul(s decimal.Decimal) Money   { return Money{Value: m.Value.Mul(s)} }
func (m Money) Div(s decimal.Decimal) Money   { return Money{Value: m.Value.Div(s)} }
func (m Money) Neg() Money                    { return Money{Value: m.Value.Neg()} }
func (m Money) IsZero() bool                  { return m.Value.IsZero() }
func (m Money) IsNegative() bool              { return m.Value.IsNegative() }
func (m Money) IsPositive() bool              { return m.Value.IsPositive() }
func (m Money) GreaterThan(o Money) bool      { return m.Value.GreaterThan(o.Value) }
func (m Money) LessThan(o Money) bool         { return m.Value.LessThan(o.Value) }
func (m Money) GreaterOrEqual(o Money) bool   { return !m.Value.LessThan(o.Value) }
func (m Money) LessOrEqual(o Money) bool      { return !m.Value.GreaterThan(o.Value) }
func (m Money) Equal(o Money) bool            { return m.Value.Equal(o.Value) }
func (m Money) Min(o Money) Money             { if m.LessThan(o) { return m }; return o }
func (m Money) Max(o Money) Money             { if m.GreaterThan(o) { return m }; return o }

// RoundCents rounds half-up to the smallest currency unit.
func (m Money) RoundCents() Money { return Money{Value: m.Value.Round(2)} }

// MinorUnits returns the amount as integer minor units (cents).
// The amount must already be cent-rounded.
func (m Money) MinorUnits() int64 { return m.Value.Shift(2).IntPart() }

// String renders with exactly two decimal places, the wire format for
// all monetary values crossing the API boundary.
func (m Money) String() string { return m.Value.StringFixed(2) }

// =============================================================================
// IDENTIFIERS
// =============================================================================

type LoanID string
type InstallmentID string
type PaymentID string
type AllocationID string
type DiscountID string

func NewLoanID() LoanID               { return LoanID(uuid.NewString()) }
func NewInstallmentID() InstallmentID { return InstallmentID(uuid.NewString()) }
func NewPaymentID() PaymentID         { return PaymentID(uuid.NewString()) }
func NewAllocationID() AllocationID   { return AllocationID(uuid.NewString()) }
func NewDiscountID() DiscountID       { return DiscountID(uuid.NewString()) }

// =============================================================================
// LOAN
// =============================================================================

// LoanType selects the schedule strategy. Closed set - exhaustiveness
// is checked at dispatch, not by runtime registration.
type LoanType string

const (
	// LoanTypeFixed amortizes over a known number of equal installments
	// (French amortization table).
	LoanTypeFixed LoanType = "fixed_installments"

	// LoanTypeInterestOnlyGrace starts with an interest-only grace
	// window; capital amortization begins after grace expires.
	LoanTypeInterestOnlyGrace LoanType = "interest_only_grace"
)

type LoanStatus string

const (
	LoanCreated    LoanStatus = "created"
	LoanUpToDate   LoanStatus = "up_to_date"
	LoanOverdue    LoanStatus = "overdue"
	LoanPaid       LoanStatus = "paid"
	LoanRefinanced LoanStatus = "refinanced"
	LoanCancelled  LoanStatus = "cancelled"
)

// Terminal returns true if no further installments or payments are
// accepted against this loan.
func (s LoanStatus) Terminal() bool {
	return s == LoanPaid || s == LoanRefinanced || s == LoanCancelled
}

// Loan is the borrower's obligation. RemainingBalance is authoritative
// only immediately after an allocation; readers recompute it from
// installments (see RemainingCapital).
type Loan struct {
	ID               LoanID
	Principal        Money
	RemainingBalance Money

	// AnnualRate is the nominal annual interest rate as a fraction
	// (0.10 = 10%).
	AnnualRate decimal.Decimal

	// PenaltyRate is the annual moratory rate applied to overdue
	// installment capital.
	PenaltyRate decimal.Decimal

	// Term is the installment count. Zero for open-ended
	// interest-only loans.
	Term int

	Frequency PaymentFrequency
	Type      LoanType
	StartDate time.Time

	// Grace window for LoanTypeInterestOnlyGrace.
	GraceMonths int

	Status LoanStatus

	// Version backs the optimistic concurrency check on writes.
	Version int64

	// RefinancedFrom links a successor loan to the loan it replaced.
	RefinancedFrom LoanID

	CreatedAt time.Time
	UpdatedAt time.Time
}

// RemainingCapital sums unpaid capital across installments. This is the
// authoritative balance computation - a sum, not a running subtraction,
// so repeated allocations cannot drift.
func RemainingCapital(installments []*Installment) Money {
	total := ZeroMoney()
	for _, inst := range installments {
		total = total.Add(inst.UnpaidCapital())
	}
	return total
}

// =============================================================================
// INSTALLMENT
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending        InstallmentStatus = "pending"
	InstallmentPartial        InstallmentStatus = "partial"
	InstallmentPaid           InstallmentStatus = "paid"
	InstallmentOverdue        InstallmentStatus = "overdue"
	InstallmentOverduePartial InstallmentStatus = "overdue_partial"
)

// Installment is one scheduled obligation within a loan's plan.
// Created once at origination (or refinancing), never deleted.
// Total = Capital + Interest, fixed at creation (except for an interest
// discount, which reduces both Interest and Total).
type Installment struct {
	ID       InstallmentID
	LoanID   LoanID
	Sequence int // 1-based, unique per loan
	DueDate  time.Time

	Capital  Money
	Interest Money
	Total    Money

	// PaidAmount covers interest and capital only; late-fee payments
	// are tracked on the MoratoryInterestRecord. Monotonically
	// non-decreasing, never exceeds Total.
	PaidAmount Money

	Status InstallmentStatus
	PaidAt *time.Time
}

func (i *Installment) IsPaid() bool {
	return i.PaidAmount.GreaterOrEqual(i.Total)
}

// Outstanding is what remains owed on interest+capital.
func (i *Installment) Outstanding() Money {
	return i.Total.Sub(i.PaidAmount).Max(ZeroMoney())
}

// OutstandingInterest is the unpaid interest portion. Within an
// installment, payments satisfy interest before capital.
func (i *Installment) OutstandingInterest() Money {
	return i.Interest.Sub(i.PaidAmount).Max(ZeroMoney())
}

// OutstandingCapital is the unpaid capital portion.
func (i *Installment) OutstandingCapital() Money {
	paidCapital := i.PaidAmount.Sub(i.Interest).Max(ZeroMoney())
	return i.Capital.Sub(paidCapital).Max(ZeroMoney())
}

// UnpaidCapital is an alias used by balance summation.
func (i *Installment) UnpaidCapital() Money { return i.OutstandingCapital() }

// RefreshStatus derives the status from paid amounts and due date.
func (i *Installment) RefreshStatus(now time.Time) {
	switch {
	case i.IsPaid():
		i.Status = InstallmentPaid
	case i.DueDate.Before(truncateDay(now)):
		if i.PaidAmount.IsPositive() {
			i.Status = InstallmentOverduePartial
		} else {
			i.Status = InstallmentOverdue
		}
	case i.PaidAmount.IsPositive():
		i.Status = InstallmentPartial
	default:
		i.Status = InstallmentPending
	}
}

// =============================================================================
// PAYMENT & ALLOCATION
// =============================================================================

// Payment is an atomic incoming amount tied to a loan, not to a single
// installment. The waterfall decides which installments it touches.
type Payment struct {
	ID         PaymentID
	LoanID     LoanID
	Amount     Money
	Excess     Money // portion not consumed by any installment
	ReceivedAt time.Time
}

// Allocation ties a payment to one installment with the three bucket
// sub-amounts. Append-only: once created it is never modified.
type Allocation struct {
	ID            AllocationID
	PaymentID     PaymentID
	InstallmentID InstallmentID

	ToCapital  Money
	ToInterest Money
	ToLateFee  Money

	CreatedAt time.Time
}

// Consumed is the total this allocation took from the payment.
func (a *Allocation) Consumed() Money {
	return a.ToCapital.Add(a.ToInterest).Add(a.ToLateFee)
}

// =============================================================================
// MORATORY INTEREST RECORD
// =============================================================================

// MoratoryClass is the derived state of a moratory record. It is never
// stored - always recomputed from the amounts on read.
type MoratoryClass string

const (
	MoratoryNone                MoratoryClass = "none"
	MoratoryUnpaid              MoratoryClass = "unpaid"
	MoratoryPartiallyPaid       MoratoryClass = "partially_paid"
	MoratoryPaid                MoratoryClass = "paid"
	MoratoryPartiallyDiscounted MoratoryClass = "partially_discounted"
	MoratoryDiscounted          MoratoryClass = "discounted"
)

// MoratoryInterestRecord tracks penalty interest on one past-due
// installment. Invariants: Remaining >= 0, Collected+Discounted <= Generated.
type MoratoryInterestRecord struct {
	ID            string
	InstallmentID InstallmentID
	LoanID        LoanID

	Generated  Money
	Collected  Money
	Discounted Money

	// LastAccruedAt makes accrual idempotent per calendar day.
	LastAccruedAt time.Time
}

// Remaining is derived: generated - collected - discounted.
func (r *MoratoryInterestRecord) Remaining() Money {
	return r.Generated.Sub(r.Collected).Sub(r.Discounted).Max(ZeroMoney())
}

// Classify derives the record's state from its four amounts.
func (r *MoratoryInterestRecord) Classify() MoratoryClass {
	switch {
	case r.Generated.IsZero():
		return MoratoryNone
	case r.Remaining().IsZero() && r.Discounted.IsPositive() && r.Collected.IsZero():
		return MoratoryDiscounted
	case r.Remaining().IsZero():
		return MoratoryPaid
	case r.Discounted.IsPositive():
		return MoratoryPartiallyDiscounted
	case r.Collected.IsPositive():
		return MoratoryPartiallyPaid
	default:
		return MoratoryUnpaid
	}
}

// =============================================================================
// DISCOUNT
// =============================================================================

type DiscountType string

const (
	DiscountPercentage  DiscountType = "percentage"
	DiscountFixedAmount DiscountType = "fixed_amount"
)

// DiscountTarget selects which base a discount reduces.
type DiscountTarget string

const (
	TargetInterest DiscountTarget = "interest"
	TargetMoratory DiscountTarget = "moratory"
)

// Discount is referenced, not owned, by the records it reduces - it
// outlives any single application.
type Discount struct {
	ID    DiscountID
	Name  string
	Type  DiscountType
	Value decimal.Decimal // percent (15 = 15%) or fixed amount

	MaxAmount       *Money // cap for percentage discounts
	MinLoanAmount   *Money
	MaxApplications *int

	ValidFrom *time.Time
	ValidTo   *time.Time

	Active bool
}

// =============================================================================
// TIME HELPERS
// =============================================================================

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns whole days from one date to another, after
// truncating both to midnight UTC.
func DaysBetween(from, to time.Time) int {
	return int(truncateDay(to).Sub(truncateDay(from)).Hours() / 24)
}
