package lending_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/lending"
	memstore "github.com/warp/lending-engine/lending/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestEngine(t *testing.T, now time.Time) (*lending.Engine, *memstore.TxMemory) {
	t.Helper()
	store := memstore.NewTxMemory()
	engine := lending.NewEngine(store)
	engine.Now = func() time.Time { return now }
	return engine, store
}

// =============================================================================
// ORIGINATION
// =============================================================================

func TestEngine_OriginatePersistsLoanAndSchedule(t *testing.T) {
	now := date(2025, time.January, 15)
	engine, store := newTestEngine(t, now)
	ctx := context.Background()

	loan := fixedLoan("1000000", "0.10", 12)
	loan.ID = "" // engine assigns
	installments, err := engine.Originate(ctx, loan)
	require.NoError(t, err)
	require.Len(t, installments, 12)

	assert.NotEmpty(t, loan.ID)
	assert.Equal(t, lending.LoanCreated, loan.Status)
	assert.True(t, loan.RemainingBalance.Equal(loan.Principal))

	saved, savedInstallments, err := store.LoanWithInstallments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, saved.ID)
	assert.Len(t, savedInstallments, 12)
}

func TestEngine_OriginateRejectsNonPositivePrincipal(t *testing.T) {
	engine, _ := newTestEngine(t, date(2025, time.January, 15))

	loan := fixedLoan("0", "0.10", 12)
	_, err := engine.Originate(context.Background(), loan)
	assert.ErrorIs(t, err, lending.ErrValidation)
}

func TestEngine_OriginateRollsBackOnBadSchedule(t *testing.T) {
	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("1000", "0.10", 0) // missing term
	_, err := engine.Originate(ctx, loan)
	require.Error(t, err)

	_, lerr := store.Loan(ctx, loan.ID)
	assert.ErrorIs(t, lerr, lending.ErrLoanNotFound)
}

// =============================================================================
// PAYMENT ALLOCATION
// =============================================================================

func TestEngine_AllocatePaymentPersistsEverything(t *testing.T) {
	now := date(2025, time.January, 15)
	engine, store := newTestEngine(t, now)
	ctx := context.Background()

	loan := fixedLoan("1200", "0", 12)
	_, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	engine.Now = func() time.Time { return date(2025, time.February, 15) }
	result, err := engine.AllocatePayment(ctx, loan.ID, lending.MustParseMoney("100"))
	require.NoError(t, err)

	assert.Equal(t, "1100.00", result.NewRemainingBalance.String())

	saved, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "1100.00", saved.RemainingBalance.String())
	assert.Equal(t, int64(loan.Version+1), saved.Version)

	allocations, err := store.AllocationsForLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "100.00", allocations[0].ToCapital.String())
}

func TestEngine_PaymentOnOverdueLoanCollectsLateFeesFirst(t *testing.T) {
	// GIVEN: A loan 30 days past its first due date
	// WHEN: A payment arrives
	// THEN: Accrual runs inside the same transaction and the late-fee
	//       bucket is satisfied before the installment itself

	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("12000", "0", 12)
	loan.PenaltyRate = mustDecimal("0.36")
	installments, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	payDay := installments[0].DueDate.AddDate(0, 0, 30)
	engine.Now = func() time.Time { return payDay }

	// 1,000 capital * 0.1%/day * 30 days = 30 of late fee.
	result, err := engine.AllocatePayment(ctx, loan.ID, lending.MustParseMoney("1030"))
	require.NoError(t, err)

	require.Len(t, result.Allocations, 1)
	assert.Equal(t, "30.00", result.Allocations[0].ToLateFee.String())
	assert.Equal(t, "1000.00", result.Allocations[0].ToCapital.String())

	records, err := store.MoratoryRecords(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, records, 1)
	for _, rec := range records {
		assert.True(t, rec.Remaining().IsZero())
		assert.Equal(t, lending.MoratoryPaid, rec.Classify())
	}
}

func TestEngine_AllocatePaymentUnknownLoan(t *testing.T) {
	engine, _ := newTestEngine(t, date(2025, time.January, 15))

	_, err := engine.AllocatePayment(context.Background(), "no-such-loan", lending.MustParseMoney("100"))
	assert.ErrorIs(t, err, lending.ErrLoanNotFound)
	assert.True(t, lending.IsNotFound(err))
}

func TestEngine_FailedAllocationLeavesNoTrace(t *testing.T) {
	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("1200", "0", 12)
	_, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	_, err = engine.AllocatePayment(ctx, loan.ID, lending.MustParseMoney("-5"))
	require.Error(t, err)

	allocations, err := store.AllocationsForLoan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Empty(t, allocations)
}

// =============================================================================
// DISCOUNTS
// =============================================================================

func TestEngine_ApplyDiscountToInterest(t *testing.T) {
	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("100000", "0.12", 12)
	installments, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	discount := percentageDiscount("50")
	require.NoError(t, store.SaveDiscount(ctx, discount))

	effect, err := engine.ApplyDiscount(ctx, installments[0].ID, discount.ID, lending.TargetInterest)
	require.NoError(t, err)
	assert.Equal(t, "500.00", effect.Amount.String())

	saved, err := store.Installment(ctx, installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "500.00", saved.Interest.String())
}

func TestEngine_ApplyDiscountEnforcesMaxApplications(t *testing.T) {
	// GIVEN: A discount limited to one application
	// WHEN: It is applied twice to the same installment
	// THEN: The second application is a policy violation and nothing
	//       changes

	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("100000", "0.12", 12)
	installments, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	discount := percentageDiscount("10")
	discount.MaxApplications = intPtr(1)
	require.NoError(t, store.SaveDiscount(ctx, discount))

	_, err = engine.ApplyDiscount(ctx, installments[0].ID, discount.ID, lending.TargetInterest)
	require.NoError(t, err)

	_, err = engine.ApplyDiscount(ctx, installments[0].ID, discount.ID, lending.TargetInterest)
	require.Error(t, err)
	assert.ErrorIs(t, err, lending.ErrPolicyViolation)

	// 10% of 1,000 was taken once; the second attempt changed nothing.
	saved, err := store.Installment(ctx, installments[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "900.00", saved.Interest.String())
}

func TestEngine_ApplyDiscountToMoratoryRequiresARecord(t *testing.T) {
	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("1200", "0", 12)
	installments, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	discount := percentageDiscount("50")
	require.NoError(t, store.SaveDiscount(ctx, discount))

	_, err = engine.ApplyDiscount(ctx, installments[0].ID, discount.ID, lending.TargetMoratory)
	assert.ErrorIs(t, err, lending.ErrDiscountNotEligible)
}

// =============================================================================
// REFINANCE
// =============================================================================

func TestEngine_RefinanceClosesOldAndOpensSuccessor(t *testing.T) {
	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("1200", "0", 12)
	_, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	engine.Now = func() time.Time { return date(2025, time.June, 1) }
	_, err = engine.AllocatePayment(ctx, loan.ID, lending.MustParseMoney("400"))
	require.NoError(t, err)

	result, err := engine.Refinance(ctx, loan.ID, lending.MustParseMoney("200"))
	require.NoError(t, err)

	old, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.LoanRefinanced, old.Status)
	assert.True(t, old.RemainingBalance.IsZero())

	successor, schedule, err := store.LoanWithInstallments(ctx, result.NewLoan.ID)
	require.NoError(t, err)
	assert.Equal(t, "1000.00", successor.Principal.String())
	assert.Equal(t, loan.ID, successor.RefinancedFrom)
	assert.Len(t, schedule, 12)
}

func TestEngine_RefinanceTwiceFails(t *testing.T) {
	engine, _ := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("1200", "0", 12)
	_, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	_, err = engine.Refinance(ctx, loan.ID, lending.ZeroMoney())
	require.NoError(t, err)

	_, err = engine.Refinance(ctx, loan.ID, lending.ZeroMoney())
	assert.ErrorIs(t, err, lending.ErrAlreadySettled)
}

// =============================================================================
// OVERDUE DETECTION PASS
// =============================================================================

func TestEngine_RunOverdueDetectionTouchesDelinquentLoans(t *testing.T) {
	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	late := fixedLoan("1200", "0", 12)
	late.PenaltyRate = mustDecimal("0.36")
	current := fixedLoan("1200", "0", 12)
	current.StartDate = date(2025, time.June, 1)

	_, err := engine.Originate(ctx, late)
	require.NoError(t, err)
	_, err = engine.Originate(ctx, current)
	require.NoError(t, err)

	engine.Now = func() time.Time { return date(2025, time.March, 1) }
	touched, err := engine.RunOverdueDetection(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, touched)

	savedLate, err := store.Loan(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.LoanOverdue, savedLate.Status)

	savedCurrent, err := store.Loan(ctx, current.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.LoanCreated, savedCurrent.Status)
}

func TestEngine_RunOverdueDetectionIsIdempotentPerDay(t *testing.T) {
	engine, store := newTestEngine(t, date(2025, time.January, 15))
	ctx := context.Background()

	loan := fixedLoan("1200", "0", 12)
	loan.PenaltyRate = mustDecimal("0.36")
	_, err := engine.Originate(ctx, loan)
	require.NoError(t, err)

	engine.Now = func() time.Time { return date(2025, time.March, 1) }
	_, err = engine.RunOverdueDetection(ctx)
	require.NoError(t, err)

	before, err := store.MoratoryRecords(ctx, loan.ID)
	require.NoError(t, err)

	_, err = engine.RunOverdueDetection(ctx)
	require.NoError(t, err)

	after, err := store.MoratoryRecords(ctx, loan.ID)
	require.NoError(t, err)
	for id, rec := range after {
		assert.True(t, rec.Generated.Equal(before[id].Generated))
	}
}
