package sqlite_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testLoan() *lending.Loan {
	rate, _ := decimal.NewFromString("0.10")
	penalty, _ := decimal.NewFromString("0.24")
	now := time.Date(2025, time.January, 15, 9, 30, 0, 0, time.UTC)
	return &lending.Loan{
		ID:               lending.NewLoanID(),
		Principal:        lending.MustParseMoney("1000000"),
		RemainingBalance: lending.MustParseMoney("1000000"),
		AnnualRate:       rate,
		PenaltyRate:      penalty,
		Term:             12,
		Frequency:        lending.FrequencyMonthly,
		Type:             lending.LoanTypeFixed,
		StartDate:        time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
		Status:           lending.LoanCreated,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func testInstallment(loanID lending.LoanID, seq int, due time.Time) *lending.Installment {
	return &lending.Installment{
		ID:         lending.NewInstallmentID(),
		LoanID:     loanID,
		Sequence:   seq,
		DueDate:    due,
		Capital:    lending.MustParseMoney("100"),
		Interest:   lending.MustParseMoney("8.33"),
		Total:      lending.MustParseMoney("108.33"),
		PaidAmount: lending.ZeroMoney(),
		Status:     lending.InstallmentPending,
	}
}

// =============================================================================
// LOANS
// =============================================================================

func TestSQLite_LoanRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	require.NoError(t, store.SaveLoan(ctx, loan))

	got, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)

	assert.Equal(t, loan.ID, got.ID)
	assert.True(t, got.Principal.Equal(loan.Principal))
	assert.True(t, got.AnnualRate.Equal(loan.AnnualRate))
	assert.Equal(t, loan.Frequency, got.Frequency)
	assert.Equal(t, loan.Type, got.Type)
	assert.Equal(t, loan.Status, got.Status)
	assert.True(t, got.StartDate.Equal(loan.StartDate))
}

func TestSQLite_LoanNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Loan(context.Background(), "missing")
	assert.ErrorIs(t, err, lending.ErrLoanNotFound)
}

func TestSQLite_MoneySurvivesAsExactDecimal(t *testing.T) {
	// Money is stored as text; a value like 0.10 must come back as
	// exactly 0.10, not a float approximation.
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	loan.Principal = lending.MustParseMoney("12345678.91")
	loan.RemainingBalance = loan.Principal
	require.NoError(t, store.SaveLoan(ctx, loan))

	got, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "12345678.91", got.Principal.String())
}

func TestSQLite_UpdateLoanVersionConflict(t *testing.T) {
	// GIVEN: Two readers holding the same loan version
	// WHEN: Both write back
	// THEN: The second write fails with a retryable conflict

	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	require.NoError(t, store.SaveLoan(ctx, loan))

	first, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)
	second, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)

	first.Status = lending.LoanUpToDate
	require.NoError(t, store.UpdateLoan(ctx, first, first.Version))

	second.Status = lending.LoanOverdue
	err = store.UpdateLoan(ctx, second, second.Version)
	require.Error(t, err)
	assert.ErrorIs(t, err, lending.ErrConcurrencyConflict)
	assert.True(t, lending.IsRetryable(err))

	// The winner's write stands.
	got, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, lending.LoanUpToDate, got.Status)
}

func TestSQLite_ActiveLoansExcludesTerminal(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	active := testLoan()
	settled := testLoan()
	settled.Status = lending.LoanPaid
	refinanced := testLoan()
	refinanced.Status = lending.LoanRefinanced

	require.NoError(t, store.SaveLoan(ctx, active))
	require.NoError(t, store.SaveLoan(ctx, settled))
	require.NoError(t, store.SaveLoan(ctx, refinanced))

	loans, err := store.ActiveLoans(ctx)
	require.NoError(t, err)
	require.Len(t, loans, 1)
	assert.Equal(t, active.ID, loans[0].ID)
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

func TestSQLite_InstallmentRoundTripAndOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	require.NoError(t, store.SaveLoan(ctx, loan))

	due := func(m time.Month) time.Time {
		return time.Date(2025, m, 15, 0, 0, 0, 0, time.UTC)
	}
	// Saved out of order on purpose.
	installments := []*lending.Installment{
		testInstallment(loan.ID, 3, due(time.April)),
		testInstallment(loan.ID, 1, due(time.February)),
		testInstallment(loan.ID, 2, due(time.March)),
	}
	require.NoError(t, store.SaveInstallments(ctx, installments))

	_, got, err := store.LoanWithInstallments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, 1, got[0].Sequence)
	assert.Equal(t, 2, got[1].Sequence)
	assert.Equal(t, 3, got[2].Sequence)
}

func TestSQLite_PendingInstallmentsSkipsPaid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	require.NoError(t, store.SaveLoan(ctx, loan))

	paid := testInstallment(loan.ID, 1, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC))
	paid.PaidAmount = paid.Total
	paid.Status = lending.InstallmentPaid
	paidAt := time.Date(2025, time.February, 14, 12, 0, 0, 0, time.UTC)
	paid.PaidAt = &paidAt
	open := testInstallment(loan.ID, 2, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC))

	require.NoError(t, store.SaveInstallments(ctx, []*lending.Installment{paid, open}))

	pending, err := store.PendingInstallments(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, 2, pending[0].Sequence)

	// And the paid timestamp survives the round trip.
	savedPaid, err := store.Installment(ctx, paid.ID)
	require.NoError(t, err)
	require.NotNil(t, savedPaid.PaidAt)
	assert.True(t, savedPaid.PaidAt.Equal(paidAt))
}

func TestSQLite_SaveInstallmentIsAnUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	require.NoError(t, store.SaveLoan(ctx, loan))

	inst := testInstallment(loan.ID, 1, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveInstallment(ctx, inst))

	inst.PaidAmount = lending.MustParseMoney("50")
	inst.Status = lending.InstallmentPartial
	require.NoError(t, store.SaveInstallment(ctx, inst))

	got, err := store.Installment(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, "50.00", got.PaidAmount.String())
	assert.Equal(t, lending.InstallmentPartial, got.Status)
}

// =============================================================================
// PAYMENTS, ALLOCATIONS, MORATORY
// =============================================================================

func TestSQLite_PaymentAndAllocationLedger(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	require.NoError(t, store.SaveLoan(ctx, loan))
	inst := testInstallment(loan.ID, 1, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveInstallment(ctx, inst))

	payment := &lending.Payment{
		ID:         lending.NewPaymentID(),
		LoanID:     loan.ID,
		Amount:     lending.MustParseMoney("108.33"),
		Excess:     lending.ZeroMoney(),
		ReceivedAt: time.Date(2025, time.February, 10, 8, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.SavePayment(ctx, payment))

	alloc := &lending.Allocation{
		ID:            lending.NewAllocationID(),
		PaymentID:     payment.ID,
		InstallmentID: inst.ID,
		ToCapital:     lending.MustParseMoney("100"),
		ToInterest:    lending.MustParseMoney("8.33"),
		ToLateFee:     lending.ZeroMoney(),
		CreatedAt:     payment.ReceivedAt,
	}
	require.NoError(t, store.SaveAllocation(ctx, alloc))

	allocations, err := store.AllocationsForLoan(ctx, loan.ID)
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "100.00", allocations[0].ToCapital.String())
	assert.Equal(t, "8.33", allocations[0].ToInterest.String())
	assert.Equal(t, payment.ID, allocations[0].PaymentID)
}

func TestSQLite_MoratoryRecordUpsert(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	require.NoError(t, store.SaveLoan(ctx, loan))
	inst := testInstallment(loan.ID, 1, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveInstallment(ctx, inst))

	rec := lending.NewMoratoryRecord(inst)
	rec.Generated = lending.MustParseMoney("10")
	rec.LastAccruedAt = time.Date(2025, time.February, 20, 0, 0, 0, 0, time.UTC)
	require.NoError(t, store.SaveMoratoryRecord(ctx, rec))

	rec.Generated = lending.MustParseMoney("20")
	rec.Collected = lending.MustParseMoney("5")
	require.NoError(t, store.SaveMoratoryRecord(ctx, rec))

	got, err := store.MoratoryRecordFor(ctx, inst.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "20.00", got.Generated.String())
	assert.Equal(t, "15.00", got.Remaining().String())

	records, err := store.MoratoryRecords(ctx, loan.ID)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSQLite_MoratoryRecordForAbsentIsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.MoratoryRecordFor(context.Background(), lending.NewInstallmentID())
	require.NoError(t, err)
	assert.Nil(t, got)
}

// =============================================================================
// DISCOUNTS
// =============================================================================

func TestSQLite_DiscountRoundTripWithOptionalFields(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	value, _ := decimal.NewFromString("15")
	maxAmount := lending.MustParseMoney("100")
	minLoan := lending.MustParseMoney("50000")
	maxApps := 1
	from := time.Date(2025, time.June, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2025, time.June, 30, 0, 0, 0, 0, time.UTC)

	d := &lending.Discount{
		ID:              lending.NewDiscountID(),
		Name:            "summer moratory relief",
		Type:            lending.DiscountPercentage,
		Value:           value,
		MaxAmount:       &maxAmount,
		MinLoanAmount:   &minLoan,
		MaxApplications: &maxApps,
		ValidFrom:       &from,
		ValidTo:         &to,
		Active:          true,
	}
	require.NoError(t, store.SaveDiscount(ctx, d))

	got, err := store.Discount(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.Name, got.Name)
	assert.True(t, got.Value.Equal(value))
	require.NotNil(t, got.MaxAmount)
	assert.Equal(t, "100.00", got.MaxAmount.String())
	require.NotNil(t, got.MaxApplications)
	assert.Equal(t, 1, *got.MaxApplications)
	require.NotNil(t, got.ValidFrom)
	assert.True(t, got.ValidFrom.Equal(from))
	assert.True(t, got.Active)
}

func TestSQLite_DiscountNotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Discount(context.Background(), "missing")
	assert.ErrorIs(t, err, lending.ErrDiscountNotFound)
}

func TestSQLite_DiscountApplicationCounting(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	value, _ := decimal.NewFromString("15")
	d := &lending.Discount{
		ID:     lending.NewDiscountID(),
		Name:   "repeat",
		Type:   lending.DiscountPercentage,
		Value:  value,
		Active: true,
	}
	require.NoError(t, store.SaveDiscount(ctx, d))

	loan := testLoan()
	require.NoError(t, store.SaveLoan(ctx, loan))
	inst := testInstallment(loan.ID, 1, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, store.SaveInstallment(ctx, inst))

	effect := &lending.DiscountEffect{
		DiscountID:    d.ID,
		InstallmentID: inst.ID,
		Target:        lending.TargetInterest,
		Base:          lending.MustParseMoney("8.33"),
		Amount:        lending.MustParseMoney("1.25"),
		AppliedAt:     time.Date(2025, time.June, 5, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, store.RecordDiscountApplication(ctx, effect))
	require.NoError(t, store.RecordDiscountApplication(ctx, effect))

	n, err := store.DiscountApplications(ctx, d.ID, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	// Counting is scoped per installment.
	n, err = store.DiscountApplications(ctx, d.ID, lending.NewInstallmentID())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestSQLite_WithTxRollsBackOnError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(s lending.Store) error {
		if err := s.SaveLoan(ctx, loan); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = store.Loan(ctx, loan.ID)
	assert.ErrorIs(t, err, lending.ErrLoanNotFound)
}

func TestSQLite_WithTxCommitsOnSuccess(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	loan := testLoan()
	inst := testInstallment(loan.ID, 1, time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC))

	err := store.WithTx(ctx, func(s lending.Store) error {
		if err := s.SaveLoan(ctx, loan); err != nil {
			return err
		}
		return s.SaveInstallment(ctx, inst)
	})
	require.NoError(t, err)

	got, installments, err := store.LoanWithInstallments(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, loan.ID, got.ID)
	require.Len(t, installments, 1)
}

func TestSQLite_EngineRunsOnSQLiteStore(t *testing.T) {
	// The engine's full payment path against the durable store.
	store := newTestStore(t)
	ctx := context.Background()

	engine := lending.NewEngine(store)
	engine.Now = func() time.Time { return time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC) }

	loan := testLoan()
	loan.ID = ""
	loan.Principal = lending.MustParseMoney("1200")
	loan.RemainingBalance = loan.Principal
	loan.AnnualRate = decimal.Zero
	installments, err := engine.Originate(ctx, loan)
	require.NoError(t, err)
	require.Len(t, installments, 12)

	engine.Now = func() time.Time { return time.Date(2025, time.February, 15, 0, 0, 0, 0, time.UTC) }
	result, err := engine.AllocatePayment(ctx, loan.ID, lending.MustParseMoney("100"))
	require.NoError(t, err)
	assert.Equal(t, "1100.00", result.NewRemainingBalance.String())

	saved, err := store.Loan(ctx, loan.ID)
	require.NoError(t, err)
	assert.Equal(t, "1100.00", saved.RemainingBalance.String())
	assert.Equal(t, int64(1), saved.Version)
}
