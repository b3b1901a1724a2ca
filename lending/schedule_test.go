package lending_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func fixedLoan(principal string, annualRate string, term int) *lending.Loan {
	return &lending.Loan{
		ID:          lending.NewLoanID(),
		Principal:   lending.MustParseMoney(principal),
		AnnualRate:  mustDecimal(annualRate),
		PenaltyRate: mustDecimal("0.24"),
		Term:        term,
		Frequency:   lending.FrequencyMonthly,
		Type:        lending.LoanTypeFixed,
		StartDate:   date(2025, time.January, 15),
	}
}

func graceLoan(principal string, annualRate string, graceMonths, term int) *lending.Loan {
	return &lending.Loan{
		ID:          lending.NewLoanID(),
		Principal:   lending.MustParseMoney(principal),
		AnnualRate:  mustDecimal(annualRate),
		PenaltyRate: mustDecimal("0.24"),
		Term:        term,
		Frequency:   lending.FrequencyMonthly,
		Type:        lending.LoanTypeInterestOnlyGrace,
		StartDate:   date(2025, time.January, 15),
		GraceMonths: graceMonths,
	}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// =============================================================================
// FIXED INSTALLMENTS (FRENCH AMORTIZATION)
// =============================================================================

func TestFixedSchedule_CapitalSumsToPrincipalExactly(t *testing.T) {
	// GIVEN: 1,000,000 at 10% annual over 12 monthly installments
	// WHEN: The schedule is generated
	// THEN: The capital portions sum to the principal to the cent

	loan := fixedLoan("1000000", "0.10", 12)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)
	require.Len(t, installments, 12)

	totals := lending.SummarizeSchedule(installments)
	assert.True(t, totals.Capital.Equal(loan.Principal),
		"capital sum %s != principal %s", totals.Capital, loan.Principal)
}

func TestFixedSchedule_AnnuityPaymentAndFirstInterest(t *testing.T) {
	// GIVEN: 1,000,000 at 10% annual over 12 monthly installments
	// THEN: Equal payment of 87,915.89 and first-month interest 8,333.33

	loan := fixedLoan("1000000", "0.10", 12)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)

	first := installments[0]
	assert.Equal(t, "8333.33", first.Interest.String())
	assert.Equal(t, "87915.89", first.Total.String())

	// All installments except the residual-absorbing last one share
	// the same total.
	for _, inst := range installments[:11] {
		assert.True(t, inst.Total.Equal(first.Total),
			"installment %d total %s differs from %s", inst.Sequence, inst.Total, first.Total)
	}
}

func TestFixedSchedule_InterestDeclinesAsBalanceAmortizes(t *testing.T) {
	loan := fixedLoan("50000", "0.12", 24)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)

	for i := 1; i < len(installments); i++ {
		assert.True(t, installments[i].Interest.LessThan(installments[i-1].Interest),
			"interest should strictly decline, broke at sequence %d", installments[i].Sequence)
	}
}

func TestFixedSchedule_ZeroRateSplitsEvenly(t *testing.T) {
	loan := fixedLoan("1200", "0", 12)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)

	for _, inst := range installments {
		assert.Equal(t, "100.00", inst.Capital.String())
		assert.True(t, inst.Interest.IsZero())
	}
}

func TestFixedSchedule_EachTotalIsCapitalPlusInterest(t *testing.T) {
	loan := fixedLoan("7777.77", "0.185", 36)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)

	for _, inst := range installments {
		assert.True(t, inst.Total.Equal(inst.Capital.Add(inst.Interest)))
	}
}

func TestFixedSchedule_MissingTermFailsFast(t *testing.T) {
	loan := fixedLoan("1000", "0.10", 0)

	_, err := lending.GenerateSchedule(loan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lending.ErrConfiguration))

	var cfgErr *lending.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "term", cfgErr.Param)
}

func TestFixedSchedule_SequencesAndDueDatesAreOrdered(t *testing.T) {
	loan := fixedLoan("10000", "0.10", 6)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)

	for i, inst := range installments {
		assert.Equal(t, i+1, inst.Sequence)
		if i > 0 {
			assert.True(t, inst.DueDate.After(installments[i-1].DueDate))
		}
	}
	assert.Equal(t, date(2025, time.February, 15), installments[0].DueDate)
}

// =============================================================================
// INTEREST-ONLY WITH GRACE
// =============================================================================

func TestGraceSchedule_InterestOnlyDuringGrace(t *testing.T) {
	// GIVEN: 100,000 at 12% annual, 6-month grace, 12-month term
	// THEN: 6 interest-only installments of 1,000 each, then an
	//       amortizing tail of 12

	loan := graceLoan("100000", "0.12", 6, 12)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)
	require.Len(t, installments, 18)

	for _, inst := range installments[:6] {
		assert.True(t, inst.Capital.IsZero(), "grace installment %d must carry no capital", inst.Sequence)
		assert.Equal(t, "1000.00", inst.Interest.String())
	}

	tail := installments[6:]
	totals := lending.SummarizeSchedule(tail)
	assert.True(t, totals.Capital.Equal(loan.Principal))
	assert.Equal(t, 7, tail[0].Sequence)
	assert.True(t, tail[0].DueDate.After(installments[5].DueDate))
}

func TestGraceSchedule_ZeroTermIsOpenEnded(t *testing.T) {
	loan := graceLoan("100000", "0.12", 6, 0)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)
	require.Len(t, installments, 6)

	for _, inst := range installments {
		assert.True(t, inst.Capital.IsZero())
	}
}

func TestGraceSchedule_ExtendAmortizing(t *testing.T) {
	// GIVEN: An open-ended interest-only loan past its grace window
	// WHEN: The plan is extended with a 12-installment amortizing tail
	// THEN: The tail amortizes the full principal and continues the
	//       sequence numbering

	loan := graceLoan("100000", "0.12", 6, 0)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)

	tail, err := lending.ExtendAmortizing(loan, installments, 12)
	require.NoError(t, err)
	require.Len(t, tail, 12)

	totals := lending.SummarizeSchedule(tail)
	assert.True(t, totals.Capital.Equal(loan.Principal))
	assert.Equal(t, 7, tail[0].Sequence)
}

func TestGraceSchedule_MissingGraceFailsFast(t *testing.T) {
	loan := graceLoan("1000", "0.10", 0, 12)

	_, err := lending.GenerateSchedule(loan)
	require.Error(t, err)
	assert.True(t, errors.Is(err, lending.ErrConfiguration))
}

func TestExtendAmortizing_RejectsFixedLoans(t *testing.T) {
	loan := fixedLoan("1000", "0.10", 12)
	installments, err := lending.GenerateSchedule(loan)
	require.NoError(t, err)

	_, err = lending.ExtendAmortizing(loan, installments, 6)
	assert.True(t, errors.Is(err, lending.ErrConfiguration))
}

func TestGenerateSchedule_UnknownStrategyFails(t *testing.T) {
	loan := fixedLoan("1000", "0.10", 12)
	loan.Type = lending.LoanType("balloon")

	_, err := lending.GenerateSchedule(loan)
	assert.True(t, errors.Is(err, lending.ErrConfiguration))
}
