/*
Package product provides JSON to Go loan-product conversion.

PURPOSE:
  Converts JSON product definitions into loan terms the engine
  understands. This enables product configuration without code changes
  - a credit team can define products in JSON, and the factory builds
  the proper Go structs.

JSON SCHEMA:
  {
    "id": "personal-12m",
    "name": "Personal 12 months",
    "loan_type": "fixed_installments",
    "frequency": "monthly",
    "annual_rate": "0.10",
    "penalty_rate": "0.24",
    "term": 12
  }

  Interest-only products carry "grace_months" instead of (or alongside)
  "term".

KEY FEATURES:
  - Validates structure and required strategy parameters up front, so a
    bad product fails at load time, not at origination
  - Rates parse as exact decimal strings, never floats
  - Unknown frequencies degrade to monthly per the engine's documented
    default; ParseProductStrict rejects them instead

SEE ALSO:
  - lending/schedule.go: strategies consuming these terms
  - api/handlers.go: loan creation from a product
*/
package product

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ProductJSON is the JSON representation of a loan product.
type ProductJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	LoanType    string `json:"loan_type"`
	Frequency   string `json:"frequency"`
	AnnualRate  string `json:"annual_rate"`
	PenaltyRate string `json:"penalty_rate,omitempty"`
	Term        int    `json:"term,omitempty"`
	GraceMonths int    `json:"grace_months,omitempty"`
}

// LoanProduct is the parsed, validated product.
type LoanProduct struct {
	ID          string
	Name        string
	Type        lending.LoanType
	Frequency   lending.PaymentFrequency
	AnnualRate  decimal.Decimal
	PenaltyRate decimal.Decimal
	Term        int
	GraceMonths int
}

// =============================================================================
// PRODUCT FACTORY
// =============================================================================

// ParseProduct parses a JSON string into a LoanProduct. Unknown
// frequencies fall back to monthly.
func ParseProduct(jsonStr string) (*LoanProduct, error) {
	var pj ProductJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse product JSON: %w", err)
	}
	return FromJSON(pj, false)
}

// ParseProductStrict rejects unknown frequencies with a configuration
// error instead of falling back.
func ParseProductStrict(jsonStr string) (*LoanProduct, error) {
	var pj ProductJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse product JSON: %w", err)
	}
	return FromJSON(pj, true)
}

// FromJSON converts ProductJSON to a LoanProduct, validating the
// strategy parameters the engine will require.
func FromJSON(pj ProductJSON, strictFrequency bool) (*LoanProduct, error) {
	if pj.ID == "" {
		return nil, fmt.Errorf("product requires an id")
	}

	var freq lending.PaymentFrequency
	if strictFrequency {
		f, err := lending.ParseFrequencyStrict(pj.Frequency)
		if err != nil {
			return nil, err
		}
		freq = f
	} else {
		freq = lending.ParseFrequency(pj.Frequency)
	}

	annualRate, err := decimal.NewFromString(pj.AnnualRate)
	if err != nil {
		return nil, fmt.Errorf("product %s: bad annual_rate %q: %w", pj.ID, pj.AnnualRate, err)
	}
	penaltyRate := decimal.Zero
	if pj.PenaltyRate != "" {
		penaltyRate, err = decimal.NewFromString(pj.PenaltyRate)
		if err != nil {
			return nil, fmt.Errorf("product %s: bad penalty_rate %q: %w", pj.ID, pj.PenaltyRate, err)
		}
	}

	loanType := lending.LoanType(pj.LoanType)
	switch loanType {
	case lending.LoanTypeFixed:
		if pj.Term < 1 {
			return nil, &lending.ConfigurationError{
				Strategy: pj.LoanType, Param: "term",
				Detail: fmt.Sprintf("product %s needs term >= 1", pj.ID),
			}
		}
	case lending.LoanTypeInterestOnlyGrace:
		if pj.GraceMonths < 1 {
			return nil, &lending.ConfigurationError{
				Strategy: pj.LoanType, Param: "grace period",
				Detail: fmt.Sprintf("product %s needs grace_months >= 1", pj.ID),
			}
		}
	default:
		return nil, &lending.ConfigurationError{
			Strategy: pj.LoanType, Param: "loan type",
			Detail: fmt.Sprintf("product %s: unknown loan type", pj.ID),
		}
	}

	return &LoanProduct{
		ID:          pj.ID,
		Name:        pj.Name,
		Type:        loanType,
		Frequency:   freq,
		AnnualRate:  annualRate,
		PenaltyRate: penaltyRate,
		Term:        pj.Term,
		GraceMonths: pj.GraceMonths,
	}, nil
}

// NewLoan builds an unsaved loan carrying the product's terms. The
// engine assigns the ID, balances and timestamps at origination.
func (p *LoanProduct) NewLoan(principal lending.Money, startDate time.Time) *lending.Loan {
	return &lending.Loan{
		Principal:   principal,
		AnnualRate:  p.AnnualRate,
		PenaltyRate: p.PenaltyRate,
		Term:        p.Term,
		Frequency:   p.Frequency,
		Type:        p.Type,
		StartDate:   startDate,
		GraceMonths: p.GraceMonths,
	}
}

// =============================================================================
// PRESETS
// =============================================================================

// StandardMonthlyJSON returns the JSON for a fixed-installment monthly
// product.
func StandardMonthlyJSON(id, name string, annualRate string, termMonths int) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"loan_type": %q,
		"frequency": "monthly",
		"annual_rate": %q,
		"penalty_rate": "0.24",
		"term": %d
	}`, id, name, lending.LoanTypeFixed, annualRate, termMonths)
}

// InterestOnlyGraceJSON returns the JSON for an interest-only product
// with a grace window followed by an amortizing tail.
func InterestOnlyGraceJSON(id, name string, annualRate string, graceMonths, termMonths int) string {
	return fmt.Sprintf(`{
		"id": %q,
		"name": %q,
		"loan_type": %q,
		"frequency": "monthly",
		"annual_rate": %q,
		"penalty_rate": "0.24",
		"grace_months": %d,
		"term": %d
	}`, id, name, lending.LoanTypeInterestOnlyGrace, annualRate, graceMonths, termMonths)
}
