/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY:
  All monetary fields travel as exact decimal strings ("1500.00"),
  never JSON numbers. Float en route would defeat the engine's exact
  arithmetic.

SEE ALSO:
  - handlers.go: Uses these types
  - product/product.go: ProductJSON type
*/
package api

import (
	"time"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/product"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateLoanRequest originates a loan from an inline product definition.
type CreateLoanRequest struct {
	Product   product.ProductJSON `json:"product"`
	Principal string              `json:"principal"`
	StartDate string              `json:"start_date"` // YYYY-MM-DD

	// StrictFrequency rejects unknown frequencies instead of
	// defaulting to monthly.
	StrictFrequency bool `json:"strict_frequency,omitempty"`
}

// SubmitPaymentRequest posts a payment against a loan.
type SubmitPaymentRequest struct {
	Amount string `json:"amount"`
}

// RefinanceRequest rolls a loan's outstanding capital into a successor.
type RefinanceRequest struct {
	TopUp string `json:"top_up,omitempty"` // optional, defaults to 0
}

// CreateDiscountRequest registers a discount definition.
type CreateDiscountRequest struct {
	Name            string  `json:"name"`
	Type            string  `json:"type"`  // "percentage" or "fixed"
	Value           string  `json:"value"` // percent (15 = 15%) or amount
	MaxAmount       *string `json:"max_amount,omitempty"`
	MinLoanAmount   *string `json:"min_loan_amount,omitempty"`
	MaxApplications *int    `json:"max_applications,omitempty"`
	ValidFrom       *string `json:"valid_from,omitempty"` // YYYY-MM-DD
	ValidTo         *string `json:"valid_to,omitempty"`
	Active          bool    `json:"active"`
}

// ApplyDiscountRequest applies a registered discount to one installment.
type ApplyDiscountRequest struct {
	DiscountID string `json:"discount_id"`
	Target     string `json:"target"` // "moratory" or "interest"
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// LoanDTO represents a loan in API responses.
type LoanDTO struct {
	ID               string  `json:"id"`
	Principal        string  `json:"principal"`
	RemainingBalance string  `json:"remaining_balance"`
	AnnualRate       string  `json:"annual_rate"`
	PenaltyRate      string  `json:"penalty_rate"`
	Term             int     `json:"term"`
	Frequency        string  `json:"frequency"`
	Type             string  `json:"type"`
	StartDate        string  `json:"start_date"`
	GraceMonths      int     `json:"grace_months,omitempty"`
	Status           string  `json:"status"`
	Version          int64   `json:"version"`
	RefinancedFrom   *string `json:"refinanced_from,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
}

// InstallmentDTO represents one schedule entry.
type InstallmentDTO struct {
	ID         string  `json:"id"`
	LoanID     string  `json:"loan_id"`
	Sequence   int     `json:"sequence"`
	DueDate    string  `json:"due_date"`
	Capital    string  `json:"capital"`
	Interest   string  `json:"interest"`
	Total      string  `json:"total"`
	PaidAmount string  `json:"paid_amount"`
	Status     string  `json:"status"`
	PaidAt     *string `json:"paid_at,omitempty"`
}

// LoanDetailDTO is a loan with its full schedule.
type LoanDetailDTO struct {
	Loan         LoanDTO          `json:"loan"`
	Installments []InstallmentDTO `json:"installments"`
}

// AllocationDTO is one append-only payment-to-installment split.
type AllocationDTO struct {
	ID            string `json:"id"`
	PaymentID     string `json:"payment_id"`
	InstallmentID string `json:"installment_id"`
	ToCapital     string `json:"to_capital"`
	ToInterest    string `json:"to_interest"`
	ToLateFee     string `json:"to_late_fee"`
	CreatedAt     string `json:"created_at"`
}

// PaymentResultDTO reports how a payment landed.
type PaymentResultDTO struct {
	PaymentID        string          `json:"payment_id"`
	Amount           string          `json:"amount"`
	Excess           string          `json:"excess"`
	RemainingBalance string          `json:"remaining_balance"`
	LoanStatus       string          `json:"loan_status"`
	FullyPaid        bool            `json:"fully_paid"`
	Allocations      []AllocationDTO `json:"allocations"`
}

// MoratoryDTO surfaces one installment's penalty-interest ledger.
type MoratoryDTO struct {
	InstallmentID string `json:"installment_id"`
	Generated     string `json:"generated"`
	Collected     string `json:"collected"`
	Discounted    string `json:"discounted"`
	Remaining     string `json:"remaining"`
	Class         string `json:"class"`
	LastAccruedAt string `json:"last_accrued_at"`
}

// DiscountDTO represents a discount definition.
type DiscountDTO struct {
	ID              string  `json:"id"`
	Name            string  `json:"name"`
	Type            string  `json:"type"`
	Value           string  `json:"value"`
	MaxAmount       *string `json:"max_amount,omitempty"`
	MinLoanAmount   *string `json:"min_loan_amount,omitempty"`
	MaxApplications *int    `json:"max_applications,omitempty"`
	ValidFrom       *string `json:"valid_from,omitempty"`
	ValidTo         *string `json:"valid_to,omitempty"`
	Active          bool    `json:"active"`
}

// DiscountEffectDTO reports an applied discount.
type DiscountEffectDTO struct {
	DiscountID    string `json:"discount_id"`
	InstallmentID string `json:"installment_id"`
	Target        string `json:"target"`
	Base          string `json:"base"`
	Amount        string `json:"amount"`
	AppliedAt     string `json:"applied_at"`
}

// RefinanceResultDTO reports a completed refinance.
type RefinanceResultDTO struct {
	OldLoan        LoanDTO          `json:"old_loan"`
	NewLoan        LoanDTO          `json:"new_loan"`
	CarriedBalance string           `json:"carried_balance"`
	Installments   []InstallmentDTO `json:"installments"`
}

// OverdueRunDTO reports one overdue-detection pass.
type OverdueRunDTO struct {
	LoansTouched int    `json:"loans_touched"`
	RanAt        string `json:"ran_at"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MAPPERS
// =============================================================================

func toLoanDTO(l *lending.Loan) LoanDTO {
	dto := LoanDTO{
		ID:               string(l.ID),
		Principal:        l.Principal.String(),
		RemainingBalance: l.RemainingBalance.String(),
		AnnualRate:       l.AnnualRate.String(),
		PenaltyRate:      l.PenaltyRate.String(),
		Term:             l.Term,
		Frequency:        string(l.Frequency),
		Type:             string(l.Type),
		StartDate:        l.StartDate.Format("2006-01-02"),
		GraceMonths:      l.GraceMonths,
		Status:           string(l.Status),
		Version:          l.Version,
		CreatedAt:        l.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        l.UpdatedAt.Format(time.RFC3339),
	}
	if l.RefinancedFrom != "" {
		s := string(l.RefinancedFrom)
		dto.RefinancedFrom = &s
	}
	return dto
}

func toInstallmentDTO(in *lending.Installment) InstallmentDTO {
	dto := InstallmentDTO{
		ID:         string(in.ID),
		LoanID:     string(in.LoanID),
		Sequence:   in.Sequence,
		DueDate:    in.DueDate.Format("2006-01-02"),
		Capital:    in.Capital.String(),
		Interest:   in.Interest.String(),
		Total:      in.Total.String(),
		PaidAmount: in.PaidAmount.String(),
		Status:     string(in.Status),
	}
	if in.PaidAt != nil {
		s := in.PaidAt.Format(time.RFC3339)
		dto.PaidAt = &s
	}
	return dto
}

func toInstallmentDTOs(ins []*lending.Installment) []InstallmentDTO {
	dtos := make([]InstallmentDTO, 0, len(ins))
	for _, in := range ins {
		dtos = append(dtos, toInstallmentDTO(in))
	}
	return dtos
}

func toAllocationDTO(a *lending.Allocation) AllocationDTO {
	return AllocationDTO{
		ID:            string(a.ID),
		PaymentID:     string(a.PaymentID),
		InstallmentID: string(a.InstallmentID),
		ToCapital:     a.ToCapital.String(),
		ToInterest:    a.ToInterest.String(),
		ToLateFee:     a.ToLateFee.String(),
		CreatedAt:     a.CreatedAt.Format(time.RFC3339),
	}
}

func toMoratoryDTO(r *lending.MoratoryInterestRecord) MoratoryDTO {
	return MoratoryDTO{
		InstallmentID: string(r.InstallmentID),
		Generated:     r.Generated.String(),
		Collected:     r.Collected.String(),
		Discounted:    r.Discounted.String(),
		Remaining:     r.Remaining().String(),
		Class:         string(r.Classify()),
		LastAccruedAt: r.LastAccruedAt.Format("2006-01-02"),
	}
}

func toDiscountDTO(d *lending.Discount) DiscountDTO {
	dto := DiscountDTO{
		ID:              string(d.ID),
		Name:            d.Name,
		Type:            string(d.Type),
		Value:           d.Value.String(),
		MaxApplications: d.MaxApplications,
		Active:          d.Active,
	}
	if d.MaxAmount != nil {
		s := d.MaxAmount.String()
		dto.MaxAmount = &s
	}
	if d.MinLoanAmount != nil {
		s := d.MinLoanAmount.String()
		dto.MinLoanAmount = &s
	}
	if d.ValidFrom != nil {
		s := d.ValidFrom.Format("2006-01-02")
		dto.ValidFrom = &s
	}
	if d.ValidTo != nil {
		s := d.ValidTo.Format("2006-01-02")
		dto.ValidTo = &s
	}
	return dto
}
