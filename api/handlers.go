/*
handlers.go - HTTP API handlers for the lending engine

PURPOSE:
  Exposes the lending engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Loans:
    POST   /api/loans                    Originate a loan from a product
    GET    /api/loans/{id}               Loan with full schedule
    GET    /api/loans/{id}/installments  Schedule only
    GET    /api/loans/{id}/allocations   Allocation ledger
    GET    /api/loans/{id}/moratory      Penalty-interest records
    POST   /api/loans/{id}/payments      Submit a payment
    POST   /api/loans/{id}/refinance     Roll into a successor loan

  Discounts:
    POST   /api/discounts                Register a discount
    GET    /api/discounts/{id}           Get a discount
    POST   /api/installments/{id}/discounts  Apply to an installment

  Admin:
    POST   /api/admin/overdue            Run the overdue-detection pass

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input, ineligible discounts
  - 404: Loan/installment/discount not found
  - 409: Concurrent modification (client should retry)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - lending/engine.go: The operations these handlers delegate to
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/warp/lending-engine/lending"
	"github.com/warp/lending-engine/metrics"
	"github.com/warp/lending-engine/product"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *lending.Engine
	Store   lending.TxStore
	Log     *logrus.Logger
	Metrics *metrics.Collector
}

// NewHandler creates a new handler rooted on the given engine and store.
func NewHandler(engine *lending.Engine, store lending.TxStore, log *logrus.Logger, m *metrics.Collector) *Handler {
	return &Handler{Engine: engine, Store: store, Log: log, Metrics: m}
}

// =============================================================================
// LOAN ENDPOINTS
// =============================================================================

// CreateLoan originates a loan from an inline product definition.
// POST /api/loans
func (h *Handler) CreateLoan(w http.ResponseWriter, r *http.Request) {
	var req CreateLoanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	prod, err := product.FromJSON(req.Product, req.StrictFrequency)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid product configuration", err)
		return
	}

	principal, err := lending.ParseMoney(req.Principal)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid principal", err)
		return
	}

	startDate, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}

	loan := prod.NewLoan(principal, startDate)
	installments, err := h.Engine.Originate(r.Context(), loan)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"loan_id":      loan.ID,
		"product":      prod.ID,
		"principal":    principal.String(),
		"installments": len(installments),
	}).Info("loan originated")

	writeJSON(w, http.StatusCreated, LoanDetailDTO{
		Loan:         toLoanDTO(loan),
		Installments: toInstallmentDTOs(installments),
	})
}

// GetLoan returns a loan with its full schedule.
// GET /api/loans/{id}
func (h *Handler) GetLoan(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	loan, installments, err := h.Store.LoanWithInstallments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, LoanDetailDTO{
		Loan:         toLoanDTO(loan),
		Installments: toInstallmentDTOs(installments),
	})
}

// GetInstallments returns a loan's schedule ordered by due date.
// GET /api/loans/{id}/installments
func (h *Handler) GetInstallments(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	_, installments, err := h.Store.LoanWithInstallments(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, toInstallmentDTOs(installments))
}

// GetAllocations returns the append-only allocation ledger for a loan.
// GET /api/loans/{id}/allocations
func (h *Handler) GetAllocations(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	if _, err := h.Store.Loan(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	allocations, err := h.Store.AllocationsForLoan(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load allocations", err)
		return
	}

	dtos := make([]AllocationDTO, 0, len(allocations))
	for _, a := range allocations {
		dtos = append(dtos, toAllocationDTO(a))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMoratory returns the penalty-interest records for a loan.
// GET /api/loans/{id}/moratory
func (h *Handler) GetMoratory(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	if _, err := h.Store.Loan(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	records, err := h.Store.MoratoryRecords(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load moratory records", err)
		return
	}

	dtos := make([]MoratoryDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toMoratoryDTO(rec))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitPayment runs a payment through the allocation waterfall.
// POST /api/loans/{id}/payments
func (h *Handler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	var req SubmitPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := lending.ParseMoney(req.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid amount", err)
		return
	}

	start := time.Now()
	result, err := h.Engine.AllocatePayment(r.Context(), id, amount)
	if err != nil {
		h.Metrics.PaymentFailed()
		writeDomainError(w, err)
		return
	}
	h.Metrics.PaymentProcessed(time.Since(start))

	h.Log.WithFields(logrus.Fields{
		"loan_id":    id,
		"payment_id": result.Payment.ID,
		"amount":     amount.String(),
		"excess":     result.Excess.String(),
		"fully_paid": result.IsFullyPaid,
	}).Info("payment allocated")

	dtos := make([]AllocationDTO, 0, len(result.Allocations))
	for _, a := range result.Allocations {
		dtos = append(dtos, toAllocationDTO(a))
	}

	status := lending.LoanUpToDate
	if loan, lerr := h.Store.Loan(r.Context(), id); lerr == nil {
		status = loan.Status
	}

	writeJSON(w, http.StatusCreated, PaymentResultDTO{
		PaymentID:        string(result.Payment.ID),
		Amount:           result.Payment.Amount.String(),
		Excess:           result.Excess.String(),
		RemainingBalance: result.NewRemainingBalance.String(),
		LoanStatus:       string(status),
		FullyPaid:        result.IsFullyPaid,
		Allocations:      dtos,
	})
}

// Refinance settles a loan by rolling its outstanding capital into a
// new one, optionally with fresh disbursement on top.
// POST /api/loans/{id}/refinance
func (h *Handler) Refinance(w http.ResponseWriter, r *http.Request) {
	id := lending.LoanID(chi.URLParam(r, "id"))

	var req RefinanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	topUp := lending.ZeroMoney()
	if req.TopUp != "" {
		var err error
		topUp, err = lending.ParseMoney(req.TopUp)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid top_up", err)
			return
		}
	}

	result, err := h.Engine.Refinance(r.Context(), id, topUp)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.Metrics.RefinanceCompleted()

	h.Log.WithFields(logrus.Fields{
		"old_loan_id": result.OldLoan.ID,
		"new_loan_id": result.NewLoan.ID,
		"carried":     result.CarriedBalance.String(),
		"top_up":      topUp.String(),
	}).Info("loan refinanced")

	writeJSON(w, http.StatusCreated, RefinanceResultDTO{
		OldLoan:        toLoanDTO(result.OldLoan),
		NewLoan:        toLoanDTO(result.NewLoan),
		CarriedBalance: result.CarriedBalance.String(),
		Installments:   toInstallmentDTOs(result.Installments),
	})
}

// =============================================================================
// DISCOUNT ENDPOINTS
// =============================================================================

// CreateDiscount registers a discount definition.
// POST /api/discounts
func (h *Handler) CreateDiscount(w http.ResponseWriter, r *http.Request) {
	var req CreateDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	discount, err := discountFromRequest(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid discount definition", err)
		return
	}

	if err := h.Store.SaveDiscount(r.Context(), discount); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save discount", err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"discount_id": discount.ID,
		"type":        discount.Type,
	}).Info("discount registered")

	writeJSON(w, http.StatusCreated, toDiscountDTO(discount))
}

// GetDiscount returns a discount definition.
// GET /api/discounts/{id}
func (h *Handler) GetDiscount(w http.ResponseWriter, r *http.Request) {
	id := lending.DiscountID(chi.URLParam(r, "id"))

	discount, err := h.Store.Discount(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDiscountDTO(discount))
}

// ApplyDiscount applies a registered discount to one installment's
// interest or moratory balance.
// POST /api/installments/{id}/discounts
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	installmentID := lending.InstallmentID(chi.URLParam(r, "id"))

	var req ApplyDiscountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var target lending.DiscountTarget
	switch req.Target {
	case string(lending.TargetMoratory):
		target = lending.TargetMoratory
	case string(lending.TargetInterest):
		target = lending.TargetInterest
	default:
		writeError(w, http.StatusBadRequest, "Invalid target (use \"moratory\" or \"interest\")", nil)
		return
	}

	effect, err := h.Engine.ApplyDiscount(r.Context(), installmentID, lending.DiscountID(req.DiscountID), target)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	h.Log.WithFields(logrus.Fields{
		"discount_id":    effect.DiscountID,
		"installment_id": effect.InstallmentID,
		"target":         effect.Target,
		"amount":         effect.Amount.String(),
	}).Info("discount applied")

	writeJSON(w, http.StatusCreated, DiscountEffectDTO{
		DiscountID:    string(effect.DiscountID),
		InstallmentID: string(effect.InstallmentID),
		Target:        string(effect.Target),
		Base:          effect.Base.String(),
		Amount:        effect.Amount.String(),
		AppliedAt:     effect.AppliedAt.Format(time.RFC3339),
	})
}

// =============================================================================
// ADMIN ENDPOINTS
// =============================================================================

// TriggerOverdue runs the overdue-detection pass across all active
// loans: flips missed installments, accrues moratory interest, and
// marks loans overdue.
// POST /api/admin/overdue
func (h *Handler) TriggerOverdue(w http.ResponseWriter, r *http.Request) {
	touched, err := h.Engine.RunOverdueDetection(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Overdue detection failed", err)
		return
	}
	h.Metrics.SetOverdueLoans(touched)

	h.Log.WithField("loans_touched", touched).Info("overdue detection pass complete")

	writeJSON(w, http.StatusOK, OverdueRunDTO{
		LoansTouched: touched,
		RanAt:        time.Now().UTC().Format(time.RFC3339),
	})
}

// Health reports liveness.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

func discountFromRequest(req CreateDiscountRequest) (*lending.Discount, error) {
	value, err := decimal.NewFromString(req.Value)
	if err != nil {
		return nil, err
	}

	d := &lending.Discount{
		ID:              lending.NewDiscountID(),
		Name:            req.Name,
		Value:           value,
		MaxApplications: req.MaxApplications,
		Active:          req.Active,
	}

	switch req.Type {
	case string(lending.DiscountPercentage):
		d.Type = lending.DiscountPercentage
	case string(lending.DiscountFixedAmount):
		d.Type = lending.DiscountFixedAmount
	default:
		return nil, &lending.ConfigurationError{Strategy: "discount", Param: "type", Detail: "unknown discount type " + req.Type}
	}

	if req.MaxAmount != nil {
		m, err := lending.ParseMoney(*req.MaxAmount)
		if err != nil {
			return nil, err
		}
		d.MaxAmount = &m
	}
	if req.MinLoanAmount != nil {
		m, err := lending.ParseMoney(*req.MinLoanAmount)
		if err != nil {
			return nil, err
		}
		d.MinLoanAmount = &m
	}
	if req.ValidFrom != nil {
		t, err := time.Parse("2006-01-02", *req.ValidFrom)
		if err != nil {
			return nil, err
		}
		d.ValidFrom = &t
	}
	if req.ValidTo != nil {
		t, err := time.Parse("2006-01-02", *req.ValidTo)
		if err != nil {
			return nil, err
		}
		d.ValidTo = &t
	}
	return d, nil
}

// writeDomainError maps domain error classes onto HTTP status codes.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case lending.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case lending.IsRetryable(err):
		writeError(w, http.StatusConflict, "Concurrent modification, retry the request", err)
	case lending.IsClientError(err) || errors.Is(err, lending.ErrConfiguration):
		writeError(w, http.StatusBadRequest, "Request rejected", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
