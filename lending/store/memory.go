// Package store provides lending.Store implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/lending-engine/lending"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	loans        map[lending.LoanID]*lending.Loan
	installments map[lending.LoanID][]*lending.Installment
	payments     map[lending.PaymentID]*lending.Payment
	allocations  map[lending.LoanID][]*lending.Allocation
	moratory     map[lending.InstallmentID]*lending.MoratoryInterestRecord
	discounts    map[lending.DiscountID]*lending.Discount
	applications map[applicationKey][]*lending.DiscountEffect
	instToLoan   map[lending.InstallmentID]lending.LoanID
}

type applicationKey struct {
	Discount    lending.DiscountID
	Installment lending.InstallmentID
}

func NewMemory() *Memory {
	return &Memory{
		loans:        make(map[lending.LoanID]*lending.Loan),
		installments: make(map[lending.LoanID][]*lending.Installment),
		payments:     make(map[lending.PaymentID]*lending.Payment),
		allocations:  make(map[lending.LoanID][]*lending.Allocation),
		moratory:     make(map[lending.InstallmentID]*lending.MoratoryInterestRecord),
		discounts:    make(map[lending.DiscountID]*lending.Discount),
		applications: make(map[applicationKey][]*lending.DiscountEffect),
		instToLoan:   make(map[lending.InstallmentID]lending.LoanID),
	}
}

func (m *Memory) SaveLoan(_ context.Context, loan *lending.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *loan
	m.loans[loan.ID] = &cp
	return nil
}

func (m *Memory) Loan(_ context.Context, id lending.LoanID) (*lending.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[id]
	if !ok {
		return nil, lending.ErrLoanNotFound
	}
	cp := *loan
	return &cp, nil
}

func (m *Memory) LoanWithInstallments(ctx context.Context, id lending.LoanID) (*lending.Loan, []*lending.Installment, error) {
	loan, err := m.Loan(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	insts := copyInstallments(m.installments[id])
	sort.Slice(insts, func(i, j int) bool { return insts[i].Sequence < insts[j].Sequence })
	return loan, insts, nil
}

func (m *Memory) PendingInstallments(_ context.Context, id lending.LoanID) ([]*lending.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var pending []*lending.Installment
	for _, inst := range m.installments[id] {
		if !inst.IsPaid() {
			cp := *inst
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].DueDate.Equal(pending[j].DueDate) {
			return pending[i].Sequence < pending[j].Sequence
		}
		return pending[i].DueDate.Before(pending[j].DueDate)
	})
	return pending, nil
}

func (m *Memory) UpdateLoan(_ context.Context, loan *lending.Loan, expectedVersion int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.loans[loan.ID]
	if !ok {
		return lending.ErrLoanNotFound
	}
	if current.Version != expectedVersion {
		return &lending.ConflictError{LoanID: loan.ID, ExpectedVersion: expectedVersion}
	}
	cp := *loan
	cp.Version = expectedVersion + 1
	m.loans[loan.ID] = &cp
	loan.Version = cp.Version
	return nil
}

func (m *Memory) Installment(_ context.Context, id lending.InstallmentID) (*lending.Installment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loanID, ok := m.instToLoan[id]
	if !ok {
		return nil, lending.ErrInstallmentNotFound
	}
	for _, inst := range m.installments[loanID] {
		if inst.ID == id {
			cp := *inst
			return &cp, nil
		}
	}
	return nil, lending.ErrInstallmentNotFound
}

func (m *Memory) SaveInstallment(_ context.Context, inst *lending.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveInstallmentLocked(inst)
}

func (m *Memory) SaveInstallments(_ context.Context, insts []*lending.Installment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inst := range insts {
		if err := m.saveInstallmentLocked(inst); err != nil {
			return err
		}
	}
	return nil
}

func (m *Memory) saveInstallmentLocked(inst *lending.Installment) error {
	cp := *inst
	existing := m.installments[inst.LoanID]
	for i, cur := range existing {
		if cur.ID == inst.ID {
			existing[i] = &cp
			return nil
		}
	}
	m.installments[inst.LoanID] = append(existing, &cp)
	m.instToLoan[inst.ID] = inst.LoanID
	return nil
}

func (m *Memory) SavePayment(_ context.Context, p *lending.Payment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *p
	m.payments[p.ID] = &cp
	return nil
}

func (m *Memory) SaveAllocation(_ context.Context, a *lending.Allocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	loanID, ok := m.instToLoan[a.InstallmentID]
	if !ok {
		return lending.ErrInstallmentNotFound
	}
	cp := *a
	m.allocations[loanID] = append(m.allocations[loanID], &cp)
	return nil
}

func (m *Memory) AllocationsForLoan(_ context.Context, id lending.LoanID) ([]*lending.Allocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*lending.Allocation, 0, len(m.allocations[id]))
	for _, a := range m.allocations[id] {
		cp := *a
		result = append(result, &cp)
	}
	return result, nil
}

func (m *Memory) SaveMoratoryRecord(_ context.Context, rec *lending.MoratoryInterestRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.moratory[rec.InstallmentID] = &cp
	return nil
}

func (m *Memory) MoratoryRecords(_ context.Context, id lending.LoanID) (map[lending.InstallmentID]*lending.MoratoryInterestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make(map[lending.InstallmentID]*lending.MoratoryInterestRecord)
	for instID, rec := range m.moratory {
		if rec.LoanID == id {
			cp := *rec
			result[instID] = &cp
		}
	}
	return result, nil
}

func (m *Memory) MoratoryRecordFor(_ context.Context, id lending.InstallmentID) (*lending.MoratoryInterestRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.moratory[id]
	if !ok {
		return nil, nil
	}
	cp := *rec
	return &cp, nil
}

func (m *Memory) SaveDiscount(_ context.Context, d *lending.Discount) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.discounts[d.ID] = &cp
	return nil
}

func (m *Memory) Discount(_ context.Context, id lending.DiscountID) (*lending.Discount, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.discounts[id]
	if !ok {
		return nil, lending.ErrDiscountNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *Memory) DiscountApplications(_ context.Context, id lending.DiscountID, target lending.InstallmentID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.applications[applicationKey{Discount: id, Installment: target}]), nil
}

func (m *Memory) RecordDiscountApplication(_ context.Context, effect *lending.DiscountEffect) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := applicationKey{Discount: effect.DiscountID, Installment: effect.InstallmentID}
	cp := *effect
	m.applications[k] = append(m.applications[k], &cp)
	return nil
}

func (m *Memory) ActiveLoans(_ context.Context) ([]*lending.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*lending.Loan
	for _, loan := range m.loans {
		if !loan.Status.Terminal() {
			cp := *loan
			result = append(result, &cp)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].ID < result[j].ID })
	return result, nil
}

func copyInstallments(insts []*lending.Installment) []*lending.Installment {
	result := make([]*lending.Installment, 0, len(insts))
	for _, inst := range insts {
		cp := *inst
		result = append(result, &cp)
	}
	return result
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with transaction support, simulated with a
// snapshot + rollback on error.
type TxMemory struct {
	*Memory
	txMu sync.Mutex
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

// WithTx executes fn; an error restores the pre-transaction snapshot.
func (tm *TxMemory) WithTx(ctx context.Context, fn func(lending.Store) error) error {
	tm.txMu.Lock()
	defer tm.txMu.Unlock()

	snapshot := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snapshot)
		return err
	}
	return nil
}

type memorySnapshot struct {
	loans        map[lending.LoanID]*lending.Loan
	installments map[lending.LoanID][]*lending.Installment
	payments     map[lending.PaymentID]*lending.Payment
	allocations  map[lending.LoanID][]*lending.Allocation
	moratory     map[lending.InstallmentID]*lending.MoratoryInterestRecord
	discounts    map[lending.DiscountID]*lending.Discount
	applications map[applicationKey][]*lending.DiscountEffect
	instToLoan   map[lending.InstallmentID]lending.LoanID
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	s := memorySnapshot{
		loans:        make(map[lending.LoanID]*lending.Loan, len(tm.loans)),
		installments: make(map[lending.LoanID][]*lending.Installment, len(tm.installments)),
		payments:     make(map[lending.PaymentID]*lending.Payment, len(tm.payments)),
		allocations:  make(map[lending.LoanID][]*lending.Allocation, len(tm.allocations)),
		moratory:     make(map[lending.InstallmentID]*lending.MoratoryInterestRecord, len(tm.moratory)),
		discounts:    make(map[lending.DiscountID]*lending.Discount, len(tm.discounts)),
		applications: make(map[applicationKey][]*lending.DiscountEffect, len(tm.applications)),
		instToLoan:   make(map[lending.InstallmentID]lending.LoanID, len(tm.instToLoan)),
	}
	for k, v := range tm.loans {
		cp := *v
		s.loans[k] = &cp
	}
	for k, v := range tm.installments {
		s.installments[k] = copyInstallments(v)
	}
	for k, v := range tm.payments {
		cp := *v
		s.payments[k] = &cp
	}
	for k, v := range tm.allocations {
		cps := make([]*lending.Allocation, 0, len(v))
		for _, a := range v {
			cp := *a
			cps = append(cps, &cp)
		}
		s.allocations[k] = cps
	}
	for k, v := range tm.moratory {
		cp := *v
		s.moratory[k] = &cp
	}
	for k, v := range tm.discounts {
		cp := *v
		s.discounts[k] = &cp
	}
	for k, v := range tm.applications {
		cps := make([]*lending.DiscountEffect, 0, len(v))
		for _, e := range v {
			cp := *e
			cps = append(cps, &cp)
		}
		s.applications[k] = cps
	}
	for k, v := range tm.instToLoan {
		s.instToLoan[k] = v
	}
	return s
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.loans = s.loans
	tm.installments = s.installments
	tm.payments = s.payments
	tm.allocations = s.allocations
	tm.moratory = s.moratory
	tm.discounts = s.discounts
	tm.applications = s.applications
	tm.instToLoan = s.instToLoan
}
