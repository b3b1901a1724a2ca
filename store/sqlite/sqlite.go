/*
Package sqlite provides a SQLite-backed implementation of lending.Store.

PURPOSE:
  Durable persistence for loans, installments, payments, allocations,
  moratory records and discounts. In production the same patterns apply
  to PostgreSQL - only minor SQL dialect differences.

ALLOCATIONS ARE APPEND-ONLY:
  There is no UPDATE or DELETE on the allocations table. An allocation,
  once written, is the permanent record of how a payment was split.

CONCURRENCY:
  Loans carry a version column. UpdateLoan executes
  UPDATE ... WHERE id = ? AND version = ?; zero rows affected means
  another transaction raced us, surfaced as ErrConcurrencyConflict so
  the caller can retry from a fresh read. Combined with WithTx this
  serializes concurrent payments against the same loan.

WAL MODE:
  The database is opened with WAL (Write-Ahead Logging): readers don't
  block, a single writer at a time, better crash recovery.

MONEY ON THE WIRE:
  All monetary columns are TEXT holding exact-decimal strings. Binary
  floats never touch storage.

USAGE:
  store, err := sqlite.New("./data/lending.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  engine := lending.NewEngine(store)

SEE ALSO:
  - lending/store.go: interface definitions
  - lending/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/lending-engine/lending"
)

// Store implements lending.TxStore using SQLite.
type Store struct {
	db *sql.DB
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single writer avoids SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS loans (
		id TEXT PRIMARY KEY,
		principal TEXT NOT NULL,
		remaining_balance TEXT NOT NULL,
		annual_rate TEXT NOT NULL,
		penalty_rate TEXT NOT NULL,
		term INTEGER NOT NULL,
		frequency TEXT NOT NULL,
		loan_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		grace_months INTEGER NOT NULL,
		status TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		refinanced_from TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS installments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		sequence INTEGER NOT NULL,
		due_date TEXT NOT NULL,
		capital TEXT NOT NULL,
		interest TEXT NOT NULL,
		total TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		status TEXT NOT NULL,
		paid_at TEXT,
		UNIQUE(loan_id, sequence)
	);
	CREATE INDEX IF NOT EXISTS idx_installments_loan_due
		ON installments(loan_id, due_date, sequence);

	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		loan_id TEXT NOT NULL REFERENCES loans(id),
		amount TEXT NOT NULL,
		excess TEXT NOT NULL,
		received_at TEXT NOT NULL
	);

	-- Append-only: no UPDATE or DELETE ever touches this table.
	CREATE TABLE IF NOT EXISTS allocations (
		id TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		installment_id TEXT NOT NULL REFERENCES installments(id),
		to_capital TEXT NOT NULL,
		to_interest TEXT NOT NULL,
		to_late_fee TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_allocations_installment
		ON allocations(installment_id);

	CREATE TABLE IF NOT EXISTS moratory_records (
		id TEXT PRIMARY KEY,
		installment_id TEXT NOT NULL UNIQUE REFERENCES installments(id),
		loan_id TEXT NOT NULL REFERENCES loans(id),
		generated TEXT NOT NULL,
		collected TEXT NOT NULL,
		discounted TEXT NOT NULL,
		last_accrued_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_moratory_loan ON moratory_records(loan_id);

	CREATE TABLE IF NOT EXISTS discounts (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		discount_type TEXT NOT NULL,
		value TEXT NOT NULL,
		max_amount TEXT,
		min_loan_amount TEXT,
		max_applications INTEGER,
		valid_from TEXT,
		valid_to TEXT,
		active INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS discount_applications (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		discount_id TEXT NOT NULL REFERENCES discounts(id),
		installment_id TEXT NOT NULL REFERENCES installments(id),
		target TEXT NOT NULL,
		base TEXT NOT NULL,
		amount TEXT NOT NULL,
		applied_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_discount_applications
		ON discount_applications(discount_id, installment_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// view binds the Store methods to a specific querier (the live db or
// an open transaction).
type view struct {
	q querier
}

// WithTx executes fn inside a database transaction. An error from fn
// rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(lending.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(&view{q: tx}); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Direct (non-transactional) access goes through a db-bound view so
// the same scan/exec code serves both paths.
func (s *Store) v() *view { return &view{q: s.db} }

func (s *Store) SaveLoan(ctx context.Context, l *lending.Loan) error { return s.v().SaveLoan(ctx, l) }
func (s *Store) Loan(ctx context.Context, id lending.LoanID) (*lending.Loan, error) {
	return s.v().Loan(ctx, id)
}
func (s *Store) LoanWithInstallments(ctx context.Context, id lending.LoanID) (*lending.Loan, []*lending.Installment, error) {
	return s.v().LoanWithInstallments(ctx, id)
}
func (s *Store) PendingInstallments(ctx context.Context, id lending.LoanID) ([]*lending.Installment, error) {
	return s.v().PendingInstallments(ctx, id)
}
func (s *Store) UpdateLoan(ctx context.Context, l *lending.Loan, v int64) error {
	return s.v().UpdateLoan(ctx, l, v)
}
func (s *Store) Installment(ctx context.Context, id lending.InstallmentID) (*lending.Installment, error) {
	return s.v().Installment(ctx, id)
}
func (s *Store) SaveInstallment(ctx context.Context, i *lending.Installment) error {
	return s.v().SaveInstallment(ctx, i)
}
func (s *Store) SaveInstallments(ctx context.Context, is []*lending.Installment) error {
	return s.v().SaveInstallments(ctx, is)
}
func (s *Store) SavePayment(ctx context.Context, p *lending.Payment) error {
	return s.v().SavePayment(ctx, p)
}
func (s *Store) SaveAllocation(ctx context.Context, a *lending.Allocation) error {
	return s.v().SaveAllocation(ctx, a)
}
func (s *Store) AllocationsForLoan(ctx context.Context, id lending.LoanID) ([]*lending.Allocation, error) {
	return s.v().AllocationsForLoan(ctx, id)
}
func (s *Store) SaveMoratoryRecord(ctx context.Context, r *lending.MoratoryInterestRecord) error {
	return s.v().SaveMoratoryRecord(ctx, r)
}
func (s *Store) MoratoryRecords(ctx context.Context, id lending.LoanID) (map[lending.InstallmentID]*lending.MoratoryInterestRecord, error) {
	return s.v().MoratoryRecords(ctx, id)
}
func (s *Store) MoratoryRecordFor(ctx context.Context, id lending.InstallmentID) (*lending.MoratoryInterestRecord, error) {
	return s.v().MoratoryRecordFor(ctx, id)
}
func (s *Store) SaveDiscount(ctx context.Context, d *lending.Discount) error {
	return s.v().SaveDiscount(ctx, d)
}
func (s *Store) Discount(ctx context.Context, id lending.DiscountID) (*lending.Discount, error) {
	return s.v().Discount(ctx, id)
}
func (s *Store) DiscountApplications(ctx context.Context, id lending.DiscountID, t lending.InstallmentID) (int, error) {
	return s.v().DiscountApplications(ctx, id, t)
}
func (s *Store) RecordDiscountApplication(ctx context.Context, e *lending.DiscountEffect) error {
	return s.v().RecordDiscountApplication(ctx, e)
}
func (s *Store) ActiveLoans(ctx context.Context) ([]*lending.Loan, error) {
	return s.v().ActiveLoans(ctx)
}

// =============================================================================
// LOANS
// =============================================================================

func (v *view) SaveLoan(ctx context.Context, l *lending.Loan) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO loans (id, principal, remaining_balance, annual_rate, penalty_rate,
			term, frequency, loan_type, start_date, grace_months, status, version,
			refinanced_from, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(l.ID), l.Principal.String(), l.RemainingBalance.String(),
		l.AnnualRate.String(), l.PenaltyRate.String(),
		l.Term, string(l.Frequency), string(l.Type), fmtTime(l.StartDate),
		l.GraceMonths, string(l.Status), l.Version, string(l.RefinancedFrom),
		fmtTime(l.CreatedAt), fmtTime(l.UpdatedAt))
	return err
}

func (v *view) Loan(ctx context.Context, id lending.LoanID) (*lending.Loan, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT id, principal, remaining_balance, annual_rate, penalty_rate,
			term, frequency, loan_type, start_date, grace_months, status, version,
			refinanced_from, created_at, updated_at
		FROM loans WHERE id = ?`, string(id))
	return scanLoan(row)
}

func scanLoan(row *sql.Row) (*lending.Loan, error) {
	var l lending.Loan
	var principal, balance, annualRate, penaltyRate string
	var frequency, loanType, startDate, status, refinancedFrom, createdAt, updatedAt string

	err := row.Scan(&l.ID, &principal, &balance, &annualRate, &penaltyRate,
		&l.Term, &frequency, &loanType, &startDate, &l.GraceMonths, &status,
		&l.Version, &refinancedFrom, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lending.ErrLoanNotFound
	}
	if err != nil {
		return nil, err
	}

	l.Principal = lending.MustParseMoney(principal)
	l.RemainingBalance = lending.MustParseMoney(balance)
	l.AnnualRate = decimal.RequireFromString(annualRate)
	l.PenaltyRate = decimal.RequireFromString(penaltyRate)
	l.Frequency = lending.PaymentFrequency(frequency)
	l.Type = lending.LoanType(loanType)
	l.StartDate = parseTime(startDate)
	l.Status = lending.LoanStatus(status)
	l.RefinancedFrom = lending.LoanID(refinancedFrom)
	l.CreatedAt = parseTime(createdAt)
	l.UpdatedAt = parseTime(updatedAt)
	return &l, nil
}

func (v *view) UpdateLoan(ctx context.Context, l *lending.Loan, expectedVersion int64) error {
	res, err := v.q.ExecContext(ctx, `
		UPDATE loans SET remaining_balance = ?, status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		l.RemainingBalance.String(), string(l.Status), fmtTime(l.UpdatedAt),
		string(l.ID), expectedVersion)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return &lending.ConflictError{LoanID: l.ID, ExpectedVersion: expectedVersion}
	}
	l.Version = expectedVersion + 1
	return nil
}

func (v *view) ActiveLoans(ctx context.Context) ([]*lending.Loan, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id FROM loans WHERE status NOT IN (?, ?, ?) ORDER BY id`,
		string(lending.LoanPaid), string(lending.LoanRefinanced), string(lending.LoanCancelled))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []lending.LoanID
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, lending.LoanID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	loans := make([]*lending.Loan, 0, len(ids))
	for _, id := range ids {
		loan, err := v.Loan(ctx, id)
		if err != nil {
			return nil, err
		}
		loans = append(loans, loan)
	}
	return loans, nil
}

// =============================================================================
// INSTALLMENTS
// =============================================================================

const installmentColumns = `id, loan_id, sequence, due_date, capital, interest, total, paid_amount, status, paid_at`

func (v *view) SaveInstallment(ctx context.Context, i *lending.Installment) error {
	var paidAt any
	if i.PaidAt != nil {
		paidAt = fmtTime(*i.PaidAt)
	}
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO installments (`+installmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			interest = excluded.interest,
			total = excluded.total,
			paid_amount = excluded.paid_amount,
			status = excluded.status,
			paid_at = excluded.paid_at`,
		string(i.ID), string(i.LoanID), i.Sequence, fmtTime(i.DueDate),
		i.Capital.String(), i.Interest.String(), i.Total.String(),
		i.PaidAmount.String(), string(i.Status), paidAt)
	return err
}

func (v *view) SaveInstallments(ctx context.Context, is []*lending.Installment) error {
	for _, i := range is {
		if err := v.SaveInstallment(ctx, i); err != nil {
			return err
		}
	}
	return nil
}

func (v *view) Installment(ctx context.Context, id lending.InstallmentID) (*lending.Installment, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT `+installmentColumns+` FROM installments WHERE id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	insts, err := scanInstallments(rows)
	if err != nil {
		return nil, err
	}
	if len(insts) == 0 {
		return nil, lending.ErrInstallmentNotFound
	}
	return insts[0], nil
}

func (v *view) LoanWithInstallments(ctx context.Context, id lending.LoanID) (*lending.Loan, []*lending.Installment, error) {
	loan, err := v.Loan(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rows, err := v.q.QueryContext(ctx, `
		SELECT `+installmentColumns+` FROM installments
		WHERE loan_id = ? ORDER BY sequence`, string(id))
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()
	insts, err := scanInstallments(rows)
	if err != nil {
		return nil, nil, err
	}
	return loan, insts, nil
}

func (v *view) PendingInstallments(ctx context.Context, id lending.LoanID) ([]*lending.Installment, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT `+installmentColumns+` FROM installments
		WHERE loan_id = ? AND status != ?
		ORDER BY due_date, sequence`, string(id), string(lending.InstallmentPaid))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanInstallments(rows)
}

func scanInstallments(rows *sql.Rows) ([]*lending.Installment, error) {
	var result []*lending.Installment
	for rows.Next() {
		var i lending.Installment
		var dueDate, capital, interest, total, paidAmount, status string
		var paidAt sql.NullString

		if err := rows.Scan(&i.ID, &i.LoanID, &i.Sequence, &dueDate,
			&capital, &interest, &total, &paidAmount, &status, &paidAt); err != nil {
			return nil, err
		}
		i.DueDate = parseTime(dueDate)
		i.Capital = lending.MustParseMoney(capital)
		i.Interest = lending.MustParseMoney(interest)
		i.Total = lending.MustParseMoney(total)
		i.PaidAmount = lending.MustParseMoney(paidAmount)
		i.Status = lending.InstallmentStatus(status)
		if paidAt.Valid {
			t := parseTime(paidAt.String)
			i.PaidAt = &t
		}
		result = append(result, &i)
	}
	return result, rows.Err()
}

// =============================================================================
// PAYMENTS & ALLOCATIONS
// =============================================================================

func (v *view) SavePayment(ctx context.Context, p *lending.Payment) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO payments (id, loan_id, amount, excess, received_at)
		VALUES (?, ?, ?, ?, ?)`,
		string(p.ID), string(p.LoanID), p.Amount.String(), p.Excess.String(),
		fmtTime(p.ReceivedAt))
	return err
}

func (v *view) SaveAllocation(ctx context.Context, a *lending.Allocation) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO allocations (id, payment_id, installment_id, to_capital, to_interest, to_late_fee, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		string(a.ID), string(a.PaymentID), string(a.InstallmentID),
		a.ToCapital.String(), a.ToInterest.String(), a.ToLateFee.String(),
		fmtTime(a.CreatedAt))
	return err
}

func (v *view) AllocationsForLoan(ctx context.Context, id lending.LoanID) ([]*lending.Allocation, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT a.id, a.payment_id, a.installment_id, a.to_capital, a.to_interest, a.to_late_fee, a.created_at
		FROM allocations a
		JOIN installments i ON i.id = a.installment_id
		WHERE i.loan_id = ?
		ORDER BY a.created_at, a.id`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []*lending.Allocation
	for rows.Next() {
		var a lending.Allocation
		var toCapital, toInterest, toLateFee, createdAt string
		if err := rows.Scan(&a.ID, &a.PaymentID, &a.InstallmentID,
			&toCapital, &toInterest, &toLateFee, &createdAt); err != nil {
			return nil, err
		}
		a.ToCapital = lending.MustParseMoney(toCapital)
		a.ToInterest = lending.MustParseMoney(toInterest)
		a.ToLateFee = lending.MustParseMoney(toLateFee)
		a.CreatedAt = parseTime(createdAt)
		result = append(result, &a)
	}
	return result, rows.Err()
}

// =============================================================================
// MORATORY RECORDS
// =============================================================================

func (v *view) SaveMoratoryRecord(ctx context.Context, r *lending.MoratoryInterestRecord) error {
	var lastAccrued any
	if !r.LastAccruedAt.IsZero() {
		lastAccrued = fmtTime(r.LastAccruedAt)
	}
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO moratory_records (id, installment_id, loan_id, generated, collected, discounted, last_accrued_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(installment_id) DO UPDATE SET
			generated = excluded.generated,
			collected = excluded.collected,
			discounted = excluded.discounted,
			last_accrued_at = excluded.last_accrued_at`,
		r.ID, string(r.InstallmentID), string(r.LoanID),
		r.Generated.String(), r.Collected.String(), r.Discounted.String(), lastAccrued)
	return err
}

func (v *view) MoratoryRecords(ctx context.Context, id lending.LoanID) (map[lending.InstallmentID]*lending.MoratoryInterestRecord, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, installment_id, loan_id, generated, collected, discounted, last_accrued_at
		FROM moratory_records WHERE loan_id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[lending.InstallmentID]*lending.MoratoryInterestRecord)
	for rows.Next() {
		rec, err := scanMoratory(rows)
		if err != nil {
			return nil, err
		}
		result[rec.InstallmentID] = rec
	}
	return result, rows.Err()
}

func (v *view) MoratoryRecordFor(ctx context.Context, id lending.InstallmentID) (*lending.MoratoryInterestRecord, error) {
	rows, err := v.q.QueryContext(ctx, `
		SELECT id, installment_id, loan_id, generated, collected, discounted, last_accrued_at
		FROM moratory_records WHERE installment_id = ?`, string(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, rows.Err()
	}
	return scanMoratory(rows)
}

func scanMoratory(rows *sql.Rows) (*lending.MoratoryInterestRecord, error) {
	var r lending.MoratoryInterestRecord
	var generated, collected, discounted string
	var lastAccrued sql.NullString

	if err := rows.Scan(&r.ID, &r.InstallmentID, &r.LoanID,
		&generated, &collected, &discounted, &lastAccrued); err != nil {
		return nil, err
	}
	r.Generated = lending.MustParseMoney(generated)
	r.Collected = lending.MustParseMoney(collected)
	r.Discounted = lending.MustParseMoney(discounted)
	if lastAccrued.Valid {
		r.LastAccruedAt = parseTime(lastAccrued.String)
	}
	return &r, nil
}

// =============================================================================
// DISCOUNTS
// =============================================================================

func (v *view) SaveDiscount(ctx context.Context, d *lending.Discount) error {
	var maxAmount, minLoan any
	if d.MaxAmount != nil {
		maxAmount = d.MaxAmount.String()
	}
	if d.MinLoanAmount != nil {
		minLoan = d.MinLoanAmount.String()
	}
	var maxApps any
	if d.MaxApplications != nil {
		maxApps = *d.MaxApplications
	}
	var validFrom, validTo any
	if d.ValidFrom != nil {
		validFrom = fmtTime(*d.ValidFrom)
	}
	if d.ValidTo != nil {
		validTo = fmtTime(*d.ValidTo)
	}

	_, err := v.q.ExecContext(ctx, `
		INSERT INTO discounts (id, name, discount_type, value, max_amount, min_loan_amount,
			max_applications, valid_from, valid_to, active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET active = excluded.active`,
		string(d.ID), d.Name, string(d.Type), d.Value.String(),
		maxAmount, minLoan, maxApps, validFrom, validTo, boolToInt(d.Active))
	return err
}

func (v *view) Discount(ctx context.Context, id lending.DiscountID) (*lending.Discount, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT id, name, discount_type, value, max_amount, min_loan_amount,
			max_applications, valid_from, valid_to, active
		FROM discounts WHERE id = ?`, string(id))

	var d lending.Discount
	var value string
	var maxAmount, minLoan, validFrom, validTo sql.NullString
	var maxApps sql.NullInt64
	var active int

	err := row.Scan(&d.ID, &d.Name, &d.Type, &value, &maxAmount, &minLoan,
		&maxApps, &validFrom, &validTo, &active)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, lending.ErrDiscountNotFound
	}
	if err != nil {
		return nil, err
	}

	d.Value = decimal.RequireFromString(value)
	if maxAmount.Valid {
		m := lending.MustParseMoney(maxAmount.String)
		d.MaxAmount = &m
	}
	if minLoan.Valid {
		m := lending.MustParseMoney(minLoan.String)
		d.MinLoanAmount = &m
	}
	if maxApps.Valid {
		n := int(maxApps.Int64)
		d.MaxApplications = &n
	}
	if validFrom.Valid {
		t := parseTime(validFrom.String)
		d.ValidFrom = &t
	}
	if validTo.Valid {
		t := parseTime(validTo.String)
		d.ValidTo = &t
	}
	d.Active = active != 0
	return &d, nil
}

func (v *view) DiscountApplications(ctx context.Context, id lending.DiscountID, target lending.InstallmentID) (int, error) {
	row := v.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM discount_applications
		WHERE discount_id = ? AND installment_id = ?`, string(id), string(target))
	var count int
	if err := row.Scan(&count); err != nil {
		return 0, err
	}
	return count, nil
}

func (v *view) RecordDiscountApplication(ctx context.Context, e *lending.DiscountEffect) error {
	_, err := v.q.ExecContext(ctx, `
		INSERT INTO discount_applications (discount_id, installment_id, target, base, amount, applied_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.DiscountID), string(e.InstallmentID), string(e.Target),
		e.Base.String(), e.Amount.String(), fmtTime(e.AppliedAt))
	return err
}

// =============================================================================
// HELPERS
// =============================================================================

func fmtTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
