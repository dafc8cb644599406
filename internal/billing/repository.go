package billing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapledger/scrapledger/internal/shared"
)

// ListFilters narrows a bill listing. Zero values mean "no filter".
type ListFilters struct {
	FinancialYear string
	PartyID       int64
	Search        string
	StartDate     time.Time
	EndDate       time.Time
	Status        Status
}

// Repository abstracts bill persistence so services can be tested against
// in-memory fakes.
type Repository interface {
	Create(ctx context.Context, bill *Bill) (int64, error)
	Get(ctx context.Context, ownerID int64, kind Kind, id int64) (*Bill, error)
	Update(ctx context.Context, bill *Bill) error
	Delete(ctx context.Context, ownerID int64, kind Kind, id int64) error
	List(ctx context.Context, ownerID int64, kind Kind, filters ListFilters, page shared.Pagination) ([]Bill, int, error)
	ListAll(ctx context.Context, ownerID int64, kind Kind, filters ListFilters) ([]Bill, error)
	AddPayment(ctx context.Context, billID int64, payment Payment) (int64, error)
	DeletePayment(ctx context.Context, billID, paymentID int64) error
	CountByParty(ctx context.Context, ownerID, partyID int64) (int, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed bill repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const billColumns = `b.id, b.kind, b.bill_number, b.party_id,
	COALESCE(p.name, ''), COALESCE(p.mobile, ''), COALESCE(p.gst_number, ''),
	b.material_type, b.weight, b.weight_unit, b.rate_per_kg,
	b.taxable_amount, b.gst_type, b.gst_percent,
	b.cgst_amount, b.sgst_amount, b.igst_amount, b.total_gst_amount, b.total_amount,
	b.bill_date, b.due_date, b.financial_year,
	COALESCE(b.attachment_url, ''), COALESCE(b.attachment_storage_id, ''),
	b.notes, b.owner_id, b.created_at, b.updated_at`

func (r *repository) Create(ctx context.Context, bill *Bill) (int64, error) {
	const query = `INSERT INTO bills (
		owner_id, kind, bill_number, party_id, material_type,
		weight, weight_unit, rate_per_kg,
		taxable_amount, gst_type, gst_percent,
		cgst_amount, sgst_amount, igst_amount, total_gst_amount, total_amount,
		bill_date, due_date, financial_year,
		attachment_url, attachment_storage_id, notes, created_at, updated_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,now(),now())
	RETURNING id`

	var id int64
	err := r.pool.QueryRow(ctx, query,
		bill.OwnerID, bill.Kind, bill.BillNumber, bill.PartyID, bill.MaterialType,
		bill.Weight, bill.WeightUnit, bill.RatePerKg,
		bill.TaxableAmount, bill.GSTType, bill.GSTPercent,
		bill.CGSTAmount, bill.SGSTAmount, bill.IGSTAmount, bill.TotalGSTAmount, bill.TotalAmount,
		bill.BillDate, bill.DueDate, bill.FinancialYear,
		bill.Attachment.URL, bill.Attachment.StorageID, bill.Notes,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: insert bill: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, ownerID int64, kind Kind, id int64) (*Bill, error) {
	query := `SELECT ` + billColumns + `
		FROM bills b LEFT JOIN parties p ON p.id = b.party_id
		WHERE b.id = $1 AND b.owner_id = $2 AND b.kind = $3`

	row := r.pool.QueryRow(ctx, query, id, ownerID, kind)
	bill, err := scanBill(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("billing: get bill: %w", err)
	}
	if err := r.loadPayments(ctx, []*Bill{bill}); err != nil {
		return nil, err
	}
	return bill, nil
}

func (r *repository) Update(ctx context.Context, bill *Bill) error {
	const query = `UPDATE bills SET
		bill_number = $1, party_id = $2, material_type = $3,
		weight = $4, weight_unit = $5, rate_per_kg = $6,
		taxable_amount = $7, gst_type = $8, gst_percent = $9,
		cgst_amount = $10, sgst_amount = $11, igst_amount = $12,
		total_gst_amount = $13, total_amount = $14,
		bill_date = $15, due_date = $16, financial_year = $17,
		attachment_url = $18, attachment_storage_id = $19, notes = $20,
		updated_at = now()
	WHERE id = $21 AND owner_id = $22 AND kind = $23`

	tag, err := r.pool.Exec(ctx, query,
		bill.BillNumber, bill.PartyID, bill.MaterialType,
		bill.Weight, bill.WeightUnit, bill.RatePerKg,
		bill.TaxableAmount, bill.GSTType, bill.GSTPercent,
		bill.CGSTAmount, bill.SGSTAmount, bill.IGSTAmount,
		bill.TotalGSTAmount, bill.TotalAmount,
		bill.BillDate, bill.DueDate, bill.FinancialYear,
		bill.Attachment.URL, bill.Attachment.StorageID, bill.Notes,
		bill.ID, bill.OwnerID, bill.Kind,
	)
	if err != nil {
		return fmt.Errorf("billing: update bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, ownerID int64, kind Kind, id int64) error {
	// bill_payments rows cascade with the bill.
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM bills WHERE id = $1 AND owner_id = $2 AND kind = $3`,
		id, ownerID, kind)
	if err != nil {
		return fmt.Errorf("billing: delete bill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// List returns one page of bills ordered by bill date descending, plus the
// total row count before any derived-status filtering.
func (r *repository) List(ctx context.Context, ownerID int64, kind Kind, filters ListFilters, page shared.Pagination) ([]Bill, int, error) {
	where, args := billFilterClause(ownerID, kind, filters)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM bills b`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("billing: count bills: %w", err)
	}

	query := `SELECT ` + billColumns + `
		FROM bills b LEFT JOIN parties p ON p.id = b.party_id` + where +
		` ORDER BY b.bill_date DESC, b.id DESC` +
		` LIMIT $` + strconv.Itoa(len(args)+1) + ` OFFSET $` + strconv.Itoa(len(args)+2)
	args = append(args, page.PerPage, page.Offset())

	bills, err := r.queryBills(ctx, query, args)
	if err != nil {
		return nil, 0, err
	}
	return bills, total, nil
}

// ListAll returns every matching bill without pagination; used by the
// dashboard, party ledger and CSV exports.
func (r *repository) ListAll(ctx context.Context, ownerID int64, kind Kind, filters ListFilters) ([]Bill, error) {
	where, args := billFilterClause(ownerID, kind, filters)
	query := `SELECT ` + billColumns + `
		FROM bills b LEFT JOIN parties p ON p.id = b.party_id` + where +
		` ORDER BY b.bill_date DESC, b.id DESC`
	return r.queryBills(ctx, query, args)
}

func (r *repository) AddPayment(ctx context.Context, billID int64, payment Payment) (int64, error) {
	const query = `INSERT INTO bill_payments (bill_id, amount, payment_date, mode, note, reference, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now()) RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		billID, payment.Amount, payment.PaymentDate, payment.Mode, payment.Note, payment.Reference,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("billing: insert payment: %w", err)
	}
	return id, nil
}

func (r *repository) DeletePayment(ctx context.Context, billID, paymentID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM bill_payments WHERE id = $1 AND bill_id = $2`,
		paymentID, billID)
	if err != nil {
		return fmt.Errorf("billing: delete payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) CountByParty(ctx context.Context, ownerID, partyID int64) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM bills WHERE owner_id = $1 AND party_id = $2`,
		ownerID, partyID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("billing: count by party: %w", err)
	}
	return count, nil
}

func billFilterClause(ownerID int64, kind Kind, filters ListFilters) (string, []interface{}) {
	where := ` WHERE b.owner_id = $1 AND b.kind = $2`
	args := []interface{}{ownerID, kind}

	if filters.FinancialYear != "" {
		args = append(args, filters.FinancialYear)
		where += ` AND b.financial_year = $` + strconv.Itoa(len(args))
	}
	if filters.PartyID > 0 {
		args = append(args, filters.PartyID)
		where += ` AND b.party_id = $` + strconv.Itoa(len(args))
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		where += ` AND b.bill_number ILIKE $` + strconv.Itoa(len(args))
	}
	if !filters.StartDate.IsZero() {
		args = append(args, filters.StartDate)
		where += ` AND b.bill_date >= $` + strconv.Itoa(len(args))
	}
	if !filters.EndDate.IsZero() {
		args = append(args, filters.EndDate)
		where += ` AND b.bill_date <= $` + strconv.Itoa(len(args))
	}
	return where, args
}

func (r *repository) queryBills(ctx context.Context, query string, args []interface{}) ([]Bill, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("billing: query bills: %w", err)
	}
	defer rows.Close()

	var bills []Bill
	var refs []*Bill
	for rows.Next() {
		bill, err := scanBill(rows)
		if err != nil {
			return nil, fmt.Errorf("billing: scan bill: %w", err)
		}
		bills = append(bills, *bill)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("billing: iterate bills: %w", err)
	}
	for i := range bills {
		refs = append(refs, &bills[i])
	}
	if err := r.loadPayments(ctx, refs); err != nil {
		return nil, err
	}
	return bills, nil
}

func (r *repository) loadPayments(ctx context.Context, bills []*Bill) error {
	if len(bills) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(bills))
	byID := make(map[int64]*Bill, len(bills))
	for _, b := range bills {
		b.Payments = []Payment{}
		ids = append(ids, b.ID)
		byID[b.ID] = b
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, bill_id, amount, payment_date, mode, COALESCE(note, ''), COALESCE(reference, ''), created_at
		 FROM bill_payments WHERE bill_id = ANY($1) ORDER BY id`, ids)
	if err != nil {
		return fmt.Errorf("billing: load payments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p Payment
		var billID int64
		if err := rows.Scan(&p.ID, &billID, &p.Amount, &p.PaymentDate, &p.Mode, &p.Note, &p.Reference, &p.CreatedAt); err != nil {
			return fmt.Errorf("billing: scan payment: %w", err)
		}
		if b, ok := byID[billID]; ok {
			b.Payments = append(b.Payments, p)
		}
	}
	return rows.Err()
}

func scanBill(row pgx.Row) (*Bill, error) {
	var b Bill
	err := row.Scan(
		&b.ID, &b.Kind, &b.BillNumber, &b.PartyID,
		&b.PartyName, &b.PartyMobile, &b.PartyGSTNo,
		&b.MaterialType, &b.Weight, &b.WeightUnit, &b.RatePerKg,
		&b.TaxableAmount, &b.GSTType, &b.GSTPercent,
		&b.CGSTAmount, &b.SGSTAmount, &b.IGSTAmount, &b.TotalGSTAmount, &b.TotalAmount,
		&b.BillDate, &b.DueDate, &b.FinancialYear,
		&b.Attachment.URL, &b.Attachment.StorageID,
		&b.Notes, &b.OwnerID, &b.CreatedAt, &b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &b, nil
}
