package lot

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapledger/scrapledger/internal/billing"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// ErrDuplicateLink indicates the bill is already allocated to the lot.
var ErrDuplicateLink = errors.New("bill already linked to lot")

// ListFilters narrows a lot listing.
type ListFilters struct {
	FinancialYear string
	MaterialType  string
	Status        Status
}

// Repository abstracts lot persistence.
type Repository interface {
	Create(ctx context.Context, lot *Lot) (int64, error)
	Get(ctx context.Context, ownerID, id int64) (*Lot, error)
	Update(ctx context.Context, lot *Lot) error
	Delete(ctx context.Context, ownerID, id int64) error
	List(ctx context.Context, ownerID int64, filters ListFilters) ([]Lot, error)
	AddLink(ctx context.Context, lotID int64, kind billing.Kind, link Link) (int64, error)
	RemoveLink(ctx context.Context, lotID int64, kind billing.Kind, linkID int64) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed lot repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) Create(ctx context.Context, lot *Lot) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("lot: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx,
		`INSERT INTO lots (owner_id, lot_number, material_type, financial_year, description, created_at, updated_at)
		 VALUES ($1,$2,$3,$4,$5,now(),now()) RETURNING id`,
		lot.OwnerID, lot.LotNumber, lot.MaterialType, lot.FinancialYear, lot.Description,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lot: insert: %w", err)
	}

	for _, link := range lot.Purchases {
		if _, err := insertLink(ctx, tx, id, billing.KindPurchase, link); err != nil {
			return 0, err
		}
	}
	for _, link := range lot.Sales {
		if _, err := insertLink(ctx, tx, id, billing.KindSale, link); err != nil {
			return 0, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("lot: commit: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, ownerID, id int64) (*Lot, error) {
	var l Lot
	err := r.pool.QueryRow(ctx,
		`SELECT id, lot_number, material_type, financial_year, COALESCE(description, ''), owner_id, created_at, updated_at
		 FROM lots WHERE id = $1 AND owner_id = $2`, id, ownerID,
	).Scan(&l.ID, &l.LotNumber, &l.MaterialType, &l.FinancialYear, &l.Description, &l.OwnerID, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, shared.ErrNotFound
		}
		return nil, fmt.Errorf("lot: get: %w", err)
	}
	if err := r.loadLinks(ctx, []*Lot{&l}); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *repository) Update(ctx context.Context, lot *Lot) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE lots SET lot_number = $1, material_type = $2, description = $3, updated_at = now()
		 WHERE id = $4 AND owner_id = $5`,
		lot.LotNumber, lot.MaterialType, lot.Description, lot.ID, lot.OwnerID)
	if err != nil {
		return fmt.Errorf("lot: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, ownerID, id int64) error {
	// lot_links rows cascade with the lot; the referenced bills stay.
	tag, err := r.pool.Exec(ctx, `DELETE FROM lots WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("lot: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) List(ctx context.Context, ownerID int64, filters ListFilters) ([]Lot, error) {
	query := `SELECT id, lot_number, material_type, financial_year, COALESCE(description, ''), owner_id, created_at, updated_at
		FROM lots WHERE owner_id = $1`
	args := []interface{}{ownerID}

	if filters.FinancialYear != "" {
		args = append(args, filters.FinancialYear)
		query += ` AND financial_year = $` + strconv.Itoa(len(args))
	}
	if filters.MaterialType != "" {
		args = append(args, "%"+filters.MaterialType+"%")
		query += ` AND material_type ILIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("lot: list: %w", err)
	}
	defer rows.Close()

	var lots []Lot
	for rows.Next() {
		var l Lot
		if err := rows.Scan(&l.ID, &l.LotNumber, &l.MaterialType, &l.FinancialYear, &l.Description, &l.OwnerID, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, fmt.Errorf("lot: scan: %w", err)
		}
		lots = append(lots, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("lot: iterate: %w", err)
	}

	refs := make([]*Lot, 0, len(lots))
	for i := range lots {
		refs = append(refs, &lots[i])
	}
	if err := r.loadLinks(ctx, refs); err != nil {
		return nil, err
	}
	return lots, nil
}

func (r *repository) AddLink(ctx context.Context, lotID int64, kind billing.Kind, link Link) (int64, error) {
	return insertLink(ctx, r.pool, lotID, kind, link)
}

func (r *repository) RemoveLink(ctx context.Context, lotID int64, kind billing.Kind, linkID int64) error {
	tag, err := r.pool.Exec(ctx,
		`DELETE FROM lot_links WHERE id = $1 AND lot_id = $2 AND kind = $3`,
		linkID, lotID, kind)
	if err != nil {
		return fmt.Errorf("lot: remove link: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

type execer interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func insertLink(ctx context.Context, q execer, lotID int64, kind billing.Kind, link Link) (int64, error) {
	var id int64
	err := q.QueryRow(ctx,
		`INSERT INTO lot_links (lot_id, kind, bill_id, weight, rate, amount)
		 VALUES ($1,$2,$3,$4,$5,$6) RETURNING id`,
		lotID, kind, link.BillID, link.Weight, link.Rate, link.Amount,
	).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		// 23505: the (lot, kind, bill) unique constraint backs up the
		// service-level duplicate check.
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateLink
		}
		return 0, fmt.Errorf("lot: insert link: %w", err)
	}
	return id, nil
}

func (r *repository) loadLinks(ctx context.Context, lots []*Lot) error {
	if len(lots) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(lots))
	byID := make(map[int64]*Lot, len(lots))
	for _, l := range lots {
		l.Purchases = []Link{}
		l.Sales = []Link{}
		ids = append(ids, l.ID)
		byID[l.ID] = l
	}

	rows, err := r.pool.Query(ctx,
		`SELECT ll.id, ll.lot_id, ll.kind, ll.bill_id, ll.weight, ll.rate, ll.amount,
			b.bill_number, COALESCE(p.name, ''), COALESCE(p.mobile, ''),
			b.bill_date, b.financial_year, b.total_amount
		 FROM lot_links ll
		 JOIN bills b ON b.id = ll.bill_id
		 LEFT JOIN parties p ON p.id = b.party_id
		 WHERE ll.lot_id = ANY($1) ORDER BY ll.id`, ids)
	if err != nil {
		return fmt.Errorf("lot: load links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var link Link
		var lotID int64
		var kind billing.Kind
		err := rows.Scan(&link.ID, &lotID, &kind, &link.BillID, &link.Weight, &link.Rate, &link.Amount,
			&link.Bill.BillNumber, &link.Bill.PartyName, &link.Bill.PartyMobile,
			&link.Bill.BillDate, &link.Bill.FinancialYear, &link.Bill.TotalAmount)
		if err != nil {
			return fmt.Errorf("lot: scan link: %w", err)
		}
		link.Bill.ID = link.BillID
		l, ok := byID[lotID]
		if !ok {
			continue
		}
		if kind == billing.KindSale {
			l.Sales = append(l.Sales, link)
		} else {
			l.Purchases = append(l.Purchases, link)
		}
	}
	return rows.Err()
}
