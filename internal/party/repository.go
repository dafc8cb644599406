package party

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scrapledger/scrapledger/internal/shared"
)

// ListFilters narrows a party listing.
type ListFilters struct {
	Role   Role
	Search string
}

// Repository abstracts party persistence.
type Repository interface {
	Create(ctx context.Context, p Party) (int64, error)
	Get(ctx context.Context, ownerID, id int64) (Party, error)
	Update(ctx context.Context, p Party) error
	Delete(ctx context.Context, ownerID, id int64) error
	List(ctx context.Context, ownerID int64, filters ListFilters) ([]Party, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository builds the pgx-backed party repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const partyColumns = `id, name, COALESCE(mobile, ''), COALESCE(address, ''),
	COALESCE(gst_number, ''), role, owner_id, created_at, updated_at`

func (r *repository) Create(ctx context.Context, p Party) (int64, error) {
	const query = `INSERT INTO parties (owner_id, name, mobile, address, gst_number, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,now(),now()) RETURNING id`
	var id int64
	err := r.pool.QueryRow(ctx, query,
		p.OwnerID, p.Name, p.Mobile, p.Address, strings.ToUpper(p.GSTNumber), p.Role,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("party: insert: %w", err)
	}
	return id, nil
}

func (r *repository) Get(ctx context.Context, ownerID, id int64) (Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE id = $1 AND owner_id = $2`
	p, err := scanParty(r.pool.QueryRow(ctx, query, id, ownerID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Party{}, shared.ErrNotFound
		}
		return Party{}, fmt.Errorf("party: get: %w", err)
	}
	return p, nil
}

func (r *repository) Update(ctx context.Context, p Party) error {
	const query = `UPDATE parties SET name = $1, mobile = $2, address = $3,
		gst_number = $4, role = $5, updated_at = now()
		WHERE id = $6 AND owner_id = $7`
	tag, err := r.pool.Exec(ctx, query,
		p.Name, p.Mobile, p.Address, strings.ToUpper(p.GSTNumber), p.Role, p.ID, p.OwnerID)
	if err != nil {
		return fmt.Errorf("party: update: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, ownerID, id int64) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM parties WHERE id = $1 AND owner_id = $2`, id, ownerID)
	if err != nil {
		return fmt.Errorf("party: delete: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// List returns parties sorted by name. A role filter matches the role
// itself or "both", mirroring how a party playing both sides shows up in
// either picker.
func (r *repository) List(ctx context.Context, ownerID int64, filters ListFilters) ([]Party, error) {
	query := `SELECT ` + partyColumns + ` FROM parties WHERE owner_id = $1`
	args := []interface{}{ownerID}

	if filters.Role != "" {
		args = append(args, filters.Role, RoleBoth)
		query += ` AND role IN ($` + strconv.Itoa(len(args)-1) + `, $` + strconv.Itoa(len(args)) + `)`
	}
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		query += ` AND name ILIKE $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY name ASC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("party: list: %w", err)
	}
	defer rows.Close()

	var parties []Party
	for rows.Next() {
		p, err := scanParty(rows)
		if err != nil {
			return nil, fmt.Errorf("party: scan: %w", err)
		}
		parties = append(parties, p)
	}
	return parties, rows.Err()
}

func scanParty(row pgx.Row) (Party, error) {
	var p Party
	err := row.Scan(&p.ID, &p.Name, &p.Mobile, &p.Address, &p.GSTNumber, &p.Role, &p.OwnerID, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}
