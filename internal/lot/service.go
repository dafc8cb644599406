package lot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scrapledger/scrapledger/internal/billing"
	"github.com/scrapledger/scrapledger/internal/fiscal"
	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// BillGetter resolves a bill for link validation. The billing service
// satisfies it.
type BillGetter interface {
	Get(ctx context.Context, ownerID int64, kind billing.Kind, id int64) (*billing.Bill, error)
}

// Service provides business logic for lots.
type Service struct {
	repo  Repository
	bills BillGetter
}

// NewService constructs a lot service.
func NewService(repo Repository, bills BillGetter) *Service {
	return &Service{repo: repo, bills: bills}
}

// LinkRequest is one allocation of a bill to a lot. All four fields are
// required; the allocation figures are independent of the bill's own.
type LinkRequest struct {
	BillID int64   `json:"transactionId" validate:"required"`
	Weight float64 `json:"weight" validate:"required"`
	Rate   float64 `json:"rate" validate:"required"`
	Amount float64 `json:"amount" validate:"required"`
}

// CreateLotRequest carries the fields needed to open a lot.
type CreateLotRequest struct {
	LotNumber    string
	MaterialType string
	Description  string
	Purchases    []LinkRequest
	Sales        []LinkRequest
}

// Create opens a lot. The financial year is inherited from the first
// purchase link's bill when one is given, otherwise from today's date.
func (s *Service) Create(ctx context.Context, ownerID int64, req CreateLotRequest) (*Lot, error) {
	if strings.TrimSpace(req.LotNumber) == "" {
		return nil, fmt.Errorf("lot number is required: %w", httpx.ErrValidation)
	}
	if strings.TrimSpace(req.MaterialType) == "" {
		return nil, fmt.Errorf("material type is required: %w", httpx.ErrValidation)
	}

	l := &Lot{
		LotNumber:    req.LotNumber,
		MaterialType: req.MaterialType,
		Description:  req.Description,
		OwnerID:      ownerID,
	}
	for _, lr := range req.Purchases {
		link, err := s.buildLink(ctx, ownerID, billing.KindPurchase, lr, l)
		if err != nil {
			return nil, err
		}
		l.Purchases = append(l.Purchases, link)
	}
	for _, lr := range req.Sales {
		link, err := s.buildLink(ctx, ownerID, billing.KindSale, lr, l)
		if err != nil {
			return nil, err
		}
		l.Sales = append(l.Sales, link)
	}

	if len(l.Purchases) > 0 {
		bill, err := s.bills.Get(ctx, ownerID, billing.KindPurchase, l.Purchases[0].BillID)
		if err != nil {
			return nil, err
		}
		l.FinancialYear = bill.FinancialYear
	} else {
		l.FinancialYear = fiscal.CurrentYear()
	}

	id, err := s.repo.Create(ctx, l)
	if err != nil {
		return nil, mapLotErr(err)
	}
	return s.Get(ctx, ownerID, id)
}

// UpdateLotRequest mutates lot metadata. Allocations change through the
// link operations, not here.
type UpdateLotRequest struct {
	LotNumber    *string
	MaterialType *string
	Description  *string
}

// Update applies a partial metadata update.
func (s *Service) Update(ctx context.Context, ownerID, id int64, req UpdateLotRequest) (*Lot, error) {
	l, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	if req.LotNumber != nil {
		if strings.TrimSpace(*req.LotNumber) == "" {
			return nil, fmt.Errorf("lot number is required: %w", httpx.ErrValidation)
		}
		l.LotNumber = *req.LotNumber
	}
	if req.MaterialType != nil {
		if strings.TrimSpace(*req.MaterialType) == "" {
			return nil, fmt.Errorf("material type is required: %w", httpx.ErrValidation)
		}
		l.MaterialType = *req.MaterialType
	}
	if req.Description != nil {
		l.Description = *req.Description
	}
	if err := s.repo.Update(ctx, l); err != nil {
		return nil, mapLotErr(err)
	}
	return s.Get(ctx, ownerID, id)
}

// Get loads one owned lot with its allocations.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (*Lot, error) {
	l, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return nil, mapLotErr(err)
	}
	return l, nil
}

// List returns owned lots. The status filter is applied after the fetch
// since sell-through state is derived from the allocations.
func (s *Service) List(ctx context.Context, ownerID int64, filters ListFilters) ([]Lot, error) {
	lots, err := s.repo.List(ctx, ownerID, filters)
	if err != nil {
		return nil, err
	}
	if filters.Status == "" {
		return lots, nil
	}
	filtered := lots[:0]
	for i := range lots {
		if lots[i].Status() == filters.Status {
			filtered = append(filtered, lots[i])
		}
	}
	return filtered, nil
}

// Delete removes a lot and its allocations. The linked bills survive.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return mapLotErr(err)
	}
	return nil
}

// AddLink allocates a bill to the lot. A bill already linked on the same
// side is rejected and the lot is left unchanged.
func (s *Service) AddLink(ctx context.Context, ownerID, lotID int64, kind billing.Kind, req LinkRequest) (*Lot, error) {
	l, err := s.Get(ctx, ownerID, lotID)
	if err != nil {
		return nil, err
	}
	link, err := s.buildLink(ctx, ownerID, kind, req, l)
	if err != nil {
		return nil, err
	}
	if _, err := s.repo.AddLink(ctx, lotID, kind, link); err != nil {
		return nil, mapLotErr(err)
	}
	return s.Get(ctx, ownerID, lotID)
}

// RemoveLink drops one allocation. Only the link row goes; the bill stays.
func (s *Service) RemoveLink(ctx context.Context, ownerID, lotID int64, kind billing.Kind, linkID int64) (*Lot, error) {
	if _, err := s.Get(ctx, ownerID, lotID); err != nil {
		return nil, err
	}
	if err := s.repo.RemoveLink(ctx, lotID, kind, linkID); err != nil {
		return nil, mapLotErr(err)
	}
	return s.Get(ctx, ownerID, lotID)
}

func (s *Service) buildLink(ctx context.Context, ownerID int64, kind billing.Kind, req LinkRequest, l *Lot) (Link, error) {
	if req.BillID == 0 || req.Weight == 0 || req.Rate == 0 || req.Amount == 0 {
		return Link{}, fmt.Errorf("link requires transactionId, weight, rate and amount: %w", httpx.ErrValidation)
	}
	if l.linked(kind, req.BillID) {
		return Link{}, fmt.Errorf("transaction already linked to this lot: %w", httpx.ErrDuplicate)
	}
	if _, err := s.bills.Get(ctx, ownerID, kind, req.BillID); err != nil {
		return Link{}, err
	}
	return Link{BillID: req.BillID, Weight: req.Weight, Rate: req.Rate, Amount: req.Amount}, nil
}

func mapLotErr(err error) error {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		return fmt.Errorf("lot not found: %w", httpx.ErrNotFound)
	case errors.Is(err, ErrDuplicateLink):
		return fmt.Errorf("transaction already linked to this lot: %w", httpx.ErrDuplicate)
	}
	return err
}
