package party

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/scrapledger/scrapledger/internal/billing"
	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// BillBook is the slice of the billing service the party module needs:
// reference counting for delete protection and bill listings for the
// per-party ledger.
type BillBook interface {
	CountByParty(ctx context.Context, ownerID, partyID int64) (int, error)
	ListAll(ctx context.Context, ownerID int64, kind billing.Kind, filters billing.ListFilters) ([]billing.Bill, error)
}

// Service provides business logic for parties.
type Service struct {
	repo  Repository
	bills BillBook
}

// NewService constructs a party service.
func NewService(repo Repository, bills BillBook) *Service {
	return &Service{repo: repo, bills: bills}
}

// CreatePartyRequest carries party fields; only the name is mandatory.
type CreatePartyRequest struct {
	Name      string
	Mobile    string
	Address   string
	GSTNumber string
	Role      string
}

// Create records a new party.
func (s *Service) Create(ctx context.Context, ownerID int64, req CreatePartyRequest) (Party, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Party{}, fmt.Errorf("party name is required: %w", httpx.ErrValidation)
	}
	p := Party{
		Name:      req.Name,
		Mobile:    req.Mobile,
		Address:   req.Address,
		GSTNumber: req.GSTNumber,
		Role:      ParseRole(req.Role),
		OwnerID:   ownerID,
	}
	id, err := s.repo.Create(ctx, p)
	if err != nil {
		return Party{}, fmt.Errorf("create party: %w", err)
	}
	return s.Get(ctx, ownerID, id)
}

// UpdatePartyRequest mutates any subset of party fields.
type UpdatePartyRequest struct {
	Name      *string
	Mobile    *string
	Address   *string
	GSTNumber *string
	Role      *string
}

// Update applies a partial update.
func (s *Service) Update(ctx context.Context, ownerID, id int64, req UpdatePartyRequest) (Party, error) {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Party{}, err
	}
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			return Party{}, fmt.Errorf("party name is required: %w", httpx.ErrValidation)
		}
		p.Name = *req.Name
	}
	if req.Mobile != nil {
		p.Mobile = *req.Mobile
	}
	if req.Address != nil {
		p.Address = *req.Address
	}
	if req.GSTNumber != nil {
		p.GSTNumber = *req.GSTNumber
	}
	if req.Role != nil {
		p.Role = ParseRole(*req.Role)
	}
	if err := s.repo.Update(ctx, p); err != nil {
		return Party{}, mapRepoErr(err)
	}
	return s.Get(ctx, ownerID, id)
}

// Get loads one owned party.
func (s *Service) Get(ctx context.Context, ownerID, id int64) (Party, error) {
	p, err := s.repo.Get(ctx, ownerID, id)
	if err != nil {
		return Party{}, mapRepoErr(err)
	}
	return p, nil
}

// List returns owned parties sorted by name.
func (s *Service) List(ctx context.Context, ownerID int64, filters ListFilters) ([]Party, error) {
	return s.repo.List(ctx, ownerID, filters)
}

// Delete removes a party. Deletion is blocked while any bill still
// references it.
func (s *Service) Delete(ctx context.Context, ownerID, id int64) error {
	if _, err := s.Get(ctx, ownerID, id); err != nil {
		return err
	}
	count, err := s.bills.CountByParty(ctx, ownerID, id)
	if err != nil {
		return fmt.Errorf("count party bills: %w", err)
	}
	if count > 0 {
		return fmt.Errorf("cannot delete party with existing transactions: %w", httpx.ErrDuplicate)
	}
	if err := s.repo.Delete(ctx, ownerID, id); err != nil {
		return mapRepoErr(err)
	}
	return nil
}

// LedgerSummary totals one party's bills.
type LedgerSummary struct {
	TotalPurchase     float64 `json:"totalPurchase"`
	TotalSale         float64 `json:"totalSale"`
	PendingPayable    float64 `json:"pendingPayable"`
	PendingReceivable float64 `json:"pendingReceivable"`
}

// Ledger is the per-party statement: all bills on both sides plus totals.
type Ledger struct {
	Party     Party          `json:"party"`
	Purchases []billing.Bill `json:"purchases"`
	Sales     []billing.Bill `json:"sales"`
	Summary   LedgerSummary  `json:"summary"`
}

// GetLedger builds the party statement, optionally narrowed to one
// financial year.
func (s *Service) GetLedger(ctx context.Context, ownerID, id int64, financialYear string) (Ledger, error) {
	p, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return Ledger{}, err
	}
	filters := billing.ListFilters{PartyID: id, FinancialYear: financialYear}
	purchases, err := s.bills.ListAll(ctx, ownerID, billing.KindPurchase, filters)
	if err != nil {
		return Ledger{}, fmt.Errorf("party ledger purchases: %w", err)
	}
	sales, err := s.bills.ListAll(ctx, ownerID, billing.KindSale, filters)
	if err != nil {
		return Ledger{}, fmt.Errorf("party ledger sales: %w", err)
	}

	var summary LedgerSummary
	for i := range purchases {
		summary.TotalPurchase += purchases[i].TotalAmount
		summary.PendingPayable += purchases[i].PendingAmount()
	}
	for i := range sales {
		summary.TotalSale += sales[i].TotalAmount
		summary.PendingReceivable += sales[i].PendingAmount()
	}
	return Ledger{Party: p, Purchases: purchases, Sales: sales, Summary: summary}, nil
}

func mapRepoErr(err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("party not found: %w", httpx.ErrNotFound)
	}
	return err
}
