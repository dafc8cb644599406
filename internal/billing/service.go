package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/scrapledger/scrapledger/internal/attachment"
	"github.com/scrapledger/scrapledger/internal/fiscal"
	"github.com/scrapledger/scrapledger/internal/gst"
	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// CacheInvalidator is notified after every bill mutation so cached
// dashboard aggregates get recomputed.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Service provides business logic for purchase and sale bills.
type Service struct {
	repo   Repository
	store  attachment.Store
	cache  CacheInvalidator
	logger *slog.Logger
	now    func() time.Time
}

// NewService constructs a billing service. store and cache may be nil.
func NewService(repo Repository, store attachment.Store, cache CacheInvalidator, logger *slog.Logger) *Service {
	if store == nil {
		store = attachment.Noop{}
	}
	return &Service{repo: repo, store: store, cache: cache, logger: logger, now: time.Now}
}

// CreateBillRequest carries the fields required to record a bill. The
// attachment, when present, has already been uploaded by the caller.
type CreateBillRequest struct {
	BillNumber    string
	PartyID       int64
	MaterialType  string
	Weight        float64
	WeightUnit    string
	RatePerKg     float64
	TaxableAmount float64
	GSTType       string
	GSTPercent    float64
	BillDate      time.Time
	DueDate       *time.Time
	Notes         string
	Attachment    Attachment
}

// Create records a new bill, deriving its financial year from the bill
// date and its GST fields from the tax inputs. Payments start empty.
func (s *Service) Create(ctx context.Context, ownerID int64, kind Kind, req CreateBillRequest) (*Bill, error) {
	if err := validateCreate(kind, req); err != nil {
		return nil, err
	}

	bill := &Bill{
		Kind:          kind,
		BillNumber:    req.BillNumber,
		PartyID:       req.PartyID,
		MaterialType:  req.MaterialType,
		Weight:        req.Weight,
		WeightUnit:    ParseWeightUnit(req.WeightUnit),
		RatePerKg:     req.RatePerKg,
		TaxableAmount: req.TaxableAmount,
		GSTType:       gst.ParseType(req.GSTType),
		GSTPercent:    req.GSTPercent,
		BillDate:      req.BillDate,
		DueDate:       req.DueDate,
		FinancialYear: fiscal.Year(req.BillDate),
		Attachment:    req.Attachment,
		Notes:         req.Notes,
		OwnerID:       ownerID,
	}
	bill.applyGST(gst.Calc(bill.TaxableAmount, bill.GSTType, bill.GSTPercent))

	id, err := s.repo.Create(ctx, bill)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", kind, err)
	}
	s.bumpCache(ctx)
	return s.Get(ctx, ownerID, kind, id)
}

// UpdateBillRequest mutates any subset of bill fields. Nil means "leave
// unchanged".
type UpdateBillRequest struct {
	BillNumber    *string
	PartyID       *int64
	MaterialType  *string
	Weight        *float64
	WeightUnit    *string
	RatePerKg     *float64
	TaxableAmount *float64
	GSTType       *string
	GSTPercent    *float64
	BillDate      *time.Time
	DueDate       *time.Time
	ClearDueDate  bool
	Notes         *string
	Attachment    *Attachment
}

// Update applies a partial update. GST fields are recomputed from the
// merged old+new values whenever any tax input changes; the financial year
// follows the bill date. A replaced attachment is released best-effort.
func (s *Service) Update(ctx context.Context, ownerID int64, kind Kind, id int64, req UpdateBillRequest) (*Bill, error) {
	bill, err := s.Get(ctx, ownerID, kind, id)
	if err != nil {
		return nil, err
	}

	if req.BillNumber != nil {
		bill.BillNumber = *req.BillNumber
	}
	if req.PartyID != nil {
		bill.PartyID = *req.PartyID
	}
	if req.MaterialType != nil {
		bill.MaterialType = *req.MaterialType
	}
	if req.Weight != nil {
		bill.Weight = *req.Weight
	}
	if req.WeightUnit != nil {
		bill.WeightUnit = ParseWeightUnit(*req.WeightUnit)
	}
	if req.RatePerKg != nil {
		bill.RatePerKg = *req.RatePerKg
	}
	if req.Notes != nil {
		bill.Notes = *req.Notes
	}
	if req.BillDate != nil {
		bill.BillDate = *req.BillDate
		bill.FinancialYear = fiscal.Year(bill.BillDate)
	}
	if req.ClearDueDate {
		bill.DueDate = nil
	} else if req.DueDate != nil {
		bill.DueDate = req.DueDate
	}

	if req.TaxableAmount != nil || req.GSTType != nil || req.GSTPercent != nil {
		if req.TaxableAmount != nil {
			bill.TaxableAmount = *req.TaxableAmount
		}
		if req.GSTType != nil {
			bill.GSTType = gst.ParseType(*req.GSTType)
		}
		if req.GSTPercent != nil {
			bill.GSTPercent = *req.GSTPercent
		}
		bill.applyGST(gst.Calc(bill.TaxableAmount, bill.GSTType, bill.GSTPercent))
	}

	// Validate before touching the attachment store: a rejected update
	// must leave the stored document in place.
	if err := validateBill(bill); err != nil {
		return nil, err
	}

	if req.Attachment != nil {
		s.releaseAttachment(ctx, bill.Attachment)
		bill.Attachment = *req.Attachment
	}

	if err := s.repo.Update(ctx, bill); err != nil {
		return nil, mapRepoErr(kind, err)
	}
	s.bumpCache(ctx)
	return s.Get(ctx, ownerID, kind, id)
}

// Delete removes a bill permanently, releasing its stored attachment
// best-effort.
func (s *Service) Delete(ctx context.Context, ownerID int64, kind Kind, id int64) error {
	bill, err := s.Get(ctx, ownerID, kind, id)
	if err != nil {
		return err
	}
	s.releaseAttachment(ctx, bill.Attachment)
	if err := s.repo.Delete(ctx, ownerID, kind, id); err != nil {
		return mapRepoErr(kind, err)
	}
	s.bumpCache(ctx)
	return nil
}

// Get loads one owned bill with its payments and party details.
func (s *Service) Get(ctx context.Context, ownerID int64, kind Kind, id int64) (*Bill, error) {
	bill, err := s.repo.Get(ctx, ownerID, kind, id)
	if err != nil {
		return nil, mapRepoErr(kind, err)
	}
	return bill, nil
}

// List returns one page of bills. The total counts rows before the
// derived-status filter: status is computed from payments after the fetch,
// so a status-filtered page can hold fewer rows than the reported total.
func (s *Service) List(ctx context.Context, ownerID int64, kind Kind, filters ListFilters, page shared.Pagination) ([]Bill, shared.Pagination, error) {
	bills, total, err := s.repo.List(ctx, ownerID, kind, filters, page)
	if err != nil {
		return nil, shared.Pagination{}, fmt.Errorf("list %ss: %w", kind, err)
	}
	if filters.Status != "" {
		now := s.now()
		filtered := make([]Bill, 0, len(bills))
		for _, b := range bills {
			if b.EffectiveStatus(now) == filters.Status {
				filtered = append(filtered, b)
			}
		}
		bills = filtered
	}
	return bills, shared.NewPagination(page.Page, page.PerPage, total), nil
}

// ListAll returns every matching bill; used by dashboards and exports.
func (s *Service) ListAll(ctx context.Context, ownerID int64, kind Kind, filters ListFilters) ([]Bill, error) {
	return s.repo.ListAll(ctx, ownerID, kind, filters)
}

// AddPayment appends a settlement entry. The ledger fields are derived so
// no further sync is needed.
func (s *Service) AddPayment(ctx context.Context, ownerID int64, kind Kind, billID int64, payment Payment) (*Bill, error) {
	if payment.Amount <= 0 {
		return nil, fmt.Errorf("payment amount must be positive: %w", httpx.ErrValidation)
	}
	if _, err := s.Get(ctx, ownerID, kind, billID); err != nil {
		return nil, err
	}
	if payment.PaymentDate.IsZero() {
		payment.PaymentDate = s.now()
	}
	if payment.Mode == "" {
		payment.Mode = ModeCash
	}
	if _, err := s.repo.AddPayment(ctx, billID, payment); err != nil {
		return nil, fmt.Errorf("add payment: %w", err)
	}
	s.bumpCache(ctx)
	return s.Get(ctx, ownerID, kind, billID)
}

// DeletePayment removes one payment entry by id.
func (s *Service) DeletePayment(ctx context.Context, ownerID int64, kind Kind, billID, paymentID int64) (*Bill, error) {
	if _, err := s.Get(ctx, ownerID, kind, billID); err != nil {
		return nil, err
	}
	if err := s.repo.DeletePayment(ctx, billID, paymentID); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, fmt.Errorf("payment not found: %w", httpx.ErrNotFound)
		}
		return nil, fmt.Errorf("delete payment: %w", err)
	}
	s.bumpCache(ctx)
	return s.Get(ctx, ownerID, kind, billID)
}

// CountByParty reports how many bills reference the party; used to block
// party deletion while references exist.
func (s *Service) CountByParty(ctx context.Context, ownerID, partyID int64) (int, error) {
	return s.repo.CountByParty(ctx, ownerID, partyID)
}

// releaseAttachment deletes a stored object best-effort. Failures are
// logged and swallowed: the record mutation must not depend on the
// external store.
func (s *Service) releaseAttachment(ctx context.Context, att Attachment) {
	if att.StorageID == "" {
		return
	}
	if err := s.store.Delete(ctx, att.StorageID); err != nil && s.logger != nil {
		s.logger.Warn("release attachment", slog.String("storage_id", att.StorageID), slog.Any("error", err))
	}
}

func (s *Service) bumpCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil && s.logger != nil {
		s.logger.Warn("bump dashboard cache", slog.Any("error", err))
	}
}

func mapRepoErr(kind Kind, err error) error {
	if errors.Is(err, shared.ErrNotFound) {
		return fmt.Errorf("%s not found: %w", kind, httpx.ErrNotFound)
	}
	return err
}
