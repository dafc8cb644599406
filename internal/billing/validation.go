package billing

import (
	"fmt"
	"strings"

	"github.com/scrapledger/scrapledger/internal/platform/httpx"
)

func validateCreate(kind Kind, req CreateBillRequest) error {
	if !kind.Valid() {
		return fmt.Errorf("unknown bill kind %q: %w", kind, httpx.ErrValidation)
	}
	if strings.TrimSpace(req.BillNumber) == "" {
		return fmt.Errorf("bill number is required: %w", httpx.ErrValidation)
	}
	if req.PartyID <= 0 {
		return fmt.Errorf("party is required: %w", httpx.ErrValidation)
	}
	if strings.TrimSpace(req.MaterialType) == "" {
		return fmt.Errorf("material type is required: %w", httpx.ErrValidation)
	}
	if req.Weight <= 0 {
		return fmt.Errorf("weight must be positive: %w", httpx.ErrValidation)
	}
	if req.RatePerKg < 0 {
		return fmt.Errorf("rate per kg must not be negative: %w", httpx.ErrValidation)
	}
	if req.TaxableAmount < 0 {
		return fmt.Errorf("taxable amount must not be negative: %w", httpx.ErrValidation)
	}
	if req.GSTPercent < 0 || req.GSTPercent > 100 {
		return fmt.Errorf("gst percent must be between 0 and 100: %w", httpx.ErrValidation)
	}
	if req.BillDate.IsZero() {
		return fmt.Errorf("bill date is required: %w", httpx.ErrValidation)
	}
	return nil
}

func validateBill(b *Bill) error {
	if strings.TrimSpace(b.BillNumber) == "" {
		return fmt.Errorf("bill number is required: %w", httpx.ErrValidation)
	}
	if b.PartyID <= 0 {
		return fmt.Errorf("party is required: %w", httpx.ErrValidation)
	}
	if strings.TrimSpace(b.MaterialType) == "" {
		return fmt.Errorf("material type is required: %w", httpx.ErrValidation)
	}
	if b.Weight <= 0 {
		return fmt.Errorf("weight must be positive: %w", httpx.ErrValidation)
	}
	if b.GSTPercent < 0 || b.GSTPercent > 100 {
		return fmt.Errorf("gst percent must be between 0 and 100: %w", httpx.ErrValidation)
	}
	if b.BillDate.IsZero() {
		return fmt.Errorf("bill date is required: %w", httpx.ErrValidation)
	}
	return nil
}
