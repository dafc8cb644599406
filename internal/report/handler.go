package report

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/scrapledger/scrapledger/internal/billing"
	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// BillBook is the slice of the billing service exports read from.
type BillBook interface {
	ListAll(ctx context.Context, ownerID int64, kind billing.Kind, filters billing.ListFilters) ([]billing.Bill, error)
}

// Handler serves CSV exports of the bill books.
type Handler struct {
	logger *slog.Logger
	bills  BillBook
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, bills BillBook) *Handler {
	return &Handler{logger: logger, bills: bills}
}

// MountRoutes registers report routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/reports/purchases.csv", h.handleExport(billing.KindPurchase, "Purchase Report"))
	r.Get("/reports/sales.csv", h.handleExport(billing.KindSale, "Sale Report"))
}

func (h *Handler) handleExport(kind billing.Kind, title string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := shared.OwnerFromContext(r.Context())
		q := r.URL.Query()
		financialYear := q.Get("financialYear")

		filters := billing.ListFilters{FinancialYear: financialYear}
		if t, ok := parseDate(q.Get("startDate")); ok {
			filters.StartDate = t
		}
		if t, ok := parseDate(q.Get("endDate")); ok {
			filters.EndDate = t
		}

		bills, err := h.bills.ListAll(r.Context(), ownerID, kind, filters)
		if err != nil {
			h.logger.Error("export bills", slog.String("kind", string(kind)), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}

		fy := financialYear
		if fy == "" {
			fy = "all"
		}
		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%ss-%s.csv", kind, fy))

		// Headers are already written; a mid-stream failure can only be
		// logged.
		if err := WriteBillsCSV(w, title, financialYear, bills, time.Now()); err != nil {
			h.logger.Error("stream csv", slog.String("kind", string(kind)), slog.Any("error", err))
		}
	}
}

func parseDate(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
