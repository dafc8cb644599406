package lot

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scrapledger/scrapledger/internal/billing"
	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// Handler exposes lot endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers lot routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/lots", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Get("/{id}", h.handleGet)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Post("/{id}/purchases", h.handleAddLink(billing.KindPurchase))
		r.Post("/{id}/sales", h.handleAddLink(billing.KindSale))
		r.Delete("/{id}/purchases/{linkID}", h.handleRemoveLink(billing.KindPurchase))
		r.Delete("/{id}/sales/{linkID}", h.handleRemoveLink(billing.KindSale))
	})
}

// lotView decorates a lot with its derived reconciliation figures.
type lotView struct {
	*Lot
	TotalPurchaseCost   float64 `json:"totalPurchaseCost"`
	TotalPurchaseWeight float64 `json:"totalPurchaseWeight"`
	TotalSaleRevenue    float64 `json:"totalSaleRevenue"`
	TotalSaleWeight     float64 `json:"totalSaleWeight"`
	Profit              float64 `json:"profit"`
	ProfitPercent       float64 `json:"profitPercentage"`
	WeightDifference    float64 `json:"weightDifference"`
	Status              Status  `json:"status"`
}

func newLotView(l *Lot) lotView {
	return lotView{
		Lot:                 l,
		TotalPurchaseCost:   l.TotalPurchaseCost(),
		TotalPurchaseWeight: l.TotalPurchaseWeight(),
		TotalSaleRevenue:    l.TotalSaleRevenue(),
		TotalSaleWeight:     l.TotalSaleWeight(),
		Profit:              l.Profit(),
		ProfitPercent:       l.ProfitPercent(),
		WeightDifference:    l.WeightDifference(),
		Status:              l.Status(),
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		FinancialYear: q.Get("financialYear"),
		MaterialType:  q.Get("materialType"),
		Status:        ParseStatus(q.Get("status")),
	}
	lots, err := h.service.List(r.Context(), shared.OwnerFromContext(r.Context()), filters)
	if err != nil {
		h.logger.Error("list lots", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	views := make([]lotView, 0, len(lots))
	for i := range lots {
		views = append(views, newLotView(&lots[i]))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"lots": views})
}

type lotRequest struct {
	LotNumber    string        `json:"lotNumber" validate:"required"`
	MaterialType string        `json:"materialType" validate:"required"`
	Description  string        `json:"description"`
	Purchases    []LinkRequest `json:"purchases"`
	Sales        []LinkRequest `json:"sales"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req lotRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed lot body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "lot number and material type are required")
		return
	}
	l, err := h.service.Create(r.Context(), shared.OwnerFromContext(r.Context()), CreateLotRequest{
		LotNumber:    req.LotNumber,
		MaterialType: req.MaterialType,
		Description:  req.Description,
		Purchases:    req.Purchases,
		Sales:        req.Sales,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, newLotView(l))
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	l, err := h.service.Get(r.Context(), shared.OwnerFromContext(r.Context()), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newLotView(l))
}

type lotPatch struct {
	LotNumber    *string `json:"lotNumber"`
	MaterialType *string `json:"materialType"`
	Description  *string `json:"description"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	var req lotPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed lot body")
		return
	}
	l, err := h.service.Update(r.Context(), shared.OwnerFromContext(r.Context()), id, UpdateLotRequest{
		LotNumber:    req.LotNumber,
		MaterialType: req.MaterialType,
		Description:  req.Description,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newLotView(l))
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), shared.OwnerFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleAddLink(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.parseID(w, r, "id")
		if !ok {
			return
		}
		var req LinkRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed link body")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "transactionId, weight, rate and amount are required")
			return
		}
		l, err := h.service.AddLink(r.Context(), shared.OwnerFromContext(r.Context()), id, kind, req)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, newLotView(l))
	}
}

func (h *Handler) handleRemoveLink(kind billing.Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := h.parseID(w, r, "id")
		if !ok {
			return
		}
		linkID, ok := h.parseID(w, r, "linkID")
		if !ok {
			return
		}
		l, err := h.service.RemoveLink(r.Context(), shared.OwnerFromContext(r.Context()), id, kind, linkID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, newLotView(l))
	}
}

func (h *Handler) parseID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, name), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid "+name)
		return 0, false
	}
	return id, true
}
