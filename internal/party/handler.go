package party

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// Handler exposes party endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validator: validator.New()}
}

// MountRoutes registers party routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/parties", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Post("/", h.handleCreate)
		r.Put("/{id}", h.handleUpdate)
		r.Delete("/{id}", h.handleDelete)
		r.Get("/{id}/ledger", h.handleLedger)
	})
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	filters := ListFilters{Search: r.URL.Query().Get("search")}
	if role := r.URL.Query().Get("type"); role != "" {
		filters.Role = ParseRole(role)
	}
	parties, err := h.service.List(r.Context(), shared.OwnerFromContext(r.Context()), filters)
	if err != nil {
		h.logger.Error("list parties", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if parties == nil {
		parties = []Party{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"parties": parties})
}

type partyRequest struct {
	Name      string `json:"name" validate:"required"`
	Mobile    string `json:"mobile"`
	Address   string `json:"address"`
	GSTNumber string `json:"gstNumber"`
	Type      string `json:"type"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req partyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed party body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "party name is required")
		return
	}
	p, err := h.service.Create(r.Context(), shared.OwnerFromContext(r.Context()), CreatePartyRequest{
		Name:      req.Name,
		Mobile:    req.Mobile,
		Address:   req.Address,
		GSTNumber: req.GSTNumber,
		Role:      req.Type,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

type partyPatch struct {
	Name      *string `json:"name"`
	Mobile    *string `json:"mobile"`
	Address   *string `json:"address"`
	GSTNumber *string `json:"gstNumber"`
	Type      *string `json:"type"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid party id")
		return
	}
	var req partyPatch
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed party body")
		return
	}
	p, err := h.service.Update(r.Context(), shared.OwnerFromContext(r.Context()), id, UpdatePartyRequest{
		Name:      req.Name,
		Mobile:    req.Mobile,
		Address:   req.Address,
		GSTNumber: req.GSTNumber,
		Role:      req.Type,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid party id")
		return
	}
	if err := h.service.Delete(r.Context(), shared.OwnerFromContext(r.Context()), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid party id")
		return
	}
	ledger, err := h.service.GetLedger(r.Context(), shared.OwnerFromContext(r.Context()), id, r.URL.Query().Get("financialYear"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, ledger)
}
