package dashboard

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/singleflight"

	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// WarmupQueue schedules a background rebuild of an owner's summaries.
type WarmupQueue interface {
	EnqueueWarmup(ctx context.Context, ownerID int64) error
}

// Handler exposes the dashboard endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	queue   WarmupQueue
	group   singleflight.Group
}

// NewHandler constructs a Handler instance. queue may be nil; refresh
// then only invalidates without scheduling a rebuild.
func NewHandler(logger *slog.Logger, service *Service, queue WarmupQueue) *Handler {
	return &Handler{logger: logger, service: service, queue: queue}
}

// MountRoutes registers dashboard routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/dashboard", h.handleSummary)
	r.Post("/dashboard/refresh", h.handleRefresh)
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	ownerID := shared.OwnerFromContext(r.Context())
	financialYear := r.URL.Query().Get("financialYear")

	key, err := h.service.cache.SummaryKey(r.Context(), ownerID, financialYear)
	if err != nil {
		h.logger.Error("dashboard cache key", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}

	// Collapse concurrent identical requests onto one aggregation run.
	resultChan := h.group.DoChan(key, func() (interface{}, error) {
		return h.service.Summary(context.WithoutCancel(r.Context()), ownerID, financialYear)
	})
	select {
	case <-r.Context().Done():
		httpx.Problem(w, http.StatusServiceUnavailable, "Request Cancelled", "dashboard aggregation interrupted")
		return
	case res := <-resultChan:
		if res.Err != nil {
			h.logger.Error("dashboard summary", slog.Any("error", res.Err))
			httpx.RespondError(w, res.Err)
			return
		}
		httpx.JSON(w, http.StatusOK, res.Val)
	}
}

// handleRefresh drops cached summaries and, when a queue is configured,
// schedules a background rebuild for the calling owner.
func (h *Handler) handleRefresh(w http.ResponseWriter, r *http.Request) {
	ownerID := shared.OwnerFromContext(r.Context())

	if err := h.service.cache.Bump(r.Context()); err != nil {
		h.logger.Error("dashboard refresh", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	if h.queue != nil {
		if err := h.queue.EnqueueWarmup(r.Context(), ownerID); err != nil {
			h.logger.Warn("enqueue dashboard warmup", slog.Any("error", err))
		}
	}
	httpx.JSON(w, http.StatusAccepted, map[string]string{"status": "refresh scheduled"})
}
