package billing

import (
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/scrapledger/scrapledger/internal/attachment"
	"github.com/scrapledger/scrapledger/internal/gst"
	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

const maxAttachmentSize = 10 << 20 // 10 MiB

// Handler exposes bill endpoints. The same handler serves /purchases and
// /sales; only the bound Kind differs.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	store     attachment.Store
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, store attachment.Store) *Handler {
	if store == nil {
		store = attachment.Noop{}
	}
	return &Handler{logger: logger, service: service, store: store, validator: validator.New()}
}

// MountRoutes registers purchase and sale routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchases", func(r chi.Router) { h.mountKind(r, KindPurchase) })
	r.Route("/sales", func(r chi.Router) { h.mountKind(r, KindSale) })
}

func (h *Handler) mountKind(r chi.Router, kind Kind) {
	r.Get("/", h.handleList(kind))
	r.Post("/", h.handleCreate(kind))
	r.Get("/{id}", h.handleGet(kind))
	r.Put("/{id}", h.handleUpdate(kind))
	r.Delete("/{id}", h.handleDelete(kind))
	r.Post("/{id}/payments", h.handleAddPayment(kind))
	r.Delete("/{id}/payments/{paymentID}", h.handleDeletePayment(kind))
}

type billForm struct {
	BillNumber    string  `validate:"required"`
	PartyID       int64   `validate:"required,gt=0"`
	MaterialType  string  `validate:"required"`
	Weight        float64 `validate:"gt=0"`
	RatePerKg     float64 `validate:"gte=0"`
	TaxableAmount float64 `validate:"gte=0"`
	GSTPercent    float64 `validate:"gte=0,lte=100"`
}

func (h *Handler) handleList(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := shared.OwnerFromContext(r.Context())
		q := r.URL.Query()

		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		partyID, _ := strconv.ParseInt(q.Get("party"), 10, 64)

		filters := ListFilters{
			FinancialYear: q.Get("financialYear"),
			PartyID:       partyID,
			Search:        q.Get("search"),
			Status:        ParseStatus(q.Get("status")),
		}
		if t, ok := parseDate(q.Get("startDate")); ok {
			filters.StartDate = t
		}
		if t, ok := parseDate(q.Get("endDate")); ok {
			filters.EndDate = t
		}

		bills, pagination, err := h.service.List(r.Context(), ownerID, kind, filters, shared.NewPagination(page, limit, 0))
		if err != nil {
			h.logger.Error("list bills", slog.String("kind", string(kind)), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, listResponse{
			Bills:      h.present(bills),
			Pagination: pagination,
		})
	}
}

func (h *Handler) handleGet(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
			return
		}
		bill, err := h.service.Get(r.Context(), shared.OwnerFromContext(r.Context()), kind, id)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, h.presentOne(bill))
	}
}

func (h *Handler) handleCreate(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ownerID := shared.OwnerFromContext(r.Context())
		req, file, header, err := h.parseBillForm(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		if file != nil {
			defer file.Close()
			obj, err := h.store.Put(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
			if err != nil {
				// The caller intended an attachment; a failed upload fails
				// the create.
				h.logger.Error("upload attachment", slog.Any("error", err))
				httpx.Problem(w, http.StatusBadGateway, "Upload Failed", "attachment could not be stored")
				return
			}
			req.Attachment = Attachment{URL: obj.URL, StorageID: obj.StorageID}
		}

		bill, err := h.service.Create(r.Context(), ownerID, kind, req)
		if err != nil {
			h.discardUpload(r.Context(), req.Attachment.StorageID)
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusCreated, h.presentOne(bill))
	}
}

func (h *Handler) handleUpdate(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
			return
		}
		ownerID := shared.OwnerFromContext(r.Context())

		req, file, header, err := h.parseBillPatch(r)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		if file != nil {
			defer file.Close()
			obj, err := h.store.Put(r.Context(), header.Filename, header.Header.Get("Content-Type"), file)
			if err != nil {
				h.logger.Error("upload attachment", slog.Any("error", err))
				httpx.Problem(w, http.StatusBadGateway, "Upload Failed", "attachment could not be stored")
				return
			}
			req.Attachment = &Attachment{URL: obj.URL, StorageID: obj.StorageID}
		}

		bill, err := h.service.Update(r.Context(), ownerID, kind, id, req)
		if err != nil {
			if req.Attachment != nil {
				h.discardUpload(r.Context(), req.Attachment.StorageID)
			}
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, h.presentOne(bill))
	}
}

func (h *Handler) handleDelete(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
			return
		}
		if err := h.service.Delete(r.Context(), shared.OwnerFromContext(r.Context()), kind, id); err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"success": true})
	}
}

type paymentRequest struct {
	Amount      float64 `json:"amount" validate:"required,gt=0"`
	PaymentDate string  `json:"paymentDate"`
	Mode        string  `json:"mode"`
	Note        string  `json:"note"`
	Reference   string  `json:"reference"`
}

func (h *Handler) handleAddPayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
			return
		}
		var req paymentRequest
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed payment body")
			return
		}
		if err := h.validator.Struct(req); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "valid amount required")
			return
		}
		payment := Payment{
			Amount:    req.Amount,
			Mode:      ParsePaymentMode(req.Mode),
			Note:      req.Note,
			Reference: req.Reference,
		}
		if t, ok := parseDate(req.PaymentDate); ok {
			payment.PaymentDate = t
		}
		bill, err := h.service.AddPayment(r.Context(), shared.OwnerFromContext(r.Context()), kind, id, payment)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, h.presentOne(bill))
	}
}

func (h *Handler) handleDeletePayment(kind Kind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
			return
		}
		paymentID, err := strconv.ParseInt(chi.URLParam(r, "paymentID"), 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid payment id")
			return
		}
		bill, err := h.service.DeletePayment(r.Context(), shared.OwnerFromContext(r.Context()), kind, id, paymentID)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		httpx.JSON(w, http.StatusOK, h.presentOne(bill))
	}
}

// discardUpload releases a just-stored object whose record mutation did
// not go through, so aborted requests leave nothing orphaned in the
// store. Best-effort: failures are logged.
func (h *Handler) discardUpload(ctx context.Context, storageID string) {
	if storageID == "" {
		return
	}
	if err := h.store.Delete(ctx, storageID); err != nil {
		h.logger.Warn("discard upload", slog.String("storage_id", storageID), slog.Any("error", err))
	}
}

// parseBillForm reads a multipart create form. The file part is optional.
func (h *Handler) parseBillForm(r *http.Request) (CreateBillRequest, multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		return CreateBillRequest{}, nil, nil, fmt.Errorf("malformed form: %w", err)
	}
	partyID, _ := strconv.ParseInt(r.FormValue("party"), 10, 64)
	form := billForm{
		BillNumber:    r.FormValue("billNumber"),
		PartyID:       partyID,
		MaterialType:  r.FormValue("materialType"),
		Weight:        gst.ParseAmount(r.FormValue("weight")),
		RatePerKg:     gst.ParseAmount(r.FormValue("ratePerKg")),
		TaxableAmount: gst.ParseAmount(r.FormValue("taxableAmount")),
		GSTPercent:    gst.ParseAmount(r.FormValue("gstPercent")),
	}
	if err := h.validator.Struct(form); err != nil {
		return CreateBillRequest{}, nil, nil, fmt.Errorf("invalid bill fields: %w", err)
	}

	req := CreateBillRequest{
		BillNumber:    form.BillNumber,
		PartyID:       form.PartyID,
		MaterialType:  form.MaterialType,
		Weight:        form.Weight,
		WeightUnit:    r.FormValue("weightUnit"),
		RatePerKg:     form.RatePerKg,
		TaxableAmount: form.TaxableAmount,
		GSTType:       r.FormValue("gstType"),
		GSTPercent:    form.GSTPercent,
		Notes:         r.FormValue("notes"),
	}
	billDate, ok := parseDate(r.FormValue("billDate"))
	if !ok {
		return CreateBillRequest{}, nil, nil, fmt.Errorf("bill date is required")
	}
	req.BillDate = billDate
	if due, ok := parseDate(r.FormValue("dueDate")); ok {
		req.DueDate = &due
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			return req, nil, nil, nil
		}
		return CreateBillRequest{}, nil, nil, fmt.Errorf("read attachment: %w", err)
	}
	return req, file, header, nil
}

// parseBillPatch reads a multipart update form; only supplied fields are
// applied.
func (h *Handler) parseBillPatch(r *http.Request) (UpdateBillRequest, multipart.File, *multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(maxAttachmentSize); err != nil {
		return UpdateBillRequest{}, nil, nil, fmt.Errorf("malformed form: %w", err)
	}
	var req UpdateBillRequest
	form := r.MultipartForm.Value

	strField := func(name string) *string {
		if vs, ok := form[name]; ok && len(vs) > 0 {
			return &vs[0]
		}
		return nil
	}
	numField := func(name string) *float64 {
		if vs, ok := form[name]; ok && len(vs) > 0 {
			v := gst.ParseAmount(vs[0])
			return &v
		}
		return nil
	}

	req.BillNumber = strField("billNumber")
	req.MaterialType = strField("materialType")
	req.WeightUnit = strField("weightUnit")
	req.GSTType = strField("gstType")
	req.Notes = strField("notes")
	req.Weight = numField("weight")
	req.RatePerKg = numField("ratePerKg")
	req.TaxableAmount = numField("taxableAmount")
	req.GSTPercent = numField("gstPercent")

	if v := strField("party"); v != nil {
		id, err := strconv.ParseInt(*v, 10, 64)
		if err != nil || id <= 0 {
			return UpdateBillRequest{}, nil, nil, fmt.Errorf("invalid party id")
		}
		req.PartyID = &id
	}
	if v := strField("billDate"); v != nil {
		t, ok := parseDate(*v)
		if !ok {
			return UpdateBillRequest{}, nil, nil, fmt.Errorf("invalid bill date")
		}
		req.BillDate = &t
	}
	if v := strField("dueDate"); v != nil {
		if *v == "" {
			req.ClearDueDate = true
		} else if t, ok := parseDate(*v); ok {
			req.DueDate = &t
		} else {
			return UpdateBillRequest{}, nil, nil, fmt.Errorf("invalid due date")
		}
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			return req, nil, nil, nil
		}
		return UpdateBillRequest{}, nil, nil, fmt.Errorf("read attachment: %w", err)
	}
	return req, file, header, nil
}

// billView augments the stored bill with the derived ledger fields.
type billView struct {
	Bill
	PaidAmount    float64 `json:"paidAmount"`
	PendingAmount float64 `json:"pendingAmount"`
	PaymentStatus Status  `json:"paymentStatus"`
	IsOverdue     bool    `json:"isOverdue"`
	Status        Status  `json:"status"`
}

type listResponse struct {
	Bills      []billView        `json:"bills"`
	Pagination shared.Pagination `json:"pagination"`
}

func (h *Handler) present(bills []Bill) []billView {
	now := time.Now()
	views := make([]billView, 0, len(bills))
	for i := range bills {
		views = append(views, newBillView(&bills[i], now))
	}
	return views
}

func (h *Handler) presentOne(bill *Bill) billView {
	return newBillView(bill, time.Now())
}

func newBillView(b *Bill, now time.Time) billView {
	return billView{
		Bill:          *b,
		PaidAmount:    b.PaidAmount(),
		PendingAmount: b.PendingAmount(),
		PaymentStatus: b.PaymentStatus(),
		IsOverdue:     b.IsOverdue(now),
		Status:        b.EffectiveStatus(now),
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
