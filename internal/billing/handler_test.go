package billing

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapledger/scrapledger/internal/shared"
)

func newTestHandler(t *testing.T) (*Service, *recordingStore, http.Handler) {
	t.Helper()
	svc, _, store := newTestService()
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, store)
	r := chi.NewRouter()
	h.MountRoutes(r)
	return svc, store, r
}

func multipartBody(t *testing.T, fields map[string]string, filename string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for name, value := range fields {
		require.NoError(t, mw.WriteField(name, value))
	}
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte("%PDF-1.4"))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func asOwner(r *http.Request, ownerID int64) *http.Request {
	sess := &shared.Session{}
	sess.SetUser(strconv.FormatInt(ownerID, 10))
	return r.WithContext(shared.ContextWithSession(r.Context(), sess))
}

func TestUpdateHandlerDiscardsUploadOnRejectedUpdate(t *testing.T) {
	svc, store, router := newTestHandler(t)

	req := createRequest()
	req.Attachment = Attachment{URL: "https://cdn/old.pdf", StorageID: "bills/old.pdf"}
	bill, err := svc.Create(context.Background(), owner, KindPurchase, req)
	require.NoError(t, err)

	// Blank bill number fails validation after the file already uploaded.
	body, contentType := multipartBody(t, map[string]string{"billNumber": " "}, "new.pdf")
	httpReq := httptest.NewRequest(http.MethodPut, fmt.Sprintf("/purchases/%d", bill.ID), body)
	httpReq.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asOwner(httpReq, owner))

	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Only the aborted upload is released; the bill keeps its document.
	assert.Equal(t, []string{"bills/new.pdf"}, store.deleted)
	current, err := svc.Get(context.Background(), owner, KindPurchase, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, "bills/old.pdf", current.Attachment.StorageID)
}

func TestCreateHandlerDiscardsUploadOnRejectedCreate(t *testing.T) {
	_, store, router := newTestHandler(t)

	// A whitespace bill number clears the form validator but is rejected
	// by the service after the file already uploaded.
	fields := map[string]string{
		"billNumber":    " ",
		"party":         "3",
		"materialType":  "Copper",
		"weight":        "100",
		"ratePerKg":     "50",
		"taxableAmount": "5000",
		"gstType":       "CGST_SGST",
		"gstPercent":    "18",
		"billDate":      "2025-06-10",
	}
	body, contentType := multipartBody(t, fields, "doc.pdf")
	httpReq := httptest.NewRequest(http.MethodPost, "/purchases", body)
	httpReq.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, asOwner(httpReq, owner))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, []string{"bills/doc.pdf"}, store.deleted)
}
