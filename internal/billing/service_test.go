package billing

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapledger/scrapledger/internal/attachment"
	"github.com/scrapledger/scrapledger/internal/platform/httpx"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// ============================================================================
// MOCK REPOSITORY
// ============================================================================

type mockRepository struct {
	bills         map[int64]*Bill
	payments      map[int64][]Payment
	nextBillID    int64
	nextPaymentID int64
}

func newMockRepository() *mockRepository {
	return &mockRepository{
		bills:         make(map[int64]*Bill),
		payments:      make(map[int64][]Payment),
		nextBillID:    1,
		nextPaymentID: 1,
	}
}

func (m *mockRepository) Create(ctx context.Context, bill *Bill) (int64, error) {
	id := m.nextBillID
	m.nextBillID++
	stored := *bill
	stored.ID = id
	stored.CreatedAt = time.Now()
	stored.UpdatedAt = stored.CreatedAt
	m.bills[id] = &stored
	return id, nil
}

func (m *mockRepository) Get(ctx context.Context, ownerID int64, kind Kind, id int64) (*Bill, error) {
	b, ok := m.bills[id]
	if !ok || b.OwnerID != ownerID || b.Kind != kind {
		return nil, shared.ErrNotFound
	}
	out := *b
	out.Payments = append([]Payment{}, m.payments[id]...)
	return &out, nil
}

func (m *mockRepository) Update(ctx context.Context, bill *Bill) error {
	b, ok := m.bills[bill.ID]
	if !ok || b.OwnerID != bill.OwnerID || b.Kind != bill.Kind {
		return shared.ErrNotFound
	}
	stored := *bill
	stored.Payments = nil
	m.bills[bill.ID] = &stored
	return nil
}

func (m *mockRepository) Delete(ctx context.Context, ownerID int64, kind Kind, id int64) error {
	b, ok := m.bills[id]
	if !ok || b.OwnerID != ownerID || b.Kind != kind {
		return shared.ErrNotFound
	}
	delete(m.bills, id)
	delete(m.payments, id)
	return nil
}

func (m *mockRepository) List(ctx context.Context, ownerID int64, kind Kind, filters ListFilters, page shared.Pagination) ([]Bill, int, error) {
	all, err := m.ListAll(ctx, ownerID, kind, filters)
	if err != nil {
		return nil, 0, err
	}
	total := len(all)
	start := page.Offset()
	if start > total {
		start = total
	}
	end := start + page.PerPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *mockRepository) ListAll(ctx context.Context, ownerID int64, kind Kind, filters ListFilters) ([]Bill, error) {
	var out []Bill
	for id := int64(1); id < m.nextBillID; id++ {
		b, ok := m.bills[id]
		if !ok || b.OwnerID != ownerID || b.Kind != kind {
			continue
		}
		if filters.FinancialYear != "" && b.FinancialYear != filters.FinancialYear {
			continue
		}
		if filters.PartyID > 0 && b.PartyID != filters.PartyID {
			continue
		}
		bill := *b
		bill.Payments = append([]Payment{}, m.payments[id]...)
		out = append(out, bill)
	}
	return out, nil
}

func (m *mockRepository) AddPayment(ctx context.Context, billID int64, payment Payment) (int64, error) {
	payment.ID = m.nextPaymentID
	m.nextPaymentID++
	m.payments[billID] = append(m.payments[billID], payment)
	return payment.ID, nil
}

func (m *mockRepository) DeletePayment(ctx context.Context, billID, paymentID int64) error {
	list := m.payments[billID]
	for i, p := range list {
		if p.ID == paymentID {
			m.payments[billID] = append(list[:i], list[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *mockRepository) CountByParty(ctx context.Context, ownerID, partyID int64) (int, error) {
	count := 0
	for _, b := range m.bills {
		if b.OwnerID == ownerID && b.PartyID == partyID {
			count++
		}
	}
	return count, nil
}

// recordingStore counts attachment deletions and can fail on demand.
type recordingStore struct {
	deleted   []string
	deleteErr error
}

func (s *recordingStore) Put(ctx context.Context, filename, contentType string, body io.Reader) (attachment.Object, error) {
	return attachment.Object{URL: "https://cdn/" + filename, StorageID: "bills/" + filename}, nil
}

func (s *recordingStore) Delete(ctx context.Context, storageID string) error {
	s.deleted = append(s.deleted, storageID)
	return s.deleteErr
}

// ============================================================================
// TESTS
// ============================================================================

const owner int64 = 7

func newTestService() (*Service, *mockRepository, *recordingStore) {
	repo := newMockRepository()
	store := &recordingStore{}
	return NewService(repo, store, nil, nil), repo, store
}

func createRequest() CreateBillRequest {
	return CreateBillRequest{
		BillNumber:    "PB-001",
		PartyID:       3,
		MaterialType:  "Copper",
		Weight:        100,
		WeightUnit:    "kg",
		RatePerKg:     50,
		TaxableAmount: 5000,
		GSTType:       "CGST_SGST",
		GSTPercent:    18,
		BillDate:      time.Date(2025, time.June, 10, 0, 0, 0, 0, time.UTC),
	}
}

func TestCreateComputesGSTAndFiscalYear(t *testing.T) {
	svc, _, _ := newTestService()

	bill, err := svc.Create(context.Background(), owner, KindPurchase, createRequest())
	require.NoError(t, err)

	assert.Equal(t, "2025-2026", bill.FinancialYear)
	assert.Equal(t, 900.0, bill.CGSTAmount)
	assert.Equal(t, 900.0, bill.SGSTAmount)
	assert.Equal(t, 1800.0, bill.TotalGSTAmount)
	assert.Equal(t, 5900.0, bill.TotalAmount)
	assert.Empty(t, bill.Payments)
}

func TestCreateValidation(t *testing.T) {
	svc, _, _ := newTestService()

	req := createRequest()
	req.BillNumber = " "
	_, err := svc.Create(context.Background(), owner, KindSale, req)
	assert.ErrorIs(t, err, httpx.ErrValidation)

	req = createRequest()
	req.Weight = 0
	_, err = svc.Create(context.Background(), owner, KindSale, req)
	assert.ErrorIs(t, err, httpx.ErrValidation)
}

func TestUpdateMergesBeforeGSTRecompute(t *testing.T) {
	svc, _, _ := newTestService()
	bill, err := svc.Create(context.Background(), owner, KindPurchase, createRequest())
	require.NoError(t, err)

	// Changing only gstPercent must reuse the stored taxable amount and
	// regime.
	pct := 12.0
	updated, err := svc.Update(context.Background(), owner, KindPurchase, bill.ID, UpdateBillRequest{GSTPercent: &pct})
	require.NoError(t, err)

	assert.Equal(t, 5000.0, updated.TaxableAmount)
	assert.Equal(t, 600.0, updated.TotalGSTAmount)
	assert.Equal(t, 300.0, updated.CGSTAmount)
	assert.Equal(t, 5600.0, updated.TotalAmount)
}

func TestUpdateBillDateRecomputesFiscalYear(t *testing.T) {
	svc, _, _ := newTestService()
	bill, err := svc.Create(context.Background(), owner, KindSale, createRequest())
	require.NoError(t, err)

	boundary := time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC)
	updated, err := svc.Update(context.Background(), owner, KindSale, bill.ID, UpdateBillRequest{BillDate: &boundary})
	require.NoError(t, err)
	assert.Equal(t, "2024-2025", updated.FinancialYear)
}

func TestUpdateReplacesAttachmentBestEffort(t *testing.T) {
	svc, _, store := newTestService()
	req := createRequest()
	req.Attachment = Attachment{URL: "https://cdn/old.pdf", StorageID: "bills/old.pdf"}
	bill, err := svc.Create(context.Background(), owner, KindPurchase, req)
	require.NoError(t, err)

	store.deleteErr = errors.New("cdn down")
	next := &Attachment{URL: "https://cdn/new.pdf", StorageID: "bills/new.pdf"}
	updated, err := svc.Update(context.Background(), owner, KindPurchase, bill.ID, UpdateBillRequest{Attachment: next})
	require.NoError(t, err, "failed release must not fail the update")

	assert.Equal(t, []string{"bills/old.pdf"}, store.deleted)
	assert.Equal(t, "bills/new.pdf", updated.Attachment.StorageID)
}

func TestUpdateRejectedByValidationKeepsAttachment(t *testing.T) {
	svc, _, store := newTestService()
	req := createRequest()
	req.Attachment = Attachment{URL: "https://cdn/old.pdf", StorageID: "bills/old.pdf"}
	bill, err := svc.Create(context.Background(), owner, KindPurchase, req)
	require.NoError(t, err)

	blank := " "
	next := &Attachment{URL: "https://cdn/new.pdf", StorageID: "bills/new.pdf"}
	_, err = svc.Update(context.Background(), owner, KindPurchase, bill.ID, UpdateBillRequest{
		BillNumber: &blank,
		Attachment: next,
	})
	assert.ErrorIs(t, err, httpx.ErrValidation)

	// The aborted update must not have released the stored document.
	assert.Empty(t, store.deleted)
	current, err := svc.Get(context.Background(), owner, KindPurchase, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, "bills/old.pdf", current.Attachment.StorageID)
	assert.Equal(t, "PB-001", current.BillNumber)
}

func TestDeleteReleasesAttachment(t *testing.T) {
	svc, repo, store := newTestService()
	req := createRequest()
	req.Attachment = Attachment{URL: "https://cdn/doc.pdf", StorageID: "bills/doc.pdf"}
	bill, err := svc.Create(context.Background(), owner, KindPurchase, req)
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), owner, KindPurchase, bill.ID))
	assert.Equal(t, []string{"bills/doc.pdf"}, store.deleted)
	assert.Empty(t, repo.bills)
}

func TestGetScopedToOwner(t *testing.T) {
	svc, _, _ := newTestService()
	bill, err := svc.Create(context.Background(), owner, KindPurchase, createRequest())
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), owner+1, KindPurchase, bill.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)

	// Kind is part of the identity: a purchase is not reachable as a sale.
	_, err = svc.Get(context.Background(), owner, KindSale, bill.ID)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestPaymentFlow(t *testing.T) {
	svc, _, _ := newTestService()
	bill, err := svc.Create(context.Background(), owner, KindPurchase, createRequest())
	require.NoError(t, err)
	require.Equal(t, 5900.0, bill.TotalAmount)

	bill, err = svc.AddPayment(context.Background(), owner, KindPurchase, bill.ID, Payment{Amount: 3000})
	require.NoError(t, err)
	assert.Equal(t, 3000.0, bill.PaidAmount())
	assert.Equal(t, 2900.0, bill.PendingAmount())
	assert.Equal(t, StatusPartial, bill.PaymentStatus())

	bill, err = svc.AddPayment(context.Background(), owner, KindPurchase, bill.ID, Payment{Amount: 2900})
	require.NoError(t, err)
	assert.Equal(t, StatusPaid, bill.PaymentStatus())
	assert.Equal(t, 0.0, bill.PendingAmount())
}

func TestAddPaymentRejectsNonPositiveAmount(t *testing.T) {
	svc, _, _ := newTestService()
	bill, err := svc.Create(context.Background(), owner, KindSale, createRequest())
	require.NoError(t, err)

	for _, amount := range []float64{0, -10} {
		_, err := svc.AddPayment(context.Background(), owner, KindSale, bill.ID, Payment{Amount: amount})
		assert.ErrorIs(t, err, httpx.ErrValidation)
	}
}

func TestDeletePayment(t *testing.T) {
	svc, _, _ := newTestService()
	bill, err := svc.Create(context.Background(), owner, KindPurchase, createRequest())
	require.NoError(t, err)

	bill, err = svc.AddPayment(context.Background(), owner, KindPurchase, bill.ID, Payment{Amount: 1000})
	require.NoError(t, err)
	require.Len(t, bill.Payments, 1)

	bill, err = svc.DeletePayment(context.Background(), owner, KindPurchase, bill.ID, bill.Payments[0].ID)
	require.NoError(t, err)
	assert.Empty(t, bill.Payments)
	assert.Equal(t, StatusPending, bill.PaymentStatus())

	_, err = svc.DeletePayment(context.Background(), owner, KindPurchase, bill.ID, 999)
	assert.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestListStatusFilterKeepsUnfilteredTotal(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	paidBill, err := svc.Create(ctx, owner, KindSale, createRequest())
	require.NoError(t, err)
	_, err = svc.AddPayment(ctx, owner, KindSale, paidBill.ID, Payment{Amount: 5900})
	require.NoError(t, err)

	req := createRequest()
	req.BillNumber = "PB-002"
	_, err = svc.Create(ctx, owner, KindSale, req)
	require.NoError(t, err)

	bills, pagination, err := svc.List(ctx, owner, KindSale, ListFilters{Status: StatusPaid}, shared.NewPagination(1, 50, 0))
	require.NoError(t, err)

	// One bill matches the status, but total still counts both: the status
	// filter runs after the fetch.
	assert.Len(t, bills, 1)
	assert.Equal(t, StatusPaid, bills[0].EffectiveStatus(time.Now()))
	assert.Equal(t, 2, pagination.Total)
}
