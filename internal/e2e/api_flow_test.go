package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapledger/scrapledger/internal/app"
	"github.com/scrapledger/scrapledger/internal/attachment"
	"github.com/scrapledger/scrapledger/internal/auth"
	"github.com/scrapledger/scrapledger/internal/billing"
	"github.com/scrapledger/scrapledger/internal/dashboard"
	"github.com/scrapledger/scrapledger/internal/lot"
	"github.com/scrapledger/scrapledger/internal/party"
	"github.com/scrapledger/scrapledger/internal/report"
	"github.com/scrapledger/scrapledger/internal/shared"
)

// In-memory repositories so the whole HTTP surface can be exercised
// without postgres. Redis is real (miniredis) since sessions and the
// dashboard cache depend on its semantics.

type memAuthRepo struct {
	users   map[int64]*auth.User
	byEmail map[string]int64
	nextID  int64
}

func newMemAuthRepo() *memAuthRepo {
	return &memAuthRepo{users: map[int64]*auth.User{}, byEmail: map[string]int64{}, nextID: 1}
}

func (m *memAuthRepo) CreateUser(ctx context.Context, u *auth.User) (int64, error) {
	if _, ok := m.byEmail[u.Email]; ok {
		return 0, auth.ErrEmailTaken
	}
	cp := *u
	cp.ID = m.nextID
	cp.IsActive = true
	m.nextID++
	m.users[cp.ID] = &cp
	m.byEmail[cp.Email] = cp.ID
	return cp.ID, nil
}

func (m *memAuthRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	id, ok := m.byEmail[email]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m.users[id], nil
}

func (m *memAuthRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (m *memAuthRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	return nil
}

func (m *memAuthRepo) DeleteSession(ctx context.Context, id string) error { return nil }

type memPartyRepo struct {
	parties map[int64]party.Party
	nextID  int64
}

func newMemPartyRepo() *memPartyRepo {
	return &memPartyRepo{parties: map[int64]party.Party{}, nextID: 1}
}

func (m *memPartyRepo) Create(ctx context.Context, p party.Party) (int64, error) {
	p.ID = m.nextID
	m.nextID++
	m.parties[p.ID] = p
	return p.ID, nil
}

func (m *memPartyRepo) Get(ctx context.Context, ownerID, id int64) (party.Party, error) {
	p, ok := m.parties[id]
	if !ok || p.OwnerID != ownerID {
		return party.Party{}, shared.ErrNotFound
	}
	return p, nil
}

func (m *memPartyRepo) Update(ctx context.Context, p party.Party) error {
	existing, ok := m.parties[p.ID]
	if !ok || existing.OwnerID != p.OwnerID {
		return shared.ErrNotFound
	}
	m.parties[p.ID] = p
	return nil
}

func (m *memPartyRepo) Delete(ctx context.Context, ownerID, id int64) error {
	p, ok := m.parties[id]
	if !ok || p.OwnerID != ownerID {
		return shared.ErrNotFound
	}
	delete(m.parties, id)
	return nil
}

func (m *memPartyRepo) List(ctx context.Context, ownerID int64, filters party.ListFilters) ([]party.Party, error) {
	var out []party.Party
	for _, p := range m.parties {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out, nil
}

type memBillRepo struct {
	bills      map[int64]*billing.Bill
	nextID     int64
	nextPayID  int64
	partyNames map[int64]string
}

func newMemBillRepo() *memBillRepo {
	return &memBillRepo{bills: map[int64]*billing.Bill{}, nextID: 1, nextPayID: 1, partyNames: map[int64]string{}}
}

func (m *memBillRepo) Create(ctx context.Context, b *billing.Bill) (int64, error) {
	cp := *b
	cp.ID = m.nextID
	m.nextID++
	cp.PartyName = m.partyNames[cp.PartyID]
	m.bills[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memBillRepo) Get(ctx context.Context, ownerID int64, kind billing.Kind, id int64) (*billing.Bill, error) {
	b, ok := m.bills[id]
	if !ok || b.OwnerID != ownerID || b.Kind != kind {
		return nil, shared.ErrNotFound
	}
	cp := *b
	cp.Payments = append([]billing.Payment(nil), b.Payments...)
	return &cp, nil
}

func (m *memBillRepo) Update(ctx context.Context, b *billing.Bill) error {
	existing, ok := m.bills[b.ID]
	if !ok || existing.OwnerID != b.OwnerID {
		return shared.ErrNotFound
	}
	payments := existing.Payments
	cp := *b
	cp.Payments = payments
	m.bills[b.ID] = &cp
	return nil
}

func (m *memBillRepo) Delete(ctx context.Context, ownerID int64, kind billing.Kind, id int64) error {
	b, ok := m.bills[id]
	if !ok || b.OwnerID != ownerID || b.Kind != kind {
		return shared.ErrNotFound
	}
	delete(m.bills, id)
	return nil
}

func (m *memBillRepo) List(ctx context.Context, ownerID int64, kind billing.Kind, filters billing.ListFilters, page shared.Pagination) ([]billing.Bill, int, error) {
	all, err := m.ListAll(ctx, ownerID, kind, filters)
	if err != nil {
		return nil, 0, err
	}
	return all, len(all), nil
}

func (m *memBillRepo) ListAll(ctx context.Context, ownerID int64, kind billing.Kind, filters billing.ListFilters) ([]billing.Bill, error) {
	var out []billing.Bill
	for _, b := range m.bills {
		if b.OwnerID != ownerID || b.Kind != kind {
			continue
		}
		if filters.FinancialYear != "" && b.FinancialYear != filters.FinancialYear {
			continue
		}
		if filters.PartyID != 0 && b.PartyID != filters.PartyID {
			continue
		}
		out = append(out, *b)
	}
	return out, nil
}

func (m *memBillRepo) AddPayment(ctx context.Context, billID int64, p billing.Payment) (int64, error) {
	b, ok := m.bills[billID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	p.ID = m.nextPayID
	m.nextPayID++
	b.Payments = append(b.Payments, p)
	return p.ID, nil
}

func (m *memBillRepo) DeletePayment(ctx context.Context, billID, paymentID int64) error {
	b, ok := m.bills[billID]
	if !ok {
		return shared.ErrNotFound
	}
	for i, p := range b.Payments {
		if p.ID == paymentID {
			b.Payments = append(b.Payments[:i], b.Payments[i+1:]...)
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memBillRepo) CountByParty(ctx context.Context, ownerID, partyID int64) (int, error) {
	count := 0
	for _, b := range m.bills {
		if b.OwnerID == ownerID && b.PartyID == partyID {
			count++
		}
	}
	return count, nil
}

func newTestServer(t *testing.T) (*httptest.Server, *memBillRepo) {
	t.Helper()

	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	cfg := &app.Config{AppEnv: "test", AppRequestTimeout: 10 * time.Second}

	sessions := shared.NewSessionManager(redisClient, "scrapledger_session", "e2e-secret", time.Hour, false)
	cache := dashboard.NewCache(redisClient, time.Minute)

	authService := auth.NewService(newMemAuthRepo())
	billRepo := newMemBillRepo()
	billingService := billing.NewService(billRepo, attachment.Noop{}, cache, logger)
	partyRepo := newMemPartyRepo()
	partyService := party.NewService(partyRepo, billingService)

	lotService := lot.NewService(newMemLotRepo(), billingService)
	dashboardService := dashboard.NewService(billingService, cache)

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		SessionManager:   sessions,
		AuthHandler:      auth.NewHandler(logger, authService, sessions),
		PartyHandler:     party.NewHandler(logger, partyService),
		BillingHandler:   billing.NewHandler(logger, billingService, attachment.Noop{}),
		LotHandler:       lot.NewHandler(logger, lotService),
		DashboardHandler: dashboard.NewHandler(logger, dashboardService, nil),
		ReportHandler:    report.NewHandler(logger, billingService),
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv, billRepo
}

type memLotRepo struct {
	lots   map[int64]*lot.Lot
	nextID int64
}

func newMemLotRepo() *memLotRepo {
	return &memLotRepo{lots: map[int64]*lot.Lot{}, nextID: 1}
}

func (m *memLotRepo) Create(ctx context.Context, l *lot.Lot) (int64, error) {
	cp := *l
	cp.ID = m.nextID
	m.nextID++
	m.lots[cp.ID] = &cp
	return cp.ID, nil
}

func (m *memLotRepo) Get(ctx context.Context, ownerID, id int64) (*lot.Lot, error) {
	l, ok := m.lots[id]
	if !ok || l.OwnerID != ownerID {
		return nil, shared.ErrNotFound
	}
	cp := *l
	return &cp, nil
}

func (m *memLotRepo) Update(ctx context.Context, l *lot.Lot) error {
	if _, ok := m.lots[l.ID]; !ok {
		return shared.ErrNotFound
	}
	m.lots[l.ID] = l
	return nil
}

func (m *memLotRepo) Delete(ctx context.Context, ownerID, id int64) error {
	delete(m.lots, id)
	return nil
}

func (m *memLotRepo) List(ctx context.Context, ownerID int64, filters lot.ListFilters) ([]lot.Lot, error) {
	var out []lot.Lot
	for _, l := range m.lots {
		if l.OwnerID == ownerID {
			out = append(out, *l)
		}
	}
	return out, nil
}

func (m *memLotRepo) AddLink(ctx context.Context, lotID int64, kind billing.Kind, link lot.Link) (int64, error) {
	l, ok := m.lots[lotID]
	if !ok {
		return 0, shared.ErrNotFound
	}
	if kind == billing.KindSale {
		l.Sales = append(l.Sales, link)
	} else {
		l.Purchases = append(l.Purchases, link)
	}
	return int64(len(l.Purchases) + len(l.Sales)), nil
}

func (m *memLotRepo) RemoveLink(ctx context.Context, lotID int64, kind billing.Kind, linkID int64) error {
	return shared.ErrNotFound
}

// client carries the session cookie between requests.
type client struct {
	t       *testing.T
	base    string
	http    *http.Client
	cookies []*http.Cookie
}

func newClient(t *testing.T, base string) *client {
	return &client{t: t, base: base, http: &http.Client{}}
}

func (c *client) do(method, path, contentType string, body io.Reader) *http.Response {
	c.t.Helper()
	req, err := http.NewRequest(method, c.base+path, body)
	require.NoError(c.t, err)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for _, ck := range c.cookies {
		req.AddCookie(ck)
	}
	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	if set := resp.Cookies(); len(set) > 0 {
		c.cookies = set
	}
	return resp
}

func (c *client) postJSON(path string, payload any) *http.Response {
	data, err := json.Marshal(payload)
	require.NoError(c.t, err)
	return c.do(http.MethodPost, path, "application/json", bytes.NewReader(data))
}

func decode(t *testing.T, resp *http.Response, dest any) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dest))
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIRequiresAuth(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/api/parties")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestRegisterCreateBillAndDashboard(t *testing.T) {
	srv, _ := newTestServer(t)
	c := newClient(t, srv.URL)

	resp := c.postJSON("/api/auth/register", map[string]string{
		"name":     "Ravi",
		"email":    "ravi@example.com",
		"password": "correct horse",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()
	require.NotEmpty(t, c.cookies, "register must establish a session")

	resp = c.postJSON("/api/parties", map[string]string{"name": "Gupta Metals", "type": "supplier"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var createdParty struct {
		ID int64 `json:"id"`
	}
	decode(t, resp, &createdParty)

	var form bytes.Buffer
	mw := multipart.NewWriter(&form)
	fields := map[string]string{
		"billNumber":    "PB-001",
		"party":         fmt.Sprintf("%d", createdParty.ID),
		"materialType":  "Copper",
		"weight":        "500",
		"ratePerKg":     "50",
		"taxableAmount": "25000",
		"gstType":       "CGST_SGST",
		"gstPercent":    "18",
		"billDate":      "2025-06-10",
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	resp = c.do(http.MethodPost, "/api/purchases", mw.FormDataContentType(), &form)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var createdBill struct {
		ID            int64   `json:"id"`
		TotalAmount   float64 `json:"totalAmount"`
		FinancialYear string  `json:"financialYear"`
		Status        string  `json:"status"`
	}
	decode(t, resp, &createdBill)
	assert.Equal(t, 29500.0, createdBill.TotalAmount)
	assert.Equal(t, "2025-2026", createdBill.FinancialYear)
	assert.Equal(t, "Pending", createdBill.Status)

	resp = c.postJSON(fmt.Sprintf("/api/purchases/%d/payments", createdBill.ID), map[string]any{
		"amount": 29500.0,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var paidBill struct {
		Status string `json:"status"`
	}
	decode(t, resp, &paidBill)
	assert.Equal(t, "Paid", paidBill.Status)

	resp = c.do(http.MethodGet, "/api/dashboard?financialYear=2025-2026", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var summary dashboard.Summary
	decode(t, resp, &summary)
	assert.Equal(t, 29500.0, summary.Totals.TotalPurchase)
	assert.Equal(t, 0.0, summary.Totals.Payables)

	resp = c.do(http.MethodGet, "/api/reports/purchases.csv?financialYear=2025-2026", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "purchases-2025-2026.csv")
	assert.Contains(t, string(body), "PB-001")
	assert.True(t, strings.Contains(string(body), "Paid"))
}
