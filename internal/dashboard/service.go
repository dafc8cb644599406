// Package dashboard aggregates an owner's purchase and sale bills into
// the summary views the home screen renders.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/scrapledger/scrapledger/internal/billing"
)

const topPartyLimit = 5

// BillBook is the slice of the billing service the aggregator reads from.
type BillBook interface {
	ListAll(ctx context.Context, ownerID int64, kind billing.Kind, filters billing.ListFilters) ([]billing.Bill, error)
}

// Totals carries the headline figures.
type Totals struct {
	TotalPurchase float64 `json:"totalPurchase"`
	TotalSale     float64 `json:"totalSale"`
	PaidPurchase  float64 `json:"paidPurchase"`
	PaidSale      float64 `json:"paidSale"`
	Payables      float64 `json:"payables"`
	Receivables   float64 `json:"receivables"`
	Profit        float64 `json:"profit"`
}

// MonthBucket is one slot of the fiscal-ordered monthly series.
type MonthBucket struct {
	Month     string  `json:"month"`
	Purchases float64 `json:"purchases"`
	Sales     float64 `json:"sales"`
}

// MaterialSummary totals one material type across both sides.
type MaterialSummary struct {
	MaterialType string  `json:"materialType"`
	Purchases    float64 `json:"purchases"`
	Sales        float64 `json:"sales"`
	Profit       float64 `json:"profit"`
}

// PartySummary is one row of the top-parties board.
type PartySummary struct {
	PartyID   int64   `json:"partyId"`
	PartyName string  `json:"partyName"`
	Total     float64 `json:"total"`
}

// StatusCounts buckets bills by effective payment status.
type StatusCounts struct {
	Paid    int `json:"paid"`
	Partial int `json:"partial"`
	Pending int `json:"pending"`
	Overdue int `json:"overdue"`
}

// Summary is the complete dashboard payload.
type Summary struct {
	Totals          Totals            `json:"totals"`
	Monthly         []MonthBucket     `json:"monthlyData"`
	Materials       []MaterialSummary `json:"materialWise"`
	TopParties      []PartySummary    `json:"topParties"`
	PurchaseStatus  StatusCounts      `json:"purchaseStatus"`
	SaleStatus      StatusCounts      `json:"saleStatus"`
	FinancialYear   string            `json:"financialYear,omitempty"`
	GeneratedAtUnix int64             `json:"generatedAt"`
}

// Service builds dashboard summaries, consulting the cache first.
type Service struct {
	bills BillBook
	cache *Cache
	now   func() time.Time
}

// NewService constructs the aggregator.
func NewService(bills BillBook, cache *Cache) *Service {
	return &Service{bills: bills, cache: cache, now: time.Now}
}

// Summary returns the owner's dashboard, optionally narrowed to one
// financial year. Cached per owner and year under the current version.
func (s *Service) Summary(ctx context.Context, ownerID int64, financialYear string) (Summary, error) {
	key, err := s.cache.SummaryKey(ctx, ownerID, financialYear)
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: cache key: %w", err)
	}
	var out Summary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (interface{}, error) {
		return s.build(ctx, ownerID, financialYear)
	})
	if err != nil {
		return Summary{}, err
	}
	return out, nil
}

func (s *Service) build(ctx context.Context, ownerID int64, financialYear string) (Summary, error) {
	filters := billing.ListFilters{FinancialYear: financialYear}
	purchases, err := s.bills.ListAll(ctx, ownerID, billing.KindPurchase, filters)
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: load purchases: %w", err)
	}
	sales, err := s.bills.ListAll(ctx, ownerID, billing.KindSale, filters)
	if err != nil {
		return Summary{}, fmt.Errorf("dashboard: load sales: %w", err)
	}
	summary := BuildSummary(purchases, sales, s.now())
	summary.FinancialYear = financialYear
	return summary, nil
}

// BuildSummary aggregates already-loaded bills into a Summary. Pure, so
// it can be exercised without storage.
func BuildSummary(purchases, sales []billing.Bill, now time.Time) Summary {
	var sum Summary
	sum.GeneratedAtUnix = now.Unix()

	for i := range purchases {
		b := &purchases[i]
		sum.Totals.TotalPurchase += b.TotalAmount
		sum.Totals.PaidPurchase += b.PaidAmount()
		countStatus(&sum.PurchaseStatus, b.EffectiveStatus(now))
	}
	for i := range sales {
		b := &sales[i]
		sum.Totals.TotalSale += b.TotalAmount
		sum.Totals.PaidSale += b.PaidAmount()
		countStatus(&sum.SaleStatus, b.EffectiveStatus(now))
	}
	sum.Totals.Payables = sum.Totals.TotalPurchase - sum.Totals.PaidPurchase
	sum.Totals.Receivables = sum.Totals.TotalSale - sum.Totals.PaidSale
	sum.Totals.Profit = sum.Totals.TotalSale - sum.Totals.TotalPurchase

	sum.Monthly = monthlySeries(purchases, sales)
	sum.Materials = materialSummaries(purchases, sales)
	sum.TopParties = topParties(purchases, sales)
	return sum
}

func countStatus(c *StatusCounts, status billing.Status) {
	switch status {
	case billing.StatusPaid:
		c.Paid++
	case billing.StatusPartial:
		c.Partial++
	case billing.StatusOverdue:
		c.Overdue++
	default:
		c.Pending++
	}
}

// fiscalMonths orders the series April through March.
var fiscalMonths = [12]time.Month{
	time.April, time.May, time.June, time.July, time.August, time.September,
	time.October, time.November, time.December, time.January, time.February, time.March,
}

// monthlySeries buckets by month-of-year regardless of the calendar
// year, so an unfiltered multi-year query folds same-month bills into
// one slot. Known simplification carried over from the reporting spec
// the frontend was built against.
func monthlySeries(purchases, sales []billing.Bill) []MonthBucket {
	byMonth := make(map[time.Month]*MonthBucket, 12)
	buckets := make([]MonthBucket, 12)
	for i, m := range fiscalMonths {
		buckets[i] = MonthBucket{Month: m.String()[:3]}
		byMonth[m] = &buckets[i]
	}
	for i := range purchases {
		byMonth[purchases[i].BillDate.Month()].Purchases += purchases[i].TotalAmount
	}
	for i := range sales {
		byMonth[sales[i].BillDate.Month()].Sales += sales[i].TotalAmount
	}
	return buckets
}

// materialSummaries groups by the exact materialType string; "Copper"
// and "copper" stay separate rows.
func materialSummaries(purchases, sales []billing.Bill) []MaterialSummary {
	byMaterial := make(map[string]*MaterialSummary)
	order := []string{}
	row := func(material string) *MaterialSummary {
		if m, ok := byMaterial[material]; ok {
			return m
		}
		m := &MaterialSummary{MaterialType: material}
		byMaterial[material] = m
		order = append(order, material)
		return m
	}
	for i := range purchases {
		row(purchases[i].MaterialType).Purchases += purchases[i].TotalAmount
	}
	for i := range sales {
		row(sales[i].MaterialType).Sales += sales[i].TotalAmount
	}
	out := make([]MaterialSummary, 0, len(order))
	for _, material := range order {
		m := byMaterial[material]
		m.Profit = m.Sales - m.Purchases
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MaterialType < out[j].MaterialType })
	return out
}

func topParties(purchases, sales []billing.Bill) []PartySummary {
	byParty := make(map[int64]*PartySummary)
	add := func(b *billing.Bill) {
		if b.PartyID == 0 {
			return
		}
		p, ok := byParty[b.PartyID]
		if !ok {
			p = &PartySummary{PartyID: b.PartyID, PartyName: b.PartyName}
			byParty[b.PartyID] = p
		}
		p.Total += b.TotalAmount
	}
	for i := range purchases {
		add(&purchases[i])
	}
	for i := range sales {
		add(&sales[i])
	}
	out := make([]PartySummary, 0, len(byParty))
	for _, p := range byParty {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Total != out[j].Total {
			return out[i].Total > out[j].Total
		}
		return out[i].PartyID < out[j].PartyID
	})
	if len(out) > topPartyLimit {
		out = out[:topPartyLimit]
	}
	return out
}
