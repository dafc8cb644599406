// Package lot groups purchase and sale bill allocations into material
// batches and reconciles their weight, cost, revenue and profit.
package lot

import (
	"math"
	"time"

	"github.com/scrapledger/scrapledger/internal/billing"
)

// Status classifies how much of a lot's purchased weight has been sold.
type Status string

const (
	StatusUnsold    Status = "Unsold"
	StatusPartial   Status = "Partial"
	StatusFullySold Status = "Fully Sold"
)

// ParseStatus returns the status named by s, or "" when unknown.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusUnsold, StatusPartial, StatusFullySold:
		return Status(s)
	default:
		return ""
	}
}

// LinkBill is the slice of the referenced bill embedded into link results.
type LinkBill struct {
	ID            int64     `json:"id"`
	BillNumber    string    `json:"billNumber"`
	PartyName     string    `json:"partyName,omitempty"`
	PartyMobile   string    `json:"partyMobile,omitempty"`
	BillDate      time.Time `json:"billDate"`
	FinancialYear string    `json:"financialYear"`
	TotalAmount   float64   `json:"totalAmount"`
}

// Link allocates part of a bill to a lot. Weight, rate and amount belong
// to the allocation, not the bill, so one bill can be split across lots.
type Link struct {
	ID     int64    `json:"id"`
	BillID int64    `json:"transactionId"`
	Weight float64  `json:"weight"`
	Rate   float64  `json:"rate"`
	Amount float64  `json:"amount"`
	Bill   LinkBill `json:"bill"`
}

// Lot is one material batch with its purchase and sale allocations.
type Lot struct {
	ID            int64     `json:"id"`
	LotNumber     string    `json:"lotNumber"`
	MaterialType  string    `json:"materialType"`
	FinancialYear string    `json:"financialYear"`
	Description   string    `json:"description,omitempty"`
	Purchases     []Link    `json:"purchases"`
	Sales         []Link    `json:"sales"`
	OwnerID       int64     `json:"-"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TotalPurchaseCost sums the purchase allocation amounts.
func (l *Lot) TotalPurchaseCost() float64 {
	var sum float64
	for _, p := range l.Purchases {
		sum += p.Amount
	}
	return sum
}

// TotalPurchaseWeight sums the purchase allocation weights.
func (l *Lot) TotalPurchaseWeight() float64 {
	var sum float64
	for _, p := range l.Purchases {
		sum += p.Weight
	}
	return sum
}

// TotalSaleRevenue sums the sale allocation amounts.
func (l *Lot) TotalSaleRevenue() float64 {
	var sum float64
	for _, s := range l.Sales {
		sum += s.Amount
	}
	return sum
}

// TotalSaleWeight sums the sale allocation weights.
func (l *Lot) TotalSaleWeight() float64 {
	var sum float64
	for _, s := range l.Sales {
		sum += s.Weight
	}
	return sum
}

// Profit is revenue minus cost for this lot's allocations.
func (l *Lot) Profit() float64 {
	return l.TotalSaleRevenue() - l.TotalPurchaseCost()
}

// ProfitPercent is profit relative to cost, rounded to two decimals.
// Zero when there is no purchase cost, guarding the division.
func (l *Lot) ProfitPercent() float64 {
	cost := l.TotalPurchaseCost()
	if cost == 0 {
		return 0
	}
	return math.Round(l.Profit()/cost*100*100) / 100
}

// WeightDifference is sold minus purchased weight. Positive means more
// weight left the yard than came in; a data-quality signal, not clamped.
func (l *Lot) WeightDifference() float64 {
	return l.TotalSaleWeight() - l.TotalPurchaseWeight()
}

// Status derives the sell-through state from the allocation weights.
func (l *Lot) Status() Status {
	sold := l.TotalSaleWeight()
	if sold == 0 {
		return StatusUnsold
	}
	if sold >= l.TotalPurchaseWeight() {
		return StatusFullySold
	}
	return StatusPartial
}

// linked reports whether the bill already has an allocation of the given
// kind in this lot.
func (l *Lot) linked(kind billing.Kind, billID int64) bool {
	links := l.Purchases
	if kind == billing.KindSale {
		links = l.Sales
	}
	for _, ln := range links {
		if ln.BillID == billID {
			return true
		}
	}
	return false
}
