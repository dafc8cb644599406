// Package billing holds purchase and sale bills, their GST totals and the
// payment ledger derived from each bill's payment entries.
package billing

import (
	"time"

	"github.com/scrapledger/scrapledger/internal/gst"
)

// Kind is the economic direction of a bill. Purchases and sales are
// structurally identical.
type Kind string

const (
	KindPurchase Kind = "purchase"
	KindSale     Kind = "sale"
)

// Valid reports whether k names a known bill kind.
func (k Kind) Valid() bool {
	return k == KindPurchase || k == KindSale
}

// WeightUnit is the unit the bill's weight was recorded in.
type WeightUnit string

const (
	UnitKg      WeightUnit = "kg"
	UnitTon     WeightUnit = "ton"
	UnitQuintal WeightUnit = "quintal"
)

// ParseWeightUnit defaults to kg for unknown input.
func ParseWeightUnit(s string) WeightUnit {
	switch WeightUnit(s) {
	case UnitTon:
		return UnitTon
	case UnitQuintal:
		return UnitQuintal
	default:
		return UnitKg
	}
}

// PaymentMode is how a payment entry was settled.
type PaymentMode string

const (
	ModeCash   PaymentMode = "Cash"
	ModeBank   PaymentMode = "Bank"
	ModeUPI    PaymentMode = "UPI"
	ModeCheque PaymentMode = "Cheque"
)

// ParsePaymentMode defaults to Cash for unknown input.
func ParsePaymentMode(s string) PaymentMode {
	switch PaymentMode(s) {
	case ModeBank:
		return ModeBank
	case ModeUPI:
		return ModeUPI
	case ModeCheque:
		return ModeCheque
	default:
		return ModeCash
	}
}

// Attachment references a bill document held by the external store.
type Attachment struct {
	URL       string `json:"url,omitempty"`
	StorageID string `json:"storageId,omitempty"`
}

// Payment is one settlement entry against a bill. Its lifecycle is bound
// to the owning bill.
type Payment struct {
	ID          int64       `json:"id"`
	Amount      float64     `json:"amount"`
	PaymentDate time.Time   `json:"paymentDate"`
	Mode        PaymentMode `json:"mode"`
	Note        string      `json:"note,omitempty"`
	Reference   string      `json:"reference,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
}

// Bill is a purchase or sale record. GST fields are stored, recomputed on
// every mutation of taxableAmount/gstType/gstPercent; the payment ledger
// fields are derived, never stored.
type Bill struct {
	ID           int64  `json:"id"`
	Kind         Kind   `json:"kind"`
	BillNumber   string `json:"billNumber"`
	PartyID      int64  `json:"partyId"`
	PartyName    string `json:"partyName,omitempty"`
	PartyMobile  string `json:"partyMobile,omitempty"`
	PartyGSTNo   string `json:"partyGstNumber,omitempty"`
	MaterialType string `json:"materialType"`

	Weight     float64    `json:"weight"`
	WeightUnit WeightUnit `json:"weightUnit"`
	RatePerKg  float64    `json:"ratePerKg"`

	TaxableAmount  float64  `json:"taxableAmount"`
	GSTType        gst.Type `json:"gstType"`
	GSTPercent     float64  `json:"gstPercent"`
	CGSTAmount     float64  `json:"cgstAmount"`
	SGSTAmount     float64  `json:"sgstAmount"`
	IGSTAmount     float64  `json:"igstAmount"`
	TotalGSTAmount float64  `json:"totalGstAmount"`
	TotalAmount    float64  `json:"totalAmount"`

	BillDate      time.Time  `json:"billDate"`
	DueDate       *time.Time `json:"dueDate,omitempty"`
	FinancialYear string     `json:"financialYear"`

	Attachment Attachment `json:"attachment"`
	Payments   []Payment  `json:"payments"`
	Notes      string     `json:"notes,omitempty"`

	OwnerID   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// applyGST overwrites the stored tax fields from a computed breakdown.
func (b *Bill) applyGST(br gst.Breakdown) {
	b.CGSTAmount = br.CGSTAmount
	b.SGSTAmount = br.SGSTAmount
	b.IGSTAmount = br.IGSTAmount
	b.TotalGSTAmount = br.TotalGSTAmount
	b.TotalAmount = br.TotalAmount
}
