// Package gst computes Goods and Services Tax breakdowns for bills.
package gst

import (
	"math"
	"strconv"
)

// Type is the tax regime applied to a bill.
type Type string

const (
	// TypeNone disables tax computation.
	TypeNone Type = "none"
	// TypeIGST applies interstate GST as a single component.
	TypeIGST Type = "IGST"
	// TypeCGSTSGST splits intrastate GST into equal central and state halves.
	TypeCGSTSGST Type = "CGST_SGST"
)

// ParseType maps free-form input to a Type. Anything unrecognised
// behaves as TypeNone, matching how unknown regimes are billed.
func ParseType(s string) Type {
	switch Type(s) {
	case TypeIGST:
		return TypeIGST
	case TypeCGSTSGST:
		return TypeCGSTSGST
	default:
		return TypeNone
	}
}

// Valid reports whether t is one of the known regimes.
func (t Type) Valid() bool {
	return t == TypeNone || t == TypeIGST || t == TypeCGSTSGST
}

// Breakdown is the computed tax split for one bill.
type Breakdown struct {
	CGSTAmount     float64 `json:"cgstAmount"`
	SGSTAmount     float64 `json:"sgstAmount"`
	IGSTAmount     float64 `json:"igstAmount"`
	TotalGSTAmount float64 `json:"totalGstAmount"`
	TotalAmount    float64 `json:"totalAmount"`
}

// Calc derives the tax breakdown for a taxable amount under the given
// regime and percentage. Each component is rounded to two decimals
// independently; with CGST_SGST the halves are rounded separately, so
// cgst+sgst can differ from totalGst by a paisa. TotalAmount always adds
// the unhalved totalGst.
func Calc(taxable float64, typ Type, pct float64) Breakdown {
	if typ == TypeNone || !typ.Valid() || pct == 0 {
		return Breakdown{TotalAmount: taxable}
	}

	totalGST := round2(taxable * pct / 100)

	switch typ {
	case TypeIGST:
		return Breakdown{
			IGSTAmount:     totalGST,
			TotalGSTAmount: totalGST,
			TotalAmount:    taxable + totalGST,
		}
	case TypeCGSTSGST:
		half := round2(totalGST / 2)
		return Breakdown{
			CGSTAmount:     half,
			SGSTAmount:     half,
			TotalGSTAmount: totalGST,
			TotalAmount:    taxable + totalGST,
		}
	}
	return Breakdown{TotalAmount: taxable}
}

// ParseAmount parses a numeric form value; empty or invalid input is 0.
func ParseAmount(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// round2 rounds half away from zero at the second decimal.
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
