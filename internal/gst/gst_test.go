package gst

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCalcNone(t *testing.T) {
	for _, taxable := range []float64{0, 1, 999.99, 1000, 123456.78} {
		b := Calc(taxable, TypeNone, 18)
		assert.Zero(t, b.CGSTAmount)
		assert.Zero(t, b.SGSTAmount)
		assert.Zero(t, b.IGSTAmount)
		assert.Zero(t, b.TotalGSTAmount)
		assert.Equal(t, taxable, b.TotalAmount)
	}
}

func TestCalcZeroPercent(t *testing.T) {
	b := Calc(1000, TypeIGST, 0)
	assert.Equal(t, Breakdown{TotalAmount: 1000}, b)
}

func TestCalcIGST(t *testing.T) {
	b := Calc(1000, TypeIGST, 18)
	assert.Equal(t, 180.0, b.IGSTAmount)
	assert.Equal(t, 180.0, b.TotalGSTAmount)
	assert.Equal(t, 1180.0, b.TotalAmount)
	assert.Zero(t, b.CGSTAmount)
	assert.Zero(t, b.SGSTAmount)
}

func TestCalcCGSTSGST(t *testing.T) {
	b := Calc(1000, TypeCGSTSGST, 18)
	assert.Equal(t, 90.0, b.CGSTAmount)
	assert.Equal(t, 90.0, b.SGSTAmount)
	assert.Equal(t, 180.0, b.TotalGSTAmount)
	assert.Equal(t, 1180.0, b.TotalAmount)
	assert.Zero(t, b.IGSTAmount)
}

// The halves round independently, so cgst+sgst may differ from totalGst
// by 0.01. TotalAmount must still use the unhalved totalGst.
func TestCalcCGSTSGSTRoundingMismatch(t *testing.T) {
	b := Calc(150.3, TypeCGSTSGST, 18)
	assert.Equal(t, 27.05, b.TotalGSTAmount)
	assert.Equal(t, 13.53, b.CGSTAmount)
	assert.Equal(t, 13.53, b.SGSTAmount)
	assert.InDelta(t, 27.06, b.CGSTAmount+b.SGSTAmount, 1e-9)
	assert.InDelta(t, 150.3+27.05, b.TotalAmount, 1e-9)
}

func TestCalcUnknownTypeBehavesAsNone(t *testing.T) {
	b := Calc(500, Type("VAT"), 18)
	assert.Equal(t, Breakdown{TotalAmount: 500}, b)
}

func TestCalcIdempotent(t *testing.T) {
	a := Calc(5000, TypeCGSTSGST, 18)
	b := Calc(5000, TypeCGSTSGST, 18)
	assert.Equal(t, a, b)
	assert.Equal(t, 5900.0, a.TotalAmount)
}

func TestParseType(t *testing.T) {
	assert.Equal(t, TypeIGST, ParseType("IGST"))
	assert.Equal(t, TypeCGSTSGST, ParseType("CGST_SGST"))
	assert.Equal(t, TypeNone, ParseType("none"))
	assert.Equal(t, TypeNone, ParseType(""))
	assert.Equal(t, TypeNone, ParseType("igst"))
}

func TestParseAmount(t *testing.T) {
	assert.Equal(t, 1234.5, ParseAmount("1234.5"))
	assert.Zero(t, ParseAmount(""))
	assert.Zero(t, ParseAmount("abc"))
}
