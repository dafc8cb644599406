package billing

import "time"

// Status classifies how much of a bill has been settled.
type Status string

const (
	StatusPaid    Status = "Paid"
	StatusPartial Status = "Partial"
	StatusPending Status = "Pending"
	StatusOverdue Status = "Overdue"
)

// ParseStatus returns the status named by s, or "" when unknown.
func ParseStatus(s string) Status {
	switch Status(s) {
	case StatusPaid, StatusPartial, StatusPending, StatusOverdue:
		return Status(s)
	default:
		return ""
	}
}

// PaidAmount sums the bill's payment entries.
func (b *Bill) PaidAmount() float64 {
	var sum float64
	for _, p := range b.Payments {
		sum += p.Amount
	}
	return sum
}

// PendingAmount is totalAmount minus paid. Negative when overpaid; not
// clamped.
func (b *Bill) PendingAmount() float64 {
	return b.TotalAmount - b.PaidAmount()
}

// PaymentStatus is the raw Paid/Partial/Pending classification, ignoring
// due dates.
func (b *Bill) PaymentStatus() Status {
	paid := b.PaidAmount()
	switch {
	case paid >= b.TotalAmount:
		return StatusPaid
	case paid > 0:
		return StatusPartial
	default:
		return StatusPending
	}
}

// IsOverdue reports whether the bill has an elapsed due date with money
// still pending. A fully paid bill is never overdue.
func (b *Bill) IsOverdue(now time.Time) bool {
	if b.DueDate == nil {
		return false
	}
	return b.DueDate.Before(now) && b.PendingAmount() > 0
}

// EffectiveStatus is the display status: Overdue takes precedence over the
// raw payment classification everywhere status is shown or filtered on.
func (b *Bill) EffectiveStatus(now time.Time) Status {
	if b.IsOverdue(now) {
		return StatusOverdue
	}
	return b.PaymentStatus()
}
