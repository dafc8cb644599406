// Package party manages the suppliers and customers bills are written
// against.
package party

import "time"

// Role says which side of the trade a party sits on.
type Role string

const (
	RoleSupplier Role = "supplier"
	RoleCustomer Role = "customer"
	RoleBoth     Role = "both"
)

// ParseRole defaults to both for unknown input.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleSupplier:
		return RoleSupplier
	case RoleCustomer:
		return RoleCustomer
	default:
		return RoleBoth
	}
}

// Party is one supplier or customer, owned by a single user.
type Party struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Mobile    string    `json:"mobile,omitempty"`
	Address   string    `json:"address,omitempty"`
	GSTNumber string    `json:"gstNumber,omitempty"`
	Role      Role      `json:"type"`
	OwnerID   int64     `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}
