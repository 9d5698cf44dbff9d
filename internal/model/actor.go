package model

type Role string

const (
	RoleAdmin   Role = "ADMIN"
	RoleStaff   Role = "STAFF"
	RoleCashier Role = "CASHIER"
	RoleVendor  Role = "VENDOR"
)

// Actor is an identity already resolved by the authentication layer.
type Actor struct {
	UserID string
	Role   Role
}

func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleStaff
}
