package domain

type Role string

const (
	RoleCustomer Role = "CUSTOMER"
	RoleStaff    Role = "STAFF"
	// RolePaymentProvider only reports captured payments.
	RolePaymentProvider Role = "PAYMENT_PROVIDER"
)

// Principal is the authenticated actor of a call. Staff with a nil CinemaID
// work at headquarters and may act on every cinema.
type Principal struct {
	AccountID int64
	Role      Role
	CinemaID  *int64
}

func (p Principal) IsCustomer() bool { return p.Role == RoleCustomer }

func (p Principal) Owns(r *Reservation) bool {
	return r.AccountID == p.AccountID
}

// CanManage reports whether p may cancel or complete r.
func (p Principal) CanManage(r *Reservation) bool {
	switch p.Role {
	case RoleCustomer:
		return p.Owns(r)
	case RoleStaff:
		return p.CinemaID == nil || *p.CinemaID == r.CinemaID
	}
	return false
}
