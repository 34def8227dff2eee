package models

// Role is the caller's authority level.
type Role string

const (
	RoleCustomer Role = "customer"
	RoleStaff    Role = "staff"
	RoleAdmin    Role = "admin"
)

// Actor identifies who issues a request.
type Actor struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

func (a Actor) IsAdmin() bool    { return a.Role == RoleAdmin }
func (a Actor) IsCustomer() bool { return a.Role == RoleCustomer }

// ParseRole maps a header value onto a role. Unknown values become customers.
func ParseRole(s string) Role {
	switch Role(s) {
	case RoleAdmin:
		return RoleAdmin
	case RoleStaff:
		return RoleStaff
	default:
		return RoleCustomer
	}
}
