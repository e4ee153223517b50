package domain

// RoleAdmin may read and cancel every order.
const RoleAdmin = "admin"

// Requester is the caller identity attached by the upstream auth layer.
type Requester struct {
	UserID string
	Role   string
}

func (r Requester) IsAdmin() bool { return r.Role == RoleAdmin }

// CanAccess reports whether r may read or cancel o.
func (r Requester) CanAccess(o *Order) bool {
	return r.IsAdmin() || (r.UserID != "" && r.UserID == o.UserID)
}
