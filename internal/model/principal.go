package model

// Role is the platform-level role of a principal. Admin bypasses every
// permission check unconditionally.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// Principal is the authenticated actor a decision is made for. It is carried
// explicitly through every call; there is no ambient current-user state.
type Principal struct {
	ID              string `json:"id"`
	Role            Role   `json:"role"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// IsAdmin reports whether the principal gets the unconditional admin bypass.
func (p Principal) IsAdmin() bool {
	return p.IsAuthenticated && p.Role == RoleAdmin
}

// Anonymous is the principal used when no identity was supplied.
func Anonymous() Principal {
	return Principal{}
}
