package rbac

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	RoleAdmin      = "admin"
	RoleManager    = "manager"
	RoleAgent      = "agent"
	RoleSuperAdmin = "super_admin"
)

func IsSuperAdmin(role string) bool { return role == RoleSuperAdmin }

// IsSupervisor reports whether role sees every agent's leads.
func IsSupervisor(role string) bool {
	switch role {
	case RoleAdmin, RoleManager, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsKnown reports whether role is one this service issues tokens for.
func IsKnown(role string) bool {
	return role == RoleAgent || IsSupervisor(role)
}
