package rbac

import "lead-recovery/internal/auth"

// Role names. Keep these stable; they are part of auth/RBAC contracts.
const (
	// RoleOperator may read dashboards and launch calls, SMS and VIP grants.
	RoleOperator = auth.RoleOperator
	// RoleViewer may only read dashboards and batch progress.
	RoleViewer = auth.RoleViewer
)

// CanDial reports whether role may trigger outbound gateway traffic.
func CanDial(role string) bool { return role == RoleOperator }
