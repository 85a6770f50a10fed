package auth

import "github.com/golang-jwt/jwt/v5"

// Role names carried in session tokens. internal/rbac re-exports them.
const (
	RoleOperator = "operator"
	RoleViewer   = "viewer"
)

// Claims are the only supported JWT claims shape for this service.
// Subject names the credential that logged in; Role drives RBAC.
type Claims struct {
	jwt.RegisteredClaims

	Role string `json:"role"`
}
