package kernel

// AuthContext is the authenticated identity injected into each request by the
// token middleware.
type AuthContext struct {
	PrincipalID PrincipalID `json:"principal_id"`
	TenantID    TenantID    `json:"tenant_id"`
	Email       string      `json:"email"`
	Roles       []string    `json:"roles"`
	Active      bool        `json:"active"`
}

// IsValid reports whether the context carries a usable identity.
func (ac *AuthContext) IsValid() bool {
	return !ac.PrincipalID.IsEmpty() && !ac.TenantID.IsEmpty()
}

// HasRole reports whether the context carries the given role.
func (ac *AuthContext) HasRole(role string) bool {
	for _, r := range ac.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// IsAdmin reports whether the context carries the admin role.
func (ac *AuthContext) IsAdmin() bool {
	return ac.HasRole("admin")
}

type ContextKey string

const (
	// AuthContextKey stores the AuthContext in a request context.
	AuthContextKey ContextKey = "auth_context"

	// RequestIDKey stores the request ID.
	RequestIDKey ContextKey = "request_id"
)
