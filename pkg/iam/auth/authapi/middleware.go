package authapi

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/token/tokensrv"
	"github.com/keyward-io/keyward/pkg/kernel"
)

const (
	localsTenant = "tenant_id"
	localsAuth   = "auth"
)

// Middleware carries the request-scoped guards: tenant resolution and access
// token validation.
type Middleware struct {
	tokens *tokensrv.Service
}

func NewMiddleware(tokens *tokensrv.Service) *Middleware {
	return &Middleware{tokens: tokens}
}

// Tenant resolves the tenant from the X-Tenant-ID header or the tenant_id
// query parameter. Every route under /auth requires one.
func (m *Middleware) Tenant() fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Get("X-Tenant-ID")
		if raw == "" {
			raw = c.Query("tenant_id")
		}
		if raw == "" {
			return iam.ErrUnauthorized().WithDetail("reason", "missing tenant id")
		}
		c.Locals(localsTenant, kernel.NewTenantID(raw))
		return c.Next()
	}
}

// Authenticate validates the access token from the Authorization header or
// the access_token cookie and injects the AuthContext. Validation includes
// the live principal check, so a deactivated account fails here immediately.
func (m *Middleware) Authenticate() fiber.Handler {
	return func(c *fiber.Ctx) error {
		var tokenString string

		if header := c.Get("Authorization"); header != "" {
			parts := strings.SplitN(header, " ", 2)
			if len(parts) == 2 && parts[0] == "Bearer" && parts[1] != "" {
				tokenString = parts[1]
			}
		}
		if tokenString == "" {
			tokenString = c.Cookies("access_token")
		}
		if tokenString == "" {
			return iam.ErrUnauthorized()
		}

		authCtx, err := m.tokens.ValidateAccess(c.Context(), tokenString)
		if err != nil {
			return err
		}

		c.Locals(localsAuth, authCtx)
		return c.Next()
	}
}

// RequireAdmin gates a route on the admin role. Must run after Authenticate.
func (m *Middleware) RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		authCtx := AuthFromCtx(c)
		if authCtx == nil {
			return iam.ErrUnauthorized()
		}
		if !authCtx.IsAdmin() {
			return iam.ErrAccessDenied()
		}
		return c.Next()
	}
}

// TenantFromCtx returns the tenant resolved by the Tenant middleware.
func TenantFromCtx(c *fiber.Ctx) kernel.TenantID {
	if id, ok := c.Locals(localsTenant).(kernel.TenantID); ok {
		return id
	}
	return ""
}

// AuthFromCtx returns the AuthContext injected by Authenticate, or nil.
func AuthFromCtx(c *fiber.Ctx) *kernel.AuthContext {
	if authCtx, ok := c.Locals(localsAuth).(*kernel.AuthContext); ok {
		return authCtx
	}
	return nil
}
