// Package authapi exposes the authentication flows over HTTP. Handlers only
// parse and delegate; every decision lives in the services.
package authapi

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/keyward-io/keyward/pkg/errx"
	"github.com/keyward-io/keyward/pkg/iam"
	"github.com/keyward-io/keyward/pkg/iam/audit/auditsrv"
	"github.com/keyward-io/keyward/pkg/iam/auth/authsrv"
	"github.com/keyward-io/keyward/pkg/iam/oauth/oauthsrv"
	"github.com/keyward-io/keyward/pkg/iam/reset/resetsrv"
	"github.com/keyward-io/keyward/pkg/kernel"
)

type Handlers struct {
	auth  *authsrv.Service
	reset *resetsrv.Service
	oauth *oauthsrv.Service
	audit *auditsrv.Service
}

func NewHandlers(auth *authsrv.Service, reset *resetsrv.Service, oauth *oauthsrv.Service, audit *auditsrv.Service) *Handlers {
	return &Handlers{auth: auth, reset: reset, oauth: oauth, audit: audit}
}

// RegisterRoutes mounts the authentication API.
func (h *Handlers) RegisterRoutes(app *fiber.App, mw *Middleware) {
	authGroup := app.Group("/auth", mw.Tenant())

	authGroup.Post("/register", h.register)
	authGroup.Post("/login", h.login)
	authGroup.Post("/refresh", h.refresh)
	authGroup.Post("/logout", h.logout)
	authGroup.Get("/me", mw.Authenticate(), h.me)

	authGroup.Post("/reset/request", h.resetRequest)
	authGroup.Get("/reset/validate", h.resetValidate)
	authGroup.Post("/reset/confirm", h.resetConfirm)

	authGroup.Get("/oauth/:provider", h.oauthBegin)
	authGroup.Get("/oauth/:provider/callback", h.oauthCallback)
	authGroup.Post("/oauth/:provider/callback", h.oauthCallback)

	adminGroup := app.Group("/api/v1/audit", mw.Tenant(), mw.Authenticate(), mw.RequireAdmin())
	adminGroup.Get("/attempts", h.auditAttempts)
	adminGroup.Get("/failed", h.auditFailed)
	adminGroup.Get("/stats", h.auditStats)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) register(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	summary, err := h.auth.Register(c.Context(), TenantFromCtx(c), req.Email, req.Password)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(summary)
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handlers) login(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return errx.Validation("invalid request body")
	}

	session, err := h.auth.AuthenticatePassword(
		c.Context(), TenantFromCtx(c), req.Email, req.Password, clientIP(c), userAgent(c))
	if err != nil {
		return err
	}
	return c.JSON(session)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (h *Handlers) refresh(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return errx.Validation("refresh_token is required")
	}

	session, err := h.auth.Refresh(c.Context(), TenantFromCtx(c), req.RefreshToken, clientIP(c), userAgent(c))
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *Handlers) logout(c *fiber.Ctx) error {
	var req refreshRequest
	if err := c.BodyParser(&req); err != nil || req.RefreshToken == "" {
		return errx.Validation("refresh_token is required")
	}

	if err := h.auth.Logout(c.Context(), TenantFromCtx(c), req.RefreshToken); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) me(c *fiber.Ctx) error {
	authCtx := AuthFromCtx(c)
	if authCtx == nil {
		return iam.ErrUnauthorized()
	}
	return c.JSON(authCtx)
}

type resetRequestBody struct {
	Email string `json:"email"`
}

func (h *Handlers) resetRequest(c *fiber.Ctx) error {
	var req resetRequestBody
	if err := c.BodyParser(&req); err != nil || req.Email == "" {
		return errx.Validation("email is required")
	}

	ip := c.IP()
	if err := h.reset.RequestReset(c.Context(), TenantFromCtx(c), req.Email, ip); err != nil {
		return err
	}
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "If the email is registered, a reset link has been sent",
	})
}

func (h *Handlers) resetValidate(c *fiber.Ctx) error {
	tokenValue := c.Query("token")
	if tokenValue == "" {
		return errx.Validation("token is required")
	}

	v, err := h.reset.Validate(c.Context(), TenantFromCtx(c), tokenValue)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"valid":      true,
		"email":      v.Email,
		"expires_at": v.ExpiresAt,
	})
}

type resetConfirmBody struct {
	Token       string `json:"token"`
	NewPassword string `json:"new_password"`
}

func (h *Handlers) resetConfirm(c *fiber.Ctx) error {
	var req resetConfirmBody
	if err := c.BodyParser(&req); err != nil || req.Token == "" {
		return errx.Validation("token and new_password are required")
	}

	if err := h.reset.Confirm(c.Context(), TenantFromCtx(c), req.Token, req.NewPassword); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (h *Handlers) oauthBegin(c *fiber.Ctx) error {
	provider := iam.ParseProvider(c.Params("provider"))
	if !provider.Valid() {
		return errx.Validation("unsupported oauth provider")
	}

	authURL, err := h.oauth.Begin(c.Context(), TenantFromCtx(c), provider, c.IP())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"auth_url": authURL})
}

func (h *Handlers) oauthCallback(c *fiber.Ctx) error {
	provider := iam.ParseProvider(c.Params("provider"))
	if !provider.Valid() {
		return errx.Validation("unsupported oauth provider")
	}

	state := c.Query("state", c.FormValue("state"))
	code := c.Query("code", c.FormValue("code"))
	if state == "" || code == "" {
		return errx.Validation("state and code are required")
	}

	session, err := h.oauth.Complete(
		c.Context(), TenantFromCtx(c), provider, state, code, clientIP(c), userAgent(c))
	if err != nil {
		return err
	}
	return c.JSON(session)
}

func (h *Handlers) auditAttempts(c *fiber.Ctx) error {
	tenantID := TenantFromCtx(c)
	limit := c.QueryInt("limit")
	offset := c.QueryInt("offset")

	if principalID := c.Query("principal_id"); principalID != "" {
		attempts, err := h.audit.QueryByPrincipal(
			c.Context(), tenantID, kernel.NewPrincipalID(principalID), limit, offset)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"attempts": attempts})
	}

	from, to, err := dateRange(c)
	if err != nil {
		return err
	}
	attempts, err := h.audit.QueryByDateRange(c.Context(), tenantID, from, to, limit, offset)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"attempts": attempts})
}

func (h *Handlers) auditFailed(c *fiber.Ctx) error {
	since := time.Now().UTC().Add(-24 * time.Hour)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return errx.Validation("since must be RFC 3339")
		}
		since = parsed
	}

	attempts, err := h.audit.QueryFailed(c.Context(), TenantFromCtx(c), since, c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"attempts": attempts})
}

func (h *Handlers) auditStats(c *fiber.Ctx) error {
	from, to, err := dateRange(c)
	if err != nil {
		return err
	}

	stats, err := h.audit.Stats(c.Context(), TenantFromCtx(c), from, to)
	if err != nil {
		return err
	}
	return c.JSON(stats)
}

func dateRange(c *fiber.Ctx) (time.Time, time.Time, error) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -7)

	if raw := c.Query("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, errx.Validation("from must be RFC 3339")
		}
		from = parsed
	}
	if raw := c.Query("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return from, to, errx.Validation("to must be RFC 3339")
		}
		to = parsed
	}
	return from, to, nil
}

func clientIP(c *fiber.Ctx) *string {
	ip := c.IP()
	if ip == "" {
		return nil
	}
	return &ip
}

func userAgent(c *fiber.Ctx) *string {
	ua := c.Get("User-Agent")
	if ua == "" {
		return nil
	}
	return &ua
}
