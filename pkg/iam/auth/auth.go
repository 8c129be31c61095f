// Package auth is the session orchestrator: password login, refresh and
// logout, stitched together from the credential, token, rate-limit and audit
// sub-domains.
package auth

import (
	"net/http"
	"strings"

	"github.com/keyward-io/keyward/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("AUTH")

// CodeInvalidCredentials is the only public failure of password login.
// Unknown email, wrong password, password-less federated accounts and
// deactivated accounts all return it, so the response never confirms that an
// email is registered.
var CodeInvalidCredentials = ErrRegistry.Register("INVALID_CREDENTIALS", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid email or password")

func ErrInvalidCredentials() *errx.Error { return ErrRegistry.New(CodeInvalidCredentials) }

// NormalizeEmail lowercases and trims an email so lookups and uniqueness
// agree on one spelling.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
