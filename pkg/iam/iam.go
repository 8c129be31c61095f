// Package iam holds the identifiers and error codes shared by every
// authentication sub-domain.
package iam

import (
	"net/http"
	"strings"

	"github.com/keyward-io/keyward/pkg/errx"
)

var ErrRegistry = errx.NewRegistry("IAM")

var (
	CodeUnauthorized = ErrRegistry.Register("UNAUTHORIZED", errx.TypeAuthorization, http.StatusUnauthorized, "Unauthorized")
	CodeInvalidToken = ErrRegistry.Register("INVALID_TOKEN", errx.TypeAuthorization, http.StatusUnauthorized, "Invalid or expired token")
	CodeAccessDenied = ErrRegistry.Register("ACCESS_DENIED", errx.TypeAuthorization, http.StatusForbidden, "Access denied")
)

func ErrUnauthorized() *errx.Error { return ErrRegistry.New(CodeUnauthorized) }
func ErrInvalidToken() *errx.Error { return ErrRegistry.New(CodeInvalidToken) }
func ErrAccessDenied() *errx.Error { return ErrRegistry.New(CodeAccessDenied) }

// Provider identifies a supported OAuth identity provider.
type Provider string

const (
	ProviderGoogle Provider = "GOOGLE"
	ProviderApple  Provider = "APPLE"
)

// ParseProvider normalizes a provider name; the zero value means unknown.
func ParseProvider(s string) Provider {
	switch strings.ToUpper(s) {
	case "GOOGLE":
		return ProviderGoogle
	case "APPLE":
		return ProviderApple
	default:
		return ""
	}
}

func (p Provider) String() string { return string(p) }
func (p Provider) Valid() bool    { return p == ProviderGoogle || p == ProviderApple }
