// Package audit records authentication attempts. Records are append-only:
// nothing in the module updates or deletes them.
package audit

import (
	"time"

	"github.com/google/uuid"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// Flow identifies which authentication path produced an attempt record.
type Flow string

const (
	FlowPassword    Flow = "password"
	FlowOAuthGoogle Flow = "oauth_google"
	FlowOAuthApple  Flow = "oauth_apple"
	FlowRefresh     Flow = "refresh"
)

// Failure reasons recorded on unsuccessful attempts. These are internal
// vocabulary; clients only ever see the coarse public error.
const (
	ReasonUnknownEmail     = "unknown_email"
	ReasonWrongPassword    = "wrong_password"
	ReasonOAuthOnlyAccount = "oauth_only_account"
	ReasonAccountInactive  = "account_inactive"
	ReasonRateLimited      = "rate_limited"
	ReasonTokenExpired     = "token_expired"
	ReasonTokenReuse       = "token_reuse"
	ReasonInvalidToken     = "invalid_token"
	ReasonProviderFailed   = "provider_failed"
	ReasonInvalidState     = "invalid_state"
	ReasonEmailConflict    = "email_conflict"
)

// LoginAttempt is one immutable record of an authentication attempt.
// PrincipalID is nil when the email did not resolve to an account.
type LoginAttempt struct {
	ID            string              `db:"id" json:"id"`
	TenantID      kernel.TenantID     `db:"tenant_id" json:"tenant_id"`
	PrincipalID   *kernel.PrincipalID `db:"principal_id" json:"principal_id,omitempty"`
	Email         string              `db:"email" json:"email"`
	Flow          Flow                `db:"flow" json:"flow"`
	Success       bool                `db:"success" json:"success"`
	FailureReason *string             `db:"failure_reason" json:"failure_reason,omitempty"`
	IP            *string             `db:"ip" json:"ip,omitempty"`
	UserAgent     *string             `db:"user_agent" json:"user_agent,omitempty"`
	DeviceType    *string             `db:"device_type" json:"device_type,omitempty"`
	Browser       *string             `db:"browser" json:"browser,omitempty"`
	OS            *string             `db:"os" json:"os,omitempty"`
	TokenIssued   bool                `db:"token_issued" json:"token_issued"`
	RefreshIssued bool                `db:"refresh_issued" json:"refresh_issued"`
	CreatedAt     time.Time           `db:"created_at" json:"created_at"`
}

// NewAttempt starts a record for one attempt; device fields are filled from
// the user agent.
func NewAttempt(tenantID kernel.TenantID, email string, flow Flow, ip, userAgent *string) *LoginAttempt {
	a := &LoginAttempt{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		Email:     email,
		Flow:      flow,
		IP:        ip,
		UserAgent: userAgent,
		CreatedAt: time.Now().UTC(),
	}
	if userAgent != nil {
		ua := ParseUserAgent(*userAgent)
		a.DeviceType = ua.DeviceType
		a.Browser = ua.Browser
		a.OS = ua.OS
	}
	return a
}

// MarkSuccess records which principal authenticated and which tokens were
// minted for it.
func (a *LoginAttempt) MarkSuccess(principalID kernel.PrincipalID, tokenIssued, refreshIssued bool) *LoginAttempt {
	a.PrincipalID = &principalID
	a.Success = true
	a.FailureReason = nil
	a.TokenIssued = tokenIssued
	a.RefreshIssued = refreshIssued
	return a
}

// MarkFailure records the internal failure reason.
func (a *LoginAttempt) MarkFailure(reason string) *LoginAttempt {
	a.Success = false
	a.FailureReason = &reason
	a.TokenIssued = false
	a.RefreshIssued = false
	return a
}

// Stats summarizes attempts over a period.
type Stats struct {
	TotalAttempts    int64     `json:"total_attempts"`
	SuccessfulLogins int64     `json:"successful_logins"`
	FailedLogins     int64     `json:"failed_logins"`
	SuccessRate      float64   `json:"success_rate"`
	From             time.Time `json:"from"`
	To               time.Time `json:"to"`
}
