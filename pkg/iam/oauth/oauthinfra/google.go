package oauthinfra

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/keyward-io/keyward/pkg/iam/oauth"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const googleUserInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"

// GoogleClient authenticates against Google. The identity comes from the
// userinfo endpoint, not the ID token.
type GoogleClient struct {
	conf        *oauth2.Config
	userInfoURL string
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint overrides, used by tests; empty values mean Google's.
	AuthURL     string
	TokenURL    string
	UserInfoURL string
}

func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	endpoint := google.Endpoint
	if cfg.AuthURL != "" {
		endpoint.AuthURL = cfg.AuthURL
	}
	if cfg.TokenURL != "" {
		endpoint.TokenURL = cfg.TokenURL
	}
	userInfoURL := cfg.UserInfoURL
	if userInfoURL == "" {
		userInfoURL = googleUserInfoURL
	}
	return &GoogleClient{
		conf: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       []string{"email", "profile"},
			Endpoint:     endpoint,
		},
		userInfoURL: userInfoURL,
	}
}

func (c *GoogleClient) AuthURL(state string) string {
	return c.conf.AuthCodeURL(state)
}

func (c *GoogleClient) Exchange(ctx context.Context, code string) (*oauth.UserInfo, error) {
	tok, err := c.conf.Exchange(ctx, code)
	if err != nil {
		return nil, oauth.ErrRegistry.NewWithCause(oauth.CodeExchangeFailed, err).
			WithDetail("provider", "google")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.userInfoURL, nil)
	if err != nil {
		return nil, oauth.ErrRegistry.NewWithCause(oauth.CodeExchangeFailed, err)
	}
	resp, err := c.conf.Client(ctx, tok).Do(req)
	if err != nil {
		return nil, oauth.ErrRegistry.NewWithCause(oauth.CodeExchangeFailed, err).
			WithDetail("provider", "google").WithDetail("stage", "userinfo")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, oauth.ErrExchangeFailed().
			WithDetail("provider", "google").
			WithDetail("stage", "userinfo").
			WithDetail("status", fmt.Sprintf("%d", resp.StatusCode))
	}

	var raw struct {
		Sub           string  `json:"sub"`
		ID            string  `json:"id"`
		Email         string  `json:"email"`
		Name          *string `json:"name"`
		Picture       *string `json:"picture"`
		EmailVerified bool    `json:"email_verified"`
		VerifiedEmail *bool   `json:"verified_email"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, oauth.ErrRegistry.NewWithCause(oauth.CodeExchangeFailed, err).
			WithDetail("provider", "google").WithDetail("stage", "decode")
	}

	// The v2 endpoint names the subject "id" and verification
	// "verified_email"; newer responses use "sub" and "email_verified".
	providerID := raw.Sub
	if providerID == "" {
		providerID = raw.ID
	}
	verified := raw.EmailVerified
	if raw.VerifiedEmail != nil {
		verified = verified || *raw.VerifiedEmail
	}

	return &oauth.UserInfo{
		ProviderID:    providerID,
		Email:         raw.Email,
		EmailVerified: verified,
		Name:          raw.Name,
		Picture:       raw.Picture,
	}, nil
}

var _ oauth.ProviderClient = (*GoogleClient)(nil)
