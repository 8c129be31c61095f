package oauthinfra

import (
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
)

func appleIDToken(t *testing.T, claims map[string]any) string {
	t.Helper()
	payload, err := json.Marshal(claims)
	if err != nil {
		t.Fatalf("marshal claims: %v", err)
	}
	header := base64.RawURLEncoding.EncodeToString([]byte(`{"alg":"RS256"}`))
	body := base64.RawURLEncoding.EncodeToString(payload)
	return header + "." + body + ".sig"
}

func TestParseAppleIDToken_StringVerified(t *testing.T) {
	tok := appleIDToken(t, map[string]any{
		"sub":            "apple-001",
		"email":          "user@privaterelay.appleid.com",
		"email_verified": "true",
	})

	info, err := parseAppleIDToken(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if info.ProviderID != "apple-001" || info.Email != "user@privaterelay.appleid.com" {
		t.Fatalf("identity: %+v", info)
	}
	if !info.EmailVerified {
		t.Fatal(`email_verified "true" should verify`)
	}
	if info.Name != nil || info.Picture != nil {
		t.Fatalf("apple never supplies name or picture: %+v", info)
	}
}

func TestParseAppleIDToken_BoolVerified(t *testing.T) {
	tok := appleIDToken(t, map[string]any{
		"sub":            "apple-002",
		"email":          "user@example.com",
		"email_verified": true,
	})

	info, err := parseAppleIDToken(tok)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !info.EmailVerified {
		t.Fatal("boolean true should verify")
	}
}

func TestParseAppleIDToken_FalseAndMissingVerified(t *testing.T) {
	for name, claims := range map[string]map[string]any{
		"string false": {"sub": "s", "email": "e@x.com", "email_verified": "false"},
		"bool false":   {"sub": "s", "email": "e@x.com", "email_verified": false},
		"missing":      {"sub": "s", "email": "e@x.com"},
	} {
		t.Run(name, func(t *testing.T) {
			info, err := parseAppleIDToken(appleIDToken(t, claims))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if info.EmailVerified {
				t.Fatal("should not verify")
			}
		})
	}
}

func TestParseAppleIDToken_StdEncodingFallback(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{"sub": "apple-003", "email": "e@x.com"})
	tok := "h." + base64.StdEncoding.EncodeToString(payload) + ".sig"

	info, err := parseAppleIDToken(tok)
	if err != nil {
		t.Fatalf("std-encoded payload should parse: %v", err)
	}
	if info.ProviderID != "apple-003" {
		t.Fatalf("identity: %+v", info)
	}
}

func TestParseAppleIDToken_Malformed(t *testing.T) {
	cases := map[string]string{
		"not a jwt":  "just-a-string",
		"two parts":  "a.b",
		"bad base64": "h." + "!!!!" + ".sig",
		"not json":   "h." + base64.RawURLEncoding.EncodeToString([]byte("nope")) + ".sig",
		"extra dots": strings.Repeat(".", 5),
	}
	for name, tok := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := parseAppleIDToken(tok); err == nil {
				t.Fatal("malformed token parsed")
			}
		})
	}
}
