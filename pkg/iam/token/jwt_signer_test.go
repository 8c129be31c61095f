package token_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/keyward-io/keyward/pkg/iam/token"
)

func testKeyPair(t *testing.T) (privPEM, pubPEM []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	privPEM = pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	pubPEM = pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER})
	return privPEM, pubPEM
}

func testClaims(ttl time.Duration) token.AccessClaims {
	now := time.Now().UTC().Truncate(time.Second)
	return token.AccessClaims{
		Subject:   "p1",
		TenantID:  "t1",
		Email:     "a@example.com",
		Roles:     []string{"user", "admin"},
		Active:    true,
		JTI:       "jti-1",
		Audience:  "keyward-api",
		Issuer:    "keyward",
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
}

func TestRS256Signer_RoundTrip(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer, err := token.NewRS256Signer(priv, pub, "keyward", "keyward-api")
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	claims := testClaims(time.Hour)
	signed, err := signer.Sign(claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	got, err := signer.Verify(signed)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if got.Subject != claims.Subject || got.TenantID != claims.TenantID {
		t.Fatalf("identity mismatch: %+v", got)
	}
	if got.Email != claims.Email || !got.Active {
		t.Fatalf("claims mismatch: %+v", got)
	}
	if len(got.Roles) != 2 || got.Roles[1] != "admin" {
		t.Fatalf("roles mismatch: %v", got.Roles)
	}
	if got.JTI != "jti-1" || got.Audience != "keyward-api" || got.Issuer != "keyward" {
		t.Fatalf("registered claims mismatch: %+v", got)
	}
}

func TestRS256Signer_RejectsTamperedToken(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer, _ := token.NewRS256Signer(priv, pub, "keyward", "keyward-api")

	signed, err := signer.Sign(testClaims(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	parts := strings.Split(signed, ".")
	tampered := parts[0] + "." + parts[1] + "x." + parts[2]
	if _, err := signer.Verify(tampered); err == nil {
		t.Fatal("tampered token verified")
	}
}

func TestRS256Signer_RejectsForeignKey(t *testing.T) {
	privA, pubA := testKeyPair(t)
	privB, _ := testKeyPair(t)

	signerA, _ := token.NewRS256Signer(privA, pubA, "keyward", "keyward-api")
	signerB, _ := token.NewRS256Signer(privB, pubA, "keyward", "keyward-api")

	signed, err := signerB.Sign(testClaims(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := signerA.Verify(signed); err == nil {
		t.Fatal("token signed with a foreign key verified")
	}
}

func TestRS256Signer_RejectsWrongAudienceAndIssuer(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer, _ := token.NewRS256Signer(priv, pub, "keyward", "keyward-api")

	claims := testClaims(time.Hour)
	claims.Audience = "someone-else"
	signed, _ := signer.Sign(claims)
	if _, err := signer.Verify(signed); err == nil {
		t.Fatal("wrong audience verified")
	}

	claims = testClaims(time.Hour)
	claims.Issuer = "someone-else"
	signed, _ = signer.Sign(claims)
	if _, err := signer.Verify(signed); err == nil {
		t.Fatal("wrong issuer verified")
	}
}

func TestRS256Signer_ExpiredToken(t *testing.T) {
	priv, pub := testKeyPair(t)
	signer, _ := token.NewRS256Signer(priv, pub, "keyward", "keyward-api")

	claims := testClaims(-time.Minute)
	signed, err := signer.Sign(claims)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	_, err = signer.Verify(signed)
	if !errors.Is(err, token.ErrExpired()) {
		t.Fatalf("expected expired error, got %v", err)
	}
}

func TestRS256Signer_VerifyOnly(t *testing.T) {
	priv, pub := testKeyPair(t)
	full, _ := token.NewRS256Signer(priv, pub, "keyward", "keyward-api")
	verifyOnly, err := token.NewRS256Signer(nil, pub, "keyward", "keyward-api")
	if err != nil {
		t.Fatalf("verify-only signer: %v", err)
	}

	signed, _ := full.Sign(testClaims(time.Hour))
	if _, err := verifyOnly.Verify(signed); err != nil {
		t.Fatalf("verify-only failed to verify: %v", err)
	}
	if _, err := verifyOnly.Sign(testClaims(time.Hour)); err == nil {
		t.Fatal("verify-only signer signed a token")
	}
}

func TestNewOpaqueToken(t *testing.T) {
	a, err := token.NewOpaqueToken()
	if err != nil {
		t.Fatalf("opaque token: %v", err)
	}
	b, _ := token.NewOpaqueToken()
	if len(a) != 64 {
		t.Fatalf("expected 64 hex chars, got %d", len(a))
	}
	if a == b {
		t.Fatal("two opaque tokens collided")
	}
}
