package token

import (
	"crypto/rsa"
	"errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/keyward-io/keyward/pkg/kernel"
)

// jwtClaims is the wire shape of an access token.
type jwtClaims struct {
	TenantID string   `json:"tenant_id"`
	Email    string   `json:"email"`
	Roles    []string `json:"roles"`
	Active   bool     `json:"active"`
	jwt.RegisteredClaims
}

// RS256Signer signs and verifies access tokens with an RSA key pair.
// Verification enforces signature, expiry, audience and issuer; it does not
// consult storage.
type RS256Signer struct {
	privateKey *rsa.PrivateKey
	publicKey  *rsa.PublicKey
	issuer     string
	audience   string
}

// NewRS256Signer parses PEM-encoded keys. The private key may be nil-length
// for verify-only deployments.
func NewRS256Signer(privatePEM, publicPEM []byte, issuer, audience string) (*RS256Signer, error) {
	pub, err := jwt.ParseRSAPublicKeyFromPEM(publicPEM)
	if err != nil {
		return nil, ErrRegistry.NewWithCause(CodeValidationFailed, err).
			WithDetail("stage", "parse_public_key")
	}

	s := &RS256Signer{publicKey: pub, issuer: issuer, audience: audience}
	if len(privatePEM) > 0 {
		priv, err := jwt.ParseRSAPrivateKeyFromPEM(privatePEM)
		if err != nil {
			return nil, ErrRegistry.NewWithCause(CodeSigningFailed, err).
				WithDetail("stage", "parse_private_key")
		}
		s.privateKey = priv
	}
	return s, nil
}

func (s *RS256Signer) Sign(claims AccessClaims) (string, error) {
	if s.privateKey == nil {
		return "", ErrSigningFailed().WithDetail("reason", "no private key configured")
	}

	jc := jwtClaims{
		TenantID: claims.TenantID.String(),
		Email:    claims.Email,
		Roles:    claims.Roles,
		Active:   claims.Active,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject.String(),
			ID:        claims.JTI,
			Audience:  jwt.ClaimStrings{claims.Audience},
			Issuer:    claims.Issuer,
			IssuedAt:  jwt.NewNumericDate(claims.IssuedAt),
			ExpiresAt: jwt.NewNumericDate(claims.ExpiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, jc).SignedString(s.privateKey)
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeSigningFailed, err)
	}
	return signed, nil
}

func (s *RS256Signer) Verify(tokenString string) (*AccessClaims, error) {
	var jc jwtClaims
	_, err := jwt.ParseWithClaims(tokenString, &jc,
		func(t *jwt.Token) (any, error) { return s.publicKey, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(s.audience),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrRegistry.NewWithCause(CodeExpired, err)
		}
		return nil, ErrRegistry.NewWithCause(CodeValidationFailed, err)
	}

	claims := &AccessClaims{
		Subject:  kernel.PrincipalID(jc.Subject),
		TenantID: kernel.TenantID(jc.TenantID),
		Email:    jc.Email,
		Roles:    jc.Roles,
		Active:   jc.Active,
		JTI:      jc.ID,
		Issuer:   jc.Issuer,
	}
	if len(jc.Audience) > 0 {
		claims.Audience = jc.Audience[0]
	}
	if jc.IssuedAt != nil {
		claims.IssuedAt = jc.IssuedAt.Time
	}
	if jc.ExpiresAt != nil {
		claims.ExpiresAt = jc.ExpiresAt.Time
	}
	return claims, nil
}

var _ Signer = (*RS256Signer)(nil)
