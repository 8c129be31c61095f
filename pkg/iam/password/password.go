// Package password provides credential hashing and the minimum password
// policy applied at registration and reset.
package password

import (
	"net/http"

	"github.com/keyward-io/keyward/pkg/errx"
	"golang.org/x/crypto/bcrypt"
)

// Cost is the fixed bcrypt work factor.
const Cost = 12

// MinLength is the minimum accepted password length.
const MinLength = 8

var ErrRegistry = errx.NewRegistry("PASSWORD")

var (
	CodeTooWeak    = ErrRegistry.Register("TOO_WEAK", errx.TypeValidation, http.StatusBadRequest, "Password does not meet the minimum requirements")
	CodeHashFailed = ErrRegistry.Register("HASH_FAILED", errx.TypeInternal, http.StatusInternalServerError, "Failed to hash password")
)

func ErrTooWeak() *errx.Error { return ErrRegistry.New(CodeTooWeak) }

// Hasher hashes and verifies plaintext credentials.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, hash string) bool
}

// BcryptHasher implements Hasher with bcrypt at the fixed cost.
type BcryptHasher struct {
	cost int
}

func NewBcryptHasher() *BcryptHasher {
	return &BcryptHasher{cost: Cost}
}

func (h *BcryptHasher) Hash(plaintext string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", ErrRegistry.NewWithCause(CodeHashFailed, err)
	}
	return string(out), nil
}

func (h *BcryptHasher) Verify(plaintext, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plaintext)) == nil
}

// CheckPolicy validates a candidate password against the policy.
func CheckPolicy(plaintext string) error {
	if len(plaintext) < MinLength {
		return ErrTooWeak().WithDetail("min_length", MinLength)
	}
	return nil
}
