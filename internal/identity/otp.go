package identity

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// Otp is a six digit one-time code proving control of an email address.
// AnchorSecret binds the server-side challenge row to the browser session that
// requested it. They are separate value objects with separate hashing on
// purpose: proof of code and proof of session must never stand in for each
// other.

const otpDigits = 6

// Otp is the numeric one-time code delivered to the user.
type Otp string

// GenerateOtp draws a fixed-length numeric code from crypto/rand.
func GenerateOtp() (Otp, error) {
	bound := big.NewInt(1)
	for i := 0; i < otpDigits; i++ {
		bound.Mul(bound, big.NewInt(10))
	}
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return Otp(fmt.Sprintf("%0*d", otpDigits, n.Int64())), nil
}

// Hash returns the one-way hash persisted in the challenge row.
func (o Otp) Hash() (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(o), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// Matches compares the submitted code against a stored hash.
func (o Otp) Matches(hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(o)) == nil
}

// AnchorSecret is the random server-issued value that ties a pending challenge
// to one browser. The row stores the raw secret; the client only ever holds
// its hash, so the cookie alone cannot be replayed to forge an OTP check.
type AnchorSecret string

// NewAnchorSecret returns a fresh random secret.
func NewAnchorSecret() AnchorSecret {
	return AnchorSecret(uuid.NewString())
}

// CookieValue returns the one-way hash placed in the anchor cookie.
func (s AnchorSecret) CookieValue() (string, error) {
	h, err := bcrypt.GenerateFromPassword([]byte(s), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

// MatchesCookie reports whether the presented cookie hash was derived from
// this secret. A mismatch means a replayed or tampered cookie.
func (s AnchorSecret) MatchesCookie(cookie string) bool {
	return bcrypt.CompareHashAndPassword([]byte(cookie), []byte(s)) == nil
}
