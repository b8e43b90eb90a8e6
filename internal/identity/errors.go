package identity

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound      = errors.New("identity: not found")
	ErrAlreadyExists = errors.New("identity: user already exists")

	// Sign-in failures, surfaced to the caller as distinct reasons.
	ErrNotVerified   = errors.New("identity: email not verified")
	ErrWrongPassword = errors.New("identity: wrong password")
	ErrUserInactive  = errors.New("identity: user is not active")

	// Challenge failures. Each maps to its own user-facing message and must
	// never be conflated into a generic unauthorized.
	ErrMissingAnchor     = errors.New("identity: anchor cookie missing")
	ErrMissingOtp        = errors.New("identity: otp is required")
	ErrChallengeNotFound = errors.New("identity: challenge not found")
	ErrAnchorMismatch    = errors.New("identity: anchor mismatch")
	ErrInvalidOtp        = errors.New("identity: invalid otp")
	ErrOtpExpired        = errors.New("identity: otp expired")
	ErrResendCooldown    = errors.New("identity: resend cooldown active")

	// Session failures, surfaced without detail on which part failed.
	ErrInvalidClientToken = errors.New("identity: invalid client token")
	ErrUnauthorized       = errors.New("identity: unauthorized")
	ErrRefreshExpired     = errors.New("identity: refresh token expired")
	ErrInvalidToken       = errors.New("identity: invalid token")
)

// TooManyAttemptsError is returned when the failed-attempt limit is reached
// inside the lockout window. RetryAfter is the wait until the window resets.
type TooManyAttemptsError struct {
	RetryAfter time.Duration
}

func (e *TooManyAttemptsError) Error() string {
	hours := int(e.RetryAfter.Hours())
	minutes := int(e.RetryAfter.Minutes()) % 60
	return fmt.Sprintf("maximum OTP tries reached, please try again after %d hours %d minutes", hours, minutes)
}
