package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"resumatch.org/internal/ids"
	"resumatch.org/internal/mail"
)

const (
	// otpTTL is how long an issued code stays valid.
	otpTTL = 10 * time.Minute
	// resendGuard refuses a resend while the active challenge still has more
	// than this much TTL left (i.e. within ~2 minutes of issuance).
	resendGuard = 8 * time.Minute
	// maxOtpTries failed submissions lock the challenge for triesWindow,
	// counted from the last issuance.
	maxOtpTries = 5
	triesWindow = 6 * time.Hour
)

// signupTicket is the opaque client token round-tripped between signup steps.
// It is sealed server side; the client echoes it back verbatim.
type signupTicket struct {
	UserID  string        `json:"uid"`
	Email   string        `json:"email"`
	Type    ChallengeType `json:"type"`
	Channel Channel       `json:"channel"`
	Anchor  string        `json:"anchor"`
}

// ChallengeManager generates, rate-limits and verifies one-time codes, and
// binds each challenge to a client-held anchor cookie.
type ChallengeManager struct {
	store    Store
	notifier mail.Notifier
	box      *SealedBox
	now      func() time.Time
}

// ChallengeOption configures the manager.
type ChallengeOption func(*ChallengeManager)

// WithChallengeClock overrides the time source (useful for tests).
func WithChallengeClock(fn func() time.Time) ChallengeOption {
	return func(m *ChallengeManager) {
		if fn != nil {
			m.now = fn
		}
	}
}

// NewChallengeManager wires the manager to its collaborators.
func NewChallengeManager(store Store, notifier mail.Notifier, box *SealedBox, opts ...ChallengeOption) *ChallengeManager {
	m := &ChallengeManager{
		store:    store,
		notifier: notifier,
		box:      box,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IssueResult carries what the HTTP layer must hand to the client after a
// successful issuance.
type IssueResult struct {
	// ClientToken is the sealed ticket the client echoes back on verify and
	// resend calls.
	ClientToken string
	// AnchorName and AnchorValue describe the HTTP-only anchor cookie; the
	// value is a hash of the server-held secret.
	AnchorName  string
	AnchorValue string
}

// Issue generates a fresh code and anchor secret, delivers the code through
// the notifier and upserts the challenge row. Delivery runs first: when it
// fails the previous challenge row is left untouched.
func (m *ChallengeManager) Issue(ctx context.Context, user *User, typ ChallengeType, channel Channel, anchorName string, fields mail.Fields, resendCount int) (*IssueResult, error) {
	otp, err := GenerateOtp()
	if err != nil {
		return nil, err
	}
	secret := NewAnchorSecret()
	anchorValue, err := secret.CookieValue()
	if err != nil {
		return nil, err
	}

	rendered := make(mail.Fields, len(fields)+1)
	for k, v := range fields {
		rendered[k] = v
	}
	rendered["otp"] = string(otp)
	if err := m.notifier.Deliver(ctx, mail.TemplateVerificationMail, user.Email, rendered); err != nil {
		return nil, fmt.Errorf("deliver otp: %w", err)
	}

	otpHash, err := otp.Hash()
	if err != nil {
		return nil, err
	}
	now := m.now()
	expiresAt := now.Add(otpTTL)
	ch := &SecurityChallenge{
		ID:             ids.New(),
		UserID:         user.ID,
		Type:           typ,
		Channel:        channel,
		OtpHash:        otpHash,
		Secret:         string(secret),
		ExpiresAt:      &expiresAt,
		OtpRequestedAt: &now,
		Tries:          0,
		ResendCount:    resendCount,
	}
	if err := m.store.Challenges(ctx).Upsert(ctx, ch); err != nil {
		return nil, fmt.Errorf("persist challenge: %w", err)
	}

	token, err := m.box.Seal(signupTicket{
		UserID:  user.ID,
		Email:   user.Email,
		Type:    typ,
		Channel: channel,
		Anchor:  anchorName,
	})
	if err != nil {
		return nil, err
	}

	return &IssueResult{
		ClientToken: token,
		AnchorName:  anchorName,
		AnchorValue: anchorValue,
	}, nil
}

// Verify checks a submitted code against the pending challenge. The check
// order is part of the contract: anchor presence, input presence, challenge
// existence, anchor match, lockout, code match, then expiry. A correct but
// late code reports expiry, never an invalid code. On success the row is
// cleared in place and cannot be reused.
func (m *ChallengeManager) Verify(ctx context.Context, userID, anchorValue, submitted string, typ ChallengeType, channel Channel) error {
	if anchorValue == "" {
		return ErrMissingAnchor
	}
	if submitted == "" {
		return ErrMissingOtp
	}

	challenges := m.store.Challenges(ctx)
	ch, err := challenges.Find(ctx, userID, typ, channel)
	if errors.Is(err, ErrNotFound) {
		return ErrChallengeNotFound
	}
	if err != nil {
		return err
	}
	if ch.Secret == "" {
		// Already consumed or never issued.
		return ErrChallengeNotFound
	}

	if !AnchorSecret(ch.Secret).MatchesCookie(anchorValue) {
		return ErrAnchorMismatch
	}

	if ch.Tries >= maxOtpTries && ch.OtpRequestedAt != nil {
		resetAt := ch.OtpRequestedAt.Add(triesWindow)
		if now := m.now(); now.Before(resetAt) {
			return &TooManyAttemptsError{RetryAfter: resetAt.Sub(now)}
		}
	}

	if !Otp(submitted).Matches(ch.OtpHash) {
		// The failed attempt must be recorded even though verification fails.
		if err := challenges.IncrementTries(ctx, userID, typ, channel); err != nil {
			return err
		}
		return ErrInvalidOtp
	}

	if ch.ExpiresAt == nil || m.now().After(*ch.ExpiresAt) {
		return ErrOtpExpired
	}

	return challenges.Clear(ctx, userID, typ, channel)
}

// CooldownActive reports whether a resend for the given challenge must still
// be refused.
func (m *ChallengeManager) CooldownActive(ch *SecurityChallenge) bool {
	if ch == nil || ch.ExpiresAt == nil {
		return false
	}
	return ch.ExpiresAt.Sub(m.now()) > resendGuard
}

// DecodeTicket opens an opaque client token from a previous issuance.
func (m *ChallengeManager) DecodeTicket(token string) (*signupTicket, error) {
	if token == "" {
		return nil, ErrInvalidClientToken
	}
	var ticket signupTicket
	if err := m.box.Open(token, &ticket); err != nil {
		return nil, err
	}
	if ticket.UserID == "" {
		return nil, ErrInvalidClientToken
	}
	return &ticket, nil
}
