package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resumatch.org/internal/ids"
	"resumatch.org/internal/mail"
	"resumatch.org/internal/obs"
)

// Cookie names shared with the HTTP layer. AnchorCookieEmailOTP binds the
// signup challenge to one browser; CookieCreatePassword carries the sealed
// ticket between OTP verification and password creation; CookieRefreshToken
// holds the long-lived session token.
const (
	AnchorCookieEmailOTP = "email_otp_session"
	CookieCreatePassword = "create_password_token"
	CookieRefreshToken   = "refreshToken"
)

// Client navigation modes returned alongside responses so the frontend knows
// which step of the flow to render.
const (
	ModeOTPVerify      = "OTP_VERIFY"
	ModeCreatePassword = "CREATE_PASSWORD"
	ModeVerifySignup   = "VERIFY_SIGNUP"
	ModeSignup         = "SIGNUP"
	ModeHome           = "HOME"
)

// createPasswordTicket is the sealed token proving OTP verification was
// completed for the user before a password may be set. The embedded expiry
// bounds the ticket server-side; the cookie TTL alone is client-enforced.
type createPasswordTicket struct {
	UserID    string `json:"uid"`
	ExpiresAt int64  `json:"exp"`
}

// createPasswordTicketTTL matches the lifetime of the cookie carrying the
// ticket.
const createPasswordTicketTTL = 15 * time.Minute

// Service implements the signup, sign-in and session operations on top of the
// challenge manager and token issuer.
type Service struct {
	store      Store
	challenges *ChallengeManager
	issuer     *TokenIssuer
	box        *SealedBox
	now        func() time.Time
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithServiceClock overrides the time source.
func WithServiceClock(fn func() time.Time) ServiceOption {
	return func(s *Service) {
		if fn != nil {
			s.now = fn
		}
	}
}

// NewService wires the service to its collaborators.
func NewService(store Store, challenges *ChallengeManager, issuer *TokenIssuer, box *SealedBox, opts ...ServiceOption) *Service {
	s := &Service{
		store:      store,
		challenges: challenges,
		issuer:     issuer,
		box:        box,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NormalizeEmail folds an email address to its canonical stored form.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// RequestSignupOTP starts or restarts a signup. An already-verified email is
// rejected; an unverified one re-enters the flow with any stale challenge
// dropped before a fresh code is issued.
func (s *Service) RequestSignupOTP(ctx context.Context, email, fullName string) (*IssueResult, error) {
	email = NormalizeEmail(email)
	users := s.store.Users(ctx)

	user, err := users.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, ErrNotFound):
		user = &User{
			ID:       ids.New(),
			Email:    email,
			FullName: fullName,
			Status:   StatusPending,
		}
		if err := users.Create(ctx, user); err != nil {
			return nil, fmt.Errorf("create user: %w", err)
		}
	case err != nil:
		return nil, err
	case user.EmailVerified:
		return nil, ErrAlreadyExists
	default:
		// Unverified re-entry: drop the stale challenge so tries and resend
		// counters restart with this attempt.
		if err := s.store.Challenges(ctx).Clear(ctx, user.ID, ChallengeActivationMail, ChannelEmail); err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}

	res, err := s.challenges.Issue(ctx, user, ChallengeActivationMail, ChannelEmail, AnchorCookieEmailOTP, mail.Fields{"name": user.FullName}, 0)
	if err != nil {
		return nil, err
	}
	obs.ObserveOTPIssued()
	return res, nil
}

// VerifySignupOTP checks the submitted code and, on success, marks the email
// verified and mints the ticket authorizing password creation.
func (s *Service) VerifySignupOTP(ctx context.Context, clientToken, anchorValue, otp string) (string, error) {
	ticket, err := s.challenges.DecodeTicket(clientToken)
	if err != nil {
		return "", err
	}
	if err := s.challenges.Verify(ctx, ticket.UserID, anchorValue, otp, ticket.Type, ticket.Channel); err != nil {
		return "", err
	}
	if err := s.store.Users(ctx).MarkEmailVerified(ctx, ticket.UserID); err != nil {
		return "", err
	}
	return s.box.Seal(createPasswordTicket{
		UserID:    ticket.UserID,
		ExpiresAt: s.now().Add(createPasswordTicketTTL).Unix(),
	})
}

// ResendSignupOTP re-issues the signup code. A resend is refused while the
// active code is younger than the cooldown allows.
func (s *Service) ResendSignupOTP(ctx context.Context, clientToken string) (*IssueResult, error) {
	ticket, err := s.challenges.DecodeTicket(clientToken)
	if err != nil {
		return nil, err
	}
	user, err := s.store.Users(ctx).Find(ctx, ticket.UserID)
	if err != nil {
		return nil, err
	}

	resendCount := 0
	ch, err := s.store.Challenges(ctx).Find(ctx, user.ID, ticket.Type, ticket.Channel)
	switch {
	case errors.Is(err, ErrNotFound):
		// No pending challenge; issue a fresh one.
	case err != nil:
		return nil, err
	default:
		if s.challenges.CooldownActive(ch) {
			return nil, ErrResendCooldown
		}
		resendCount = ch.ResendCount + 1
	}

	res, err := s.challenges.Issue(ctx, user, ticket.Type, ticket.Channel, AnchorCookieEmailOTP, mail.Fields{"name": user.FullName}, resendCount)
	if err != nil {
		return nil, err
	}
	obs.ObserveOTPIssued()
	return res, nil
}

// CreatePassword finishes signup: it hashes the password, activates the user
// and opens a session. The caller must present the sealed ticket minted by
// VerifySignupOTP.
func (s *Service) CreatePassword(ctx context.Context, ticketToken, password string) (*User, *SessionTokens, error) {
	if ticketToken == "" {
		return nil, nil, ErrInvalidClientToken
	}
	var ticket createPasswordTicket
	if err := s.box.Open(ticketToken, &ticket); err != nil {
		return nil, nil, err
	}
	if s.now().Unix() > ticket.ExpiresAt {
		return nil, nil, ErrInvalidClientToken
	}
	users := s.store.Users(ctx)
	user, err := users.Find(ctx, ticket.UserID)
	if err != nil {
		return nil, nil, err
	}

	// Users verified through an out-of-band path may have no challenge row
	// yet; create a blank consumed one so later flows find a record.
	if _, err := s.store.Challenges(ctx).FindByUser(ctx, user.ID); errors.Is(err, ErrNotFound) {
		blank := &SecurityChallenge{
			ID:      ids.New(),
			UserID:  user.ID,
			Type:    ChallengeActivationMail,
			Channel: ChannelEmail,
		}
		if err := s.store.Challenges(ctx).Create(ctx, blank); err != nil {
			return nil, nil, err
		}
	} else if err != nil {
		return nil, nil, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, err
	}
	if err := users.Activate(ctx, user.ID, hash); err != nil {
		return nil, nil, err
	}
	user.PasswordHash = hash
	user.Status = StatusActive
	user.EmailVerified = true

	tokens, err := s.issuer.IssueSessionTokens(ctx, s.store, user)
	if err != nil {
		return nil, nil, err
	}
	obs.ObserveSignIn()
	return user, tokens, nil
}

// SignIn authenticates an email/password pair and opens a session. Failure
// reasons stay distinct so the handler can route the client to the right
// step: unknown email, unfinished signup, bad password, deactivated account.
func (s *Service) SignIn(ctx context.Context, email, password string) (*User, *SessionTokens, error) {
	email = NormalizeEmail(email)
	user, err := s.store.Users(ctx).FindByEmail(ctx, email)
	if errors.Is(err, ErrNotFound) {
		return nil, nil, ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if !user.EmailVerified || user.PasswordHash == "" {
		return nil, nil, ErrNotVerified
	}
	if err := VerifyPassword(user.PasswordHash, password); err != nil {
		return nil, nil, ErrWrongPassword
	}
	if user.Status != StatusActive {
		return nil, nil, ErrUserInactive
	}

	tokens, err := s.issuer.IssueSessionTokens(ctx, s.store, user)
	if err != nil {
		return nil, nil, err
	}
	obs.ObserveSignIn()
	return user, tokens, nil
}

// RotateAccessToken exchanges a refresh token for a fresh access token.
func (s *Service) RotateAccessToken(ctx context.Context, refreshToken string) (*User, string, error) {
	user, access, err := s.issuer.RotateAccessToken(ctx, s.store, refreshToken)
	if err != nil {
		return nil, "", err
	}
	obs.ObserveTokenRotation()
	return user, access, nil
}

// TokenKind selects which session token a credential must be.
type TokenKind int

const (
	TokenAccess TokenKind = iota
	TokenRefresh
)

// Authenticate validates a presented token against both its signature and the
// persisted session and returns the caller's principal.
func (s *Service) Authenticate(ctx context.Context, token string, kind TokenKind) (*Principal, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	sessions := s.store.Sessions(ctx)
	var (
		sess *TokenSession
		err  error
	)
	if kind == TokenRefresh {
		sess, err = sessions.FindByRefreshToken(ctx, token)
	} else {
		sess, err = sessions.FindByAccessToken(ctx, token)
	}
	if err != nil {
		return nil, ErrUnauthorized
	}
	if kind == TokenRefresh && s.now().After(sess.ExpiresAt) {
		if err := sessions.DeleteByRefreshToken(ctx, token); err != nil {
			return nil, err
		}
		return nil, ErrRefreshExpired
	}
	claims, err := s.issuer.Verify(token)
	if err != nil {
		return nil, ErrUnauthorized
	}
	// A session outlives account changes; the user row is the authority on
	// whether the account may still act.
	user, err := s.store.Users(ctx).Find(ctx, claims.Subject)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if user.Status != StatusActive {
		return nil, ErrUnauthorized
	}
	return &Principal{
		UserID:    claims.Subject,
		Email:     claims.Email,
		SessionID: claims.SessionID,
	}, nil
}

// UserInfo loads the caller's profile with credentials stripped.
func (s *Service) UserInfo(ctx context.Context, userID string) (*User, error) {
	user, err := s.store.Users(ctx).Find(ctx, userID)
	if err != nil {
		return nil, err
	}
	user.PasswordHash = ""
	return user, nil
}
