package identity

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSignupFlow(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.RequestSignupOTP(ctx, "Alice@Example.com ", "Alice A")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	if res.AnchorName != AnchorCookieEmailOTP {
		t.Fatalf("anchor name = %q", res.AnchorName)
	}
	if h.notifier.lastTo != "alice@example.com" {
		t.Fatalf("delivered to %q, want normalized address", h.notifier.lastTo)
	}

	ticket, err := h.svc.VerifySignupOTP(ctx, res.ClientToken, res.AnchorValue, h.notifier.lastOtp)
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}

	user, tokens, err := h.svc.CreatePassword(ctx, ticket, "hunter2!secure")
	if err != nil {
		t.Fatalf("create password: %v", err)
	}
	if user.Status != StatusActive || !user.EmailVerified {
		t.Fatalf("user not activated: %+v", user)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Fatalf("no session issued")
	}

	// The stored user carries a hash, not the password.
	stored, err := h.store.Users(ctx).Find(ctx, user.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.PasswordHash == "hunter2!secure" || stored.PasswordHash == "" {
		t.Fatalf("password stored badly: %q", stored.PasswordHash)
	}

	// And sign-in works with the fresh credentials.
	_, tokens2, err := h.svc.SignIn(ctx, "alice@example.com", "hunter2!secure")
	if err != nil {
		t.Fatalf("signin: %v", err)
	}
	if tokens2.SessionID == tokens.SessionID {
		t.Fatalf("second session reused the first session id")
	}
}

func TestRequestSignupOTPVerifiedEmail(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	seedActiveUser(t, h, "alice@example.com")

	if _, err := h.svc.RequestSignupOTP(ctx, "alice@example.com", "Alice"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}
}

func TestRequestSignupOTPReentryResetsChallenge(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res1, err := h.svc.RequestSignupOTP(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("first request: %v", err)
	}
	// Burn some attempts on the first challenge.
	ticket1 := res1.ClientToken
	for i := 0; i < 3; i++ {
		if _, err := h.svc.VerifySignupOTP(ctx, ticket1, res1.AnchorValue, "999999"); !errors.Is(err, ErrInvalidOtp) {
			t.Fatalf("burn attempt: %v", err)
		}
	}

	// Re-entering signup issues a clean challenge with zero tries.
	res2, err := h.svc.RequestSignupOTP(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("second request: %v", err)
	}
	user, err := h.store.Users(ctx).FindByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	ch, err := h.store.Challenges(ctx).Find(ctx, user.ID, ChallengeActivationMail, ChannelEmail)
	if err != nil {
		t.Fatalf("find challenge: %v", err)
	}
	if ch.Tries != 0 || ch.ResendCount != 0 {
		t.Fatalf("counters carried over: tries=%d resends=%d", ch.Tries, ch.ResendCount)
	}
	if _, err := h.svc.VerifySignupOTP(ctx, res2.ClientToken, res2.AnchorValue, h.notifier.lastOtp); err != nil {
		t.Fatalf("verify after re-entry: %v", err)
	}
}

func TestResendSignupOTP(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.RequestSignupOTP(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("request: %v", err)
	}

	// Too soon.
	if _, err := h.svc.ResendSignupOTP(ctx, res.ClientToken); !errors.Is(err, ErrResendCooldown) {
		t.Fatalf("early resend: got %v, want ErrResendCooldown", err)
	}

	h.clock.Advance(3 * time.Minute)
	res2, err := h.svc.ResendSignupOTP(ctx, res.ClientToken)
	if err != nil {
		t.Fatalf("resend: %v", err)
	}
	if h.notifier.sends != 2 {
		t.Fatalf("sends = %d, want 2", h.notifier.sends)
	}

	user, _ := h.store.Users(ctx).FindByEmail(ctx, "alice@example.com")
	ch, err := h.store.Challenges(ctx).Find(ctx, user.ID, ChallengeActivationMail, ChannelEmail)
	if err != nil {
		t.Fatalf("find challenge: %v", err)
	}
	if ch.ResendCount != 1 {
		t.Fatalf("resend count = %d, want 1", ch.ResendCount)
	}

	// The resent code verifies against the fresh anchor.
	if _, err := h.svc.VerifySignupOTP(ctx, res2.ClientToken, res2.AnchorValue, h.notifier.lastOtp); err != nil {
		t.Fatalf("verify resent: %v", err)
	}

	if _, err := h.svc.ResendSignupOTP(ctx, "garbage"); !errors.Is(err, ErrInvalidClientToken) {
		t.Fatalf("garbage token: got %v", err)
	}
}

func TestCreatePasswordRequiresTicket(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, _, err := h.svc.CreatePassword(ctx, "", "pass"); !errors.Is(err, ErrInvalidClientToken) {
		t.Fatalf("empty ticket: got %v", err)
	}
	if _, _, err := h.svc.CreatePassword(ctx, "tampered", "pass"); !errors.Is(err, ErrInvalidClientToken) {
		t.Fatalf("bad ticket: got %v", err)
	}
}

func TestCreatePasswordTicketExpires(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	res, err := h.svc.RequestSignupOTP(ctx, "alice@example.com", "Alice")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	ticket, err := h.svc.VerifySignupOTP(ctx, res.ClientToken, res.AnchorValue, h.notifier.lastOtp)
	if err != nil {
		t.Fatalf("verify otp: %v", err)
	}

	h.clock.Advance(createPasswordTicketTTL + time.Minute)
	if _, _, err := h.svc.CreatePassword(ctx, ticket, "hunter2!secure"); !errors.Is(err, ErrInvalidClientToken) {
		t.Fatalf("stale ticket: got %v", err)
	}

	// A fresh ticket inside the window still completes signup.
	res2, err := h.svc.RequestSignupOTP(ctx, "bob@example.com", "Bob")
	if err != nil {
		t.Fatalf("request otp: %v", err)
	}
	ticket2, err := h.svc.VerifySignupOTP(ctx, res2.ClientToken, res2.AnchorValue, h.notifier.lastOtp)
	if err != nil {
		t.Fatalf("re-verify otp: %v", err)
	}
	h.clock.Advance(createPasswordTicketTTL / 2)
	if _, _, err := h.svc.CreatePassword(ctx, ticket2, "hunter2!secure"); err != nil {
		t.Fatalf("fresh ticket: %v", err)
	}
}

func TestSignInFailureReasons(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if _, _, err := h.svc.SignIn(ctx, "ghost@example.com", "pass"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown email: got %v", err)
	}

	// Unfinished signup: user exists but never verified.
	if _, err := h.svc.RequestSignupOTP(ctx, "bob@example.com", "Bob"); err != nil {
		t.Fatalf("request: %v", err)
	}
	if _, _, err := h.svc.SignIn(ctx, "bob@example.com", "pass"); !errors.Is(err, ErrNotVerified) {
		t.Fatalf("unverified: got %v", err)
	}

	user := seedActiveUser(t, h, "alice@example.com")
	if _, _, err := h.svc.SignIn(ctx, "alice@example.com", "wrong"); !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("wrong password: got %v", err)
	}
	// A failed sign-in must not open a session.
	if len(h.store.sessions) != 0 {
		t.Fatalf("session rows after failed sign-ins: %d", len(h.store.sessions))
	}

	h.store.users[user.ID].Status = StatusInactive
	if _, _, err := h.svc.SignIn(ctx, "alice@example.com", "s3cret-pass"); !errors.Is(err, ErrUserInactive) {
		t.Fatalf("inactive: got %v", err)
	}
}

func TestAuthenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := seedActiveUser(t, h, "alice@example.com")
	tokens, err := h.issuer.IssueSessionTokens(ctx, h.store, user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	p, err := h.svc.Authenticate(ctx, tokens.AccessToken, TokenAccess)
	if err != nil {
		t.Fatalf("authenticate access: %v", err)
	}
	if p.UserID != user.ID || p.SessionID != tokens.SessionID {
		t.Fatalf("principal %+v", p)
	}

	if _, err := h.svc.Authenticate(ctx, tokens.RefreshToken, TokenRefresh); err != nil {
		t.Fatalf("authenticate refresh: %v", err)
	}
	// The refresh token is not a valid access credential: no session row
	// matches it in the access column.
	if _, err := h.svc.Authenticate(ctx, tokens.RefreshToken, TokenAccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("refresh-as-access: got %v", err)
	}
	if _, err := h.svc.Authenticate(ctx, "", TokenAccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("empty token: got %v", err)
	}

	// A rotated-away access token no longer authenticates.
	_, newAccess, err := h.svc.RotateAccessToken(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("rotate: %v", err)
	}
	if _, err := h.svc.Authenticate(ctx, tokens.AccessToken, TokenAccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("stale access token accepted: %v", err)
	}
	if _, err := h.svc.Authenticate(ctx, newAccess, TokenAccess); err != nil {
		t.Fatalf("fresh access token rejected: %v", err)
	}
}

func TestAuthenticateRevokedUser(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := seedActiveUser(t, h, "alice@example.com")
	tokens, err := h.issuer.IssueSessionTokens(ctx, h.store, user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := h.svc.Authenticate(ctx, tokens.AccessToken, TokenAccess); err != nil {
		t.Fatalf("authenticate active: %v", err)
	}

	// Deactivation revokes live sessions immediately, not at refresh expiry.
	h.store.users[user.ID].Status = StatusInactive
	if _, err := h.svc.Authenticate(ctx, tokens.AccessToken, TokenAccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("inactive user access token: got %v", err)
	}
	if _, err := h.svc.Authenticate(ctx, tokens.RefreshToken, TokenRefresh); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("inactive user refresh token: got %v", err)
	}

	h.store.users[user.ID].Status = StatusRemoved
	if _, err := h.svc.Authenticate(ctx, tokens.AccessToken, TokenAccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("removed user: got %v", err)
	}

	// A deleted user row is the same as no user.
	delete(h.store.users, user.ID)
	if _, err := h.svc.Authenticate(ctx, tokens.AccessToken, TokenAccess); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("missing user: got %v", err)
	}
}

func TestAuthenticateExpiredRefresh(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := seedActiveUser(t, h, "alice@example.com")
	tokens, err := h.issuer.IssueSessionTokens(ctx, h.store, user)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	h.clock.Advance(defaultRefreshTTL + time.Hour)
	if _, err := h.svc.Authenticate(ctx, tokens.RefreshToken, TokenRefresh); !errors.Is(err, ErrRefreshExpired) {
		t.Fatalf("got %v, want ErrRefreshExpired", err)
	}
	if _, err := h.store.Sessions(ctx).FindByRefreshToken(ctx, tokens.RefreshToken); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expired session survived")
	}
}

func TestUserInfoStripsCredentials(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	user := seedActiveUser(t, h, "alice@example.com")

	got, err := h.svc.UserInfo(ctx, user.ID)
	if err != nil {
		t.Fatalf("user info: %v", err)
	}
	if got.PasswordHash != "" {
		t.Fatalf("password hash leaked")
	}
	if got.Email != user.Email {
		t.Fatalf("email = %q", got.Email)
	}

	if _, err := h.svc.UserInfo(ctx, "ghost"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: got %v", err)
	}
}
