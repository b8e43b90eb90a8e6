package pg

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"resumatch.org/internal/identity"
)

func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewWithDB(db), mock
}

func TestUsersFindByEmail(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{"id", "email", "full_name", "password_hash", "status", "email_verified", "created_at", "updated_at"}).
		AddRow("u1", "alice@example.com", "Alice", "$2a$hash", "active", true, now, now)
	mock.ExpectQuery("select .* from users where email=").WithArgs("alice@example.com").WillReturnRows(rows)

	user, err := store.Users(context.Background()).FindByEmail(context.Background(), "alice@example.com")
	if err != nil {
		t.Fatalf("FindByEmail: %v", err)
	}
	if user.ID != "u1" || user.Status != identity.StatusActive || !user.EmailVerified {
		t.Fatalf("unexpected user: %+v", user)
	}

	mock.ExpectQuery("select .* from users where email=").WithArgs("ghost@example.com").WillReturnError(sql.ErrNoRows)
	if _, err := store.Users(context.Background()).FindByEmail(context.Background(), "ghost@example.com"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUsersActivate(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("(?s)update users").WithArgs("u1", "$2a$hash", "active").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := store.Users(context.Background()).Activate(context.Background(), "u1", "$2a$hash"); err != nil {
		t.Fatalf("Activate: %v", err)
	}

	mock.ExpectExec("(?s)update users").WithArgs("ghost", "$2a$hash", "active").WillReturnResult(sqlmock.NewResult(0, 0))
	if err := store.Users(context.Background()).Activate(context.Background(), "ghost", "$2a$hash"); !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChallengesUpsert(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	expires := now.Add(10 * time.Minute)
	ch := &identity.SecurityChallenge{
		ID:             "c1",
		UserID:         "u1",
		Type:           identity.ChallengeActivationMail,
		Channel:        identity.ChannelEmail,
		OtpHash:        "$2a$otp",
		Secret:         "raw-secret",
		ExpiresAt:      &expires,
		OtpRequestedAt: &now,
	}

	mock.ExpectExec("(?s)insert into security_challenges.*on conflict").
		WithArgs("c1", "u1", "activation_mail", "email", "$2a$otp",
			sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), 0, 0).
		WillReturnResult(sqlmock.NewResult(1, 1))

	if err := store.Challenges(context.Background()).Upsert(context.Background(), ch); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChallengesIncrementTries(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("(?s)update security_challenges.*tries = tries \\+ 1").
		WithArgs("u1", "activation_mail", "email").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Challenges(context.Background()).IncrementTries(context.Background(), "u1", identity.ChallengeActivationMail, identity.ChannelEmail)
	if err != nil {
		t.Fatalf("IncrementTries: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChallengesClear(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec("(?s)update security_challenges.*anchor_secret=null").
		WithArgs("u1", "activation_mail", "email").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := store.Challenges(context.Background()).Clear(context.Background(), "u1", identity.ChallengeActivationMail, identity.ChannelEmail)
	if err != nil {
		t.Fatalf("Clear: %v", err)
	}

	mock.ExpectExec("(?s)update security_challenges.*anchor_secret=null").
		WithArgs("ghost", "activation_mail", "email").
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = store.Challenges(context.Background()).Clear(context.Background(), "ghost", identity.ChallengeActivationMail, identity.ChannelEmail)
	if !errors.Is(err, identity.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestChallengesFindConsumedRow(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()

	// A cleared row comes back with empty hash/secret and nil timestamps.
	rows := sqlmock.NewRows([]string{"id", "user_id", "challenge_type", "channel", "otp_hash", "coalesce", "expires_at", "otp_requested_at", "tries", "resend_count", "created_at", "updated_at"}).
		AddRow("c1", "u1", "activation_mail", "email", "", "", nil, nil, 0, 0, now, now)
	mock.ExpectQuery("(?s)select .* from security_challenges").
		WithArgs("u1", "activation_mail", "email").
		WillReturnRows(rows)

	ch, err := store.Challenges(context.Background()).Find(context.Background(), "u1", identity.ChallengeActivationMail, identity.ChannelEmail)
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if ch.Secret != "" || ch.ExpiresAt != nil || ch.OtpRequestedAt != nil {
		t.Fatalf("consumed row not empty: %+v", ch)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionsRoundTrip(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now()
	expires := now.Add(7 * 24 * time.Hour)

	mock.ExpectExec("insert into token_sessions").
		WithArgs("s1", "u1", "sid-1", "access.jwt", "refresh.jwt", expires).
		WillReturnResult(sqlmock.NewResult(1, 1))

	sessions := store.Sessions(context.Background())
	err := sessions.Create(context.Background(), &identity.TokenSession{
		ID: "s1", UserID: "u1", SessionID: "sid-1",
		AccessToken: "access.jwt", RefreshToken: "refresh.jwt", ExpiresAt: expires,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	rows := sqlmock.NewRows([]string{"id", "user_id", "session_id", "access_token", "refresh_token", "expires_at", "created_at", "updated_at"}).
		AddRow("s1", "u1", "sid-1", "access.jwt", "refresh.jwt", expires, now, now)
	mock.ExpectQuery("select .* from token_sessions where refresh_token=").
		WithArgs("refresh.jwt").WillReturnRows(rows)

	sess, err := sessions.FindByRefreshToken(context.Background(), "refresh.jwt")
	if err != nil {
		t.Fatalf("FindByRefreshToken: %v", err)
	}
	if sess.SessionID != "sid-1" {
		t.Fatalf("unexpected session: %+v", sess)
	}

	mock.ExpectExec("update token_sessions set access_token=").
		WithArgs("sid-1", "rotated.jwt").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := sessions.UpdateAccessToken(context.Background(), "sid-1", "rotated.jwt"); err != nil {
		t.Fatalf("UpdateAccessToken: %v", err)
	}

	mock.ExpectExec("delete from token_sessions").
		WithArgs("refresh.jwt").WillReturnResult(sqlmock.NewResult(0, 1))
	if err := sessions.DeleteByRefreshToken(context.Background(), "refresh.jwt"); err != nil {
		t.Fatalf("DeleteByRefreshToken: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
