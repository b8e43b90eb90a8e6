package identity

import "context"

// Store describes the persistence owned by the credential store. All mutation
// is scoped to a single user's records; implementations must make the
// challenge upsert and the tries increment atomic per row.
type Store interface {
	Users(ctx context.Context) UserStore
	Challenges(ctx context.Context) ChallengeStore
	Sessions(ctx context.Context) SessionStore
}

// UserStore manages user records.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	Find(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	MarkEmailVerified(ctx context.Context, id string) error
	// Activate sets the password hash, flips the status to active and marks
	// the email verified in one statement.
	Activate(ctx context.Context, id, passwordHash string) error
}

// ChallengeStore manages pending security challenges.
type ChallengeStore interface {
	// Upsert replaces the challenge for (user, type, channel), resetting
	// value, secret, expiry, tries and the resend counter in one statement so
	// concurrent signup attempts converge on a single row.
	Upsert(ctx context.Context, ch *SecurityChallenge) error
	Create(ctx context.Context, ch *SecurityChallenge) error
	Find(ctx context.Context, userID string, typ ChallengeType, channel Channel) (*SecurityChallenge, error)
	FindByUser(ctx context.Context, userID string) (*SecurityChallenge, error)
	// IncrementTries bumps the failed-attempt counter with a single
	// conditional update; the count must persist even when the surrounding
	// verification fails.
	IncrementTries(ctx context.Context, userID string, typ ChallengeType, channel Channel) error
	// Clear empties the challenge in place (the row survives, consumed).
	Clear(ctx context.Context, userID string, typ ChallengeType, channel Channel) error
}

// SessionStore manages issued token sessions.
type SessionStore interface {
	Create(ctx context.Context, s *TokenSession) error
	FindByAccessToken(ctx context.Context, token string) (*TokenSession, error)
	FindByRefreshToken(ctx context.Context, token string) (*TokenSession, error)
	// UpdateAccessToken rotates the access token of an existing session row;
	// it never creates a new row.
	UpdateAccessToken(ctx context.Context, sessionID, accessToken string) error
	DeleteByRefreshToken(ctx context.Context, token string) error
}
