package identity

import "time"

// UserStatus is the lifecycle status of a user record.
type UserStatus string

const (
	StatusPending  UserStatus = "pending"
	StatusActive   UserStatus = "active"
	StatusInactive UserStatus = "inactive"
	StatusRemoved  UserStatus = "removed"
)

// User is the identity record. It is created on the first OTP request with an
// empty password hash; the hash and active status are set on activation. This
// subsystem never deletes users.
type User struct {
	ID            string
	Email         string
	FullName      string
	PasswordHash  string
	Status        UserStatus
	EmailVerified bool
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ChallengeType identifies what a security challenge proves.
type ChallengeType string

// ChallengeActivationMail is the signup email-ownership challenge.
const ChallengeActivationMail ChallengeType = "activation_mail"

// Channel is the delivery channel of a challenge.
type Channel string

// ChannelEmail delivers codes over email.
const ChannelEmail Channel = "email"

// SecurityChallenge is the single pending challenge per
// (user, challenge type, channel). OtpHash is a one-way hash of the code sent
// to the user; Secret is the raw anchor value whose hash lives in the client
// cookie. A consumed or never-issued challenge has an empty Secret.
type SecurityChallenge struct {
	ID             string
	UserID         string
	Type           ChallengeType
	Channel        Channel
	OtpHash        string
	Secret         string
	ExpiresAt      *time.Time
	OtpRequestedAt *time.Time
	Tries          int
	ResendCount    int
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TokenSession is one row per issued refresh token. SessionID is the opaque
// identifier shared by the access/refresh pair and stays stable across access
// token rotations; only AccessToken changes in place.
type TokenSession struct {
	ID           string
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
