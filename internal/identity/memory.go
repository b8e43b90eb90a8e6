package identity

import (
	"context"
	"sync"
)

// InMemoryStore is a Store kept entirely in process memory. It backs local
// development without a database and the test suites.
type InMemoryStore struct {
	mu         sync.Mutex
	users      map[string]*User
	challenges map[string]*SecurityChallenge
	sessions   map[string]*TokenSession
}

// NewInMemoryStore creates an empty store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		users:      make(map[string]*User),
		challenges: make(map[string]*SecurityChallenge),
		sessions:   make(map[string]*TokenSession),
	}
}

var _ Store = (*InMemoryStore)(nil)

func (m *InMemoryStore) Users(context.Context) UserStore           { return (*memUsers)(m) }
func (m *InMemoryStore) Challenges(context.Context) ChallengeStore { return (*memChallenges)(m) }
func (m *InMemoryStore) Sessions(context.Context) SessionStore     { return (*memSessions)(m) }

type memUsers InMemoryStore

func (m *memUsers) Create(_ context.Context, u *User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return ErrAlreadyExists
		}
	}
	cp := *u
	m.users[u.ID] = &cp
	return nil
}

func (m *memUsers) Find(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memUsers) MarkEmailVerified(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.EmailVerified = true
	return nil
}

func (m *memUsers) Activate(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.PasswordHash = passwordHash
	u.Status = StatusActive
	u.EmailVerified = true
	return nil
}

type memChallenges InMemoryStore

func challengeKey(userID string, typ ChallengeType, channel Channel) string {
	return userID + "/" + string(typ) + "/" + string(channel)
}

func (m *memChallenges) Upsert(_ context.Context, ch *SecurityChallenge) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *ch
	m.challenges[challengeKey(ch.UserID, ch.Type, ch.Channel)] = &cp
	return nil
}

func (m *memChallenges) Create(ctx context.Context, ch *SecurityChallenge) error {
	return m.Upsert(ctx, ch)
}

func (m *memChallenges) Find(_ context.Context, userID string, typ ChallengeType, channel Channel) (*SecurityChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[challengeKey(userID, typ, channel)]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *ch
	return &cp, nil
}

func (m *memChallenges) FindByUser(_ context.Context, userID string) (*SecurityChallenge, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ch := range m.challenges {
		if ch.UserID == userID {
			cp := *ch
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memChallenges) IncrementTries(_ context.Context, userID string, typ ChallengeType, channel Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[challengeKey(userID, typ, channel)]
	if !ok {
		return ErrNotFound
	}
	ch.Tries++
	return nil
}

func (m *memChallenges) Clear(_ context.Context, userID string, typ ChallengeType, channel Channel) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ch, ok := m.challenges[challengeKey(userID, typ, channel)]
	if !ok {
		return ErrNotFound
	}
	ch.OtpHash = ""
	ch.Secret = ""
	ch.ExpiresAt = nil
	ch.OtpRequestedAt = nil
	ch.Tries = 0
	ch.ResendCount = 0
	return nil
}

type memSessions InMemoryStore

func (m *memSessions) Create(_ context.Context, s *TokenSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *s
	m.sessions[s.ID] = &cp
	return nil
}

func (m *memSessions) FindByAccessToken(_ context.Context, token string) (*TokenSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.AccessToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memSessions) FindByRefreshToken(_ context.Context, token string) (*TokenSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.RefreshToken == token {
			cp := *s
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memSessions) UpdateAccessToken(_ context.Context, sessionID, accessToken string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.sessions {
		if s.SessionID == sessionID {
			s.AccessToken = accessToken
			return nil
		}
	}
	return ErrNotFound
}

func (m *memSessions) DeleteByRefreshToken(_ context.Context, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.sessions {
		if s.RefreshToken == token {
			delete(m.sessions, id)
			return nil
		}
	}
	return nil
}
