package identity

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"sync"
	"testing"
	"time"

	"resumatch.org/internal/mail"
)

// captureNotifier records delivered codes instead of sending mail.
type captureNotifier struct {
	mu      sync.Mutex
	lastTo  string
	lastOtp string
	sends   int
	fail    error
}

func (n *captureNotifier) Deliver(_ context.Context, _ string, to string, fields mail.Fields) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail != nil {
		return n.fail
	}
	n.lastTo = to
	n.lastOtp = fields["otp"]
	n.sends++
	return nil
}

// fakeClock is a settable time source shared by the collaborators under test.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock(t time.Time) *fakeClock { return &fakeClock{t: t} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

var (
	testKeyOnce sync.Once
	testKey     *rsa.PrivateKey
	testKeyErr  error
)

// testRSAKey generates one RSA key for the whole package run; key generation
// dominates test time otherwise.
func testRSAKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	testKeyOnce.Do(func() {
		testKey, testKeyErr = rsa.GenerateKey(rand.Reader, 2048)
	})
	if testKeyErr != nil {
		t.Fatalf("generate rsa key: %v", testKeyErr)
	}
	return testKey
}

func testBox(t *testing.T) *SealedBox {
	t.Helper()
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i)
	}
	box, err := NewSealedBox(key)
	if err != nil {
		t.Fatalf("new sealed box: %v", err)
	}
	return box
}

// testHarness bundles a fully wired service over in-memory storage.
type testHarness struct {
	store    *InMemoryStore
	notifier *captureNotifier
	clock    *fakeClock
	issuer   *TokenIssuer
	svc      *Service
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	clock := newFakeClock(time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))
	store := NewInMemoryStore()
	notifier := &captureNotifier{}
	box := testBox(t)
	key := testRSAKey(t)
	issuer := NewTokenIssuer(key, &key.PublicKey, "resumatch", WithIssuerClock(clock.Now))
	challenges := NewChallengeManager(store, notifier, box, WithChallengeClock(clock.Now))
	svc := NewService(store, challenges, issuer, box, WithServiceClock(clock.Now))
	return &testHarness{store: store, notifier: notifier, clock: clock, issuer: issuer, svc: svc}
}
