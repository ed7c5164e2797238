package account_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	account "github.com/studyolle/go-account"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

const testSigningKey = "test-signing-key"

// newTestDB returns a migrated in-memory sqlite database private to the test
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	require.NoError(t, account.RunMigrations(context.Background(), sqldb, "sqlite"))

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { _ = db.Close() })

	return db
}

type recordingNotifier struct {
	mu       sync.Mutex
	messages []account.VerificationMessage
	err      error
}

func (n *recordingNotifier) SendVerification(_ context.Context, msg account.VerificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.messages = append(n.messages, msg)
	return nil
}

func (n *recordingNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.messages)
}

func (n *recordingNotifier) Last() account.VerificationMessage {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.messages) == 0 {
		return account.VerificationMessage{}
	}
	return n.messages[len(n.messages)-1]
}

type recordingSink struct {
	mu     sync.Mutex
	events []account.ActivityEvent
}

func (s *recordingSink) Record(_ context.Context, event account.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) Types() []account.ActivityEventType {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]account.ActivityEventType, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.EventType)
	}
	return out
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testConfig struct {
	secure bool
}

func (testConfig) GetSigningKey() string            { return testSigningKey }
func (testConfig) GetTokenExpiration() int          { return 24 }
func (testConfig) GetContextKey() string            { return "studyhub_session" }
func (testConfig) GetIssuer() string                { return "studyhub" }
func (c testConfig) GetCookieSecure() bool          { return c.secure }
func (testConfig) GetEmailTokenTTL() time.Duration  { return account.DefaultEmailTokenTTL }
func (testConfig) GetResendCooldown() time.Duration { return account.DefaultResendCooldown }
func (testConfig) GetLoginRoute() string            { return "/login" }

type fixture struct {
	db        *bun.DB
	repo      account.RepositoryManager
	tokens    *account.TokenService
	notifier  *recordingNotifier
	sink      *recordingSink
	clock     *fakeClock
	lifecycle *account.LifecycleManager
}

func newFixture(t *testing.T, opts ...account.LifecycleOption) *fixture {
	t.Helper()

	db := newTestDB(t)
	f := &fixture{
		db:       db,
		repo:     account.NewRepositoryManager(db),
		tokens:   account.NewTokenServiceFromConfig(testConfig{}, account.NoopLogger()),
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
		clock:    newFakeClock(),
	}

	base := []account.LifecycleOption{
		account.WithHost("http://localhost:8080"),
		account.WithNotifier(f.notifier),
		account.WithSessionIssuer(f.tokens),
		account.WithActivitySink(f.sink),
		account.WithLifecycleLogger(account.NoopLogger()),
		account.WithLifecycleClock(f.clock.Now),
		account.WithPasswordHasher(account.BcryptHasher{Cost: 4}),
	}

	f.lifecycle = account.NewLifecycleManager(f.repo, append(base, opts...)...)
	return f
}

func (f *fixture) createAccount(t *testing.T, nickname, email string) *account.Account {
	t.Helper()

	acc, err := f.lifecycle.CreateAccount(context.Background(), account.NewAccount{
		Email:    email,
		Nickname: nickname,
		Password: "12345678",
	})
	require.NoError(t, err)
	require.NotNil(t, acc)
	return acc
}
