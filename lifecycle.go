package account

import (
	"context"
	"crypto/subtle"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const (
	// DefaultEmailTokenTTL is how long a verification token stays valid
	DefaultEmailTokenTTL = 24 * time.Hour
	// DefaultResendCooldown is the minimum gap between confirmation emails
	DefaultResendCooldown = time.Hour
)

// NewAccount holds what is needed to create an account
type NewAccount struct {
	ID            uuid.UUID
	Email         string
	Nickname      string
	Password      string
	Notifications *NotificationSettings
}

// LifecycleManager owns account creation, email verification and login
type LifecycleManager struct {
	repo           RepositoryManager
	hasher         PasswordHasher
	notifier       Notifier
	issuer         SessionIssuer
	activitySink   ActivitySink
	logger         Logger
	host           string
	tokenTTL       time.Duration
	resendCooldown time.Duration
	newToken       func() string
	now            func() time.Time
	smOptions      []StateMachineOption
}

// LifecycleOption customizes the LifecycleManager
type LifecycleOption func(*LifecycleManager)

func WithPasswordHasher(h PasswordHasher) LifecycleOption {
	return func(m *LifecycleManager) {
		if h != nil {
			m.hasher = h
		}
	}
}

func WithNotifier(n Notifier) LifecycleOption {
	return func(m *LifecycleManager) {
		if n != nil {
			m.notifier = n
		}
	}
}

func WithSessionIssuer(i SessionIssuer) LifecycleOption {
	return func(m *LifecycleManager) {
		m.issuer = i
	}
}

func WithActivitySink(s ActivitySink) LifecycleOption {
	return func(m *LifecycleManager) {
		m.activitySink = normalizeActivitySink(s)
	}
}

func WithLifecycleLogger(l Logger) LifecycleOption {
	return func(m *LifecycleManager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithHost sets the base URL prepended to verification links
func WithHost(host string) LifecycleOption {
	return func(m *LifecycleManager) {
		m.host = host
	}
}

// WithEmailTokenTTL sets the token lifetime, zero disables expiry
func WithEmailTokenTTL(ttl time.Duration) LifecycleOption {
	return func(m *LifecycleManager) {
		m.tokenTTL = ttl
	}
}

func WithResendCooldown(d time.Duration) LifecycleOption {
	return func(m *LifecycleManager) {
		m.resendCooldown = d
	}
}

func WithTokenGenerator(fn func() string) LifecycleOption {
	return func(m *LifecycleManager) {
		if fn != nil {
			m.newToken = fn
		}
	}
}

func WithLifecycleClock(clock func() time.Time) LifecycleOption {
	return func(m *LifecycleManager) {
		if clock != nil {
			m.now = clock
		}
	}
}

func WithLifecycleStateMachineOptions(opts ...StateMachineOption) LifecycleOption {
	return func(m *LifecycleManager) {
		m.smOptions = append(m.smOptions, opts...)
	}
}

// NewLifecycleManager returns a manager backed by repo
func NewLifecycleManager(repo RepositoryManager, opts ...LifecycleOption) *LifecycleManager {
	m := &LifecycleManager{
		repo:           repo,
		hasher:         DefaultPasswordHasher(),
		activitySink:   noopActivitySink{},
		logger:         defLogger{},
		tokenTTL:       DefaultEmailTokenTTL,
		resendCooldown: DefaultResendCooldown,
		newToken:       NewEmailCheckToken,
		now:            time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.notifier == nil {
		m.notifier = LogNotifier{Logger: m.logger}
	}

	return m
}

// Repository returns the repository manager
func (m *LifecycleManager) Repository() RepositoryManager {
	return m.repo
}

// TokenTTL returns the verification token lifetime
func (m *LifecycleManager) TokenTTL() time.Duration {
	return m.tokenTTL
}

// CreateAccount persists a new unverified account with a fresh token and
// sends the verification message. When delivery fails the account is kept
// and returned together with an error matched by IsNotificationFailed.
func (m *LifecycleManager) CreateAccount(ctx context.Context, in NewAccount) (*Account, error) {
	hash, err := m.hasher.Hash(in.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid password provided")
	}

	notifications := DefaultNotificationSettings()
	if in.Notifications != nil {
		notifications = *in.Notifications
	}

	record := &Account{
		ID:                   in.ID,
		Email:                in.Email,
		Nickname:             in.Nickname,
		PasswordHash:         hash,
		EmailVerified:        false,
		NotificationSettings: notifications,
	}
	record.setEmailCheckToken(m.newToken(), m.now())

	var created *Account
	err = m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		created, err = m.repo.Accounts().RegisterTx(ctx, tx, record)
		return err
	})
	if err != nil {
		if _, ok := AsValidationErrors(err); ok {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "could not create account")
	}

	if created == nil {
		created = record
	}

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		AccountID: created.ID.String(),
		ToState:   created.State(),
		Metadata:  map[string]any{"nickname": created.Nickname},
	})

	if err := m.sendConfirmEmail(ctx, created); err != nil {
		return created, err
	}

	return created, nil
}

// CheckToken reports why token does not confirm account, nil when it does
func (m *LifecycleManager) CheckToken(account *Account, token string) error {
	if account == nil || !account.HasPendingToken() || token == "" {
		return ErrWrongEmail
	}

	if subtle.ConstantTimeCompare([]byte(account.EmailCheckToken), []byte(token)) != 1 {
		return ErrWrongEmail
	}

	if m.tokenTTL > 0 && account.IsTokenExpired(m.now(), m.tokenTTL) {
		return ErrTokenExpired
	}

	return nil
}

// VerifyToken reports whether token confirms account
func (m *LifecycleManager) VerifyToken(account *Account, token string) bool {
	return m.CheckToken(account, token) == nil
}

// CompleteSignup marks account verified. Completing an already verified
// account is a no-op.
func (m *LifecycleManager) CompleteSignup(ctx context.Context, account *Account) (*Account, error) {
	var out *Account
	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		out, err = m.CompleteSignupTx(ctx, tx, account)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// CompleteSignupTx is CompleteSignup inside an existing transaction
func (m *LifecycleManager) CompleteSignupTx(ctx context.Context, tx bun.IDB, account *Account) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidTransition
	}

	if account.IsVerified() {
		return account, nil
	}

	store := VerificationStoreFunc(func(ctx context.Context, acc *Account, at time.Time) (*Account, error) {
		applied, err := m.repo.Accounts().CompleteSignupTx(ctx, tx, acc.ID, at)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to complete sign-up")
		}
		if applied {
			return nil, nil
		}
		// someone else verified first, converge on the stored record
		return m.repo.Accounts().GetByEmailTx(ctx, tx, acc.Email)
	})

	opts := append([]StateMachineOption{
		WithStateMachineClock(m.now),
		WithStateMachineActivitySink(m.activitySink),
		WithStateMachineLogger(m.logger),
	}, m.smOptions...)

	sm := NewVerificationStateMachine(store, opts...)

	return sm.Transition(ctx,
		ActorRef{ID: account.ID.String(), Type: "account"},
		account,
		StateVerified,
		WithTransitionReason("email token confirmed"),
	)
}

// Login establishes a session bound to the account nickname
func (m *LifecycleManager) Login(ctx context.Context, account *Account) (Session, error) {
	if m.issuer == nil {
		return nil, goerrors.New("no session issuer configured", goerrors.CategoryInternal)
	}

	if account == nil {
		return nil, ErrUnableToFindSession
	}

	session, err := m.issuer.Issue(ctx, account)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "failed to establish session")
	}

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Actor:     ActorRef{ID: account.ID.String(), Type: "account"},
		AccountID: account.ID.String(),
		Metadata:  map[string]any{"nickname": account.Nickname},
	})

	return session, nil
}

// CanSendConfirmEmail reports whether the resend cooldown has passed. The
// cooldown starts from the last delivered message, a failed hand-off does
// not count.
func (m *LifecycleManager) CanSendConfirmEmail(account *Account) bool {
	if account == nil || account.IsVerified() {
		return false
	}
	return m.ResendAvailableIn(account) == 0
}

// ResendAvailableIn returns how long until account may ask for another
// confirmation email.
func (m *LifecycleManager) ResendAvailableIn(account *Account) time.Duration {
	if account == nil {
		return 0
	}
	return CooldownRemaining(m.now(), account.ConfirmEmailSentAt, m.resendCooldown)
}

// ResendConfirmEmail issues a new token and sends it again
func (m *LifecycleManager) ResendConfirmEmail(ctx context.Context, account *Account) error {
	if account == nil {
		return ErrWrongEmail
	}

	if account.IsVerified() {
		return ErrAlreadyVerified
	}

	if !m.CanSendConfirmEmail(account) {
		return ErrResendTooSoon
	}

	token := m.newToken()
	at := m.now()

	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return m.repo.Accounts().SetEmailCheckTokenTx(ctx, tx, account.ID, token, at)
	})
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store new email check token")
	}

	account.setEmailCheckToken(token, at)

	return m.sendConfirmEmail(ctx, account)
}

func (m *LifecycleManager) sendConfirmEmail(ctx context.Context, account *Account) error {
	msg := NewVerificationMessage(account, m.host, m.tokenTTL)

	if err := m.notifier.SendVerification(ctx, msg); err != nil {
		m.logger.Error("failed to send verification message",
			"account_id", account.ID.String(),
			"error", err,
		)
		return notificationFailed(err)
	}

	sentAt := m.now()
	err := m.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return m.repo.Accounts().SetConfirmEmailSentTx(ctx, tx, account.ID, sentAt)
	})
	if err != nil {
		m.logger.Warn("failed to record confirmation email delivery",
			"account_id", account.ID.String(),
			"error", err,
		)
	}
	account.setConfirmEmailSent(sentAt)

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventConfirmEmailSent,
		AccountID: account.ID.String(),
		ToState:   account.State(),
	})

	return nil
}

func (m *LifecycleManager) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorFromContext(ctx)
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}

	if err := normalizeActivitySink(m.activitySink).Record(ctx, event); err != nil {
		m.logger.Warn("lifecycle activity sink error", "error", err)
	}
}
