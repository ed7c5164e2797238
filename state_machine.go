package account

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_VERIFICATION_TRANSITION"
	textCodeHookFailed        = "VERIFICATION_HOOK_FAILED"
)

// ErrInvalidTransition is returned when a requested state change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid verification state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// ActorRef identifies who/what triggered a transition.
type ActorRef struct {
	ID   string
	Type string
}

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor   ActorRef
	Account *Account
	From    VerificationState
	To      VerificationState
	At      time.Time
	Meta    TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// VerificationStore persists the verified state. It returns the stored
// record after the write so concurrent completions converge.
type VerificationStore interface {
	MarkVerified(ctx context.Context, account *Account, at time.Time) (*Account, error)
}

// VerificationStoreFunc adapts a function to VerificationStore
type VerificationStoreFunc func(ctx context.Context, account *Account, at time.Time) (*Account, error)

func (f VerificationStoreFunc) MarkVerified(ctx context.Context, account *Account, at time.Time) (*Account, error) {
	return f(ctx, account, at)
}

// VerificationStateMachine moves accounts between verification states.
type VerificationStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, account *Account, target VerificationState, opts ...TransitionOption) (*Account, error)
	CurrentState(account *Account) VerificationState
}

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*verificationStateMachine)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *verificationStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *verificationStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *verificationStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *verificationStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithBeforeTransitionHook adds a hook executed before the state update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the state update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// NewVerificationStateMachine returns the default implementation backed by store.
func NewVerificationStateMachine(store VerificationStore, opts ...StateMachineOption) VerificationStateMachine {
	sm := &verificationStateMachine{
		store: store,
		transitions: map[VerificationState]map[VerificationState]struct{}{
			StateUnverified: {
				StateVerified: {},
			},
		},
		now:              time.Now,
		activitySink:     noopActivitySink{},
		logger:           defLogger{},
		hookErrorHandler: defaultHookErrorHandler,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type verificationStateMachine struct {
	store            VerificationStore
	transitions      map[VerificationState]map[VerificationState]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata    TransitionMetadata
	beforeHooks []TransitionHook
	afterHooks  []TransitionHook
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *verificationStateMachine) Transition(ctx context.Context, actor ActorRef, account *Account, target VerificationState, opts ...TransitionOption) (*Account, error) {
	if account == nil {
		return nil, ErrInvalidTransition
	}

	if target == "" {
		return nil, ErrInvalidTransition
	}

	from := account.State()
	if from == target {
		return account, nil
	}

	if !sm.canTransition(from, target) {
		sm.logger.Warn("rejected verification transition", "account_id", account.ID, "from", from, "to", target)
		return nil, ErrInvalidTransition
	}

	options := sm.buildTransitionOptions(opts...)
	at := sm.now()

	tc := TransitionContext{
		Actor:   actor,
		Account: account,
		From:    from,
		To:      target,
		At:      at,
		Meta:    options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, tc, HookPhaseBefore); err != nil {
		return nil, err
	}

	updated, err := sm.store.MarkVerified(ctx, account, at)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(account, updated, at)

	if err := sm.runHooks(ctx, options.afterHooks, tc, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventAccountVerified,
		Actor:     actor,
		AccountID: account.ID.String(),
		FromState: from,
		ToState:   target,
		Metadata:  sm.transitionMetadata(tc.Meta),
	})

	return account, nil
}

func (sm *verificationStateMachine) CurrentState(account *Account) VerificationState {
	return account.State()
}

func (sm *verificationStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *verificationStateMachine) canTransition(from, to VerificationState) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *verificationStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	return goerrors.Wrap(err, goerrors.CategoryOperation, "verification transition hook failed").
		WithTextCode(textCodeHookFailed).
		WithMetadata(map[string]any{
			"phase":      phase,
			"account_id": tc.Account.ID.String(),
			"from":       tc.From,
			"to":         tc.To,
		})
}

// applyUpdates copies the stored state onto account. A nil record means
// the store wrote exactly what we asked for.
func (sm *verificationStateMachine) applyUpdates(account, updated *Account, at time.Time) {
	if updated == nil {
		account.markVerified(at)
		return
	}

	account.EmailVerified = updated.EmailVerified
	account.JoinedAt = updated.JoinedAt
	account.EmailCheckToken = updated.EmailCheckToken
	account.EmailCheckTokenGeneratedAt = updated.EmailCheckTokenGeneratedAt
	if updated.UpdatedAt != nil {
		account.UpdatedAt = updated.UpdatedAt
	}
}

func (sm *verificationStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error", "error", err)
	}
}

func (sm *verificationStateMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
