package users

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidTransition = "INVALID_USER_STATE_TRANSITION"

// ErrInvalidTransition is returned when a requested status change is not allowed.
var ErrInvalidTransition = goerrors.New("invalid user state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// StatusSaver persists a status change while the stored status is still from
type StatusSaver[A Account] interface {
	UpdateStatus(ctx context.Context, account A, from UserStatus) error
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext[A Account] struct {
	Actor  ActorRef
	User   A
	From   UserStatus
	To     UserStatus
	Reason string
}

// TransitionHook is executed after a transition has been persisted.
type TransitionHook[A Account] func(ctx context.Context, tc TransitionContext[A]) error

// UserStateMachine defines lifecycle operations for accounts.
type UserStateMachine[A Account] interface {
	Transition(ctx context.Context, actor ActorRef, account A, target UserStatus, opts ...TransitionOption) error
	CanTransition(from, to UserStatus) bool
}

// TransitionOption customizes a single transition
type TransitionOption func(*transitionOptions)

type transitionOptions struct {
	reason string
	force  bool
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.reason = reason
	}
}

// WithForceTransition bypasses validation rules (use sparingly).
func WithForceTransition() TransitionOption {
	return func(opts *transitionOptions) {
		opts.force = true
	}
}

// StateMachineOption customizes state machine construction.
type StateMachineOption[A Account] func(*userStateMachine[A])

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink[A Account](sink ActivitySink) StateMachineOption[A] {
	return func(sm *userStateMachine[A]) {
		sm.activity.sink = normalizeActivitySink(sink)
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger[A Account](logger Logger) StateMachineOption[A] {
	return func(sm *userStateMachine[A]) {
		if logger != nil {
			sm.activity.logger = logger
		}
	}
}

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock[A Account](clock func() time.Time) StateMachineOption[A] {
	return func(sm *userStateMachine[A]) {
		if clock != nil {
			sm.activity.now = clock
		}
	}
}

// WithAfterTransitionHook adds a hook executed after every persisted transition.
func WithAfterTransitionHook[A Account](h TransitionHook[A]) StateMachineOption[A] {
	return func(sm *userStateMachine[A]) {
		if h != nil {
			sm.afterHooks = append(sm.afterHooks, h)
		}
	}
}

// NewUserStateMachine returns the default implementation backed by store.
func NewUserStateMachine[A Account](store StatusSaver[A], opts ...StateMachineOption[A]) UserStateMachine[A] {
	sm := &userStateMachine[A]{
		store: store,
		transitions: map[UserStatus]map[UserStatus]struct{}{
			UserStatusUnverified: {
				UserStatusActive:      {},
				UserStatusDeactivated: {},
			},
			UserStatusActive: {
				UserStatusDeactivated: {},
			},
			UserStatusDeactivated: {
				UserStatusActive: {},
			},
		},
		activity: newActivityRecorder(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type userStateMachine[A Account] struct {
	store       StatusSaver[A]
	transitions map[UserStatus]map[UserStatus]struct{}
	afterHooks  []TransitionHook[A]
	activity    activityRecorder
}

// Transition moves account to target and persists it. On a store failure
// the in-memory status is rolled back. When another writer changed the
// stored status first the error is ErrStaleRecord.
func (sm *userStateMachine[A]) Transition(ctx context.Context, actor ActorRef, account A, target UserStatus, opts ...TransitionOption) error {
	if isNilAccount(account) {
		return ErrInvalidTransition
	}

	if target == "" {
		return ErrInvalidTransition
	}

	from := account.GetStatus()
	if from == target {
		return nil
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	if !options.force && !sm.CanTransition(from, target) {
		return ErrInvalidTransition
	}

	account.SetStatus(target)
	if err := sm.store.UpdateStatus(ctx, account, from); err != nil {
		account.SetStatus(from)
		if errors.Is(err, ErrStaleRecord) {
			return ErrStaleRecord
		}
		return PersistenceError(err, "failed to persist user status")
	}

	tc := TransitionContext[A]{
		Actor:  actor,
		User:   account,
		From:   from,
		To:     target,
		Reason: options.reason,
	}

	for _, hook := range sm.afterHooks {
		if err := hook(ctx, tc); err != nil {
			sm.activity.logger.Error("after transition hook failed", "error", err, "user_id", account.GetID().String())
		}
	}

	metadata := map[string]any{}
	if options.reason != "" {
		metadata["reason"] = options.reason
	}

	sm.activity.record(ctx, ActivityEvent{
		EventType:  ActivityEventUserStatusChanged,
		Channel:    ChannelUserAdministration,
		Message:    "user status changed",
		Actor:      actor,
		UserID:     account.GetID().String(),
		FromStatus: from,
		ToStatus:   target,
		Metadata:   metadata,
	})

	return nil
}

func (sm *userStateMachine[A]) CanTransition(from, to UserStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

// Deactivate blocks the account from logging in
func Deactivate[A Account](ctx context.Context, sm UserStateMachine[A], actor ActorRef, account A, reason string) error {
	return sm.Transition(ctx, actor, account, UserStatusDeactivated, WithTransitionReason(reason))
}

// Reinstate reactivates a deactivated account
func Reinstate[A Account](ctx context.Context, sm UserStateMachine[A], actor ActorRef, account A, reason string) error {
	if account.GetStatus() != UserStatusDeactivated {
		return ErrInvalidTransition
	}
	return sm.Transition(ctx, actor, account, UserStatusActive, WithTransitionReason(reason))
}
