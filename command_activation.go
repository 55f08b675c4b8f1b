package users

import (
	"context"
	"errors"

	goerrors "github.com/goliatone/go-errors"
)

// ActivationResult is the outcome of a successful activation request.
// AlreadyActive reports a repeated request: no state change and no session.
type ActivationResult struct {
	AlreadyActive bool
	Session       *SessionDirective
}

// ActivateAccountMessage carries the values from the activation link
type ActivateAccountMessage struct {
	ID   string `json:"id" query:"id" form:"id"`
	Code string `json:"key" query:"key" form:"key"`
}

func (m ActivateAccountMessage) Type() string { return "user.activate" }

// Activation moves unverified accounts to active once the mailed code is
// presented.
type Activation[A Account] struct {
	store    RecordStore[A]
	tokens   *TokenGenerator
	mailer   Mailer
	auth     *Authenticator[A]
	states   UserStateMachine[A]
	cfg      Config
	activity activityRecorder
}

// NewActivation creates the activation flow. The state machine persists
// through store unless one is supplied with WithStateMachine.
func NewActivation[A Account](store RecordStore[A], tokens *TokenGenerator, mailer Mailer, auth *Authenticator[A], cfg Config) *Activation[A] {
	return &Activation[A]{
		store:    store,
		tokens:   tokens,
		mailer:   mailer,
		auth:     auth,
		states:   NewUserStateMachine[A](store),
		cfg:      cfg,
		activity: newActivityRecorder(),
	}
}

func (a *Activation[A]) WithLogger(logger Logger) *Activation[A] {
	if logger != nil {
		a.activity.logger = logger
	}
	return a
}

func (a *Activation[A]) WithActivitySink(sink ActivitySink) *Activation[A] {
	a.activity.sink = normalizeActivitySink(sink)
	return a
}

func (a *Activation[A]) WithStateMachine(sm UserStateMachine[A]) *Activation[A] {
	if sm != nil {
		a.states = sm
	}
	return a
}

// SendActivation mails the activation link to account
func (a *Activation[A]) SendActivation(ctx context.Context, account A) error {
	if isNilAccount(account) {
		return ErrInvalidRequest
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	code := a.tokens.ActivationCode(account)
	data := mailData(account, code, a.ActivationLink(account, code))

	if err := a.mailer.Send(ctx, TemplateActivation, account.GetEmail(), data); err != nil {
		a.activity.logger.Error("activation mail failed", "error", err, "user_id", account.GetID().String())
		return ErrDeliveryFailed
	}

	a.activity.logger.Debug("activation mail sent", "user_id", account.GetID().String())
	return nil
}

// Activate checks the code and activates the account
func (a *Activation[A]) Activate(ctx context.Context, msg ActivateAccountMessage) (ActivationResult, error) {
	select {
	case <-ctx.Done():
		return ActivationResult{}, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during activation")
	default:
		return a.activate(ctx, msg)
	}
}

func (a *Activation[A]) activate(ctx context.Context, msg ActivateAccountMessage) (ActivationResult, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	account, err := a.store.FindByID(ctx, msg.ID)
	if err == nil && isNilAccount(account) {
		err = ErrRecordNotFound
	}

	if err != nil {
		if !IsRecordNotFound(err) {
			return ActivationResult{}, PersistenceError(err, "failed to retrieve user for activation")
		}
		a.reject(ctx, "", "invalid activation attempt (no such user)", map[string]any{"id": msg.ID})
		return ActivationResult{}, ErrInvalidRequest
	}

	userID := account.GetID().String()

	if err := a.tokens.VerifyActivationCode(account, msg.Code); err != nil {
		a.reject(ctx, userID, "invalid activation attempt (invalid code)", map[string]any{"reason": textCode(err)})
		return ActivationResult{}, ErrInvalidRequest
	}

	switch account.GetStatus() {
	case UserStatusActive:
		a.activity.logger.Warn("activation requested for active account", "user_id", userID)
		return ActivationResult{AlreadyActive: true}, nil
	case UserStatusDeactivated:
		a.reject(ctx, userID, "activation attempt on deactivated account", nil)
		return ActivationResult{}, ErrAccountInactive
	}

	actor := ActorFromContext(ctx)
	if actor.ID == "" {
		actor.ID = userID
		actor.Type = "user"
	}

	if err := a.states.Transition(ctx, actor, account, UserStatusActive, WithTransitionReason("activation code")); err != nil {
		if errors.Is(err, ErrStaleRecord) {
			return a.lostRace(ctx, userID)
		}
		a.activity.logger.Error("activation transition failed", "error", err, "user_id", userID)
		return ActivationResult{}, ErrActivationFailed
	}

	a.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventActivated,
		Channel:   ChannelAccountActivation,
		Message:   "account activated",
		UserID:    userID,
	})

	return ActivationResult{Session: a.auth.Directive(account)}, nil
}

// lostRace resolves an activation whose status write was beaten by a
// concurrent one. Only the winner gets a session.
func (a *Activation[A]) lostRace(ctx context.Context, userID string) (ActivationResult, error) {
	current, err := a.store.FindByID(ctx, userID)
	if err == nil && !isNilAccount(current) && current.GetStatus() == UserStatusActive {
		return ActivationResult{AlreadyActive: true}, nil
	}
	a.reject(ctx, userID, "invalid activation attempt (status changed concurrently)", nil)
	return ActivationResult{}, ErrInvalidRequest
}

func (a *Activation[A]) reject(ctx context.Context, userID, message string, metadata map[string]any) {
	a.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventActivationFailure,
		Channel:   ChannelAccountActivation,
		Message:   message,
		UserID:    userID,
		Metadata:  metadata,
	})
}

// ActivationLink is the absolute link mailed to the user
func (a *Activation[A]) ActivationLink(account A, code string) string {
	return buildLink(a.cfg.GetBaseURL(), a.cfg.GetActivationPath(), account.GetID().String(), code)
}
