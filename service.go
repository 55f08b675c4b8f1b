package users

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// ErrMissingTokenSecret the service cannot sign codes without a secret
var ErrMissingTokenSecret = goerrors.New("token secret is required", goerrors.CategoryValidation).
	WithTextCode("MISSING_TOKEN_SECRET").
	WithCode(goerrors.CodeBadRequest)

// ServiceOption configures NewService
type ServiceOption func(*serviceOptions)

type serviceOptions struct {
	logger Logger
	sink   ActivitySink
	hasher PasswordHasher
	clock  func() time.Time
}

func WithServiceLogger(logger Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func WithServiceActivitySink(sink ActivitySink) ServiceOption {
	return func(o *serviceOptions) {
		o.sink = sink
	}
}

func WithServiceHasher(hasher PasswordHasher) ServiceOption {
	return func(o *serviceOptions) {
		if hasher != nil {
			o.hasher = hasher
		}
	}
}

// WithServiceClock sets the clock codes are issued and checked against
func WithServiceClock(clock func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// Service is the produced interface of the package: every account
// operation behind one value.
type Service[A Account] struct {
	Auth         *Authenticator[A]
	Recovery     *PasswordRecovery[A]
	Activation   *Activation[A]
	Registration *Registration[A]
	Account      *PasswordChanger[A]
	Preferences  *PreferenceStore
	States       UserStateMachine[A]
	Tokens       *TokenGenerator

	logger Logger
}

// NewService wires all flows around store
func NewService[A Account](store RecordStore[A], prefs PreferenceRecords, build AccountBuilder[A], mailer Mailer, cfg Config, opts ...ServiceOption) (*Service[A], error) {
	if cfg.GetTokenSecret() == "" {
		return nil, ErrMissingTokenSecret
	}

	o := &serviceOptions{
		logger: defLogger{},
		clock:  time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(o)
		}
	}

	if o.hasher == nil {
		o.hasher = NewBcryptHasher(cfg.GetBcryptCost())
	}

	tokens := NewTokenGenerator([]byte(cfg.GetTokenSecret()),
		WithTokenClock(o.clock),
		WithPasswordResetTTL(cfg.GetPasswordResetTTL()),
		WithActivationTTL(cfg.GetActivationTTL()),
	)

	states := NewUserStateMachine[A](store,
		WithStateMachineActivitySink[A](o.sink),
		WithStateMachineLogger[A](o.logger),
		WithStateMachineClock[A](o.clock),
	)

	auth := NewAuthenticator(store, o.hasher, cfg).
		WithLogger(o.logger).
		WithActivitySink(o.sink)

	activation := NewActivation(store, tokens, mailer, auth, cfg).
		WithLogger(o.logger).
		WithActivitySink(o.sink).
		WithStateMachine(states)

	preferences := NewPreferenceStore(prefs).
		WithLogger(o.logger).
		WithActivitySink(o.sink)

	return &Service[A]{
		Auth: auth,
		Recovery: NewPasswordRecovery(store, o.hasher, tokens, mailer, auth, cfg).
			WithLogger(o.logger).
			WithActivitySink(o.sink),
		Activation: activation,
		Registration: NewRegistration(store, build, o.hasher, activation, cfg).
			WithLogger(o.logger).
			WithActivitySink(o.sink),
		Account: NewPasswordChanger(auth, store, o.hasher, preferences, cfg).
			WithLogger(o.logger).
			WithActivitySink(o.sink),
		Preferences: preferences,
		States:      states,
		Tokens:      tokens,
		logger:      o.logger,
	}, nil
}

// NewUserService builds a Service over the bun backed User store
func NewUserService(db *bun.DB, mailer Mailer, cfg Config, opts ...ServiceOption) (*Service[*User], error) {
	repo := NewUsersRepository(db)
	return NewService[*User](repo, repo, NewUser, mailer, cfg, opts...)
}

func (s *Service[A]) Register(ctx context.Context, msg RegisterUserMessage) (A, error) {
	return s.Registration.Execute(ctx, msg)
}

func (s *Service[A]) Login(ctx context.Context, identifier, password string) (*SessionDirective, error) {
	return s.Auth.Login(ctx, identifier, password)
}

func (s *Service[A]) ChangePassword(ctx context.Context, session SessionContext, msg ChangePasswordMessage) error {
	return s.Account.ChangePassword(ctx, session, msg)
}

// RequestPasswordReset never reveals whether email belongs to an account
// unless the configuration opts in.
func (s *Service[A]) RequestPasswordReset(ctx context.Context, email string) error {
	return s.Recovery.RequestReset(ctx, RequestPasswordResetMessage{Email: email})
}

func (s *Service[A]) ResetPassword(ctx context.Context, msg ResetPasswordMessage) (*SessionDirective, error) {
	return s.Recovery.ResetPassword(ctx, msg)
}

func (s *Service[A]) Activate(ctx context.Context, id, code string) (ActivationResult, error) {
	return s.Activation.Activate(ctx, ActivateAccountMessage{ID: id, Code: code})
}

// SetPreference stores a preference of the session owner
func (s *Service[A]) SetPreference(ctx context.Context, session SessionContext, key, value string) (string, error) {
	account, err := s.Auth.CurrentAccount(ctx, session)
	if err != nil {
		return "", err
	}
	return s.Preferences.Set(ctx, session, account, key, value)
}

func (s *Service[A]) Logger() Logger {
	return s.logger
}
