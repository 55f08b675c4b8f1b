package users

import (
	"context"
	"crypto/subtle"
	"strings"
	"sync"
	"time"
)

const operationTimeout = 10 * time.Second

// Authenticator verifies credentials against the record store and the
// account status policy.
type Authenticator[A Account] struct {
	store    RecordStore[A]
	hasher   PasswordHasher
	cfg      Config
	secret   []byte
	activity activityRecorder

	dummyOnce sync.Once
	dummyHash string
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator[A Account](store RecordStore[A], hasher PasswordHasher, cfg Config) *Authenticator[A] {
	if hasher == nil {
		hasher = NewBcryptHasher(cfg.GetBcryptCost())
	}

	return &Authenticator[A]{
		store:    store,
		hasher:   hasher,
		cfg:      cfg,
		secret:   []byte(cfg.GetTokenSecret()),
		activity: newActivityRecorder(),
	}
}

func (s *Authenticator[A]) WithLogger(logger Logger) *Authenticator[A] {
	if logger != nil {
		s.activity.logger = logger
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Authenticator[A]) WithActivitySink(sink ActivitySink) *Authenticator[A] {
	s.activity.sink = normalizeActivitySink(sink)
	return s
}

// Login checks identifier and password. The three rejections carry the
// same public message, and a hash comparison runs on every branch so the
// response time does not tell them apart.
func (s *Authenticator[A]) Login(ctx context.Context, identifier, password string) (*SessionDirective, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	identifier = strings.TrimSpace(identifier)

	account, err := s.lookup(ctx, identifier)
	if err != nil {
		if !IsRecordNotFound(err) {
			s.activity.logger.Error("login lookup failed", "error", err)
			return nil, PersistenceError(err, "failed to retrieve user during login")
		}

		s.burnHash(password)
		s.activity.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Message:   "invalid login attempt (no such user)",
			Metadata:  map[string]any{"identifier": identifier},
		})
		return nil, ErrNoSuchUser
	}

	userID := account.GetID().String()

	if !s.CanLogin(account) {
		s.burnHash(password)
		s.activity.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Message:   "invalid login attempt (account inactive)",
			UserID:    userID,
			Metadata:  map[string]any{"status": string(account.GetStatus())},
		})
		return nil, ErrAccountInactive
	}

	if !s.hasher.Verify(password, account.GetPasswordHash()) {
		s.activity.record(ctx, ActivityEvent{
			EventType: ActivityEventLoginFailure,
			Message:   "invalid login attempt (incorrect password)",
			UserID:    userID,
		})
		return nil, ErrBadPassword
	}

	if err := s.store.TrackLogin(ctx, account); err != nil {
		s.activity.logger.Error("failed to track successful login", "error", err, "user_id", userID)
	}

	s.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventLoginSuccess,
		Message:   "logged in",
		UserID:    userID,
	})

	return s.Directive(account), nil
}

// CanLogin applies the status gate: active accounts may log in, and when
// activation is not required so may any account that is not deactivated.
func (s *Authenticator[A]) CanLogin(account A) bool {
	switch account.GetStatus() {
	case UserStatusActive:
		return true
	case UserStatusDeactivated:
		return false
	default:
		return !s.cfg.GetRequireActivation()
	}
}

// Directive builds the session directive for account per the auto login policy
func (s *Authenticator[A]) Directive(account A) *SessionDirective {
	return &SessionDirective{
		UserID:          account.GetID().String(),
		UserName:        account.GetName(),
		Duration:        sessionDuration(s.cfg),
		CredentialStamp: CredentialStamp(s.secret, account),
	}
}

// CurrentAccount resolves the account behind an authenticated session.
// Sessions of accounts that can no longer log in are rejected, and so are
// stamped sessions issued before the last password change.
func (s *Authenticator[A]) CurrentAccount(ctx context.Context, session SessionContext) (A, error) {
	var zero A
	if session == nil || !session.IsAuthenticated() {
		return zero, ErrNotAuthenticated
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	account, err := s.store.FindByID(ctx, session.UserID())
	if err != nil {
		if IsRecordNotFound(err) {
			return zero, ErrNotAuthenticated
		}
		return zero, PersistenceError(err, "failed to retrieve session user")
	}

	if isNilAccount(account) || !s.CanLogin(account) {
		return zero, ErrNotAuthenticated
	}

	if stamped, ok := session.(StampedSession); ok {
		current := CredentialStamp(s.secret, account)
		if subtle.ConstantTimeCompare([]byte(stamped.CredentialStamp()), []byte(current)) != 1 {
			return zero, ErrNotAuthenticated
		}
	}

	return account, nil
}

func (s *Authenticator[A]) lookup(ctx context.Context, identifier string) (A, error) {
	var zero A
	if identifier == "" {
		return zero, ErrRecordNotFound
	}

	account, err := s.store.FindByField(ctx, "email", identifier)
	if err != nil {
		return zero, err
	}

	if isNilAccount(account) {
		return zero, ErrRecordNotFound
	}

	return account, nil
}

// burnHash spends the time of a real comparison against a throwaway hash
func (s *Authenticator[A]) burnHash(password string) {
	s.dummyOnce.Do(func() {
		h, err := s.hasher.HashPassword("not-a-real-password")
		if err == nil {
			s.dummyHash = h
		}
	})
	if s.dummyHash != "" {
		s.hasher.Verify(password, s.dummyHash)
	}
}

func withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, operationTimeout)
}
