package users

import (
	"context"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger takes a message followed by key/value pairs
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Account is the capability set the flows need from a user record.
// User implements it; products with their own model can too.
type Account interface {
	GetID() uuid.UUID
	GetEmail() string
	GetName() string
	SetName(name string)
	GetPasswordHash() string
	SetPasswordHash(hash string)
	GetStatus() UserStatus
	SetStatus(status UserStatus)
}

// RecordStore is the persistence boundary for accounts.
//
// Updates are column scoped. UpdatePassword and UpdateStatus are
// conditional: they return ErrStaleRecord when the stored password hash
// or status no longer equals the value the caller read.
type RecordStore[A Account] interface {
	FindByID(ctx context.Context, id string) (A, error)
	FindByField(ctx context.Context, field, value string) (A, error)
	Create(ctx context.Context, account A) (A, error)
	UpdatePassword(ctx context.Context, account A, previousHash string) error
	UpdateStatus(ctx context.Context, account A, from UserStatus) error
	UpdateProfile(ctx context.Context, account A) error
	TrackLogin(ctx context.Context, account A) error
}

// PreferenceRecords stores per-user key/value settings
type PreferenceRecords interface {
	GetPreference(ctx context.Context, userID uuid.UUID, name string) (string, error)
	ListPreferences(ctx context.Context, userID uuid.UUID) (map[string]string, error)
	SetPreference(ctx context.Context, userID uuid.UUID, name, value string) error
}

// Mailer delivers a templated message to a single recipient
type Mailer interface {
	Send(ctx context.Context, template, recipient string, data map[string]any) error
}

// AccountFields carries the attributes of a new account
type AccountFields struct {
	ID           uuid.UUID
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	Status       UserStatus
}

// AccountBuilder creates an unsaved account from fields
type AccountBuilder[A Account] func(fields AccountFields) A

// SessionContext describes the actor of the current request.
type SessionContext interface {
	UserID() string
	IsAuthenticated() bool
}

// SessionDirective instructs the transport to establish an authenticated
// session. A zero Duration means the session ends with the browser.
// CredentialStamp must travel with the session so it can be checked by
// Authenticator.CurrentAccount.
type SessionDirective struct {
	UserID          string        `json:"user_id"`
	UserName        string        `json:"user_name"`
	Duration        time.Duration `json:"duration"`
	CredentialStamp string        `json:"-"`
}

// StampedSession is a SessionContext restored from a session token that
// recorded the credential stamp of its account
type StampedSession interface {
	SessionContext
	CredentialStamp() string
}

// PasswordHasher hashes and verifies credentials
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	Verify(password, hash string) bool
}

type anonymousSession struct{}

func (anonymousSession) UserID() string        { return "" }
func (anonymousSession) IsAuthenticated() bool { return false }

// Anonymous is the SessionContext of a request without a session
var Anonymous SessionContext = anonymousSession{}

// UserSession is a SessionContext for a known user id
type UserSession string

func (s UserSession) UserID() string        { return string(s) }
func (s UserSession) IsAuthenticated() bool { return s != "" }

// IssuedSession is the StampedSession a transport restores from its token
type IssuedSession struct {
	Subject string
	Stamp   string
}

func (s IssuedSession) UserID() string          { return s.Subject }
func (s IssuedSession) IsAuthenticated() bool   { return s.Subject != "" }
func (s IssuedSession) CredentialStamp() string { return s.Stamp }

type defLogger struct{}

func (d defLogger) Error(msg string, args ...any) {
	fmt.Print("[ERR] USERS " + line(msg, args))
}

func (d defLogger) Warn(msg string, args ...any) {
	fmt.Print("[WRN] USERS " + line(msg, args))
}

func (d defLogger) Info(msg string, args ...any) {
	fmt.Print("[INF] USERS " + line(msg, args))
}

func (d defLogger) Debug(msg string, args ...any) {
	fmt.Print("[DBG] USERS " + line(msg, args))
}

func line(msg string, args []any) string {
	var b strings.Builder
	b.WriteString(msg)
	for i := 0; i < len(args); i += 2 {
		if i+1 < len(args) {
			fmt.Fprintf(&b, " %v=%v", args[i], args[i+1])
			continue
		}
		fmt.Fprintf(&b, " %v", args[i])
	}
	b.WriteByte('\n')
	return b.String()
}

func isNilAccount[A Account](a A) bool {
	v := reflect.ValueOf(any(a))
	if !v.IsValid() {
		return true
	}
	switch v.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice:
		return v.IsNil()
	}
	return false
}
