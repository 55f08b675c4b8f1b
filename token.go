package users

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"strconv"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	purposePasswordReset = "password_reset"
	purposeActivation    = "activation"
	purposeSession       = "session"

	// tolerated clock drift for codes stamped slightly in the future
	tokenClockSkew = time.Minute
)

const (
	TextCodeTokenMalformed = "TOKEN_MALFORMED"
	TextCodeTokenExpired   = "TOKEN_EXPIRED"
	TextCodeTokenMismatch  = "TOKEN_MISMATCH"
)

// ErrTokenMalformed code could not be parsed
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenExpired code is older than its ttl
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrTokenMismatch code does not match the account state
var ErrTokenMismatch = goerrors.New("token does not match", goerrors.CategoryBadInput).
	WithTextCode(TextCodeTokenMismatch).
	WithCode(goerrors.CodeBadRequest)

// TokenGenerator derives single use codes from account state.
//
// Codes are never stored. A code is HMAC-SHA256(secret, purpose, id,
// issued-at, bound state) where the bound state is the password hash for
// resets and the pre-activation identity for activation codes. Changing
// the bound state invalidates every code issued before the change.
type TokenGenerator struct {
	secret        []byte
	resetTTL      time.Duration
	activationTTL time.Duration
	now           func() time.Time
}

// TokenGeneratorOption customizes a TokenGenerator
type TokenGeneratorOption func(*TokenGenerator)

// WithTokenClock injects a custom clock (useful for tests).
func WithTokenClock(clock func() time.Time) TokenGeneratorOption {
	return func(g *TokenGenerator) {
		if clock != nil {
			g.now = clock
		}
	}
}

// WithPasswordResetTTL sets how long reset codes are valid, zero disables expiry
func WithPasswordResetTTL(ttl time.Duration) TokenGeneratorOption {
	return func(g *TokenGenerator) {
		g.resetTTL = ttl
	}
}

// WithActivationTTL sets how long activation codes are valid, zero disables expiry
func WithActivationTTL(ttl time.Duration) TokenGeneratorOption {
	return func(g *TokenGenerator) {
		g.activationTTL = ttl
	}
}

// NewTokenGenerator panics on an empty secret, codes signed with an
// empty key would be forgeable.
func NewTokenGenerator(secret []byte, opts ...TokenGeneratorOption) *TokenGenerator {
	if len(secret) == 0 {
		panic("go-users: token secret must not be empty")
	}

	g := &TokenGenerator{
		secret:   append([]byte(nil), secret...),
		resetTTL: 24 * time.Hour,
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}

	return g
}

// PasswordResetCode issues a reset code bound to the current password hash
func (g *TokenGenerator) PasswordResetCode(account Account) string {
	return g.issue(purposePasswordReset, account, g.now())
}

// VerifyPasswordResetCode checks a reset code against the current account state
func (g *TokenGenerator) VerifyPasswordResetCode(account Account, code string) error {
	return g.verify(purposePasswordReset, account, code, g.resetTTL)
}

// ActivationCode issues an activation code for account
func (g *TokenGenerator) ActivationCode(account Account) string {
	return g.issue(purposeActivation, account, g.now())
}

// VerifyActivationCode checks an activation code for account
func (g *TokenGenerator) VerifyActivationCode(account Account, code string) error {
	return g.verify(purposeActivation, account, code, g.activationTTL)
}

// CredentialStamp fingerprints the credentials of account
func (g *TokenGenerator) CredentialStamp(account Account) string {
	return CredentialStamp(g.secret, account)
}

// CredentialStamp is a keyed digest of the account id and password hash.
// Sessions record the stamp they were issued under and stop resolving
// once a password change or reset moves it.
func CredentialStamp(secret []byte, account Account) string {
	h := hmac.New(sha256.New, secret)
	for _, part := range []string{purposeSession, account.GetID().String(), account.GetPasswordHash()} {
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil)[:18])
}

// DeriveKey derives a purpose specific key from secret so one configured
// secret never signs two kinds of artifact
func DeriveKey(secret, purpose string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte("go-users:" + purpose))
	return base64.RawURLEncoding.EncodeToString(h.Sum(nil))
}

func (g *TokenGenerator) issue(purpose string, account Account, at time.Time) string {
	stamp := strconv.FormatInt(at.Unix(), 36)
	return stamp + "." + base64.RawURLEncoding.EncodeToString(g.mac(purpose, account, stamp))
}

func (g *TokenGenerator) verify(purpose string, account Account, code string, ttl time.Duration) error {
	stamp, sig, ok := strings.Cut(strings.TrimSpace(code), ".")
	if !ok || stamp == "" || sig == "" {
		return ErrTokenMalformed
	}

	secs, err := strconv.ParseInt(stamp, 36, 64)
	if err != nil {
		return ErrTokenMalformed
	}

	given, err := base64.RawURLEncoding.DecodeString(sig)
	if err != nil {
		return ErrTokenMalformed
	}

	if !hmac.Equal(given, g.mac(purpose, account, stamp)) {
		return ErrTokenMismatch
	}

	now := g.now()
	issued := time.Unix(secs, 0)
	if issued.After(now.Add(tokenClockSkew)) {
		return ErrTokenMismatch
	}

	if ttl > 0 && IsOutsideThresholdPeriod(now, issued, ttl) {
		return ErrTokenExpired
	}

	return nil
}

func (g *TokenGenerator) mac(purpose string, account Account, stamp string) []byte {
	h := hmac.New(sha256.New, g.secret)
	for _, part := range []string{purpose, account.GetID().String(), stamp, boundState(purpose, account)} {
		// length prefix keeps field boundaries unambiguous
		h.Write([]byte(strconv.Itoa(len(part))))
		h.Write([]byte{':'})
		h.Write([]byte(part))
	}
	return h.Sum(nil)
}

func boundState(purpose string, account Account) string {
	switch purpose {
	case purposePasswordReset:
		return account.GetPasswordHash()
	case purposeActivation:
		return strings.ToLower(account.GetEmail()) + "|" + string(UserStatusUnverified)
	default:
		return ""
	}
}
