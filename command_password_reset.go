package users

import (
	"context"
	"errors"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

// MaxPasswordLength is the bcrypt input limit in bytes
const MaxPasswordLength = 72

const (
	// TemplatePasswordReset is the mail template for reset links
	TemplatePasswordReset = "password_reset"
	// TemplateActivation is the mail template for activation links
	TemplateActivation = "activation"
)

// RequestPasswordResetMessage starts the forgot password flow
type RequestPasswordResetMessage struct {
	Email string `json:"email" form:"email"`
}

func (m RequestPasswordResetMessage) Type() string { return "user.password_reset.request" }

func (m RequestPasswordResetMessage) Validate() error {
	m.Email = strings.TrimSpace(m.Email)
	return FromValidation(validation.ValidateStruct(&m,
		validation.Field(&m.Email, validation.Required, is.Email),
	))
}

// ResetPasswordMessage finishes the forgot password flow
type ResetPasswordMessage struct {
	ID              string `json:"id" form:"id"`
	Code            string `json:"key" form:"key"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

func (m ResetPasswordMessage) Type() string { return "user.password_reset.finalize" }

// PasswordRecovery orchestrates the forgot password flow. Reset codes are
// bound to the password hash, so a successful reset consumes the code.
type PasswordRecovery[A Account] struct {
	store    RecordStore[A]
	hasher   PasswordHasher
	tokens   *TokenGenerator
	mailer   Mailer
	auth     *Authenticator[A]
	cfg      Config
	activity activityRecorder
}

// NewPasswordRecovery wires the flow collaborators
func NewPasswordRecovery[A Account](store RecordStore[A], hasher PasswordHasher, tokens *TokenGenerator, mailer Mailer, auth *Authenticator[A], cfg Config) *PasswordRecovery[A] {
	return &PasswordRecovery[A]{
		store:    store,
		hasher:   hasher,
		tokens:   tokens,
		mailer:   mailer,
		auth:     auth,
		cfg:      cfg,
		activity: newActivityRecorder(),
	}
}

func (h *PasswordRecovery[A]) WithLogger(logger Logger) *PasswordRecovery[A] {
	if logger != nil {
		h.activity.logger = logger
	}
	return h
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *PasswordRecovery[A]) WithActivitySink(sink ActivitySink) *PasswordRecovery[A] {
	h.activity.sink = normalizeActivitySink(sink)
	return h
}

// RequestReset mails a reset link to the account owning email. An unknown
// email produces the same nil outcome as a sent mail unless the product
// opted into revealing it.
func (h *PasswordRecovery[A]) RequestReset(ctx context.Context, msg RequestPasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset request")
	default:
		return h.requestReset(ctx, msg)
	}
}

func (h *PasswordRecovery[A]) requestReset(ctx context.Context, msg RequestPasswordResetMessage) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	account, err := h.store.FindByField(ctx, "email", msg.Email)
	if err == nil && isNilAccount(account) {
		err = ErrRecordNotFound
	}

	if err != nil {
		if !IsRecordNotFound(err) {
			return PersistenceError(err, "failed to retrieve user for password reset")
		}

		h.activity.record(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetFailure,
			Message:   "password reset requested for unknown email",
			Metadata:  map[string]any{"email": NormalizeEmail(msg.Email)},
		})

		if h.cfg.GetRevealUnknownEmail() {
			return ErrNoSuchUser
		}
		return nil
	}

	code := h.tokens.PasswordResetCode(account)
	data := mailData(account, code, h.ResetLink(account, code))

	if err := h.mailer.Send(ctx, TemplatePasswordReset, account.GetEmail(), data); err != nil {
		h.activity.logger.Error("password reset mail failed", "error", err, "user_id", account.GetID().String())
		return ErrDeliveryFailed
	}

	h.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordResetRequest,
		Message:   "password reset email sent",
		UserID:    account.GetID().String(),
	})

	return nil
}

// VerifyReset checks id and code without changing anything
func (h *PasswordRecovery[A]) VerifyReset(ctx context.Context, id, code string) (A, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	return h.verify(ctx, id, code)
}

// ResetPassword sets a new password when id and code match. The returned
// directive is nil when the account may not log in yet, e.g. an
// unverified account while activation is required.
func (h *PasswordRecovery[A]) ResetPassword(ctx context.Context, msg ResetPasswordMessage) (*SessionDirective, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during password reset")
	default:
		return h.resetPassword(ctx, msg)
	}
}

func (h *PasswordRecovery[A]) resetPassword(ctx context.Context, msg ResetPasswordMessage) (*SessionDirective, error) {
	ctx, cancel := withTimeout(ctx)
	defer cancel()

	account, err := h.verify(ctx, msg.ID, msg.Code)
	if err != nil {
		return nil, err
	}

	if err := validateNewPassword(h.cfg, msg.Password, msg.ConfirmPassword); err != nil {
		return nil, err
	}

	hash, err := h.hasher.HashPassword(msg.Password)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	previous := account.GetPasswordHash()
	account.SetPasswordHash(hash)
	if err := h.store.UpdatePassword(ctx, account, previous); err != nil {
		account.SetPasswordHash(previous)
		if errors.Is(err, ErrStaleRecord) {
			h.activity.record(ctx, ActivityEvent{
				EventType: ActivityEventPasswordResetFailure,
				Message:   "invalid password reset attempt (code already used)",
				UserID:    account.GetID().String(),
			})
			return nil, ErrInvalidRequest
		}
		return nil, PersistenceError(err, "failed to update user password")
	}

	h.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordReset,
		Message:   "password reset via email",
		UserID:    account.GetID().String(),
	})

	if !h.auth.CanLogin(account) {
		return nil, nil
	}

	return h.auth.Directive(account), nil
}

func (h *PasswordRecovery[A]) verify(ctx context.Context, id, code string) (A, error) {
	var zero A

	account, err := h.store.FindByID(ctx, id)
	if err == nil && isNilAccount(account) {
		err = ErrRecordNotFound
	}

	if err != nil {
		if !IsRecordNotFound(err) {
			return zero, PersistenceError(err, "failed to retrieve user for password reset")
		}
		h.activity.record(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetFailure,
			Message:   "invalid password reset attempt (no such user)",
			Metadata:  map[string]any{"id": id},
		})
		return zero, ErrInvalidRequest
	}

	if err := h.tokens.VerifyPasswordResetCode(account, code); err != nil {
		h.activity.record(ctx, ActivityEvent{
			EventType: ActivityEventPasswordResetFailure,
			Message:   "invalid password reset attempt (invalid code)",
			UserID:    account.GetID().String(),
			Metadata:  map[string]any{"reason": textCode(err)},
		})
		return zero, ErrInvalidRequest
	}

	return account, nil
}

// ResetLink is the absolute link mailed to the user
func (h *PasswordRecovery[A]) ResetLink(account A, code string) string {
	return buildLink(h.cfg.GetBaseURL(), h.cfg.GetPasswordResetPath(), account.GetID().String(), code)
}

func buildLink(base, path, id, code string) string {
	q := url.Values{}
	q.Set("id", id)
	q.Set("key", code)
	return base + path + "?" + q.Encode()
}

func mailData(account Account, code, link string) map[string]any {
	return map[string]any{
		"id":    account.GetID().String(),
		"name":  account.GetName(),
		"email": account.GetEmail(),
		"code":  code,
		"link":  link,
	}
}

func validateNewPassword(cfg Config, password, confirm string) error {
	payload := struct {
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}{password, confirm}

	return FromValidation(validation.ValidateStruct(&payload,
		validation.Field(&payload.Password, passwordRules(cfg)...),
		validation.Field(&payload.ConfirmPassword,
			validation.By(ValidateOptionalStringEquals(payload.Password)),
		),
	))
}

// passwordRules bounds passwords in bytes, bcrypt rejects anything
// longer than MaxPasswordLength
func passwordRules(cfg Config) []validation.Rule {
	return []validation.Rule{
		validation.Required,
		validation.Length(cfg.GetMinPasswordLength(), MaxPasswordLength),
	}
}

// ValidateStringEquals fails when the value differs from str
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if s != str {
			return goerrors.New("values must match", goerrors.CategoryValidation)
		}
		return nil
	}
}

// ValidateOptionalStringEquals is ValidateStringEquals skipping empty values
func ValidateOptionalStringEquals(str string) validation.RuleFunc {
	return func(value interface{}) error {
		s, _ := value.(string)
		if strings.TrimSpace(s) == "" {
			return nil
		}
		return ValidateStringEquals(str)(value)
	}
}

func textCode(err error) string {
	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return richErr.TextCode
	}
	return ""
}
