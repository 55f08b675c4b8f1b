package users

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

type ChangePasswordMessage struct {
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
}

func (m ChangePasswordMessage) Type() string { return "user.password.change" }

// SettingsMessage updates the display name and any number of preferences
type SettingsMessage struct {
	Name        string            `json:"name" form:"name"`
	Preferences map[string]string `json:"preferences"`
}

func (m SettingsMessage) Type() string { return "user.settings.update" }

// PasswordChanger handles account maintenance for the session owner
type PasswordChanger[A Account] struct {
	auth        *Authenticator[A]
	store       RecordStore[A]
	hasher      PasswordHasher
	preferences *PreferenceStore
	cfg         Config
	activity    activityRecorder
}

func NewPasswordChanger[A Account](auth *Authenticator[A], store RecordStore[A], hasher PasswordHasher, preferences *PreferenceStore, cfg Config) *PasswordChanger[A] {
	return &PasswordChanger[A]{
		auth:        auth,
		store:       store,
		hasher:      hasher,
		preferences: preferences,
		cfg:         cfg,
		activity:    newActivityRecorder(),
	}
}

func (h *PasswordChanger[A]) WithLogger(logger Logger) *PasswordChanger[A] {
	if logger != nil {
		h.activity.logger = logger
	}
	return h
}

func (h *PasswordChanger[A]) WithActivitySink(sink ActivitySink) *PasswordChanger[A] {
	h.activity.sink = normalizeActivitySink(sink)
	return h
}

// ChangePassword sets a new password for the session owner. The write
// only lands if the stored hash is still the one the session resolved,
// otherwise ErrStaleRecord is returned.
func (h *PasswordChanger[A]) ChangePassword(ctx context.Context, session SessionContext, msg ChangePasswordMessage) error {
	account, err := h.auth.CurrentAccount(ctx, session)
	if err != nil {
		return err
	}

	if err := validateNewPassword(h.cfg, msg.Password, msg.ConfirmPassword); err != nil {
		return err
	}

	hash, err := h.hasher.HashPassword(msg.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	previous := account.GetPasswordHash()
	account.SetPasswordHash(hash)
	if err := h.store.UpdatePassword(ctx, account, previous); err != nil {
		account.SetPasswordHash(previous)
		if errors.Is(err, ErrStaleRecord) {
			return ErrStaleRecord
		}
		return PersistenceError(err, "failed to update user password")
	}

	h.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventPasswordChanged,
		Message:   "password changed",
		UserID:    account.GetID().String(),
	})

	return nil
}

// UpdateSettings renames the account and stores the given preferences
func (h *PasswordChanger[A]) UpdateSettings(ctx context.Context, session SessionContext, msg SettingsMessage) (A, error) {
	var zero A

	account, err := h.auth.CurrentAccount(ctx, session)
	if err != nil {
		return zero, err
	}

	msg.Name = strings.TrimSpace(msg.Name)
	if err := FromValidation(validation.ValidateStruct(&msg,
		validation.Field(&msg.Name, validation.Required, validation.Length(1, 255)),
	)); err != nil {
		return zero, err
	}

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	if msg.Name != account.GetName() {
		previous := account.GetName()
		account.SetName(msg.Name)
		if err := h.store.UpdateProfile(ctx, account); err != nil {
			account.SetName(previous)
			return zero, PersistenceError(err, "failed to update user settings")
		}
	}

	if h.preferences != nil {
		for key, value := range msg.Preferences {
			if _, err := h.preferences.Set(ctx, session, account, key, value); err != nil {
				return zero, err
			}
		}
	}

	return account, nil
}
