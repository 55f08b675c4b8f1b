package users

import (
	"context"
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/nyaruka/phonenumbers"
)

type RegisterUserMessage struct {
	Name            string `json:"name" form:"name"`
	Email           string `json:"email" form:"email"`
	Phone           string `json:"phone" form:"phone"`
	Password        string `json:"password" form:"password"`
	ConfirmPassword string `json:"confirm_password" form:"confirm_password"`
	UseHashid       bool   `json:"-"`
}

func (e RegisterUserMessage) Type() string { return "user.register" }

// Registration creates accounts and starts activation when required
type Registration[A Account] struct {
	store      RecordStore[A]
	build      AccountBuilder[A]
	hasher     PasswordHasher
	activation *Activation[A]
	cfg        Config
	activity   activityRecorder
}

func NewRegistration[A Account](store RecordStore[A], build AccountBuilder[A], hasher PasswordHasher, activation *Activation[A], cfg Config) *Registration[A] {
	return &Registration[A]{
		store:      store,
		build:      build,
		hasher:     hasher,
		activation: activation,
		cfg:        cfg,
		activity:   newActivityRecorder(),
	}
}

func (h *Registration[A]) WithLogger(logger Logger) *Registration[A] {
	if logger != nil {
		h.activity.logger = logger
	}
	return h
}

func (h *Registration[A]) WithActivitySink(sink ActivitySink) *Registration[A] {
	h.activity.sink = normalizeActivitySink(sink)
	return h
}

func (h *Registration[A]) Execute(ctx context.Context, event RegisterUserMessage) (A, error) {
	select {
	case <-ctx.Done():
		var zero A
		return zero, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during user registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *Registration[A]) execute(ctx context.Context, event RegisterUserMessage) (A, error) {
	var zero A

	ctx, cancel := withTimeout(ctx)
	defer cancel()

	event.Email = NormalizeEmail(event.Email)
	event.Name = strings.TrimSpace(event.Name)

	phone, err := h.validate(ctx, event)
	if err != nil {
		return zero, err
	}

	hash, err := h.hasher.HashPassword(event.Password)
	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return zero, goerrors.Wrap(richErr, goerrors.CategoryValidation, "invalid password provided")
		}
		return zero, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
	}

	fields := AccountFields{
		Email:        event.Email,
		Name:         event.Name,
		Phone:        phone,
		PasswordHash: hash,
		Status:       UserStatusActive,
	}

	if h.cfg.GetRequireActivation() {
		fields.Status = UserStatusUnverified
	}

	if event.UseHashid {
		if id, err := hashid.NewUUID(fields.Email); err == nil {
			fields.ID = id
		}
	}

	account, err := h.store.Create(ctx, h.build(fields))
	if err != nil {
		if errors.Is(err, ErrDuplicateRecord) {
			return zero, ValidationError(map[string]string{"email": "email is already registered"})
		}
		return zero, PersistenceError(err, "could not create user")
	}

	h.activity.record(ctx, ActivityEvent{
		EventType: ActivityEventRegistered,
		Message:   "account registered",
		UserID:    account.GetID().String(),
		ToStatus:  account.GetStatus(),
	})

	if account.GetStatus() == UserStatusUnverified && h.activation != nil {
		if err := h.activation.SendActivation(ctx, account); err != nil {
			h.activity.logger.Warn("registered account without activation mail",
				"user_id", account.GetID().String(),
				"error", err,
			)
		}
	}

	return account, nil
}

// validate expects email and name already normalized and returns the
// phone number in E.164 form
func (h *Registration[A]) validate(ctx context.Context, event RegisterUserMessage) (string, error) {
	var phone string

	err := validation.ValidateStruct(&event,
		validation.Field(&event.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&event.Email, validation.Required, is.Email),
		validation.Field(&event.Password, passwordRules(h.cfg)...),
		validation.Field(&event.ConfirmPassword,
			validation.By(ValidateOptionalStringEquals(event.Password)),
		),
		validation.Field(&event.Phone, validation.By(func(value interface{}) error {
			normalized, err := NormalizePhone(event.Phone, h.cfg.GetDefaultPhoneRegion())
			phone = normalized
			return err
		})),
	)
	if err != nil {
		return "", FromValidation(err)
	}

	existing, err := h.store.FindByField(ctx, "email", event.Email)
	switch {
	case err == nil && !isNilAccount(existing):
		return "", ValidationError(map[string]string{"email": "email is already registered"})
	case err != nil && !IsRecordNotFound(err):
		return "", PersistenceError(err, "failed to check email availability")
	}

	return phone, nil
}

// NormalizePhone parses phone with region as default and returns it in
// E.164 format. An empty phone is valid.
func NormalizePhone(phone, region string) (string, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return "", nil
	}

	num, err := phonenumbers.Parse(phone, region)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return "", goerrors.New("must be a valid phone number", goerrors.CategoryValidation)
	}

	return phonenumbers.Format(num, phonenumbers.E164), nil
}
