package users

import (
	"errors"
	"sort"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds     = "INVALID_CREDENTIALS"
	TextCodeNoSuchUser       = "NO_SUCH_USER"
	TextCodeAccountInactive  = "ACCOUNT_INACTIVE"
	TextCodeBadPassword      = "BAD_PASSWORD"
	TextCodeInvalidRequest   = "INVALID_REQUEST"
	TextCodeActivationFailed = "ACTIVATION_FAILED"
	TextCodeDeliveryFailed   = "DELIVERY_FAILED"
	TextCodePersistence      = "PERSISTENCE_FAILED"
	TextCodeNotAuthenticated = "NOT_AUTHENTICATED"
	TextCodeNotOwner         = "NOT_OWNER"
	TextCodeEmptyPassword    = "EMPTY_PASSWORD"
	TextCodeValidation       = "VALIDATION_FAILED"
	TextCodeRecordNotFound   = "RECORD_NOT_FOUND"
)

// invalidCredentialsMessage is shared by every login rejection so callers
// cannot tell the branches apart.
const invalidCredentialsMessage = "the credentials provided are invalid"

// ErrNoSuchUser login identifier did not match an account
var ErrNoSuchUser = goerrors.New(invalidCredentialsMessage, goerrors.CategoryAuth).
	WithTextCode(TextCodeNoSuchUser).
	WithCode(goerrors.CodeUnauthorized)

// ErrAccountInactive account status does not allow login
var ErrAccountInactive = goerrors.New(invalidCredentialsMessage, goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountInactive).
	WithCode(goerrors.CodeUnauthorized)

// ErrBadPassword password did not match the stored hash
var ErrBadPassword = goerrors.New(invalidCredentialsMessage, goerrors.CategoryAuth).
	WithTextCode(TextCodeBadPassword).
	WithCode(goerrors.CodeUnauthorized)

// ErrInvalidRequest unknown account or code mismatch in a token flow
var ErrInvalidRequest = goerrors.New("your request is invalid", goerrors.CategoryBadInput).
	WithTextCode(TextCodeInvalidRequest).
	WithCode(goerrors.CodeBadRequest)

// ErrActivationFailed the status change could not be persisted, user may retry
var ErrActivationFailed = goerrors.New("there was a problem activating your account", goerrors.CategoryOperation).
	WithTextCode(TextCodeActivationFailed).
	WithCode(goerrors.CodeInternal)

// ErrDeliveryFailed the notification could not be sent, user may retry
var ErrDeliveryFailed = goerrors.New("there was a problem sending email to this address", goerrors.CategoryOperation).
	WithTextCode(TextCodeDeliveryFailed).
	WithCode(goerrors.CodeInternal)

// ErrNotAuthenticated operation requires an authenticated session
var ErrNotAuthenticated = goerrors.New("authentication required", goerrors.CategoryAuth).
	WithTextCode(TextCodeNotAuthenticated).
	WithCode(goerrors.CodeUnauthorized)

// ErrNotOwner session user does not own the account
var ErrNotOwner = goerrors.New("session user does not own this account", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotOwner).
	WithCode(goerrors.CodeForbidden)

// ErrNoEmptyString password can not be empty
var ErrNoEmptyString = goerrors.New("password can not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrRecordNotFound is returned by record stores for missing rows
var ErrRecordNotFound = goerrors.New("record not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecordNotFound).
	WithCode(goerrors.CodeNotFound)

// IsLoginRejection reports whether err is one of the login rejections
func IsLoginRejection(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}

	switch richErr.TextCode {
	case TextCodeNoSuchUser, TextCodeAccountInactive, TextCodeBadPassword:
		return true
	}
	return false
}

// IsRecordNotFound reports whether a store lookup missed
func IsRecordNotFound(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRecordNotFound) {
		return true
	}
	return goerrors.IsNotFound(err)
}

// PersistenceError wraps a record store failure
func PersistenceError(err error, message string) error {
	return goerrors.Wrap(err, goerrors.CategoryInternal, message).
		WithTextCode(TextCodePersistence).
		WithCode(goerrors.CodeInternal)
}

// ValidationError builds a field level validation error, one FieldError
// per entry in field order.
func ValidationError(fields map[string]string) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	fieldErrors := make([]goerrors.FieldError, 0, len(names))
	for _, name := range names {
		fieldErrors = append(fieldErrors, goerrors.FieldError{
			Field:   name,
			Message: fields[name],
		})
	}

	return goerrors.NewValidation("validation failed", fieldErrors...).
		WithTextCode(TextCodeValidation).
		WithCode(goerrors.CodeBadRequest)
}

// FromValidation converts ozzo validation errors. Other errors pass through.
func FromValidation(err error) error {
	if err == nil {
		return nil
	}

	var verrs validation.Errors
	if !errors.As(err, &verrs) {
		return err
	}

	fields := make(map[string]string, len(verrs))
	for field, ferr := range verrs {
		if ferr != nil {
			fields[field] = ferr.Error()
		}
	}
	return ValidationError(fields)
}

// FieldErrors returns the field messages of a validation error
func FieldErrors(err error) map[string]string {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) || richErr.Category != goerrors.CategoryValidation {
		return nil
	}
	return richErr.ValidationMap()
}

// ValidationFields lists invalid fields in a stable order
func ValidationFields(err error) []string {
	fields := FieldErrors(err)
	out := make([]string, 0, len(fields))
	for k := range fields {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
