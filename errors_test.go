package users_test

import (
	"errors"
	"testing"

	validation "github.com/go-ozzo/ozzo-validation"
	goerrors "github.com/goliatone/go-errors"
	users "github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsLoginRejection(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{name: "no such user", err: users.ErrNoSuchUser, expected: true},
		{name: "inactive", err: users.ErrAccountInactive, expected: true},
		{name: "bad password", err: users.ErrBadPassword, expected: true},
		{name: "not authenticated", err: users.ErrNotAuthenticated, expected: false},
		{name: "persistence", err: users.PersistenceError(errors.New("down"), "lookup"), expected: false},
		{name: "plain error", err: errors.New("nope"), expected: false},
		{name: "nil", err: nil, expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, users.IsLoginRejection(tt.err))
		})
	}
}

func TestIsRecordNotFound(t *testing.T) {
	assert.True(t, users.IsRecordNotFound(users.ErrRecordNotFound))
	assert.True(t, users.IsRecordNotFound(goerrors.New("missing", goerrors.CategoryNotFound)))
	assert.False(t, users.IsRecordNotFound(errors.New("missing")))
	assert.False(t, users.IsRecordNotFound(nil))
}

func TestPersistenceErrorClassification(t *testing.T) {
	cause := errors.New("connection refused")
	err := users.PersistenceError(cause, "failed to save")

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryInternal, richErr.Category)
	assert.Equal(t, users.TextCodePersistence, richErr.TextCode)
	assert.Equal(t, goerrors.CodeInternal, richErr.Code)
}

func TestFromValidation(t *testing.T) {
	payload := struct {
		Email string `json:"email"`
		Name  string `json:"name"`
	}{Email: "", Name: "Ann"}

	err := users.FromValidation(validation.ValidateStruct(&payload,
		validation.Field(&payload.Email, validation.Required),
		validation.Field(&payload.Name, validation.Required),
	))
	require.Error(t, err)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, goerrors.CategoryValidation, richErr.Category)
	assert.Equal(t, goerrors.CodeBadRequest, richErr.Code)
	assert.Equal(t, []string{"email"}, users.ValidationFields(err))
	assert.NotEmpty(t, users.FieldErrors(err)["email"])

	assert.NoError(t, users.FromValidation(nil))

	plain := errors.New("plain")
	assert.Equal(t, plain, users.FromValidation(plain))
	assert.Nil(t, users.FieldErrors(plain))
	assert.Empty(t, users.ValidationFields(plain))
}

func TestValidationErrorSortsFields(t *testing.T) {
	err := users.ValidationError(map[string]string{
		"password": "too short",
		"email":    "invalid",
		"name":     "required",
	})

	assert.Equal(t, []string{"email", "name", "password"}, users.ValidationFields(err))
	assert.Equal(t, "too short", users.FieldErrors(err)["password"])

	fieldErrs, ok := goerrors.GetValidationErrors(err)
	require.True(t, ok)
	require.Len(t, fieldErrs, 3)
	assert.Equal(t, "email", fieldErrs[0].Field)
	assert.Equal(t, "invalid", fieldErrs[0].Message)

	var richErr *goerrors.Error
	require.True(t, goerrors.As(err, &richErr))
	assert.Equal(t, users.TextCodeValidation, richErr.TextCode)
	assert.Equal(t, goerrors.CodeBadRequest, richErr.Code)
	assert.Equal(t, map[string]string{
		"password": "too short",
		"email":    "invalid",
		"name":     "required",
	}, richErr.ValidationMap())
}

func TestStringEqualsRules(t *testing.T) {
	assert.NoError(t, users.ValidateStringEquals("a")("a"))
	assert.Error(t, users.ValidateStringEquals("a")("b"))

	assert.NoError(t, users.ValidateOptionalStringEquals("a")(""))
	assert.NoError(t, users.ValidateOptionalStringEquals("a")("a"))
	assert.Error(t, users.ValidateOptionalStringEquals("a")("b"))
}
