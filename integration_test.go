package users_test

import (
	"context"
	"testing"

	users "github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccountLifecycleOverSQLite(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	mailer := &captureMailer{}
	sink := &captureSink{}

	svc, err := users.NewUserService(db, mailer, testOptions(),
		users.WithServiceHasher(testHasher),
		users.WithServiceActivitySink(sink),
		users.WithServiceLogger(&captureLogger{}),
	)
	require.NoError(t, err)

	account, err := svc.Register(ctx, users.RegisterUserMessage{
		Name:            "Ann",
		Email:           "Ann@Example.com",
		Password:        "password123",
		ConfirmPassword: "password123",
	})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "ann@example.com", "password123")
	assert.ErrorIs(t, err, users.ErrAccountInactive)

	id, key := codeFromMail(t, mailer.last(t))
	result, err := svc.Activate(ctx, id, key)
	require.NoError(t, err)
	require.NotNil(t, result.Session)
	assert.Equal(t, account.ID.String(), result.Session.UserID)

	directive, err := svc.Login(ctx, "ann@example.com", "password123")
	require.NoError(t, err)
	session := users.UserSession(directive.UserID)

	require.NoError(t, svc.RequestPasswordReset(ctx, "ann@example.com"))
	id, key = codeFromMail(t, mailer.last(t))
	assert.Equal(t, users.TemplatePasswordReset, mailer.last(t).Template)

	_, err = svc.ResetPassword(ctx, users.ResetPasswordMessage{ID: id, Code: key, Password: "new-password-1"})
	require.NoError(t, err)

	_, err = svc.ResetPassword(ctx, users.ResetPasswordMessage{ID: id, Code: key, Password: "new-password-2"})
	assert.ErrorIs(t, err, users.ErrInvalidRequest)

	_, err = svc.Login(ctx, "ann@example.com", "new-password-1")
	require.NoError(t, err)

	value, err := svc.SetPreference(ctx, session, "theme", "dark")
	require.NoError(t, err)
	assert.Equal(t, "dark", value)

	current, err := svc.Auth.CurrentAccount(ctx, session)
	require.NoError(t, err)
	prefs, err := svc.Preferences.All(ctx, current)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"theme": "dark"}, prefs)

	require.NoError(t, users.Deactivate(ctx, svc.States, users.ActorRef{ID: "admin"}, current, "closed by request"))
	_, err = svc.Login(ctx, "ann@example.com", "new-password-1")
	assert.ErrorIs(t, err, users.ErrAccountInactive)

	_, err = svc.Auth.CurrentAccount(ctx, session)
	assert.ErrorIs(t, err, users.ErrNotAuthenticated)

	assert.Len(t, sink.ofType(users.ActivityEventLoginSuccess), 2)
	assert.Len(t, sink.ofType(users.ActivityEventUserStatusChanged), 2)
}
