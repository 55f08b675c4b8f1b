package users_test

import (
	"context"
	"sync"
	"testing"

	users "github.com/goliatone/go-users"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivationLifecycle(t *testing.T) {
	f := newFixture(t)

	account, err := f.service.Register(context.Background(), users.RegisterUserMessage{
		Name:     "Ann",
		Email:    "ann@example.com",
		Password: "password123",
	})
	require.NoError(t, err)
	assert.Equal(t, users.UserStatusUnverified, account.Status)

	require.Equal(t, 1, f.mailer.count())
	mail := f.mailer.last(t)
	assert.Equal(t, users.TemplateActivation, mail.Template)
	assert.Contains(t, mail.Data["link"], "https://example.com/users/activate?")
	id, key := codeFromMail(t, mail)

	_, err = f.service.Activate(context.Background(), id, key+"x")
	assert.ErrorIs(t, err, users.ErrInvalidRequest)
	assert.Equal(t, users.UserStatusUnverified, f.store.get(t, account.ID).Status)

	failures := f.sink.ofType(users.ActivityEventActivationFailure)
	require.Len(t, failures, 1)
	assert.Equal(t, users.ChannelAccountActivation, failures[0].Channel)

	result, err := f.service.Activate(context.Background(), id, key)
	require.NoError(t, err)
	assert.False(t, result.AlreadyActive)
	require.NotNil(t, result.Session)
	assert.Equal(t, id, result.Session.UserID)

	stored := f.store.get(t, account.ID)
	assert.Equal(t, users.UserStatusActive, stored.Status)
	assert.NotNil(t, stored.ActivatedAt)
	assert.Len(t, f.sink.ofType(users.ActivityEventActivated), 1)
	assert.Len(t, f.sink.ofType(users.ActivityEventUserStatusChanged), 1)

	result, err = f.service.Activate(context.Background(), id, key)
	require.NoError(t, err)
	assert.True(t, result.AlreadyActive)
	assert.Nil(t, result.Session)
	assert.Equal(t, 1, f.mailer.count())
	assert.Len(t, f.sink.ofType(users.ActivityEventActivated), 1)
	assert.Contains(t, f.logger.levels(), "warn")

	_, err = f.service.Login(context.Background(), "ann@example.com", "password123")
	assert.NoError(t, err)
}

func TestActivationUnknownAccount(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.Activate(context.Background(), "4c9b2f49-1f31-4a4c-9f52-0b0c1a2b3c4d", "abc.def")
	assert.ErrorIs(t, err, users.ErrInvalidRequest)
	assert.Len(t, f.sink.ofType(users.ActivityEventActivationFailure), 1)
}

func TestActivationOfDeactivatedAccount(t *testing.T) {
	f := newFixture(t)
	u := f.store.seed(t, "user@example.com", "password123", users.UserStatusDeactivated)
	code := f.service.Tokens.ActivationCode(u)

	_, err := f.service.Activate(context.Background(), u.ID.String(), code)
	assert.ErrorIs(t, err, users.ErrAccountInactive)
	assert.Equal(t, users.UserStatusDeactivated, f.store.get(t, u.ID).Status)
}

func TestActivationPersistFailure(t *testing.T) {
	f := newFixture(t)
	u := f.store.seed(t, "user@example.com", "password123", users.UserStatusUnverified)
	code := f.service.Tokens.ActivationCode(u)
	f.store.saveErr = errStoreDown

	_, err := f.service.Activate(context.Background(), u.ID.String(), code)
	assert.ErrorIs(t, err, users.ErrActivationFailed)

	f.store.saveErr = nil
	assert.Equal(t, users.UserStatusUnverified, f.store.get(t, u.ID).Status)

	result, err := f.service.Activate(context.Background(), u.ID.String(), code)
	require.NoError(t, err, "the code stays valid after a failed activation")
	assert.NotNil(t, result.Session)
}

func TestSendActivationDeliveryFailure(t *testing.T) {
	f := newFixture(t)
	u := f.store.seed(t, "user@example.com", "password123", users.UserStatusUnverified)
	f.mailer.err = errStoreDown

	err := f.service.Activation.SendActivation(context.Background(), u)
	assert.ErrorIs(t, err, users.ErrDeliveryFailed)
}

func TestActivationCodeSentAgainStillWorks(t *testing.T) {
	f := newFixture(t)
	u := f.store.seed(t, "user@example.com", "password123", users.UserStatusUnverified)

	require.NoError(t, f.service.Activation.SendActivation(context.Background(), u))
	_, first := codeFromMail(t, f.mailer.last(t))

	require.NoError(t, f.service.Activation.SendActivation(context.Background(), u))
	assert.Equal(t, 2, f.mailer.count())

	result, err := f.service.Activate(context.Background(), u.ID.String(), first)
	require.NoError(t, err)
	assert.False(t, result.AlreadyActive)
}

func TestActivationLosingConcurrentWriteReportsAlreadyActive(t *testing.T) {
	f := newFixture(t)
	u := f.store.seed(t, "user@example.com", "password123", users.UserStatusUnverified)
	code := f.service.Tokens.ActivationCode(u)

	racing := &racingUsers{memUsers: f.store, before: func() {
		f.store.mu.Lock()
		rec := f.store.records[u.ID]
		rec.Status = users.UserStatusActive
		f.store.records[u.ID] = rec
		f.store.mu.Unlock()
	}}
	svc := f.serviceOver(t, racing)

	result, err := svc.Activate(context.Background(), u.ID.String(), code)
	require.NoError(t, err)
	assert.True(t, result.AlreadyActive)
	assert.Nil(t, result.Session)
	assert.Empty(t, f.sink.ofType(users.ActivityEventActivated))
}

func TestActivationLosingToDeactivationIsRejected(t *testing.T) {
	f := newFixture(t)
	u := f.store.seed(t, "user@example.com", "password123", users.UserStatusUnverified)
	code := f.service.Tokens.ActivationCode(u)

	racing := &racingUsers{memUsers: f.store, before: func() {
		f.store.mu.Lock()
		rec := f.store.records[u.ID]
		rec.Status = users.UserStatusDeactivated
		f.store.records[u.ID] = rec
		f.store.mu.Unlock()
	}}
	svc := f.serviceOver(t, racing)

	_, err := svc.Activate(context.Background(), u.ID.String(), code)
	assert.ErrorIs(t, err, users.ErrInvalidRequest)
	assert.Equal(t, users.UserStatusDeactivated, f.store.get(t, u.ID).Status)
}

// gatedStatusUsers holds every status write until all expected writers
// are in flight
type gatedStatusUsers struct {
	*users.Users
	gate sync.WaitGroup
}

func (g *gatedStatusUsers) UpdateStatus(ctx context.Context, record *users.User, from users.UserStatus) error {
	g.gate.Done()
	g.gate.Wait()
	return g.Users.UpdateStatus(ctx, record, from)
}

func TestActivationCodeIsSingleUseUnderConcurrentSubmits(t *testing.T) {
	ctx := context.Background()
	repo := users.NewUsersRepository(newTestDB(t))

	u, err := repo.Create(ctx, &users.User{Email: "user@example.com", Name: "Ann", PasswordHash: "hash"})
	require.NoError(t, err)
	require.Equal(t, users.UserStatusUnverified, u.Status)

	const submits = 2
	store := &gatedStatusUsers{Users: repo}
	store.gate.Add(submits)

	svc, err := users.NewService[*users.User](store, repo, users.NewUser, &captureMailer{}, testOptions(),
		users.WithServiceHasher(testHasher),
	)
	require.NoError(t, err)

	code := svc.Tokens.ActivationCode(u)

	var wg sync.WaitGroup
	results := make([]users.ActivationResult, submits)
	errs := make([]error, submits)
	for i := range submits {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = svc.Activate(ctx, u.ID.String(), code)
		}(i)
	}
	wg.Wait()

	sessions := 0
	for i := range submits {
		require.NoError(t, errs[i])
		if results[i].Session != nil {
			sessions++
			continue
		}
		assert.True(t, results[i].AlreadyActive)
	}
	assert.Equal(t, 1, sessions, "only one submit may establish a session")

	stored, err := repo.FindByID(ctx, u.ID.String())
	require.NoError(t, err)
	assert.Equal(t, users.UserStatusActive, stored.Status)
}
