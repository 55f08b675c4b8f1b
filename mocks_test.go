package users_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	users "github.com/goliatone/go-users"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testHasher = users.NewBcryptHasher(bcrypt.MinCost)

const testSecret = "test-secret-do-not-use"

// MockUsers implements users.RecordStore[*users.User]
type MockUsers struct {
	mock.Mock
}

var _ users.RecordStore[*users.User] = (*MockUsers)(nil)

func (m *MockUsers) FindByID(ctx context.Context, id string) (*users.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*users.User)
	return u, args.Error(1)
}

func (m *MockUsers) FindByField(ctx context.Context, field, value string) (*users.User, error) {
	args := m.Called(ctx, field, value)
	u, _ := args.Get(0).(*users.User)
	return u, args.Error(1)
}

func (m *MockUsers) Create(ctx context.Context, record *users.User) (*users.User, error) {
	args := m.Called(ctx, record)
	u, _ := args.Get(0).(*users.User)
	return u, args.Error(1)
}

func (m *MockUsers) UpdatePassword(ctx context.Context, record *users.User, previousHash string) error {
	args := m.Called(ctx, record, previousHash)
	return args.Error(0)
}

func (m *MockUsers) UpdateStatus(ctx context.Context, record *users.User, from users.UserStatus) error {
	args := m.Called(ctx, record, from)
	return args.Error(0)
}

func (m *MockUsers) UpdateProfile(ctx context.Context, record *users.User) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

func (m *MockUsers) TrackLogin(ctx context.Context, record *users.User) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}

// memUsers is an in-memory record store. It hands out copies so a failed
// update never leaks into the stored state, and each update only copies
// the columns it owns.
type memUsers struct {
	mu      sync.Mutex
	records map[uuid.UUID]users.User
	prefs   map[uuid.UUID]map[string]string
	saveErr error
}

var (
	_ users.RecordStore[*users.User] = (*memUsers)(nil)
	_ users.PreferenceRecords        = (*memUsers)(nil)
)

func newMemUsers() *memUsers {
	return &memUsers{
		records: map[uuid.UUID]users.User{},
		prefs:   map[uuid.UUID]map[string]string{},
	}
}

func (m *memUsers) FindByID(_ context.Context, id string) (*users.User, error) {
	uid, err := uuid.Parse(id)
	if err != nil {
		return nil, users.ErrRecordNotFound
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[uid]
	if !ok {
		return nil, users.ErrRecordNotFound
	}
	return &rec, nil
}

func (m *memUsers) FindByField(ctx context.Context, field, value string) (*users.User, error) {
	if field == "id" {
		return m.FindByID(ctx, value)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		if field == "email" && rec.Email == users.NormalizeEmail(value) {
			return &rec, nil
		}
	}
	return nil, users.ErrRecordNotFound
}

func (m *memUsers) Create(_ context.Context, record *users.User) (*users.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.Email = users.NormalizeEmail(record.Email)
	record.EnsureStatus()
	for _, rec := range m.records {
		if rec.Email == record.Email {
			return nil, users.ErrDuplicateRecord
		}
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	m.records[record.ID] = *record
	return record, nil
}

func (m *memUsers) UpdatePassword(_ context.Context, record *users.User, previousHash string) error {
	return m.update(record.ID, func(rec *users.User) error {
		if rec.PasswordHash != previousHash {
			return users.ErrStaleRecord
		}
		rec.PasswordHash = record.PasswordHash
		rec.RequiresNewPassword = record.RequiresNewPassword
		rec.PasswordChangedAt = record.PasswordChangedAt
		return nil
	})
}

func (m *memUsers) UpdateStatus(_ context.Context, record *users.User, from users.UserStatus) error {
	return m.update(record.ID, func(rec *users.User) error {
		if rec.Status != from {
			return users.ErrStaleRecord
		}
		rec.Status = record.Status
		rec.ActivatedAt = record.ActivatedAt
		return nil
	})
}

func (m *memUsers) UpdateProfile(_ context.Context, record *users.User) error {
	return m.update(record.ID, func(rec *users.User) error {
		rec.Name = record.Name
		rec.Phone = record.Phone
		return nil
	})
}

func (m *memUsers) update(id uuid.UUID, apply func(*users.User) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.saveErr != nil {
		return m.saveErr
	}

	rec, ok := m.records[id]
	if !ok {
		return users.ErrRecordNotFound
	}
	if err := apply(&rec); err != nil {
		return err
	}
	m.records[id] = rec
	return nil
}

func (m *memUsers) TrackLogin(_ context.Context, record *users.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	record.LoggedInAt = &now
	if rec, ok := m.records[record.ID]; ok {
		rec.LoggedInAt = &now
		m.records[record.ID] = rec
	}
	return nil
}

func (m *memUsers) GetPreference(_ context.Context, userID uuid.UUID, name string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.prefs[userID][name]
	if !ok {
		return "", users.ErrRecordNotFound
	}
	return v, nil
}

func (m *memUsers) ListPreferences(_ context.Context, userID uuid.UUID) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := map[string]string{}
	for k, v := range m.prefs[userID] {
		out[k] = v
	}
	return out, nil
}

func (m *memUsers) SetPreference(_ context.Context, userID uuid.UUID, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.prefs[userID] == nil {
		m.prefs[userID] = map[string]string{}
	}
	m.prefs[userID][name] = value
	return nil
}

func (m *memUsers) get(t *testing.T, id uuid.UUID) users.User {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	require.True(t, ok, "record %s not found", id)
	return rec
}

// seed stores a user with password and status and returns a copy
func (m *memUsers) seed(t *testing.T, email, password string, status users.UserStatus) *users.User {
	t.Helper()

	hash, err := testHasher.HashPassword(password)
	require.NoError(t, err)

	u := &users.User{
		ID:           uuid.New(),
		Email:        email,
		Name:         "Test User",
		PasswordHash: hash,
		Status:       status,
	}

	_, err = m.Create(context.Background(), u)
	require.NoError(t, err)

	cp := *u
	return &cp
}

type sentMail struct {
	Template  string
	Recipient string
	Data      map[string]any
}

type captureMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *captureMailer) Send(_ context.Context, template, recipient string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{Template: template, Recipient: recipient, Data: data})
	return nil
}

func (m *captureMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

func (m *captureMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	require.NotEmpty(t, m.sent, "no mail was sent")
	return m.sent[len(m.sent)-1]
}

type captureSink struct {
	mu     sync.Mutex
	events []users.ActivityEvent
}

func (s *captureSink) Record(_ context.Context, event users.ActivityEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *captureSink) ofType(kind users.ActivityEventType) []users.ActivityEvent {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []users.ActivityEvent
	for _, e := range s.events {
		if e.EventType == kind {
			out = append(out, e)
		}
	}
	return out
}

type logCall struct {
	level   string
	message string
	args    []any
}

type captureLogger struct {
	mu    sync.Mutex
	calls []logCall
}

func (l *captureLogger) record(level, message string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, logCall{level: level, message: message, args: args})
}

func (l *captureLogger) Debug(message string, args ...any) { l.record("debug", message, args...) }
func (l *captureLogger) Info(message string, args ...any)  { l.record("info", message, args...) }
func (l *captureLogger) Warn(message string, args ...any)  { l.record("warn", message, args...) }
func (l *captureLogger) Error(message string, args ...any) { l.record("error", message, args...) }

func (l *captureLogger) levels() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]string, 0, len(l.calls))
	for _, c := range l.calls {
		out = append(out, c.level)
	}
	return out
}

var errStoreDown = errors.New("store is down")

type fixture struct {
	store   *memUsers
	mailer  *captureMailer
	sink    *captureSink
	logger  *captureLogger
	service *users.Service[*users.User]
	cfg     users.Options
}

func testOptions() users.Options {
	opts := users.DefaultOptions()
	opts.TokenSecret = testSecret
	opts.BaseURL = "https://example.com"
	opts.BcryptCost = bcrypt.MinCost
	return opts
}

func newFixture(t *testing.T, configure ...func(*users.Options)) *fixture {
	t.Helper()

	cfg := testOptions()
	for _, fn := range configure {
		fn(&cfg)
	}

	f := &fixture{
		store:  newMemUsers(),
		mailer: &captureMailer{},
		sink:   &captureSink{},
		logger: &captureLogger{},
		cfg:    cfg,
	}

	svc, err := users.NewService[*users.User](f.store, f.store, users.NewUser, f.mailer, cfg,
		users.WithServiceHasher(testHasher),
		users.WithServiceActivitySink(f.sink),
		users.WithServiceLogger(f.logger),
	)
	require.NoError(t, err)

	f.service = svc
	return f
}

// racingUsers runs before ahead of every update to stand in for a
// concurrent writer
type racingUsers struct {
	*memUsers
	before func()
}

func (r *racingUsers) UpdatePassword(ctx context.Context, record *users.User, previousHash string) error {
	r.before()
	return r.memUsers.UpdatePassword(ctx, record, previousHash)
}

func (r *racingUsers) UpdateStatus(ctx context.Context, record *users.User, from users.UserStatus) error {
	r.before()
	return r.memUsers.UpdateStatus(ctx, record, from)
}

func (r *racingUsers) UpdateProfile(ctx context.Context, record *users.User) error {
	r.before()
	return r.memUsers.UpdateProfile(ctx, record)
}

// serviceOver builds a service with the fixture collaborators over store
func (f *fixture) serviceOver(t *testing.T, store users.RecordStore[*users.User]) *users.Service[*users.User] {
	t.Helper()

	svc, err := users.NewService[*users.User](store, f.store, users.NewUser, f.mailer, f.cfg,
		users.WithServiceHasher(testHasher),
		users.WithServiceActivitySink(f.sink),
		users.WithServiceLogger(f.logger),
	)
	require.NoError(t, err)
	return svc
}
