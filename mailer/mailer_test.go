package mailer_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/mailer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/gomail.v2"
)

type fakeSender struct {
	mu       sync.Mutex
	messages []*gomail.Message
	err      error
	block    chan struct{}
}

func (s *fakeSender) DialAndSend(m ...*gomail.Message) error {
	if s.block != nil {
		<-s.block
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	s.messages = append(s.messages, m...)
	return nil
}

func raw(t *testing.T, m *gomail.Message) string {
	t.Helper()
	var buf bytes.Buffer
	_, err := m.WriteTo(&buf)
	require.NoError(t, err)
	return buf.String()
}

func TestSMTPMailerRendersEmbeddedTemplate(t *testing.T) {
	sender := &fakeSender{}
	m, err := mailer.New(mailer.Config{From: "noreply@example.com"}, mailer.WithSender(sender))
	require.NoError(t, err)

	err = m.Send(context.Background(), users.TemplatePasswordReset, "ann@example.com", map[string]any{
		"name":  "Ann",
		"email": "ann@example.com",
		"link":  "https://example.com/r",
	})
	require.NoError(t, err)

	require.Len(t, sender.messages, 1)
	msg := sender.messages[0]
	assert.Equal(t, []string{"noreply@example.com"}, msg.GetHeader("From"))
	assert.Equal(t, []string{"ann@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"Reset your password"}, msg.GetHeader("Subject"))
	assert.Contains(t, raw(t, msg), "Hello Ann,")
}

func TestSMTPMailerCustomTemplatesAndSubject(t *testing.T) {
	sender := &fakeSender{}
	fsys := fstest.MapFS{
		"activation.django": &fstest.MapFile{Data: []byte("Hi {{ name }}")},
	}

	m, err := mailer.New(mailer.Config{From: "noreply@example.com"},
		mailer.WithSender(sender),
		mailer.WithTemplates(fsys),
		mailer.WithSubject(users.TemplateActivation, "Welcome aboard"),
	)
	require.NoError(t, err)

	require.NoError(t, m.Send(context.Background(), users.TemplateActivation, "ann@example.com", map[string]any{"name": "Ann"}))

	require.Len(t, sender.messages, 1)
	assert.Equal(t, []string{"Welcome aboard"}, sender.messages[0].GetHeader("Subject"))
	assert.Contains(t, raw(t, sender.messages[0]), "Hi Ann")
}

func TestSMTPMailerUnknownTemplate(t *testing.T) {
	sender := &fakeSender{}
	m, err := mailer.New(mailer.Config{}, mailer.WithSender(sender))
	require.NoError(t, err)

	err = m.Send(context.Background(), "newsletter", "ann@example.com", nil)
	assert.Error(t, err)
	assert.Empty(t, sender.messages)
}

func TestSMTPMailerDeliveryFailure(t *testing.T) {
	sender := &fakeSender{err: errors.New("connection refused")}
	m, err := mailer.New(mailer.Config{}, mailer.WithSender(sender))
	require.NoError(t, err)

	err = m.Send(context.Background(), users.TemplateActivation, "ann@example.com", map[string]any{"name": "Ann"})
	assert.Error(t, err)
}

func TestSMTPMailerHonoursContext(t *testing.T) {
	sender := &fakeSender{block: make(chan struct{})}
	defer close(sender.block)

	m, err := mailer.New(mailer.Config{}, mailer.WithSender(sender))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = m.Send(ctx, users.TemplateActivation, "ann@example.com", map[string]any{"name": "Ann"})
	assert.Error(t, err)
}

func TestLogMailerNeverFails(t *testing.T) {
	m := mailer.LogMailer{Logger: users.NewZapLogger(nil)}
	assert.NoError(t, m.Send(context.Background(), users.TemplateActivation, "ann@example.com", map[string]any{"link": "x"}))
}
