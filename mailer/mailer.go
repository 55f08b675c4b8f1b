package mailer

import (
	"bytes"
	"context"
	"embed"
	"io/fs"
	"net/http"

	"github.com/gofiber/template/django/v3"
	goerrors "github.com/goliatone/go-errors"
	users "github.com/goliatone/go-users"
	"gopkg.in/gomail.v2"
)

//go:embed templates/*.django
var templatesFS embed.FS

// DefaultSubjects maps the message templates to mail subjects
var DefaultSubjects = map[string]string{
	users.TemplatePasswordReset: "Reset your password",
	users.TemplateActivation:    "Activate your account",
}

// Sender is satisfied by *gomail.Dialer
type Sender interface {
	DialAndSend(m ...*gomail.Message) error
}

// Config holds SMTP settings
type Config struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	From     string `yaml:"from"`
}

// SMTPMailer renders a template and delivers it over SMTP
type SMTPMailer struct {
	sender   Sender
	from     string
	views    *django.Engine
	subjects map[string]string
	logger   users.Logger
}

var _ users.Mailer = (*SMTPMailer)(nil)

// Option configures an SMTPMailer
type Option func(*SMTPMailer)

// WithSender replaces the SMTP dialer
func WithSender(sender Sender) Option {
	return func(m *SMTPMailer) {
		if sender != nil {
			m.sender = sender
		}
	}
}

// WithTemplates loads templates from fsys instead of the embedded set
func WithTemplates(fsys fs.FS) Option {
	return func(m *SMTPMailer) {
		if fsys != nil {
			m.views = django.NewFileSystem(http.FS(fsys), ".django")
		}
	}
}

func WithSubject(template, subject string) Option {
	return func(m *SMTPMailer) {
		m.subjects[template] = subject
	}
}

func WithLogger(logger users.Logger) Option {
	return func(m *SMTPMailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// New builds a mailer and parses its templates
func New(cfg Config, opts ...Option) (*SMTPMailer, error) {
	sub, err := fs.Sub(templatesFS, "templates")
	if err != nil {
		return nil, err
	}

	m := &SMTPMailer{
		sender:   gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		from:     cfg.From,
		views:    django.NewFileSystem(http.FS(sub), ".django"),
		subjects: make(map[string]string, len(DefaultSubjects)),
		logger:   users.NewZapLogger(nil),
	}

	for k, v := range DefaultSubjects {
		m.subjects[k] = v
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if err := m.views.Load(); err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to load mail templates")
	}

	return m, nil
}

// Send renders template with data and mails it to recipient
func (m *SMTPMailer) Send(ctx context.Context, template, recipient string, data map[string]any) error {
	subject, ok := m.subjects[template]
	if !ok {
		return goerrors.New("unknown mail template", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"template": template})
	}

	var body bytes.Buffer
	if err := m.views.Render(&body, template, data); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to render mail template")
	}

	msg := gomail.NewMessage()
	msg.SetHeader("From", m.from)
	msg.SetHeader("To", recipient)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/html", body.String())

	done := make(chan error, 1)
	go func() {
		done <- m.sender.DialAndSend(msg)
	}()

	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "mail delivery cancelled")
	case err := <-done:
		if err != nil {
			return goerrors.Wrap(err, goerrors.CategoryOperation, "failed to send mail")
		}
	}

	m.logger.Debug("mail sent", "template", template, "recipient", recipient)
	return nil
}
