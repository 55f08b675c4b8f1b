package web

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	users "github.com/goliatone/go-users"
)

const localsSession = "users.session"

// ErrSessionInvalid the session cookie could not be verified
var ErrSessionInvalid = goerrors.New("session is invalid", goerrors.CategoryAuth).
	WithTextCode("SESSION_INVALID").
	WithCode(goerrors.CodeUnauthorized)

// SessionConfig controls the session cookie
type SessionConfig struct {
	CookieName string `yaml:"cookie_name"`
	SigningKey string `yaml:"signing_key"`
	Issuer     string `yaml:"issuer"`
	Secure     bool   `yaml:"secure"`
	SameSite   string `yaml:"same_site"`
	// BrowserSessionTTL bounds the token of a cookie without expiry
	BrowserSessionTTL time.Duration `yaml:"browser_session_ttl"`
}

type sessionClaims struct {
	Name string `json:"name,omitempty"`
	// Stamp is the credential stamp of the account at issue time
	Stamp string `json:"cst,omitempty"`
	jwt.RegisteredClaims
}

// SessionManager turns session directives into signed cookies
type SessionManager struct {
	cfg    SessionConfig
	key    []byte
	now    func() time.Time
	logger users.Logger
}

// NewSessionManager fails when no signing key is configured
func NewSessionManager(cfg SessionConfig, logger users.Logger) (*SessionManager, error) {
	if cfg.SigningKey == "" {
		return nil, goerrors.New("session signing key is required", goerrors.CategoryValidation)
	}

	if cfg.CookieName == "" {
		cfg.CookieName = "users_session"
	}

	if cfg.SameSite == "" {
		cfg.SameSite = router.CookieSameSiteLaxMode
	}

	if cfg.BrowserSessionTTL <= 0 {
		cfg.BrowserSessionTTL = 12 * time.Hour
	}

	if logger == nil {
		logger = users.NewZapLogger(nil)
	}

	return &SessionManager{
		cfg:    cfg,
		key:    []byte(cfg.SigningKey),
		now:    time.Now,
		logger: logger,
	}, nil
}

// Establish signs the directive and sets the session cookie. A directive
// without duration produces a cookie that ends with the browser.
func (m *SessionManager) Establish(c router.Context, directive *users.SessionDirective) error {
	if directive == nil || directive.UserID == "" {
		return users.ErrInvalidRequest
	}

	now := m.now()
	ttl := directive.Duration
	if ttl <= 0 {
		ttl = m.cfg.BrowserSessionTTL
	}

	claims := &sessionClaims{
		Name:  directive.UserName,
		Stamp: directive.CredentialStamp,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    m.cfg.Issuer,
			Subject:   directive.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.key)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to sign session")
	}

	cookie := &router.Cookie{
		Name:     m.cfg.CookieName,
		Value:    signed,
		Path:     "/",
		HTTPOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSite,
	}

	if directive.Duration > 0 {
		cookie.Expires = now.Add(directive.Duration)
	} else {
		cookie.SessionOnly = true
	}

	c.Cookie(cookie)
	c.Locals(localsSession, users.IssuedSession{
		Subject: directive.UserID,
		Stamp:   directive.CredentialStamp,
	})

	return nil
}

// Current returns the session of the request, Anonymous when the cookie
// is missing or does not verify.
func (m *SessionManager) Current(c router.Context) users.SessionContext {
	if s, ok := c.Locals(localsSession).(users.SessionContext); ok && s != nil {
		return s
	}

	raw := c.Cookies(m.cfg.CookieName)
	if raw == "" {
		return users.Anonymous
	}

	claims, err := m.parse(raw)
	if err != nil {
		m.logger.Debug("discarding session cookie", "error", err)
		return users.Anonymous
	}

	return users.IssuedSession{Subject: claims.Subject, Stamp: claims.Stamp}
}

// Clear removes the session cookie
func (m *SessionManager) Clear(c router.Context) {
	c.Cookie(&router.Cookie{
		Name:     m.cfg.CookieName,
		Value:    "",
		Path:     "/",
		HTTPOnly: true,
		Secure:   m.cfg.Secure,
		SameSite: m.cfg.SameSite,
		Expires:  m.now().Add(-time.Hour),
	})
	c.Locals(localsSession, users.Anonymous)
}

func (m *SessionManager) parse(raw string) (*sessionClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
	}
	if m.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.cfg.Issuer))
	}

	token, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.key, nil
	}, opts...)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryAuth, "failed to parse session")
	}

	claims, ok := token.Claims.(*sessionClaims)
	if !ok || !token.Valid || claims.Subject == "" {
		return nil, ErrSessionInvalid
	}

	return claims, nil
}

// Middleware stores the session and the request actor in the request
// context so services can read them.
func (m *SessionManager) Middleware() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			session := m.Current(c)
			c.Locals(localsSession, session)

			actor := users.ActorRef{Type: "anonymous", IP: c.IP()}
			if session.IsAuthenticated() {
				actor.ID = session.UserID()
				actor.Type = "user"
			}

			ctx := users.WithSession(c.Context(), session)
			ctx = users.WithActor(ctx, actor)
			c.SetContext(ctx)

			return next(c)
		}
	}
}

// RequireSession rejects anonymous requests
func (m *SessionManager) RequireSession() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !m.Current(c).IsAuthenticated() {
				return writeError(c, users.ErrNotAuthenticated, m.logger)
			}
			return next(c)
		}
	}
}
