package web

import (
	"net/http"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-router"
	users "github.com/goliatone/go-users"
)

// Routes are the paths the controller mounts, relative to the router
type Routes struct {
	Register       string
	Login          string
	Logout         string
	Account        string
	ChangePassword string
	PasswordReset  string
	Activate       string
	Settings       string
	Preference     string
}

func DefaultRoutes() Routes {
	return Routes{
		Register:       "/register",
		Login:          "/login",
		Logout:         "/logout",
		Account:        "/account",
		ChangePassword: "/account/password",
		PasswordReset:  "/reset-password",
		Activate:       "/activate",
		Settings:       "/account/settings",
		Preference:     "/account/preferences",
	}
}

// Controller is the JSON binding of Service
type Controller[A users.Account] struct {
	Service  *users.Service[A]
	Sessions *SessionManager
	Routes   Routes
	Logger   users.Logger
}

type ControllerOption[A users.Account] func(*Controller[A])

func WithRoutes[A users.Account](routes Routes) ControllerOption[A] {
	return func(c *Controller[A]) {
		c.Routes = routes
	}
}

func WithControllerLogger[A users.Account](logger users.Logger) ControllerOption[A] {
	return func(c *Controller[A]) {
		if logger != nil {
			c.Logger = logger
		}
	}
}

func NewController[A users.Account](service *users.Service[A], sessions *SessionManager, opts ...ControllerOption[A]) *Controller[A] {
	if service == nil {
		panic("missing users service in controller")
	}

	if sessions == nil {
		panic("missing session manager in controller")
	}

	c := &Controller[A]{
		Service:  service,
		Sessions: sessions,
		Routes:   DefaultRoutes(),
		Logger:   service.Logger(),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}

	return c
}

// Register mounts the controller routes on r. Register is a function
// since the router server type is a type parameter of its own.
func Register[T any, A users.Account](r router.Router[T], a *Controller[A]) {
	r.Use(a.Sessions.Middleware())

	r.Post(a.Routes.Register, a.RegistrationCreate).SetName("register.post")
	r.Post(a.Routes.Login, a.LoginPost).SetName("sign-in.post")
	r.Post(a.Routes.Logout, a.LogOut).SetName("sign-out.post")

	r.Post(a.Routes.PasswordReset, a.PasswordResetPost).SetName("pwd-reset.post")
	r.Get(a.Routes.PasswordReset+"/verify", a.PasswordResetVerify).SetName("pwd-reset-verify.get")
	r.Post(a.Routes.PasswordReset+"/finalize", a.PasswordResetExecute).SetName("pwd-reset-do.post")

	r.Get(a.Routes.Activate, a.Activate).SetName("activate.get")

	protected := a.Sessions.RequireSession()
	r.Get(a.Routes.Account, a.AccountShow, protected).SetName("account.get")
	r.Post(a.Routes.ChangePassword, a.ChangePassword, protected).SetName("account-password.post")
	r.Post(a.Routes.Settings, a.SettingsUpdate, protected).SetName("account-settings.post")
	r.Get(a.Routes.Preference, a.PreferencesShow, protected).SetName("preferences.get")
	r.Post(a.Routes.Preference, a.PreferenceSet, protected).SetName("preferences.post")
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return users.FromValidation(validation.ValidateStruct(&r,
		validation.Field(&r.Identifier, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	))
}

func (a *Controller[A]) LoginPost(c router.Context) error {
	payload := new(LoginRequest)
	if err := c.Bind(payload); err != nil {
		return writeError(c, users.ErrInvalidRequest, a.Logger)
	}

	if err := payload.Validate(); err != nil {
		return writeError(c, err, a.Logger)
	}

	directive, err := a.Service.Login(c.Context(), payload.Identifier, payload.Password)
	if err != nil {
		return writeError(c, err, a.Logger)
	}

	if err := a.Sessions.Establish(c, directive); err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, directive, flash(SeveritySuccess, "login.success"))
}

func (a *Controller[A]) LogOut(c router.Context) error {
	a.Sessions.Clear(c)
	return writeOK(c, http.StatusOK, nil, flash(SeverityInfo, "logout.success"))
}

func (a *Controller[A]) RegistrationCreate(c router.Context) error {
	payload := new(users.RegisterUserMessage)
	if err := c.Bind(payload); err != nil {
		return writeError(c, users.ErrInvalidRequest, a.Logger)
	}
	payload.UseHashid = false

	account, err := a.Service.Register(c.Context(), *payload)
	if err != nil {
		return writeError(c, err, a.Logger)
	}

	key := "register.success"
	if account.GetStatus() == users.UserStatusUnverified {
		key = "register.activation_sent"
	}

	return writeOK(c, http.StatusCreated, account, flash(SeveritySuccess, key, map[string]any{
		"email": account.GetEmail(),
	}))
}

func (a *Controller[A]) PasswordResetPost(c router.Context) error {
	payload := new(users.RequestPasswordResetMessage)
	if err := c.Bind(payload); err != nil {
		return writeError(c, users.ErrInvalidRequest, a.Logger)
	}

	if err := a.Service.RequestPasswordReset(c.Context(), payload.Email); err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, nil, flash(SeveritySuccess, "pwd_reset.email_sent", map[string]any{
		"email": payload.Email,
	}))
}

func (a *Controller[A]) PasswordResetVerify(c router.Context) error {
	if _, err := a.Service.Recovery.VerifyReset(c.Context(), c.Query("id"), c.Query("key")); err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, map[string]any{
		"id":  c.Query("id"),
		"key": c.Query("key"),
	})
}

func (a *Controller[A]) PasswordResetExecute(c router.Context) error {
	payload := new(users.ResetPasswordMessage)
	if err := c.Bind(payload); err != nil {
		return writeError(c, users.ErrInvalidRequest, a.Logger)
	}

	directive, err := a.Service.ResetPassword(c.Context(), *payload)
	if err != nil {
		return writeError(c, err, a.Logger)
	}

	// accounts that cannot log in yet get the new password but no session
	if directive == nil {
		return writeOK(c, http.StatusOK, nil, flash(SeveritySuccess, "pwd_reset.success_login_required"))
	}

	if err := a.Sessions.Establish(c, directive); err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, directive, flash(SeveritySuccess, "pwd_reset.success"))
}

func (a *Controller[A]) Activate(c router.Context) error {
	result, err := a.Service.Activate(c.Context(), c.Query("id"), c.Query("key"))
	if err != nil {
		return writeError(c, err, a.Logger)
	}

	if result.AlreadyActive {
		return writeOK(c, http.StatusOK, map[string]any{"already_active": true},
			flash(SeverityInfo, "activation.already_active"))
	}

	if err := a.Sessions.Establish(c, result.Session); err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, result.Session, flash(SeveritySuccess, "activation.success"))
}

func (a *Controller[A]) AccountShow(c router.Context) error {
	account, err := a.Service.Auth.CurrentAccount(c.Context(), a.Sessions.Current(c))
	if err != nil {
		return writeError(c, err, a.Logger)
	}
	return writeOK(c, http.StatusOK, account)
}

func (a *Controller[A]) ChangePassword(c router.Context) error {
	payload := new(users.ChangePasswordMessage)
	if err := c.Bind(payload); err != nil {
		return writeError(c, users.ErrInvalidRequest, a.Logger)
	}

	session := a.Sessions.Current(c)
	if err := a.Service.ChangePassword(c.Context(), session, *payload); err != nil {
		return writeError(c, err, a.Logger)
	}

	// the change invalidated every session of the account, this one included
	account, err := a.Service.Auth.CurrentAccount(c.Context(), users.UserSession(session.UserID()))
	if err != nil {
		a.Sessions.Clear(c)
		return writeError(c, err, a.Logger)
	}

	if err := a.Sessions.Establish(c, a.Service.Auth.Directive(account)); err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, nil, flash(SeveritySuccess, "password.changed"))
}

func (a *Controller[A]) SettingsUpdate(c router.Context) error {
	payload := new(users.SettingsMessage)
	if err := c.Bind(payload); err != nil {
		return writeError(c, users.ErrInvalidRequest, a.Logger)
	}

	account, err := a.Service.Account.UpdateSettings(c.Context(), a.Sessions.Current(c), *payload)
	if err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, account, flash(SeveritySuccess, "settings.saved"))
}

func (a *Controller[A]) PreferencesShow(c router.Context) error {
	account, err := a.Service.Auth.CurrentAccount(c.Context(), a.Sessions.Current(c))
	if err != nil {
		return writeError(c, err, a.Logger)
	}

	prefs, err := a.Service.Preferences.All(c.Context(), account)
	if err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, prefs)
}

// PreferenceRequest sets a single preference
type PreferenceRequest struct {
	Name  string `json:"name" form:"name"`
	Value string `json:"value" form:"value"`
}

func (a *Controller[A]) PreferenceSet(c router.Context) error {
	payload := new(PreferenceRequest)
	if err := c.Bind(payload); err != nil {
		return writeError(c, users.ErrInvalidRequest, a.Logger)
	}

	value, err := a.Service.SetPreference(c.Context(), a.Sessions.Current(c), payload.Name, payload.Value)
	if err != nil {
		return writeError(c, err, a.Logger)
	}

	return writeOK(c, http.StatusOK, map[string]any{payload.Name: value})
}
