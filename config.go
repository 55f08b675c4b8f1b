package users

import (
	"strings"
	"time"
)

// Config holds account policy options
type Config interface {
	GetRequireActivation() bool
	GetAutoLoginByDefault() bool
	GetAutoLoginDuration() time.Duration
	GetTokenSecret() string
	GetPasswordResetTTL() time.Duration
	GetActivationTTL() time.Duration
	GetBcryptCost() int
	GetBaseURL() string
	GetPasswordResetPath() string
	GetActivationPath() string
	GetRevealUnknownEmail() bool
	GetDefaultPhoneRegion() string
	GetMinPasswordLength() int
}

// Options is the default Config implementation
type Options struct {
	RequireActivation  bool          `yaml:"require_activation" json:"require_activation"`
	AutoLoginByDefault bool          `yaml:"auto_login_by_default" json:"auto_login_by_default"`
	AutoLoginDuration  time.Duration `yaml:"auto_login_duration" json:"auto_login_duration"`
	TokenSecret        string        `yaml:"token_secret" json:"-"`
	PasswordResetTTL   time.Duration `yaml:"password_reset_ttl" json:"password_reset_ttl"`
	ActivationTTL      time.Duration `yaml:"activation_ttl" json:"activation_ttl"`
	BcryptCost         int           `yaml:"bcrypt_cost" json:"bcrypt_cost"`
	BaseURL            string        `yaml:"base_url" json:"base_url"`
	PasswordResetPath  string        `yaml:"password_reset_path" json:"password_reset_path"`
	ActivationPath     string        `yaml:"activation_path" json:"activation_path"`
	RevealUnknownEmail bool          `yaml:"reveal_unknown_email" json:"reveal_unknown_email"`
	DefaultPhoneRegion string        `yaml:"default_phone_region" json:"default_phone_region"`
	MinPasswordLength  int           `yaml:"min_password_length" json:"min_password_length"`
}

var _ Config = Options{}

// DefaultOptions mirrors the legacy module defaults
func DefaultOptions() Options {
	return Options{
		RequireActivation:  true,
		AutoLoginByDefault: true,
		AutoLoginDuration:  30 * 24 * time.Hour,
		PasswordResetTTL:   24 * time.Hour,
		PasswordResetPath:  "/users/reset-password",
		ActivationPath:     "/users/activate",
		DefaultPhoneRegion: "US",
		MinPasswordLength:  8,
	}
}

func (o Options) GetRequireActivation() bool { return o.RequireActivation }

func (o Options) GetAutoLoginByDefault() bool { return o.AutoLoginByDefault }

func (o Options) GetAutoLoginDuration() time.Duration { return o.AutoLoginDuration }

func (o Options) GetTokenSecret() string { return o.TokenSecret }

func (o Options) GetPasswordResetTTL() time.Duration { return o.PasswordResetTTL }

func (o Options) GetActivationTTL() time.Duration { return o.ActivationTTL }

func (o Options) GetBcryptCost() int { return o.BcryptCost }

func (o Options) GetBaseURL() string { return strings.TrimRight(o.BaseURL, "/") }

func (o Options) GetPasswordResetPath() string {
	return pathOr(o.PasswordResetPath, "/users/reset-password")
}

func (o Options) GetActivationPath() string {
	return pathOr(o.ActivationPath, "/users/activate")
}

func (o Options) GetRevealUnknownEmail() bool { return o.RevealUnknownEmail }

func (o Options) GetDefaultPhoneRegion() string {
	if o.DefaultPhoneRegion == "" {
		return "US"
	}
	return o.DefaultPhoneRegion
}

func (o Options) GetMinPasswordLength() int {
	if o.MinPasswordLength <= 0 {
		return 8
	}
	return o.MinPasswordLength
}

func pathOr(p, def string) string {
	if p == "" {
		p = def
	}
	return "/" + strings.Trim(p, "/")
}

// sessionDuration applies the auto login policy
func sessionDuration(cfg Config) time.Duration {
	if cfg.GetAutoLoginByDefault() {
		return cfg.GetAutoLoginDuration()
	}
	return 0
}
