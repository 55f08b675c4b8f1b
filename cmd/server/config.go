package main

import (
	"os"
	"time"

	users "github.com/goliatone/go-users"
	"github.com/goliatone/go-users/mailer"
	"github.com/goliatone/go-users/web"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DatabaseConfig is the persistence client configuration
type DatabaseConfig struct {
	Driver         string        `yaml:"driver"`
	DSN            string        `yaml:"dsn"`
	Name           string        `yaml:"name"`
	Debug          bool          `yaml:"debug"`
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	OtelIdentifier string        `yaml:"otel_identifier"`
}

func (c DatabaseConfig) GetDebug() bool                { return c.Debug }
func (c DatabaseConfig) GetDriver() string             { return c.Driver }
func (c DatabaseConfig) GetServer() string             { return c.DSN }
func (c DatabaseConfig) GetDatabase() string           { return c.Name }
func (c DatabaseConfig) GetPingTimeout() time.Duration { return c.PingTimeout }
func (c DatabaseConfig) GetOtelIdentifier() string     { return c.OtelIdentifier }

type LoggerConfig struct {
	Level    string `yaml:"level"`
	Encoding string `yaml:"encoding"`
}

type Config struct {
	Address  string            `yaml:"address"`
	Logger   LoggerConfig      `yaml:"logger"`
	Database DatabaseConfig    `yaml:"database"`
	Users    users.Options     `yaml:"users"`
	SMTP     mailer.Config     `yaml:"smtp"`
	Session  web.SessionConfig `yaml:"session"`
}

// loadConfig reads .env when present, then the YAML file with ${VAR}
// references expanded from the environment.
func loadConfig(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Address:  ":8080",
		Logger:   LoggerConfig{Level: "info", Encoding: "json"},
		Database: DatabaseConfig{Driver: "sqlite", DSN: "file:users.db?cache=shared", Name: "users", PingTimeout: 5 * time.Second},
		Users:    users.DefaultOptions(),
	}

	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)
	return cfg, nil
}

// applyDefaults restores defaults for values left empty by unset variables
func applyDefaults(cfg *Config) {
	if cfg.Address == "" {
		cfg.Address = ":8080"
	}
	if cfg.Logger.Level == "" {
		cfg.Logger.Level = "info"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.DSN == "" && cfg.Database.Driver == "sqlite" {
		cfg.Database.DSN = "file:users.db?cache=shared"
	}
	if cfg.Database.PingTimeout <= 0 {
		cfg.Database.PingTimeout = 5 * time.Second
	}
	// derived from the token secret, never equal to it
	if cfg.Session.SigningKey == "" && cfg.Users.TokenSecret != "" {
		cfg.Session.SigningKey = users.DeriveKey(cfg.Users.TokenSecret, "session")
	}
}
