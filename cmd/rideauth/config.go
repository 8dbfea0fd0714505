package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

type fileConfig struct {
	Env      string `toml:"env"`
	LogLevel string `toml:"log_level"`
	// LogFile receives log output; the terminal belongs to the UI.
	LogFile string `toml:"log_file"`

	RequireEmailVerification bool   `toml:"require_email_verification"`
	WebClientID              string `toml:"web_client_id"`

	Backend      backendConfig      `toml:"backend"`
	Session      sessionConfig      `toml:"session"`
	Throttle     throttleConfig     `toml:"throttle"`
	Verification verificationConfig `toml:"verification"`
	Kafka        kafkaConfig        `toml:"kafka"`
	Google       googleConfig       `toml:"google"`
	Metrics      metricsConfig      `toml:"metrics"`
	Audit        auditConfig        `toml:"audit"`
}

type backendConfig struct {
	// Kind is "redis" or "sqlite".
	Kind       string `toml:"kind"`
	RedisAddr  string `toml:"redis_addr"`
	SQLitePath string `toml:"sqlite_path"`
	Prefix     string `toml:"prefix"`
}

type sessionConfig struct {
	Secret string        `toml:"secret"`
	TTL    time.Duration `toml:"ttl"`
	Issuer string        `toml:"issuer"`
}

type throttleConfig struct {
	MaxAttempts int           `toml:"max_attempts"`
	Cooldown    time.Duration `toml:"cooldown"`
}

type verificationConfig struct {
	TTL time.Duration `toml:"ttl"`
}

type kafkaConfig struct {
	Brokers     []string `toml:"brokers"`
	TopicPrefix string   `toml:"topic_prefix"`
}

type googleConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	RedirectURL  string `toml:"redirect_url"`
}

type metricsConfig struct {
	Addr string `toml:"addr"`
}

type auditConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

func defaultFileConfig() fileConfig {
	return fileConfig{
		Env:                      "development",
		LogLevel:                 "info",
		LogFile:                  "rideauth.log",
		RequireEmailVerification: true,
		Backend: backendConfig{
			Kind:       "sqlite",
			SQLitePath: "rideauth.db",
			Prefix:     "rideauth",
		},
		Session: sessionConfig{
			TTL:    24 * time.Hour,
			Issuer: "rideauth",
		},
		Throttle: throttleConfig{
			MaxAttempts: 5,
			Cooldown:    15 * time.Minute,
		},
		Verification: verificationConfig{TTL: 24 * time.Hour},
		Kafka:        kafkaConfig{TopicPrefix: "rideauth"},
	}
}

// loadConfig reads path over the defaults, then applies RIDEAUTH_*
// environment overrides. A missing path is not an error.
func loadConfig(path string) (fileConfig, error) {
	cfg := defaultFileConfig()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fileConfig{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return fileConfig{}, err
	}
	if err := cfg.validate(); err != nil {
		return fileConfig{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *fileConfig) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	str("RIDEAUTH_ENV", &c.Env)
	str("RIDEAUTH_LOG_LEVEL", &c.LogLevel)
	str("RIDEAUTH_LOG_FILE", &c.LogFile)
	str("RIDEAUTH_WEB_CLIENT_ID", &c.WebClientID)
	str("RIDEAUTH_BACKEND", &c.Backend.Kind)
	str("RIDEAUTH_REDIS_ADDR", &c.Backend.RedisAddr)
	str("RIDEAUTH_SQLITE_PATH", &c.Backend.SQLitePath)
	str("RIDEAUTH_SESSION_SECRET", &c.Session.Secret)
	str("RIDEAUTH_GOOGLE_CLIENT_ID", &c.Google.ClientID)
	str("RIDEAUTH_GOOGLE_CLIENT_SECRET", &c.Google.ClientSecret)
	str("RIDEAUTH_GOOGLE_REDIRECT_URL", &c.Google.RedirectURL)
	str("RIDEAUTH_METRICS_ADDR", &c.Metrics.Addr)

	if v, ok := lookup("RIDEAUTH_KAFKA_BROKERS"); ok {
		c.Kafka.Brokers = nil
		for _, b := range strings.Split(v, ",") {
			if b = strings.TrimSpace(b); b != "" {
				c.Kafka.Brokers = append(c.Kafka.Brokers, b)
			}
		}
	}
	if v, ok := lookup("RIDEAUTH_REQUIRE_EMAIL_VERIFICATION"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("RIDEAUTH_REQUIRE_EMAIL_VERIFICATION: %w", err)
		}
		c.RequireEmailVerification = b
	}
	return nil
}

func (c fileConfig) validate() error {
	switch c.Backend.Kind {
	case "redis":
		if c.Backend.RedisAddr == "" {
			return errors.New("backend.redis_addr is required for the redis backend")
		}
	case "sqlite":
		if c.Backend.SQLitePath == "" {
			return errors.New("backend.sqlite_path is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown backend kind %q", c.Backend.Kind)
	}
	if len(c.Session.Secret) < 32 {
		return errors.New("session.secret must be at least 32 bytes")
	}
	if c.Google.ClientID != "" && c.Google.RedirectURL == "" {
		return errors.New("google.redirect_url is required with google.client_id")
	}
	return nil
}
