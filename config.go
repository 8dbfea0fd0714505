package rideAuth

import (
	"errors"
	"strings"
)

// Config controls controller policy. Obtain defaults with [DefaultConfig] and
// override individual fields.
//
// Config instances are intended to be configured during initialization and then treated as immutable.
type Config struct {
	// RequireEmailVerification rejects sign-in for accounts whose email is
	// not verified and signs them back out.
	RequireEmailVerification bool
	// WebClientID is passed to the federated provider as the picker hint.
	WebClientID string
	// RejectConcurrent makes the controller return ErrBusy for an operation
	// issued while another one is in flight.
	RejectConcurrent bool
	// ResetSessionOnBuild signs the backend out once when the controller is
	// built, so a cached session never skips the login screen.
	ResetSessionOnBuild bool

	Audit   AuditConfig
	Metrics MetricsConfig
}

// AuditConfig controls the asynchronous audit dispatcher.
type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// MetricsConfig controls in-process counters and latency histograms.
type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

/*
====================================
DEFAULTS
====================================
*/

// DefaultConfig returns the policy used by the mobile client.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		RequireEmailVerification: true,
		RejectConcurrent:         true,
		ResetSessionOnBuild:      true,
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.WebClientID = strings.TrimSpace(cfg.WebClientID)
	return out
}

/*
====================================
VALIDATION
====================================
*/

// Validate reports configuration combinations the controller cannot honor.
func (c *Config) Validate() error {
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}
	if c.Metrics.EnableLatencyHistograms && !c.Metrics.Enabled {
		return errors.New("Metrics EnableLatencyHistograms requires Metrics Enabled")
	}
	if strings.ContainsAny(c.WebClientID, " \t\r\n") {
		return errors.New("WebClientID must not contain whitespace")
	}
	return nil
}
