package rideAuth

import "testing"

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "defaults valid",
			mutate:    func(*Config) {},
			wantValid: true,
		},
		{
			name: "audit buffer zero invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name: "audit buffer ignored when disabled",
			mutate: func(c *Config) {
				c.Audit.Enabled = false
				c.Audit.BufferSize = 0
			},
			wantValid: true,
		},
		{
			name: "histograms without metrics invalid",
			mutate: func(c *Config) {
				c.Metrics.Enabled = false
				c.Metrics.EnableLatencyHistograms = true
			},
			wantValid: false,
		},
		{
			name: "web client id valid",
			mutate: func(c *Config) {
				c.WebClientID = "1234-abc.apps.googleusercontent.com"
			},
			wantValid: true,
		},
		{
			name: "web client id with space invalid",
			mutate: func(c *Config) {
				c.WebClientID = "1234 abc"
			},
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestDefaultConfigPolicy(t *testing.T) {
	cfg := DefaultConfig()
	if !cfg.RequireEmailVerification {
		t.Fatal("email verification must be required by default")
	}
	if !cfg.RejectConcurrent {
		t.Fatal("concurrent operations must be rejected by default")
	}
	if !cfg.ResetSessionOnBuild {
		t.Fatal("cached sessions must be reset by default")
	}
}

func TestCloneConfigTrimsWebClientID(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WebClientID = "  web-id  "
	if got := cloneConfig(cfg).WebClientID; got != "web-id" {
		t.Fatalf("expected trimmed id, got %q", got)
	}
}

func TestBuildRejectsInvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Metrics.EnableLatencyHistograms = true

	if _, err := New().WithConfig(cfg).WithBackend(&fakeBackend{}).Build(); err == nil {
		t.Fatal("expected Build to reject invalid config")
	}
}
