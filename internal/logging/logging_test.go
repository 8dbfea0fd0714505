package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"":                     "",
		"john.doe@example.com": "joh***@example.com",
		"ab@x.io":              "ab***@x.io",
		"@x.io":                "***@x.io",
		"no-at-sign":           "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewRejectsUnknownLevel(t *testing.T) {
	if _, err := New("development", "loud"); err == nil {
		t.Fatal("expected error for unknown level")
	}
	lg, err := New("production", "warn")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if lg.Core().Enabled(-1) {
		t.Fatal("expected debug disabled at warn level")
	}
}

func TestNewWritesToOutputs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rideauth.log")
	lg, err := New("production", "info", path)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	lg.Info("hello", Email("rider@example.com"))
	_ = lg.Sync()

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(data), "rid***@example.com") {
		t.Fatalf("expected masked email in log, got %s", data)
	}
}
