//go:build integration
// +build integration

package test

import (
	"context"
	"errors"
	"strings"
	"testing"

	rideAuth "github.com/MrEthical07/rideAuth"
	promexport "github.com/MrEthical07/rideAuth/metrics/export/prometheus"
)

func TestSignUpVerifySignInFlow(t *testing.T) {
	s := newIntegrationStack(t)
	s.expectVerification()

	ctrl, err := rideAuth.New().WithBackend(s.backend).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer ctrl.Close()

	ctx := context.Background()
	if err := ctrl.SignUp(ctx, "ada@example.com", "longpass", "Ada Rider"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	token := <-s.tokens

	if err := ctrl.SignIn(ctx, "ada@example.com", "longpass"); !errors.Is(err, rideAuth.ErrEmailUnverified) {
		t.Fatalf("expected ErrEmailUnverified, got %v", err)
	}

	if _, err := s.backend.ConfirmEmailVerification(ctx, token); err != nil {
		t.Fatalf("ConfirmEmailVerification failed: %v", err)
	}
	if err := ctrl.SignIn(ctx, "ada@example.com", "longpass"); err != nil {
		t.Fatalf("SignIn failed: %v", err)
	}
	if ctrl.State() != rideAuth.Success() {
		t.Fatalf("expected Success, got %v", ctrl.State())
	}

	out := promexport.NewPrometheusExporter(ctrl).Render()
	for _, want := range []string{
		"rideauth_sign_up_success_total 1",
		"rideauth_sign_in_unverified_total 1",
		"rideauth_sign_in_success_total 1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %q in metrics, got:\n%s", want, out)
		}
	}
}

func TestRepeatedWrongPasswordIsThrottled(t *testing.T) {
	s := newIntegrationStack(t)
	s.expectVerification()

	ctrl, err := rideAuth.New().WithBackend(s.backend).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer ctrl.Close()

	ctx := context.Background()
	if err := ctrl.SignUp(ctx, "ada@example.com", "longpass", "Ada Rider"); err != nil {
		t.Fatalf("SignUp failed: %v", err)
	}
	<-s.tokens

	for i := 0; i < 5; i++ {
		_ = ctrl.SignIn(ctx, "ada@example.com", "wrongpass")
	}
	err = ctrl.SignIn(ctx, "ada@example.com", "longpass")
	if !errors.Is(err, rideAuth.ErrSignInRateLimited) {
		t.Fatalf("expected ErrSignInRateLimited, got %v", err)
	}
	if st := ctrl.State(); !st.IsError() || !strings.HasPrefix(st.Message, "Sign in failed: ") {
		t.Fatalf("unexpected state %v", st)
	}
}
