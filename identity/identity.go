// Package identity provides the services of record behind rideAuth's
// IdentityBackend: a Redis-hosted account store and an embedded SQLite one.
//
// Both hash passwords with Argon2id, sign session tokens with the jwt
// package, throttle failed sign-ins per email, and hand verification requests
// to a notify.Notifier. A backend holds at most one current session, the way a
// client SDK does.
package identity

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/internal/rate"
	"github.com/MrEthical07/rideAuth/jwt"
	"github.com/MrEthical07/rideAuth/notify"
	"github.com/MrEthical07/rideAuth/password"
)

const defaultVerificationTTL = 24 * time.Hour

// Options wires the collaborators shared by every backend.
type Options struct {
	// Hasher and Sessions are required.
	Hasher   *password.Argon2
	Sessions *jwt.Manager
	// Notifier receives verification requests. Defaults to a LogNotifier.
	Notifier notify.Notifier
	// Limiter throttles failed sign-ins. Nil disables throttling.
	Limiter         *rate.Limiter
	VerificationTTL time.Duration
	Logger          *zap.Logger
}

func (o *Options) normalize() error {
	if o.Hasher == nil {
		return errors.New("identity: password hasher is required")
	}
	if o.Sessions == nil {
		return errors.New("identity: session token manager is required")
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Notifier == nil {
		o.Notifier = notify.NewLogNotifier(o.Logger)
	}
	if o.VerificationTTL <= 0 {
		o.VerificationTTL = defaultVerificationTTL
	}
	return nil
}

// storedAccount is the backend-side record of an account.
type storedAccount struct {
	rideAuth.Account
	PasswordHash string
	CreatedAt    time.Time
}

type session struct {
	id      string
	account string
	token   string
}

// sessionHolder tracks the backend's current session.
type sessionHolder struct {
	mu      sync.Mutex
	current *session
}

func (h *sessionHolder) set(s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.current = s
}

func (h *sessionHolder) get() (session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return session{}, false
	}
	return *h.current, true
}

// take clears and returns the current session.
func (h *sessionHolder) take() (session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current == nil {
		return session{}, false
	}
	s := *h.current
	h.current = nil
	return s, true
}

// clearIf drops the current session when it is still id.
func (h *sessionHolder) clearIf(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.current != nil && h.current.id == id {
		h.current = nil
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

// checkThrottle maps limiter failures onto the controller's sentinels.
func checkThrottle(ctx context.Context, l *rate.Limiter, email string) error {
	if err := l.CheckSignIn(ctx, email); err != nil {
		if errors.Is(err, rate.ErrRateLimited) {
			return fmt.Errorf("too many attempts, try again later: %w", rideAuth.ErrSignInRateLimited)
		}
		return err
	}
	return nil
}

// verifyPassword checks password against acct and maintains the throttle.
func verifyPassword(ctx context.Context, opts Options, acct storedAccount, email, plain string) error {
	ok, err := opts.Hasher.Verify(plain, acct.PasswordHash)
	if err != nil && !errors.Is(err, password.ErrPasswordTooLong) {
		return fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		if ferr := opts.Limiter.RecordFailure(ctx, email); ferr != nil && !errors.Is(ferr, rate.ErrRateLimited) {
			opts.Logger.Warn("sign in throttle unavailable", zap.Error(ferr))
		}
		return fmt.Errorf("password mismatch: %w", rideAuth.ErrInvalidCredentials)
	}
	if err := opts.Limiter.Reset(ctx, email); err != nil {
		opts.Logger.Warn("sign in throttle reset failed", zap.Error(err))
	}
	return nil
}

// issueSession creates a new session id and token for acct.
func issueSession(opts Options, acct rideAuth.Account) (*session, error) {
	sid := uuid.NewString()
	token, err := opts.Sessions.CreateSession(acct.ID, sid, acct.Email, acct.EmailVerified)
	if err != nil {
		return nil, fmt.Errorf("issue session token: %w", err)
	}
	return &session{id: sid, account: acct.ID, token: token}, nil
}

// newVerification creates a verification token and the message announcing it.
func newVerification(opts Options, acct rideAuth.Account) (token string, msg notify.VerificationMessage) {
	token = uuid.NewString()
	return token, notify.VerificationMessage{
		AccountID:   acct.ID,
		Email:       acct.Email,
		DisplayName: acct.DisplayName,
		Token:       token,
		ExpiresAt:   time.Now().Add(opts.VerificationTTL).UTC(),
	}
}
