package identity

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/internal/rate"
	"github.com/MrEthical07/rideAuth/jwt"
	"github.com/MrEthical07/rideAuth/notify"
	"github.com/MrEthical07/rideAuth/password"
)

type recordingNotifier struct {
	mu   sync.Mutex
	msgs []notify.VerificationMessage
	err  error
}

func (n *recordingNotifier) NotifyVerification(_ context.Context, msg notify.VerificationMessage) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.msgs = append(n.msgs, msg)
	return nil
}

func (n *recordingNotifier) last(t *testing.T) notify.VerificationMessage {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.msgs) == 0 {
		t.Fatal("no verification message recorded")
	}
	return n.msgs[len(n.msgs)-1]
}

type verifyingBackend interface {
	rideAuth.IdentityBackend
	ConfirmEmailVerification(ctx context.Context, token string) (rideAuth.Account, error)
	SessionToken() (string, bool)
}

type backendFixture struct {
	backend  verifyingBackend
	notifier *recordingNotifier
	sessions *jwt.Manager
}

func testOptions(t *testing.T, limiter *rate.Limiter) (Options, *recordingNotifier) {
	t.Helper()

	hasher, err := password.NewArgon2(password.Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	sessions, err := jwt.NewManager(jwt.Config{
		SessionTTL:    time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("0123456789abcdef0123456789abcdef"),
		Issuer:        "rideauth-test",
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	notifier := &recordingNotifier{}
	return Options{
		Hasher:   hasher,
		Sessions: sessions,
		Notifier: notifier,
		Limiter:  limiter,
		Logger:   zaptest.NewLogger(t),
	}, notifier
}

func newMiniredis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return mr, rdb
}

func newRedisFixture(t *testing.T) backendFixture {
	t.Helper()
	_, rdb := newMiniredis(t)
	limiter := rate.New(rdb, rate.Config{Prefix: "test", MaxAttempts: 3, Cooldown: time.Minute})
	opts, notifier := testOptions(t, limiter)

	b, err := NewRedisBackend(rdb, "test", opts)
	if err != nil {
		t.Fatalf("NewRedisBackend failed: %v", err)
	}
	return backendFixture{backend: b, notifier: notifier, sessions: opts.Sessions}
}

func newSQLiteFixture(t *testing.T) backendFixture {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("OpenSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	_, rdb := newMiniredis(t)
	limiter := rate.New(rdb, rate.Config{Prefix: "test", MaxAttempts: 3, Cooldown: time.Minute})
	opts, notifier := testOptions(t, limiter)

	b, err := NewSQLiteBackend(context.Background(), db, opts)
	if err != nil {
		t.Fatalf("NewSQLiteBackend failed: %v", err)
	}
	return backendFixture{backend: b, notifier: notifier, sessions: opts.Sessions}
}

var fixtures = map[string]func(*testing.T) backendFixture{
	"redis":  newRedisFixture,
	"sqlite": newSQLiteFixture,
}

func forEachBackend(t *testing.T, fn func(t *testing.T, f backendFixture)) {
	for name, newFixture := range fixtures {
		t.Run(name, func(t *testing.T) {
			fn(t, newFixture(t))
		})
	}
}

func TestCreateAccountSignsInAndRejectsDuplicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f backendFixture) {
		ctx := context.Background()

		acct, err := f.backend.CreateAccount(ctx, " Rider@Example.com ", "longpass")
		if err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		if acct.ID == "" || acct.Email != "rider@example.com" || acct.EmailVerified {
			t.Fatalf("unexpected account %+v", acct)
		}

		current, ok := f.backend.CurrentAccount(ctx)
		if !ok || current.ID != acct.ID {
			t.Fatalf("expected new account signed in, got %+v %v", current, ok)
		}

		token, ok := f.backend.SessionToken()
		if !ok {
			t.Fatal("expected session token")
		}
		claims, err := f.sessions.ParseSession(token)
		if err != nil || claims.UID != acct.ID {
			t.Fatalf("unexpected session claims %+v, %v", claims, err)
		}

		if _, err := f.backend.CreateAccount(ctx, "rider@example.com", "otherpass"); !errors.Is(err, rideAuth.ErrAccountExists) {
			t.Fatalf("expected ErrAccountExists, got %v", err)
		}
	})
}

func TestSignInOutcomes(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f backendFixture) {
		ctx := context.Background()
		if _, err := f.backend.CreateAccount(ctx, "rider@example.com", "longpass"); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}
		f.backend.SignOut(ctx)

		if _, err := f.backend.SignInWithPassword(ctx, "nobody@example.com", "longpass"); !errors.Is(err, rideAuth.ErrNoSuchAccount) {
			t.Fatalf("expected ErrNoSuchAccount, got %v", err)
		}
		if _, err := f.backend.SignInWithPassword(ctx, "rider@example.com", "wrongpass"); !errors.Is(err, rideAuth.ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		if _, ok := f.backend.CurrentAccount(ctx); ok {
			t.Fatal("failed sign in must not create a session")
		}

		acct, err := f.backend.SignInWithPassword(ctx, "RIDER@example.com", "longpass")
		if err != nil {
			t.Fatalf("SignInWithPassword failed: %v", err)
		}
		if acct.Email != "rider@example.com" {
			t.Fatalf("unexpected account %+v", acct)
		}
		if _, ok := f.backend.CurrentAccount(ctx); !ok {
			t.Fatal("expected session after sign in")
		}

		f.backend.SignOut(ctx)
		f.backend.SignOut(ctx)
		if _, ok := f.backend.CurrentAccount(ctx); ok {
			t.Fatal("expected no session after sign out")
		}
		if _, ok := f.backend.SessionToken(); ok {
			t.Fatal("expected no session token after sign out")
		}
	})
}

func TestSignInThrottled(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f backendFixture) {
		ctx := context.Background()
		if _, err := f.backend.CreateAccount(ctx, "rider@example.com", "longpass"); err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}

		for i := 0; i < 3; i++ {
			if _, err := f.backend.SignInWithPassword(ctx, "rider@example.com", "wrongpass"); !errors.Is(err, rideAuth.ErrInvalidCredentials) {
				t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i+1, err)
			}
		}
		if _, err := f.backend.SignInWithPassword(ctx, "rider@example.com", "longpass"); !errors.Is(err, rideAuth.ErrSignInRateLimited) {
			t.Fatalf("expected ErrSignInRateLimited, got %v", err)
		}
	})
}

func TestDisplayNameAndVerification(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f backendFixture) {
		ctx := context.Background()
		acct, err := f.backend.CreateAccount(ctx, "rider@example.com", "longpass")
		if err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}

		if err := f.backend.SetDisplayName(ctx, acct, "Ada Rider"); err != nil {
			t.Fatalf("SetDisplayName failed: %v", err)
		}
		if err := f.backend.SendVerificationEmail(ctx, acct); err != nil {
			t.Fatalf("SendVerificationEmail failed: %v", err)
		}

		msg := f.notifier.last(t)
		if msg.AccountID != acct.ID || msg.Email != "rider@example.com" || msg.DisplayName != "Ada Rider" || msg.Token == "" {
			t.Fatalf("unexpected verification message %+v", msg)
		}

		if _, err := f.backend.ConfirmEmailVerification(ctx, "bogus"); !errors.Is(err, rideAuth.ErrVerificationInvalid) {
			t.Fatalf("expected ErrVerificationInvalid, got %v", err)
		}

		verified, err := f.backend.ConfirmEmailVerification(ctx, msg.Token)
		if err != nil {
			t.Fatalf("ConfirmEmailVerification failed: %v", err)
		}
		if !verified.EmailVerified || verified.DisplayName != "Ada Rider" {
			t.Fatalf("unexpected verified account %+v", verified)
		}
		if _, err := f.backend.ConfirmEmailVerification(ctx, msg.Token); !errors.Is(err, rideAuth.ErrVerificationInvalid) {
			t.Fatalf("expected token to be single-use, got %v", err)
		}

		f.backend.SignOut(ctx)
		again, err := f.backend.SignInWithPassword(ctx, "rider@example.com", "longpass")
		if err != nil || !again.EmailVerified {
			t.Fatalf("expected verified sign in, got %+v, %v", again, err)
		}
	})
}

func TestSendVerificationFailureSurfaces(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f backendFixture) {
		ctx := context.Background()
		acct, err := f.backend.CreateAccount(ctx, "rider@example.com", "longpass")
		if err != nil {
			t.Fatalf("CreateAccount failed: %v", err)
		}

		f.notifier.err = errors.New("broker down")
		if err := f.backend.SendVerificationEmail(ctx, acct); err == nil {
			t.Fatal("expected notifier failure to surface")
		}
		if err := f.backend.SetDisplayName(ctx, rideAuth.Account{}, "x"); !errors.Is(err, rideAuth.ErrNotSignedIn) {
			t.Fatalf("expected ErrNotSignedIn, got %v", err)
		}
	})
}

func TestControllerSignUpAgainstBackends(t *testing.T) {
	forEachBackend(t, func(t *testing.T, f backendFixture) {
		cfg := rideAuth.DefaultConfig()
		c, err := rideAuth.New().WithConfig(cfg).WithBackend(f.backend).Build()
		if err != nil {
			t.Fatalf("Build failed: %v", err)
		}
		defer c.Close()

		ctx := context.Background()
		if err := c.SignUp(ctx, "rider@example.com", "longpass", "Ada Rider"); err != nil {
			t.Fatalf("SignUp failed: %v", err)
		}
		if c.State() != rideAuth.Success() {
			t.Fatalf("expected Success, got %v", c.State())
		}

		// Unverified accounts are bounced at sign-in.
		if err := c.SignIn(ctx, "rider@example.com", "longpass"); !errors.Is(err, rideAuth.ErrEmailUnverified) {
			t.Fatalf("expected ErrEmailUnverified, got %v", err)
		}
		if c.State() != rideAuth.Failed(rideAuth.MsgEmailNotVerified) {
			t.Fatalf("unexpected state %v", c.State())
		}
		if _, ok := c.CurrentAccount(ctx); ok {
			t.Fatal("unverified sign in must leave no session")
		}

		if _, err := f.backend.ConfirmEmailVerification(ctx, f.notifier.last(t).Token); err != nil {
			t.Fatalf("ConfirmEmailVerification failed: %v", err)
		}
		if err := c.SignIn(ctx, "rider@example.com", "longpass"); err != nil {
			t.Fatalf("SignIn after verification failed: %v", err)
		}
		acct, ok := c.CurrentAccount(ctx)
		if !ok || acct.DisplayName != "Ada Rider" {
			t.Fatalf("unexpected current account %+v %v", acct, ok)
		}

		if err := c.SignIn(ctx, "rider@example.com", "wrongpass"); err == nil {
			t.Fatal("expected wrong password to fail")
		}
		if c.State() != rideAuth.Failed(rideAuth.MsgInvalidCredentials) {
			t.Fatalf("unexpected state %v", c.State())
		}
	})
}

func TestRedisSessionExpiryClearsCurrentAccount(t *testing.T) {
	mr, rdb := newMiniredis(t)
	opts, _ := testOptions(t, nil)
	b, err := NewRedisBackend(rdb, "test", opts)
	if err != nil {
		t.Fatalf("NewRedisBackend failed: %v", err)
	}

	ctx := context.Background()
	if _, err := b.CreateAccount(ctx, "rider@example.com", "longpass"); err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	mr.FastForward(2 * time.Hour)

	if _, ok := b.CurrentAccount(ctx); ok {
		t.Fatal("expected expired session to be dropped")
	}
	if _, ok := b.SessionToken(); ok {
		t.Fatal("expected expired session token to be dropped")
	}
}

func TestRedisVerificationExpires(t *testing.T) {
	mr, rdb := newMiniredis(t)
	opts, notifier := testOptions(t, nil)
	opts.VerificationTTL = time.Minute
	b, err := NewRedisBackend(rdb, "test", opts)
	if err != nil {
		t.Fatalf("NewRedisBackend failed: %v", err)
	}

	ctx := context.Background()
	acct, err := b.CreateAccount(ctx, "rider@example.com", "longpass")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := b.SendVerificationEmail(ctx, acct); err != nil {
		t.Fatalf("SendVerificationEmail failed: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, err := b.ConfirmEmailVerification(ctx, notifier.last(t).Token); !errors.Is(err, rideAuth.ErrVerificationInvalid) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
}

func TestSQLiteVerificationExpires(t *testing.T) {
	f := newSQLiteFixture(t)
	b := f.backend.(*SQLiteBackend)

	ctx := context.Background()
	acct, err := b.CreateAccount(ctx, "rider@example.com", "longpass")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if err := b.SendVerificationEmail(ctx, acct); err != nil {
		t.Fatalf("SendVerificationEmail failed: %v", err)
	}

	b.now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	if _, err := b.ConfirmEmailVerification(ctx, f.notifier.last(t).Token); !errors.Is(err, rideAuth.ErrVerificationInvalid) {
		t.Fatalf("expected expired token to be rejected, got %v", err)
	}
	if _, ok := b.CurrentAccount(ctx); ok {
		t.Fatal("expected session past its expiry to be dropped")
	}
}

func TestNewBackendsRequireCollaborators(t *testing.T) {
	if _, err := NewRedisBackend(nil, "", Options{}); err == nil {
		t.Fatal("expected missing redis client to fail")
	}
	_, rdb := newMiniredis(t)
	if _, err := NewRedisBackend(rdb, "", Options{}); err == nil {
		t.Fatal("expected missing hasher to fail")
	}
	if _, err := NewSQLiteBackend(context.Background(), nil, Options{}); err == nil {
		t.Fatal("expected missing db to fail")
	}
}
