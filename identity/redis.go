package identity

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/internal/logging"
)

// RedisBackend keeps accounts, sessions and verification tokens in Redis:
//
//	<prefix>:acct:<id>         hash (email, display_name, verified, password_hash, created_at)
//	<prefix>:email:<email>     account id, created with SETNX
//	<prefix>:sess:<sid>        account id, expires with the session token
//	<prefix>:verify:<sha256>   account id, expires with the verification link
type RedisBackend struct {
	redis    redis.UniversalClient
	prefix   string
	opts     Options
	sessions sessionHolder
}

var _ rideAuth.IdentityBackend = (*RedisBackend)(nil)

// NewRedisBackend returns a backend storing its records under prefix.
func NewRedisBackend(client redis.UniversalClient, prefix string, opts Options) (*RedisBackend, error) {
	if client == nil {
		return nil, errors.New("identity: redis client is required")
	}
	if err := opts.normalize(); err != nil {
		return nil, err
	}
	if prefix == "" {
		prefix = "rideauth"
	}
	return &RedisBackend{
		redis:  client,
		prefix: prefix,
		opts:   opts,
	}, nil
}

func (b *RedisBackend) accountKey(id string) string { return b.prefix + ":acct:" + id }
func (b *RedisBackend) emailKey(email string) string { return b.prefix + ":email:" + normalizeEmail(email) }
func (b *RedisBackend) sessionKey(sid string) string { return b.prefix + ":sess:" + sid }
func (b *RedisBackend) verifyKey(token string) string { return b.prefix + ":verify:" + hashToken(token) }

// SignInWithPassword implements rideAuth.IdentityBackend.
func (b *RedisBackend) SignInWithPassword(ctx context.Context, email, password string) (rideAuth.Account, error) {
	if err := checkThrottle(ctx, b.opts.Limiter, email); err != nil {
		return rideAuth.Account{}, err
	}

	id, err := b.redis.Get(ctx, b.emailKey(email)).Result()
	if errors.Is(err, redis.Nil) {
		return rideAuth.Account{}, fmt.Errorf("lookup %s: %w", logging.MaskEmail(email), rideAuth.ErrNoSuchAccount)
	}
	if err != nil {
		return rideAuth.Account{}, fmt.Errorf("lookup account: %w", err)
	}

	acct, err := b.load(ctx, id)
	if err != nil {
		return rideAuth.Account{}, err
	}
	if err := verifyPassword(ctx, b.opts, acct, email, password); err != nil {
		return rideAuth.Account{}, err
	}
	b.maybeRehash(ctx, acct, password)

	if err := b.startSession(ctx, acct.Account); err != nil {
		return rideAuth.Account{}, err
	}
	return acct.Account, nil
}

// CreateAccount implements rideAuth.IdentityBackend. The new account is
// signed in.
func (b *RedisBackend) CreateAccount(ctx context.Context, email, password string) (rideAuth.Account, error) {
	hash, err := b.opts.Hasher.Hash(password)
	if err != nil {
		return rideAuth.Account{}, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	claimed, err := b.redis.SetNX(ctx, b.emailKey(email), id, 0).Result()
	if err != nil {
		return rideAuth.Account{}, fmt.Errorf("reserve email: %w", err)
	}
	if !claimed {
		return rideAuth.Account{}, fmt.Errorf("email already registered: %w", rideAuth.ErrAccountExists)
	}

	acct := rideAuth.Account{ID: id, Email: normalizeEmail(email)}
	err = b.redis.HSet(ctx, b.accountKey(id), map[string]interface{}{
		"email":         acct.Email,
		"display_name":  "",
		"verified":      "0",
		"password_hash": hash,
		"created_at":    strconv.FormatInt(time.Now().Unix(), 10),
	}).Err()
	if err != nil {
		b.redis.Del(context.WithoutCancel(ctx), b.emailKey(email))
		return rideAuth.Account{}, fmt.Errorf("store account: %w", err)
	}

	b.opts.Logger.Info("account created", zap.String("account_id", id), logging.Email(acct.Email))

	if err := b.startSession(ctx, acct); err != nil {
		return rideAuth.Account{}, err
	}
	return acct, nil
}

// SetDisplayName implements rideAuth.IdentityBackend.
func (b *RedisBackend) SetDisplayName(ctx context.Context, account rideAuth.Account, name string) error {
	if err := b.requireAccount(ctx, account.ID); err != nil {
		return err
	}
	if err := b.redis.HSet(ctx, b.accountKey(account.ID), "display_name", name).Err(); err != nil {
		return fmt.Errorf("update profile: %w", err)
	}
	return nil
}

// SendVerificationEmail implements rideAuth.IdentityBackend.
func (b *RedisBackend) SendVerificationEmail(ctx context.Context, account rideAuth.Account) error {
	acct, err := b.load(ctx, account.ID)
	if err != nil {
		return err
	}

	token, msg := newVerification(b.opts, acct.Account)
	key := b.verifyKey(token)
	if err := b.redis.Set(ctx, key, acct.ID, b.opts.VerificationTTL).Err(); err != nil {
		return fmt.Errorf("store verification: %w", err)
	}
	if err := b.opts.Notifier.NotifyVerification(ctx, msg); err != nil {
		b.redis.Del(context.WithoutCancel(ctx), key)
		return fmt.Errorf("send verification: %w", err)
	}
	return nil
}

// ConfirmEmailVerification redeems a verification token once and marks the
// account verified.
func (b *RedisBackend) ConfirmEmailVerification(ctx context.Context, token string) (rideAuth.Account, error) {
	id, err := b.redis.GetDel(ctx, b.verifyKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return rideAuth.Account{}, rideAuth.ErrVerificationInvalid
	}
	if err != nil {
		return rideAuth.Account{}, fmt.Errorf("redeem verification: %w", err)
	}

	if err := b.requireAccount(ctx, id); err != nil {
		return rideAuth.Account{}, err
	}
	if err := b.redis.HSet(ctx, b.accountKey(id), "verified", "1").Err(); err != nil {
		return rideAuth.Account{}, fmt.Errorf("mark verified: %w", err)
	}

	acct, err := b.load(ctx, id)
	if err != nil {
		return rideAuth.Account{}, err
	}
	return acct.Account, nil
}

// SignOut implements rideAuth.IdentityBackend. Storage failures are logged
// and otherwise ignored.
func (b *RedisBackend) SignOut(ctx context.Context) {
	s, ok := b.sessions.take()
	if !ok {
		return
	}
	if err := b.redis.Del(context.WithoutCancel(ctx), b.sessionKey(s.id)).Err(); err != nil {
		b.opts.Logger.Warn("session delete failed", zap.String("account_id", s.account), zap.Error(err))
	}
}

// CurrentAccount implements rideAuth.IdentityBackend. An expired or revoked
// session clears itself.
func (b *RedisBackend) CurrentAccount(ctx context.Context) (rideAuth.Account, bool) {
	s, ok := b.sessions.get()
	if !ok {
		return rideAuth.Account{}, false
	}

	id, err := b.redis.Get(ctx, b.sessionKey(s.id)).Result()
	if errors.Is(err, redis.Nil) || (err == nil && id != s.account) {
		b.sessions.clearIf(s.id)
		return rideAuth.Account{}, false
	}
	if err != nil {
		b.opts.Logger.Warn("session lookup failed", zap.Error(err))
		return rideAuth.Account{}, false
	}

	acct, err := b.load(ctx, s.account)
	if err != nil {
		return rideAuth.Account{}, false
	}
	return acct.Account, true
}

// SessionToken returns the signed token of the current session.
func (b *RedisBackend) SessionToken() (string, bool) {
	s, ok := b.sessions.get()
	return s.token, ok
}

func (b *RedisBackend) startSession(ctx context.Context, acct rideAuth.Account) error {
	s, err := issueSession(b.opts, acct)
	if err != nil {
		return err
	}
	if err := b.redis.Set(ctx, b.sessionKey(s.id), acct.ID, b.opts.Sessions.TTL()).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	b.sessions.set(s)
	return nil
}

func (b *RedisBackend) requireAccount(ctx context.Context, id string) error {
	if id == "" {
		return rideAuth.ErrNotSignedIn
	}
	n, err := b.redis.Exists(ctx, b.accountKey(id)).Result()
	if err != nil {
		return fmt.Errorf("lookup account: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("account %s: %w", id, rideAuth.ErrNoSuchAccount)
	}
	return nil
}

func (b *RedisBackend) load(ctx context.Context, id string) (storedAccount, error) {
	if id == "" {
		return storedAccount{}, rideAuth.ErrNotSignedIn
	}
	fields, err := b.redis.HGetAll(ctx, b.accountKey(id)).Result()
	if err != nil {
		return storedAccount{}, fmt.Errorf("load account: %w", err)
	}
	if len(fields) == 0 {
		return storedAccount{}, fmt.Errorf("account %s: %w", id, rideAuth.ErrNoSuchAccount)
	}

	created, _ := strconv.ParseInt(fields["created_at"], 10, 64)
	return storedAccount{
		Account: rideAuth.Account{
			ID:            id,
			Email:         fields["email"],
			DisplayName:   fields["display_name"],
			EmailVerified: fields["verified"] == "1",
		},
		PasswordHash: fields["password_hash"],
		CreatedAt:    time.Unix(created, 0).UTC(),
	}, nil
}

func (b *RedisBackend) maybeRehash(ctx context.Context, acct storedAccount, password string) {
	upgrade, err := b.opts.Hasher.NeedsUpgrade(acct.PasswordHash)
	if err != nil || !upgrade {
		return
	}
	hash, err := b.opts.Hasher.Hash(password)
	if err != nil {
		return
	}
	if err := b.redis.HSet(ctx, b.accountKey(acct.ID), "password_hash", hash).Err(); err != nil {
		b.opts.Logger.Warn("password rehash failed", zap.String("account_id", acct.ID), zap.Error(err))
	}
}
