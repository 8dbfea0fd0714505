package main

import (
	"context"
	"fmt"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/federated"
	"github.com/MrEthical07/rideAuth/identity"
	"github.com/MrEthical07/rideAuth/internal/rate"
	"github.com/MrEthical07/rideAuth/jwt"
	"github.com/MrEthical07/rideAuth/notify"
	"github.com/MrEthical07/rideAuth/password"
)

type dependencies struct {
	backend   rideAuth.IdentityBackend
	federated rideAuth.FederatedSignInProvider
	auditSink rideAuth.AuditSink
	closers   []func() error
}

func (d *dependencies) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		_ = d.closers[i]()
	}
}

func wire(ctx context.Context, cfg fileConfig, logger *zap.Logger) (_ *dependencies, err error) {
	deps := &dependencies{}
	defer func() {
		if err != nil {
			deps.close()
		}
	}()

	hasher, err := password.NewArgon2(password.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("password hasher: %w", err)
	}
	sessions, err := jwt.NewManager(jwt.Config{
		SessionTTL:    cfg.Session.TTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte(cfg.Session.Secret),
		Issuer:        cfg.Session.Issuer,
		RequireIAT:    true,
	})
	if err != nil {
		return nil, fmt.Errorf("session tokens: %w", err)
	}

	var rdb redis.UniversalClient
	if cfg.Backend.RedisAddr != "" {
		rdb = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{cfg.Backend.RedisAddr}})
		deps.closers = append(deps.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis ping: %w", err)
		}
	}

	opts := identity.Options{
		Hasher:          hasher,
		Sessions:        sessions,
		VerificationTTL: cfg.Verification.TTL,
		Logger:          logger,
	}
	if rdb != nil {
		opts.Limiter = rate.New(rdb, rate.Config{
			Prefix:      cfg.Backend.Prefix,
			MaxAttempts: cfg.Throttle.MaxAttempts,
			Cooldown:    cfg.Throttle.Cooldown,
		})
	}

	if len(cfg.Kafka.Brokers) > 0 {
		kn, err := notify.NewKafkaNotifier(notify.KafkaConfig{
			Brokers:     cfg.Kafka.Brokers,
			TopicPrefix: cfg.Kafka.TopicPrefix,
			Service:     "rideauth",
			Environment: cfg.Env,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("kafka notifier: %w", err)
		}
		deps.closers = append(deps.closers, kn.Close)
		opts.Notifier = kn
	}

	switch cfg.Backend.Kind {
	case "redis":
		b, err := identity.NewRedisBackend(rdb, cfg.Backend.Prefix, opts)
		if err != nil {
			return nil, err
		}
		deps.backend = b
	case "sqlite":
		db, err := identity.OpenSQLite(cfg.Backend.SQLitePath)
		if err != nil {
			return nil, err
		}
		deps.closers = append(deps.closers, db.Close)
		b, err := identity.NewSQLiteBackend(ctx, db, opts)
		if err != nil {
			return nil, err
		}
		deps.backend = b
	}

	if cfg.Google.ClientID != "" {
		p, err := federated.NewGoogle(ctx, federated.Config{
			ClientID:     cfg.Google.ClientID,
			ClientSecret: cfg.Google.ClientSecret,
			RedirectURL:  cfg.Google.RedirectURL,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("google provider: %w", err)
		}
		deps.federated = p
	}

	if cfg.Audit.Enabled && cfg.Audit.Path != "" {
		f, err := os.OpenFile(cfg.Audit.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		deps.closers = append(deps.closers, f.Close)
		deps.auditSink = rideAuth.NewJSONWriterSink(f)
	}

	return deps, nil
}
