//go:build integration
// +build integration

package test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap/zaptest"

	"github.com/MrEthical07/rideAuth/identity"
	"github.com/MrEthical07/rideAuth/internal/rate"
	"github.com/MrEthical07/rideAuth/jwt"
	"github.com/MrEthical07/rideAuth/notify"
	"github.com/MrEthical07/rideAuth/password"
)

type stack struct {
	backend  *identity.RedisBackend
	producer *mocks.SyncProducer
	tokens   chan string
}

func newIntegrationStack(t *testing.T) *stack {
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

	hasher, err := password.NewArgon2(password.Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	sessions, err := jwt.NewManager(jwt.Config{
		SessionTTL:    time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("integration-signing-secret-32-bytes!"),
	})
	if err != nil {
		t.Fatalf("NewManager failed: %v", err)
	}

	cfg := sarama.NewConfig()
	cfg.Producer.Return.Successes = true
	producer := mocks.NewSyncProducer(t, cfg)
	t.Cleanup(func() { _ = producer.Close() })

	logger := zaptest.NewLogger(t)
	b, err := identity.NewRedisBackend(rdb, "it", identity.Options{
		Hasher:   hasher,
		Sessions: sessions,
		Notifier: notify.NewKafkaNotifierWithProducer(producer, notify.KafkaConfig{TopicPrefix: "it", Service: "rideauth"}, logger),
		Limiter:  rate.New(rdb, rate.Config{Prefix: "it", MaxAttempts: 5}),
		Logger:   logger,
	})
	if err != nil {
		t.Fatalf("NewRedisBackend failed: %v", err)
	}

	return &stack{backend: b, producer: producer, tokens: make(chan string, 4)}
}

// expectVerification makes the next published message succeed and forwards
// its token to s.tokens.
func (s *stack) expectVerification() {
	s.producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		var env struct {
			EventType string                     `json:"event_type"`
			Payload   notify.VerificationMessage `json:"payload"`
		}
		if err := json.Unmarshal(val, &env); err != nil {
			return err
		}
		if env.EventType != notify.VerificationRequestedEvent {
			return fmt.Errorf("unexpected event type %q", env.EventType)
		}
		s.tokens <- env.Payload.Token
		return nil
	})
}
