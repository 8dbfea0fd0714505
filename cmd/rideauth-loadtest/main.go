// Command rideauth-loadtest drives concurrent controller sign-ins against a
// Redis identity backend and reports latency percentiles.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	rideAuth "github.com/MrEthical07/rideAuth"
	"github.com/MrEthical07/rideAuth/identity"
	"github.com/MrEthical07/rideAuth/jwt"
	"github.com/MrEthical07/rideAuth/password"
)

const loadPassword = "load-test-password"

func main() {
	var (
		accounts    = flag.Int("accounts", 200, "number of accounts to seed")
		concurrency = flag.Int("concurrency", 16, "number of concurrent clients")
		ops         = flag.Int("ops", 2000, "sign-in attempts per phase")
		redisAddr   = flag.String("redis-addr", "", "redis address; if empty, REDIS_ADDR env or miniredis is used")
		prefix      = flag.String("prefix", "rideauth-load", "key prefix")
	)
	flag.Parse()

	if *accounts <= 0 || *concurrency <= 0 || *ops <= 0 {
		fmt.Fprintln(os.Stderr, "accounts, concurrency, and ops must be > 0")
		os.Exit(2)
	}

	ctx := context.Background()

	addr := *redisAddr
	if addr == "" {
		addr = os.Getenv("REDIS_ADDR")
	}

	var (
		cleanup func()
		client  redis.UniversalClient
	)
	if addr == "" {
		mr, err := miniredis.Run()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to start miniredis: %v\n", err)
			os.Exit(1)
		}
		addr = mr.Addr()
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() {
			_ = client.Close()
			mr.Close()
		}
		fmt.Printf("using miniredis at %s\n", addr)
	} else {
		client = redis.NewUniversalClient(&redis.UniversalOptions{Addrs: []string{addr}})
		cleanup = func() { _ = client.Close() }
		fmt.Printf("using redis at %s\n", addr)
	}
	defer cleanup()

	opts, err := backendOptions()
	if err != nil {
		fmt.Fprintf(os.Stderr, "setup failed: %v\n", err)
		os.Exit(1)
	}

	emails := make([]string, *accounts)
	fmt.Printf("seeding %d accounts...\n", *accounts)
	startSeed := time.Now()
	seeder, err := identity.NewRedisBackend(client, *prefix, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "backend failed: %v\n", err)
		os.Exit(1)
	}
	for i := range emails {
		emails[i] = fmt.Sprintf("rider-%d@load.example.com", i)
		if _, err := seeder.CreateAccount(ctx, emails[i], loadPassword); err != nil && !errors.Is(err, rideAuth.ErrAccountExists) {
			fmt.Fprintf(os.Stderr, "seed failed: %v\n", err)
			os.Exit(1)
		}
		seeder.SignOut(ctx)
	}
	fmt.Printf("seeded in %s\n", time.Since(startSeed).Round(time.Millisecond))

	clients := make([]*rideAuth.Controller, *concurrency)
	for i := range clients {
		b, err := identity.NewRedisBackend(client, *prefix, opts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "backend failed: %v\n", err)
			os.Exit(1)
		}
		cfg := rideAuth.DefaultConfig()
		// Seeded accounts are never verified.
		cfg.RequireEmailVerification = false
		clients[i], err = rideAuth.New().WithConfig(cfg).WithBackend(b).WithLatencyHistograms(true).Build()
		if err != nil {
			fmt.Fprintf(os.Stderr, "controller failed: %v\n", err)
			os.Exit(1)
		}
		defer clients[i].Close()
	}

	valid := runPhase(ctx, clients, emails, *ops, loadPassword)
	rejected := runPhase(ctx, clients, emails, *ops, "wrong-password")

	fmt.Println("---- results ----")
	printStats("sign_in", valid)
	printStats("sign_in_rejected", rejected)
}

func backendOptions() (identity.Options, error) {
	hasher, err := password.NewArgon2(password.Config{
		Memory:      16 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return identity.Options{}, err
	}
	sessions, err := jwt.NewManager(jwt.Config{
		SessionTTL:    time.Hour,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    []byte("rideauth-load-test-signing-secret"),
	})
	if err != nil {
		return identity.Options{}, err
	}
	return identity.Options{Hasher: hasher, Sessions: sessions}, nil
}

// runPhase gives each client its own worker; a controller runs one operation
// at a time.
func runPhase(ctx context.Context, clients []*rideAuth.Controller, emails []string, ops int, pw string) phaseStats {
	var (
		wg        sync.WaitGroup
		cursor    int64
		failures  int64
		latencies = make([]time.Duration, 0, ops)
		mu        sync.Mutex
	)

	start := time.Now()
	for w, c := range clients {
		wg.Add(1)
		go func(worker int, c *rideAuth.Controller) {
			defer wg.Done()
			r := rand.New(rand.NewSource(time.Now().UnixNano() + int64(worker)*7919))
			for {
				i := int(atomic.AddInt64(&cursor, 1)) - 1
				if i >= ops {
					return
				}
				email := emails[r.Intn(len(emails))]
				t0 := time.Now()
				err := c.SignIn(ctx, email, pw)
				d := time.Since(t0)
				if err != nil {
					atomic.AddInt64(&failures, 1)
				} else {
					_ = c.SignOut(ctx)
				}
				mu.Lock()
				latencies = append(latencies, d)
				mu.Unlock()
			}
		}(w, c)
	}
	wg.Wait()
	total := time.Since(start)
	return computeStats(total, latencies, failures)
}

type phaseStats struct {
	total    time.Duration
	ops      int
	failures int64
	p50      time.Duration
	p95      time.Duration
	p99      time.Duration
	opsPerS  float64
}

func computeStats(total time.Duration, samples []time.Duration, failures int64) phaseStats {
	if len(samples) == 0 {
		return phaseStats{total: total}
	}
	sort.Slice(samples, func(i, j int) bool { return samples[i] < samples[j] })
	return phaseStats{
		total:    total,
		ops:      len(samples),
		failures: failures,
		p50:      percentile(samples, 50),
		p95:      percentile(samples, 95),
		p99:      percentile(samples, 99),
		opsPerS:  float64(len(samples)) / total.Seconds(),
	}
}

func percentile(samples []time.Duration, p int) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	if p <= 0 {
		return samples[0]
	}
	if p >= 100 {
		return samples[len(samples)-1]
	}
	return samples[(len(samples)-1)*p/100]
}

func printStats(name string, s phaseStats) {
	fmt.Printf("%s: ops=%d failures=%d total=%s ops/sec=%.0f p50=%s p95=%s p99=%s\n",
		name,
		s.ops,
		s.failures,
		s.total.Round(time.Millisecond),
		s.opsPerS,
		s.p50.Round(time.Microsecond),
		s.p95.Round(time.Microsecond),
		s.p99.Round(time.Microsecond),
	)
}
