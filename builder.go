package rideAuth

import (
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"
)

// Builder assembles a [Controller]. A Builder is single-use.
type Builder struct {
	config    Config
	backend   IdentityBackend
	federated FederatedSignInProvider
	logger    *zap.Logger
	auditSink AuditSink
	observers []func(Snapshot)

	built bool
}

// New returns a Builder seeded with [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the whole configuration.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithBackend sets the identity backend. Required.
func (b *Builder) WithBackend(backend IdentityBackend) *Builder {
	b.backend = backend
	return b
}

// WithFederatedProvider sets the account picker provider. Optional; without
// it federated operations return ErrFederatedUnavailable.
func (b *Builder) WithFederatedProvider(p FederatedSignInProvider) *Builder {
	b.federated = p
	return b
}

// WithLogger sets the structured logger. Defaults to a no-op logger.
func (b *Builder) WithLogger(l *zap.Logger) *Builder {
	b.logger = l
	return b
}

// WithAuditSink sets the sink that receives audit events when
// Config.Audit.Enabled is true.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithObserver registers fn to receive every published snapshot, in order.
// fn runs while the controller's state lock is held: it must not block and
// must not call back into the controller.
func (b *Builder) WithObserver(fn func(Snapshot)) *Builder {
	if fn != nil {
		b.observers = append(b.observers, fn)
	}
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the collaborator latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and returns the controller. When
// Config.ResetSessionOnBuild is set the backend is signed out once, so a
// cached session never bypasses the login screen.
func (b *Builder) Build() (*Controller, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if b.backend == nil {
		return nil, ErrBackendRequired
	}

	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}

	lifetime, cancel := context.WithCancel(context.Background())

	c := &Controller{
		config:    cfg,
		backend:   b.backend,
		federated: b.federated,
		logger:    logger.Named("rideauth"),
		metrics:   NewMetrics(cfg.Metrics),
		audit:     newAuditDispatcher(cfg.Audit, b.auditSink),
		observers: slices.Clone(b.observers),
		lifetime:  lifetime,
		cancel:    cancel,
		snapshot:  Snapshot{State: Initial()},
		subs:      make(map[uint64]chan Snapshot),
		ops:       make(map[*operation]struct{}),
	}

	if cfg.ResetSessionOnBuild {
		b.backend.SignOut(lifetime)
	}

	b.built = true
	return c, nil
}
