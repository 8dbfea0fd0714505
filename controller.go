package rideAuth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/MrEthical07/rideAuth/internal/logging"
	"go.uber.org/zap"
)

// Controller owns the state of the current authentication attempt.
//
// Every state-mutating operation blocks until its collaborator calls return;
// callers run operations on their own goroutine and observe the result through
// [Controller.Subscribe], [Controller.State], or the returned error.
// A Controller is safe for concurrent use. Close ends its lifetime.
type Controller struct {
	config    Config
	backend   IdentityBackend
	federated FederatedSignInProvider
	logger    *zap.Logger
	metrics   *Metrics
	audit     *auditDispatcher
	observers []func(Snapshot)

	lifetime context.Context
	cancel   context.CancelFunc

	opMu sync.Mutex
	ops  map[*operation]struct{}

	mu       sync.Mutex
	closed   bool
	snapshot Snapshot
	subs     map[uint64]chan Snapshot
	nextSub  uint64
}

// State returns the current attempt state.
func (c *Controller) State() AttemptState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.State
}

// SelectedIdentity returns the email chosen in the federated picker and
// whether one is present.
func (c *Controller) SelectedIdentity() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot.SelectedIdentity, c.snapshot.SelectedIdentity != ""
}

// Snapshot returns state and selected identity read together.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshot
}

// CurrentAccount returns the backend's signed-in account, if any.
func (c *Controller) CurrentAccount(ctx context.Context) (Account, bool) {
	if c.lifetime.Err() != nil {
		return Account{}, false
	}
	return c.backend.CurrentAccount(ctx)
}

// Subscribe returns a channel that receives the current snapshot immediately
// and then the latest snapshot after each change. Intermediate values may be
// skipped when the reader is slow. The channel is closed by cancel or Close.
func (c *Controller) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	ch <- c.snapshot
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if sub, ok := c.subs[id]; ok {
				delete(c.subs, id)
				close(sub)
			}
		})
	}
}

// Close ends the controller's lifetime: in-flight collaborator calls are
// cancelled, no further state is published, subscriptions are closed and
// later operations return ErrControllerClosed. Close is idempotent.
func (c *Controller) Close() {
	if c == nil {
		return
	}
	c.cancel()

	c.mu.Lock()
	if !c.closed {
		c.closed = true
		for id, ch := range c.subs {
			delete(c.subs, id)
			close(ch)
		}
	}
	c.mu.Unlock()

	c.audit.Close()
}

// MetricsSnapshot returns a copy of the controller counters.
func (c *Controller) MetricsSnapshot() MetricsSnapshot {
	if c == nil || c.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped under backpressure.
func (c *Controller) AuditDropped() uint64 {
	if c == nil {
		return 0
	}
	return c.audit.Dropped()
}

// SignIn validates the credentials and signs in with the identity backend.
//
// The published sequence is Error for a local validation failure, otherwise
// Loading followed by Success or Error. An account whose email is unverified
// while verification is required ends in Error and is signed back out.
// The returned error is the failure that drove the Error state.
func (c *Controller) SignIn(ctx context.Context, email, password string) error {
	opCtx, end, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer end()

	email = strings.TrimSpace(email)
	if res := ValidateCredentials(email, password); !res.OK() {
		return c.rejectInvalid(opCtx, "sign_in", email, res)
	}

	if !c.publish(func(s *Snapshot) { s.State = Loading() }) {
		return ErrControllerClosed
	}

	start := time.Now()
	account, err := c.backend.SignInWithPassword(opCtx, email, password)
	c.metrics.Observe(MetricBackendLatency, time.Since(start))
	if stop := c.interrupted(opCtx); stop != nil {
		return stop
	}

	if err != nil {
		c.metrics.Inc(MetricSignInFailure)
		c.emitAudit(opCtx, AuditSignInFailure, false, "", email, err, nil)
		c.logger.Info("sign in rejected by backend", logging.Email(email), zap.Error(err))
		c.setState(Failed(signInFailureMessage(err)))
		return err
	}

	if c.config.RequireEmailVerification && !account.EmailVerified {
		c.metrics.Inc(MetricSignInUnverified)
		c.emitAudit(opCtx, AuditSignInFailure, false, account.ID, email, ErrEmailUnverified, func() map[string]string {
			return map[string]string{"reason": "email_unverified"}
		})
		// The bounce keeps the Error state; only the session and the picked
		// identity are dropped.
		c.publish(func(s *Snapshot) {
			s.State = Failed(MsgEmailNotVerified)
			s.SelectedIdentity = ""
		})
		c.endSession(opCtx)
		return ErrEmailUnverified
	}

	c.metrics.Inc(MetricSignInSuccess)
	c.emitAudit(opCtx, AuditSignInSuccess, true, account.ID, email, nil, nil)
	c.setState(Success())
	return nil
}

// SignUp validates the credentials and full name, creates the account, sets
// its display name and requests a verification email.
//
// The follow-up steps are not transactional: when either fails the account
// stays created and the state becomes Error("Sign up failed: ...").
func (c *Controller) SignUp(ctx context.Context, email, password, fullName string) error {
	opCtx, end, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer end()

	email = strings.TrimSpace(email)
	res := ValidateCredentials(email, password)
	if res.OK() && isBlank(fullName) {
		res = ValidationResult{Kind: FullNameRequired}
	}
	if !res.OK() {
		return c.rejectInvalid(opCtx, "sign_up", email, res)
	}

	if !c.publish(func(s *Snapshot) { s.State = Loading() }) {
		return ErrControllerClosed
	}

	start := time.Now()
	account, err := c.createAccount(opCtx, email, password, fullName)
	c.metrics.Observe(MetricBackendLatency, time.Since(start))
	if stop := c.interrupted(opCtx); stop != nil {
		return stop
	}

	if err != nil {
		c.metrics.Inc(MetricSignUpFailure)
		c.emitAudit(opCtx, AuditSignUpFailure, false, account.ID, email, err, nil)
		c.logger.Info("sign up failed", logging.Email(email), zap.String("account_id", account.ID), zap.Error(err))
		c.setState(Failed(msgSignUpFailedPrefix + err.Error()))
		return err
	}

	c.metrics.Inc(MetricSignUpSuccess)
	c.emitAudit(opCtx, AuditSignUpSuccess, true, account.ID, email, nil, nil)
	c.setState(Success())
	return nil
}

func (c *Controller) createAccount(ctx context.Context, email, password, fullName string) (Account, error) {
	account, err := c.backend.CreateAccount(ctx, email, password)
	if err != nil {
		return Account{}, err
	}
	if err := c.backend.SetDisplayName(ctx, account, fullName); err != nil {
		return account, err
	}
	account.DisplayName = fullName
	if err := c.backend.SendVerificationEmail(ctx, account); err != nil {
		return account, err
	}
	return account, nil
}

// InitiateFederatedSignIn forces a fresh account choice: it signs out of the
// federated provider (ignoring failures), clears the selected identity,
// resets the state to Initial and returns the picker intent to launch.
func (c *Controller) InitiateFederatedSignIn(ctx context.Context) (PickerIntent, error) {
	if c.federated == nil {
		return PickerIntent{}, ErrFederatedUnavailable
	}
	opCtx, end, err := c.begin(ctx)
	if err != nil {
		return PickerIntent{}, err
	}
	defer end()

	c.federatedSignOut(opCtx)
	if stop := c.interrupted(opCtx); stop != nil {
		return PickerIntent{}, stop
	}
	if !c.publish(func(s *Snapshot) {
		s.SelectedIdentity = ""
		s.State = Initial()
	}) {
		return PickerIntent{}, ErrControllerClosed
	}

	intent, err := c.federated.BuildPickerIntent(opCtx, c.config.WebClientID)
	if stop := c.interrupted(opCtx); stop != nil {
		return PickerIntent{}, stop
	}
	if err != nil {
		c.metrics.Inc(MetricFederatedFailure)
		c.emitAudit(opCtx, AuditFederatedFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"stage": "picker_intent"}
		})
		c.setState(Failed(msgFederatedFailedPrefix + err.Error()))
		return PickerIntent{}, err
	}

	c.metrics.Inc(MetricFederatedInitiated)
	c.emitAudit(opCtx, AuditFederatedInitiated, true, "", "", nil, nil)
	return intent, nil
}

// CompleteFederatedAccountSelection consumes the picker result. A chosen
// account only publishes its email as the selected identity; it does not
// authenticate, so the state is left as it was.
func (c *Controller) CompleteFederatedAccountSelection(ctx context.Context, result PickerResult) error {
	if c.federated == nil {
		return ErrFederatedUnavailable
	}
	opCtx, end, err := c.begin(ctx)
	if err != nil {
		return err
	}
	defer end()

	account, err := c.federated.ExtractAccountFromResult(opCtx, result)
	if stop := c.interrupted(opCtx); stop != nil {
		return stop
	}
	if err == nil && isBlank(account.Email) {
		err = errors.New("selected account has no email address")
	}
	if err != nil {
		c.metrics.Inc(MetricFederatedFailure)
		c.emitAudit(opCtx, AuditFederatedFailure, false, "", "", err, func() map[string]string {
			return map[string]string{"stage": "account_selection"}
		})
		c.setState(Failed(msgFederatedFailedPrefix + err.Error()))
		return err
	}

	email := strings.TrimSpace(account.Email)
	c.metrics.Inc(MetricFederatedSelected)
	c.emitAudit(opCtx, AuditFederatedSelected, true, "", email, nil, nil)
	c.publish(func(s *Snapshot) { s.SelectedIdentity = email })
	return nil
}

// ClearError resets an Error state to Initial and is a no-op otherwise.
// Call it whenever the user edits a form field.
func (c *Controller) ClearError() {
	c.publish(func(s *Snapshot) {
		if s.State.IsError() {
			s.State = Initial()
		}
	})
}

// SignOut signs out of the federated provider (ignoring failures) and the
// identity backend, then resets the state to Initial and clears the selected
// identity.
//
// SignOut is never rejected as busy. An operation still in flight is
// cancelled and returns ErrInterruptedBySignOut; SignOut waits for it to
// finish before resetting, so the reset is the last state published.
func (c *Controller) SignOut(ctx context.Context) error {
	opCtx, end, err := c.preempt(ctx)
	if err != nil {
		return err
	}
	defer end()

	c.endSession(opCtx)
	if c.lifetime.Err() != nil {
		return ErrControllerClosed
	}

	c.emitAudit(opCtx, AuditSignOut, true, "", "", nil, nil)
	c.publish(func(s *Snapshot) {
		s.State = Initial()
		s.SelectedIdentity = ""
	})
	return nil
}

// endSession drops the federated and backend sessions.
func (c *Controller) endSession(ctx context.Context) {
	if c.federated != nil {
		c.federatedSignOut(ctx)
	}
	c.backend.SignOut(ctx)
	c.metrics.Inc(MetricSignOut)
}

type operation struct {
	cancel  context.CancelCauseFunc
	done    chan struct{}
	signOut bool
}

// begin admits one operation. The returned context is cancelled when ctx
// ends, the controller closes, or a sign out preempts the operation; end must
// be called when the operation returns.
func (c *Controller) begin(ctx context.Context) (context.Context, func(), error) {
	if c.lifetime.Err() != nil {
		return nil, nil, ErrControllerClosed
	}

	c.opMu.Lock()
	if c.config.RejectConcurrent && len(c.ops) > 0 {
		c.opMu.Unlock()
		c.metrics.Inc(MetricBusyRejected)
		c.emitAudit(ctx, AuditOperationBusy, false, "", "", ErrBusy, nil)
		return nil, nil, ErrBusy
	}
	opCtx, end := c.track(ctx, false)
	c.opMu.Unlock()
	return opCtx, end, nil
}

// preempt admits a sign out. Other operations are cancelled and awaited;
// a concurrent sign out is awaited but left to finish.
func (c *Controller) preempt(ctx context.Context) (context.Context, func(), error) {
	for {
		if c.lifetime.Err() != nil {
			return nil, nil, ErrControllerClosed
		}

		c.opMu.Lock()
		if len(c.ops) == 0 {
			opCtx, end := c.track(ctx, true)
			c.opMu.Unlock()
			return opCtx, end, nil
		}
		pending := make([]chan struct{}, 0, len(c.ops))
		for op := range c.ops {
			if !op.signOut {
				op.cancel(ErrInterruptedBySignOut)
			}
			pending = append(pending, op.done)
		}
		c.opMu.Unlock()

		for _, done := range pending {
			select {
			case <-done:
			case <-ctx.Done():
				return nil, nil, ctx.Err()
			case <-c.lifetime.Done():
				return nil, nil, ErrControllerClosed
			}
		}
	}
}

// track registers an operation. c.opMu must be held.
func (c *Controller) track(ctx context.Context, signOut bool) (context.Context, func()) {
	opCtx, cancel := context.WithCancelCause(ctx)
	op := &operation{cancel: cancel, done: make(chan struct{}), signOut: signOut}
	c.ops[op] = struct{}{}

	stop := context.AfterFunc(c.lifetime, func() { cancel(ErrControllerClosed) })
	return opCtx, func() {
		stop()
		cancel(nil)
		c.opMu.Lock()
		delete(c.ops, op)
		c.opMu.Unlock()
		close(op.done)
	}
}

// interrupted reports why an operation must stop without publishing its
// outcome, or nil when it may continue.
func (c *Controller) interrupted(opCtx context.Context) error {
	if c.lifetime.Err() != nil {
		return ErrControllerClosed
	}
	if errors.Is(context.Cause(opCtx), ErrInterruptedBySignOut) {
		return ErrInterruptedBySignOut
	}
	return nil
}

func (c *Controller) rejectInvalid(ctx context.Context, op, email string, res ValidationResult) error {
	c.metrics.Inc(MetricValidationRejected)
	c.emitAudit(ctx, AuditValidationRejected, false, "", email, nil, func() map[string]string {
		return map[string]string{
			"operation": op,
			"reason":    res.Message(),
		}
	})
	c.setState(Failed(res.Message()))
	return res.Err()
}

func (c *Controller) federatedSignOut(ctx context.Context) {
	if err := c.federated.SignOut(ctx); err != nil {
		c.metrics.Inc(MetricCleanupFailure)
		c.emitAudit(ctx, AuditCleanupIgnored, false, "", "", err, func() map[string]string {
			return map[string]string{"collaborator": "federated"}
		})
		c.logger.Warn("federated sign out failed; ignoring", zap.Error(err))
	}
}

func (c *Controller) setState(state AttemptState) {
	c.publish(func(s *Snapshot) { s.State = state })
}

// publish applies mutate and fans the result out. It reports false, leaving
// everything untouched, once the controller is closed.
func (c *Controller) publish(mutate func(*Snapshot)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.lifetime.Err() != nil {
		return false
	}

	before := c.snapshot
	mutate(&c.snapshot)
	after := c.snapshot
	if before == after {
		return true
	}

	c.logger.Debug("auth state changed",
		zap.Stringer("from", before.State),
		zap.Stringer("to", after.State),
		zap.Bool("identity_selected", after.HasSelectedIdentity()),
	)

	for _, ch := range c.subs {
		select {
		case <-ch:
		default:
		}
		ch <- after
	}
	for _, observe := range c.observers {
		observe(after)
	}
	return true
}

func (c *Controller) emitAudit(ctx context.Context, eventType string, success bool, accountID, email string, err error, metadata func() map[string]string) {
	if c.audit == nil {
		return
	}

	event := AuditEvent{
		Timestamp: time.Now().UTC(),
		EventType: eventType,
		AccountID: accountID,
		Email:     logging.MaskEmail(email),
		DeviceID:  deviceIDFromContext(ctx),
		Success:   success,
	}
	if err != nil {
		event.Error = err.Error()
	}
	if metadata != nil {
		event.Metadata = metadata()
	}

	c.audit.Emit(ctx, event)
}

func signInFailureMessage(err error) string {
	switch {
	case errors.Is(err, ErrNoSuchAccount):
		return MsgNoSuchAccount
	case errors.Is(err, ErrInvalidCredentials):
		return MsgInvalidCredentials
	default:
		return msgSignInFailedPrefix + err.Error()
	}
}
