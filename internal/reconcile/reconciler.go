// Package reconcile turns the wallet connector's status stream into a single
// effective address for the rest of the app, registering newly connected
// wallets with the backend exactly once.
package reconcile

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/memeindex/memeindex/internal/backend"
	"github.com/memeindex/memeindex/internal/config"
	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/metrics"
	"github.com/memeindex/memeindex/internal/referral"
	"github.com/memeindex/memeindex/internal/retry"
	"github.com/memeindex/memeindex/internal/wallet"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// MsgConnected is the toast shown once a wallet is registered.
const MsgConnected = "Wallet connected"

// Registrar is the subset of the backend client used for registration.
type Registrar interface {
	IsRegistered(ctx context.Context, key string) (bool, error)
	Register(ctx context.Context, req backend.RegisterRequest) backend.RegisterResult
}

// Logger is the logging interface used by the reconciler.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Error(format string, args ...any)
}

// ResolvedFunc receives the effective address. ok is false when there is no
// wallet, never while loading.
type ResolvedFunc func(addr wallet.Address, ok bool)

// Options configures a Reconciler.
type Options struct {
	// Connector is the wallet SDK. A nil connector is tolerated: connection
	// requests are logged and ignored.
	Connector wallet.Connector
	// Registrar performs the backend calls. Required.
	Registrar Registrar
	// Launch carries the launch identity and start parameter.
	Launch host.LaunchParams
	// Pending caches a referral code across sessions. Optional.
	Pending referral.PendingStore
	// Notifier shows toasts. Optional.
	Notifier host.Notifier
	// OnResolved is called with every change of the effective address. It
	// must not call Disconnect synchronously.
	OnResolved ResolvedFunc
	// LookupKey selects how registration is looked up: config.LookupByLaunchID
	// (default) or config.LookupByAddress.
	LookupKey string
	// Policy bounds backend retries. Zero means retry.DefaultPolicy.
	Policy  retry.Policy
	Logger  Logger
	Metrics *metrics.Metrics
}

// Reconciler is the connection state machine. It is safe for concurrent use.
type Reconciler struct {
	conn       wallet.Connector
	registrar  Registrar
	launch     host.LaunchParams
	pending    referral.PendingStore
	notifier   host.Notifier
	onResolved ResolvedFunc
	lookupKey  string
	policy     retry.Policy
	logger     Logger
	metrics    *metrics.Metrics

	// notifyMu orders state changes that notify with the notifications.
	notifyMu sync.Mutex
	// regMu serializes backend work within the session.
	regMu sync.Mutex

	mu           sync.Mutex
	state        State
	processing   bool
	inflight     wallet.Address
	generation   uint64
	mounted      bool
	ctx          context.Context //nolint:containedctx // detached mount context for in-flight work
	unsubscribe  func()
	referralUsed bool

	wg sync.WaitGroup
}

// New creates a reconciler in Disconnected.
func New(opts Options) (*Reconciler, error) {
	if opts.Registrar == nil {
		return nil, apperr.WithDetails(apperr.ErrInvalidInput, map[string]string{"registrar": "required"})
	}

	r := &Reconciler{
		conn:       opts.Connector,
		registrar:  opts.Registrar,
		launch:     opts.Launch,
		pending:    opts.Pending,
		notifier:   opts.Notifier,
		onResolved: opts.OnResolved,
		lookupKey:  opts.LookupKey,
		policy:     opts.Policy,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
		state:      State{Phase: Disconnected},
		ctx:        context.Background(),
	}

	switch r.lookupKey {
	case "":
		r.lookupKey = config.LookupByLaunchID
	case config.LookupByLaunchID, config.LookupByAddress:
	default:
		return nil, apperr.WithDetails(apperr.ErrConfigInvalid, map[string]string{"registration.lookup_key": r.lookupKey})
	}
	if r.policy.MaxAttempts == 0 {
		r.policy = retry.DefaultPolicy()
	}
	if r.onResolved == nil {
		r.onResolved = func(wallet.Address, bool) {}
	}
	if r.logger == nil {
		r.logger = config.NullLogger()
	}
	if r.metrics == nil {
		r.metrics = metrics.Global
	}

	return r, nil
}

// State returns the current state.
func (r *Reconciler) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Address returns the effective address, if registered.
func (r *Reconciler) Address() (wallet.Address, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state.Phase != Registered {
		return "", false
	}
	return r.state.Address, true
}

// Mount subscribes to the connector and picks up an existing session.
// Work started by events outlives ctx; its results are dropped after Unmount.
func (r *Reconciler) Mount(ctx context.Context) {
	r.mu.Lock()
	if r.mounted {
		r.mu.Unlock()
		return
	}
	r.mounted = true
	r.ctx = context.WithoutCancel(ctx)
	conn := r.conn
	r.mu.Unlock()

	if conn == nil {
		r.logger.Error("wallet connector is not initialized")
		return
	}

	unsubscribe := conn.OnStatusChange(r.onStatus)
	r.mu.Lock()
	r.unsubscribe = unsubscribe
	r.mu.Unlock()

	if acct, ok := conn.Account(); ok {
		r.logger.Debug("restoring wallet session %s", acct.Address.Short())
		r.handleConnected(acct.Address)
	}
}

// Unmount unsubscribes from the connector and resets the state without
// notifying. In-flight results are discarded.
func (r *Reconciler) Unmount() {
	r.mu.Lock()
	unsubscribe := r.unsubscribe
	r.unsubscribe = nil
	r.mounted = false
	r.generation++
	r.resetLocked()
	r.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// Wait blocks until all in-flight event handlers have finished.
func (r *Reconciler) Wait() {
	r.wg.Wait()
}

// InitiateConnection asks the connector to show its connection UI. A missing
// connector is logged and ignored.
func (r *Reconciler) InitiateConnection(ctx context.Context) error {
	if r.conn == nil {
		r.logger.Error("connect requested but wallet connector is not initialized")
		return nil
	}

	r.mu.Lock()
	to, err := next(r.state.Phase, evConnectRequested)
	if err != nil {
		r.mu.Unlock()
		r.logger.Debug("connect requested: %v", err)
		return err
	}
	r.state = State{Phase: to}
	r.mu.Unlock()

	if err := r.conn.OpenModal(ctx); err != nil {
		r.logger.Error("open connection modal: %v", err)
		r.mu.Lock()
		if r.state.Phase == Connecting {
			r.state = State{Phase: Disconnected}
		}
		r.mu.Unlock()
		return err
	}
	return nil
}

// Disconnect ends the wallet session and reports no address.
func (r *Reconciler) Disconnect(ctx context.Context) error {
	r.mu.Lock()
	gen := r.generation
	r.mu.Unlock()

	var err error
	if r.conn != nil {
		if err = r.conn.Disconnect(ctx); err != nil {
			r.logger.Error("disconnect wallet: %v", err)
		}
	}

	r.mu.Lock()
	handled := r.generation != gen
	r.mu.Unlock()

	// The connector's own event already reset the state.
	if !handled {
		r.handleDisconnected()
	}
	return err
}

// onStatus is the connector listener. The connector accessors are
// authoritative over the event payload.
func (r *Reconciler) onStatus(st wallet.Status) {
	if r.conn != nil {
		if acct, ok := r.conn.Account(); ok {
			st = wallet.Connected(acct)
		} else {
			st = wallet.Disconnected()
		}
	}

	if !st.Connected || st.Account == nil {
		r.handleDisconnected()
		return
	}
	r.handleConnected(st.Account.Address)
}

func (r *Reconciler) handleConnected(addr wallet.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.mounted {
		return
	}
	if r.processing && r.inflight.Equal(addr) {
		r.metrics.RecordDuplicateEvent()
		r.logger.Debug("dropping duplicate connect event for %s", addr.Short())
		return
	}
	if r.state.Phase == Registered && r.state.Address.Equal(addr) {
		r.logger.Debug("%s already registered this session", addr.Short())
		return
	}

	to, err := next(r.state.Phase, evAccountConnected)
	if err != nil {
		r.logger.Error("connect event: %v", err)
		return
	}

	r.generation++
	gen := r.generation
	r.state = State{Phase: to, Address: addr}
	r.processing = true
	r.inflight = addr
	ctx := r.ctx

	r.wg.Add(1)
	go r.process(ctx, gen, addr)
}

func (r *Reconciler) handleDisconnected() {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if _, err := next(r.state.Phase, evDisconnected); err != nil {
		r.logger.Error("disconnect event: %v", err)
	}
	r.generation++
	r.resetLocked()
	r.mu.Unlock()

	r.logger.Info("wallet disconnected")
	r.onResolved("", false)
}

// resetLocked clears all transient fields. r.mu must be held.
func (r *Reconciler) resetLocked() {
	r.state = State{Phase: Disconnected}
	r.processing = false
	r.inflight = ""
}

// process runs the lookup and registration for addr. It owns the in-flight
// slot for generation gen.
func (r *Reconciler) process(ctx context.Context, gen uint64, addr wallet.Address) {
	defer r.wg.Done()
	defer func() {
		if p := recover(); p != nil {
			r.logger.Error("reconcile %s panicked: %v", addr.Short(), p)
			r.fail(gen, apperr.WithCause(apperr.ErrGeneral, fmt.Errorf("panic: %v", p)))
		}
	}()

	r.regMu.Lock()
	defer r.regMu.Unlock()

	if !r.current(gen) {
		r.metrics.RecordStaleResult()
		return
	}

	if r.lookupKey == config.LookupByLaunchID {
		if err := r.launch.Identity.Validate(); err != nil {
			r.fail(gen, err)
			return
		}
	}

	registered, err := retry.DoWithPolicy(ctx, r.lookupPolicy(addr), func(ctx context.Context) (bool, error) {
		return r.registrar.IsRegistered(ctx, r.key(addr))
	})
	if !r.current(gen) {
		r.metrics.RecordStaleResult()
		r.logger.Debug("discarding stale lookup for %s", addr.Short())
		return
	}
	if err != nil {
		r.fail(gen, exhausted(err))
		return
	}
	if registered {
		r.logger.Info("%s is already registered", addr.Short())
		r.resolve(gen, addr, evLookupRegistered)
		return
	}

	if err := r.launch.Identity.Validate(); err != nil {
		r.fail(gen, err)
		return
	}
	if !r.advance(gen, evLookupUnregistered) {
		return
	}

	referredBy := r.referralCode()
	req := backend.RegisterRequest{
		Address:    addr.String(),
		Username:   r.launch.Identity.DisplayName(),
		UserID:     r.launch.Identity.ID,
		ReferredBy: referredBy,
	}

	res, err := retry.DoWithPolicy(ctx, r.registerPolicy(addr), func(ctx context.Context) (backend.RegisterResult, error) {
		r.metrics.RecordRegistrationAttempt()
		res := r.registrar.Register(ctx, req)
		if res.Success() {
			return res, nil
		}
		return res, res.Err
	})
	if !r.current(gen) {
		r.metrics.RecordStaleResult()
		r.logger.Debug("discarding stale registration for %s", addr.Short())
		return
	}
	r.metrics.RecordRegistration(err)
	if err != nil {
		r.logger.Error("register %s: %s: %v", addr.Short(), res.Outcome, err)
		r.fail(gen, exhausted(err))
		return
	}

	r.logger.Info("registered %s (%s)", addr.Short(), res.Outcome)
	// An existing record answered AlreadyRegistered without applying
	// referredBy, so the code stays available for the next registration.
	if res.Outcome == backend.Registered {
		r.consumeReferral(referredBy)
	}
	r.resolve(gen, addr, evRegisterSucceeded)
}

// consumeReferral marks code as sent and drops the cached pending code.
func (r *Reconciler) consumeReferral(code string) {
	if code != "" {
		r.mu.Lock()
		r.referralUsed = true
		r.mu.Unlock()
	}
	if r.pending != nil {
		if err := r.pending.Clear(); err != nil {
			r.logger.Error("clear pending referral: %v", err)
		}
	}
}

// referralCode returns the code to send as referredBy: the launch start
// parameter, else the cached pending code. A code is sent at most once per
// session.
func (r *Reconciler) referralCode() string {
	r.mu.Lock()
	used := r.referralUsed
	r.mu.Unlock()
	if used {
		return ""
	}

	if code := r.launch.ReferralCode(); code != "" {
		return code
	}
	if r.pending == nil {
		return ""
	}
	code, err := r.pending.Load()
	if err != nil {
		r.logger.Error("load pending referral: %v", err)
		return ""
	}
	return code
}

func (r *Reconciler) key(addr wallet.Address) string {
	if r.lookupKey == config.LookupByAddress {
		return addr.String()
	}
	return r.launch.Identity.Key()
}

func (r *Reconciler) lookupPolicy(addr wallet.Address) retry.Policy {
	p := r.policy
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.logger.Debug("lookup %s attempt %d failed, retrying in %s: %v", addr.Short(), attempt, delay, err)
	}
	return p
}

func (r *Reconciler) registerPolicy(addr wallet.Address) retry.Policy {
	p := r.policy
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.metrics.RecordRegistrationRetry()
		r.logger.Info("register %s attempt %d failed, retrying in %s: %v", addr.Short(), attempt, delay, err)
	}
	return p
}

func (r *Reconciler) current(gen uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.mounted && r.generation == gen
}

// advance applies a non-notifying transition for generation gen.
func (r *Reconciler) advance(gen uint64, e event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.mounted || r.generation != gen {
		return false
	}
	to, err := next(r.state.Phase, e)
	if err != nil {
		r.logger.Error("%v", err)
		return false
	}
	r.state.Phase = to
	return true
}

func (r *Reconciler) resolve(gen uint64, addr wallet.Address, e event) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if !r.mounted || r.generation != gen {
		r.mu.Unlock()
		r.metrics.RecordStaleResult()
		return
	}
	to, err := next(r.state.Phase, e)
	if err != nil {
		r.mu.Unlock()
		r.logger.Error("%v", err)
		return
	}
	r.state = State{Phase: to, Address: addr}
	r.processing = false
	r.inflight = ""
	r.mu.Unlock()

	r.toastSuccess(MsgConnected)
	r.onResolved(addr, true)
}

func (r *Reconciler) fail(gen uint64, reason error) {
	r.notifyMu.Lock()
	defer r.notifyMu.Unlock()

	r.mu.Lock()
	if !r.mounted || r.generation != gen {
		r.mu.Unlock()
		r.metrics.RecordStaleResult()
		return
	}
	to, err := next(r.state.Phase, evFailed)
	if err != nil {
		to = Failed
	}
	addr := r.state.Address
	r.state = State{Phase: to, Address: addr, Reason: reason}
	r.processing = false
	r.inflight = ""
	r.mu.Unlock()

	r.logger.Error("connection of %s failed: %v", addr.Short(), reason)
	r.toastError(toastText(reason))
	r.onResolved("", false)
}

// exhausted turns a retry failure into a registration failure; terminal
// errors pass through unchanged.
func exhausted(err error) error {
	var ex *retry.ExhaustedError
	if apperr.As(err, &ex) {
		return apperr.WithCause(apperr.ErrRegistrationFailed, err)
	}
	return err
}

func toastText(err error) string {
	var ae *apperr.AppError
	if apperr.As(err, &ae) && ae.Code == apperr.ErrMissingIdentity.Code {
		return ae.Suggestion
	}
	return apperr.UserMessage(err)
}

func (r *Reconciler) toastSuccess(msg string) {
	if r.notifier != nil {
		r.notifier.Success(msg)
	}
}

func (r *Reconciler) toastError(msg string) {
	if r.notifier != nil {
		r.notifier.Error(msg)
	}
}
