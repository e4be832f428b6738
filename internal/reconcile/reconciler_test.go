package reconcile_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memeindex/memeindex/internal/backend"
	"github.com/memeindex/memeindex/internal/config"
	"github.com/memeindex/memeindex/internal/host"
	"github.com/memeindex/memeindex/internal/metrics"
	"github.com/memeindex/memeindex/internal/reconcile"
	"github.com/memeindex/memeindex/internal/referral"
	"github.com/memeindex/memeindex/internal/retry"
	"github.com/memeindex/memeindex/internal/wallet"
	apperr "github.com/memeindex/memeindex/pkg/errors"
)

const testAddr = wallet.Address("EQabc...123")

// fakeRegistrar is an in-memory backend. Register fails failures times with
// failWith before succeeding. When block is set, Register waits on it after
// signalling started.
type fakeRegistrar struct {
	mu         sync.Mutex
	registered map[string]bool
	byAddress  bool
	failures   int
	failWith   backend.RegisterResult
	requests   []backend.RegisterRequest
	lookups    int
	inflight   int
	maxFlight  int
	block      chan struct{}
	started    chan struct{}
}

func newFakeRegistrar() *fakeRegistrar {
	return &fakeRegistrar{registered: make(map[string]bool)}
}

func (f *fakeRegistrar) IsRegistered(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	return f.registered[key], nil
}

func (f *fakeRegistrar) Register(_ context.Context, req backend.RegisterRequest) backend.RegisterResult {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.inflight++
	if f.inflight > f.maxFlight {
		f.maxFlight = f.inflight
	}
	block, started := f.block, f.started
	f.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.inflight--
	if f.failures > 0 {
		f.failures--
		return f.failWith
	}
	key := req.Address
	if !f.byAddress {
		key = host.Identity{ID: req.UserID}.Key()
	}
	f.registered[key] = true
	return backend.ClassifyRegister(201, "User registered", nil)
}

func (f *fakeRegistrar) snapshot() (requests []backend.RegisterRequest, lookups, maxFlight int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]backend.RegisterRequest, len(f.requests))
	copy(out, f.requests)
	return out, f.lookups, f.maxFlight
}

type resolution struct {
	Addr wallet.Address
	OK   bool
}

type resolutions struct {
	mu    sync.Mutex
	calls []resolution
}

func (r *resolutions) record(addr wallet.Address, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, resolution{Addr: addr, OK: ok})
}

func (r *resolutions) all() []resolution {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]resolution, len(r.calls))
	copy(out, r.calls)
	return out
}

type harness struct {
	conn      *wallet.MemoryConnector
	registrar *fakeRegistrar
	resolved  *resolutions
	toasts    *host.Recorder
	metrics   *metrics.Metrics
	rec       *reconcile.Reconciler
}

type harnessOptions struct {
	launch    host.LaunchParams
	pending   referral.PendingStore
	attempts  int
	lookupKey string
	chooser   wallet.Chooser
	session   wallet.SessionStore
	registrar *fakeRegistrar
}

func defaultLaunch() host.LaunchParams {
	return host.LaunchParams{Identity: host.Identity{ID: 1001, Username: "alice"}}
}

func newHarness(t *testing.T, o harnessOptions) *harness {
	t.Helper()

	if o.launch == (host.LaunchParams{}) {
		o.launch = defaultLaunch()
	}
	if o.attempts == 0 {
		o.attempts = 3
	}
	if o.registrar == nil {
		o.registrar = newFakeRegistrar()
	}
	o.registrar.byAddress = o.lookupKey == config.LookupByAddress

	conn, err := wallet.NewMemoryConnector(wallet.MemoryOptions{Chooser: o.chooser, Session: o.session})
	require.NoError(t, err)

	h := &harness{
		conn:      conn,
		registrar: o.registrar,
		resolved:  &resolutions{},
		toasts:    &host.Recorder{},
		metrics:   &metrics.Metrics{},
	}

	h.rec, err = reconcile.New(reconcile.Options{
		Connector:  conn,
		Registrar:  o.registrar,
		Launch:     o.launch,
		Pending:    o.pending,
		Notifier:   h.toasts,
		OnResolved: h.resolved.record,
		LookupKey:  o.lookupKey,
		Policy:     retry.Policy{MaxAttempts: o.attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond},
		Metrics:    h.metrics,
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		h.rec.Unmount()
		h.rec.Wait()
	})
	return h
}

func (h *harness) connect(t *testing.T, addr wallet.Address) {
	t.Helper()
	require.NoError(t, h.conn.Connect(addr))
	h.rec.Wait()
}

func TestNew(t *testing.T) {
	t.Parallel()

	_, err := reconcile.New(reconcile.Options{})
	require.ErrorIs(t, err, apperr.ErrInvalidInput)

	_, err = reconcile.New(reconcile.Options{Registrar: newFakeRegistrar(), LookupKey: "email"})
	require.ErrorIs(t, err, apperr.ErrConfigInvalid)

	r, err := reconcile.New(reconcile.Options{Registrar: newFakeRegistrar()})
	require.NoError(t, err)
	assert.Equal(t, reconcile.Disconnected, r.State().Phase)
	_, ok := r.Address()
	assert.False(t, ok)
}

func TestRegistersNewWallet(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	h.rec.Mount(context.Background())
	h.connect(t, testAddr)

	st := h.rec.State()
	assert.Equal(t, reconcile.Registered, st.Phase)
	assert.Equal(t, testAddr, st.Address)

	addr, ok := h.rec.Address()
	assert.True(t, ok)
	assert.Equal(t, testAddr, addr)

	assert.Equal(t, []resolution{{Addr: testAddr, OK: true}}, h.resolved.all())

	requests, lookups, _ := h.registrar.snapshot()
	require.Len(t, requests, 1)
	assert.Equal(t, 1, lookups)
	assert.Equal(t, "EQabc...123", requests[0].Address)
	assert.Equal(t, "alice", requests[0].Username)
	assert.Equal(t, int64(1001), requests[0].UserID)
	assert.Empty(t, requests[0].ReferredBy)

	assert.Equal(t, []host.Event{{Kind: "success", Text: reconcile.MsgConnected}}, h.toasts.Events())
	assert.Equal(t, int64(1), h.metrics.Snapshot().RegistrationSuccesses)
}

func TestAlreadyRegisteredSkipsRegister(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistrar()
	reg.registered["1001"] = true
	h := newHarness(t, harnessOptions{registrar: reg})
	h.rec.Mount(context.Background())
	h.connect(t, testAddr)

	assert.Equal(t, reconcile.Registered, h.rec.State().Phase)
	assert.Equal(t, []resolution{{Addr: testAddr, OK: true}}, h.resolved.all())
	requests, _, _ := reg.snapshot()
	assert.Empty(t, requests)
}

func TestMountRestoresSession(t *testing.T) {
	t.Parallel()

	session := wallet.NewFileSession(t.TempDir() + "/wallet_session.json")
	require.NoError(t, session.Save(wallet.Account{Address: testAddr, Chain: wallet.DefaultChain}))

	h := newHarness(t, harnessOptions{session: session})
	require.True(t, h.conn.Connected())

	h.rec.Mount(context.Background())
	h.rec.Wait()

	assert.Equal(t, reconcile.Registered, h.rec.State().Phase)
	assert.Equal(t, []resolution{{Addr: testAddr, OK: true}}, h.resolved.all())
	assert.Equal(t, 1, h.conn.Listeners())
}

func TestDuplicateEventsRegisterOnce(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistrar()
	reg.block = make(chan struct{})
	reg.started = make(chan struct{}, 1)
	h := newHarness(t, harnessOptions{registrar: reg})
	h.rec.Mount(context.Background())

	require.NoError(t, h.conn.Connect(testAddr))
	<-reg.started

	for i := 0; i < 4; i++ {
		require.NoError(t, h.conn.Connect(testAddr))
	}
	assert.Equal(t, reconcile.Registering, h.rec.State().Phase)

	close(reg.block)
	h.rec.Wait()

	requests, _, maxFlight := reg.snapshot()
	assert.Len(t, requests, 1)
	assert.Equal(t, 1, maxFlight)
	assert.Equal(t, int64(4), h.metrics.Snapshot().DuplicateEvents)
	assert.Equal(t, []resolution{{Addr: testAddr, OK: true}}, h.resolved.all())

	// Re-announcing a registered address is a no-op.
	h.connect(t, testAddr)
	requests, _, _ = reg.snapshot()
	assert.Len(t, requests, 1)
	assert.Len(t, h.resolved.all(), 1)
}

func TestSwitchingAddressSerializesRegistration(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistrar()
	reg.byAddress = true
	reg.block = make(chan struct{})
	reg.started = make(chan struct{}, 2)
	h := newHarness(t, harnessOptions{registrar: reg, lookupKey: config.LookupByAddress})
	h.rec.Mount(context.Background())

	const other = wallet.Address("EQxyz...789")
	require.NoError(t, h.conn.Connect(testAddr))
	<-reg.started
	require.NoError(t, h.conn.Connect(other))

	close(reg.block)
	h.rec.Wait()

	requests, _, maxFlight := reg.snapshot()
	require.Len(t, requests, 2)
	assert.Equal(t, 1, maxFlight, "registrations never overlap")
	assert.Equal(t, other, h.rec.State().Address)
	assert.Equal(t, []resolution{{Addr: other, OK: true}}, h.resolved.all(), "stale result for the first address is discarded")
	assert.GreaterOrEqual(t, h.metrics.Snapshot().StaleResultsDropped, int64(1))
}

func TestDisconnectReportsNoAddress(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	h.rec.Mount(context.Background())
	h.connect(t, testAddr)

	require.NoError(t, h.rec.Disconnect(context.Background()))
	assert.Equal(t, reconcile.Disconnected, h.rec.State().Phase)
	assert.False(t, h.conn.Connected())
	assert.Equal(t, []resolution{{Addr: testAddr, OK: true}, {Addr: "", OK: false}}, h.resolved.all())

	// An SDK-side disconnect reports again.
	require.NoError(t, h.conn.Disconnect(context.Background()))
	assert.Equal(t, resolution{Addr: "", OK: false}, h.resolved.all()[2])
}

func TestDisconnectDuringRegistrationDiscardsResult(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistrar()
	reg.block = make(chan struct{})
	reg.started = make(chan struct{}, 1)
	h := newHarness(t, harnessOptions{registrar: reg})
	h.rec.Mount(context.Background())

	require.NoError(t, h.conn.Connect(testAddr))
	<-reg.started
	require.NoError(t, h.conn.Disconnect(context.Background()))

	close(reg.block)
	h.rec.Wait()

	assert.Equal(t, reconcile.Disconnected, h.rec.State().Phase)
	assert.Equal(t, []resolution{{Addr: "", OK: false}}, h.resolved.all())
	assert.Equal(t, int64(1), h.metrics.Snapshot().StaleResultsDropped)
}

func TestReferralFromLaunchSentOnce(t *testing.T) {
	t.Parallel()

	launch := defaultLaunch()
	launch.StartParam = "friend-code"
	pending := referral.NewMemoryStore("cached-code")
	h := newHarness(t, harnessOptions{launch: launch, pending: pending})
	h.rec.Mount(context.Background())

	h.connect(t, testAddr)
	require.NoError(t, h.conn.Disconnect(context.Background()))
	h.connect(t, testAddr)

	requests, lookups, _ := h.registrar.snapshot()
	require.Len(t, requests, 1)
	assert.Equal(t, "friend-code", requests[0].ReferredBy)
	assert.Equal(t, 2, lookups)

	code, err := pending.Load()
	require.NoError(t, err)
	assert.Empty(t, code, "pending code is cleared after registration")

	assert.Equal(t, []resolution{
		{Addr: testAddr, OK: true},
		{Addr: "", OK: false},
		{Addr: testAddr, OK: true},
	}, h.resolved.all())
}

func TestReferralKeptWhenAlreadyRegistered(t *testing.T) {
	t.Parallel()

	launch := defaultLaunch()
	launch.StartParam = "friend-code"
	pending := referral.NewMemoryStore("friend-code")
	registrar := newFakeRegistrar()
	registrar.failures = 1
	registrar.failWith = backend.ClassifyRegister(409, "User already registered", nil)
	h := newHarness(t, harnessOptions{
		launch:    launch,
		pending:   pending,
		lookupKey: config.LookupByAddress,
		registrar: registrar,
	})
	h.rec.Mount(context.Background())

	h.connect(t, "EQother...999")
	assert.Equal(t, reconcile.Registered, h.rec.State().Phase)

	code, err := pending.Load()
	require.NoError(t, err)
	assert.Equal(t, "friend-code", code, "an existing record does not consume the code")

	require.NoError(t, h.conn.Disconnect(context.Background()))
	h.connect(t, testAddr)

	requests, _, _ := h.registrar.snapshot()
	require.Len(t, requests, 2)
	assert.Equal(t, "friend-code", requests[0].ReferredBy)
	assert.Equal(t, "friend-code", requests[1].ReferredBy)

	code, err = pending.Load()
	require.NoError(t, err)
	assert.Empty(t, code)
}

func TestPendingReferralUsedWithoutStartParam(t *testing.T) {
	t.Parallel()

	pending := referral.NewMemoryStore("cached-code")
	h := newHarness(t, harnessOptions{pending: pending})
	h.rec.Mount(context.Background())
	h.connect(t, testAddr)

	requests, _, _ := h.registrar.snapshot()
	require.Len(t, requests, 1)
	assert.Equal(t, "cached-code", requests[0].ReferredBy)
}

func TestRetryBound(t *testing.T) {
	t.Parallel()

	networkErr := backend.ClassifyRegister(0, "", apperr.ErrNetworkError)

	t.Run("exhausted attempts fail", func(t *testing.T) {
		t.Parallel()
		reg := newFakeRegistrar()
		reg.failures = 3
		reg.failWith = networkErr
		h := newHarness(t, harnessOptions{registrar: reg, attempts: 3})
		h.rec.Mount(context.Background())
		h.connect(t, testAddr)

		st := h.rec.State()
		assert.Equal(t, reconcile.Failed, st.Phase)
		require.ErrorIs(t, st.Reason, apperr.ErrRegistrationFailed)
		require.ErrorIs(t, st.Reason, apperr.ErrNetworkError)
		assert.Equal(t, []resolution{{Addr: "", OK: false}}, h.resolved.all())
		assert.Equal(t, []host.Event{{Kind: "error", Text: apperr.ErrRegistrationFailed.Message}}, h.toasts.Events())

		requests, _, _ := reg.snapshot()
		assert.Len(t, requests, 3)
		snap := h.metrics.Snapshot()
		assert.Equal(t, int64(3), snap.RegistrationAttempts)
		assert.Equal(t, int64(2), snap.RegistrationRetries)
		assert.Equal(t, int64(1), snap.RegistrationFailures)
	})

	t.Run("succeeds within a larger bound", func(t *testing.T) {
		t.Parallel()
		reg := newFakeRegistrar()
		reg.failures = 3
		reg.failWith = networkErr
		h := newHarness(t, harnessOptions{registrar: reg, attempts: 4})
		h.rec.Mount(context.Background())
		h.connect(t, testAddr)

		assert.Equal(t, reconcile.Registered, h.rec.State().Phase)
		assert.Equal(t, []resolution{{Addr: testAddr, OK: true}}, h.resolved.all())
		requests, _, _ := reg.snapshot()
		assert.Len(t, requests, 4)
	})

	t.Run("invalid parameters stop at once", func(t *testing.T) {
		t.Parallel()
		reg := newFakeRegistrar()
		reg.failures = 1
		reg.failWith = backend.ClassifyRegister(400, "username required", nil)
		h := newHarness(t, harnessOptions{registrar: reg})
		h.rec.Mount(context.Background())
		h.connect(t, testAddr)

		st := h.rec.State()
		assert.Equal(t, reconcile.Failed, st.Phase)
		require.ErrorIs(t, st.Reason, apperr.ErrInvalidParameters)
		requests, _, _ := reg.snapshot()
		assert.Len(t, requests, 1)
		assert.Equal(t, []resolution{{Addr: "", OK: false}}, h.resolved.all())
	})

	t.Run("reconnect after failure retries", func(t *testing.T) {
		t.Parallel()
		reg := newFakeRegistrar()
		reg.failures = 1
		reg.failWith = backend.ClassifyRegister(400, "bad", nil)
		h := newHarness(t, harnessOptions{registrar: reg})
		h.rec.Mount(context.Background())
		h.connect(t, testAddr)
		require.Equal(t, reconcile.Failed, h.rec.State().Phase)

		h.connect(t, testAddr)
		assert.Equal(t, reconcile.Registered, h.rec.State().Phase)
	})
}

func TestMissingIdentityIsTerminal(t *testing.T) {
	t.Parallel()

	t.Run("no launch identity", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, harnessOptions{launch: host.LaunchParams{StartParam: "x"}})
		h.rec.Mount(context.Background())
		h.connect(t, testAddr)

		st := h.rec.State()
		assert.Equal(t, reconcile.Failed, st.Phase)
		require.ErrorIs(t, st.Reason, apperr.ErrMissingIdentity)
		_, lookups, _ := h.registrar.snapshot()
		assert.Equal(t, 0, lookups)
		assert.Equal(t, []host.Event{{Kind: "error", Text: "Please open this app in Telegram"}}, h.toasts.Events())
		assert.Equal(t, []resolution{{Addr: "", OK: false}}, h.resolved.all())
	})

	t.Run("no display name", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, harnessOptions{launch: host.LaunchParams{Identity: host.Identity{ID: 5}}})
		h.rec.Mount(context.Background())
		h.connect(t, testAddr)

		require.ErrorIs(t, h.rec.State().Reason, apperr.ErrMissingUsername)
		requests, _, _ := h.registrar.snapshot()
		assert.Empty(t, requests)
	})

	t.Run("address lookup needs no identity when registered", func(t *testing.T) {
		t.Parallel()
		reg := newFakeRegistrar()
		reg.registered[testAddr.String()] = true
		h := newHarness(t, harnessOptions{
			launch:    host.LaunchParams{StartParam: "x"},
			lookupKey: config.LookupByAddress,
			registrar: reg,
		})
		h.rec.Mount(context.Background())
		h.connect(t, testAddr)

		assert.Equal(t, reconcile.Registered, h.rec.State().Phase)
	})
}

func TestInitiateConnection(t *testing.T) {
	t.Parallel()

	t.Run("opens the modal", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, harnessOptions{chooser: func(context.Context) (wallet.Address, error) {
			return testAddr, nil
		}})
		h.rec.Mount(context.Background())

		require.NoError(t, h.rec.InitiateConnection(context.Background()))
		h.rec.Wait()
		assert.Equal(t, reconcile.Registered, h.rec.State().Phase)

		err := h.rec.InitiateConnection(context.Background())
		require.ErrorIs(t, err, apperr.ErrInvalidTransition)
	})

	t.Run("dismissed modal", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, harnessOptions{chooser: func(context.Context) (wallet.Address, error) {
			return "", wallet.ErrModalDismissed
		}})
		h.rec.Mount(context.Background())

		require.NoError(t, h.rec.InitiateConnection(context.Background()))
		h.rec.Wait()
		assert.Equal(t, reconcile.Disconnected, h.rec.State().Phase)
		assert.Equal(t, []resolution{{Addr: "", OK: false}}, h.resolved.all())
	})

	t.Run("modal failure reverts", func(t *testing.T) {
		t.Parallel()
		h := newHarness(t, harnessOptions{})
		h.rec.Mount(context.Background())

		err := h.rec.InitiateConnection(context.Background())
		require.ErrorIs(t, err, apperr.ErrWalletUnavailable)
		assert.Equal(t, reconcile.Disconnected, h.rec.State().Phase)
	})

	t.Run("missing connector is ignored", func(t *testing.T) {
		t.Parallel()
		r, err := reconcile.New(reconcile.Options{Registrar: newFakeRegistrar()})
		require.NoError(t, err)
		r.Mount(context.Background())
		require.NoError(t, r.InitiateConnection(context.Background()))
		assert.Equal(t, reconcile.Disconnected, r.State().Phase)
	})
}

func TestUnmount(t *testing.T) {
	t.Parallel()

	h := newHarness(t, harnessOptions{})
	h.rec.Mount(context.Background())
	h.rec.Mount(context.Background())
	require.Equal(t, 1, h.conn.Listeners(), "mount is idempotent")

	h.rec.Unmount()
	assert.Equal(t, 0, h.conn.Listeners())

	h.connect(t, testAddr)
	assert.Equal(t, reconcile.Disconnected, h.rec.State().Phase)
	assert.Empty(t, h.resolved.all())
	requests, lookups, _ := h.registrar.snapshot()
	assert.Empty(t, requests)
	assert.Equal(t, 0, lookups)
}

func TestUnmountDiscardsInFlight(t *testing.T) {
	t.Parallel()

	reg := newFakeRegistrar()
	reg.block = make(chan struct{})
	reg.started = make(chan struct{}, 1)
	h := newHarness(t, harnessOptions{registrar: reg})
	h.rec.Mount(context.Background())

	require.NoError(t, h.conn.Connect(testAddr))
	<-reg.started
	h.rec.Unmount()

	close(reg.block)
	h.rec.Wait()

	assert.Empty(t, h.resolved.all())
	assert.Equal(t, reconcile.Disconnected, h.rec.State().Phase)
}

func TestProviderSharesConnector(t *testing.T) {
	t.Parallel()

	provider := wallet.NewProvider(func() (wallet.Connector, error) {
		return wallet.NewMemoryConnector(wallet.MemoryOptions{})
	})

	var recs []*reconcile.Reconciler
	for i := 0; i < 2; i++ {
		conn, err := provider.Acquire()
		require.NoError(t, err)
		r, err := reconcile.New(reconcile.Options{Connector: conn, Registrar: newFakeRegistrar(), Launch: defaultLaunch()})
		require.NoError(t, err)
		r.Mount(context.Background())
		recs = append(recs, r)
	}
	assert.Equal(t, 1, provider.Created())

	conn, err := provider.Acquire()
	require.NoError(t, err)
	mc, ok := conn.(*wallet.MemoryConnector)
	require.True(t, ok)
	assert.Equal(t, 2, mc.Listeners())
	require.NoError(t, provider.Release())

	for _, r := range recs {
		r.Unmount()
		r.Wait()
		require.NoError(t, provider.Release())
	}
	assert.Equal(t, 0, provider.Refs())
}
