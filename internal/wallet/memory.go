package wallet

import (
	"context"
	"errors"
	"sync"
	"time"

	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// DefaultChain is the only chain memeindex connects to.
const DefaultChain = "ton"

// ErrModalDismissed is returned by a Chooser when the user closes the
// connection UI without picking a wallet.
var ErrModalDismissed = errors.New("connection modal dismissed")

// Chooser plays the part of the SDK's connection UI: it returns the address
// the user approves in their wallet app.
type Chooser func(ctx context.Context) (Address, error)

// MemoryOptions configures a MemoryConnector.
type MemoryOptions struct {
	// Chooser answers OpenModal. Without one, OpenModal fails.
	Chooser Chooser
	// Session persists the live session. Optional.
	Session SessionStore
	// WalletApp is recorded on connected accounts.
	WalletApp string
	// Now overrides the clock (useful for testing).
	Now func() time.Time
}

// MemoryConnector is an in-process wallet-connect SDK. It keeps the live
// session, restores it from its SessionStore on creation and fans status
// changes out to listeners.
type MemoryConnector struct {
	mu        sync.Mutex
	account   *Account
	listeners map[int]Listener
	nextID    int
	opts      MemoryOptions
	closed    bool
}

// Compile-time interface check
var _ Connector = (*MemoryConnector)(nil)

// NewMemoryConnector creates a connector, restoring any stored session.
func NewMemoryConnector(opts MemoryOptions) (*MemoryConnector, error) {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	c := &MemoryConnector{
		listeners: make(map[int]Listener),
		opts:      opts,
	}

	if opts.Session != nil {
		acct, ok, err := opts.Session.Load()
		if err != nil && !errors.Is(err, ErrSessionCorrupted) {
			return nil, err
		}
		if ok {
			c.account = &acct
		}
	}

	return c, nil
}

// OpenModal asks the Chooser for an address and connects it.
func (c *MemoryConnector) OpenModal(ctx context.Context) error {
	c.mu.Lock()
	closed := c.closed
	chooser := c.opts.Chooser
	c.mu.Unlock()

	if closed || chooser == nil {
		return apperr.ErrWalletUnavailable
	}

	addr, err := chooser(ctx)
	if err != nil {
		if errors.Is(err, ErrModalDismissed) {
			if !c.Connected() {
				c.emit(Disconnected())
			}
			return nil
		}
		return err
	}

	return c.Connect(addr)
}

// Connect connects addr as if the user approved it in the wallet app and
// emits a connected status. Connecting the address already connected emits
// the status again, as the SDK does when it re-announces a session.
func (c *MemoryConnector) Connect(addr Address) error {
	if addr.IsZero() {
		return apperr.ErrInvalidAddress
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return apperr.ErrWalletUnavailable
	}
	acct := Account{
		Address:     addr,
		Chain:       DefaultChain,
		WalletApp:   c.opts.WalletApp,
		ConnectedAt: c.opts.Now().UTC(),
	}
	if c.account != nil && c.account.Address.Equal(addr) {
		acct.ConnectedAt = c.account.ConnectedAt
	}
	c.account = &acct
	store := c.opts.Session
	c.mu.Unlock()

	if store != nil {
		if err := store.Save(acct); err != nil {
			return err
		}
	}

	c.emit(Connected(acct))
	return nil
}

// OnStatusChange registers l for status changes.
func (c *MemoryConnector) OnStatusChange(l Listener) func() {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.listeners[id] = l

	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.listeners, id)
			c.mu.Unlock()
		})
	}
}

// Connected reports whether a session is live.
func (c *MemoryConnector) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account != nil
}

// Account returns the connected account.
func (c *MemoryConnector) Account() (Account, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.account == nil {
		return Account{}, false
	}
	return *c.account, true
}

// Disconnect ends the session and emits a disconnected status.
func (c *MemoryConnector) Disconnect(_ context.Context) error {
	c.mu.Lock()
	c.account = nil
	store := c.opts.Session
	c.mu.Unlock()

	if store != nil {
		if err := store.Clear(); err != nil {
			return err
		}
	}

	c.emit(Disconnected())
	return nil
}

// Listeners returns the number of registered listeners.
func (c *MemoryConnector) Listeners() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.listeners)
}

// Close drops all listeners. The stored session is kept for the next run.
func (c *MemoryConnector) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.listeners = make(map[int]Listener)
	return nil
}

func (c *MemoryConnector) emit(st Status) {
	c.mu.Lock()
	ls := make([]Listener, 0, len(c.listeners))
	for _, l := range c.listeners {
		ls = append(ls, l)
	}
	c.mu.Unlock()

	for _, l := range ls {
		l(st)
	}
}
