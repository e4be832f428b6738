package wallet

import (
	"errors"
	"io"
	"sync"

	apperr "github.com/memeindex/memeindex/pkg/errors"
)

// Factory builds the SDK connector. A Provider calls it at most once.
type Factory func() (Connector, error)

// Provider is the process-wide handle to the wallet-connect SDK.
// Acquire creates the connector on first use and hands the same instance to
// every caller; the final Release closes it if it implements io.Closer.
type Provider struct {
	mu      sync.Mutex
	factory Factory
	conn    Connector
	refs    int
	created int
	closed  bool
}

// NewProvider returns a Provider that builds its connector with factory.
func NewProvider(factory Factory) *Provider {
	return &Provider{factory: factory}
}

// Acquire returns the shared connector, creating it if needed.
func (p *Provider) Acquire() (Connector, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, apperr.WithDetails(apperr.ErrWalletUnavailable, map[string]string{"reason": "provider closed"})
	}

	if p.conn == nil {
		if p.factory == nil {
			return nil, apperr.ErrWalletUnavailable
		}
		conn, err := p.factory()
		if err != nil {
			return nil, apperr.WithCause(apperr.ErrWalletUnavailable, err)
		}
		if conn == nil {
			return nil, apperr.ErrWalletUnavailable
		}
		p.conn = conn
		p.created++
	}

	p.refs++
	return p.conn, nil
}

// Release drops one reference. When the last reference goes away the
// connector is closed and the provider can no longer be acquired from.
// The wallet session itself is left to the SDK and is not disconnected.
func (p *Provider) Release() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.refs == 0 {
		return nil
	}

	p.refs--
	if p.refs > 0 {
		return nil
	}

	p.closed = true
	conn := p.conn
	p.conn = nil

	if c, ok := conn.(io.Closer); ok {
		if err := c.Close(); err != nil && !errors.Is(err, io.EOF) {
			return err
		}
	}
	return nil
}

// Refs returns the number of outstanding acquisitions.
func (p *Provider) Refs() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.refs
}

// Created returns how many connectors the provider has built (0 or 1).
func (p *Provider) Created() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.created
}
