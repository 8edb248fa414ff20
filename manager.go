// Package directble is the application-facing entry point: it owns every
// Adapter the process creates and gives shutdown a single deterministic
// call, replacing the process-wide singleton/factory spec §9's design notes
// call out ("Global process-wide state ... Recast as a Manager value
// created by the application at startup; adapters are owned by the
// manager; shutdown is a single deterministic call that joins all
// workers.").
package directble

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/nimbusvale/directble/adapter"
	"github.com/nimbusvale/directble/config"
)

// Manager owns a process's adapters, keyed by the index they were created
// with. It has no behavior of its own beyond bookkeeping and shutdown:
// every actual operation (discovery, connecting, pairing, GATT) is a method
// on the *adapter.Adapter values it hands back.
type Manager struct {
	cfg *config.Config
	log logrus.FieldLogger

	mu       sync.Mutex
	adapters map[int]*adapter.Adapter
	closed   bool
}

// NewManager constructs a Manager. cfg may be nil, in which case
// config.Default() is used for any adapter that doesn't supply its own.
func NewManager(cfg *config.Config, log logrus.FieldLogger) *Manager {
	if cfg == nil {
		cfg = config.Default()
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Manager{
		cfg:      cfg,
		log:      log,
		adapters: make(map[int]*adapter.Adapter),
	}
}

// NewAdapter constructs an Adapter under opts.AdapterIndex and registers it
// with the manager. It is an error to reuse an index already held by a live
// adapter; the caller must Close and RemoveAdapter first.
func (m *Manager) NewAdapter(opts adapter.Options) (*adapter.Adapter, error) {
	if opts.Config == nil {
		opts.Config = m.cfg
	}
	if opts.Log == nil {
		opts.Log = m.log
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("directble: manager closed")
	}
	if _, exists := m.adapters[opts.AdapterIndex]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("directble: adapter index %d already registered", opts.AdapterIndex)
	}
	m.mu.Unlock()

	a, err := adapter.New(opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = a.Close()
		return nil, fmt.Errorf("directble: manager closed")
	}
	m.adapters[opts.AdapterIndex] = a
	m.mu.Unlock()
	return a, nil
}

// Adapter returns a previously registered adapter by index.
func (m *Manager) Adapter(index int) (*adapter.Adapter, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.adapters[index]
	return a, ok
}

// Adapters returns every adapter currently registered, in no particular
// order.
func (m *Manager) Adapters() []*adapter.Adapter {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*adapter.Adapter, 0, len(m.adapters))
	for _, a := range m.adapters {
		out = append(out, a)
	}
	return out
}

// RemoveAdapter closes and forgets the adapter at index, if any.
func (m *Manager) RemoveAdapter(index int) error {
	m.mu.Lock()
	a, ok := m.adapters[index]
	if ok {
		delete(m.adapters, index)
	}
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return a.Close()
}

// Close closes every adapter the manager owns, joining all of their
// background workers, and marks the manager unusable for further
// NewAdapter calls. Double-close is a no-op, matching spec §9's "scoped
// resources ... double-close is a no-op" rule.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	adapters := m.adapters
	m.adapters = make(map[int]*adapter.Adapter)
	m.mu.Unlock()

	var firstErr error
	for _, a := range adapters {
		if err := a.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
