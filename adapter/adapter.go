// Package adapter implements the orchestration layer named in spec §4.6:
// role separation, discovery policy, the device table, advertising, and the
// status-listener fan-out that ties the hci/l2cap/gatt/smp/keystore layers
// together into one addressable Central or Peripheral.
package adapter

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
	"github.com/sirupsen/logrus"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/config"
	"github.com/nimbusvale/directble/gatt"
	"github.com/nimbusvale/directble/hci"
	"github.com/nimbusvale/directble/hcitransport"
	"github.com/nimbusvale/directble/keystore"
	"github.com/nimbusvale/directble/l2cap"
)

// Role mirrors hci.Mode: a given adapter instance is Central or Peripheral,
// never both, per spec §4.6.
type Role int

const (
	RoleCentral Role = iota
	RolePeripheral
)

// recentlySeenCapacity bounds the LRU named in spec §4.10, independent of
// the authoritative device table.
const recentlySeenCapacity = 256

// Options configures one Adapter. Transport is required; the key store
// directory is Config.KeyStoreDir, and everything else defaults from
// config.Default().
type Options struct {
	Transport    hcitransport.Transport
	AdapterIndex int
	Role         Role
	Config       *config.Config
	Log          logrus.FieldLogger

	// LocalAddr is this adapter's own device address, used to key stored
	// KeyBin files and as the local identity address in SMP pairing. The
	// controller transport has no portable way to read it back (spec
	// Non-goals excludes a generic cross-OS HAL), so callers supply it.
	LocalAddr codec.Address

	// GATTDatabase, when set, makes this a peripheral that serves local
	// attributes.
	GATTDatabase *gatt.Database
}

// Adapter is the per-radio orchestration object spec §4.6 names: it owns the
// HCI handle, the device table, discovery/advertising state and the
// status-listener list.
type Adapter struct {
	role    Role
	hci     *hci.Handler
	l2capC  *l2cap.Client
	l2capS  *l2cap.Server
	keys    *keystore.Store
	cfg     *config.Config
	log     logrus.FieldLogger
	gattDB  *gatt.Database

	localAddr codec.Address

	listeners listenerList

	devicesMu sync.RWMutex
	devices   map[codec.Address]*Device
	byHandle  map[uint16]codec.Address

	recent *lru.Cache

	discMu     sync.Mutex
	policy     DiscoveryPolicy
	discovering bool
	pauseSet   map[codec.Address]struct{}

	retryMu      sync.Mutex
	retryRunning bool

	advMu      sync.Mutex
	advertising bool
	advGattDB  *gatt.Database

	closeOnce sync.Once
	closeCh   chan struct{}
	wg        sync.WaitGroup
}

// New constructs an Adapter over the given transport and configuration. It
// does not touch the controller; call Initialize to power it up.
func New(opts Options) (*Adapter, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	log = log.WithField("adapter", opts.AdapterIndex)

	ks, err := keystore.NewStore(cfg.KeyStoreDir, log)
	if err != nil {
		return nil, err
	}
	recent, err := lru.New(recentlySeenCapacity)
	if err != nil {
		return nil, err
	}

	mode := hci.ModeCentral
	if opts.Role == RolePeripheral {
		mode = hci.ModePeripheral
	}
	h := hci.NewHandler(opts.Transport, opts.AdapterIndex, log)
	if err := h.Initialize(mode); err != nil {
		return nil, err
	}

	a := &Adapter{
		role:     opts.Role,
		hci:      h,
		l2capC:   l2cap.NewClient(opts.Transport, opts.AdapterIndex),
		keys:     ks,
		cfg:      cfg,
		log:      log,
		gattDB:   opts.GATTDatabase,
		devices:  make(map[codec.Address]*Device),
		byHandle: make(map[uint16]codec.Address),
		recent:   recent,
		policy:    PolicyAutoOff,
		pauseSet:  make(map[codec.Address]struct{}),
		closeCh:   make(chan struct{}),
		localAddr: opts.LocalAddr,
	}
	h.AddListener(&hciListener{a: a})
	return a, nil
}

// SetPowered enables or disables the controller, per spec §4.1.
func (a *Adapter) SetPowered(on bool) error {
	if err := a.hci.SetPowered(on); err != nil {
		return err
	}
	a.notifySettingsChanged()
	return nil
}

// SetLocalName sets the GAP local name used both for HCI's own name and the
// advertised GAP Device-Name characteristic (spec §4.6).
func (a *Adapter) SetLocalName(name string) error {
	if err := a.hci.SetLocalName(name); err != nil {
		return err
	}
	a.notifySettingsChanged()
	return nil
}

// SetSecureConnections enables/disables LE Secure Connections support at
// the controller level (spec §4.1).
func (a *Adapter) SetSecureConnections(enabled bool) error {
	if err := a.hci.SetSecureConnections(enabled); err != nil {
		return err
	}
	a.notifySettingsChanged()
	return nil
}

// SetDefaultConnParam validates p and reports whether it is acceptable. It
// stores nothing: Connect and CreateLEConnection use the parameters passed
// to them, not a stored default.
func (a *Adapter) SetDefaultConnParam(p hci.ConnParams) error { return a.hci.SetDefaultConnParam(p) }

// AddListener registers l to receive adapter status callbacks in
// registration order (spec §4.6).
func (a *Adapter) AddListener(l StatusListener) ListenerHandle { return a.listeners.add(l) }

// RemoveListener unregisters a previously added listener.
func (a *Adapter) RemoveListener(id ListenerHandle) { a.listeners.remove(id) }

func (a *Adapter) notifySettingsChanged() {
	for _, l := range a.listeners.snapshot() {
		l.AdapterSettingsChanged(a)
	}
}

// Device looks up the current snapshot of a device record by address. The
// returned pointer is a copy: mutating it has no effect on the adapter's
// table, matching the weak-reference discipline spec §4.6/§9 describes —
// callers that need up-to-date fields must call Device again rather than
// cache the pointer across a blocking call.
func (a *Adapter) Device(addr codec.Address) (*Device, bool) {
	a.devicesMu.RLock()
	d, ok := a.devices[addr]
	a.devicesMu.RUnlock()
	if !ok {
		return nil, false
	}
	return d.clone(), true
}

// Devices snapshots the full device table, per spec §5's "iterations
// snapshot the list" rule for the reader/writer-locked table.
func (a *Adapter) Devices() []*Device {
	a.devicesMu.RLock()
	defer a.devicesMu.RUnlock()
	out := make([]*Device, 0, len(a.devices))
	for _, d := range a.devices {
		out = append(out, d.clone())
	}
	return out
}

func (a *Adapter) upsertDevice(addr codec.Address, mutate func(d *Device)) *Device {
	now := time.Now()
	a.devicesMu.Lock()
	d, ok := a.devices[addr]
	if !ok {
		d = newDevice(addr, now)
		a.devices[addr] = d
	}
	mutate(d)
	d.touch(now)
	out := d.clone()
	a.devicesMu.Unlock()
	return out
}

func (a *Adapter) removeDevice(addr codec.Address) {
	a.devicesMu.Lock()
	if d, ok := a.devices[addr]; ok {
		delete(a.byHandle, d.Handle)
	}
	delete(a.devices, addr)
	a.devicesMu.Unlock()
}

func (a *Adapter) bindHandle(addr codec.Address, handle uint16) {
	a.devicesMu.Lock()
	a.byHandle[handle] = addr
	a.devicesMu.Unlock()
}

func (a *Adapter) deviceByHandle(handle uint16) (codec.Address, bool) {
	a.devicesMu.RLock()
	defer a.devicesMu.RUnlock()
	addr, ok := a.byHandle[handle]
	return addr, ok
}

// Close stops discovery/advertising, joins every background worker and
// closes the underlying HCI handler, dropping pending commands with
// DISCONNECTED (spec §5's cancellation rule).
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		close(a.closeCh)
		_ = a.StopDiscovery()
		_ = a.StopAdvertising()
		if a.l2capS != nil {
			_ = a.l2capS.Close()
		}
		a.wg.Wait()
		err = a.hci.Close()
	})
	return err
}
