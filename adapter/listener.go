package adapter

import "sync"

// StatusListener receives the adapter-level callbacks named in spec §4.6.
// Embed DefaultStatusListener to satisfy the interface while overriding only
// what a caller needs, matching hci.DefaultListener's shape.
//
// deviceFound returns true to take ownership of processing the report (the
// adapter will not also run its own default handling of it). deviceReady is
// invoked on a dedicated goroutine, not the HCI reader, so a listener may do
// blocking GATT work there without stalling discovery/connection events.
type StatusListener interface {
	AdapterSettingsChanged(a *Adapter)
	DiscoveringChanged(discovering bool)
	DeviceFound(d *Device) bool
	DeviceUpdated(d *Device)
	DeviceConnected(d *Device)
	DevicePairingState(d *Device, state PairingState, method PairingMethod)
	DeviceReady(d *Device)
	DeviceDisconnected(d *Device, reason error)
}

// DefaultStatusListener no-ops every StatusListener method.
type DefaultStatusListener struct{}

func (DefaultStatusListener) AdapterSettingsChanged(*Adapter)                       {}
func (DefaultStatusListener) DiscoveringChanged(bool)                              {}
func (DefaultStatusListener) DeviceFound(*Device) bool                            { return false }
func (DefaultStatusListener) DeviceUpdated(*Device)                               {}
func (DefaultStatusListener) DeviceConnected(*Device)                             {}
func (DefaultStatusListener) DevicePairingState(*Device, PairingState, PairingMethod) {}
func (DefaultStatusListener) DeviceReady(*Device)                                  {}
func (DefaultStatusListener) DeviceDisconnected(*Device, error)                    {}

// ListenerHandle identifies a registered StatusListener for later removal.
type ListenerHandle uint64

type listenerEntry struct {
	id uint64
	l  StatusListener
}

// listenerList is the copy-on-write registry spec §5 requires: dispatch
// snapshots the slice under lock and then calls out unlocked, so a listener
// blocking inside a callback never stalls registration or removal.
type listenerList struct {
	mu   sync.Mutex
	seq  uint64
	list []listenerEntry
}

func (ll *listenerList) add(l StatusListener) ListenerHandle {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	ll.seq++
	id := ll.seq
	next := make([]listenerEntry, len(ll.list)+1)
	copy(next, ll.list)
	next[len(ll.list)] = listenerEntry{id: id, l: l}
	ll.list = next
	return ListenerHandle(id)
}

func (ll *listenerList) remove(id ListenerHandle) {
	ll.mu.Lock()
	defer ll.mu.Unlock()
	next := make([]listenerEntry, 0, len(ll.list))
	for _, e := range ll.list {
		if e.id != uint64(id) {
			next = append(next, e)
		}
	}
	ll.list = next
}

func (ll *listenerList) snapshot() []StatusListener {
	ll.mu.Lock()
	entries := ll.list
	ll.mu.Unlock()
	out := make([]StatusListener, len(entries))
	for i, e := range entries {
		out[i] = e.l
	}
	return out
}
