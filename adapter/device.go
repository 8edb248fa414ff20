package adapter

import (
	"time"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/gatt"
)

// DeviceState is one step of the lifecycle spec §3 names: discovered →
// connecting → connected → ready → disconnected.
type DeviceState int

const (
	StateDiscovered DeviceState = iota
	StateConnecting
	StateConnected
	StateReady
	StateDisconnected
)

func (s DeviceState) String() string {
	switch s {
	case StateDiscovered:
		return "discovered"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReady:
		return "ready"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// PairingState reports a device's SMP bonding outcome, surfaced to listeners
// via devicePairingState.
type PairingState int

const (
	PairingNone PairingState = iota
	PairingInProgress
	PairingCompleted
	PairingFailed
)

// PairingMethod records why a completed pairing is trusted the way it is.
type PairingMethod int

const (
	PairingMethodNone PairingMethod = iota
	PairingMethodJustWorks
	PairingMethodPasskeyEntry
	PairingMethodNumericComparison
	PairingMethodOutOfBand
	PairingMethodPrePaired
)

// Device is the per-remote record named in spec §3. The adapter's device
// table is its only strong owner; everything else — listeners, Connect
// callers — holds a Device pointer as a weak back-reference (spec §4.6's
// recast of the source's shared-ownership scheme) and must re-look it up by
// address through Adapter.Device before trusting its fields across a call
// boundary.
type Device struct {
	Addr codec.Address

	// IdentityAddr is set once a random-resolvable Addr has been resolved
	// against a stored IRK (spec §4.5); it is the zero Address until then.
	IdentityAddr codec.Address

	Name     string
	Services []codec.UUID
	RSSI     int8
	TXPower  int8

	State         DeviceState
	PairingState  PairingState
	PairingMethod PairingMethod
	SecurityLevel SecurityLevel

	Handle uint16

	GATTClient *gatt.Client

	Created    time.Time
	LastUpdate time.Time
}

// SecurityLevel is the minimum link security a caller or a stored KeyBin
// requires, per spec §3/§6.
type SecurityLevel int

const (
	SecurityNone SecurityLevel = iota
	SecurityEncOnly
	SecurityEncAuth
)

func newDevice(addr codec.Address, now time.Time) *Device {
	return &Device{Addr: addr, State: StateDiscovered, Created: now, LastUpdate: now}
}

func (d *Device) touch(now time.Time) { d.LastUpdate = now }

func (d *Device) clone() *Device {
	cp := *d
	cp.Services = append([]codec.UUID(nil), d.Services...)
	return &cp
}
