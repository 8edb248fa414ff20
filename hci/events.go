package hci

import "github.com/nimbusvale/directble/codec"

// ConnectionCompleteEvent reports a new ACL link, central or peripheral role.
type ConnectionCompleteEvent struct {
	Status  Status
	Handle  uint16
	Role    Role
	Addr    codec.Address
}

// DisconnectionEvent reports a link teardown, either peer- or
// locally-initiated.
type DisconnectionEvent struct {
	Handle uint16
	Reason Status
}

// AdvertisingReportEvent is a single LE advertising or scan-response report.
type AdvertisingReportEvent struct {
	EventType   uint8
	Addr        codec.Address
	Data        []byte
	RSSI        int8
}

const (
	AdvIndEventType      uint8 = 0x00
	AdvDirectIndEventType uint8 = 0x01
	AdvScanIndEventType   uint8 = 0x02
	AdvNonconnIndEventType uint8 = 0x03
	ScanRspEventType      uint8 = 0x04
)

func (e AdvertisingReportEvent) Connectable() bool {
	return e.EventType == AdvIndEventType || e.EventType == AdvDirectIndEventType
}

// EncryptionChangeEvent reports the encryption status of a link changing,
// delivered during SMP's legacy/SC key-activation phase.
type EncryptionChangeEvent struct {
	Handle    uint16
	Status    Status
	Encrypted bool
}

// LongTermKeyRequestEvent is raised by the controller in the peripheral role
// when the central requests encryption with an EDIV/Rand pair that must be
// matched against a stored LTK by the SMP/key-store layer.
type LongTermKeyRequestEvent struct {
	Handle uint16
	Rand   [8]byte
	EDIV   uint16
}

// ConnectionUpdateEvent reports renegotiated link parameters.
type ConnectionUpdateEvent struct {
	Status Status
	Handle uint16
	Interval, Latency, Timeout uint16
}

// Listener receives the non-correlated events named in spec §4.1, fanned out
// to registered listeners in registration order. Embed DefaultListener to
// satisfy the interface while only overriding the callbacks a caller needs.
type Listener interface {
	HandleConnectionComplete(ConnectionCompleteEvent)
	HandleDisconnection(DisconnectionEvent)
	HandleAdvertisingReport(AdvertisingReportEvent)
	HandleEncryptionChange(EncryptionChangeEvent)
	HandleLongTermKeyRequest(LongTermKeyRequestEvent)
	HandleConnectionUpdate(ConnectionUpdateEvent)
}

// DefaultListener provides no-op implementations of every Listener method so
// callers only need to override what they care about.
type DefaultListener struct{}

func (DefaultListener) HandleConnectionComplete(ConnectionCompleteEvent)   {}
func (DefaultListener) HandleDisconnection(DisconnectionEvent)             {}
func (DefaultListener) HandleAdvertisingReport(AdvertisingReportEvent)     {}
func (DefaultListener) HandleEncryptionChange(EncryptionChangeEvent)       {}
func (DefaultListener) HandleLongTermKeyRequest(LongTermKeyRequestEvent)   {}
func (DefaultListener) HandleConnectionUpdate(ConnectionUpdateEvent)       {}
