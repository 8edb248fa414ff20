// Package hcitransport defines the abstract controller transport the HCI
// handler is built on, and a Linux realization using raw AF_BLUETOOTH
// sockets. The raw-socket substrate is OS-specific by nature (spec
// Non-goals); this package is the documented seam where a future platform
// would plug in its own Transport.
package hcitransport

import (
	"io"

	"github.com/nimbusvale/directble/codec"
)

// SecurityLevel mirrors the ordered security levels used when requesting an
// L2CAP channel be opened at or above a given encryption strength.
type SecurityLevel int

const (
	SecurityNone SecurityLevel = iota
	SecurityEncOnly
	SecurityEncAuth
	SecurityEncAuthFIPS
)

// Socket is a raw duplex byte stream: an HCI channel or an L2CAP channel.
type Socket interface {
	io.ReadWriteCloser
}

// Filter configures which HCI packet/event types are delivered to a raw HCI
// socket, mirroring the kernel's HCI socket filter.
type Filter struct {
	TypeMask  uint32
	EventMask [2]uint32
	Opcode    uint16
}

// Transport is the abstract controller substrate named in spec §6. Exactly
// one concrete implementation is built here (Linux raw sockets); additional
// platforms would implement the same interface.
type Transport interface {
	// OpenHCI opens the raw HCI control channel for the given adapter index.
	OpenHCI(adapterIndex int) (Socket, error)

	// BindRaw installs a packet filter on an already-open HCI socket.
	BindRaw(sock Socket, filter Filter) error

	// OpenL2CAP opens an L2CAP channel to addr on the given adapter at the
	// fixed CID (ATT=0x0004, SMP=0x0006), requesting at least secLevel.
	OpenL2CAP(adapterIndex int, addr codec.Address, cid uint16, secLevel SecurityLevel) (Socket, error)

	// ListenL2CAP opens a listening L2CAP endpoint bound to the fixed CID on
	// the given adapter, accepting connections as they are offered by the
	// controller.
	ListenL2CAP(adapterIndex int, cid uint16) (Listener, error)
}

// Listener accepts inbound L2CAP channels for a server-role CID.
type Listener interface {
	Accept() (Socket, codec.Address, error)
	Close() error
}
