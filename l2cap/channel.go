// Package l2cap implements the two fixed-CID channel roles named in spec
// §4.2: a client that opens an ATT or SMP channel over an existing
// connection, and a server that accepts the peer's first PDU on that CID.
// Each channel is backed by a kernel L2CAP socket (SOCK_SEQPACKET), which
// already preserves PDU boundaries, so Channel.Read returns exactly one PDU
// per call with no reassembly bookkeeping of its own.
package l2cap

import (
	"sync"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/hcitransport"
)

// Fixed CIDs used for the two data-plane protocols this stack speaks.
const (
	CIDAtt uint16 = 0x0004
	CIDSmp uint16 = 0x0006
)

// Channel is a single fixed-CID L2CAP channel: single-reader, multi-writer,
// serialized by a per-channel mutex, per spec §4.2.
type Channel struct {
	sock hcitransport.Socket
	cid  uint16
	peer codec.Address

	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
	closeErr  error
}

func newChannel(sock hcitransport.Socket, cid uint16, peer codec.Address) *Channel {
	return &Channel{sock: sock, cid: cid, peer: peer, closed: make(chan struct{})}
}

// CID reports the fixed channel identifier this channel was opened for.
func (c *Channel) CID() uint16 { return c.cid }

// Peer reports the remote device address this channel is bound to.
func (c *Channel) Peer() codec.Address { return c.peer }

// Read blocks until one full PDU is available, the channel is closed, or the
// underlying socket errors. The returned slice is owned by the caller.
func (c *Channel) Read(buf []byte) ([]byte, error) {
	select {
	case <-c.closed:
		return nil, codec.NewError(codec.KindDisconnected, "Channel.Read", "channel closed", nil)
	default:
	}
	n, err := c.sock.Read(buf)
	if err != nil {
		select {
		case <-c.closed:
			return nil, codec.NewError(codec.KindDisconnected, "Channel.Read", "channel closed", nil)
		default:
		}
		return nil, codec.NewError(codec.KindTransport, "Channel.Read", "socket read", err)
	}
	if n == 0 {
		return nil, codec.NewError(codec.KindDisconnected, "Channel.Read", "peer closed", nil)
	}
	out := make([]byte, n)
	copy(out, buf[:n])
	return out, nil
}

// Write sends one PDU, serialized against concurrent writers.
func (c *Channel) Write(pdu []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	select {
	case <-c.closed:
		return codec.NewError(codec.KindDisconnected, "Channel.Write", "channel closed", nil)
	default:
	}
	if _, err := c.sock.Write(pdu); err != nil {
		return codec.NewError(codec.KindTransport, "Channel.Write", "socket write", err)
	}
	return nil
}

// Close is idempotent, per spec §4.2.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.closeErr = c.sock.Close()
	})
	return c.closeErr
}

// Client opens fixed-CID channels over an existing ACL link.
type Client struct {
	transport    hcitransport.Transport
	adapterIndex int
}

func NewClient(transport hcitransport.Transport, adapterIndex int) *Client {
	return &Client{transport: transport, adapterIndex: adapterIndex}
}

// Open opens CID (CIDAtt or CIDSmp) against addr at the requested security
// level. Failure surfaces when the controller denies the encryption upgrade
// needed to satisfy secLevel.
func (c *Client) Open(addr codec.Address, cid uint16, secLevel hcitransport.SecurityLevel) (*Channel, error) {
	sock, err := c.transport.OpenL2CAP(c.adapterIndex, addr, cid, secLevel)
	if err != nil {
		return nil, err
	}
	return newChannel(sock, cid, addr), nil
}
