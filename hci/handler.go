// Package hci implements the single point of contact with the local
// Bluetooth controller: command framing and event correlation, the
// connection registry, and LE meta-event dispatch, per spec §4.1.
package hci

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/hcitransport"
)

// DefaultCommandTimeout is the 10s HCI command window from spec §5.
const DefaultCommandTimeout = 10 * time.Second

// Mode selects the role the controller is initialized for. A single adapter
// runs one Handler; separate adapters (spec §4.6) get separate Handlers.
type Mode int

const (
	ModeCentral Mode = iota
	ModePeripheral
)

type pendingCmd struct {
	op   opcode
	done chan cmdResult
}

type cmdResult struct {
	status Status
	params []byte
	err    error
}

// Handler is the HCI command/event/connection-registry core described by
// spec §4.1. One Handler owns one adapter's raw HCI socket.
type Handler struct {
	transport    hcitransport.Transport
	adapterIndex int
	log          logrus.FieldLogger

	sock hcitransport.Socket

	cmdMu   sync.Mutex // serializes command issue, per spec §4.1
	pending *pendingCmd

	listenersMu sync.Mutex
	listenerSeq uint64
	listeners   []entry // copy-on-write, per spec §5

	connAwaitMu sync.Mutex
	connAwait   map[codec.Address]chan ConnectionCompleteEvent

	registry *registry

	closedMu sync.Mutex
	closed   bool
	closeCh  chan struct{}

	readerWG sync.WaitGroup
}

// NewHandler constructs a Handler bound to transport/adapterIndex. Call
// Initialize to reset and configure the controller before issuing other
// commands.
func NewHandler(transport hcitransport.Transport, adapterIndex int, log logrus.FieldLogger) *Handler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Handler{
		transport:    transport,
		adapterIndex: adapterIndex,
		log:          log.WithField("adapter", adapterIndex),
		connAwait:    make(map[codec.Address]chan ConnectionCompleteEvent),
		registry:     newRegistry(),
		closeCh:      make(chan struct{}),
	}
}

// Initialize opens the raw HCI socket, installs the event filter, resets the
// controller, and configures it for the given mode. A subsequent Initialize
// call after a transport error restarts the handler from a closed state.
func (h *Handler) Initialize(mode Mode) error {
	h.closedMu.Lock()
	if h.closed {
		h.closed = false
		h.closeCh = make(chan struct{})
	}
	h.closedMu.Unlock()

	sock, err := h.transport.OpenHCI(h.adapterIndex)
	if err != nil {
		return codec.NewError(codec.KindTransport, "Initialize", "open HCI socket", err)
	}
	h.sock = sock

	filter := hcitransport.Filter{
		TypeMask:  1<<packetTypeEvent | 1<<packetTypeACL,
		EventMask: [2]uint32{0xffffffff, 0xffffffff},
	}
	_ = h.transport.BindRaw(sock, filter)

	h.readerWG.Add(1)
	go h.readLoop()

	seq := []cmdParam{
		reset{},
		setEventMask{mask: 0x3dbff807fffbffff},
		leSetEventMask{mask: 0x000000000000001F},
		writeSimplePairingMode{enable: 1},
		writeLEHostSupported{leSupported: 1, simultaneous: 0},
	}
	for _, cp := range seq {
		if _, err := h.SendCommand(cp, DefaultCommandTimeout); err != nil {
			return err
		}
	}
	return nil
}

// SetPowered maps power state onto the raw-HCI socket, per spec §4.1:
// SetPowered(true) is a no-op (Initialize brings the controller up), and
// SetPowered(false) closes the handler.
func (h *Handler) SetPowered(on bool) error {
	if on {
		return nil
	}
	return h.Close()
}

// SendCommand is the generic command API named in spec §4.1: issue cp and
// wait up to timeout for its correlated Command-Complete or Command-Status.
func (h *Handler) SendCommand(cp cmdParam, timeout time.Duration) ([]byte, error) {
	h.cmdMu.Lock()
	defer h.cmdMu.Unlock()

	if h.isClosed() {
		return nil, codec.NewError(codec.KindDisconnected, "SendCommand", "handler closed", nil)
	}

	w := codec.NewWriter(8)
	cp.marshal(w)
	body := w.Bytes()

	pkt := make([]byte, 1+2+1+len(body))
	pkt[0] = 0x01 // HCI command packet type
	pkt[1] = byte(cp.opcode())
	pkt[2] = byte(cp.opcode() >> 8)
	pkt[3] = byte(len(body))
	copy(pkt[4:], body)

	p := &pendingCmd{op: cp.opcode(), done: make(chan cmdResult, 1)}
	h.pending = p

	if _, err := h.sock.Write(pkt); err != nil {
		h.pending = nil
		return nil, codec.NewError(codec.KindTransport, "SendCommand", "write", err)
	}

	select {
	case r := <-p.done:
		if r.err != nil {
			return nil, r.err
		}
		if !r.status.OK() {
			return r.params, codec.NewError(codec.KindProtocol, "SendCommand", "non-success status", nil)
		}
		return r.params, nil
	case <-time.After(timeout):
		h.pending = nil
		return nil, codec.NewError(codec.KindTimeout, "SendCommand", "no matching event within window", nil)
	case <-h.closeCh:
		return nil, codec.NewError(codec.KindDisconnected, "SendCommand", "handler closed", nil)
	}
}

// ListenerHandle identifies a registered Listener for later removal.
type ListenerHandle uint64

// AddListener registers l to receive non-correlated events in registration
// order. The listener list is copy-on-write (spec §5): iteration during
// dispatch never locks against registration. The returned handle is the only
// safe way to remove l later; listener implementations are not required to
// be comparable with ==.
func (h *Handler) AddListener(l Listener) ListenerHandle {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	h.listenerSeq++
	id := h.listenerSeq
	next := make([]entry, len(h.listeners)+1)
	copy(next, h.listeners)
	next[len(h.listeners)] = entry{id: id, l: l}
	h.listeners = next
	return ListenerHandle(id)
}

func (h *Handler) RemoveListener(id ListenerHandle) {
	h.listenersMu.Lock()
	defer h.listenersMu.Unlock()
	next := make([]entry, 0, len(h.listeners))
	for _, e := range h.listeners {
		if e.id != uint64(id) {
			next = append(next, e)
		}
	}
	h.listeners = next
}

type entry struct {
	id uint64
	l  Listener
}

func (h *Handler) snapshotListeners() []Listener {
	h.listenersMu.Lock()
	entries := h.listeners
	h.listenersMu.Unlock()
	out := make([]Listener, len(entries))
	for i, e := range entries {
		out[i] = e.l
	}
	return out
}

// ConnByHandle returns the registered connection for handle, if any.
func (h *Handler) ConnByHandle(handle uint16) (*Conn, bool) { return h.registry.get(handle) }

// Conns returns a snapshot of all currently registered connections.
func (h *Handler) Conns() []*Conn { return h.registry.snapshot() }

func (h *Handler) isClosed() bool {
	h.closedMu.Lock()
	defer h.closedMu.Unlock()
	return h.closed
}

// Close terminates all pending commands with DISCONNECTED, closes the
// socket, and joins the reader goroutine before returning, per spec §5.
func (h *Handler) Close() error {
	h.closedMu.Lock()
	if h.closed {
		h.closedMu.Unlock()
		return nil
	}
	h.closed = true
	close(h.closeCh)
	h.closedMu.Unlock()

	var err error
	if h.sock != nil {
		err = h.sock.Close()
	}
	h.readerWG.Wait()
	return err
}
