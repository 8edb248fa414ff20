package hci

import (
	"github.com/nimbusvale/directble/codec"
)

const (
	packetTypeCommand = 0x01
	packetTypeACL     = 0x02 // unused: ATT/SMP data planes use dedicated L2CAP sockets, not ACL-over-HCI
	packetTypeEvent   = 0x04
)

// readLoop is the single dedicated HCI reader goroutine per adapter (spec
// §5). When the transport errors it terminates all pending commands with a
// single TRANSPORT error and puts the handler in the closed state (closing
// its socket); a later Initialize restarts it.
func (h *Handler) readLoop() {
	defer h.readerWG.Done()
	buf := make([]byte, 4096)
	for {
		n, err := h.sock.Read(buf)
		if err != nil || n == 0 {
			h.failAllPending(codec.NewError(codec.KindTransport, "readLoop", "transport closed", err))
			h.closedMu.Lock()
			if !h.closed {
				h.closed = true
				close(h.closeCh)
				_ = h.sock.Close()
			}
			h.closedMu.Unlock()
			return
		}
		pkt := make([]byte, n)
		copy(pkt, buf[:n])
		h.handlePacket(pkt)
	}
}

func (h *Handler) failAllPending(err error) {
	h.cmdMu.Lock()
	p := h.pending
	h.pending = nil
	h.cmdMu.Unlock()
	if p != nil {
		p.done <- cmdResult{err: err}
	}
}

func (h *Handler) handlePacket(b []byte) {
	if len(b) < 1 {
		return
	}
	typ, body := b[0], b[1:]
	switch typ {
	case packetTypeEvent:
		h.handleEvent(body)
	default:
		h.log.Debugf("unhandled HCI packet type 0x%02X", typ)
	}
}

func (h *Handler) handleEvent(b []byte) {
	if len(b) < 2 {
		return
	}
	code, plen := EventCode(b[0]), int(b[1])
	b = b[2:]
	if len(b) < plen {
		return
	}
	b = b[:plen]

	switch code {
	case EventCommandComplete:
		h.dispatchCommandComplete(b)
	case EventCommandStatus:
		h.dispatchCommandStatus(b)
	case EventDisconnectionComplete:
		h.dispatchDisconnection(b)
	case EventEncryptionChange:
		h.dispatchEncryptionChange(b)
	case EventLEMeta:
		h.dispatchLEMeta(b)
	default:
		h.log.Tracef("unhandled HCI event 0x%02X", uint8(code))
	}
}

func (h *Handler) dispatchCommandComplete(b []byte) {
	if len(b) < 3 {
		return
	}
	op := opcode(uint16(b[1]) | uint16(b[2])<<8)
	params := b[3:]
	var status Status
	if len(params) > 0 {
		status = Status(params[0])
	}
	h.completePending(op, cmdResult{status: status, params: params})
}

func (h *Handler) dispatchCommandStatus(b []byte) {
	if len(b) < 4 {
		return
	}
	status := Status(b[0])
	op := opcode(uint16(b[2]) | uint16(b[3])<<8)
	h.completePending(op, cmdResult{status: status})
}

func (h *Handler) completePending(op opcode, r cmdResult) {
	h.cmdMu.Lock()
	p := h.pending
	if p == nil || p.op != op {
		h.cmdMu.Unlock()
		return
	}
	h.pending = nil
	h.cmdMu.Unlock()
	p.done <- r
}

func (h *Handler) dispatchDisconnection(b []byte) {
	if len(b) < 4 {
		return
	}
	handle := uint16(b[1]) | uint16(b[2])<<8
	reason := Status(b[3])

	ev := DisconnectionEvent{Handle: handle, Reason: reason}
	for _, l := range h.snapshotListeners() {
		l.HandleDisconnection(ev)
	}

	h.registry.remove(handle)
}

func (h *Handler) dispatchEncryptionChange(b []byte) {
	if len(b) < 4 {
		return
	}
	status := Status(b[0])
	handle := uint16(b[1]) | uint16(b[2])<<8
	enabled := b[3] != 0
	ev := EncryptionChangeEvent{Handle: handle, Status: status, Encrypted: enabled}
	for _, l := range h.snapshotListeners() {
		l.HandleEncryptionChange(ev)
	}
}

func (h *Handler) dispatchLEMeta(b []byte) {
	if len(b) < 1 {
		return
	}
	sub, body := LESubevent(b[0]), b[1:]
	switch sub {
	case LEConnectionComplete:
		h.handleLEConnectionComplete(body)
	case LEAdvertisingReport:
		h.handleLEAdvertisingReport(body)
	case LEConnectionUpdateComplete:
		h.handleLEConnectionUpdate(body)
	case LELongTermKeyRequest:
		h.handleLELongTermKeyRequest(body)
	}
}

func (h *Handler) handleLEConnectionComplete(b []byte) {
	r := codec.NewReader(b)
	status := Status(r.Uint8())
	handle := r.Uint16()
	role := r.Uint8()
	addrType := r.Uint8()
	addrBytes := r.Bytes(6)
	if r.Err() != nil {
		return
	}
	var addr codec.Address
	copy(addr.Bytes[:], addrBytes)
	addr.Type = codec.AddressType(addrType)

	rl := RoleCentral
	if role == 1 {
		rl = RolePeripheral
	}
	ev := ConnectionCompleteEvent{Status: status, Handle: handle, Role: rl, Addr: addr}

	if status.OK() && rl == RolePeripheral {
		c := &Conn{Handle: handle, Addr: addr, Role: RolePeripheral}
		h.registry.add(c)
	}

	h.connAwaitMu.Lock()
	ch := h.connAwait[addr]
	h.connAwaitMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
		}
	}

	for _, l := range h.snapshotListeners() {
		l.HandleConnectionComplete(ev)
	}
}

func (h *Handler) handleLEAdvertisingReport(b []byte) {
	if len(b) < 1 {
		return
	}
	r := codec.NewReader(b)
	n := int(r.Uint8())
	type raw struct {
		evType, addrType uint8
		addr             []byte
	}
	reports := make([]raw, 0, n)
	for i := 0; i < n; i++ {
		reports = append(reports, raw{})
	}
	for i := 0; i < n; i++ {
		reports[i].evType = r.Uint8()
	}
	for i := 0; i < n; i++ {
		reports[i].addrType = r.Uint8()
	}
	for i := 0; i < n; i++ {
		reports[i].addr = r.Bytes(6)
	}
	lens := make([]int, n)
	for i := 0; i < n; i++ {
		lens[i] = int(r.Uint8())
	}
	datas := make([][]byte, n)
	for i := 0; i < n; i++ {
		datas[i] = r.Bytes(lens[i])
	}
	rssis := make([]int8, n)
	for i := 0; i < n; i++ {
		rssis[i] = int8(r.Uint8())
	}
	if r.Err() != nil {
		return
	}
	for i := 0; i < n; i++ {
		var addr codec.Address
		copy(addr.Bytes[:], reports[i].addr)
		addr.Type = codec.AddressType(reports[i].addrType)
		ev := AdvertisingReportEvent{EventType: reports[i].evType, Addr: addr, Data: datas[i], RSSI: rssis[i]}
		for _, l := range h.snapshotListeners() {
			l.HandleAdvertisingReport(ev)
		}
	}
}

func (h *Handler) handleLEConnectionUpdate(b []byte) {
	r := codec.NewReader(b)
	status := Status(r.Uint8())
	handle := r.Uint16()
	interval := r.Uint16()
	latency := r.Uint16()
	timeout := r.Uint16()
	if r.Err() != nil {
		return
	}
	ev := ConnectionUpdateEvent{Status: status, Handle: handle, Interval: interval, Latency: latency, Timeout: timeout}
	for _, l := range h.snapshotListeners() {
		l.HandleConnectionUpdate(ev)
	}
}

func (h *Handler) handleLELongTermKeyRequest(b []byte) {
	r := codec.NewReader(b)
	handle := r.Uint16()
	var rnd [8]byte
	copy(rnd[:], r.Bytes(8))
	ediv := r.Uint16()
	if r.Err() != nil {
		return
	}
	ev := LongTermKeyRequestEvent{Handle: handle, Rand: rnd, EDIV: ediv}
	for _, l := range h.snapshotListeners() {
		l.HandleLongTermKeyRequest(ev)
	}
}
