package gatt

import (
	"sync"

	"github.com/nimbusvale/directble/att"
	"github.com/nimbusvale/directble/codec"
)

// RemoteService and RemoteCharacteristic mirror the discovered shape of a
// peer's database, cached on the Client until disconnect or RefreshServices.
type RemoteService struct {
	UUID        codec.UUID
	StartHandle uint16
	EndHandle   uint16
}

type RemoteCharacteristic struct {
	UUID        codec.UUID
	Properties  CharacteristicProperty
	ValueHandle uint16
	CCCDHandle  uint16 // 0 if none found
}

type RemoteDescriptor struct {
	UUID   codec.UUID
	Handle uint16
}

// NotificationHandler receives notification/indication values as they
// arrive, keyed by value handle. Client confirms each indication
// automatically once the handler has returned.
type NotificationHandler func(valueHandle uint16, value []byte)

// Client is a GATT client driving discovery and read/write/notify traffic
// over a single ATT channel, per spec §4.4.
type Client struct {
	ch  Channel
	mtu int

	mu       sync.Mutex
	services []RemoteService
	chars    map[uint16][]RemoteCharacteristic // service start handle -> chars

	pendingMu sync.Mutex
	pending   chan att.PDU

	notifyHandler NotificationHandler

	readLoopOnce sync.Once
	closeOnce    sync.Once
	stopCh       chan struct{}
}

// NewClient constructs a Client bound to an already-open ATT channel.
func NewClient(ch Channel) *Client {
	c := &Client{ch: ch, mtu: DefaultMTU, chars: make(map[uint16][]RemoteCharacteristic), stopCh: make(chan struct{})}
	return c
}

// SetNotificationHandler installs the callback invoked for every
// notification/indication received outside of a request/response exchange.
func (c *Client) SetNotificationHandler(h NotificationHandler) { c.notifyHandler = h }

// Start launches the client's dedicated read loop, required before any
// request/response method is called.
func (c *Client) Start() {
	c.readLoopOnce.Do(func() { go c.readLoop() })
}

// Close stops the read loop and closes the underlying channel. Idempotent.
func (c *Client) Close() error {
	c.closeOnce.Do(func() { close(c.stopCh) })
	return c.ch.Close()
}

func (c *Client) readLoop() {
	buf := make([]byte, 65535)
	for {
		raw, err := c.ch.Read(buf)
		if err != nil {
			c.failPending(err)
			return
		}
		pdu, err := att.Decode(raw)
		if err != nil {
			continue
		}
		switch p := pdu.(type) {
		case att.HandleValueNotification:
			if c.notifyHandler != nil {
				c.notifyHandler(p.Handle, p.Value)
			}
		case att.HandleValueIndication:
			if c.notifyHandler != nil {
				c.notifyHandler(p.Handle, p.Value)
			}
			_ = c.ch.Write(att.HandleValueConfirmation{}.Marshal())
		default:
			c.deliverResponse(pdu)
		}
	}
}

func (c *Client) deliverResponse(pdu att.PDU) {
	c.pendingMu.Lock()
	ch := c.pending
	c.pendingMu.Unlock()
	if ch != nil {
		select {
		case ch <- pdu:
		default:
		}
	}
}

func (c *Client) failPending(err error) {
	c.pendingMu.Lock()
	ch := c.pending
	c.pendingMu.Unlock()
	if ch != nil {
		close(ch)
	}
}

// request sends req and waits for the matching response or an Error-Response
// carrying req's opcode.
func (c *Client) request(req att.PDU) (att.PDU, error) {
	respCh := make(chan att.PDU, 1)
	c.pendingMu.Lock()
	c.pending = respCh
	c.pendingMu.Unlock()
	defer func() {
		c.pendingMu.Lock()
		c.pending = nil
		c.pendingMu.Unlock()
	}()

	if err := c.ch.Write(req.Marshal()); err != nil {
		return nil, err
	}

	for {
		select {
		case resp, ok := <-respCh:
			if !ok {
				return nil, codec.NewError(codec.KindDisconnected, "Client.request", "channel closed", nil)
			}
			if errResp, ok := resp.(att.ErrorResponse); ok {
				if errResp.ReqOpcode != req.Opcode() {
					continue
				}
				return nil, errResp
			}
			if want, ok := att.ResponseFor(req.Opcode()); ok && resp.Opcode() != want {
				continue
			}
			return resp, nil
		case <-c.stopCh:
			return nil, codec.NewError(codec.KindDisconnected, "Client.request", "client closed", nil)
		}
	}
}

// ExchangeMTU negotiates the ATT MTU and records the agreed value.
func (c *Client) ExchangeMTU(clientRxMTU uint16) (int, error) {
	resp, err := c.request(att.ExchangeMTURequest{ClientRxMTU: clientRxMTU})
	if err != nil {
		return 0, err
	}
	r := resp.(att.ExchangeMTUResponse)
	negotiated := int(clientRxMTU)
	if int(r.ServerRxMTU) < negotiated {
		negotiated = int(r.ServerRxMTU)
	}
	c.mtu = negotiated
	return negotiated, nil
}

// DiscoverServices walks the full handle space with Read-By-Group-Type
// (0x2800) requests, per spec §4.4, and caches the result.
func (c *Client) DiscoverServices() ([]RemoteService, error) {
	c.mu.Lock()
	if c.services != nil {
		defer c.mu.Unlock()
		return c.services, nil
	}
	c.mu.Unlock()

	var out []RemoteService
	start := uint16(1)
	for start <= 0xFFFF {
		resp, err := c.request(att.ReadByGroupTypeRequest{StartHandle: start, EndHandle: 0xFFFF, GroupType: UUIDPrimaryService})
		if err != nil {
			if isAttrNotFound(err) {
				break
			}
			return nil, err
		}
		r := resp.(att.ReadByGroupTypeResponse)
		if len(r.Attributes) == 0 {
			break
		}
		for _, a := range r.Attributes {
			u, uerr := codec.UUIDFromBytes(a.Value)
			if uerr != nil {
				continue
			}
			out = append(out, RemoteService{UUID: u, StartHandle: a.Handle, EndHandle: a.EndGroup})
		}
		last := r.Attributes[len(r.Attributes)-1].EndGroup
		if last == 0xFFFF {
			break
		}
		start = last + 1
	}
	c.mu.Lock()
	c.services = out
	c.mu.Unlock()
	return out, nil
}

// DiscoverCharacteristics enumerates svc's characteristics via Read-By-Type
// (0x2803), resolving each declaration's value handle and CCCD, per spec
// §4.4. The result is cached until RefreshServices.
func (c *Client) DiscoverCharacteristics(svc RemoteService) ([]RemoteCharacteristic, error) {
	c.mu.Lock()
	if cached, ok := c.chars[svc.StartHandle]; ok {
		defer c.mu.Unlock()
		return cached, nil
	}
	c.mu.Unlock()

	var decls []struct {
		handle uint16
		props  CharacteristicProperty
		vhand  uint16
		uuid   codec.UUID
	}
	start := svc.StartHandle
	for start <= svc.EndHandle {
		resp, err := c.request(att.ReadByTypeRequest{StartHandle: start, EndHandle: svc.EndHandle, AttType: UUIDCharacteristic})
		if err != nil {
			if isAttrNotFound(err) {
				break
			}
			return nil, err
		}
		r := resp.(att.ReadByTypeResponse)
		if len(r.Attributes) == 0 {
			break
		}
		for _, a := range r.Attributes {
			if len(a.Value) < 3 {
				continue
			}
			props := CharacteristicProperty(a.Value[0])
			vhand := uint16(a.Value[1]) | uint16(a.Value[2])<<8
			u, uerr := codec.UUIDFromBytes(a.Value[3:])
			if uerr != nil {
				continue
			}
			decls = append(decls, struct {
				handle uint16
				props  CharacteristicProperty
				vhand  uint16
				uuid   codec.UUID
			}{handle: a.Handle, props: props, vhand: vhand, uuid: u})
		}
		start = r.Attributes[len(r.Attributes)-1].Handle + 1
	}

	var out []RemoteCharacteristic
	for i, d := range decls {
		end := svc.EndHandle
		if i+1 < len(decls) {
			end = decls[i+1].handle - 1
		}
		rc := RemoteCharacteristic{UUID: d.uuid, Properties: d.props, ValueHandle: d.vhand}
		if d.props&(PropNotify|PropIndicate) != 0 {
			if cccd, err := c.findCCCD(d.vhand+1, end); err == nil {
				rc.CCCDHandle = cccd
			}
		}
		out = append(out, rc)
	}

	c.mu.Lock()
	c.chars[svc.StartHandle] = out
	c.mu.Unlock()
	return out, nil
}

func (c *Client) findCCCD(start, end uint16) (uint16, error) {
	if start > end {
		return 0, codec.ErrNotSupported
	}
	resp, err := c.request(att.ReadByTypeRequest{StartHandle: start, EndHandle: end, AttType: UUIDClientCharConfig})
	if err != nil {
		return 0, err
	}
	r := resp.(att.ReadByTypeResponse)
	if len(r.Attributes) == 0 {
		return 0, codec.ErrNotSupported
	}
	return r.Attributes[0].Handle, nil
}

// DiscoverDescriptors enumerates every descriptor between start and end via
// Find-Information, per spec §4.4.
func (c *Client) DiscoverDescriptors(start, end uint16) ([]RemoteDescriptor, error) {
	var out []RemoteDescriptor
	for start <= end {
		resp, err := c.request(att.FindInformationRequest{StartHandle: start, EndHandle: end})
		if err != nil {
			if isAttrNotFound(err) {
				break
			}
			return nil, err
		}
		r := resp.(att.FindInformationResponse)
		if len(r.Pairs) == 0 {
			break
		}
		for _, hu := range r.Pairs {
			out = append(out, RemoteDescriptor{UUID: hu.UUID, Handle: hu.Handle})
		}
		last := r.Pairs[len(r.Pairs)-1].Handle
		if last == 0xFFFF {
			break
		}
		start = last + 1
	}
	return out, nil
}

// RefreshServices drops the cached discovery results, forcing the next
// DiscoverServices/DiscoverCharacteristics call to re-walk the peer.
func (c *Client) RefreshServices() {
	c.mu.Lock()
	c.services = nil
	c.chars = make(map[uint16][]RemoteCharacteristic)
	c.mu.Unlock()
}

// ReadValue reads handle's full value, issuing Read-Blob follow-ups past MTU-1.
func (c *Client) ReadValue(handle uint16) ([]byte, error) {
	resp, err := c.request(att.ReadRequest{Handle: handle})
	if err != nil {
		return nil, err
	}
	val := append([]byte(nil), resp.(att.ReadResponse).Value...)
	for len(val)%(c.mtu-1) == 0 && len(val) > 0 {
		blob, err := c.request(att.ReadBlobRequest{Handle: handle, Offset: uint16(len(val))})
		if err != nil {
			if isInvalidOffset(err) {
				break
			}
			return nil, err
		}
		chunk := blob.(att.ReadBlobResponse).Value
		if len(chunk) == 0 {
			break
		}
		val = append(val, chunk...)
	}
	return val, nil
}

// WriteValue performs a Write-Request, waiting for the peer's acknowledgment.
func (c *Client) WriteValue(handle uint16, value []byte) error {
	_, err := c.request(att.WriteRequest{Handle: handle, Value: value})
	return err
}

// WriteValueNoResponse sends a Write-Command with no acknowledgment.
func (c *Client) WriteValueNoResponse(handle uint16, value []byte) error {
	return c.ch.Write(att.WriteCommand{Handle: handle, Value: value}.Marshal())
}

// SetNotify writes a characteristic's CCCD, per spec §4.4: notify sets the
// notification bit and indicate sets the indication bit; both false
// disables both.
func (c *Client) SetNotify(rc RemoteCharacteristic, notify, indicate bool) error {
	if rc.CCCDHandle == 0 {
		return codec.NewError(codec.KindNotSupported, "Client.SetNotify", "characteristic has no CCCD", nil)
	}
	var bits uint16
	if notify {
		bits |= CCCDNotificationEnable
	}
	if indicate {
		bits |= CCCDIndicationEnable
	}
	return c.WriteValue(rc.CCCDHandle, []byte{byte(bits), byte(bits >> 8)})
}

func isAttrNotFound(err error) bool {
	e, ok := err.(att.ErrorResponse)
	return ok && e.Code == att.ErrAttrNotFound
}

func isInvalidOffset(err error) bool {
	e, ok := err.(att.ErrorResponse)
	return ok && e.Code == att.ErrInvalidOffset
}
