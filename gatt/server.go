package gatt

import (
	"sync"
	"time"

	"github.com/nimbusvale/directble/att"
	"github.com/nimbusvale/directble/codec"
)

// DefaultMTU is the minimum ATT MTU every link starts at before negotiation.
const DefaultMTU = 23

// indicationTimeout is how long the server waits for a Handle-Value-Confirmation
// before treating the link as unresponsive, per spec §4.4.
const indicationTimeout = 30 * time.Second

// SecurityState reports a connection's current encryption/authentication
// status so the server can enforce per-attribute permission checks. Adapter
// wires this to the hci/smp layer's live link state.
type SecurityState interface {
	Encrypted() bool
	Authenticated() bool
}

type alwaysInsecure struct{}

func (alwaysInsecure) Encrypted() bool     { return false }
func (alwaysInsecure) Authenticated() bool { return false }

// ConfigChangeFunc is invoked with the CCCD's own handle when a client
// writes a characteristic's CCCD. Returning false vetoes the write, which
// the server reports as Write-Not-Permitted.
type ConfigChangeFunc func(cccdHandle uint16, notify, indicate bool) bool

// SignatureVerifier checks an ATT Signed-Write-Command's trailing CMAC
// against the connection's CSRK, per spec §4.3: "the codec validates
// length but delegates CSRK verification to a caller-supplied verifier."
// opcode and payload are exactly what att.SignedWriteCommand.Opcode/
// SignedPayload return, so a verifier needs no att-internal knowledge to
// recompute the MAC.
type SignatureVerifier interface {
	VerifySignature(opcode att.Opcode, payload []byte, counter uint32, mac [8]byte) bool
}

// Server answers ATT requests against a Database for one connected peer, per
// spec §4.4's request dispatcher and long-write/indication-queue rules.
type Server struct {
	db       *Database
	ch       Channel
	security SecurityState
	onConfigChange ConfigChangeFunc
	signature      SignatureVerifier

	mu  sync.Mutex
	mtu int

	prepareMu sync.Mutex
	prepared  []preparedWrite

	cccdMu sync.Mutex
	cccd   map[uint16]uint16 // CCCD handle -> CCCD bits

	indicateMu   sync.Mutex
	indicatePend chan struct{} // non-nil while awaiting confirmation
}

type preparedWrite struct {
	handle uint16
	offset uint16
	value  []byte
}

// NewServer constructs a Server bound to db and ch. security may be nil, in
// which case every encryption/authentication requirement fails closed.
func NewServer(db *Database, ch Channel, security SecurityState) *Server {
	if security == nil {
		security = alwaysInsecure{}
	}
	return &Server{db: db, ch: ch, security: security, mtu: DefaultMTU, cccd: make(map[uint16]uint16)}
}

// OnConfigChange installs the callback invoked on CCCD writes.
func (s *Server) OnConfigChange(f ConfigChangeFunc) { s.onConfigChange = f }

// SetSignatureVerifier installs the CSRK verifier used to authenticate
// Signed-Write-Commands. Without one, every Signed-Write-Command is
// rejected (no write applied), since ATT signing exists precisely to avoid
// trusting an unauthenticated command.
func (s *Server) SetSignatureVerifier(v SignatureVerifier) { s.signature = v }

// Serve reads and answers requests until a read from the channel fails, and
// returns that read error; a closed channel ends Serve with the error its
// Read reports, never nil.
func (s *Server) Serve() error {
	buf := make([]byte, 65535)
	for {
		raw, err := s.ch.Read(buf)
		if err != nil {
			return err
		}
		pdu, err := att.Decode(raw)
		if err != nil {
			continue
		}
		resp := s.dispatch(pdu)
		if resp == nil {
			continue // commands get no response
		}
		if err := s.ch.Write(resp.Marshal()); err != nil {
			return err
		}
	}
}

func (s *Server) mtuValue() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mtu
}

func (s *Server) dispatch(pdu att.PDU) att.PDU {
	switch p := pdu.(type) {
	case att.ExchangeMTURequest:
		negotiated := int(p.ClientRxMTU)
		if negotiated < DefaultMTU {
			negotiated = DefaultMTU
		}
		s.mu.Lock()
		s.mtu = negotiated
		s.mu.Unlock()
		return att.ExchangeMTUResponse{ServerRxMTU: uint16(s.mtu)}

	case att.FindInformationRequest:
		return s.handleFindInformation(p)

	case att.FindByTypeValueRequest:
		return s.handleFindByTypeValue(p)

	case att.ReadByTypeRequest:
		return s.handleReadByType(p)

	case att.ReadRequest:
		return s.handleRead(p.Handle, 0, att.OpReadReq, func(v []byte) att.PDU { return att.ReadResponse{Value: v} })

	case att.ReadBlobRequest:
		return s.handleRead(p.Handle, p.Offset, att.OpReadBlobReq, func(v []byte) att.PDU { return att.ReadBlobResponse{Value: v} })

	case att.ReadByGroupTypeRequest:
		return s.handleReadByGroupType(p)

	case att.WriteRequest:
		return s.handleWrite(p.Handle, p.Value, att.OpWriteReq, true)

	case att.WriteCommand:
		s.handleWrite(p.Handle, p.Value, att.OpWriteCmd, false)
		return nil

	case att.SignedWriteCommand:
		if s.signature == nil || !s.signature.VerifySignature(p.Opcode(), p.SignedPayload(), p.SignCounter, p.MAC) {
			return nil // Signed-Write-Command is a command: no response, write is dropped.
		}
		s.handleWrite(p.Handle, p.Value, att.OpSignedWriteCmd, false)
		return nil

	case att.PrepareWriteRequest:
		return s.handlePrepareWrite(p)

	case att.ExecuteWriteRequest:
		return s.handleExecuteWrite(p)

	case att.HandleValueConfirmation:
		s.indicateMu.Lock()
		if s.indicatePend != nil {
			close(s.indicatePend)
			s.indicatePend = nil
		}
		s.indicateMu.Unlock()
		return nil

	default:
		return att.NewErrorResponse(pdu.Opcode(), 0, att.ErrRequestNotSupported)
	}
}

func (s *Server) handleFindInformation(p att.FindInformationRequest) att.PDU {
	attrs := s.db.Range(p.StartHandle, p.EndHandle)
	if len(attrs) == 0 {
		return att.NewErrorResponse(att.OpFindInfoReq, p.StartHandle, att.ErrAttrNotFound)
	}
	format := uint8(1)
	if attrs[0].Type.Len() == 16 {
		format = 2
	}
	var pairs []att.HandleUUID
	for _, a := range attrs {
		wantWide := format == 2
		isWide := a.Type.Len() == 16
		if wantWide != isWide {
			break
		}
		pairs = append(pairs, att.HandleUUID{Handle: a.Handle, UUID: a.Type})
	}
	return att.FindInformationResponse{Format: format, Pairs: pairs}
}

func (s *Server) handleFindByTypeValue(p att.FindByTypeValueRequest) att.PDU {
	attrs := s.db.Range(p.StartHandle, p.EndHandle)
	wantType := codec.UUID16(p.AttType)
	var ranges []att.HandleRange
	for _, a := range attrs {
		if !a.Type.Equal(wantType) {
			continue
		}
		val := a.Value
		if a.ReadFunc != nil {
			v, _ := a.ReadFunc()
			val = v
		}
		if !bytesEqual(val, p.AttValue) {
			continue
		}
		ranges = append(ranges, att.HandleRange{Found: a.Handle, GroupEnd: a.Handle})
	}
	if len(ranges) == 0 {
		return att.NewErrorResponse(att.OpFindByTypeReq, p.StartHandle, att.ErrAttrNotFound)
	}
	return att.FindByTypeValueResponse{Ranges: ranges}
}

func (s *Server) handleReadByType(p att.ReadByTypeRequest) att.PDU {
	attrs := s.db.Range(p.StartHandle, p.EndHandle)
	var matched []*Attribute
	for _, a := range attrs {
		if a.Type.Equal(p.AttType) {
			matched = append(matched, a)
		}
	}
	if len(matched) == 0 {
		return att.NewErrorResponse(att.OpReadByTypeReq, p.StartHandle, att.ErrAttrNotFound)
	}

	mtu := s.mtuValue()
	var elemLen int
	var out []att.AttributeData
	for _, a := range matched {
		if code := s.checkRead(a); code != 0 {
			if len(out) == 0 {
				return att.NewErrorResponse(att.OpReadByTypeReq, a.Handle, att.ErrorCode(code))
			}
			break
		}
		val, code := s.readValue(a)
		if code != 0 {
			if len(out) == 0 {
				return att.NewErrorResponse(att.OpReadByTypeReq, a.Handle, att.ErrorCode(code))
			}
			break
		}
		maxValLen := mtu - 1 - 2
		if len(val) > maxValLen {
			val = val[:maxValLen]
		}
		thisLen := 2 + len(val)
		if elemLen == 0 {
			elemLen = thisLen
		} else if thisLen != elemLen {
			break
		}
		out = append(out, att.AttributeData{Handle: a.Handle, Value: val})
	}
	return att.ReadByTypeResponse{ElementLength: uint8(elemLen), Attributes: out}
}

func (s *Server) handleReadByGroupType(p att.ReadByGroupTypeRequest) att.PDU {
	if !p.GroupType.Equal(UUIDPrimaryService) && !p.GroupType.Equal(UUIDSecondaryService) {
		return att.NewErrorResponse(att.OpReadByGroupReq, p.StartHandle, att.ErrUnsupportedGroupType)
	}
	var out []att.AttributeData
	elemLen := 0
	for _, svc := range s.db.Services() {
		if svc.startHandle < p.StartHandle || svc.startHandle > p.EndHandle {
			continue
		}
		declType := UUIDPrimaryService
		if svc.Secondary {
			declType = UUIDSecondaryService
		}
		if !declType.Equal(p.GroupType) {
			continue
		}
		val := svc.UUID.Bytes()
		thisLen := 4 + len(val)
		if elemLen == 0 {
			elemLen = thisLen
		} else if thisLen != elemLen {
			break
		}
		out = append(out, att.AttributeData{Handle: svc.startHandle, EndGroup: svc.endHandle, Value: val})
	}
	if len(out) == 0 {
		return att.NewErrorResponse(att.OpReadByGroupReq, p.StartHandle, att.ErrAttrNotFound)
	}
	return att.ReadByGroupTypeResponse{ElementLength: uint8(elemLen), Attributes: out}
}

func (s *Server) handleRead(handle uint16, offset uint16, reqOp att.Opcode, wrap func([]byte) att.PDU) att.PDU {
	a, ok := s.db.Attr(handle)
	if !ok {
		return att.NewErrorResponse(reqOp, handle, att.ErrInvalidHandle)
	}
	if code := s.checkRead(a); code != 0 {
		return att.NewErrorResponse(reqOp, handle, att.ErrorCode(code))
	}
	val, code := s.readValue(a)
	if code != 0 {
		return att.NewErrorResponse(reqOp, handle, att.ErrorCode(code))
	}
	if a.Type.Equal(UUIDClientCharConfig) {
		s.cccdMu.Lock()
		if bits, ok := s.cccd[handle]; ok {
			val = []byte{byte(bits), byte(bits >> 8)}
		}
		s.cccdMu.Unlock()
	}
	if int(offset) > len(val) {
		return att.NewErrorResponse(reqOp, handle, att.ErrInvalidOffset)
	}
	return wrap(val[offset:])
}

func (s *Server) readValue(a *Attribute) ([]byte, ErrorCode) {
	if a.ReadFunc != nil {
		return a.ReadFunc()
	}
	return a.Value, 0
}

func (s *Server) checkRead(a *Attribute) ErrorCode {
	if !a.Perm.Read {
		return uint8(att.ErrReadNotPermitted)
	}
	if a.Perm.ReadRequiresAuthentication && !s.security.Authenticated() {
		return uint8(att.ErrInsufficientAuthn)
	}
	if a.Perm.ReadRequiresEncryption && !s.security.Encrypted() {
		return uint8(att.ErrInsufficientEnc)
	}
	return 0
}

func (s *Server) checkWrite(a *Attribute) ErrorCode {
	if !a.Perm.Write {
		return uint8(att.ErrWriteNotPermitted)
	}
	if a.Perm.WriteRequiresAuthentication && !s.security.Authenticated() {
		return uint8(att.ErrInsufficientAuthn)
	}
	if a.Perm.WriteRequiresEncryption && !s.security.Encrypted() {
		return uint8(att.ErrInsufficientEnc)
	}
	return 0
}

func (s *Server) handleWrite(handle uint16, value []byte, reqOp att.Opcode, wantResp bool) att.PDU {
	a, ok := s.db.Attr(handle)
	if !ok {
		if wantResp {
			return att.NewErrorResponse(reqOp, handle, att.ErrInvalidHandle)
		}
		return nil
	}
	if code := s.checkWrite(a); code != 0 {
		if wantResp {
			return att.NewErrorResponse(reqOp, handle, att.ErrorCode(code))
		}
		return nil
	}

	if a.Type.Equal(UUIDClientCharConfig) {
		if len(value) != 2 {
			if wantResp {
				return att.NewErrorResponse(reqOp, handle, att.ErrInvalidAttrValueLen)
			}
			return nil
		}
		bits := uint16(value[0]) | uint16(value[1])<<8
		notify := bits&CCCDNotificationEnable != 0
		indicate := bits&CCCDIndicationEnable != 0
		if s.onConfigChange != nil && !s.onConfigChange(handle, notify, indicate) {
			if wantResp {
				return att.NewErrorResponse(reqOp, handle, att.ErrWriteNotPermitted)
			}
			return nil
		}
		s.cccdMu.Lock()
		s.cccd[handle] = bits
		s.cccdMu.Unlock()
		if wantResp {
			return att.WriteResponse{}
		}
		return nil
	}

	var code ErrorCode
	if a.WriteFunc != nil {
		code = a.WriteFunc(value)
	} else {
		a.Value = value
	}
	if code != 0 {
		if wantResp {
			return att.NewErrorResponse(reqOp, handle, att.ErrorCode(code))
		}
		return nil
	}
	if wantResp {
		return att.WriteResponse{}
	}
	return nil
}

func (s *Server) handlePrepareWrite(p att.PrepareWriteRequest) att.PDU {
	a, ok := s.db.Attr(p.Handle)
	if !ok {
		return att.NewErrorResponse(att.OpPrepWriteReq, p.Handle, att.ErrInvalidHandle)
	}
	if code := s.checkWrite(a); code != 0 {
		return att.NewErrorResponse(att.OpPrepWriteReq, p.Handle, att.ErrorCode(code))
	}
	s.prepareMu.Lock()
	if len(s.prepared) >= 64 {
		s.prepareMu.Unlock()
		return att.NewErrorResponse(att.OpPrepWriteReq, p.Handle, att.ErrPrepareQueueFull)
	}
	s.prepared = append(s.prepared, preparedWrite{handle: p.Handle, offset: p.Offset, value: append([]byte(nil), p.Value...)})
	s.prepareMu.Unlock()
	return att.PrepareWriteResponse{Handle: p.Handle, Offset: p.Offset, Value: p.Value}
}

func (s *Server) handleExecuteWrite(p att.ExecuteWriteRequest) att.PDU {
	s.prepareMu.Lock()
	queued := s.prepared
	s.prepared = nil
	s.prepareMu.Unlock()

	if p.Flags == att.ExecuteWriteCancel {
		return att.ExecuteWriteResponse{}
	}

	byHandle := map[uint16][]byte{}
	for _, pw := range queued {
		buf := byHandle[pw.handle]
		need := int(pw.offset) + len(pw.value)
		if need > len(buf) {
			grown := make([]byte, need)
			copy(grown, buf)
			buf = grown
		}
		copy(buf[pw.offset:], pw.value)
		byHandle[pw.handle] = buf
	}
	for handle, value := range byHandle {
		if resp := s.handleWrite(handle, value, att.OpExecWriteReq, true); resp != nil {
			if _, ok := resp.(att.WriteResponse); !ok {
				return resp
			}
		}
	}
	return att.ExecuteWriteResponse{}
}

// Notify sends a Handle-Value-Notification for handle with no acknowledgment.
func (s *Server) Notify(handle uint16, value []byte) error {
	return s.ch.Write(att.HandleValueNotification{Handle: handle, Value: value}.Marshal())
}

// Indicate sends a Handle-Value-Indication and blocks until the peer
// confirms or indicationTimeout elapses, per spec §4.4's one-at-a-time
// indication rule. After a timeout the indication stays pending: the link
// is treated as unresponsive and later Indicate calls fail with a STATE
// error until a (late) confirmation arrives.
func (s *Server) Indicate(handle uint16, value []byte) error {
	s.indicateMu.Lock()
	if s.indicatePend != nil {
		s.indicateMu.Unlock()
		return codec.NewError(codec.KindState, "Server.Indicate", "indication already in flight", nil)
	}
	pend := make(chan struct{})
	s.indicatePend = pend
	s.indicateMu.Unlock()

	if err := s.ch.Write(att.HandleValueIndication{Handle: handle, Value: value}.Marshal()); err != nil {
		s.indicateMu.Lock()
		s.indicatePend = nil
		s.indicateMu.Unlock()
		return err
	}

	select {
	case <-pend:
		return nil
	case <-time.After(indicationTimeout):
		return codec.NewError(codec.KindTimeout, "Server.Indicate", "no confirmation within window", nil)
	}
}

// NotifyEnabled reports whether handle's CCCD currently has notifications or
// indications enabled.
func (s *Server) NotifyEnabled(cccdHandle uint16) (notify, indicate bool) {
	s.cccdMu.Lock()
	defer s.cccdMu.Unlock()
	bits := s.cccd[cccdHandle]
	return bits&CCCDNotificationEnable != 0, bits&CCCDIndicationEnable != 0
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
