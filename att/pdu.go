package att

import (
	"github.com/nimbusvale/directble/codec"
)

// PDU is implemented by every typed ATT request/response/command. Each is a
// tagged variant with its own payload struct (spec §9: tagged sum types
// instead of a PDU class hierarchy), sharing only the Opcode()/Marshal()
// shape.
type PDU interface {
	Opcode() Opcode
	Marshal() []byte
}

// Decode dispatches on the leading opcode byte and returns the typed PDU.
// decode(encode(P)) == P and encode(P).len == declared_len(P) are the
// round-trip properties spec §8 exercises on every variant.
func Decode(b []byte) (PDU, error) {
	if len(b) < 1 {
		return nil, codec.NewError(codec.KindProtocol, "att.Decode", "empty PDU", nil)
	}
	op := Opcode(b[0])
	body := b[1:]
	switch op {
	case OpError:
		return unmarshalErrorResponse(body)
	case OpMTUReq:
		return unmarshalMTUReq(body)
	case OpMTUResp:
		return unmarshalMTUResp(body)
	case OpFindInfoReq:
		return unmarshalFindInfoReq(body)
	case OpFindInfoResp:
		return unmarshalFindInfoResp(body)
	case OpFindByTypeReq:
		return unmarshalFindByTypeReq(body)
	case OpFindByTypeResp:
		return unmarshalFindByTypeResp(body)
	case OpReadByTypeReq:
		return unmarshalReadByTypeReq(body)
	case OpReadByTypeResp:
		return unmarshalReadByTypeResp(body)
	case OpReadReq:
		return unmarshalReadReq(body)
	case OpReadResp:
		return unmarshalReadResp(body)
	case OpReadBlobReq:
		return unmarshalReadBlobReq(body)
	case OpReadBlobResp:
		return unmarshalReadBlobResp(body)
	case OpReadByGroupReq:
		return unmarshalReadByGroupReq(body)
	case OpReadByGroupResp:
		return unmarshalReadByGroupResp(body)
	case OpWriteReq:
		return unmarshalWriteReq(body)
	case OpWriteResp:
		return WriteResponse{}, nil
	case OpWriteCmd:
		return unmarshalWriteCmd(body)
	case OpSignedWriteCmd:
		return unmarshalSignedWriteCmd(body)
	case OpPrepWriteReq:
		return unmarshalPrepareWriteReq(body)
	case OpPrepWriteResp:
		return unmarshalPrepareWriteResp(body)
	case OpExecWriteReq:
		return unmarshalExecuteWriteReq(body)
	case OpExecWriteResp:
		return ExecuteWriteResponse{}, nil
	case OpHandleNotify:
		return unmarshalHandleValueNotification(body)
	case OpHandleInd:
		return unmarshalHandleValueIndication(body)
	case OpHandleCnf:
		return HandleValueConfirmation{}, nil
	default:
		return UnknownPDU{Op: op, Body: append([]byte(nil), body...)}, nil
	}
}

// UnknownPDU preserves an unrecognized opcode's raw body so the GATT server
// can respond Request-Not-Supported without losing information about what
// arrived, per spec §4.4.
type UnknownPDU struct {
	Op   Opcode
	Body []byte
}

func (p UnknownPDU) Opcode() Opcode { return p.Op }
func (p UnknownPDU) Marshal() []byte {
	return append([]byte{byte(p.Op)}, p.Body...)
}

// ErrorResponse carries {reqOpcode, attrHandle, errorCode} per spec §4.3.
type ErrorResponse struct {
	ReqOpcode Opcode
	Handle    uint16
	Code      ErrorCode
}

func NewErrorResponse(req Opcode, handle uint16, code ErrorCode) ErrorResponse {
	return ErrorResponse{ReqOpcode: req, Handle: handle, Code: code}
}

// Error lets an ErrorResponse be returned directly as a Go error, so a
// client's request/response plumbing doesn't need a separate wrapper type.
func (p ErrorResponse) Error() string {
	return "att: " + errorCodeName(p.Code) + " for opcode " + opcodeName(p.ReqOpcode)
}

func (p ErrorResponse) Opcode() Opcode { return OpError }
func (p ErrorResponse) Marshal() []byte {
	w := codec.NewWriter(5)
	w.PutUint8(byte(OpError))
	w.PutUint8(byte(p.ReqOpcode))
	w.PutUint16(p.Handle)
	w.PutUint8(byte(p.Code))
	return w.Bytes()
}

func unmarshalErrorResponse(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	p := ErrorResponse{ReqOpcode: Opcode(r.Uint8()), Handle: r.Uint16(), Code: ErrorCode(r.Uint8())}
	return p, r.Err()
}

// ExchangeMTURequest/Response negotiate the ATT MTU, per spec §4.4.
type ExchangeMTURequest struct{ ClientRxMTU uint16 }

func (p ExchangeMTURequest) Opcode() Opcode { return OpMTUReq }
func (p ExchangeMTURequest) Marshal() []byte {
	w := codec.NewWriter(3)
	w.PutUint8(byte(OpMTUReq))
	w.PutUint16(p.ClientRxMTU)
	return w.Bytes()
}
func unmarshalMTUReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	p := ExchangeMTURequest{ClientRxMTU: r.Uint16()}
	return p, r.Err()
}

type ExchangeMTUResponse struct{ ServerRxMTU uint16 }

func (p ExchangeMTUResponse) Opcode() Opcode { return OpMTUResp }
func (p ExchangeMTUResponse) Marshal() []byte {
	w := codec.NewWriter(3)
	w.PutUint8(byte(OpMTUResp))
	w.PutUint16(p.ServerRxMTU)
	return w.Bytes()
}
func unmarshalMTUResp(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	p := ExchangeMTUResponse{ServerRxMTU: r.Uint16()}
	return p, r.Err()
}

// FindInformationRequest/Response discover handle/UUID pairs in a range.
type FindInformationRequest struct{ StartHandle, EndHandle uint16 }

func (p FindInformationRequest) Opcode() Opcode { return OpFindInfoReq }
func (p FindInformationRequest) Marshal() []byte {
	w := codec.NewWriter(5)
	w.PutUint8(byte(OpFindInfoReq))
	w.PutUint16(p.StartHandle)
	w.PutUint16(p.EndHandle)
	return w.Bytes()
}
func unmarshalFindInfoReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	p := FindInformationRequest{StartHandle: r.Uint16(), EndHandle: r.Uint16()}
	return p, r.Err()
}

// HandleUUID is one entry of a Find-Information response.
type HandleUUID struct {
	Handle uint16
	UUID   codec.UUID
}

type FindInformationResponse struct {
	Format uint8 // 1: 16-bit UUIDs, 2: 128-bit UUIDs
	Pairs  []HandleUUID
}

func (p FindInformationResponse) Opcode() Opcode { return OpFindInfoResp }
func (p FindInformationResponse) Marshal() []byte {
	w := codec.NewWriter(2 + len(p.Pairs)*18)
	w.PutUint8(byte(OpFindInfoResp))
	w.PutUint8(p.Format)
	for _, hu := range p.Pairs {
		w.PutUint16(hu.Handle)
		w.PutUUID(hu.UUID)
	}
	return w.Bytes()
}
func unmarshalFindInfoResp(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	format := r.Uint8()
	width := 2
	if format == 2 {
		width = 16
	}
	var pairs []HandleUUID
	for r.Remaining() >= 2+width {
		h := r.Uint16()
		u := r.UUID(width)
		pairs = append(pairs, HandleUUID{Handle: h, UUID: u})
	}
	return FindInformationResponse{Format: format, Pairs: pairs}, r.Err()
}

// FindByTypeValueRequest/Response locate attributes by type+value.
type FindByTypeValueRequest struct {
	StartHandle, EndHandle uint16
	AttType                uint16
	AttValue               []byte
}

func (p FindByTypeValueRequest) Opcode() Opcode { return OpFindByTypeReq }
func (p FindByTypeValueRequest) Marshal() []byte {
	w := codec.NewWriter(7 + len(p.AttValue))
	w.PutUint8(byte(OpFindByTypeReq))
	w.PutUint16(p.StartHandle)
	w.PutUint16(p.EndHandle)
	w.PutUint16(p.AttType)
	w.PutBytes(p.AttValue)
	return w.Bytes()
}
func unmarshalFindByTypeReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	p := FindByTypeValueRequest{StartHandle: r.Uint16(), EndHandle: r.Uint16(), AttType: r.Uint16()}
	p.AttValue = r.Rest()
	return p, r.Err()
}

type HandleRange struct{ Found, GroupEnd uint16 }

type FindByTypeValueResponse struct{ Ranges []HandleRange }

func (p FindByTypeValueResponse) Opcode() Opcode { return OpFindByTypeResp }
func (p FindByTypeValueResponse) Marshal() []byte {
	w := codec.NewWriter(1 + 4*len(p.Ranges))
	w.PutUint8(byte(OpFindByTypeResp))
	for _, r := range p.Ranges {
		w.PutUint16(r.Found)
		w.PutUint16(r.GroupEnd)
	}
	return w.Bytes()
}
func unmarshalFindByTypeResp(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	var ranges []HandleRange
	for r.Remaining() >= 4 {
		ranges = append(ranges, HandleRange{Found: r.Uint16(), GroupEnd: r.Uint16()})
	}
	return FindByTypeValueResponse{Ranges: ranges}, r.Err()
}

// ReadByTypeRequest/Response read all attributes of a given type in a range.
type ReadByTypeRequest struct {
	StartHandle, EndHandle uint16
	AttType                codec.UUID
}

func (p ReadByTypeRequest) Opcode() Opcode { return OpReadByTypeReq }
func (p ReadByTypeRequest) Marshal() []byte {
	w := codec.NewWriter(5 + p.AttType.Len())
	w.PutUint8(byte(OpReadByTypeReq))
	w.PutUint16(p.StartHandle)
	w.PutUint16(p.EndHandle)
	w.PutUUID(p.AttType)
	return w.Bytes()
}
func unmarshalReadByTypeReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	start, end := r.Uint16(), r.Uint16()
	width := r.Remaining()
	u := r.UUID(width)
	return ReadByTypeRequest{StartHandle: start, EndHandle: end, AttType: u}, r.Err()
}

// AttributeData is one {handle, value} entry in a Read-By-Type or
// Read-By-Group-Type response.
type AttributeData struct {
	Handle   uint16
	EndGroup uint16 // only meaningful for Read-By-Group-Type
	Value    []byte
}

type ReadByTypeResponse struct {
	ElementLength uint8
	Attributes    []AttributeData
}

func (p ReadByTypeResponse) Opcode() Opcode { return OpReadByTypeResp }
func (p ReadByTypeResponse) Marshal() []byte {
	w := codec.NewWriter(2 + len(p.Attributes)*int(p.ElementLength))
	w.PutUint8(byte(OpReadByTypeResp))
	w.PutUint8(p.ElementLength)
	for _, a := range p.Attributes {
		w.PutUint16(a.Handle)
		w.PutBytes(a.Value)
	}
	return w.Bytes()
}
func unmarshalReadByTypeResp(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	elen := r.Uint8()
	var attrs []AttributeData
	for r.Remaining() >= int(elen) && elen >= 2 {
		h := r.Uint16()
		v := r.Bytes(int(elen) - 2)
		attrs = append(attrs, AttributeData{Handle: h, Value: v})
	}
	return ReadByTypeResponse{ElementLength: elen, Attributes: attrs}, r.Err()
}

// ReadRequest/Response read a single attribute's full value (<= MTU-1).
type ReadRequest struct{ Handle uint16 }

func (p ReadRequest) Opcode() Opcode { return OpReadReq }
func (p ReadRequest) Marshal() []byte {
	w := codec.NewWriter(3)
	w.PutUint8(byte(OpReadReq))
	w.PutUint16(p.Handle)
	return w.Bytes()
}
func unmarshalReadReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	return ReadRequest{Handle: r.Uint16()}, r.Err()
}

type ReadResponse struct{ Value []byte }

func (p ReadResponse) Opcode() Opcode { return OpReadResp }
func (p ReadResponse) Marshal() []byte {
	w := codec.NewWriter(1 + len(p.Value))
	w.PutUint8(byte(OpReadResp))
	w.PutBytes(p.Value)
	return w.Bytes()
}
func unmarshalReadResp(b []byte) (PDU, error) { return ReadResponse{Value: append([]byte(nil), b...)}, nil }

// ReadBlobRequest/Response continue reading a value past MTU-1, by offset.
type ReadBlobRequest struct {
	Handle uint16
	Offset uint16
}

func (p ReadBlobRequest) Opcode() Opcode { return OpReadBlobReq }
func (p ReadBlobRequest) Marshal() []byte {
	w := codec.NewWriter(5)
	w.PutUint8(byte(OpReadBlobReq))
	w.PutUint16(p.Handle)
	w.PutUint16(p.Offset)
	return w.Bytes()
}
func unmarshalReadBlobReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	return ReadBlobRequest{Handle: r.Uint16(), Offset: r.Uint16()}, r.Err()
}

type ReadBlobResponse struct{ Value []byte }

func (p ReadBlobResponse) Opcode() Opcode { return OpReadBlobResp }
func (p ReadBlobResponse) Marshal() []byte {
	w := codec.NewWriter(1 + len(p.Value))
	w.PutUint8(byte(OpReadBlobResp))
	w.PutBytes(p.Value)
	return w.Bytes()
}
func unmarshalReadBlobResp(b []byte) (PDU, error) {
	return ReadBlobResponse{Value: append([]byte(nil), b...)}, nil
}

// ReadByGroupTypeRequest/Response enumerate grouping attributes (used for
// Primary/Secondary Service discovery).
type ReadByGroupTypeRequest struct {
	StartHandle, EndHandle uint16
	GroupType              codec.UUID
}

func (p ReadByGroupTypeRequest) Opcode() Opcode { return OpReadByGroupReq }
func (p ReadByGroupTypeRequest) Marshal() []byte {
	w := codec.NewWriter(5 + p.GroupType.Len())
	w.PutUint8(byte(OpReadByGroupReq))
	w.PutUint16(p.StartHandle)
	w.PutUint16(p.EndHandle)
	w.PutUUID(p.GroupType)
	return w.Bytes()
}
func unmarshalReadByGroupReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	start, end := r.Uint16(), r.Uint16()
	width := r.Remaining()
	u := r.UUID(width)
	return ReadByGroupTypeRequest{StartHandle: start, EndHandle: end, GroupType: u}, r.Err()
}

type ReadByGroupTypeResponse struct {
	ElementLength uint8
	Attributes    []AttributeData
}

func (p ReadByGroupTypeResponse) Opcode() Opcode { return OpReadByGroupResp }
func (p ReadByGroupTypeResponse) Marshal() []byte {
	w := codec.NewWriter(2 + len(p.Attributes)*int(p.ElementLength))
	w.PutUint8(byte(OpReadByGroupResp))
	w.PutUint8(p.ElementLength)
	for _, a := range p.Attributes {
		w.PutUint16(a.Handle)
		w.PutUint16(a.EndGroup)
		w.PutBytes(a.Value)
	}
	return w.Bytes()
}
func unmarshalReadByGroupResp(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	elen := r.Uint8()
	var attrs []AttributeData
	for r.Remaining() >= int(elen) && elen >= 4 {
		h := r.Uint16()
		end := r.Uint16()
		v := r.Bytes(int(elen) - 4)
		attrs = append(attrs, AttributeData{Handle: h, EndGroup: end, Value: v})
	}
	return ReadByGroupTypeResponse{ElementLength: elen, Attributes: attrs}, r.Err()
}

// WriteRequest/Response, WriteCommand: write-with-ack vs write-without-ack.
type WriteRequest struct {
	Handle uint16
	Value  []byte
}

func (p WriteRequest) Opcode() Opcode { return OpWriteReq }
func (p WriteRequest) Marshal() []byte {
	w := codec.NewWriter(3 + len(p.Value))
	w.PutUint8(byte(OpWriteReq))
	w.PutUint16(p.Handle)
	w.PutBytes(p.Value)
	return w.Bytes()
}
func unmarshalWriteReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	h := r.Uint16()
	v := r.Rest()
	return WriteRequest{Handle: h, Value: v}, r.Err()
}

type WriteResponse struct{}

func (p WriteResponse) Opcode() Opcode  { return OpWriteResp }
func (p WriteResponse) Marshal() []byte { return []byte{byte(OpWriteResp)} }

type WriteCommand struct {
	Handle uint16
	Value  []byte
}

func (p WriteCommand) Opcode() Opcode { return OpWriteCmd }
func (p WriteCommand) Marshal() []byte {
	w := codec.NewWriter(3 + len(p.Value))
	w.PutUint8(byte(OpWriteCmd))
	w.PutUint16(p.Handle)
	w.PutBytes(p.Value)
	return w.Bytes()
}
func unmarshalWriteCmd(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	h := r.Uint16()
	v := r.Rest()
	return WriteCommand{Handle: h, Value: v}, r.Err()
}

// SignedWriteCommand carries a trailing 12-byte signature (4-byte sign
// counter + 8-byte truncated CMAC). The codec validates only the length;
// CSRK verification is delegated to a caller-supplied verifier, per spec
// §4.3.
type SignedWriteCommand struct {
	Handle      uint16
	Value       []byte
	SignCounter uint32
	MAC         [8]byte
}

func (p SignedWriteCommand) Opcode() Opcode { return OpSignedWriteCmd }
func (p SignedWriteCommand) Marshal() []byte {
	w := codec.NewWriter(3 + len(p.Value) + 12)
	w.PutUint8(byte(OpSignedWriteCmd))
	w.PutUint16(p.Handle)
	w.PutBytes(p.Value)
	w.PutUint32(p.SignCounter)
	w.PutBytes(p.MAC[:])
	return w.Bytes()
}
func unmarshalSignedWriteCmd(b []byte) (PDU, error) {
	if len(b) < 2+12 {
		return nil, codec.NewError(codec.KindProtocol, "SignedWriteCommand", "too short for trailing signature", nil)
	}
	r := codec.NewReader(b)
	h := r.Uint16()
	valueLen := r.Remaining() - 12
	v := r.Bytes(valueLen)
	counter := r.Uint32()
	mac := r.Bytes(8)
	p := SignedWriteCommand{Handle: h, Value: v, SignCounter: counter}
	copy(p.MAC[:], mac)
	return p, r.Err()
}

// SignedPayload returns the {handle || value} bytes a CSRK verifier signs
// over, excluding the trailing counter+MAC.
func (p SignedWriteCommand) SignedPayload() []byte {
	w := codec.NewWriter(2 + len(p.Value))
	w.PutUint16(p.Handle)
	w.PutBytes(p.Value)
	return w.Bytes()
}

// PrepareWriteRequest/Response and ExecuteWriteRequest/Response implement
// the long-write queue, per spec §4.4.
type PrepareWriteRequest struct {
	Handle uint16
	Offset uint16
	Value  []byte
}

func (p PrepareWriteRequest) Opcode() Opcode { return OpPrepWriteReq }
func (p PrepareWriteRequest) Marshal() []byte {
	w := codec.NewWriter(5 + len(p.Value))
	w.PutUint8(byte(OpPrepWriteReq))
	w.PutUint16(p.Handle)
	w.PutUint16(p.Offset)
	w.PutBytes(p.Value)
	return w.Bytes()
}
func unmarshalPrepareWriteReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	h := r.Uint16()
	off := r.Uint16()
	v := r.Rest()
	return PrepareWriteRequest{Handle: h, Offset: off, Value: v}, r.Err()
}

type PrepareWriteResponse struct {
	Handle uint16
	Offset uint16
	Value  []byte
}

func (p PrepareWriteResponse) Opcode() Opcode { return OpPrepWriteResp }
func (p PrepareWriteResponse) Marshal() []byte {
	w := codec.NewWriter(5 + len(p.Value))
	w.PutUint8(byte(OpPrepWriteResp))
	w.PutUint16(p.Handle)
	w.PutUint16(p.Offset)
	w.PutBytes(p.Value)
	return w.Bytes()
}
func unmarshalPrepareWriteResp(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	h := r.Uint16()
	off := r.Uint16()
	v := r.Rest()
	return PrepareWriteResponse{Handle: h, Offset: off, Value: v}, r.Err()
}

const (
	ExecuteWriteCancel uint8 = 0x00
	ExecuteWriteCommit uint8 = 0x01
)

type ExecuteWriteRequest struct{ Flags uint8 }

func (p ExecuteWriteRequest) Opcode() Opcode { return OpExecWriteReq }
func (p ExecuteWriteRequest) Marshal() []byte {
	return []byte{byte(OpExecWriteReq), p.Flags}
}
func unmarshalExecuteWriteReq(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	return ExecuteWriteRequest{Flags: r.Uint8()}, r.Err()
}

type ExecuteWriteResponse struct{}

func (p ExecuteWriteResponse) Opcode() Opcode  { return OpExecWriteResp }
func (p ExecuteWriteResponse) Marshal() []byte { return []byte{byte(OpExecWriteResp)} }

// HandleValueNotification/Indication/Confirmation implement the
// server-initiated pipeline of spec §4.4/§4.6.
type HandleValueNotification struct {
	Handle uint16
	Value  []byte
}

func (p HandleValueNotification) Opcode() Opcode { return OpHandleNotify }
func (p HandleValueNotification) Marshal() []byte {
	w := codec.NewWriter(3 + len(p.Value))
	w.PutUint8(byte(OpHandleNotify))
	w.PutUint16(p.Handle)
	w.PutBytes(p.Value)
	return w.Bytes()
}
func unmarshalHandleValueNotification(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	h := r.Uint16()
	v := r.Rest()
	return HandleValueNotification{Handle: h, Value: v}, r.Err()
}

type HandleValueIndication struct {
	Handle uint16
	Value  []byte
}

func (p HandleValueIndication) Opcode() Opcode { return OpHandleInd }
func (p HandleValueIndication) Marshal() []byte {
	w := codec.NewWriter(3 + len(p.Value))
	w.PutUint8(byte(OpHandleInd))
	w.PutUint16(p.Handle)
	w.PutBytes(p.Value)
	return w.Bytes()
}
func unmarshalHandleValueIndication(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	h := r.Uint16()
	v := r.Rest()
	return HandleValueIndication{Handle: h, Value: v}, r.Err()
}

type HandleValueConfirmation struct{}

func (p HandleValueConfirmation) Opcode() Opcode  { return OpHandleCnf }
func (p HandleValueConfirmation) Marshal() []byte { return []byte{byte(OpHandleCnf)} }
