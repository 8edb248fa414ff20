package att

import (
	"bytes"
	"testing"

	"github.com/nimbusvale/directble/codec"
)

// roundTrip checks decode(encode(P)) == P (via re-Marshal comparison) and
// that the marshaled length matches what the caller declares, per spec §8.
func roundTrip(t *testing.T, p PDU, wantLen int) {
	t.Helper()
	enc := p.Marshal()
	if wantLen >= 0 && len(enc) != wantLen {
		t.Fatalf("Marshal length = %d, want %d", len(enc), wantLen)
	}
	dec, err := Decode(enc)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	reenc := dec.Marshal()
	if !bytes.Equal(enc, reenc) {
		t.Fatalf("round trip mismatch:\n  orig  = % x\n  reenc = % x", enc, reenc)
	}
}

func TestErrorResponseRoundTrip(t *testing.T) {
	roundTrip(t, ErrorResponse{ReqOpcode: OpReadReq, Handle: 0x0012, Code: ErrInvalidHandle}, 5)
}

func TestExchangeMTURoundTrip(t *testing.T) {
	roundTrip(t, ExchangeMTURequest{ClientRxMTU: 247}, 3)
	roundTrip(t, ExchangeMTUResponse{ServerRxMTU: 185}, 3)
}

func TestFindInformationRoundTrip(t *testing.T) {
	roundTrip(t, FindInformationRequest{StartHandle: 1, EndHandle: 0xFFFF}, 5)

	resp := FindInformationResponse{
		Format: 1,
		Pairs: []HandleUUID{
			{Handle: 1, UUID: codec.UUID16(0x2800)},
			{Handle: 2, UUID: codec.UUID16(0x2803)},
		},
	}
	roundTrip(t, resp, 2+2*4)
}

func TestFindByTypeValueRoundTrip(t *testing.T) {
	roundTrip(t, FindByTypeValueRequest{StartHandle: 1, EndHandle: 0xFFFF, AttType: 0x2800, AttValue: []byte{0x0D, 0x18}}, -1)
	roundTrip(t, FindByTypeValueResponse{Ranges: []HandleRange{{Found: 1, GroupEnd: 5}}}, 5)
}

func TestReadByTypeRoundTrip(t *testing.T) {
	req := ReadByTypeRequest{StartHandle: 1, EndHandle: 0xFFFF, AttType: codec.UUID16(0x2803)}
	roundTrip(t, req, 7)

	resp := ReadByTypeResponse{
		ElementLength: 5,
		Attributes: []AttributeData{
			{Handle: 3, Value: []byte{0x02, 0x04, 0x00}},
		},
	}
	roundTrip(t, resp, 2+5)
}

func TestReadRoundTrip(t *testing.T) {
	roundTrip(t, ReadRequest{Handle: 0x0003}, 3)
	roundTrip(t, ReadResponse{Value: []byte{0xDE, 0xAD, 0xBE, 0xEF}}, 5)
}

func TestReadBlobRoundTrip(t *testing.T) {
	roundTrip(t, ReadBlobRequest{Handle: 0x0003, Offset: 22}, 5)
	roundTrip(t, ReadBlobResponse{Value: []byte{0x01, 0x02}}, 3)
}

func TestReadByGroupTypeRoundTrip(t *testing.T) {
	req := ReadByGroupTypeRequest{StartHandle: 1, EndHandle: 0xFFFF, GroupType: codec.UUID16(0x2800)}
	roundTrip(t, req, 7)

	resp := ReadByGroupTypeResponse{
		ElementLength: 6,
		Attributes: []AttributeData{
			{Handle: 1, EndGroup: 5, Value: []byte{0x0D, 0x18}},
		},
	}
	roundTrip(t, resp, 2+6)
}

func TestWriteRoundTrip(t *testing.T) {
	roundTrip(t, WriteRequest{Handle: 0x0010, Value: []byte{0x01}}, 4)
	roundTrip(t, WriteResponse{}, 1)
	roundTrip(t, WriteCommand{Handle: 0x0010, Value: []byte{0x01}}, 4)
}

func TestSignedWriteCommandRoundTrip(t *testing.T) {
	p := SignedWriteCommand{
		Handle:      0x0010,
		Value:       []byte{0x01, 0x02},
		SignCounter: 7,
		MAC:         [8]byte{1, 2, 3, 4, 5, 6, 7, 8},
	}
	roundTrip(t, p, 3+2+12)

	payload := p.SignedPayload()
	if len(payload) != 4 {
		t.Fatalf("SignedPayload length = %d, want 4", len(payload))
	}
}

func TestSignedWriteCommandTooShort(t *testing.T) {
	_, err := Decode([]byte{byte(OpSignedWriteCmd), 0x10, 0x00})
	if err == nil {
		t.Fatal("expected error for truncated signed write")
	}
}

func TestPrepareExecuteWriteRoundTrip(t *testing.T) {
	roundTrip(t, PrepareWriteRequest{Handle: 0x0010, Offset: 4, Value: []byte{0xAA, 0xBB}}, 7)
	roundTrip(t, PrepareWriteResponse{Handle: 0x0010, Offset: 4, Value: []byte{0xAA, 0xBB}}, 7)
	roundTrip(t, ExecuteWriteRequest{Flags: ExecuteWriteCommit}, 2)
	roundTrip(t, ExecuteWriteResponse{}, 1)
}

func TestHandleValueRoundTrip(t *testing.T) {
	roundTrip(t, HandleValueNotification{Handle: 0x0021, Value: []byte{0x64}}, 4)
	roundTrip(t, HandleValueIndication{Handle: 0x0021, Value: []byte{0x64}}, 4)
	roundTrip(t, HandleValueConfirmation{}, 1)
}

func TestDecodeUnknownOpcodePreservesBody(t *testing.T) {
	raw := []byte{0x99, 0x01, 0x02, 0x03}
	dec, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	u, ok := dec.(UnknownPDU)
	if !ok {
		t.Fatalf("want UnknownPDU, got %T", dec)
	}
	if u.Opcode() != Opcode(0x99) {
		t.Errorf("opcode = %x", u.Opcode())
	}
	if !bytes.Equal(dec.Marshal(), raw) {
		t.Errorf("re-marshal = % x, want % x", dec.Marshal(), raw)
	}
}

func TestDecodeEmptyFails(t *testing.T) {
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error decoding empty PDU")
	}
}
