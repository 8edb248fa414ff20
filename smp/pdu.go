package smp

import "github.com/nimbusvale/directble/codec"

// PDU is implemented by every SMP packet type.
type PDU interface {
	Code() Code
	Marshal() []byte
}

// Decode dispatches on the leading code byte.
func Decode(b []byte) (PDU, error) {
	if len(b) < 1 {
		return nil, codec.NewError(codec.KindProtocol, "smp.Decode", "empty PDU", nil)
	}
	code := Code(b[0])
	body := b[1:]
	switch code {
	case CodePairingRequest:
		return unmarshalPairingReqResp(body, true)
	case CodePairingResponse:
		return unmarshalPairingReqResp(body, false)
	case CodePairingConfirm:
		return unmarshalValue16(body, CodePairingConfirm)
	case CodePairingRandom:
		return unmarshalValue16(body, CodePairingRandom)
	case CodePairingFailed:
		return unmarshalPairingFailed(body)
	case CodeEncryptionInformation:
		return unmarshalValue16(body, CodeEncryptionInformation)
	case CodeMasterIdentification:
		return unmarshalMasterIdentification(body)
	case CodeIdentityInformation:
		return unmarshalValue16(body, CodeIdentityInformation)
	case CodeIdentityAddrInfo:
		return unmarshalIdentityAddrInfo(body)
	case CodeSigningInformation:
		return unmarshalCSRK(body)
	case CodeSecurityRequest:
		return unmarshalSecurityRequest(body)
	case CodePublicKey:
		return unmarshalPublicKey(body)
	case CodeDHKeyCheck:
		return unmarshalValue16(body, CodeDHKeyCheck)
	case CodeKeypressNotification:
		return unmarshalKeypress(body)
	default:
		return nil, codec.NewError(codec.KindProtocol, "smp.Decode", "unknown code", nil)
	}
}

// PairingRequest/PairingResponse carry the feature exchange, per spec §4.5.
type PairingRequest struct {
	IOCapability     IOCapability
	OOBDataPresent   uint8
	AuthReq          uint8
	MaxEncKeySize    uint8
	InitiatorKeyDist uint8
	ResponderKeyDist uint8
}

func (p PairingRequest) Code() Code { return CodePairingRequest }
func (p PairingRequest) Marshal() []byte {
	return marshalReqResp(byte(CodePairingRequest), p.IOCapability, p.OOBDataPresent, p.AuthReq, p.MaxEncKeySize, p.InitiatorKeyDist, p.ResponderKeyDist)
}

type PairingResponse struct {
	IOCapability     IOCapability
	OOBDataPresent   uint8
	AuthReq          uint8
	MaxEncKeySize    uint8
	InitiatorKeyDist uint8
	ResponderKeyDist uint8
}

func (p PairingResponse) Code() Code { return CodePairingResponse }
func (p PairingResponse) Marshal() []byte {
	return marshalReqResp(byte(CodePairingResponse), p.IOCapability, p.OOBDataPresent, p.AuthReq, p.MaxEncKeySize, p.InitiatorKeyDist, p.ResponderKeyDist)
}

func marshalReqResp(code byte, io IOCapability, oob, authReq, keySize, initKeys, respKeys uint8) []byte {
	w := codec.NewWriter(7)
	w.PutUint8(code)
	w.PutUint8(byte(io))
	w.PutUint8(oob)
	w.PutUint8(authReq)
	w.PutUint8(keySize)
	w.PutUint8(initKeys)
	w.PutUint8(respKeys)
	return w.Bytes()
}

func unmarshalPairingReqResp(b []byte, isReq bool) (PDU, error) {
	r := codec.NewReader(b)
	io := IOCapability(r.Uint8())
	oob := r.Uint8()
	authReq := r.Uint8()
	keySize := r.Uint8()
	initKeys := r.Uint8()
	respKeys := r.Uint8()
	if err := r.Err(); err != nil {
		return nil, err
	}
	if isReq {
		return PairingRequest{io, oob, authReq, keySize, initKeys, respKeys}, nil
	}
	return PairingResponse{io, oob, authReq, keySize, initKeys, respKeys}, nil
}

// value16 is the shared shape of every SMP PDU that carries one 16-byte
// field: Pairing-Confirm, Pairing-Random, Encryption-Information, and
// DHKey-Check (which in SC carries a 16-byte MacKey-derived check value).
type value16 struct {
	code  Code
	Value [16]byte
}

func (v value16) Code() Code { return v.code }
func (v value16) Marshal() []byte {
	w := codec.NewWriter(17)
	w.PutUint8(byte(v.code))
	w.PutBytes(v.Value[:])
	return w.Bytes()
}

func unmarshalValue16(b []byte, code Code) (PDU, error) {
	r := codec.NewReader(b)
	raw := r.Bytes(16)
	if err := r.Err(); err != nil {
		return nil, err
	}
	var v value16
	v.code = code
	copy(v.Value[:], raw)
	return v, nil
}

// PairingConfirm/PairingRandom/EncryptionInformation/DHKeyCheckValue are the
// named forms of value16 used by callers outside this file.
func NewPairingConfirm(v [16]byte) PDU           { return value16{code: CodePairingConfirm, Value: v} }
func NewPairingRandom(v [16]byte) PDU            { return value16{code: CodePairingRandom, Value: v} }
func NewEncryptionInformation(ltk [16]byte) PDU  { return value16{code: CodeEncryptionInformation, Value: ltk} }
func NewDHKeyCheck(v [16]byte) PDU               { return value16{code: CodeDHKeyCheck, Value: v} }

// AsValue16 extracts the 16-byte payload common to several PDU shapes.
func AsValue16(p PDU) ([16]byte, bool) {
	v, ok := p.(value16)
	return v.Value, ok
}

// PairingFailed reports a one-byte abort reason, per spec §4.5.
type PairingFailed struct{ Reason FailReason }

func (p PairingFailed) Code() Code    { return CodePairingFailed }
func (p PairingFailed) Marshal() []byte { return []byte{byte(CodePairingFailed), byte(p.Reason)} }

func unmarshalPairingFailed(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	reason := r.Uint8()
	return PairingFailed{Reason: FailReason(reason)}, r.Err()
}

// MasterIdentification carries EDIV + Rand for the LTK just sent via
// Encryption-Information, per spec §4.5's key distribution phase.
type MasterIdentification struct {
	EDIV uint16
	Rand [8]byte
}

func (p MasterIdentification) Code() Code { return CodeMasterIdentification }
func (p MasterIdentification) Marshal() []byte {
	w := codec.NewWriter(11)
	w.PutUint8(byte(CodeMasterIdentification))
	w.PutUint16(p.EDIV)
	w.PutBytes(p.Rand[:])
	return w.Bytes()
}

func unmarshalMasterIdentification(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	ediv := r.Uint16()
	rand := r.Bytes(8)
	if err := r.Err(); err != nil {
		return nil, err
	}
	p := MasterIdentification{EDIV: ediv}
	copy(p.Rand[:], rand)
	return p, nil
}

// IdentityAddressInformation carries the peer's identity address, resolving
// an RPA once bonding completes.
type IdentityAddressInformation struct {
	AddrType uint8
	Addr     [6]byte
}

func (p IdentityAddressInformation) Code() Code { return CodeIdentityAddrInfo }
func (p IdentityAddressInformation) Marshal() []byte {
	w := codec.NewWriter(8)
	w.PutUint8(byte(CodeIdentityAddrInfo))
	w.PutUint8(p.AddrType)
	w.PutBytes(p.Addr[:])
	return w.Bytes()
}

func unmarshalIdentityAddrInfo(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	addrType := r.Uint8()
	addr := r.Bytes(6)
	if err := r.Err(); err != nil {
		return nil, err
	}
	p := IdentityAddressInformation{AddrType: addrType}
	copy(p.Addr[:], addr)
	return p, nil
}

// SigningInformation carries the CSRK used to verify ATT Signed-Write-Command
// payloads, per spec §4.3/§4.5.
type SigningInformation struct{ CSRK [16]byte }

func (p SigningInformation) Code() Code { return CodeSigningInformation }
func (p SigningInformation) Marshal() []byte {
	w := codec.NewWriter(17)
	w.PutUint8(byte(CodeSigningInformation))
	w.PutBytes(p.CSRK[:])
	return w.Bytes()
}

func unmarshalCSRK(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	raw := r.Bytes(16)
	if err := r.Err(); err != nil {
		return nil, err
	}
	var p SigningInformation
	copy(p.CSRK[:], raw)
	return p, nil
}

// SecurityRequest is sent by a peripheral to ask the central to initiate
// pairing or encryption, per spec §4.5.
type SecurityRequest struct{ AuthReq uint8 }

func (p SecurityRequest) Code() Code    { return CodeSecurityRequest }
func (p SecurityRequest) Marshal() []byte { return []byte{byte(CodeSecurityRequest), p.AuthReq} }

func unmarshalSecurityRequest(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	return SecurityRequest{AuthReq: r.Uint8()}, r.Err()
}

// PublicKey carries the sender's P-256 public key X/Y coordinates for LE
// Secure Connections, per spec §4.5.
type PublicKey struct {
	X [32]byte
	Y [32]byte
}

func (p PublicKey) Code() Code { return CodePublicKey }
func (p PublicKey) Marshal() []byte {
	w := codec.NewWriter(65)
	w.PutUint8(byte(CodePublicKey))
	w.PutBytes(p.X[:])
	w.PutBytes(p.Y[:])
	return w.Bytes()
}

func unmarshalPublicKey(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	x := r.Bytes(32)
	y := r.Bytes(32)
	if err := r.Err(); err != nil {
		return nil, err
	}
	var p PublicKey
	copy(p.X[:], x)
	copy(p.Y[:], y)
	return p, nil
}

// KeypressNotification reports passkey-entry UI events during the
// Keyboard-only/Keyboard-Display IO-capability flow.
type KeypressNotification struct{ Type uint8 }

func (p KeypressNotification) Code() Code { return CodeKeypressNotification }
func (p KeypressNotification) Marshal() []byte {
	return []byte{byte(CodeKeypressNotification), p.Type}
}

func unmarshalKeypress(b []byte) (PDU, error) {
	r := codec.NewReader(b)
	return KeypressNotification{Type: r.Uint8()}, r.Err()
}
