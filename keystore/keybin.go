// Package keystore persists and loads the per-bond key material a
// completed pairing produces, as KeyBin files, one per (local adapter,
// remote identity) pair.
package keystore

import (
	"fmt"

	"github.com/nimbusvale/directble/codec"
)

var magic = [4]byte{'B', 'K', 'E', 'Y'}

const formatVersion uint16 = 1

// KeyMask bits select which fixed-size key blobs follow the header in a
// KeyBin file, per spec §6.
type KeyMask uint8

const (
	MaskLTKInit KeyMask = 1 << iota
	MaskLTKResp
	MaskIRK
	MaskCSRK
	MaskLinkKey
)

// LTKRecord is one side's Long-Term Key plus the EDIV/Rand pair needed to
// re-identify it during an Encryption-Request, per spec §3.
type LTKRecord struct {
	LTK                [16]byte
	EDIV               uint16
	Rand               [8]byte
	EncKeySize         uint8
	Authenticated      bool
	SecureConnections  bool
	ResponderRole      bool
}

func (r LTKRecord) marshal(w *codec.Writer) {
	w.PutBytes(r.LTK[:])
	w.PutUint16(r.EDIV)
	w.PutBytes(r.Rand[:])
	w.PutUint8(r.EncKeySize)
	w.PutUint8(boolsToFlags(r.Authenticated, r.SecureConnections, r.ResponderRole))
}

func unmarshalLTK(r *codec.Reader) LTKRecord {
	var out LTKRecord
	copy(out.LTK[:], r.Bytes(16))
	out.EDIV = r.Uint16()
	copy(out.Rand[:], r.Bytes(8))
	out.EncKeySize = r.Uint8()
	flags := r.Uint8()
	out.Authenticated = flags&0x01 != 0
	out.SecureConnections = flags&0x02 != 0
	out.ResponderRole = flags&0x04 != 0
	return out
}

// IRKRecord is the Identity Resolving Key plus the identity address it
// resolves private addresses to, per spec §3.
type IRKRecord struct {
	IRK              [16]byte
	IdentityAddr     [6]byte
	IdentityAddrType uint8
}

func (r IRKRecord) marshal(w *codec.Writer) {
	w.PutBytes(r.IRK[:])
	w.PutBytes(r.IdentityAddr[:])
	w.PutUint8(r.IdentityAddrType)
}

func unmarshalIRK(r *codec.Reader) IRKRecord {
	var out IRKRecord
	copy(out.IRK[:], r.Bytes(16))
	copy(out.IdentityAddr[:], r.Bytes(6))
	out.IdentityAddrType = r.Uint8()
	return out
}

// CSRKRecord is the Connection Signature Resolving Key used to verify
// ATT Signed-Write-Command payloads, per spec §3/§4.3.
type CSRKRecord struct {
	CSRK        [16]byte
	SignCounter uint32
}

func (r CSRKRecord) marshal(w *codec.Writer) {
	w.PutBytes(r.CSRK[:])
	w.PutUint32(r.SignCounter)
}

func unmarshalCSRK(r *codec.Reader) CSRKRecord {
	var out CSRKRecord
	copy(out.CSRK[:], r.Bytes(16))
	out.SignCounter = r.Uint32()
	return out
}

// LinkKeyRecord is the derived BR/EDR link key, carried alongside the LE
// bond when the remote device supports cross-transport key derivation.
type LinkKeyRecord struct {
	LinkKey [16]byte
	KeyType uint8
}

func (r LinkKeyRecord) marshal(w *codec.Writer) {
	w.PutBytes(r.LinkKey[:])
	w.PutUint8(r.KeyType)
}

func unmarshalLinkKey(r *codec.Reader) LinkKeyRecord {
	var out LinkKeyRecord
	copy(out.LinkKey[:], r.Bytes(16))
	out.KeyType = r.Uint8()
	return out
}

// KeyBin is the full set of persisted key material for one (local
// adapter, remote identity) bond, per spec §3/§6.
type KeyBin struct {
	LocalAddr      [6]byte
	RemoteAddr     [6]byte
	RemoteAddrType uint8 // 0=public, 1=random-static only; resolvable forms are rejected
	SecurityLevel  uint8
	IOCapability   uint8

	LTKInit *LTKRecord
	LTKResp *LTKRecord
	IRK     *IRKRecord
	CSRK    *CSRKRecord
	LinkKey *LinkKeyRecord
}

func (k *KeyBin) mask() KeyMask {
	var m KeyMask
	if k.LTKInit != nil {
		m |= MaskLTKInit
	}
	if k.LTKResp != nil {
		m |= MaskLTKResp
	}
	if k.IRK != nil {
		m |= MaskIRK
	}
	if k.CSRK != nil {
		m |= MaskCSRK
	}
	if k.LinkKey != nil {
		m |= MaskLinkKey
	}
	return m
}

// Marshal renders the KeyBin to its on-disk byte form, per spec §6's
// field order, ending with a trailing checksum.
func (k *KeyBin) Marshal() []byte {
	w := codec.NewWriter(128)
	w.PutBytes(magic[:])
	w.PutUint16(formatVersion)
	w.PutBytes(k.LocalAddr[:])
	w.PutBytes(k.RemoteAddr[:])
	w.PutUint8(k.RemoteAddrType)
	w.PutUint8(k.SecurityLevel)
	w.PutUint8(k.IOCapability)
	w.PutUint8(byte(k.mask()))

	if k.LTKInit != nil {
		k.LTKInit.marshal(w)
	}
	if k.LTKResp != nil {
		k.LTKResp.marshal(w)
	}
	if k.IRK != nil {
		k.IRK.marshal(w)
	}
	if k.CSRK != nil {
		k.CSRK.marshal(w)
	}
	if k.LinkKey != nil {
		k.LinkKey.marshal(w)
	}

	body := w.Bytes()
	sum := checksum(body)
	out := make([]byte, len(body)+2)
	copy(out, body)
	out[len(body)] = byte(sum)
	out[len(body)+1] = byte(sum >> 8)
	return out
}

func checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

// isResolvableAddrType reports whether t names a resolvable private
// address form; the KeyBin format only ever stores resolved identities.
func isResolvableAddrType(t uint8) bool { return t == 2 }

// Unmarshal parses a KeyBin from its on-disk byte form, validating the
// magic, checksum, and the address-type invariant from spec §6.
func Unmarshal(b []byte) (*KeyBin, error) {
	if len(b) < 17 {
		return nil, codec.NewError(codec.KindProtocol, "keystore.Unmarshal", "file too short", nil)
	}
	body, trailer := b[:len(b)-2], b[len(b)-2:]
	want := checksum(body)
	got := uint16(trailer[0]) | uint16(trailer[1])<<8
	if want != got {
		return nil, codec.NewError(codec.KindProtocol, "keystore.Unmarshal", "checksum mismatch", nil)
	}

	r := codec.NewReader(body)
	var gotMagic [4]byte
	copy(gotMagic[:], r.Bytes(4))
	if gotMagic != magic {
		return nil, codec.NewError(codec.KindProtocol, "keystore.Unmarshal", "bad magic", nil)
	}
	version := r.Uint16()
	if version != formatVersion {
		return nil, codec.NewError(codec.KindProtocol, "keystore.Unmarshal", fmt.Sprintf("unsupported version %d", version), nil)
	}

	k := &KeyBin{}
	copy(k.LocalAddr[:], r.Bytes(6))
	copy(k.RemoteAddr[:], r.Bytes(6))
	k.RemoteAddrType = r.Uint8()
	k.SecurityLevel = r.Uint8()
	k.IOCapability = r.Uint8()
	mask := KeyMask(r.Uint8())

	if mask&MaskLTKInit != 0 {
		rec := unmarshalLTK(r)
		k.LTKInit = &rec
	}
	if mask&MaskLTKResp != 0 {
		rec := unmarshalLTK(r)
		k.LTKResp = &rec
	}
	if mask&MaskIRK != 0 {
		rec := unmarshalIRK(r)
		k.IRK = &rec
	}
	if mask&MaskCSRK != 0 {
		rec := unmarshalCSRK(r)
		k.CSRK = &rec
	}
	if mask&MaskLinkKey != 0 {
		rec := unmarshalLinkKey(r)
		k.LinkKey = &rec
	}
	if err := r.Err(); err != nil {
		return nil, err
	}

	if isResolvableAddrType(k.RemoteAddrType) {
		return nil, codec.NewError(codec.KindProtocol, "keystore.Unmarshal", "stored address-type must be a resolved identity, not resolvable", nil)
	}
	return k, nil
}

func boolsToFlags(authenticated, sc, responder bool) uint8 {
	var f uint8
	if authenticated {
		f |= 0x01
	}
	if sc {
		f |= 0x02
	}
	if responder {
		f |= 0x04
	}
	return f
}
