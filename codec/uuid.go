package codec

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// baseUUIDSuffix is the last 96 bits of the Bluetooth SIG base UUID
// 0000xxxx-0000-1000-8000-00805F9B34FB, stored big-endian as it appears in
// canonical string form.
var baseUUIDSuffix = [12]byte{0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0x80, 0x5F, 0x9B, 0x34, 0xFB}

// UUID is a Bluetooth UUID of 2, 4 or 16 octets, stored little-endian on the
// wire exactly as it is transmitted in ATT/GATT PDUs. Use Equal, not ==, to
// compare: a 16-bit UUID and its 128-bit expansion are the same UUID.
type UUID struct {
	b []byte
}

// UUID16 constructs a UUID from a 16-bit assigned number.
func UUID16(v uint16) UUID {
	return UUID{b: []byte{byte(v), byte(v >> 8)}}
}

// UUID32 constructs a UUID from a 32-bit assigned number.
func UUID32(v uint32) UUID {
	return UUID{b: []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}}
}

// MustParseUUID parses a canonical 128-bit string form
// ("d0ca6bf3-3d52-4760-98e5-fc5883e93712") and panics on malformed input; it
// is meant for package-level UUID constants.
func MustParseUUID(s string) UUID {
	u, err := ParseUUID(s)
	if err != nil {
		panic(err)
	}
	return u
}

// ParseUUID parses the canonical 128-bit hyphenated string form into a
// little-endian-stored UUID.
func ParseUUID(s string) (UUID, error) {
	s = strings.ReplaceAll(s, "-", "")
	if len(s) != 32 {
		return UUID{}, NewError(KindParam, "ParseUUID", "128-bit UUID string must be 32 hex digits", nil)
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return UUID{}, NewError(KindParam, "ParseUUID", "invalid hex", err)
	}
	return UUID{b: reverse(raw)}, nil
}

// UUIDFromBytes wraps a little-endian byte slice of length 2, 4 or 16 as a
// UUID without copying validation beyond length.
func UUIDFromBytes(b []byte) (UUID, error) {
	switch len(b) {
	case 2, 4, 16:
		cp := make([]byte, len(b))
		copy(cp, b)
		return UUID{b: cp}, nil
	default:
		return UUID{}, NewError(KindParam, "UUIDFromBytes", fmt.Sprintf("unsupported UUID length %d", len(b)), nil)
	}
}

// Bytes returns the little-endian wire representation, at its native width.
func (u UUID) Bytes() []byte { return u.b }

// Len reports the wire width in octets (2, 4 or 16).
func (u UUID) Len() int { return len(u.b) }

// To128 normalizes any width to its canonical 128-bit little-endian form by
// expanding 16/32-bit values against the Bluetooth base UUID.
func (u UUID) To128() UUID {
	if len(u.b) == 16 {
		return u
	}
	out := make([]byte, 16)
	copy(out[:12], reverse(baseUUIDSuffix[:]))
	copy(out[12:12+len(u.b)], u.b)
	return UUID{b: out}
}

// Equal compares two UUIDs after normalizing both to 128 bits, per spec.
func (u UUID) Equal(o UUID) bool {
	a, b := u.To128().b, o.To128().b
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

// String renders the canonical big-endian hyphenated 128-bit form.
func (u UUID) String() string {
	b := reverse(u.To128().b)
	return fmt.Sprintf("%08x-%04x-%04x-%04x-%012x", b[0:4], b[4:6], b[6:8], b[8:10], b[10:16])
}

// reverse returns a new slice with the bytes in reverse order, used to flip
// between little-endian wire order and big-endian string order.
func reverse(b []byte) []byte {
	out := make([]byte, len(b))
	for i, v := range b {
		out[len(b)-1-i] = v
	}
	return out
}
