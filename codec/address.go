package codec

import (
	"fmt"
	"strconv"
	"strings"
)

// AddressType enumerates the four BLE address kinds. Public and static
// addresses never change identity; resolvable and non-resolvable random
// addresses are privacy features handled by the smp package.
type AddressType uint8

const (
	AddressPublic AddressType = iota
	AddressRandomStatic
	AddressRandomResolvable
	AddressRandomNonResolvable
)

func (t AddressType) String() string {
	switch t {
	case AddressPublic:
		return "public"
	case AddressRandomStatic:
		return "random-static"
	case AddressRandomResolvable:
		return "random-resolvable"
	case AddressRandomNonResolvable:
		return "random-non-resolvable"
	default:
		return "unknown"
	}
}

// Address is an EUI-48 Bluetooth device address. The wire representation is
// little-endian; Bytes is kept in that same order so it can be copied
// directly into HCI command parameters.
type Address struct {
	Bytes [6]byte
	Type  AddressType
}

// Equal compares both the raw bytes and the address type, per spec.
func (a Address) Equal(o Address) bool {
	return a.Bytes == o.Bytes && a.Type == o.Type
}

// String renders the address in the conventional colon-separated big-endian
// form, e.g. "C0:26:DA:01:DA:B1".
func (a Address) String() string {
	b := a.Bytes
	return fmt.Sprintf("%02X:%02X:%02X:%02X:%02X:%02X", b[5], b[4], b[3], b[2], b[1], b[0])
}

// ParseAddress parses the big-endian colon-separated form into an Address
// with the given type. An address string that is not exactly 17 characters
// with colons at the expected positions fails with KindParam.
func ParseAddress(s string, t AddressType) (Address, error) {
	var a Address
	if len(s) != 17 {
		return a, NewError(KindParam, "ParseAddress", "address must be 17 characters", nil)
	}
	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return a, NewError(KindParam, "ParseAddress", "address must have 6 colon-separated octets", nil)
	}
	for i := 0; i < 6; i++ {
		if len(parts[i]) != 2 {
			return a, NewError(KindParam, "ParseAddress", "each octet must be 2 hex digits", nil)
		}
		v, err := strconv.ParseUint(parts[i], 16, 8)
		if err != nil {
			return a, NewError(KindParam, "ParseAddress", "invalid octet "+parts[i], err)
		}
		a.Bytes[5-i] = byte(v)
	}
	a.Type = t
	return a, nil
}

// IsRandom reports whether this address type is any of the random forms.
func (t AddressType) IsRandom() bool { return t != AddressPublic }

// IsResolvable reports whether the address type is the RPA form.
func (t AddressType) IsResolvable() bool { return t == AddressRandomResolvable }
