package codec

import (
	"bytes"
	"testing"
)

func TestUUID16(t *testing.T) {
	want := UUID{b: []byte{0x00, 0x18}}
	got := UUID16(0x1800)
	if !got.Equal(want) {
		t.Errorf("UUID16: got %x, want %x", got.b, want.b)
	}
}

func TestUUIDEqualAcrossWidths(t *testing.T) {
	short := UUID16(0x1800)
	long := short.To128()
	if !short.Equal(long) {
		t.Errorf("16-bit and expanded 128-bit form should be equal: %s vs %s", short, long)
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	u := MustParseUUID("d0ca6bf3-3d52-4760-98e5-fc5883e93712")
	if got := u.String(); got != "d0ca6bf3-3d52-4760-98e5-fc5883e93712" {
		t.Errorf("round trip: got %s", got)
	}
}

func TestReverse(t *testing.T) {
	cases := []struct{ fwd, back []byte }{
		{fwd: []byte{0, 1}, back: []byte{1, 0}},
		{fwd: []byte{0, 1, 2}, back: []byte{2, 1, 0}},
		{fwd: []byte{0, 1, 2, 3}, back: []byte{3, 2, 1, 0}},
	}
	for _, tt := range cases {
		if got := reverse(tt.fwd); !bytes.Equal(got, tt.back) {
			t.Errorf("reverse(%x): got %x want %x", tt.fwd, got, tt.back)
		}
	}
}
