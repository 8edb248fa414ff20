package codec

import "testing"

func TestAddressRoundTrip(t *testing.T) {
	a, err := ParseAddress("C0:26:DA:01:DA:B1", AddressPublic)
	if err != nil {
		t.Fatalf("ParseAddress: %v", err)
	}
	if got := a.String(); got != "C0:26:DA:01:DA:B1" {
		t.Errorf("round trip: got %s", got)
	}
}

func TestAddressParseInvalid(t *testing.T) {
	cases := []string{
		"C0:26:DA:01:DA",
		"C0-26-DA-01-DA-B1",
		"",
	}
	for _, s := range cases {
		if _, err := ParseAddress(s, AddressPublic); err == nil {
			t.Errorf("ParseAddress(%q): expected error", s)
		} else if e, ok := err.(*Error); !ok || e.Kind != KindParam {
			t.Errorf("ParseAddress(%q): expected KindParam, got %v", s, err)
		}
	}
}

func TestAddressEquality(t *testing.T) {
	a, _ := ParseAddress("C0:26:DA:01:DA:B1", AddressPublic)
	b, _ := ParseAddress("C0:26:DA:01:DA:B1", AddressRandomStatic)
	if a.Equal(b) {
		t.Error("addresses with different types should not be equal")
	}
}
