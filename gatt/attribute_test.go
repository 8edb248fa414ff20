package gatt

import (
	"testing"

	"github.com/nimbusvale/directble/codec"
)

func TestAddServiceAllocatesContiguousHandles(t *testing.T) {
	db := NewDatabase()
	svc := db.AddService(Service{
		UUID: codec.UUID16(0x180D), // Heart Rate
		Characteristics: []Characteristic{
			{
				UUID:       codec.UUID16(0x2A37),
				Properties: PropNotify,
				Perm:       AttrPermission{Read: true},
				Value:      []byte{0x00, 0x50},
			},
		},
	})

	if svc.StartHandle() != 1 {
		t.Fatalf("start handle = %d, want 1", svc.StartHandle())
	}
	// service decl(1) + char decl(2) + char value(3) + CCCD(4)
	if svc.EndHandle() != 4 {
		t.Fatalf("end handle = %d, want 4", svc.EndHandle())
	}

	c := &svc.Characteristics[0]
	if c.ValueHandle() != 3 {
		t.Errorf("value handle = %d, want 3", c.ValueHandle())
	}
	cccd, ok := c.CCCDHandle()
	if !ok || cccd != 4 {
		t.Errorf("cccd handle = %d, ok=%v, want 4/true", cccd, ok)
	}

	for h := uint16(1); h <= 4; h++ {
		if _, found := db.Attr(h); !found {
			t.Errorf("handle %d missing from database", h)
		}
	}
}

func TestAddServiceNoCCCDWithoutNotifyOrIndicate(t *testing.T) {
	db := NewDatabase()
	svc := db.AddService(Service{
		UUID: codec.UUID16(0x180F),
		Characteristics: []Characteristic{
			{UUID: codec.UUID16(0x2A19), Properties: PropRead, Perm: AttrPermission{Read: true}, Value: []byte{100}},
		},
	})
	c := &svc.Characteristics[0]
	if _, ok := c.CCCDHandle(); ok {
		t.Fatal("expected no CCCD for a read-only characteristic")
	}
}

func TestRangeReturnsHandlesInOrder(t *testing.T) {
	db := NewDatabase()
	db.AddService(Service{UUID: codec.UUID16(0x1800)})
	db.AddService(Service{UUID: codec.UUID16(0x1801)})

	attrs := db.Range(1, 100)
	if len(attrs) != 2 {
		t.Fatalf("got %d attrs, want 2", len(attrs))
	}
	for i := 1; i < len(attrs); i++ {
		if attrs[i].Handle <= attrs[i-1].Handle {
			t.Fatalf("handles not strictly increasing: %v", attrs)
		}
	}
}
