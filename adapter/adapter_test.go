package adapter

import (
	"testing"

	"github.com/nimbusvale/directble/codec"
)

func newTestAdapter() *Adapter {
	return &Adapter{
		devices:  make(map[codec.Address]*Device),
		byHandle: make(map[uint16]codec.Address),
		pauseSet: make(map[codec.Address]struct{}),
	}
}

func TestUpsertDeviceCreatesThenUpdates(t *testing.T) {
	a := newTestAdapter()
	addr := codec.Address{Bytes: [6]byte{1, 2, 3, 4, 5, 6}}

	d1 := a.upsertDevice(addr, func(d *Device) { d.RSSI = -40 })
	if d1.State != StateDiscovered {
		t.Fatalf("expected a freshly-created device to start discovered, got %v", d1.State)
	}

	d2 := a.upsertDevice(addr, func(d *Device) { d.RSSI = -30 })
	if d2.RSSI != -30 {
		t.Fatalf("expected update to apply, got RSSI %d", d2.RSSI)
	}
	if len(a.devices) != 1 {
		t.Fatalf("expected a single device record, got %d", len(a.devices))
	}
}

func TestDeviceReturnsACloneNotTheLiveRecord(t *testing.T) {
	a := newTestAdapter()
	addr := codec.Address{Bytes: [6]byte{1}}
	a.upsertDevice(addr, func(d *Device) { d.Name = "before" })

	got, ok := a.Device(addr)
	if !ok {
		t.Fatal("expected device to be found")
	}
	got.Name = "mutated by caller"

	again, _ := a.Device(addr)
	if again.Name != "before" {
		t.Fatalf("expected the adapter's own record to be unaffected by caller mutation, got %q", again.Name)
	}
}

func TestBindHandleAndRemoveDevice(t *testing.T) {
	a := newTestAdapter()
	addr := codec.Address{Bytes: [6]byte{1}}
	a.upsertDevice(addr, func(d *Device) {})
	a.bindHandle(addr, 0x40)

	got, ok := a.deviceByHandle(0x40)
	if !ok || got != addr {
		t.Fatalf("expected handle 0x40 to resolve to %v, got %v (ok=%v)", addr, got, ok)
	}

	a.removeDevice(addr)
	if _, ok := a.deviceByHandle(0x40); ok {
		t.Fatal("expected handle index to be cleared when the device is removed")
	}
	if _, ok := a.Device(addr); ok {
		t.Fatal("expected device to be gone from the table")
	}
}

func TestDevicesSnapshotsAllRecords(t *testing.T) {
	a := newTestAdapter()
	a.upsertDevice(codec.Address{Bytes: [6]byte{1}}, func(d *Device) {})
	a.upsertDevice(codec.Address{Bytes: [6]byte{2}}, func(d *Device) {})

	if got := len(a.Devices()); got != 2 {
		t.Fatalf("expected 2 devices, got %d", got)
	}
}

func TestAddDevicePausingDiscoveryIgnoredUnderAutoOffAndAlwaysOn(t *testing.T) {
	addr := codec.Address{Bytes: [6]byte{1}}

	for _, p := range []DiscoveryPolicy{PolicyAutoOff, PolicyAlwaysOn} {
		a := newTestAdapter()
		a.policy = p
		a.addDevicePausingDiscovery(addr)
		if _, paused := a.pauseSet[addr]; !paused {
			t.Fatalf("policy %v: expected addr to still be recorded in the pause set", p)
		}
	}
}

func TestAddDevicePausingDiscoveryDoesNotTouchHCIWhenNotDiscovering(t *testing.T) {
	a := newTestAdapter()
	a.policy = PolicyPauseUntilReady
	a.addDevicePausingDiscovery(addr6(1))
	if _, paused := a.pauseSet[addr6(1)]; !paused {
		t.Fatal("expected device to be added to the pause set")
	}
}

func addr6(b byte) codec.Address { return codec.Address{Bytes: [6]byte{b}} }
