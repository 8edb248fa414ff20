package adapter

import (
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/keystore"
	"github.com/nimbusvale/directble/smp"
)

func newTestAdapterWithKeys(t *testing.T) *Adapter {
	t.Helper()
	ks, err := keystore.NewStore(t.TempDir(), logrus.StandardLogger())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	a := newTestAdapter()
	a.keys = ks
	a.localAddr = codec.Address{Bytes: [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF}, Type: codec.AddressPublic}
	return a
}

func TestResolveIdentityMatchesStoredIRK(t *testing.T) {
	a := newTestAdapterWithKeys(t)

	identity := codec.Address{Bytes: [6]byte{1, 2, 3, 4, 5, 6}, Type: codec.AddressPublic}
	var irk [16]byte
	copy(irk[:], []byte("0123456789abcdef"))

	kb := &keystore.KeyBin{
		LocalAddr:      a.localAddrBytes(),
		RemoteAddr:     identity.Bytes,
		RemoteAddrType: uint8(identity.Type),
		IRK:            &keystore.IRKRecord{IRK: irk, IdentityAddr: identity.Bytes, IdentityAddrType: uint8(identity.Type)},
	}
	if err := a.keys.Save(kb); err != nil {
		t.Fatalf("Save: %v", err)
	}

	rpa := buildRPA(t, irk)
	got, ok := a.resolveIdentity(codec.Address{Bytes: rpa, Type: codec.AddressRandomResolvable})
	if !ok {
		t.Fatal("expected resolveIdentity to find the stored IRK")
	}
	if !got.Equal(identity) {
		t.Fatalf("got identity %v, want %v", got, identity)
	}
}

func TestResolveIdentityIgnoresNonResolvableAddresses(t *testing.T) {
	a := newTestAdapterWithKeys(t)
	addr := codec.Address{Bytes: [6]byte{1, 2, 3, 4, 5, 6}, Type: codec.AddressRandomStatic}
	if _, ok := a.resolveIdentity(addr); ok {
		t.Fatal("expected resolveIdentity to skip non-resolvable address types")
	}
}

func TestResolveIdentityNoMatchWhenStoreEmpty(t *testing.T) {
	a := newTestAdapterWithKeys(t)
	addr := codec.Address{Bytes: [6]byte{1, 2, 3, 4, 5, 6}, Type: codec.AddressRandomResolvable}
	if _, ok := a.resolveIdentity(addr); ok {
		t.Fatal("expected no match against an empty key store")
	}
}

// buildRPA constructs a resolvable private address that smp.ResolveRPA
// will accept against irk, for tests that need a realistic RPA input.
func buildRPA(t *testing.T, irk [16]byte) [6]byte {
	t.Helper()
	addr := smp.GenerateRPA(irk, [3]byte{0x40, 0x71, 0x94})
	if !smp.ResolveRPA(addr, irk) {
		t.Fatal("buildRPA produced an address that does not resolve against irk")
	}
	return addr
}
