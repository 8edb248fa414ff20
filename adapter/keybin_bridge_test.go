package adapter

import (
	"testing"

	"github.com/nimbusvale/directble/codec"
	"github.com/nimbusvale/directble/smp"
)

func TestMergeKeySetIntoInitiatorStoresLTKInit(t *testing.T) {
	kb := newEmptyKeyBin([6]byte{1}, [6]byte{2}, 0)
	keys := &smp.KeySet{
		LTK:  [16]byte{9, 9, 9},
		EDIV: 0x1234,
		Rand: [8]byte{1, 2, 3},
	}
	mergeKeySetInto(kb, keys, true)

	if kb.LTKInit == nil {
		t.Fatal("expected LTKInit to be populated")
	}
	if kb.LTKResp != nil {
		t.Fatal("expected LTKResp to remain nil for an initiator pairing")
	}
	if kb.LTKInit.LTK != keys.LTK || kb.LTKInit.ResponderRole {
		t.Fatalf("unexpected LTKInit record: %+v", kb.LTKInit)
	}
}

func TestMergeKeySetIntoResponderStoresLTKResp(t *testing.T) {
	kb := newEmptyKeyBin([6]byte{1}, [6]byte{2}, 0)
	keys := &smp.KeySet{LTK: [16]byte{7, 7, 7}, EDIV: 1, Rand: [8]byte{1}}
	mergeKeySetInto(kb, keys, false)

	if kb.LTKResp == nil || !kb.LTKResp.ResponderRole {
		t.Fatalf("expected LTKResp populated with ResponderRole set, got %+v", kb.LTKResp)
	}
	if kb.LTKInit != nil {
		t.Fatal("expected LTKInit to remain nil for a responder pairing")
	}
}

func TestMergeKeySetIntoPopulatesIdentityAndSignKeys(t *testing.T) {
	kb := newEmptyKeyBin([6]byte{1}, [6]byte{2}, 0)
	keys := &smp.KeySet{
		IRK:          [16]byte{1, 2, 3},
		CSRK:         [16]byte{4, 5, 6},
		IdentityAddr: codec.Address{Bytes: [6]byte{9, 9, 9, 9, 9, 9}, Type: codec.AddressRandomStatic},
	}
	mergeKeySetInto(kb, keys, true)

	if kb.IRK == nil || kb.IRK.IRK != keys.IRK {
		t.Fatalf("expected IRK to round into the KeyBin, got %+v", kb.IRK)
	}
	if kb.IRK.IdentityAddr != keys.IdentityAddr.Bytes || kb.IRK.IdentityAddrType != uint8(codec.AddressRandomStatic) {
		t.Fatalf("unexpected identity fields: %+v", kb.IRK)
	}
	if kb.CSRK == nil || kb.CSRK.CSRK != keys.CSRK {
		t.Fatalf("expected CSRK to round into the KeyBin, got %+v", kb.CSRK)
	}
}

func TestPairingMethodForRespectsMITM(t *testing.T) {
	if got := pairingMethodFor(smp.LocalConfig{MITM: true}); got != PairingMethodNumericComparison {
		t.Fatalf("expected numeric comparison when MITM required, got %v", got)
	}
	if got := pairingMethodFor(smp.LocalConfig{}); got != PairingMethodJustWorks {
		t.Fatalf("expected just-works when MITM not required, got %v", got)
	}
}
