package smp

import (
	"bytes"
	"encoding/hex"
	"testing"
)

func mustHex(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic(err)
	}
	return b
}

// TestAESCMACRFC4493Vectors checks aesCMAC against the official RFC 4493
// test vectors for AES-128-CMAC, independent of anything BLE-specific.
func TestAESCMACRFC4493Vectors(t *testing.T) {
	var key [16]byte
	copy(key[:], mustHex("2b7e151628aed2a6abf7158809cf4f3c"))

	t.Run("empty message", func(t *testing.T) {
		got := aesCMAC(key, nil)
		want := mustHex("bb1d6929e95937287fa37d129b756746")
		if !bytes.Equal(got[:], want) {
			t.Errorf("got %x, want %x", got, want)
		}
	})

	t.Run("one block message", func(t *testing.T) {
		msg := mustHex("6bc1bee22e409f96e93d7e117393172a")
		got := aesCMAC(key, msg)
		want := mustHex("070a16b46b4d4144f79bdd9dd04a287c")
		if !bytes.Equal(got[:], want) {
			t.Errorf("got %x, want %x", got, want)
		}
	})
}

func TestECDHSharedSecretSymmetric(t *testing.T) {
	a, err := GenerateECDHKeyPair()
	if err != nil {
		t.Fatalf("GenerateECDHKeyPair(a): %v", err)
	}
	b, err := GenerateECDHKeyPair()
	if err != nil {
		t.Fatalf("GenerateECDHKeyPair(b): %v", err)
	}

	secretA, err := a.SharedSecret(b.PublicKeyPDU())
	if err != nil {
		t.Fatalf("a.SharedSecret: %v", err)
	}
	secretB, err := b.SharedSecret(a.PublicKeyPDU())
	if err != nil {
		t.Fatalf("b.SharedSecret: %v", err)
	}
	if secretA != secretB {
		t.Errorf("shared secrets differ: %x vs %x", secretA, secretB)
	}
}

func TestSharedSecretRejectsOwnKey(t *testing.T) {
	a, err := GenerateECDHKeyPair()
	if err != nil {
		t.Fatalf("GenerateECDHKeyPair: %v", err)
	}
	if _, err := a.SharedSecret(a.PublicKeyPDU()); err == nil {
		t.Fatal("expected reflection-attack rejection")
	}
}

func TestC1Deterministic(t *testing.T) {
	var k, r [16]byte
	copy(k[:], mustHex("000102030405060708090a0b0c0d0e0f"))
	copy(r[:], mustHex("0102030405060708090a0b0c0d0e0f10"))
	preq := []byte{0x07, 0x07, 0x10, 0x00, 0x00, 0x01, 0x01}
	pres := []byte{0x05, 0x00, 0x00, 0x00, 0x00, 0x01, 0x01}
	var ia, ra [6]byte
	copy(ia[:], mustHex("a1a2a3a4a5a6"))
	copy(ra[:], mustHex("b1b2b3b4b5b6"))

	c1a := c1(k, r, preq, pres, 0, 1, ia, ra)
	c1b := c1(k, r, preq, pres, 0, 1, ia, ra)
	if c1a != c1b {
		t.Fatal("c1 is not deterministic for identical inputs")
	}

	c1c := c1(k, r, preq, pres, 1, 1, ia, ra)
	if c1a == c1c {
		t.Fatal("c1 did not vary with initiator address type")
	}
}

func TestF5DerivesDistinctMacKeyAndLTK(t *testing.T) {
	var w [32]byte
	copy(w[:], mustHex("000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"))
	var n1, n2 [16]byte
	copy(n1[:], mustHex("d5cb8454d177733effffb2ec712baeab"))
	copy(n2[:], mustHex("a6e8e7cc25a75f6e216583f7ff3dc4cf"))
	var a1, a2 [7]byte
	copy(a1[:], mustHex("00561237371b00"))
	copy(a2[:], mustHex("00a713702a6000"))

	macKey, ltk := f5(w, n1, n2, a1, a2)
	if macKey == ltk {
		t.Fatal("MacKey and LTK must differ")
	}
}

func TestResolveRPARoundTrip(t *testing.T) {
	var irk [16]byte
	copy(irk[:], mustHex("ec0234a357c8ad05341010a60a397d9b"))

	prand := [3]byte{0x40, 0x71, 0x94} // top two bits forced to 01 by the controller
	hash := ah(irk, prand)

	var addr [6]byte
	addr[5], addr[4], addr[3] = prand[0], prand[1], prand[2]
	addr[2], addr[1], addr[0] = hash[0], hash[1], hash[2]

	if !ResolveRPA(addr, irk) {
		t.Fatal("expected ResolveRPA to match an address generated from the same IRK")
	}

	var otherIRK [16]byte
	copy(otherIRK[:], mustHex("000102030405060708090a0b0c0d0e0f"))
	if ResolveRPA(addr, otherIRK) {
		t.Fatal("expected ResolveRPA to reject an unrelated IRK")
	}
}

func TestResolveRPARejectsTamperedHash(t *testing.T) {
	var irk [16]byte
	copy(irk[:], mustHex("000102030405060708090a0b0c0d0e0f"))

	prand := [3]byte{0x70, 0x81, 0x94}
	hash := ah(irk, prand)
	hash[0] ^= 0xFF

	var addr [6]byte
	addr[5], addr[4], addr[3] = prand[0], prand[1], prand[2]
	addr[2], addr[1], addr[0] = hash[0], hash[1], hash[2]

	if ResolveRPA(addr, irk) {
		t.Fatal("expected ResolveRPA to reject a tampered hash")
	}
}

func TestVerifySignatureRoundTrip(t *testing.T) {
	var csrk [16]byte
	copy(csrk[:], mustHex("00112233445566778899aabbccddeeff"))

	opcode := byte(0xD2) // att.OpSignedWriteCmd
	payload := mustHex("2a00" + "48656c6c6f") // handle 0x002a, value "Hello"
	counter := uint32(7)

	msg := append([]byte{opcode}, payload...)
	msg = append(msg, byte(counter), byte(counter>>8), byte(counter>>16), byte(counter>>24))
	full := aesCMAC(csrk, msg)
	var mac [8]byte
	copy(mac[:], full[8:16])

	if !VerifySignature(csrk, opcode, payload, counter, mac) {
		t.Fatal("expected VerifySignature to accept a correctly signed message")
	}

	mac[0] ^= 0xFF
	if VerifySignature(csrk, opcode, payload, counter, mac) {
		t.Fatal("expected VerifySignature to reject a tampered MAC")
	}

	if VerifySignature(csrk, opcode, payload, counter+1, mac) {
		t.Fatal("expected VerifySignature to reject a mismatched counter")
	}
}
