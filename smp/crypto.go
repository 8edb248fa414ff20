package smp

import (
	"crypto/aes"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/subtle"

	"github.com/nimbusvale/directble/codec"
)

// No CMAC or P-256 ECDH implementation appears anywhere in the example
// corpus (golang.org/x/crypto ships neither), so the cryptographic toolbox
// functions below are built directly on crypto/aes and crypto/ecdh, the
// standard-library primitives Go itself recommends for AES and curve
// Diffie-Hellman as of Go 1.20. This is the one subsystem in the stack
// without a grounded third-party dependency; see DESIGN.md.

// e is the BLE security function e: AES-128-ECB encryption of one 16-byte
// block, key and plaintext both MSB-first as the core spec defines them.
func e(key, plaintext [16]byte) [16]byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err) // key is always 16 bytes; aes.NewCipher cannot fail
	}
	var out [16]byte
	block.Encrypt(out[:], plaintext[:])
	return out
}

func xor16(a, b [16]byte) [16]byte {
	var out [16]byte
	for i := range out {
		out[i] = a[i] ^ b[i]
	}
	return out
}

// c1 computes the legacy pairing confirm value from the BLE core spec:
// c1(k, r, preq, pres, iat, ia, rat, ra) = e(k, e(k, r XOR p1) XOR p2)
func c1(k, r [16]byte, preq, pres []byte, iat, rat uint8, ia, ra [6]byte) [16]byte {
	var p1 [16]byte
	p1[0] = pres[0]
	copy(p1[1:7], pres[1:])
	p1[7] = preq[0]
	copy(p1[8:14], preq[1:])
	p1[14] = rat
	p1[15] = iat

	var p2 [16]byte
	copy(p2[0:6], padAddr(ia))
	copy(p2[6:12], padAddr(ra))

	t1 := xor16(r, p1)
	t2 := e(k, t1)
	t3 := xor16(t2, p2)
	return e(k, t3)
}

func padAddr(a [6]byte) []byte {
	out := make([]byte, 6)
	copy(out, a[:])
	return out
}

// s1 derives the legacy STK from two random nonces:
// s1(k, r1, r2) = e(k, r2[8:16] || r1[8:16]) over this package's MSB-first
// arrays, i.e. the 64 least significant bits of each nonce.
func s1(k, r1, r2 [16]byte) [16]byte {
	var m [16]byte
	copy(m[0:8], r2[8:16])
	copy(m[8:16], r1[8:16])
	return e(k, m)
}

// aesCMAC implements AES-128-CMAC per NIST SP 800-38B / RFC 4493, used by
// every LE Secure Connections toolbox function (f4/f5/f6/g2).
func aesCMAC(key [16]byte, msg []byte) [16]byte {
	block, err := aes.NewCipher(key[:])
	if err != nil {
		panic(err)
	}
	k1, k2 := cmacSubkeys(block)

	const blockSize = 16
	var x [16]byte

	if len(msg) == 0 {
		padded := cmacPad(nil)
		last := xor16(padded, k2)
		block.Encrypt(x[:], last[:])
		return x
	}

	numBlocks := (len(msg) + blockSize - 1) / blockSize
	completeFinal := len(msg)%blockSize == 0

	for i := 0; i < numBlocks-1; i++ {
		chunk := msg[i*blockSize : (i+1)*blockSize]
		var in [16]byte
		copy(in[:], chunk)
		mixed := xor16(x, in)
		block.Encrypt(x[:], mixed[:])
	}

	lastChunk := msg[(numBlocks-1)*blockSize:]
	var lastBlock [16]byte
	if completeFinal {
		copy(lastBlock[:], lastChunk)
		lastBlock = xor16(lastBlock, k1)
	} else {
		padded := cmacPad(lastChunk)
		lastBlock = xor16(padded, k2)
	}
	mixed := xor16(x, lastBlock)
	block.Encrypt(x[:], mixed[:])
	return x
}

func cmacPad(b []byte) [16]byte {
	var out [16]byte
	copy(out[:], b)
	out[len(b)] = 0x80
	return out
}

func cmacSubkeys(block interface{ Encrypt(dst, src []byte) }) (k1, k2 [16]byte) {
	var zero, l [16]byte
	block.Encrypt(l[:], zero[:])
	k1 = leftShiftXorRb(l)
	k2 = leftShiftXorRb(k1)
	return
}

const cmacRb = 0x87

func leftShiftXorRb(in [16]byte) [16]byte {
	var out [16]byte
	var carry byte
	for i := 15; i >= 0; i-- {
		out[i] = (in[i] << 1) | carry
		carry = in[i] >> 7
	}
	if carry != 0 {
		out[15] ^= cmacRb
	}
	return out
}

// f4 is the SC confirm-value function: f4(U, V, X, Z) = AES-CMAC_X(U || V || Z)
func f4(u, v [32]byte, x [16]byte, z uint8) [16]byte {
	msg := make([]byte, 0, 65)
	msg = append(msg, u[:]...)
	msg = append(msg, v[:]...)
	msg = append(msg, z)
	return aesCMAC(x, msg)
}

// f5 derives MacKey and LTK from the DH shared secret, per the SC key
// generation function. T = AES-CMAC_SALT(W); MacKey and LTK are two
// successive CMAC evaluations over a counter, key-ID, N1, N2, A1, A2, length.
func f5(w [32]byte, n1, n2 [16]byte, a1, a2 [7]byte) (macKey, ltk [16]byte) {
	salt := [16]byte{0x6C, 0x88, 0x83, 0x91, 0xAA, 0xF5, 0xA5, 0x38, 0x60, 0x37, 0x0B, 0xDB, 0x5A, 0x60, 0x83, 0xBE}
	t := aesCMAC(salt, w[:])

	keyID := []byte{0x62, 0x74, 0x6C, 0x65} // "btle"
	build := func(counter byte) []byte {
		msg := make([]byte, 0, 1+4+16+16+7+7+2)
		msg = append(msg, counter)
		msg = append(msg, keyID...)
		msg = append(msg, n1[:]...)
		msg = append(msg, n2[:]...)
		msg = append(msg, a1[:]...)
		msg = append(msg, a2[:]...)
		msg = append(msg, 0x01, 0x00) // length = 256 bits, big-endian (MSB first)
		return msg
	}
	macKey = aesCMAC(t, build(0))
	ltk = aesCMAC(t, build(1))
	return
}

// f6 computes the DHKey-Check and numeric-comparison check values:
// f6(W, N1, N2, R, IOcap, A1, A2) = AES-CMAC_W(N1 || N2 || R || IOcap || A1 || A2)
func f6(w [16]byte, n1, n2, r [16]byte, ioCap [3]byte, a1, a2 [7]byte) [16]byte {
	msg := make([]byte, 0, 16+16+16+3+7+7)
	msg = append(msg, n1[:]...)
	msg = append(msg, n2[:]...)
	msg = append(msg, r[:]...)
	msg = append(msg, ioCap[:]...)
	msg = append(msg, a1[:]...)
	msg = append(msg, a2[:]...)
	return aesCMAC(w, msg)
}

// g2 computes the 32-bit numeric-comparison display value:
// g2(U, V, X, Y) = AES-CMAC_X(U || V || Y) mod 2^32
func g2(u, v [32]byte, x [16]byte, y [16]byte) uint32 {
	msg := make([]byte, 0, 80)
	msg = append(msg, u[:]...)
	msg = append(msg, v[:]...)
	msg = append(msg, y[:]...)
	mac := aesCMAC(x, msg)
	return uint32(mac[12])<<24 | uint32(mac[13])<<16 | uint32(mac[14])<<8 | uint32(mac[15])
}

// ECDHKeyPair is a P-256 key pair used for one LE Secure Connections
// pairing attempt. A fresh pair is generated per spec per pairing, never
// reused across attempts.
type ECDHKeyPair struct {
	private *ecdh.PrivateKey
}

// GenerateECDHKeyPair creates a fresh NIST P-256 key pair.
func GenerateECDHKeyPair() (*ECDHKeyPair, error) {
	priv, err := ecdh.P256().GenerateKey(rand.Reader)
	if err != nil {
		return nil, codec.NewError(codec.KindSecurity, "GenerateECDHKeyPair", "key generation", err)
	}
	return &ECDHKeyPair{private: priv}, nil
}

// PublicKeyPDU renders the key pair's public point in the wire X/Y form
// used by smp.PublicKey.
func (kp *ECDHKeyPair) PublicKeyPDU() PublicKey {
	raw := kp.private.PublicKey().Bytes() // uncompressed: 0x04 || X || Y
	var pk PublicKey
	copy(pk.X[:], raw[1:33])
	copy(pk.Y[:], raw[33:65])
	return pk
}

// SharedSecret computes the ECDH shared secret (DHKey) with the peer's
// public key, rejecting a peer key equal to this pair's own (a known
// reflection-attack check from the core spec).
func (kp *ECDHKeyPair) SharedSecret(peer PublicKey) ([32]byte, error) {
	own := kp.PublicKeyPDU()
	if subtle.ConstantTimeCompare(own.X[:], peer.X[:]) == 1 && subtle.ConstantTimeCompare(own.Y[:], peer.Y[:]) == 1 {
		return [32]byte{}, codec.NewError(codec.KindSecurity, "SharedSecret", "peer presented our own public key", nil)
	}
	raw := append([]byte{0x04}, append(append([]byte{}, peer.X[:]...), peer.Y[:]...)...)
	peerKey, err := ecdh.P256().NewPublicKey(raw)
	if err != nil {
		return [32]byte{}, codec.NewError(codec.KindSecurity, "SharedSecret", "invalid peer public key", err)
	}
	secret, err := kp.private.ECDH(peerKey)
	if err != nil {
		return [32]byte{}, codec.NewError(codec.KindSecurity, "SharedSecret", "ECDH", err)
	}
	var out [32]byte
	copy(out[:], secret)
	return out, nil
}

// RandomNonce fills a fresh 128-bit random nonce, used for Pairing-Random,
// SC Na/Nb, and legacy TK-derived confirm values.
func RandomNonce() ([16]byte, error) {
	var n [16]byte
	if _, err := rand.Read(n[:]); err != nil {
		return n, codec.NewError(codec.KindSecurity, "RandomNonce", "rand.Read", err)
	}
	return n, nil
}

// ah is the BLE security function used to resolve a resolvable private
// address: ah(k, r) = e(k, padding || r), where r is the 24-bit prand and
// the hash is the low 24 bits of the output (core spec Vol 3 Part H
// §2.2.2). prand and the returned hash are both MSB-first, matching e()'s
// plaintext-block convention used by c1/s1 above.
func ah(irk [16]byte, prand [3]byte) [3]byte {
	var block [16]byte
	copy(block[13:16], prand[:])
	out := e(irk, block)
	var hash [3]byte
	copy(hash[:], out[13:16])
	return hash
}

// GenerateRPA assembles a resolvable private address from prand and irk,
// the host-side counterpart to ResolveRPA. Real controllers normally own
// RPA generation for advertising/scanning, but a host that wants to
// construct or validate one directly (including tests) needs the same ah
// computation ResolveRPA uses, in reverse.
func GenerateRPA(irk [16]byte, prand [3]byte) [6]byte {
	hash := ah(irk, prand)
	var addr [6]byte
	addr[5], addr[4], addr[3] = prand[0], prand[1], prand[2]
	addr[2], addr[1], addr[0] = hash[0], hash[1], hash[2]
	return addr
}

// ResolveRPA reports whether addr is a resolvable private address generated
// from irk, per spec §4.5: "perform AES-128 of prand and compare against
// hash." addr is in codec.Address's documented byte order (Bytes[5] is the
// most-significant octet), so the upper three octets are prand and the
// lower three are hash, both read MSB-first for ah's block convention.
func ResolveRPA(addr [6]byte, irk [16]byte) bool {
	prand := [3]byte{addr[5], addr[4], addr[3]}
	wantHash := [3]byte{addr[2], addr[1], addr[0]}
	gotHash := ah(irk, prand)
	return subtle.ConstantTimeCompare(gotHash[:], wantHash[:]) == 1
}

// VerifySignature checks an ATT Signed-Write-Command's trailing MAC against
// csrk, per spec §4.3: "the codec validates length but delegates CSRK
// verification to a caller-supplied verifier." The signed message is
// {opcode || payload || counter}, MAC'd with AES-CMAC and truncated to the
// low 64 bits, matching the core spec's ATT signing algorithm (Vol 3 Part H
// §2.4.5), the same AES-CMAC toolbox f4/f5/f6/g2 already use above.
func VerifySignature(csrk [16]byte, opcode byte, payload []byte, counter uint32, mac [8]byte) bool {
	msg := make([]byte, 0, 1+len(payload)+4)
	msg = append(msg, opcode)
	msg = append(msg, payload...)
	msg = append(msg, byte(counter), byte(counter>>8), byte(counter>>16), byte(counter>>24))
	full := aesCMAC(csrk, msg)
	return subtle.ConstantTimeCompare(full[8:16], mac[:]) == 1
}
